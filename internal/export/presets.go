/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0
 */

package export

import (
	"fmt"
	"path/filepath"
	"strings"

	"midiscript/internal/script"
)

// PresetName represents a named export preset.
type PresetName string

const (
	PresetData   PresetName = "data"
	PresetReview PresetName = "review"
)

// BatchOptions controls exporting one timeline to several formats.
//
// Files are named <BaseName>.json and <BaseName>.pdf inside OutDir; BaseName defaults to "timeline".
//
//nolint:revive // keep fields explicit for clarity
type BatchOptions struct {
	Preset   PresetName
	Formats  []string // allowed: json, pdf; empty means preset defaults
	OutDir   string
	BaseName string
	CueSheet CueSheetOptions
}

// BatchExport runs exports according to the given preset and returns the written paths.
func BatchExport(tl *script.Timeline, opt BatchOptions) ([]string, error) {
	if tl == nil {
		return nil, fmt.Errorf("timeline is nil")
	}
	formats := opt.Formats
	if len(formats) == 0 {
		formats = presetDefaultFormats(opt.Preset)
	}
	base := opt.BaseName
	if base == "" {
		base = "timeline"
	}
	outDir := opt.OutDir
	if outDir == "" {
		outDir = "."
	}
	var written []string
	for _, f := range formats {
		switch strings.ToLower(strings.TrimSpace(f)) {
		case "json":
			out := filepath.Join(outDir, base+".json")
			if err := WriteTimelineJSON(tl, out); err != nil {
				return written, fmt.Errorf("json: %w", err)
			}
			written = append(written, out)
		case "pdf":
			out := filepath.Join(outDir, base+".pdf")
			co := opt.CueSheet
			if opt.Preset == PresetData {
				co.SkipPatterns = true
			}
			if err := ExportCueSheetPDF(tl, out, co); err != nil {
				return written, fmt.Errorf("pdf: %w", err)
			}
			written = append(written, out)
		default:
			return written, fmt.Errorf("unknown format: %s", f)
		}
	}
	return written, nil
}

func presetDefaultFormats(p PresetName) []string {
	switch p {
	case PresetData:
		return []string{"json"}
	case PresetReview:
		return []string{"json", "pdf"}
	default:
		return []string{"json"}
	}
}
