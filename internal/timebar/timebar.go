/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package timebar converts between the three time axes used by a timeline:
// bar-time (fractional musical bars, 1.0 = start of bar 1), performance seconds
// (measured from InitBar on the audio track) and movie seconds (performance
// seconds shifted by the opening title duration).
package timebar

import (
	"errors"
	"fmt"
)

// Clock carries the tempo and offset parameters needed by every conversion.
type Clock struct {
	StepsPerBeat   float64
	BeatsPerBar    float64
	BeatsPerMinute float64
	// StartBar is the authored bar number at which the audio actually begins.
	StartBar float64
	// InitBar is the bar number at which the output timeline starts counting.
	InitBar float64
	// BeginTime is the opening title duration in seconds.
	BeginTime float64
}

// ErrInvalidClock is returned by Validate for non-positive tempo parameters.
var ErrInvalidClock = errors.New("timebar: invalid clock")

// Validate reports whether the clock can be used for conversions.
func (c Clock) Validate() error {
	if c.BeatsPerMinute <= 0 {
		return fmt.Errorf("%w: beats per minute must be > 0 (got %v)", ErrInvalidClock, c.BeatsPerMinute)
	}
	if c.BeatsPerBar <= 0 {
		return fmt.Errorf("%w: beats per bar must be > 0 (got %v)", ErrInvalidClock, c.BeatsPerBar)
	}
	if c.StepsPerBeat <= 0 {
		return fmt.Errorf("%w: steps per beat must be > 0 (got %v)", ErrInvalidClock, c.StepsPerBeat)
	}
	return nil
}

// BarsPerMinute is beatsPerMinute / beatsPerBar.
func (c Clock) BarsPerMinute() float64 { return c.BeatsPerMinute / c.BeatsPerBar }

// BarToPerformance converts bar-time to seconds on the audio track.
func (c Clock) BarToPerformance(bar float64) float64 {
	return (bar - c.InitBar) / c.BarsPerMinute() * 60
}

// PerformanceToBar converts seconds on the audio track back to bar-time.
func (c Clock) PerformanceToBar(sec float64) float64 {
	return sec/60*c.BarsPerMinute() + c.InitBar
}

// BarToMovie converts bar-time to seconds in the output movie.
func (c Clock) BarToMovie(bar float64) float64 {
	return c.BarToPerformance(bar) + c.BeginTime
}

// MovieToBar converts movie seconds back to bar-time.
func (c Clock) MovieToBar(sec float64) float64 {
	return c.PerformanceToBar(sec - c.BeginTime)
}

// SpanToSeconds converts a duration in bars to seconds. No offsets apply.
func (c Clock) SpanToSeconds(span float64) float64 {
	return span / c.BarsPerMinute() * 60
}

// FromAuthored maps an authored bar number (as written in a script) to bar-time.
func (c Clock) FromAuthored(a float64) float64 { return a - c.StartBar + c.InitBar }

// ToAuthored is the inverse of FromAuthored.
func (c Clock) ToAuthored(bar float64) float64 { return bar + c.StartBar - c.InitBar }

// TicksPerBar returns the number of MIDI ticks in one bar for the given
// timebase (ticks per beat). One step is a quarter of a beat's ticks.
func (c Clock) TicksPerBar(ticksPerBeat float64) float64 {
	return ticksPerBeat / 4 * c.StepsPerBeat * c.BeatsPerBar
}
