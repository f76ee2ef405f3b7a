/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"strings"

	"github.com/zalando/go-keyring"
)

// Service/keys for OS keyring.
const (
	keyringService = "MidiScript"
	keyringDSN     = "backend_dsn"
)

// secretStore abstracts the keyring, so tests can use the in-memory mock.
var secretStore SecretStore = osKeyring{}

// SecretStore reads and writes secrets by service and key.
type SecretStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

// osKeyring implements SecretStore using the OS keyring via github.com/zalando/go-keyring.
type osKeyring struct{}

func (osKeyring) Get(service, key string) (string, error) { return keyring.Get(service, key) }
func (osKeyring) Set(service, key, value string) error    { return keyring.Set(service, key, value) }
func (osKeyring) Delete(service, key string) error        { return keyring.Delete(service, key) }

// BackendDSN returns the backend DSN: the config/env value when set, otherwise the DSN
// kept in the OS keyring. No stored DSN yields "" and a nil error.
func (c AppConfig) BackendDSN() (string, error) {
	if dsn := strings.TrimSpace(c.Backend.DSN); dsn != "" {
		return dsn, nil
	}
	dsn, err := secretStore.Get(keyringService, keyringDSN)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	return dsn, err
}

// StoreBackendDSN keeps dsn in the OS keyring so credentials stay out of config.yaml.
// An empty dsn removes the stored value.
func StoreBackendDSN(dsn string) error {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		if err := secretStore.Delete(keyringService, keyringDSN); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return err
		}
		return nil
	}
	return secretStore.Set(keyringService, keyringDSN, dsn)
}
