/*
 * Copyright 2025 Olake By Datazip
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package utils

import (
	"errors"
	"fmt"
)

const (
	SSLModeRequire    = "require"
	SSLModeDisable    = "disable"
	SSLModeVerifyCA   = "verify-ca"
	SSLModeVerifyFull = "verify-full"

	Unknown = ""
)

// SSLConfig is a dto for deserialized SSL configuration of a database connection
type SSLConfig struct {
	Mode       string `mapstructure:"mode" json:"mode,omitempty" validate:"omitempty,oneof=require disable verify-ca verify-full"`
	ServerCA   string `mapstructure:"server_ca" json:"server_ca,omitempty"`
	ClientCert string `mapstructure:"client_cert" json:"client_cert,omitempty"`
	ClientKey  string `mapstructure:"client_key" json:"client_key,omitempty"`
}

// Validate returns err if the ssl configuration is invalid
func (sc *SSLConfig) Validate() error {
	if sc == nil {
		return errors.New("'ssl' config is required")
	}

	if sc.Mode == Unknown {
		return errors.New("'ssl.mode' is required parameter")
	}

	if sc.Mode == SSLModeVerifyCA || sc.Mode == SSLModeVerifyFull {
		if sc.ServerCA == "" {
			return errors.New("'ssl.server_ca' is required parameter")
		}

		if sc.ClientCert == "" {
			return errors.New("'ssl.client_cert' is required parameter")
		}

		if sc.ClientKey == "" {
			return errors.New("'ssl.client_key' is required parameter")
		}
	}

	return nil
}

// PostgresParams returns the libpq style connection parameters for the config.
// Certificates are expected as file paths.
func (sc *SSLConfig) PostgresParams() (map[string]string, error) {
	if sc == nil {
		return map[string]string{"sslmode": SSLModeDisable}, nil
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}

	params := map[string]string{"sslmode": sc.Mode}
	for key, path := range map[string]string{
		"sslrootcert": sc.ServerCA,
		"sslcert":     sc.ClientCert,
		"sslkey":      sc.ClientKey,
	} {
		if path == "" {
			continue
		}
		if err := CheckIfFilesExists(path); err != nil {
			return nil, fmt.Errorf("ssl certificate: %s", err)
		}
		params[key] = path
	}
	return params, nil
}

// MySQLTLS maps the ssl mode onto the go-sql-driver tls parameter.
func (sc *SSLConfig) MySQLTLS() string {
	if sc == nil {
		return "false"
	}
	switch sc.Mode {
	case SSLModeDisable:
		return "false"
	case SSLModeRequire:
		return "skip-verify"
	default:
		return "true"
	}
}
