// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

package config

import "strings"

// validLogLevels lists the accepted log level strings.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validCapacityPolicies lists the accepted capacity policy strings.
var validCapacityPolicies = map[string]bool{
	"ignore": true,
	"warn":   true,
}

// ValidateConfig checks that all configuration values are within acceptable
// ranges and returns the first error encountered, or nil if valid.
func ValidateConfig(cfg Config) error {
	if cfg.RootDir == "" {
		return ErrEmptyRootDir
	}

	if cfg.Network != "mainnet" && cfg.Network != "testnet" && cfg.Network != "regtest" {
		return ErrInvalidNetwork
	}

	if cfg.MaxBlocks <= 0 {
		return ErrInvalidMaxBlocks
	}

	if !validCapacityPolicies[cfg.CapacityPolicy] {
		return ErrInvalidCapacityPolicy
	}

	if !validLogLevels[strings.ToLower(cfg.LogLevel)] {
		return ErrInvalidLogLevel
	}

	return nil
}
