// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

package config

import "errors"

var (
	// ErrInvalidNetwork indicates the network name is not recognized.
	ErrInvalidNetwork = errors.New("config: invalid network (must be \"mainnet\", \"testnet\", or \"regtest\")")

	// ErrInvalidLogLevel indicates the log level is not recognized.
	ErrInvalidLogLevel = errors.New("config: invalid log level (must be \"debug\", \"info\", \"warn\", or \"error\")")

	// ErrEmptyRootDir indicates the archive root directory path is empty.
	ErrEmptyRootDir = errors.New("config: archive root directory must not be empty")

	// ErrInvalidMaxBlocks indicates the maximum block count is not positive.
	ErrInvalidMaxBlocks = errors.New("config: maxblocks must be positive")

	// ErrInvalidCapacityPolicy indicates the capacity policy is not recognized.
	ErrInvalidCapacityPolicy = errors.New("config: invalid capacity policy (must be \"ignore\" or \"warn\")")

	// ErrConfigNotFound indicates the configuration file does not exist.
	ErrConfigNotFound = errors.New("config: configuration file not found")

	// ErrInvalidConfigLine indicates a line in the config file is malformed.
	ErrInvalidConfigLine = errors.New("config: invalid configuration line")
)
