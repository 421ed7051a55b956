// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

package config

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultMaxBlocks is the block count the archive layout is sized for.
const DefaultMaxBlocks = 2_000_000

// Config holds block archive settings.
type Config struct {
	RootDir        string // archive root; blocks live in {RootDir}/{xx}/{yy}/
	Network        string // mainnet, testnet or regtest
	MaxBlocks      int    // expected upper bound on stored blocks
	CapacityPolicy string // ignore or warn when a listing passes MaxBlocks
	Sync           bool   // fsync each block before it becomes visible
	LogLevel       string // debug, info, warn or error
	LogFile        string // empty logs to stderr
}

// DefaultDataDir returns ~/.blockarchive, or .blockarchive in the working
// directory when the home directory cannot be determined.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".blockarchive"
	}
	return filepath.Join(home, ".blockarchive")
}

// DefaultRootDir returns the archive root for network under DefaultDataDir.
func DefaultRootDir(network string) string {
	return filepath.Join(DefaultDataDir(), network)
}

// DefaultConfig returns the mainnet configuration under DefaultDataDir.
func DefaultConfig() Config {
	return Config{
		RootDir:        DefaultRootDir("mainnet"),
		Network:        "mainnet",
		MaxBlocks:      DefaultMaxBlocks,
		CapacityPolicy: "ignore",
		Sync:           true,
		LogLevel:       "info",
	}
}

// ConfigPath returns the configuration file path inside dataDir.
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, "config")
}

// LoadConfig reads a "key = value" configuration file. Blank lines and
// lines starting with '#' are ignored, as are unknown keys. Keys that are
// not present keep their DefaultConfig values, except that a file naming a
// network but no rootdir gets DefaultRootDir of that network.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return cfg, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	rootSet := false
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, err := parseKeyValue(line)
		if err != nil {
			return cfg, fmt.Errorf("%w: line %d: %q", ErrInvalidConfigLine, lineNo, line)
		}
		if err := applyKey(&cfg, key, value); err != nil {
			return cfg, fmt.Errorf("%w: line %d: %w", ErrInvalidConfigLine, lineNo, err)
		}
		rootSet = rootSet || key == "rootdir"
	}
	if err := scanner.Err(); err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if !rootSet {
		cfg.RootDir = DefaultRootDir(cfg.Network)
	}

	return cfg, nil
}

// parseKeyValue splits a line on the first '='.
func parseKeyValue(line string) (string, string, error) {
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return "", "", ErrInvalidConfigLine
	}
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return "", "", ErrInvalidConfigLine
	}
	return key, strings.TrimSpace(value), nil
}

func applyKey(cfg *Config, key, value string) error {
	switch key {
	case "rootdir":
		cfg.RootDir = value
	case "network":
		cfg.Network = value
	case "maxblocks":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("maxblocks: %w", err)
		}
		cfg.MaxBlocks = n
	case "capacity":
		cfg.CapacityPolicy = value
	case "sync":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("sync: %w", err)
		}
		cfg.Sync = b
	case "loglevel":
		cfg.LogLevel = value
	case "logfile":
		cfg.LogFile = value
	}
	return nil
}

// SaveConfig writes cfg to path, creating the parent directory if needed.
func SaveConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}

	var b strings.Builder
	b.WriteString("# Block Archive Configuration\n\n")
	fmt.Fprintf(&b, "rootdir = %s\n", cfg.RootDir)
	fmt.Fprintf(&b, "network = %s\n", cfg.Network)
	fmt.Fprintf(&b, "maxblocks = %d\n", cfg.MaxBlocks)
	fmt.Fprintf(&b, "capacity = %s\n", cfg.CapacityPolicy)
	fmt.Fprintf(&b, "sync = %t\n", cfg.Sync)
	fmt.Fprintf(&b, "loglevel = %s\n", cfg.LogLevel)
	fmt.Fprintf(&b, "logfile = %s\n", cfg.LogFile)

	if err := os.WriteFile(path, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides cfg with environment values. Recognised keys are
// BLOCKARCHIVE_ROOT, BLOCKARCHIVE_NETWORK and BLOCKARCHIVE_LOGLEVEL;
// empty values are ignored. Switching network moves a default root to the
// new network's default root; an explicit root is kept.
func ApplyEnv(cfg Config, env map[string]string) Config {
	if v := env["BLOCKARCHIVE_NETWORK"]; v != "" {
		if cfg.RootDir == DefaultRootDir(cfg.Network) {
			cfg.RootDir = DefaultRootDir(v)
		}
		cfg.Network = v
	}
	if v := env["BLOCKARCHIVE_ROOT"]; v != "" {
		cfg.RootDir = v
	}
	if v := env["BLOCKARCHIVE_LOGLEVEL"]; v != "" {
		cfg.LogLevel = v
	}
	return cfg
}
