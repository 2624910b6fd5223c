// Package config holds Lamina's server configuration, mirroring
// app/web/config.go's small flat-struct shape extended with the backend
// selection, auth, and cache knobs the server needs.
package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Backend selects which objectstore driver backs the server.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendFS     Backend = "fs"
	BackendDB     Backend = "db"
)

// Config holds every flag-settable knob laminad serve accepts.
type Config struct {
	Addr    string
	Backend Backend
	DataDir string // fsstore root, when Backend == BackendFS
	DSN     string // sqlstore DSN, when Backend == BackendDB

	Region string

	AuthEnabled bool
	UsersFile   string // path to a users config file; required when AuthEnabled

	// SecretHashIterations tunes the Argon2id time cost used to hash
	// secrets at rest in authstore; higher values cost more CPU per
	// startup/VerifySecret call in exchange for slower offline cracking.
	SecretHashIterations uint32

	CacheSize int64 // metadata cache ceiling in bytes
}

// Default returns the flag defaults laminad serve starts from.
func Default() Config {
	return Config{
		Addr:                 ":9000",
		Backend:              BackendMemory,
		DataDir:              "./data",
		Region:               "us-east-1",
		SecretHashIterations: 3,
		CacheSize:            64 * 1024 * 1024,
	}
}

// Validate reports whether the configuration is internally consistent.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendFS:
		if c.DataDir == "" {
			return fmt.Errorf("config: --data-dir is required for the fs backend")
		}
	case BackendDB:
		if c.DSN == "" {
			return fmt.Errorf("config: --dsn is required for the db backend")
		}
	default:
		return fmt.Errorf("config: unknown backend %q (want memory, fs, or db)", c.Backend)
	}
	if c.AuthEnabled && c.UsersFile == "" {
		return fmt.Errorf("config: --auth requires --users-file")
	}
	return nil
}

// ParseSize parses a human size like "64MiB", "1GiB", or a bare byte count,
// the shape the --cache-size flag accepts.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("config: empty size")
	}

	units := []struct {
		suffix string
		mult   int64
	}{
		{"KiB", 1 << 10}, {"MiB", 1 << 20}, {"GiB", 1 << 30},
		{"KB", 1000}, {"MB", 1000 * 1000}, {"GB", 1000 * 1000 * 1000},
		{"B", 1},
	}

	for _, u := range units {
		if strings.HasSuffix(s, u.suffix) {
			numPart := strings.TrimSuffix(s, u.suffix)
			n, err := strconv.ParseFloat(strings.TrimSpace(numPart), 64)
			if err != nil {
				return 0, fmt.Errorf("config: invalid size %q: %w", s, err)
			}
			return int64(n * float64(u.mult)), nil
		}
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("config: invalid size %q: %w", s, err)
	}
	return n, nil
}
