// Package cli provides Lamina's command-line interface.
package cli

import (
	"context"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/LoyaltyPointHQ/lamina/internal/config"
)

// Version is overridden at build time via -ldflags.
var Version = "dev"

var cfg = config.Default()

// Execute runs the CLI.
func Execute(ctx context.Context) error {
	root := &cobra.Command{
		Use:     "laminad",
		Short:   "Lamina - an S3-compatible object storage server",
		Version: Version,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	flags.StringVar((*string)(&cfg.Backend), "backend", string(cfg.Backend), "storage backend: memory, fs, or db")
	flags.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "data directory root, for the fs backend")
	flags.StringVar(&cfg.DSN, "dsn", cfg.DSN, "database DSN, for the db backend")
	flags.StringVar(&cfg.Region, "region", cfg.Region, "SigV4 region name")
	flags.BoolVar(&cfg.AuthEnabled, "auth", cfg.AuthEnabled, "require SigV4 authentication")
	flags.StringVar(&cfg.UsersFile, "users-file", cfg.UsersFile, "path to the users/credentials YAML file")
	flags.Uint32Var(&cfg.SecretHashIterations, "auth-hash-iterations", cfg.SecretHashIterations, "Argon2id time cost for hashing secrets at rest")
	flags.StringVar(&cacheSizeFlag, "cache-size", "64MiB", "metadata cache ceiling, e.g. 64MiB")

	root.AddCommand(NewServe())

	return fang.Execute(ctx, root)
}

var cacheSizeFlag string
