package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/LoyaltyPointHQ/lamina/internal/authstore"
	"github.com/LoyaltyPointHQ/lamina/internal/bucketregistry"
	"github.com/LoyaltyPointHQ/lamina/internal/cache"
	"github.com/LoyaltyPointHQ/lamina/internal/config"
	"github.com/LoyaltyPointHQ/lamina/internal/facade"
	"github.com/LoyaltyPointHQ/lamina/internal/multipart"
	"github.com/LoyaltyPointHQ/lamina/internal/objectstore"
	"github.com/LoyaltyPointHQ/lamina/internal/objectstore/driver/fsstore"
	"github.com/LoyaltyPointHQ/lamina/internal/objectstore/driver/memstore"
	"github.com/LoyaltyPointHQ/lamina/internal/objectstore/driver/sqlstore"
	"github.com/LoyaltyPointHQ/lamina/internal/s3api"
)

// NewServe builds the "serve" subcommand.
func NewServe() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the Lamina object storage server",
		Long: `Start the Lamina S3-compatible object storage server.

Examples:
  laminad serve                              # in-memory backend on :9000
  laminad serve --backend fs --data-dir ./data
  laminad serve --backend db --dsn ./lamina.duckdb
  laminad serve --auth --users-file ./users.yaml`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if size, err := config.ParseSize(cacheSizeFlag); err == nil {
		cfg.CacheSize = size
	} else {
		Error(fmt.Sprintf("invalid --cache-size: %v", err))
		return err
	}
	if err := cfg.Validate(); err != nil {
		Error(err.Error())
		return err
	}

	Blank()
	Header("", "Lamina Object Storage")
	Blank()
	Summary(
		"Address", cfg.Addr,
		"Backend", string(cfg.Backend),
		"Region", cfg.Region,
		"Auth", modeString(cfg.AuthEnabled),
		"Version", Version,
	)
	Blank()

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		Error(fmt.Sprintf("failed to open backend: %v", err))
		return err
	}
	defer backend.Close()

	var authStore *authstore.Store
	if cfg.AuthEnabled {
		users, err := authstore.LoadUsersFile(cfg.UsersFile)
		if err != nil {
			Error(fmt.Sprintf("failed to load users file: %v", err))
			return err
		}
		hashParams := authstore.DefaultHashParams()
		hashParams.Iterations = cfg.SecretHashIterations
		authStore, err = authstore.New(users, authstore.WithHashParams(hashParams))
		if err != nil {
			Error(fmt.Sprintf("failed to build credential store: %v", err))
			return err
		}
	}

	fac := facade.New(facade.Config{Data: backend, Meta: backend, Cache: cache.New(cfg.CacheSize)})
	mpm := multipart.New(multipart.Config{Multipart: backend, Data: backend, Meta: backend})
	buckets := bucketregistry.New(fac.IsBucketEmpty, fac.PurgeBucket)

	srv := s3api.New(s3api.Config{
		Facade:    fac,
		Multipart: mpm,
		Buckets:   buckets,
		Auth:      authStore,
		Region:    cfg.Region,
	})

	errCh := make(chan error, 1)
	go func() {
		Step("", fmt.Sprintf("Listening on http://localhost%s", cfg.Addr))
		errCh <- srv.Listen(cfg.Addr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		Error(fmt.Sprintf("server error: %v", err))
		return err
	case <-quit:
		Blank()
		Step("", "Shutting down...")
		Success("Server stopped")
	}
	return nil
}

func openBackend(ctx context.Context, c config.Config) (objectstore.Backend, error) {
	switch c.Backend {
	case config.BackendMemory:
		return memstore.New(), nil
	case config.BackendFS:
		return fsstore.New(c.DataDir)
	case config.BackendDB:
		return sqlstore.Open(ctx, c.DSN)
	default:
		return nil, fmt.Errorf("cli: unknown backend %q", c.Backend)
	}
}
