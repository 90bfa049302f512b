package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mtlprog/docflow/internal/config"
	"github.com/mtlprog/docflow/internal/database"
	"github.com/mtlprog/docflow/internal/handler"
	"github.com/mtlprog/docflow/internal/logger"
	"github.com/mtlprog/docflow/internal/repository"
	"github.com/mtlprog/docflow/internal/service"
	"github.com/mtlprog/docflow/internal/workflow"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
)

func main() {
	if _, err := config.LoadEnv(".env", ".env.local"); err != nil {
		slog.Error("failed to load env files", "error", err)
		os.Exit(1)
	}

	app := &cli.App{
		Name:  "docflow",
		Usage: "Document approval workflow tracker",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "store",
				Aliases: []string{"s"},
				Usage:   "Request store backend (memory, postgres, redis)",
			},
			&cli.StringFlag{
				Name:    "database-url",
				Aliases: []string{"d"},
				Usage:   "PostgreSQL database URL",
			},
			&cli.StringFlag{
				Name:  "redis-url",
				Usage: "Redis URL",
			},
			&cli.StringFlag{
				Name:  "approval-route",
				Usage: "Where a reviewer approval without validators goes (preparer, approver)",
			},
		},
		Before: func(c *cli.Context) error {
			logger.Setup(logger.ParseLevel(c.String("log-level")))
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Start the web server",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "port",
						Aliases: []string{"p"},
						Usage:   "HTTP server port",
					},
					&cli.StringFlag{
						Name:  "snapshot-file",
						Usage: "Load requests from this file at startup and save them at shutdown",
					},
				},
				Action: runServe,
			},
			{
				Name:  "export",
				Usage: "Write every request as a JSON snapshot",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "file",
						Aliases: []string{"f"},
						Value:   "-",
						Usage:   "Output file, - for stdout",
					},
				},
				Action: runExport,
			},
			{
				Name:  "import",
				Usage: "Replace every request with a JSON snapshot",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "Input file, - for stdin",
						Required: true,
					},
				},
				Action: runImport,
			},
			{
				Name:  "migrate",
				Usage: "Apply PostgreSQL migrations",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "rollback",
						Usage: "Revert the most recent migration instead",
					},
				},
				Action: runMigrate,
			},
		},
		Action: runServe,
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

// loadConfig reads the environment and lets explicit flags override it.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	override := func(flag string, dst *string) {
		if c.IsSet(flag) {
			*dst = c.String(flag)
		}
	}
	override("store", &cfg.Store)
	override("database-url", &cfg.DatabaseURL)
	override("redis-url", &cfg.RedisURL)
	override("approval-route", &cfg.ReviewerApprovalRoute)
	override("port", &cfg.Port)
	override("snapshot-file", &cfg.SnapshotFile)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openStore connects the configured backend. The returned cleanup releases it.
func openStore(ctx context.Context, cfg *config.Config) (repository.RequestStore, func(), error) {
	switch cfg.Store {
	case config.StorePostgres:
		db, err := database.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if _, err := database.RunMigrations(ctx, db.Pool()); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return repository.NewPostgresStore(db.Pool()), db.Close, nil

	case config.StoreRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis URL: %w", err)
		}
		store := repository.NewRedisStore(redis.NewClient(opts), cfg.RedisPrefix)
		if err := store.Ping(ctx); err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		slog.Info("redis connected", "addr", opts.Addr)
		return store, func() {
			if err := store.Close(); err != nil {
				slog.Error("failed to close redis client", "error", err)
			}
		}, nil

	default:
		slog.Warn("using in-memory store; requests are lost on exit unless a snapshot file is set")
		return repository.NewMemoryStore(), func() {}, nil
	}
}

func newWorkflowService(ctx context.Context, c *cli.Context) (*service.WorkflowService, *config.Config, func(), error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, nil, err
	}

	store, cleanup, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	engine := workflow.NewEngine(workflow.ApprovalRoute(cfg.ReviewerApprovalRoute), nil, nil)
	return service.NewWorkflowService(store, engine), cfg, cleanup, nil
}

func runServe(c *cli.Context) error {
	ctx := c.Context

	svc, cfg, cleanup, err := newWorkflowService(ctx, c)
	if err != nil {
		return err
	}
	defer cleanup()

	if cfg.SnapshotFile != "" {
		if err := loadSnapshot(ctx, svc, cfg.SnapshotFile); err != nil {
			return err
		}
	}

	h := handler.New(svc)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 1)
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server",
			"server_addr", "http://localhost:"+cfg.Port,
			"store", cfg.Store,
			"approval_route", cfg.ReviewerApprovalRoute,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-done:
		slog.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	if cfg.SnapshotFile != "" {
		if err := saveSnapshot(shutdownCtx, svc, cfg.SnapshotFile); err != nil {
			return err
		}
	}

	slog.Info("server stopped")
	return nil
}

func runExport(c *cli.Context) error {
	ctx := c.Context

	path := c.String("file")
	if path == "-" {
		// stdout carries the snapshot
		slog.SetDefault(logger.New(os.Stderr, logger.ParseLevel(c.String("log-level"))))
	}

	svc, _, cleanup, err := newWorkflowService(ctx, c)
	if err != nil {
		return err
	}
	defer cleanup()

	if path == "-" {
		_, err := svc.Export(ctx, os.Stdout)
		return err
	}
	return saveSnapshot(ctx, svc, path)
}

func runImport(c *cli.Context) error {
	ctx := c.Context

	svc, _, cleanup, err := newWorkflowService(ctx, c)
	if err != nil {
		return err
	}
	defer cleanup()

	path := c.String("file")
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open snapshot: %w", err)
		}
		defer f.Close()
		r = f
	}

	_, err = svc.Import(ctx, r)
	return err
}

func runMigrate(c *cli.Context) error {
	ctx := c.Context

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if c.IsSet("database-url") {
		cfg.DatabaseURL = c.String("database-url")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("database url is required")
	}

	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if c.Bool("rollback") {
		_, err = database.RollbackMigration(ctx, db.Pool())
	} else {
		_, err = database.RunMigrations(ctx, db.Pool())
	}
	return err
}

func loadSnapshot(ctx context.Context, svc *service.WorkflowService, path string) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Info("snapshot file not found, starting empty", "path", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	if _, err := svc.Import(ctx, f); err != nil {
		return fmt.Errorf("load snapshot %s: %w", path, err)
	}
	return nil
}

// saveSnapshot writes through a temp file and renames it into place.
func saveSnapshot(ctx context.Context, svc *service.WorkflowService, path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}

	if _, err := svc.Export(ctx, f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}
