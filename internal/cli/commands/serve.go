package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/propsheet/internal/auth"
	"github.com/conduit-lang/propsheet/internal/catalog"
	"github.com/conduit-lang/propsheet/internal/command"
	"github.com/conduit-lang/propsheet/internal/property"
	"github.com/conduit-lang/propsheet/internal/server"
)

var (
	servePortFlag  int
	serveProbeFlag time.Duration
)

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve property sheets over HTTP",
		Long: `Start an HTTP server for property sheets.

Clients open sources for sample objects, read their attributes, write them
through a shared undo history and follow lazy attribute loads over a
websocket. When auth.secret is set, writes need a bearer token with the
editor role (see 'propsheet token').`,
		Example: `  # Serve on the configured address
  propsheet serve

  # Serve on port 9000
  propsheet serve --port 9000`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().IntVarP(&servePortFlag, "port", "p", 0, "Port to listen on (default from config)")
	cmd.Flags().DurationVar(&serveProbeFlag, "probe", 500*time.Millisecond, "Simulated latency of lazy attributes")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry, store, err := openRegistry(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.Columns.Watch && store.file != nil {
		err := store.file.Watch(ctx, func() {
			if err := registry.Reload(ctx); err != nil {
				logger.Debug("column state not reloaded", zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("failed to watch column state file", zap.Error(err))
		}
	}

	var tokens *auth.Service
	if cfg.Auth.Secret != "" {
		tokens = auth.NewService(cfg.Auth.Secret, time.Hour)
	} else {
		logger.Warn("auth.secret is not set, every client may edit")
	}

	port := cfg.Server.Port
	if servePortFlag != 0 {
		port = servePortFlag
	}
	srvCfg := server.DefaultConfig()
	srvCfg.Address = fmt.Sprintf("%s:%d", cfg.Server.Host, port)
	srvCfg.ShowExpensive = cfg.Properties.ShowExpensive

	srv, err := server.New(srvCfg, server.Deps{
		Catalog:   catalog.New(serveProbeFlag),
		Extractor: property.NewExtractor(property.WithLogger(logger)),
		History: command.NewHistory(
			command.WithMaxDepth(cfg.Commands.MaxDepth),
			command.WithLogger(logger),
		),
		Columns: registry,
		Auth:    tokens,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		srv.Close()
		registry.Close(context.Background())
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown failed", zap.Error(err))
	}
	return registry.Close(shutdownCtx)
}
