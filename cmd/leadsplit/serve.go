package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/leadsplit/pkg/api"
	"github.com/odvcencio/leadsplit/pkg/auth"
	"github.com/odvcencio/leadsplit/pkg/bus"
	"github.com/odvcencio/leadsplit/pkg/config"
	"github.com/odvcencio/leadsplit/pkg/dispatch"
	"github.com/odvcencio/leadsplit/pkg/storage"
)

// revocationSweepInterval is how often expired token revocations are dropped.
const revocationSweepInterval = 15 * time.Minute

func runServeCommand(args []string) error {
	fs := newFlagSet("serve")
	configPath := fs.String("config", "", "path to a config file (default: ~/.leadsplit/config.yaml, ./.leadsplit/config.yaml)")
	addr := fs.String("addr", "", "address to listen on (overrides config)")
	if err := fs.Parse(args); err != nil {
		return withExitCode(err, exitConfig)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if v := strings.TrimSpace(*addr); v != "" {
		cfg.Server.Address = v
	}

	l, err := net.Listen("tcp", cfg.Server.Address)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.Address, err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return serve(ctx, cfg, l)
}

// serve runs the API on l until ctx is cancelled, then drains in-flight
// requests within the configured shutdown timeout.
func serve(ctx context.Context, cfg *config.Config, l net.Listener) error {
	logger := cfg.Logger("leadsplit")
	for _, w := range cfg.ValidationWarnings() {
		logger.Warn("config warning", "detail", w)
	}

	store, err := storage.New(cfg.Storage.Path)
	if err != nil {
		_ = l.Close()
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	events, err := bus.Open(cfg.Bus.Driver, bus.Config{
		URL:     cfg.Bus.URL,
		Name:    cfg.Bus.Name,
		Timeout: cfg.Bus.Timeout,
		Stream:  cfg.Bus.Stream,
	})
	if err != nil {
		_ = l.Close()
		return fmt.Errorf("open message bus: %w", err)
	}
	defer events.Close()

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	uploads := dispatch.NewService(store,
		dispatch.WithBus(events),
		dispatch.WithLogger(logger.Component("dispatch")),
		dispatch.WithMaxAgents(cfg.Upload.MaxAgents),
	)
	server, err := api.NewServer(api.ServerConfig{
		Config:   cfg,
		Store:    store,
		Tokens:   tokens,
		Uploader: uploads,
		Logger:   logger.Component("api"),
	})
	if err != nil {
		_ = l.Close()
		return err
	}

	logger.Info("starting leadsplit",
		"version", version,
		"address", l.Addr().String(),
		"database", cfg.Storage.Path,
		"bus", cfg.Bus.Driver,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(l)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(revocationSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				tokens.CleanupRevokedTokens()
			}
		}
	})

	err = g.Wait()
	logger.Info("leadsplit stopped")
	return err
}
