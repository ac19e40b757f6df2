// Command mockstore serves a local stand-in for the TeamGames store API, for trying the plugin
// against a development Nakama server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type config struct {
	Addr     string `env:"MOCKSTORE_ADDR" envDefault:":8089"`
	APIKey   string `env:"MOCKSTORE_API_KEY" envDefault:"dev-store-key"`
	Fixtures string `env:"MOCKSTORE_FIXTURES"`
	Release  bool   `env:"MOCKSTORE_RELEASE" envDefault:"false"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	logger, err := zap.NewDevelopment()
	if cfg.Release {
		gin.SetMode(gin.ReleaseMode)
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	store := newStore()
	if cfg.Fixtures != "" {
		data, err := os.ReadFile(cfg.Fixtures)
		if err != nil {
			return fmt.Errorf("read fixtures: %w", err)
		}
		queued, err := store.loadFixtures(data)
		if err != nil {
			return fmt.Errorf("load fixtures %s: %w", cfg.Fixtures, err)
		}
		logger.Info("loaded fixtures", zap.String("path", cfg.Fixtures), zap.Int("transactions", queued))
	}

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newRouter(store, cfg.APIKey, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("mock store listening", zap.String("addr", cfg.Addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return server.Shutdown(shutdownCtx)
}
