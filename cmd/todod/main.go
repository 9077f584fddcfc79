// Command todod serves the todo API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/Makepad-fr/tada/internal/auth"
	"github.com/Makepad-fr/tada/internal/config"
	"github.com/Makepad-fr/tada/internal/logging"
	"github.com/Makepad-fr/tada/internal/server"
	"github.com/Makepad-fr/tada/internal/store"
	"github.com/Makepad-fr/tada/internal/store/jsonstore"
	"github.com/Makepad-fr/tada/internal/store/sqlitestore"
	"github.com/Makepad-fr/tada/internal/telemetry"
)

func main() {
	if err := mainInner(os.Args[1:]); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner(args []string) error {
	cfg, err := config.LoadServer()
	if err != nil {
		return err
	}
	logger := logging.New(os.Stderr, logging.Options{
		Level:           cfg.LogLevel,
		Format:          cfg.LogFormat,
		ReportTimestamp: true,
		Prefix:          "todod",
	})

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if len(args) > 0 && args[0] == "import" {
		return importLegacy(st, args[1:], logger)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, "todod", cfg.OTelURL, cfg.OTelEnabled)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracing shutdown", "err", err)
		}
	}()

	tokens, err := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL, nil)
	if err != nil {
		return err
	}
	s, err := server.New(st, auth.NewService(st, tokens), logger)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errs := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr, "store", cfg.Store)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	select {
	case err := <-errs:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer scancel()
	if err := httpServer.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openStore(cfg config.Server) (store.Store, error) {
	switch cfg.Store {
	case "json":
		return jsonstore.Open(cfg.JSONPath)
	default:
		return sqlitestore.Open(cfg.DBPath)
	}
}

// importLegacy loads a todos.json from the old local-only CLI into an
// existing account.
func importLegacy(st store.Store, args []string, logger *log.Logger) error {
	fs := flag.NewFlagSet("todod import", flag.ContinueOnError)
	email := fs.String("email", "", "account that receives the todos")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || fs.NArg() != 1 {
		return fmt.Errorf("usage: todod import --email <user> <todos.json>")
	}
	ctx := context.Background()
	u, err := st.UserByEmail(ctx, *email)
	if err != nil {
		return fmt.Errorf("find user %s: %w", *email, err)
	}
	n, err := jsonstore.ImportLegacy(ctx, st, fs.Arg(0), u.ID)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	logger.Info("imported", "todos", n, "user", *email)
	return nil
}
