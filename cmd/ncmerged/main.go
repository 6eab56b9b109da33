// Command ncmerged serves the two-part container merge API.
//
// Usage:
//
//	ncmerged [--config file.yaml] [--listen :8080] [--log-level info] ...
//
// Configuration is resolved from an optional YAML file, then NCMERGE_*
// environment variables, then flags. The process runs until SIGINT or
// SIGTERM and then drains in-flight requests for at most the configured
// shutdown timeout.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/ncmerge/internal/config"
	"github.com/dreamware/ncmerge/internal/ctxlog"
	"github.com/dreamware/ncmerge/internal/merge"
	"github.com/dreamware/ncmerge/internal/partstore"
	"github.com/dreamware/ncmerge/internal/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Getenv, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "ncmerged: %v\n", err)
		os.Exit(1)
	}
}

// run parses args, builds the service and serves until ctx is canceled.
func run(ctx context.Context, args []string, getenv func(string) string, stderr io.Writer) error {
	fs := pflag.NewFlagSet("ncmerged", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	config.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Resolve(fs, getenv)
	if err != nil {
		return err
	}

	logger := ctxlog.NewLogger(cfg.Log.Level, cfg.Log.Format, stderr)
	slog.SetDefault(logger)

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Listen, err)
	}
	return serve(ctxlog.WithLogger(ctx, logger), cfg, ln)
}

// serve runs the HTTP server on ln and the idle-dataset janitor until ctx
// is canceled or one of them fails.
func serve(ctx context.Context, cfg config.Config, ln net.Listener) error {
	logger := ctxlog.FromContext(ctx)

	store := partstore.New(cfg.Shards)
	srv := server.New(store, merge.New(nil), server.Options{
		MaxUploadBytes: cfg.MaxUploadBytes,
		Logger:         logger,
	})
	httpSrv := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	janitor := partstore.NewJanitor(store, cfg.PartTTL, 0)
	janitor.OnEvict(func(names []string) {
		logger.Info("evicted idle datasets", "count", len(names), "datasets", names)
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("ncmerged listening", "addr", ln.Addr().String(), "shards", cfg.Shards, "part_ttl", cfg.PartTTL)
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return janitor.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		logger.Info("ncmerged stopped")
		return nil
	})
	return g.Wait()
}
