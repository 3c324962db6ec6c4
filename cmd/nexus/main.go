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

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"goflare.io/nexus"
	"goflare.io/nexus/internal/config"
	"goflare.io/nexus/internal/log"
	"goflare.io/nexus/internal/server"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "nexus: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("nexus", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a YAML configuration file")
	addr := fs.String("addr", "", "listen address, overrides the configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	file := config.DefaultFile()
	if *configPath != "" {
		var err error
		if file, err = config.LoadFile(*configPath); err != nil {
			return err
		}
	}
	if *addr != "" {
		file.Server.Addr = *addr
	}

	logger, err := log.New(file.Log.Level, file.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := append(file.CacheOptions(), nexus.WithLogger(logger.Named("cache")))
	cache, err := nexus.NewCache(ctx, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := cache.Close(); err != nil {
			logger.Warn("Failed to close cache", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr: file.Server.Addr,
		Handler: server.New(server.Deps{
			Cache:        cache,
			Logger:       logger,
			SeedDemoData: file.Server.SeedDemoData,
		}),
		ReadTimeout:  file.Server.ReadTimeout,
		WriteTimeout: file.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), file.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
