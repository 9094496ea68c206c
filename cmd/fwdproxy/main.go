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

	"golang.org/x/sync/errgroup"

	"fwdproxy/internal/config"
	"fwdproxy/internal/logging"
	"fwdproxy/internal/metrics"
	"fwdproxy/internal/proxy"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [-config file] <port>\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 1 {
		usage()
		os.Exit(1)
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
	}
	cfg.SetPort(flag.Arg(0))

	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	metrics.Init()

	p, err := proxy.NewBuilder(cfg, logger).Build()
	if err != nil {
		logger.Error("build proxy", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return p.Server.ListenAndServe(gctx)
	})

	if p.Admin != nil {
		g.Go(func() error {
			logger.Info("admin listening", "addr", p.Admin.Addr)
			if err := p.Admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("admin server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return p.Admin.Shutdown(shutdownCtx)
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	var runErr error
	select {
	case runErr = <-done:
	case <-ctx.Done():
		logger.Info("shutting down gracefully")
		select {
		case runErr = <-done:
		case <-time.After(5 * time.Second):
			logger.Info("connections still open after grace period, exiting")
		}
	}

	if runErr != nil {
		logger.Error("proxy stopped", "err", runErr)
		fmt.Fprintf(os.Stderr, "%v\n", runErr)
		os.Exit(1)
	}
}
