package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	apiPkg "github.com/h1v3-io/ticketd/internal/api"
	"github.com/h1v3-io/ticketd/internal/config"
	"github.com/h1v3-io/ticketd/internal/logbuf"
	"github.com/h1v3-io/ticketd/internal/report"
	"github.com/h1v3-io/ticketd/internal/ticket"
)

func main() {
	configPath := pflag.String("config", "", "Path to config file (JSON, JSONC or YAML)")
	addr := pflag.String("addr", "", "Listen address host:port, overrides config")
	verbose := pflag.BoolP("verbose", "v", false, "Verbose logging")
	pflag.Parse()

	// Load config (2 modes: file, env)
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "ticketd: load config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		if err := overrideAddr(cfg, *addr); err != nil {
			fmt.Fprintf(os.Stderr, "ticketd: %v\n", err)
			os.Exit(1)
		}
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}

	// Set up logging
	logBuf := logbuf.New(cfg.Log.Buffer)
	logger := slog.New(logbuf.NewHandler(newHandler(os.Stdout, cfg.Log), logBuf))
	slog.SetDefault(logger)

	logger.Info("ticketd starting", "addr", cfg.Addr(), "storage", cfg.Storage.Backend)

	// 1. Initialize ticket store
	var store ticket.Store
	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		s, err := ticket.NewSQLiteStore(cfg.Storage.Name)
		if err != nil {
			logger.Error("failed to open ticket store", "name", cfg.Storage.Name, "error", err)
			os.Exit(1)
		}
		defer s.Close()
		store = s
	default:
		store = ticket.NewMemoryStore()
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	// 2. Start stats reporter
	if cfg.Report.Schedule != "" {
		reporter := report.New(store, logger.With("component", "report"))
		if err := reporter.Schedule(cfg.Report.Schedule); err != nil {
			logger.Error("failed to schedule stats report", "error", err)
			os.Exit(1)
		}
		wg.Add(1)
		go safeGo(logger, "reporter", func() {
			defer wg.Done()
			reporter.Start(ctx)
		})
	}

	// 3. Start API server
	apiSrv := apiPkg.NewServer(store, apiPkg.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		CORSOrigins:     cfg.Server.CORSOrigins,
		ShutdownTimeout: time.Duration(cfg.Server.ShutdownTimeout) * time.Second,
	}, logger.With("component", "api"), logBuf)

	serveErr := make(chan error, 1)
	wg.Add(1)
	go safeGo(logger, "api-server", func() {
		defer wg.Done()
		serveErr <- apiSrv.Start(ctx)
	})

	// 4. Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	exitCode := 0
	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig)
	case err := <-serveErr:
		if err != nil {
			logger.Error("api server failed", "error", err)
			exitCode = 1
		}
	}
	cancel()
	wg.Wait()
	logger.Info("ticketd stopped")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

func newHandler(w io.Writer, cfg config.LogConfig) slog.Handler {
	opts := &slog.HandlerOptions{Level: logbuf.ParseLevel(cfg.Level)}
	if cfg.Format == "text" {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

func overrideAddr(cfg *config.Config, addr string) error {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid --addr %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return fmt.Errorf("invalid --addr %q: bad port", addr)
	}
	cfg.Server.Host = host
	cfg.Server.Port = port
	return nil
}

// safeGo runs fn with panic recovery.
func safeGo(logger *slog.Logger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("goroutine panicked", "name", name, "panic", fmt.Sprintf("%v", r))
		}
	}()
	fn()
}
