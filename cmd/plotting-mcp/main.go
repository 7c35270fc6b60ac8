package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ironsheep/plotting-mcp/internal/config"
	"github.com/ironsheep/plotting-mcp/internal/dispatch"
	"github.com/ironsheep/plotting-mcp/internal/logger"
	"github.com/ironsheep/plotting-mcp/internal/plot"
	"github.com/ironsheep/plotting-mcp/internal/refdata"
	"github.com/ironsheep/plotting-mcp/internal/render"
	"github.com/ironsheep/plotting-mcp/internal/server"
	"github.com/ironsheep/plotting-mcp/internal/shutdown"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	cfg, exit, err := loadConfig(os.Args[1:], os.Stdout)
	if exit {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "plotting-mcp: %v\n", err)
		os.Exit(2)
	}

	// stdout is reserved for MCP messages in stdio mode
	log := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		Output:      os.Stderr,
		ServiceName: "plotting-mcp",
	})

	if err := run(cfg, log); err != nil {
		log.LogFatal("server failed", err)
	}
}

// loadConfig layers command-line flags over the environment. exit is true
// when --version or --help was handled.
func loadConfig(args []string, stdout io.Writer) (cfg config.Config, exit bool, err error) {
	cfg, err = config.FromEnv()
	if err != nil {
		return cfg, false, err
	}

	fs := flag.NewFlagSet("plotting-mcp", flag.ContinueOnError)
	fs.SetOutput(stdout)
	showVersion := fs.Bool("version", false, "Print version information")
	fs.BoolVar(showVersion, "v", false, "Print version information")
	fs.StringVar(&cfg.Transport, "transport", cfg.Transport, "Transport: http or stdio")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "HTTP listen port")
	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "Reference dataset directory")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "Number of render workers")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	fs.Usage = func() { usage(stdout, fs) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return cfg, true, nil
		}
		return cfg, false, err
	}
	if *showVersion {
		fmt.Fprintf(stdout, "plotting-mcp %s\n", Version)
		fmt.Fprintf(stdout, "  Build time: %s\n", BuildTime)
		fmt.Fprintf(stdout, "  Git commit: %s\n", GitCommit)
		return cfg, true, nil
	}

	cfg.Transport = strings.ToLower(cfg.Transport)
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	return cfg, false, cfg.Validate()
}

func usage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(w, "plotting-mcp - MCP server that renders charts and maps")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: plotting-mcp [options]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Options:")
	fs.PrintDefaults()
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment variables:")
	fmt.Fprintf(w, "  %sTRANSPORT, %sPORT, %sDATA_DIR, %sWORKERS,\n", config.EnvPrefix, config.EnvPrefix, config.EnvPrefix, config.EnvPrefix)
	fmt.Fprintf(w, "  %sMAX_QUEUE_DEPTH, %sQUEUE_TIMEOUT, %sEXEC_TIMEOUT,\n", config.EnvPrefix, config.EnvPrefix, config.EnvPrefix)
	fmt.Fprintf(w, "  %sMAX_RECORDS, %sMAX_RESOLUTION, %sLOG_LEVEL, ...\n", config.EnvPrefix, config.EnvPrefix, config.EnvPrefix)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "With --transport stdio the server speaks MCP over stdin/stdout;")
	fmt.Fprintln(w, "otherwise it listens on the port for POST /mcp and GET /ws.")
}

// run wires the pipeline and serves until a signal or, for stdio, EOF.
func run(cfg config.Config, log *logger.Logger) error {
	log.Info("starting plotting-mcp",
		"version", Version,
		"transport", cfg.Transport,
		"workers", cfg.Workers,
		"data_dir", cfg.DataDir,
	)

	mgr := shutdown.NewManager(log, cfg.ShutdownTimeout)

	// reference data
	loader := refdata.NewDirLoader(cfg.DataDir)
	provisioned, err := loader.Provisioned()
	if err != nil {
		return err
	}
	if len(provisioned) == 0 {
		return fmt.Errorf("no reference datasets found in %s", cfg.DataDir)
	}
	cache := refdata.NewCache(loader, log)

	preload := make([]refdata.Key, 0, len(cfg.Preload))
	for _, s := range cfg.Preload {
		key, err := refdata.ParseKey(s)
		if err != nil {
			return fmt.Errorf("preload: %w", err)
		}
		preload = append(preload, key)
	}
	if len(preload) > 0 {
		n := cache.Warm(context.Background(), preload)
		log.Info("reference datasets preloaded", "requested", len(preload), "loaded", n)
	}
	log.Info("reference data ready", "provisioned", len(provisioned))

	// render pool
	renderers := make([]dispatch.Renderer, cfg.Workers)
	for i := range renderers {
		w, err := render.NewWorker(i, cache, render.Limits{
			MaxRecords: cfg.MaxRecords,
			MaxPixels:  cfg.WorkerMaxPixels,
		}, log)
		if err != nil {
			return fmt.Errorf("creating render worker %d: %w", i, err)
		}
		renderers[i] = w
	}
	jobs, err := dispatch.New(dispatch.Config{
		MaxQueueDepth: cfg.MaxQueueDepth,
		QueueTimeout:  cfg.QueueTimeout,
		ExecTimeout:   cfg.ExecTimeout,
	}, renderers, log)
	if err != nil {
		return err
	}
	mgr.Register("dispatcher", jobs.Shutdown)

	srv := server.New(server.Options{
		Version:   Version,
		Validator: plot.NewValidator(plot.Limits{MaxRecords: cfg.MaxRecords, MaxResolution: cfg.MaxResolution}),
		Jobs:      jobs,
		Datasets:  cache,
		Log:       log,
	})

	if cfg.Transport == config.TransportStdio {
		return serveStdio(srv, mgr, log)
	}
	return serveHTTP(cfg, srv, mgr, log)
}

func serveStdio(srv *server.Server, mgr *shutdown.Manager, log *logger.Logger) error {
	ctx := mgr.Context()
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run(ctx, os.Stdin, os.Stdout)
	}()

	stop, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := <-errCh; err != nil {
			log.WithError(err).Error("stdio transport failed")
		}
		log.Info("stdin closed")
		cancel()
	}()

	return mgr.WaitWithContext(stop)
}

func serveHTTP(cfg config.Config, srv *server.Server, mgr *shutdown.Manager, log *logger.Logger) error {
	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// a tool call may wait out both job deadlines
		WriteTimeout: cfg.QueueTimeout + cfg.ExecTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	mgr.Register("http-server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return httpServer.Shutdown(ctx)
	})

	stop, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			cancel()
		}
	}()

	err := mgr.WaitWithContext(stop)
	select {
	case listenErr := <-errCh:
		return listenErr
	default:
		return err
	}
}
