// Package config holds the runtime settings of the plotting server.
//
// Every setting has a documented default and can be overridden through a
// PLOTTING_MCP_* environment variable; cmd/plotting-mcp layers flags on top.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ironsheep/plotting-mcp/internal/logger"
)

// EnvPrefix prefixes every environment variable read by FromEnv.
const EnvPrefix = "PLOTTING_MCP_"

// Transports accepted by the server.
const (
	TransportHTTP  = "http"
	TransportStdio = "stdio"
)

// Config is the complete server configuration.
type Config struct {
	Transport string
	Host      string
	Port      int

	// DataDir is the read-only directory of reference datasets.
	DataDir string
	// Preload lists dataset keys loaded before the first request.
	Preload []string

	Workers       int
	MaxQueueDepth int
	QueueTimeout  time.Duration
	ExecTimeout   time.Duration

	MaxRecords    int
	MaxResolution int
	// WorkerMaxPixels is the per-render pixel capacity checked by workers.
	WorkerMaxPixels int

	LogLevel  string
	LogFormat string

	ShutdownTimeout time.Duration
}

// Default returns the documented defaults.
func Default() Config {
	return Config{
		Transport:       TransportHTTP,
		Host:            "0.0.0.0",
		Port:            8000,
		DataDir:         "/opt/plotting-mcp/refdata",
		Workers:         1,
		MaxQueueDepth:   32,
		QueueTimeout:    30 * time.Second,
		ExecTimeout:     60 * time.Second,
		MaxRecords:      100_000,
		MaxResolution:   4096,
		WorkerMaxPixels: 4096 * 4096,
		LogLevel:        "info",
		LogFormat:       "json",
		ShutdownTimeout: 10 * time.Second,
	}
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// FromEnv returns the defaults overridden by the process environment.
func FromEnv() (Config, error) {
	return FromLookup(os.LookupEnv)
}

// FromLookup returns the defaults overridden by values found through lookup.
func FromLookup(lookup LookupFunc) (Config, error) {
	cfg := Default()
	r := envReader{lookup: lookup}

	cfg.Transport = strings.ToLower(r.str("TRANSPORT", cfg.Transport))
	cfg.Host = r.str("HOST", cfg.Host)
	cfg.Port = r.integer("PORT", cfg.Port)
	cfg.DataDir = r.str("DATA_DIR", cfg.DataDir)
	cfg.Preload = r.csv("PRELOAD", cfg.Preload)
	cfg.Workers = r.integer("WORKERS", cfg.Workers)
	cfg.MaxQueueDepth = r.integer("MAX_QUEUE_DEPTH", cfg.MaxQueueDepth)
	cfg.QueueTimeout = r.duration("QUEUE_TIMEOUT", cfg.QueueTimeout)
	cfg.ExecTimeout = r.duration("EXEC_TIMEOUT", cfg.ExecTimeout)
	cfg.MaxRecords = r.integer("MAX_RECORDS", cfg.MaxRecords)
	cfg.MaxResolution = r.integer("MAX_RESOLUTION", cfg.MaxResolution)
	cfg.WorkerMaxPixels = r.integer("WORKER_MAX_PIXELS", cfg.WorkerMaxPixels)
	cfg.LogLevel = r.str("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = r.str("LOG_FORMAT", cfg.LogFormat)
	cfg.ShutdownTimeout = r.duration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)

	if r.err != nil {
		return Config{}, r.err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.Transport != TransportHTTP && c.Transport != TransportStdio:
		return fmt.Errorf("transport must be %q or %q, got %q", TransportHTTP, TransportStdio, c.Transport)
	case c.Transport == TransportHTTP && (c.Port < 1 || c.Port > 65535):
		return fmt.Errorf("port must be in 1..65535, got %d", c.Port)
	case c.DataDir == "":
		return fmt.Errorf("data dir must be set")
	case c.Workers < 1:
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	case c.MaxQueueDepth < c.Workers:
		return fmt.Errorf("max queue depth (%d) must be at least the worker count (%d)", c.MaxQueueDepth, c.Workers)
	case c.QueueTimeout <= 0:
		return fmt.Errorf("queue timeout must be positive, got %s", c.QueueTimeout)
	case c.ExecTimeout <= 0:
		return fmt.Errorf("exec timeout must be positive, got %s", c.ExecTimeout)
	case c.MaxRecords < 1:
		return fmt.Errorf("max records must be positive, got %d", c.MaxRecords)
	case c.MaxResolution < 16:
		return fmt.Errorf("max resolution must be at least 16, got %d", c.MaxResolution)
	case c.WorkerMaxPixels < 16*16:
		return fmt.Errorf("worker max pixels must be at least 256, got %d", c.WorkerMaxPixels)
	case !logger.ValidLevel(c.LogLevel):
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	case c.LogFormat != "json" && c.LogFormat != "text":
		return fmt.Errorf("log format must be json or text, got %q", c.LogFormat)
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// envReader reads prefixed variables and remembers the first parse failure.
type envReader struct {
	lookup LookupFunc
	err    error
}

func (r *envReader) raw(key string) (string, bool) {
	v, ok := r.lookup(EnvPrefix + key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (r *envReader) str(key, def string) string {
	if v, ok := r.raw(key); ok {
		return v
	}
	return def
}

func (r *envReader) integer(key string, def int) int {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, v, "an integer")
		return def
	}
	return n
}

// duration accepts Go durations ("45s") or bare seconds ("45").
func (r *envReader) duration(key string, def time.Duration) time.Duration {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, v, "a duration")
		return def
	}
	return d
}

func (r *envReader) csv(key string, def []string) []string {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (r *envReader) fail(key, value, want string) {
	if r.err == nil {
		r.err = fmt.Errorf("%s%s=%q: expected %s", EnvPrefix, key, value, want)
	}
}
