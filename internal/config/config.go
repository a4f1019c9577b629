// Package config builds the server configuration once at startup.
//
// Values are layered, lowest precedence first: built-in defaults, an optional
// TOML or YAML file, RAWSTATIC_* environment variables (an optional .env file
// is loaded into the environment first) and finally command-line flags. The
// resulting Config is a plain value; nothing mutates it after Load returns.
package config

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultRoot         = "resources"
	DefaultPage         = "/default.html"
	DefaultNotFoundPage = "/404NotFound.html"
	DefaultQueueSize    = 64
	DefaultBacklog      = 128
	DefaultReadTimeout  = 30 * time.Second
	DefaultMaxLineBytes = 8 << 10
)

// Config holds every tunable of the server.
type Config struct {
	Host         string        `toml:"host" yaml:"host"`
	Port         int           `toml:"port" yaml:"port"`
	Root         string        `toml:"root" yaml:"root"`
	DefaultPage  string        `toml:"default_page" yaml:"default_page"`
	NotFoundPage string        `toml:"not_found_page" yaml:"not_found_page"`
	Workers      int           `toml:"workers" yaml:"workers"`
	QueueSize    int           `toml:"queue_size" yaml:"queue_size"`
	QueueTimeout time.Duration `toml:"queue_timeout" yaml:"queue_timeout"`
	Backlog      int           `toml:"backlog" yaml:"backlog"`
	MaxConns     int           `toml:"max_conns" yaml:"max_conns"`
	ReadTimeout  time.Duration `toml:"read_timeout" yaml:"read_timeout"`
	MaxLineBytes int           `toml:"max_line_bytes" yaml:"max_line_bytes"`
	LogLevel     string        `toml:"log_level" yaml:"log_level"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Root:         DefaultRoot,
		DefaultPage:  DefaultPage,
		NotFoundPage: DefaultNotFoundPage,
		Workers:      runtime.NumCPU(),
		QueueSize:    DefaultQueueSize,
		Backlog:      DefaultBacklog,
		ReadTimeout:  DefaultReadTimeout,
		MaxLineBytes: DefaultMaxLineBytes,
		LogLevel:     "info",
	}
}

// ArgumentError reports a configuration value that cannot be used.
type ArgumentError struct {
	Arg   string
	Value string
	Err   error
}

func (e *ArgumentError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %v", e.Arg, e.Err)
	}
	return fmt.Sprintf("invalid %s %q: %v", e.Arg, e.Value, e.Err)
}

func (e *ArgumentError) Unwrap() error { return e.Err }

// Load resolves the configuration from args (without the program name),
// the environment and the optional config file named by -c/--config.
func Load(args []string) (Config, error) {
	// First pass only finds the config file; errors surface on the second pass.
	var configPath string
	scratch := Default()
	pre := newFlagSet(&scratch, &configPath)
	pre.SetOutput(io.Discard)
	_ = pre.Parse(args)

	cfg := Default()
	if configPath != "" {
		if err := decodeFile(configPath, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg, ".env"); err != nil {
		return Config{}, err
	}

	fs := newFlagSet(&cfg, &configPath)
	if err := fs.Parse(args); err != nil {
		return Config{}, &ArgumentError{Arg: "arguments", Err: err}
	}
	if fs.NArg() > 0 {
		return Config{}, &ArgumentError{Arg: "argument", Value: fs.Arg(0), Err: errors.New("unexpected positional argument")}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func newFlagSet(cfg *Config, configPath *string) *flag.FlagSet {
	fs := flag.NewFlagSet("rawstatic", flag.ContinueOnError)

	fs.StringVar(configPath, "c", *configPath, "Config file (.toml, .yaml or .yml)")
	fs.StringVar(configPath, "config", *configPath, "Config file (.toml, .yaml or .yml)")
	fs.IntVar(&cfg.Port, "p", cfg.Port, "Server port, 0 picks an ephemeral port")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "Server port, 0 picks an ephemeral port")
	fs.StringVar(&cfg.Host, "h", cfg.Host, "Bind address, empty for all interfaces")
	fs.StringVar(&cfg.Host, "host", cfg.Host, "Bind address, empty for all interfaces")
	fs.StringVar(&cfg.Root, "d", cfg.Root, "Resource root directory")
	fs.StringVar(&cfg.Root, "dir", cfg.Root, "Resource root directory")
	fs.IntVar(&cfg.Workers, "w", cfg.Workers, "Number of workers")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "Number of workers")
	fs.IntVar(&cfg.QueueSize, "q", cfg.QueueSize, "Pending connection queue size")
	fs.IntVar(&cfg.QueueSize, "queue", cfg.QueueSize, "Pending connection queue size")
	fs.DurationVar(&cfg.QueueTimeout, "queue-timeout", cfg.QueueTimeout, "How long to wait for queue space before rejecting")
	fs.IntVar(&cfg.Backlog, "b", cfg.Backlog, "Listen backlog")
	fs.IntVar(&cfg.Backlog, "backlog", cfg.Backlog, "Listen backlog")
	fs.IntVar(&cfg.MaxConns, "max-conns", cfg.MaxConns, "Maximum simultaneously open connections, 0 for no limit")
	fs.DurationVar(&cfg.ReadTimeout, "read-timeout", cfg.ReadTimeout, "Per-connection I/O deadline, 0 disables it")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")

	return fs
}

// Validate checks every field and makes Root absolute.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return &ArgumentError{Arg: "port", Value: strconv.Itoa(c.Port), Err: errors.New("must be between 0 and 65535")}
	}
	if c.Workers < 1 {
		return &ArgumentError{Arg: "workers", Value: strconv.Itoa(c.Workers), Err: errors.New("must be at least 1")}
	}
	for _, v := range []struct {
		name string
		n    int64
	}{
		{"queue", int64(c.QueueSize)},
		{"queue timeout", int64(c.QueueTimeout)},
		{"backlog", int64(c.Backlog)},
		{"max conns", int64(c.MaxConns)},
		{"read timeout", int64(c.ReadTimeout)},
	} {
		if v.n < 0 {
			return &ArgumentError{Arg: v.name, Value: strconv.FormatInt(v.n, 10), Err: errors.New("must not be negative")}
		}
	}
	if c.MaxLineBytes < 64 {
		return &ArgumentError{Arg: "max line bytes", Value: strconv.Itoa(c.MaxLineBytes), Err: errors.New("must be at least 64")}
	}
	if _, err := c.Level(); err != nil {
		return &ArgumentError{Arg: "log level", Value: c.LogLevel, Err: err}
	}

	for _, p := range []*string{&c.DefaultPage, &c.NotFoundPage} {
		if *p == "" || *p == "/" {
			return &ArgumentError{Arg: "page", Value: *p, Err: errors.New("must name a file")}
		}
		if !strings.HasPrefix(*p, "/") {
			*p = "/" + *p
		}
	}

	if c.Host != "" && net.ParseIP(c.Host) == nil {
		if _, err := net.DefaultResolver.LookupHost(context.Background(), c.Host); err != nil {
			return &ArgumentError{Arg: "host", Value: c.Host, Err: err}
		}
	}

	root, err := filepath.Abs(c.Root)
	if err != nil {
		return &ArgumentError{Arg: "root", Value: c.Root, Err: err}
	}
	fi, err := os.Stat(root)
	if err != nil {
		return &ArgumentError{Arg: "root", Value: c.Root, Err: err}
	}
	if !fi.IsDir() {
		return &ArgumentError{Arg: "root", Value: c.Root, Err: errors.New("not a directory")}
	}
	c.Root = root

	return nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var lvl slog.Level
	err := lvl.UnmarshalText([]byte(c.LogLevel))
	return lvl, err
}

// Addr is the host:port pair the listener binds.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
