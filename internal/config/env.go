package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "RAWSTATIC_"

// applyEnv loads envFile (if it exists) without overriding variables already
// set, then overlays every RAWSTATIC_* variable onto cfg.
func applyEnv(cfg *Config, envFile string) error {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &ArgumentError{Arg: "env file", Value: envFile, Err: err}
	}

	strs := map[string]*string{
		"HOST":           &cfg.Host,
		"ROOT":           &cfg.Root,
		"DEFAULT_PAGE":   &cfg.DefaultPage,
		"NOT_FOUND_PAGE": &cfg.NotFoundPage,
		"LOG_LEVEL":      &cfg.LogLevel,
	}
	for name, dst := range strs {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"PORT":           &cfg.Port,
		"WORKERS":        &cfg.Workers,
		"QUEUE_SIZE":     &cfg.QueueSize,
		"BACKLOG":        &cfg.Backlog,
		"MAX_CONNS":      &cfg.MaxConns,
		"MAX_LINE_BYTES": &cfg.MaxLineBytes,
	}
	for name, dst := range ints {
		v, ok := os.LookupEnv(envPrefix + name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return &ArgumentError{Arg: envPrefix + name, Value: v, Err: err}
		}
		*dst = n
	}

	durations := map[string]*time.Duration{
		"QUEUE_TIMEOUT": &cfg.QueueTimeout,
		"READ_TIMEOUT":  &cfg.ReadTimeout,
	}
	for name, dst := range durations {
		v, ok := os.LookupEnv(envPrefix + name)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return &ArgumentError{Arg: envPrefix + name, Value: v, Err: err}
		}
		*dst = d
	}

	return nil
}
