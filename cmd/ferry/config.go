package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/ferry/internal/config"
	"github.com/samcharles93/ferry/internal/logger"
)

// fileConfig is the parsed config file, kept for commands that read
// command-specific settings such as the server address.
var fileConfig config.Config

// setup loads the config file, applies it beneath explicit flags and
// installs the logger in the context.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return ctx, cli.Exit(err.Error(), 2)
	}
	fileConfig = cfg
	applyGlobalConfig(cmd, cfg)

	level := logLevel
	if debug {
		level = "debug"
	}
	format := logFormat
	if format == "" {
		format = "text"
		if isTerminal(os.Stderr) {
			format = "pretty"
		}
	}
	log, err := logger.Setup(os.Stderr, format, level)
	if err != nil {
		return ctx, cli.Exit(err.Error(), 2)
	}
	return logger.WithContext(ctx, log), nil
}

// applyGlobalConfig applies config file values to global flags that were
// not set explicitly.
func applyGlobalConfig(c *cli.Command, cfg config.Config) {
	setString := func(flag string, dst *string, v string) {
		if v != "" && !c.IsSet(flag) {
			*dst = v
		}
	}
	setString("cache-dir", &cacheDir, cfg.CacheDir)
	setString("endpoint", &endpoint, cfg.Endpoint)
	setString("token", &token, cfg.Token)
	setString("revision", &revision, cfg.Revision)
	setString("log-level", &logLevel, cfg.LogLevel)
	setString("log-format", &logFormat, cfg.LogFormat)
	if cfg.Concurrency > 0 && !c.IsSet("concurrency") {
		concurrency = int64(cfg.Concurrency)
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg config.Config, addr *string) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}
