package main

import (
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/ferry/internal/config"
	"github.com/samcharles93/ferry/internal/hub"
)

var (
	configFile  string
	logLevel    string
	logFormat   string
	debug       bool
	cacheDir    string
	endpoint    string
	token       string
	revision    string
	concurrency int64
)

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to config.yaml",
			Value:       config.Path(),
			Destination: &configFile,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text); defaults to pretty on a terminal",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

func hubFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "cache-dir",
			Usage:       "directory holding downloaded snapshots",
			Value:       config.DefaultCacheDir(),
			Destination: &cacheDir,
		},
		&cli.StringFlag{
			Name:        "endpoint",
			Usage:       "hub base URL",
			Value:       hub.DefaultEndpoint,
			Destination: &endpoint,
		},
		&cli.StringFlag{
			Name:        "token",
			Usage:       "hub access token",
			Destination: &token,
		},
		&cli.StringFlag{
			Name:        "revision",
			Usage:       "hub revision to fetch",
			Value:       hub.DefaultRevision,
			Destination: &revision,
		},
		&cli.Int64Flag{
			Name:        "concurrency",
			Usage:       "parallel file downloads",
			Value:       hub.DefaultConcurrency,
			Destination: &concurrency,
		},
	}
}

func newHubClient() *hub.Client {
	c := hub.New(cacheDir)
	c.Endpoint = endpoint
	c.Token = token
	c.Revision = revision
	c.Concurrency = int(concurrency)
	return c
}
