package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/ferry/internal/version"
)

func main() {
	app := &cli.Command{
		Name:    "ferry",
		Usage:   "Fetch, quantize and bind model weights",
		Version: version.String(),
		Flags:   append(loggingFlags(), hubFlags()...),
		Before:  setup,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			loadCmd(),
			inspectCmd(),
			quantizeCmd(),
			serveCmd(),
			versionCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
