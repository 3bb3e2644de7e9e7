/*
rdiff is a command-line implementation of the rdiff package functionality, primarily as a demonstration of usage
but supposed to be functional in itself.
*/
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/urfave/cli/v2"

	"github.com/Redundancy/go-rdiff"
)

const (
	DEFAULT_BLOCK_SIZE = rdiff.DefaultBlockSize
)

var app = &cli.App{
	Name:  "rdiff",
	Usage: "Build indexes, and find the content that files and trees share",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "verbosity",
			Value:   "low",
			Usage:   "Logging: off, low, reg or high",
			EnvVars: []string{"RDIFF_VERBOSITY"},
		},
		&cli.BoolFlag{
			Name:  "log-json",
			Usage: "Log as JSON lines rather than for a console",
		},
		&cli.BoolFlag{
			Name:  "metrics",
			Usage: "Print metrics when done",
		},
	},
	Before: setup,
	After:  teardown,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, errorColor.Sprint(err))
		stop()
		os.Exit(1)
	}
}
