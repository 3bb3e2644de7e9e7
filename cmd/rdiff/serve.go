package main

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/Redundancy/go-rdiff"
	"github.com/Redundancy/go-rdiff/transport"
)

func init() {
	app.Commands = append(
		app.Commands,
		&cli.Command{
			Name:  "serve",
			Usage: "answer remote diffs against a destination tree",
			Description: `Serve "rdiff diff --remote" requests for the files below --root.
The block size and hash are chosen by each client.`,
			Action: Serve,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "listen",
					Value: "tcp://:9753",
					Usage: "Address to serve on, tcp:// or udp://",
				},
				&cli.StringFlag{
					Name:     "root",
					Required: true,
					Usage:    "The destination tree",
				},
				&cli.StringFlag{
					Name:  "metrics-listen",
					Usage: "Serve prometheus metrics over http on this address, eg. :9090",
				},
				&cli.DurationFlag{
					Name:  "timeout",
					Value: transport.DefaultTimeout,
					Usage: "Time allowed to receive a request and send its response",
				},
			},
		},
	)
}

// Serve until interrupted
func Serve(c *cli.Context) error {
	kind, address, err := transport.ParseAddress(c.String("listen"))
	if err != nil {
		return err
	}

	differ, err := rdiff.New(rdiff.Options{
		Logger:     &logger,
		Registerer: registry,
	})
	if err != nil {
		return err
	}

	service := rdiff.NewService(c.String("root"), differ)
	server := transport.NewServer(kind, address, service.Handle, logger)
	server.Timeout = c.Duration("timeout")

	if metricsAddress := c.String("metrics-listen"); metricsAddress != "" {
		metricsServer := &http.Server{
			Addr:    metricsAddress,
			Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		}

		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()

		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			metricsServer.Shutdown(ctx)
		}()
	}

	return errors.Wrap(server.ListenAndServe(c.Context), "serving")
}
