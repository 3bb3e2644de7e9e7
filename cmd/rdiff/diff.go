package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/Redundancy/go-rdiff"
	"github.com/Redundancy/go-rdiff/indexbuilder"
	"github.com/Redundancy/go-rdiff/transport"
)

const diffUsage = "rdiff diff <source> <destination>"

func init() {
	app.Commands = append(
		app.Commands,
		&cli.Command{
			Name:      "diff",
			Aliases:   []string{"d"},
			Usage:     diffUsage,
			ArgsUsage: "<source> <destination>",
			Description: `Find the content of a source file or tree that is already at the destination,
and print statistics on the comparison and performance.

With --index, <source> is a .rdiff file made by "rdiff build" and <destination> a file.
With --remote, <destination> is the relative path at an "rdiff serve" service,
defaulting to the name of <source>. A source directory is diffed with the whole served tree.`,
			Action: Diff,
			Flags: []cli.Flag{
				blockSizeFlag(),
				hashFlag(),
				&cli.IntFlag{
					Name:  "p",
					Value: rdiff.DefaultConcurrency,
					Usage: "The number of files to diff concurrently",
				},
				&cli.StringSliceFlag{
					Name:  "exclude",
					Usage: "Glob of relative paths to skip, may be repeated",
				},
				&cli.StringFlag{
					Name:  "remote",
					Usage: "Address of an rdiff service, eg. tcp://host:9753",
				},
				&cli.BoolFlag{
					Name:  "index",
					Usage: "The source is an index file",
				},
				&cli.DurationFlag{
					Name:  "timeout",
					Value: transport.DefaultTimeout,
					Usage: "Time allowed for each remote request",
				},
				&cli.BoolFlag{
					Name:  "files",
					Usage: "Print a line for every file",
				},
			},
		},
	)
}

// Diff a file or tree, locally or with a remote service
func Diff(c *cli.Context) error {
	differ, err := newDiffer(c)
	if err != nil {
		return err
	}

	var report *rdiff.Report

	switch {
	case c.String("remote") != "":
		report, err = remoteDiff(c, differ)
	case c.Bool("index"):
		report, err = indexDiff(c, differ)
	default:
		if c.Args().Len() != 2 {
			return errors.Errorf("Usage is \"%v\" (invalid number of arguments)", diffUsage)
		}
		report, err = differ.Diff(c.Context, c.Args().Get(0), c.Args().Get(1))
	}

	if report != nil {
		printReport(os.Stdout, report, c.Bool("files"))
	}

	if err != nil {
		return err
	}

	if report.Failures > 0 {
		return cli.Exit(errorColor.Sprintf("%v files could not be diffed", report.Failures), 2)
	}

	return nil
}

func indexDiff(c *cli.Context, differ *rdiff.Differ) (*rdiff.Report, error) {
	if c.Args().Len() != 2 {
		return nil, errors.New("Usage is \"rdiff diff --index <index.rdiff> <file>\" (invalid number of arguments)")
	}

	indexPath := c.Args().Get(0)
	report := rdiff.NewReport()

	f, err := os.Open(indexPath)
	if err != nil {
		return nil, formatFileError(indexPath, err)
	}
	defer f.Close()

	summary, err := indexbuilder.ReadSummary(f)
	if err != nil {
		return nil, errors.Wrapf(err, "loading index %v", indexPath)
	}

	logger.Info().
		Uint("blocksize", summary.Index.BlockSize()).
		Int("weak_checksums", summary.Index.WeakCount()).
		Msg("loaded index")

	relPath := strings.TrimSuffix(filepath.Base(indexPath), indexExtension)
	result, err := differ.DiffIndex(c.Context, relPath, summary, c.Args().Get(1))

	report.Add(result)
	report.Done()

	return report, err
}

func remoteDiff(c *cli.Context, differ *rdiff.Differ) (*rdiff.Report, error) {
	if l := c.Args().Len(); l < 1 || l > 2 {
		return nil, errors.New("Usage is \"rdiff diff --remote <address> <source> [<path>]\" (invalid number of arguments)")
	}

	kind, address, err := transport.ParseAddress(c.String("remote"))
	if err != nil {
		return nil, err
	}

	client, err := transport.NewClient(kind, address, c.Duration("timeout"))
	if err != nil {
		return nil, err
	}

	source := c.Args().Get(0)
	info, err := os.Stat(source)
	if err != nil {
		return nil, formatFileError(source, err)
	}

	if info.IsDir() {
		return differ.RemoteDiffTree(c.Context, client, source)
	}

	relPath := filepath.Base(source)
	if c.Args().Len() == 2 {
		relPath = c.Args().Get(1)
	}

	report := rdiff.NewReport()
	result, err := differ.RemoteDiffFile(c.Context, client, relPath, source)

	report.Add(result)
	report.Done()

	return report, err
}
