package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/Redundancy/go-rdiff"
	"github.com/Redundancy/go-rdiff/filechecksum"
)

var (
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)

	logger   = zerolog.Nop()
	registry = prometheus.NewRegistry()
)

var verbosityLevels = map[string]zerolog.Level{
	"off":  zerolog.Disabled,
	"low":  zerolog.WarnLevel,
	"reg":  zerolog.InfoLevel,
	"high": zerolog.DebugLevel,
}

func blockSizeFlag() cli.Flag {
	return &cli.UintFlag{
		Name:    "blocksize",
		Value:   DEFAULT_BLOCK_SIZE,
		Usage:   "The block size to index with",
		EnvVars: []string{"RDIFF_BLOCKSIZE"},
	}
}

func hashFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "hash",
		Value:   filechecksum.MD5.String(),
		Usage:   "The strong hash: md5, blake3 or sha256",
		EnvVars: []string{"RDIFF_HASH"},
	}
}

// setup configures logging before any command runs
func setup(c *cli.Context) error {
	level, ok := verbosityLevels[strings.ToLower(c.String("verbosity"))]
	if !ok {
		return errors.Errorf("unknown verbosity %q, use off, low, reg or high", c.String("verbosity"))
	}

	var output io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	if c.Bool("log-json") {
		output = os.Stderr
	}

	logger = zerolog.New(output).Level(level).With().Timestamp().Logger()
	return nil
}

func teardown(c *cli.Context) error {
	if c.Bool("metrics") {
		return printMetrics(os.Stderr)
	}
	return nil
}

func printMetrics(w io.Writer) error {
	families, err := registry.Gather()
	if err != nil {
		return err
	}

	for _, family := range families {
		for _, m := range family.GetMetric() {
			var labels []string
			for _, l := range m.GetLabel() {
				labels = append(labels, l.GetName()+"="+l.GetValue())
			}
			sort.Strings(labels)

			name := family.GetName()
			if len(labels) > 0 {
				name += "{" + strings.Join(labels, ",") + "}"
			}

			switch {
			case m.GetCounter() != nil:
				fmt.Fprintf(w, "%v %v\n", name, m.GetCounter().GetValue())
			case m.GetHistogram() != nil:
				h := m.GetHistogram()
				fmt.Fprintf(w, "%v count=%v sum=%.3fs\n", name, h.GetSampleCount(), h.GetSampleSum())
			}
		}
	}

	return nil
}

// newDiffer maps the command's flags onto rdiff.Options
func newDiffer(c *cli.Context) (*rdiff.Differ, error) {
	strong, err := filechecksum.ParseStrongHash(c.String("hash"))
	if err != nil {
		return nil, err
	}

	return rdiff.New(rdiff.Options{
		BlockSize:   c.Uint("blocksize"),
		Strong:      strong,
		Concurrency: c.Int("p"),
		Excludes:    c.StringSlice("exclude"),
		Logger:      &logger,
		Registerer:  registry,
	})
}

// formatFileError describes the common reasons that a file can't be used
func formatFileError(filename string, err error) error {
	switch {
	case os.IsExist(err):
		return fmt.Errorf("Could not open %v (already exists): %v", filename, err)
	case os.IsNotExist(err):
		return fmt.Errorf("Could not find %v: %v", filename, err)
	case os.IsPermission(err):
		return fmt.Errorf("Could not open %v (permission denied): %v", filename, err)
	default:
		return fmt.Errorf("Unknown error opening %v: %v", filename, err)
	}
}

func printReport(w io.Writer, report *rdiff.Report, verbose bool) {
	if verbose {
		for _, r := range report.Results {
			if r.Err == nil {
				fmt.Fprintf(w, "%v: %v matches, %v bytes to send\n", r.RelativePath, len(r.Commons), r.MissingBytes())
			}
		}
	}

	for _, r := range report.Failed() {
		fmt.Fprintln(w, warningColor.Sprintf("%v: %v", r.RelativePath, r.Err))
	}

	fmt.Fprintln(w, report)
}
