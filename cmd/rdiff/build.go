package main

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/Redundancy/go-rdiff/indexbuilder"
)

const indexExtension = ".rdiff"

func init() {
	app.Commands = append(
		app.Commands,
		&cli.Command{
			Name:      "build",
			Aliases:   []string{"b"},
			Usage:     "build a .rdiff index file for a file",
			ArgsUsage: "<file>",
			Action:    Build,
			Flags: []cli.Flag{
				blockSizeFlag(),
				hashFlag(),
			},
		},
	)
}

// Build writes the index of a file next to it
func Build(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return errors.New("Usage is \"rdiff build <file>\" (invalid number of arguments)")
	}

	filename := c.Args().First()
	start := time.Now()

	differ, err := newDiffer(c)
	if err != nil {
		return err
	}

	summary, err := differ.Index(c.Context, filename)
	if err != nil {
		return formatFileError(filename, errors.Cause(err))
	}

	outfilePath := filename + indexExtension
	outputFile, err := os.Create(outfilePath)
	if err != nil {
		return formatFileError(outfilePath, err)
	}
	defer outputFile.Close()

	w := bufio.NewWriter(outputFile)
	if err = indexbuilder.WriteSummary(w, summary); err != nil {
		return errors.Wrapf(err, "writing %v", outfilePath)
	}

	if err = w.Flush(); err != nil {
		return errors.Wrapf(err, "writing %v", outfilePath)
	}

	info, err := outputFile.Stat()
	if err != nil {
		return err
	}

	fmt.Println("Index:", outfilePath)
	fmt.Println("Block size:", summary.Index.BlockSize())
	fmt.Println("Strong hash:", summary.Strong)
	fmt.Println("Source size:", humanize.Bytes(uint64(summary.FileSize)))
	fmt.Println("Blocks:", humanize.Comma(int64(summary.Index.BlockCount())))
	fmt.Println("Distinct weak checksums:", humanize.Comma(int64(summary.Index.WeakCount())))
	fmt.Println("Duplicate blocks:", humanize.Comma(int64(summary.Index.Duplicates())))
	fmt.Println("Index size:", humanize.Bytes(uint64(info.Size())))
	fmt.Printf("File checksum: %x\n", summary.FileChecksum)
	fmt.Println("Time taken:", time.Since(start))

	return nil
}
