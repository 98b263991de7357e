package main

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/wbrown/bpe_prep"
	"github.com/wbrown/bpe_prep/resources"
)

const flattenChunk = 1 << 20

func newFlattenCmd() *cobra.Command {
	var (
		outPath string
		uint16s bool
	)

	cmd := &cobra.Command{
		Use:   "flatten",
		Short: "Write the delimited token stream of a dataset as raw ids",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if outPath == "" {
				return errors.New("--out is required")
			}
			prep, err := loadPrep(newMetricsSink(""))
			if err != nil {
				return err
			}
			index, err := bpe_prep.ReadFileIndex(prep.Paths.DatasetIndex)
			if err != nil {
				return err
			}
			tokenMap, err := bpe_prep.ReadTokenMap(prep.Paths.DatasetTokenMap)
			if err != nil {
				return err
			}
			view, err := bpe_prep.OpenLinearDataset(index,
				tokenMap[bpe_prep.SegmentSymbol], bpe_prep.LinearOptions{})
			if err != nil {
				return err
			}
			defer view.Close()
			n, err := flatten(view, outPath, uint16s)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", outPath,
				humanize.Bytes(uint64(n)))
			return nil
		},
	}

	cmd.Flags().StringVar(&outPath, "out", "", "Output file")
	cmd.Flags().BoolVar(&uint16s, "uint16", false, "Write 16-bit ids instead of 32-bit")

	return cmd
}

func flatten(view *bpe_prep.LinearDataset, outPath string,
	uint16s bool) (int64, error) {
	out, err := resources.CreateAtomic(outPath)
	if err != nil {
		return 0, err
	}
	var written int64
	for offset := int64(0); offset < view.Len(); offset += flattenChunk {
		window, err := view.Window(offset, min(flattenChunk,
			view.Len()-offset))
		if err != nil {
			out.Abort()
			return 0, err
		}
		var bin []byte
		if uint16s {
			if bin, err = window.ToBinUint16(); err != nil {
				out.Abort()
				return 0, err
			}
		} else {
			bin = window.ToBin()
		}
		if _, err := out.Write(bin); err != nil {
			out.Abort()
			return 0, err
		}
		written += int64(len(bin))
	}
	return written, out.Commit()
}
