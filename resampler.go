package bpe_prep

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/wbrown/bpe_prep/pkg/logger"
	"github.com/wbrown/bpe_prep/resources"
)

const ctxCheckLines = 4096

// Resample rewrites the corpus at corpusPath so every unit of every line is
// a member of the manifest at manifestPath, writing the result to outPath.
// Line count and order are preserved.
func Resample(
	ctx context.Context,
	tokenizer Tokenizer,
	corpusPath string,
	outPath string,
	manifestPath string,
) error {
	log := logger.WithComponent("document_resampler")
	manifest, err := ReadManifest(manifestPath)
	if err != nil {
		return fmt.Errorf("reading manifest: %w", err)
	}
	in, err := os.Open(corpusPath)
	if err != nil {
		return fmt.Errorf("opening corpus: %w", err)
	}
	defer in.Close()
	out, err := resources.CreateAtomic(outPath)
	if err != nil {
		return err
	}

	progress := resources.NewWriteCounter(corpusPath, log)
	lines, units, unknown, err := resampleLines(ctx, tokenizer, manifest,
		io.TeeReader(in, progress), out)
	if err != nil {
		out.Abort()
		return err
	}
	if err := out.Commit(); err != nil {
		return err
	}
	log.Info("corpus resampled",
		"path", outPath,
		"lines", humanize.Comma(int64(lines)),
		"units", humanize.Comma(int64(units)),
		"unknown", humanize.Comma(int64(unknown)))
	return nil
}

func resampleLines(
	ctx context.Context,
	tokenizer Tokenizer,
	manifest *Manifest,
	reader io.Reader,
	out *resources.AtomicFile,
) (lines, units, unknown int, err error) {
	scanner := newLineScanner(reader)
	for scanner.Scan() {
		if lines%ctxCheckLines == 0 {
			if err = ctx.Err(); err != nil {
				return
			}
		}
		lines++
		first := true
		for _, unit := range tokenizer.Split(scanner.Text()) {
			for _, symbol := range manifest.Segment(unit) {
				if !first {
					out.WriteByte(' ')
				}
				first = false
				out.WriteString(symbol)
				units++
				if symbol == UnknownSymbol && unit != UnknownSymbol {
					unknown++
				}
			}
		}
		if err = out.WriteByte('\n'); err != nil {
			return
		}
	}
	if err = scanner.Err(); err != nil {
		err = fmt.Errorf("scanning corpus: %w", err)
	}
	return
}
