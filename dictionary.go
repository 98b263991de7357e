package bpe_prep

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/wbrown/bpe_prep/pkg/logger"
	"github.com/wbrown/bpe_prep/resources"
)

const (
	scannerBufSize  = 64 * 1024
	scannerMaxLine  = 16 * 1024 * 1024
	defaultBatchLen = 1024
)

// FrequencyDictionary maps a symbol to its occurrence count.
type FrequencyDictionary map[string]uint64

type DictionaryEntry struct {
	Symbol string
	Count  uint64
}

// Sorted returns the entries by descending count, ties by symbol.
func (dict FrequencyDictionary) Sorted() []DictionaryEntry {
	entries := make([]DictionaryEntry, 0, len(dict))
	for symbol, count := range dict {
		entries = append(entries, DictionaryEntry{symbol, count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Symbol < entries[j].Symbol
	})
	return entries
}

// AtLeast returns the entries whose count is at least min.
func (dict FrequencyDictionary) AtLeast(min uint64) FrequencyDictionary {
	filtered := make(FrequencyDictionary)
	for symbol, count := range dict {
		if count >= min {
			filtered[symbol] = count
		}
	}
	return filtered
}

// Total is the sum of all counts.
func (dict FrequencyDictionary) Total() uint64 {
	var total uint64
	for _, count := range dict {
		total += count
	}
	return total
}

// Write persists the dictionary in the count-first text form, one
// `<symbol> <count>` entry per line.
func (dict FrequencyDictionary) Write(path string) error {
	out, err := resources.CreateAtomic(path)
	if err != nil {
		return err
	}
	for _, entry := range dict.Sorted() {
		if entry.Symbol == "" || strings.IndexFunc(entry.Symbol,
			unicode.IsSpace) >= 0 {
			out.Abort()
			return fmt.Errorf("%w: symbol %q cannot be stored in %s",
				ErrMalformedArtifact, entry.Symbol, path)
		}
		out.WriteString(entry.Symbol)
		out.WriteByte(' ')
		out.WriteString(strconv.FormatUint(entry.Count, 10))
		out.WriteByte('\n')
	}
	return out.Commit()
}

// ReadDictionary loads a count-first dictionary. Entry order is not
// significant.
func ReadDictionary(path string) (FrequencyDictionary, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	dict := make(FrequencyDictionary)
	scanner := newLineScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, malformed(path, lineNo, "expected `symbol count`, got %q",
				line)
		}
		count, parseErr := strconv.ParseUint(fields[1], 10, 64)
		if parseErr != nil {
			return nil, malformed(path, lineNo, "bad count %q", fields[1])
		}
		if _, dupe := dict[fields[0]]; dupe {
			return nil, malformed(path, lineNo, "duplicate symbol %q",
				fields[0])
		}
		dict[fields[0]] = count
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return dict, nil
}

// DictionaryOptions controls how the corpus is fanned out to tokenizer
// workers.
type DictionaryOptions struct {
	Workers    int
	BatchLines int
}

func (opts DictionaryOptions) workers() int {
	if opts.Workers > 0 {
		return opts.Workers
	}
	return runtime.NumCPU()
}

func (opts DictionaryOptions) batchLines() int {
	if opts.BatchLines > 0 {
		return opts.BatchLines
	}
	return defaultBatchLen
}

// BuildTokenDictionary
// Streams the newline delimited corpus at corpusPath, tokenizes every line
// and writes the token occurrence counts to dictPath. The tokenizer must be
// safe for concurrent use when more than one worker is configured.
func BuildTokenDictionary(
	ctx context.Context,
	tokenizer Tokenizer,
	corpusPath string,
	dictPath string,
	opts DictionaryOptions,
) (FrequencyDictionary, error) {
	log := logger.WithComponent("dictionary_builder")
	file, err := os.Open(corpusPath)
	if err != nil {
		return nil, fmt.Errorf("opening corpus: %w", err)
	}
	defer file.Close()

	progress := resources.NewWriteCounter(corpusPath, log)
	counts, lines, err := CountTokens(ctx, tokenizer,
		io.TeeReader(file, progress), opts)
	if err != nil {
		return nil, err
	}
	if err := counts.Write(dictPath); err != nil {
		return nil, err
	}
	log.Info("token dictionary written",
		"path", dictPath,
		"lines", humanize.Comma(int64(lines)),
		"entries", humanize.Comma(int64(len(counts))),
		"bytes", humanize.Bytes(progress.Total))
	return counts, nil
}

// CountTokens tokenizes every line read from reader and returns the token
// counts along with the number of lines read. Counting is split across
// workers; the merged result does not depend on the worker count.
func CountTokens(
	ctx context.Context,
	tokenizer Tokenizer,
	reader io.Reader,
	opts DictionaryOptions,
) (FrequencyDictionary, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	workers := opts.workers()
	batchLen := opts.batchLines()
	group, groupCtx := errgroup.WithContext(ctx)
	batches := make(chan []string, workers)
	partials := make([]FrequencyDictionary, workers)
	for workerIdx := range partials {
		partial := make(FrequencyDictionary)
		partials[workerIdx] = partial
		group.Go(func() error {
			for batch := range batches {
				for _, line := range batch {
					for _, unit := range tokenizer.Split(line) {
						partial[unit]++
					}
				}
			}
			return nil
		})
	}

	lines := 0
	group.Go(func() error {
		defer close(batches)
		scanner := newLineScanner(reader)
		batch := make([]string, 0, batchLen)
		send := func() error {
			select {
			case batches <- batch:
				batch = make([]string, 0, batchLen)
				return nil
			case <-groupCtx.Done():
				return groupCtx.Err()
			}
		}
		for scanner.Scan() {
			lines++
			batch = append(batch, scanner.Text())
			if len(batch) == batchLen {
				if err := send(); err != nil {
					return err
				}
			}
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("scanning corpus: %w", err)
		}
		if len(batch) > 0 {
			return send()
		}
		return nil
	})
	if err := group.Wait(); err != nil {
		return nil, 0, err
	}

	counts := partials[0]
	for _, partial := range partials[1:] {
		for unit, count := range partial {
			counts[unit] += count
		}
	}
	return counts, lines, nil
}

func newLineScanner(reader io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, scannerBufSize), scannerMaxLine)
	return scanner
}
