package bpe_prep

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/yargevad/filepathx"

	"github.com/wbrown/bpe_prep/pkg/logger"
	"github.com/wbrown/bpe_prep/pkg/metrics"
	"github.com/wbrown/bpe_prep/resources"
	"github.com/wbrown/bpe_prep/types"
)

// BuildTokenMap assigns dense ids: the control symbols first, then the
// vocabulary symbols in artifact order. A vocabulary symbol spelled like a
// control symbol gets no id of its own.
func BuildTokenMap(vocab *Vocabulary) types.TokenMap {
	tokenMap := make(types.TokenMap, len(ControlSymbols)+vocab.Size())
	for _, control := range ControlSymbols {
		tokenMap[control] = types.Token(len(tokenMap))
	}
	for _, symbol := range vocab.Symbols {
		if _, ok := tokenMap[symbol]; !ok {
			tokenMap[symbol] = types.Token(len(tokenMap))
		}
	}
	return tokenMap
}

// WriteTokenMap persists the map as `<symbol> <id>` lines ordered by id.
func WriteTokenMap(path string, tokenMap types.TokenMap) error {
	out, err := resources.CreateAtomic(path)
	if err != nil {
		return err
	}
	for _, symbol := range tokenMap.Sorted() {
		out.WriteString(symbol)
		out.WriteByte(' ')
		out.WriteString(strconv.FormatUint(uint64(tokenMap[symbol]), 10))
		out.WriteByte('\n')
	}
	return out.Commit()
}

// ReadTokenMap loads a map written by WriteTokenMap.
func ReadTokenMap(path string) (types.TokenMap, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	tokenMap := make(types.TokenMap)
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
			return nil, malformed(path, lineNo, "expected `symbol id`, got %q",
				line)
		}
		id, parseErr := strconv.ParseUint(fields[1], 10, 32)
		if parseErr != nil {
			return nil, malformed(path, lineNo, "bad id %q", fields[1])
		}
		if _, dupe := tokenMap[fields[0]]; dupe {
			return nil, malformed(path, lineNo, "duplicate symbol %q",
				fields[0])
		}
		tokenMap[fields[0]] = types.Token(id)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return tokenMap, nil
}

// WriteFileIndex persists dataset block paths one per line.
func WriteFileIndex(path string, files []string) error {
	out, err := resources.CreateAtomic(path)
	if err != nil {
		return err
	}
	for _, file := range files {
		out.WriteString(file)
		out.WriteByte('\n')
	}
	return out.Commit()
}

// ReadFileIndex loads the dataset block paths in creation order.
func ReadFileIndex(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	files := make([]string, 0)
	scanner := newLineScanner(file)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			files = append(files, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return files, nil
}

// EncoderInput names the artifacts and limits of EncodeDataset.
type EncoderInput struct {
	Tokenizer       Tokenizer
	ResampledPath   string
	VocabularyPath  string
	DatasetBase     string
	IndexPath       string
	TokenMapPath    string
	MaxTokensPerDoc int
	WriteTrigger    int64
	Metrics         *metrics.Metrics
}

// DocumentEncoder maps resampled units to token ids.
type DocumentEncoder struct {
	Vocabulary *Vocabulary
	TokenMap   types.TokenMap
	Tokenizer  Tokenizer
	MaxTokens  int
	unknown    types.Token
}

func NewDocumentEncoder(vocab *Vocabulary, tokenMap types.TokenMap,
	tokenizer Tokenizer, maxTokens int) *DocumentEncoder {
	return &DocumentEncoder{
		Vocabulary: vocab,
		TokenMap:   tokenMap,
		Tokenizer:  tokenizer,
		MaxTokens:  maxTokens,
		unknown:    tokenMap[UnknownSymbol],
	}
}

// Encode tokenizes line and returns at most MaxTokens ids. Units missing
// from the token map are split with the vocabulary merges. Control ids other
// than the unknown id never appear in the result: text spelling a reserved
// symbol is split like any other unit.
func (enc *DocumentEncoder) Encode(line string) types.Tokens {
	tokens := make(types.Tokens, 0, 64)
	for _, unit := range enc.Tokenizer.Split(line) {
		if enc.MaxTokens > 0 && len(tokens) >= enc.MaxTokens {
			break
		}
		if id, ok := enc.TokenMap[unit]; ok && !isReservedSymbol(unit) {
			tokens = append(tokens, id)
			continue
		}
		for _, symbol := range enc.Vocabulary.EncodeUnit(unit) {
			id, ok := enc.TokenMap[symbol]
			if !ok || isReservedSymbol(symbol) {
				id = enc.unknown
			}
			tokens = append(tokens, id)
		}
	}
	if enc.MaxTokens > 0 && len(tokens) > enc.MaxTokens {
		tokens = tokens[:enc.MaxTokens]
	}
	return tokens
}

// Decode maps ids back to symbols.
func (enc *DocumentEncoder) Decode(tokens types.Tokens) []string {
	return DecodeTokens(enc.TokenMap.Invert(), tokens)
}

// DecodeTokens maps ids to symbols with an inverted token map. Ids outside
// the map decode to UnknownSymbol.
func DecodeTokens(symbols []string, tokens types.Tokens) []string {
	units := make([]string, len(tokens))
	for idx, token := range tokens {
		if int(token) < len(symbols) && symbols[token] != "" {
			units[idx] = symbols[token]
		} else {
			units[idx] = UnknownSymbol
		}
	}
	return units
}

// EncodeDataset
// Encodes every line of the resampled corpus and writes the documents to
// size-triggered blocks `<DatasetBase>.%05d.blk`. A block is flushed as
// soon as its serialized size reaches WriteTrigger, so every block but the
// last is at least that large. The block paths are written to IndexPath
// and the token map to TokenMapPath. Blocks left behind by an earlier
// attempt are removed first.
func EncodeDataset(ctx context.Context, input EncoderInput) ([]string, error) {
	log := logger.WithComponent("dataset_encoder")
	vocab, err := ReadVocabulary(input.VocabularyPath)
	if err != nil {
		return nil, fmt.Errorf("reading vocabulary: %w", err)
	}
	tokenMap := BuildTokenMap(vocab)
	if err := WriteTokenMap(input.TokenMapPath, tokenMap); err != nil {
		return nil, err
	}
	if err := removeStaleBlocks(input.DatasetBase); err != nil {
		return nil, err
	}
	in, err := os.Open(input.ResampledPath)
	if err != nil {
		return nil, fmt.Errorf("opening resampled corpus: %w", err)
	}
	defer in.Close()

	encoder := NewDocumentEncoder(vocab, tokenMap, input.Tokenizer,
		input.MaxTokensPerDoc)
	writer := &blockWriter{
		base:    input.DatasetBase,
		trigger: input.WriteTrigger,
		metrics: input.Metrics,
		log:     log,
	}
	progress := resources.NewWriteCounter(input.ResampledPath, log)
	scanner := newLineScanner(io.TeeReader(in, progress))
	var docID uint64
	for scanner.Scan() {
		if docID%ctxCheckLines == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		doc := Document{ID: docID, Tokens: encoder.Encode(scanner.Text())}
		docID++
		if err := writer.add(doc); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning resampled corpus: %w", err)
	}
	if err := writer.flush(); err != nil {
		return nil, err
	}
	if err := WriteFileIndex(input.IndexPath, writer.files); err != nil {
		return nil, err
	}
	if input.Metrics != nil {
		input.Metrics.VocabularySize.Set(float64(vocab.Size()))
	}
	log.Info("dataset encoded",
		"documents", humanize.Comma(int64(docID)),
		"files", len(writer.files),
		"bytes", humanize.Bytes(uint64(writer.written)),
		"index", input.IndexPath)
	return writer.files, nil
}

// blockWriter buffers documents until their block reaches the trigger.
type blockWriter struct {
	base    string
	trigger int64
	metrics *metrics.Metrics
	log     *slog.Logger

	pending []Document
	size    int64
	files   []string
	written int64
}

func (bw *blockWriter) add(doc Document) error {
	if len(bw.pending) == 0 {
		bw.size = BlockHeaderSize
	}
	bw.pending = append(bw.pending, doc)
	bw.size += doc.SerializedSize()
	if bw.size >= bw.trigger {
		return bw.flush()
	}
	return nil
}

func (bw *blockWriter) flush() error {
	if len(bw.pending) == 0 {
		return nil
	}
	path := DatasetBlockPath(bw.base, len(bw.files))
	n, err := WriteBlock(path, bw.pending)
	if err != nil {
		return fmt.Errorf("writing dataset block: %w", err)
	}
	var tokens int
	for idx := range bw.pending {
		tokens += len(bw.pending[idx].Tokens)
	}
	if bw.metrics != nil {
		bw.metrics.DocumentsEncoded.Add(float64(len(bw.pending)))
		bw.metrics.TokensEncoded.Add(float64(tokens))
		bw.metrics.DatasetBytesWritten.Add(float64(n))
		bw.metrics.DatasetFilesWritten.Inc()
	}
	bw.log.Info("dataset block written",
		"path", path,
		"documents", len(bw.pending),
		"size", humanize.Bytes(uint64(n)))
	bw.files = append(bw.files, path)
	bw.written += n
	bw.pending = nil
	bw.size = 0
	return nil
}

// removeStaleBlocks deletes `<base>.<digits>.blk` files.
func removeStaleBlocks(base string) error {
	matches, err := filepathx.Glob(escapeGlob(base) + ".*.blk")
	if err != nil {
		return fmt.Errorf("listing dataset blocks: %w", err)
	}
	for _, match := range matches {
		counter := strings.TrimSuffix(strings.TrimPrefix(match, base+"."),
			".blk")
		if counter == "" || strings.Trim(counter, "0123456789") != "" {
			continue
		}
		if err := os.Remove(match); err != nil {
			return fmt.Errorf("removing stale block: %w", err)
		}
	}
	return nil
}

func escapeGlob(path string) string {
	var escaped strings.Builder
	for _, r := range path {
		switch r {
		case '*', '?', '[', ']', '\\':
			escaped.WriteByte('\\')
		}
		escaped.WriteRune(r)
	}
	return escaped.String()
}
