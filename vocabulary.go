package bpe_prep

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru"

	"github.com/wbrown/bpe_prep/resources"
	"github.com/wbrown/bpe_prep/types"
)

const BPE_LRU_SZ = 65536

// Reserved symbols. They are never learned from a corpus and always take
// the lowest ids of a token map, in this order.
const (
	PadSymbol     = "[PAD]"
	SegmentSymbol = "[SEG]"
	MaskSymbol    = "[MASK]"
	UnknownSymbol = "[UNK]"
)

var ControlSymbols = []string{PadSymbol, SegmentSymbol, MaskSymbol,
	UnknownSymbol}

func isControlSymbol(symbol string) bool {
	for _, control := range ControlSymbols {
		if symbol == control {
			return true
		}
	}
	return false
}

// isReservedSymbol reports whether symbol is a control symbol that must
// never come out of corpus text. UnknownSymbol is exempt: the resampler
// emits it for unencodable runes.
func isReservedSymbol(symbol string) bool {
	return symbol != UnknownSymbol && isControlSymbol(symbol)
}

// Vocabulary is a BPE vocabulary snapshot: the symbol inventory (base
// characters first, then merged symbols in the order learned) and the
// ranked merge list that produced it.
type Vocabulary struct {
	Symbols     []string
	Merges      []types.SymbolPair
	MergeCounts []uint64

	index map[string]int
	ranks map[types.SymbolPair]int
	cache *lru.ARCCache
}

type vocabularyFile struct {
	Symbols     []string    `json:"symbols"`
	Merges      [][2]string `json:"merges"`
	MergeCounts []uint64    `json:"merge_counts,omitempty"`
}

// NewVocabulary indexes symbols and merges for encoding.
func NewVocabulary(symbols []string, merges []types.SymbolPair,
	mergeCounts []uint64) *Vocabulary {
	vocab := &Vocabulary{
		Symbols:     symbols,
		Merges:      merges,
		MergeCounts: mergeCounts,
		index:       make(map[string]int, len(symbols)),
		ranks:       make(map[types.SymbolPair]int, len(merges)),
	}
	for idx, symbol := range symbols {
		if _, ok := vocab.index[symbol]; !ok {
			vocab.index[symbol] = idx
		}
	}
	for rank, merge := range merges {
		if _, ok := vocab.ranks[merge]; !ok {
			vocab.ranks[merge] = rank
		}
	}
	vocab.cache, _ = lru.NewARC(BPE_LRU_SZ)
	return vocab
}

func (vocab *Vocabulary) Size() int {
	return len(vocab.Symbols)
}

func (vocab *Vocabulary) Contains(symbol string) bool {
	_, ok := vocab.index[symbol]
	return ok
}

// Write persists the vocabulary as JSON.
func (vocab *Vocabulary) Write(path string) error {
	artifact := vocabularyFile{
		Symbols:     vocab.Symbols,
		Merges:      make([][2]string, len(vocab.Merges)),
		MergeCounts: vocab.MergeCounts,
	}
	if artifact.Symbols == nil {
		artifact.Symbols = []string{}
	}
	for idx, merge := range vocab.Merges {
		artifact.Merges[idx] = [2]string{merge.Left, merge.Right}
	}
	data, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("marshaling vocabulary: %w", err)
	}
	return resources.WriteFileAtomic(path, data)
}

// ReadVocabulary loads a vocabulary written by Write.
func ReadVocabulary(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var artifact vocabularyFile
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedArtifact, path, err)
	}
	merges := make([]types.SymbolPair, len(artifact.Merges))
	for idx, merge := range artifact.Merges {
		merges[idx] = types.SymbolPair{Left: merge[0], Right: merge[1]}
	}
	return NewVocabulary(artifact.Symbols, merges, artifact.MergeCounts), nil
}

// EncodeUnit
// Segments a whitespace free unit into vocabulary symbols by applying the
// ranked merges, lowest rank first, to its runes. Runes outside the
// vocabulary come back as UnknownSymbol.
func (vocab *Vocabulary) EncodeUnit(unit string) []string {
	if lookup, ok := vocab.cache.Get(unit); ok {
		return lookup.([]string)
	}
	word := strings.Split(unit, "")
	for len(word) > 1 {
		bestRank := -1
		var bigram types.SymbolPair
		for idx := 1; idx < len(word); idx++ {
			pair := types.SymbolPair{Left: word[idx-1], Right: word[idx]}
			if rank, ok := vocab.ranks[pair]; ok &&
				(bestRank == -1 || rank < bestRank) {
				bestRank = rank
				bigram = pair
			}
		}
		if bestRank == -1 {
			break
		}
		newWord := make([]string, 0, len(word))
		for i := 0; i < len(word); {
			if i < len(word)-1 && word[i] == bigram.Left &&
				word[i+1] == bigram.Right {
				newWord = append(newWord, bigram.Merged())
				i += 2
			} else {
				newWord = append(newWord, word[i])
				i += 1
			}
		}
		word = newWord
	}
	for idx := range word {
		if !vocab.Contains(word[idx]) {
			word[idx] = UnknownSymbol
		}
	}
	vocab.cache.Add(unit, word)
	return word
}

// SentencePiece converts the vocabulary for export as a SentencePiece BPE
// model.
func (vocab *Vocabulary) SentencePiece() *resources.SentencePieceVocab {
	controls := make([]string, 0, len(ControlSymbols)-1)
	for _, control := range ControlSymbols {
		if control != UnknownSymbol {
			controls = append(controls, control)
		}
	}
	return &resources.SentencePieceVocab{
		Controls: controls,
		Unknown:  UnknownSymbol,
		Pieces:   vocab.Symbols,
	}
}

// VocabularyFromSentencePiece rebuilds a vocabulary from an imported
// SentencePiece model.
func VocabularyFromSentencePiece(spm *resources.SentencePieceVocab) *Vocabulary {
	merges := make([]types.SymbolPair, len(spm.Merges))
	for idx, merge := range spm.Merges {
		merges[idx] = types.SymbolPair{Left: merge[0], Right: merge[1]}
	}
	return NewVocabulary(spm.Pieces, merges, nil)
}

// Manifest is the ordered set of symbols a resampled corpus may contain.
type Manifest struct {
	Symbols []string
	set     map[string]struct{}
	maxLen  int
}

// NewManifest indexes symbols. UnknownSymbol is always a member; the other
// control symbols never are.
func NewManifest(symbols []string) *Manifest {
	manifest := &Manifest{
		Symbols: make([]string, 0, len(symbols)),
		set:     make(map[string]struct{}, len(symbols)+1),
	}
	for _, symbol := range symbols {
		if isReservedSymbol(symbol) {
			continue
		}
		manifest.Symbols = append(manifest.Symbols, symbol)
		manifest.set[symbol] = struct{}{}
		if n := utf8.RuneCountInString(symbol); n > manifest.maxLen {
			manifest.maxLen = n
		}
	}
	manifest.set[UnknownSymbol] = struct{}{}
	return manifest
}

func (manifest *Manifest) Contains(symbol string) bool {
	_, ok := manifest.set[symbol]
	return ok
}

// Segment
// Decomposes a unit into manifest symbols by greedy longest prefix match.
// A rune that starts no manifest symbol is emitted as UnknownSymbol. A unit
// spelled like a reserved control symbol is decomposed like any other.
func (manifest *Manifest) Segment(unit string) []string {
	if manifest.Contains(unit) {
		return []string{unit}
	}
	runes := []rune(unit)
	segments := make([]string, 0, len(runes))
	for start := 0; start < len(runes); {
		end := min(len(runes), start+manifest.maxLen)
		for ; end > start; end-- {
			if manifest.Contains(string(runes[start:end])) {
				break
			}
		}
		if end == start {
			segments = append(segments, UnknownSymbol)
			start++
			continue
		}
		segments = append(segments, string(runes[start:end]))
		start = end
	}
	return segments
}

// WriteManifest persists symbols one per line.
func WriteManifest(path string, symbols []string) error {
	out, err := resources.CreateAtomic(path)
	if err != nil {
		return err
	}
	for _, symbol := range symbols {
		out.WriteString(symbol)
		out.WriteByte('\n')
	}
	return out.Commit()
}

// ReadManifest loads a manifest written by WriteManifest.
func ReadManifest(path string) (*Manifest, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	symbols := make([]string, 0, 1024)
	scanner := newLineScanner(file)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			symbols = append(symbols, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return NewManifest(symbols), nil
}
