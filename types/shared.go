package types

type Token uint32
type Tokens []Token
type TokenMap map[string]Token

const (
	TokenSize = 4
)

// SymbolPair is an adjacent pair of vocabulary symbols, the unit of a BPE
// merge.
type SymbolPair struct {
	Left  string
	Right string
}

// Merged returns the symbol produced by merging the pair.
func (pair SymbolPair) Merged() string {
	return pair.Left + pair.Right
}
