package types

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// ToBin serializes the tokens as little-endian 32-bit integers.
func (tokens Tokens) ToBin() []byte {
	return tokens.AppendBin(make([]byte, 0, len(tokens)*TokenSize))
}

// AppendBin appends the little-endian 32-bit serialization of the tokens
// to buf.
func (tokens Tokens) AppendBin(buf []byte) []byte {
	for idx := range tokens {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(tokens[idx]))
	}
	return buf
}

// ToBinUint16 serializes the tokens as little-endian 16-bit integers, for
// consumers that expect the compact format.
func (tokens Tokens) ToBinUint16() ([]byte, error) {
	buf := make([]byte, 0, len(tokens)*2)
	for idx := range tokens {
		bs := tokens[idx]
		if bs > 65535 {
			return nil, fmt.Errorf("integer overflow: tried to write token ID %d as unsigned 16-bit", bs)
		}
		buf = binary.LittleEndian.AppendUint16(buf, uint16(bs))
	}
	return buf, nil
}

// TokensFromBin decodes little-endian 32-bit tokens.
func TokensFromBin(bin []byte) (Tokens, error) {
	if len(bin)%TokenSize != 0 {
		return nil, fmt.Errorf("token buffer of %d bytes is not a multiple of %d",
			len(bin), TokenSize)
	}
	tokens := make(Tokens, len(bin)/TokenSize)
	for idx := range tokens {
		tokens[idx] = Token(binary.LittleEndian.Uint32(bin[idx*TokenSize:]))
	}
	return tokens, nil
}

// Invert returns the id -> symbol view of the map. The map is expected to
// be dense; missing ids are left empty.
func (tokenMap TokenMap) Invert() []string {
	maxId := -1
	for _, id := range tokenMap {
		if int(id) > maxId {
			maxId = int(id)
		}
	}
	symbols := make([]string, maxId+1)
	for symbol, id := range tokenMap {
		symbols[id] = symbol
	}
	return symbols
}

// Sorted returns the symbols ordered by id.
func (tokenMap TokenMap) Sorted() []string {
	symbols := make([]string, 0, len(tokenMap))
	for symbol := range tokenMap {
		symbols = append(symbols, symbol)
	}
	sort.Slice(symbols, func(i, j int) bool {
		return tokenMap[symbols[i]] < tokenMap[symbols[j]]
	})
	return symbols
}
