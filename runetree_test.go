package bpe_prep

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRuneNode_LongestMatch(t *testing.T) {
	tree := newRuneTree([]string{"[SEG]", "[S", "<|endoftext|>"})
	tests := []struct {
		Input    string
		Start    int
		Expected int
	}{
		{"[SEG] tail", 0, 5},
		{"[SX]", 0, 2},
		{"x[SEG]", 1, 5},
		{"x[SEG]", 0, 0},
		{"<|endoftext|>", 0, 13},
		{"<|endof", 0, 0},
		{"", 0, 0},
	}
	for _, test := range tests {
		assert.Equal(t, test.Expected,
			tree.longestMatch([]rune(test.Input), test.Start), test.Input)
	}
}

func TestRuneNode_ManyChildren(t *testing.T) {
	specials := make([]string, 0, 26)
	for r := 'a'; r <= 'z'; r++ {
		specials = append(specials, "#"+string(r))
	}
	tree := newRuneTree(specials)
	for _, special := range specials {
		assert.Equal(t, 2, tree.longestMatch([]rune(special), 0), special)
	}
	assert.Equal(t, 0, tree.longestMatch([]rune("#A"), 0))
}

func TestRuneNode_String(t *testing.T) {
	tree := newRuneTree([]string{"ab", "ac"})
	rendered := tree.String()
	assert.Contains(t, rendered, "b")
	assert.Contains(t, rendered, "c")
}
