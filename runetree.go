package bpe_prep

import "strings"

// RuneNode is a trie over the runes of the special symbols a tokenizer must
// keep whole.
type RuneNode struct {
	rune      rune               // The rune this node represents.
	runes     []rune             // The prior runes that led to this node.
	terminal  bool               // If this node ends a special symbol.
	childs    map[rune]*RuneNode // The child nodes.
	childsArr *[]*RuneNode       // The child nodes in an array, for precedence
}

func (node *RuneNode) evaluate(r rune) (*RuneNode, bool) {
	// If the node has an array of children, use that. The array exists if the
	// node has less than 10 children, and is used to speed up the evaluation
	// of the node.
	if node.childsArr != nil {
		for _, child := range *node.childsArr {
			if child.rune == r {
				return child, child.terminal
			}
		}
	} else if child, ok := node.childs[r]; ok {
		return child, child.terminal
	}
	return nil, false
}

// longestMatch returns the length in runes of the longest special symbol
// starting at runes[start], or 0.
func (root *RuneNode) longestMatch(runes []rune, start int) int {
	matched := 0
	node := root
	for idx := start; idx < len(runes); idx++ {
		var terminal bool
		node, terminal = node.evaluate(runes[idx])
		if node == nil {
			break
		}
		if terminal {
			matched = idx - start + 1
		}
	}
	return matched
}

// Represent the tree as a string by traversing the tree, and using tree
// characters to represent the tree structure.
func (node *RuneNode) string(level int) string {
	if node == nil {
		return ""
	}
	s := string(node.rune)
	if len(node.childs) == 1 {
		for r := range node.childs {
			s += node.childs[r].string(level)
		}
		return s
	}
	level += 1
	s += "\n"

	idx := 0
	for _, child := range node.ordered() {
		childPrefix := strings.Repeat("| ", level-1)
		// If we're the last child, then we prepend with a tree terminator.
		if idx == len(node.childs)-1 {
			childPrefix += "└─"
		} else {
			childPrefix += "├─"
		}
		s += childPrefix + child.string(level)
		idx += 1
	}
	return s
}

func (node *RuneNode) ordered() []*RuneNode {
	if node.childsArr != nil {
		return *node.childsArr
	}
	children := make([]*RuneNode, 0, len(node.childs))
	for _, child := range node.childs {
		children = append(children, child)
	}
	return children
}

func (node *RuneNode) String() string {
	return node.string(0)
}

func newRuneTree(specials []string) *RuneNode {
	runeTree := &RuneNode{
		runes:  []rune{},
		childs: make(map[rune]*RuneNode),
	}

	for _, k := range specials {
		keyRunes := []rune(k)
		keyLen := len(keyRunes)
		node := runeTree
		for i := 0; i < keyLen; i++ {
			r := keyRunes[i]
			childNode, ok := node.childs[r]
			if !ok {
				children := make([]*RuneNode, 0)
				node.childs[r] = &RuneNode{
					rune:      r,
					runes:     keyRunes[:i+1],
					terminal:  i == keyLen-1,
					childs:    make(map[rune]*RuneNode),
					childsArr: &children,
				}
			} else if i == keyLen-1 {
				childNode.terminal = true
			}
			if len(node.childs) > 10 {
				// Past 10 children the map is faster than a linear scan.
				node.childsArr = nil
			} else {
				if node.childsArr == nil {
					children := make([]*RuneNode, 0)
					node.childsArr = &children
				}
				if len(node.childs) != len(*node.childsArr) {
					*node.childsArr = append(*node.childsArr, node.childs[r])
				}
			}
			node = node.childs[r]
		}
	}
	return runeTree
}
