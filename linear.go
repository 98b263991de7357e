package bpe_prep

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/wbrown/bpe_prep/pkg/logger"
	"github.com/wbrown/bpe_prep/resources"
	"github.com/wbrown/bpe_prep/types"
)

const defaultMappedBlocks = 16

type LinearOptions struct {
	// MappedBlocks is the number of dataset blocks kept mapped at once.
	MappedBlocks int
}

// LinearDataset presents the documents of a list of dataset blocks as one
// token stream with a delimiter between consecutive documents. Only block
// headers are read up front; blocks are memory mapped when first touched.
type LinearDataset struct {
	files     []string
	headers   []BlockHeader
	starts    []int64
	length    int64
	delimiter types.Token

	mu     sync.Mutex
	mapped *lru.Cache
}

type mappedBlock struct {
	file   *resources.MappedFile
	spans  []blockSpan
	starts []int64
}

// OpenLinearDataset lays out the stream of files, in order.
func OpenLinearDataset(files []string, delimiter types.Token,
	opts LinearOptions) (*LinearDataset, error) {
	capacity := opts.MappedBlocks
	if capacity <= 0 {
		capacity = defaultMappedBlocks
	}
	cache, err := lru.NewWithEvict(capacity, func(_, value interface{}) {
		value.(*mappedBlock).file.Close()
	})
	if err != nil {
		return nil, err
	}
	view := &LinearDataset{
		files:     files,
		headers:   make([]BlockHeader, len(files)),
		starts:    make([]int64, len(files)),
		delimiter: delimiter,
		mapped:    cache,
	}
	var offset, documents int64
	for idx, path := range files {
		header, err := ReadBlockHeader(path)
		if err != nil {
			return nil, err
		}
		view.headers[idx] = header
		view.starts[idx] = offset
		offset += int64(header.Tokens) + int64(header.Documents)
		documents += int64(header.Documents)
	}
	view.length = offset
	if documents > 0 {
		view.length--
	}
	logger.WithComponent("linear_dataset").Debug("dataset opened",
		"files", len(files), "documents", documents, "tokens", view.length)
	return view, nil
}

// Len is the number of ids in the stream, delimiters included.
func (view *LinearDataset) Len() int64 {
	return view.length
}

// At returns the id at position i of the stream.
func (view *LinearDataset) At(i int64) (types.Token, error) {
	window, err := view.Window(i, 1)
	if err != nil {
		return 0, err
	}
	return window[0], nil
}

// Window copies n ids starting at offset. It fails with ErrOutOfRange
// unless the whole window lies inside the stream.
func (view *LinearDataset) Window(offset, n int64) (types.Tokens, error) {
	if offset < 0 || n < 0 || offset+n > view.length {
		return nil, fmt.Errorf("%w: [%d, %d) of %d", ErrOutOfRange, offset,
			offset+n, view.length)
	}
	view.mu.Lock()
	defer view.mu.Unlock()
	window := make(types.Tokens, 0, n)
	blockIdx := sort.Search(len(view.starts), func(i int) bool {
		return view.starts[i] > offset
	}) - 1
	pos := offset
	for int64(len(window)) < n {
		if view.headers[blockIdx].Documents == 0 {
			blockIdx++
			continue
		}
		block, err := view.block(blockIdx)
		if err != nil {
			return nil, err
		}
		data := block.file.Bytes()
		local := pos - view.starts[blockIdx]
		docIdx := sort.Search(len(block.starts), func(i int) bool {
			return block.starts[i] > local
		}) - 1
		for ; docIdx < len(block.spans) && int64(len(window)) < n; docIdx++ {
			span := block.spans[docIdx]
			from := local - block.starts[docIdx]
			for ; from < int64(span.length) && int64(len(window)) < n; from++ {
				at := span.offset + int(from)*types.TokenSize
				window = append(window,
					types.Token(binary.LittleEndian.Uint32(data[at:])))
			}
			if int64(len(window)) < n {
				window = append(window, view.delimiter)
			}
			local = block.starts[docIdx] + int64(span.length) + 1
		}
		pos = view.starts[blockIdx] + local
		blockIdx++
	}
	return window, nil
}

func (view *LinearDataset) block(idx int) (*mappedBlock, error) {
	if cached, ok := view.mapped.Get(idx); ok {
		return cached.(*mappedBlock), nil
	}
	file, err := resources.MapFile(view.files[idx])
	if err != nil {
		return nil, err
	}
	_, spans, err := indexBlock(file.Bytes())
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%s: %w", view.files[idx], err)
	}
	block := &mappedBlock{
		file:   file,
		spans:  spans,
		starts: make([]int64, len(spans)),
	}
	var start int64
	for docIdx, span := range spans {
		block.starts[docIdx] = start
		start += int64(span.length) + 1
	}
	view.mapped.Add(idx, block)
	return block, nil
}

// Close unmaps every mapped block.
func (view *LinearDataset) Close() error {
	view.mu.Lock()
	defer view.mu.Unlock()
	view.mapped.Purge()
	return nil
}
