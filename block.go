package bpe_prep

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/wbrown/bpe_prep/resources"
	"github.com/wbrown/bpe_prep/types"
)

// Dataset block layout, all integers little endian:
//
//	magic "BPEB" | version u32 | documents u32 | tokens u64
//	documents × ( id u64 | n u32 | n × token u32 )
const (
	blockMagic      = "BPEB"
	BlockVersion    = 1
	BlockHeaderSize = 20
	DocHeaderSize   = 12
)

// Document is one encoded corpus line.
type Document struct {
	ID     uint64
	Tokens types.Tokens
}

// SerializedSize is the number of bytes the document occupies in a block.
func (doc Document) SerializedSize() int64 {
	return DocHeaderSize + int64(len(doc.Tokens))*types.TokenSize
}

type BlockHeader struct {
	Version   uint32
	Documents uint32
	Tokens    uint64
}

// BlockSize is the serialized size of a block holding docs.
func BlockSize(docs []Document) int64 {
	size := int64(BlockHeaderSize)
	for idx := range docs {
		size += docs[idx].SerializedSize()
	}
	return size
}

// AppendBlock appends the serialized block of docs to buf.
func AppendBlock(buf []byte, docs []Document) []byte {
	var tokens uint64
	for idx := range docs {
		tokens += uint64(len(docs[idx].Tokens))
	}
	buf = append(buf, blockMagic...)
	buf = binary.LittleEndian.AppendUint32(buf, BlockVersion)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(docs)))
	buf = binary.LittleEndian.AppendUint64(buf, tokens)
	for idx := range docs {
		buf = binary.LittleEndian.AppendUint64(buf, docs[idx].ID)
		buf = binary.LittleEndian.AppendUint32(buf,
			uint32(len(docs[idx].Tokens)))
		buf = docs[idx].Tokens.AppendBin(buf)
	}
	return buf
}

// WriteBlock atomically writes docs to path and returns the number of
// bytes written.
func WriteBlock(path string, docs []Document) (int64, error) {
	buf := AppendBlock(make([]byte, 0, BlockSize(docs)), docs)
	if err := resources.WriteFileAtomic(path, buf); err != nil {
		return 0, err
	}
	return int64(len(buf)), nil
}

// ParseBlockHeader validates and decodes the leading header of a block.
func ParseBlockHeader(data []byte) (BlockHeader, error) {
	if len(data) < BlockHeaderSize {
		return BlockHeader{}, fmt.Errorf("%w: block header truncated",
			ErrMalformedArtifact)
	}
	if string(data[:4]) != blockMagic {
		return BlockHeader{}, fmt.Errorf("%w: bad block magic %q",
			ErrMalformedArtifact, data[:4])
	}
	header := BlockHeader{
		Version:   binary.LittleEndian.Uint32(data[4:]),
		Documents: binary.LittleEndian.Uint32(data[8:]),
		Tokens:    binary.LittleEndian.Uint64(data[12:]),
	}
	if header.Version != BlockVersion {
		return BlockHeader{}, fmt.Errorf("%w: unsupported block version %d",
			ErrMalformedArtifact, header.Version)
	}
	return header, nil
}

// ReadBlockHeader reads only the header of the block at path.
func ReadBlockHeader(path string) (BlockHeader, error) {
	file, err := os.Open(path)
	if err != nil {
		return BlockHeader{}, err
	}
	defer file.Close()
	buf := make([]byte, BlockHeaderSize)
	if _, err := io.ReadFull(file, buf); err != nil {
		return BlockHeader{}, fmt.Errorf("%w: %s: %v", ErrMalformedArtifact,
			path, err)
	}
	header, err := ParseBlockHeader(buf)
	if err != nil {
		return BlockHeader{}, fmt.Errorf("%s: %w", path, err)
	}
	return header, nil
}

// blockSpan locates one document's tokens inside a block buffer.
type blockSpan struct {
	id     uint64
	offset int
	length int
}

// indexBlock walks the document headers of a block without copying token
// data.
func indexBlock(data []byte) (BlockHeader, []blockSpan, error) {
	header, err := ParseBlockHeader(data)
	if err != nil {
		return header, nil, err
	}
	spans := make([]blockSpan, 0, header.Documents)
	pos := BlockHeaderSize
	var tokens uint64
	for doc := uint32(0); doc < header.Documents; doc++ {
		if len(data)-pos < DocHeaderSize {
			return header, nil, fmt.Errorf("%w: document header truncated",
				ErrMalformedArtifact)
		}
		id := binary.LittleEndian.Uint64(data[pos:])
		n := int(binary.LittleEndian.Uint32(data[pos+8:]))
		pos += DocHeaderSize
		if len(data)-pos < n*types.TokenSize {
			return header, nil, fmt.Errorf("%w: document %d truncated",
				ErrMalformedArtifact, id)
		}
		spans = append(spans, blockSpan{id: id, offset: pos, length: n})
		pos += n * types.TokenSize
		tokens += uint64(n)
	}
	if tokens != header.Tokens || pos != len(data) {
		return header, nil, fmt.Errorf("%w: block layout disagrees with header",
			ErrMalformedArtifact)
	}
	return header, spans, nil
}

// ParseBlock decodes every document of a serialized block.
func ParseBlock(data []byte) ([]Document, error) {
	_, spans, err := indexBlock(data)
	if err != nil {
		return nil, err
	}
	docs := make([]Document, len(spans))
	for idx, span := range spans {
		tokens, err := types.TokensFromBin(
			data[span.offset : span.offset+span.length*types.TokenSize])
		if err != nil {
			return nil, err
		}
		docs[idx] = Document{ID: span.id, Tokens: tokens}
	}
	return docs, nil
}

// ReadBlock loads and decodes the block at path.
func ReadBlock(path string) ([]Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	docs, err := ParseBlock(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return docs, nil
}
