package resources

import (
	"fmt"
	"os"

	"github.com/vikesh-raj/go-sentencepiece-encoder/sentencepiece"
	"google.golang.org/protobuf/proto"
)

// SentencePieceVocab is a vocabulary in the shape a SentencePiece BPE model
// carries it: control symbols, then ordinary pieces ranked by merge order,
// plus the merge table recovered from the pieces.
type SentencePieceVocab struct {
	Controls []string
	Unknown  string
	Pieces   []string
	Merges   [][2]string
}

// ExportSentencePiece
// Builds a SentencePiece ModelProto from a ranked list of pieces. Control
// symbols come first, followed by the unknown symbol and the pieces, whose
// score is the negated rank as SentencePiece BPE models expect.
func ExportSentencePiece(vocab *SentencePieceVocab) ([]byte, error) {
	pieces := make([]*sentencepiece.ModelProto_SentencePiece, 0,
		len(vocab.Controls)+len(vocab.Pieces)+1)
	for _, control := range vocab.Controls {
		pieces = append(pieces, &sentencepiece.ModelProto_SentencePiece{
			Piece: proto.String(control),
			Score: proto.Float32(0),
			Type:  sentencepiece.ModelProto_SentencePiece_CONTROL.Enum(),
		})
	}
	if vocab.Unknown != "" {
		pieces = append(pieces, &sentencepiece.ModelProto_SentencePiece{
			Piece: proto.String(vocab.Unknown),
			Score: proto.Float32(0),
			Type:  sentencepiece.ModelProto_SentencePiece_UNKNOWN.Enum(),
		})
	}
	for rank, piece := range vocab.Pieces {
		pieces = append(pieces, &sentencepiece.ModelProto_SentencePiece{
			Piece: proto.String(piece),
			Score: proto.Float32(-float32(rank)),
			Type:  sentencepiece.ModelProto_SentencePiece_NORMAL.Enum(),
		})
	}
	model := &sentencepiece.ModelProto{
		Pieces: pieces,
		TrainerSpec: &sentencepiece.TrainerSpec{
			ModelType: sentencepiece.TrainerSpec_BPE.Enum(),
			VocabSize: proto.Int32(int32(len(pieces))),
		},
	}
	return proto.Marshal(model)
}

// ImportSentencePiece
// Parses a serialized ModelProto back into a SentencePieceVocab. Merges are
// recovered the same way a GPT style merge table is derived from pieces:
// for every multi-rune piece, the first split whose halves are both known
// earlier pieces.
func ImportSentencePiece(data []byte) (*SentencePieceVocab, error) {
	var model sentencepiece.ModelProto
	if err := proto.Unmarshal(data, &model); err != nil {
		return nil, fmt.Errorf("unable to unmarshal sentencepiece model: %w",
			err)
	}
	vocab := &SentencePieceVocab{}
	known := make(map[string]bool)
	for _, piece := range model.GetPieces() {
		repr := piece.GetPiece()
		switch piece.GetType() {
		case sentencepiece.ModelProto_SentencePiece_CONTROL,
			sentencepiece.ModelProto_SentencePiece_USER_DEFINED:
			vocab.Controls = append(vocab.Controls, repr)
			continue
		case sentencepiece.ModelProto_SentencePiece_UNKNOWN:
			vocab.Unknown = repr
			continue
		}
		runes := []rune(repr)
		if len(runes) > 1 {
			for splitIdx := 1; splitIdx < len(runes); splitIdx++ {
				left := string(runes[:splitIdx])
				right := string(runes[splitIdx:])
				if known[left] && known[right] {
					vocab.Merges = append(vocab.Merges, [2]string{left, right})
					break
				}
			}
		}
		known[repr] = true
		vocab.Pieces = append(vocab.Pieces, repr)
	}
	return vocab, nil
}

// WriteSentencePieceFile exports the vocabulary to path atomically.
func WriteSentencePieceFile(path string, vocab *SentencePieceVocab) error {
	data, err := ExportSentencePiece(vocab)
	if err != nil {
		return fmt.Errorf("exporting sentencepiece model: %w", err)
	}
	return WriteFileAtomic(path, data)
}

// ReadSentencePieceFile reads and imports a serialized ModelProto.
func ReadSentencePieceFile(path string) (*SentencePieceVocab, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ImportSentencePiece(data)
}
