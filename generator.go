package bpe_prep

import (
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/wbrown/bpe_prep/types"
)

// TokenStream is a finite, randomly addressable id sequence.
type TokenStream interface {
	Len() int64
	Window(offset, n int64) (types.Tokens, error)
}

// MaskingPolicy chooses which window positions are masked and what
// replaces them. Of the chosen positions, MaskTokenRate get the mask id,
// RandomTokenRate a random vocabulary id, and the rest keep their id.
type MaskingPolicy struct {
	MaskRate        float64
	MaskTokenRate   float64
	RandomTokenRate float64
	IgnoreLabel     int32
}

func DefaultMaskingPolicy() MaskingPolicy {
	return MaskingPolicy{
		MaskRate:        0.15,
		MaskTokenRate:   0.8,
		RandomTokenRate: 0.1,
		IgnoreLabel:     -1,
	}
}

func (policy MaskingPolicy) Validate() error {
	for _, rate := range []float64{policy.MaskRate, policy.MaskTokenRate,
		policy.RandomTokenRate} {
		if rate < 0 || rate > 1 || math.IsNaN(rate) {
			return fmt.Errorf("masking rate %v outside [0, 1]", rate)
		}
	}
	if policy.MaskTokenRate+policy.RandomTokenRate > 1 {
		return fmt.Errorf("mask and random token rates sum to %v",
			policy.MaskTokenRate+policy.RandomTokenRate)
	}
	return nil
}

// Batch holds batch rows of model input width: the (masked) features,
// their positions within the window, and the labels.
type Batch struct {
	Features  [][]int32
	Positions [][]int32
	Labels    [][]int32
}

// PretrainingGenerator draws masked training windows from a token stream.
type PretrainingGenerator struct {
	stream     TokenStream
	width      int
	policy     MaskingPolicy
	tokenCount int
	maskID     types.Token
	excluded   map[types.Token]bool
	firstWord  int

	mu  sync.Mutex
	rng *rand.Rand
}

// NewPretrainingGenerator checks that the stream holds at least one window
// of width ids and that the token map carries the control symbols masking
// needs.
func NewPretrainingGenerator(
	stream TokenStream,
	tokenMap types.TokenMap,
	width int,
	policy MaskingPolicy,
	seed int64,
) (*PretrainingGenerator, error) {
	if width <= 0 {
		return nil, fmt.Errorf("model input width %d is not positive", width)
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if stream.Len() < int64(width) {
		return nil, fmt.Errorf("%w: %d ids, width %d", ErrStreamTooShort,
			stream.Len(), width)
	}
	excluded := make(map[types.Token]bool)
	for _, control := range []string{PadSymbol, SegmentSymbol, MaskSymbol} {
		id, ok := tokenMap[control]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingControlSymbol, control)
		}
		excluded[id] = true
	}
	return &PretrainingGenerator{
		stream:     stream,
		width:      width,
		policy:     policy,
		tokenCount: len(tokenMap),
		maskID:     tokenMap[MaskSymbol],
		excluded:   excluded,
		firstWord:  len(ControlSymbols),
		rng:        rand.New(rand.NewSource(seed)),
	}, nil
}

// TokenCount is the number of distinct ids a model must embed.
func (gen *PretrainingGenerator) TokenCount() int {
	return gen.tokenCount
}

func (gen *PretrainingGenerator) Width() int {
	return gen.width
}

// Generate draws batchSize independent examples.
func (gen *PretrainingGenerator) Generate(batchSize int) (*Batch, error) {
	if batchSize < 0 {
		return nil, fmt.Errorf("batch size %d is negative", batchSize)
	}
	batch := &Batch{
		Features:  make([][]int32, batchSize),
		Positions: make([][]int32, batchSize),
		Labels:    make([][]int32, batchSize),
	}
	for row := 0; row < batchSize; row++ {
		gen.mu.Lock()
		offset := gen.rng.Int63n(gen.stream.Len() - int64(gen.width) + 1)
		gen.mu.Unlock()
		window, err := gen.stream.Window(offset, int64(gen.width))
		if err != nil {
			return nil, err
		}
		batch.Features[row], batch.Labels[row] = gen.mask(window)
		positions := make([]int32, gen.width)
		for idx := range positions {
			positions[idx] = int32(idx)
		}
		batch.Positions[row] = positions
	}
	return batch, nil
}

// mask applies the policy to one window. At least one position is masked
// whenever the window holds a maskable id.
func (gen *PretrainingGenerator) mask(window types.Tokens) (
	features, labels []int32) {
	features = make([]int32, len(window))
	labels = make([]int32, len(window))
	candidates := make([]int, 0, len(window))
	for idx, id := range window {
		features[idx] = int32(id)
		labels[idx] = gen.policy.IgnoreLabel
		if !gen.excluded[id] {
			candidates = append(candidates, idx)
		}
	}
	if len(candidates) == 0 {
		return features, labels
	}
	count := int(math.Round(gen.policy.MaskRate * float64(len(candidates))))
	count = min(max(count, 1), len(candidates))

	gen.mu.Lock()
	defer gen.mu.Unlock()
	gen.rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	for _, idx := range candidates[:count] {
		labels[idx] = int32(window[idx])
		roll := gen.rng.Float64()
		switch {
		case roll < gen.policy.MaskTokenRate:
			features[idx] = int32(gen.maskID)
		case roll < gen.policy.MaskTokenRate+gen.policy.RandomTokenRate:
			if span := gen.tokenCount - gen.firstWord; span > 0 {
				features[idx] = int32(gen.firstWord + gen.rng.Intn(span))
			}
		}
	}
	return features, labels
}
