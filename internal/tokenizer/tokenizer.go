package tokenizer

import (
	"errors"
	"fmt"

	"github.com/jkoiv/minivec/internal/pooling"
)

// Tokenization errors.
var (
	ErrEmptyBatch      = errors.New("tokenizer: empty batch")
	ErrPaddingRequired = errors.New("tokenizer: ragged batch requires padding")
)

// Options controls how a batch is framed. With Padding enabled, sequences
// are padded to the longest sequence in the batch; with Truncation enabled,
// sequences longer than MaxLength are cut to fit.
type Options struct {
	MaxLength  int  `yaml:"max_length" mapstructure:"max_length"`
	Padding    bool `yaml:"padding" mapstructure:"padding"`
	Truncation bool `yaml:"truncation" mapstructure:"truncation"`
}

// DefaultOptions matches the common sentence-transformers setup.
func DefaultOptions() Options {
	return Options{MaxLength: 128, Padding: true, Truncation: true}
}

// Batch holds tokenized input ready for encoder inference. All slices are
// flat row-major (size, seqLen), the layout the ONNX backend consumes.
type Batch struct {
	InputIDs      []int64
	AttentionMask []int64
	TokenTypeIDs  []int64
	Size          int
	SeqLen        int
}

// Mask returns the batch's attention mask in the pooling package's shape.
func (b Batch) Mask() pooling.AttentionMask {
	return pooling.AttentionMask{Data: b.AttentionMask, Batch: b.Size, Seq: b.SeqLen}
}

// Tokenizer performs BERT-style WordPiece tokenization over a fixed
// vocabulary.
type Tokenizer struct {
	vocab *Vocab
	opts  Options
}

// New creates a Tokenizer from a vocab.txt file.
func New(vocabPath string, opts Options) (*Tokenizer, error) {
	v, err := LoadVocab(vocabPath)
	if err != nil {
		return nil, err
	}
	return NewWithVocab(v, opts), nil
}

// NewWithVocab creates a Tokenizer from an already loaded vocabulary.
func NewWithVocab(v *Vocab, opts Options) *Tokenizer {
	if opts.MaxLength <= 0 {
		opts.MaxLength = DefaultOptions().MaxLength
	}
	return &Tokenizer{vocab: v, opts: opts}
}

// Vocab returns the tokenizer's vocabulary.
func (t *Tokenizer) Vocab() *Vocab {
	return t.vocab
}

// EncodeBatch tokenizes texts into a single padded batch: each sequence is
// framed as [CLS] tokens... [SEP], truncated to MaxLength when truncation is
// enabled, and padded with [PAD] to the longest sequence in the batch.
func (t *Tokenizer) EncodeBatch(texts []string) (Batch, error) {
	if len(texts) == 0 {
		return Batch{}, ErrEmptyBatch
	}

	seqs := make([][]int64, len(texts))
	maxLen := 0
	for i, text := range texts {
		ids, err := t.encode(text)
		if err != nil {
			return Batch{}, err
		}
		seqs[i] = ids
		if len(ids) > maxLen {
			maxLen = len(ids)
		}
	}

	if !t.opts.Padding {
		for _, ids := range seqs {
			if len(ids) != maxLen {
				return Batch{}, ErrPaddingRequired
			}
		}
	}

	size := len(texts)
	batch := Batch{
		InputIDs:      make([]int64, size*maxLen),
		AttentionMask: make([]int64, size*maxLen),
		TokenTypeIDs:  make([]int64, size*maxLen),
		Size:          size,
		SeqLen:        maxLen,
	}

	for i, ids := range seqs {
		off := i * maxLen
		copy(batch.InputIDs[off:], ids)
		for j := range ids {
			batch.AttentionMask[off+j] = 1
		}
		for j := len(ids); j < maxLen; j++ {
			batch.InputIDs[off+j] = t.vocab.padID
		}
	}

	return batch, nil
}

// encode converts one text into an ID sequence framed with [CLS] and [SEP].
func (t *Tokenizer) encode(text string) ([]int64, error) {
	tokens := t.wordpiece(basicTokenize(text))

	limit := t.opts.MaxLength - 2 // room for [CLS] and [SEP]
	if len(tokens) > limit {
		if !t.opts.Truncation {
			return nil, fmt.Errorf("tokenizer: sequence length %d exceeds max_length %d and truncation is disabled",
				len(tokens)+2, t.opts.MaxLength)
		}
		tokens = tokens[:limit]
	}

	ids := make([]int64, 0, len(tokens)+2)
	ids = append(ids, t.vocab.clsID)
	for _, tok := range tokens {
		ids = append(ids, t.vocab.ID(tok))
	}
	ids = append(ids, t.vocab.sepID)
	return ids, nil
}

// wordpiece decomposes basic tokens into subword units via greedy
// longest-match-first lookup. A token with no valid decomposition maps to
// a single [UNK].
func (t *Tokenizer) wordpiece(tokens []string) []string {
	var result []string
	for _, token := range tokens {
		if token == "" {
			continue
		}
		result = append(result, t.wordpieceToken(token)...)
	}
	return result
}

func (t *Tokenizer) wordpieceToken(token string) []string {
	runes := []rune(token)
	if len(runes) > 200 {
		return []string{"[UNK]"}
	}

	var subTokens []string
	start := 0
	for start < len(runes) {
		end := len(runes)
		found := false
		for end > start {
			sub := string(runes[start:end])
			if start > 0 {
				sub = "##" + sub
			}
			if t.vocab.Contains(sub) {
				subTokens = append(subTokens, sub)
				found = true
				break
			}
			end--
		}
		if !found {
			return []string{"[UNK]"}
		}
		start = end
	}
	return subTokens
}
