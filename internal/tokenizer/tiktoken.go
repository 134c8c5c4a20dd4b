package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Tiktoken wraps a named tiktoken encoding such as cl100k_base.
type Tiktoken struct {
	enc  *tiktoken.Tiktoken
	name string
}

func NewTiktoken(encoding string) (*Tiktoken, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("%w: tiktoken encoding %q: %v", ErrUnsupported, encoding, err)
	}
	return &Tiktoken{enc: enc, name: encoding}, nil
}

func (t *Tiktoken) Name() string { return t.name }

func (t *Tiktoken) Encode(text string) ([]int, error) {
	return t.enc.Encode(text, nil, nil), nil
}

func (t *Tiktoken) Decode(ids []int) (string, error) {
	return t.enc.Decode(ids), nil
}

// VocabSize is not exposed by tiktoken-go; these are the published sizes
// of the common encodings including specials.
func (t *Tiktoken) VocabSize() int {
	switch t.name {
	case "cl100k_base":
		return 100277
	case "o200k_base":
		return 200019
	case "p50k_base", "r50k_base":
		return 50257
	}
	return 0
}
