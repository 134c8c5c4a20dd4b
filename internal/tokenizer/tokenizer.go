// Package tokenizer loads the tokenizer that ships next to a model's
// weights.
package tokenizer

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
)

const (
	TokenizerFile = "tokenizer.json"
	ConfigFile    = "tokenizer_config.json"
)

var (
	ErrNotFound    = errors.New("tokenizer: no tokenizer files")
	ErrUnsupported = errors.New("tokenizer: unsupported format")
)

// Tokenizer is the minimal interface the loader hands back to callers.
type Tokenizer interface {
	Encode(text string) ([]int, error)
	Decode(ids []int) (string, error)
	VocabSize() int
}

// Config is the subset of tokenizer_config.json that affects encoding.
type Config struct {
	AddBOSToken      bool       `json:"add_bos_token"`
	AddEOSToken      bool       `json:"add_eos_token"`
	BOSToken         tokenField `json:"bos_token"`
	EOSToken         tokenField `json:"eos_token"`
	TiktokenEncoding string     `json:"tiktoken_encoding"`
}

// tokenField accepts either "<s>" or {"content": "<s>", ...}.
type tokenField struct {
	Content string
}

func (f *tokenField) UnmarshalJSON(b []byte) error {
	if err := json.Unmarshal(b, &f.Content); err == nil {
		return nil
	}
	var obj struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	f.Content = obj.Content
	return nil
}

// LoadDir loads the tokenizer stored in a model directory. A
// tokenizer_config.json naming a tiktoken encoding takes precedence over
// tokenizer.json.
func LoadDir(dir string) (Tokenizer, error) {
	var cfg Config
	raw, err := os.ReadFile(filepath.Join(dir, ConfigFile))
	switch {
	case err == nil:
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", ConfigFile, err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return nil, err
	}

	if cfg.TiktokenEncoding != "" {
		return NewTiktoken(cfg.TiktokenEncoding)
	}

	data, err := os.ReadFile(filepath.Join(dir, TokenizerFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w in %s", ErrNotFound, dir)
	}
	if err != nil {
		return nil, err
	}
	return ParseBPE(data, &cfg)
}
