package loader

import (
	"context"
	"errors"

	"github.com/samcharles93/ferry/internal/hub"
	"github.com/samcharles93/ferry/internal/tokenizer"
)

var tokenizerGlobs = []string{tokenizer.TokenizerFile, tokenizer.ConfigFile}

// HubTokenizerLoader reads the tokenizer from the model directory,
// fetching the tokenizer files first for remote configurations.
type HubTokenizerLoader struct{}

func (HubTokenizerLoader) LoadTokenizer(ctx context.Context, cfg Configuration, h Hub) (tokenizer.Tokenizer, error) {
	dir := cfg.Directory()
	if cfg.Source() == SourceRemote {
		var err error
		dir, err = h.Snapshot(ctx, cfg.ID(), tokenizerGlobs, nil)
		switch {
		case errors.Is(err, hub.ErrAuthorizationRequired):
			return nil, &AuthorizationError{Repo: cfg.ID(), Err: err}
		case err != nil:
			return nil, &ResolutionError{Repo: cfg.ID(), Err: err}
		}
	}
	return tokenizer.LoadDir(dir)
}
