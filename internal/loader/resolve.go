package loader

import (
	"context"
	"errors"

	"github.com/samcharles93/ferry/internal/hub"
)

// weightGlobs selects the descriptor and every shard of a snapshot.
var weightGlobs = []string{ConfigFile, "*.safetensors"}

// Hub is the remote model store.
type Hub interface {
	Snapshot(ctx context.Context, repo string, globs []string, progress hub.ProgressFunc) (string, error)
	LocalCachePath(repo string) string
}

// resolveDirectory returns the directory holding cfg's weights, fetching a
// snapshot for remote configurations.
func resolveDirectory(ctx context.Context, h Hub, cfg Configuration, progress hub.ProgressFunc) (string, error) {
	if cfg.Source() == SourceLocal {
		return cfg.Directory(), nil
	}
	dir, err := h.Snapshot(ctx, cfg.ID(), weightGlobs, progress)
	switch {
	case err == nil:
		return dir, nil
	case errors.Is(err, hub.ErrAuthorizationRequired):
		return "", &AuthorizationError{Repo: cfg.ID(), Err: err}
	default:
		return "", &ResolutionError{Repo: cfg.ID(), Err: err}
	}
}
