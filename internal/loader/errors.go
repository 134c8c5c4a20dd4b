package loader

import (
	"fmt"

	"github.com/samcharles93/ferry/internal/model"
	"github.com/samcharles93/ferry/internal/weights"
)

// ResolutionError is a failed remote lookup or transfer.
type ResolutionError struct {
	Repo string
	Err  error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s: %v", e.Repo, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// AuthorizationError is a hub rejection. The orchestrator retries it once
// against the local cache.
type AuthorizationError struct {
	Repo string
	Err  error
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("resolve %s: %v", e.Repo, e.Err)
}

func (e *AuthorizationError) Unwrap() error { return e.Err }

// DecodingError is a missing or malformed config.json.
type DecodingError struct {
	Path string
	Err  error
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodingError) Unwrap() error { return e.Err }

type (
	ShardReadError    = weights.ShardReadError
	QuantizationError = model.QuantizationError
	BindingError      = model.BindingError
)
