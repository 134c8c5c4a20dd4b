// Package loader turns a model identifier into a bound, evaluated model
// graph and its tokenizer.
package loader

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/samcharles93/ferry/internal/hub"
	"github.com/samcharles93/ferry/internal/logger"
	"github.com/samcharles93/ferry/internal/model"
	"github.com/samcharles93/ferry/internal/tokenizer"
	"github.com/samcharles93/ferry/internal/weights"
)

// State is a step of a load attempt.
type State int

const (
	ResolvingConfig State = iota
	LoadingTokenizer
	ResolvingWeightsLocation
	BuildingSkeleton
	AggregatingWeights
	Quantizing
	Binding
	Done
)

var stateNames = [...]string{
	ResolvingConfig:          "resolving-config",
	LoadingTokenizer:         "loading-tokenizer",
	ResolvingWeightsLocation: "resolving-weights",
	BuildingSkeleton:         "building-skeleton",
	AggregatingWeights:       "aggregating-weights",
	Quantizing:               "quantizing",
	Binding:                  "binding",
	Done:                     "done",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// TokenizerLoader produces the tokenizer for a configuration.
type TokenizerLoader interface {
	LoadTokenizer(ctx context.Context, cfg Configuration, h Hub) (tokenizer.Tokenizer, error)
}

// ModelFactory builds a weight-less skeleton.
type ModelFactory interface {
	CreateModel(modelType, configPath string) (*model.Graph, error)
}

// WeightAggregator merges the shards of a directory.
type WeightAggregator interface {
	Aggregate(dir string) (weights.Map, error)
}

// Loaded is a ready model.
type Loaded struct {
	Graph     *model.Graph
	Tokenizer tokenizer.Tokenizer
	// Configuration is the one that succeeded; after a fallback it is the
	// local cache configuration rather than the caller's.
	Configuration Configuration
	Directory     string
	Base          BaseConfiguration
	Strategy      Strategy
	Quantized     int
	Fallback      bool
}

type options struct {
	factory    ModelFactory
	aggregator WeightAggregator
	tokenizers TokenizerLoader
}

type Option func(*options)

func WithModelFactory(f ModelFactory) Option {
	return func(o *options) { o.factory = f }
}

func WithAggregator(a WeightAggregator) Option {
	return func(o *options) { o.aggregator = a }
}

func WithTokenizerLoader(t TokenizerLoader) Option {
	return func(o *options) { o.tokenizers = t }
}

// Load resolves cfg, loads its tokenizer and weights, quantizes as the
// descriptor requests and binds the weights. A hub authorization failure
// restarts the load once from h's local cache for the same id.
func Load(ctx context.Context, h Hub, cfg Configuration, progress hub.ProgressFunc, opts ...Option) (*Loaded, error) {
	o := options{
		factory:    model.Factory{},
		aggregator: weights.NewAggregator(),
		tokenizers: HubTokenizerLoader{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	log := logger.FromContext(ctx).With("model", cfg.ID())
	start := time.Now()

	res, err := o.attempt(ctx, h, cfg, progress, 1)
	var authErr *AuthorizationError
	if errors.As(err, &authErr) && cfg.Source() == SourceRemote {
		local := cfg.localFallback(h.LocalCachePath(cfg.ID()))
		log.Warn("hub rejected request, retrying from local cache", "dir", local.Directory(), "error", err)
		res, err = o.attempt(ctx, h, local, progress, 2)
		if res != nil {
			res.Fallback = true
		}
	}
	if err != nil {
		return nil, err
	}

	log.Info("model loaded",
		"type", res.Base.ModelType,
		"dir", res.Directory,
		"strategy", res.Strategy,
		"quantized", res.Quantized,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return res, nil
}

func (o *options) attempt(ctx context.Context, h Hub, cfg Configuration, progress hub.ProgressFunc, attempt int) (*Loaded, error) {
	log := logger.FromContext(ctx).With("model", cfg.ID(), "attempt", attempt)
	enter := func(s State) { log.Debug("load", "state", s) }

	enter(ResolvingConfig)
	res := &Loaded{Configuration: cfg}

	// Both steps run to completion so an authorization failure on either
	// is seen regardless of which finishes first.
	var (
		wg           sync.WaitGroup
		tokErr, wErr error
	)
	wg.Go(func() {
		enter(LoadingTokenizer)
		res.Tokenizer, tokErr = o.tokenizers.LoadTokenizer(ctx, cfg, h)
	})
	wg.Go(func() {
		enter(ResolvingWeightsLocation)
		res.Directory, wErr = resolveDirectory(ctx, h, cfg, progress)
	})
	wg.Wait()
	if err := firstError(wErr, tokErr); err != nil {
		return nil, err
	}

	enter(BuildingSkeleton)
	base, err := ReadBaseConfiguration(res.Directory)
	if err != nil {
		return nil, err
	}
	res.Base = base
	configPath := filepath.Join(res.Directory, ConfigFile)
	graph, err := o.factory.CreateModel(base.ModelType, configPath)
	if err != nil {
		return nil, &DecodingError{Path: configPath, Err: err}
	}

	enter(AggregatingWeights)
	w, err := o.aggregator.Aggregate(res.Directory)
	if err != nil {
		return nil, err
	}
	log.Debug("weights merged", "tensors", len(w), "bytes", w.Bytes())

	enter(Quantizing)
	spec := newQuantizationSpec(base, graph, w)
	if spec != nil {
		res.Strategy = spec.Strategy
		log.Debug("quantizing", "bits", spec.Bits, "group_size", spec.GroupSize, "strategy", spec.Strategy)
	}
	if res.Quantized, err = quantize(graph, spec); err != nil {
		return nil, err
	}

	enter(Binding)
	if err := bind(graph, w); err != nil {
		return nil, err
	}
	res.Graph = graph

	enter(Done)
	return res, nil
}

// firstError prefers an AuthorizationError, since only that one leads to
// a retry, and otherwise returns the first non-nil error.
func firstError(errs ...error) error {
	var first error
	for _, err := range errs {
		var authErr *AuthorizationError
		if errors.As(err, &authErr) {
			return err
		}
		if first == nil {
			first = err
		}
	}
	return first
}
