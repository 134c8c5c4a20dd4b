package api

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/samcharles93/ferry/internal/loader"
	"github.com/samcharles93/ferry/internal/model"
)

// LoadFunc runs the load pipeline for one configuration.
type LoadFunc func(ctx context.Context, cfg loader.Configuration) (*loader.Loaded, error)

// ModelProvider hands out loaded models by request.
type ModelProvider interface {
	Load(ctx context.Context, req LoadRequest) (ModelSummary, error)
	List() []ModelSummary
}

// CachedModelProvider loads each model once and keeps it resident.
type CachedModelProvider struct {
	load  LoadFunc
	clock func() time.Time

	mu    sync.Mutex
	cache map[string]*modelEntry
	// inflight collapses concurrent loads of one configuration.
	inflight singleflight.Group
}

type modelEntry struct {
	loaded  *loader.Loaded
	summary ModelSummary
}

func NewCachedModelProvider(load LoadFunc) *CachedModelProvider {
	return &CachedModelProvider{
		load:  load,
		clock: time.Now,
		cache: make(map[string]*modelEntry),
	}
}

func (p *CachedModelProvider) Load(ctx context.Context, req LoadRequest) (ModelSummary, error) {
	id := strings.TrimSpace(req.Model)
	if id == "" {
		return ModelSummary{}, newInvalidRequest("model is required")
	}
	cfg := loader.Remote(id)
	if req.Local {
		cfg = loader.Local(id)
	}
	key := cfg.String()

	if entry, ok := p.cached(key); ok {
		return entry.summary, nil
	}

	// The shared load outlives any single caller's cancellation.
	shared := context.WithoutCancel(ctx)
	v, err, _ := p.inflight.Do(key, func() (any, error) {
		if entry, ok := p.cached(key); ok {
			return entry, nil
		}
		res, err := p.load(shared, cfg)
		if err != nil {
			return nil, err
		}
		entry := &modelEntry{loaded: res, summary: summarize(id, res, p.clock())}
		p.mu.Lock()
		p.cache[key] = entry
		p.mu.Unlock()
		return entry, nil
	})
	if err != nil {
		return ModelSummary{}, err
	}
	return v.(*modelEntry).summary, nil
}

func (p *CachedModelProvider) cached(key string) (*modelEntry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.cache[key]
	return e, ok
}

// List returns cached models ordered by load time.
func (p *CachedModelProvider) List() []ModelSummary {
	p.mu.Lock()
	out := make([]ModelSummary, 0, len(p.cache))
	for _, e := range p.cache {
		out = append(out, e.summary)
	}
	p.mu.Unlock()
	slices.SortFunc(out, func(a, b ModelSummary) int {
		return cmp.Or(a.LoadedAt.Compare(b.LoadedAt), cmp.Compare(a.Model, b.Model))
	})
	return out
}

func summarize(id string, res *loader.Loaded, now time.Time) ModelSummary {
	return ModelSummary{
		ID:         uuid.NewString(),
		Model:      id,
		ModelType:  res.Base.ModelType,
		Directory:  res.Directory,
		Layers:     res.Graph.CountKind(model.KindLinear) + res.Graph.CountKind(model.KindQuantized),
		Quantized:  res.Quantized,
		Strategy:   res.Strategy.String(),
		Parameters: res.Graph.NumParameters(),
		VocabSize:  res.Graph.VocabSize,
		Fallback:   res.Fallback,
		LoadedAt:   now.UTC(),
	}
}
