package model

import (
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/samcharles93/ferry/internal/tensor"
)

// HeadName is the conventional path of the output projection.
const HeadName = "lm_head"

// Graph is a model as a tree of modules. A freshly created graph is a
// skeleton: every parameter is a zero placeholder until Update binds real
// tensors.
type Graph struct {
	ModelType string
	VocabSize int
	Root      *Module
}

func NewGraph(modelType string, vocab int) *Graph {
	return &Graph{ModelType: modelType, VocabSize: vocab, Root: newModule("", KindOther)}
}

// Modules returns every module in depth-first pre-order, root excluded.
func (g *Graph) Modules() []*Module {
	var out []*Module
	var walk func(m *Module)
	walk = func(m *Module) {
		for _, c := range m.children {
			out = append(out, c)
			walk(c)
		}
	}
	walk(g.Root)
	return out
}

// Module looks a module up by dotted path.
func (g *Graph) Module(path string) *Module {
	m := g.Root
	if path == "" {
		return m
	}
	for seg := range strings.SplitSeq(path, ".") {
		if m = m.Child(seg); m == nil {
			return nil
		}
	}
	return m
}

// Parameters flattens the graph to dotted parameter paths.
func (g *Graph) Parameters() map[string]*tensor.Tensor {
	out := make(map[string]*tensor.Tensor)
	for _, m := range append([]*Module{g.Root}, g.Modules()...) {
		for _, s := range m.slots {
			out[m.ParamPath(s)] = m.params[s]
		}
	}
	return out
}

// NumParameters counts elements across all parameters.
func (g *Graph) NumParameters() int64 {
	var n int64
	for _, t := range g.Parameters() {
		n += int64(t.Len())
	}
	return n
}

// CountKind counts modules of kind k.
func (g *Graph) CountKind(k Kind) int {
	n := 0
	for _, m := range g.Modules() {
		if m.Kind == k {
			n++
		}
	}
	return n
}

// EvalAll forces every parameter tensor so that deferred reads and
// quantization run now rather than on first use.
func (g *Graph) EvalAll() error {
	var eg errgroup.Group
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for path, t := range g.Parameters() {
		eg.Go(func() error {
			if err := t.Eval(); err != nil {
				return fmt.Errorf("evaluate %s: %w", path, err)
			}
			return nil
		})
	}
	return eg.Wait()
}
