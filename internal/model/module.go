package model

import (
	"fmt"
	"slices"
	"strings"

	"github.com/samcharles93/ferry/internal/tensor"
)

// Kind tags a module so callers can select layers without inspecting
// concrete types.
type Kind int

const (
	KindOther Kind = iota
	KindLinear
	KindQuantized
)

func (k Kind) String() string {
	switch k {
	case KindLinear:
		return "linear"
	case KindQuantized:
		return "quantized"
	default:
		return "other"
	}
}

// Module is one node of a model graph. Path is the dotted location of the
// node from the root and prefixes the names of its parameters.
type Module struct {
	Path string
	Kind Kind

	// Linear and quantized modules only.
	InputDims  int
	OutputDims int
	Bits       int
	GroupSize  int

	slots    []string
	params   map[string]*tensor.Tensor
	children []*Module
}

func newModule(path string, kind Kind) *Module {
	return &Module{Path: path, Kind: kind, params: make(map[string]*tensor.Tensor)}
}

// Name is the last path segment.
func (m *Module) Name() string {
	if i := strings.LastIndexByte(m.Path, '.'); i >= 0 {
		return m.Path[i+1:]
	}
	return m.Path
}

// Slots lists parameter names in declaration order.
func (m *Module) Slots() []string { return slices.Clone(m.slots) }

func (m *Module) Param(name string) *tensor.Tensor { return m.params[name] }

// ParamPath is the flat key of parameter name in a weight map.
func (m *Module) ParamPath(name string) string {
	return join(m.Path, name)
}

func (m *Module) Children() []*Module { return slices.Clone(m.children) }

func (m *Module) Child(name string) *Module {
	for _, c := range m.children {
		if c.Name() == name {
			return c
		}
	}
	return nil
}

func (m *Module) setParam(name string, t *tensor.Tensor) {
	if _, ok := m.params[name]; !ok {
		m.slots = append(m.slots, name)
	}
	m.params[name] = t
}

func (m *Module) dropParam(name string) {
	delete(m.params, name)
	m.slots = slices.DeleteFunc(m.slots, func(s string) bool { return s == name })
}

// Add creates a container child named name and returns it.
func (m *Module) Add(name string) *Module {
	c := newModule(join(m.Path, name), KindOther)
	m.children = append(m.children, c)
	return c
}

// AddLinear adds a dense layer computing out = x W^T (+ b) with W of shape
// [out, in].
func (m *Module) AddLinear(name string, in, out int, bias bool, dtype tensor.DType) *Module {
	c := newModule(join(m.Path, name), KindLinear)
	c.InputDims, c.OutputDims = in, out
	c.setParam("weight", tensor.Zeros(dtype, []int{out, in}))
	if bias {
		c.setParam("bias", tensor.Zeros(dtype, []int{out}))
	}
	m.children = append(m.children, c)
	return c
}

// AddEmbedding adds a lookup table of shape [vocab, dims].
func (m *Module) AddEmbedding(name string, vocab, dims int, dtype tensor.DType) *Module {
	c := newModule(join(m.Path, name), KindOther)
	c.setParam("weight", tensor.Zeros(dtype, []int{vocab, dims}))
	m.children = append(m.children, c)
	return c
}

// AddNorm adds a normalization layer with a single weight vector.
func (m *Module) AddNorm(name string, dims int, dtype tensor.DType) *Module {
	c := newModule(join(m.Path, name), KindOther)
	c.setParam("weight", tensor.Zeros(dtype, []int{dims}))
	m.children = append(m.children, c)
	return c
}

func (m *Module) String() string {
	switch m.Kind {
	case KindLinear:
		return fmt.Sprintf("Linear(%s, in=%d, out=%d)", m.Path, m.InputDims, m.OutputDims)
	case KindQuantized:
		return fmt.Sprintf("QuantizedLinear(%s, in=%d, out=%d, bits=%d, group=%d)",
			m.Path, m.InputDims, m.OutputDims, m.Bits, m.GroupSize)
	default:
		return fmt.Sprintf("Module(%s)", m.Path)
	}
}

func join(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
