package model

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/samcharles93/ferry/internal/tensor"
	"github.com/samcharles93/ferry/pkg/quant"
)

// QuantizationError reports a layer that matched the predicate but cannot
// be quantized with the requested scheme.
type QuantizationError struct {
	Path string
	Err  error
}

func (e *QuantizationError) Error() string {
	return fmt.Sprintf("quantize %s: %v", e.Path, e.Err)
}

func (e *QuantizationError) Unwrap() error { return e.Err }

// Quantize replaces every linear module accepted by match with a quantized
// module of the same path and dimensions. The packed weight, scales and
// biases are computed lazily from the module's current weight. All matches
// are validated before any module changes. It returns the number of modules
// converted.
func Quantize(g *Graph, match func(*Module) bool, bits, groupSize int) (int, error) {
	scheme := quant.Scheme{Bits: bits, GroupSize: groupSize}
	var targets []*Module
	for _, m := range g.Modules() {
		if m.Kind != KindLinear || !match(m) {
			continue
		}
		if err := scheme.Check(m.InputDims); err != nil {
			return 0, &QuantizationError{Path: m.Path, Err: err}
		}
		targets = append(targets, m)
	}
	for _, m := range targets {
		toQuantized(m, scheme)
	}
	return len(targets), nil
}

func toQuantized(m *Module, scheme quant.Scheme) {
	w := m.params["weight"]
	rows, cols := m.OutputDims, m.InputDims

	var (
		once sync.Once
		aff  *quant.Affine
		qerr error
	)
	compute := func() (*quant.Affine, error) {
		once.Do(func() {
			vals, err := w.Float32s()
			if err != nil {
				qerr = &QuantizationError{Path: m.Path, Err: err}
				return
			}
			aff, qerr = scheme.Quantize(vals, rows, cols)
			if qerr != nil {
				qerr = &QuantizationError{Path: m.Path, Err: qerr}
			}
		})
		return aff, qerr
	}

	scaleType := w.DType()
	if !scaleType.IsFloat() {
		scaleType = tensor.F32
	}
	groups := []int{rows, scheme.Groups(cols)}

	bias := m.params["bias"]
	m.dropParam("weight")
	m.dropParam("bias")

	m.Kind = KindQuantized
	m.Bits, m.GroupSize = scheme.Bits, scheme.GroupSize
	m.setParam("weight", tensor.Deferred(tensor.U32, []int{rows, scheme.PackedCols(cols)}, func() ([]byte, error) {
		a, err := compute()
		if err != nil {
			return nil, err
		}
		raw := make([]byte, len(a.Packed)*4)
		for i, u := range a.Packed {
			binary.LittleEndian.PutUint32(raw[i*4:], u)
		}
		return raw, nil
	}))
	m.setParam("scales", floatsDeferred(scaleType, groups, func(a *quant.Affine) []float32 { return a.Scales }, compute))
	m.setParam("biases", floatsDeferred(scaleType, groups, func(a *quant.Affine) []float32 { return a.Biases }, compute))
	if bias != nil {
		m.setParam("bias", bias)
	}
}

func floatsDeferred(dt tensor.DType, shape []int, pick func(*quant.Affine) []float32, compute func() (*quant.Affine, error)) *tensor.Tensor {
	return tensor.Deferred(dt, shape, func() ([]byte, error) {
		a, err := compute()
		if err != nil {
			return nil, err
		}
		t, err := tensor.FromFloat32(dt, shape, pick(a))
		if err != nil {
			return nil, err
		}
		return t.Bytes()
	})
}
