package loader

import (
	"github.com/samcharles93/ferry/internal/model"
	"github.com/samcharles93/ferry/internal/weights"
)

// gateDims is the output width of mixture-of-experts routers. Those layers
// are never quantized.
const gateDims = 8

// HeadScalesKey marks a checkpoint whose output head was quantized.
const HeadScalesKey = model.HeadName + ".scales"

// Strategy decides which linear layers get quantized.
type Strategy int

const (
	StrategyNone Strategy = iota
	// DefaultLinearExclusion quantizes every linear layer except gates.
	DefaultLinearExclusion
	// LegacyHeadExclusion also skips layers as wide as the vocabulary, for
	// checkpoints whose head was left dense.
	LegacyHeadExclusion
)

func (s Strategy) String() string {
	switch s {
	case DefaultLinearExclusion:
		return "default"
	case LegacyHeadExclusion:
		return "legacy-head"
	}
	return "none"
}

// SelectStrategy picks the strategy from the merged weights.
func SelectStrategy(w weights.Map) Strategy {
	if w.Has(HeadScalesKey) {
		return DefaultLinearExclusion
	}
	return LegacyHeadExclusion
}

// QuantizationSpec is the resolved quantization request for one load.
type QuantizationSpec struct {
	Bits      int
	GroupSize int
	Strategy  Strategy
	VocabSize int
}

// Match reports whether m should be quantized.
func (q QuantizationSpec) Match(m *model.Module) bool {
	if m.Kind != model.KindLinear || m.OutputDims == gateDims {
		return false
	}
	switch q.Strategy {
	case DefaultLinearExclusion:
		return true
	case LegacyHeadExclusion:
		return m.OutputDims != q.VocabSize
	}
	return false
}

// newQuantizationSpec returns nil when base carries no quantization.
func newQuantizationSpec(base BaseConfiguration, g *model.Graph, w weights.Map) *QuantizationSpec {
	if base.Quantization == nil {
		return nil
	}
	return &QuantizationSpec{
		Bits:      base.Quantization.Bits,
		GroupSize: base.Quantization.GroupSize,
		Strategy:  SelectStrategy(w),
		VocabSize: g.VocabSize,
	}
}

// quantize applies spec to g in place and returns the converted count.
func quantize(g *model.Graph, spec *QuantizationSpec) (int, error) {
	if spec == nil {
		return 0, nil
	}
	return model.Quantize(g, spec.Match, spec.Bits, spec.GroupSize)
}
