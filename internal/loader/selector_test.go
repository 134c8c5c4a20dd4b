package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/ferry/internal/model"
	"github.com/samcharles93/ferry/internal/tensor"
	"github.com/samcharles93/ferry/internal/weights"
)

func TestSelectStrategy(t *testing.T) {
	t.Parallel()

	assert.Equal(t, LegacyHeadExclusion, SelectStrategy(weights.Map{}))
	assert.Equal(t, LegacyHeadExclusion, SelectStrategy(weights.Map{"lm_head.weight": tensor.Zeros(tensor.F32, []int{1})}))
	assert.Equal(t, DefaultLinearExclusion, SelectStrategy(weights.Map{HeadScalesKey: tensor.Zeros(tensor.F32, []int{1})}))
}

func TestGateIsNeverSelected(t *testing.T) {
	t.Parallel()

	for _, vocab := range []int{8, 64, 96} {
		g := model.NewGraph("demo", vocab)
		gate := g.Root.AddLinear("gate", 64, 8, false, tensor.F32)
		for _, s := range []Strategy{StrategyNone, DefaultLinearExclusion, LegacyHeadExclusion} {
			spec := QuantizationSpec{Bits: 4, GroupSize: 64, Strategy: s, VocabSize: vocab}
			assert.False(t, spec.Match(gate), "vocab=%d strategy=%s", vocab, s)
		}
	}
}

func TestLegacyExcludesVocabWideLayers(t *testing.T) {
	t.Parallel()

	g := model.NewGraph("demo", 96)
	head := g.Root.AddLinear(model.HeadName, 64, 96, false, tensor.F32)
	proj := g.Root.AddLinear("proj", 64, 64, false, tensor.F32)
	norm := g.Root.AddNorm("norm", 64, tensor.F32)

	legacy := QuantizationSpec{Strategy: LegacyHeadExclusion, VocabSize: 96}
	assert.False(t, legacy.Match(head))
	assert.True(t, legacy.Match(proj))
	assert.False(t, legacy.Match(norm))

	def := QuantizationSpec{Strategy: DefaultLinearExclusion, VocabSize: 96}
	assert.True(t, def.Match(head))
	assert.True(t, def.Match(proj))
	assert.False(t, def.Match(norm))
}

func TestQuantizeSelectsByStrategy(t *testing.T) {
	t.Parallel()

	build := func() *model.Graph {
		g := model.NewGraph("demo", 96)
		g.Root.AddLinear("gate", 64, 8, false, tensor.F32)
		g.Root.AddLinear("proj", 64, 64, false, tensor.F32)
		g.Root.AddLinear(model.HeadName, 64, 96, false, tensor.F32)
		return g
	}
	base := BaseConfiguration{ModelType: "demo", Quantization: &QuantizationDescriptor{Bits: 4, GroupSize: 64}}

	g := build()
	n, err := quantize(g, newQuantizationSpec(base, g, weights.Map{}))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, model.KindLinear, g.Module(model.HeadName).Kind)

	g = build()
	n, err = quantize(g, newQuantizationSpec(base, g, weights.Map{HeadScalesKey: tensor.Zeros(tensor.F32, []int{1})}))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, model.KindQuantized, g.Module(model.HeadName).Kind)
	assert.Equal(t, model.KindLinear, g.Module("gate").Kind)

	g = build()
	assert.Nil(t, newQuantizationSpec(BaseConfiguration{ModelType: "demo"}, g, weights.Map{}))
	n, err = quantize(g, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStrategyString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "none", StrategyNone.String())
	assert.Equal(t, "default", DefaultLinearExclusion.String())
	assert.Equal(t, "legacy-head", LegacyHeadExclusion.String())
}
