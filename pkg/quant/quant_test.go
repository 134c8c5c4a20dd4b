package quant

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, Scheme{Bits: 4, GroupSize: 64}.Validate())
	require.ErrorIs(t, Scheme{Bits: 3, GroupSize: 64}.Validate(), ErrUnsupportedBits)
	require.ErrorIs(t, Scheme{Bits: 4, GroupSize: 48}.Validate(), ErrInvalidGroupSize)
	require.ErrorIs(t, Scheme{Bits: 4, GroupSize: 64}.Check(96), ErrShape)
	require.NoError(t, Scheme{Bits: 4, GroupSize: 64}.Check(128))
}

func TestLayoutSizes(t *testing.T) {
	t.Parallel()

	s := Scheme{Bits: 4, GroupSize: 64}
	assert.Equal(t, 16, s.PackedCols(128))
	assert.Equal(t, 2, s.Groups(128))

	s = Scheme{Bits: 8, GroupSize: 32}
	assert.Equal(t, 32, s.PackedCols(128))
	assert.Equal(t, 4, s.Groups(128))
}

func TestRoundTripErrorBound(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(1, 2))
	rows, cols := 3, 128
	w := make([]float32, rows*cols)
	for i := range w {
		w[i] = rng.Float32()*2 - 1
	}

	for _, bits := range []int{2, 4, 8} {
		s := Scheme{Bits: bits, GroupSize: 64}
		a, err := s.Quantize(w, rows, cols)
		require.NoError(t, err)
		assert.Len(t, a.Packed, rows*s.PackedCols(cols))
		assert.Len(t, a.Scales, rows*s.Groups(cols))

		back, err := s.Dequantize(a)
		require.NoError(t, err)
		for i := range w {
			g := (i/cols)*s.Groups(cols) + (i%cols)/s.GroupSize
			// Rounding error is at most half a quantization step.
			assert.InDelta(t, w[i], back[i], float64(a.Scales[g])/2+1e-6, "bits=%d i=%d", bits, i)
		}
	}
}

func TestConstantGroup(t *testing.T) {
	t.Parallel()

	s := Scheme{Bits: 4, GroupSize: 32}
	w := make([]float32, 32)
	for i := range w {
		w[i] = 0.75
	}
	a, err := s.Quantize(w, 1, 32)
	require.NoError(t, err)
	back, err := s.Dequantize(a)
	require.NoError(t, err)
	for _, v := range back {
		assert.InDelta(t, 0.75, v, 1e-6)
	}
}

func TestQuantizeRejectsBadInput(t *testing.T) {
	t.Parallel()

	s := Scheme{Bits: 4, GroupSize: 64}
	_, err := s.Quantize(make([]float32, 10), 1, 10)
	require.ErrorIs(t, err, ErrShape)
	_, err = s.Quantize(make([]float32, 64), 2, 64)
	require.Error(t, err)
}
