package tensor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsSizeMismatch(t *testing.T) {
	t.Parallel()

	_, err := New(F32, []int{2, 3}, make([]byte, 20))
	require.Error(t, err)

	tt, err := New(F32, []int{2, 3}, make([]byte, 24))
	require.NoError(t, err)
	assert.Equal(t, 6, tt.Len())
	assert.Equal(t, int64(24), tt.NBytes())
	assert.Equal(t, 3, tt.Dim(-1))
	assert.Equal(t, 2, tt.Dim(0))
	assert.Equal(t, 0, tt.Dim(5))
}

func TestFloatRoundTrip(t *testing.T) {
	t.Parallel()

	vals := []float32{0, 1, -2.5, 0.125}
	for _, dt := range []DType{F32, F16, BF16} {
		tt, err := FromFloat32(dt, []int{4}, vals)
		require.NoError(t, err, dt)
		got, err := tt.Float32s()
		require.NoError(t, err, dt)
		assert.InDeltaSlice(t, vals, got, 1e-3, dt)
	}
}

func TestDeferredEvaluatesOnce(t *testing.T) {
	t.Parallel()

	calls := 0
	tt := Deferred(U8, []int{3}, func() ([]byte, error) {
		calls++
		return []byte{1, 2, 3}, nil
	})
	assert.False(t, tt.Evaluated())
	require.NoError(t, tt.Eval())
	require.NoError(t, tt.Eval())
	assert.True(t, tt.Evaluated())
	assert.Equal(t, 1, calls)

	raw, err := tt.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, raw)
}

func TestDeferredRemembersFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	calls := 0
	tt := Deferred(F32, []int{1}, func() ([]byte, error) {
		calls++
		return nil, boom
	})
	require.ErrorIs(t, tt.Eval(), boom)
	require.ErrorIs(t, tt.Eval(), boom)
	assert.Equal(t, 1, calls)
	assert.False(t, tt.Evaluated())
}

func TestDeferredChecksLength(t *testing.T) {
	t.Parallel()

	tt := Deferred(F32, []int{2}, func() ([]byte, error) { return make([]byte, 4), nil })
	require.Error(t, tt.Eval())
}

func TestZerosAllocatesLazily(t *testing.T) {
	t.Parallel()

	tt := Zeros(BF16, []int{4, 8})
	assert.False(t, tt.Evaluated())
	vals, err := tt.Float32s()
	require.NoError(t, err)
	assert.Len(t, vals, 32)
	for _, v := range vals {
		assert.Zero(t, v)
	}
}

func TestUint32s(t *testing.T) {
	t.Parallel()

	tt, err := FromUint32([]int{2}, []uint32{7, 0xdeadbeef})
	require.NoError(t, err)
	got, err := tt.Uint32s()
	require.NoError(t, err)
	assert.Equal(t, []uint32{7, 0xdeadbeef}, got)

	f, err := FromFloat32(F32, []int{1}, []float32{1})
	require.NoError(t, err)
	_, err = f.Uint32s()
	require.Error(t, err)
}

func TestParseDType(t *testing.T) {
	t.Parallel()

	d, err := ParseDType("bf16")
	require.NoError(t, err)
	assert.Equal(t, BF16, d)

	_, err = ParseDType("F64")
	require.Error(t, err)
}

func TestNumElements(t *testing.T) {
	t.Parallel()

	n, err := NumElements([]int{2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, 24, n)

	n, err = NumElements(nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = NumElements([]int{2, 0})
	require.Error(t, err)
}
