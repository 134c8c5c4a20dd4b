package safetensors

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/ferry/internal/tensor"
)

// writeRaw creates a safetensors file from a hand-built header so malformed
// inputs can be produced.
func writeRaw(t *testing.T, path string, header any, dataLen int) {
	t.Helper()
	headerBytes, err := json.Marshal(header)
	require.NoError(t, err)

	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(headerBytes)))
	buf := append(lenBuf[:], headerBytes...)
	buf = append(buf, make([]byte, dataLen)...)
	require.NoError(t, os.WriteFile(path, buf, 0o644))
}

func mustF32(t *testing.T, shape []int, v ...float32) *tensor.Tensor {
	t.Helper()
	tt, err := tensor.FromFloat32(tensor.F32, shape, v)
	require.NoError(t, err)
	return tt
}

func TestWriteThenOpen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "model.safetensors")

	err := Write(path, map[string]*tensor.Tensor{
		"a.weight": mustF32(t, []int{2, 3}, 1, 2, 3, 4, 5, 6),
		"b.bias":   mustF32(t, []int{2}, -1, 1),
	}, map[string]string{"format": "pt"})
	require.NoError(t, err)

	f, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, path, f.Path)
	assert.Equal(t, "pt", f.Metadata["format"])
	require.Len(t, f.Tensors, 2)
	assert.Zero(t, f.DataStart%8)

	info, ok := f.Tensor("a.weight")
	require.True(t, ok)
	assert.Equal(t, tensor.F32, info.DType)
	assert.Equal(t, []int{2, 3}, info.Shape)
	assert.Equal(t, int64(24), info.End-info.Start)

	loaded := f.Load()
	vals, err := loaded["a.weight"].Float32s()
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, vals)
	vals, err = loaded["b.bias"].Float32s()
	require.NoError(t, err)
	assert.Equal(t, []float32{-1, 1}, vals)
}

func TestReaderIsLazy(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "model.safetensors")
	require.NoError(t, Write(path, map[string]*tensor.Tensor{
		"w": mustF32(t, []int{4}, 1, 2, 3, 4),
	}, nil))

	tensors, err := Reader{}.ReadTensors(path)
	require.NoError(t, err)
	w := tensors["w"]
	require.NotNil(t, w)
	assert.False(t, w.Evaluated())
	assert.Equal(t, []int{4}, w.Shape())

	// Deleting the file surfaces the read failure at evaluation time.
	require.NoError(t, os.Remove(path))
	require.Error(t, w.Eval())
}

func TestOpenNonexistentFile(t *testing.T) {
	t.Parallel()
	_, err := Open(filepath.Join(t.TempDir(), "missing.safetensors"))
	require.Error(t, err)
}

func TestOpenTruncatedFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "short.safetensors")
	require.NoError(t, os.WriteFile(path, []byte{1, 2, 3}, 0o644))

	_, err := Open(path)
	require.ErrorIs(t, err, ErrInvalidHeader)
}

func TestOpenHeaderLongerThanFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bad.safetensors")
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], 1<<20)
	require.NoError(t, os.WriteFile(path, append(lenBuf[:], '{', '}'), 0o644))

	_, err := Open(path)
	require.ErrorIs(t, err, ErrInvalidHeader)
}

func TestOpenInvalidJSON(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bad.safetensors")
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], 5)
	require.NoError(t, os.WriteFile(path, append(lenBuf[:], []byte("{nope")...), 0o644))

	_, err := Open(path)
	require.ErrorIs(t, err, ErrInvalidHeader)
}

func TestOpenRejectsBadTensors(t *testing.T) {
	t.Parallel()

	cases := map[string]tensorHeader{
		"single offset":  {DType: "F32", Shape: []int{1}, DataOffsets: []int64{0}},
		"inverted":       {DType: "F32", Shape: []int{1}, DataOffsets: []int64{4, 0}},
		"past end":       {DType: "F32", Shape: []int{4}, DataOffsets: []int64{0, 16}},
		"size mismatch":  {DType: "F32", Shape: []int{3}, DataOffsets: []int64{0, 8}},
		"unknown dtype":  {DType: "F64", Shape: []int{1}, DataOffsets: []int64{0, 8}},
		"zero dimension": {DType: "F32", Shape: []int{0}, DataOffsets: []int64{0, 0}},
	}
	for name, th := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "bad.safetensors")
			writeRaw(t, path, map[string]tensorHeader{"x": th}, 8)

			_, err := Open(path)
			require.ErrorIs(t, err, ErrInvalidHeader)
		})
	}
}

func TestTensorNotFound(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "model.safetensors")
	require.NoError(t, Write(path, map[string]*tensor.Tensor{"w": mustF32(t, []int{1}, 1)}, nil))

	f, err := Open(path)
	require.NoError(t, err)
	_, _, err = f.ReadTensor("nope")
	require.Error(t, err)
}

func TestWriteMixedDTypes(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "q.safetensors")

	packed, err := tensor.FromUint32([]int{1, 2}, []uint32{0x01234567, 0x89abcdef})
	require.NoError(t, err)
	scales, err := tensor.FromFloat32(tensor.BF16, []int{1, 1}, []float32{0.5})
	require.NoError(t, err)
	require.NoError(t, Write(path, map[string]*tensor.Tensor{"q.weight": packed, "q.scales": scales}, nil))

	tensors, err := Reader{}.ReadTensors(path)
	require.NoError(t, err)
	words, err := tensors["q.weight"].Uint32s()
	require.NoError(t, err)
	assert.Equal(t, []uint32{0x01234567, 0x89abcdef}, words)
	s, err := tensors["q.scales"].Float32s()
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5}, s)
}
