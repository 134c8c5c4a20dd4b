// Package tensor holds n-dimensional arrays as typed little-endian bytes.
//
// A Tensor knows its dtype and shape up front. Its bytes may be supplied
// eagerly or produced by a deferred function that runs on first Eval, which
// lets shard readers and the quantizer describe parameters without touching
// their data until a model is finalized.
package tensor

import (
	"encoding/binary"
	"fmt"
	"slices"
	"sync"
)

type Tensor struct {
	dtype DType
	shape []int

	mu    sync.Mutex
	data  []byte
	thunk func() ([]byte, error)
	err   error
}

// New wraps raw bytes. The length must match dtype and shape exactly.
func New(dtype DType, shape []int, data []byte) (*Tensor, error) {
	n, err := NumElements(shape)
	if err != nil {
		return nil, err
	}
	if dtype.Size() == 0 {
		return nil, fmt.Errorf("unsupported dtype %q", dtype)
	}
	if len(data) != n*dtype.Size() {
		return nil, fmt.Errorf("invalid %s data size: %d bytes for shape %v", dtype, len(data), shape)
	}
	return &Tensor{dtype: dtype, shape: slices.Clone(shape), data: data}, nil
}

// Deferred returns a tensor whose bytes are produced by fn on first Eval.
func Deferred(dtype DType, shape []int, fn func() ([]byte, error)) *Tensor {
	return &Tensor{dtype: dtype, shape: slices.Clone(shape), thunk: fn}
}

// Zeros returns a placeholder tensor. Its buffer is only allocated if the
// tensor is ever evaluated.
func Zeros(dtype DType, shape []int) *Tensor {
	return Deferred(dtype, shape, func() ([]byte, error) {
		n, err := NumElements(shape)
		if err != nil {
			return nil, err
		}
		return make([]byte, n*dtype.Size()), nil
	})
}

func FromFloat32(dtype DType, shape []int, v []float32) (*Tensor, error) {
	raw, err := encodeFloats(dtype, v)
	if err != nil {
		return nil, err
	}
	return New(dtype, shape, raw)
}

func FromUint32(shape []int, v []uint32) (*Tensor, error) {
	raw := make([]byte, len(v)*4)
	for i, u := range v {
		binary.LittleEndian.PutUint32(raw[i*4:], u)
	}
	return New(U32, shape, raw)
}

func (t *Tensor) DType() DType { return t.dtype }

func (t *Tensor) Shape() []int { return slices.Clone(t.shape) }

// Dim returns dimension i, counting from the end when i is negative.
func (t *Tensor) Dim(i int) int {
	if i < 0 {
		i += len(t.shape)
	}
	if i < 0 || i >= len(t.shape) {
		return 0
	}
	return t.shape[i]
}

// Len returns the element count.
func (t *Tensor) Len() int {
	n, err := NumElements(t.shape)
	if err != nil {
		return 0
	}
	return n
}

// NBytes returns the size of the payload implied by dtype and shape.
func (t *Tensor) NBytes() int64 {
	return int64(t.Len()) * int64(t.dtype.Size())
}

// Evaluated reports whether the bytes are resident.
func (t *Tensor) Evaluated() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.thunk == nil && t.err == nil
}

// Eval materializes a deferred tensor. It is safe to call repeatedly and
// from multiple goroutines; a failure is remembered and returned again.
func (t *Tensor) Eval() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return t.err
	}
	if t.thunk == nil {
		return nil
	}
	data, err := t.thunk()
	if err == nil && int64(len(data)) != int64(t.Len())*int64(t.dtype.Size()) {
		err = fmt.Errorf("invalid %s data size: %d bytes for shape %v", t.dtype, len(data), t.shape)
	}
	if err != nil {
		t.err = err
		return err
	}
	t.data = data
	t.thunk = nil
	return nil
}

// Bytes evaluates the tensor and returns its raw little-endian payload.
// The slice is shared with the tensor and must not be modified.
func (t *Tensor) Bytes() ([]byte, error) {
	if err := t.Eval(); err != nil {
		return nil, err
	}
	return t.data, nil
}

// Float32s decodes a float tensor into a new slice.
func (t *Tensor) Float32s() ([]float32, error) {
	raw, err := t.Bytes()
	if err != nil {
		return nil, err
	}
	return decodeFloats(t.dtype, raw, t.Len())
}

func (t *Tensor) Uint32s() ([]uint32, error) {
	if t.dtype != U32 {
		return nil, fmt.Errorf("dtype %s is not U32", t.dtype)
	}
	raw, err := t.Bytes()
	if err != nil {
		return nil, err
	}
	out := make([]uint32, t.Len())
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	return out, nil
}

func (t *Tensor) String() string {
	return fmt.Sprintf("%s%v", t.dtype, t.shape)
}

// NumElements multiplies out shape, rejecting non-positive dims and overflow.
func NumElements(shape []int) (int, error) {
	n := 1
	for _, d := range shape {
		if d <= 0 {
			return 0, fmt.Errorf("invalid dim %d in shape %v", d, shape)
		}
		if n > (int(^uint(0)>>1))/d {
			return 0, fmt.Errorf("tensor too large: %v", shape)
		}
		n *= d
	}
	return n, nil
}
