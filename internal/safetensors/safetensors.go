package safetensors

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"

	"github.com/samcharles93/ferry/internal/tensor"
)

// Ext is the file extension of safetensors shards.
const Ext = ".safetensors"

const maxHeaderLen = 100 * 1024 * 1024

var ErrInvalidHeader = errors.New("invalid safetensors header")

type TensorInfo struct {
	DType tensor.DType
	Shape []int
	Start int64
	End   int64
}

type File struct {
	Path      string
	DataStart int64
	Metadata  map[string]string
	Tensors   map[string]TensorInfo
}

type tensorHeader struct {
	DType       string  `json:"dtype"`
	Shape       []int   `json:"shape"`
	DataOffsets []int64 `json:"data_offsets"`
}

// Open parses the header of a safetensors file. Tensor data is not read.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}

	headerLen, err := readU64(f)
	if err != nil {
		return nil, fmt.Errorf("%w: read length: %v", ErrInvalidHeader, err)
	}
	if headerLen > maxHeaderLen || int64(headerLen)+8 > st.Size() {
		return nil, fmt.Errorf("%w: header length %d", ErrInvalidHeader, headerLen)
	}
	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(f, headerBytes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}

	var meta map[string]string
	if m, ok := raw["__metadata__"]; ok {
		if err := json.Unmarshal(m, &meta); err != nil {
			return nil, fmt.Errorf("%w: metadata: %v", ErrInvalidHeader, err)
		}
		delete(raw, "__metadata__")
	}

	dataStart := int64(8 + headerLen)
	dataLen := st.Size() - dataStart
	tensors := make(map[string]TensorInfo, len(raw))
	for name, msg := range raw {
		var th tensorHeader
		if err := json.Unmarshal(msg, &th); err != nil {
			return nil, fmt.Errorf("%w: tensor %s: %v", ErrInvalidHeader, name, err)
		}
		info, err := th.info(dataLen)
		if err != nil {
			return nil, fmt.Errorf("%w: tensor %s: %v", ErrInvalidHeader, name, err)
		}
		tensors[name] = info
	}
	return &File{
		Path:      path,
		DataStart: dataStart,
		Metadata:  meta,
		Tensors:   tensors,
	}, nil
}

func (th tensorHeader) info(dataLen int64) (TensorInfo, error) {
	if len(th.DataOffsets) != 2 {
		return TensorInfo{}, errors.New("invalid data_offsets")
	}
	start, end := th.DataOffsets[0], th.DataOffsets[1]
	if start < 0 || end < start || end > dataLen {
		return TensorInfo{}, fmt.Errorf("data_offsets [%d, %d] outside data section of %d bytes", start, end, dataLen)
	}
	dtype, err := tensor.ParseDType(th.DType)
	if err != nil {
		return TensorInfo{}, err
	}
	n, err := tensor.NumElements(th.Shape)
	if err != nil {
		return TensorInfo{}, err
	}
	if int64(n)*int64(dtype.Size()) != end-start {
		return TensorInfo{}, fmt.Errorf("%d bytes do not hold %s%v", end-start, dtype, th.Shape)
	}
	return TensorInfo{DType: dtype, Shape: th.Shape, Start: start, End: end}, nil
}

func (f *File) Tensor(name string) (TensorInfo, bool) {
	t, ok := f.Tensors[name]
	return t, ok
}

func (f *File) ReadTensor(name string) ([]byte, TensorInfo, error) {
	t, ok := f.Tensors[name]
	if !ok {
		return nil, TensorInfo{}, fmt.Errorf("tensor not found: %s", name)
	}
	buf := make([]byte, t.End-t.Start)

	file, err := os.Open(f.Path)
	if err != nil {
		return nil, TensorInfo{}, err
	}
	defer func() { _ = file.Close() }()

	if _, err := file.ReadAt(buf, f.DataStart+t.Start); err != nil {
		return nil, TensorInfo{}, fmt.Errorf("read tensor %s: %w", name, err)
	}
	return buf, t, nil
}

// Load returns every tensor in the file. Each tensor reads its bytes from
// disk on first evaluation.
func (f *File) Load() map[string]*tensor.Tensor {
	out := make(map[string]*tensor.Tensor, len(f.Tensors))
	for name, info := range f.Tensors {
		out[name] = tensor.Deferred(info.DType, info.Shape, func() ([]byte, error) {
			raw, _, err := f.ReadTensor(name)
			return raw, err
		})
	}
	return out
}

// Reader reads whole shards. It satisfies weights.TensorReader.
type Reader struct{}

func (Reader) ReadTensors(path string) (map[string]*tensor.Tensor, error) {
	f, err := Open(path)
	if err != nil {
		return nil, err
	}
	return f.Load(), nil
}

func readU64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}
