package tensor

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	bfloat16 "github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
)

// DType names an element type using the safetensors spelling.
type DType string

const (
	F32  DType = "F32"
	F16  DType = "F16"
	BF16 DType = "BF16"
	U32  DType = "U32"
	I32  DType = "I32"
	U8   DType = "U8"
)

// Size returns the element width in bytes, or 0 for unknown types.
func (d DType) Size() int {
	switch d {
	case F32, U32, I32:
		return 4
	case F16, BF16:
		return 2
	case U8:
		return 1
	default:
		return 0
	}
}

// IsFloat reports whether values of d can be decoded to float32.
func (d DType) IsFloat() bool {
	return d == F32 || d == F16 || d == BF16
}

func ParseDType(s string) (DType, error) {
	d := DType(strings.ToUpper(strings.TrimSpace(s)))
	if d.Size() == 0 {
		return "", fmt.Errorf("unsupported dtype %q", s)
	}
	return d, nil
}

func decodeFloats(d DType, raw []byte, n int) ([]float32, error) {
	if len(raw) != n*d.Size() {
		return nil, fmt.Errorf("invalid %s data size: %d bytes for %d elements", d, len(raw), n)
	}
	switch d {
	case F32:
		out := make([]float32, n)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
		return out, nil
	case F16:
		out := make([]float32, n)
		for i := range out {
			out[i] = float16.Frombits(binary.LittleEndian.Uint16(raw[i*2:])).Float32()
		}
		return out, nil
	case BF16:
		return bfloat16.DecodeFloat32(raw), nil
	default:
		return nil, fmt.Errorf("dtype %s is not a float type", d)
	}
}

func encodeFloats(d DType, v []float32) ([]byte, error) {
	switch d {
	case F32:
		out := make([]byte, len(v)*4)
		for i, f := range v {
			binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
		}
		return out, nil
	case F16:
		out := make([]byte, len(v)*2)
		for i, f := range v {
			binary.LittleEndian.PutUint16(out[i*2:], float16.Fromfloat32(f).Bits())
		}
		return out, nil
	case BF16:
		return bfloat16.EncodeFloat32(v), nil
	default:
		return nil, fmt.Errorf("dtype %s is not a float type", d)
	}
}
