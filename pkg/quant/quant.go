// Package quant implements affine group quantization of row-major weight
// matrices into packed uint32 words with per-group scales and biases.
//
// Each row is split into groups of GroupSize columns. A group stores
// scale = (max-min)/(2^bits-1) and bias = min, and every weight w becomes
// q = round((w-bias)/scale). Values are packed least significant bits first,
// 32/bits values per word.
package quant

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrUnsupportedBits  = errors.New("quant: unsupported bit width")
	ErrInvalidGroupSize = errors.New("quant: invalid group size")
	ErrShape            = errors.New("quant: shape not divisible by group size")
)

// Scheme is a bit width plus group size.
type Scheme struct {
	Bits      int
	GroupSize int
}

// Affine is a quantized rows x cols matrix.
type Affine struct {
	Rows   int
	Cols   int
	Packed []uint32  // rows * PackedCols(cols)
	Scales []float32 // rows * cols/GroupSize
	Biases []float32 // rows * cols/GroupSize
}

func (s Scheme) String() string {
	return fmt.Sprintf("%d-bit/g%d", s.Bits, s.GroupSize)
}

// Validate checks the scheme on its own.
func (s Scheme) Validate() error {
	switch s.Bits {
	case 2, 4, 8:
	default:
		return fmt.Errorf("%w: %d", ErrUnsupportedBits, s.Bits)
	}
	switch s.GroupSize {
	case 32, 64, 128:
	default:
		return fmt.Errorf("%w: %d", ErrInvalidGroupSize, s.GroupSize)
	}
	return nil
}

// Check validates the scheme against a matrix with cols input columns.
func (s Scheme) Check(cols int) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if cols <= 0 || cols%s.GroupSize != 0 {
		return fmt.Errorf("%w: %d columns, group size %d", ErrShape, cols, s.GroupSize)
	}
	return nil
}

// PackedCols is the number of uint32 words per row.
func (s Scheme) PackedCols(cols int) int { return cols * s.Bits / 32 }

// Groups is the number of scale/bias entries per row.
func (s Scheme) Groups(cols int) int { return cols / s.GroupSize }

func (s Scheme) Quantize(w []float32, rows, cols int) (*Affine, error) {
	if err := s.Check(cols); err != nil {
		return nil, err
	}
	if rows <= 0 || len(w) != rows*cols {
		return nil, fmt.Errorf("quant: %d values do not form a %dx%d matrix", len(w), rows, cols)
	}

	perWord := 32 / s.Bits
	levels := float32(int(1)<<s.Bits - 1)
	groups := s.Groups(cols)
	packedCols := s.PackedCols(cols)

	out := &Affine{
		Rows:   rows,
		Cols:   cols,
		Packed: make([]uint32, rows*packedCols),
		Scales: make([]float32, rows*groups),
		Biases: make([]float32, rows*groups),
	}
	for r := range rows {
		row := w[r*cols : (r+1)*cols]
		for g := range groups {
			vals := row[g*s.GroupSize : (g+1)*s.GroupSize]
			lo, hi := vals[0], vals[0]
			for _, v := range vals[1:] {
				lo = min(lo, v)
				hi = max(hi, v)
			}
			scale := (hi - lo) / levels
			if scale == 0 {
				scale = 1
			}
			out.Scales[r*groups+g] = scale
			out.Biases[r*groups+g] = lo

			for i, v := range vals {
				q := float32(math.Round(float64((v - lo) / scale)))
				q = min(max(q, 0), levels)
				col := g*s.GroupSize + i
				word := r*packedCols + col/perWord
				out.Packed[word] |= uint32(q) << (uint(col%perWord) * uint(s.Bits))
			}
		}
	}
	return out, nil
}

// Dequantize expands a into a dense rows x cols matrix.
func (s Scheme) Dequantize(a *Affine) ([]float32, error) {
	if err := s.Check(a.Cols); err != nil {
		return nil, err
	}
	perWord := 32 / s.Bits
	mask := uint32(1)<<s.Bits - 1
	groups := s.Groups(a.Cols)
	packedCols := s.PackedCols(a.Cols)
	if len(a.Packed) != a.Rows*packedCols || len(a.Scales) != a.Rows*groups || len(a.Biases) != a.Rows*groups {
		return nil, fmt.Errorf("quant: payload does not match %dx%d at %s", a.Rows, a.Cols, s)
	}

	out := make([]float32, a.Rows*a.Cols)
	for r := range a.Rows {
		for c := range a.Cols {
			word := a.Packed[r*packedCols+c/perWord]
			q := (word >> (uint(c%perWord) * uint(s.Bits))) & mask
			g := r*groups + c/s.GroupSize
			out[r*a.Cols+c] = float32(q)*a.Scales[g] + a.Biases[g]
		}
	}
	return out, nil
}
