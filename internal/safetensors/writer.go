package safetensors

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/goccy/go-json"

	"github.com/samcharles93/ferry/internal/tensor"
)

// Write stores tensors in a single safetensors file. Tensors are laid out
// in key order and evaluated one at a time while writing.
func Write(path string, tensors map[string]*tensor.Tensor, metadata map[string]string) (err error) {
	names := slices.Sorted(maps.Keys(tensors))

	header := make(map[string]any, len(names)+1)
	if len(metadata) > 0 {
		header["__metadata__"] = metadata
	}
	var offset int64
	for _, name := range names {
		t := tensors[name]
		size := t.NBytes()
		header[name] = tensorHeader{
			DType:       string(t.DType()),
			Shape:       t.Shape(),
			DataOffsets: []int64{offset, offset + size},
		}
		offset += size
	}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("marshal header: %w", err)
	}
	// Pad the header so the data section starts 8-byte aligned.
	for (8+len(headerBytes))%8 != 0 {
		headerBytes = append(headerBytes, ' ')
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	w := bufio.NewWriter(f)
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(headerBytes)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := w.Write(headerBytes); err != nil {
		return err
	}
	for _, name := range names {
		raw, err := tensors[name].Bytes()
		if err != nil {
			return fmt.Errorf("tensor %s: %w", name, err)
		}
		if _, err := w.Write(raw); err != nil {
			return err
		}
	}
	return w.Flush()
}
