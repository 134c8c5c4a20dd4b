// Package weights merges the tensors of every shard in a model directory
// into one flat map.
package weights

import (
	"fmt"
	"io/fs"
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"github.com/samcharles93/ferry/internal/safetensors"
	"github.com/samcharles93/ferry/internal/tensor"
)

// Map is a flat parameter map keyed by dotted path.
type Map map[string]*tensor.Tensor

func (m Map) Has(key string) bool {
	_, ok := m[key]
	return ok
}

// Keys returns the keys in sorted order.
func (m Map) Keys() []string {
	return slices.Sorted(maps.Keys(m))
}

// Bytes is the total payload size of all tensors.
func (m Map) Bytes() int64 {
	var n int64
	for _, t := range m {
		n += t.NBytes()
	}
	return n
}

// TensorReader decodes one shard file.
type TensorReader interface {
	ReadTensors(path string) (map[string]*tensor.Tensor, error)
}

// ListFunc enumerates candidate files under dir.
type ListFunc func(dir string) ([]string, error)

// WalkLister lists every regular file below dir, recursively, in lexical
// walk order.
func WalkLister(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// ShardReadError reports a shard that could not be listed or decoded.
type ShardReadError struct {
	Path string
	Err  error
}

func (e *ShardReadError) Error() string {
	return fmt.Sprintf("read shard %s: %v", e.Path, e.Err)
}

func (e *ShardReadError) Unwrap() error { return e.Err }

// Aggregator merges shards found by List using Reader.
type Aggregator struct {
	List   ListFunc
	Reader TensorReader
}

// NewAggregator returns an aggregator over the real filesystem.
func NewAggregator() *Aggregator {
	return &Aggregator{List: WalkLister, Reader: safetensors.Reader{}}
}

// IsShard reports whether path names a weight shard.
func IsShard(path string) bool {
	return strings.EqualFold(filepath.Ext(path), safetensors.Ext)
}

// Aggregate merges all shards under dir. Shards are merged in listing order
// and a key present in more than one shard takes the value from the last.
func (a *Aggregator) Aggregate(dir string) (Map, error) {
	list, reader := a.List, a.Reader
	if list == nil {
		list = WalkLister
	}
	if reader == nil {
		reader = safetensors.Reader{}
	}

	files, err := list(dir)
	if err != nil {
		return nil, &ShardReadError{Path: dir, Err: err}
	}
	out := make(Map)
	for _, f := range files {
		if !IsShard(f) {
			continue
		}
		tensors, err := reader.ReadTensors(f)
		if err != nil {
			return nil, &ShardReadError{Path: f, Err: err}
		}
		maps.Copy(out, tensors)
	}
	return out, nil
}
