package model

import (
	"maps"
	"slices"
	"strings"

	"github.com/samcharles93/ferry/internal/tensor"
)

// Tree is a nested parameter tree keyed by path segment. A node may carry a
// leaf tensor and children at the same time.
type Tree struct {
	Leaf     *tensor.Tensor
	Children map[string]*Tree
}

// Unflatten nests dotted keys: "a.b.weight" becomes a -> b -> weight.
func Unflatten(flat map[string]*tensor.Tensor) *Tree {
	root := &Tree{}
	for key, t := range flat {
		node := root
		for seg := range strings.SplitSeq(key, ".") {
			if node.Children == nil {
				node.Children = make(map[string]*Tree)
			}
			next, ok := node.Children[seg]
			if !ok {
				next = &Tree{}
				node.Children[seg] = next
			}
			node = next
		}
		node.Leaf = t
	}
	return root
}

// Lookup follows segments and returns the leaf at the end, if any.
func (t *Tree) Lookup(segments ...string) *tensor.Tensor {
	node := t
	for _, seg := range segments {
		if node == nil || node.Children == nil {
			return nil
		}
		node = node.Children[seg]
	}
	if node == nil {
		return nil
	}
	return node.Leaf
}

// Flatten is the inverse of Unflatten.
func (t *Tree) Flatten() map[string]*tensor.Tensor {
	out := make(map[string]*tensor.Tensor)
	var walk func(prefix string, n *Tree)
	walk = func(prefix string, n *Tree) {
		if n.Leaf != nil && prefix != "" {
			out[prefix] = n.Leaf
		}
		for _, k := range slices.Sorted(maps.Keys(n.Children)) {
			walk(join(prefix, k), n.Children[k])
		}
	}
	walk("", t)
	return out
}
