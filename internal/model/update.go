package model

import (
	"fmt"
	"slices"
	"strings"

	"github.com/samcharles93/ferry/internal/tensor"
)

// Verify selects the checks Update performs before binding.
type Verify uint8

const (
	// VerifyMissing fails when a parameter slot has no supplied tensor.
	VerifyMissing Verify = 1 << iota
	// VerifyShapes fails when a supplied tensor disagrees with the slot's
	// declared shape or element class.
	VerifyShapes

	VerifyNone Verify = 0
	VerifyAll         = VerifyMissing | VerifyShapes
)

// BindingError reports a parameter that could not be bound.
type BindingError struct {
	Path   string
	Reason string
}

func (e *BindingError) Error() string {
	return fmt.Sprintf("bind %s: %s", e.Path, e.Reason)
}

// Update binds tree onto the graph's parameter slots. Entries in tree that
// no slot asks for are ignored. Nothing is assigned unless every check
// passes, so a failed Update leaves the graph as it was.
func (g *Graph) Update(tree *Tree, verify Verify) error {
	type binding struct {
		m    *Module
		slot string
		t    *tensor.Tensor
	}
	var pending []binding

	for _, m := range append([]*Module{g.Root}, g.Modules()...) {
		var segs []string
		if m.Path != "" {
			segs = strings.Split(m.Path, ".")
		}
		for _, slot := range m.slots {
			path := m.ParamPath(slot)
			supplied := tree.Lookup(append(slices.Clip(segs), slot)...)
			if supplied == nil {
				if verify&VerifyMissing != 0 {
					return &BindingError{Path: path, Reason: "missing parameter"}
				}
				continue
			}
			if verify&VerifyShapes != 0 {
				if err := checkCompatible(m.params[slot], supplied); err != nil {
					return &BindingError{Path: path, Reason: err.Error()}
				}
			}
			pending = append(pending, binding{m: m, slot: slot, t: supplied})
		}
	}

	for _, b := range pending {
		b.m.params[b.slot] = b.t
	}
	return nil
}

func checkCompatible(want, got *tensor.Tensor) error {
	if !slices.Equal(want.Shape(), got.Shape()) {
		return fmt.Errorf("shape %v, expected %v", got.Shape(), want.Shape())
	}
	// Float checkpoints may be stored at any float precision; packed
	// quantized words must match exactly.
	if want.DType().IsFloat() != got.DType().IsFloat() ||
		(!want.DType().IsFloat() && want.DType() != got.DType()) {
		return fmt.Errorf("dtype %s, expected %s", got.DType(), want.DType())
	}
	return nil
}
