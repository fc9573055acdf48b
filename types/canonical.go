package types

import (
	"encoding/json"
	"fmt"
)

// Canonical returns a key-order-stable representation of v, used for all
// structural-equality grouping of agent outputs and votes. Two values are
// structurally equal iff their canonical forms are equal.
//
// The value is round-tripped through JSON so that structs and maps with
// the same shape, or ints and floats with the same value, canonicalize
// identically; encoding/json emits map keys in sorted order. Values that
// cannot be marshaled fall back to their Go syntax representation.
func Canonical(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%#v", v)
	}
	var normalized any
	if err := json.Unmarshal(data, &normalized); err != nil {
		return string(data)
	}
	out, err := json.Marshal(normalized)
	if err != nil {
		return string(data)
	}
	return string(out)
}

// StructurallyEqual reports whether a and b have equal canonical forms.
func StructurallyEqual(a, b any) bool {
	return Canonical(a) == Canonical(b)
}
