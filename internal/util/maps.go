package util

import (
	"cmp"
	"maps"
	"slices"
)

// Merge returns a new map holding base overlaid with each override in
// order. None of the inputs are modified.
func Merge[K comparable, V any](base map[K]V, overrides ...map[K]V) map[K]V {
	size := len(base)
	for _, o := range overrides {
		size += len(o)
	}
	out := make(map[K]V, size)
	maps.Copy(out, base)
	for _, o := range overrides {
		maps.Copy(out, o)
	}
	return out
}

// SortedKeys returns the keys of m in ascending order.
func SortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	return slices.Sorted(maps.Keys(m))
}
