package connector

import (
	"fmt"
	"sort"

	"github.com/hejijunhao/statusreport/internal/model"
)

// Constructor is a function that creates a new Adapter instance.
type Constructor func(Options) Adapter

var registry = map[model.AdapterKind]Constructor{}

// Register adds an adapter constructor under the given kind.
func Register(kind model.AdapterKind, ctor Constructor) {
	registry[kind] = ctor
}

// Get returns the adapter constructor for the given kind.
func Get(kind model.AdapterKind) (Constructor, error) {
	ctor, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("unknown adapter kind: %s", kind)
	}
	return ctor, nil
}

// Kinds returns the registered adapter kinds, sorted.
func Kinds() []model.AdapterKind {
	kinds := make([]model.AdapterKind, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
