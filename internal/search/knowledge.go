package search

import (
	"sync/atomic"

	"github.com/hyperjump/primr/internal/vector"
)

// Knowledge holds the currently loaded vector store. A nil store means "not ready".
// Stores are immutable; reloading swaps in a new one without blocking readers.
type Knowledge struct {
	store atomic.Pointer[vector.Store]
}

// NewKnowledge returns an empty, not-ready holder.
func NewKnowledge() *Knowledge {
	return &Knowledge{}
}

// Load reads the vector file at path and swaps it in.
// On failure the previously loaded store, if any, stays current.
func (k *Knowledge) Load(path string) error {
	s, err := vector.Load(path)
	if err != nil {
		return err
	}
	k.store.Store(s)
	return nil
}

// Swap installs s and returns the previous store.
func (k *Knowledge) Swap(s *vector.Store) *vector.Store {
	return k.store.Swap(s)
}

// Current returns the loaded store, or nil.
func (k *Knowledge) Current() *vector.Store {
	return k.store.Load()
}

// Ready reports whether a store is loaded.
func (k *Knowledge) Ready() bool {
	return k.store.Load() != nil
}
