package stabilizer

import (
	"vidstab/pkg/geometry"
)

// TransformHistory is the bounded FIFO of recent inter-frame transforms
// shared by the smoother and the classifier. Owned by one Core instance;
// cleared on tracking reset or reinitialization, never by parameter
// changes.
type TransformHistory struct {
	entries  []geometry.AffineTransform
	capacity int
}

// NewTransformHistory creates a history bounded to capacity entries.
func NewTransformHistory(capacity int) *TransformHistory {
	if capacity < 1 {
		capacity = 1
	}
	return &TransformHistory{
		entries:  make([]geometry.AffineTransform, 0, capacity),
		capacity: capacity,
	}
}

// Push appends a transform, evicting the oldest entry at capacity.
func (h *TransformHistory) Push(t geometry.AffineTransform) {
	if len(h.entries) == h.capacity {
		copy(h.entries, h.entries[1:])
		h.entries[len(h.entries)-1] = t
		return
	}
	h.entries = append(h.entries, t)
}

// Snapshot returns the entries oldest-first. The returned slice aliases
// internal storage and is only valid until the next Push; consumers on the
// frame path read it synchronously and never retain it.
func (h *TransformHistory) Snapshot() []geometry.AffineTransform {
	return h.entries
}

// Len returns the number of stored transforms.
func (h *TransformHistory) Len() int {
	return len(h.entries)
}

// Clear drops all entries, keeping capacity.
func (h *TransformHistory) Clear() {
	h.entries = h.entries[:0]
}

// SetCapacity rebounds the history, keeping the most recent entries when
// shrinking.
func (h *TransformHistory) SetCapacity(capacity int) {
	if capacity < 1 || capacity == h.capacity {
		return
	}
	if len(h.entries) > capacity {
		kept := make([]geometry.AffineTransform, capacity, capacity)
		copy(kept, h.entries[len(h.entries)-capacity:])
		h.entries = kept
	} else {
		kept := make([]geometry.AffineTransform, len(h.entries), capacity)
		copy(kept, h.entries)
		h.entries = kept
	}
	h.capacity = capacity
}
