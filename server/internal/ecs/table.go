package ecs

// Table is a sparse component store keyed by Handle. It is intentionally a
// thin map wrapper rather than a packed array: MaxEntitiesPerZone (4000) is
// small enough that map overhead is immaterial, and a map lets optional
// components (not every entity has a MigrationState, say) be absent without
// a sentinel value.
type Table[T any] struct {
	data map[Handle]T
}

// NewTable creates an empty component Table.
func NewTable[T any]() *Table[T] {
	return &Table[T]{data: make(map[Handle]T)}
}

// Get returns the component for h and whether it is present.
func (t *Table[T]) Get(h Handle) (T, bool) {
	v, ok := t.data[h]
	return v, ok
}

// MustGet returns the component for h, or the zero value if absent. Callers
// that already know the entity carries this component (enforced by the
// bundle it was spawned with) use this to avoid the ok-check at call sites.
func (t *Table[T]) MustGet(h Handle) T {
	return t.data[h]
}

// Set stores or overwrites the component for h.
func (t *Table[T]) Set(h Handle, v T) {
	t.data[h] = v
}

// Delete removes the component for h, if present.
func (t *Table[T]) Delete(h Handle) {
	delete(t.data, h)
}

// Len returns the number of entities carrying this component.
func (t *Table[T]) Len() int {
	return len(t.data)
}

// All iterates over every (Handle, component) pair currently stored. The
// order is unspecified. Mutating the table while ranging over All is
// unsupported, matching the copy-out convention used by SpatialHash
// queries elsewhere in the zone.
func (t *Table[T]) All(yield func(Handle, T) bool) {
	for h, v := range t.data {
		if !yield(h, v) {
			return
		}
	}
}
