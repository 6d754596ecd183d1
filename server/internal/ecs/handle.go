// Package ecs implements the entity-index + component-table storage layout
// called for by the re-architecture guidance against pointer graphs between
// components: systems are handed table references, not entity pointers, and
// any back-reference to another entity is a weak Handle that must be
// resolved through a Registry (which knows whether the generation is still
// live) rather than dereferenced directly.
package ecs

// Handle is an opaque 32-bit entity reference: a dense index packed with a
// generation counter. Reusing an index after the entity behind it has been
// destroyed bumps the generation, so a stale Handle captured before the
// reuse (for example CombatState.lastAttacker) can be detected as dead
// instead of silently resolving to a different, unrelated entity.
type Handle uint32

const (
	indexBits      = 20
	indexMask      = 1<<indexBits - 1
	generationMask = 1<<(32-indexBits) - 1
)

// NewHandle packs an index and generation into a Handle.
func NewHandle(index, generation uint32) Handle {
	return Handle((generation&generationMask)<<indexBits | (index & indexMask))
}

// Index returns the dense table index encoded in h.
func (h Handle) Index() uint32 {
	return uint32(h) & indexMask
}

// Generation returns the generation counter encoded in h.
func (h Handle) Generation() uint32 {
	return uint32(h) >> indexBits
}

// Registry allocates and recycles Handles, tracking which index/generation
// pairs are currently alive.
type Registry struct {
	generations []uint32
	free        []uint32
	alive       int
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Create allocates a fresh Handle, reusing a previously freed index when
// possible to keep the dense index space small (bounded by
// MaxEntitiesPerZone in practice).
func (r *Registry) Create() Handle {
	r.alive++
	if n := len(r.free); n > 0 {
		idx := r.free[n-1]
		r.free = r.free[:n-1]
		return NewHandle(idx, r.generations[idx])
	}
	idx := uint32(len(r.generations))
	r.generations = append(r.generations, 0)
	return NewHandle(idx, 0)
}

// Destroy releases h, bumping the generation for its index so any Handle
// still referencing it is recognised as stale by Alive.
func (r *Registry) Destroy(h Handle) {
	idx := h.Index()
	if int(idx) >= len(r.generations) || r.generations[idx] != h.Generation() {
		// Already destroyed or never allocated by this Registry; ignore.
		return
	}
	r.generations[idx]++
	r.free = append(r.free, idx)
	r.alive--
}

// Alive reports whether h still refers to a live entity.
func (r *Registry) Alive(h Handle) bool {
	idx := h.Index()
	return int(idx) < len(r.generations) && r.generations[idx] == h.Generation()
}

// Count returns the number of currently live entities.
func (r *Registry) Count() int {
	return r.alive
}
