package stm

import "sync"

// The original C++ packs a raw TransactionEngine* into the WriteLock
// word's high bits. Go gives no safe way to pack a GC pointer into an
// integer, so per §9's own suggested fallback ("use stable
// thread-indexed identifiers: allocate engines in a fixed-slot arena on
// thread_init, store the slot index in the lock word, and look up the
// engine by index when the contention manager needs it") every Engine
// registers itself in a process-wide arena at ThreadInit and stores its
// 0-based slot as the WriteLock owner token instead of a pointer.
var (
	arenaMu sync.RWMutex
	arena   []*Engine
)

func registerEngine(e *Engine) uint64 {
	arenaMu.Lock()
	defer arenaMu.Unlock()
	slot := uint64(len(arena))
	arena = append(arena, e)
	return slot
}

// resolveEngine looks up an engine by arena slot. Returns nil if the
// slot is out of range; callers must treat the result as a hint exactly
// as §4.3 requires of WriteLock.Owner() itself — by the time a caller
// dereferences the returned *Engine, the lock may already have been
// released and the stripe re-acquired by someone else.
func resolveEngine(slot uint64) *Engine {
	arenaMu.RLock()
	defer arenaMu.RUnlock()
	if slot >= uint64(len(arena)) {
		return nil
	}
	return arena[slot]
}
