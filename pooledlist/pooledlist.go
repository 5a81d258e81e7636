// Package pooledlist implements the fixed-capacity, append-only container
// backing a transaction's read set, write-lock set, and write-data set.
//
// Grounded on original_source's PooledList<_Ty, kNumEntries> template: a
// single pre-allocated backing array, linear GetOrCreate/Get, O(1) Clear via
// index reset, no per-entry allocation once the list is created. Go has no
// duck-typed operator==, so entries are constrained to implement Keyed[K]
// instead of defining an equality operator against a key.
package pooledlist

import "fmt"

// Keyed is implemented by entry types stored in a List so the list can
// search for an existing entry by key without per-entry allocation.
type Keyed[K comparable] interface {
	Key() K
}

// ErrCapacityExhausted is returned by Create/GetOrCreate when the list is
// already at capacity. The base spec treats this as a hard, non-recoverable
// error: a transaction that needs more stripes than the fixed capacity must
// abort non-recoverably rather than grow the set.
type ErrCapacityExhausted struct {
	Capacity int
}

func (e *ErrCapacityExhausted) Error() string {
	return fmt.Sprintf("pooledlist: capacity %d exhausted", e.Capacity)
}

// List is a fixed-capacity, append-only, cache-line-friendly container of
// entries keyed by K. The backing array is allocated once, in New, and never
// reallocated: Create past capacity returns ErrCapacityExhausted instead of
// growing.
type List[K comparable, T Keyed[K]] struct {
	entries  []T
	capacity int
	newEntry func(K) T
}

// New allocates a list of the given fixed capacity. newEntry constructs a
// zero entry for a given key; it is called by Create and by GetOrCreate
// when the key is absent.
func New[K comparable, T Keyed[K]](capacity int, newEntry func(K) T) *List[K, T] {
	return &List[K, T]{
		entries:  make([]T, 0, capacity),
		capacity: capacity,
		newEntry: newEntry,
	}
}

// Get searches linearly for an entry with the given key. Returns the zero
// value and false if absent.
func (l *List[K, T]) Get(key K) (T, bool) {
	for i := range l.entries {
		if l.entries[i].Key() == key {
			return l.entries[i], true
		}
	}
	var zero T
	return zero, false
}

// GetPtr is like Get but returns a pointer into the backing array so callers
// can mutate the entry in place (e.g. merging a write-data mask). The
// pointer is invalidated by the next Create/GetOrCreate/Clear.
func (l *List[K, T]) GetPtr(key K) (*T, bool) {
	for i := range l.entries {
		if l.entries[i].Key() == key {
			return &l.entries[i], true
		}
	}
	return nil, false
}

// Contains reports whether key is present.
func (l *List[K, T]) Contains(key K) bool {
	_, ok := l.Get(key)
	return ok
}

// Create appends a brand-new entry for key without checking for duplicates.
// Returns ErrCapacityExhausted if the list is full.
func (l *List[K, T]) Create(key K) (*T, error) {
	if len(l.entries) >= l.capacity {
		return nil, &ErrCapacityExhausted{Capacity: l.capacity}
	}
	l.entries = append(l.entries, l.newEntry(key))
	return &l.entries[len(l.entries)-1], nil
}

// GetOrCreate searches for key; if absent, appends a new entry for it.
// Duplicate keys keep the entry created on first insertion (callers that
// need "first write wins" semantics, like the read set's observed version,
// rely on this).
func (l *List[K, T]) GetOrCreate(key K) (*T, error) {
	if ptr, ok := l.GetPtr(key); ok {
		return ptr, nil
	}
	return l.Create(key)
}

// Clear resets the list to empty in O(1), reusing the backing array.
func (l *List[K, T]) Clear() {
	l.entries = l.entries[:0]
}

// Empty reports whether the list currently holds no entries.
func (l *List[K, T]) Empty() bool {
	return len(l.entries) == 0
}

// Len returns the number of entries currently in the list.
func (l *List[K, T]) Len() int {
	return len(l.entries)
}

// Capacity returns the fixed capacity the list was created with.
func (l *List[K, T]) Capacity() int {
	return l.capacity
}

// All returns the entries in insertion order. The returned slice aliases the
// list's backing array and is invalidated by the next Create/GetOrCreate/
// Clear; callers must not retain it across such calls.
func (l *List[K, T]) All() []T {
	return l.entries
}
