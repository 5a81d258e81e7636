// Package stm implements a word-granularity software transactional memory
// engine: application threads group reads and writes to ordinary in-memory
// locations into transactions that appear to execute atomically, in some
// serializable order, under concurrent access from other goroutines.
//
// The protocol — global version clock, two-lock-per-stripe synchronization,
// optimistic reads with pre/post version checks, and a timestamp-priority
// contention manager — is grounded on this repository's original C++
// implementation (a SwissTM-derived design) and on the optimistic
// version-plus-lock-bit primitive in this codebase's sibling
// context-aware-lock package, generalized from a single location to a
// fixed table of stripes.
//
// A caller obtains a per-goroutine Engine with ThreadInit and keeps it for
// the life of that goroutine, exactly as the original keeps one
// TransactionEngine per OS thread. Transactional work runs through Atomic
// (read-write) or AtomicRead (read-only); ReadWord/WriteWord and the typed
// Read/Write helpers are only valid inside a running transaction.
package stm
