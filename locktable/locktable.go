// Package locktable implements the fixed-size, two-lock-per-stripe table
// the transaction engine synchronizes word access through.
//
// The scheme is a generalization of the optimistic version-plus-lock-bit
// primitive used elsewhere in this codebase for a single location
// (see optimistic_rw_mutex.OptRWMutex in the sibling context-aware-lock
// package this was grounded on) to a fixed table of stripes, each guarding
// every address that hashes to it.
package locktable

import (
	"encoding/binary"
	"math"
	"sync/atomic"

	"github.com/twmb/murmur3"
)

// Version is the 64-bit monotonic timestamp stamped on committed writes.
type Version = uint64

// readLockBit is the top bit of a ReadLock's version word: the transient
// "committing" flag readers spin on. It is distinct from WriteLock's lock
// bit, which occupies the low bit of a different word.
const readLockBit Version = 1 << 63

// MaxVersion is the highest version the clock may reach before the top two
// reserved bits would be disturbed. The table does not detect or repair
// overflow past this bound; see Engine.Commit for the process-wide abort
// this spec resolves §9's open question with.
const MaxVersion Version = math.MaxUint64 >> 2

// Size is the fixed number of stripes in the lock table. Must be a power of
// two; the table is allocated once and never resized.
const Size = 4096

const stripeMask = uintptr(Size - 1)

// ReadLock holds the last-committed version of every address mapped to its
// stripe, plus a transient commit-in-progress flag in the top bit.
type ReadLock struct {
	version atomic.Uint64
}

// Get returns the current version word, lock bit included.
func (l *ReadLock) Get() Version {
	return l.version.Load()
}

// Lock sets the commit-in-progress bit. Only the stripe's write-lock owner
// may call this; no CAS is required because of that exclusivity.
func (l *ReadLock) Lock() {
	l.version.Store(l.version.Load() | readLockBit)
}

// Unlock clears the commit-in-progress bit without changing the version.
func (l *ReadLock) Unlock() {
	l.version.Store(l.version.Load() &^ readLockBit)
}

// UnlockVersion clears the commit-in-progress bit and installs newVersion in
// one step. newVersion must not exceed MaxVersion.
func (l *ReadLock) UnlockVersion(newVersion Version) {
	l.version.Store(newVersion)
}

// IsCommitting reports whether a version word (as returned by Get) has its
// commit-in-progress bit set.
func IsCommitting(v Version) bool {
	return v&readLockBit != 0
}

// VersionOf strips the commit-in-progress bit from a version word.
func VersionOf(v Version) Version {
	return v &^ readLockBit
}

// WriteLock is an owner-tagged mutual-exclusion bit for a stripe. The owner
// is an opaque token (see Engine's arena slot index) rather than a raw
// pointer: Go cannot safely pack a GC pointer into an integer word the way
// the original C++ packs a TransactionEngine* next to a low lock bit.
type WriteLock struct {
	value atomic.Uint64
}

const writeLockBit uint64 = 0b1

func tag(owner uint64) uint64 {
	return (owner << 1) | writeLockBit
}

// TryLock attempts to acquire the stripe for owner. Returns false if already
// locked by anyone.
func (l *WriteLock) TryLock(owner uint64) bool {
	return l.value.CompareAndSwap(0, tag(owner))
}

// Unlock releases the stripe unconditionally.
func (l *WriteLock) Unlock() {
	l.value.Store(0)
}

// IsLocked reports whether any owner currently holds the stripe.
func (l *WriteLock) IsLocked() bool {
	return l.value.Load()&writeLockBit != 0
}

// IsLockedBy reports whether owner currently holds the stripe.
func (l *WriteLock) IsLockedBy(owner uint64) bool {
	return l.value.Load() == tag(owner)
}

// Owner returns the current holder as a hint: it may be observed
// concurrently with Unlock and racing callers must never treat it as a
// liveness guarantee, only as advice for the contention manager.
func (l *WriteLock) Owner() (owner uint64, held bool) {
	v := l.value.Load()
	if v&writeLockBit == 0 {
		return 0, false
	}
	return v >> 1, true
}

// LockEntry pairs a stripe's ReadLock and WriteLock. Sized to 16 bytes on
// 64-bit targets, matching the base spec's layout requirement.
type LockEntry struct {
	Read  ReadLock
	Write WriteLock
}

// Table is the fixed, never-resized lock table. Stripe collisions are
// expected and permitted; the protocol only assumes that any committed
// write to an address acquires that address's stripe.
type Table struct {
	entries [Size]LockEntry
}

// NewTable allocates the lock table once. Intended to be called from a
// process-wide sync.Once, never per-thread.
func NewTable() *Table {
	return &Table{}
}

// StripeIndex hashes an address to its stripe: address & (Size-1).
func StripeIndex(address uintptr) uintptr {
	return address & stripeMask
}

// Entry returns the stripe's lock entry. No bounds checking beyond the mask
// applied by StripeIndex.
func (t *Table) Entry(index uintptr) *LockEntry {
	return &t.entries[index&stripeMask]
}

// StripeHistogram is a diagnostic-only helper: it rehashes a sample of
// addresses with murmur3 (the way go-block-cache rehashes (fileNum,key)
// pairs before picking a shard) and buckets the result mod Size. The
// buckets are murmur3 buckets, not the stripes StripeIndex assigns, so the
// histogram does not show how addresses cluster under address&(N-1). It is
// never used on the ReadWord/WriteWord hot path and never changes which
// stripe an address maps to.
func StripeHistogram(addresses []uintptr) map[uint32]int {
	hist := make(map[uint32]int, len(addresses))
	var buf [8]byte
	for _, a := range addresses {
		binary.LittleEndian.PutUint64(buf[:], uint64(a))
		h := murmur3.Sum32(buf[:]) & uint32(Size-1)
		hist[h]++
	}
	return hist
}
