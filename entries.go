package stm

import "github.com/nlane/go-stm/locktable"

// readSetEntry is a (stripe_index, observed_version) pair, per §3.
// Duplicate stripes keep the version observed on first insertion —
// ReadWord only creates an entry for a stripe not already in the set, so
// Version is never overwritten once created.
type readSetEntry struct {
	index   uintptr
	Version locktable.Version
}

func (r readSetEntry) Key() uintptr { return r.index }

func newReadSetEntry(index uintptr) readSetEntry {
	return readSetEntry{index: index}
}

// writeSetEntry is a stripe this transaction holds the write lock for.
type writeSetEntry struct {
	index uintptr
}

func (w writeSetEntry) Key() uintptr { return w.index }

func newWriteSetEntry(index uintptr) writeSetEntry {
	return writeSetEntry{index: index}
}

// writeDataEntry buffers a pending write to a single address. Once
// created it always holds a full 64-bit word plus a mask that is
// effectively all-ones: WriteWord premerges any partial mask against the
// current memory contents the first time an address is written (see
// engine.go), so every later Extend only ever widens an already-full
// word.
type writeDataEntry struct {
	address uintptr
	Data    uint64
	Mask    uint64
}

func (w writeDataEntry) Key() uintptr { return w.address }

func newWriteDataEntry(address uintptr) writeDataEntry {
	return writeDataEntry{address: address}
}

// extend merges a new (data, mask) write into an existing buffered
// write: new-mask bits override old bits within the overlap, masks
// union. Per §3's write_data merge rule and §4.6.3 step 2.
func (w *writeDataEntry) extend(data, mask uint64) {
	w.Data = (w.Data &^ mask) | (data & mask)
	w.Mask |= mask
}
