package stm

import (
	"runtime"
	"sync/atomic"

	"github.com/nlane/go-stm/locktable"
	"github.com/nlane/go-stm/pooledlist"
)

// state mirrors §4.6.1's four-state machine.
type state uint8

const (
	stateUninitialized state = iota
	stateInitialized
	stateReadWriteRunning
	stateReadOnlyRunning
)

// PromotionState is the three-way answer IsReadWriteCompatible/
// IsReadOnlyCompatible give the Atomic/AtomicRead façade so it can
// decide whether to start a new transaction, flatten into the running
// one, or raise a non-recoverable nesting error. Kept as an exported
// type (not folded into a bool) per SPEC_FULL.md's supplemented
// features: a host integration layer may want to query compatibility
// before opening its own nested atomic block.
type PromotionState int

const (
	// PromotionNoRunning: no transaction is currently running on this
	// engine; a new one may be started.
	PromotionNoRunning PromotionState = iota
	// PromotionCompatible: the inner request can flatten into the
	// running transaction.
	PromotionCompatible
	// PromotionIncompatible: the inner request conflicts with the
	// running transaction's promotion type and must error.
	PromotionIncompatible
)

// Engine is the per-goroutine TransactionEngine. Callers obtain one with
// ThreadInit and keep it for the life of the goroutine — it is not safe
// for concurrent use from more than one goroutine, exactly as the base
// protocol's per-OS-thread engine is single-writer, single-reader.
type Engine struct {
	cfg   *config
	table *locktable.Table
	slot  uint64

	state           state
	snapshotVersion locktable.Version

	readSet   *pooledlist.List[uintptr, readSetEntry]
	writeSet  *pooledlist.List[uintptr, writeSetEntry]
	writeData *pooledlist.List[uintptr, writeDataEntry]

	// cmTS is read cross-goroutine by other engines' contention-manager
	// checks (see contention.go), so it is atomic even though only the
	// owning goroutine ever writes it.
	cmTS           atomic.Uint64
	cmBackoff      uint64
	abortRequested atomic.Bool

	rng RNG
}

// infiniteTS is the contention manager's "no priority claimed" sentinel
// (§4.4 step 1: cm_ts ← ∞).
const infiniteTS = ^uint64(0)

// jumpOffsetCounter hands out the thread-rank-dependent jump offset
// described in SPEC_FULL.md's supplemented features, capped at 256 the
// way the original source caps it.
var jumpOffsetCounter atomic.Uint32

// ThreadInit allocates a new Engine's fixed-capacity sets, binds it to
// the process-wide lock table (initializing the table itself on first
// call, via a sync.Once embedded in initSharedTable), and registers it
// in the owner arena. The returned Engine must be kept by the calling
// goroutine for as long as it runs transactions; it is not safe to share
// across goroutines.
func ThreadInit(opts ...Option) *Engine {
	cfg := applyOptions(opts)
	table := initSharedTable()

	e := &Engine{
		cfg:   cfg,
		table: table,
		state: stateInitialized,
	}
	e.readSet = pooledlist.New[uintptr, readSetEntry](cfg.setCapacity, newReadSetEntry)
	e.writeSet = pooledlist.New[uintptr, writeSetEntry](cfg.setCapacity, newWriteSetEntry)
	e.writeData = pooledlist.New[uintptr, writeDataEntry](cfg.setCapacity, newWriteDataEntry)
	e.cmTS.Store(infiniteTS)

	offset := jumpOffsetCounter.Add(1) & 0xFF
	e.rng = cfg.rngFactory(offset)

	e.slot = registerEngine(e)
	e.logDebug("engine initialized", "slot", e.slot, "jumpOffset", offset)
	return e
}

// IsReadWriteCompatible answers whether a read-write Atomic request can
// proceed: start fresh, flatten into the running transaction, or error.
func (e *Engine) IsReadWriteCompatible() PromotionState {
	switch e.state {
	case stateReadWriteRunning:
		return PromotionCompatible
	case stateReadOnlyRunning:
		return PromotionIncompatible
	default:
		return PromotionNoRunning
	}
}

// IsReadOnlyCompatible answers the same question for an AtomicRead
// request: both running promotion types flatten a nested read-only call.
func (e *Engine) IsReadOnlyCompatible() PromotionState {
	switch e.state {
	case stateReadWriteRunning, stateReadOnlyRunning:
		return PromotionCompatible
	default:
		return PromotionNoRunning
	}
}

// BeginReadWrite starts a fresh read-write transaction, or — if the
// engine is already running a read-write transaction — performs a
// restart: invokes the contention manager's backoff policy, then clears
// the sets and takes a new snapshot. A restart keeps the contention-
// manager timestamp and the doubled backoff budget; only a fresh start
// resets them (cmOnStart). Callers go through Atomic rather
// than calling this directly; Atomic is responsible for the nesting
// check (IsReadWriteCompatible) before ever reaching here.
func (e *Engine) BeginReadWrite() error {
	switch e.state {
	case stateUninitialized:
		return ErrUninitialized
	case stateReadWriteRunning:
		e.cmOnRestart()
	case stateInitialized:
		// fresh start, nothing to back off from
		e.cmOnStart()
	default:
		return ErrIncompatibleNesting
	}

	e.readSet.Clear()
	e.writeSet.Clear()
	e.writeData.Clear()
	e.abortRequested.Store(false)

	e.snapshotVersion = currentGlobalVersion()
	e.state = stateReadWriteRunning
	return nil
}

// BeginReadOnly starts (or restarts) a read-only transaction. Read-only
// transactions never touch the contention manager's write-priority
// machinery, but they do share its backoff policy on restart (an Extend
// failure is the only way a read-only transaction restarts).
func (e *Engine) BeginReadOnly() error {
	switch e.state {
	case stateUninitialized:
		return ErrUninitialized
	case stateReadOnlyRunning:
		e.cmOnRestart()
	case stateInitialized:
		// fresh start
	default:
		return ErrIncompatibleNesting
	}

	e.readSet.Clear()
	e.abortRequested.Store(false)

	e.snapshotVersion = currentGlobalVersion()
	e.state = stateReadOnlyRunning
	return nil
}

// ReadWord implements §4.6.2. Valid only while the engine is running a
// transaction (read-write or read-only).
func (e *Engine) ReadWord(address uintptr) (uint64, error) {
	if e.state != stateReadWriteRunning && e.state != stateReadOnlyRunning {
		return 0, ErrUninitialized
	}

	idx := locktable.StripeIndex(address)
	entry := e.table.Entry(idx)

	if owner, held := entry.Write.Owner(); held && owner == e.slot {
		if wd, ok := e.writeData.GetPtr(address); ok {
			return wd.Data, nil
		}
		// Stripe collision: we hold this stripe for a different address
		// we've already written, but never wrote this exact address.
		// Falling through to the ordinary optimistic read below is safe
		// — the ReadLock's commit bit is only set during our own
		// Commit, which hasn't started, so nothing about holding this
		// stripe's write lock changes the memory at `address` itself.
	}

	var v1 locktable.Version
	for {
		if e.abortRequested.Load() {
			e.Rollback()
			return 0, errAbortRequested()
		}
		v1 = entry.Read.Get()
		if locktable.IsCommitting(v1) {
			runtime.Gosched()
			continue
		}
		data := loadWord(address)
		v2 := entry.Read.Get()
		if v2 != v1 {
			continue
		}

		if !e.readSet.Contains(idx) {
			created, err := e.readSet.Create(idx)
			if err != nil {
				e.Rollback()
				return 0, ErrCapacityExhausted
			}
			created.Version = v1
		}

		if v1 > e.snapshotVersion {
			if !e.Extend() {
				e.Rollback()
				return 0, errReadInconsistent()
			}
		}
		return data, nil
	}
}

// WriteWord implements §4.6.3. Valid only while the engine is running a
// read-write transaction.
func (e *Engine) WriteWord(address uintptr, data, mask uint64) error {
	if e.state != stateReadWriteRunning {
		return ErrUninitialized
	}

	idx := locktable.StripeIndex(address)
	entry := e.table.Entry(idx)

	if owner, held := entry.Write.Owner(); held && owner == e.slot {
		if wd, ok := e.writeData.GetPtr(address); ok {
			wd.extend(data, mask)
			return nil
		}
		created, err := e.writeData.Create(address)
		if err != nil {
			e.Rollback()
			return ErrCapacityExhausted
		}
		created.Data, created.Mask = premergeWrite(address, data, mask)
		return nil
	}

	if e.writeSet.Len() >= e.writeSet.Capacity() || e.writeData.Len() >= e.writeData.Capacity() {
		e.Rollback()
		return ErrCapacityExhausted
	}

	for {
		if e.abortRequested.Load() {
			e.Rollback()
			return errAbortRequested()
		}
		if owner, held := entry.Write.Owner(); held {
			if e.cmShouldAbort(owner) {
				e.Rollback()
				return errWriteContention()
			}
			runtime.Gosched()
			continue
		}
		if entry.Write.TryLock(e.slot) {
			break
		}
	}

	if _, err := e.writeSet.Create(idx); err != nil {
		entry.Write.Unlock()
		e.Rollback()
		return ErrCapacityExhausted
	}

	if locktable.VersionOf(entry.Read.Get()) > e.snapshotVersion {
		if !e.Extend() {
			e.Rollback()
			return errReadInconsistent()
		}
	}

	wd, err := e.writeData.Create(address)
	if err != nil {
		e.Rollback()
		return ErrCapacityExhausted
	}
	wd.Data, wd.Mask = premergeWrite(address, data, mask)

	e.cmOnWrite()
	return nil
}

// premergeWrite folds unmasked bits from current memory into a pending
// write so the buffered entry always holds a full, self-consistent word
// — required for ReadWord's read-your-own-writes branch (§4.6.2 step 2),
// which returns the buffered Data verbatim with no further masking. This
// is safe to do unconditionally here because the caller already holds
// (or already holds, for the self-locked branch) the stripe's write
// lock, so no other transaction can publish to this address concurrently.
func premergeWrite(address uintptr, data, mask uint64) (uint64, uint64) {
	if mask == ^uint64(0) {
		return data, mask
	}
	cur := loadWord(address)
	return (data & mask) | (cur &^ mask), ^uint64(0)
}

// Extend implements §4.6.4: slide the snapshot forward without
// restarting, if the read set still validates against the current
// global version.
func (e *Engine) Extend() bool {
	vNew := currentGlobalVersion()
	if !e.validateReadSet() {
		return false
	}
	e.snapshotVersion = vNew
	return true
}

// validateReadSet implements §4.6.5.
func (e *Engine) validateReadSet() bool {
	for _, r := range e.readSet.All() {
		entry := e.table.Entry(r.index)
		cur := entry.Read.Get()
		if cur == r.Version {
			continue
		}
		if locktable.IsCommitting(cur) {
			if owner, held := entry.Write.Owner(); held && owner == e.slot {
				continue
			}
		}
		return false
	}
	return true
}

// Commit implements §4.6.6.
func (e *Engine) Commit() error {
	if e.state != stateReadWriteRunning && e.state != stateReadOnlyRunning {
		return ErrUninitialized
	}

	if e.state == stateReadOnlyRunning {
		e.clearSets()
		e.state = stateInitialized
		return nil
	}

	if e.writeSet.Empty() {
		e.clearSets()
		e.state = stateInitialized
		return nil
	}

	for _, w := range e.writeSet.All() {
		e.table.Entry(w.index).Read.Lock()
	}

	if currentGlobalVersion() >= locktable.MaxVersion {
		e.logError("global version clock near reserved upper bound")
		for _, w := range e.writeSet.All() {
			e.table.Entry(w.index).Read.Unlock()
		}
		e.Rollback()
		return ErrVersionSpaceExhausted
	}
	vNew := fetchAndIncrementGlobal()

	if vNew > e.snapshotVersion+1 {
		if !e.validateReadSet() {
			for _, w := range e.writeSet.All() {
				e.table.Entry(w.index).Read.Unlock()
			}
			e.Rollback()
			return errReadSetInvalid()
		}
	}

	for _, wd := range e.writeData.All() {
		storeWord(wd.address, (loadWord(wd.address)&^wd.Mask)|(wd.Data&wd.Mask))
	}

	for _, w := range e.writeSet.All() {
		entry := e.table.Entry(w.index)
		entry.Read.UnlockVersion(vNew)
		entry.Write.Unlock()
	}

	e.clearSets()
	e.state = stateInitialized
	return nil
}

// Rollback implements §4.6.7: release every held write lock and clear
// all three sets. Rollback does not change engine state — the caller
// (Atomic's retry loop) transitions to INITIALIZED via End or restarts
// via Begin*.
func (e *Engine) Rollback() {
	for _, w := range e.writeSet.All() {
		e.table.Entry(w.index).Write.Unlock()
	}
	e.clearSets()
}

// End transitions a running transaction back to INITIALIZED without
// committing. Used by Atomic/AtomicRead after a non-recoverable error or
// a non-transactional error from the caller's function.
func (e *Engine) End() {
	e.Rollback()
	if e.state == stateReadWriteRunning || e.state == stateReadOnlyRunning {
		e.state = stateInitialized
	}
}

func (e *Engine) clearSets() {
	e.readSet.Clear()
	e.writeSet.Clear()
	e.writeData.Clear()
}

// markAbort sets this engine's cooperative abort flag. Called by another
// engine's contention manager when it decides this engine should yield
// but keeps spinning itself (§4.4 step 4's "mark the holder to abort").
func (e *Engine) markAbort() {
	e.abortRequested.Store(true)
}

// Stats is additive introspection for hosts that want visibility into an
// engine's current transaction without coupling to internals, mirroring
// go-block-cache's GetStats()/GetInUsed().
type Stats struct {
	ReadSetSize      int
	WriteSetSize     int
	WriteDataSize    int
	CMBackoffNanos   uint64
	CMTimestamp      uint64
	SnapshotVersion  locktable.Version
}

// Stats snapshots the engine's current bookkeeping.
func (e *Engine) Stats() Stats {
	return Stats{
		ReadSetSize:     e.readSet.Len(),
		WriteSetSize:    e.writeSet.Len(),
		WriteDataSize:   e.writeData.Len(),
		CMBackoffNanos:  e.cmBackoff,
		CMTimestamp:     e.cmTS.Load(),
		SnapshotVersion: e.snapshotVersion,
	}
}

// NearVersionOverflow reports whether the global clock is close enough
// to locktable.MaxVersion that a host should consider it a warning sign
// (resolves §9's version-overflow open question as documented headroom
// rather than a re-keying pass; see DESIGN.md).
func (s Stats) NearVersionOverflow() bool {
	return s.SnapshotVersion > locktable.MaxVersion-locktable.MaxVersion/1000
}
