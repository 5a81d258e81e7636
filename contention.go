package stm

import "time"

// Contention manager policy (§4.4), kept as methods on *Engine rather
// than a standalone type: the original keeps CmOnStart/CmOnRestart/
// CmOnWrite/CmShouldAbort as private TransactionEngine members, not a
// separate class, and SPEC_FULL.md's package layout follows that —
// this is a policy the engine applies to itself, not an object with its
// own identity.

// cmOnStart resets contention-manager state at the start of a fresh
// read-write transaction (§4.4 step 1): a transaction begins "light"
// and holds no priority.
func (e *Engine) cmOnStart() {
	e.cmTS.Store(infiniteTS)
	e.cmBackoff = 0
}

// cmOnRestart implements the bounded exponential backoff of §4.4 step
// 2: add jitter in [0,15]ns, sleep, then double the backoff budget.
func (e *Engine) cmOnRestart() {
	jitter := e.rng.Next() % 16
	e.cmBackoff += jitter
	if e.cmBackoff > 0 {
		time.Sleep(time.Duration(e.cmBackoff) * time.Nanosecond)
	}
	e.cmBackoff *= 2
}

// cmOnWrite implements §4.4 step 3: immediately after a successful write
// acquisition, a transaction that hasn't yet claimed priority and whose
// write set has reached the contention threshold claims priority by
// drawing a fresh greedy-clock timestamp. Lower timestamp = higher
// priority.
func (e *Engine) cmOnWrite() {
	if e.cmTS.Load() == infiniteTS && e.writeSet.Len() >= e.cfg.contentionThreshold {
		e.cmTS.Store(fetchAndIncrementGreedy())
	}
}

// cmShouldAbort implements §4.4 step 4: called by a transaction that is
// about to spin on a stripe held by ownerSlot. Returns true if this
// transaction should yield (abort) instead of continuing to spin.
func (e *Engine) cmShouldAbort(ownerSlot uint64) bool {
	if e.cmTS.Load() == infiniteTS {
		// No priority claimed: yield to any holder.
		return true
	}

	holder := resolveEngine(ownerSlot)
	if holder == nil {
		// The holder has already released and is no longer resolvable;
		// treat as transient and let the caller re-read the lock word.
		return false
	}

	holderTS := holder.cmTS.Load()
	if holderTS < e.cmTS.Load() {
		// Holder has higher priority (lower timestamp): we yield.
		return true
	}

	// We have priority; mark the holder for cooperative abort and keep
	// spinning ourselves. This completes the feedback loop the base
	// protocol leaves as a placeholder (§9): markAbort sets the
	// holder's flag, and ReadWord/WriteWord check their own flag at the
	// top of every spin iteration.
	holder.markAbort()
	return false
}
