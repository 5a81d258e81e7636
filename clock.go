package stm

import (
	"sync"
	"sync/atomic"

	"github.com/nlane/go-stm/locktable"
)

// globalVersion and greedyVersion are process-wide: every Engine shares
// them. Grounded on go-adaptive-rate-limiter/token_bucket.go's pattern of
// wrapping a raw atomic field behind small typed accessor methods.
var (
	globalVersion atomic.Uint64
	greedyVersion atomic.Uint64

	sharedTable    *locktable.Table
	sharedTableInit sync.Once
)

// initSharedTable is the one-shot initializer §9 requires: "implementers
// should ensure thread_init is the only entry point that can observe the
// table; embed the one-shot initializer inside it." Grounded on
// original_source/src/transactional/transaction_engine.cpp's
// std::call_once(init_flag, InitSupport).
func initSharedTable() *locktable.Table {
	sharedTableInit.Do(func() {
		sharedTable = locktable.NewTable()
	})
	return sharedTable
}

// currentGlobalVersion reads the global clock with acquire semantics.
func currentGlobalVersion() locktable.Version {
	return globalVersion.Load()
}

// fetchAndIncrementGlobal atomically increments the global clock and
// returns the new (post-increment) value, per §4.1.
func fetchAndIncrementGlobal() locktable.Version {
	return globalVersion.Add(1)
}

// fetchAndIncrementGreedy atomically increments the greedy clock and
// returns the pre-increment value, used as a strictly-ordered priority
// timestamp per §4.1 and §4.4.
func fetchAndIncrementGreedy() uint64 {
	return greedyVersion.Add(1) - 1
}
