package stm

import "fmt"

// Kind classifies a TransactionError the way the base protocol's error
// table does, so callers that care can switch on it instead of string
// matching. It is not required for the retry loop, which only looks at
// Recoverable.
type Kind int

const (
	// KindReadInconsistent: a read observed a version newer than the
	// transaction's snapshot and the follow-up Extend failed.
	KindReadInconsistent Kind = iota
	// KindReadSetInvalid: commit-time revalidation failed.
	KindReadSetInvalid
	// KindWriteContention: the contention manager elected to yield.
	KindWriteContention
	// KindCapacityExhausted: a fixed-capacity set is full.
	KindCapacityExhausted
	// KindIncompatibleNesting: a read-write Atomic was requested inside a
	// running read-only transaction.
	KindIncompatibleNesting
	// KindUninitialized: a transactional call on an engine that never ran
	// ThreadInit, or a ReadWord/WriteWord/Commit call on an engine with no
	// transaction of the required kind running.
	KindUninitialized
	// KindVersionSpaceExhausted: the global clock is within reach of its
	// reserved upper bound (see MaxVersion); resolves §9's version
	// overflow open question as a documented, non-recoverable bound.
	KindVersionSpaceExhausted
)

func (k Kind) String() string {
	switch k {
	case KindReadInconsistent:
		return "read inconsistent state"
	case KindReadSetInvalid:
		return "read set invalid at commit"
	case KindWriteContention:
		return "write contention abort"
	case KindCapacityExhausted:
		return "capacity exhausted"
	case KindIncompatibleNesting:
		return "incompatible nesting"
	case KindUninitialized:
		return "uninitialized engine"
	case KindVersionSpaceExhausted:
		return "version space exhausted"
	default:
		return "unknown"
	}
}

// TransactionError is the single error type the engine raises. It embeds
// the underlying cause (often nil — the kind and message are usually
// enough) and carries the recoverable/non-recoverable classification the
// retry loop in Atomic/AtomicRead switches on.
//
// Grounded on go-sstable/common's CustomError: a named struct embedding
// error plus a classification field, instead of bare errors.New values.
type TransactionError struct {
	kind        Kind
	recoverable bool
	msg         string
	cause       error
}

func newTransactionError(kind Kind, recoverable bool, msg string, cause error) *TransactionError {
	return &TransactionError{kind: kind, recoverable: recoverable, msg: msg, cause: cause}
}

func (e *TransactionError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("stm: %s: %s: %v", e.kind, e.msg, e.cause)
	}
	return fmt.Sprintf("stm: %s: %s", e.kind, e.msg)
}

func (e *TransactionError) Unwrap() error { return e.cause }

// Kind returns the error table classification.
func (e *TransactionError) Kind() Kind { return e.kind }

// Recoverable reports whether Atomic/AtomicRead should transparently
// retry (true) or propagate to the caller after ending the transaction
// (false).
func (e *TransactionError) Recoverable() bool { return e.recoverable }

// Sentinel errors, errors.Is-comparable, matching go-block-cache's and
// go-hash-map's style of a small set of named package-level errors.
var (
	ErrUninitialized         = newTransactionError(KindUninitialized, false, "engine was not initialized with ThreadInit or has no suitable transaction running", nil)
	ErrIncompatibleNesting   = newTransactionError(KindIncompatibleNesting, false, "read-write transaction requested inside a running read-only transaction", nil)
	ErrCapacityExhausted     = newTransactionError(KindCapacityExhausted, false, "transaction set exceeded its fixed capacity", nil)
	ErrVersionSpaceExhausted = newTransactionError(KindVersionSpaceExhausted, false, "global version clock is near its reserved upper bound", nil)
)

func errReadInconsistent() *TransactionError {
	return newTransactionError(KindReadInconsistent, true, "read observed a version newer than the snapshot and extend failed", nil)
}

func errReadSetInvalid() *TransactionError {
	return newTransactionError(KindReadSetInvalid, true, "read set failed commit-time revalidation", nil)
}

func errWriteContention() *TransactionError {
	return newTransactionError(KindWriteContention, true, "yielded to a higher-priority stripe holder", nil)
}

func errAbortRequested() *TransactionError {
	return newTransactionError(KindWriteContention, true, "contention manager requested cooperative abort", nil)
}
