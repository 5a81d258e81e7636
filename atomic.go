package stm

import "errors"

// Atomic runs f as a read-write transaction on e, retrying on
// recoverable TransactionErrors per §4.7's retry loop. If e already has
// a read-write transaction running, f is flattened into it (no nested
// Begin/Commit — only the outermost frame commits). If e has a
// read-only transaction running, this returns ErrIncompatibleNesting: a
// read-only transaction may not contain a read-write one.
func Atomic(e *Engine, f func() error) error {
	switch e.IsReadWriteCompatible() {
	case PromotionIncompatible:
		return ErrIncompatibleNesting
	case PromotionCompatible:
		return f()
	default:
		return runRetryLoop(e, f, e.BeginReadWrite)
	}
}

// AtomicRead runs f as a read-only transaction on e, retrying on
// recoverable TransactionErrors. Flattens into either an already-running
// read-write or read-only transaction — both promotion types are
// compatible with a nested read-only call.
func AtomicRead(e *Engine, f func() error) error {
	switch e.IsReadOnlyCompatible() {
	case PromotionCompatible:
		return f()
	default:
		return runRetryLoop(e, f, e.BeginReadOnly)
	}
}

// runRetryLoop implements §4.7's non-nested retry loop for both Atomic
// and AtomicRead, parameterized over which Begin* starts/restarts the
// transaction.
func runRetryLoop(e *Engine, f func() error, begin func() error) error {
	for {
		if err := begin(); err != nil {
			return err
		}

		if err := f(); err != nil {
			if isRecoverable(err) {
				continue
			}
			e.End()
			return err
		}

		if err := e.Commit(); err != nil {
			if isRecoverable(err) {
				continue
			}
			e.End()
			return err
		}
		return nil
	}
}

func isRecoverable(err error) bool {
	var txErr *TransactionError
	if errors.As(err, &txErr) {
		return txErr.Recoverable()
	}
	return false
}
