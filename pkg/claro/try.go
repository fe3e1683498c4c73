package claro

import (
	"context"
)

// execTry runs a TRY/EXCEPT/FINALLY region. A recoverable error in the
// try body abandons its remainder and runs the except body; the
// finally body runs unconditionally afterwards, whatever happened.
// Errors raised by the except or finally bodies themselves propagate.
func (b *Interp) execTry(ctx context.Context, fr *frame, idx int) (outcome, error) {
	r, err := splitTry(fr.lines, idx)
	if err != nil {
		return outcome{}, err
	}

	sig, tryErr := b.runBody(ctx, fr, r.tryStart, r.tryEnd)
	if tryErr != nil {
		if !IsRecoverable(tryErr) {
			// Still owe the finally body before propagating.
			if fsig, ferr := b.runBody(ctx, fr, r.finallyStart, r.finallyEnd); ferr != nil {
				return outcome{}, ferr
			} else if fsig != sigNone {
				sig = fsig
			}
			return outcome{}, tryErr
		}
		claroDebugLog("try region recovered: %v", tryErr)
		sig, err = b.runBody(ctx, fr, r.exceptStart, r.exceptEnd)
		if err != nil {
			// An except body failing is not recovered by its own TRY.
			if _, ferr := b.runBody(ctx, fr, r.finallyStart, r.finallyEnd); ferr != nil {
				return outcome{}, ferr
			}
			return outcome{}, err
		}
	}

	fsig, ferr := b.runBody(ctx, fr, r.finallyStart, r.finallyEnd)
	if ferr != nil {
		return outcome{}, ferr
	}
	if fsig != sigNone {
		sig = fsig
	}

	// Break/continue/return raised inside the region unwind past it
	// once the finally body has run.
	return outcome{next: r.endIdx + 1, signal: sig}, nil
}
