package pos

import "errors"

var (
	// ErrSaleCompletionInProgress is returned when a second completion of the
	// same sale is attempted while the first is still running.
	ErrSaleCompletionInProgress = errors.New("sale completion already in progress")

	// ErrSaleTotalsMismatch is returned when the declared totals do not match
	// what the item lines add up to. Nothing is written in that case.
	ErrSaleTotalsMismatch = errors.New("sale totals do not match item lines")

	// ErrSaleNotDraft is returned when completing a sale that is not in DRAFT
	// state, including one already completed by a concurrent caller.
	ErrSaleNotDraft = errors.New("sale is not in draft state")

	// ErrOutboxJobTerminal is returned when reserving an attempt on a job that
	// has already reached its SENT terminal state.
	ErrOutboxJobTerminal = errors.New("outbox job already sent")

	// ErrSchedulerDisposed is returned by drain requests made after Dispose.
	ErrSchedulerDisposed = errors.New("drain scheduler is disposed")
)
