package settlement

import "errors"

// Service errors
var (
	ErrInvalidBatchState  = errors.New("batch is not modifiable in its current state")
	ErrBatchProcessing    = errors.New("batch is already processing")
	ErrBatchNotResumable  = errors.New("batch is not resumable")
	ErrWrongMerchant      = errors.New("device belongs to a different merchant")
	ErrSchedulingRejected = errors.New("worker pool rejected the batch job")
)
