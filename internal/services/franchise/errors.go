package franchise

import "errors"

// Service errors
var (
	ErrNotFranchiseMember = errors.New("merchant does not belong to the franchise")
	ErrNoMerchants        = errors.New("franchise batch requires at least one merchant")
	ErrUnknownMerchant    = errors.New("merchant is not part of the franchise batch")
	ErrBatchNotStartable  = errors.New("franchise batch cannot be started in its current state")
	ErrSchedulingRejected = errors.New("worker pool rejected the franchise batch job")
)
