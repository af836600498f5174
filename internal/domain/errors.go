package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidTimezone     = errors.New("invalid timezone")
	ErrInvalidSchedule     = errors.New("invalid schedule")
	ErrEmptyBatch          = errors.New("batch has no usable prompts")
	ErrBatchTooLarge       = errors.New("batch exceeds prompt limit")
	ErrBatchNotCancellable = errors.New("batch is not cancellable")
	ErrBatchNotDeletable   = errors.New("batch is not deletable")
	ErrProviderFailure     = errors.New("provider failure")
)
