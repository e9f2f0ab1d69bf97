package tracker

import "errors"

var (
	ErrInvalidURL         = errors.New("invalid tracker url")
	ErrTimeout            = errors.New("tracker request timed out")
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
	ErrConnectionExpired  = errors.New("connection id expired")
	ErrTransport          = errors.New("transport error")
	ErrTrackerFailure     = errors.New("tracker returned an error")
	ErrTransactionInUse   = errors.New("transaction id already pending")
)
