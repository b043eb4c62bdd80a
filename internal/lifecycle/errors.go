package lifecycle

import "errors"

// Failure taxonomy for engine operations. Callers discriminate with
// errors.Is and translate into user-facing messages; only
// ErrStorageUnavailable is safe to retry.
var (
	// ErrNotFound means the orderId does not exist
	ErrNotFound = errors.New("order not found")

	// ErrInvalidState means the operation is not valid for the order's
	// current lifecycle state
	ErrInvalidState = errors.New("operation not valid in current order state")

	// ErrInvalidTransition means the requested status change skips or
	// reverses lifecycle steps
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrRefundWindowExpired means more than the refund window has passed
	// since delivery confirmation
	ErrRefundWindowExpired = errors.New("refund window expired")

	// ErrRefundAlreadyExists means a refund request is already pending or
	// approved for the order
	ErrRefundAlreadyExists = errors.New("refund already requested")

	// ErrInvalidInput means a malformed or missing argument (account
	// number, payout method, proof photo, cancel reason)
	ErrInvalidInput = errors.New("invalid input")

	// ErrStorageUnavailable means a transient store failure; the operation
	// did not apply and is safe to retry
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrDuplicateOrderID is returned by stores on an orderId uniqueness
	// conflict; Create regenerates the id and retries
	ErrDuplicateOrderID = errors.New("duplicate order id")
)
