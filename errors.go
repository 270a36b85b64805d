package admission

import "errors"

var (
	// ErrGateNotReady is returned by administrative operations on a nil or
	// unbuilt Gate. Allow and Score never return it; they fail open instead.
	ErrGateNotReady = errors.New("admission gate not ready")
	// ErrAlreadyBuilt is returned when Build is called twice on one Builder.
	ErrAlreadyBuilt = errors.New("builder already built")
	// ErrInvalidConfig wraps every configuration validation failure.
	ErrInvalidConfig = errors.New("invalid admission config")
	// ErrFraudReportEmpty is returned when a fraud report names neither a
	// device fingerprint nor an IP address.
	ErrFraudReportEmpty = errors.New("fraud report names no entity")
	// ErrReceiptsDisabled is returned when no receipt signing key is configured.
	ErrReceiptsDisabled = errors.New("admission receipts disabled")
	// ErrReceiptRefused is returned when a receipt is requested for a
	// high-risk attempt.
	ErrReceiptRefused = errors.New("receipt refused for high-risk attempt")
	// ErrReceiptInvalid is returned for receipts that fail signature or
	// claim validation.
	ErrReceiptInvalid = errors.New("invalid admission receipt")
)
