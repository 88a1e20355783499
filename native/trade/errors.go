package trade

import "errors"

// Sentinel errors exposed to callers. Every engine operation either succeeds
// with its documented effect or fails with one of these (or an engine wiring
// error) and no observable state change.
var (
	// ErrUnauthorized means the caller lacks the capability the operation
	// requires (configurator-only, trader-only, or configurator-or-trader).
	ErrUnauthorized = errors.New("trade: caller not authorized")
	// ErrInvalidState means the operation is not permitted in the trade's
	// current phase.
	ErrInvalidState = errors.New("trade: operation not allowed in current state")
	// ErrLengthMismatch means paired configuration lists differ in length.
	ErrLengthMismatch = errors.New("trade: configuration lists differ in length")
	// ErrInsufficientBalance means a native withdrawal exceeds the caller's
	// recorded side balance.
	ErrInsufficientBalance = errors.New("trade: insufficient native balance")
	// ErrExternalCall wraps a rejected or misbehaving asset-registry call.
	ErrExternalCall = errors.New("trade: registry call failed")
	// ErrTradeNotFound means no trade exists under the given identifier.
	ErrTradeNotFound = errors.New("trade engine: trade not found")
)

var (
	errNilState   = errors.New("trade engine: state not configured")
	errNilGateway = errors.New("trade engine: gateway not configured")
)
