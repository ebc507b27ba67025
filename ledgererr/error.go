// Package ledgererr implements the consensus-core error taxonomy.
//
// Shaped after the teacher's errors.Error (Code/Message/WrappedErr/Data,
// Error()/Is()/As()/Unwrap()) but with Code backed by a plain ERR enum
// instead of a generated protobuf code, since the ledger core has no
// gRPC boundary of its own.
package ledgererr

import (
	"errors"
	"fmt"
)

// ERR enumerates the consensus-core error kinds from spec §7.
type ERR int

const (
	ERR_UNKNOWN ERR = iota
	ERR_INVALID_FORMAT
	ERR_BAD_SIGNATURE
	ERR_EXPIRED
	ERR_REPLAY_DETECTED
	ERR_NONCE_GAP
	ERR_NONCE_REPLAY
	ERR_INSUFFICIENT_FUNDS
	ERR_DOUBLE_SPEND
	ERR_FEE_TOO_LOW
	ERR_UNAUTHORIZED
	ERR_CONFLICT
	ERR_INTEGRITY_FAILURE
	ERR_STATE_CORRUPTION
)

func (c ERR) String() string {
	switch c {
	case ERR_INVALID_FORMAT:
		return "InvalidFormat"
	case ERR_BAD_SIGNATURE:
		return "BadSignature"
	case ERR_EXPIRED:
		return "Expired"
	case ERR_REPLAY_DETECTED:
		return "ReplayDetected"
	case ERR_NONCE_GAP:
		return "NonceGap"
	case ERR_NONCE_REPLAY:
		return "NonceReplay"
	case ERR_INSUFFICIENT_FUNDS:
		return "InsufficientFunds"
	case ERR_DOUBLE_SPEND:
		return "DoubleSpend"
	case ERR_FEE_TOO_LOW:
		return "FeeTooLow"
	case ERR_UNAUTHORIZED:
		return "Unauthorized"
	case ERR_CONFLICT:
		return "Conflict"
	case ERR_INTEGRITY_FAILURE:
		return "IntegrityFailure"
	case ERR_STATE_CORRUPTION:
		return "StateCorruption"
	default:
		return "Unknown"
	}
}

// Error is the consensus-core error value. Every operation that can be
// rejected by a rule in spec.md §7 returns one of these (or nil).
type Error struct {
	Code       ERR
	Message    string
	WrappedErr error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.WrappedErr == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.WrappedErr)
}

// Is reports whether target carries the same Code, unwrapping chains of
// *Error along the way.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	var other *Error
	if errors.As(target, &other) {
		if e.Code == other.Code {
			return true
		}
	}
	return false
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.WrappedErr
}

func newErr(code ERR, msg string, wrapped ...error) *Error {
	var w error
	if len(wrapped) > 0 {
		w = wrapped[0]
	}
	return &Error{Code: code, Message: msg, WrappedErr: w}
}

func NewInvalidFormatError(msg string, wrapped ...error) *Error {
	return newErr(ERR_INVALID_FORMAT, msg, wrapped...)
}

func NewBadSignatureError(msg string, wrapped ...error) *Error {
	return newErr(ERR_BAD_SIGNATURE, msg, wrapped...)
}

func NewExpiredError(msg string, wrapped ...error) *Error {
	return newErr(ERR_EXPIRED, msg, wrapped...)
}

func NewReplayDetectedError(msg string, wrapped ...error) *Error {
	return newErr(ERR_REPLAY_DETECTED, msg, wrapped...)
}

func NewNonceGapError(msg string, wrapped ...error) *Error {
	return newErr(ERR_NONCE_GAP, msg, wrapped...)
}

func NewNonceReplayError(msg string, wrapped ...error) *Error {
	return newErr(ERR_NONCE_REPLAY, msg, wrapped...)
}

func NewInsufficientFundsError(msg string, wrapped ...error) *Error {
	return newErr(ERR_INSUFFICIENT_FUNDS, msg, wrapped...)
}

func NewDoubleSpendError(msg string, wrapped ...error) *Error {
	return newErr(ERR_DOUBLE_SPEND, msg, wrapped...)
}

func NewFeeTooLowError(msg string, wrapped ...error) *Error {
	return newErr(ERR_FEE_TOO_LOW, msg, wrapped...)
}

func NewUnauthorizedError(msg string, wrapped ...error) *Error {
	return newErr(ERR_UNAUTHORIZED, msg, wrapped...)
}

func NewConflictError(msg string, wrapped ...error) *Error {
	return newErr(ERR_CONFLICT, msg, wrapped...)
}

func NewIntegrityFailureError(msg string, wrapped ...error) *Error {
	return newErr(ERR_INTEGRITY_FAILURE, msg, wrapped...)
}

func NewStateCorruptionError(msg string, wrapped ...error) *Error {
	return newErr(ERR_STATE_CORRUPTION, msg, wrapped...)
}

// Is reports whether err (or something it wraps) carries code.
func Is(err error, code ERR) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
