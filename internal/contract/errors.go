package contract

import (
	"errors"

	"github.com/sbellem/SiennaNetwork/internal/auth"
	"github.com/sbellem/SiennaNetwork/internal/circuitbreaker"
	"github.com/sbellem/SiennaNetwork/internal/fixed"
	"github.com/sbellem/SiennaNetwork/internal/registry"
	"github.com/sbellem/SiennaNetwork/internal/rewards"
	"github.com/sbellem/SiennaNetwork/internal/token"
	"github.com/sbellem/SiennaNetwork/internal/validation"
)

// Class sorts errors by who can act on them
type Class int

// Error classes
const (
	ClassNone Class = iota
	// ClassInvalid is a malformed transaction or query
	ClassInvalid
	// ClassUnauthorized is a wrong sender or viewing key
	ClassUnauthorized
	// ClassNotFound is an unknown pool
	ClassNotFound
	// ClassRejected is a well-formed request the current state refuses
	ClassRejected
	// ClassUnavailable is a dependency failing fast
	ClassUnavailable
	// ClassInternal is corrupted accounting or a storage failure
	ClassInternal
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "ok"
	case ClassInvalid:
		return "invalid"
	case ClassUnauthorized:
		return "unauthorized"
	case ClassNotFound:
		return "not_found"
	case ClassRejected:
		return "rejected"
	case ClassUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

var rejections = []error{
	rewards.ErrTimeTravel,
	rewards.ErrInsufficientStake,
	rewards.ErrStillBonding,
	rewards.ErrAgeThreshold,
	rewards.ErrPoolEmpty,
	rewards.ErrNothingToClaim,
	rewards.ErrPoolClosed,
	rewards.ErrPoolExists,
	rewards.ErrNotConfigured,
	token.ErrInsufficientFunds,
	token.ErrInsufficientAllowance,
	token.ErrAllowanceExpired,
}

// Classify maps an error to its class. Inconsistencies and overflows are
// internal even when wrapped together with a user-facing error.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, rewards.ErrInternalInconsistency), errors.Is(err, fixed.ErrOverflow):
		return ClassInternal
	case errors.Is(err, ErrReceiptMismatch):
		return ClassInternal
	case errors.Is(err, validation.ErrInvalid),
		errors.Is(err, rewards.ErrInvalidAmount),
		errors.Is(err, rewards.ErrInvalidPool),
		errors.Is(err, token.ErrUnknownMessage):
		return ClassInvalid
	case errors.Is(err, auth.ErrUnauthorized),
		errors.Is(err, auth.ErrMissingViewingKey),
		errors.Is(err, token.ErrInvalidViewingKey),
		errors.Is(err, registry.ErrNoPendingRegistration):
		return ClassUnauthorized
	case errors.Is(err, rewards.ErrUnknownPool), errors.Is(err, ErrReceiptNotFound):
		return ClassNotFound
	case errors.Is(err, circuitbreaker.ErrOpen):
		return ClassUnavailable
	}
	for _, r := range rejections {
		if errors.Is(err, r) {
			return ClassRejected
		}
	}
	return ClassInternal
}
