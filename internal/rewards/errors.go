package rewards

import (
	"errors"
	"fmt"

	"github.com/sbellem/SiennaNetwork/internal/auth"
	"github.com/sbellem/SiennaNetwork/internal/fixed"
	"github.com/sbellem/SiennaNetwork/internal/types"
)

var (
	// ErrTimeTravel is returned when the given moment precedes a stored timestamp
	ErrTimeTravel = errors.New("no time travel")
	// ErrInsufficientStake is returned when retrieving more than is locked
	ErrInsufficientStake = errors.New("insufficient stake")
	// ErrInternalInconsistency signals corrupted accounting, never bad input
	ErrInternalInconsistency = errors.New("internal inconsistency")
	// ErrStillBonding is returned when claiming before the bonding period ends
	ErrStillBonding = errors.New("still bonding")
	// ErrAgeThreshold is returned when claiming before the account is old enough
	ErrAgeThreshold = errors.New("below age threshold")
	// ErrPoolEmpty is returned when claiming from a pool with no budget
	ErrPoolEmpty = errors.New("pool is empty")
	// ErrNothingToClaim is returned when the account has earned nothing
	ErrNothingToClaim = errors.New("nothing to claim")
	// ErrMissingViewingKey is returned for account queries without a key
	ErrMissingViewingKey = auth.ErrMissingViewingKey
	// ErrInvalidAmount is returned for zero amounts
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrPoolClosed is returned when closing an already closed pool
	ErrPoolClosed = errors.New("pool closed")
	// ErrUnknownPool is returned for pool ids that were never created
	ErrUnknownPool = errors.New("unknown pool")
	// ErrPoolExists is returned when creating a pool id twice
	ErrPoolExists = errors.New("pool exists")
	// ErrInvalidPool is returned for malformed pool ids or settings
	ErrInvalidPool = errors.New("invalid pool")
	// ErrNotConfigured is returned when a required pool setting is missing
	ErrNotConfigured = errors.New("pool not configured")
)

// StakeError reports a retrieve larger than the account's stake
type StakeError struct {
	Staked    fixed.Amount
	Requested fixed.Amount
}

func (e *StakeError) Error() string {
	return fmt.Sprintf("%s: staked %s, requested %s", ErrInsufficientStake, e.Staked, e.Requested)
}

func (e *StakeError) Unwrap() error { return ErrInsufficientStake }

// BondingError reports a claim rejected until Remaining moments pass.
// Reason is ErrStillBonding or ErrAgeThreshold.
type BondingError struct {
	Reason    error
	Remaining types.Duration
}

func (e *BondingError) Error() string {
	return fmt.Sprintf("%s: %d remaining", e.Reason, e.Remaining)
}

func (e *BondingError) Unwrap() error { return e.Reason }

func inconsistency(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInternalInconsistency, fmt.Sprintf(format, args...))
}
