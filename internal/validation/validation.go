// Package validation checks the fields of incoming transactions before they
// reach the engine.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/sirupsen/logrus"

	"github.com/sbellem/SiennaNetwork/internal/fixed"
	"github.com/sbellem/SiennaNetwork/internal/rewards"
	"github.com/sbellem/SiennaNetwork/internal/types"
)

// ErrInvalid is matched by every validation failure
var ErrInvalid = errors.New("invalid transaction")

// ValidationOptions holds the limits applied to transaction fields
type ValidationOptions struct {
	// MaxAddressLength bounds addresses and token links
	MaxAddressLength int

	// MinViewingKeyLength and MaxViewingKeyLength bound viewing keys
	MinViewingKeyLength int
	MaxViewingKeyLength int

	// MaxReasonLength bounds the closing reason of a pool
	MaxReasonLength int

	// MaxBonding bounds configured bonding periods
	MaxBonding types.Duration
}

// DefaultValidationOptions returns sensible defaults for validation
func DefaultValidationOptions() ValidationOptions {
	return ValidationOptions{
		MaxAddressLength:    128,
		MinViewingKeyLength: 1,
		MaxViewingKeyLength: 256,
		MaxReasonLength:     512,
		MaxBonding:          types.Day * 365,
	}
}

// FieldError describes one rejected field
type FieldError struct {
	Field   string `json:"field"`
	Problem string `json:"problem"`
}

// Errors is the list of rejected fields of one transaction
type Errors []FieldError

func (e Errors) Error() string {
	parts := make([]string, len(e))
	for i, f := range e {
		parts[i] = f.Field + ": " + f.Problem
	}
	return fmt.Sprintf("%s: %s", ErrInvalid, strings.Join(parts, "; "))
}

func (e Errors) Unwrap() error { return ErrInvalid }

// Validator accumulates field errors
type Validator struct {
	opts ValidationOptions
	errs Errors
}

// New creates a Validator with opts
func New(opts ValidationOptions) *Validator {
	return &Validator{opts: opts}
}

// Require records problem for field unless ok
func (v *Validator) Require(ok bool, field, problem string) {
	if !ok {
		logrus.WithFields(logrus.Fields{"field": field, "problem": problem}).Debug("Rejected transaction field")
		v.errs = append(v.errs, FieldError{Field: field, Problem: problem})
	}
}

// Address checks a required address
func (v *Validator) Address(field string, a types.Address) {
	if a.IsZero() {
		v.Require(false, field, "required")
		return
	}
	v.Require(len(a) <= v.opts.MaxAddressLength, field, "too long")
	v.Require(printable(string(a)), field, "must be printable without spaces")
}

// OptionalAddress checks an address that may be empty
func (v *Validator) OptionalAddress(field string, a types.Address) {
	if !a.IsZero() {
		v.Address(field, a)
	}
}

// Link checks a contract link; a nil link is only accepted when optional
func (v *Validator) Link(field string, l *types.ContractLink, required bool) {
	if l == nil {
		v.Require(!required, field, "required")
		return
	}
	v.Address(field+".address", l.Address)
	v.Require(len(l.CodeHash) <= v.opts.MaxAddressLength, field+".code_hash", "too long")
}

// Amount checks a required non-zero amount
func (v *Validator) Amount(field string, a *fixed.Amount) {
	v.Require(a != nil && !a.IsZero(), field, "must be a positive amount")
}

// ViewingKey checks a viewing key
func (v *Validator) ViewingKey(field, key string) {
	v.Require(len(key) >= v.opts.MinViewingKeyLength, field, "too short")
	v.Require(len(key) <= v.opts.MaxViewingKeyLength, field, "too long")
}

// Reason checks a free-text reason
func (v *Validator) Reason(field, reason string) {
	v.Require(len(reason) <= v.opts.MaxReasonLength, field, "too long")
}

// PoolID checks a pool id; empty ids are accepted when optional
func (v *Validator) PoolID(field, id string, required bool) {
	if id == "" {
		v.Require(!required, field, "required")
		return
	}
	v.Require(rewards.ValidPoolID(id), field, "must match "+`[A-Za-z0-9][A-Za-z0-9_.:-]*`)
}

// Bonding checks an optional bonding period
func (v *Validator) Bonding(field string, d *types.Duration) {
	if d != nil {
		v.Require(*d <= v.opts.MaxBonding, field, "exceeds maximum bonding period")
	}
}

// Err returns the accumulated errors, or nil
func (v *Validator) Err() error {
	if len(v.errs) == 0 {
		return nil
	}
	return v.errs
}

func printable(s string) bool {
	for _, r := range s {
		if !unicode.IsPrint(r) || unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
