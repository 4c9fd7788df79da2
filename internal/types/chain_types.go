// Package types contains shared type definitions used across multiple packages
package types

import (
	"fmt"
	"strings"
)

// Address identifies an account or contract on the host chain
type Address string

// IsZero reports whether the address is empty
func (a Address) IsZero() bool {
	return strings.TrimSpace(string(a)) == ""
}

func (a Address) String() string { return string(a) }

// Moment is a point in time, as given by the block time of the host
type Moment uint64

// Duration is a number of moments
type Duration uint64

// Day is the number of moments in 24 hours
const Day Duration = 86400

// Add returns the moment d after m, saturating at the maximum moment
func (m Moment) Add(d Duration) Moment {
	sum := uint64(m) + uint64(d)
	if sum < uint64(m) {
		return Moment(^uint64(0))
	}
	return Moment(sum)
}

// Since returns m - earlier, or zero when earlier is after m
func (m Moment) Since(earlier Moment) Duration {
	if earlier >= m {
		return 0
	}
	return Duration(m - earlier)
}

// SatSub subtracts o from d, stopping at zero
func (d Duration) SatSub(o Duration) Duration {
	if o >= d {
		return 0
	}
	return d - o
}

// ContractLink points at a deployed contract instance
type ContractLink struct {
	Address  Address `json:"address" yaml:"address"`
	CodeHash string  `json:"code_hash" yaml:"code_hash"`
}

// IsZero reports whether the link is unset
func (l ContractLink) IsZero() bool {
	return l.Address.IsZero()
}

// Equal compares both address and code hash
func (l ContractLink) Equal(o ContractLink) bool {
	return l.Address == o.Address && l.CodeHash == o.CodeHash
}

func (l ContractLink) String() string {
	if l.CodeHash == "" {
		return string(l.Address)
	}
	return fmt.Sprintf("%s#%s", l.Address, l.CodeHash)
}

// CloseSeal records when and why a pool was closed
type CloseSeal struct {
	Time   Moment `json:"time"`
	Reason string `json:"reason"`
}

// Env carries the per-transaction environment: one block time and the sender
type Env struct {
	Time   Moment  `json:"time"`
	Sender Address `json:"sender"`
}

// Log is a key/value attribute attached to a transaction response
type Log struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}
