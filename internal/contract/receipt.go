package contract

import (
	"encoding/json"
	"errors"
	"fmt"

	cid "github.com/ipfs/go-cid"
	mc "github.com/multiformats/go-multicodec"
	mh "github.com/multiformats/go-multihash"

	"github.com/sbellem/SiennaNetwork/internal/registry"
	"github.com/sbellem/SiennaNetwork/internal/security"
	"github.com/sbellem/SiennaNetwork/internal/token"
	"github.com/sbellem/SiennaNetwork/internal/types"
	"github.com/sbellem/SiennaNetwork/internal/validation"
)

var (
	// ErrReceiptMismatch is returned when a receipt's content does not match its id
	ErrReceiptMismatch = errors.New("receipt id mismatch")
	// ErrReceiptNotFound is returned for ids of no committed transaction
	ErrReceiptNotFound = errors.New("receipt not found")
)

var receiptPrefix = cid.Prefix{
	Version:  1,
	Codec:    uint64(mc.Raw),
	MhType:   mh.SHA2_256,
	MhLength: -1,
}

// Receipt records a committed transaction. Its ID is the content id of the
// rest of the receipt.
type Receipt struct {
	ID       string          `json:"id"`
	Height   uint64          `json:"height"`
	Kind     Kind            `json:"kind"`
	Pool     string          `json:"pool,omitempty"`
	Sender   types.Address   `json:"sender"`
	Time     types.Moment    `json:"time"`
	Logs     []types.Log     `json:"logs,omitempty"`
	Messages []token.Message `json:"messages,omitempty"`

	// Instantiate is set by create_pool
	Instantiate *registry.Instantiate `json:"instantiate,omitempty"`

	// Signature is the executor's signature over ID, when it has a key
	Signature string `json:"signature,omitempty"`
}

func (r Receipt) contentID() (string, error) {
	r.ID = ""
	r.Signature = ""
	buf, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encode receipt: %w", err)
	}
	c, err := receiptPrefix.Sum(buf)
	if err != nil {
		return "", err
	}
	return c.String(), nil
}

// VerifyReceipt checks that r's ID is the content id of its fields
func VerifyReceipt(r Receipt) error {
	if _, err := ParseReceiptID(r.ID); err != nil {
		return err
	}
	id, err := r.contentID()
	if err != nil {
		return err
	}
	if id != r.ID {
		return fmt.Errorf("%w: got %s, content hashes to %s", ErrReceiptMismatch, r.ID, id)
	}
	return nil
}

// VerifyReceiptSignature checks r's content id and that it was signed by signer
func VerifyReceiptSignature(r Receipt, signer types.Address) error {
	if err := VerifyReceipt(r); err != nil {
		return err
	}
	if r.Signature == "" {
		return fmt.Errorf("%w: receipt %s is unsigned", security.ErrBadSignature, r.ID)
	}
	return security.Verify([]byte(r.ID), r.Signature, signer)
}

// ParseReceiptID decodes a receipt id
func ParseReceiptID(s string) (cid.Cid, error) {
	c, err := cid.Decode(s)
	if err != nil {
		return cid.Undef, fmt.Errorf("%w: bad receipt id %q: %v", validation.ErrInvalid, s, err)
	}
	if c.Prefix().Codec != receiptPrefix.Codec {
		return cid.Undef, fmt.Errorf("%w: bad receipt id %q: unexpected codec", validation.ErrInvalid, s)
	}
	return c, nil
}
