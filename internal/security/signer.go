// Package security signs and verifies receipt ids with secp256k1 keys,
// using the Ethereum signature scheme.
package security

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"

	"github.com/sbellem/SiennaNetwork/internal/types"
)

// ErrBadSignature is returned when a signature does not recover to the expected signer
var ErrBadSignature = errors.New("bad signature")

// Signer holds the service's signing key
type Signer struct {
	key     *ecdsa.PrivateKey
	address types.Address
}

// NewSigner loads a hex-encoded private key. An empty key generates an
// ephemeral one.
func NewSigner(hexKey string) (*Signer, error) {
	var (
		key *ecdsa.PrivateKey
		err error
	)
	if hexKey == "" {
		key, err = crypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("failed to generate key: %w", err)
		}
		logrus.Warn("No signing key configured, receipts are signed with an ephemeral key")
	} else {
		key, err = crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("failed to parse signing key: %w", err)
		}
	}

	s := &Signer{key: key, address: types.Address(crypto.PubkeyToAddress(key.PublicKey).Hex())}
	logrus.Infof("Receipt signer initialized with address: %s", s.address)
	return s, nil
}

// Address is the Ethereum address of the signing key
func (s *Signer) Address() types.Address { return s.address }

// Sign signs the Keccak256 hash of payload
func (s *Signer) Sign(payload []byte) (string, error) {
	sig, err := crypto.Sign(crypto.Keccak256(payload), s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign payload: %w", err)
	}
	return hexutil.Encode(sig), nil
}

// Recover returns the address that produced sig over payload
func Recover(payload []byte, sig string) (types.Address, error) {
	raw, err := hexutil.Decode(sig)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if len(raw) != crypto.SignatureLength {
		return "", fmt.Errorf("%w: invalid signature length: %d", ErrBadSignature, len(raw))
	}
	pub, err := crypto.SigToPub(crypto.Keccak256(payload), raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return types.Address(crypto.PubkeyToAddress(*pub).Hex()), nil
}

// Verify checks that sig over payload was produced by signer
func Verify(payload []byte, sig string, signer types.Address) error {
	got, err := Recover(payload, sig)
	if err != nil {
		return err
	}
	if !strings.EqualFold(string(got), string(signer)) {
		return fmt.Errorf("%w: signed by %s, expected %s", ErrBadSignature, got, signer)
	}
	return nil
}
