package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sbellem/SiennaNetwork/internal/types"
)

// ErrInvalidToken is returned for bearer tokens that fail verification
var ErrInvalidToken = errors.New("invalid token")

// Issuer signs and verifies HS256 bearer tokens whose subject is the sender address
type Issuer struct {
	signKey []byte
	ttl     time.Duration
	now     func() time.Time
}

// NewIssuer creates an Issuer. A zero ttl defaults to 15 minutes.
func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Issuer{signKey: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue returns a signed token for address and its expiry
func (i *Issuer) Issue(address types.Address) (string, time.Time, error) {
	if address.IsZero() {
		return "", time.Time{}, fmt.Errorf("%w: empty subject", ErrInvalidToken)
	}
	now := i.now()
	exp := now.Add(i.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   string(address),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(i.signKey)
	return signed, exp, err
}

// Verify checks signature and validity window, and returns the subject
func (i *Issuer) Verify(tok string) (types.Address, error) {
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(tok, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return i.signKey, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}

	v := jwt.NewValidator(jwt.WithLeeway(30*time.Second), jwt.WithTimeFunc(i.now))
	if err := v.Validate(&claims); err != nil {
		return "", fmt.Errorf("%w: expired or not valid yet", ErrInvalidToken)
	}

	if claims.Subject == "" {
		return "", fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return types.Address(claims.Subject), nil
}
