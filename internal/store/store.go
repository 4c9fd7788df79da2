// Package store defines the key/value storage port used by the rewards engine
// and the backends implementing it.
package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrNamespaceTooLong is returned when a namespace does not fit its 2-byte length prefix
var ErrNamespaceTooLong = errors.New("store: namespace too long")

// Store is a byte-keyed storage port. Get returns a nil value for missing keys.
type Store interface {
	Get(ctx context.Context, key []byte) ([]byte, error)
	Set(ctx context.Context, key, value []byte) error
	Delete(ctx context.Context, key []byte) error
}

// Op is a single write. A nil Value deletes the key.
type Op struct {
	Key   []byte
	Value []byte
}

// Batcher is implemented by backends able to apply many writes atomically
type Batcher interface {
	WriteBatch(ctx context.Context, ops []Op) error
}

// Apply writes ops to s, atomically when s is a Batcher
func Apply(ctx context.Context, s Store, ops []Op) error {
	if len(ops) == 0 {
		return nil
	}
	if b, ok := s.(Batcher); ok {
		return b.WriteBatch(ctx, ops)
	}
	for _, op := range ops {
		var err error
		if op.Value == nil {
			err = s.Delete(ctx, op.Key)
		} else {
			err = s.Set(ctx, op.Key, op.Value)
		}
		if err != nil {
			return fmt.Errorf("apply %q: %w", op.Key, err)
		}
	}
	return nil
}

// NSKey joins a namespace and a key. The namespace is length-prefixed so
// that distinct (namespace, key) pairs never collide.
func NSKey(ns, key []byte) ([]byte, error) {
	if len(ns) > 0xFFFF {
		return nil, fmt.Errorf("%w: %d bytes", ErrNamespaceTooLong, len(ns))
	}
	out := make([]byte, 2, 2+len(ns)+len(key))
	binary.BigEndian.PutUint16(out, uint16(len(ns)))
	out = append(out, ns...)
	return append(out, key...), nil
}

// GetNS reads key within namespace ns
func GetNS(ctx context.Context, s Store, ns, key []byte) ([]byte, error) {
	k, err := NSKey(ns, key)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, k)
}

// SetNS writes key within namespace ns
func SetNS(ctx context.Context, s Store, ns, key, value []byte) error {
	k, err := NSKey(ns, key)
	if err != nil {
		return err
	}
	return s.Set(ctx, k, value)
}

// Prefixed scopes every key of an underlying store under a fixed prefix
type Prefixed struct {
	inner  Store
	prefix []byte
}

// Prefix returns a view of s where every key is prepended with prefix
func Prefix(s Store, prefix string) *Prefixed {
	return &Prefixed{inner: s, prefix: []byte(prefix)}
}

func (p *Prefixed) key(k []byte) []byte {
	out := make([]byte, 0, len(p.prefix)+len(k))
	return append(append(out, p.prefix...), k...)
}

// Get implements Store
func (p *Prefixed) Get(ctx context.Context, key []byte) ([]byte, error) {
	return p.inner.Get(ctx, p.key(key))
}

// Set implements Store
func (p *Prefixed) Set(ctx context.Context, key, value []byte) error {
	return p.inner.Set(ctx, p.key(key), value)
}

// Delete implements Store
func (p *Prefixed) Delete(ctx context.Context, key []byte) error {
	return p.inner.Delete(ctx, p.key(key))
}
