package rewards

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/sbellem/SiennaNetwork/internal/fixed"
	"github.com/sbellem/SiennaNetwork/internal/store"
	"github.com/sbellem/SiennaNetwork/internal/types"
)

func userKey(ns []byte, address types.Address) []byte {
	key, _ := store.NSKey(ns, []byte(address))
	return key
}

func getU64(ctx context.Context, s store.Store, key []byte, def uint64) (uint64, error) {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if raw == nil {
		return def, nil
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("decode %q: want 8 bytes, got %d", key, len(raw))
	}
	return binary.BigEndian.Uint64(raw), nil
}

func setU64(ctx context.Context, s store.Store, key []byte, v uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return s.Set(ctx, key, buf)
}

func getMoment(ctx context.Context, s store.Store, key []byte, def types.Moment) (types.Moment, error) {
	v, err := getU64(ctx, s, key, uint64(def))
	return types.Moment(v), err
}

func getDuration(ctx context.Context, s store.Store, key []byte, def types.Duration) (types.Duration, error) {
	v, err := getU64(ctx, s, key, uint64(def))
	return types.Duration(v), err
}

func getAmount(ctx context.Context, s store.Store, key []byte) (fixed.Amount, error) {
	raw, err := s.Get(ctx, key)
	if err != nil || raw == nil {
		return fixed.Amount{}, err
	}
	return fixed.AmountFromBytes(raw)
}

func getVolume(ctx context.Context, s store.Store, key []byte, def fixed.Volume) (fixed.Volume, error) {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return fixed.Volume{}, err
	}
	if raw == nil {
		return def, nil
	}
	return fixed.VolumeFromBytes(raw)
}

func getJSON(ctx context.Context, s store.Store, key []byte, v any) (bool, error) {
	raw, err := s.Get(ctx, key)
	if err != nil || raw == nil {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}

func setJSON(ctx context.Context, s store.Store, key []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Set(ctx, key, raw)
}
