package store

import (
	"bytes"
	"context"
	"sort"
	"sync"
)

type pending struct {
	value   []byte
	deleted bool
}

// Cache buffers writes on top of a parent store. Reads see the buffered
// writes; nothing reaches the parent until Write.
type Cache struct {
	parent Store
	mu     sync.Mutex
	dirty  map[string]pending
}

// NewCache creates a write-buffering overlay over parent
func NewCache(parent Store) *Cache {
	return &Cache{parent: parent, dirty: make(map[string]pending)}
}

// Get implements Store
func (c *Cache) Get(ctx context.Context, key []byte) ([]byte, error) {
	c.mu.Lock()
	p, ok := c.dirty[string(key)]
	c.mu.Unlock()
	if ok {
		if p.deleted {
			return nil, nil
		}
		return clone(p.value), nil
	}
	return c.parent.Get(ctx, key)
}

// Set implements Store
func (c *Cache) Set(_ context.Context, key, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirty[string(key)] = pending{value: clone(value)}
	return nil
}

// Delete implements Store
func (c *Cache) Delete(_ context.Context, key []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirty[string(key)] = pending{deleted: true}
	return nil
}

// Ops returns the buffered writes sorted by key
func (c *Cache) Ops() []Op {
	c.mu.Lock()
	defer c.mu.Unlock()
	ops := make([]Op, 0, len(c.dirty))
	for k, p := range c.dirty {
		op := Op{Key: []byte(k)}
		if !p.deleted {
			op.Value = clone(p.value)
		}
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return bytes.Compare(ops[i].Key, ops[j].Key) < 0 })
	return ops
}

// Write flushes the buffered writes to the parent and clears the buffer
func (c *Cache) Write(ctx context.Context) error {
	if err := Apply(ctx, c.parent, c.Ops()); err != nil {
		return err
	}
	c.Discard()
	return nil
}

// Discard drops every buffered write
func (c *Cache) Discard() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirty = make(map[string]pending)
}
