package state

import (
	"context"
	"maps"
	"slices"
	"strings"

	"github.com/argus-labs/iris/pkg/assert"
	"github.com/rotisserie/eris"
)

// KV is the synchronous key/value view handed to deterministic code. It is bound to the context
// it was created with.
type KV interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte)
	Delete(key string)
	Iterate(prefix string, fn func(key string, value []byte) (bool, error)) error
}

// entry is a buffered write. A nil value marks a deletion.
type entry struct {
	value []byte
}

var _ KV = (*Cache)(nil)

// Cache buffers writes on top of a parent Reader. Reads see the cache's own writes first.
type Cache struct {
	ctx    context.Context
	parent Reader
	writes map[string]entry

	// Set for caches created by Branch.
	parentCache *Cache
}

// NewCache returns an empty cache over r.
func NewCache(ctx context.Context, r Reader) *Cache {
	return &Cache{
		ctx:    ctx,
		parent: r,
		writes: make(map[string]entry),
	}
}

// Branch returns a child cache whose writes become visible in c only after Write.
func (c *Cache) Branch() *Cache {
	child := NewCache(c.ctx, cacheReader{c})
	child.parentCache = c
	return child
}

// Write flushes the buffered writes into the parent cache and clears them. It must only be called
// on a cache created by Branch.
func (c *Cache) Write() {
	assert.That(c.parentCache != nil, "write called on a root cache")
	for k, e := range c.writes {
		c.parentCache.writes[k] = e
	}
	clear(c.writes)
}

// Commit applies every buffered write to store as one batch and clears the cache.
func (c *Cache) Commit(store Store) error {
	if err := store.Apply(c.ctx, c.Batch()); err != nil {
		return eris.Wrap(err, "failed to commit state")
	}
	clear(c.writes)
	return nil
}

// Batch returns the buffered writes sorted by key.
func (c *Cache) Batch() Batch {
	keys := slices.Sorted(maps.Keys(c.writes))
	batch := make(Batch, 0, len(keys))
	for _, k := range keys {
		batch = append(batch, Op{Key: k, Value: c.writes[k].value})
	}
	return batch
}

// Dirty reports whether the cache holds unflushed writes.
func (c *Cache) Dirty() bool {
	return len(c.writes) > 0
}

func (c *Cache) Get(key string) ([]byte, bool, error) {
	if e, ok := c.writes[key]; ok {
		if e.value == nil {
			return nil, false, nil
		}
		return e.value, true, nil
	}
	return c.parent.Get(c.ctx, key)
}

func (c *Cache) Set(key string, value []byte) {
	if value == nil {
		value = []byte{}
	}
	c.writes[key] = entry{value: slices.Clone(value)}
}

func (c *Cache) Delete(key string) {
	c.writes[key] = entry{}
}

// Iterate merges the parent's keys with the buffered writes and walks them in key order.
func (c *Cache) Iterate(prefix string, fn func(key string, value []byte) (bool, error)) error {
	merged := make(map[string][]byte)
	err := c.parent.Iterate(c.ctx, prefix, func(k string, v []byte) bool {
		merged[k] = v
		return true
	})
	if err != nil {
		return err
	}
	for k, e := range c.writes {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if e.value == nil {
			delete(merged, k)
			continue
		}
		merged[k] = e.value
	}

	for _, k := range slices.Sorted(maps.Keys(merged)) {
		more, err := fn(k, merged[k])
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return nil
}

// cacheReader adapts a Cache to Reader so it can parent a branch.
type cacheReader struct{ c *Cache }

func (r cacheReader) Get(_ context.Context, key string) ([]byte, bool, error) {
	return r.c.Get(key)
}

func (r cacheReader) Iterate(_ context.Context, prefix string, fn func(string, []byte) bool) error {
	return r.c.Iterate(prefix, func(k string, v []byte) (bool, error) { return fn(k, v), nil })
}
