package state

import (
	"strconv"
	"strings"

	"github.com/argus-labs/iris/pkg/assert"
	"github.com/rotisserie/eris"
)

const keySeparator = "/"

// Key joins key parts. Parts must not contain the separator.
func Key(parts ...string) string {
	for _, p := range parts {
		assert.That(!strings.Contains(p, keySeparator), "key part %q contains separator", p)
	}
	return strings.Join(parts, keySeparator)
}

// U64 renders v as a fixed width key part so lexical order matches numeric order.
func U64(v uint64) string {
	s := strconv.FormatUint(v, 10)
	return strings.Repeat("0", 20-len(s)) + s
}

// ParseU64 is the inverse of U64.
func ParseU64(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "invalid numeric key part %q", s)
	}
	return v, nil
}

// SplitKey splits a key produced by Key.
func SplitKey(key string) []string {
	return strings.Split(key, keySeparator)
}

// Map is a typed view over every key under prefix.
type Map[V any] struct {
	prefix string
}

func NewMap[V any](prefix string) Map[V] {
	return Map[V]{prefix: prefix + keySeparator}
}

func (m Map[V]) Get(kv KV, key string) (V, bool, error) {
	var v V
	bz, ok, err := kv.Get(m.prefix + key)
	if err != nil || !ok {
		return v, false, err
	}
	if err := Decode(bz, &v); err != nil {
		return v, false, eris.Wrapf(err, "key %s%s", m.prefix, key)
	}
	return v, true, nil
}

func (m Map[V]) Has(kv KV, key string) (bool, error) {
	_, ok, err := kv.Get(m.prefix + key)
	return ok, err
}

func (m Map[V]) Set(kv KV, key string, v V) error {
	bz, err := Encode(v)
	if err != nil {
		return eris.Wrapf(err, "key %s%s", m.prefix, key)
	}
	kv.Set(m.prefix+key, bz)
	return nil
}

func (m Map[V]) Delete(kv KV, key string) {
	kv.Delete(m.prefix + key)
}

// Iterate walks the entries whose key starts with sub, passing keys relative to the map prefix.
func (m Map[V]) Iterate(kv KV, sub string, fn func(key string, v V) (bool, error)) error {
	return kv.Iterate(m.prefix+sub, func(k string, bz []byte) (bool, error) {
		var v V
		if err := Decode(bz, &v); err != nil {
			return false, eris.Wrapf(err, "key %s", k)
		}
		return fn(strings.TrimPrefix(k, m.prefix), v)
	})
}

// Item is a single typed value at a fixed key.
type Item[V any] struct {
	key string
}

func NewItem[V any](key string) Item[V] {
	return Item[V]{key: key}
}

func (i Item[V]) Get(kv KV) (V, bool, error) {
	var v V
	bz, ok, err := kv.Get(i.key)
	if err != nil || !ok {
		return v, false, err
	}
	if err := Decode(bz, &v); err != nil {
		return v, false, eris.Wrapf(err, "key %s", i.key)
	}
	return v, true, nil
}

func (i Item[V]) Set(kv KV, v V) error {
	bz, err := Encode(v)
	if err != nil {
		return eris.Wrapf(err, "key %s", i.key)
	}
	kv.Set(i.key, bz)
	return nil
}
