package storagenet_test

import (
	"context"
	"testing"

	"github.com/argus-labs/iris/pkg/iris/storagenet"
	"github.com/argus-labs/iris/pkg/iris/types"
	"github.com/argus-labs/iris/pkg/testutils"
	"github.com/ipfs/go-cid"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseContentID(t *testing.T) {
	t.Parallel()

	c, err := storagenet.ParseContentID(types.ContentID("QmPZv7P8nQUSh2CpqTvUeYemFyjvMjgWEs8H1Tm8b3zAm9"))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), c.Version())

	_, err = storagenet.ParseContentID(types.ContentID("not-a-cid"))
	assert.True(t, eris.Is(err, storagenet.ErrInvalidContentID))

	_, err = storagenet.ParseContentID(nil)
	assert.True(t, eris.Is(err, storagenet.ErrInvalidContentID))
}

func TestParseAddr(t *testing.T) {
	t.Parallel()

	a, err := storagenet.ParseAddr(types.Address("/ip4/127.0.0.1/tcp/4001"))
	require.NoError(t, err)
	assert.Equal(t, "/ip4/127.0.0.1/tcp/4001", a.String())

	_, err = storagenet.ParseAddr(types.Address("127.0.0.1:4001"))
	assert.True(t, eris.Is(err, storagenet.ErrInvalidAddress))
}

func TestContentIDFor(t *testing.T) {
	t.Parallel()

	a, err := storagenet.ContentIDFor([]byte("a"))
	require.NoError(t, err)
	again, err := storagenet.ContentIDFor([]byte("a"))
	require.NoError(t, err)
	b, err := storagenet.ContentIDFor([]byte("b"))
	require.NoError(t, err)

	assert.Equal(t, a, again)
	assert.NotEqual(t, a, b)

	c, err := storagenet.ParseContentID(a)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), c.Version())
	assert.Equal(t, uint64(cid.Raw), c.Type())
}

func TestCacheStore(t *testing.T) {
	t.Parallel()

	r := testutils.NewRand(t)
	ctx := context.Background()
	s := storagenet.NewCacheStore(4*1024*1024, 60)

	_, ok, err := s.Get(ctx, "alice", 1)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "alice", 1, []byte("v1")))
	require.NoError(t, s.Put(ctx, "alice", 2, []byte{}))

	got, ok, err := s.Get(ctx, "alice", 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), got)

	got, ok, err = s.Get(ctx, "alice", 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, got)

	_, ok, err = s.Get(ctx, "bob", 1)
	require.NoError(t, err)
	assert.False(t, ok)

	// Far above the 4 KiB a single freecache entry may hold at this size.
	large := testutils.RandBytes(r, 100*1024)
	require.NoError(t, s.Put(ctx, "alice", 1, large))
	got, ok, err = s.Get(ctx, "alice", 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, large, got)

	// A shorter replacement does not pick up the old tail.
	require.NoError(t, s.Put(ctx, "alice", 1, []byte("v2")))
	got, ok, err = s.Get(ctx, "alice", 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v2"), got)

	err = s.Put(ctx, "alice", 3, make([]byte, 1024*1024))
	assert.True(t, eris.Is(err, storagenet.ErrTooLarge))
}
