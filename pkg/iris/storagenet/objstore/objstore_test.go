package objstore_test

import (
	"context"
	"testing"

	"github.com/argus-labs/iris/pkg/iris/storagenet/objstore"
	"github.com/argus-labs/iris/pkg/iris/types"
	"github.com/argus-labs/iris/pkg/testutils"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runJetStream(t *testing.T) *nats.Conn {
	t.Helper()
	s := test.RunServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      -1, // Random available port
		NoLog:     true,
		NoSigs:    true,
		JetStream: true,
		StoreDir:  t.TempDir(),
	})
	t.Cleanup(s.Shutdown)

	conn, err := nats.Connect(s.ClientURL())
	require.NoError(t, err)
	t.Cleanup(conn.Close)
	return conn
}

func TestStore(t *testing.T) {
	t.Parallel()

	r := testutils.NewRand(t)
	ctx := context.Background()
	conn := runJetStream(t)
	requester := types.AccountID(testutils.RandSigner(t, r).Address())

	s, err := objstore.New(ctx, conn, objstore.Options{Bucket: "retrieved"})
	require.NoError(t, err)

	_, ok, err := s.Get(ctx, requester, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	// Larger than a single NATS message.
	large := testutils.RandBytes(r, 2*1024*1024)
	require.NoError(t, s.Put(ctx, requester, 1, large))
	got, ok, err := s.Get(ctx, requester, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, large, got)

	require.NoError(t, s.Put(ctx, requester, 1, []byte("v2")))
	got, ok, err = s.Get(ctx, requester, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v2"), got)

	// Opening the bucket again sees the same objects.
	again, err := objstore.New(ctx, conn, objstore.Options{Bucket: "retrieved"})
	require.NoError(t, err)
	got, ok, err = again.Get(ctx, requester, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v2"), got)

	_, err = objstore.New(ctx, conn, objstore.Options{})
	assert.Error(t, err)
}
