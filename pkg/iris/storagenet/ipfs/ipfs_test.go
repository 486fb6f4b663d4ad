package ipfs_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/argus-labs/iris/pkg/iris/storagenet"
	"github.com/argus-labs/iris/pkg/iris/storagenet/ipfs"
	"github.com/argus-labs/iris/pkg/iris/types"
	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPeer = "/ip4/127.0.0.1/tcp/4001/p2p/12D3KooWMvyvKxYcy9mjbFbXcogFSCvENzQ62ogRxHKZaksFCkAp"

// fakeKubo answers the subset of the Kubo RPC API the adapter uses.
type fakeKubo struct {
	mu        sync.Mutex
	blobs     map[string][]byte
	pins      map[string]bool
	connected map[string]bool
	calls     []string
}

func newFakeKubo(t *testing.T) (*fakeKubo, *ipfs.Network) {
	t.Helper()
	k := &fakeKubo{
		blobs:     map[string][]byte{},
		pins:      map[string]bool{},
		connected: map[string]bool{},
	}
	srv := httptest.NewServer(k)
	t.Cleanup(srv.Close)
	return k, ipfs.New(srv.URL)
}

func (k *fakeKubo) seed(id types.ContentID, data []byte) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.blobs[id.String()] = data
}

func (k *fakeKubo) isConnected(peer string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.connected[peer]
}

func (k *fakeKubo) isPinned(id types.ContentID) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.pins[id.String()]
}

func (k *fakeKubo) callLog() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]string(nil), k.calls...)
}

func (k *fakeKubo) fail(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(map[string]any{"Message": msg, "Code": 0, "Type": "error"})
}

func (k *fakeKubo) ok(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (k *fakeKubo) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	k.mu.Lock()
	defer k.mu.Unlock()

	cmd := strings.TrimPrefix(r.URL.Path, "/api/v0/")
	arg := r.URL.Query().Get("arg")
	k.calls = append(k.calls, cmd)

	switch cmd {
	case "swarm/connect":
		k.connected[arg] = true
		k.ok(w, map[string][]string{"Strings": {"connect " + arg + " success"}})
	case "swarm/disconnect":
		if !k.connected[arg] {
			k.fail(w, "not connected")
			return
		}
		delete(k.connected, arg)
		k.ok(w, map[string][]string{"Strings": {"disconnect " + arg + " success"}})
	case "cat":
		data, ok := k.blobs[arg]
		if !ok {
			k.fail(w, "block was not found locally (offline)")
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write(data)
	case "add":
		mr, err := r.MultipartReader()
		if err != nil {
			k.fail(w, err.Error())
			return
		}
		part, err := mr.NextPart()
		if err != nil {
			k.fail(w, err.Error())
			return
		}
		data, _ := io.ReadAll(part)
		id, err := storagenet.ContentIDFor(data)
		if err != nil {
			k.fail(w, err.Error())
			return
		}
		k.blobs[id.String()] = data
		k.ok(w, map[string]string{"Name": id.String(), "Hash": id.String(), "Size": "0"})
	case "pin/add":
		if _, ok := k.blobs[arg]; !ok {
			k.fail(w, "pin: block was not found locally")
			return
		}
		k.pins[arg] = true
		k.ok(w, map[string][]string{"Pins": {arg}})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestNetwork_RemoteFetchThenAdd(t *testing.T) {
	t.Parallel()

	kubo, network := newFakeKubo(t)
	ctx := context.Background()

	data := []byte("hello iris")
	id, err := storagenet.ContentIDFor(data)
	require.NoError(t, err)
	kubo.seed(id, data)

	sess, err := network.Dial(ctx, types.Address(testPeer))
	require.NoError(t, err)
	assert.True(t, kubo.isConnected(testPeer))

	got, err := sess.Fetch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	added, err := sess.Add(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, id, added)

	require.NoError(t, sess.Close(ctx))
	assert.False(t, kubo.isConnected(testPeer))
	assert.Equal(t, []string{"swarm/connect", "cat", "add", "swarm/disconnect"}, kubo.callLog())
}

func TestNetwork_LocalSessionSkipsSwarm(t *testing.T) {
	t.Parallel()

	kubo, network := newFakeKubo(t)
	ctx := context.Background()

	sess, err := network.Dial(ctx, nil)
	require.NoError(t, err)
	added, err := sess.Add(ctx, []byte("pinned"))
	require.NoError(t, err)
	require.NoError(t, sess.Pin(ctx, added))
	require.NoError(t, sess.Close(ctx))

	assert.True(t, kubo.isPinned(added))
	assert.Equal(t, []string{"add", "pin/add"}, kubo.callLog())
}

func TestNetwork_Errors(t *testing.T) {
	t.Parallel()

	_, network := newFakeKubo(t)
	ctx := context.Background()

	_, err := network.Dial(ctx, types.Address("not a multiaddr"))
	assert.True(t, eris.Is(err, storagenet.ErrInvalidAddress))

	sess, err := network.Dial(ctx, nil)
	require.NoError(t, err)

	_, err = sess.Fetch(ctx, types.ContentID("garbage"))
	assert.True(t, eris.Is(err, storagenet.ErrInvalidContentID))

	missing, err := storagenet.ContentIDFor([]byte("nobody has this"))
	require.NoError(t, err)
	_, err = sess.Fetch(ctx, missing)
	assert.True(t, eris.Is(err, storagenet.ErrFetch))

	err = sess.Pin(ctx, missing)
	assert.True(t, eris.Is(err, storagenet.ErrPin))
}
