package worker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/argus-labs/iris/pkg/iris/queue"
	"github.com/argus-labs/iris/pkg/iris/runtime"
	"github.com/argus-labs/iris/pkg/iris/storagenet"
	"github.com/argus-labs/iris/pkg/iris/storagenet/memnet"
	"github.com/argus-labs/iris/pkg/iris/types"
	"github.com/argus-labs/iris/pkg/iris/worker"
	"github.com/argus-labs/iris/pkg/sign"
	"github.com/argus-labs/iris/pkg/state"
	"github.com/argus-labs/iris/pkg/telemetry"
	"github.com/argus-labs/iris/pkg/testutils"
	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var peer = types.Address("/ip4/127.0.0.1/tcp/4001/p2p/12D3KooWMvyvKxYcy9mjbFbXcogFSCvENzQ62ogRxHKZaksFCkAp")

type recordingSubmitter struct {
	mu  sync.Mutex
	txs []*sign.Transaction
	err error
}

func (s *recordingSubmitter) Submit(_ context.Context, tx *sign.Transaction) (string, error) {
	if err := sign.Verify(tx); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.txs = append(s.txs, tx)
	return tx.Hash(), nil
}

type ownershipMap map[string]types.ContentID

func (m ownershipMap) LookupOwnedContentID(
	_ context.Context,
	admin types.AccountID,
	id types.ClassID,
) (types.ContentID, bool, error) {
	c, ok := m[admin.String()+"/"+id.String()]
	return c, ok, nil
}

type fixture struct {
	queue     *queue.Queue
	net       *memnet.Network
	local     *storagenet.CacheStore
	submitter *recordingSubmitter
	owned     ownershipMap
	signer    *sign.Signer
	worker    *worker.Worker
}

func newFixture(t *testing.T, concurrency int) *fixture {
	t.Helper()

	r := testutils.NewRand(t)
	tel := telemetry.Nop()
	f := &fixture{
		queue:     queue.New(),
		net:       memnet.New(),
		local:     storagenet.NewCacheStore(1024*1024, 60),
		submitter: &recordingSubmitter{},
		owned:     ownershipMap{},
		signer:    testutils.RandSigner(t, r),
	}
	w, err := worker.New(worker.Options{
		Queue:       f.queue,
		Network:     f.net,
		Local:       f.local,
		Ownership:   f.owned,
		Submitter:   f.submitter,
		Signer:      f.signer,
		Telemetry:   &tel,
		Concurrency: concurrency,
		Timeout:     time.Second,
	})
	require.NoError(t, err)
	f.worker = w
	return f
}

func decode[P any](t *testing.T, tx *sign.Transaction) P {
	t.Helper()
	var p P
	require.NoError(t, json.Unmarshal(tx.Payload, &p))
	return p
}

func TestWorker_PublishReportsAddedContent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1)
	ids := f.net.AddPeer(peer, []byte("file contents"))
	f.queue.Push(1, types.Publish{
		Address:   peer,
		ContentID: ids[0],
		Admin:     "alice",
		Filename:  "file.txt",
		ClassID:   4,
		Balance:   2,
	})

	outcomes := f.worker.RunCycle(context.Background())
	require.Len(t, outcomes, 1)
	require.NoError(t, outcomes[0].Err)
	assert.Zero(t, f.queue.Len())
	assert.True(t, f.net.HasLocal(ids[0]))
	assert.Equal(t, 0, f.net.OpenSessions())

	require.Len(t, f.submitter.txs, 1)
	tx := f.submitter.txs[0]
	assert.Equal(t, runtime.CallReportPublishResult, tx.Call)
	assert.Equal(t, f.signer.Address(), tx.Signer)
	assert.Equal(t, tx.Hash(), outcomes[0].Report)
	assert.Equal(t, runtime.ReportPublishResult{
		Admin:     "alice",
		ContentID: ids[0],
		ClassID:   4,
		Balance:   2,
		CommandID: outcomes[0].Entry.ID.String(),
	}, decode[runtime.ReportPublishResult](t, tx))
}

func TestWorker_RetrieveStoresForRequester(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1)
	content, err := storagenet.ContentIDFor([]byte("secret"))
	require.NoError(t, err)
	f.net.Seed(content, []byte("secret"))
	f.owned["owner/5"] = content

	f.queue.Push(1,
		types.Retrieve{Requester: "reader", Owner: "owner", ClassID: 5},
		types.Retrieve{Requester: "reader", Owner: "stranger", ClassID: 5},
	)
	outcomes := f.worker.RunCycle(context.Background())
	require.Len(t, outcomes, 2)

	require.NoError(t, outcomes[0].Err)
	data, ok, err := f.local.Get(context.Background(), "reader", 5)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("secret"), data)

	assert.True(t, eris.Is(outcomes[1].Err, worker.ErrNoContent))

	require.Len(t, f.submitter.txs, 1)
	assert.Equal(t, runtime.ReportRetrieveResult{
		ClassID:   5,
		Requester: "reader",
		CommandID: outcomes[0].Entry.ID.String(),
	}, decode[runtime.ReportRetrieveResult](t, f.submitter.txs[0]))
}

func TestWorker_FailuresAreDroppedAndSessionsReleased(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1)
	ids := f.net.AddPeer(peer, []byte("a"), []byte("b"))
	f.net.Seed(ids[1], []byte("b"))

	f.net.FailNext(memnet.StepFetch, 1)
	f.net.FailNext(memnet.StepPin, 1)
	f.queue.Push(1,
		types.Publish{Address: peer, ContentID: ids[0], Admin: "alice", ClassID: 1, Balance: 1},
		types.Pin{Requester: "alice", ClassID: 2, ContentID: ids[1]},
		types.Publish{Address: types.Address("/ip4/10.1.1.1/tcp/1"), ContentID: ids[0], Admin: "bob", ClassID: 3, Balance: 1},
		types.Pin{Requester: "alice", ClassID: 2, ContentID: types.ContentID("not-a-cid")},
		types.Pin{Requester: "alice", ClassID: 2, ContentID: ids[1]},
	)

	outcomes := f.worker.RunCycle(context.Background())
	require.Len(t, outcomes, 5)
	assert.True(t, eris.Is(outcomes[0].Err, storagenet.ErrFetch))
	assert.True(t, eris.Is(outcomes[1].Err, storagenet.ErrPin))
	assert.True(t, eris.Is(outcomes[2].Err, storagenet.ErrConnect))
	assert.True(t, eris.Is(outcomes[3].Err, storagenet.ErrInvalidContentID))
	require.NoError(t, outcomes[4].Err)

	// Only the last command produced a report; every opened session was closed.
	require.Len(t, f.submitter.txs, 1)
	assert.Equal(t, runtime.CallReportPinResult, f.submitter.txs[0].Call)
	assert.True(t, f.net.IsPinned(ids[1]))
	assert.Equal(t, 0, f.net.OpenSessions())

	// Nothing is retried.
	assert.Empty(t, f.worker.RunCycle(context.Background()))
}

func TestWorker_SubmitFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1)
	ids := f.net.AddPeer(peer, []byte("x"))
	f.submitter.err = eris.New("runtime unavailable")
	f.queue.Push(1, types.Publish{Address: peer, ContentID: ids[0], Admin: "a", ClassID: 1, Balance: 1})

	outcomes := f.worker.RunCycle(context.Background())
	require.Len(t, outcomes, 1)
	assert.True(t, eris.Is(outcomes[0].Err, worker.ErrSubmit))
	assert.Empty(t, outcomes[0].Report)
}

func TestWorker_ConcurrentCycleKeepsOutcomeOrder(t *testing.T) {
	t.Parallel()

	r := testutils.NewRand(t)
	f := newFixture(t, 4)

	const n = 32
	blobs := make([][]byte, n)
	for i := range blobs {
		blobs[i] = testutils.RandBytes(r, 16+i)
	}
	ids := f.net.AddPeer(peer, blobs...)
	for i, id := range ids {
		f.queue.Push(1, types.Publish{Address: peer, ContentID: id, Admin: "a", ClassID: types.ClassID(i), Balance: 1})
	}

	outcomes := f.worker.RunCycle(context.Background())
	require.Len(t, outcomes, n)
	for i, o := range outcomes {
		require.NoError(t, o.Err)
		assert.Equal(t, queue.EntryID(1, i), o.Entry.ID)
		assert.Equal(t, types.ClassID(i), o.Entry.Command.Class())
	}
	assert.Len(t, f.submitter.txs, n)
	assert.Equal(t, n, f.net.Dials())
	assert.Equal(t, 0, f.net.OpenSessions())
}

func TestWorker_CanceledContextAbortsCommand(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1)
	ids := f.net.AddPeer(peer, []byte("x"))
	f.queue.Push(1, types.Publish{Address: peer, ContentID: ids[0], Admin: "a", ClassID: 1, Balance: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outcomes := f.worker.RunCycle(ctx)
	require.Len(t, outcomes, 1)
	assert.True(t, eris.Is(outcomes[0].Err, storagenet.ErrConnect))
	assert.Empty(t, f.submitter.txs)
}

func TestWorker_RejectsBadOptions(t *testing.T) {
	t.Parallel()

	_, err := worker.New(worker.Options{})
	require.Error(t, err)
}

// The whole loop: requests become commands, the worker executes them and its reports change
// state in a later block.
func TestWorker_EndToEnd(t *testing.T) {
	t.Parallel()

	r := testutils.NewRand(t)
	node := testutils.RandSigner(t, r)
	publisher := testutils.RandSigner(t, r)
	reader := testutils.RandSigner(t, r)
	ctx := context.Background()

	tel := telemetry.Nop()
	q := queue.New()
	rt, err := runtime.New(runtime.Options{
		Store:           state.NewMemStore(),
		Queue:           q,
		Telemetry:       &tel,
		RootAccount:     types.AccountID(testutils.RandSigner(t, r).Address()),
		BlocksPerEpoch:  100,
		BlockTime:       time.Hour,
		ReplayCacheSize: 1024 * 1024,
	})
	require.NoError(t, err)
	require.NoError(t, rt.InitGenesis(ctx, []types.AccountID{types.AccountID(node.Address())}))

	net := memnet.New()
	// Larger than one freecache entry of the local store.
	published := testutils.RandBytes(r, 200*1024)
	ids := net.AddPeer(peer, published)
	local := storagenet.NewCacheStore(1024*1024, 60)
	w, err := worker.New(worker.Options{
		Queue:     q,
		Network:   net,
		Local:     local,
		Ownership: rt,
		Submitter: rt,
		Signer:    node,
		Telemetry: &tel,
	})
	require.NoError(t, err)

	submit := func(s *sign.Signer, call string, payload any) {
		tx, err := s.Sign(call, payload)
		require.NoError(t, err)
		_, err = rt.Submit(ctx, tx)
		require.NoError(t, err)
	}
	produce := func() runtime.BlockResult {
		result, err := rt.ProduceBlock(ctx)
		require.NoError(t, err)
		for _, receipt := range result.Receipts {
			require.NoError(t, receipt.Err(), receipt.Call)
		}
		return result
	}
	publisherID := types.AccountID(publisher.Address())

	submit(publisher, runtime.CallRegisterContentRequest, runtime.RegisterContentRequest{
		Admin: publisherID, Address: peer, ContentID: ids[0], Filename: "f", ClassID: 1, Balance: 1,
	})
	produce()
	require.Len(t, w.RunCycle(ctx), 1)
	produce()

	content, ok, err := rt.LookupOwnedContentID(ctx, publisherID, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ids[0], content)

	submit(publisher, runtime.CallMintAccess, runtime.MintAccess{
		Beneficiary: types.AccountID(reader.Address()), ClassID: 1, Amount: 1,
	})
	submit(reader, runtime.CallRequestRetrieve, runtime.RequestRetrieve{Owner: publisherID, ClassID: 1})
	submit(publisher, runtime.CallRequestPin, runtime.RequestPin{ClassID: 1})
	produce()

	outcomes := w.RunCycle(ctx)
	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		require.NoError(t, o.Err)
	}
	produce()

	data, ok, err := local.Get(ctx, types.AccountID(reader.Address()), 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, published, data)
	assert.True(t, net.IsPinned(ids[0]))

	// One point each for the publish, retrieve and pin reports.
	record, err := rt.RewardPoints(ctx, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), record.Total)
	assert.Equal(t, uint64(3), record.Individual[types.AccountID(node.Address())])
}
