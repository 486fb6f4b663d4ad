package pool_test

import (
	"context"
	"testing"

	"github.com/argus-labs/iris/pkg/iris/assets"
	"github.com/argus-labs/iris/pkg/iris/ledger"
	"github.com/argus-labs/iris/pkg/iris/pool"
	"github.com/argus-labs/iris/pkg/iris/session"
	"github.com/argus-labs/iris/pkg/iris/types"
	"github.com/argus-labs/iris/pkg/state"
	"github.com/argus-labs/iris/pkg/testutils"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	kv      *state.Cache
	ledger  *ledger.Ledger
	session *session.Manager
	pool    *pool.Pool
}

func newFixture(t *testing.T, genesis ...types.AccountID) *fixture {
	t.Helper()

	kv := state.NewCache(context.Background(), state.NewMemStore())
	sess, err := session.NewManager(10)
	require.NoError(t, err)
	l := ledger.New(assets.NewRegistry())
	p := pool.New(sess, l)

	require.NoError(t, p.InitGenesis(kv, genesis))
	require.NoError(t, sess.InitGenesis(kv, genesis))
	return &fixture{kv: kv, ledger: l, session: sess, pool: p}
}

func (f *fixture) ctx(origin types.Origin) *types.Context {
	return types.NewContext(context.Background(), f.kv, 1, 0, origin)
}

var root = types.Origin{Account: "root", Root: true}

func TestPool_ValidatorMembership(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "v0", "v1")

	t.Run("signed origin is rejected", func(t *testing.T) {
		err := f.pool.AddValidator(f.ctx(types.Origin{Account: "v2"}), "v2")
		assert.True(t, eris.Is(err, pool.ErrBadOrigin))
		err = f.pool.RemoveValidator(f.ctx(types.Origin{Account: "v0"}), "v0")
		assert.True(t, eris.Is(err, pool.ErrBadOrigin))
	})

	t.Run("add then duplicate", func(t *testing.T) {
		ctx := f.ctx(root)
		require.NoError(t, f.pool.AddValidator(ctx, "v2"))

		err := f.pool.AddValidator(ctx, "v2")
		assert.True(t, eris.Is(err, pool.ErrDuplicate))

		validators, err := f.pool.Validators(f.kv)
		require.NoError(t, err)
		assert.Equal(t, []types.AccountID{"v0", "v1", "v2"}, validators)

		// The session collaborator sees the new set for the next epoch.
		queued, ok, err := f.session.QueuedValidators(f.kv)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, validators, queued)
		assert.Equal(t, []types.Event{types.ValidatorAdded{Account: "v2"}}, ctx.Events())
	})

	t.Run("remove non-member is a no-op", func(t *testing.T) {
		ctx := f.ctx(root)
		require.NoError(t, f.pool.RemoveValidator(ctx, "nobody"))
		validators, err := f.pool.Validators(f.kv)
		require.NoError(t, err)
		assert.Len(t, validators, 3)
		assert.Empty(t, ctx.Events())
	})

	t.Run("remove member", func(t *testing.T) {
		require.NoError(t, f.pool.RemoveValidator(f.ctx(root), "v1"))
		validators, err := f.pool.Validators(f.kv)
		require.NoError(t, err)
		assert.Equal(t, []types.AccountID{"v0", "v2"}, validators)
	})
}

func TestPool_InitGenesisRejectsDuplicates(t *testing.T) {
	t.Parallel()

	kv := state.NewCache(context.Background(), state.NewMemStore())
	sess, err := session.NewManager(1)
	require.NoError(t, err)
	p := pool.New(sess, ledger.New(assets.NewRegistry()))

	err = p.InitGenesis(kv, []types.AccountID{"a", "a"})
	assert.True(t, eris.Is(err, pool.ErrDuplicate))
}

func TestPool_JoinStoragePool(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "v0")
	ctx := f.ctx(types.Origin{Account: "v0"})

	// A class that does not exist yet is never joined.
	err := f.pool.JoinStoragePool(ctx, "v0", "p", 1)
	require.True(t, eris.Is(err, ledger.ErrNoSuchAssetClass))
	record, err := f.pool.RewardPoints(f.kv, 0, 1)
	require.NoError(t, err)
	assert.Zero(t, record.Total)

	require.NoError(t, f.ledger.RegisterContentClass(ctx, "p", types.ContentID("Qm"), 1, 1))

	err = f.pool.JoinStoragePool(ctx, "v0", "someone-else", 1)
	assert.True(t, eris.Is(err, ledger.ErrNoSuchOwnedContent))

	err = f.pool.JoinStoragePool(ctx, "outsider", "p", 1)
	assert.True(t, eris.Is(err, pool.ErrNotValidator))

	require.NoError(t, f.pool.JoinStoragePool(ctx, "v0", "p", 1))

	record, err = f.pool.RewardPoints(f.kv, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), record.Total)
	assert.Equal(t, uint64(1), record.Individual["v0"])

	providers, err := f.pool.Providers(f.kv, 1)
	require.NoError(t, err)
	assert.Equal(t, []types.AccountID{"v0"}, providers)
}

func TestPool_AwardOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "v0", "v1")
	ctx := f.ctx(types.Origin{})

	awarded, err := f.pool.AwardOnce(ctx, 0, 1, "v0", "cmd-a")
	require.NoError(t, err)
	assert.True(t, awarded)

	// A repeated report of the same command by the same validator earns nothing.
	awarded, err = f.pool.AwardOnce(ctx, 0, 1, "v0", "cmd-a")
	require.NoError(t, err)
	assert.False(t, awarded)

	// A different validator reporting the same command earns its own point.
	awarded, err = f.pool.AwardOnce(ctx, 0, 1, "v1", "cmd-a")
	require.NoError(t, err)
	assert.True(t, awarded)

	record, err := f.pool.RewardPoints(f.kv, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), record.Total)
	assert.Equal(t, map[types.AccountID]uint64{"v0": 1, "v1": 1}, record.Individual)

	// Records are per epoch.
	other, err := f.pool.RewardPoints(f.kv, 1, 1)
	require.NoError(t, err)
	assert.Zero(t, other.Total)
}

func TestPool_SubmitRPCReady(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := f.ctx(types.Origin{Account: "p"})

	require.NoError(t, f.pool.SubmitRPCReady(ctx, "p", 1))
	signal, ok, err := f.pool.Ready(f.kv, "p")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, pool.ReadySignal{Value: 1, Height: 1}, signal)

	// No reward side effect.
	ids := []types.Event{types.RPCReady{Account: "p", Value: 1}}
	assert.Equal(t, ids, ctx.Events())
}

// -------------------------------------------------------------------------------------------------
// Model-based fuzzing reward accounting
// -------------------------------------------------------------------------------------------------
// Random awards across epochs, classes and validators. The record total must always equal the
// sum of individual counts and match a model counter.
// -------------------------------------------------------------------------------------------------

func TestPool_RewardAccountingFuzz(t *testing.T) {
	t.Parallel()
	prng := testutils.NewRand(t)

	const opsMax = 1 << 12

	f := newFixture(t)
	ctx := f.ctx(types.Origin{})
	validators := []types.AccountID{"v0", "v1", "v2", "v3"}
	model := make(map[[2]uint64]map[types.AccountID]uint64)

	for range opsMax {
		epoch := prng.Uint64N(3)
		id := types.ClassID(prng.Uint64N(3))
		v := testutils.RandElem(prng, validators)

		require.NoError(t, f.pool.AwardPoint(ctx, epoch, id, v))

		key := [2]uint64{epoch, uint64(id)}
		if model[key] == nil {
			model[key] = make(map[types.AccountID]uint64)
		}
		model[key][v]++
	}

	for key, want := range model {
		record, err := f.pool.RewardPoints(f.kv, key[0], types.ClassID(key[1]))
		require.NoError(t, err)

		var sum uint64
		for _, n := range record.Individual {
			sum += n
		}
		// Property: total equals the sum of individual counts.
		assert.Equal(t, sum, record.Total)
		assert.Equal(t, want, record.Individual)
	}
}
