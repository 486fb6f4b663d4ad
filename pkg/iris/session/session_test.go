package session_test

import (
	"context"
	"testing"

	"github.com/argus-labs/iris/pkg/iris/session"
	"github.com/argus-labs/iris/pkg/iris/types"
	"github.com/argus-labs/iris/pkg/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_EpochRotation(t *testing.T) {
	t.Parallel()

	kv := state.NewCache(context.Background(), state.NewMemStore())
	m, err := session.NewManager(3)
	require.NoError(t, err)

	require.NoError(t, m.InitGenesis(kv, []types.AccountID{"a"}))
	require.NoError(t, m.InitGenesis(kv, []types.AccountID{"ignored"}))

	active, err := m.CurrentValidators(kv)
	require.NoError(t, err)
	assert.Equal(t, []types.AccountID{"a"}, active)

	require.NoError(t, m.SetValidators(kv, []types.AccountID{"a", "b"}))
	queued, ok, err := m.QueuedValidators(kv)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []types.AccountID{"a", "b"}, queued)

	for height := uint64(1); height < 3; height++ {
		rotated, err := m.OnBlock(kv, height)
		require.NoError(t, err)
		assert.False(t, rotated)
	}
	active, err = m.CurrentValidators(kv)
	require.NoError(t, err)
	assert.Equal(t, []types.AccountID{"a"}, active, "queued set waits for the boundary")

	rotated, err := m.OnBlock(kv, 3)
	require.NoError(t, err)
	assert.True(t, rotated)

	epoch, err := m.CurrentEpoch(kv)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), epoch)
	active, err = m.CurrentValidators(kv)
	require.NoError(t, err)
	assert.Equal(t, []types.AccountID{"a", "b"}, active)
	_, ok, err = m.QueuedValidators(kv)
	require.NoError(t, err)
	assert.False(t, ok)

	// With nothing queued the active set carries over.
	_, err = m.OnBlock(kv, 6)
	require.NoError(t, err)
	active, err = m.CurrentValidators(kv)
	require.NoError(t, err)
	assert.Equal(t, []types.AccountID{"a", "b"}, active)
}

func TestNewManager_RejectsZeroEpochLength(t *testing.T) {
	t.Parallel()

	_, err := session.NewManager(0)
	require.Error(t, err)
}
