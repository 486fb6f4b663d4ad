// Package session tracks epochs and the validator set active in each one.
//
// A new validator set handed to SetValidators is queued and becomes active at the next epoch
// boundary. Epochs advance every BlocksPerEpoch blocks.
package session

import (
	"slices"

	"github.com/argus-labs/iris/pkg/iris/types"
	"github.com/argus-labs/iris/pkg/state"
	"github.com/rotisserie/eris"
)

type sessionState struct {
	Epoch     uint64
	Active    []types.AccountID
	Queued    []types.AccountID
	HasQueued bool
}

// Manager is the session collaborator of the runtime.
type Manager struct {
	blocksPerEpoch uint64
	state          state.Item[sessionState]
}

func NewManager(blocksPerEpoch uint64) (*Manager, error) {
	if blocksPerEpoch == 0 {
		return nil, eris.New("blocks per epoch must be positive")
	}
	return &Manager{
		blocksPerEpoch: blocksPerEpoch,
		state:          state.NewItem[sessionState]("session"),
	}, nil
}

// InitGenesis activates validators for epoch 0. It is a no-op once a session exists.
func (m *Manager) InitGenesis(kv state.KV, validators []types.AccountID) error {
	_, ok, err := m.state.Get(kv)
	if err != nil || ok {
		return err
	}
	return m.state.Set(kv, sessionState{Active: slices.Clone(validators)})
}

// SetValidators queues validators as the set for the next epoch.
func (m *Manager) SetValidators(kv state.KV, validators []types.AccountID) error {
	s, _, err := m.state.Get(kv)
	if err != nil {
		return err
	}
	s.Queued = slices.Clone(validators)
	s.HasQueued = true
	return m.state.Set(kv, s)
}

// CurrentValidators returns the set active in the current epoch.
func (m *Manager) CurrentValidators(kv state.KV) ([]types.AccountID, error) {
	s, _, err := m.state.Get(kv)
	return s.Active, err
}

// QueuedValidators returns the set that activates at the next boundary, if any.
func (m *Manager) QueuedValidators(kv state.KV) ([]types.AccountID, bool, error) {
	s, _, err := m.state.Get(kv)
	return s.Queued, s.HasQueued, err
}

// CurrentEpoch returns the current epoch.
func (m *Manager) CurrentEpoch(kv state.KV) (uint64, error) {
	s, _, err := m.state.Get(kv)
	return s.Epoch, err
}

// OnBlock advances the epoch when height starts a new one and reports whether it did.
func (m *Manager) OnBlock(kv state.KV, height uint64) (bool, error) {
	if height == 0 || height%m.blocksPerEpoch != 0 {
		return false, nil
	}

	s, _, err := m.state.Get(kv)
	if err != nil {
		return false, err
	}
	s.Epoch++
	if s.HasQueued {
		s.Active = s.Queued
		s.Queued = nil
		s.HasQueued = false
	}
	return true, m.state.Set(kv, s)
}
