package runtime

import (
	"context"

	"github.com/argus-labs/iris/pkg/iris/pool"
	"github.com/argus-labs/iris/pkg/iris/queue"
	"github.com/argus-labs/iris/pkg/iris/types"
	"github.com/argus-labs/iris/pkg/state"
)

// Reads in this file see committed state only. Account arguments are validated before they
// are used to build keys.

func (r *Runtime) read(ctx context.Context, fn func(kv state.KV) error) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return fn(state.NewCache(ctx, r.store))
}

type Status struct {
	Height  uint64 `json:"height"`
	Epoch   uint64 `json:"epoch"`
	Queued  int    `json:"queued"`
	Mempool int    `json:"mempool"`
}

func (r *Runtime) Status(ctx context.Context) (Status, error) {
	var s Status
	err := r.read(ctx, func(kv state.KV) error {
		var err error
		if s.Height, _, err = r.height.Get(kv); err != nil {
			return err
		}
		s.Epoch, err = r.session.CurrentEpoch(kv)
		return err
	})
	s.Queued = r.queue.Len()

	r.mempoolMu.Lock()
	s.Mempool = len(r.mempool)
	r.mempoolMu.Unlock()
	return s, err
}

// LookupOwnedContentID returns the content id admin owns under class id.
func (r *Runtime) LookupOwnedContentID(
	ctx context.Context,
	admin types.AccountID,
	id types.ClassID,
) (types.ContentID, bool, error) {
	if err := admin.Validate(); err != nil {
		return nil, false, err
	}
	var (
		content types.ContentID
		ok      bool
	)
	err := r.read(ctx, func(kv state.KV) error {
		var err error
		content, ok, err = r.ledger.LookupOwnedContentID(kv, admin, id)
		return err
	})
	return content, ok, err
}

// AccessAdmin returns the admin that granted beneficiary access to class id.
func (r *Runtime) AccessAdmin(
	ctx context.Context,
	beneficiary types.AccountID,
	id types.ClassID,
) (types.AccountID, bool, error) {
	if err := beneficiary.Validate(); err != nil {
		return "", false, err
	}
	var (
		admin types.AccountID
		ok    bool
	)
	err := r.read(ctx, func(kv state.KV) error {
		var err error
		admin, ok, err = r.ledger.AccessAdmin(kv, beneficiary, id)
		return err
	})
	return admin, ok, err
}

func (r *Runtime) Balance(ctx context.Context, id types.ClassID, account types.AccountID) (types.Balance, error) {
	if err := account.Validate(); err != nil {
		return 0, err
	}
	var b types.Balance
	err := r.read(ctx, func(kv state.KV) error {
		var err error
		b, err = r.assets.Balance(kv, id, account)
		return err
	})
	return b, err
}

func (r *Runtime) Classes(ctx context.Context) ([]types.ClassID, error) {
	var ids []types.ClassID
	err := r.read(ctx, func(kv state.KV) error {
		var err error
		ids, err = r.ledger.ClassIDs(kv)
		return err
	})
	return ids, err
}

type ValidatorSet struct {
	Epoch   uint64            `json:"epoch"`
	Members []types.AccountID `json:"members"`
	// Validators active in the current epoch.
	Active []types.AccountID `json:"active"`
}

func (r *Runtime) Validators(ctx context.Context) (ValidatorSet, error) {
	var v ValidatorSet
	err := r.read(ctx, func(kv state.KV) error {
		var err error
		if v.Members, err = r.pool.Validators(kv); err != nil {
			return err
		}
		if v.Active, err = r.session.CurrentValidators(kv); err != nil {
			return err
		}
		v.Epoch, err = r.session.CurrentEpoch(kv)
		return err
	})
	return v, err
}

func (r *Runtime) IsValidator(ctx context.Context, account types.AccountID) (bool, error) {
	if err := account.Validate(); err != nil {
		return false, err
	}
	var ok bool
	err := r.read(ctx, func(kv state.KV) error {
		var err error
		ok, err = r.pool.IsValidator(kv, account)
		return err
	})
	return ok, err
}

func (r *Runtime) RewardPoints(ctx context.Context, epoch uint64, id types.ClassID) (pool.RewardRecord, error) {
	var record pool.RewardRecord
	err := r.read(ctx, func(kv state.KV) error {
		var err error
		record, err = r.pool.RewardPoints(kv, epoch, id)
		return err
	})
	return record, err
}

func (r *Runtime) Providers(ctx context.Context, id types.ClassID) ([]types.AccountID, error) {
	var providers []types.AccountID
	err := r.read(ctx, func(kv state.KV) error {
		var err error
		providers, err = r.pool.Providers(kv, id)
		return err
	})
	return providers, err
}

func (r *Runtime) Ready(ctx context.Context, account types.AccountID) (pool.ReadySignal, bool, error) {
	if err := account.Validate(); err != nil {
		return pool.ReadySignal{}, false, err
	}
	var (
		signal pool.ReadySignal
		ok     bool
	)
	err := r.read(ctx, func(kv state.KV) error {
		var err error
		signal, ok, err = r.pool.Ready(kv, account)
		return err
	})
	return signal, ok, err
}

// PendingCommands returns the queued commands without draining them.
func (r *Runtime) PendingCommands() []queue.Entry {
	return r.queue.Snapshot()
}
