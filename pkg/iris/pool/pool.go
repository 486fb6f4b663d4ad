// Package pool maintains the validator set, storage-pool membership per content-class, per-epoch
// reward points and node readiness signals.
package pool

import (
	"math"
	"slices"

	"github.com/argus-labs/iris/pkg/iris/ledger"
	"github.com/argus-labs/iris/pkg/iris/types"
	"github.com/argus-labs/iris/pkg/state"
	"github.com/rotisserie/eris"
)

var (
	ErrBadOrigin    = eris.New("call requires the root origin")
	ErrDuplicate    = eris.New("validator is already a member")
	ErrNotValidator = eris.New("account is not a validator")
)

// SessionCollaborator receives validator set changes for activation at the next epoch.
type SessionCollaborator interface {
	SetValidators(kv state.KV, validators []types.AccountID) error
}

// ClassLookup resolves the admin of a content-class.
type ClassLookup interface {
	Admin(kv state.KV, id types.ClassID) (types.AccountID, bool, error)
}

// RewardRecord aggregates the points awarded for one (epoch, class) pair. Total always equals
// the sum of Individual.
type RewardRecord struct {
	Total      uint64                     `json:"total"`
	Individual map[types.AccountID]uint64 `json:"individual"`
}

// ReadySignal is the last readiness value a node submitted.
type ReadySignal struct {
	Value  uint64 `json:"value"`
	Height uint64 `json:"height"`
}

type Pool struct {
	session SessionCollaborator
	classes ClassLookup

	validators state.Item[[]types.AccountID]
	// (class, provider) -> membership
	providers state.Map[bool]
	// (epoch, class) -> record
	rewards state.Map[RewardRecord]
	// (epoch, class, validator, award key) -> already awarded
	awarded state.Map[bool]
	// account -> last readiness signal
	ready state.Map[ReadySignal]
}

func New(session SessionCollaborator, classes ClassLookup) *Pool {
	return &Pool{
		session:    session,
		classes:    classes,
		validators: state.NewItem[[]types.AccountID]("pool/validators"),
		providers:  state.NewMap[bool]("pool/providers"),
		rewards:    state.NewMap[RewardRecord]("pool/rewards"),
		awarded:    state.NewMap[bool]("pool/awarded"),
		ready:      state.NewMap[ReadySignal]("pool/ready"),
	}
}

// InitGenesis seeds the validator set. Duplicates are rejected.
func (p *Pool) InitGenesis(kv state.KV, validators []types.AccountID) error {
	seen := make(map[types.AccountID]struct{}, len(validators))
	for _, v := range validators {
		if _, ok := seen[v]; ok {
			return eris.Wrapf(ErrDuplicate, "genesis validator %s", v)
		}
		seen[v] = struct{}{}
	}
	return p.validators.Set(kv, slices.Clone(validators))
}

// AddValidator appends account to the validator set. Root only.
func (p *Pool) AddValidator(ctx *types.Context, account types.AccountID) error {
	if !ctx.Origin.Root {
		return ErrBadOrigin
	}
	validators, err := p.Validators(ctx.State)
	if err != nil {
		return err
	}
	if slices.Contains(validators, account) {
		return eris.Wrapf(ErrDuplicate, "validator %s", account)
	}

	validators = append(validators, account)
	if err := p.setValidators(ctx.State, validators); err != nil {
		return err
	}
	ctx.Emit(types.ValidatorAdded{Account: account})
	return nil
}

// RemoveValidator removes account from the validator set. Removing a non-member is a no-op.
// Root only.
func (p *Pool) RemoveValidator(ctx *types.Context, account types.AccountID) error {
	if !ctx.Origin.Root {
		return ErrBadOrigin
	}
	validators, err := p.Validators(ctx.State)
	if err != nil {
		return err
	}
	idx := slices.Index(validators, account)
	if idx == -1 {
		return nil
	}

	validators = slices.Delete(validators, idx, idx+1)
	if err := p.setValidators(ctx.State, validators); err != nil {
		return err
	}
	ctx.Emit(types.ValidatorRemoved{Account: account})
	return nil
}

func (p *Pool) setValidators(kv state.KV, validators []types.AccountID) error {
	if err := p.validators.Set(kv, validators); err != nil {
		return err
	}
	return p.session.SetValidators(kv, validators)
}

// Validators returns the validator set in insertion order.
func (p *Pool) Validators(kv state.KV) ([]types.AccountID, error) {
	v, _, err := p.validators.Get(kv)
	return v, err
}

// IsValidator reports whether account is in the validator set.
func (p *Pool) IsValidator(kv state.KV, account types.AccountID) (bool, error) {
	v, err := p.Validators(kv)
	return slices.Contains(v, account), err
}

// JoinStoragePool registers caller as a storage provider for class id, which beneficiary must
// administer, and awards caller one point for the current epoch.
func (p *Pool) JoinStoragePool(ctx *types.Context, caller, beneficiary types.AccountID, id types.ClassID) error {
	admin, ok, err := p.classes.Admin(ctx.State, id)
	if err != nil {
		return err
	}
	if !ok {
		return eris.Wrapf(ledger.ErrNoSuchAssetClass, "class %d", id)
	}
	if admin != beneficiary {
		return eris.Wrapf(ledger.ErrNoSuchOwnedContent, "account %s, class %d", beneficiary, id)
	}
	isValidator, err := p.IsValidator(ctx.State, caller)
	if err != nil {
		return err
	}
	if !isValidator {
		return eris.Wrapf(ErrNotValidator, "account %s", caller)
	}

	if err := p.providers.Set(ctx.State, state.Key(state.U64(uint64(id)), caller.String()), true); err != nil {
		return err
	}
	ctx.Emit(types.StorageProviderJoined{Provider: caller, ClassID: id})
	return p.AwardPoint(ctx, ctx.Epoch, id, caller)
}

// Providers returns the storage providers of class id in key order.
func (p *Pool) Providers(kv state.KV, id types.ClassID) ([]types.AccountID, error) {
	var out []types.AccountID
	err := p.providers.Iterate(kv, state.U64(uint64(id))+"/", func(key string, _ bool) (bool, error) {
		parts := state.SplitKey(key)
		out = append(out, types.AccountID(parts[len(parts)-1]))
		return true, nil
	})
	return out, err
}

func rewardKey(epoch uint64, id types.ClassID) string {
	return state.Key(state.U64(epoch), state.U64(uint64(id)))
}

// AwardPoint adds one point for validator to the (epoch, id) record. Counters saturate. It only
// fails when state cannot be read or written.
func (p *Pool) AwardPoint(ctx *types.Context, epoch uint64, id types.ClassID, validator types.AccountID) error {
	key := rewardKey(epoch, id)
	record, _, err := p.rewards.Get(ctx.State, key)
	if err != nil {
		return err
	}
	if record.Individual == nil {
		record.Individual = make(map[types.AccountID]uint64)
	}

	// Incrementing both or neither keeps Total equal to the sum of Individual.
	if record.Total < math.MaxUint64 && record.Individual[validator] < math.MaxUint64 {
		record.Total++
		record.Individual[validator]++
	}

	if err := p.rewards.Set(ctx.State, key, record); err != nil {
		return err
	}
	ctx.Emit(types.RewardPointAwarded{Epoch: epoch, ClassID: id, Validator: validator})
	return nil
}

// AwardOnce awards validator a point for (epoch, id) unless it was already awarded one under the
// same awardKey. It reports whether a point was awarded.
func (p *Pool) AwardOnce(
	ctx *types.Context,
	epoch uint64,
	id types.ClassID,
	validator types.AccountID,
	awardKey string,
) (bool, error) {
	key := state.Key(state.U64(epoch), state.U64(uint64(id)), validator.String(), awardKey)
	done, err := p.awarded.Has(ctx.State, key)
	if err != nil || done {
		return false, err
	}
	if err := p.awarded.Set(ctx.State, key, true); err != nil {
		return false, err
	}
	return true, p.AwardPoint(ctx, epoch, id, validator)
}

// RewardPoints returns the record for (epoch, id). Missing records are empty.
func (p *Pool) RewardPoints(kv state.KV, epoch uint64, id types.ClassID) (RewardRecord, error) {
	record, _, err := p.rewards.Get(kv, rewardKey(epoch, id))
	if record.Individual == nil {
		record.Individual = make(map[types.AccountID]uint64)
	}
	return record, err
}

// SubmitRPCReady records that caller is ready to serve traffic.
func (p *Pool) SubmitRPCReady(ctx *types.Context, caller types.AccountID, value uint64) error {
	if err := p.ready.Set(ctx.State, caller.String(), ReadySignal{Value: value, Height: ctx.Height}); err != nil {
		return err
	}
	ctx.Emit(types.RPCReady{Account: caller, Value: value})
	return nil
}

// Ready returns the last readiness signal from account.
func (p *Pool) Ready(kv state.KV, account types.AccountID) (ReadySignal, bool, error) {
	return p.ready.Get(kv, account.String())
}
