// Package ledger records which account administers each content-class and which accounts hold
// access grants to it.
package ledger

import (
	"bytes"
	"slices"

	"github.com/argus-labs/iris/pkg/iris/types"
	"github.com/argus-labs/iris/pkg/state"
	"github.com/rotisserie/eris"
)

var (
	ErrNoSuchOwnedContent   = eris.New("caller does not administer the content-class")
	ErrNoSuchAssetClass     = eris.New("content-class does not exist")
	ErrCantCreateAssetClass = eris.New("asset subsystem could not create the class")
	ErrCantMintAssets       = eris.New("asset subsystem could not mint units")
)

// AssetSubsystem creates token classes and mints units for content-classes.
type AssetSubsystem interface {
	CreateClass(ctx *types.Context, id types.ClassID, admin types.AccountID, minBalance types.Balance) error
	MintUnits(ctx *types.Context, id types.ClassID, admin, beneficiary types.AccountID, amount types.Balance) error
}

// Ledger is the ownership and access-control ledger.
type Ledger struct {
	assets AssetSubsystem

	// (admin, class) -> content id
	ownership state.Map[types.ContentID]
	// class -> admin
	admins state.Map[types.AccountID]
	// (beneficiary, class) -> admin that granted access
	access state.Map[types.AccountID]
	// every registered class, in registration order
	classes state.Item[[]types.ClassID]
}

func New(assets AssetSubsystem) *Ledger {
	return &Ledger{
		assets:    assets,
		ownership: state.NewMap[types.ContentID]("ledger/ownership"),
		admins:    state.NewMap[types.AccountID]("ledger/admin"),
		access:    state.NewMap[types.AccountID]("ledger/access"),
		classes:   state.NewItem[[]types.ClassID]("ledger/classes"),
	}
}

func ownershipKey(admin types.AccountID, id types.ClassID) string {
	return state.Key(admin.String(), state.U64(uint64(id)))
}

// RegisterContentClass records that admin owns contentID under class id, creating the backing
// asset class. Reporting the same registration twice is a no-op; any other registration for an
// existing class fails with ErrCantCreateAssetClass.
func (l *Ledger) RegisterContentClass(
	ctx *types.Context,
	admin types.AccountID,
	contentID types.ContentID,
	id types.ClassID,
	reserved types.Balance,
) error {
	current, exists, err := l.admins.Get(ctx.State, state.U64(uint64(id)))
	if err != nil {
		return err
	}
	if exists {
		owned, _, err := l.ownership.Get(ctx.State, ownershipKey(current, id))
		if err != nil {
			return err
		}
		if current == admin && bytes.Equal(owned, contentID) {
			return nil
		}
		return eris.Wrapf(ErrCantCreateAssetClass, "class %d is already registered", id)
	}

	if err := l.assets.CreateClass(ctx, id, admin, reserved); err != nil {
		return eris.Wrapf(ErrCantCreateAssetClass, "class %d: %v", id, err)
	}

	if err := l.ownership.Set(ctx.State, ownershipKey(admin, id), contentID); err != nil {
		return err
	}
	if err := l.admins.Set(ctx.State, state.U64(uint64(id)), admin); err != nil {
		return err
	}
	classes, _, err := l.classes.Get(ctx.State)
	if err != nil {
		return err
	}
	if !slices.Contains(classes, id) {
		if err := l.classes.Set(ctx.State, append(classes, id)); err != nil {
			return err
		}
	}

	ctx.Emit(types.AssetClassCreated{ClassID: id})
	return nil
}

// MintAccess mints amount units of class id to beneficiary and records the access grant. The
// caller must administer the class. Minting again for the same beneficiary overwrites the grant.
func (l *Ledger) MintAccess(
	ctx *types.Context,
	caller, beneficiary types.AccountID,
	id types.ClassID,
	amount types.Balance,
) error {
	if _, ok, err := l.LookupOwnedContentID(ctx.State, caller, id); err != nil {
		return err
	} else if !ok {
		return eris.Wrapf(ErrNoSuchOwnedContent, "account %s, class %d", caller, id)
	}

	if err := l.assets.MintUnits(ctx, id, caller, beneficiary, amount); err != nil {
		return eris.Wrapf(ErrCantMintAssets, "class %d: %v", id, err)
	}

	if err := l.access.Set(ctx.State, ownershipKey(beneficiary, id), caller); err != nil {
		return err
	}

	ctx.Emit(types.AssetCreated{ClassID: id, Beneficiary: beneficiary, Amount: amount})
	return nil
}

// LookupOwnedContentID returns the content id admin owns under class id.
func (l *Ledger) LookupOwnedContentID(kv state.KV, admin types.AccountID, id types.ClassID) (types.ContentID, bool, error) {
	return l.ownership.Get(kv, ownershipKey(admin, id))
}

// AccessAdmin returns the admin that granted beneficiary access to class id.
func (l *Ledger) AccessAdmin(kv state.KV, beneficiary types.AccountID, id types.ClassID) (types.AccountID, bool, error) {
	return l.access.Get(kv, ownershipKey(beneficiary, id))
}

// Admin returns the account administering class id.
func (l *Ledger) Admin(kv state.KV, id types.ClassID) (types.AccountID, bool, error) {
	return l.admins.Get(kv, state.U64(uint64(id)))
}

// ClassExists reports whether class id has been registered.
func (l *Ledger) ClassExists(kv state.KV, id types.ClassID) (bool, error) {
	return l.admins.Has(kv, state.U64(uint64(id)))
}

// ClassIDs returns every registered class in registration order.
func (l *Ledger) ClassIDs(kv state.KV) ([]types.ClassID, error) {
	ids, _, err := l.classes.Get(kv)
	return ids, err
}
