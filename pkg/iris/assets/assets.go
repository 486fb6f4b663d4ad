// Package assets is the fungible-asset subsystem that backs content-classes with token classes
// and access grants with minted units.
package assets

import (
	"math"

	"github.com/argus-labs/iris/pkg/iris/types"
	"github.com/argus-labs/iris/pkg/state"
	"github.com/rotisserie/eris"
)

var (
	ErrClassExists         = eris.New("asset class already exists")
	ErrUnknownClass        = eris.New("unknown asset class")
	ErrNoPermission        = eris.New("caller does not administer the asset class")
	ErrZeroMinBalance      = eris.New("minimum balance must be positive")
	ErrZeroAmount          = eris.New("amount must be positive")
	ErrInsufficientBalance = eris.New("insufficient balance")
	ErrOverflow            = eris.New("asset supply overflow")
)

// Class is a fungible token class.
type Class struct {
	Admin      types.AccountID
	MinBalance types.Balance
	Supply     types.Balance
}

// Registry stores asset classes and balances.
type Registry struct {
	classes  state.Map[Class]
	balances state.Map[types.Balance]
}

func NewRegistry() *Registry {
	return &Registry{
		classes:  state.NewMap[Class]("assets/class"),
		balances: state.NewMap[types.Balance]("assets/balance"),
	}
}

// CreateClass creates class id administered by admin. A holder's balance may never be created
// below minBalance.
func (r *Registry) CreateClass(ctx *types.Context, id types.ClassID, admin types.AccountID, minBalance types.Balance) error {
	if minBalance == 0 {
		return ErrZeroMinBalance
	}
	exists, err := r.classes.Has(ctx.State, id.String())
	if err != nil {
		return err
	}
	if exists {
		return eris.Wrapf(ErrClassExists, "class %d", id)
	}
	return r.classes.Set(ctx.State, id.String(), Class{Admin: admin, MinBalance: minBalance})
}

// MintUnits mints amount units of class id to beneficiary. Only the class admin may mint.
func (r *Registry) MintUnits(
	ctx *types.Context,
	id types.ClassID,
	admin, beneficiary types.AccountID,
	amount types.Balance,
) error {
	if amount == 0 {
		return ErrZeroAmount
	}

	class, ok, err := r.classes.Get(ctx.State, id.String())
	if err != nil {
		return err
	}
	if !ok {
		return eris.Wrapf(ErrUnknownClass, "class %d", id)
	}
	if class.Admin != admin {
		return eris.Wrapf(ErrNoPermission, "class %d", id)
	}

	key := state.Key(id.String(), beneficiary.String())
	balance, _, err := r.balances.Get(ctx.State, key)
	if err != nil {
		return err
	}
	if balance == 0 && amount < class.MinBalance {
		return eris.Wrapf(ErrInsufficientBalance, "mint of %d is below minimum balance %d", amount, class.MinBalance)
	}
	if balance > math.MaxUint64-amount || class.Supply > math.MaxUint64-amount {
		return ErrOverflow
	}

	class.Supply += amount
	if err := r.classes.Set(ctx.State, id.String(), class); err != nil {
		return err
	}
	return r.balances.Set(ctx.State, key, balance+amount)
}

// Class returns the asset class for id.
func (r *Registry) Class(kv state.KV, id types.ClassID) (Class, bool, error) {
	return r.classes.Get(kv, id.String())
}

// Balance returns account's balance of class id.
func (r *Registry) Balance(kv state.KV, id types.ClassID, account types.AccountID) (types.Balance, error) {
	b, _, err := r.balances.Get(kv, state.Key(id.String(), account.String()))
	return b, err
}
