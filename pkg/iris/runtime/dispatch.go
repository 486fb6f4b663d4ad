package runtime

import (
	"github.com/argus-labs/iris/pkg/iris/pool"
	"github.com/argus-labs/iris/pkg/iris/types"
	"github.com/argus-labs/iris/pkg/sign"
	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
)

type handler func(ctx *types.Context, tx *sign.Transaction) error

// route decodes and validates the payload into P before calling fn.
func route[P any](fn func(ctx *types.Context, tx *sign.Transaction, p P) error) handler {
	return func(ctx *types.Context, tx *sign.Transaction) error {
		var p P
		if err := json.Unmarshal(tx.Payload, &p); err != nil {
			return eris.Wrapf(ErrInvalidPayload, "%s: %v", tx.Call, err)
		}
		if v, ok := any(p).(validator); ok {
			if err := v.Validate(); err != nil {
				return eris.Wrapf(ErrInvalidPayload, "%s: %v", tx.Call, err)
			}
		}
		return fn(ctx, tx, p)
	}
}

func (r *Runtime) routes() map[string]handler {
	return map[string]handler{
		CallRegisterContentRequest: route(r.registerContentRequest),
		CallMintAccess:             route(r.mintAccess),
		CallRequestRetrieve:        route(r.requestRetrieve),
		CallRequestPin:             route(r.requestPin),
		CallAddValidator:           route(r.addValidator),
		CallRemoveValidator:        route(r.removeValidator),
		CallJoinStoragePool:        route(r.joinStoragePool),
		CallSubmitRPCReady:         route(r.submitRPCReady),
		CallReportPublishResult:    route(r.reportPublishResult),
		CallReportRetrieveResult:   route(r.reportRetrieveResult),
		CallReportPinResult:        route(r.reportPinResult),
	}
}

func (r *Runtime) dispatch(ctx *types.Context, tx *sign.Transaction) error {
	h, ok := r.handlers[tx.Call]
	if !ok {
		return eris.Wrapf(ErrUnknownCall, "%q", tx.Call)
	}
	return h(ctx, tx)
}

// -------------------------------------------------------------------------------------------------
// User calls
// -------------------------------------------------------------------------------------------------

func (r *Runtime) registerContentRequest(ctx *types.Context, _ *sign.Transaction, p RegisterContentRequest) error {
	r.intake.EnqueuePublish(ctx, types.Publish{
		Address:   p.Address,
		ContentID: p.ContentID,
		Admin:     p.Admin,
		Filename:  p.Filename,
		ClassID:   p.ClassID,
		Balance:   p.Balance,
	})
	return nil
}

func (r *Runtime) mintAccess(ctx *types.Context, _ *sign.Transaction, p MintAccess) error {
	return r.ledger.MintAccess(ctx, ctx.Origin.Account, p.Beneficiary, p.ClassID, p.Amount)
}

func (r *Runtime) requestRetrieve(ctx *types.Context, _ *sign.Transaction, p RequestRetrieve) error {
	return r.intake.EnqueueRetrieve(ctx, ctx.Origin.Account, p.Owner, p.ClassID)
}

func (r *Runtime) requestPin(ctx *types.Context, _ *sign.Transaction, p RequestPin) error {
	return r.intake.EnqueuePin(ctx, ctx.Origin.Account, p.ClassID)
}

func (r *Runtime) addValidator(ctx *types.Context, _ *sign.Transaction, p ValidatorChange) error {
	return r.pool.AddValidator(ctx, p.Account)
}

func (r *Runtime) removeValidator(ctx *types.Context, _ *sign.Transaction, p ValidatorChange) error {
	return r.pool.RemoveValidator(ctx, p.Account)
}

func (r *Runtime) joinStoragePool(ctx *types.Context, _ *sign.Transaction, p JoinStoragePool) error {
	return r.pool.JoinStoragePool(ctx, ctx.Origin.Account, p.Beneficiary, p.ClassID)
}

func (r *Runtime) submitRPCReady(ctx *types.Context, _ *sign.Transaction, p SubmitRPCReady) error {
	return r.pool.SubmitRPCReady(ctx, ctx.Origin.Account, p.Value)
}

// -------------------------------------------------------------------------------------------------
// Worker reports
// -------------------------------------------------------------------------------------------------

// awardKey identifies what a report is rewarded for. Reports without a command id are keyed by
// their own hash.
func awardKey(tx *sign.Transaction, commandID string) string {
	if commandID != "" {
		return "cmd:" + commandID
	}
	return "tx:" + tx.Hash()
}

// reportPublishResult registers the reported content. Any signer may report; validators also
// earn a point, once per command.
func (r *Runtime) reportPublishResult(ctx *types.Context, tx *sign.Transaction, p ReportPublishResult) error {
	if err := r.ledger.RegisterContentClass(ctx, p.Admin, p.ContentID, p.ClassID, p.Balance); err != nil {
		return err
	}
	isValidator, err := r.pool.IsValidator(ctx.State, ctx.Origin.Account)
	if err != nil || !isValidator {
		return err
	}
	_, err = r.pool.AwardOnce(ctx, ctx.Epoch, p.ClassID, ctx.Origin.Account, awardKey(tx, p.CommandID))
	return err
}

func (r *Runtime) reportRetrieveResult(ctx *types.Context, tx *sign.Transaction, p ReportRetrieveResult) error {
	return r.awardValidator(ctx, p.ClassID, awardKey(tx, p.CommandID))
}

func (r *Runtime) reportPinResult(ctx *types.Context, tx *sign.Transaction, p ReportPinResult) error {
	return r.awardValidator(ctx, p.ClassID, awardKey(tx, p.CommandID))
}

func (r *Runtime) awardValidator(ctx *types.Context, id types.ClassID, key string) error {
	caller := ctx.Origin.Account
	isValidator, err := r.pool.IsValidator(ctx.State, caller)
	if err != nil {
		return err
	}
	if !isValidator {
		return eris.Wrapf(pool.ErrNotValidator, "account %s", caller)
	}
	_, err = r.pool.AwardOnce(ctx, ctx.Epoch, id, caller, key)
	return err
}
