package queue

import (
	"github.com/argus-labs/iris/pkg/iris/ledger"
	"github.com/argus-labs/iris/pkg/iris/types"
	"github.com/argus-labs/iris/pkg/state"
	"github.com/rotisserie/eris"
)

// ErrUnknownOwner is returned when a retrieve request names no owner.
var ErrUnknownOwner = eris.New("owner account is required")

// OwnershipReader resolves the content id an admin owns under a class.
type OwnershipReader interface {
	LookupOwnedContentID(kv state.KV, admin types.AccountID, id types.ClassID) (types.ContentID, bool, error)
}

// Intake validates user requests and turns them into queued commands. Commands are buffered on
// the operation's context and reach the Queue only if the operation commits.
type Intake struct {
	ownership OwnershipReader
}

func NewIntake(ownership OwnershipReader) Intake {
	return Intake{ownership: ownership}
}

// EnqueuePublish queues a Publish command. Duplicate publishes for the same class are accepted;
// the worker report decides which one registers.
func (i Intake) EnqueuePublish(ctx *types.Context, cmd types.Publish) {
	ctx.Enqueue(cmd)
	ctx.Emit(types.QueuedDataToAdd{Admin: cmd.Admin, ClassID: cmd.ClassID})
}

// EnqueueRetrieve queues a Retrieve command for requester. The requester's access grant is not
// checked here.
func (i Intake) EnqueueRetrieve(ctx *types.Context, requester, owner types.AccountID, id types.ClassID) error {
	if owner == "" {
		return ErrUnknownOwner
	}
	ctx.Enqueue(types.Retrieve{Requester: requester, Owner: owner, ClassID: id})
	ctx.Emit(types.QueuedDataToCat{Requester: requester, ClassID: id})
	return nil
}

// EnqueuePin queues a Pin command for the content requester administers under class id.
func (i Intake) EnqueuePin(ctx *types.Context, requester types.AccountID, id types.ClassID) error {
	content, ok, err := i.ownership.LookupOwnedContentID(ctx.State, requester, id)
	if err != nil {
		return err
	}
	if !ok {
		return eris.Wrapf(ledger.ErrNoSuchOwnedContent, "account %s, class %d", requester, id)
	}
	ctx.Enqueue(types.Pin{Requester: requester, ClassID: id, ContentID: content})
	ctx.Emit(types.QueuedDataToPin{Requester: requester, ClassID: id})
	return nil
}
