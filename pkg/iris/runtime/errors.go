package runtime

import (
	"github.com/argus-labs/iris/pkg/iris/assets"
	"github.com/argus-labs/iris/pkg/iris/ledger"
	"github.com/argus-labs/iris/pkg/iris/pool"
	"github.com/argus-labs/iris/pkg/iris/queue"
	"github.com/argus-labs/iris/pkg/iris/types"
	"github.com/argus-labs/iris/pkg/sign"
	"github.com/rotisserie/eris"
	"google.golang.org/grpc/codes"
)

var (
	ErrUnknownCall     = eris.New("unknown call")
	ErrInvalidPayload  = eris.New("invalid call payload")
	ErrExpired         = eris.New("transaction has expired")
	ErrFutureTimestamp = eris.New("transaction timestamp is in the future")
	ErrReplay          = eris.New("transaction was already submitted")
	ErrMempoolFull     = eris.New("mempool is full")
)

// Code maps an error returned by the runtime, or recorded in a receipt, to a status code.
func Code(err error) codes.Code {
	switch {
	case err == nil:
		return codes.OK
	case eris.Is(err, ErrUnknownCall),
		eris.Is(err, ErrInvalidPayload),
		eris.Is(err, ErrExpired),
		eris.Is(err, ErrFutureTimestamp),
		eris.Is(err, types.ErrInvalidAccount),
		eris.Is(err, queue.ErrUnknownOwner),
		eris.Is(err, assets.ErrZeroAmount),
		eris.Is(err, assets.ErrZeroMinBalance):
		return codes.InvalidArgument
	case eris.Is(err, sign.ErrInvalidSignature),
		eris.Is(err, ledger.ErrNoSuchOwnedContent),
		eris.Is(err, pool.ErrBadOrigin),
		eris.Is(err, pool.ErrNotValidator):
		return codes.PermissionDenied
	case eris.Is(err, ledger.ErrNoSuchAssetClass):
		return codes.NotFound
	case eris.Is(err, pool.ErrDuplicate),
		eris.Is(err, ErrReplay):
		return codes.AlreadyExists
	case eris.Is(err, ledger.ErrCantCreateAssetClass),
		eris.Is(err, ledger.ErrCantMintAssets):
		return codes.FailedPrecondition
	case eris.Is(err, ErrMempoolFull):
		return codes.ResourceExhausted
	default:
		return codes.Internal
	}
}
