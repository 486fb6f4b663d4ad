package node

import (
	"context"

	"github.com/argus-labs/iris/pkg/iris/runtime"
	"github.com/argus-labs/iris/pkg/micro"
	"github.com/argus-labs/iris/pkg/sign"
	"github.com/rotisserie/eris"
	"google.golang.org/grpc/codes"
)

// registerEndpoints serves the runtime on the node's NATS address.
func (n *Node) registerEndpoints() error {
	endpoints := map[string]micro.Handler{
		micro.EndpointSubmit:  n.handleSubmit,
		micro.EndpointContent: n.handleContent,
		micro.EndpointRewards: n.handleRewards,
		micro.EndpointStatus:  n.handleStatus,
	}
	for name, handler := range endpoints {
		if err := n.service.AddEndpoint(name, handler); err != nil {
			return eris.Wrapf(err, "failed to register endpoint %s", name)
		}
	}
	return nil
}

// canceled returns an error response if the node is shutting down.
func canceled(ctx context.Context, req *micro.Request) *micro.Response {
	select {
	case <-ctx.Done():
		return micro.NewErrorResponse(req, eris.Wrap(ctx.Err(), "context cancelled"), codes.Canceled)
	default:
		return nil
	}
}

func (n *Node) handleSubmit(ctx context.Context, req *micro.Request) *micro.Response {
	if resp := canceled(ctx, req); resp != nil {
		return resp
	}

	tx := new(sign.Transaction)
	if err := req.Decode(tx); err != nil {
		return micro.NewErrorResponse(req, eris.Wrap(err, "failed to parse request payload"), codes.InvalidArgument)
	}

	hash, err := n.runtime.Submit(ctx, tx)
	if err != nil {
		return micro.NewErrorResponse(req, err, runtime.Code(err))
	}
	return micro.NewSuccessResponse(req, micro.SubmitReply{Hash: hash})
}

func (n *Node) handleContent(ctx context.Context, req *micro.Request) *micro.Response {
	var q micro.ContentQuery
	if err := req.Decode(&q); err != nil {
		return micro.NewErrorResponse(req, eris.Wrap(err, "failed to parse request payload"), codes.InvalidArgument)
	}

	content, ok, err := n.runtime.LookupOwnedContentID(ctx, q.Admin, q.ClassID)
	if err != nil {
		return micro.NewErrorResponse(req, err, runtime.Code(err))
	}
	return micro.NewSuccessResponse(req, micro.ContentReply{ContentID: content, Found: ok})
}

func (n *Node) handleRewards(ctx context.Context, req *micro.Request) *micro.Response {
	var q micro.RewardsQuery
	if err := req.Decode(&q); err != nil {
		return micro.NewErrorResponse(req, eris.Wrap(err, "failed to parse request payload"), codes.InvalidArgument)
	}

	record, err := n.runtime.RewardPoints(ctx, q.Epoch, q.ClassID)
	if err != nil {
		return micro.NewErrorResponse(req, err, codes.Internal)
	}
	return micro.NewSuccessResponse(req, record)
}

func (n *Node) handleStatus(ctx context.Context, req *micro.Request) *micro.Response {
	status, err := n.runtime.Status(ctx)
	if err != nil {
		return micro.NewErrorResponse(req, err, codes.Internal)
	}
	return micro.NewSuccessResponse(req, status)
}
