package micro

import (
	"context"
	"errors"
	"time"

	"github.com/argus-labs/iris/pkg/iris/types"
	"github.com/argus-labs/iris/pkg/sign"
	"github.com/rotisserie/eris"
	"google.golang.org/grpc/codes"
)

// Endpoints a node serves for remote workers and clients.
const (
	EndpointSubmit  = "tx.submit"
	EndpointContent = "query.content"
	EndpointRewards = "query.rewards"
	EndpointStatus  = "query.status"
)

// SubmitReply acknowledges a submitted transaction.
type SubmitReply struct {
	Hash string `json:"hash"`
}

type ContentQuery struct {
	Admin   types.AccountID `json:"admin"`
	ClassID types.ClassID   `json:"classId"`
}

type ContentReply struct {
	ContentID types.ContentID `json:"contentId,omitempty"`
	Found     bool            `json:"found"`
}

type RewardsQuery struct {
	Epoch   uint64        `json:"epoch"`
	ClassID types.ClassID `json:"classId"`
}

// RuntimeClient talks to a node's runtime over NATS. It lets a worker run in a process that does
// not host the runtime.
type RuntimeClient struct {
	client  *Client
	address *ServiceAddress
	timeout time.Duration
}

func NewRuntimeClient(client *Client, address *ServiceAddress, timeout time.Duration) *RuntimeClient {
	return &RuntimeClient{client: client, address: address, timeout: timeout}
}

func (c *RuntimeClient) request(ctx context.Context, endpoint string, payload, reply any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.Request(ctx, c.address, endpoint, payload)
	if err != nil {
		return err
	}
	return resp.Decode(reply)
}

// Submit sends tx to the node's mempool and returns its hash.
func (c *RuntimeClient) Submit(ctx context.Context, tx *sign.Transaction) (string, error) {
	var reply SubmitReply
	if err := c.request(ctx, EndpointSubmit, tx, &reply); err != nil {
		return "", eris.Wrap(err, "failed to submit transaction")
	}
	return reply.Hash, nil
}

// LookupOwnedContentID queries the content admin owns under class id.
func (c *RuntimeClient) LookupOwnedContentID(
	ctx context.Context,
	admin types.AccountID,
	id types.ClassID,
) (types.ContentID, bool, error) {
	var reply ContentReply
	if err := c.request(ctx, EndpointContent, ContentQuery{Admin: admin, ClassID: id}, &reply); err != nil {
		return nil, false, eris.Wrap(err, "failed to query content")
	}
	return reply.ContentID, reply.Found, nil
}

// Code returns the status code carried by err, or codes.Unknown.
func Code(err error) codes.Code {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code
	}
	return codes.Unknown
}
