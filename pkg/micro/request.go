package micro

import (
	"context"
	"fmt"

	"github.com/argus-labs/iris/pkg/assert"
	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/rotisserie/eris"
	"google.golang.org/grpc/codes"
)

// Handler defines the signature for all service endpoint handlers.
type Handler func(ctx context.Context, req *Request) *Response

// requestEnvelope and responseEnvelope are the JSON wire format of requests and replies.
type requestEnvelope struct {
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type responseEnvelope struct {
	RequestID string          `json:"requestId,omitempty"`
	Status    Status          `json:"status"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Status is the application level result of a request.
type Status struct {
	Code    codes.Code `json:"code"`
	Message string     `json:"message,omitempty"`
}

// StatusError is returned by Client.Request for replies with a non-OK status.
type StatusError struct {
	Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Request represents an incoming service request with its metadata.
type Request struct {
	// Raw is the original NATS message.
	Raw *nats.Msg

	// RequestID is extracted from the request if available.
	RequestID string

	// Payload is the undecoded request payload, if any.
	Payload json.RawMessage
}

// Decode unmarshals the request payload into v.
func (r *Request) Decode(v any) error {
	if len(r.Payload) == 0 {
		return eris.New("request has no payload")
	}
	if err := json.Unmarshal(r.Payload, v); err != nil {
		return eris.Wrap(err, "failed to decode request payload")
	}
	return nil
}

// Response represents a structured reply.
type Response struct {
	// RequestID is copied from the request.
	RequestID string

	// Status contains the response status information.
	Status Status

	// Payload contains the response payload, if any.
	Payload json.RawMessage
}

// Bytes returns the response as a byte slice ready to be sent over NATS.
func (r *Response) Bytes() ([]byte, error) {
	return json.Marshal(responseEnvelope{
		RequestID: r.RequestID,
		Status:    r.Status,
		Payload:   r.Payload,
	})
}

// Decode unmarshals the response payload into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Payload, v); err != nil {
		return eris.Wrap(err, "failed to decode response payload")
	}
	return nil
}

// NewRequestFromNATSMsg converts a nats.Msg to a Request, parsing the envelope if present.
func NewRequestFromNATSMsg(msg *nats.Msg) (*Request, error) {
	req := &Request{Raw: msg}

	if len(msg.Data) > 0 {
		var envelope requestEnvelope
		if err := json.Unmarshal(msg.Data, &envelope); err != nil {
			return nil, eris.Wrap(err, "failed to unmarshal request")
		}
		req.RequestID = envelope.RequestID
		req.Payload = envelope.Payload
	}

	return req, nil
}

// NewSuccessResponse creates a successful response with optional payload.
func NewSuccessResponse(req *Request, payload any) *Response {
	var raw json.RawMessage
	if payload != nil {
		bz, err := json.Marshal(payload)
		if err != nil {
			// If we fail to encode the payload, return an error response instead
			return NewErrorResponse(req, eris.New("failed to marshal payload"), codes.Internal)
		}
		raw = bz
	}

	return &Response{
		RequestID: req.RequestID,
		Status:    Status{Code: codes.OK},
		Payload:   raw,
	}
}

// NewErrorResponse creates an error response with the given error.
// The code parameter must not be codes.OK, as this function is only for error responses.
func NewErrorResponse(req *Request, err error, code codes.Code) *Response {
	assert.That(code != codes.OK, "NewErrorResponse called with codes.OK")

	var message string
	if err != nil {
		message = err.Error()
	} else {
		message = "Unknown error"
	}

	return &Response{
		RequestID: req.RequestID,
		Status:    Status{Code: code, Message: message},
	}
}
