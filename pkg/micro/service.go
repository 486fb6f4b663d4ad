package micro

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/argus-labs/iris/pkg/assert"
	"github.com/argus-labs/iris/pkg/telemetry"
	"github.com/nats-io/nats.go"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/codes"
)

var ErrEndpointAlreadyExists = eris.New("endpoint already exists")

// Service serves request-reply endpoints under one address.
type Service struct {
	tel    *telemetry.Telemetry
	client *Client

	mu        sync.Mutex
	endpoints map[string]*nats.Subscription

	Address *ServiceAddress
}

// NewService creates a new service with the given NATS client, service address, and telemetry.
func NewService(client *Client, address *ServiceAddress, tel *telemetry.Telemetry) (*Service, error) {
	if err := address.Validate(); err != nil {
		return nil, eris.Wrap(err, "invalid service address")
	}
	return &Service{
		tel:       tel,
		client:    client,
		endpoints: make(map[string]*nats.Subscription),
		Address:   address,
	}, nil
}

// Logger returns a logger for the service with service-specific context.
func (s *Service) Logger() *zerolog.Logger {
	logger := s.tel.GetLogger("service").With().Str("address", s.Address.String()).Logger()
	return &logger
}

// NATS returns the underlying NATS client.
func (s *Service) NATS() *Client {
	return s.client
}

// AddGroup returns a helper that registers endpoints under a common prefix, e.g. endpoint
// "content" of group "query" is served at "<address>.query.content".
func (s *Service) AddGroup(name string) *ServiceEndpointGroup {
	return &ServiceEndpointGroup{
		service: s,
		group:   name,
	}
}

// AddEndpoint subscribes handler to "<address>.<name>".
func (s *Service) AddEndpoint(name string, handler Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.endpoints[name]; ok {
		return eris.Wrap(ErrEndpointAlreadyExists, name)
	}

	sub, err := s.client.Subscribe(Endpoint(s.Address, name), func(msg *nats.Msg) {
		defer s.tel.RecoverAndFlush(true)
		// Extract parent context from incoming NATS headers.
		ctx := otel.GetTextMapPropagator().Extract(context.Background(), propagation.HeaderCarrier(msg.Header))

		ctx, span := s.tel.Tracer.Start(ctx, "handler."+name,
			trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithAttributes(attribute.String("nats.subject", msg.Subject)))
		defer span.End()

		requestLogger := s.tel.GetLoggerWithTrace(ctx, "service.handler").With().Str("endpoint", name).Logger()
		start := time.Now()

		replyBz, err := handleNATSMessage(ctx, msg, handler, span, requestLogger)

		duration := time.Since(start)
		span.SetAttributes(attribute.Int64("handler.duration_ms", duration.Milliseconds()))
		durationLogger := requestLogger.With().Int("duration_ms", int(duration.Milliseconds())).Logger()

		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
			durationLogger.Error().Err(err).Msg("failed to handle request")

			errResp := NewErrorResponse(&Request{Raw: msg}, err, codes.Internal)
			errRespBz, err := errResp.Bytes()
			assert.That(err == nil, "failed to marshal error response")
			replyBz = errRespBz
		}

		if err := msg.Respond(replyBz); err != nil {
			durationLogger.Error().Err(err).Msg("failed to send response over NATS")
		} else {
			durationLogger.Debug().Msg("response sent successfully")
		}
	})
	if err != nil {
		return eris.Wrapf(err, "failed to subscribe to endpoint %s", name)
	}

	s.endpoints[name] = sub
	return nil
}

// handleNATSMessage decodes msg, calls the handler and encodes its response.
func handleNATSMessage(
	ctx context.Context,
	msg *nats.Msg,
	handler Handler,
	span trace.Span,
	logger zerolog.Logger,
) ([]byte, error) {
	req, err := NewRequestFromNATSMsg(msg)
	if err != nil {
		return nil, eris.Wrap(err, "failed to parse request")
	}
	span.SetAttributes(attribute.String("request.id", req.RequestID))

	reqLogger := logger.With().Str("request_id", req.RequestID).Logger()
	reqLogger.Debug().Msg("request received")

	resp := handler(ctx, req)

	// Application errors are part of the reply, not a transport failure.
	span.SetAttributes(attribute.Int("status.code", int(resp.Status.Code)))
	if resp.Status.Code != codes.OK {
		span.SetStatus(otelcodes.Error, resp.Status.Message)
		reqLogger.Warn().
			Str("code", resp.Status.Code.String()).
			Str("message", resp.Status.Message).
			Msg("request failed")
	} else {
		span.SetStatus(otelcodes.Ok, "")
	}

	respBytes, err := resp.Bytes()
	if err != nil {
		return nil, eris.Wrap(err, "failed to marshal response")
	}
	return respBytes, nil
}

// Close unsubscribes every endpoint registered with the service.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for name, sub := range s.endpoints {
		if err := sub.Unsubscribe(); err != nil && !eris.Is(err, nats.ErrConnectionClosed) {
			s.Logger().Error().Err(err).Str("endpoint", name).Msg("failed to unsubscribe endpoint")
			errs = append(errs, err)
		}
		delete(s.endpoints, name)
	}
	return errors.Join(errs...)
}

// -------------------------------------------------------------------------------------------------
// Endpoint groups
// -------------------------------------------------------------------------------------------------

// ServiceEndpointGroup registers endpoints with a common prefix.
type ServiceEndpointGroup struct {
	service *Service
	group   string
}

func (g *ServiceEndpointGroup) AddEndpoint(name string, handler Handler) error {
	return g.service.AddEndpoint(g.group+"."+name, handler)
}
