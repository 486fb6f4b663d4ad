package micro

import (
	"context"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"google.golang.org/grpc/codes"
)

// Client is a NATS connection that logs its lifecycle events.
type Client struct {
	*nats.Conn
	log        zerolog.Logger
	natsConfig NATSConfig
}

// NATSConfig holds the configuration for the NATS client.
type NATSConfig struct {
	Name            string        `env:"NATS_NAME" envDefault:"iris"`
	URL             string        `env:"NATS_URL"`
	CredentialsFile string        `env:"NATS_CREDENTIALS_FILE"`
	MaxReconnects   int           `env:"NATS_MAX_RECONNECTS" envDefault:"10"`
	ReconnectWait   time.Duration `env:"NATS_RECONNECT_WAIT" envDefault:"5s"`
}

// Validate validates the NATS configuration and returns an error if invalid.
func (cfg NATSConfig) Validate() error {
	if cfg.URL == "" {
		return eris.New("NATS URL is required")
	}
	if cfg.MaxReconnects < -1 {
		return eris.New("max reconnects must be -1 (forever) or more")
	}
	// Without a credentials file the client connects unauthenticated.
	return nil
}

// NewClient connects to NATS. The config is read from the environment and can be replaced with
// WithNATSConfig.
func NewClient(opts ...ClientOption) (*Client, error) {
	cfg, err := env.ParseAs[NATSConfig]()
	if err != nil {
		return nil, eris.Wrap(err, "failed to parse NATS config")
	}
	c := &Client{natsConfig: cfg, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.natsConfig.Validate(); err != nil {
		return nil, eris.Wrap(err, "invalid NATS config")
	}

	natsOpts := []nats.Option{
		nats.Name(c.natsConfig.Name),
		nats.MaxReconnects(c.natsConfig.MaxReconnects),
		nats.ReconnectWait(c.natsConfig.ReconnectWait),
		nats.DisconnectErrHandler(c.handleDisconnect),
		nats.ReconnectHandler(c.handleReconnect),
		nats.ClosedHandler(c.handleClosed),
		nats.ErrorHandler(c.handleError),
	}
	if c.natsConfig.CredentialsFile != "" {
		natsOpts = append(natsOpts, nats.UserCredentials(c.natsConfig.CredentialsFile))
	}

	conn, err := nats.Connect(c.natsConfig.URL, natsOpts...)
	if err != nil {
		return nil, eris.Wrap(err, "failed to connect to NATS server")
	}
	c.Conn = conn

	c.log.Info().
		Str("url", c.ConnectedUrl()).
		Str("name", c.natsConfig.Name).
		Msg("Connected to NATS server")

	return c, nil
}

// Request sends payload to endpoint at address and waits for the reply (request-reply pattern).
// Replies with a non-OK status are returned as a *StatusError. The timeout should be set in ctx.
func (c *Client) Request(
	ctx context.Context,
	address *ServiceAddress,
	endpoint string,
	payload any,
) (*Response, error) {
	envelope := requestEnvelope{RequestID: uuid.NewString()}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, eris.Wrap(err, "failed to marshal payload")
		}
		envelope.Payload = raw
	}

	reqBytes, err := json.Marshal(envelope)
	if err != nil {
		return nil, eris.Wrap(err, "failed to marshal request")
	}

	msg := nats.NewMsg(Endpoint(address, endpoint))
	msg.Data = reqBytes
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(msg.Header))

	reply, err := c.RequestMsgWithContext(ctx, msg)
	if err != nil {
		return nil, eris.Wrap(err, "failed to send request")
	}

	var res responseEnvelope
	if err := json.Unmarshal(reply.Data, &res); err != nil {
		return nil, eris.Wrap(err, "failed to unmarshal response")
	}

	// Check for application-level errors in the response status.
	if res.Status.Code != codes.OK {
		return nil, &StatusError{Status: res.Status}
	}

	return &Response{RequestID: res.RequestID, Status: res.Status, Payload: res.Payload}, nil
}

// Close closes the NATS connection.
func (c *Client) Close() {
	if c.Conn != nil {
		c.Conn.Close()
	}
}

func (c *Client) handleDisconnect(nc *nats.Conn, err error) {
	event := c.log.Warn()
	if err != nil {
		event = c.log.Error().Err(err)
	}
	event.Str("nats_url", nc.ConnectedUrl()).Uint64("reconnects", nc.Reconnects).Msg("Disconnected from NATS")
}

func (c *Client) handleReconnect(nc *nats.Conn) {
	c.log.Info().Str("nats_url", nc.ConnectedUrl()).Uint64("reconnects", nc.Reconnects).Msg("Reconnected to NATS")
}

func (c *Client) handleClosed(nc *nats.Conn) {
	event := c.log.Info()
	if err := nc.LastError(); err != nil {
		event = c.log.Warn().Err(err)
	}
	event.Uint64("reconnects", nc.Reconnects).Msg("NATS connection closed")
}

func (c *Client) handleError(_ *nats.Conn, sub *nats.Subscription, err error) {
	event := c.log.Error().Err(err)
	if sub != nil {
		event = event.Str("subject", sub.Subject)
	}
	event.Msg("NATS async error")
}

// ClientOption defines a function that can modify a Client.
type ClientOption func(*Client)

// WithLogger returns a ClientOption that sets the logger.
func WithLogger(log zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.log = log
	}
}

// WithNATSConfig returns a ClientOption that sets the NATS configuration.
func WithNATSConfig(cfg NATSConfig) ClientOption {
	return func(c *Client) {
		c.natsConfig = cfg
	}
}
