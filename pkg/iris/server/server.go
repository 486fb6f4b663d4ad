package server

import (
	"context"
	"time"

	"github.com/argus-labs/iris/pkg/iris/runtime"
	"github.com/argus-labs/iris/pkg/iris/storagenet"
	"github.com/argus-labs/iris/pkg/iris/types"
	"github.com/argus-labs/iris/pkg/telemetry"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 5 * time.Second

// Server is the HTTP query and health surface of a node.
type Server struct {
	app   *fiber.App
	rt    *runtime.Runtime
	local storagenet.Local
	log   zerolog.Logger
	port  string

	// node is the account readiness is reported for.
	node types.AccountID
}

// New returns a server over rt and the content its worker retrieved into local. Readiness is
// reported for the node account.
func New(
	rt *runtime.Runtime,
	local storagenet.Local,
	tel *telemetry.Telemetry,
	node types.AccountID,
	port string,
) (*Server, error) {
	if rt == nil {
		return nil, eris.New("server requires a non-nil runtime")
	}
	if local == nil {
		return nil, eris.New("server requires a non-nil local store")
	}

	app := fiber.New(fiber.Config{
		Network:               "tcp", // Enable server listening on both ipv4 & ipv6 (default: ipv4 only)
		DisableStartupMessage: true,
		ErrorHandler:          ErrorHandler,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
	})
	app.Use(cors.New())

	s := &Server{
		app:   app,
		rt:    rt,
		local: local,
		log:   tel.GetLogger("server"),
		port:  port,
		node:  node,
	}
	s.setupRoutes()

	return s, nil
}

// Serve serves the application, blocking the calling goroutine until ctx is canceled or the
// listener fails.
func (s *Server) Serve(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		s.log.Info().Str("port", s.port).Msg("Starting HTTP server")
		if err := s.app.Listen(":" + s.port); err != nil {
			serverErr <- eris.Wrap(err, "error starting http server")
		}
	}()

	select {
	case err := <-serverErr:
		return eris.Wrap(err, "server encountered an error")
	case <-ctx.Done():
		if err := s.shutdown(); err != nil {
			return eris.Wrap(err, "error shutting down server")
		}
	}

	return nil
}

func (s *Server) shutdown() error {
	s.log.Info().Msg("Shutting down server")
	if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		return eris.Wrap(err, "error shutting down server")
	}
	s.log.Info().Msg("Successfully shut down server")
	return nil
}

// App exposes the fiber app, e.g. for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) setupRoutes() {
	// Route: /...
	s.app.Get("/health", s.getHealth)
	s.app.Get("/ready", s.getReady)

	// Route: queries
	s.app.Get("/content/:admin/:class", s.getContent)
	s.app.Get("/access/:beneficiary/:class", s.getAccess)
	s.app.Get("/validators", s.getValidators)
	s.app.Get("/rewards/:epoch/:class", s.getRewards)
	s.app.Get("/queue", s.getQueue)

	// Route: retrieved content
	s.app.Get("/retrieved/:requester/:class", s.getRetrieved)

	// Route: /tx
	s.app.Post("/tx", s.postTransaction)
}
