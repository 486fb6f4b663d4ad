package micro

import (
	"math/rand/v2"
	"os"
	"strconv"
	"testing"

	"github.com/argus-labs/iris/pkg/telemetry"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	TestNATS *server.Server
)

func TestMain(m *testing.M) {
	// Uses modified values of NATS's own default test server config.
	opts := &server.Options{
		Host:                  "127.0.0.1",
		Port:                  -1, // Random available port
		NoLog:                 true,
		NoSigs:                true,
		MaxControlLine:        4096,
		DisableShortFirstPing: true,
	}

	TestNATS = test.RunServer(opts)

	code := m.Run()

	TestNATS.Shutdown()
	os.Exit(code)
}

func newTestClient(t *testing.T) *Client {
	t.Helper()

	assert.NotNil(t, TestNATS, "test NATS server is not running")
	c, err := NewClient(
		WithNATSConfig(NATSConfig{Name: "test-client", URL: TestNATS.ClientURL()}),
		WithLogger(zerolog.Nop()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		c.Close()
	})

	return c
}

func newTestService(t *testing.T, rng *rand.Rand) (*Service, *Client) {
	t.Helper()

	tel := telemetry.Nop()
	client := newTestClient(t)
	svc, err := NewService(client, randServiceAddress(rng), &tel)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, svc.Close())
	})
	return svc, client
}

func randServiceAddress(rng *rand.Rand) *ServiceAddress {
	return &ServiceAddress{
		Prefix: "p-" + strconv.FormatInt(rng.Int64(), 10),
		NodeID: "n-" + strconv.FormatInt(rng.Int64(), 10),
	}
}

func randEndpointName(rng *rand.Rand) string {
	return "e-" + strconv.FormatInt(rng.Int64(), 10)
}
