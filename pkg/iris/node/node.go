// Package node wires an iris node: the runtime producing blocks, the worker following them, and
// the query surfaces over HTTP and NATS.
package node

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/argus-labs/iris/pkg/iris/queue"
	"github.com/argus-labs/iris/pkg/iris/runtime"
	"github.com/argus-labs/iris/pkg/iris/server"
	"github.com/argus-labs/iris/pkg/iris/storagenet"
	"github.com/argus-labs/iris/pkg/iris/storagenet/ipfs"
	"github.com/argus-labs/iris/pkg/iris/storagenet/memnet"
	"github.com/argus-labs/iris/pkg/iris/storagenet/objstore"
	"github.com/argus-labs/iris/pkg/iris/types"
	"github.com/argus-labs/iris/pkg/iris/worker"
	"github.com/argus-labs/iris/pkg/micro"
	"github.com/argus-labs/iris/pkg/sign"
	"github.com/argus-labs/iris/pkg/state"
	"github.com/argus-labs/iris/pkg/telemetry"
	"github.com/argus-labs/iris/pkg/telemetry/sentry"
	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 10 * time.Second
	// Blocks buffered for the worker before the runtime starts dropping them.
	blockBuffer = 16
)

type Node struct {
	runtime *runtime.Runtime
	worker  *worker.Worker
	server  *server.Server
	client  *micro.Client
	service *micro.Service
	store   state.Store
	account types.AccountID

	// ownsClient is set when the node created the NATS client and closes it on shutdown.
	ownsClient bool

	options Options
	tel     *telemetry.Telemetry
}

// New creates a node from the environment, overridden by opts.
func New(opts Options) (*Node, error) {
	// Load and validate options.
	cfg, err := loadNodeConfig()
	if err != nil {
		return nil, eris.Wrap(err, "failed to load node config")
	}
	options := newDefaultOptions()
	cfg.applyToOptions(&options)
	options.apply(opts)
	if err := options.validate(); err != nil {
		return nil, eris.Wrap(err, "invalid node options")
	}

	// Setup telemetry.
	tel := options.Telemetry
	if tel == nil {
		t, err := telemetry.New(telemetry.Options{
			ServiceName:   "iris",
			SentryOptions: sentry.Options{Tags: options.getSentryTags()},
		})
		if err != nil {
			return nil, eris.Wrap(err, "failed to initialize telemetry")
		}
		tel = &t
	}
	defer tel.RecoverAndFlush(true)

	signer, err := sign.NewSigner(options.PrivateKey, time.Now().UnixNano())
	if err != nil {
		return nil, eris.Wrap(err, "failed to create node signer")
	}

	n := &Node{
		account: types.AccountID(signer.Address()),
		options: options,
		tel:     tel,
	}

	if n.store, err = newStore(options); err != nil {
		return nil, err
	}

	q := queue.New()
	n.runtime, err = runtime.New(runtime.Options{
		Store:          n.store,
		Queue:          q,
		Telemetry:      tel,
		RootAccount:    types.AccountID(options.RootAccount),
		BlocksPerEpoch: options.BlocksPerEpoch,
		MaxStaleness:   options.MaxStaleness,
		BlockTime:      options.BlockTime,
	})
	if err != nil {
		return nil, eris.Wrap(err, "failed to create runtime")
	}

	// The client comes first, the local store may live on it.
	if !options.DisableNATS {
		if err := n.setupClient(); err != nil {
			return nil, err
		}
	}
	local, err := n.newLocal()
	if err != nil {
		return nil, err
	}

	n.worker, err = worker.New(worker.Options{
		Queue:       q,
		Network:     newNetwork(options),
		Local:       local,
		Ownership:   n.runtime,
		Submitter:   n.runtime,
		Signer:      signer,
		Telemetry:   tel,
		Concurrency: options.WorkerConcurrency,
		Timeout:     options.WorkerTimeout,
	})
	if err != nil {
		return nil, eris.Wrap(err, "failed to create worker")
	}

	if !options.DisableHTTP {
		n.server, err = server.New(n.runtime, local, tel, n.account, options.HTTPPort)
		if err != nil {
			return nil, eris.Wrap(err, "failed to create query server")
		}
	}

	if !options.DisableNATS {
		if err := n.setupService(); err != nil {
			return nil, err
		}
	}

	return n, nil
}

func newStore(options Options) (state.Store, error) {
	if options.Store != nil {
		return options.Store, nil
	}
	if options.Storage != StorageRedis {
		return state.NewMemStore(), nil
	}

	store := state.NewRedisStore(state.RedisOptions{
		Addr:     options.RedisAddress,
		Password: options.RedisPassword,
	}, options.NodeID)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		_ = store.Close()
		return nil, eris.Wrap(err, "failed to connect to redis")
	}
	return store, nil
}

func newNetwork(options Options) storagenet.Network {
	switch {
	case options.Network != nil:
		return options.Network
	case options.IPFSAPI == NetworkMemory:
		return memnet.New()
	default:
		return ipfs.New(options.IPFSAPI)
	}
}

func (n *Node) newLocal() (storagenet.Local, error) {
	ttl := n.options.LocalStoreTTL
	if n.options.LocalStore != LocalStoreJetStream {
		return storagenet.NewCacheStore(n.options.LocalStoreSize, int(ttl.Seconds())), nil
	}

	bucket := n.options.LocalStoreBucket
	if bucket == "" {
		bucket = "iris_" + bucketSafe(n.options.NodeID) + "_retrieved"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	local, err := objstore.New(ctx, n.client.Conn, objstore.Options{
		Bucket:   bucket,
		TTL:      ttl,
		MaxBytes: int64(n.options.LocalStoreSize),
	})
	if err != nil {
		return nil, eris.Wrap(err, "failed to open local object store")
	}
	return local, nil
}

// bucketSafe replaces what JetStream bucket names may not contain.
func bucketSafe(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}

func (n *Node) setupClient() error {
	n.client = n.options.NATS
	if n.client == nil {
		client, err := micro.NewClient(micro.WithLogger(n.tel.GetLogger("client")))
		if err != nil {
			return eris.Wrap(err, "failed to initialize micro client")
		}
		n.client = client
		n.ownsClient = true
	}
	return nil
}

func (n *Node) setupService() error {
	service, err := micro.NewService(n.client, micro.GetAddress(n.options.NodeID), n.tel)
	if err != nil {
		return eris.Wrap(err, "failed to create micro service")
	}
	n.service = service

	return n.registerEndpoints()
}

// Account returns the account the node signs its reports with.
func (n *Node) Account() types.AccountID {
	return n.account
}

// Runtime returns the node's runtime.
func (n *Node) Runtime() *runtime.Runtime {
	return n.runtime
}

// Run initializes genesis and runs the node until ctx is canceled or a component fails.
func (n *Node) Run(ctx context.Context) error {
	defer n.shutdown()
	defer n.tel.RecoverAndFlush(true)

	genesis := make([]types.AccountID, 0, len(n.options.GenesisValidators))
	for _, v := range n.options.GenesisValidators {
		genesis = append(genesis, types.AccountID(v))
	}
	if len(genesis) == 0 {
		genesis = append(genesis, n.account)
	}
	if err := n.runtime.InitGenesis(ctx, genesis); err != nil {
		return eris.Wrap(err, "failed to initialize genesis")
	}

	blocks, unsubscribe := n.runtime.Subscribe(blockBuffer)
	defer unsubscribe()

	n.tel.Logger.Info().
		Str("node_id", n.options.NodeID).
		Str("account", n.account.String()).
		Dur("block_time", n.options.BlockTime).
		Msg("starting node")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer n.tel.RecoverAndFlush(true)
		return n.runtime.Run(ctx)
	})
	g.Go(func() error {
		defer n.tel.RecoverAndFlush(true)
		return n.worker.Run(ctx, blocks)
	})
	if n.server != nil {
		g.Go(func() error {
			defer n.tel.RecoverAndFlush(true)
			return n.server.Serve(ctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		n.tel.CaptureException(ctx, err)
		return err
	}
	return nil
}

// shutdown releases the node's resources. It is called automatically when Run returns.
func (n *Node) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	n.tel.Logger.Info().Msg("Shutting down node")

	if n.service != nil {
		if err := n.service.Close(); err != nil {
			n.tel.Logger.Error().Err(err).Msg("message bus shutdown error")
			n.tel.CaptureException(ctx, err)
		}
	}
	if n.client != nil && n.ownsClient {
		n.client.Close()
	}

	if err := n.store.Close(); err != nil {
		n.tel.Logger.Error().Err(err).Msg("state store shutdown error")
	}

	if err := n.tel.Shutdown(ctx); err != nil {
		n.tel.Logger.Error().Err(err).Msg("telemetry shutdown error")
	}

	n.tel.Logger.Info().Msg("Node shutdown complete")
}
