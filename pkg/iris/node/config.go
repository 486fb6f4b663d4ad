package node

import (
	"time"

	"github.com/argus-labs/iris/pkg/iris/storagenet"
	"github.com/argus-labs/iris/pkg/iris/types"
	"github.com/argus-labs/iris/pkg/micro"
	"github.com/argus-labs/iris/pkg/state"
	"github.com/argus-labs/iris/pkg/telemetry"
	"github.com/caarlos0/env/v11"
	"github.com/rotisserie/eris"
)

const (
	StorageMemory = "memory"
	StorageRedis  = "redis"

	// NetworkMemory selects the in-memory storage network instead of a Kubo endpoint.
	NetworkMemory = "memory"

	LocalStoreCache     = "cache"
	LocalStoreJetStream = "jetstream"
)

// nodeConfig holds the configuration of a node. Configuration can be set via environment
// variables with the specified defaults.
type nodeConfig struct {
	// Name of this node, also its NATS subject segment.
	NodeID string `env:"IRIS_NODE_ID" envDefault:"node"`

	// Hex-encoded Ed25519 private key seed the node signs its reports with.
	PrivateKey string `env:"IRIS_PRIVATE_KEY"`

	// Hex-encoded public key of the account holding the root origin.
	RootAccount string `env:"IRIS_ROOT_ACCOUNT"`

	// Validators of a fresh chain. Defaults to the node's own account.
	GenesisValidators []string `env:"IRIS_GENESIS_VALIDATORS" envSeparator:","`

	BlockTime         time.Duration `env:"IRIS_BLOCK_TIME" envDefault:"6s"`
	BlocksPerEpoch    uint64        `env:"IRIS_BLOCKS_PER_EPOCH" envDefault:"10"`
	MaxStaleness      uint64        `env:"IRIS_QUEUE_MAX_STALENESS" envDefault:"1"`
	WorkerConcurrency int           `env:"IRIS_WORKER_CONCURRENCY" envDefault:"1"`
	WorkerTimeout     time.Duration `env:"IRIS_WORKER_TIMEOUT" envDefault:"30s"`

	// State backend, "memory" or "redis".
	Storage       string `env:"IRIS_STORAGE" envDefault:"memory"`
	RedisAddress  string `env:"REDIS_ADDRESS" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	// Kubo HTTP RPC endpoint, or "memory".
	IPFSAPI string `env:"IRIS_IPFS_API" envDefault:"localhost:5001"`

	// Off-chain store for retrieved content, "cache" or "jetstream". The JetStream bucket defaults
	// to one per node and is capped at LocalStoreSize.
	LocalStore       string        `env:"IRIS_LOCAL_STORE" envDefault:"cache"`
	LocalStoreBucket string        `env:"IRIS_LOCAL_STORE_BUCKET"`
	LocalStoreSize   int           `env:"IRIS_LOCAL_STORE_SIZE" envDefault:"67108864"`
	LocalStoreTTL    time.Duration `env:"IRIS_LOCAL_STORE_TTL" envDefault:"1h"`

	HTTPEnabled bool   `env:"IRIS_HTTP_ENABLED" envDefault:"true"`
	HTTPPort    string `env:"IRIS_HTTP_PORT" envDefault:"8080"`

	// NATS transport is served when set. The client reads the rest of its config itself.
	NATSURL string `env:"NATS_URL"`
}

// loadNodeConfig loads the node configuration from environment variables.
func loadNodeConfig() (nodeConfig, error) {
	cfg, err := env.ParseAs[nodeConfig]()
	if err != nil {
		return cfg, eris.Wrap(err, "failed to parse node config")
	}
	return cfg, nil
}

// applyToOptions applies the configuration values to the given Options.
func (cfg *nodeConfig) applyToOptions(opt *Options) {
	opt.NodeID = cfg.NodeID
	opt.PrivateKey = cfg.PrivateKey
	opt.RootAccount = cfg.RootAccount
	opt.GenesisValidators = cfg.GenesisValidators
	opt.BlockTime = cfg.BlockTime
	opt.BlocksPerEpoch = cfg.BlocksPerEpoch
	opt.MaxStaleness = cfg.MaxStaleness
	opt.WorkerConcurrency = cfg.WorkerConcurrency
	opt.WorkerTimeout = cfg.WorkerTimeout
	opt.Storage = cfg.Storage
	opt.RedisAddress = cfg.RedisAddress
	opt.RedisPassword = cfg.RedisPassword
	opt.IPFSAPI = cfg.IPFSAPI
	opt.LocalStore = cfg.LocalStore
	opt.LocalStoreBucket = cfg.LocalStoreBucket
	opt.LocalStoreSize = cfg.LocalStoreSize
	opt.LocalStoreTTL = cfg.LocalStoreTTL
	opt.DisableHTTP = !cfg.HTTPEnabled
	opt.HTTPPort = cfg.HTTPPort
	opt.DisableNATS = cfg.NATSURL == ""
}

type Options struct {
	NodeID            string        // Name of the node
	PrivateKey        string        // Hex-encoded Ed25519 seed the node signs reports with
	RootAccount       string        // Account holding the root origin
	GenesisValidators []string      // Validators of a fresh chain
	BlockTime         time.Duration // Period between blocks
	BlocksPerEpoch    uint64        // Session length in blocks
	MaxStaleness      uint64        // Cycles an undrained command survives
	WorkerConcurrency int           // Commands run at once
	WorkerTimeout     time.Duration // Deadline of one command
	Storage           string        // State backend
	RedisAddress      string        // Redis backend address
	RedisPassword     string        // Redis backend password
	IPFSAPI           string        // Kubo RPC endpoint or "memory"
	LocalStore        string        // Off-chain store backend
	LocalStoreBucket  string        // JetStream bucket of the off-chain store
	LocalStoreSize    int           // Off-chain store size in bytes
	LocalStoreTTL     time.Duration // Off-chain store entry lifetime
	DisableHTTP       bool          // Do not serve the query server
	HTTPPort          string        // Query server port
	DisableNATS       bool          // Do not serve NATS endpoints

	// Overrides, mainly for tests. Nil selects what the fields above describe.
	Store     state.Store
	Network   storagenet.Network
	NATS      *micro.Client
	Telemetry *telemetry.Telemetry
}

func newDefaultOptions() Options {
	// Set these to invalid values to force users to pass in the correct options.
	return Options{
		NodeID:            "",
		PrivateKey:        "",
		RootAccount:       "",
		BlockTime:         0,
		BlocksPerEpoch:    0,
		WorkerConcurrency: 0,
		Storage:           "",
	}
}

// apply merges the given options into the current options, overriding non-zero values.
func (opt *Options) apply(newOpt Options) { //nolint:gocognit,cyclop // flat list of fields
	if newOpt.NodeID != "" {
		opt.NodeID = newOpt.NodeID
	}
	if newOpt.PrivateKey != "" {
		opt.PrivateKey = newOpt.PrivateKey
	}
	if newOpt.RootAccount != "" {
		opt.RootAccount = newOpt.RootAccount
	}
	if newOpt.GenesisValidators != nil {
		opt.GenesisValidators = newOpt.GenesisValidators
	}
	if newOpt.BlockTime != 0 {
		opt.BlockTime = newOpt.BlockTime
	}
	if newOpt.BlocksPerEpoch != 0 {
		opt.BlocksPerEpoch = newOpt.BlocksPerEpoch
	}
	if newOpt.MaxStaleness != 0 {
		opt.MaxStaleness = newOpt.MaxStaleness
	}
	if newOpt.WorkerConcurrency != 0 {
		opt.WorkerConcurrency = newOpt.WorkerConcurrency
	}
	if newOpt.WorkerTimeout != 0 {
		opt.WorkerTimeout = newOpt.WorkerTimeout
	}
	if newOpt.Storage != "" {
		opt.Storage = newOpt.Storage
	}
	if newOpt.RedisAddress != "" {
		opt.RedisAddress = newOpt.RedisAddress
	}
	if newOpt.RedisPassword != "" {
		opt.RedisPassword = newOpt.RedisPassword
	}
	if newOpt.IPFSAPI != "" {
		opt.IPFSAPI = newOpt.IPFSAPI
	}
	if newOpt.LocalStore != "" {
		opt.LocalStore = newOpt.LocalStore
	}
	if newOpt.LocalStoreBucket != "" {
		opt.LocalStoreBucket = newOpt.LocalStoreBucket
	}
	if newOpt.LocalStoreSize != 0 {
		opt.LocalStoreSize = newOpt.LocalStoreSize
	}
	if newOpt.LocalStoreTTL != 0 {
		opt.LocalStoreTTL = newOpt.LocalStoreTTL
	}
	if newOpt.DisableHTTP {
		opt.DisableHTTP = true
	}
	if newOpt.HTTPPort != "" {
		opt.HTTPPort = newOpt.HTTPPort
	}
	if newOpt.Store != nil {
		opt.Store = newOpt.Store
	}
	if newOpt.Network != nil {
		opt.Network = newOpt.Network
	}
	if newOpt.NATS != nil {
		opt.NATS = newOpt.NATS
		opt.DisableNATS = false
	} else if newOpt.DisableNATS {
		opt.DisableNATS = true
	}
	if newOpt.Telemetry != nil {
		opt.Telemetry = newOpt.Telemetry
	}
}

// validate checks that all required options are set and valid.
func (opt *Options) validate() error {
	if opt.NodeID == "" {
		return eris.New("node ID cannot be empty")
	}
	if opt.PrivateKey == "" {
		return eris.New("private key cannot be empty")
	}
	if err := types.AccountID(opt.RootAccount).Validate(); err != nil {
		return eris.Wrap(err, "root account")
	}
	for _, v := range opt.GenesisValidators {
		if err := types.AccountID(v).Validate(); err != nil {
			return eris.Wrap(err, "genesis validator")
		}
	}
	if opt.BlockTime <= 0 {
		return eris.New("block time must be positive")
	}
	if opt.BlocksPerEpoch == 0 {
		return eris.New("blocks per epoch cannot be 0")
	}
	if opt.WorkerConcurrency < 1 {
		return eris.New("worker concurrency must be at least 1")
	}
	if opt.WorkerTimeout <= 0 {
		return eris.New("worker timeout must be positive")
	}
	if opt.Store == nil && opt.Storage != StorageMemory && opt.Storage != StorageRedis {
		return eris.Errorf("invalid storage backend %q (must be %q or %q)", opt.Storage, StorageMemory, StorageRedis)
	}
	if opt.Network == nil && opt.IPFSAPI == "" {
		return eris.New("IPFS API endpoint cannot be empty")
	}
	if opt.LocalStoreSize <= 0 {
		return eris.New("local store size must be positive")
	}
	switch opt.LocalStore {
	case LocalStoreCache:
	case LocalStoreJetStream:
		if opt.DisableNATS {
			return eris.New("the jetstream local store requires NATS")
		}
	default:
		return eris.Errorf("invalid local store %q (must be %q or %q)", opt.LocalStore, LocalStoreCache, LocalStoreJetStream)
	}
	if !opt.DisableHTTP && opt.HTTPPort == "" {
		return eris.New("HTTP port cannot be empty when the query server is enabled")
	}
	return nil
}

func (opt *Options) getSentryTags() map[string]string {
	return map[string]string{
		"node_id": opt.NodeID,
		"storage": opt.Storage,
	}
}
