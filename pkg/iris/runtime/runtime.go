// Package runtime is the deterministic domain of an iris node.
//
// Signed transactions are verified on Submit and held in a mempool. ProduceBlock applies them in
// receipt order, each on its own branch of the block's state cache: a failing call leaves no
// writes, events or queued commands behind. Commands enqueued by successful calls are pushed to
// the command queue after the block commits, and subscribers are notified with the block result.
package runtime

import (
	"context"
	"sync"
	"time"

	"github.com/argus-labs/iris/pkg/iris/assets"
	"github.com/argus-labs/iris/pkg/iris/ledger"
	"github.com/argus-labs/iris/pkg/iris/pool"
	"github.com/argus-labs/iris/pkg/iris/queue"
	"github.com/argus-labs/iris/pkg/iris/session"
	"github.com/argus-labs/iris/pkg/iris/types"
	"github.com/argus-labs/iris/pkg/sign"
	"github.com/argus-labs/iris/pkg/state"
	"github.com/argus-labs/iris/pkg/telemetry"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Options struct {
	Store          state.Store
	Queue          *queue.Queue
	Telemetry      *telemetry.Telemetry
	RootAccount    types.AccountID
	BlocksPerEpoch uint64
	// Cycles an undrained command survives before the sweep drops it. Zero selects the default.
	MaxStaleness    uint64
	BlockTime       time.Duration
	MempoolSize     int
	ReplayCacheSize int
}

func newDefaultOptions() Options {
	return Options{
		BlocksPerEpoch:  10,
		MaxStaleness:    1,
		BlockTime:       6 * time.Second,
		MempoolSize:     10_000,
		ReplayCacheSize: 32 * 1024 * 1024,
	}
}

func (opt *Options) apply(newOpt Options) {
	if newOpt.Store != nil {
		opt.Store = newOpt.Store
	}
	if newOpt.Queue != nil {
		opt.Queue = newOpt.Queue
	}
	if newOpt.Telemetry != nil {
		opt.Telemetry = newOpt.Telemetry
	}
	if newOpt.RootAccount != "" {
		opt.RootAccount = newOpt.RootAccount
	}
	if newOpt.BlocksPerEpoch != 0 {
		opt.BlocksPerEpoch = newOpt.BlocksPerEpoch
	}
	if newOpt.MaxStaleness != 0 {
		opt.MaxStaleness = newOpt.MaxStaleness
	}
	if newOpt.BlockTime != 0 {
		opt.BlockTime = newOpt.BlockTime
	}
	if newOpt.MempoolSize != 0 {
		opt.MempoolSize = newOpt.MempoolSize
	}
	if newOpt.ReplayCacheSize != 0 {
		opt.ReplayCacheSize = newOpt.ReplayCacheSize
	}
}

func (opt *Options) validate() error {
	if opt.Store == nil {
		return eris.New("store is required")
	}
	if opt.Queue == nil {
		return eris.New("queue is required")
	}
	if opt.Telemetry == nil {
		return eris.New("telemetry is required")
	}
	if err := opt.RootAccount.Validate(); err != nil {
		return eris.Wrap(err, "root account")
	}
	if opt.BlockTime <= 0 {
		return eris.New("block time must be positive")
	}
	if opt.MempoolSize < 0 {
		return eris.New("mempool size cannot be negative")
	}
	return nil
}

// Receipt is the outcome of one transaction. Error is empty when the call succeeded.
type Receipt struct {
	Hash   string        `json:"hash"`
	Call   string        `json:"call"`
	Signer string        `json:"signer"`
	Error  string        `json:"error,omitempty"`
	Events []EventRecord `json:"events,omitempty"`

	err error
}

// Err returns the error the call failed with.
func (r Receipt) Err() error { return r.err }

type EventRecord struct {
	Name string      `json:"name"`
	Data types.Event `json:"data"`
}

type BlockResult struct {
	Height   uint64    `json:"height"`
	Epoch    uint64    `json:"epoch"`
	Rotated  bool      `json:"rotated"`
	Swept    int       `json:"swept"`
	Queued   int       `json:"queued"`
	Receipts []Receipt `json:"receipts"`
}

type Runtime struct {
	store   state.Store
	queue   *queue.Queue
	assets  *assets.Registry
	ledger  *ledger.Ledger
	intake  queue.Intake
	session *session.Manager
	pool    *pool.Pool

	verifier *txVerifier
	handlers map[string]handler
	height   state.Item[uint64]

	// mu serializes block production against reads of committed state.
	mu sync.RWMutex

	mempoolMu sync.Mutex
	mempool   []*sign.Transaction

	subsMu sync.Mutex
	subs   map[int]chan BlockResult
	nextID int

	options Options
	tel     *telemetry.Telemetry
	log     zerolog.Logger
}

func New(opts Options) (*Runtime, error) {
	options := newDefaultOptions()
	options.apply(opts)
	if err := options.validate(); err != nil {
		return nil, eris.Wrap(err, "invalid runtime options")
	}

	sess, err := session.NewManager(options.BlocksPerEpoch)
	if err != nil {
		return nil, err
	}
	registry := assets.NewRegistry()
	l := ledger.New(registry)

	r := &Runtime{
		store:    options.Store,
		queue:    options.Queue,
		assets:   registry,
		ledger:   l,
		intake:   queue.NewIntake(l),
		session:  sess,
		pool:     pool.New(sess, l),
		verifier: newTxVerifier(options.ReplayCacheSize),
		height:   state.NewItem[uint64]("runtime/height"),
		subs:     make(map[int]chan BlockResult),
		options:  options,
		tel:      options.Telemetry,
		log:      options.Telemetry.GetLogger("runtime"),
	}
	r.handlers = r.routes()
	return r, nil
}

// InitGenesis seeds the validator set on a fresh store. It is a no-op once a block exists.
func (r *Runtime) InitGenesis(ctx context.Context, validators []types.AccountID) error {
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return eris.Wrap(err, "genesis validator")
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	block := state.NewCache(ctx, r.store)
	if _, ok, err := r.height.Get(block); err != nil {
		return err
	} else if ok {
		r.log.Debug().Msg("state exists, skipping genesis")
		return nil
	}

	if err := r.pool.InitGenesis(block, validators); err != nil {
		return eris.Wrap(err, "failed to seed validator pool")
	}
	if err := r.session.InitGenesis(block, validators); err != nil {
		return eris.Wrap(err, "failed to seed session")
	}
	if err := r.height.Set(block, 0); err != nil {
		return err
	}
	if err := block.Commit(r.store); err != nil {
		return eris.Wrap(err, "failed to commit genesis")
	}
	r.log.Info().Int("validators", len(validators)).Msg("genesis initialized")
	return nil
}

// Submit verifies tx and adds it to the mempool. It returns the transaction hash.
func (r *Runtime) Submit(_ context.Context, tx *sign.Transaction) (string, error) {
	if tx == nil {
		return "", eris.Wrap(ErrInvalidPayload, "transaction is nil")
	}
	if _, ok := r.handlers[tx.Call]; !ok {
		return "", eris.Wrapf(ErrUnknownCall, "%q", tx.Call)
	}

	r.mempoolMu.Lock()
	defer r.mempoolMu.Unlock()

	if r.options.MempoolSize > 0 && len(r.mempool) >= r.options.MempoolSize {
		return "", ErrMempoolFull
	}
	if err := r.verifier.Verify(tx); err != nil {
		return "", err
	}
	r.mempool = append(r.mempool, tx)
	return tx.Hash(), nil
}

// Run produces a block every BlockTime until ctx is canceled.
func (r *Runtime) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.options.BlockTime)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := r.ProduceBlock(ctx); err != nil {
				return eris.Wrap(err, "failed to produce block")
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *Runtime) takeMempool() []*sign.Transaction {
	r.mempoolMu.Lock()
	defer r.mempoolMu.Unlock()
	txs := r.mempool
	r.mempool = nil
	return txs
}

// ProduceBlock applies every pending transaction as the next block.
func (r *Runtime) ProduceBlock(ctx context.Context) (BlockResult, error) {
	ctx, span := r.tel.Tracer.Start(ctx, "runtime.produce_block")
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	txs := r.takeMempool()
	block := state.NewCache(ctx, r.store)

	height, _, err := r.height.Get(block)
	if err != nil {
		return r.fail(span, err)
	}
	height++
	if err := r.height.Set(block, height); err != nil {
		return r.fail(span, err)
	}

	rotated, err := r.session.OnBlock(block, height)
	if err != nil {
		return r.fail(span, eris.Wrap(err, "failed to advance session"))
	}
	epoch, err := r.session.CurrentEpoch(block)
	if err != nil {
		return r.fail(span, err)
	}

	result := BlockResult{
		Height:   height,
		Epoch:    epoch,
		Rotated:  rotated,
		Receipts: make([]Receipt, 0, len(txs)),
	}
	var commands []types.Command
	failed := 0
	for _, tx := range txs {
		receipt, cmds := r.apply(ctx, block, tx, height, epoch)
		if receipt.err != nil {
			failed++
		}
		result.Receipts = append(result.Receipts, receipt)
		commands = append(commands, cmds...)
	}

	if err := block.Commit(r.store); err != nil {
		return r.fail(span, eris.Wrap(err, "failed to commit block"))
	}
	// The queue changes only once the block is committed. Sweeping first keeps this block's
	// commands.
	swept := r.queue.Sweep(height, r.options.MaxStaleness)
	result.Swept = swept
	r.queue.Push(height, commands...)
	result.Queued = len(commands)

	span.SetAttributes(
		attribute.Int64("block.height", int64(height)),
		attribute.Int("block.txs", len(txs)),
		attribute.Int("block.failed", failed),
	)
	r.log.Debug().
		Uint64("height", height).
		Uint64("epoch", epoch).
		Int("txs", len(txs)).
		Int("applied", len(txs)-failed).
		Int("failed", failed).
		Int("queued", len(commands)).
		Int("swept", swept).
		Msg("block produced")
	if swept > 0 {
		r.log.Warn().Int("swept", swept).Uint64("height", height).Msg("dropped stale commands")
	}

	r.publish(result)
	return result, nil
}

func (r *Runtime) fail(span trace.Span, err error) (BlockResult, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, "block production failed")
	return BlockResult{}, err
}

// apply runs tx on a branch of block and keeps the branch only if the call succeeds.
func (r *Runtime) apply(
	ctx context.Context,
	block *state.Cache,
	tx *sign.Transaction,
	height, epoch uint64,
) (Receipt, []types.Command) {
	receipt := Receipt{Hash: tx.Hash(), Call: tx.Call, Signer: tx.Signer}

	branch := block.Branch()
	origin := types.Origin{
		Account: types.AccountID(tx.Signer),
		Root:    types.AccountID(tx.Signer) == r.options.RootAccount,
	}
	tctx := types.NewContext(ctx, branch, height, epoch, origin)

	if err := r.dispatch(tctx, tx); err != nil {
		receipt.err = err
		receipt.Error = err.Error()
		r.log.Debug().Err(err).Str("call", tx.Call).Str("hash", receipt.Hash).Msg("call failed")
		return receipt, nil
	}

	branch.Write()
	for _, e := range tctx.Events() {
		receipt.Events = append(receipt.Events, EventRecord{Name: e.EventName(), Data: e})
	}
	return receipt, tctx.Commands()
}

// -------------------------------------------------------------------------------------------------
// Subscriptions
// -------------------------------------------------------------------------------------------------

// Subscribe returns a channel receiving every produced block and a function that cancels the
// subscription. Results are dropped for subscribers that fall more than buffer blocks behind.
func (r *Runtime) Subscribe(buffer int) (<-chan BlockResult, func()) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()

	ch := make(chan BlockResult, buffer)
	id := r.nextID
	r.nextID++
	r.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.subsMu.Lock()
			defer r.subsMu.Unlock()
			delete(r.subs, id)
			close(ch)
		})
	}
}

func (r *Runtime) publish(result BlockResult) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()

	for id, ch := range r.subs {
		select {
		case ch <- result:
		default:
			r.log.Warn().Int("subscriber", id).Uint64("height", result.Height).Msg("subscriber is behind, dropping block")
		}
	}
}
