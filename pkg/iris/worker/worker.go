// Package worker runs queued commands against the storage network and reports the results back
// to the runtime as signed transactions.
//
// Each drained command is one connect, execute, disconnect sequence with its own session. A
// command that fails at any step is logged and dropped: no report is submitted and it is not
// retried. Reports are the only way a worker affects state.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/argus-labs/iris/pkg/iris/queue"
	"github.com/argus-labs/iris/pkg/iris/runtime"
	"github.com/argus-labs/iris/pkg/iris/storagenet"
	"github.com/argus-labs/iris/pkg/iris/types"
	"github.com/argus-labs/iris/pkg/sign"
	"github.com/argus-labs/iris/pkg/telemetry"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var (
	ErrSubmit    = eris.New("failed to submit report")
	ErrNoContent = eris.New("owner has no content under class")
)

// closeTimeout bounds the disconnect that follows a command, including one that timed out.
const closeTimeout = 5 * time.Second

// Drainer hands out every queued command at once.
type Drainer interface {
	Drain() []queue.Entry
}

// Ownership resolves the content an owner published under a class, from committed state.
type Ownership interface {
	LookupOwnedContentID(ctx context.Context, admin types.AccountID, id types.ClassID) (types.ContentID, bool, error)
}

// Submitter delivers a signed report to the runtime, locally or over the network.
type Submitter interface {
	Submit(ctx context.Context, tx *sign.Transaction) (string, error)
}

type Options struct {
	Queue     Drainer
	Network   storagenet.Network
	Local     storagenet.Local
	Ownership Ownership
	Submitter Submitter
	Signer    *sign.Signer
	Telemetry *telemetry.Telemetry

	// Number of commands run at once. One keeps strict queue order.
	Concurrency int
	// Deadline of one command's storage-network work.
	Timeout time.Duration
}

func newDefaultOptions() Options {
	return Options{
		Concurrency: 1,
		Timeout:     30 * time.Second,
	}
}

func (opt *Options) apply(newOpt Options) {
	if newOpt.Queue != nil {
		opt.Queue = newOpt.Queue
	}
	if newOpt.Network != nil {
		opt.Network = newOpt.Network
	}
	if newOpt.Local != nil {
		opt.Local = newOpt.Local
	}
	if newOpt.Ownership != nil {
		opt.Ownership = newOpt.Ownership
	}
	if newOpt.Submitter != nil {
		opt.Submitter = newOpt.Submitter
	}
	if newOpt.Signer != nil {
		opt.Signer = newOpt.Signer
	}
	if newOpt.Telemetry != nil {
		opt.Telemetry = newOpt.Telemetry
	}
	if newOpt.Concurrency != 0 {
		opt.Concurrency = newOpt.Concurrency
	}
	if newOpt.Timeout != 0 {
		opt.Timeout = newOpt.Timeout
	}
}

func (opt *Options) validate() error {
	switch {
	case opt.Queue == nil:
		return eris.New("queue is required")
	case opt.Network == nil:
		return eris.New("storage network is required")
	case opt.Local == nil:
		return eris.New("local store is required")
	case opt.Ownership == nil:
		return eris.New("ownership reader is required")
	case opt.Submitter == nil:
		return eris.New("submitter is required")
	case opt.Signer == nil:
		return eris.New("signer is required")
	case opt.Telemetry == nil:
		return eris.New("telemetry is required")
	case opt.Concurrency < 1:
		return eris.New("concurrency must be at least 1")
	case opt.Timeout <= 0:
		return eris.New("timeout must be positive")
	}
	return nil
}

type Worker struct {
	options Options

	// Signer draws salts from a shared rng.
	signMu sync.Mutex

	tel *telemetry.Telemetry
	log zerolog.Logger
}

func New(opts Options) (*Worker, error) {
	options := newDefaultOptions()
	options.apply(opts)
	if err := options.validate(); err != nil {
		return nil, eris.Wrap(err, "invalid worker options")
	}
	return &Worker{
		options: options,
		tel:     options.Telemetry,
		log:     options.Telemetry.GetLogger("worker"),
	}, nil
}

// Outcome is the result of one command. Report is the hash of the submitted report.
type Outcome struct {
	Entry  queue.Entry
	Report string
	Err    error
}

// Run starts a cycle for every block received on blocks until ctx is canceled or blocks is
// closed.
func (w *Worker) Run(ctx context.Context, blocks <-chan runtime.BlockResult) error {
	for {
		select {
		case _, ok := <-blocks:
			if !ok {
				return nil
			}
			w.RunCycle(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RunCycle drains the queue and runs every drained command. Outcomes are in queue order.
func (w *Worker) RunCycle(ctx context.Context) []Outcome {
	entries := w.options.Queue.Drain()
	if len(entries) == 0 {
		return nil
	}

	outcomes := make([]Outcome, len(entries))
	var g errgroup.Group
	g.SetLimit(w.options.Concurrency)
	for i, entry := range entries {
		g.Go(func() error {
			defer w.tel.RecoverAndFlush(true)
			hash, err := w.process(ctx, entry)
			outcomes[i] = Outcome{Entry: entry, Report: hash, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	w.log.Debug().Int("commands", len(entries)).Int("failed", failed).Msg("worker cycle done")
	return outcomes
}

func (w *Worker) process(ctx context.Context, entry queue.Entry) (string, error) {
	cmd := entry.Command
	ctx, span := w.tel.Tracer.Start(ctx, "worker."+cmd.Kind().String(), trace.WithAttributes(
		attribute.String("command.id", entry.ID.String()),
		attribute.Int64("command.class_id", int64(cmd.Class())),
	))
	defer span.End()

	log := w.tel.GetLoggerWithTrace(ctx, "worker").With().
		Str("kind", cmd.Kind().String()).
		Uint64("class_id", uint64(cmd.Class())).
		Str("command_id", entry.ID.String()).
		Logger()

	hash, err := w.execute(ctx, entry)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "command dropped")
		if routineDrop(err) {
			log.Warn().Err(err).Msg("command failed, dropping")
		} else {
			log.Error().Err(err).Msg("command failed unexpectedly, dropping")
			w.tel.CaptureException(ctx, err)
		}
		return "", err
	}
	log.Info().Str("report", hash).Msg("command reported")
	return hash, nil
}

// routineDrop reports whether err is an expected way for a command to fail: the storage network
// or the content is unavailable, or the command ran out of time.
func routineDrop(err error) bool {
	for _, target := range []error{
		ErrNoContent,
		storagenet.ErrConnect,
		storagenet.ErrFetch,
		storagenet.ErrAdd,
		storagenet.ErrPin,
		storagenet.ErrDisconnect,
		storagenet.ErrNotFound,
		storagenet.ErrInvalidContentID,
		storagenet.ErrInvalidAddress,
		storagenet.ErrTooLarge,
		context.DeadlineExceeded,
		context.Canceled,
	} {
		if eris.Is(err, target) {
			return true
		}
	}
	return false
}

func (w *Worker) execute(ctx context.Context, entry queue.Entry) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, w.options.Timeout)
	defer cancel()

	var (
		call    string
		payload any
		err     error
	)
	switch cmd := entry.Command.(type) {
	case types.Publish:
		call = runtime.CallReportPublishResult
		payload, err = w.publish(ctx, entry, cmd)
	case types.Retrieve:
		call = runtime.CallReportRetrieveResult
		payload, err = w.retrieve(ctx, entry, cmd)
	case types.Pin:
		call = runtime.CallReportPinResult
		payload, err = w.pin(ctx, entry, cmd)
	default:
		return "", eris.Errorf("unsupported command %T", cmd)
	}
	if err != nil {
		return "", err
	}
	return w.report(ctx, call, payload)
}

func (w *Worker) report(ctx context.Context, call string, payload any) (string, error) {
	w.signMu.Lock()
	tx, err := w.options.Signer.Sign(call, payload)
	w.signMu.Unlock()
	if err != nil {
		return "", eris.Wrap(err, "failed to sign report")
	}

	hash, err := w.options.Submitter.Submit(ctx, tx)
	if err != nil {
		return "", eris.Wrapf(ErrSubmit, "%s: %v", call, err)
	}
	return hash, nil
}

// session dials addr and returns a release function that always disconnects.
func (w *Worker) session(ctx context.Context, addr types.Address) (storagenet.Session, func(), error) {
	sess, err := w.options.Network.Dial(ctx, addr)
	if err != nil {
		return nil, nil, err
	}
	release := func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if err := sess.Close(closeCtx); err != nil {
			w.log.Warn().Err(err).Msg("failed to release storage session")
		}
	}
	return sess, release, nil
}

// publish copies the content from the publisher's node onto the local node.
func (w *Worker) publish(ctx context.Context, entry queue.Entry, cmd types.Publish) (any, error) {
	sess, release, err := w.session(ctx, cmd.Address)
	if err != nil {
		return nil, err
	}
	defer release()

	data, err := sess.Fetch(ctx, cmd.ContentID)
	if err != nil {
		return nil, err
	}
	added, err := sess.Add(ctx, data)
	if err != nil {
		return nil, err
	}
	return runtime.ReportPublishResult{
		Admin:     cmd.Admin,
		ContentID: added,
		ClassID:   cmd.ClassID,
		Balance:   cmd.Balance,
		CommandID: entry.ID.String(),
	}, nil
}

// retrieve fetches the owner's content into local storage for the requester.
func (w *Worker) retrieve(ctx context.Context, entry queue.Entry, cmd types.Retrieve) (any, error) {
	content, ok, err := w.options.Ownership.LookupOwnedContentID(ctx, cmd.Owner, cmd.ClassID)
	if err != nil {
		return nil, eris.Wrap(err, "failed to look up content")
	}
	if !ok {
		return nil, eris.Wrapf(ErrNoContent, "owner %s, class %d", cmd.Owner, cmd.ClassID)
	}

	sess, release, err := w.session(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer release()

	data, err := sess.Fetch(ctx, content)
	if err != nil {
		return nil, err
	}
	if err := w.options.Local.Put(ctx, cmd.Requester, cmd.ClassID, data); err != nil {
		return nil, err
	}
	return runtime.ReportRetrieveResult{
		ClassID:   cmd.ClassID,
		Requester: cmd.Requester,
		CommandID: entry.ID.String(),
	}, nil
}

func (w *Worker) pin(ctx context.Context, entry queue.Entry, cmd types.Pin) (any, error) {
	sess, release, err := w.session(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := sess.Pin(ctx, cmd.ContentID); err != nil {
		return nil, err
	}
	return runtime.ReportPinResult{
		ClassID:   cmd.ClassID,
		ContentID: cmd.ContentID,
		CommandID: entry.ID.String(),
	}, nil
}
