// Package objstore keeps retrieved content in a NATS JetStream object store, so it outlives the
// node process and is shared by every node on the same NATS deployment.
package objstore

import (
	"context"
	"time"

	"github.com/argus-labs/iris/pkg/iris/storagenet"
	"github.com/argus-labs/iris/pkg/iris/types"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rotisserie/eris"
)

type Options struct {
	Bucket string
	// Zero keeps objects until they are replaced.
	TTL time.Duration
	// Zero is unlimited. Required by some NATS providers like Synadia Cloud.
	MaxBytes int64
}

// Store is a storagenet.Local backed by one object store bucket.
type Store struct {
	os jetstream.ObjectStore
}

var _ storagenet.Local = (*Store)(nil)

// New opens the bucket, creating it if it does not exist.
func New(ctx context.Context, conn *nats.Conn, opts Options) (*Store, error) {
	if opts.Bucket == "" {
		return nil, eris.New("bucket name cannot be empty")
	}

	js, err := jetstream.New(conn)
	if err != nil {
		return nil, eris.Wrap(err, "failed to create JetStream client")
	}

	cfg := jetstream.ObjectStoreConfig{
		Bucket:   opts.Bucket,
		TTL:      opts.TTL,
		MaxBytes: opts.MaxBytes,
	}
	os, err := js.CreateObjectStore(ctx, cfg)
	if err != nil {
		if !eris.Is(err, jetstream.ErrBucketExists) {
			return nil, eris.Wrapf(err, "failed to create ObjectStore (bucket=%s, maxBytes=%d)", cfg.Bucket, cfg.MaxBytes)
		}
		// Bucket already exists with another config, use it as is.
		os, err = js.ObjectStore(ctx, opts.Bucket)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to get existing ObjectStore (bucket=%s)", opts.Bucket)
		}
	}
	return &Store{os: os}, nil
}

func objectName(requester types.AccountID, id types.ClassID) string {
	return requester.String() + "." + id.String()
}

func (s *Store) Put(ctx context.Context, requester types.AccountID, id types.ClassID, data []byte) error {
	if _, err := s.os.PutBytes(ctx, objectName(requester, id), data); err != nil {
		return eris.Wrapf(err, "failed to store %d bytes for %s", len(data), requester)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, requester types.AccountID, id types.ClassID) ([]byte, bool, error) {
	data, err := s.os.GetBytes(ctx, objectName(requester, id))
	if err != nil {
		if eris.Is(err, jetstream.ErrObjectNotFound) {
			return nil, false, nil
		}
		return nil, false, eris.Wrapf(err, "failed to read content for %s", requester)
	}
	return data, true, nil
}
