package storagenet

import (
	"context"
	"encoding/binary"
	"strconv"
	"sync"

	"github.com/argus-labs/iris/pkg/iris/types"
	"github.com/coocood/freecache"
	"github.com/rotisserie/eris"
)

var ErrTooLarge = eris.New("storagenet: content exceeds local store limit")

// Local is the node's off-chain storage for retrieved content, keyed by requester and class.
// A later Put for the same requester and class replaces the earlier content.
type Local interface {
	Put(ctx context.Context, requester types.AccountID, id types.ClassID, data []byte) error
	Get(ctx context.Context, requester types.AccountID, id types.ClassID) ([]byte, bool, error)
}

const (
	minCacheSize = 4 * 1024 * 1024
	// Chunks are a sixteenth of a freecache segment, well below its 1/4 entry limit. Many chunks
	// fit a segment, so a spread entry rarely evicts its own chunks.
	chunkDivisor = 4096
	// Content may use at most this fraction of the cache.
	maxShare = 8
)

// CacheStore is a Local in memory. freecache refuses entries above 1/1024 of its size, so
// content is split into chunks and an entry header records the total length. Entries expire
// after the TTL, and an entry with an evicted chunk reads as missing.
type CacheStore struct {
	// Guards the multi-key writes of Put against Get.
	mu         sync.RWMutex
	cache      *freecache.Cache
	chunkSize  int
	maxSize    int
	ttlSeconds int
}

var _ Local = (*CacheStore)(nil)

// NewCacheStore returns a store of sizeBytes, raised to 4 MiB if smaller.
func NewCacheStore(sizeBytes, ttlSeconds int) *CacheStore {
	size := max(sizeBytes, minCacheSize)
	return &CacheStore{
		cache:      freecache.NewCache(size),
		chunkSize:  size / chunkDivisor,
		maxSize:    size / maxShare,
		ttlSeconds: ttlSeconds,
	}
}

func localKey(requester types.AccountID, id types.ClassID) string {
	return requester.String() + "/" + id.String()
}

func chunkKey(key string, i int) []byte {
	return []byte(key + "/" + strconv.Itoa(i))
}

func (s *CacheStore) Put(_ context.Context, requester types.AccountID, id types.ClassID, data []byte) error {
	if len(data) > s.maxSize {
		return eris.Wrapf(ErrTooLarge, "%d bytes for %s, limit %d", len(data), requester, s.maxSize)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := localKey(requester, id)
	// Readers see the old entry as missing until the new one is complete.
	s.cache.Del([]byte(key))
	for i, off := 0, 0; off < len(data); i, off = i+1, off+s.chunkSize {
		end := min(off+s.chunkSize, len(data))
		if err := s.cache.Set(chunkKey(key, i), data[off:end], s.ttlSeconds); err != nil {
			return eris.Wrapf(err, "failed to store chunk %d for %s", i, requester)
		}
	}

	var header [8]byte
	binary.BigEndian.PutUint64(header[:], uint64(len(data)))
	if err := s.cache.Set([]byte(key), header[:], s.ttlSeconds); err != nil {
		return eris.Wrapf(err, "failed to store %d bytes for %s", len(data), requester)
	}
	return nil
}

// Get returns the content stored for requester, if it has not expired.
func (s *CacheStore) Get(_ context.Context, requester types.AccountID, id types.ClassID) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := localKey(requester, id)
	header, err := s.cache.Get([]byte(key))
	if err != nil {
		return nil, false, nil
	}
	size := binary.BigEndian.Uint64(header)

	data := make([]byte, 0, size)
	for i := 0; uint64(len(data)) < size; i++ {
		chunk, err := s.cache.Get(chunkKey(key, i))
		if err != nil {
			return nil, false, nil
		}
		data = append(data, chunk...)
	}
	if uint64(len(data)) != size {
		return nil, false, nil
	}
	return data, true, nil
}
