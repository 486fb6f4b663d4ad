package runtime

import (
	"sync"
	"time"

	"github.com/argus-labs/iris/pkg/iris/types"
	"github.com/argus-labs/iris/pkg/sign"
	"github.com/coocood/freecache"
	"github.com/rotisserie/eris"
)

// maxTxTTL is the duration after which a transaction is considered expired.
const maxTxTTL = 120 * time.Second

// clockDriftTolerance is the maximum allowed clock drift in the future.
const clockDriftTolerance = 2 * time.Second

// cacheRetentionExtra keeps signatures in the replay cache a little past their expiry.
const cacheRetentionExtra = 10 * time.Second

// txVerifier checks signatures, timestamps and replays of submitted transactions.
type txVerifier struct {
	mu    sync.Mutex
	cache *freecache.Cache
	now   func() time.Time
}

func newTxVerifier(cacheSize int) *txVerifier {
	return &txVerifier{
		cache: freecache.NewCache(cacheSize),
		now:   time.Now,
	}
}

// Verify accepts tx at most once within its validity window.
func (v *txVerifier) Verify(tx *sign.Transaction) error {
	// The signer becomes the origin account.
	if err := types.AccountID(tx.Signer).Validate(); err != nil {
		return err
	}
	if err := sign.Verify(tx); err != nil {
		return err
	}

	now := v.now()
	timestamp := tx.Time()
	if now.After(timestamp.Add(maxTxTTL)) {
		return ErrExpired
	}
	if timestamp.After(now.Add(clockDriftTolerance)) {
		return eris.Wrapf(ErrFutureTimestamp, "more than %s ahead", clockDriftTolerance)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if _, err := v.cache.Get(tx.Signature); err == nil {
		return ErrReplay
	}
	expirySeconds := int((maxTxTTL + cacheRetentionExtra).Seconds())
	if err := v.cache.Set(tx.Signature, []byte{}, expirySeconds); err != nil {
		return eris.Wrap(err, "failed to set transaction in replay cache")
	}
	return nil
}
