package testutils

import (
	"encoding/hex"
	"math/rand/v2"
	"testing"

	"github.com/argus-labs/iris/pkg/sign"
	"github.com/stretchr/testify/require"
)

// RandKeySeed returns a hex encoded 32 byte Ed25519 seed.
func RandKeySeed(r *rand.Rand) string {
	return hex.EncodeToString(RandBytes(r, 32))
}

// RandSigner returns a signer with a random key.
func RandSigner(t *testing.T, r *rand.Rand) *sign.Signer {
	t.Helper()

	signer, err := sign.NewSigner(RandKeySeed(r), r.Int64())
	require.NoError(t, err)
	return signer
}
