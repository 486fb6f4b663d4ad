package testutils

import (
	"fmt"
	"math/rand/v2"
	"os"
	"strconv"
	"testing"
	"time"
)

var Seed uint64 //nolint:gochecknoglobals // intentionally global for test reproducibility

func init() { //nolint:gochecknoinits // intentionally using init to set seed
	Seed = uint64(time.Now().UnixNano()) //nolint:gosec // it's ok
	if envSeed := os.Getenv("TEST_SEED"); envSeed != "" {
		parsed, err := strconv.ParseUint(envSeed, 0, 64)
		if err == nil { // Only set using the env if it's valid
			Seed = parsed
		}
	}
	fmt.Printf("to reproduce: TEST_SEED=0x%x\n", Seed) //nolint:forbidigo // just for testing
}

// NewRand returns a PRNG seeded from Seed. Each test should own its PRNG; rand.Rand is not safe
// for concurrent use across parallel subtests.
func NewRand(t *testing.T) *rand.Rand {
	t.Helper()
	return rand.New(rand.NewPCG(Seed, Seed)) //nolint:gosec // weak RNG is fine for tests
}

// RandMapKey returns a random key from a map. Panics if the map is empty.
func RandMapKey[K comparable, V any](r *rand.Rand, m map[K]V) K {
	idx := r.IntN(len(m))
	for k := range m {
		if idx == 0 {
			return k
		}
		idx--
	}
	panic("unreachable")
}

// RandElem returns a random element of a non-empty slice.
func RandElem[T any](r *rand.Rand, s []T) T {
	return s[r.IntN(len(s))]
}

// WeightedOp is a constraint for operation types that use their value as the weight.
type WeightedOp interface {
	~uint8 | ~uint16 | ~uint32 | ~int
}

// RandWeightedOp returns a random operation from a slice, using each op's value as its weight.
func RandWeightedOp[T WeightedOp](r *rand.Rand, ops []T) T {
	var total int
	for _, op := range ops {
		total += int(op)
	}

	pick := r.IntN(total)
	for _, op := range ops {
		weight := int(op)
		if pick < weight {
			return op
		}
		pick -= weight
	}
	panic("unreachable")
}

// RandString generates a random alphanumeric string of the given length.
func RandString(r *rand.Rand, length int) string {
	const chars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = chars[r.IntN(len(chars))]
	}
	return string(b)
}

// RandBytes returns n pseudo-random bytes.
func RandBytes(r *rand.Rand, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(r.UintN(256))
	}
	return b
}

// OpWeights assigns a relative weight to each named operation.
type OpWeights struct {
	ops     []string
	weights []int
}

// RandOpWeights gives each operation a random weight in [1, 100] so every run of a model-based
// test explores a different mix of operations.
func RandOpWeights(r *rand.Rand, ops []string) OpWeights {
	w := OpWeights{ops: ops, weights: make([]int, len(ops))}
	for i := range ops {
		w.weights[i] = r.IntN(100) + 1
	}
	return w
}

// Pick returns a random operation according to the weights.
func (w OpWeights) Pick(r *rand.Rand) string {
	var total int
	for _, weight := range w.weights {
		total += weight
	}

	pick := r.IntN(total)
	for i, weight := range w.weights {
		if pick < weight {
			return w.ops[i]
		}
		pick -= weight
	}
	panic("unreachable")
}
