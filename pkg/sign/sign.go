package sign

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"math/rand"
	"time"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
)

// ErrInvalidSignature is returned when a transaction's signature does not verify against its signer.
var ErrInvalidSignature = eris.New("invalid transaction signature")

// Transaction is a signed call into the coordination runtime. Signer is the hex encoded Ed25519
// public key of the account that authorized the call.
type Transaction struct {
	Signer    string          `json:"signer"`
	Timestamp int64           `json:"timestamp"` // unix milliseconds
	Salt      []byte          `json:"salt"`
	Call      string          `json:"call"`
	Payload   json.RawMessage `json:"payload"`
	Signature []byte          `json:"signature"`
}

type transactionBody struct {
	Signer    string          `json:"signer"`
	Timestamp int64           `json:"timestamp"`
	Salt      []byte          `json:"salt"`
	Call      string          `json:"call"`
	Payload   json.RawMessage `json:"payload"`
}

func (tx *Transaction) signingBytes() ([]byte, error) {
	bz, err := json.Marshal(transactionBody{
		Signer:    tx.Signer,
		Timestamp: tx.Timestamp,
		Salt:      tx.Salt,
		Call:      tx.Call,
		Payload:   tx.Payload,
	})
	if err != nil {
		return nil, eris.Wrap(err, "failed to marshal transaction body")
	}
	return bz, nil
}

// Hash returns the hex encoded sha256 of the transaction signature. A signature covers the salt
// and timestamp, so two transactions with the same call still hash differently.
func (tx *Transaction) Hash() string {
	sum := sha256.Sum256(tx.Signature)
	return hex.EncodeToString(sum[:])
}

// Time returns the timestamp the signer attached to the transaction.
func (tx *Transaction) Time() time.Time {
	return time.UnixMilli(tx.Timestamp)
}

// Signer handles signing transactions using an Ed25519 private key.
type Signer struct {
	privateKey ed25519.PrivateKey
	rng        *rand.Rand
}

// NewSigner creates a new Signer instance from a hex-encoded Ed25519 private key.
//
// The private key seed must be a valid 32-byte seed encoded as a hex string. This is used to derive
// the full Ed25519 private key for signing operations.
// The rng seed is used for deterministic salt generation with math/rand.
func NewSigner(privateKeySeed string, rngSeed int64) (*Signer, error) {
	key, err := hex.DecodeString(privateKeySeed)
	if err != nil {
		return nil, eris.Wrap(err, "failed to decode hex private key")
	}

	if len(key) != ed25519.SeedSize {
		return nil, eris.New("private key must be 32 bytes")
	}

	return &Signer{
		privateKey: ed25519.NewKeyFromSeed(key),
		rng:        rand.New(rand.NewSource(rngSeed)), //nolint:gosec // need deterministim
	}, nil
}

// Sign encodes payload as JSON and signs a transaction for call stamped with the current time.
func (s *Signer) Sign(call string, payload any) (*Transaction, error) {
	return s.SignAt(call, payload, time.Now())
}

// SignAt is Sign with an explicit timestamp.
func (s *Signer) SignAt(call string, payload any, at time.Time) (*Transaction, error) {
	if call == "" {
		return nil, eris.New("call name is required")
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, eris.Wrap(err, "failed to marshal payload")
	}

	tx := &Transaction{
		Signer:    s.Address(),
		Timestamp: at.UnixMilli(),
		Salt:      s.generateSalt(),
		Call:      call,
		Payload:   raw,
	}

	bz, err := tx.signingBytes()
	if err != nil {
		return nil, err
	}
	tx.Signature = ed25519.Sign(s.privateKey, bz)
	return tx, nil
}

// Address returns the hex encoded public key, which doubles as the signer's account identifier.
func (s *Signer) Address() string {
	return hex.EncodeToString(s.privateKey.Public().(ed25519.PublicKey)) //nolint:errcheck // it's fine
}

func (s *Signer) generateSalt() []byte {
	salt := make([]byte, 16)
	s.rng.Read(salt)
	return salt
}

// Verify checks that tx carries a valid signature from tx.Signer.
func Verify(tx *Transaction) error {
	if tx == nil {
		return eris.New("transaction is nil")
	}

	pub, err := hex.DecodeString(tx.Signer)
	if err != nil {
		return eris.Wrap(err, "failed to decode signer address")
	}
	if len(pub) != ed25519.PublicKeySize {
		return eris.Errorf("signer address must be %d bytes", ed25519.PublicKeySize)
	}

	bz, err := tx.signingBytes()
	if err != nil {
		return err
	}
	if !ed25519.Verify(pub, bz, tx.Signature) {
		return ErrInvalidSignature
	}
	return nil
}
