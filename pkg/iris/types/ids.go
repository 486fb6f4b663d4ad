package types

import (
	"crypto/ed25519"
	"encoding/hex"
	"strconv"

	"github.com/rotisserie/eris"
)

var ErrInvalidAccount = eris.New("invalid account id")

// AccountID identifies an account. Accounts are the hex encoded Ed25519 public keys of their
// signers.
type AccountID string

func (a AccountID) String() string { return string(a) }

// Validate checks that a is the lowercase hex encoding of an Ed25519 public key. Account ids
// become parts of state keys, so anything else is rejected before it reaches storage.
func (a AccountID) Validate() error {
	key, err := hex.DecodeString(string(a))
	if err != nil {
		return eris.Wrapf(ErrInvalidAccount, "%q is not hex", a)
	}
	if len(key) != ed25519.PublicKeySize {
		return eris.Wrapf(ErrInvalidAccount, "%q is %d bytes, want %d", a, len(key), ed25519.PublicKeySize)
	}
	if hex.EncodeToString(key) != string(a) {
		return eris.Wrapf(ErrInvalidAccount, "%q is not lowercase", a)
	}
	return nil
}

// ClassID identifies a content-class. It is chosen by the publishing application.
type ClassID uint64

func (c ClassID) String() string { return strconv.FormatUint(uint64(c), 10) }

// ContentID is an opaque content-derived identifier on the storage network, in its textual form.
type ContentID []byte

func (c ContentID) String() string { return string(c) }

func (c ContentID) MarshalText() ([]byte, error) { return []byte(c), nil }

func (c *ContentID) UnmarshalText(text []byte) error {
	*c = append(ContentID(nil), text...)
	return nil
}

// Address is an opaque storage-network address, in its textual form.
type Address []byte

func (a Address) String() string { return string(a) }

func (a Address) MarshalText() ([]byte, error) { return []byte(a), nil }

func (a *Address) UnmarshalText(text []byte) error {
	*a = append(Address(nil), text...)
	return nil
}

// Balance is an amount of asset units.
type Balance uint64

// Origin is the authority a call executes under.
type Origin struct {
	Account AccountID
	// Root is set when the signer holds the privileged origin.
	Root bool
}
