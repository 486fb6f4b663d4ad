// Package storagenet is the worker's view of the external content-addressable storage network.
//
// A Session is opened per command with Dial and closed when the command is done, whatever its
// outcome. Dial with a nil address opens a session on the local storage node only; with an
// address it also connects the local node to that peer.
package storagenet

import (
	"context"

	"github.com/argus-labs/iris/pkg/iris/types"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multiaddr"
	"github.com/multiformats/go-multihash"
	"github.com/rotisserie/eris"
)

var (
	ErrConnect          = eris.New("storagenet: connect failed")
	ErrFetch            = eris.New("storagenet: fetch failed")
	ErrAdd              = eris.New("storagenet: add failed")
	ErrPin              = eris.New("storagenet: pin failed")
	ErrDisconnect       = eris.New("storagenet: disconnect failed")
	ErrNotFound         = eris.New("storagenet: content not found")
	ErrInvalidContentID = eris.New("storagenet: invalid content id")
	ErrInvalidAddress   = eris.New("storagenet: invalid address")
)

// Network opens sessions on the storage network.
type Network interface {
	Dial(ctx context.Context, addr types.Address) (Session, error)
}

// Session is one connect/execute/disconnect sequence. Sessions are not shared between commands.
type Session interface {
	Fetch(ctx context.Context, id types.ContentID) ([]byte, error)
	Add(ctx context.Context, data []byte) (types.ContentID, error)
	Pin(ctx context.Context, id types.ContentID) error
	Close(ctx context.Context) error
}

// ParseContentID validates id as a CID.
func ParseContentID(id types.ContentID) (cid.Cid, error) {
	c, err := cid.Decode(id.String())
	if err != nil {
		return cid.Undef, eris.Wrapf(ErrInvalidContentID, "%q: %v", id, err)
	}
	return c, nil
}

// ParseAddr validates addr as a multiaddr.
func ParseAddr(addr types.Address) (multiaddr.Multiaddr, error) {
	a, err := multiaddr.NewMultiaddr(addr.String())
	if err != nil {
		return nil, eris.Wrapf(ErrInvalidAddress, "%q: %v", addr, err)
	}
	return a, nil
}

// ContentIDFor returns the CIDv1 (raw codec, sha2-256) of data.
func ContentIDFor(data []byte) (types.ContentID, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return nil, eris.Wrap(err, "failed to hash content")
	}
	return types.ContentID(cid.NewCidV1(cid.Raw, sum).String()), nil
}
