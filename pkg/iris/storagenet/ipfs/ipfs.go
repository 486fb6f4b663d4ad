// Package ipfs implements storagenet.Network on a Kubo node's HTTP RPC API.
package ipfs

import (
	"bytes"
	"context"
	"io"

	"github.com/argus-labs/iris/pkg/iris/storagenet"
	"github.com/argus-labs/iris/pkg/iris/types"
	shell "github.com/ipfs/go-ipfs-api"
	"github.com/rotisserie/eris"
)

// Network dials through the local Kubo node at the configured API endpoint.
type Network struct {
	sh *shell.Shell
}

var _ storagenet.Network = (*Network)(nil)

// New returns a Network for the Kubo API at url, e.g. "localhost:5001" or
// "/ip4/127.0.0.1/tcp/5001".
func New(url string) *Network {
	return &Network{sh: shell.NewShell(url)}
}

// IsUp reports whether the Kubo API answers.
func (n *Network) IsUp() bool {
	return n.sh.IsUp()
}

func (n *Network) Dial(ctx context.Context, addr types.Address) (storagenet.Session, error) {
	s := &session{sh: n.sh}
	if addr == nil {
		return s, nil
	}
	ma, err := storagenet.ParseAddr(addr)
	if err != nil {
		return nil, err
	}
	s.peer = ma.String()
	if err := n.sh.SwarmConnect(ctx, s.peer); err != nil {
		return nil, eris.Wrapf(storagenet.ErrConnect, "%s: %v", s.peer, err)
	}
	return s, nil
}

type session struct {
	sh   *shell.Shell
	peer string
}

func (s *session) Fetch(ctx context.Context, id types.ContentID) ([]byte, error) {
	c, err := storagenet.ParseContentID(id)
	if err != nil {
		return nil, err
	}
	resp, err := s.sh.Request("cat", c.String()).Send(ctx)
	if err != nil {
		return nil, eris.Wrapf(storagenet.ErrFetch, "%s: %v", c, err)
	}
	defer resp.Close()
	if resp.Error != nil {
		return nil, eris.Wrapf(storagenet.ErrFetch, "%s: %v", c, resp.Error)
	}
	data, err := io.ReadAll(resp.Output)
	if err != nil {
		return nil, eris.Wrapf(storagenet.ErrFetch, "%s: %v", c, err)
	}
	return data, nil
}

// Add stores data on the local node as a single raw-leaf CIDv1 block, matching
// storagenet.ContentIDFor for small payloads. The shell's Add does not take a context.
func (s *session) Add(_ context.Context, data []byte) (types.ContentID, error) {
	hash, err := s.sh.Add(bytes.NewReader(data), shell.CidVersion(1), shell.RawLeaves(true), shell.Pin(false))
	if err != nil {
		return nil, eris.Wrapf(storagenet.ErrAdd, "%v", err)
	}
	return types.ContentID(hash), nil
}

func (s *session) Pin(ctx context.Context, id types.ContentID) error {
	c, err := storagenet.ParseContentID(id)
	if err != nil {
		return err
	}
	if err := s.sh.Request("pin/add", c.String()).Exec(ctx, nil); err != nil {
		return eris.Wrapf(storagenet.ErrPin, "%s: %v", c, err)
	}
	return nil
}

func (s *session) Close(ctx context.Context) error {
	if s.peer == "" {
		return nil
	}
	if err := s.sh.Request("swarm/disconnect", s.peer).Exec(ctx, nil); err != nil {
		return eris.Wrapf(storagenet.ErrDisconnect, "%s: %v", s.peer, err)
	}
	return nil
}
