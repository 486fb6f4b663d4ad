// Package memnet is an in-process storage network for tests and local runs.
package memnet

import (
	"context"
	"sync"

	"github.com/argus-labs/iris/pkg/iris/storagenet"
	"github.com/argus-labs/iris/pkg/iris/types"
	"github.com/rotisserie/eris"
)

// Step names a session operation that can be made to fail.
type Step string

const (
	StepDial       Step = "dial"
	StepFetch      Step = "fetch"
	StepAdd        Step = "add"
	StepPin        Step = "pin"
	StepDisconnect Step = "disconnect"
)

var stepErrors = map[Step]error{
	StepDial:       storagenet.ErrConnect,
	StepFetch:      storagenet.ErrFetch,
	StepAdd:        storagenet.ErrAdd,
	StepPin:        storagenet.ErrPin,
	StepDisconnect: storagenet.ErrDisconnect,
}

// Network holds peers, each a set of blobs, plus the local node's blobs and pins.
type Network struct {
	mu       sync.Mutex
	peers    map[string]map[string][]byte
	local    map[string][]byte
	pinned   map[string]bool
	failures map[Step]int
	open     int
	dials    int
}

var _ storagenet.Network = (*Network)(nil)

func New() *Network {
	return &Network{
		peers:    map[string]map[string][]byte{},
		local:    map[string][]byte{},
		pinned:   map[string]bool{},
		failures: map[Step]int{},
	}
}

// AddPeer registers a reachable peer holding blobs and returns their content ids in order.
func (n *Network) AddPeer(addr types.Address, blobs ...[]byte) []types.ContentID {
	n.mu.Lock()
	defer n.mu.Unlock()

	store, ok := n.peers[addr.String()]
	if !ok {
		store = map[string][]byte{}
		n.peers[addr.String()] = store
	}
	ids := make([]types.ContentID, 0, len(blobs))
	for _, b := range blobs {
		id, err := storagenet.ContentIDFor(b)
		if err != nil {
			panic(err)
		}
		store[id.String()] = append([]byte(nil), b...)
		ids = append(ids, id)
	}
	return ids
}

// Seed stores data on the local node under id.
func (n *Network) Seed(id types.ContentID, data []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.local[id.String()] = append([]byte(nil), data...)
}

// FailNext makes the next count invocations of step fail.
func (n *Network) FailNext(step Step, count int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures[step] += count
}

// HasLocal reports whether the local node stores id.
func (n *Network) HasLocal(id types.ContentID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.local[id.String()]
	return ok
}

func (n *Network) IsPinned(id types.ContentID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.pinned[id.String()]
}

// OpenSessions returns the number of sessions dialed and not yet closed.
func (n *Network) OpenSessions() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.open
}

// Dials returns the number of successful dials.
func (n *Network) Dials() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dials
}

// injected must be called with mu held.
func (n *Network) injected(step Step) error {
	if n.failures[step] == 0 {
		return nil
	}
	n.failures[step]--
	return eris.Wrap(stepErrors[step], "injected failure")
}

func (n *Network) Dial(ctx context.Context, addr types.Address) (storagenet.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(storagenet.ErrConnect, err.Error())
	}
	s := &session{net: n}
	if addr != nil {
		if _, err := storagenet.ParseAddr(addr); err != nil {
			return nil, err
		}
		s.peer = addr.String()
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.injected(StepDial); err != nil {
		return nil, err
	}
	if s.peer != "" {
		if _, ok := n.peers[s.peer]; !ok {
			return nil, eris.Wrapf(storagenet.ErrConnect, "unreachable peer %s", s.peer)
		}
	}
	n.open++
	n.dials++
	return s, nil
}

type session struct {
	net    *Network
	peer   string
	closed bool
}

func (s *session) Fetch(ctx context.Context, id types.ContentID) ([]byte, error) {
	if _, err := storagenet.ParseContentID(id); err != nil {
		return nil, err
	}
	n := s.net
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(storagenet.ErrFetch, err.Error())
	}
	if err := n.injected(StepFetch); err != nil {
		return nil, err
	}
	if data, ok := n.local[id.String()]; ok {
		return append([]byte(nil), data...), nil
	}
	if s.peer != "" {
		if data, ok := n.peers[s.peer][id.String()]; ok {
			return append([]byte(nil), data...), nil
		}
	}
	return nil, eris.Wrapf(storagenet.ErrNotFound, "%s", id)
}

func (s *session) Add(ctx context.Context, data []byte) (types.ContentID, error) {
	id, err := storagenet.ContentIDFor(data)
	if err != nil {
		return nil, eris.Wrap(storagenet.ErrAdd, err.Error())
	}
	n := s.net
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(storagenet.ErrAdd, err.Error())
	}
	if err := n.injected(StepAdd); err != nil {
		return nil, err
	}
	n.local[id.String()] = append([]byte(nil), data...)
	return id, nil
}

func (s *session) Pin(ctx context.Context, id types.ContentID) error {
	if _, err := storagenet.ParseContentID(id); err != nil {
		return err
	}
	n := s.net
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return eris.Wrap(storagenet.ErrPin, err.Error())
	}
	if err := n.injected(StepPin); err != nil {
		return err
	}
	if _, ok := n.local[id.String()]; !ok {
		return eris.Wrapf(storagenet.ErrPin, "%s not stored locally", id)
	}
	n.pinned[id.String()] = true
	return nil
}

// Close always releases the session, even when the disconnect itself is made to fail.
func (s *session) Close(context.Context) error {
	n := s.net
	n.mu.Lock()
	defer n.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	n.open--
	return n.injected(StepDisconnect)
}
