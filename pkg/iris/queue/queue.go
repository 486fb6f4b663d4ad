// Package queue is the command queue between the deterministic runtime and off-chain workers.
//
// Commands enqueued by a successful operation are appended when its block commits. Workers drain
// the whole queue at once by swapping the buffer for an empty one. Entries nobody drains are
// dropped by Sweep once they are older than the configured staleness bound. Sweep is a lossy
// backstop: a dropped command is never executed and produces no follow-up transaction.
package queue

import (
	"slices"
	"strconv"
	"sync"

	"github.com/argus-labs/iris/pkg/iris/types"
	"github.com/google/uuid"
)

// initialQueueCapacity is the starting capacity of each queue buffer.
const initialQueueCapacity = 1024

// entryNamespace scopes entry ids so every node derives the same id for the same entry.
var entryNamespace = uuid.MustParse("6f9c1e2a-3b4d-4c5e-8f70-81a2b3c4d5e6") //nolint:gochecknoglobals // constant

// Entry is a queued command together with the cycle it was enqueued in.
type Entry struct {
	ID      uuid.UUID
	Cycle   uint64
	Command types.Command
}

// EntryID deterministically derives the id of the seq-th command enqueued in cycle.
func EntryID(cycle uint64, seq int) uuid.UUID {
	return uuid.NewSHA1(entryNamespace, []byte(strconv.FormatUint(cycle, 10)+"/"+strconv.Itoa(seq)))
}

// Queue is an ordered, unbounded command buffer. It is safe for concurrent use.
type Queue struct {
	mu      sync.Mutex
	entries []Entry

	lastCycle uint64
	seq       int
}

func New() *Queue {
	return &Queue{entries: make([]Entry, 0, initialQueueCapacity)}
}

// Push appends cmds as entries of cycle, in order.
func (q *Queue) Push(cycle uint64, cmds ...types.Command) {
	if len(cmds) == 0 {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if cycle != q.lastCycle {
		q.lastCycle = cycle
		q.seq = 0
	}
	for _, cmd := range cmds {
		q.entries = append(q.entries, Entry{ID: EntryID(cycle, q.seq), Cycle: cycle, Command: cmd})
		q.seq++
	}
}

// Drain returns every queued entry in order and leaves the queue empty. The returned slice is
// owned by the caller.
func (q *Queue) Drain() []Entry {
	fresh := make([]Entry, 0, initialQueueCapacity)

	q.mu.Lock()
	drained := q.entries
	q.entries = fresh
	q.mu.Unlock()

	return drained
}

// Sweep drops every entry enqueued more than maxStaleness cycles before current and returns how
// many were dropped.
func (q *Queue) Sweep(current, maxStaleness uint64) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	// Entries are appended in non-decreasing cycle order.
	keep := slices.IndexFunc(q.entries, func(e Entry) bool { return e.Cycle+maxStaleness >= current })
	if keep == -1 {
		keep = len(q.entries)
	}
	if keep == 0 {
		return 0
	}

	remaining := make([]Entry, 0, max(initialQueueCapacity, len(q.entries)-keep))
	q.entries = append(remaining, q.entries[keep:]...)
	return keep
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Snapshot returns a copy of the queued entries without draining them.
func (q *Queue) Snapshot() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.entries)
}
