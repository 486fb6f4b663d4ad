package types

import (
	"context"

	"github.com/argus-labs/iris/pkg/state"
)

// Context carries everything a deterministic operation may touch: the state view for the
// operation, the block being built, and the caller's origin. Emitted events and enqueued commands
// are buffered on the context and only take effect if the operation succeeds.
type Context struct {
	context.Context

	State  state.KV
	Height uint64
	Epoch  uint64
	Origin Origin

	events   []Event
	commands []Command
}

func NewContext(ctx context.Context, kv state.KV, height, epoch uint64, origin Origin) *Context {
	return &Context{
		Context: ctx,
		State:   kv,
		Height:  height,
		Epoch:   epoch,
		Origin:  origin,
	}
}

// Emit records an event.
func (c *Context) Emit(e Event) {
	c.events = append(c.events, e)
}

// Enqueue records a command to be appended to the command queue once the operation commits.
func (c *Context) Enqueue(cmd Command) {
	c.commands = append(c.commands, cmd)
}

func (c *Context) Events() []Event { return c.events }

func (c *Context) Commands() []Command { return c.commands }
