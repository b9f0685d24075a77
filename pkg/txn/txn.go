// Package txn provides the execution frame a ledger call runs in.
//
// A frame stages writes in an overlay on top of committed state, buffers the
// events the call emits, and collects rollback hooks registered by cooperating
// collaborators (token transfers). Nothing in a frame is observable outside of
// it until the owner commits the staged writes in one batch; aborting a frame
// discards the overlay and runs the rollback hooks newest first.
//
// Frames are carried in a context.Context so that a call re-entering the
// ledger from inside a collaborator sees the state staged by the outer call.
// A frame belongs to a single call chain and is not safe for concurrent use.
package txn

import (
	"context"
	"fmt"

	"github.com/dropop-labs/dropop-go/pkg/types"
)

// Reader reads committed state. A missing key yields (nil, nil).
type Reader interface {
	Get(key []byte) ([]byte, error)
}

// Write is one staged key/value pair.
type Write struct {
	Key   []byte
	Value []byte
}

// Frame is a single level of staged state.
type Frame struct {
	parent *Frame
	reader Reader

	writes map[string][]byte
	order  []string

	events   []types.Event
	rollback []func()

	depth int
}

// NewFrame creates a root frame reading committed state from reader.
func NewFrame(reader Reader) *Frame {
	return &Frame{
		reader: reader,
		writes: make(map[string][]byte),
	}
}

// Child creates a frame nested in f. Its writes are visible to f only after Merge.
func (f *Frame) Child() *Frame {
	return &Frame{
		parent: f,
		reader: f.reader,
		writes: make(map[string][]byte),
		depth:  f.depth + 1,
	}
}

// Depth is 0 for a root frame and grows by one per nesting level.
func (f *Frame) Depth() int {
	return f.depth
}

// Get returns the newest staged value for key, falling back to committed state.
func (f *Frame) Get(key []byte) ([]byte, error) {
	for cur := f; cur != nil; cur = cur.parent {
		if v, ok := cur.writes[string(key)]; ok {
			return append([]byte{}, v...), nil
		}
	}
	if f.reader == nil {
		return nil, nil
	}
	v, err := f.reader.Get(key)
	if err != nil {
		return nil, fmt.Errorf("failed to read committed state: %w", err)
	}
	return v, nil
}

// Set stages value for key.
func (f *Frame) Set(key, value []byte) {
	k := string(key)
	if _, ok := f.writes[k]; !ok {
		f.order = append(f.order, k)
	}
	f.writes[k] = append([]byte{}, value...)
}

// Emit buffers an event until the root frame commits.
func (f *Frame) Emit(event types.Event) {
	f.events = append(f.events, event)
}

// OnRollback registers fn to run if the frame is aborted.
func (f *Frame) OnRollback(fn func()) {
	f.rollback = append(f.rollback, fn)
}

// Merge folds a child frame's writes, events and rollback hooks into its parent.
func (f *Frame) Merge() error {
	if f.parent == nil {
		return fmt.Errorf("cannot merge a root frame")
	}
	for _, k := range f.order {
		f.parent.Set([]byte(k), f.writes[k])
	}
	f.parent.events = append(f.parent.events, f.events...)
	f.parent.rollback = append(f.parent.rollback, f.rollback...)

	f.reset()
	return nil
}

// Rollback discards staged state and runs rollback hooks newest first.
func (f *Frame) Rollback() {
	for i := len(f.rollback) - 1; i >= 0; i-- {
		f.rollback[i]()
	}
	f.reset()
}

// Writes returns the staged writes in first-write order.
func (f *Frame) Writes() []Write {
	out := make([]Write, 0, len(f.order))
	for _, k := range f.order {
		out = append(out, Write{Key: []byte(k), Value: append([]byte{}, f.writes[k]...)})
	}
	return out
}

// Events returns the buffered events in emission order.
func (f *Frame) Events() []types.Event {
	return append([]types.Event{}, f.events...)
}

func (f *Frame) reset() {
	f.writes = make(map[string][]byte)
	f.order = nil
	f.events = nil
	f.rollback = nil
}

type frameKey struct{}

// WithFrame returns a context carrying f.
func WithFrame(ctx context.Context, f *Frame) context.Context {
	return context.WithValue(ctx, frameKey{}, f)
}

// FromContext returns the frame carried by ctx, if any.
func FromContext(ctx context.Context) (*Frame, bool) {
	if ctx == nil {
		return nil, false
	}
	f, ok := ctx.Value(frameKey{}).(*Frame)
	return f, ok && f != nil
}

// RegisterRollback registers fn on the frame carried by ctx.
// It reports false when ctx carries no frame, in which case fn is not retained.
func RegisterRollback(ctx context.Context, fn func()) bool {
	f, ok := FromContext(ctx)
	if !ok {
		return false
	}
	f.OnRollback(fn)
	return true
}
