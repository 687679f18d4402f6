package relay

import (
	"sync"

	"github.com/voxcanvas/voxcanvas/pkg/transcript"
)

// callState is the lifecycle of one call session. Transitions are monotonic:
// stateActive → stateFinalizing → stateFinalized.
type callState int

const (
	stateActive callState = iota
	stateFinalizing
	stateFinalized
)

// Call is the lifetime-bound state of one telephony-to-AI conversation:
// the stream identifier assigned by the telephony edge, the accumulated
// transcript, and the finalize state machine. A Call is owned by exactly
// one [Coordinator]; all methods are safe for concurrent use.
type Call struct {
	// ID uniquely identifies this call for storage scoping and logs.
	ID string

	mu        sync.Mutex
	streamSID string
	entries   []transcript.Entry
	state     callState
}

// SetStreamSID records the stream identifier. Only the first call takes
// effect; it reports whether the value was recorded.
func (c *Call) SetStreamSID(sid string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.streamSID != "" {
		return false
	}
	c.streamSID = sid
	return true
}

// StreamSID returns the recorded stream identifier, or "" if the start
// frame has not arrived yet.
func (c *Call) StreamSID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streamSID
}

// Append adds one transcript entry, preserving arrival order. Entries
// arriving after finalize has begun are dropped; the snapshot is already
// being written.
func (c *Call) Append(e transcript.Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateActive {
		return
	}
	c.entries = append(c.entries, e)
}

// Entries returns a copy of the accumulated transcript.
func (c *Call) Entries() []transcript.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]transcript.Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// beginFinalize atomically moves the call out of the active state. It
// returns true for exactly one caller regardless of how many termination
// signals race in; later callers must treat finalize as already done.
func (c *Call) beginFinalize() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateActive {
		return false
	}
	c.state = stateFinalizing
	return true
}

// finishFinalize marks the terminal state.
func (c *Call) finishFinalize() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = stateFinalized
}

// Finalized reports whether the finalize sequence has started.
func (c *Call) Finalized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state != stateActive
}
