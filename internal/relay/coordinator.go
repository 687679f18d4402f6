// Package relay wires one inbound telephony media stream to one Realtime AI
// session for the lifetime of a call.
//
// The [Coordinator] is the only component that touches both legs. It routes
// caller audio to the AI session (which buffers until its handshake
// completes), routes AI-generated audio back to the telephony edge once the
// stream identifier is known, accumulates transcript events in arrival
// order, and runs a finalize sequence once both legs have shut down. When
// either leg terminates the other is closed, transcript events already in
// flight are drained, and the transcript is persisted exactly once.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voxcanvas/voxcanvas/internal/interview"
	"github.com/voxcanvas/voxcanvas/internal/observe"
	"github.com/voxcanvas/voxcanvas/pkg/realtime"
	"github.com/voxcanvas/voxcanvas/pkg/telephony"
	"github.com/voxcanvas/voxcanvas/pkg/transcript"
)

// TelephonyConn is the downstream leg: the accepted duplex connection from
// the telephony edge. [telephony.Conn] implements it.
type TelephonyConn interface {
	ReadFrame(ctx context.Context) (telephony.Frame, error)
	SendMedia(ctx context.Context, streamSID, payload string) error
	Close(reason string) error
}

// UpstreamSession is the upstream leg: one live AI speech session.
// [realtime.Session] implements it.
type UpstreamSession interface {
	SendAudio(payload string) error
	Audio() <-chan string
	Transcripts() <-chan transcript.Entry
	Close() error
}

// OpenSessionFunc opens a fresh upstream session for one call.
type OpenSessionFunc func(ctx context.Context, cfg realtime.SessionConfig) UpstreamSession

// Reporter receives the completed transcript for summarization. Submit must
// not block: the relay fires and forgets.
type Reporter interface {
	Submit(callID string, entries []transcript.Entry)
}

// Config carries the collaborators a Coordinator needs for one call.
type Config struct {
	Conn        TelephonyConn
	OpenSession OpenSessionFunc
	Sink        transcript.Sink

	// Reporter may be nil when summarization is not configured.
	Reporter Reporter

	// Profile is the interview context snapshot captured at call start.
	Profile interview.Profile

	// Metrics defaults to [observe.DefaultMetrics] when nil.
	Metrics *observe.Metrics
}

// Coordinator orchestrates one call session end to end.
type Coordinator struct {
	conn     TelephonyConn
	open     OpenSessionFunc
	sink     transcript.Sink
	reporter Reporter
	profile  interview.Profile
	metrics  *observe.Metrics

	call *Call
	log  *slog.Logger
}

// New creates a Coordinator for one accepted telephony connection. The
// interview profile is captured here; later configuration changes do not
// affect this call.
func New(cfg Config) *Coordinator {
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	call := &Call{ID: uuid.NewString()}
	return &Coordinator{
		conn:     cfg.Conn,
		open:     cfg.OpenSession,
		sink:     cfg.Sink,
		reporter: cfg.Reporter,
		profile:  cfg.Profile,
		metrics:  cfg.Metrics,
		call:     call,
		log:      slog.With("call_id", call.ID),
	}
}

// Call exposes the call session owned by this coordinator.
func (c *Coordinator) Call() *Call { return c.call }

// Run relays both directions until the call ends, then finalizes. It blocks
// for the lifetime of the call and always leaves both legs closed and the
// transcript persisted exactly once.
func (c *Coordinator) Run(ctx context.Context) {
	start := time.Now()
	c.metrics.ActiveCalls.Add(ctx, 1)
	defer c.metrics.ActiveCalls.Add(ctx, -1)
	defer func() {
		c.metrics.CallDuration.Record(ctx, time.Since(start).Seconds())
	}()

	c.log.Info("call started", "research", c.profile.Research, "style", c.profile.Style)

	sess := c.open(ctx, realtime.SessionConfig{
		Instructions: interview.Instructions(c.profile),
	})

	// Either leg's exit closes the other leg's source, and the snapshot is
	// taken only after both loops have returned. Closing the session closes
	// its channels, so the upstream loop drains every transcript event
	// already delivered before finalize runs.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.downstreamLoop(ctx, sess)
		_ = sess.Close()
	}()
	go func() {
		defer wg.Done()
		c.upstreamLoop(ctx, sess)
		_ = c.conn.Close("session ended")
	}()
	wg.Wait()

	c.finalize(ctx, sess)

	c.log.Info("call ended", "entries", len(c.call.Entries()), "duration", time.Since(start))
}

// downstreamLoop reads telephony frames and routes them. It exits on the
// first transport error, including the one raised by our own Close after a
// stop frame, while malformed frames are logged and dropped.
func (c *Coordinator) downstreamLoop(ctx context.Context, sess UpstreamSession) {
	for {
		frame, err := c.conn.ReadFrame(ctx)
		if errors.Is(err, telephony.ErrMalformedFrame) {
			c.log.Warn("dropping malformed telephony frame", "err", err)
			continue
		}
		if err != nil {
			c.log.Debug("telephony connection closed", "err", err)
			return
		}

		switch f := frame.(type) {
		case telephony.StartFrame:
			if c.call.SetStreamSID(f.StreamSID) {
				c.log.Info("stream started", "stream_sid", f.StreamSID)
			} else {
				c.log.Warn("ignoring repeated start frame", "stream_sid", f.StreamSID)
			}

		case telephony.MediaFrame:
			// SendAudio never fails on timing: the session buffers until
			// its handshake completes and preserves arrival order.
			if err := sess.SendAudio(f.Payload); err != nil {
				c.log.Warn("forward caller audio", "err", err)
			}
			c.metrics.RecordFrame(ctx, observe.DirectionInbound)

		case telephony.StopFrame:
			// Actively close the connection; the raised read error ends
			// this loop and starts the teardown.
			_ = c.conn.Close("stop")

		case telephony.ControlFrame:
			c.log.Debug("ignoring control frame", "event", f.Event)
		}
	}
}

// upstreamLoop routes AI-generated audio back to the telephony edge and
// accumulates transcript events. It exits when the session's channels close
// or ctx is cancelled.
func (c *Coordinator) upstreamLoop(ctx context.Context, sess UpstreamSession) {
	audio := sess.Audio()
	txs := sess.Transcripts()

	for audio != nil || txs != nil {
		select {
		case <-ctx.Done():
			return

		case payload, ok := <-audio:
			if !ok {
				audio = nil
				continue
			}
			sid := c.call.StreamSID()
			if sid == "" {
				// The edge has not signaled start yet, so it cannot play
				// anything back: drop rather than queue.
				c.metrics.DroppedFrames.Add(ctx, 1)
				c.log.Debug("dropping AI audio before stream start")
				continue
			}
			if err := c.conn.SendMedia(ctx, sid, payload); err != nil {
				c.log.Warn("forward AI audio", "err", err)
				continue
			}
			c.metrics.RecordFrame(ctx, observe.DirectionOutbound)

		case entry, ok := <-txs:
			if !ok {
				txs = nil
				continue
			}
			c.call.Append(entry)
			c.metrics.TranscriptEntries.Add(ctx, 1)
		}
	}
}

// finalize runs the termination sequence: mark the call finalized so late
// appends are rejected, close both legs, persist the full transcript
// snapshot, and hand it to the reporter without awaiting the result. Run
// calls it exactly once, after both relay loops have exited.
func (c *Coordinator) finalize(ctx context.Context, sess UpstreamSession) {
	if !c.call.beginFinalize() {
		return
	}

	_ = sess.Close()
	_ = c.conn.Close("call finalized")

	entries := c.call.Entries()
	// Persist with a fresh context: the call context may already be
	// cancelled when the server is shutting down.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := c.sink.WriteSnapshot(writeCtx, c.call.ID, entries); err != nil {
		c.log.Error("persist transcript", "err", err)
	} else {
		c.log.Info("transcript persisted", "entries", len(entries))
	}
	c.metrics.Finalizes.Add(ctx, 1)

	if c.reporter != nil && len(entries) > 0 {
		c.reporter.Submit(c.call.ID, entries)
	}

	c.call.finishFinalize()
}
