// Package realtime implements the outbound connection to an OpenAI Realtime
// speech-to-speech session.
//
// It establishes a WebSocket connection to the Realtime endpoint and
// exchanges JSON events according to the Realtime API protocol. The
// connect-then-configure handshake runs in the background: [Provider.Open]
// returns a [Session] immediately, and audio submitted before the handshake
// completes is buffered and flushed in original order once the session is
// ready. Audio payloads are opaque base64 strings and are forwarded in both
// directions without decoding.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/voxcanvas/voxcanvas/pkg/transcript"
)

const (
	defaultModel   = "gpt-4o-realtime-preview-2024-10-01"
	defaultBaseURL = "wss://api.openai.com/v1/realtime"

	defaultVoice              = "alloy"
	defaultAudioFormat        = "g711_ulaw"
	defaultTranscriptionModel = "whisper-1"
	defaultTemperature        = 0.8
)

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the Realtime model used for sessions.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL overrides the base WebSocket URL. Primarily used in tests to
// point at a local mock server.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// ── Provider ───────────────────────────────────────────────────────────────────

// Provider opens Realtime sessions against one API endpoint.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
}

// New creates a Provider with the given API key and options.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		model:   defaultModel,
		baseURL: defaultBaseURL,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// SessionConfig carries the per-session parameters sent in the single
// session.update message after connect. Zero values fall back to the
// telephony defaults (alloy voice, g711_ulaw both ways, whisper-1 input
// transcription, server VAD, temperature 0.8).
type SessionConfig struct {
	Voice              string
	Instructions       string
	InputAudioFormat   string
	OutputAudioFormat  string
	TranscriptionModel string
	TurnDetection      string
	Temperature        float64
}

func (c *SessionConfig) applyDefaults() {
	if c.Voice == "" {
		c.Voice = defaultVoice
	}
	if c.InputAudioFormat == "" {
		c.InputAudioFormat = defaultAudioFormat
	}
	if c.OutputAudioFormat == "" {
		c.OutputAudioFormat = defaultAudioFormat
	}
	if c.TranscriptionModel == "" {
		c.TranscriptionModel = defaultTranscriptionModel
	}
	if c.TurnDetection == "" {
		c.TurnDetection = "server_vad"
	}
	if c.Temperature == 0 {
		c.Temperature = defaultTemperature
	}
}

// Open starts a new Realtime session. It returns immediately; the dial and
// the session.update handshake run in the background. Audio sent via
// [Session.SendAudio] before the handshake completes is buffered and
// flushed in original order once the session becomes ready.
func (p *Provider) Open(ctx context.Context, cfg SessionConfig) *Session {
	cfg.applyDefaults()

	sessCtx, sessCancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &Session{
		cfg:         cfg,
		audioCh:     make(chan string, 64),
		transcripts: make(chan transcript.Entry, 16),
		ctx:         sessCtx,
		cancel:      sessCancel,
	}

	go s.connect(ctx, p.apiKey, p.baseURL, p.model)

	return s
}

// ── Protocol message types (outgoing) ─────────────────────────────────────────

type sessionUpdateMessage struct {
	Type    string        `json:"type"`
	Session sessionParams `json:"session"`
}

type sessionParams struct {
	TurnDetection           turnDetectionParams  `json:"turn_detection"`
	InputAudioFormat        string               `json:"input_audio_format"`
	InputAudioTranscription transcriptionParams  `json:"input_audio_transcription"`
	OutputAudioFormat       string               `json:"output_audio_format"`
	Voice                   string               `json:"voice"`
	Instructions            string               `json:"instructions"`
	Modalities              []string             `json:"modalities"`
	Temperature             float64              `json:"temperature"`
}

type turnDetectionParams struct {
	Type string `json:"type"`
}

type transcriptionParams struct {
	Model string `json:"model"`
}

type appendAudioMessage struct {
	Type  string `json:"type"`
	Audio string `json:"audio"` // base64 payload, forwarded opaquely
}

// ── Protocol message types (incoming) ─────────────────────────────────────────

// serverErrorDetail is the nested error object in a Realtime error event.
type serverErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type serverEvent struct {
	Type string `json:"type"`

	// response.audio.delta / response.audio_transcript.delta
	Delta string `json:"delta,omitempty"`

	// conversation.item.input_audio_transcription.completed /
	// response.audio_transcript.done
	Transcript string `json:"transcript,omitempty"`

	// error event
	Error *serverErrorDetail `json:"error,omitempty"`
}

// ── Session ────────────────────────────────────────────────────────────────────

// Session is one live Realtime connection. Audio arriving from the model is
// delivered on [Session.Audio]; completed transcriptions of both directions
// arrive on [Session.Transcripts]. All methods are safe for concurrent use.
type Session struct {
	cfg         SessionConfig
	audioCh     chan string
	transcripts chan transcript.Entry

	mu      sync.Mutex
	conn    *websocket.Conn
	ready   bool
	pending []string
	closed  bool
	errVal  error

	// currentTxText accumulates response.audio_transcript.delta events as a
	// fallback for done events that omit the full transcript.
	currentTxText string

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// connect dials the endpoint, sends the one-time session.update, flushes
// buffered audio, and enters the receive loop. Runs in its own goroutine.
func (s *Session) connect(ctx context.Context, apiKey, baseURL, model string) {
	wsURL := fmt.Sprintf("%s?model=%s", baseURL, model)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + apiKey},
			"OpenAI-Beta":   []string{"realtime=v1"},
		},
	})
	if err != nil {
		s.fail(fmt.Errorf("realtime: dial: %w", err))
		s.closeChannels()
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "session closed")
		s.closeChannels()
		return
	}
	s.conn = conn

	if err := s.writeJSONLocked(sessionUpdateMessage{
		Type: "session.update",
		Session: sessionParams{
			TurnDetection:           turnDetectionParams{Type: s.cfg.TurnDetection},
			InputAudioFormat:        s.cfg.InputAudioFormat,
			InputAudioTranscription: transcriptionParams{Model: s.cfg.TranscriptionModel},
			OutputAudioFormat:       s.cfg.OutputAudioFormat,
			Voice:                   s.cfg.Voice,
			Instructions:            s.cfg.Instructions,
			Modalities:              []string{"text", "audio"},
			Temperature:             s.cfg.Temperature,
		},
	}); err != nil {
		s.mu.Unlock()
		s.fail(fmt.Errorf("realtime: session update: %w", err))
		conn.Close(websocket.StatusInternalError, "session update failed")
		s.closeChannels()
		return
	}

	// Flush the pre-ready buffer in original order, then retire it. The
	// ready flag flips under the same lock, so frames sent concurrently via
	// SendAudio cannot overtake buffered ones.
	for _, payload := range s.pending {
		if err := s.writeJSONLocked(appendAudioMessage{
			Type:  "input_audio_buffer.append",
			Audio: payload,
		}); err != nil {
			slog.Warn("realtime: flush buffered audio", "err", err)
			break
		}
	}
	s.pending = nil
	s.ready = true
	s.mu.Unlock()

	s.receiveLoop()
}

// writeJSONLocked marshals v and writes it as a text message.
// Must be called with s.mu held.
func (s *Session) writeJSONLocked(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("realtime: marshal: %w", err)
	}
	return s.conn.Write(s.ctx, websocket.MessageText, data)
}

// SendAudio forwards one opaque audio payload to the model. Before the
// session is ready the payload is buffered; afterwards it is appended
// immediately. Frame order is preserved across the readiness boundary.
// Transport send errors are logged and recorded, not returned; a dying
// transport is handled by the session teardown, not by the audio path.
func (s *Session) SendAudio(payload string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("realtime: session closed")
	}
	if !s.ready {
		s.pending = append(s.pending, payload)
		return nil
	}

	if err := s.writeJSONLocked(appendAudioMessage{
		Type:  "input_audio_buffer.append",
		Audio: payload,
	}); err != nil {
		slog.Warn("realtime: send audio", "err", err)
		if s.errVal == nil {
			s.errVal = err
		}
	}
	return nil
}

// Ready reports whether the configure handshake has completed and the
// pre-ready buffer has been flushed.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// receiveLoop reads events from the WebSocket and dispatches them. It owns
// audioCh and transcripts: it closes both when it exits. Malformed frames
// are skipped; one bad message never terminates the loop.
func (s *Session) receiveLoop() {
	defer s.closeChannels()

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.fail(err)
			return
		}

		var evt serverEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			slog.Debug("realtime: dropping malformed event", "err", err)
			continue
		}

		s.handleServerEvent(&evt)
	}
}

func (s *Session) handleServerEvent(evt *serverEvent) {
	switch evt.Type {
	case "response.audio.delta":
		if evt.Delta == "" {
			return
		}
		select {
		case s.audioCh <- evt.Delta:
		case <-s.ctx.Done():
		}

	case "response.audio_transcript.delta":
		if evt.Delta == "" {
			return
		}
		s.mu.Lock()
		s.currentTxText += evt.Delta
		s.mu.Unlock()

	case "response.audio_transcript.done":
		s.mu.Lock()
		text := evt.Transcript
		if text == "" {
			text = s.currentTxText
		}
		s.currentTxText = ""
		s.mu.Unlock()

		if text == "" {
			return
		}
		select {
		case s.transcripts <- transcript.Entry{Speaker: transcript.SpeakerAssistant, Text: text}:
		case <-s.ctx.Done():
		}

	case "conversation.item.input_audio_transcription.completed":
		if evt.Transcript == "" {
			return
		}
		select {
		case s.transcripts <- transcript.Entry{Speaker: transcript.SpeakerUser, Text: evt.Transcript}:
		case <-s.ctx.Done():
		}

	case "error":
		msg := "unknown error"
		if evt.Error != nil && evt.Error.Message != "" {
			msg = evt.Error.Message
		}
		slog.Warn("realtime: server error event", "msg", msg)
	}
}

// fail records the first fatal transport error.
func (s *Session) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errVal == nil {
		s.errVal = err
	}
}

func (s *Session) closeChannels() {
	s.closeOnce.Do(func() {
		close(s.audioCh)
		close(s.transcripts)
	})
}

// Audio returns the channel carrying the model's synthesised audio as
// opaque base64 payloads. Closed when the session ends.
func (s *Session) Audio() <-chan string { return s.audioCh }

// Transcripts returns the channel carrying completed transcriptions of both
// the caller's speech and the model's replies. Closed when the session ends.
func (s *Session) Transcripts() <-chan transcript.Entry { return s.transcripts }

// Err returns the first fatal error that terminated the session, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// Close terminates the session and releases all resources. Subsequent calls
// are no-ops and return nil. Transport close errors are logged, not
// propagated.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.mu.Unlock()

	s.cancel()
	if conn != nil {
		if err := conn.Close(websocket.StatusNormalClosure, "session closed"); err != nil {
			slog.Debug("realtime: close", "err", err)
		}
	}
	return nil
}
