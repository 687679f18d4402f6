// Package server exposes the HTTP boundary of the call service: the
// telephony webhook, the media-stream websocket endpoint, the interview
// context admin endpoint, the transcript and report read endpoints, and
// the operational endpoints (metrics, health).
package server

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/voxcanvas/voxcanvas/internal/config"
	"github.com/voxcanvas/voxcanvas/internal/health"
	"github.com/voxcanvas/voxcanvas/internal/interview"
	"github.com/voxcanvas/voxcanvas/internal/observe"
	"github.com/voxcanvas/voxcanvas/internal/relay"
	"github.com/voxcanvas/voxcanvas/pkg/telephony"
	"github.com/voxcanvas/voxcanvas/pkg/transcript"
)

// shutdownTimeout bounds the graceful drain of in-flight HTTP requests.
const shutdownTimeout = 15 * time.Second

// defaultGreeting is spoken to the caller before the AI session is bridged.
const defaultGreeting = "Please wait while we connect your call to our AI interviewer."

// Server is the HTTP front of the call service. One Server handles any
// number of concurrent calls; each accepted media stream gets its own
// relay coordinator.
type Server struct {
	cfg       config.ServerConfig
	greeting  string
	interview *interview.Store
	open      relay.OpenSessionFunc
	sink      transcript.Sink
	reports   transcript.ReportStore
	reporter  relay.Reporter
	metrics   *observe.Metrics
	health    *health.Handler
	log       *slog.Logger

	// calls tracks in-flight relay coordinators so Run can wait for them
	// during shutdown.
	calls sync.WaitGroup
}

// Config carries the collaborators a Server needs.
type Config struct {
	Server   config.ServerConfig
	Greeting string

	// Interview holds the live interview context; each call snapshots it
	// at start.
	Interview *interview.Store

	// OpenSession opens one upstream AI session per call.
	OpenSession relay.OpenSessionFunc

	// Sink persists transcript snapshots at finalize.
	Sink transcript.Sink

	// Reports serves the report read endpoint. May be nil; the endpoint
	// then always returns 404.
	Reports transcript.ReportStore

	// Reporter receives finished transcripts for summarization. May be nil
	// when report generation is not configured.
	Reporter relay.Reporter

	// Metrics defaults to [observe.DefaultMetrics] when nil.
	Metrics *observe.Metrics

	// Probes are evaluated by the readiness endpoint.
	Probes []health.Probe
}

// New creates a Server. It does not start listening; call [Server.Run].
func New(cfg Config) (*Server, error) {
	if cfg.Interview == nil {
		return nil, errors.New("server: interview store must not be nil")
	}
	if cfg.OpenSession == nil {
		return nil, errors.New("server: open session func must not be nil")
	}
	if cfg.Sink == nil {
		return nil, errors.New("server: transcript sink must not be nil")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	greeting := cfg.Greeting
	if greeting == "" {
		greeting = defaultGreeting
	}
	return &Server{
		cfg:       cfg.Server,
		greeting:  greeting,
		interview: cfg.Interview,
		open:      cfg.OpenSession,
		sink:      cfg.Sink,
		reports:   cfg.Reports,
		reporter:  cfg.Reporter,
		metrics:   cfg.Metrics,
		health:    health.New(cfg.Probes...),
		log:       slog.With("component", "server"),
	}, nil
}

// Handler builds the full route table wrapped in the observability
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /incoming-call", s.handleIncomingCall)
	mux.HandleFunc("POST /incoming-call", s.handleIncomingCall)
	mux.HandleFunc("GET /media-stream", s.handleMediaStream)
	mux.HandleFunc("PUT /context", s.handleSetContext)
	mux.HandleFunc("POST /context", s.handleSetContext)
	mux.HandleFunc("GET /context", s.handleGetContext)
	mux.HandleFunc("GET /transcript", s.handleTranscript)
	mux.HandleFunc("GET /report", s.handleReport)
	mux.Handle("GET /metrics", promhttp.Handler())
	s.health.Register(mux)

	return observe.Middleware(s.metrics)(mux)
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests
// and waits for active calls to finalize.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:        s.cfg.ListenAddr,
		Handler:     s.Handler(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		if s.cfg.TLS != nil {
			err = srv.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: listen %s: %w", s.cfg.ListenAddr, err)
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("http shutdown error", "error", err)
		}
		// Websocket connections are not drained by Shutdown; the relay
		// coordinators see ctx cancellation and finalize on their own.
		s.calls.Wait()
		return nil
	})

	return g.Wait()
}

// twimlResponse is the voice response document returned to the telephony
// provider for an incoming call.
type twimlResponse struct {
	XMLName xml.Name     `xml:"Response"`
	Say     string       `xml:"Say"`
	Connect twimlConnect `xml:"Connect"`
}

type twimlConnect struct {
	Stream twimlStream `xml:"Stream"`
}

type twimlStream struct {
	URL string `xml:"url,attr"`
}

// handleIncomingCall answers the telephony webhook with a voice document
// that greets the caller and bridges the call to the media stream endpoint.
func (s *Server) handleIncomingCall(w http.ResponseWriter, r *http.Request) {
	host := s.cfg.PublicHost
	if host == "" {
		host = r.Host
	}

	doc := twimlResponse{
		Say: s.greeting,
		Connect: twimlConnect{
			Stream: twimlStream{URL: "wss://" + host + "/media-stream"},
		},
	}

	body, err := xml.Marshal(doc)
	if err != nil {
		s.log.Error("twiml encoding failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.Write([]byte(xml.Header))
	w.Write(body)
}

// handleMediaStream upgrades the request to a websocket and runs one relay
// coordinator for the lifetime of the call. Errors on one call never affect
// other calls.
func (s *Server) handleMediaStream(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("media stream accept failed", "error", err)
		return
	}

	coord := relay.New(relay.Config{
		Conn:        telephony.NewConn(ws),
		OpenSession: s.open,
		Sink:        s.sink,
		Reporter:    s.reporter,
		Profile:     s.interview.Snapshot(),
		Metrics:     s.metrics,
	})

	s.calls.Add(1)
	defer s.calls.Done()

	coord.Run(r.Context())
}

// handleSetContext replaces the interview context. The change applies to
// calls started after the update; in-flight calls keep their snapshot.
func (s *Server) handleSetContext(w http.ResponseWriter, r *http.Request) {
	var p interview.Profile
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		http.Error(w, "invalid context body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(p.Research) == "" {
		http.Error(w, "research must not be empty", http.StatusBadRequest)
		return
	}

	s.interview.Set(p)
	s.log.Info("interview context updated", "style", p.Style)

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	json.NewEncoder(w).Encode(p)
}

// handleGetContext returns the current interview context.
func (s *Server) handleGetContext(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	json.NewEncoder(w).Encode(s.interview.Snapshot())
}

// handleTranscript serves the most recently finalized transcript snapshot.
func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	entries, err := s.sink.Latest(r.Context())
	if errors.Is(err, transcript.ErrNoSnapshot) {
		http.Error(w, "no transcript available", http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.Error("transcript read failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	json.NewEncoder(w).Encode(entries)
}

// handleReport serves the most recently generated call report.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		http.Error(w, "no report available", http.StatusNotFound)
		return
	}

	body, err := s.reports.LatestReport(r.Context())
	if errors.Is(err, transcript.ErrNoSnapshot) {
		http.Error(w, "no report available", http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.Error("report read failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Write(body)
}
