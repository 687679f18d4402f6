// Package report turns finished call transcripts into structured JSON
// reports using a chat completions API with ordered model fallback.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/voxcanvas/voxcanvas/internal/interview"
	"github.com/voxcanvas/voxcanvas/internal/observe"
	"github.com/voxcanvas/voxcanvas/internal/resilience"
	"github.com/voxcanvas/voxcanvas/pkg/transcript"
)

const (
	systemPrompt = "You output concise JSON reports."

	reportTemperature = 0.4

	// generateTimeout bounds one complete fallback chain, not a single call.
	generateTimeout = 2 * time.Minute
)

// defaultModels is the model fallback chain used when none is configured.
var defaultModels = []string{"gpt-4o-mini", "gpt-4-turbo"}

// Report is the structured summary produced for a finished call.
type Report struct {
	// IntervieweeBio is a short biography inferred from the conversation.
	IntervieweeBio string `json:"interviewee_bio"`

	// EmpathyCanvas maps the says/thinks/does/feels quadrants plus pains
	// and gains extracted from the interview.
	EmpathyCanvas map[string]any `json:"empathy_canvas"`

	// Insights are observations relevant to the research goal.
	Insights []string `json:"gpt_insights"`

	// FullTranscript is the conversation the report was generated from.
	FullTranscript []transcript.Entry `json:"full_transcript"`
}

// Generator produces reports for finished calls and persists them.
type Generator struct {
	client  oai.Client
	chain   *resilience.ModelChain
	store   transcript.ReportStore
	profile func() interview.Profile
	metrics *observe.Metrics
	log     *slog.Logger
}

// config holds optional configuration for the generator.
type config struct {
	baseURL string
	models  []string
	metrics *observe.Metrics
}

// Option is a functional option for Generator.
type Option func(*config)

// WithBaseURL overrides the default completions API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithModels replaces the default model fallback chain. Models are tried
// in the given order until one produces a usable completion.
func WithModels(models []string) Option {
	return func(c *config) {
		if len(models) > 0 {
			c.models = models
		}
	}
}

// WithMetrics sets the metrics instance used to record report requests.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *config) {
		c.metrics = m
	}
}

// New constructs a report Generator. profile is sampled when a report is
// generated so mid-call context updates are reflected.
func New(apiKey string, store transcript.ReportStore, profile func() interview.Profile, opts ...Option) (*Generator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("report: apiKey must not be empty")
	}
	if store == nil {
		return nil, fmt.Errorf("report: store must not be nil")
	}
	if profile == nil {
		return nil, fmt.Errorf("report: profile must not be nil")
	}

	cfg := &config{models: defaultModels}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: 90 * time.Second}),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}

	metrics := cfg.metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}

	return &Generator{
		client:  oai.NewClient(reqOpts...),
		chain:   resilience.NewModelChain(cfg.models, resilience.CircuitBreakerConfig{}),
		store:   store,
		profile: profile,
		metrics: metrics,
		log:     slog.With("component", "report"),
	}, nil
}

// Submit schedules report generation for a finished call. It returns
// immediately; generation and persistence happen on a background goroutine
// and failures are logged, never surfaced to the caller.
func (g *Generator) Submit(callID string, entries []transcript.Entry) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), generateTimeout)
		defer cancel()

		rep, err := g.Generate(ctx, entries)
		if err != nil {
			g.log.Error("report generation failed", "call_id", callID, "error", err)
			return
		}
		body, err := json.MarshalIndent(rep, "", "  ")
		if err != nil {
			g.log.Error("report encoding failed", "call_id", callID, "error", err)
			return
		}
		if err := g.store.WriteReport(ctx, callID, body); err != nil {
			g.log.Error("report persistence failed", "call_id", callID, "error", err)
			return
		}
		g.log.Info("report written", "call_id", callID, "entries", len(entries))
	}()
}

// Generate produces a report for the given transcript, trying each model in
// the fallback chain until one succeeds. The returned report always carries
// the full transcript, even when the model omitted it from its JSON.
func (g *Generator) Generate(ctx context.Context, entries []transcript.Entry) (*Report, error) {
	if len(entries) == 0 {
		return nil, errors.New("report: empty transcript")
	}

	prompt := g.buildPrompt(entries)

	var rep *Report
	err := g.chain.Do(func(model string) error {
		r, err := g.complete(ctx, model, prompt)
		if err != nil {
			g.metrics.RecordReportRequest(ctx, model, "error")
			return err
		}
		g.metrics.RecordReportRequest(ctx, model, "ok")
		rep = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}

	rep.FullTranscript = entries
	return rep, nil
}

// complete runs a single chat completion against one model and parses the
// JSON body out of its response.
func (g *Generator) complete(ctx context.Context, model, prompt string) (*Report, error) {
	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(systemPrompt),
			oai.UserMessage(prompt),
		},
		Temperature: param.NewOpt(reportTemperature),
	}

	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("empty choices in response")
	}

	body := extractJSON(resp.Choices[0].Message.Content)
	rep := &Report{}
	if err := json.Unmarshal([]byte(body), rep); err != nil {
		return nil, fmt.Errorf("parse report json: %w", err)
	}
	return rep, nil
}

// buildPrompt renders the transcript and the current interview context into
// the user message sent to the summariser.
func (g *Generator) buildPrompt(entries []transcript.Entry) string {
	p := g.profile()

	var b strings.Builder
	b.WriteString("Generate a JSON report for the following user interview. ")
	b.WriteString("Respond with a single JSON object containing the keys ")
	b.WriteString(`"interviewee_bio" (string), "empathy_canvas" (object with `)
	b.WriteString(`"says", "thinks", "does", "feels", "pains", "gains"), and `)
	b.WriteString(`"gpt_insights" (array of strings).` + "\n\n")
	b.WriteString("Research goal:\n")
	b.WriteString(p.Research)
	b.WriteString("\n\nTranscript:\n")
	for _, e := range entries {
		b.WriteString(string(e.Speaker))
		b.WriteString(": ")
		b.WriteString(e.Text)
		b.WriteString("\n")
	}
	return b.String()
}

// extractJSON strips markdown code fences the model may wrap around its
// JSON answer and trims to the outermost object.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if after, ok := strings.CutPrefix(s, "```json"); ok {
		s = after
	} else if after, ok := strings.CutPrefix(s, "```"); ok {
		s = after
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	s = strings.TrimSpace(s)

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
