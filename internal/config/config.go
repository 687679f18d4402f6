// Package config provides the configuration schema and loader for the
// voxcanvas call server.
package config

// LogLevel controls log verbosity for the server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// StorageBackend selects where transcript snapshots and reports are persisted.
type StorageBackend string

const (
	// StorageFile persists snapshots as JSON files on local disk.
	StorageFile StorageBackend = "file"

	// StoragePostgres persists snapshots in a PostgreSQL database.
	StoragePostgres StorageBackend = "postgres"
)

// IsValid reports whether b is a recognised storage backend.
func (b StorageBackend) IsValid() bool {
	return b == StorageFile || b == StoragePostgres
}

// Config is the root configuration structure for voxcanvas.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Realtime   RealtimeConfig   `yaml:"realtime"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	Interview  InterviewConfig  `yaml:"interview"`
	Storage    StorageConfig    `yaml:"storage"`
}

// ServerConfig holds network and logging settings for the call server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":5050").
	ListenAddr string `yaml:"listen_addr"`

	// PublicHost is the externally reachable hostname used when building
	// the media stream URL handed to the telephony provider. When empty,
	// the Host header of the incoming call webhook is used.
	PublicHost string `yaml:"public_host"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// RealtimeConfig configures the upstream speech-to-speech session.
type RealtimeConfig struct {
	// APIKey authenticates against the realtime API. Required.
	APIKey string `yaml:"api_key"`

	// Model overrides the default realtime model.
	Model string `yaml:"model"`

	// BaseURL overrides the default realtime websocket endpoint.
	BaseURL string `yaml:"base_url"`

	// Voice selects the synthesised voice (e.g., "alloy").
	Voice string `yaml:"voice"`

	// Temperature controls response sampling. Zero means the default.
	Temperature float64 `yaml:"temperature"`
}

// SummarizerConfig configures post-call report generation.
type SummarizerConfig struct {
	// APIKey authenticates against the completions API. When empty, the
	// realtime API key is reused.
	APIKey string `yaml:"api_key"`

	// Model is the first model tried for report generation.
	Model string `yaml:"model"`

	// FallbackModels are tried in order when the preceding model fails.
	FallbackModels []string `yaml:"fallback_models"`

	// BaseURL overrides the completions API endpoint.
	BaseURL string `yaml:"base_url"`
}

// InterviewConfig seeds the initial interview context. Both fields can be
// replaced at runtime through the context endpoint.
type InterviewConfig struct {
	// Research describes what the interview aims to learn.
	Research string `yaml:"research"`

	// Style constrains the interviewer's tone and question style.
	Style string `yaml:"style"`

	// Greeting is spoken to the caller before the AI session is bridged.
	Greeting string `yaml:"greeting"`
}

// StorageConfig selects and configures the snapshot persistence backend.
type StorageConfig struct {
	// Backend selects the persistence implementation. Default: file.
	Backend StorageBackend `yaml:"backend"`

	// Dir is the directory for the file backend. Default: current directory.
	Dir string `yaml:"dir"`

	// PostgresDSN is the connection string for the postgres backend.
	PostgresDSN string `yaml:"postgres_dsn"`
}
