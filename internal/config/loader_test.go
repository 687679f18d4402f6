package config_test

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/voxcanvas/voxcanvas/internal/config"
)

const validYAML = `
server:
  listen_addr: ":5050"
  public_host: calls.example.com
  log_level: debug
realtime:
  api_key: sk-realtime
  voice: alloy
  temperature: 0.8
summarizer:
  model: gpt-4o-mini
  fallback_models:
    - gpt-4-turbo
interview:
  research: how people plan weekly meals
  style: warm and curious
storage:
  backend: file
  dir: /tmp/voxcanvas
`

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader() error = %v", err)
	}

	if cfg.Server.ListenAddr != ":5050" {
		t.Errorf("ListenAddr = %q; want :5050", cfg.Server.ListenAddr)
	}
	if cfg.Server.PublicHost != "calls.example.com" {
		t.Errorf("PublicHost = %q; want calls.example.com", cfg.Server.PublicHost)
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("LogLevel = %q; want debug", cfg.Server.LogLevel)
	}
	if cfg.Realtime.APIKey != "sk-realtime" {
		t.Errorf("Realtime.APIKey = %q; want sk-realtime", cfg.Realtime.APIKey)
	}
	if cfg.Realtime.Temperature != 0.8 {
		t.Errorf("Temperature = %v; want 0.8", cfg.Realtime.Temperature)
	}
	if len(cfg.Summarizer.FallbackModels) != 1 || cfg.Summarizer.FallbackModels[0] != "gpt-4-turbo" {
		t.Errorf("FallbackModels = %v; want [gpt-4-turbo]", cfg.Summarizer.FallbackModels)
	}
	if cfg.Interview.Research != "how people plan weekly meals" {
		t.Errorf("Research = %q", cfg.Interview.Research)
	}
	if cfg.Storage.Backend != config.StorageFile {
		t.Errorf("Storage.Backend = %q; want file", cfg.Storage.Backend)
	}
}

func TestLoadFromReader_Invalid(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		yaml    string
		wantErr string
	}{
		"unknown field": {
			yaml: `
realtime:
  api_key: sk-test
  websocket_url: wss://example.com
`,
			wantErr: "field websocket_url not found",
		},
		"missing api key": {
			yaml: `
server:
  listen_addr: ":5050"
`,
			wantErr: "realtime.api_key is required",
		},
		"bad log level": {
			yaml: `
server:
  log_level: verbose
realtime:
  api_key: sk-test
`,
			wantErr: `server.log_level "verbose" is invalid`,
		},
		"temperature out of range": {
			yaml: `
realtime:
  api_key: sk-test
  temperature: 3.5
`,
			wantErr: "out of range",
		},
		"tls without key file": {
			yaml: `
server:
  tls:
    cert_file: /etc/certs/server.pem
realtime:
  api_key: sk-test
`,
			wantErr: "server.tls.key_file is required",
		},
		"unknown storage backend": {
			yaml: `
realtime:
  api_key: sk-test
storage:
  backend: s3
`,
			wantErr: `storage.backend "s3" is invalid`,
		},
		"postgres without dsn": {
			yaml: `
realtime:
  api_key: sk-test
storage:
  backend: postgres
`,
			wantErr: "storage.postgres_dsn is required",
		},
		"not yaml": {
			yaml:    `{{{`,
			wantErr: "decode yaml",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatal("LoadFromReader() succeeded; want error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error = %v; want it to mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestValidate_CollectsAllFailures(t *testing.T) {
	t.Parallel()

	err := config.Validate(&config.Config{
		Server: config.ServerConfig{LogLevel: "loud"},
		Realtime: config.RealtimeConfig{
			Temperature: -1,
		},
	})
	if err == nil {
		t.Fatal("Validate() succeeded; want joined errors")
	}
	for _, want := range []string{"server.log_level", "realtime.api_key", "realtime.temperature"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error = %v; want it to mention %q", err, want)
		}
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(validYAML), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Realtime.APIKey != "sk-realtime" {
		t.Errorf("Realtime.APIKey = %q; want sk-realtime", cfg.Realtime.APIKey)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load() succeeded for a missing file")
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("error = %v; want wrapped fs.ErrNotExist", err)
	}
}
