package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("address: example.com\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ChunkSize != DefaultChunkSize {
		t.Errorf("ChunkSize = %d, want %d", cfg.ChunkSize, DefaultChunkSize)
	}
	if cfg.WindowAckSize != DefaultClientWindowSize {
		t.Errorf("WindowAckSize = %d, want %d", cfg.WindowAckSize, DefaultClientWindowSize)
	}
	if cfg.App != App {
		t.Errorf("App = %q, want %q", cfg.App, App)
	}
	if cfg.InvokeTimeout != 30*time.Second {
		t.Errorf("InvokeTimeout = %v, want 30s", cfg.InvokeTimeout)
	}
	if got, want := cfg.HostPort(), "example.com:1935"; got != want {
		t.Errorf("HostPort() = %q, want %q", got, want)
	}
}

func TestParse(t *testing.T) {
	yml := `
address: prod.example.com:2099
tls: true
app: ""
chunk_size: 4096
dial_timeout: 5s
invoke_timeout: 1m
debug: true
`
	cfg, err := Parse([]byte(yml))
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.TLS || !cfg.Debug {
		t.Errorf("TLS = %v, Debug = %v, want both true", cfg.TLS, cfg.Debug)
	}
	if cfg.ChunkSize != 4096 {
		t.Errorf("ChunkSize = %d, want 4096", cfg.ChunkSize)
	}
	if cfg.DialTimeout != 5*time.Second || cfg.InvokeTimeout != time.Minute {
		t.Errorf("timeouts = %v, %v, want 5s, 1m", cfg.DialTimeout, cfg.InvokeTimeout)
	}
	if got, want := cfg.TCURL(), "rtmps://prod.example.com:2099/app"; got != want {
		t.Errorf("TCURL() = %q, want %q", got, want)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yml  string
		want string
	}{
		{"unknown field", "adress: x\n", "adress"},
		{"chunk size", "chunk_size: 4294967295\n", "chunk_size"},
		{"negative timeout", "dial_timeout: -1s\n", "timeouts"},
		{"bad type", "tls: maybe\n", "decode config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yml))
			if err == nil {
				t.Fatal("Parse() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Parse() error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.yaml")
	if err := os.WriteFile(path, []byte("address: 127.0.0.1\ntls: true\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := cfg.HostPort(), "127.0.0.1:2099"; got != want {
		t.Errorf("HostPort() = %q, want %q", got, want)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("Load() of a missing file succeeded")
	}
}
