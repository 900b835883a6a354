package config

import (
	"strings"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			mutate:  func(cfg *Config) {},
			wantErr: false,
		},
		{
			name: "port clash",
			mutate: func(cfg *Config) {
				cfg.Management.Port = cfg.HTTP.Port
			},
			wantErr: true,
		},
		{
			name: "port clash ignored when management disabled",
			mutate: func(cfg *Config) {
				cfg.Management.Enabled = false
				cfg.Management.Port = cfg.HTTP.Port
			},
			wantErr: false,
		},
		{
			name:    "zero interval",
			mutate:  func(cfg *Config) { cfg.Stream.DefaultInterval = 0 },
			wantErr: true,
		},
		{
			name: "tracing without endpoint",
			mutate: func(cfg *Config) {
				cfg.Observability.TracingEnabled = true
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigString(t *testing.T) {
	cfg := DefaultConfig()
	out := cfg.String()

	for _, want := range []string{"http:", "port: 8080", "stream:", "default_interval:", "log_level: info"} {
		if !strings.Contains(out, want) {
			t.Errorf("String() output missing %q", want)
		}
	}
}

func TestConfigRedacted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Observability.TracingEndpoint = "collector.internal:4317"

	secrets := &Config{}
	secrets.Observability.TracingEndpoint = "collector.internal:4317"

	out := cfg.Redacted(secrets)
	if strings.Contains(out, "collector.internal:4317") {
		t.Error("Redacted() should mask values present in secrets")
	}
	if !strings.Contains(out, "***") {
		t.Error("Redacted() should insert mask markers")
	}

	// Non-secret values stay visible.
	if !strings.Contains(out, "port: 8080") {
		t.Error("Redacted() should keep non-secret values")
	}

	if cfg.Redacted(nil) != cfg.String() {
		t.Error("Redacted(nil) should equal String()")
	}
}
