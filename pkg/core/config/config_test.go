package config

import (
	"testing"
	"time"
)

func TestNewTranslatedConfiguration(t *testing.T) {
	cfg := &SourceConfig{
		TargetHostDSN: "http://example.com",
		ListenIP:      "127.0.0.1",
		ListenPort:    "8080",
		Headers: map[string]string{
			"X-Test":  "test",
			"X-Test2": "test2",
		},
		LoggingEnabled:  true,
		MaskingEnabled:  true,
		MaskedNames:     []string{"X-Api-Key"},
		SetRequestID:    true,
		LogRequestBody:  false,
		LogResponseBody: false,
		MaxBodyBytes:    1024,
		ReadTimeout:     10,
		WriteTimeout:    20,
		IdleTimeout:     300,
	}

	translated, err := cfg.NewTranslatedConfiguration()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if translated.TargetURL.String() != "http://example.com" {
		t.Errorf("Expected URL http://example.com, got %s", translated.TargetURL.String())
	}

	if translated.ListenIP != "127.0.0.1" {
		t.Errorf("Expected IP 127.0.0.1, got %s", translated.ListenIP)
	}

	if translated.ListenPort != "8080" {
		t.Errorf("Expected port 8080, got %s", translated.ListenPort)
	}

	if !translated.LoggingEnabled {
		t.Error("Logging should be enabled")
	}

	if translated.LogRequestBody {
		t.Error("Request body should not be logged")
	}

	if translated.LogResponseBody {
		t.Error("Response body should not be logged")
	}

	if !translated.SetRequestID {
		t.Error("RequestID should be set")
	}

	if translated.Headers["X-Test"] != "test" {
		t.Errorf("Expected header X-Test: test, got %s", translated.Headers["X-Test"])
	}

	if !translated.MaskedNames.Contains("x-api-key") {
		t.Error("Expected x-api-key to be masked")
	}

	if !translated.MaskedNames.Contains("authorization") {
		t.Error("Default masked names should survive extension")
	}

	if translated.MaxBodyBytes != 1024 {
		t.Errorf("Expected MaxBodyBytes 1024, got %d", translated.MaxBodyBytes)
	}

	if translated.ReadTimeout != 10*time.Second {
		t.Errorf("Expected ReadTimeout 10s, got %v", translated.ReadTimeout)
	}

	if translated.WriteTimeout != 20*time.Second {
		t.Errorf("Expected WriteTimeout 20s, got %v", translated.WriteTimeout)
	}

	if translated.IdleTimeout != 300*time.Second {
		t.Errorf("Expected IdleTimeout 300s, got %v", translated.IdleTimeout)
	}
}

func TestNewTranslatedConfigurationDefaults(t *testing.T) {
	cfg := &SourceConfig{}

	translated, err := cfg.NewTranslatedConfiguration()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if translated.TargetURL != nil {
		t.Error("TargetURL should be nil without a DSN")
	}

	if translated.ListenIP != DefaultListenIP {
		t.Errorf("Expected default listen IP, got %s", translated.ListenIP)
	}

	if translated.ListenPort != DefaultListenPort {
		t.Errorf("Expected default listen port, got %s", translated.ListenPort)
	}

	if translated.ReadTimeout != 5*time.Second {
		t.Errorf("Expected default ReadTimeout 5s, got %v", translated.ReadTimeout)
	}

	if translated.WriteTimeout != 10*time.Second {
		t.Errorf("Expected default WriteTimeout 10s, got %v", translated.WriteTimeout)
	}

	if translated.IdleTimeout != 120*time.Second {
		t.Errorf("Expected default IdleTimeout 120s, got %v", translated.IdleTimeout)
	}
}

func TestNewTranslatedConfigurationWithInvalidExclude(t *testing.T) {
	tests := []struct {
		name string
		cfg  SourceConfig
	}{
		{name: "exclude", cfg: SourceConfig{Exclude: "("}},
		{name: "excludeRequestBody", cfg: SourceConfig{ExcludeRequestBody: "("}},
		{name: "excludeResponseBody", cfg: SourceConfig{ExcludeResponseBody: "("}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			translated, err := tt.cfg.NewTranslatedConfiguration()
			if err == nil {
				t.Error("Expected error for invalid regexp")
			}
			if translated != nil {
				t.Error("TranslatedConfig should be nil for invalid regexp")
			}
		})
	}
}

func TestNewTranslatedConfigurationWithInvalidURL(t *testing.T) {
	cfg := &SourceConfig{TargetHostDSN: "://invalid"}

	translated, err := cfg.NewTranslatedConfiguration()
	if err == nil {
		t.Error("Expected error for invalid URL")
	}
	if translated != nil {
		t.Error("TranslatedConfig should be nil for invalid URL")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if !cfg.LoggingEnabled {
		t.Error("Logging should be enabled by default")
	}
	if !cfg.MaskingEnabled {
		t.Error("Masking should be enabled by default")
	}
	if !cfg.LogRequestBody || !cfg.LogResponseBody {
		t.Error("Both bodies should be logged by default")
	}
	if cfg.MaxBodyBytes != DefaultMaxBodyBytes {
		t.Errorf("Expected default body cap %d, got %d", DefaultMaxBodyBytes, cfg.MaxBodyBytes)
	}
	if !cfg.MaskedNames.Contains("authorization") || !cfg.MaskedNames.Contains("token") {
		t.Error("Default masked names should be present")
	}
}
