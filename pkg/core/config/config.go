// Package config holds the source and compiled configuration.
package config

import (
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/bodylog/bodylog/pkg/record"
	yaml "gopkg.in/yaml.v3"
)

// Defaults applied when a SourceConfig field is left at its zero value.
const (
	DefaultListenIP     = "0.0.0.0"
	DefaultListenPort   = "8000"
	DefaultMaxBodyBytes = 65536
	DefaultReadTimeout  = 5
	DefaultWriteTimeout = 10
	DefaultIdleTimeout  = 120
)

// SourceConfig holds the raw configuration as read from file, environment or
// flags.
type SourceConfig struct {
	TargetHostDSN       string            `yaml:"targetHostDsn"`
	ListenIP            string            `yaml:"listenIp"`
	ListenPort          string            `yaml:"listenPort"`
	MetricsListenPort   string            `yaml:"metricsListenPort"`
	Headers             map[string]string `yaml:"headers,omitempty"`
	LoggingEnabled      bool              `yaml:"loggingEnabled"`
	MaskingEnabled      bool              `yaml:"maskingEnabled"`
	MaskedNames         []string          `yaml:"maskedNames,omitempty"`
	SetRequestID        bool              `yaml:"setRequestId"`
	Exclude             string            `yaml:"exclude"`
	LogRequestBody      bool              `yaml:"logRequestBody"`
	LogResponseBody     bool              `yaml:"logResponseBody"`
	ExcludeRequestBody  string            `yaml:"excludeRequestBody"`
	ExcludeResponseBody string            `yaml:"excludeResponseBody"`
	MaxBodyBytes        int64             `yaml:"maxBodyBytes"`
	ReadTimeout         int               `yaml:"readTimeout"`
	WriteTimeout        int               `yaml:"writeTimeout"`
	IdleTimeout         int               `yaml:"idleTimeout"`
}

// TranslatedConfig holds the compiled configuration.
type TranslatedConfig struct {
	TargetURL                 *url.URL
	ListenIP                  string
	ListenPort                string
	MetricsListenPort         string
	Headers                   map[string]string
	LoggingEnabled            bool
	MaskingEnabled            bool
	MaskedNames               record.MaskedNames
	SetRequestID              bool
	ExcludeRegexp             *regexp.Regexp
	LogRequestBody            bool
	LogResponseBody           bool
	ExcludeRequestBodyRegexp  *regexp.Regexp
	ExcludeResponseBodyRegexp *regexp.Regexp
	MaxBodyBytes              int64
	ReadTimeout               time.Duration
	WriteTimeout              time.Duration
	IdleTimeout               time.Duration
}

// NewTranslatedConfiguration compiles the source configuration. The target
// host DSN is optional: it is only required for proxy mode, which checks for
// it itself.
func (s *SourceConfig) NewTranslatedConfiguration() (*TranslatedConfig, error) {
	var targetURL *url.URL
	if s.TargetHostDSN != "" {
		parsed, err := url.Parse(s.TargetHostDSN)
		if err != nil {
			return nil, fmt.Errorf("invalid target host DSN %q: %w", s.TargetHostDSN, err)
		}
		targetURL = parsed
	}

	excludeRegexp, err := compileExclude(s.Exclude)
	if err != nil {
		return nil, fmt.Errorf("invalid exclude pattern: %w", err)
	}
	excludeRequestBodyRegexp, err := compileExclude(s.ExcludeRequestBody)
	if err != nil {
		return nil, fmt.Errorf("invalid excludeRequestBody pattern: %w", err)
	}
	excludeResponseBodyRegexp, err := compileExclude(s.ExcludeResponseBody)
	if err != nil {
		return nil, fmt.Errorf("invalid excludeResponseBody pattern: %w", err)
	}

	return &TranslatedConfig{
		TargetURL:                 targetURL,
		ListenIP:                  stringOrDefault(s.ListenIP, DefaultListenIP),
		ListenPort:                stringOrDefault(s.ListenPort, DefaultListenPort),
		MetricsListenPort:         s.MetricsListenPort,
		Headers:                   s.Headers,
		LoggingEnabled:            s.LoggingEnabled,
		MaskingEnabled:            s.MaskingEnabled,
		MaskedNames:               record.DefaultMaskedNames().Extend(s.MaskedNames...),
		SetRequestID:              s.SetRequestID,
		ExcludeRegexp:             excludeRegexp,
		LogRequestBody:            s.LogRequestBody,
		LogResponseBody:           s.LogResponseBody,
		ExcludeRequestBodyRegexp:  excludeRequestBodyRegexp,
		ExcludeResponseBodyRegexp: excludeResponseBodyRegexp,
		MaxBodyBytes:              s.MaxBodyBytes,
		ReadTimeout:               secondsOrDefault(s.ReadTimeout, DefaultReadTimeout),
		WriteTimeout:              secondsOrDefault(s.WriteTimeout, DefaultWriteTimeout),
		IdleTimeout:               secondsOrDefault(s.IdleTimeout, DefaultIdleTimeout),
	}, nil
}

// Default returns the compiled configuration for plain middleware use:
// logging and masking on, both bodies logged, default body cap.
func Default() *TranslatedConfig {
	source := &SourceConfig{
		LoggingEnabled:  true,
		MaskingEnabled:  true,
		LogRequestBody:  true,
		LogResponseBody: true,
		MaxBodyBytes:    DefaultMaxBodyBytes,
	}

	translated, err := source.NewTranslatedConfiguration()
	if err != nil {
		// The static defaults above always compile.
		panic(err)
	}

	return translated
}

// PrintConfig dumps the source configuration as YAML.
func (s *SourceConfig) PrintConfig() {
	fmt.Println("YAML configuration:")
	yamlString, _ := yaml.Marshal(s)
	fmt.Printf("%s\n", string(yamlString))
}

func compileExclude(exclude string) (*regexp.Regexp, error) {
	if exclude == "" {
		return nil, nil
	}
	return regexp.Compile(exclude)
}

func stringOrDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func secondsOrDefault(value, fallback int) time.Duration {
	if value <= 0 {
		value = fallback
	}
	return time.Duration(value) * time.Second
}
