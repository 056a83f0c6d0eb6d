package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/bodylog/bodylog/internal/version"
	"github.com/bodylog/bodylog/pkg/core"
	config "github.com/bodylog/bodylog/pkg/core/config"
	"github.com/bodylog/bodylog/pkg/metrics"
	"github.com/bodylog/bodylog/pkg/zapwriter"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ConfigLoader loads the compiled configuration.
type ConfigLoader interface {
	Load() (*config.TranslatedConfig, error)
}

// LoggerFactory creates the logger records are written to.
type LoggerFactory interface {
	CreateLogger() (*zap.Logger, error)
}

// App wires configuration, logging and the proxy server together.
type App struct {
	ConfigLoader  ConfigLoader
	LoggerFactory LoggerFactory
	Server        core.HTTPServer
}

// Run starts the standalone logging proxy.
func (a *App) Run() error {
	cfg, err := a.ConfigLoader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := a.LoggerFactory.CreateLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	writer := zapwriter.New(logger, cfg)

	recorder, err := core.NewRecorder(cfg, writer)
	if err != nil {
		return fmt.Errorf("failed to create recorder: %w", err)
	}
	recorder.SetErrorLog(func(err error) {
		logger.Warn("record handler failed", zap.Error(err))
	})

	metrics.Init()
	if cfg.MetricsListenPort != "" {
		go serveMetrics(cfg, logger)
	}

	server := a.Server
	if server == nil {
		server = &core.DefaultHTTPServer{Config: cfg}
	}

	log.Printf("%s started.", version.Info())

	return core.Run(cfg, recorder, server)
}

func serveMetrics(cfg *config.TranslatedConfig, logger *zap.Logger) {
	router := chi.NewRouter()
	router.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf("%s:%s", cfg.ListenIP, cfg.MetricsListenPort)
	if err := http.ListenAndServe(addr, router); err != nil {
		logger.Error("metrics server failed", zap.Error(err))
	}
}

// DefaultConfigLoader loads configuration from flags, environment variables
// and yaml config files, in that order of precedence.
type DefaultConfigLoader struct {
	Args []string
}

// Load implements the ConfigLoader interface.
func (l *DefaultConfigLoader) Load() (*config.TranslatedConfig, error) {
	flags := flag.NewFlagSet("bodylog", flag.ContinueOnError)

	headers := flags.StringSlice("header", []string{}, "HTTP header to set. You may use this flag multiple times.")
	flags.String("target-host-dsn", "", "Target host DSN to proxy requests to")
	flags.String("listen-ip", config.DefaultListenIP, "IP address to listen on")
	flags.String("listen-port", config.DefaultListenPort, "Port to listen on")
	flags.String("metrics-listen-port", "", "Port the Prometheus endpoint listens on. Empty disables it.")
	flags.Bool("logging-enabled", true, "Enable logging")
	flags.Bool("masking-enabled", true, "Mask sensitive header and query parameter values")
	flags.StringSlice("masked-name", []string{}, "Additional header or query parameter name to mask. You may use this flag multiple times.")
	flags.Bool("set-request-id", false, "Set request ID")
	flags.String("exclude", "", "Regex pattern to exclude from logging")
	flags.Bool("log-request-body", true, "Log request body")
	flags.Bool("log-response-body", true, "Log response body")
	flags.String("exclude-request-body", "", "Regex pattern to exclude from request body logging")
	flags.String("exclude-response-body", "", "Regex pattern to exclude from response body logging")
	flags.Int64("max-body-bytes", config.DefaultMaxBodyBytes, "Maximum number of body bytes stored per record. Zero or less disables the cap.")
	flags.Int("read-timeout", config.DefaultReadTimeout, "Read timeout in seconds")
	flags.Int("write-timeout", config.DefaultWriteTimeout, "Write timeout in seconds")
	flags.Int("idle-timeout", config.DefaultIdleTimeout, "Idle timeout in seconds")

	if err := flags.Parse(l.Args); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}

	v := viper.New()

	bindings := map[string]string{
		"targetHostDsn":       "target-host-dsn",
		"listenIp":            "listen-ip",
		"listenPort":          "listen-port",
		"metricsListenPort":   "metrics-listen-port",
		"loggingEnabled":      "logging-enabled",
		"maskingEnabled":      "masking-enabled",
		"maskedNames":         "masked-name",
		"setRequestId":        "set-request-id",
		"exclude":             "exclude",
		"logRequestBody":      "log-request-body",
		"logResponseBody":     "log-response-body",
		"excludeRequestBody":  "exclude-request-body",
		"excludeResponseBody": "exclude-response-body",
		"maxBodyBytes":        "max-body-bytes",
		"readTimeout":         "read-timeout",
		"writeTimeout":        "write-timeout",
		"idleTimeout":         "idle-timeout",
	}

	for key, flagName := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(flagName)); err != nil {
			return nil, fmt.Errorf("failed to bind flag %s: %w", flagName, err)
		}
		v.BindEnv(key, toScreamingSnake(key)) //nolint:errcheck
	}
	v.SetDefault("headers", map[string]string{})
	v.BindEnv("headers", "HEADERS") //nolint:errcheck

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}

	v.AddConfigPath("/etc/bodylog")
	v.AddConfigPath(homeDir + "/.bodylog")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg config.SourceConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}

	// Process headers from command line
	for _, item := range *headers {
		name, value, found := strings.Cut(item, ":")
		if found {
			cfg.Headers[name] = strings.TrimSpace(value)
		}
	}

	// Process header cases
	titleCaser := cases.Title(language.AmericanEnglish)
	headersProcessed := make(map[string]string, len(cfg.Headers))
	for name, value := range cfg.Headers {
		headersProcessed[titleCaser.String(strings.ToLower(name))] = value
	}
	cfg.Headers = headersProcessed

	if cfg.TargetHostDSN == "" {
		return nil, fmt.Errorf("no target host given")
	}

	cfg.PrintConfig()

	if configFile := v.ConfigFileUsed(); configFile != "" {
		fmt.Printf("Config File: %s\n", configFile)
	}

	translatedConfig, err := cfg.NewTranslatedConfiguration()
	if err != nil {
		return nil, fmt.Errorf("failed to translate configuration: %w", err)
	}

	return translatedConfig, nil
}

// toScreamingSnake turns a camelCase viper key into its environment variable
// name, e.g. targetHostDsn -> TARGET_HOST_DSN.
func toScreamingSnake(key string) string {
	var b strings.Builder
	for i, r := range key {
		if r >= 'A' && r <= 'Z' && i > 0 {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	return strings.ToUpper(b.String())
}

// DefaultLoggerFactory creates a production zap logger.
type DefaultLoggerFactory struct{}

// CreateLogger implements the LoggerFactory interface.
func (f *DefaultLoggerFactory) CreateLogger() (*zap.Logger, error) {
	return zap.NewProduction()
}

func main() {
	app := &App{
		ConfigLoader:  &DefaultConfigLoader{Args: os.Args[1:]},
		LoggerFactory: &DefaultLoggerFactory{},
	}

	if err := app.Run(); err != nil {
		log.Fatalf("%v", err)
	}
}
