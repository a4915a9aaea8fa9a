package config

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/yardstick/benchalign/internal/align"
	"github.com/yardstick/benchalign/internal/trial"
)

// DefaultScales is the farm-count enumeration of the benchmark campaign.
var DefaultScales = []string{"farms_1", "farms_5", "farms_10", "farms_15", "farms_20", "farms_25"}

// Config represents runtime configuration sourced from environment variables.
type Config struct {
	DataRoot         string
	OutputDir        string
	LogLevel         slog.Level
	Layout           trial.Layout
	Scales           []string
	NetworkInterface string
	// InlineOffsets come from APP_OFFSETS and win over OffsetsFile entries.
	InlineOffsets    align.Map
	OffsetsFile      string
	SkipMalformed    bool
	LoadWorkers      int
	BucketSeconds    float64
	ChartFormat      string
	ListenAddr       string
	RefreshInterval  time.Duration
	AllowedOrigins   []string
	EnablePrometheus bool
	EnablePprof      bool
	WS               WebsocketConfig
	MQTT             MQTTConfig
}

// WebsocketConfig captures tunables for WebSocket handling.
type WebsocketConfig struct {
	MaxClients   int
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
}

// MQTTConfig configures the summary publisher. An empty Broker disables it.
type MQTTConfig struct {
	Broker      string
	TopicPrefix string
	ClientID    string
	Timeout     time.Duration
}

// Enabled reports whether a broker is configured.
func (m MQTTConfig) Enabled() bool {
	return m.Broker != ""
}

// Default returns the configuration used when no environment is set.
func Default() Config {
	return Config{
		DataRoot:         ".",
		OutputDir:        "./plots_altogether",
		LogLevel:         slog.LevelInfo,
		Layout:           trial.DefaultLayout(),
		Scales:           slices.Clone(DefaultScales),
		NetworkInterface: "eth0",
		InlineOffsets:    align.Map{},
		LoadWorkers:      4,
		BucketSeconds:    10,
		ChartFormat:      "png",
		ListenAddr:       ":8080",
		AllowedOrigins:   []string{"*"},
		WS: WebsocketConfig{
			MaxClients:   64,
			WriteTimeout: 3 * time.Second,
			ReadTimeout:  30 * time.Second,
		},
		MQTT: MQTTConfig{
			TopicPrefix: "yardstick/benchalign",
			ClientID:    "benchalign",
			Timeout:     5 * time.Second,
		},
	}
}

// Load parses configuration from environment variables, applying defaults.
func Load() (Config, error) {
	cfg := Default()

	if value := strings.TrimSpace(os.Getenv("APP_DATA_ROOT")); value != "" {
		cfg.DataRoot = value
	}

	if value := strings.TrimSpace(os.Getenv("APP_OUTPUT_DIR")); value != "" {
		cfg.OutputDir = value
	}

	if value := strings.TrimSpace(os.Getenv("APP_LOG_LEVEL")); value != "" {
		level, err := parseLogLevel(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_LOG_LEVEL: %w", err)
		}
		cfg.LogLevel = level
	}

	for key, token := range map[string]*trial.Token{
		"APP_VERSION_PREFIX": &cfg.Layout.Version,
		"APP_SCALE_PREFIX":   &cfg.Layout.Scale,
		"APP_TRIAL_PREFIX":   &cfg.Layout.Trial,
		"APP_NODE_PREFIX":    &cfg.Layout.Node,
	} {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			token.Prefix = value
		}
	}

	if value := strings.TrimSpace(os.Getenv("APP_SCALES")); value != "" {
		scales := splitAndTrim(value, ",")
		if len(scales) == 0 {
			return Config{}, fmt.Errorf("APP_SCALES must not be empty")
		}
		cfg.Scales = scales
	}

	if value := strings.TrimSpace(os.Getenv("APP_NETWORK_INTERFACE")); value != "" {
		cfg.NetworkInterface = value
	}

	if value := strings.TrimSpace(os.Getenv("APP_OFFSETS")); value != "" {
		offsets, err := ParseInlineOffsets(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_OFFSETS: %w", err)
		}
		cfg.InlineOffsets = offsets
	}

	if value := strings.TrimSpace(os.Getenv("APP_OFFSETS_FILE")); value != "" {
		cfg.OffsetsFile = value
	}

	if value := strings.TrimSpace(os.Getenv("APP_SKIP_MALFORMED")); value != "" {
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_SKIP_MALFORMED: %w", err)
		}
		cfg.SkipMalformed = enabled
	}

	if value := strings.TrimSpace(os.Getenv("APP_LOAD_WORKERS")); value != "" {
		workers, err := strconv.Atoi(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_LOAD_WORKERS: %w", err)
		}
		if workers <= 0 {
			return Config{}, fmt.Errorf("APP_LOAD_WORKERS must be > 0")
		}
		cfg.LoadWorkers = workers
	}

	if value := strings.TrimSpace(os.Getenv("APP_BUCKET_SECONDS")); value != "" {
		seconds, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_BUCKET_SECONDS: %w", err)
		}
		if seconds <= 0 {
			return Config{}, fmt.Errorf("APP_BUCKET_SECONDS must be > 0")
		}
		cfg.BucketSeconds = seconds
	}

	if value := strings.TrimSpace(os.Getenv("APP_CHART_FORMAT")); value != "" {
		format := strings.ToLower(value)
		if format != "png" && format != "svg" && format != "pdf" {
			return Config{}, fmt.Errorf("APP_CHART_FORMAT must be png, svg or pdf")
		}
		cfg.ChartFormat = format
	}

	if value := strings.TrimSpace(os.Getenv("APP_LISTEN_ADDR")); value != "" {
		cfg.ListenAddr = value
	}

	if value := strings.TrimSpace(os.Getenv("APP_REFRESH_INTERVAL")); value != "" {
		interval, err := time.ParseDuration(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_REFRESH_INTERVAL: %w", err)
		}
		if interval < 0 {
			return Config{}, fmt.Errorf("APP_REFRESH_INTERVAL must be >= 0")
		}
		cfg.RefreshInterval = interval
	}

	if value := strings.TrimSpace(os.Getenv("APP_ALLOWED_ORIGINS")); value != "" {
		origins := splitAndTrim(value, ",")
		if len(origins) == 0 {
			return Config{}, fmt.Errorf("APP_ALLOWED_ORIGINS must not be empty")
		}
		cfg.AllowedOrigins = origins
	}

	if value := strings.TrimSpace(os.Getenv("APP_ENABLE_PROMETHEUS")); value != "" {
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_ENABLE_PROMETHEUS: %w", err)
		}
		cfg.EnablePrometheus = enabled
	}

	if value := strings.TrimSpace(os.Getenv("APP_ENABLE_PPROF")); value != "" {
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_ENABLE_PPROF: %w", err)
		}
		cfg.EnablePprof = enabled
	}

	if value := strings.TrimSpace(os.Getenv("APP_WS_MAX_CLIENTS")); value != "" {
		maxClients, err := strconv.Atoi(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_WS_MAX_CLIENTS: %w", err)
		}
		if maxClients <= 0 {
			return Config{}, fmt.Errorf("APP_WS_MAX_CLIENTS must be > 0")
		}
		cfg.WS.MaxClients = maxClients
	}

	if value := strings.TrimSpace(os.Getenv("APP_WS_WRITE_TIMEOUT")); value != "" {
		timeout, err := parsePositiveDuration(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_WS_WRITE_TIMEOUT: %w", err)
		}
		cfg.WS.WriteTimeout = timeout
	}

	if value := strings.TrimSpace(os.Getenv("APP_WS_READ_TIMEOUT")); value != "" {
		timeout, err := parsePositiveDuration(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_WS_READ_TIMEOUT: %w", err)
		}
		cfg.WS.ReadTimeout = timeout
	}

	if value := strings.TrimSpace(os.Getenv("APP_MQTT_BROKER")); value != "" {
		cfg.MQTT.Broker = value
	}

	if value := strings.TrimSpace(os.Getenv("APP_MQTT_TOPIC_PREFIX")); value != "" {
		cfg.MQTT.TopicPrefix = strings.TrimSuffix(value, "/")
	}

	if value := strings.TrimSpace(os.Getenv("APP_MQTT_CLIENT_ID")); value != "" {
		cfg.MQTT.ClientID = value
	}

	if value := strings.TrimSpace(os.Getenv("APP_MQTT_TIMEOUT")); value != "" {
		timeout, err := parsePositiveDuration(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_MQTT_TIMEOUT: %w", err)
		}
		cfg.MQTT.Timeout = timeout
	}

	if err := cfg.Layout.Validate(); err != nil {
		return Config{}, fmt.Errorf("path layout: %w", err)
	}

	return cfg, nil
}

// ExplicitOffsets merges the offsets file with inline overrides. Inline entries
// win over file entries for the same cell.
func (c Config) ExplicitOffsets() (align.Map, error) {
	fromFile := align.Map{}
	if c.OffsetsFile != "" {
		loaded, err := LoadOffsetsFile(c.OffsetsFile)
		if err != nil {
			return nil, err
		}
		fromFile = loaded
	}
	merged := align.Merge(c.InlineOffsets, fromFile)
	if err := merged.Validate(); err != nil {
		return nil, fmt.Errorf("explicit offsets: %w", err)
	}
	return merged, nil
}

func parsePositiveDuration(value string) (time.Duration, error) {
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if duration <= 0 {
		return 0, fmt.Errorf("must be > 0")
	}
	return duration, nil
}

func splitAndTrim(value, sep string) []string {
	raw := strings.Split(value, sep)
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseLogLevel(input string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(input)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported log level %q", input)
	}
}

// ParseLogLevel exposes the APP_LOG_LEVEL parser for command-line flags.
func ParseLogLevel(input string) (slog.Level, error) {
	return parseLogLevel(input)
}
