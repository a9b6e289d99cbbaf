package config

import "context"

// Package config provides configuration management for kubilitics-gate.
//
// Configuration Sources (priority order, high to low):
//   1. CLI flags (applied by the cli package after Load)
//   2. Environment variables (KUBILITICS_GATE_* prefix, plus the legacy
//      agent variables such as BLOCKING_MODE and PROM_URL)
//   3. .env file in the working directory
//   4. YAML config file (default: kubilitics-gate.yaml)
//   5. Built-in defaults
//
// Main Configuration Sections:
//
//   1. Gate       - mode, blocking mode, health threshold, run budget, weights
//   2. Telemetry  - namespace, Prometheus URL, kubeconfig, query timeouts, simulator
//   3. LLM        - provider (bedrock | anthropic | openai), model, credentials, retries
//   4. Report     - output format, GitHub outputs file
//   5. Archive    - SQLite report archive
//   6. Notify     - Telegram, Slack and generic webhooks
//   7. Publish    - NATS subject and S3 bucket for report fan-out
//   8. Logging    - level, format, rotating file
//   9. Audit      - model-call audit trail
//  10. Metrics    - Prometheus pushgateway
//  11. Tracing    - OTLP endpoint
//  12. CI         - pipeline id, commit sha, environment

// Config struct contains all configuration fields
type Config struct {
	// Gate decision configuration
	Gate struct {
		Mode             string // simulation | real | auto
		BlockingMode     bool
		HealthThreshold  float64
		RunBudgetSeconds int
		Weights          struct {
			Performance    float64
			Infrastructure float64
			Platform       float64
			Trend          float64
		}
	}

	// Telemetry backends
	Telemetry struct {
		Namespace           string
		PrometheusURL       string
		Kubeconfig          string
		QueryTimeoutSeconds int
		TrendWindowMinutes  int
		TrendStepSeconds    int
		QueriesPerSecond    float64
		SimulationSeed      int64
		// SimulationDegrade names a category the simulator renders unhealthy.
		SimulationDegrade string
	}

	// LLM provider configuration
	LLM struct {
		Provider         string
		Model            string
		APIKey           string
		BaseURL          string
		Region           string
		MaxTokens        int
		Temperature      float64
		TimeoutSeconds   int
		MaxRetries       int
		InitialBackoffMs int
		MaxBackoffMs     int
	}

	// Report output configuration
	Report struct {
		Format       string // text | json | yaml
		GitHubOutput string
		OutputFile   string
	}

	// Archive configuration
	Archive struct {
		Enabled    bool
		SQLitePath string
	}

	// Notification configuration
	Notify struct {
		TelegramBotToken string
		TelegramChatID   string
		SlackWebhookURL  string
		WebhookURL       string
		NotifyOn         string // always | block
	}

	// Publish configuration
	Publish struct {
		NATSURL           string
		NATSSubject       string
		S3Bucket          string
		S3Region          string
		S3Endpoint        string
		S3Prefix          string
		S3AccessKeyID     string
		S3SecretAccessKey string
		S3UsePathStyle    bool
	}

	// Logging configuration
	Logging struct {
		Level      string
		Format     string
		File       string
		MaxSizeMB  int
		MaxBackups int
		MaxAgeDays int
	}

	// Audit configuration
	Audit struct {
		Enabled bool
		LogPath string
	}

	// Metrics configuration
	Metrics struct {
		PushgatewayURL string
		Job            string
	}

	// Tracing configuration
	Tracing struct {
		Endpoint     string
		SamplingRate float64
	}

	// CI context
	CI struct {
		PipelineID  string
		CommitSHA   string
		Environment string
	}
}

// ConfigManager defines the interface for configuration access.
type ConfigManager interface {
	// Load loads configuration from all sources.
	Load(ctx context.Context) error

	// Get returns the current configuration.
	Get(ctx context.Context) *Config

	// Validate validates configuration is correct and complete.
	Validate(ctx context.Context) error
}

// NewConfigManager creates a new configuration manager.
func NewConfigManager(configPath string) (ConfigManager, error) {
	mgr := &viperConfigManager{
		configPath: configPath,
		envFile:    ".env",
		config:     DefaultConfig(),
	}
	return mgr, nil
}

// NewConfigManagerWithDefaults creates a config manager with default config path.
func NewConfigManagerWithDefaults() (ConfigManager, error) {
	return NewConfigManager(DefaultConfigPath)
}
