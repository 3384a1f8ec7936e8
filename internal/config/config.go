// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"multimodal-agent/internal/domain/model"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	PoolSize int    `yaml:"pool_size"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// Queue is the dispatch list key prefix.
	Queue string `yaml:"queue"`
	// ProcessingTTL bounds how long an id may sit on the processing list
	// before RequeueStale moves it back.
	ProcessingTTL time.Duration `yaml:"processing_ttl"`
}

type StorageConfig struct {
	// Provider: minio | memory
	Provider  string `yaml:"provider"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// RoleEndpointConfig configures one model role on an OpenAI-compatible
// gateway.
type RoleEndpointConfig struct {
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

type AIConfig struct {
	// Provider: openai | gemini | noop
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
	// GeminiBaseURL overrides the Gemini API endpoint (optional).
	GeminiBaseURL string `yaml:"gemini_base_url"`

	Vision    RoleEndpointConfig `yaml:"vision"`
	Reasoning RoleEndpointConfig `yaml:"reasoning"`
	Code      RoleEndpointConfig `yaml:"code"`

	// MaxPromptTokens rejects oversized prompts before the network call.
	MaxPromptTokens int `yaml:"max_prompt_tokens"`
}

type PipelineConfig struct {
	// MaxCodegenAttempts caps the VALIDATING -> GENERATING_CODE loop.
	MaxCodegenAttempts int `yaml:"max_codegen_attempts"`
	// InferenceRetries bounds in-place retries of transient inference failures.
	InferenceRetries int           `yaml:"inference_retries"`
	RetryBackoff     time.Duration `yaml:"retry_backoff"`
	// StageLease is the CAS claim TTL; a worker that dies mid-stage frees the
	// job for re-claim after this long.
	StageLease time.Duration `yaml:"stage_lease"`
}

type SandboxConfig struct {
	PythonPath string           `yaml:"python_path"`
	Limits     model.ExecLimits `yaml:"limits"`
	// MaxCaptureBytes bounds captured stdout/stderr; excess is truncated.
	MaxCaptureBytes int `yaml:"max_capture_bytes"`
	// MaxOutputFiles bounds how many output-directory files are collected.
	MaxOutputFiles int `yaml:"max_output_files"`
	// Isolate toggles namespace isolation (disabled only for dev hosts
	// without user-namespace support).
	Isolate bool `yaml:"isolate"`
}

type WebConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type WorkerConfig struct {
	Count int `yaml:"count"`
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Storage  StorageConfig  `yaml:"storage"`
	AI       AIConfig       `yaml:"ai"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Sandbox  SandboxConfig  `yaml:"sandbox"`
	Web      WebConfig      `yaml:"web"`
	Worker   WorkerConfig   `yaml:"worker"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Storage.Provider == "minio" && cfg.Storage.Endpoint == "" {
		return nil, errors.New("storage.endpoint is required for the minio provider")
	}
	if cfg.AI.Provider == "openai" && cfg.AI.Vision.BaseURL == "" {
		return nil, errors.New("ai.vision.base_url is required for the openai provider")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.PoolSize <= 0 {
		cfg.Database.PoolSize = 10
	}
	if cfg.Redis.Queue == "" {
		cfg.Redis.Queue = "jobs:dispatch"
	}
	if cfg.Redis.ProcessingTTL <= 0 {
		cfg.Redis.ProcessingTTL = 10 * time.Minute
	}
	if cfg.Storage.Provider == "" {
		cfg.Storage.Provider = "minio"
	}
	if cfg.Storage.Bucket == "" {
		cfg.Storage.Bucket = "multimodal-agent"
	}
	if cfg.AI.Provider == "" {
		cfg.AI.Provider = "openai"
	}
	for _, rc := range []*RoleEndpointConfig{&cfg.AI.Vision, &cfg.AI.Reasoning, &cfg.AI.Code} {
		if rc.Timeout <= 0 {
			rc.Timeout = 120 * time.Second
		}
	}
	if cfg.AI.MaxPromptTokens <= 0 {
		cfg.AI.MaxPromptTokens = 16384
	}
	if cfg.Pipeline.MaxCodegenAttempts <= 0 {
		cfg.Pipeline.MaxCodegenAttempts = 2
	}
	if cfg.Pipeline.InferenceRetries <= 0 {
		cfg.Pipeline.InferenceRetries = 3
	}
	if cfg.Pipeline.RetryBackoff <= 0 {
		cfg.Pipeline.RetryBackoff = 500 * time.Millisecond
	}
	if cfg.Pipeline.StageLease <= 0 {
		cfg.Pipeline.StageLease = 5 * time.Minute
	}
	if cfg.Sandbox.PythonPath == "" {
		cfg.Sandbox.PythonPath = "python3"
	}
	if cfg.Sandbox.Limits == (model.ExecLimits{}) {
		cfg.Sandbox.Limits = model.DefaultExecLimits()
	}
	if cfg.Sandbox.MaxCaptureBytes <= 0 {
		cfg.Sandbox.MaxCaptureBytes = 64 << 10
	}
	if cfg.Sandbox.MaxOutputFiles <= 0 {
		cfg.Sandbox.MaxOutputFiles = 16
	}
	if cfg.Web.Port <= 0 {
		cfg.Web.Port = 8080
	}
	if cfg.Worker.Count <= 0 {
		cfg.Worker.Count = 4
	}
}
