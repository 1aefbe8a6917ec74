package core

import (
	"fmt"
	"strings"
	"time"
)

type DispatcherConfig struct {
	PollInterval   time.Duration `koanf:"poll_interval" mapstructure:"poll_interval"`
	BatchSize      int           `koanf:"batch_size" mapstructure:"batch_size"`
	MaxConcurrency int           `koanf:"max_concurrency" mapstructure:"max_concurrency"`
	RequestTimeout time.Duration `koanf:"request_timeout" mapstructure:"request_timeout"`
	ClaimTimeout   time.Duration `koanf:"claim_timeout" mapstructure:"claim_timeout"`
}

type RetryConfig struct {
	MaxAttempts int             `koanf:"max_attempts" mapstructure:"max_attempts"`
	Steps       []time.Duration `koanf:"steps" mapstructure:"steps"`
	Jitter      float64         `koanf:"jitter" mapstructure:"jitter"`
}

type SignatureConfig struct {
	MaxAge time.Duration `koanf:"max_age" mapstructure:"max_age"`
}

type CallbackConfig struct {
	WorkflowExpiry time.Duration `koanf:"workflow_expiry" mapstructure:"workflow_expiry"`
}

type EmitterConfig struct {
	MaxPayloadBytes int `koanf:"max_payload_bytes" mapstructure:"max_payload_bytes"`
}

type RetentionConfig struct {
	TerminalHorizon time.Duration `koanf:"terminal_horizon" mapstructure:"terminal_horizon"`
	LogHorizon      time.Duration `koanf:"log_horizon" mapstructure:"log_horizon"`
}

type Config struct {
	ServiceName string           `koanf:"service_name" mapstructure:"service_name"`
	Dispatcher  DispatcherConfig `koanf:"dispatcher" mapstructure:"dispatcher"`
	Retry       RetryConfig      `koanf:"retry" mapstructure:"retry"`
	Signature   SignatureConfig  `koanf:"signature" mapstructure:"signature"`
	Callbacks   CallbackConfig   `koanf:"callbacks" mapstructure:"callbacks"`
	Emitter     EmitterConfig    `koanf:"emitter" mapstructure:"emitter"`
	Retention   RetentionConfig  `koanf:"retention" mapstructure:"retention"`
}

// DefaultConfig carries the empirically tuned defaults: 5s/30s/5m retry
// steps, a 5 minute replay window, and a 3 attempt budget. All of them are
// configuration, not constants.
func DefaultConfig() Config {
	return Config{
		ServiceName: "webhook-relay",
		Dispatcher: DispatcherConfig{
			PollInterval:   5 * time.Second,
			BatchSize:      25,
			MaxConcurrency: 8,
			RequestTimeout: 30 * time.Second,
			ClaimTimeout:   time.Minute,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			Steps:       []time.Duration{5 * time.Second, 30 * time.Second, 5 * time.Minute},
			Jitter:      0.2,
		},
		Signature: SignatureConfig{
			MaxAge: 5 * time.Minute,
		},
		Callbacks: CallbackConfig{
			WorkflowExpiry: 24 * time.Hour,
		},
		Emitter: EmitterConfig{
			MaxPayloadBytes: 1 << 20,
		},
		Retention: RetentionConfig{
			TerminalHorizon: 30 * 24 * time.Hour,
			LogHorizon:      90 * 24 * time.Hour,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Dispatcher.PollInterval < 0 {
		return fmt.Errorf("core: dispatcher.poll_interval must be >= 0")
	}
	if c.Dispatcher.BatchSize < 0 {
		return fmt.Errorf("core: dispatcher.batch_size must be >= 0")
	}
	if c.Dispatcher.MaxConcurrency < 0 {
		return fmt.Errorf("core: dispatcher.max_concurrency must be >= 0")
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("core: retry.max_attempts must be >= 0")
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter >= 1 {
		return fmt.Errorf("core: retry.jitter must be in [0, 1)")
	}
	if c.Signature.MaxAge < 0 {
		return fmt.Errorf("core: signature.max_age must be >= 0")
	}
	if c.Emitter.MaxPayloadBytes < 0 {
		return fmt.Errorf("core: emitter.max_payload_bytes must be >= 0")
	}
	return nil
}
