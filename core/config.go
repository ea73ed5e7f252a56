package core

import (
	"fmt"
	"strings"
	"time"
)

type WebhookConfig struct {
	StorefrontSecret string `koanf:"storefront_secret" mapstructure:"storefront_secret"`
	VendorSecret     string `koanf:"vendor_secret" mapstructure:"vendor_secret"`
}

type QueueConfig struct {
	BatchSize   int `koanf:"batch_size" mapstructure:"batch_size"`
	MaxAttempts int `koanf:"max_attempts" mapstructure:"max_attempts"`
	Parallelism int `koanf:"parallelism" mapstructure:"parallelism"`
}

type VendorConfig struct {
	BaseURL      string        `koanf:"base_url" mapstructure:"base_url"`
	TokenURL     string        `koanf:"token_url" mapstructure:"token_url"`
	ClientID     string        `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret string        `koanf:"client_secret" mapstructure:"client_secret"`
	Timeout      time.Duration `koanf:"timeout" mapstructure:"timeout"`
	TokenMargin  time.Duration `koanf:"token_margin" mapstructure:"token_margin"`
}

type ProxyConfig struct {
	AllowedPrefixes []string      `koanf:"allowed_prefixes" mapstructure:"allowed_prefixes"`
	RateLimit       int           `koanf:"rate_limit" mapstructure:"rate_limit"`
	RateWindow      time.Duration `koanf:"rate_window" mapstructure:"rate_window"`
}

type Config struct {
	ServiceName string        `koanf:"service_name" mapstructure:"service_name"`
	Webhook     WebhookConfig `koanf:"webhook" mapstructure:"webhook"`
	Queue       QueueConfig   `koanf:"queue" mapstructure:"queue"`
	Vendor      VendorConfig  `koanf:"vendor" mapstructure:"vendor"`
	Proxy       ProxyConfig   `koanf:"proxy" mapstructure:"proxy"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "fulfillment",
		Queue: QueueConfig{
			BatchSize:   10,
			MaxAttempts: DefaultJobMaxAttempts,
			Parallelism: 4,
		},
		Vendor: VendorConfig{
			Timeout: 60 * time.Second,
			// Tokens are renewed ahead of the vendor-issued expiry so a job
			// never starts with a token about to lapse mid-call.
			TokenMargin: 10 * time.Minute,
		},
		Proxy: ProxyConfig{
			RateLimit:  60,
			RateWindow: time.Minute,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Queue.BatchSize <= 0 {
		return fmt.Errorf("core: queue batch_size must be positive")
	}
	if c.Queue.MaxAttempts <= 0 {
		return fmt.Errorf("core: queue max_attempts must be positive")
	}
	if c.Queue.Parallelism <= 0 {
		return fmt.Errorf("core: queue parallelism must be positive")
	}
	if c.Proxy.RateLimit < 0 {
		return fmt.Errorf("core: proxy rate_limit must not be negative")
	}
	return nil
}
