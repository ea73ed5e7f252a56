package core

import (
	"context"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Queue.MaxAttempts != DefaultJobMaxAttempts {
		t.Fatalf("unexpected max attempts %d", cfg.Queue.MaxAttempts)
	}
}

func TestConfigValidateRejections(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ServiceName = "  "
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected empty service name to be rejected")
	}

	cfg = DefaultConfig()
	cfg.Queue.BatchSize = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected zero batch size to be rejected")
	}

	cfg = DefaultConfig()
	cfg.Proxy.RateLimit = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected negative rate limit to be rejected")
	}
}

type mapRawConfigLoader map[string]any

func (m mapRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	return m, nil
}

func TestCfgxConfigProviderAppliesRawValues(t *testing.T) {
	provider := NewCfgxConfigProvider(mapRawConfigLoader{
		"webhook": map[string]any{"storefront_secret": "file-secret"},
		"queue":   map[string]any{"batch_size": 25},
	})

	cfg, err := provider.Load(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Webhook.StorefrontSecret != "file-secret" {
		t.Fatalf("expected raw secret, got %q", cfg.Webhook.StorefrontSecret)
	}
	if cfg.Queue.BatchSize != 25 {
		t.Fatalf("expected raw batch size, got %d", cfg.Queue.BatchSize)
	}
	if cfg.Queue.Parallelism != DefaultConfig().Queue.Parallelism {
		t.Fatalf("expected defaults to fill the gaps, got %d", cfg.Queue.Parallelism)
	}
}

func TestGoOptionsResolverLayerPrecedence(t *testing.T) {
	defaults := DefaultConfig()

	loaded := defaults
	loaded.Webhook.StorefrontSecret = "file-secret"
	loaded.Queue.BatchSize = 25

	runtime := Config{}
	runtime.Webhook.StorefrontSecret = "runtime-secret"

	resolved, err := GoOptionsResolver{}.Resolve(defaults, loaded, runtime)
	if err != nil {
		t.Fatalf("resolve config: %v", err)
	}
	if resolved.Webhook.StorefrontSecret != "runtime-secret" {
		t.Fatalf("runtime layer must win, got %q", resolved.Webhook.StorefrontSecret)
	}
	if resolved.Queue.BatchSize != 25 {
		t.Fatalf("config layer must beat defaults, got %d", resolved.Queue.BatchSize)
	}
	if resolved.Proxy.RateWindow != time.Minute {
		t.Fatalf("defaults must fill unset values, got %s", resolved.Proxy.RateWindow)
	}
}
