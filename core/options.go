package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	opts "github.com/goliatone/go-options"
)

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig     Config
	now               func() time.Time
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorMapper       ErrorMapper
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	orderStore        OrderStore
	printJobStore     PrintJobStore
	jobQueue          JobQueue
	webhookLogStore   WebhookLogStore
	proxyLogStore     ProxyLogStore
	vendorClient      PrintVendorClient
	mailer            Mailer
	bookContent       BookContentSource
}

type Option func(*serviceBuilder)

// WithNow overrides the clock. Tests pin it to a fixed instant.
func WithNow(now func() time.Time) Option {
	return func(b *serviceBuilder) {
		b.now = now
	}
}

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistenceClient = client
	}
}

func WithRepositoryFactory(factory any) Option {
	return func(b *serviceBuilder) {
		b.repositoryFactory = factory
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithOrderStore(store OrderStore) Option {
	return func(b *serviceBuilder) {
		b.orderStore = store
	}
}

func WithPrintJobStore(store PrintJobStore) Option {
	return func(b *serviceBuilder) {
		b.printJobStore = store
	}
}

func WithJobQueue(queue JobQueue) Option {
	return func(b *serviceBuilder) {
		b.jobQueue = queue
	}
}

func WithWebhookLogStore(store WebhookLogStore) Option {
	return func(b *serviceBuilder) {
		b.webhookLogStore = store
	}
}

func WithProxyLogStore(store ProxyLogStore) Option {
	return func(b *serviceBuilder) {
		b.proxyLogStore = store
	}
}

func WithVendorClient(client PrintVendorClient) Option {
	return func(b *serviceBuilder) {
		b.vendorClient = client
	}
}

func WithMailer(mailer Mailer) Option {
	return func(b *serviceBuilder) {
		b.mailer = mailer
	}
}

func WithBookContentSource(source BookContentSource) Option {
	return func(b *serviceBuilder) {
		b.bookContent = source
	}
}

func defaultServiceBuilder(cfg Config) serviceBuilder {
	return serviceBuilder{runtimeConfig: cfg}
}

type staticRawConfigLoader struct{}

func (staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	return map[string]any{}, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	webhook := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Webhook.StorefrontSecret) != "" {
		webhook["storefront_secret"] = cfg.Webhook.StorefrontSecret
	}
	if includeZero || strings.TrimSpace(cfg.Webhook.VendorSecret) != "" {
		webhook["vendor_secret"] = cfg.Webhook.VendorSecret
	}
	if len(webhook) > 0 {
		layer["webhook"] = webhook
	}

	queue := map[string]any{}
	if includeZero || cfg.Queue.BatchSize > 0 {
		queue["batch_size"] = cfg.Queue.BatchSize
	}
	if includeZero || cfg.Queue.MaxAttempts > 0 {
		queue["max_attempts"] = cfg.Queue.MaxAttempts
	}
	if includeZero || cfg.Queue.Parallelism > 0 {
		queue["parallelism"] = cfg.Queue.Parallelism
	}
	if len(queue) > 0 {
		layer["queue"] = queue
	}

	vendor := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Vendor.BaseURL) != "" {
		vendor["base_url"] = cfg.Vendor.BaseURL
	}
	if includeZero || strings.TrimSpace(cfg.Vendor.TokenURL) != "" {
		vendor["token_url"] = cfg.Vendor.TokenURL
	}
	if includeZero || strings.TrimSpace(cfg.Vendor.ClientID) != "" {
		vendor["client_id"] = cfg.Vendor.ClientID
	}
	if includeZero || strings.TrimSpace(cfg.Vendor.ClientSecret) != "" {
		vendor["client_secret"] = cfg.Vendor.ClientSecret
	}
	if includeZero || cfg.Vendor.Timeout > 0 {
		vendor["timeout"] = cfg.Vendor.Timeout
	}
	if includeZero || cfg.Vendor.TokenMargin > 0 {
		vendor["token_margin"] = cfg.Vendor.TokenMargin
	}
	if len(vendor) > 0 {
		layer["vendor"] = vendor
	}

	proxy := map[string]any{}
	if includeZero || len(cfg.Proxy.AllowedPrefixes) > 0 {
		proxy["allowed_prefixes"] = append([]string(nil), cfg.Proxy.AllowedPrefixes...)
	}
	if includeZero || cfg.Proxy.RateLimit > 0 {
		proxy["rate_limit"] = cfg.Proxy.RateLimit
	}
	if includeZero || cfg.Proxy.RateWindow > 0 {
		proxy["rate_window"] = cfg.Proxy.RateWindow
	}
	if len(proxy) > 0 {
		layer["proxy"] = proxy
	}

	return layer
}
