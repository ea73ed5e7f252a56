package core

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// Service coordinates the webhook handlers, the job dispatcher, and the
// repositories. It is safe for concurrent use.
type Service struct {
	config          Config
	now             func() time.Time
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	orderStore      OrderStore
	printJobStore   PrintJobStore
	jobQueue        JobQueue
	webhookLogStore WebhookLogStore
	proxyLogStore   ProxyLogStore
	vendorClient    PrintVendorClient
	mailer          Mailer
	bookContent     BookContentSource
}

func NewService(cfg Config, options ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("fulfillment", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("fulfillment"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, fmt.Errorf("core: load config: %w", err)
	}
	resolved, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, fmt.Errorf("core: resolve config: %w", err)
	}

	if builder.now == nil {
		builder.now = func() time.Time { return time.Now().UTC() }
	}

	service := &Service{
		config:          resolved,
		now:             builder.now,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorMapper:     builder.errorMapper,
		orderStore:      builder.orderStore,
		printJobStore:   builder.printJobStore,
		jobQueue:        builder.jobQueue,
		webhookLogStore: builder.webhookLogStore,
		proxyLogStore:   builder.proxyLogStore,
		vendorClient:    builder.vendorClient,
		mailer:          builder.mailer,
		bookContent:     builder.bookContent,
	}

	if err := service.resolveStores(builder.repositoryFactory, builder.persistenceClient); err != nil {
		return nil, err
	}
	return service, nil
}

func (s *Service) resolveStores(factory any, persistenceClient any) error {
	if s == nil {
		return fmt.Errorf("core: service is nil")
	}
	if factory == nil {
		return nil
	}
	storeFactory, ok := factory.(RepositoryStoreFactory)
	if !ok {
		return fmt.Errorf("core: unsupported repository factory type %T", factory)
	}
	stores, err := storeFactory.BuildStores(persistenceClient)
	if err != nil {
		return fmt.Errorf("core: build stores: %w", err)
	}
	if s.orderStore == nil {
		s.orderStore = stores.OrderStore()
	}
	if s.printJobStore == nil {
		s.printJobStore = stores.PrintJobStore()
	}
	if s.jobQueue == nil {
		s.jobQueue = stores.JobQueue()
	}
	if s.webhookLogStore == nil {
		s.webhookLogStore = stores.WebhookLogStore()
	}
	if s.proxyLogStore == nil {
		s.proxyLogStore = stores.ProxyLogStore()
	}
	return nil
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Logger() Logger {
	if s == nil {
		return glog.Nop()
	}
	return s.logger
}

func (s *Service) JobQueue() JobQueue {
	if s == nil {
		return nil
	}
	return s.jobQueue
}

func (s *Service) WebhookLogStore() WebhookLogStore {
	if s == nil {
		return nil
	}
	return s.webhookLogStore
}

func (s *Service) ProxyLogStore() ProxyLogStore {
	if s == nil {
		return nil
	}
	return s.proxyLogStore
}

// DeadJobs lists dead-lettered jobs for operator inspection.
func (s *Service) DeadJobs(ctx context.Context, limit int) ([]Job, error) {
	if s == nil || s.jobQueue == nil {
		return nil, fmt.Errorf("core: job queue is not configured")
	}
	jobs, err := s.jobQueue.ListDead(ctx, limit)
	if err != nil {
		return nil, s.mapError(err)
	}
	return jobs, nil
}

func (s *Service) nowUTC() time.Time {
	if s == nil || s.now == nil {
		return time.Now().UTC()
	}
	return s.now().UTC()
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	if mapped := s.errorMapper(err); mapped != nil {
		return mapped
	}
	return err
}

var _ ErrorMapper = defaultErrorMapper

func internalError(message string) error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithTextCode(FulfillmentErrorInternal)
}

func badInputError(message string) error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithTextCode(FulfillmentErrorBadInput)
}
