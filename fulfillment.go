package fulfillment

import "github.com/goliatone/go-fulfillment/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type Dispatcher = core.Dispatcher

type DispatchStats = core.DispatchStats

type Order = core.Order
type OrderStatus = core.OrderStatus
type PrintJob = core.PrintJob
type Job = core.Job
type JobType = core.JobType

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorMapper       = core.WithErrorMapper
	WithPersistenceClient = core.WithPersistenceClient
	WithRepositoryFactory = core.WithRepositoryFactory
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithOrderStore        = core.WithOrderStore
	WithPrintJobStore     = core.WithPrintJobStore
	WithJobQueue          = core.WithJobQueue
	WithWebhookLogStore   = core.WithWebhookLogStore
	WithProxyLogStore     = core.WithProxyLogStore
	WithVendorClient      = core.WithVendorClient
	WithMailer            = core.WithMailer
	WithBookContentSource = core.WithBookContentSource
	WithNow               = core.WithNow
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func NewDispatcher(service *Service, opts ...core.DispatcherOption) (*Dispatcher, error) {
	return core.NewDispatcher(service, opts...)
}
