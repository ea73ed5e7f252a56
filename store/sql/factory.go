package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-fulfillment/core"
	"github.com/goliatone/go-fulfillment/ratelimit"
)

// RepositoryFactory builds all SQL-backed stores over one bun handle.
type RepositoryFactory struct {
	db *bun.DB

	orderStore          *OrderStore
	printJobStore       *PrintJobStore
	jobStore            *JobStore
	webhookLogStore     *WebhookLogStore
	proxyLogStore       *ProxyLogStore
	rateLimitStateStore *RateLimitStateStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.orderStore != nil && f.jobStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) OrderStore() core.OrderStore {
	if f == nil {
		return nil
	}
	return f.orderStore
}

func (f *RepositoryFactory) PrintJobStore() core.PrintJobStore {
	if f == nil {
		return nil
	}
	return f.printJobStore
}

func (f *RepositoryFactory) JobQueue() core.JobQueue {
	if f == nil {
		return nil
	}
	return f.jobStore
}

func (f *RepositoryFactory) WebhookLogStore() core.WebhookLogStore {
	if f == nil {
		return nil
	}
	return f.webhookLogStore
}

func (f *RepositoryFactory) ProxyLogStore() core.ProxyLogStore {
	if f == nil {
		return nil
	}
	return f.proxyLogStore
}

func (f *RepositoryFactory) RateLimitStateStore() ratelimit.StateStore {
	if f == nil {
		return nil
	}
	return f.rateLimitStateStore
}

func (f *RepositoryFactory) initStores() error {
	orderStore, err := NewOrderStore(f.db)
	if err != nil {
		return err
	}
	f.orderStore = orderStore
	printJobStore, err := NewPrintJobStore(f.db)
	if err != nil {
		return err
	}
	f.printJobStore = printJobStore
	jobStore, err := NewJobStore(f.db)
	if err != nil {
		return err
	}
	f.jobStore = jobStore
	webhookLogStore, err := NewWebhookLogStore(f.db)
	if err != nil {
		return err
	}
	f.webhookLogStore = webhookLogStore
	proxyLogStore, err := NewProxyLogStore(f.db)
	if err != nil {
		return err
	}
	f.proxyLogStore = proxyLogStore
	rateLimitStateStore, err := NewRateLimitStateStore(f.db)
	if err != nil {
		return err
	}
	f.rateLimitStateStore = rateLimitStateStore

	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}

var (
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
