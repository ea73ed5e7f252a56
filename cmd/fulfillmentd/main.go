package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	glog "github.com/goliatone/go-logger/glog"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/kelseyhightower/envconfig"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-fulfillment/core"
	fulfillmentmigrations "github.com/goliatone/go-fulfillment/migrations"
	"github.com/goliatone/go-fulfillment/providers/bookshelf"
	"github.com/goliatone/go-fulfillment/providers/notify"
	"github.com/goliatone/go-fulfillment/providers/printvendor"
	"github.com/goliatone/go-fulfillment/providers/storefront"
	"github.com/goliatone/go-fulfillment/proxy"
	"github.com/goliatone/go-fulfillment/ratelimit"
	sqlstore "github.com/goliatone/go-fulfillment/store/sql"
	"github.com/goliatone/go-fulfillment/transport"
	"github.com/goliatone/go-fulfillment/webhooks"
)

const maxWebhookBodyBytes = 1 << 20

type serverConfig struct {
	HTTPAddr string `split_words:"true" default:":8080"`

	DBDriver string `split_words:"true" default:"sqlite3"`
	DBDSN    string `split_words:"true" default:"file:fulfillment.db?_foreign_keys=on"`
	DBDebug  bool   `split_words:"true"`

	StorefrontWebhookSecret string `split_words:"true"`
	VendorWebhookSecret     string `split_words:"true"`

	VendorBaseURL      string `split_words:"true"`
	VendorTokenURL     string `split_words:"true"`
	VendorClientID     string `split_words:"true"`
	VendorClientSecret string `split_words:"true"`

	ContentAPIURL string `split_words:"true"`

	MailAPIURL  string `split_words:"true"`
	MailAPIKey  string `split_words:"true"`
	MailFrom    string `split_words:"true" default:"orders@example.com"`

	ProxyTokens          map[string]string `split_words:"true"`
	ProxyAllowedPrefixes []string          `split_words:"true" default:"/print-jobs"`
	ProxyRateLimit       int               `split_words:"true" default:"60"`
	ProxyRateWindow      time.Duration     `split_words:"true" default:"1m"`

	QueueBatchSize   int `split_words:"true" default:"10"`
	QueueMaxAttempts int `split_words:"true" default:"3"`
	QueueParallelism int `split_words:"true" default:"4"`

	DispatchInterval time.Duration `split_words:"true" default:"30s"`
	PingTimeout      time.Duration `split_words:"true" default:"5s"`
}

type persistenceConfig struct {
	driver      string
	server      string
	debug       bool
	pingTimeout time.Duration
}

func (c persistenceConfig) GetDebug() bool    { return c.debug }
func (c persistenceConfig) GetDriver() string { return c.driver }
func (c persistenceConfig) GetServer() string { return c.server }

func (c persistenceConfig) GetPingTimeout() time.Duration {
	if c.pingTimeout <= 0 {
		return 5 * time.Second
	}
	return c.pingTimeout
}

func (c persistenceConfig) GetOtelIdentifier() string { return "go-fulfillment" }

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fulfillmentd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var envCfg serverConfig
	if err := envconfig.Process("fulfillment", &envCfg); err != nil {
		return fmt.Errorf("load environment: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := openPersistence(ctx, envCfg)
	if err != nil {
		return err
	}
	defer client.Close()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		return fmt.Errorf("build store factory: %w", err)
	}

	restTransport := transport.NewRESTAdapter(nil)

	vendorConfig := printvendor.Config{
		BaseURL:      envCfg.VendorBaseURL,
		TokenURL:     envCfg.VendorTokenURL,
		ClientID:     envCfg.VendorClientID,
		ClientSecret: envCfg.VendorClientSecret,
	}
	vendorClient := printvendor.NewClient(vendorConfig, restTransport, nil)

	cfg := core.DefaultConfig()
	cfg.Webhook.StorefrontSecret = envCfg.StorefrontWebhookSecret
	cfg.Webhook.VendorSecret = envCfg.VendorWebhookSecret
	cfg.Queue.BatchSize = envCfg.QueueBatchSize
	cfg.Queue.MaxAttempts = envCfg.QueueMaxAttempts
	cfg.Queue.Parallelism = envCfg.QueueParallelism
	cfg.Vendor.BaseURL = envCfg.VendorBaseURL
	cfg.Vendor.TokenURL = envCfg.VendorTokenURL
	cfg.Vendor.ClientID = envCfg.VendorClientID
	cfg.Vendor.ClientSecret = envCfg.VendorClientSecret
	cfg.Proxy.AllowedPrefixes = envCfg.ProxyAllowedPrefixes
	cfg.Proxy.RateLimit = envCfg.ProxyRateLimit
	cfg.Proxy.RateWindow = envCfg.ProxyRateWindow

	_, logger := glog.Resolve(cfg.ServiceName, nil, nil)
	logger = glog.Ensure(logger)

	var mailer core.Mailer = notify.NewLogMailer(logger)
	if strings.TrimSpace(envCfg.MailAPIURL) != "" {
		mailer = notify.NewMailer(envCfg.MailAPIURL, envCfg.MailAPIKey, envCfg.MailFrom, restTransport)
	}

	service, err := core.NewService(cfg,
		core.WithLogger(logger),
		core.WithRepositoryFactory(factory),
		core.WithVendorClient(vendorClient),
		core.WithBookContentSource(bookshelf.NewSource(envCfg.ContentAPIURL, restTransport)),
		core.WithMailer(mailer),
	)
	if err != nil {
		return fmt.Errorf("build service: %w", err)
	}

	dispatcher, err := core.NewDispatcher(service)
	if err != nil {
		return fmt.Errorf("build dispatcher: %w", err)
	}

	receiver := webhooks.NewReceiver(factory.WebhookLogStore(), logger)
	if err := receiver.Register(storefront.NewEndpoint(service, envCfg.StorefrontWebhookSecret)); err != nil {
		return fmt.Errorf("register storefront endpoint: %w", err)
	}
	if err := receiver.Register(printvendor.NewEndpoint(service, envCfg.VendorWebhookSecret)); err != nil {
		return fmt.Errorf("register vendor endpoint: %w", err)
	}

	cacheConfig := repositorycache.DefaultConfig()
	cacheConfig.TTL = envCfg.ProxyRateWindow
	cacheService, err := repositorycache.NewCacheService(cacheConfig)
	if err != nil {
		return fmt.Errorf("build rate limit cache: %w", err)
	}
	rateLimitStore, err := sqlstore.NewCachedRateLimitStateStore(factory.RateLimitStateStore(), cacheService)
	if err != nil {
		return fmt.Errorf("build rate limit store: %w", err)
	}
	limiter := ratelimit.NewWindowPolicy(rateLimitStore, envCfg.ProxyRateLimit, envCfg.ProxyRateWindow)
	forwarder := &proxy.Forwarder{
		Verifier:        proxy.NewStaticTokenVerifier(envCfg.ProxyTokens),
		Credentials:     printvendor.NewTokenSource(vendorConfig, restTransport),
		Transport:       restTransport,
		Limiter:         limiter,
		Audit:           factory.ProxyLogStore(),
		Logger:          logger,
		BaseURL:         envCfg.VendorBaseURL,
		AllowedPrefixes: envCfg.ProxyAllowedPrefixes,
	}

	router := buildRouter(service, dispatcher, receiver, forwarder, client)

	server := &http.Server{
		Addr:              envCfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("http server listening", "addr", envCfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	group.Go(func() error {
		ticker := time.NewTicker(envCfg.DispatchInterval)
		defer ticker.Stop()
		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				stats, err := dispatcher.Run(groupCtx)
				if err != nil {
					logger.Error("dispatch run failed", "error", err.Error())
					continue
				}
				if stats.Claimed > 0 {
					logger.Info(stats.Summary())
				}
			}
		}
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

func openPersistence(ctx context.Context, envCfg serverConfig) (*persistence.Client, error) {
	var dialect schema.Dialect
	var validationTarget string
	switch strings.TrimSpace(envCfg.DBDriver) {
	case "postgres":
		dialect = pgdialect.New()
		validationTarget = fulfillmentmigrations.DialectPostgres
	case "sqlite3", "sqlite":
		envCfg.DBDriver = "sqlite3"
		dialect = sqlitedialect.New()
		validationTarget = fulfillmentmigrations.DialectSQLite
	default:
		return nil, fmt.Errorf("unsupported db driver %q", envCfg.DBDriver)
	}

	sqlDB, err := sql.Open(envCfg.DBDriver, envCfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	client, err := persistence.New(persistenceConfig{
		driver:      envCfg.DBDriver,
		server:      envCfg.DBDSN,
		debug:       envCfg.DBDebug,
		pingTimeout: envCfg.PingTimeout,
	}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("new persistence client: %w", err)
	}

	_, err = fulfillmentmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != validationTarget {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, fulfillmentmigrations.WithValidationTargets(validationTarget))
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("register migrations: %w", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return client, nil
}

func buildRouter(
	service *core.Service,
	dispatcher *core.Dispatcher,
	receiver *webhooks.Receiver,
	forwarder *proxy.Forwarder,
	client *persistence.Client,
) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)

	router.Post("/webhook/storefront", webhookHandler(receiver, webhooks.SourceStorefront))
	router.Post("/webhook/vendor", webhookHandler(receiver, webhooks.SourceVendor))

	router.Post("/proxy", proxyHandler(forwarder))

	router.Post("/process", func(w http.ResponseWriter, r *http.Request) {
		stats, err := dispatcher.Run(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintln(w, stats.Summary())
	})

	router.Get("/jobs/dead", func(w http.ResponseWriter, r *http.Request) {
		jobs, err := service.DeadJobs(r.Context(), 50)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, jobs)
	})

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := client.DB().PingContext(pingCtx); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintln(w, "OK")
	})

	return router
}

func webhookHandler(receiver *webhooks.Receiver, source string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
		if err != nil {
			http.Error(w, "read request body", http.StatusBadRequest)
			return
		}
		topic := ""
		if source == webhooks.SourceStorefront {
			topic = r.Header.Get(webhooks.HeaderStorefrontTopic)
		}
		result, _ := receiver.Process(r.Context(), core.InboundRequest{
			Source:  source,
			Topic:   topic,
			Headers: flattenHeader(r.Header),
			Body:    body,
		})
		status := result.StatusCode
		if status == 0 {
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, map[string]any{"accepted": result.Accepted})
	}
}

func proxyHandler(forwarder *proxy.Forwarder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
		if err != nil {
			http.Error(w, "read request body", http.StatusBadRequest)
			return
		}
		var envelope struct {
			Method   string          `json:"method"`
			Endpoint string          `json:"endpoint"`
			Body     json.RawMessage `json:"body"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "malformed proxy request"})
			return
		}
		if strings.TrimSpace(envelope.Endpoint) == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "endpoint is required"})
			return
		}
		response, err := forwarder.Forward(r.Context(), r.Header.Get("Authorization"), proxy.Request{
			Method:   envelope.Method,
			Endpoint: envelope.Endpoint,
			Body:     envelope.Body,
		})
		if err != nil {
			status := http.StatusBadGateway
			if mapped := core.HTTPStatusForError(err); mapped > 0 {
				status = mapped
			}
			writeJSON(w, status, map[string]any{"error": err.Error()})
			return
		}
		for key, value := range response.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(response.StatusCode)
		_, _ = w.Write(response.Body)
	}
}

func flattenHeader(header http.Header) map[string]string {
	out := make(map[string]string, len(header))
	for key, values := range header {
		if len(values) == 0 {
			continue
		}
		out[key] = values[0]
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
