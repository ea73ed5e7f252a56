package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-fulfillment/core"
)

// ProxyLogStore is the audit trail for proxied front-end calls.
type ProxyLogStore struct {
	db   *bun.DB
	repo repository.Repository[*proxyLogRecord]
	now  func() time.Time
}

func NewProxyLogStore(db *bun.DB) (*ProxyLogStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*proxyLogRecord](db, proxyLogHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid proxy log repository wiring: %w", err)
		}
	}
	return &ProxyLogStore{
		db:   db,
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *ProxyLogStore) Record(ctx context.Context, entry core.ProxyLogEntry) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: proxy log store is not configured")
	}
	createdAt := entry.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	record := &proxyLogRecord{
		ID:         uuid.NewString(),
		CallerID:   strings.TrimSpace(entry.CallerID),
		Method:     strings.TrimSpace(entry.Method),
		Endpoint:   strings.TrimSpace(entry.Endpoint),
		StatusCode: entry.StatusCode,
		Success:    entry.Success,
		Error:      strings.TrimSpace(entry.Error),
		CreatedAt:  createdAt,
	}
	_, err := s.repo.Create(ctx, record)
	return err
}

var _ core.ProxyLogStore = (*ProxyLogStore)(nil)
