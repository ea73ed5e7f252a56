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

// WebhookLogStore records one row per inbound delivery, accepted or
// rejected, with the raw payload retained for replay and debugging.
type WebhookLogStore struct {
	db   *bun.DB
	repo repository.Repository[*webhookLogRecord]
	now  func() time.Time
}

func NewWebhookLogStore(db *bun.DB) (*WebhookLogStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*webhookLogRecord](db, webhookLogHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid webhook log repository wiring: %w", err)
		}
	}
	return &WebhookLogStore{
		db:   db,
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *WebhookLogStore) Record(ctx context.Context, entry core.WebhookLogEntry) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: webhook log store is not configured")
	}
	source := strings.TrimSpace(entry.Source)
	if source == "" {
		return fmt.Errorf("sqlstore: webhook log source is required")
	}
	status := entry.Status
	if status == "" {
		status = core.WebhookLogStatusError
	}
	receivedAt := entry.ReceivedAt.UTC()
	if receivedAt.IsZero() {
		receivedAt = s.now()
	}

	record := &webhookLogRecord{
		ID:         uuid.NewString(),
		Source:     source,
		Topic:      strings.TrimSpace(entry.Topic),
		Status:     string(status),
		Error:      strings.TrimSpace(entry.Error),
		Payload:    append([]byte(nil), entry.Payload...),
		ReceivedAt: receivedAt,
		CreatedAt:  s.now(),
	}
	_, err := s.repo.Create(ctx, record)
	return err
}

// ListRecent returns the latest log entries for an operator view.
func (s *WebhookLogStore) ListRecent(ctx context.Context, limit int) ([]core.WebhookLogEntry, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: webhook log store is not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	var records []webhookLogRecord
	err := s.db.NewSelect().
		Model(&records).
		OrderExpr("received_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]core.WebhookLogEntry, 0, len(records))
	for _, record := range records {
		entries = append(entries, core.WebhookLogEntry{
			ID:         record.ID,
			Source:     record.Source,
			Topic:      record.Topic,
			Status:     core.WebhookLogStatus(record.Status),
			Error:      record.Error,
			Payload:    append([]byte(nil), record.Payload...),
			ReceivedAt: record.ReceivedAt,
		})
	}
	return entries, nil
}

var _ core.WebhookLogStore = (*WebhookLogStore)(nil)
