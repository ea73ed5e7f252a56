package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-fulfillment/ratelimit"
)

// RateLimitStateStore persists per-caller window counters so limits hold
// across restarts and instances.
type RateLimitStateStore struct {
	db  *bun.DB
	now func() time.Time
}

func NewRateLimitStateStore(db *bun.DB) (*RateLimitStateStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &RateLimitStateStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *RateLimitStateStore) Get(ctx context.Context, key ratelimit.Key) (ratelimit.State, error) {
	if s == nil || s.db == nil {
		return ratelimit.State{}, fmt.Errorf("sqlstore: rate limit state store is not configured")
	}
	callerID := strings.TrimSpace(key.CallerID)
	bucket := strings.TrimSpace(key.Bucket)
	if callerID == "" {
		return ratelimit.State{}, ratelimit.ErrStateNotFound
	}

	var record rateLimitStateRecord
	err := s.db.NewSelect().
		Model(&record).
		Where("caller_id = ?", callerID).
		Where("bucket = ?", bucket).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return ratelimit.State{}, ratelimit.ErrStateNotFound
	}
	if err != nil {
		return ratelimit.State{}, err
	}
	return ratelimit.State{
		Key:         ratelimit.Key{CallerID: record.CallerID, Bucket: record.Bucket},
		WindowStart: record.WindowStart,
		Count:       record.Count,
		UpdatedAt:   record.UpdatedAt,
	}, nil
}

func (s *RateLimitStateStore) Upsert(ctx context.Context, state ratelimit.State) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: rate limit state store is not configured")
	}
	callerID := strings.TrimSpace(state.Key.CallerID)
	bucket := strings.TrimSpace(state.Key.Bucket)
	if callerID == "" {
		return fmt.Errorf("sqlstore: rate limit caller id is required")
	}

	updatedAt := state.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = s.now()
	}
	record := &rateLimitStateRecord{
		ID:          uuid.NewString(),
		CallerID:    callerID,
		Bucket:      bucket,
		WindowStart: state.WindowStart.UTC(),
		Count:       state.Count,
		UpdatedAt:   updatedAt,
	}
	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (caller_id, bucket) DO UPDATE").
		Set("window_start = EXCLUDED.window_start").
		Set("count = EXCLUDED.count").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

var _ ratelimit.StateStore = (*RateLimitStateStore)(nil)
