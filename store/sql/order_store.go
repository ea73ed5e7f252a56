package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-fulfillment/core"
)

// OrderStore persists fulfillment orders. Rows are keyed internally by uuid
// and externally by the storefront order id, which carries a unique index so
// redelivered webhooks converge on one row.
type OrderStore struct {
	db   *bun.DB
	repo repository.Repository[*orderRecord]
	now  func() time.Time
}

func NewOrderStore(db *bun.DB) (*OrderStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*orderRecord](db, orderHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid order repository wiring: %w", err)
		}
	}
	return &OrderStore{
		db:   db,
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *OrderStore) Upsert(ctx context.Context, in core.UpsertOrderInput) (core.Order, error) {
	if s == nil || s.db == nil {
		return core.Order{}, fmt.Errorf("sqlstore: order store is not configured")
	}
	externalID := strings.TrimSpace(in.ExternalID)
	if externalID == "" {
		return core.Order{}, fmt.Errorf("sqlstore: order external id is required")
	}

	now := s.now()
	var record orderRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		selectErr := tx.NewSelect().
			Model(&record).
			Where("external_id = ?", externalID).
			Limit(1).
			Scan(ctx)
		if selectErr != nil && !errors.Is(selectErr, sql.ErrNoRows) {
			return selectErr
		}

		if errors.Is(selectErr, sql.ErrNoRows) {
			record = orderRecord{
				ID:                uuid.NewString(),
				ExternalID:        externalID,
				Status:            string(core.OrderStatusPending),
				LastPayload:       copyAnyMap(in.Payload),
				CreatedAt:         now,
				UpdatedAt:         now,
			}
			applyOrderInput(&record, in)
			_, insertErr := tx.NewInsert().Model(&record).Exec(ctx)
			return insertErr
		}

		applyOrderInput(&record, in)
		if len(in.Payload) > 0 {
			record.LastPayload = copyAnyMap(in.Payload)
		}
		record.UpdatedAt = now
		_, updateErr := tx.NewUpdate().
			Model(&record).
			WherePK().
			Exec(ctx)
		return updateErr
	})
	if err != nil {
		return core.Order{}, err
	}
	return orderRecordToDomain(record), nil
}

func applyOrderInput(record *orderRecord, in core.UpsertOrderInput) {
	if value := strings.TrimSpace(in.OrderNumber); value != "" {
		record.OrderNumber = value
	}
	if value := strings.TrimSpace(in.CustomerEmail); value != "" {
		record.CustomerEmail = value
	}
	if value := strings.TrimSpace(in.CustomerName); value != "" {
		record.CustomerName = value
	}
	if value := strings.TrimSpace(in.TotalAmount); value != "" {
		record.TotalAmount = value
	}
	if value := strings.TrimSpace(in.Currency); value != "" {
		record.Currency = value
	}
	if value := strings.TrimSpace(in.FinancialStatus); value != "" {
		record.FinancialStatus = value
	}
	if value := strings.TrimSpace(in.FulfillmentStatus); value != "" {
		record.FulfillmentStatus = value
	}
	if record.LastPayload == nil {
		record.LastPayload = map[string]any{}
	}
}

func (s *OrderStore) Get(ctx context.Context, id string) (core.Order, error) {
	return s.getWhere(ctx, "id = ?", strings.TrimSpace(id))
}

func (s *OrderStore) GetByExternalID(ctx context.Context, externalID string) (core.Order, error) {
	return s.getWhere(ctx, "external_id = ?", strings.TrimSpace(externalID))
}

func (s *OrderStore) getWhere(ctx context.Context, clause string, value string) (core.Order, error) {
	if s == nil || s.db == nil {
		return core.Order{}, fmt.Errorf("sqlstore: order store is not configured")
	}
	if value == "" {
		return core.Order{}, core.ErrOrderNotFound
	}
	var record orderRecord
	err := s.db.NewSelect().
		Model(&record).
		Where(clause, value).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Order{}, core.ErrOrderNotFound
	}
	if err != nil {
		return core.Order{}, err
	}
	return orderRecordToDomain(record), nil
}

// Transition applies the forward-only status rule inside a transaction. A
// regressive move is absorbed: the stored order is returned unchanged with
// changed=false.
func (s *OrderStore) Transition(ctx context.Context, id string, next core.OrderStatus) (core.Order, bool, error) {
	if s == nil || s.db == nil {
		return core.Order{}, false, fmt.Errorf("sqlstore: order store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.Order{}, false, core.ErrOrderNotFound
	}

	now := s.now()
	var record orderRecord
	changed := false
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		selectErr := tx.NewSelect().
			Model(&record).
			Where("id = ?", id).
			Limit(1).
			Scan(ctx)
		if errors.Is(selectErr, sql.ErrNoRows) {
			return core.ErrOrderNotFound
		}
		if selectErr != nil {
			return selectErr
		}

		order := orderRecordToDomain(record)
		previous := order.Status
		moved, transitionErr := order.TransitionTo(next, now)
		if transitionErr != nil {
			if errors.Is(transitionErr, core.ErrOrderStatusRegression) {
				return nil
			}
			return transitionErr
		}
		if !moved {
			return nil
		}

		result, updateErr := tx.NewUpdate().
			Model((*orderRecord)(nil)).
			Set("status = ?", string(order.Status)).
			Set("updated_at = ?", now).
			Where("id = ?", id).
			Where("status = ?", string(previous)).
			Exec(ctx)
		if updateErr != nil {
			return updateErr
		}
		if affected, raErr := result.RowsAffected(); raErr == nil && affected == 0 {
			// Lost the race to a concurrent transition; the stored row wins.
			return tx.NewSelect().
				Model(&record).
				Where("id = ?", id).
				Limit(1).
				Scan(ctx)
		}
		record.Status = string(order.Status)
		record.UpdatedAt = now
		changed = true
		return nil
	})
	if err != nil {
		return core.Order{}, false, err
	}
	return orderRecordToDomain(record), changed, nil
}

func (s *OrderStore) SetTracking(
	ctx context.Context,
	id string,
	trackingNumber string,
	trackingURL string,
	estimatedDelivery *time.Time,
) (core.Order, error) {
	if s == nil || s.db == nil {
		return core.Order{}, fmt.Errorf("sqlstore: order store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.Order{}, core.ErrOrderNotFound
	}

	now := s.now()
	query := s.db.NewUpdate().
		Model((*orderRecord)(nil)).
		Set("updated_at = ?", now).
		Where("id = ?", id)
	if value := strings.TrimSpace(trackingNumber); value != "" {
		query = query.Set("tracking_number = ?", value)
	}
	if value := strings.TrimSpace(trackingURL); value != "" {
		query = query.Set("tracking_url = ?", value)
	}
	if estimatedDelivery != nil {
		estimated := estimatedDelivery.UTC()
		query = query.Set("estimated_delivery = ?", estimated)
	}
	result, err := query.Exec(ctx)
	if err != nil {
		return core.Order{}, err
	}
	if affected, raErr := result.RowsAffected(); raErr == nil && affected == 0 {
		return core.Order{}, core.ErrOrderNotFound
	}
	return s.Get(ctx, id)
}

func orderRecordToDomain(record orderRecord) core.Order {
	order := core.Order{
		ID:                record.ID,
		ExternalID:        record.ExternalID,
		OrderNumber:       record.OrderNumber,
		CustomerEmail:     record.CustomerEmail,
		CustomerName:      record.CustomerName,
		TotalAmount:       record.TotalAmount,
		Currency:          record.Currency,
		FinancialStatus:   record.FinancialStatus,
		FulfillmentStatus: record.FulfillmentStatus,
		Status:            core.OrderStatus(record.Status),
		TrackingNumber:    record.TrackingNumber,
		TrackingURL:       record.TrackingURL,
		LastPayload:       copyAnyMap(record.LastPayload),
		CreatedAt:         record.CreatedAt,
		UpdatedAt:         record.UpdatedAt,
	}
	if record.EstimatedDelivery != nil {
		estimated := record.EstimatedDelivery.UTC()
		order.EstimatedDelivery = &estimated
	}
	return order
}

var _ core.OrderStore = (*OrderStore)(nil)
