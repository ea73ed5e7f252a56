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

// PrintJobStore persists vendor print jobs. One print job exists per order
// and the vendor job id is written once at creation, never rewritten.
type PrintJobStore struct {
	db   *bun.DB
	repo repository.Repository[*printJobRecord]
	now  func() time.Time
}

func NewPrintJobStore(db *bun.DB) (*PrintJobStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*printJobRecord](db, printJobHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid print job repository wiring: %w", err)
		}
	}
	return &PrintJobStore{
		db:   db,
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *PrintJobStore) Create(ctx context.Context, job core.PrintJob) (core.PrintJob, error) {
	if s == nil || s.db == nil {
		return core.PrintJob{}, fmt.Errorf("sqlstore: print job store is not configured")
	}
	orderID := strings.TrimSpace(job.OrderID)
	if orderID == "" {
		return core.PrintJob{}, fmt.Errorf("sqlstore: print job order id is required")
	}
	vendorJobID := strings.TrimSpace(job.VendorJobID)
	if vendorJobID == "" {
		return core.PrintJob{}, fmt.Errorf("sqlstore: vendor job id is required")
	}

	status := job.Status
	if status == "" {
		status = core.PrintJobStatusCreated
	}
	now := s.now()
	record := &printJobRecord{
		ID:             uuid.NewString(),
		OrderID:        orderID,
		VendorJobID:    vendorJobID,
		Status:         string(status),
		TrackingNumber: strings.TrimSpace(job.TrackingNumber),
		TrackingURL:    strings.TrimSpace(job.TrackingURL),
		LastPayload:    copyAnyMap(job.LastPayload),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if job.EstimatedDelivery != nil {
		estimated := job.EstimatedDelivery.UTC()
		record.EstimatedDelivery = &estimated
	}

	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return core.PrintJob{}, fmt.Errorf("%w: order %s", core.ErrPrintJobAlreadyExists, orderID)
		}
		return core.PrintJob{}, err
	}
	return printJobRecordToDomain(*record), nil
}

func (s *PrintJobStore) GetByOrderID(ctx context.Context, orderID string) (core.PrintJob, error) {
	return s.getWhere(ctx, "order_id = ?", strings.TrimSpace(orderID))
}

func (s *PrintJobStore) GetByVendorJobID(ctx context.Context, vendorJobID string) (core.PrintJob, error) {
	return s.getWhere(ctx, "vendor_job_id = ?", strings.TrimSpace(vendorJobID))
}

func (s *PrintJobStore) getWhere(ctx context.Context, clause string, value string) (core.PrintJob, error) {
	if s == nil || s.db == nil {
		return core.PrintJob{}, fmt.Errorf("sqlstore: print job store is not configured")
	}
	if value == "" {
		return core.PrintJob{}, core.ErrPrintJobNotFound
	}
	var record printJobRecord
	err := s.db.NewSelect().
		Model(&record).
		Where(clause, value).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return core.PrintJob{}, core.ErrPrintJobNotFound
	}
	if err != nil {
		return core.PrintJob{}, err
	}
	return printJobRecordToDomain(record), nil
}

// ApplyVendorUpdate writes the derived status and any tracking detail the
// callback carried onto the print job matching the vendor job id.
func (s *PrintJobStore) ApplyVendorUpdate(ctx context.Context, in core.VendorUpdateInput) (core.PrintJob, error) {
	if s == nil || s.db == nil {
		return core.PrintJob{}, fmt.Errorf("sqlstore: print job store is not configured")
	}
	vendorJobID := strings.TrimSpace(in.VendorJobID)
	if vendorJobID == "" {
		return core.PrintJob{}, core.ErrPrintJobNotFound
	}

	now := s.now()
	query := s.db.NewUpdate().
		Model((*printJobRecord)(nil)).
		Set("status = ?", string(in.Status)).
		Set("updated_at = ?", now).
		Where("vendor_job_id = ?", vendorJobID).
		Where("status <> ?", string(core.PrintJobStatusCancelled))
	if value := strings.TrimSpace(in.TrackingNumber); value != "" {
		query = query.Set("tracking_number = ?", value)
	}
	if value := strings.TrimSpace(in.TrackingURL); value != "" {
		query = query.Set("tracking_url = ?", value)
	}
	if in.EstimatedDelivery != nil {
		estimated := in.EstimatedDelivery.UTC()
		query = query.Set("estimated_delivery = ?", estimated)
	}
	if len(in.Payload) > 0 {
		query = query.Set("last_payload = ?", copyAnyMap(in.Payload))
	}

	if _, err := query.Exec(ctx); err != nil {
		return core.PrintJob{}, err
	}
	// Cancelled is terminal, so the update skips cancelled rows and a late
	// callback for one is absorbed: the stored row wins. A read-back of zero
	// rows still surfaces ErrPrintJobNotFound for unknown vendor job ids.
	return s.GetByVendorJobID(ctx, vendorJobID)
}

func (s *PrintJobStore) MarkCancelled(ctx context.Context, orderID string) (core.PrintJob, error) {
	if s == nil || s.db == nil {
		return core.PrintJob{}, fmt.Errorf("sqlstore: print job store is not configured")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return core.PrintJob{}, core.ErrPrintJobNotFound
	}

	result, err := s.db.NewUpdate().
		Model((*printJobRecord)(nil)).
		Set("status = ?", string(core.PrintJobStatusCancelled)).
		Set("updated_at = ?", s.now()).
		Where("order_id = ?", orderID).
		Exec(ctx)
	if err != nil {
		return core.PrintJob{}, err
	}
	if affected, raErr := result.RowsAffected(); raErr == nil && affected == 0 {
		return core.PrintJob{}, fmt.Errorf("%w: order %s", core.ErrPrintJobNotFound, orderID)
	}
	return s.GetByOrderID(ctx, orderID)
}

func printJobRecordToDomain(record printJobRecord) core.PrintJob {
	job := core.PrintJob{
		ID:             record.ID,
		OrderID:        record.OrderID,
		VendorJobID:    record.VendorJobID,
		Status:         core.PrintJobStatus(record.Status),
		TrackingNumber: record.TrackingNumber,
		TrackingURL:    record.TrackingURL,
		LastPayload:    copyAnyMap(record.LastPayload),
		CreatedAt:      record.CreatedAt,
		UpdatedAt:      record.UpdatedAt,
	}
	if record.EstimatedDelivery != nil {
		estimated := record.EstimatedDelivery.UTC()
		job.EstimatedDelivery = &estimated
	}
	return job
}

var _ core.PrintJobStore = (*PrintJobStore)(nil)
