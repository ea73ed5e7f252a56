package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

var testClock = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type memOrderStore struct {
	mu     sync.Mutex
	orders map[string]Order
	byExt  map[string]string
	nextID int
	now    func() time.Time
}

func newMemOrderStore() *memOrderStore {
	return &memOrderStore{
		orders: map[string]Order{},
		byExt:  map[string]string{},
		now:    func() time.Time { return testClock },
	}
}

func (s *memOrderStore) Upsert(_ context.Context, in UpsertOrderInput) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byExt[in.ExternalID]; ok {
		order := s.orders[id]
		applyUpsert(&order, in)
		order.UpdatedAt = s.now()
		s.orders[id] = order
		return order, nil
	}
	s.nextID++
	order := Order{
		ID:         fmt.Sprintf("order-%d", s.nextID),
		ExternalID: in.ExternalID,
		Status:     OrderStatusPending,
		CreatedAt:  s.now(),
		UpdatedAt:  s.now(),
	}
	applyUpsert(&order, in)
	s.orders[order.ID] = order
	s.byExt[in.ExternalID] = order.ID
	return order, nil
}

func applyUpsert(order *Order, in UpsertOrderInput) {
	if in.OrderNumber != "" {
		order.OrderNumber = in.OrderNumber
	}
	if in.CustomerEmail != "" {
		order.CustomerEmail = in.CustomerEmail
	}
	if in.CustomerName != "" {
		order.CustomerName = in.CustomerName
	}
	if in.TotalAmount != "" {
		order.TotalAmount = in.TotalAmount
	}
	if in.Currency != "" {
		order.Currency = in.Currency
	}
	if in.FinancialStatus != "" {
		order.FinancialStatus = in.FinancialStatus
	}
	if in.FulfillmentStatus != "" {
		order.FulfillmentStatus = in.FulfillmentStatus
	}
	if len(in.Payload) > 0 {
		order.LastPayload = in.Payload
	}
}

func (s *memOrderStore) Get(_ context.Context, id string) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return order, nil
}

func (s *memOrderStore) GetByExternalID(_ context.Context, externalID string) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byExt[externalID]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return s.orders[id], nil
}

func (s *memOrderStore) Transition(_ context.Context, id string, next OrderStatus) (Order, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return Order{}, false, ErrOrderNotFound
	}
	changed, err := order.TransitionTo(next, s.now())
	if err != nil {
		// The stored row wins on a regression.
		return s.orders[id], false, nil
	}
	if changed {
		s.orders[id] = order
	}
	return order, changed, nil
}

func (s *memOrderStore) SetTracking(_ context.Context, id string, trackingNumber, trackingURL string, estimatedDelivery *time.Time) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	if trackingNumber != "" {
		order.TrackingNumber = trackingNumber
	}
	if trackingURL != "" {
		order.TrackingURL = trackingURL
	}
	if estimatedDelivery != nil {
		order.EstimatedDelivery = estimatedDelivery
	}
	order.UpdatedAt = s.now()
	s.orders[id] = order
	return order, nil
}

type memPrintJobStore struct {
	mu       sync.Mutex
	byOrder  map[string]PrintJob
	byVendor map[string]string
	nextID   int
	now      func() time.Time
}

func newMemPrintJobStore() *memPrintJobStore {
	return &memPrintJobStore{
		byOrder:  map[string]PrintJob{},
		byVendor: map[string]string{},
		now:      func() time.Time { return testClock },
	}
}

func (s *memPrintJobStore) Create(_ context.Context, job PrintJob) (PrintJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byOrder[job.OrderID]; exists {
		return PrintJob{}, fmt.Errorf("%w: order %s", ErrPrintJobAlreadyExists, job.OrderID)
	}
	s.nextID++
	if job.ID == "" {
		job.ID = fmt.Sprintf("print-job-%d", s.nextID)
	}
	if job.Status == "" {
		job.Status = PrintJobStatusCreated
	}
	job.CreatedAt = s.now()
	job.UpdatedAt = s.now()
	s.byOrder[job.OrderID] = job
	if job.VendorJobID != "" {
		s.byVendor[job.VendorJobID] = job.OrderID
	}
	return job, nil
}

func (s *memPrintJobStore) GetByOrderID(_ context.Context, orderID string) (PrintJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.byOrder[orderID]
	if !ok {
		return PrintJob{}, ErrPrintJobNotFound
	}
	return job, nil
}

func (s *memPrintJobStore) GetByVendorJobID(_ context.Context, vendorJobID string) (PrintJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	orderID, ok := s.byVendor[vendorJobID]
	if !ok {
		return PrintJob{}, ErrPrintJobNotFound
	}
	return s.byOrder[orderID], nil
}

func (s *memPrintJobStore) ApplyVendorUpdate(_ context.Context, in VendorUpdateInput) (PrintJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	orderID, ok := s.byVendor[in.VendorJobID]
	if !ok {
		return PrintJob{}, ErrPrintJobNotFound
	}
	job := s.byOrder[orderID]
	job.Status = in.Status
	if in.TrackingNumber != "" {
		job.TrackingNumber = in.TrackingNumber
	}
	if in.TrackingURL != "" {
		job.TrackingURL = in.TrackingURL
	}
	if in.EstimatedDelivery != nil {
		job.EstimatedDelivery = in.EstimatedDelivery
	}
	if len(in.Payload) > 0 {
		job.LastPayload = in.Payload
	}
	job.UpdatedAt = s.now()
	s.byOrder[orderID] = job
	return job, nil
}

func (s *memPrintJobStore) MarkCancelled(_ context.Context, orderID string) (PrintJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.byOrder[orderID]
	if !ok {
		return PrintJob{}, ErrPrintJobNotFound
	}
	job.Status = PrintJobStatusCancelled
	job.UpdatedAt = s.now()
	s.byOrder[orderID] = job
	return job, nil
}

type memJobQueue struct {
	mu     sync.Mutex
	jobs   []Job
	nextID int
	now    func() time.Time
}

func newMemJobQueue() *memJobQueue {
	return &memJobQueue{now: func() time.Time { return testClock }}
}

func (q *memJobQueue) Enqueue(_ context.Context, in EnqueueJobInput) (Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, err := ParseJobType(string(in.Type)); err != nil {
		return Job{}, err
	}
	q.nextID++
	scheduledAt := in.ScheduledAt
	if scheduledAt.IsZero() {
		scheduledAt = q.now()
	}
	job := Job{
		ID:          fmt.Sprintf("job-%d", q.nextID),
		Type:        in.Type,
		OrderID:     in.OrderID,
		Status:      JobStatusPending,
		MaxAttempts: DefaultJobMaxAttempts,
		Payload:     in.Payload,
		ScheduledAt: scheduledAt,
		CreatedAt:   q.now(),
		UpdatedAt:   q.now(),
	}
	q.jobs = append(q.jobs, job)
	return job, nil
}

func (q *memJobQueue) ClaimBatch(_ context.Context, limit int) ([]Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	busyOrders := map[string]bool{}
	for _, job := range q.jobs {
		if job.Status == JobStatusProcessing && job.OrderID != "" {
			busyOrders[job.OrderID] = true
		}
	}
	var claimed []Job
	for i := range q.jobs {
		if len(claimed) >= limit {
			break
		}
		job := q.jobs[i]
		if job.Status != JobStatusPending || job.ScheduledAt.After(q.now()) {
			continue
		}
		if job.OrderID != "" && busyOrders[job.OrderID] {
			continue
		}
		q.jobs[i].Status = JobStatusProcessing
		q.jobs[i].UpdatedAt = q.now()
		if job.OrderID != "" {
			busyOrders[job.OrderID] = true
		}
		claimed = append(claimed, q.jobs[i])
	}
	return claimed, nil
}

func (q *memJobQueue) MarkCompleted(_ context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.jobs {
		if q.jobs[i].ID == jobID && q.jobs[i].Status == JobStatusProcessing {
			processedAt := q.now()
			q.jobs[i].Status = JobStatusCompleted
			q.jobs[i].ProcessedAt = &processedAt
			q.jobs[i].UpdatedAt = processedAt
			return nil
		}
	}
	return ErrJobNotFound
}

func (q *memJobQueue) MarkFailed(_ context.Context, jobID string, cause error, nextAttemptAt time.Time, maxAttempts int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if maxAttempts <= 0 {
		maxAttempts = DefaultJobMaxAttempts
	}
	for i := range q.jobs {
		if q.jobs[i].ID != jobID || q.jobs[i].Status != JobStatusProcessing {
			continue
		}
		q.jobs[i].Attempts++
		if cause != nil {
			q.jobs[i].LastError = cause.Error()
		}
		if q.jobs[i].Attempts >= maxAttempts {
			q.jobs[i].Status = JobStatusDead
		} else {
			q.jobs[i].Status = JobStatusPending
			q.jobs[i].ScheduledAt = nextAttemptAt
		}
		q.jobs[i].UpdatedAt = q.now()
		return nil
	}
	return ErrJobNotFound
}

func (q *memJobQueue) ListDead(_ context.Context, limit int) ([]Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var dead []Job
	for _, job := range q.jobs {
		if job.Status == JobStatusDead {
			dead = append(dead, job)
		}
		if limit > 0 && len(dead) >= limit {
			break
		}
	}
	return dead, nil
}

func (q *memJobQueue) find(jobID string) (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, job := range q.jobs {
		if job.ID == jobID {
			return job, true
		}
	}
	return Job{}, false
}

func (q *memJobQueue) countByType(jobType JobType) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	count := 0
	for _, job := range q.jobs {
		if job.Type == jobType {
			count++
		}
	}
	return count
}

type stubVendorClient struct {
	mu         sync.Mutex
	created    []CreatePrintJobRequest
	cancelled  []string
	createErr  error
	cancelErr  error
	nextNumber int
	status     string
}

func (c *stubVendorClient) CreatePrintJob(_ context.Context, req CreatePrintJobRequest) (VendorPrintJob, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.createErr != nil {
		return VendorPrintJob{}, c.createErr
	}
	c.nextNumber++
	c.created = append(c.created, req)
	status := c.status
	if status == "" {
		status = VendorStatusCreated
	}
	return VendorPrintJob{VendorJobID: fmt.Sprintf("vendor-%d", c.nextNumber), Status: status}, nil
}

func (c *stubVendorClient) CancelPrintJob(_ context.Context, vendorJobID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelErr != nil {
		return c.cancelErr
	}
	c.cancelled = append(c.cancelled, vendorJobID)
	return nil
}

type stubContentSource struct {
	content BookContent
	err     error
}

func (s *stubContentSource) BookContent(context.Context, string) (BookContent, error) {
	if s.err != nil {
		return BookContent{}, s.err
	}
	return s.content, nil
}

type captureMailer struct {
	mu   sync.Mutex
	sent []StatusNotification
	err  error
}

func (m *captureMailer) SendStatusNotification(_ context.Context, notification StatusNotification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, notification)
	return nil
}

type testEnv struct {
	service   *Service
	orders    *memOrderStore
	printJobs *memPrintJobStore
	queue     *memJobQueue
	vendor    *stubVendorClient
	content   *stubContentSource
	mailer    *captureMailer
}

func newTestEnv(t *testing.T, extra ...Option) *testEnv {
	t.Helper()
	env := &testEnv{
		orders:    newMemOrderStore(),
		printJobs: newMemPrintJobStore(),
		queue:     newMemJobQueue(),
		vendor:    &stubVendorClient{},
		content: &stubContentSource{content: BookContent{
			Pages:       make([]BookPage, 20),
			InteriorURL: "https://cdn.example.com/interior.pdf",
			CoverURL:    "https://cdn.example.com/cover.pdf",
		}},
		mailer: &captureMailer{},
	}
	options := []Option{
		WithOrderStore(env.orders),
		WithPrintJobStore(env.printJobs),
		WithJobQueue(env.queue),
		WithVendorClient(env.vendor),
		WithBookContentSource(env.content),
		WithMailer(env.mailer),
		WithNow(func() time.Time { return testClock }),
	}
	options = append(options, extra...)
	service, err := NewService(DefaultConfig(), options...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	env.service = service
	return env
}

func (e *testEnv) createOrder(t *testing.T, externalID string, status OrderStatus) Order {
	t.Helper()
	order, err := e.orders.Upsert(context.Background(), UpsertOrderInput{
		ExternalID:    externalID,
		OrderNumber:   "#" + externalID,
		CustomerEmail: "parent@example.com",
		CustomerName:  "Jordan Reed",
	})
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}
	if status != OrderStatusPending {
		e.orders.mu.Lock()
		order.Status = status
		e.orders.orders[order.ID] = order
		e.orders.mu.Unlock()
	}
	return order
}
