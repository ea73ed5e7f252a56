package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-fulfillment/core"
)

var ErrStateNotFound = errors.New("ratelimit: state not found")

// Key identifies one counting bucket: the authenticated caller plus an
// optional bucket discriminator.
type Key struct {
	CallerID string
	Bucket   string
}

type State struct {
	Key         Key
	WindowStart time.Time
	Count       int
	UpdatedAt   time.Time
}

type StateStore interface {
	Get(ctx context.Context, key Key) (State, error)
	Upsert(ctx context.Context, state State) error
}

type ThrottledError struct {
	CallerID   string
	Bucket     string
	RetryAfter time.Duration
}

func (e ThrottledError) Error() string {
	return fmt.Sprintf(
		"ratelimit: caller %q bucket %q throttled for %s",
		strings.TrimSpace(e.CallerID),
		strings.TrimSpace(e.Bucket),
		e.RetryAfter,
	)
}

func (e ThrottledError) ToFulfillmentError() *goerrors.Error {
	metadata := map[string]any{
		"caller_id": strings.TrimSpace(e.CallerID),
		"bucket":    strings.TrimSpace(e.Bucket),
	}
	if e.RetryAfter > 0 {
		metadata["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	return goerrors.New(e.Error(), goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(core.FulfillmentErrorRateLimited).
		WithMetadata(metadata)
}

// WindowPolicy counts calls per key over a fixed window. The count resets
// when the window elapses; a call past the limit is rejected with the time
// until the window rolls over.
type WindowPolicy struct {
	Store  StateStore
	Limit  int
	Window time.Duration
	Now    func() time.Time
}

func NewWindowPolicy(store StateStore, limit int, window time.Duration) *WindowPolicy {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &WindowPolicy{
		Store:  store,
		Limit:  limit,
		Window: window,
		Now:    func() time.Time { return time.Now().UTC() },
	}
}

func (p *WindowPolicy) Allow(ctx context.Context, key Key) error {
	if p == nil || p.Store == nil {
		return nil
	}
	key = normalizeKey(key)
	if key.CallerID == "" {
		return fmt.Errorf("ratelimit: caller id is required")
	}

	now := p.now()
	state, err := p.Store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrStateNotFound) {
			return err
		}
		state = State{Key: key, WindowStart: now}
	}
	if state.WindowStart.IsZero() || !now.Before(state.WindowStart.Add(p.Window)) {
		state.WindowStart = now
		state.Count = 0
	}
	if state.Count >= p.Limit {
		return ThrottledError{
			CallerID:   key.CallerID,
			Bucket:     key.Bucket,
			RetryAfter: state.WindowStart.Add(p.Window).Sub(now),
		}
	}
	state.Count++
	state.UpdatedAt = now
	return p.Store.Upsert(ctx, state)
}

func (p *WindowPolicy) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func normalizeKey(key Key) Key {
	key.CallerID = strings.TrimSpace(key.CallerID)
	key.Bucket = strings.TrimSpace(key.Bucket)
	if key.Bucket == "" {
		key.Bucket = "default"
	}
	return key
}

// MemoryStateStore is the in-process store used by tests and single-node
// deployments.
type MemoryStateStore struct {
	mu     sync.Mutex
	states map[Key]State
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: map[Key]State{}}
}

func (s *MemoryStateStore) Get(_ context.Context, key Key) (State, error) {
	if s == nil {
		return State{}, ErrStateNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[normalizeKey(key)]
	if !ok {
		return State{}, ErrStateNotFound
	}
	return state, nil
}

func (s *MemoryStateStore) Upsert(_ context.Context, state State) error {
	if s == nil {
		return fmt.Errorf("ratelimit: memory state store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	state.Key = normalizeKey(state.Key)
	s.states[state.Key] = state
	return nil
}

var _ StateStore = (*MemoryStateStore)(nil)
