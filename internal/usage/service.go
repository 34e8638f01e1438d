// ABOUTME: Per-connection usage limit service with period rollover and overage mode
// ABOUTME: Validates settings, guards period changes behind confirmation, and logs history

package usage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/chatdesk/internal/store"
)

var (
	// ErrConfirmationRequired is returned when a period change would reset a non-zero counter.
	ErrConfirmationRequired = errors.New("changing the period resets the usage counter; confirmation required")
	// ErrInvalidPeriod is returned for periods other than 30, 90 or 365 days.
	ErrInvalidPeriod = errors.New("period must be 30, 90 or 365 days")
	// ErrInvalidLimit is returned for limits below one.
	ErrInvalidLimit = errors.New("limit must be at least 1")
)

// Default settings reported for connections without a stored limit.
const (
	DefaultLimit      = 1000
	DefaultPeriodDays = 30
)

// ValidPeriod reports whether days is an allowed period length.
func ValidPeriod(days int) bool {
	return days == 30 || days == 90 || days == 365
}

// Settings are the owner-editable fields of a usage limit.
type Settings struct {
	Enabled    bool `json:"enabled"`
	Limit      int  `json:"limit"`
	PeriodDays int  `json:"periodDays"`
	Overage    bool `json:"overage"`
}

// Validate checks the settings.
func (s Settings) Validate() error {
	if !ValidPeriod(s.PeriodDays) {
		return ErrInvalidPeriod
	}
	if s.Limit < 1 {
		return ErrInvalidLimit
	}
	return nil
}

// Decision is the outcome of recording one message.
type Decision struct {
	Allowed bool `json:"allowed"`
	// Overage is set when the message was allowed past the limit.
	Overage bool `json:"overage"`
	// Remaining is the number of messages left in the period, or -1 when unlimited.
	Remaining int `json:"remaining"`
	Used      int `json:"used"`
}

// Service manages connection usage limits.
type Service struct {
	store  store.UsageStore
	now    func() time.Time
	logger *slog.Logger

	// mu serializes read-modify-write cycles on limits.
	mu sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a usage service. Pass nil logger for default.
func NewService(st store.UsageStore, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:  st,
		now:    time.Now,
		logger: logger.With("component", "usage"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the connection's limit. Connections without a stored limit
// get a disabled default that is not persisted.
func (s *Service) Get(ctx context.Context, connectionID string) (*store.UsageLimit, error) {
	limit, err := s.store.GetUsageLimit(ctx, connectionID)
	if errors.Is(err, store.ErrNotFound) {
		now := s.now()
		return &store.UsageLimit{
			ConnectionID: connectionID,
			Limit:        DefaultLimit,
			PeriodDays:   DefaultPeriodDays,
			PeriodStart:  now,
			UpdatedAt:    now,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading usage limit: %w", err)
	}
	return limit, nil
}

// Update applies new settings. Changing the period of a limit whose
// counter is above zero fails with ErrConfirmationRequired unless confirm
// is set; when confirmed the counter and period start are reset.
func (s *Service) Update(ctx context.Context, connectionID string, settings Settings, confirm bool) (*store.UsageLimit, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	limit, err := s.store.GetUsageLimit(ctx, connectionID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		limit = &store.UsageLimit{ConnectionID: connectionID, PeriodStart: now}
	case err != nil:
		return nil, fmt.Errorf("loading usage limit: %w", err)
	case limit.PeriodDays != settings.PeriodDays:
		if limit.UsedCount > 0 && !confirm {
			return nil, ErrConfirmationRequired
		}
		s.logger.Info("usage period changed, counter reset",
			"connection_id", connectionID,
			"from_days", limit.PeriodDays,
			"to_days", settings.PeriodDays,
			"discarded", limit.UsedCount)
		limit.UsedCount = 0
		limit.PeriodStart = now
	}

	limit.Enabled = settings.Enabled
	limit.Limit = settings.Limit
	limit.PeriodDays = settings.PeriodDays
	limit.Overage = settings.Overage
	limit.UpdatedAt = now

	if err := s.store.SaveUsageLimit(ctx, limit); err != nil {
		return nil, fmt.Errorf("saving usage limit: %w", err)
	}
	return limit, nil
}

// Record counts one message against the connection's limit.
// Connections without a stored limit are always allowed and not tracked.
func (s *Service) Record(ctx context.Context, connectionID string) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit, err := s.store.GetUsageLimit(ctx, connectionID)
	if errors.Is(err, store.ErrNotFound) {
		return Decision{Allowed: true, Remaining: -1}, nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("loading usage limit: %w", err)
	}

	now := s.now()
	if !now.Before(limit.PeriodEnd()) {
		s.logger.Debug("usage period rolled over",
			"connection_id", connectionID,
			"previous_count", limit.UsedCount)
		limit.UsedCount = 0
		limit.PeriodStart = now
	}

	var d Decision
	switch {
	case !limit.Enabled:
		limit.UsedCount++
		d = Decision{Allowed: true, Remaining: -1}
	case limit.UsedCount < limit.Limit:
		limit.UsedCount++
		d = Decision{Allowed: true, Remaining: limit.Limit - limit.UsedCount}
	case limit.Overage:
		limit.UsedCount++
		d = Decision{Allowed: true, Overage: true, Remaining: 0}
	default:
		s.logger.Info("usage limit reached", "connection_id", connectionID, "limit", limit.Limit)
		return Decision{Allowed: false, Remaining: 0, Used: limit.UsedCount}, nil
	}
	d.Used = limit.UsedCount
	limit.UpdatedAt = now

	if err := s.store.SaveUsageLimit(ctx, limit); err != nil {
		return Decision{}, fmt.Errorf("saving usage limit: %w", err)
	}
	record := &store.UsageRecord{
		ID:           uuid.New().String(),
		ConnectionID: connectionID,
		Count:        limit.UsedCount,
		Overage:      d.Overage,
		CreatedAt:    now,
	}
	if err := s.store.AddUsageRecord(ctx, record); err != nil {
		return Decision{}, fmt.Errorf("recording usage: %w", err)
	}
	return d, nil
}

// History returns the connection's usage log, newest first.
func (s *Service) History(ctx context.Context, connectionID string, limit int) ([]*store.UsageRecord, error) {
	records, err := s.store.ListUsageRecords(ctx, connectionID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing usage history: %w", err)
	}
	if records == nil {
		records = []*store.UsageRecord{}
	}
	return records, nil
}

// DeleteHistory removes one history entry.
func (s *Service) DeleteHistory(ctx context.Context, recordID string) error {
	return s.store.DeleteUsageRecord(ctx, recordID)
}

// ClearHistory removes a connection's whole log and returns the number of entries removed.
func (s *Service) ClearHistory(ctx context.Context, connectionID string) (int64, error) {
	n, err := s.store.ClearUsageRecords(ctx, connectionID)
	if err != nil {
		return 0, fmt.Errorf("clearing usage history: %w", err)
	}
	s.logger.Info("usage history cleared", "connection_id", connectionID, "removed", n)
	return n, nil
}
