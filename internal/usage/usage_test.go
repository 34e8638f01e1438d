package usage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chatdesk/internal/dedupe"
	"github.com/2389/chatdesk/internal/store"
	"github.com/2389/chatdesk/internal/widget"
)

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time { return c.t }

func newTestService(t *testing.T) (*Service, *store.MockStore, *testClock) {
	t.Helper()
	st := store.NewMockStore()
	clock := &testClock{t: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)}
	return NewService(st, nil, WithClock(clock.Now)), st, clock
}

func TestSettings_Validate(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		wantErr  error
	}{
		{"valid 30", Settings{Limit: 1, PeriodDays: 30}, nil},
		{"valid 90", Settings{Limit: 100, PeriodDays: 90}, nil},
		{"valid 365", Settings{Limit: 100, PeriodDays: 365}, nil},
		{"bad period", Settings{Limit: 100, PeriodDays: 7}, ErrInvalidPeriod},
		{"zero limit", Settings{Limit: 0, PeriodDays: 30}, ErrInvalidLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.settings.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestService_GetDefault(t *testing.T) {
	svc, _, _ := newTestService(t)
	limit, err := svc.Get(context.Background(), "conn-1")
	require.NoError(t, err)
	assert.False(t, limit.Enabled)
	assert.Equal(t, DefaultLimit, limit.Limit)
	assert.Equal(t, DefaultPeriodDays, limit.PeriodDays)
}

func TestService_UpdateAndRecord(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Update(ctx, "conn-1", Settings{Enabled: true, Limit: 2, PeriodDays: 30}, false)
	require.NoError(t, err)

	d, err := svc.Record(ctx, "conn-1")
	require.NoError(t, err)
	assert.Equal(t, Decision{Allowed: true, Remaining: 1, Used: 1}, d)

	d, err = svc.Record(ctx, "conn-1")
	require.NoError(t, err)
	assert.Equal(t, Decision{Allowed: true, Remaining: 0, Used: 2}, d)

	d, err = svc.Record(ctx, "conn-1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	history, err := svc.History(ctx, "conn-1", 0)
	require.NoError(t, err)
	assert.Len(t, history, 2, "denied messages are not logged")
}

func TestService_Overage(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Update(ctx, "conn-1", Settings{Enabled: true, Limit: 1, PeriodDays: 30, Overage: true}, false)
	require.NoError(t, err)

	_, err = svc.Record(ctx, "conn-1")
	require.NoError(t, err)

	d, err := svc.Record(ctx, "conn-1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.True(t, d.Overage)
	assert.Equal(t, 2, d.Used)

	history, err := svc.History(ctx, "conn-1", 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Overage)
}

func TestService_DisabledAllowsAndCounts(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Update(ctx, "conn-1", Settings{Enabled: false, Limit: 1, PeriodDays: 30}, false)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		d, err := svc.Record(ctx, "conn-1")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, -1, d.Remaining)
	}
	limit, err := svc.Get(ctx, "conn-1")
	require.NoError(t, err)
	assert.Equal(t, 3, limit.UsedCount)
}

func TestService_RecordWithoutLimit(t *testing.T) {
	svc, _, _ := newTestService(t)
	d, err := svc.Record(context.Background(), "unknown")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, -1, d.Remaining)
}

func TestService_PeriodRollover(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()

	_, err := svc.Update(ctx, "conn-1", Settings{Enabled: true, Limit: 1, PeriodDays: 30}, false)
	require.NoError(t, err)
	_, err = svc.Record(ctx, "conn-1")
	require.NoError(t, err)

	d, err := svc.Record(ctx, "conn-1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	clock.t = clock.t.AddDate(0, 0, 30)
	d, err = svc.Record(ctx, "conn-1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Used)
}

func TestService_PeriodChangeRequiresConfirmation(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()

	_, err := svc.Update(ctx, "conn-1", Settings{Enabled: true, Limit: 10, PeriodDays: 30}, false)
	require.NoError(t, err)

	// No usage yet: period may change freely
	_, err = svc.Update(ctx, "conn-1", Settings{Enabled: true, Limit: 10, PeriodDays: 90}, false)
	require.NoError(t, err)

	_, err = svc.Record(ctx, "conn-1")
	require.NoError(t, err)

	_, err = svc.Update(ctx, "conn-1", Settings{Enabled: true, Limit: 10, PeriodDays: 365}, false)
	assert.ErrorIs(t, err, ErrConfirmationRequired)

	// Changing only the limit keeps the counter
	limit, err := svc.Update(ctx, "conn-1", Settings{Enabled: true, Limit: 20, PeriodDays: 90}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, limit.UsedCount)

	clock.t = clock.t.Add(time.Hour)
	limit, err = svc.Update(ctx, "conn-1", Settings{Enabled: true, Limit: 20, PeriodDays: 365}, true)
	require.NoError(t, err)
	assert.Equal(t, 0, limit.UsedCount)
	assert.True(t, clock.t.Equal(limit.PeriodStart))
	assert.Equal(t, 365, limit.PeriodDays)
}

func TestService_UpdateRejectsInvalid(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Update(context.Background(), "conn-1", Settings{Limit: 10, PeriodDays: 45}, true)
	assert.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestService_HistoryManagement(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()

	_, err := svc.Update(ctx, "conn-1", Settings{Enabled: true, Limit: 10, PeriodDays: 30}, false)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		clock.t = clock.t.Add(time.Second)
		_, err := svc.Record(ctx, "conn-1")
		require.NoError(t, err)
	}

	history, err := svc.History(ctx, "conn-1", 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, 3, history[0].Count)

	require.NoError(t, svc.DeleteHistory(ctx, history[0].ID))
	assert.ErrorIs(t, svc.DeleteHistory(ctx, history[0].ID), store.ErrNotFound)

	n, err := svc.ClearHistory(ctx, "conn-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	history, err = svc.History(ctx, "conn-1", 0)
	require.NoError(t, err)
	assert.NotNil(t, history)
	assert.Empty(t, history)
}

func newTestDemo(t *testing.T, st *store.MockStore, limit int) *widget.Demo {
	t.Helper()
	demo := &widget.Demo{
		ID:         "demo-1",
		Config:     widget.Config{ID: "demo-1", SelectedAgent: "a"},
		UsageLimit: limit,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	require.NoError(t, st.CreateDemo(context.Background(), demo))
	return demo
}

func TestDemoUsage_IdempotentPerRequestID(t *testing.T) {
	st := store.NewMockStore()
	newTestDemo(t, st, 5)
	cache := dedupe.New[int](10*time.Minute, 100)
	defer cache.Close()
	du := NewDemoUsage(st, cache, nil)
	ctx := context.Background()

	n, replayed, err := du.Increment(ctx, "demo-1", "req-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, replayed)

	n, replayed, err = du.Increment(ctx, "demo-1", "req-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, replayed)

	n, _, err = du.Increment(ctx, "demo-1", "req-2")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// No request id: every call counts
	n, _, err = du.Increment(ctx, "demo-1", "")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	demo, err := st.GetDemo(ctx, "demo-1")
	require.NoError(t, err)
	assert.Equal(t, 3, demo.UsedCount)
}

func TestDemoUsage_MissingDemo(t *testing.T) {
	du := NewDemoUsage(store.NewMockStore(), nil, nil)
	_, _, err := du.Increment(context.Background(), "missing", "req")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDemoCounter(t *testing.T) {
	st := store.NewMockStore()
	demo := newTestDemo(t, st, 2)
	du := NewDemoUsage(st, nil, nil)

	ctx := context.Background()
	counter := du.Counter(demo)
	used, limit, err := counter.Usage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, used)
	assert.Equal(t, 2, limit)

	n, err := counter.Increment(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	used, _, err = counter.Usage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, used)
}

func TestDemoCounter_SeesOtherCounters(t *testing.T) {
	st := store.NewMockStore()
	demo := newTestDemo(t, st, 1)
	du := NewDemoUsage(st, nil, nil)
	ctx := context.Background()

	a, b := du.Counter(demo), du.Counter(demo)
	_, err := a.Increment(ctx)
	require.NoError(t, err)

	used, limit, err := b.Usage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, used)
	assert.Equal(t, 1, limit)

	require.NoError(t, st.DeleteDemo(ctx, demo.ID))
	_, _, err = b.Usage(ctx)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
