package persistence

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chatdesk/internal/widget"
)

type fixedClock struct{ t time.Time }

func (c *fixedClock) Now() time.Time { return c.t }

func sampleMessages(at time.Time) []widget.Message {
	return []widget.Message{
		widget.NewWelcomeMessage("Hello!", at),
		widget.NewUserMessage("Hi", at.Add(time.Second)),
		widget.NewBotMessage("How can I help?", at.Add(2*time.Second)),
	}
}

func TestKey(t *testing.T) {
	assert.Equal(t, "chatbot_conversation_w1", Key("w1"))
}

func TestAdapter_SaveLoad(t *testing.T) {
	ctx := context.Background()
	clock := &fixedClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	a := NewAdapter(store, "w1", Options{Now: clock.Now})

	msgs := sampleMessages(clock.t)
	a.Save(ctx, msgs, true)

	snap, ok := a.Load(ctx)
	require.True(t, ok)
	assert.True(t, snap.IsOpen)
	assert.True(t, clock.t.Equal(snap.Timestamp))
	require.Len(t, snap.Messages, 3)
	assert.Equal(t, widget.WelcomeID, snap.Messages[0].ID)
	assert.Equal(t, "How can I help?", snap.Messages[2].Text)
	assert.True(t, msgs[1].Timestamp.Equal(snap.Messages[1].Timestamp))
}

func TestAdapter_ExpiryBoundary(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		age   time.Duration
		valid bool
	}{
		{"fresh", 0, true},
		{"59m59s", 59*time.Minute + 59*time.Second, true},
		{"exactly one hour", time.Hour, false},
		{"two hours", 2 * time.Hour, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &fixedClock{t: start}
			store := NewMemoryStore()
			a := NewAdapter(store, "w1", Options{Now: clock.Now})
			a.Save(ctx, sampleMessages(start), false)

			clock.t = start.Add(tt.age)
			_, ok := a.Load(ctx)
			assert.Equal(t, tt.valid, ok)

			// Expired snapshots are deleted, valid ones kept
			_, err := store.Get(ctx, Key("w1"))
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrNotFound)
			}
		})
	}
}

func TestAdapter_LoadMissingAndCorrupt(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	a := NewAdapter(store, "w1", Options{})

	_, ok := a.Load(ctx)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, Key("w1"), []byte("{not json")))
	_, ok = a.Load(ctx)
	assert.False(t, ok)
}

func TestAdapter_Clear(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	a := NewAdapter(store, "w1", Options{})

	a.Save(ctx, sampleMessages(time.Now()), false)
	assert.Equal(t, 1, store.Len())

	a.Clear(ctx)
	assert.Equal(t, 0, store.Len())
	_, ok := a.Load(ctx)
	assert.False(t, ok)
}

func TestAdapter_Disabled(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Set(ctx, Key("w1"), []byte(`{"messages":[],"timestamp":"2999-01-01T00:00:00Z","isOpen":true}`)))

	a := NewAdapter(store, "w1", Options{Disabled: true})
	assert.False(t, a.Enabled())

	_, ok := a.Load(ctx)
	assert.False(t, ok, "disabled adapter must not read")

	a.Save(ctx, sampleMessages(time.Now()), false)
	a.Clear(ctx)
	data, err := store.Get(ctx, Key("w1"))
	require.NoError(t, err, "disabled adapter must not delete")
	assert.Contains(t, string(data), "2999")

	assert.False(t, NewAdapter(nil, "w1", Options{}).Enabled())
}

func TestAdapter_WidgetsAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	a := NewAdapter(store, "w1", Options{})
	b := NewAdapter(store, "w2", Options{})

	a.Save(ctx, []widget.Message{widget.NewUserMessage("from a", time.Now())}, true)
	b.Save(ctx, []widget.Message{widget.NewUserMessage("from b", time.Now())}, false)

	snapA, ok := a.Load(ctx)
	require.True(t, ok)
	snapB, ok := b.Load(ctx)
	require.True(t, ok)

	assert.Equal(t, "from a", snapA.Messages[0].Text)
	assert.Equal(t, "from b", snapB.Messages[0].Text)
	assert.True(t, snapA.IsOpen)
	assert.False(t, snapB.IsOpen)

	a.Clear(ctx)
	_, ok = b.Load(ctx)
	assert.True(t, ok)
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, error) { return nil, errors.New("boom") }
func (failingStore) Set(context.Context, string, []byte) error  { return errors.New("quota exceeded") }
func (failingStore) Delete(context.Context, string) error       { return errors.New("boom") }

func TestAdapter_StoreFailuresAreSwallowed(t *testing.T) {
	ctx := context.Background()
	a := NewAdapter(failingStore{}, "w1", Options{})

	assert.NotPanics(t, func() {
		a.Save(ctx, sampleMessages(time.Now()), true)
		a.Clear(ctx)
	})
	_, ok := a.Load(ctx)
	assert.False(t, ok)
}

func TestBoltStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "snapshots", "snap.db")

	store, err := OpenBoltStore(path)
	require.NoError(t, err)

	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Set(ctx, "k", []byte("v1")))
	require.NoError(t, store.Set(ctx, "k", []byte("v2")))
	v, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), v)

	require.NoError(t, store.Close())

	// Data survives reopen
	store, err = OpenBoltStore(path)
	require.NoError(t, err)
	defer store.Close()

	v, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), v)

	require.NoError(t, store.Delete(ctx, "k"))
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, store.Delete(ctx, "missing"))
}

func TestBoltStore_WithAdapter(t *testing.T) {
	ctx := context.Background()
	store, err := OpenBoltStore(filepath.Join(t.TempDir(), "snap.db"))
	require.NoError(t, err)
	defer store.Close()

	a := NewAdapter(store, "w1", Options{})
	a.Save(ctx, sampleMessages(time.Now()), true)

	snap, ok := a.Load(ctx)
	require.True(t, ok)
	assert.Len(t, snap.Messages, 3)
}

func TestNamespace_VisitorsAreIsolated(t *testing.T) {
	ctx := context.Background()
	shared := NewMemoryStore()

	alice := NewAdapter(Namespace(shared, "alice"), "w1", Options{})
	bob := NewAdapter(Namespace(shared, "bob"), "w1", Options{})

	alice.Save(ctx, sampleMessages(time.Now()), true)

	_, ok := bob.Load(ctx)
	assert.False(t, ok)
	snap, ok := alice.Load(ctx)
	require.True(t, ok)
	assert.True(t, snap.IsOpen)

	raw, err := shared.Get(ctx, "alice/"+Key("w1"))
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
}
