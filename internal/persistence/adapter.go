// ABOUTME: Per-widget persistence adapter with the one-hour snapshot validity window
// ABOUTME: Saves after every mutation, discards expired or corrupt snapshots on load

package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/2389/chatdesk/internal/widget"
)

// KeyPrefix is prepended to the widget id to form the storage key.
const KeyPrefix = "chatbot_conversation_"

// Key returns the storage key for a widget id.
func Key(widgetID string) string {
	return KeyPrefix + widgetID
}

// Options configures an Adapter.
type Options struct {
	// Disabled turns every operation into a no-op.
	Disabled bool
	// Now overrides the clock; defaults to time.Now.
	Now    func() time.Time
	Logger *slog.Logger
}

// Adapter persists the conversation of a single widget.
type Adapter struct {
	store    SnapshotStore
	widgetID string
	key      string
	disabled bool
	now      func() time.Time
	logger   *slog.Logger
}

// NewAdapter binds a SnapshotStore to a widget id. A nil store yields a
// disabled adapter.
func NewAdapter(store SnapshotStore, widgetID string, opts Options) *Adapter {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		store:    store,
		widgetID: widgetID,
		key:      Key(widgetID),
		disabled: opts.Disabled || store == nil,
		now:      now,
		logger:   logger.With("component", "persistence", "widget_id", widgetID),
	}
}

// Enabled reports whether the adapter reads and writes its store.
func (a *Adapter) Enabled() bool {
	return !a.disabled
}

// Save writes the messages and open flag stamped with the current time.
// Errors are logged, never returned.
func (a *Adapter) Save(ctx context.Context, messages []widget.Message, isOpen bool) {
	if a.disabled {
		return
	}
	snap := widget.Snapshot{
		Messages:  widget.CloneMessages(messages),
		Timestamp: a.now(),
		IsOpen:    isOpen,
	}
	data, err := json.Marshal(snap)
	if err != nil {
		a.logger.Warn("failed to encode conversation snapshot", "error", err)
		return
	}
	if err := a.store.Set(ctx, a.key, data); err != nil {
		a.logger.Warn("failed to save conversation snapshot", "error", err)
	}
}

// Load returns the stored snapshot. The second result is false when
// nothing usable is stored: missing, unparsable, or at least an hour old.
// Expired snapshots are deleted.
func (a *Adapter) Load(ctx context.Context) (widget.Snapshot, bool) {
	if a.disabled {
		return widget.Snapshot{}, false
	}
	data, err := a.store.Get(ctx, a.key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			a.logger.Warn("failed to read conversation snapshot", "error", err)
		}
		return widget.Snapshot{}, false
	}

	var snap widget.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		a.logger.Warn("discarding unreadable conversation snapshot", "error", err)
		return widget.Snapshot{}, false
	}

	if snap.Expired(a.now()) {
		a.logger.Debug("discarding expired conversation snapshot", "saved_at", snap.Timestamp)
		if err := a.store.Delete(ctx, a.key); err != nil {
			a.logger.Warn("failed to delete expired conversation snapshot", "error", err)
		}
		return widget.Snapshot{}, false
	}

	if snap.Messages == nil {
		snap.Messages = []widget.Message{}
	}
	return snap, true
}

// Clear removes the stored snapshot.
func (a *Adapter) Clear(ctx context.Context) {
	if a.disabled {
		return
	}
	if err := a.store.Delete(ctx, a.key); err != nil {
		a.logger.Warn("failed to clear conversation snapshot", "error", err)
	}
}
