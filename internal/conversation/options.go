// ABOUTME: Controller construction options: environment mode, collaborators and timings
// ABOUTME: Defaults reproduce the 400ms/1500ms welcome and 800ms minimum reply delay

package conversation

import (
	"context"
	"log/slog"
	"time"

	"github.com/2389/chatdesk/internal/hostbridge"
	"github.com/2389/chatdesk/internal/persistence"
	"github.com/2389/chatdesk/internal/transport"
	"github.com/2389/chatdesk/internal/widget"
)

// Mode is the environment a widget is running in.
type Mode int

const (
	// ModeDashboard is the inline widget inside the owner's dashboard.
	ModeDashboard Mode = iota
	// ModePreview is the iframe preview; nothing is persisted.
	ModePreview
	// ModeProduction is the public embed on a customer site.
	ModeProduction
)

// String returns the mode name used in URLs and logs.
func (m Mode) String() string {
	switch m {
	case ModeDashboard:
		return "dashboard"
	case ModePreview:
		return "preview"
	case ModeProduction:
		return "production"
	}
	return "unknown"
}

// ParseMode maps a name back to a Mode.
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "dashboard":
		return ModeDashboard, true
	case "preview":
		return ModePreview, true
	case "production", "":
		return ModeProduction, true
	}
	return ModeProduction, false
}

// Default timings.
const (
	DefaultWelcomeDelay  = 400 * time.Millisecond
	DefaultWelcomeTyping = 1500 * time.Millisecond
	DefaultMinReplyDelay = 800 * time.Millisecond
)

// Timings controls the controller's artificial delays.
type Timings struct {
	// WelcomeDelay is the pause after opening before the typing indicator shows.
	WelcomeDelay time.Duration
	// WelcomeTyping is how long the indicator shows before the greeting appears.
	WelcomeTyping time.Duration
	// MinReplyDelay is the minimum time between submit and the bot reply.
	MinReplyDelay time.Duration
	// HistoryWindow is the number of prior turns sent with each request.
	HistoryWindow int
}

// DefaultTimings returns the standard widget timings.
func DefaultTimings() Timings {
	return Timings{
		WelcomeDelay:  DefaultWelcomeDelay,
		WelcomeTyping: DefaultWelcomeTyping,
		MinReplyDelay: DefaultMinReplyDelay,
		HistoryWindow: transport.DefaultHistoryWindow,
	}
}

func (t Timings) withDefaults() Timings {
	d := DefaultTimings()
	if t.WelcomeDelay <= 0 {
		t.WelcomeDelay = d.WelcomeDelay
	}
	if t.WelcomeTyping <= 0 {
		t.WelcomeTyping = d.WelcomeTyping
	}
	if t.MinReplyDelay <= 0 {
		t.MinReplyDelay = d.MinReplyDelay
	}
	if t.HistoryWindow <= 0 {
		t.HistoryWindow = d.HistoryWindow
	}
	return t
}

// UsageCounter tracks a demo's answered-turn quota.
type UsageCounter interface {
	// Usage returns the current used count and the limit; a limit of zero
	// or less is unlimited. Counters shared between conversations must
	// report turns answered by any of them.
	Usage(ctx context.Context) (used, limit int, err error)
	// Increment records one answered turn and returns the new used count.
	Increment(ctx context.Context) (int, error)
}

// Options configures a Controller.
type Options struct {
	Config      widget.Config
	Mode        Mode
	Transport   transport.Transport
	Persistence *persistence.Adapter
	Bridge      hostbridge.Bridge
	// Usage is set for demos only.
	Usage UsageCounter
	// Apologies supplies failure replies; nil uses transport.ApologyReply.
	Apologies *transport.Apologies
	Clock     Clock
	Logger    *slog.Logger
	Timings   Timings
}
