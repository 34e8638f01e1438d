// ABOUTME: Conversation controller state machine shared by every widget environment
// ABOUTME: Owns messages, input, open/typing/popup flags, timers and the single in-flight exchange

package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/chatdesk/internal/hostbridge"
	"github.com/2389/chatdesk/internal/persistence"
	"github.com/2389/chatdesk/internal/transport"
	"github.com/2389/chatdesk/internal/widget"
)

var (
	// ErrEmptyMessage is returned by Submit when the trimmed text is empty.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrBusy is returned by Submit while a reply is pending.
	ErrBusy = errors.New("a reply is already pending")
	// ErrLimitReached is returned by Submit once the demo quota is used up.
	ErrLimitReached = errors.New("usage limit reached")
	// ErrClosed is returned by Submit after Shutdown.
	ErrClosed = errors.New("conversation is shut down")
)

// LimitReachedPlaceholder replaces the input placeholder once a demo is used up.
const LimitReachedPlaceholder = "Demo limit reached. Contact the owner to continue."

// stateBufferSize is the channel buffer for each state subscriber.
const stateBufferSize = 16

// State is an immutable view of a conversation.
type State struct {
	WidgetID     string           `json:"widgetId"`
	Mode         string           `json:"mode"`
	Messages     []widget.Message `json:"messages"`
	Input        string           `json:"input"`
	IsOpen       bool             `json:"isOpen"`
	IsTyping     bool             `json:"isTyping"`
	PopupVisible bool             `json:"popupVisible"`
	CanSend      bool             `json:"canSend"`
	LimitReached bool             `json:"limitReached"`
	UsedCount    int              `json:"usedCount"`
	UsageLimit   int              `json:"usageLimit"`
	Placeholder  string           `json:"placeholder"`
	Version      uint64           `json:"version"`
}

// Controller runs one visitor's conversation with one widget.
type Controller struct {
	cfg       widget.Config
	mode      Mode
	transport transport.Transport
	persist   *persistence.Adapter
	bridge    hostbridge.Bridge
	usage     UsageCounter
	apologies *transport.Apologies
	clock     Clock
	timings   Timings
	logger    *slog.Logger

	mu           sync.Mutex
	messages     []widget.Message
	input        string
	isOpen       bool
	isTyping     bool
	popupVisible bool
	inFlight     bool
	used         int
	limit        int
	version      uint64
	restored     bool
	shutdown     bool

	// welcomeGen invalidates stale welcome callbacks after Close or Reset.
	welcomeGen   uint64
	welcomeTimer Timer
	popupTimer   Timer

	subscribers map[string]chan State
	exchanges   sync.WaitGroup
}

// New creates a controller. Transport is required; every other
// collaborator has a harmless default.
func New(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = RealClock{}
	}
	bridge := opts.Bridge
	if bridge == nil {
		bridge = hostbridge.Noop{}
	}
	persist := opts.Persistence
	if persist == nil || opts.Mode == ModePreview {
		persist = persistence.NewAdapter(nil, opts.Config.ID, persistence.Options{Disabled: true})
	}

	c := &Controller{
		cfg:         opts.Config.WithDefaults(),
		mode:        opts.Mode,
		transport:   opts.Transport,
		persist:     persist,
		bridge:      bridge,
		usage:       opts.Usage,
		apologies:   opts.Apologies,
		clock:       clock,
		timings:     opts.Timings.withDefaults(),
		logger:      logger.With("component", "conversation", "widget_id", opts.Config.ID, "mode", opts.Mode.String()),
		messages:    []widget.Message{},
		subscribers: make(map[string]chan State),
	}
	if c.usage != nil {
		if used, limit, err := c.usage.Usage(context.Background()); err != nil {
			c.logger.Warn("failed to read demo usage", "error", err)
		} else {
			c.used, c.limit = used, limit
		}
	}
	return c
}

// Config returns the widget configuration the controller was built with.
func (c *Controller) Config() widget.Config {
	return c.cfg
}

// Mode returns the controller's environment.
func (c *Controller) Mode() Mode {
	return c.mode
}

// Restore loads the persisted snapshot, reopens the chat if it was open,
// announces the widget to the host page, and arms the popup timer.
// Only the first call has any effect.
func (c *Controller) Restore(ctx context.Context) {
	snap, ok := c.persist.Load(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.restored || c.shutdown {
		return
	}
	c.restored = true

	if ok {
		c.messages = widget.CloneMessages(snap.Messages)
		c.logger.Debug("restored conversation", "messages", len(c.messages), "open", snap.IsOpen)
	}

	c.postLocked(hostbridge.EventReady)

	if ok && snap.IsOpen {
		c.openLocked()
	} else {
		c.armPopupLocked()
	}
	c.notifyLocked()
}

// Open shows the chat. Opening an already open chat does nothing.
func (c *Controller) Open() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isOpen || c.shutdown {
		return
	}
	c.openLocked()
	c.saveLocked()
	c.notifyLocked()
}

// Close hides the chat. Closing an already closed chat does nothing.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isOpen || c.shutdown {
		return
	}
	c.isOpen = false
	c.cancelWelcomeLocked()
	c.postLocked(hostbridge.EventClose)
	c.saveLocked()
	c.notifyLocked()
}

// Toggle flips the open state.
func (c *Controller) Toggle() {
	c.mu.Lock()
	open := c.isOpen
	c.mu.Unlock()
	if open {
		c.Close()
	} else {
		c.Open()
	}
}

// Reset clears the conversation, leaving a fresh greeting when one is
// configured, and drops the persisted snapshot.
func (c *Controller) Reset(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shutdown {
		return
	}
	c.cancelWelcomeLocked()
	c.messages = []widget.Message{}
	if c.cfg.HasWelcome() {
		c.messages = append(c.messages, widget.NewWelcomeMessage(c.cfg.WelcomeMessage, c.clock.Now()))
	}
	c.input = ""
	c.persist.Clear(ctx)
	if len(c.messages) > 0 {
		c.saveLocked()
	}
	c.notifyLocked()
}

// SetInput replaces the input buffer.
func (c *Controller) SetInput(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.input = text
	c.notifyLocked()
}

// CanSend reports whether the current input could be submitted.
func (c *Controller) CanSend() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canSendLocked(c.input)
}

// SubmitInput submits the current input buffer.
func (c *Controller) SubmitInput(ctx context.Context) error {
	c.mu.Lock()
	text := c.input
	c.mu.Unlock()
	return c.Submit(ctx, text)
}

// Submit appends the visitor's message and starts an exchange in the
// background. The exchange is detached from ctx cancellation: closing the
// widget or ending the HTTP request does not abort it.
func (c *Controller) Submit(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if c.usage != nil && text != "" {
		c.refreshUsage(ctx)
	}

	c.mu.Lock()
	switch {
	case c.shutdown:
		c.mu.Unlock()
		return ErrClosed
	case text == "":
		c.mu.Unlock()
		return ErrEmptyMessage
	case c.limitReachedLocked():
		c.mu.Unlock()
		return ErrLimitReached
	case c.inFlight || c.isTyping:
		c.mu.Unlock()
		return ErrBusy
	}

	start := c.clock.Now()
	req := transport.AskRequest{
		AgentID:          c.cfg.SelectedAgent,
		Message:          text,
		PreviousMessages: transport.BuildHistory(c.messages, c.timings.HistoryWindow),
	}
	if c.cfg.HasWelcome() {
		req.WelcomeMessage = c.cfg.WelcomeMessage
	}

	c.messages = append(c.messages, widget.NewUserMessage(text, start))
	c.input = ""
	c.isTyping = true
	c.inFlight = true
	c.exchanges.Add(1)
	c.saveLocked()
	c.notifyLocked()
	c.mu.Unlock()

	go c.exchange(context.WithoutCancel(ctx), req, start)
	return nil
}

// exchange performs one request and always ends by appending exactly one
// bot message and clearing the typing flag.
func (c *Controller) exchange(ctx context.Context, req transport.AskRequest, start time.Time) {
	requestID := uuid.New().String()
	c.logger.Debug("exchange started", "request_id", requestID, "agent_id", req.AgentID)

	reply, err := c.transport.Ask(ctx, req)
	if err != nil {
		c.logger.Warn("exchange failed", "request_id", requestID, "error", err)
		c.finish(ctx, c.apology(), false)
		return
	}

	wait := c.timings.MinReplyDelay - c.clock.Now().Sub(start)
	if wait <= 0 {
		c.finish(ctx, reply, true)
		return
	}
	c.clock.AfterFunc(wait, func() {
		c.finish(ctx, reply, true)
	})
}

func (c *Controller) finish(ctx context.Context, text string, answered bool) {
	defer c.exchanges.Done()

	// Usage is recorded outside the lock; it may hit the store.
	used, limit := -1, -1
	if c.usage != nil {
		if answered {
			n, err := c.usage.Increment(ctx)
			if err != nil {
				c.logger.Warn("failed to record demo usage", "error", err)
			} else {
				used = n
			}
		} else if u, l, err := c.usage.Usage(ctx); err == nil {
			used, limit = u, l
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, widget.NewBotMessage(text, c.clock.Now()))
	c.isTyping = false
	c.inFlight = false
	if used >= 0 {
		c.used = used
	}
	if limit >= 0 {
		c.limit = limit
	}
	c.saveLocked()
	c.notifyLocked()
}

// refreshUsage re-reads the quota so conversations sharing a demo see
// each other's answered turns.
func (c *Controller) refreshUsage(ctx context.Context) {
	used, limit, err := c.usage.Usage(ctx)
	if err != nil {
		c.logger.Warn("failed to read demo usage", "error", err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if used == c.used && limit == c.limit {
		return
	}
	c.used, c.limit = used, limit
	c.notifyLocked()
}

func (c *Controller) apology() string {
	if c.apologies != nil {
		return c.apologies.Next()
	}
	return transport.ApologyReply
}

// Wait blocks until every started exchange has appended its reply.
func (c *Controller) Wait() {
	c.exchanges.Wait()
}

// State returns a snapshot of the conversation.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// Subscribe returns a channel that receives the current state and then
// every change. Intermediate states may be skipped for slow readers; the
// latest state is always delivered. The channel closes when ctx is done
// or the controller shuts down.
func (c *Controller) Subscribe(ctx context.Context) <-chan State {
	ch := make(chan State, stateBufferSize)
	id := uuid.New().String()

	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		close(ch)
		return ch
	}
	c.subscribers[id] = ch
	ch <- c.stateLocked()
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subscribers[id]; ok {
			delete(c.subscribers, id)
			close(sub)
		}
	}()
	return ch
}

// Shutdown cancels the welcome and popup timers and ends subscriptions.
// A pending exchange still completes and appends its reply.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shutdown {
		return
	}
	c.shutdown = true
	c.cancelWelcomeLocked()
	if c.popupTimer != nil {
		c.popupTimer.Stop()
		c.popupTimer = nil
	}
	for id, ch := range c.subscribers {
		close(ch)
		delete(c.subscribers, id)
	}
}

func (c *Controller) openLocked() {
	c.isOpen = true
	c.popupVisible = false
	if c.popupTimer != nil {
		c.popupTimer.Stop()
		c.popupTimer = nil
	}
	c.postLocked(hostbridge.EventOpen)

	if len(c.messages) == 0 && c.cfg.HasWelcome() {
		c.startWelcomeLocked()
	}
}

// startWelcomeLocked schedules typing after WelcomeDelay and the greeting
// WelcomeTyping later.
func (c *Controller) startWelcomeLocked() {
	c.welcomeGen++
	gen := c.welcomeGen

	c.welcomeTimer = c.clock.AfterFunc(c.timings.WelcomeDelay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if gen != c.welcomeGen || !c.isOpen || c.shutdown {
			return
		}
		if len(c.messages) > 0 {
			c.welcomeTimer = nil
			return
		}
		c.isTyping = true
		c.notifyLocked()

		c.welcomeTimer = c.clock.AfterFunc(c.timings.WelcomeTyping, func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if gen != c.welcomeGen || c.shutdown {
				return
			}
			c.welcomeTimer = nil
			if len(c.messages) == 0 {
				c.messages = append(c.messages, widget.NewWelcomeMessage(c.cfg.WelcomeMessage, c.clock.Now()))
			}
			if !c.inFlight {
				c.isTyping = false
			}
			c.saveLocked()
			c.notifyLocked()
		})
	})
}

func (c *Controller) cancelWelcomeLocked() {
	c.welcomeGen++
	if c.welcomeTimer != nil {
		c.welcomeTimer.Stop()
		c.welcomeTimer = nil
	}
	if !c.inFlight {
		c.isTyping = false
	}
}

func (c *Controller) armPopupLocked() {
	if !c.cfg.ShowPopup || c.isOpen || c.popupTimer != nil {
		return
	}
	c.popupTimer = c.clock.AfterFunc(c.cfg.PopupAfter(), func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.popupTimer == nil || c.isOpen || c.shutdown {
			return
		}
		c.popupTimer = nil
		c.popupVisible = true
		c.notifyLocked()
	})
}

func (c *Controller) limitReachedLocked() bool {
	return c.limit > 0 && c.used >= c.limit
}

func (c *Controller) canSendLocked(text string) bool {
	return !c.shutdown &&
		strings.TrimSpace(text) != "" &&
		!c.isTyping &&
		!c.inFlight &&
		!c.limitReachedLocked()
}

func (c *Controller) stateLocked() State {
	placeholder := c.cfg.PlaceholderText
	if c.limitReachedLocked() {
		placeholder = LimitReachedPlaceholder
	}
	return State{
		WidgetID:     c.cfg.ID,
		Mode:         c.mode.String(),
		Messages:     widget.CloneMessages(c.messages),
		Input:        c.input,
		IsOpen:       c.isOpen,
		IsTyping:     c.isTyping,
		PopupVisible: c.popupVisible,
		CanSend:      c.canSendLocked(c.input),
		LimitReached: c.limitReachedLocked(),
		UsedCount:    c.used,
		UsageLimit:   c.limit,
		Placeholder:  placeholder,
		Version:      c.version,
	}
}

func (c *Controller) saveLocked() {
	// Persistence failures are logged inside the adapter.
	c.persist.Save(context.Background(), c.messages, c.isOpen)
}

func (c *Controller) postLocked(t hostbridge.EventType) {
	if err := c.bridge.Post(hostbridge.NewEvent(t, c.cfg)); err != nil {
		c.logger.Debug("host bridge post failed", "type", t, "error", err)
	}
}

// notifyLocked publishes the current state to subscribers. A full
// channel loses its oldest entry so the newest state always lands.
func (c *Controller) notifyLocked() {
	c.version++
	if len(c.subscribers) == 0 {
		return
	}
	st := c.stateLocked()
	for _, ch := range c.subscribers {
		select {
		case ch <- st:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- st:
		default:
		}
	}
}
