package hostbridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chatdesk/internal/widget"
)

func TestNewEvent(t *testing.T) {
	cfg := widget.Config{ID: "w1", Theme: widget.ThemeDark, Width: 400}

	ready := NewEvent(EventReady, cfg)
	assert.Equal(t, EventReady, ready.Type)
	assert.Equal(t, "w1", ready.Data.WidgetID)
	assert.Equal(t, 400, ready.Data.Width)
	assert.Equal(t, widget.DefaultHeight, ready.Data.Height)
	assert.Equal(t, widget.ThemeDark, ready.Data.Theme)

	closeEv := NewEvent(EventClose, cfg)
	assert.Equal(t, Data{WidgetID: "w1"}, closeEv.Data)
}

func TestEvent_JSONShape(t *testing.T) {
	data, err := json.Marshal(NewEvent(EventOpen, widget.Config{ID: "w1"}))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "WIDGET_OPEN", got["type"])
	payload := got["data"].(map[string]any)
	assert.Equal(t, "w1", payload["widgetId"])
	assert.Equal(t, "light", payload["theme"])
	assert.EqualValues(t, widget.DefaultWidth, payload["width"])
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	require.NoError(t, r.Post(Event{Type: EventReady}))

	r.FailWith(errors.New("no parent window"))
	assert.Error(t, r.Post(Event{Type: EventOpen}))

	assert.Equal(t, []EventType{EventReady, EventOpen}, r.Types())
	assert.Len(t, r.Events(), 2)
}

func TestHub_PublishToSubscribers(t *testing.T) {
	h := NewHub(nil)
	defer h.Close()

	ch1, _ := h.Subscribe(t.Context(), "s1")
	ch2, _ := h.Subscribe(t.Context(), "s1")
	other, _ := h.Subscribe(t.Context(), "s2")

	require.NoError(t, h.Bridge("s1").Post(Event{Type: EventOpen}))

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			assert.Equal(t, EventOpen, ev.Type)
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d timed out", i)
		}
	}

	select {
	case ev := <-other:
		t.Fatalf("unexpected event on other key: %v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_ContextCancelUnsubscribes(t *testing.T) {
	h := NewHub(nil)
	defer h.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := h.Subscribe(ctx, "s1")
	assert.Equal(t, 1, h.Subscribers("s1"))

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
	assert.Equal(t, 0, h.Subscribers("s1"))
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub(nil)
	defer h.Close()

	_, _ = h.Subscribe(t.Context(), "s1")

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBufferSize*2; i++ {
			h.Publish("s1", Event{Type: EventOpen})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on full subscriber")
	}
}

func TestHub_ConcurrentPublishAndUnsubscribe(t *testing.T) {
	h := NewHub(nil)
	defer h.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		_, _ = h.Subscribe(ctx, "s1")
		wg.Add(2)
		go func() {
			defer wg.Done()
			h.Publish("s1", Event{Type: EventReady})
		}()
		go func() {
			defer wg.Done()
			cancel()
		}()
	}
	wg.Wait()
}

func TestHub_SubscribeAfterClose(t *testing.T) {
	h := NewHub(nil)
	h.Close()

	ch, _ := h.Subscribe(t.Context(), "s1")
	_, ok := <-ch
	assert.False(t, ok)
}

func TestApplyOverrides(t *testing.T) {
	base := widget.Config{ID: "w1", Theme: widget.ThemeLight, PrimaryColor: "#2563eb", Template: "default"}

	tests := []struct {
		name  string
		query string
		want  widget.Config
	}{
		{"none", "", base},
		{
			"all",
			"theme=dark&themeColor=%23ff0000&template=compact",
			widget.Config{ID: "w1", Theme: widget.ThemeDark, PrimaryColor: "#ff0000", Template: "compact"},
		},
		{"invalid theme ignored", "theme=neon", base},
		{"invalid color ignored", "themeColor=red", base},
		{"short hex accepted", "themeColor=%23abc", widget.Config{ID: "w1", Theme: widget.ThemeLight, PrimaryColor: "#abc", Template: "default"}},
		{"bad template ignored", "template=..%2Fetc", base},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ApplyOverrides(base, q))
		})
	}
}
