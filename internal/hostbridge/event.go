// ABOUTME: Host page lifecycle events posted by the widget
// ABOUTME: Mirrors the {type, data{widgetId,width,height,theme}} message shape

package hostbridge

import "github.com/2389/chatdesk/internal/widget"

// EventType is the kind of lifecycle event.
type EventType string

const (
	EventReady EventType = "WIDGET_READY"
	EventOpen  EventType = "WIDGET_OPEN"
	EventClose EventType = "WIDGET_CLOSE"
)

// Data is the event payload.
type Data struct {
	WidgetID string       `json:"widgetId"`
	Width    int          `json:"width,omitempty"`
	Height   int          `json:"height,omitempty"`
	Theme    widget.Theme `json:"theme,omitempty"`
}

// Event is a message to the host page.
type Event struct {
	Type EventType `json:"type"`
	Data Data      `json:"data"`
}

// NewEvent builds an event of the given type from a widget config.
// READY and OPEN carry the expanded size; CLOSE carries only the id.
func NewEvent(t EventType, cfg widget.Config) Event {
	ev := Event{Type: t, Data: Data{WidgetID: cfg.ID}}
	if t == EventClose {
		return ev
	}
	cfg = cfg.WithDefaults()
	ev.Data.Width = cfg.Width
	ev.Data.Height = cfg.Height
	ev.Data.Theme = cfg.Theme
	return ev
}
