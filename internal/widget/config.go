// ABOUTME: Widget configuration types: theme, placement, copy and behaviour flags
// ABOUTME: Provides defaults and size helpers used by every widget environment

package widget

import (
	"strings"
	"time"
)

// Theme is the widget colour scheme.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Valid reports whether t is a known theme.
func (t Theme) Valid() bool {
	return t == ThemeLight || t == ThemeDark
}

// Placement is the corner of the host page the launcher is anchored to.
type Placement string

const (
	PlacementBottomRight Placement = "bottom-right"
	PlacementBottomLeft  Placement = "bottom-left"
	PlacementTopRight    Placement = "top-right"
	PlacementTopLeft     Placement = "top-left"
)

// Valid reports whether p is a known placement.
func (p Placement) Valid() bool {
	switch p {
	case PlacementBottomRight, PlacementBottomLeft, PlacementTopRight, PlacementTopLeft:
		return true
	}
	return false
}

// Vertical returns "top" or "bottom".
func (p Placement) Vertical() string {
	if strings.HasPrefix(string(p), "top") {
		return "top"
	}
	return "bottom"
}

// Horizontal returns "left" or "right".
func (p Placement) Horizontal() string {
	if strings.HasSuffix(string(p), "left") {
		return "left"
	}
	return "right"
}

// Default values applied by WithDefaults.
const (
	DefaultWidth           = 380
	DefaultHeight          = 600
	DefaultPrimaryColor    = "#2563eb"
	DefaultTemplate        = "default"
	DefaultPlaceholderText = "Type your message..."
	DefaultChatTitle       = "Chat with us"
	DefaultPopupDelay      = 3
)

// Config is the static, externally supplied configuration of one widget.
// It is immutable for the lifetime of a widget session and only ever
// replaced wholesale by the owning dashboard.
type Config struct {
	ID      string `json:"id"`
	OwnerID string `json:"ownerId,omitempty"`

	// Display
	Name         string    `json:"name"`
	Avatar       string    `json:"avatar,omitempty"`
	Theme        Theme     `json:"theme"`
	PrimaryColor string    `json:"primaryColor"`
	Template     string    `json:"template,omitempty"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	Placement    Placement `json:"placement"`

	// Copy
	WelcomeMessage  string `json:"welcomeMessage"`
	PlaceholderText string `json:"placeholderText"`
	ChatTitle       string `json:"chatTitle"`
	Subtitle        string `json:"subtitle,omitempty"`
	PopupMessage    string `json:"popupMessage,omitempty"`

	// Behaviour
	ShowWelcomeMessage bool `json:"showWelcomeMessage"`
	ShowPopup          bool `json:"showPopup"`
	PopupDelay         int  `json:"popupDelay"` // seconds

	// Routing
	SelectedAgent string `json:"selectedAgent"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// WithDefaults returns a copy of c with empty display fields filled in.
func (c Config) WithDefaults() Config {
	if !c.Theme.Valid() {
		c.Theme = ThemeLight
	}
	if !c.Placement.Valid() {
		c.Placement = PlacementBottomRight
	}
	if c.PrimaryColor == "" {
		c.PrimaryColor = DefaultPrimaryColor
	}
	if c.Template == "" {
		c.Template = DefaultTemplate
	}
	if c.Width <= 0 {
		c.Width = DefaultWidth
	}
	if c.Height <= 0 {
		c.Height = DefaultHeight
	}
	if c.PlaceholderText == "" {
		c.PlaceholderText = DefaultPlaceholderText
	}
	if c.ChatTitle == "" {
		c.ChatTitle = DefaultChatTitle
	}
	if c.PopupDelay < 0 {
		c.PopupDelay = 0
	}
	return c
}

// HasWelcome reports whether a greeting should be shown when the chat opens.
func (c Config) HasWelcome() bool {
	return c.ShowWelcomeMessage && strings.TrimSpace(c.WelcomeMessage) != ""
}

// PopupAfter returns the popup bubble delay as a duration.
func (c Config) PopupAfter() time.Duration {
	return time.Duration(c.PopupDelay) * time.Second
}
