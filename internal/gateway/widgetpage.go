// ABOUTME: Server-rendered widget and demo pages loaded inside the host page iframe
// ABOUTME: Bot replies are rendered from markdown with goldmark; raw HTML is escaped

package gateway

import (
	"bytes"
	"html/template"
	"net/http"
	"net/url"
	"regexp"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/2389/chatdesk/internal/conversation"
	"github.com/2389/chatdesk/internal/hostbridge"
	"github.com/2389/chatdesk/internal/persistence"
	"github.com/2389/chatdesk/internal/widget"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.Linkify, extension.Strikethrough))

// renderMarkdown converts message text to HTML. Raw HTML in the source is
// not passed through.
func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String())
}

var pageFuncs = template.FuncMap{
	"markdown": renderMarkdown,
}

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// widgetPage is the data for widget.html.
type widgetPage struct {
	Config       widget.Config
	PrimaryColor template.CSS
	Vertical     string
	Horizontal   string
	Messages     []widget.Message
	Boot         pageBoot
}

// pageBoot is handed to widget.js.
type pageBoot struct {
	SessionsURL string `json:"sessionsUrl"`
	Mode        string `json:"mode"`
}

func newWidgetPage(cfg widget.Config, boot pageBoot) widgetPage {
	cfg = cfg.WithDefaults()
	color := widget.DefaultPrimaryColor
	if hexColor.MatchString(cfg.PrimaryColor) {
		color = cfg.PrimaryColor
	}
	return widgetPage{
		Config:       cfg,
		PrimaryColor: template.CSS(color),
		Vertical:     cfg.Placement.Vertical(),
		Horizontal:   cfg.Placement.Horizontal(),
		Boot:         boot,
	}
}

func (g *Gateway) renderPage(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := g.pages.ExecuteTemplate(&buf, name, data); err != nil {
		g.logger.Error("failed to render page", "template", name, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func (g *Gateway) renderUnavailable(w http.ResponseWriter, status int, reason string) {
	g.renderPage(w, status, "unavailable.html", struct{ Reason string }{reason})
}

// handleWidgetPage handles GET /widget/{id}?mode=&visitor=&theme=...
//
// Display overrides in the query are applied to the page and forwarded to
// the session endpoint. With a visitor id the persisted conversation is
// rendered up front.
func (g *Gateway) handleWidgetPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode, ok := conversation.ParseMode(q.Get("mode"))
	if !ok {
		g.renderUnavailable(w, http.StatusBadRequest, "unknown mode")
		return
	}

	cfg, err := g.store.GetWidgetConfig(r.Context(), r.PathValue("id"))
	if err != nil {
		g.logger.Debug("widget page for missing config", "widget_id", r.PathValue("id"), "error", err)
		g.renderUnavailable(w, http.StatusNotFound, "")
		return
	}
	conf := hostbridge.ApplyOverrides(*cfg, q)

	forward := url.Values{}
	for k, v := range q {
		if k != "mode" && k != "visitor" {
			forward[k] = v
		}
	}
	sessionsURL := "/api/widgets/" + url.PathEscape(cfg.ID) + "/sessions"
	if len(forward) > 0 {
		sessionsURL += "?" + forward.Encode()
	}

	page := newWidgetPage(conf, pageBoot{SessionsURL: sessionsURL, Mode: mode.String()})
	if visitor, err := uuid.Parse(q.Get("visitor")); err == nil && mode != conversation.ModePreview {
		adapter := persistence.NewAdapter(persistence.Namespace(g.snapshots, visitor.String()), cfg.ID, persistence.Options{Now: g.clock.Now, Logger: g.logger})
		if snap, ok := adapter.Load(r.Context()); ok {
			page.Messages = snap.Messages
		}
	}
	g.renderPage(w, http.StatusOK, "widget.html", page)
}

// handleDemoPage handles GET /demo/{id}.
func (g *Gateway) handleDemoPage(w http.ResponseWriter, r *http.Request) {
	demo, err := g.store.GetDemo(r.Context(), r.PathValue("id"))
	if err != nil {
		g.renderUnavailable(w, http.StatusNotFound, "")
		return
	}
	conf := demo.Config
	conf.ID = demo.ID

	page := newWidgetPage(conf, pageBoot{
		SessionsURL: "/api/demos/" + url.PathEscape(demo.ID) + "/sessions",
		Mode:        conversation.ModeProduction.String(),
	})
	g.renderPage(w, http.StatusOK, "widget.html", page)
}
