// Package hostbridge reports widget lifecycle events to the page that
// embeds the widget.
//
// A conversation controller posts three kinds of Event: WIDGET_READY once
// after its state is restored, then WIDGET_OPEN or WIDGET_CLOSE on every
// real visibility change. The page uses them to resize the iframe.
//
// Implementations of Bridge:
//
//   - Noop: the dashboard inline widget has no host page
//   - Hub.Bridge: fans events out to SSE subscribers keyed by session
//   - Recorder: keeps every event, for tests
//
// ApplyOverrides lets a host page adjust theme, themeColor and template
// through URL query parameters without touching the stored config.
package hostbridge
