// ABOUTME: URL query overrides applied by the host page on top of a stored config
// ABOUTME: Unknown or malformed values are ignored rather than rejected

package hostbridge

import (
	"net/url"
	"regexp"

	"github.com/2389/chatdesk/internal/widget"
)

var (
	hexColor     = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)
	templateName = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,31}$`)
)

// ApplyOverrides returns cfg with theme, themeColor and template taken
// from q when present and well formed.
func ApplyOverrides(cfg widget.Config, q url.Values) widget.Config {
	if v := widget.Theme(q.Get("theme")); v.Valid() {
		cfg.Theme = v
	}
	if v := q.Get("themeColor"); hexColor.MatchString(v) {
		cfg.PrimaryColor = v
	}
	if v := q.Get("template"); templateName.MatchString(v) {
		cfg.Template = v
	}
	return cfg
}
