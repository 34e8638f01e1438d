// Package assets embeds the widget page templates and the static files
// (widget runtime script, stylesheet and host-page embed loader) served
// under /static/.
package assets
