package assets

import (
	"html/template"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMimeFromExt(t *testing.T) {
	assert.Equal(t, "application/javascript", mimeFromExt(".js"))
	assert.Equal(t, "text/css; charset=utf-8", mimeFromExt(".css"))
	assert.Equal(t, "image/svg+xml", mimeFromExt(".svg"))
	assert.Equal(t, "application/octet-stream", mimeFromExt(".qqqqqq"))
}

func TestFileServer(t *testing.T) {
	h := http.StripPrefix("/static/", FileServer())

	for _, name := range []string{"widget.js", "widget.css", "embed.js"} {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/"+name, nil))
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
			assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
			assert.NotEmpty(t, rec.Body.String())
		})
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/missing.js", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTemplates(t *testing.T) {
	tmpl, err := Templates(template.FuncMap{"markdown": func(s string) template.HTML { return template.HTML(s) }})
	require.NoError(t, err)
	assert.NotNil(t, tmpl.Lookup("widget.html"))
	assert.NotNil(t, tmpl.Lookup("unavailable.html"))
}

func TestWidgetScriptGuards(t *testing.T) {
	data, err := files.ReadFile("static/widget.js")
	require.NoError(t, err)
	script := string(data)

	// Send stays disabled for blank input, not only while typing.
	assert.Contains(t, script, `$("cd-input").addEventListener("input", updateSend)`)
	assert.Contains(t, script, `empty || typing || limited || !sessionID`)
	// Session actions wait for the session to exist.
	assert.Contains(t, script, `if (!sessionID) { return; }`)
	assert.NotContains(t, script, `"/api/sessions/" + sessionID + "/close"`)
}
