package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSafeURL(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{"root relative", "/blog/post", true},
		{"fragment", "#section-2", true},
		{"dot relative", "./image.png", true},
		{"parent relative", "../index.html", true},
		{"protocol relative", "//cdn.example.com/a.png", true},
		{"https", "https://example.com", true},
		{"http with path", "http://example.com/a?b=c", true},
		{"mailto", "mailto:someone@example.com", true},
		{"uppercase scheme parsed", "HTTP://example.com", true},
		{"unparseable with literal prefix", "https://exa\tmple.com", true},

		{"empty", "", false},
		{"javascript", "javascript:alert(1)", false},
		{"javascript mixed case", "JaVaScRiPt:alert(1)", false},
		{"javascript with tab", "java\tscript:alert(1)", false},
		{"vbscript", "vbscript:msgbox(1)", false},
		{"data", "data:text/html;base64,PHNjcmlwdD4=", false},
		{"ftp", "ftp://example.com/file", false},
		{"bare relative", "blog/post", false},
		{"leading space", " https://example.com", false},
		{"uppercase scheme unparseable", "HTTP://exa\tmple.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSafeURL(tt.raw), "IsSafeURL(%q)", tt.raw)
		})
	}
}

func TestIsDataURI(t *testing.T) {
	assert.True(t, IsDataURI("data:image/png;base64,AAAA"))
	assert.True(t, IsDataURI("  DATA:text/html,hi"))
	assert.False(t, IsDataURI("metadata: value"))
	assert.False(t, IsDataURI("https://example.com/data:x"))
	assert.False(t, IsDataURI(""))
}
