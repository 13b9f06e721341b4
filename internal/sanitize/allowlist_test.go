package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy_NeverAllowsExecutableTags(t *testing.T) {
	p := DefaultPolicy()

	for _, tag := range []string{
		"script", "style", "iframe", "object", "embed", "form",
		"input", "button", "base", "meta", "link",
		"SCRIPT", "IFrame",
	} {
		assert.False(t, p.IsTagAllowed(tag), "tag %q must not be allowed", tag)
	}
}

func TestDefaultPolicy_URLAttributesAreTagScoped(t *testing.T) {
	p := DefaultPolicy()

	for _, attr := range []string{"href", "src"} {
		_, inWildcard := p.attributes[WildcardKey][attr]
		assert.False(t, inWildcard, "%s must not be a wildcard attribute", attr)
	}

	for tag, attrs := range p.attributes {
		if _, ok := attrs["href"]; ok {
			assert.Equal(t, "a", tag, "href allowed on %q", tag)
		}
		if _, ok := attrs["src"]; ok {
			assert.Equal(t, "img", tag, "src allowed on %q", tag)
		}
	}
}

func TestPolicy_AllowedAttributes(t *testing.T) {
	p := DefaultPolicy()

	attrs := p.AllowedAttributes("td")
	for _, name := range []string{"colspan", "rowspan", "align", "class", "id"} {
		assert.Contains(t, attrs, name)
	}
	assert.NotContains(t, attrs, "href")

	unknown := p.AllowedAttributes("blink")
	assert.Len(t, unknown, 2)
	assert.False(t, p.IsTagAllowed("blink"))
}

func TestPolicy_AllowedAttributesReturnsCopy(t *testing.T) {
	p := DefaultPolicy()

	attrs := p.AllowedAttributes("a")
	attrs["onclick"] = struct{}{}

	assert.False(t, p.IsAttributeAllowed("a", "onclick"))
}

func TestPolicy_CaseInsensitive(t *testing.T) {
	p := DefaultPolicy()

	assert.True(t, p.IsTagAllowed("TABLE"))
	assert.True(t, p.IsAttributeAllowed("A", "HREF"))
	assert.True(t, p.IsAttributeAllowed("section", "class"))
	assert.False(t, p.IsAttributeAllowed("p", "href"))
}

func TestPolicy_DiscardsContent(t *testing.T) {
	p := DefaultPolicy()

	assert.True(t, p.DiscardsContent("script"))
	assert.True(t, p.DiscardsContent("STYLE"))
	assert.False(t, p.DiscardsContent("iframe"))
	assert.False(t, p.DiscardsContent("unknowntag"))
}

func TestPolicy_Blocks(t *testing.T) {
	assert.Len(t, DefaultPolicy().blocks, 2)

	p := NewPolicy([]string{"pre"}, nil, []string{"STYLE", "pre", "iframe"})
	require.Len(t, p.blocks, 2)
	assert.True(t, p.blocks[0].MatchString(`<iframe src="x">a</iframe>`))
	assert.True(t, p.blocks[1].MatchString(`<style>p{}`))
	assert.False(t, p.blocks[1].MatchString(`<styles>`))
}

func TestNewPolicy(t *testing.T) {
	p := NewPolicy(
		[]string{"B", "a"},
		map[string][]string{"A": {"HREF"}},
		nil,
	)

	assert.True(t, p.IsTagAllowed("b"))
	assert.True(t, p.IsAttributeAllowed("a", "href"))
	assert.False(t, p.IsAttributeAllowed("b", "class"))
	assert.ElementsMatch(t, []string{"a", "b"}, p.Tags())
}
