package sanitize

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeTree(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "drops script with content",
			input: `<p>Hello</p><script>alert(1)</script>`,
			want:  `<p>Hello</p>`,
		},
		{
			name:  "unwraps unknown element",
			input: `<div><unknowntag>hello</unknowntag></div>`,
			want:  `<div>hello</div>`,
		},
		{
			name:  "removes event handler",
			input: `<img src="https://x.com/a.png" onerror="alert(1)">`,
			want:  `<img src="https://x.com/a.png"/>`,
		},
		{
			name:  "drops javascript href and hardens link",
			input: `<a href="javascript:alert(1)">click</a>`,
			want:  `<a rel="noopener noreferrer">click</a>`,
		},
		{
			name:  "keeps relative href",
			input: `<a href="/blog/post">x</a>`,
			want:  `<a href="/blog/post" rel="noopener noreferrer">x</a>`,
		},
		{
			name:  "overwrites existing rel in place",
			input: `<a rel="opener" href="https://example.com">x</a>`,
			want:  `<a rel="noopener noreferrer" href="https://example.com">x</a>`,
		},
		{
			name:  "drops entity encoded javascript href",
			input: `<a href="&#106;avascript:alert(1)">x</a>`,
			want:  `<a rel="noopener noreferrer">x</a>`,
		},
		{
			name:  "comment only input",
			input: `<!-- <script>alert(1)</script> -->`,
			want:  ``,
		},
		{
			name:  "comment inside content",
			input: `<p>a<!-- hidden -->b</p>`,
			want:  `<p>ab</p>`,
		},
		{
			name:  "table keeps cell attributes",
			input: `<table><tr><td colspan="2">x</td></tr></table>`,
			want:  `<table><tbody><tr><td colspan="2">x</td></tr></tbody></table>`,
		},
		{
			name:  "drops data uri",
			input: `<img src="data:image/png;base64,AAAA" alt="x">`,
			want:  `<img alt="x"/>`,
		},
		{
			name:  "keeps wildcard attributes only",
			input: `<p onclick="x" class="lead" style="color:red">t</p>`,
			want:  `<p class="lead">t</p>`,
		},
		{
			name:  "unwraps foreign content",
			input: `<svg><a href="/x">y</a></svg>`,
			want:  `y`,
		},
		{
			name:  "discards script inside svg",
			input: `<svg><script>alert(1)</script></svg>ok`,
			want:  `ok`,
		},
		{
			name:  "full document yields body content",
			input: `<!DOCTYPE html><html><head><title>T</title></head><body><p>B</p></body></html>`,
			want:  `<p>B</p>`,
		},
		{
			name:  "closes unclosed elements",
			input: `<p><b>unclosed`,
			want:  `<p><b>unclosed</b></p>`,
		},
		{
			name:  "lowercases tags and attributes",
			input: `<P CLASS="a">x</P>`,
			want:  `<p class="a">x</p>`,
		},
		{
			name:  "unwraps iframe keeping text",
			input: `<iframe src="https://evil.example">inside</iframe>`,
			want:  `inside`,
		},
		{
			name:  "unwraps form controls",
			input: `<form action="/steal"><button>go</button></form>`,
			want:  `go`,
		},
		{
			name:  "escapes text",
			input: `<p>a &lt; b &amp;&amp; c</p>`,
			want:  `<p>a &lt; b &amp;&amp; c</p>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, err := sanitizeTree(tt.input, DefaultPolicy())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSanitizeTree_NestedUnwrapVisitsChildrenOnce(t *testing.T) {
	got, report, err := sanitizeTree(`<x-a><x-b><em>deep</em></x-b></x-a>`, DefaultPolicy())
	require.NoError(t, err)

	assert.Equal(t, `<em>deep</em>`, got)
	assert.Equal(t, 2, report.Unwrapped)
}

func TestSanitizeTree_Report(t *testing.T) {
	input := `<p onclick="x">a<!--c--><script>s</script><x-y>z</x-y><a href="/q">l</a></p>`

	got, report, err := sanitizeTree(input, DefaultPolicy())
	require.NoError(t, err)

	assert.Equal(t, `<p>az<a href="/q" rel="noopener noreferrer">l</a></p>`, got)
	assert.Equal(t, Report{
		Comments:   1,
		Discarded:  1,
		Unwrapped:  1,
		Attributes: 1,
		Links:      1,
		Passes:     2,
	}, report)
	assert.Equal(t, 4, report.Removed())
}

func TestSanitizeTree_NoBody(t *testing.T) {
	_, _, err := sanitizeTree(`<frameset><frame src="x"></frameset>`, DefaultPolicy())
	assert.True(t, errors.Is(err, errNoBody))
}

func TestSanitizeTree_CustomPolicy(t *testing.T) {
	policy := NewPolicy(
		[]string{"p", "a"},
		map[string][]string{"a": {"href"}},
		[]string{"script", "style", "iframe"},
	)

	got, _, err := sanitizeTree(`<p><b>bold</b><iframe>x</iframe><a href="/y" class="c">y</a></p>`, policy)
	require.NoError(t, err)

	assert.Equal(t, `<p>bold<a href="/y" rel="noopener noreferrer">y</a></p>`, got)
}

func TestSanitizeTree_ReparsesUntilStable(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "template rows get a tbody",
			input: `<table><template><tr><td>x</td></tr></template></table>`,
			want:  `<table><tbody><tr><td>x</td></tr></tbody></table>`,
		},
		{
			name:  "template block closes the paragraph",
			input: `<p><template><div>x</div></template></p>`,
			want:  `<p></p><div>x</div><p></p>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, report, err := sanitizeTree(tt.input, DefaultPolicy())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, 3, report.Passes)
			assert.Equal(t, 1, report.Unwrapped)

			again, _, err := sanitizeTree(got, DefaultPolicy())
			require.NoError(t, err)
			assert.Equal(t, got, again)
		})
	}
}

func TestSanitizeTree_NestedAnchorsSplit(t *testing.T) {
	got, report, err := sanitizeTree(`<a href="/x"><template><a href="/y">y</a></template></a>`, DefaultPolicy())
	require.NoError(t, err)

	assert.NotContains(t, got, "<template")
	assert.NotContains(t, got, `rel="noopener noreferrer"><a`)
	assert.Equal(t, 2, strings.Count(got, `rel="noopener noreferrer"`))
	assert.Equal(t, 2, report.Links)

	again, _, err := sanitizeTree(got, DefaultPolicy())
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestTextContent(t *testing.T) {
	body, err := parseBody(`<p>a<b>b</b></p>c`)
	require.NoError(t, err)
	assert.Equal(t, "abc", textContent(body))
}
