// Package markdown converts Markdown documents to HTML.
//
// Raw HTML in the source is passed through untouched: the output is not safe
// to display until it has been run through the sanitize package. [Render]
// does both steps.
package markdown

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"

	"github.com/watzon/markguard/internal/config"
	"github.com/watzon/markguard/internal/sanitize"
)

var (
	ErrEmptyDocument       = errors.New("document is empty")
	ErrDocumentTooLarge    = errors.New("document exceeds maximum size")
	ErrInvalidFrontMatter  = errors.New("invalid front matter")
	frontMatterDelimiterRe = regexp.MustCompile(`(?m)^---[ \t]*\r?\n`)
)

// FrontMatter holds the YAML block fenced by "---" lines at the top of a
// document.
type FrontMatter struct {
	Title       string   `yaml:"title" json:"title,omitempty"`
	Description string   `yaml:"description" json:"description,omitempty"`
	Tags        []string `yaml:"tags" json:"tags,omitempty"`
}

// Document is a converted Markdown source.
type Document struct {
	// HTML is unsanitized.
	HTML        string
	FrontMatter FrontMatter
	// Title is the front matter title, or the text of the first level-one
	// heading when the front matter has none.
	Title string
}

type Converter struct {
	md      goldmark.Markdown
	maxSize int
}

// NewConverter builds a converter from cfg. A zero MaxDocumentSize disables
// the size check.
func NewConverter(cfg config.MarkdownConfig) *Converter {
	var extensions []goldmark.Extender
	if cfg.GFM {
		extensions = append(extensions, extension.GFM)
	}

	var parserOpts []parser.Option
	if cfg.HeadingIDs {
		parserOpts = append(parserOpts, parser.WithAutoHeadingID())
	}

	rendererOpts := []renderer.Option{html.WithUnsafe()}
	if cfg.HardWraps {
		rendererOpts = append(rendererOpts, html.WithHardWraps())
	}

	return &Converter{
		md: goldmark.New(
			goldmark.WithExtensions(extensions...),
			goldmark.WithParserOptions(parserOpts...),
			goldmark.WithRendererOptions(rendererOpts...),
		),
		maxSize: int(cfg.MaxDocumentSize),
	}
}

// Convert splits off the front matter and renders the remaining Markdown.
func (c *Converter) Convert(src []byte) (*Document, error) {
	if c.maxSize > 0 && len(src) > c.maxSize {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrDocumentTooLarge, len(src), c.maxSize)
	}

	fm, body, err := splitFrontMatter(src)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrEmptyDocument
	}

	root := c.md.Parser().Parse(text.NewReader(body))

	var buf bytes.Buffer
	if err := c.md.Renderer().Render(&buf, body, root); err != nil {
		return nil, fmt.Errorf("rendering markdown: %w", err)
	}

	title := strings.TrimSpace(fm.Title)
	if title == "" {
		title = firstHeading(root, body)
	}

	return &Document{
		HTML:        buf.String(),
		FrontMatter: fm,
		Title:       title,
	}, nil
}

// splitFrontMatter returns the parsed front matter and the body that follows
// it. A document that does not open with "---", or whose block is never
// closed, has no front matter.
func splitFrontMatter(src []byte) (FrontMatter, []byte, error) {
	var fm FrontMatter

	matches := frontMatterDelimiterRe.FindAllIndex(src, 2)
	if len(matches) < 2 || matches[0][0] != 0 {
		return fm, src, nil
	}

	block := src[matches[0][1]:matches[1][0]]
	if err := yaml.Unmarshal(block, &fm); err != nil {
		return fm, nil, fmt.Errorf("%w: %w", ErrInvalidFrontMatter, err)
	}
	return fm, src[matches[1][1]:], nil
}

func firstHeading(root ast.Node, source []byte) string {
	var title string
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if h, ok := n.(*ast.Heading); ok && h.Level == 1 {
			title = strings.TrimSpace(string(nodeText(h, source)))
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return title
}

// nodeText concatenates the text segments below n.
func nodeText(n ast.Node, source []byte) []byte {
	var buf bytes.Buffer
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(source))
			if t.SoftLineBreak() {
				buf.WriteByte(' ')
			}
		case *ast.String:
			buf.Write(t.Value)
		default:
			buf.Write(nodeText(c, source))
		}
	}
	return buf.Bytes()
}

var defaultConverter = NewConverter(config.Default().Markdown)

// Render converts src with the default settings and sanitizes the result.
func Render(src []byte) (string, error) {
	doc, err := defaultConverter.Convert(src)
	if err != nil {
		return "", err
	}
	return sanitize.SanitizeHTML(doc.HTML), nil
}
