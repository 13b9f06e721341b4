package publish

import (
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html/atom"
)

var ErrAdapt = errors.New("adapting html for publication")

// Adapter narrows already-sanitized HTML to the subset a publishing target
// can render. Code blocks become quotes, headings collapse to two levels,
// tables become paragraphs and images are wrapped in figures. A bluemonday
// policy then removes anything else the target does not accept.
type Adapter struct {
	policy *bluemonday.Policy
}

func NewAdapter() *Adapter {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "hr",
		"h3", "h4",
		"blockquote",
		"ul", "ol", "li",
		"b", "strong", "i", "em", "u", "s", "del", "code",
		"figure", "figcaption",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowAttrs("src", "alt").OnElements("img")
	p.AllowStandardURLs()
	p.AllowURLSchemes("http", "https", "mailto")
	p.RequireNoReferrerOnLinks(true)

	return &Adapter{policy: p}
}

// Adapt rewrites sanitized for the publishing target.
func (a *Adapter) Adapt(sanitized string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(sanitized))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAdapt, err)
	}

	codeBlocksToQuotes(doc)
	flattenHeadings(doc)
	flattenTables(doc)
	wrapImages(doc)

	body, err := doc.Find("body").Html()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAdapt, err)
	}

	return strings.TrimSpace(a.policy.Sanitize(body)), nil
}

func codeBlocksToQuotes(doc *goquery.Document) {
	doc.Find("pre").Each(func(_ int, s *goquery.Selection) {
		lines := strings.Split(strings.TrimRight(s.Text(), "\n"), "\n")
		for i, line := range lines {
			lines[i] = html.EscapeString(line)
		}
		s.ReplaceWithHtml("<blockquote><code>" + strings.Join(lines, "<br>") + "</code></blockquote>")
	})
}

func flattenHeadings(doc *goquery.Document) {
	// Demote the lower levels first so renamed h3s are not demoted again.
	doc.Find("h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		rename(s, atom.H4)
	})
	doc.Find("h1, h2").Each(func(_ int, s *goquery.Selection) {
		rename(s, atom.H3)
	})
}

func rename(s *goquery.Selection, a atom.Atom) {
	for _, n := range s.Nodes {
		n.DataAtom = a
		n.Data = a.String()
	}
}

// flattenTables turns every row into a paragraph whose cells are separated
// by " | ". The caption, if any, becomes a paragraph of its own.
func flattenTables(doc *goquery.Document) {
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		var b strings.Builder

		if caption := strings.TrimSpace(table.Find("caption").First().Text()); caption != "" {
			b.WriteString("<p><strong>" + html.EscapeString(caption) + "</strong></p>")
		}

		table.Find("tr").Each(func(_ int, row *goquery.Selection) {
			var cells []string
			row.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
				inner, err := cell.Html()
				if err != nil {
					inner = html.EscapeString(cell.Text())
				}
				cells = append(cells, strings.TrimSpace(inner))
			})
			if len(cells) > 0 {
				b.WriteString("<p>" + strings.Join(cells, " | ") + "</p>")
			}
		})

		table.ReplaceWithHtml(b.String())
	})
}

// wrapImages puts each image that is not already inside a figure into one,
// with its alt text as the caption.
func wrapImages(doc *goquery.Document) {
	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		if img.ParentsFiltered("figure").Length() > 0 {
			return
		}

		outer, err := goquery.OuterHtml(img)
		if err != nil {
			return
		}

		figure := "<figure>" + outer
		if alt, ok := img.Attr("alt"); ok && strings.TrimSpace(alt) != "" {
			figure += "<figcaption>" + html.EscapeString(alt) + "</figcaption>"
		}
		figure += "</figure>"

		// A figure cannot sit inside a paragraph; replace a paragraph that
		// holds nothing but the image.
		parent := img.Parent()
		if goquery.NodeName(parent) == "p" && strings.TrimSpace(parent.Text()) == "" && parent.Children().Length() == 1 {
			parent.ReplaceWithHtml(figure)
			return
		}
		img.ReplaceWithHtml(figure)
	})
}
