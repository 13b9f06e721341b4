package sanitize

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

const hardenedRel = "noopener noreferrer"

// maxTreePasses bounds re-parsing. Some trees, such as template content,
// render to markup that the parser reads back into a different tree; such
// output is sanitized again until it settles.
const maxTreePasses = 4

var errNoBody = errors.New("document has no body")

// sanitizeTree parses input, rewrites the body in place and serializes it,
// repeating until the serialized form parses back to itself. Output that is
// still changing at the last pass is reduced to its escaped text.
func sanitizeTree(input string, policy *Policy) (string, Report, error) {
	var report Report

	out := input
	for pass := 1; pass <= maxTreePasses; pass++ {
		body, err := parseBody(out)
		if err != nil {
			return "", report, err
		}

		w := &treeWalker{policy: policy}
		w.walk(body)
		report.add(w.report)
		report.Links = w.report.Links
		report.Passes = pass

		rendered, err := renderChildren(body)
		if err != nil {
			return "", report, err
		}
		if pass > 1 && rendered == out {
			return rendered, report, nil
		}
		out = rendered
	}

	body, err := parseBody(out)
	if err != nil {
		return "", report, err
	}
	// The parser drops whitespace ahead of the body; so does the result.
	text := &html.Node{Type: html.TextNode, Data: strings.TrimLeft(textContent(body), " \t\n\r\f")}
	flat, err := renderChildren(&html.Node{FirstChild: text, LastChild: text})
	if err != nil {
		return "", report, err
	}
	report.Escaped += strings.Count(out, "<")
	report.Links = 0
	return flat, report, nil
}

func parseBody(input string) (*html.Node, error) {
	doc, err := html.Parse(strings.NewReader(input))
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}
	body := findBody(doc)
	if body == nil {
		return nil, errNoBody
	}
	return body, nil
}

func renderChildren(n *html.Node) (string, error) {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", fmt.Errorf("rendering html: %w", err)
		}
	}
	return buf.String(), nil
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return b.String()
}

type treeWalker struct {
	policy *Policy
	report Report
}

// walk rewrites the child list of parent first and only then descends, so a
// spliced child is visited exactly once, as a child of its new parent.
func (w *treeWalker) walk(parent *html.Node) {
	w.rewriteChildren(parent)

	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		w.cleanAttributes(c)
		w.walk(c)
	}
}

func (w *treeWalker) rewriteChildren(parent *html.Node) {
	c := parent.FirstChild
	for c != nil {
		next := c.NextSibling

		switch c.Type {
		case html.CommentNode:
			parent.RemoveChild(c)
			w.report.Comments++

		case html.DoctypeNode:
			parent.RemoveChild(c)

		case html.ElementNode:
			if w.isAllowed(c) {
				break
			}
			if w.policy.DiscardsContent(c.Data) {
				parent.RemoveChild(c)
				w.report.Discarded++
				break
			}
			// Continue with the first spliced child so nested wrappers
			// collapse in this same pass.
			if c.FirstChild != nil {
				next = c.FirstChild
			}
			unwrap(c)
			w.report.Unwrapped++
		}

		c = next
	}
}

// isAllowed rejects foreign content (svg, math) wholesale: its elements
// share names with HTML tags but serialize under different rules.
func (w *treeWalker) isAllowed(n *html.Node) bool {
	return n.Namespace == "" && w.policy.IsTagAllowed(n.Data)
}

func (w *treeWalker) cleanAttributes(n *html.Node) {
	allowed := w.policy.AllowedAttributes(n.Data)
	seen := make(map[string]struct{}, len(n.Attr))

	kept := n.Attr[:0]
	for _, attr := range n.Attr {
		key := strings.ToLower(attr.Key)
		if _, dup := seen[key]; dup || !keepAttribute(attr, key, allowed) {
			w.report.Attributes++
			continue
		}
		seen[key] = struct{}{}
		attr.Key = key
		kept = append(kept, attr)
	}
	n.Attr = kept

	if n.Data == "a" {
		setAttr(n, "rel", hardenedRel)
		w.report.Links++
	}
}

func keepAttribute(attr html.Attribute, key string, allowed map[string]struct{}) bool {
	if attr.Namespace != "" {
		return false
	}
	if _, ok := allowed[key]; !ok {
		return false
	}
	if (key == "href" || key == "src") && !IsSafeURL(attr.Val) {
		return false
	}
	if containsJavascriptScheme(attr.Val) || IsDataURI(attr.Val) {
		return false
	}
	return true
}

// unwrap moves the children of n into its parent at n's position and
// detaches n.
func unwrap(n *html.Node) {
	parent := n.Parent
	for child := n.FirstChild; child != nil; child = n.FirstChild {
		n.RemoveChild(child)
		parent.InsertBefore(child, n)
	}
	parent.RemoveChild(n)
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if body := findBody(c); body != nil {
			return body
		}
	}
	return nil
}
