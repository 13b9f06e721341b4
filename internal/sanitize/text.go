package sanitize

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// maxTextPasses bounds the fixpoint loop. Well-formed input settles in two
// passes; only nested smuggling such as "<scr<script></script>ipt>" needs more.
const maxTextPasses = 8

var (
	commentRe     = regexp.MustCompile(`(?s)<!--(?:-?>|.*?(?:--!?>|$))`)
	declarationRe = regexp.MustCompile(`<[!?][^>]*>`)

	quotedHandlerRe   = regexp.MustCompile(`(?i)([\s/"'])on[a-z0-9_:.-]+\s*=\s*(?:"[^"]*"|'[^']*')`)
	unquotedHandlerRe = regexp.MustCompile(`(?i)([\s/"'])on[a-z0-9_:.-]+\s*=\s*[^\s"'>]+`)

	javascriptRe = regexp.MustCompile(`(?i)javascript:`)
	dataURIRe    = regexp.MustCompile(`(?i)\bdata:[^"'\s>]*`)

	// tagRe matches a complete start or end tag. Attribute values are only
	// recognised after '='; anything else that starts with '<' falls through
	// to the bare alternative and is escaped.
	tagRe = regexp.MustCompile(`<(/?)([a-zA-Z][a-zA-Z0-9:-]*)((?:[\s/]+(?:[^\s"'>/=]+(?:\s*=\s*(?:"[^"]*"|'[^']*'|[^\s"'>]*))?[\s/]*)*)?)>|<`)
	attrRe = regexp.MustCompile(`([^\s"'>/=]+)(?:\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s"'>]*)))?`)

	anchorRe         = regexp.MustCompile(`<a\b[^>]*>`)
	normalizedAttrRe = regexp.MustCompile(`\s([^\s"'>/=]+)="([^"]*)"`)
)

type textRule struct {
	name  string
	apply func(p *textPipeline, s string) string
}

// textRules run in order; later rules rely on earlier ones. Handler attributes
// with quoted values must be gone before the unquoted rule runs, and the tag
// rules only see markup that survived the block and scheme removals.
var textRules = []textRule{
	{"comments", (*textPipeline).removeComments},
	{"discard", (*textPipeline).removeDiscarded},
	{"handlers-quoted", func(p *textPipeline, s string) string { return p.removeHandlers(quotedHandlerRe, s) }},
	{"handlers-unquoted", func(p *textPipeline, s string) string { return p.removeHandlers(unquotedHandlerRe, s) }},
	{"javascript", func(_ *textPipeline, s string) string { return javascriptRe.ReplaceAllString(s, "") }},
	{"data-uri", func(_ *textPipeline, s string) string { return dataURIRe.ReplaceAllString(s, "") }},
	{"tags", (*textPipeline).removeDisallowedTags},
	{"attributes", (*textPipeline).rebuildAttributes},
	{"rel", (*textPipeline).hardenAnchors},
}

type textPipeline struct {
	policy *Policy
	report Report
}

// sanitizeText runs the rule pipeline until its output stops changing.
func sanitizeText(input string, policy *Policy) (string, Report) {
	p := &textPipeline{policy: policy}

	out := input
	for pass := 1; pass <= maxTextPasses; pass++ {
		p.report.Passes = pass
		prev := out
		for _, rule := range textRules {
			out = rule.apply(p, out)
		}
		if out == prev {
			p.report.Links = len(anchorRe.FindAllStringIndex(out, -1))
			return out, p.report
		}
	}

	// Still changing: nothing left in the output may be read as markup.
	p.report.Escaped += strings.Count(out, "<")
	return strings.ReplaceAll(out, "<", "&lt;"), p.report
}

func (p *textPipeline) removeComments(s string) string {
	s = commentRe.ReplaceAllStringFunc(s, func(string) string {
		p.report.Comments++
		return ""
	})
	return declarationRe.ReplaceAllString(s, "")
}

// removeDiscarded drops every element the policy discards, content included.
func (p *textPipeline) removeDiscarded(s string) string {
	for _, re := range p.policy.blocks {
		s = p.removeBlocks(re, s)
	}
	return s
}

// removeBlocks repeats until no block is left, so a block re-formed by the
// removal of an inner one is dropped along with its content.
func (p *textPipeline) removeBlocks(re *regexp.Regexp, s string) string {
	for {
		out := re.ReplaceAllStringFunc(s, func(string) string {
			p.report.Discarded++
			return ""
		})
		if out == s {
			return out
		}
		s = out
	}
}

func (p *textPipeline) removeHandlers(re *regexp.Regexp, s string) string {
	return re.ReplaceAllStringFunc(s, func(m string) string {
		p.report.Attributes++
		// Keep the delimiter that preceded the handler name.
		return m[:1]
	})
}

// removeDisallowedTags drops the markers of every tag outside the allowlist
// and escapes any '<' that does not open a well-formed tag.
func (p *textPipeline) removeDisallowedTags(s string) string {
	return tagRe.ReplaceAllStringFunc(s, func(m string) string {
		sub := tagRe.FindStringSubmatch(m)
		if sub[2] == "" {
			p.report.Escaped++
			return "&lt;"
		}
		if p.policy.IsTagAllowed(sub[2]) {
			return m
		}
		if sub[1] == "" {
			p.report.Unwrapped++
		}
		return ""
	})
}

// rebuildAttributes rewrites every remaining tag in a normalised form that
// carries only allowlisted attributes with entity-decoded, re-escaped values.
func (p *textPipeline) rebuildAttributes(s string) string {
	return tagRe.ReplaceAllStringFunc(s, func(m string) string {
		sub := tagRe.FindStringSubmatch(m)
		if sub[2] == "" {
			return "&lt;"
		}

		name := strings.ToLower(sub[2])
		if sub[1] == "/" {
			return "</" + name + ">"
		}

		allowed := p.policy.AllowedAttributes(name)
		seen := make(map[string]struct{})

		var b strings.Builder
		b.WriteByte('<')
		b.WriteString(name)
		for _, a := range attrRe.FindAllStringSubmatch(sub[3], -1) {
			key := strings.ToLower(a[1])
			value := html.UnescapeString(a[2] + a[3] + a[4])

			attr := html.Attribute{Key: key, Val: value}
			if _, dup := seen[key]; dup || !keepAttribute(attr, key, allowed) {
				p.report.Attributes++
				continue
			}
			seen[key] = struct{}{}

			b.WriteByte(' ')
			b.WriteString(key)
			b.WriteString(`="`)
			b.WriteString(html.EscapeString(value))
			b.WriteByte('"')
		}
		b.WriteByte('>')
		return b.String()
	})
}

// hardenAnchors replaces whatever rel an anchor carries with the hardened
// value. Tags are already normalised, so every value is double-quoted.
func (p *textPipeline) hardenAnchors(s string) string {
	return anchorRe.ReplaceAllStringFunc(s, func(m string) string {
		var b strings.Builder
		b.WriteString(`<a rel="` + hardenedRel + `"`)
		for _, a := range normalizedAttrRe.FindAllStringSubmatch(m, -1) {
			if a[1] == "rel" {
				continue
			}
			b.WriteString(a[0])
		}
		b.WriteByte('>')
		return b.String()
	})
}
