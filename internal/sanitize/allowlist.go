package sanitize

import (
	"regexp"
	"sort"
	"strings"
)

// WildcardKey is the reserved attribute table key whose entries apply to every tag.
const WildcardKey = "*"

// Policy is the allowlist shared by the tree and text strategies. A Policy is
// read-only once built; every lookup lower-cases its input.
type Policy struct {
	tags       map[string]struct{}
	attributes map[string]map[string]struct{}
	discard    map[string]struct{}

	// blocks match a discarded element with its content, one per tag in
	// name order, for pipelines that work on markup text.
	blocks []*regexp.Regexp
}

var defaultPolicy = NewPolicy(
	[]string{
		"h1", "h2", "h3", "h4", "h5", "h6",
		"p", "br", "hr", "div", "span",
		"blockquote", "pre", "code", "kbd", "samp",
		"b", "i", "em", "strong", "u", "s", "del", "ins",
		"sub", "sup", "mark", "small", "abbr", "cite", "q",
		"ul", "ol", "li", "dl", "dt", "dd",
		"a", "img",
		"table", "thead", "tbody", "tfoot", "tr", "th", "td", "caption",
		"figure", "figcaption", "details", "summary",
	},
	map[string][]string{
		"a":         {"href", "title", "rel"},
		"img":       {"src", "alt", "title", "width", "height"},
		"td":        {"colspan", "rowspan", "align"},
		"th":        {"colspan", "rowspan", "align"},
		"ol":        {"start"},
		"abbr":      {"title"},
		WildcardKey: {"class", "id"},
	},
	[]string{"script", "style"},
)

// DefaultPolicy returns the process-wide allowlist used by SanitizeHTML.
func DefaultPolicy() *Policy {
	return defaultPolicy
}

// NewPolicy builds a Policy from tag and attribute lists. discard names the
// disallowed tags whose content is dropped along with the tag; every other
// disallowed tag is unwrapped. The inputs are copied.
func NewPolicy(tags []string, attributes map[string][]string, discard []string) *Policy {
	p := &Policy{
		tags:       toSet(tags),
		attributes: make(map[string]map[string]struct{}, len(attributes)),
		discard:    toSet(discard),
	}
	for tag, attrs := range attributes {
		p.attributes[strings.ToLower(tag)] = toSet(attrs)
	}
	p.blocks = compileBlocks(p)
	return p
}

// compileBlocks builds a matcher for every discarded tag that is not also
// allowed. An unterminated element runs to the end of the input.
func compileBlocks(p *Policy) []*regexp.Regexp {
	names := make([]string, 0, len(p.discard))
	for tag := range p.discard {
		if _, allowed := p.tags[tag]; !allowed {
			names = append(names, tag)
		}
	}
	sort.Strings(names)

	blocks := make([]*regexp.Regexp, 0, len(names))
	for _, tag := range names {
		q := regexp.QuoteMeta(tag)
		blocks = append(blocks, regexp.MustCompile(`(?is)<`+q+`\b[^>]*>.*?(?:</`+q+`\s*>|$)`))
	}
	return blocks
}

// IsTagAllowed reports whether tag survives sanitization.
func (p *Policy) IsTagAllowed(tag string) bool {
	_, ok := p.tags[strings.ToLower(tag)]
	return ok
}

// DiscardsContent reports whether a disallowed tag is removed together with
// everything inside it.
func (p *Policy) DiscardsContent(tag string) bool {
	_, ok := p.discard[strings.ToLower(tag)]
	return ok
}

// AllowedAttributes returns the union of the attributes permitted on tag and
// the wildcard attributes. The returned map is freshly allocated.
func (p *Policy) AllowedAttributes(tag string) map[string]struct{} {
	tagAttrs := p.attributes[strings.ToLower(tag)]
	wildcard := p.attributes[WildcardKey]

	out := make(map[string]struct{}, len(tagAttrs)+len(wildcard))
	for name := range wildcard {
		out[name] = struct{}{}
	}
	for name := range tagAttrs {
		out[name] = struct{}{}
	}
	return out
}

// IsAttributeAllowed reports whether attr may appear on tag.
func (p *Policy) IsAttributeAllowed(tag, attr string) bool {
	attr = strings.ToLower(attr)
	if _, ok := p.attributes[WildcardKey][attr]; ok {
		return true
	}
	_, ok := p.attributes[strings.ToLower(tag)][attr]
	return ok
}

// Tags returns the allowed tag names in no particular order.
func (p *Policy) Tags() []string {
	out := make([]string, 0, len(p.tags))
	for tag := range p.tags {
		out = append(out, tag)
	}
	return out
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[strings.ToLower(v)] = struct{}{}
	}
	return set
}
