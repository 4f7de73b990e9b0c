// Package selector maps DOM elements to robust CSS/text selectors.
//
// Resolution is split in two: a Descriptor carries the raw facts about an
// element (attributes, class uniqueness, ancestor path) and Resolve applies
// the precedence rules over those facts. Descriptors are built either
// in-page by the injected capture script or host-side from parsed HTML
// (FromNode), so the precedence decision itself exists only here.
package selector

import (
	"strconv"
	"strings"
)

// maxTextLength bounds the visible text embedded in a text-match selector.
const maxTextLength = 50

// PathSegment is one element of the structural fallback path, ordered
// outermost first. A segment with a non-empty ID terminates the walk and
// renders as an ID selector.
type PathSegment struct {
	Tag       string `json:"tag"`
	ID        string `json:"id,omitempty"`
	NthOfType int    `json:"nth,omitempty"` // 1-based; 0 when the element has no same-tag siblings
}

// Descriptor carries the raw facts about a DOM element needed to derive
// a selector. Zero values mean "absent".
type Descriptor struct {
	Tag          string        `json:"tag"`
	TestID       string        `json:"testId,omitempty"`
	ID           string        `json:"id,omitempty"`
	Classes      []string      `json:"classes,omitempty"`
	ClassMatches int           `json:"classMatches,omitempty"` // document match count for the class compound
	Name         string        `json:"name,omitempty"`
	AriaLabel    string        `json:"ariaLabel,omitempty"`
	Placeholder  string        `json:"placeholder,omitempty"`
	Text         string        `json:"text,omitempty"`
	Path         []PathSegment `json:"path,omitempty"`
}

// Resolve derives a single selector from d. Precedence, first success wins:
// data-testid, id, unique class compound, name, aria-label, placeholder,
// visible text for buttons and links, structural path fallback.
//
// Resolve is pure and re-entrant; it is called once per captured event.
func Resolve(d Descriptor) string {
	if d.TestID != "" {
		return `[data-testid="` + attrEscape(d.TestID) + `"]`
	}
	if d.ID != "" {
		return "#" + d.ID
	}
	if len(d.Classes) > 0 && d.ClassMatches == 1 {
		return "." + strings.Join(d.Classes, ".")
	}
	if d.Name != "" {
		return `[name="` + attrEscape(d.Name) + `"]`
	}
	if d.AriaLabel != "" {
		return `[aria-label="` + attrEscape(d.AriaLabel) + `"]`
	}
	if d.Placeholder != "" {
		return `[placeholder="` + attrEscape(d.Placeholder) + `"]`
	}
	if tag := strings.ToLower(d.Tag); tag == "button" || tag == "a" {
		if text := Truncate(strings.TrimSpace(d.Text), maxTextLength); text != "" {
			return tag + `:has-text("` + attrEscape(text) + `")`
		}
	}
	return pathSelector(d)
}

func pathSelector(d Descriptor) string {
	if len(d.Path) == 0 {
		return strings.ToLower(d.Tag)
	}

	parts := make([]string, 0, len(d.Path))
	for _, seg := range d.Path {
		if seg.ID != "" {
			parts = append(parts, "#"+seg.ID)
			continue
		}
		s := strings.ToLower(seg.Tag)
		if seg.NthOfType > 0 {
			s += ":nth-of-type(" + strconv.Itoa(seg.NthOfType) + ")"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " > ")
}

// Truncate limits s to n runes.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// attrEscape neutralises characters that would break out of a quoted
// attribute or text-match value.
func attrEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
