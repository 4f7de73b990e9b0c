package selector

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// The capture script applies the same two rules, so descriptors built
// from a DOM snapshot and from the live page agree: only plain
// identifier classes count, and at most the first two form the compound.
const maxClasses = 2

var classRE = regexp.MustCompile(`^[A-Za-z_-][A-Za-z0-9_-]*$`)

func usableClasses(raw []string) []string {
	var out []string
	for _, c := range raw {
		if !classRE.MatchString(c) {
			continue
		}
		out = append(out, c)
		if len(out) == maxClasses {
			break
		}
	}
	return out
}

// FromNode builds a Descriptor for an element node of a parsed document.
// doc is the document the node belongs to; it is consulted only for the
// class-compound uniqueness count.
func FromNode(n *html.Node, doc *goquery.Document) Descriptor {
	d := Descriptor{
		Tag:         strings.ToLower(n.Data),
		TestID:      attr(n, "data-testid"),
		ID:          attr(n, "id"),
		Name:        attr(n, "name"),
		AriaLabel:   attr(n, "aria-label"),
		Placeholder: attr(n, "placeholder"),
		Text:        strings.TrimSpace(textContent(n)),
		Classes:     usableClasses(strings.Fields(attr(n, "class"))),
		Path:        buildPath(n),
	}
	if len(d.Classes) > 0 && doc != nil {
		d.ClassMatches = doc.Find("." + strings.Join(d.Classes, ".")).Length()
	}
	return d
}

// buildPath walks from n up to (but excluding) body, recording one segment
// per ancestor. The walk stops early at the nearest element carrying an id.
// Segments are returned outermost first.
func buildPath(n *html.Node) []PathSegment {
	var reversed []PathSegment
	for cur := n; cur != nil && cur.Type == html.ElementNode && !strings.EqualFold(cur.Data, "body"); cur = cur.Parent {
		seg := PathSegment{Tag: strings.ToLower(cur.Data)}
		if id := attr(cur, "id"); id != "" {
			seg.ID = id
			reversed = append(reversed, seg)
			break
		}
		if idx, multiple := nthOfType(cur); multiple {
			seg.NthOfType = idx
		}
		reversed = append(reversed, seg)
	}

	path := make([]PathSegment, len(reversed))
	for i, seg := range reversed {
		path[len(reversed)-1-i] = seg
	}
	return path
}

// nthOfType returns the 1-based position of n among its same-tag element
// siblings, and whether there is more than one such sibling.
func nthOfType(n *html.Node) (int, bool) {
	if n.Parent == nil {
		return 0, false
	}
	idx, total := 0, 0
	for c := n.Parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || !strings.EqualFold(c.Data, n.Data) {
			continue
		}
		total++
		if c == n {
			idx = total
		}
	}
	return idx, total > 1
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
		for child := c.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return sb.String()
}
