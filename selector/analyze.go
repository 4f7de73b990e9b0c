package selector

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Element is one interactable element discovered on a page, with a
// suggested selector. Used by the control surface to assist assertion
// authoring against a live recording.
type Element struct {
	Kind     string            `json:"kind"` // link | button | input | select | textarea | clickable
	Tag      string            `json:"tag"`
	Text     string            `json:"text,omitempty"`
	Selector string            `json:"selector"`
	Attrs    map[string]string `json:"attrs,omitempty"`
}

// interactables matches the elements a recording user can meaningfully
// target.
const interactables = `a, button, input, select, textarea, [role="button"], [onclick]`

// AnalyzeHTML parses an HTML document and returns its interactable
// elements in document order.
func AnalyzeHTML(r io.Reader) ([]Element, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("selector: parse html: %w", err)
	}

	var out []Element
	doc.Find(interactables).Each(func(_ int, sel *goquery.Selection) {
		n := sel.Get(0)
		if n == nil {
			return
		}
		tag := strings.ToLower(n.Data)
		if tag == "input" && attr(n, "type") == "hidden" {
			return
		}

		el := Element{
			Kind:     elementKind(tag, attr(n, "role")),
			Tag:      tag,
			Text:     Truncate(strings.TrimSpace(textContent(n)), maxTextLength),
			Selector: Resolve(FromNode(n, doc)),
		}
		for _, key := range []string{"href", "type", "name", "placeholder", "value"} {
			if v := attr(n, key); v != "" {
				if el.Attrs == nil {
					el.Attrs = make(map[string]string)
				}
				el.Attrs[key] = v
			}
		}
		out = append(out, el)
	})
	return out, nil
}

func elementKind(tag, role string) string {
	switch tag {
	case "a":
		return "link"
	case "button":
		return "button"
	case "input", "select", "textarea":
		return tag
	}
	if role == "button" {
		return "button"
	}
	return "clickable"
}
