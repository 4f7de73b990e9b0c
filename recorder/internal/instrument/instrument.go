// Package instrument owns the in-page capture script and the decoding of
// the payloads it sends back over the page binding.
package instrument

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/hazyhaar/recwatch/action"
	"github.com/hazyhaar/recwatch/selector"
)

// BindingName is the function the capture script calls on window to hand
// a payload to the host.
const BindingName = "__recwatch_emit"

//go:embed recorder.js
var script string

// JS returns the capture script to inject into every document of a
// recorded page.
func JS() string { return script }

// payload is the wire shape emitted by recorder.js.
type payload struct {
	Kind       string              `json:"kind"`
	Descriptor selector.Descriptor `json:"descriptor"`
	Value      string              `json:"value,omitempty"`
	OptionText string              `json:"optionText,omitempty"`
	Key        string              `json:"key,omitempty"`
	InputType  string              `json:"inputType,omitempty"`
}

// Decode turns one raw binding payload into a partially-filled action:
// the selector is resolved host-side from the element facts and a human
// description is attached. ID and Timestamp are left for the engine.
func Decode(raw string) (action.Action, error) {
	var p payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return action.Action{}, fmt.Errorf("instrument: decode payload: %w", err)
	}
	sel := selector.Resolve(p.Descriptor)

	switch p.Kind {
	case "click":
		return action.Action{
			Type:        action.Click,
			Selector:    sel,
			Description: clickDescription(p.Descriptor),
		}, nil
	case "fill":
		return action.Action{
			Type:        action.Fill,
			Selector:    sel,
			Value:       p.Value,
			Description: fillDescription(p.InputType, p.Value),
		}, nil
	case "select":
		label := p.OptionText
		if label == "" {
			label = p.Value
		}
		return action.Action{
			Type:        action.Select,
			Selector:    sel,
			Value:       p.Value,
			Description: fmt.Sprintf("Select %q", label),
		}, nil
	case "check":
		return action.Action{
			Type:        action.Check,
			Selector:    sel,
			Description: "Check checkbox",
		}, nil
	case "uncheck":
		return action.Action{
			Type:        action.Uncheck,
			Selector:    sel,
			Description: "Uncheck checkbox",
		}, nil
	case "press":
		if !capturedKey(p.Key) {
			return action.Action{}, fmt.Errorf("instrument: key %q is not captured", p.Key)
		}
		return action.Action{
			Type:        action.Press,
			Selector:    sel,
			Key:         p.Key,
			Description: "Press " + p.Key + " key",
		}, nil
	default:
		return action.Action{}, fmt.Errorf("instrument: unknown payload kind %q", p.Kind)
	}
}

// capturedKey limits key events to the ones worth replaying. The script
// filters the same set; decoding re-checks so a stray payload cannot
// smuggle arbitrary keys into a recording.
func capturedKey(key string) bool {
	switch key {
	case "Enter", "Tab", "Escape", "Backspace", "Delete",
		"ArrowUp", "ArrowDown", "ArrowLeft", "ArrowRight":
		return true
	}
	return false
}

func clickDescription(d selector.Descriptor) string {
	tag := d.Tag
	if tag == "" {
		tag = "element"
	}
	if d.Text == "" {
		return "Click on " + tag
	}
	return fmt.Sprintf("Click on %s %q", tag, selector.Truncate(d.Text, 30))
}

func fillDescription(inputType, value string) string {
	if inputType == "" {
		inputType = "text"
	}
	shown := selector.Truncate(value, 20)
	if shown != value {
		shown += "..."
	}
	return fmt.Sprintf("Fill %s input with %q", inputType, shown)
}
