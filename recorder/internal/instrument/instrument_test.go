package instrument

import (
	"strings"
	"testing"

	"github.com/hazyhaar/recwatch/action"
)

func TestDecodeClick(t *testing.T) {
	raw := `{"kind":"click","descriptor":{"tag":"button","testId":"submit-btn","text":"Submit order"}}`
	a, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if a.Type != action.Click {
		t.Fatalf("type = %q", a.Type)
	}
	if a.Selector != `[data-testid="submit-btn"]` {
		t.Errorf("selector = %q", a.Selector)
	}
	if a.Description != `Click on button "Submit order"` {
		t.Errorf("description = %q", a.Description)
	}
	if a.ID != "" || a.Timestamp != 0 {
		t.Errorf("decode must not stamp identity: id=%q ts=%d", a.ID, a.Timestamp)
	}
}

func TestDecodeClickWithoutText(t *testing.T) {
	a, err := Decode(`{"kind":"click","descriptor":{"tag":"div","id":"card"}}`)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if a.Description != "Click on div" {
		t.Errorf("description = %q", a.Description)
	}
	if a.Selector != "#card" {
		t.Errorf("selector = %q", a.Selector)
	}
}

func TestDecodeClickTruncatesText(t *testing.T) {
	long := strings.Repeat("x", 40)
	a, err := Decode(`{"kind":"click","descriptor":{"tag":"a","id":"l","text":"` + long + `"}}`)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := `Click on a "` + strings.Repeat("x", 30) + `"`
	if a.Description != want {
		t.Errorf("description = %q, want %q", a.Description, want)
	}
}

func TestDecodeFill(t *testing.T) {
	raw := `{"kind":"fill","descriptor":{"tag":"input","name":"email"},"value":"user@example.com","inputType":"email"}`
	a, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if a.Type != action.Fill || a.Value != "user@example.com" {
		t.Fatalf("action = %+v", a)
	}
	if a.Selector != `[name="email"]` {
		t.Errorf("selector = %q", a.Selector)
	}
	if a.Description != `Fill email input with "user@example.com"` {
		t.Errorf("description = %q", a.Description)
	}
}

func TestDecodeFillTruncatesValue(t *testing.T) {
	long := strings.Repeat("a", 25)
	a, err := Decode(`{"kind":"fill","descriptor":{"tag":"input","id":"f"},"value":"` + long + `"}`)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := `Fill text input with "` + strings.Repeat("a", 20) + `..."`
	if a.Description != want {
		t.Errorf("description = %q, want %q", a.Description, want)
	}
	if a.Value != long {
		t.Errorf("value must stay untruncated, got %q", a.Value)
	}
}

func TestDecodeSelect(t *testing.T) {
	raw := `{"kind":"select","descriptor":{"tag":"select","id":"country"},"value":"fr","optionText":"France"}`
	a, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if a.Type != action.Select || a.Value != "fr" {
		t.Fatalf("action = %+v", a)
	}
	if a.Description != `Select "France"` {
		t.Errorf("description = %q", a.Description)
	}
}

func TestDecodeSelectFallsBackToValue(t *testing.T) {
	a, err := Decode(`{"kind":"select","descriptor":{"tag":"select","id":"c"},"value":"de"}`)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if a.Description != `Select "de"` {
		t.Errorf("description = %q", a.Description)
	}
}

func TestDecodeCheckUncheck(t *testing.T) {
	a, err := Decode(`{"kind":"check","descriptor":{"tag":"input","id":"tos"}}`)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if a.Type != action.Check || a.Description != "Check checkbox" {
		t.Fatalf("action = %+v", a)
	}
	a, err = Decode(`{"kind":"uncheck","descriptor":{"tag":"input","id":"tos"}}`)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if a.Type != action.Uncheck || a.Description != "Uncheck checkbox" {
		t.Fatalf("action = %+v", a)
	}
}

func TestDecodePress(t *testing.T) {
	keys := []string{
		"Enter", "Tab", "Escape", "Backspace", "Delete",
		"ArrowUp", "ArrowDown", "ArrowLeft", "ArrowRight",
	}
	for _, key := range keys {
		a, err := Decode(`{"kind":"press","descriptor":{"tag":"input","id":"q"},"key":"` + key + `"}`)
		if err != nil {
			t.Fatalf("Decode(%s): %v", key, err)
		}
		if a.Type != action.Press || a.Key != key {
			t.Fatalf("action = %+v", a)
		}
		if a.Description != "Press "+key+" key" {
			t.Errorf("description = %q", a.Description)
		}
	}
}

func TestDecodeRejectsUncapturedKey(t *testing.T) {
	for _, key := range []string{"a", "Shift", "F5", "Home", "PageDown"} {
		if _, err := Decode(`{"kind":"press","descriptor":{"tag":"input"},"key":"` + key + `"}`); err == nil {
			t.Fatalf("want error for uncaptured key %q", key)
		}
	}
}

func TestDecodeRejectsUnknownKind(t *testing.T) {
	if _, err := Decode(`{"kind":"scroll","descriptor":{"tag":"div"}}`); err == nil {
		t.Fatal("want error for unknown kind")
	}
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	if _, err := Decode(`{"kind":`); err == nil {
		t.Fatal("want error for malformed payload")
	}
}

func TestScriptEmbeds(t *testing.T) {
	js := JS()
	if !strings.Contains(js, BindingName) {
		t.Fatalf("script does not call binding %q", BindingName)
	}
	if !strings.Contains(js, "__recwatchInjected") {
		t.Error("script is missing its reinjection guard")
	}
	keys := []string{
		"Enter", "Tab", "Escape", "Backspace", "Delete",
		"ArrowUp", "ArrowDown", "ArrowLeft", "ArrowRight",
	}
	for _, key := range keys {
		if !strings.Contains(js, "'"+key+"'") {
			t.Errorf("script key allow-list is missing %q", key)
		}
	}
}

// The fill debounce runs inside the page, so the contract is pinned on the
// script text: a 500ms timer per element, reset on every input event, with
// the element's final value emitted once the timer or a key press flushes it.
func TestScriptFillDebounce(t *testing.T) {
	js := JS()
	for _, want := range []string{
		"FILL_DEBOUNCE_MS = 500",
		"fillTimers = new WeakMap()",
		"clearTimeout(prev.timer)",
		"value: el.value",
		"flushFill(el)",
	} {
		if !strings.Contains(js, want) {
			t.Errorf("script is missing %q", want)
		}
	}
}
