// Package action defines the recorded-interaction model: one Action per
// captured browser event, and the ordered per-session Log of Actions.
//
// The Log is owned exclusively by its recording session. It is not
// synchronised; the session serialises all mutation through its own lock.
package action

// Type identifies the kind of recorded interaction.
type Type string

const (
	Navigate   Type = "navigate"
	Click      Type = "click"
	Fill       Type = "fill"
	Press      Type = "press"
	Select     Type = "select"
	Check      Type = "check"
	Uncheck    Type = "uncheck"
	Hover      Type = "hover"
	Screenshot Type = "screenshot"
	Assert     Type = "assert"
)

// Known reports whether t is one of the recognised action types.
func Known(t Type) bool {
	switch t {
	case Navigate, Click, Fill, Press, Select, Check, Uncheck, Hover, Screenshot, Assert:
		return true
	}
	return false
}

// Action is one captured user interaction or synthetic event.
//
// ID, Type and Timestamp are immutable after creation; the remaining fields
// may be edited through Log.Patch.
type Action struct {
	ID          string `json:"id"`
	Type        Type   `json:"type"`
	Selector    string `json:"selector,omitempty"`
	Value       string `json:"value,omitempty"`
	URL         string `json:"url,omitempty"`
	Key         string `json:"key,omitempty"`
	Timestamp   int64  `json:"timestamp"` // capture time, epoch milliseconds
	Description string `json:"description"`
}

// Patch is the closed set of Action fields that may change after capture.
// Nil pointers leave the corresponding field untouched.
type Patch struct {
	Selector    *string `json:"selector,omitempty"`
	Value       *string `json:"value,omitempty"`
	URL         *string `json:"url,omitempty"`
	Key         *string `json:"key,omitempty"`
	Description *string `json:"description,omitempty"`
}

func (p Patch) apply(a *Action) {
	if p.Selector != nil {
		a.Selector = *p.Selector
	}
	if p.Value != nil {
		a.Value = *p.Value
	}
	if p.URL != nil {
		a.URL = *p.URL
	}
	if p.Key != nil {
		a.Key = *p.Key
	}
	if p.Description != nil {
		a.Description = *p.Description
	}
}
