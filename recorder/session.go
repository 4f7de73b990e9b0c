package recorder

import (
	"sync"

	"github.com/hazyhaar/recwatch/action"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusRecording Status = "recording"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Active reports whether the session still owns live browser resources.
func (s Status) Active() bool {
	return s == StatusRecording || s == StatusPaused
}

// session is the live state behind one recording. All fields after the
// mutex are guarded by it. Capture callbacks arriving from the driver's
// goroutines and control operations arriving from the API serialise here.
type session struct {
	id          string
	targetURL   string
	browserType string
	viewport    Viewport

	mu        sync.Mutex
	status    Status
	log       *action.Log
	page      Page
	generated string
}

func (s *session) view() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionView{
		ID:            s.id,
		TargetURL:     s.targetURL,
		BrowserType:   s.browserType,
		Viewport:      s.viewport,
		Status:        s.status,
		Actions:       s.log.Snapshot(),
		GeneratedCode: s.generated,
	}
}

// SessionView is a point-in-time copy of a session, safe to hand to
// encoders while the session keeps mutating.
type SessionView struct {
	ID            string          `json:"id"`
	TargetURL     string          `json:"targetUrl"`
	BrowserType   string          `json:"browserType"`
	Viewport      Viewport        `json:"viewport"`
	Status        Status          `json:"status"`
	Actions       []action.Action `json:"actions"`
	GeneratedCode string          `json:"generatedCode,omitempty"`
}
