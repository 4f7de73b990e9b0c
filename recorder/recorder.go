// Package recorder drives live browser sessions, captures user
// interactions as structured actions and turns the captured sequence into
// an executable Playwright script.
//
// One Recorder owns a registry of concurrent sessions. Each session holds
// a launched, instrumented page; interaction payloads flow back through
// driver callbacks and are appended to the session's ordered action log.
// Stopping a session freezes the log, generates code and releases the
// browser.
package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/hazyhaar/recwatch/action"
	"github.com/hazyhaar/recwatch/codegen"
	"github.com/hazyhaar/recwatch/events"
	"github.com/hazyhaar/recwatch/idgen"
)

// Config assembles a Recorder. Zero values get production defaults.
type Config struct {
	// RecordingsDir receives screenshot files and, when the launcher
	// supports it, session videos.
	RecordingsDir string
	// NavigationTimeout bounds the initial navigation of Start.
	NavigationTimeout time.Duration
	// CloseTimeout bounds browser teardown during Stop and Shutdown.
	CloseTimeout time.Duration

	Launcher Launcher
	Store    Store
	Bus      events.Bus
	NewID    idgen.Generator
	Logger   *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.RecordingsDir == "" {
		c.RecordingsDir = "/tmp/recordings"
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 30 * time.Second
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = 10 * time.Second
	}
	if c.Store == nil {
		c.Store = NopStore{}
	}
	if c.Bus == nil {
		c.Bus = events.Nop{}
	}
	if c.NewID == nil {
		c.NewID = idgen.Prefixed("act_", idgen.Default)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Launcher == nil {
		c.Launcher = NewPlaywrightLauncher(c.Logger)
	}
	return c
}

// Recorder is the session registry and the single entry point for every
// recording operation.
type Recorder struct {
	cfg Config

	mu       sync.RWMutex
	sessions map[string]*session
}

// New builds a Recorder from cfg. The recordings directory is created
// eagerly so screenshot writes do not fail later.
func New(cfg Config) *Recorder {
	cfg = cfg.withDefaults()
	if err := os.MkdirAll(cfg.RecordingsDir, 0o755); err != nil {
		cfg.Logger.Warn("recordings dir unavailable", "dir", cfg.RecordingsDir, "error", err)
	}
	return &Recorder{
		cfg:      cfg,
		sessions: make(map[string]*session),
	}
}

// Options are the per-session knobs of Start.
type Options struct {
	BrowserType string    `json:"browserType,omitempty"`
	Viewport    *Viewport `json:"viewport,omitempty"`
	Headless    bool      `json:"headless,omitempty"`
}

// Start validates the request, launches an instrumented browser, performs
// the initial navigation and registers the session. On any failure after
// validation the partially-created resources are released before the
// error is returned. The returned view already contains the synthetic
// initial navigate action.
func (r *Recorder) Start(ctx context.Context, sessionID, targetURL string, opts Options) (SessionView, error) {
	u, err := url.Parse(targetURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return SessionView{}, fmt.Errorf("recorder: %w: target url %q is not absolute", ErrValidation, targetURL)
	}
	browserType := opts.BrowserType
	if browserType == "" {
		browserType = BrowserChromium
	}
	switch browserType {
	case BrowserChromium, BrowserFirefox, BrowserWebkit:
	default:
		return SessionView{}, fmt.Errorf("recorder: %w: unknown browser type %q", ErrValidation, browserType)
	}
	viewport := Viewport{Width: 1280, Height: 720}
	if opts.Viewport != nil {
		if opts.Viewport.Width <= 0 || opts.Viewport.Height <= 0 {
			return SessionView{}, fmt.Errorf("recorder: %w: viewport %dx%d", ErrValidation, opts.Viewport.Width, opts.Viewport.Height)
		}
		viewport = *opts.Viewport
	}
	if sessionID == "" {
		sessionID = idgen.Prefixed("rec_", idgen.Default)()
	}

	s := &session{
		id:          sessionID,
		targetURL:   targetURL,
		browserType: browserType,
		viewport:    viewport,
		log:         action.NewLog(),
	}

	// Reserve the id before launching so a concurrent Start with the same
	// id fails fast instead of racing for the slot.
	r.mu.Lock()
	if _, exists := r.sessions[sessionID]; exists {
		r.mu.Unlock()
		return SessionView{}, fmt.Errorf("recorder: %w: session %q already exists", ErrValidation, sessionID)
	}
	r.sessions[sessionID] = s
	r.mu.Unlock()

	spec := LaunchSpec{
		SessionID:    sessionID,
		BrowserType:  browserType,
		Viewport:     viewport,
		Headless:     opts.Headless,
		VideoDir:     r.cfg.RecordingsDir,
		OnAction:     func(a action.Action) { r.handleCaptured(s, a) },
		OnNavigate:   func(u string) { r.handleNavigate(s, u) },
		OnDisconnect: func() { r.handleDisconnect(s) },
		Logger:       r.cfg.Logger.With("session", sessionID),
	}
	page, err := r.cfg.Launcher.Launch(ctx, spec)
	if err != nil {
		r.evict(sessionID)
		return SessionView{}, fmt.Errorf("recorder: %w: %v", ErrLaunch, err)
	}

	if err := page.Navigate(ctx, targetURL, r.cfg.NavigationTimeout); err != nil {
		r.evict(sessionID)
		r.closePage(page)
		return SessionView{}, fmt.Errorf("recorder: %w: %q: %v", ErrNavigation, targetURL, err)
	}

	started := time.Now()
	s.mu.Lock()
	s.page = page
	s.status = StatusRecording
	initial := r.stamp(action.Action{
		Type:        action.Navigate,
		URL:         targetURL,
		Description: "Navigate to " + targetURL,
	})
	s.log.Append(initial)
	view := SessionView{
		ID:          s.id,
		TargetURL:   s.targetURL,
		BrowserType: s.browserType,
		Viewport:    s.viewport,
		Status:      s.status,
		Actions:     s.log.Snapshot(),
	}
	s.mu.Unlock()

	if err := r.cfg.Store.CreateSessionRecord(ctx, SessionMeta{
		ID:          sessionID,
		TargetURL:   targetURL,
		BrowserType: browserType,
		Viewport:    viewport,
		Status:      StatusRecording,
		StartedAt:   started,
	}); err != nil {
		r.cfg.Logger.Warn("session record create failed", "session", sessionID, "error", err)
	}
	r.persistAction(ctx, sessionID, initial)

	r.cfg.Bus.Publish(ctx, events.Event{Name: events.SessionStarted, SessionID: sessionID, Payload: view})
	r.cfg.Bus.Publish(ctx, events.Event{Name: events.ActionRecorded, SessionID: sessionID, Payload: initial})
	r.cfg.Logger.Info("session started",
		"session", sessionID, "url", targetURL, "browser", browserType)
	return view, nil
}

// Pause suspends capture. Interactions keep happening in the live page
// but are discarded until Resume. Pausing a paused session is a no-op.
func (r *Recorder) Pause(ctx context.Context, sessionID string) error {
	s, err := r.lookup(sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	changed := s.status == StatusRecording
	if changed {
		s.status = StatusPaused
	}
	s.mu.Unlock()
	if changed {
		r.persistStatus(ctx, sessionID, StatusPaused)
		r.cfg.Bus.Publish(ctx, events.Event{Name: events.SessionPaused, SessionID: sessionID})
	}
	return nil
}

// Resume re-enables capture after Pause. Resuming a recording session is
// a no-op.
func (r *Recorder) Resume(ctx context.Context, sessionID string) error {
	s, err := r.lookup(sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	changed := s.status == StatusPaused
	if changed {
		s.status = StatusRecording
	}
	s.mu.Unlock()
	if changed {
		r.persistStatus(ctx, sessionID, StatusRecording)
		r.cfg.Bus.Publish(ctx, events.Event{Name: events.SessionResumed, SessionID: sessionID})
	}
	return nil
}

// StopResult is the terminal output of a session.
type StopResult struct {
	Actions       []action.Action `json:"actions"`
	GeneratedCode string          `json:"generatedCode"`
}

// Stop completes the session: the action log is frozen, code is
// generated, the browser is released and the session leaves the live
// registry. Stopping twice returns ErrNotFound on the second call.
// Browser teardown failures are logged, never returned; the captured
// actions and the generated script are always delivered.
func (r *Recorder) Stop(ctx context.Context, sessionID string) (StopResult, error) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
	}
	r.mu.Unlock()
	if !ok {
		return StopResult{}, fmt.Errorf("recorder: %w: session %q", ErrNotFound, sessionID)
	}

	s.mu.Lock()
	s.status = StatusCompleted
	actions := s.log.Snapshot()
	code := codegen.Generate(actions, s.targetURL)
	s.generated = code
	page := s.page
	s.mu.Unlock()

	if page != nil {
		r.closePage(page)
	}

	now := time.Now()
	if err := r.cfg.Store.UpdateSessionRecord(ctx, sessionID, SessionUpdate{
		Status:        StatusCompleted,
		GeneratedCode: &code,
		CompletedAt:   &now,
		Actions:       actions,
	}); err != nil {
		r.cfg.Logger.Warn("session record update failed", "session", sessionID, "error", err)
	}

	res := StopResult{Actions: actions, GeneratedCode: code}
	r.cfg.Bus.Publish(ctx, events.Event{Name: events.SessionCompleted, SessionID: sessionID, Payload: res})
	r.cfg.Logger.Info("session completed", "session", sessionID, "actions", len(actions))
	return res, nil
}

// DeleteAction removes one captured action from a live session's log.
func (r *Recorder) DeleteAction(ctx context.Context, sessionID, actionID string) error {
	s, err := r.lookup(sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	ok := s.log.Remove(actionID)
	actions := s.log.Snapshot()
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("recorder: %w: action %q in session %q", ErrNotFound, actionID, sessionID)
	}
	r.persistActions(ctx, sessionID, actions)
	r.cfg.Bus.Publish(ctx, events.Event{Name: events.ActionDeleted, SessionID: sessionID, Payload: map[string]string{"actionId": actionID}})
	return nil
}

// UpdateAction patches the mutable fields of one captured action and
// returns the updated copy. Identity, type and timestamp never change.
func (r *Recorder) UpdateAction(ctx context.Context, sessionID, actionID string, p action.Patch) (action.Action, error) {
	s, err := r.lookup(sessionID)
	if err != nil {
		return action.Action{}, err
	}
	s.mu.Lock()
	updated, ok := s.log.Patch(actionID, p)
	actions := s.log.Snapshot()
	s.mu.Unlock()
	if !ok {
		return action.Action{}, fmt.Errorf("recorder: %w: action %q in session %q", ErrNotFound, actionID, sessionID)
	}
	r.persistActions(ctx, sessionID, actions)
	r.cfg.Bus.Publish(ctx, events.Event{Name: events.ActionUpdated, SessionID: sessionID, Payload: updated})
	return updated, nil
}

// Assertion is a caller-declared expectation to be woven into the
// recording at the current position.
type Assertion struct {
	Selector string `json:"selector"`
	Type     string `json:"assertionType"`
	Expected string `json:"expectedValue,omitempty"`
}

func (as Assertion) describe() string {
	switch as.Type {
	case "visible":
		return "Assert element is visible: " + as.Selector
	case "text":
		return "Assert text equals " + strconv.Quote(as.Expected)
	case "value":
		return "Assert value equals " + strconv.Quote(as.Expected)
	}
	return "Assert " + as.Type
}

// AddAssertion appends an assert action describing the expectation.
// Assertions are accepted while the session is live, paused included.
func (r *Recorder) AddAssertion(ctx context.Context, sessionID string, as Assertion) (action.Action, error) {
	s, err := r.lookup(sessionID)
	if err != nil {
		return action.Action{}, err
	}
	if as.Selector == "" || as.Type == "" {
		return action.Action{}, fmt.Errorf("recorder: %w: assertion needs selector and type", ErrValidation)
	}
	a := r.stamp(action.Action{
		Type:        action.Assert,
		Selector:    as.Selector,
		Value:       as.Expected,
		Description: as.describe(),
	})
	s.mu.Lock()
	s.log.Append(a)
	s.mu.Unlock()
	r.persistAction(ctx, sessionID, a)
	r.cfg.Bus.Publish(ctx, events.Event{Name: events.ActionRecorded, SessionID: sessionID, Payload: a})
	return a, nil
}

// TakeScreenshot captures the current page into the recordings directory
// and appends a screenshot action. The stored file path is returned.
func (r *Recorder) TakeScreenshot(ctx context.Context, sessionID string) (string, error) {
	s, err := r.lookup(sessionID)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	page := s.page
	s.mu.Unlock()
	if page == nil {
		return "", fmt.Errorf("recorder: %w: session %q has no live page", ErrNotFound, sessionID)
	}
	path := filepath.Join(r.cfg.RecordingsDir,
		fmt.Sprintf("screenshot_%s_%d.png", sessionID, time.Now().UnixMilli()))
	if err := page.Screenshot(ctx, path); err != nil {
		return "", fmt.Errorf("recorder: screenshot: %w", err)
	}
	a := r.stamp(action.Action{
		Type:        action.Screenshot,
		Value:       path,
		Description: "Take screenshot",
	})
	s.mu.Lock()
	s.log.Append(a)
	s.mu.Unlock()
	r.persistAction(ctx, sessionID, a)
	r.cfg.Bus.Publish(ctx, events.Event{Name: events.ActionRecorded, SessionID: sessionID, Payload: a})
	r.cfg.Bus.Publish(ctx, events.Event{Name: events.ScreenshotTaken, SessionID: sessionID, Payload: map[string]string{"path": path}})
	return path, nil
}

// Generate renders the session's current action log as a Playwright
// script without stopping the recording. Deterministic for a fixed log.
func (r *Recorder) Generate(ctx context.Context, sessionID string) (string, error) {
	s, err := r.lookup(sessionID)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	code := codegen.Generate(s.log.Snapshot(), s.targetURL)
	s.generated = code
	s.mu.Unlock()
	if err := r.cfg.Store.UpdateSessionRecord(ctx, sessionID, SessionUpdate{GeneratedCode: &code}); err != nil {
		r.cfg.Logger.Warn("generated code persist failed", "session", sessionID, "error", err)
	}
	return code, nil
}

// PageContent returns the live page's current HTML.
func (r *Recorder) PageContent(ctx context.Context, sessionID string) (string, error) {
	s, err := r.lookup(sessionID)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	page := s.page
	s.mu.Unlock()
	if page == nil {
		return "", fmt.Errorf("recorder: %w: session %q has no live page", ErrNotFound, sessionID)
	}
	return page.Content(ctx)
}

// Session returns a point-in-time view of one live session.
func (r *Recorder) Session(sessionID string) (SessionView, error) {
	s, err := r.lookup(sessionID)
	if err != nil {
		return SessionView{}, err
	}
	return s.view(), nil
}

// Sessions lists every live session, ordered by id.
func (r *Recorder) Sessions() []SessionView {
	r.mu.RLock()
	all := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.RUnlock()
	views := make([]SessionView, 0, len(all))
	for _, s := range all {
		views = append(views, s.view())
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })
	return views
}

// Shutdown tears down every live session's browser. Store records keep
// their last persisted status; only resource release happens here.
func (r *Recorder) Shutdown(ctx context.Context) {
	r.mu.Lock()
	all := make([]*session, 0, len(r.sessions))
	for id, s := range r.sessions {
		all = append(all, s)
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	for _, s := range all {
		s.mu.Lock()
		s.status = StatusError
		page := s.page
		s.mu.Unlock()
		if page != nil {
			r.closePage(page)
		}
		r.cfg.Logger.Info("session torn down on shutdown", "session", s.id)
	}
}

// ---- capture path -------------------------------------------------------

// handleCaptured lands a decoded interaction payload on the session log.
// Payloads arriving while the session is not recording are dropped.
func (r *Recorder) handleCaptured(s *session, a action.Action) {
	if !action.Known(a.Type) {
		r.cfg.Logger.Warn("dropping unknown action type", "session", s.id, "type", a.Type)
		return
	}
	s.mu.Lock()
	if s.status != StatusRecording {
		s.mu.Unlock()
		return
	}
	a = r.stamp(a)
	s.log.Append(a)
	s.mu.Unlock()
	ctx := context.Background()
	r.persistAction(ctx, s.id, a)
	r.cfg.Bus.Publish(ctx, events.Event{Name: events.ActionRecorded, SessionID: s.id, Payload: a})
}

// handleNavigate records a top-level navigation unless it repeats the
// immediately preceding one. Redirect chains and SPA re-fires collapse to
// a single action this way.
func (r *Recorder) handleNavigate(s *session, url string) {
	s.mu.Lock()
	if s.status != StatusRecording {
		s.mu.Unlock()
		return
	}
	last, ok := s.log.Last()
	if !ok || (last.Type == action.Navigate && last.URL == url) {
		s.mu.Unlock()
		return
	}
	a := r.stamp(action.Action{
		Type:        action.Navigate,
		URL:         url,
		Description: "Navigate to " + url,
	})
	s.log.Append(a)
	s.mu.Unlock()
	ctx := context.Background()
	r.persistAction(ctx, s.id, a)
	r.cfg.Bus.Publish(ctx, events.Event{Name: events.ActionRecorded, SessionID: s.id, Payload: a})
}

// handleDisconnect marks a session whose browser vanished out from under
// it. Engine-initiated closes have already moved the status past Active.
func (r *Recorder) handleDisconnect(s *session) {
	s.mu.Lock()
	failed := s.status.Active()
	if failed {
		s.status = StatusError
	}
	s.mu.Unlock()
	if !failed {
		return
	}
	ctx := context.Background()
	r.persistStatus(ctx, s.id, StatusError)
	r.cfg.Bus.Publish(ctx, events.Event{Name: events.SessionFailed, SessionID: s.id})
	r.cfg.Logger.Warn("browser disconnected", "session", s.id)
}

// ---- helpers ------------------------------------------------------------

func (r *Recorder) lookup(sessionID string) (*session, error) {
	r.mu.RLock()
	s, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("recorder: %w: session %q", ErrNotFound, sessionID)
	}
	return s, nil
}

func (r *Recorder) evict(sessionID string) {
	r.mu.Lock()
	delete(r.sessions, sessionID)
	r.mu.Unlock()
}

// stamp assigns identity and capture time to an action about to be
// appended.
func (r *Recorder) stamp(a action.Action) action.Action {
	a.ID = r.cfg.NewID()
	a.Timestamp = time.Now().UnixMilli()
	return a
}

func (r *Recorder) persistAction(ctx context.Context, sessionID string, a action.Action) {
	if err := r.cfg.Store.AppendActionToRecord(ctx, sessionID, a); err != nil {
		r.cfg.Logger.Warn("action persist failed", "session", sessionID, "action", a.ID, "error", err)
	}
}

func (r *Recorder) persistActions(ctx context.Context, sessionID string, actions []action.Action) {
	if err := r.cfg.Store.UpdateSessionRecord(ctx, sessionID, SessionUpdate{Actions: actions}); err != nil {
		r.cfg.Logger.Warn("action list persist failed", "session", sessionID, "error", err)
	}
}

func (r *Recorder) persistStatus(ctx context.Context, sessionID string, st Status) {
	if err := r.cfg.Store.UpdateSessionRecord(ctx, sessionID, SessionUpdate{Status: st}); err != nil {
		r.cfg.Logger.Warn("status persist failed", "session", sessionID, "error", err)
	}
}

// closePage releases a browser page without letting a wedged driver stall
// the caller.
func (r *Recorder) closePage(page Page) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.CloseTimeout)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- page.Close(ctx) }()
	select {
	case err := <-done:
		if err != nil {
			r.cfg.Logger.Warn("page close failed", "error", err)
		}
	case <-ctx.Done():
		r.cfg.Logger.Warn("page close timed out")
	}
}
