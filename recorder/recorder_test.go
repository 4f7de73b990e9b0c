package recorder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/recwatch/action"
	"github.com/hazyhaar/recwatch/events"
)

// fakePage records the calls the engine makes against a launched page.
type fakePage struct {
	mu          sync.Mutex
	navigated   []string
	screenshots []string
	content     string
	navErr      error
	closed      bool
}

func (p *fakePage) Navigate(_ context.Context, url string, _ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.navErr != nil {
		return p.navErr
	}
	p.navigated = append(p.navigated, url)
	return nil
}

func (p *fakePage) Screenshot(_ context.Context, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.screenshots = append(p.screenshots, path)
	return nil
}

func (p *fakePage) Content(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.content, nil
}

func (p *fakePage) Close(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePage) wasClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// fakeLauncher hands out fakePages and keeps the LaunchSpec so tests can
// drive the capture callbacks.
type fakeLauncher struct {
	mu        sync.Mutex
	launchErr error
	page      *fakePage
	spec      LaunchSpec
}

func (l *fakeLauncher) Launch(_ context.Context, spec LaunchSpec) (Page, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.launchErr != nil {
		return nil, l.launchErr
	}
	if l.page == nil {
		l.page = &fakePage{}
	}
	l.spec = spec
	return l.page, nil
}

func newTestRecorder(t *testing.T, launcher *fakeLauncher) *Recorder {
	t.Helper()
	return New(Config{
		RecordingsDir: t.TempDir(),
		Launcher:      launcher,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func mustStart(t *testing.T, r *Recorder, id string) SessionView {
	t.Helper()
	view, err := r.Start(context.Background(), id, "https://example.com/app", Options{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return view
}

func TestStartRejectsBadInput(t *testing.T) {
	r := newTestRecorder(t, &fakeLauncher{})
	tests := []struct {
		name string
		url  string
		opts Options
	}{
		{"relative url", "/login", Options{}},
		{"empty url", "", Options{}},
		{"no host", "https://", Options{}},
		{"bad browser", "https://example.com", Options{BrowserType: "chrome"}},
		{"bad viewport", "https://example.com", Options{Viewport: &Viewport{Width: 0, Height: 400}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Start(context.Background(), "s1", tt.url, tt.opts)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("err = %v, want ErrValidation", err)
			}
		})
	}
	if len(r.Sessions()) != 0 {
		t.Fatal("validation failure must not register a session")
	}
}

func TestStartRecordsInitialNavigate(t *testing.T) {
	launcher := &fakeLauncher{}
	r := newTestRecorder(t, launcher)
	view := mustStart(t, r, "s1")

	if view.Status != StatusRecording {
		t.Fatalf("status = %q", view.Status)
	}
	if view.BrowserType != BrowserChromium {
		t.Errorf("browser = %q, want default chromium", view.BrowserType)
	}
	if view.Viewport != (Viewport{Width: 1280, Height: 720}) {
		t.Errorf("viewport = %+v", view.Viewport)
	}
	if len(view.Actions) != 1 {
		t.Fatalf("actions = %d, want the initial navigate", len(view.Actions))
	}
	a := view.Actions[0]
	if a.Type != action.Navigate || a.URL != "https://example.com/app" {
		t.Fatalf("initial action = %+v", a)
	}
	if a.ID == "" || a.Timestamp == 0 {
		t.Errorf("initial action not stamped: %+v", a)
	}
	if got := launcher.page.navigated; len(got) != 1 || got[0] != "https://example.com/app" {
		t.Errorf("page navigations = %v", got)
	}
}

func TestStartDuplicateID(t *testing.T) {
	launcher := &fakeLauncher{}
	r := newTestRecorder(t, launcher)
	mustStart(t, r, "s1")
	_, err := r.Start(context.Background(), "s1", "https://example.com", Options{})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestStartLaunchFailureLeavesNothing(t *testing.T) {
	launcher := &fakeLauncher{launchErr: errors.New("no browser binary")}
	r := newTestRecorder(t, launcher)
	_, err := r.Start(context.Background(), "s1", "https://example.com", Options{})
	if !errors.Is(err, ErrLaunch) {
		t.Fatalf("err = %v, want ErrLaunch", err)
	}
	if len(r.Sessions()) != 0 {
		t.Fatal("failed launch must not leave a registered session")
	}
}

func TestStartNavigationFailureClosesPage(t *testing.T) {
	page := &fakePage{navErr: errors.New("timeout")}
	launcher := &fakeLauncher{page: page}
	r := newTestRecorder(t, launcher)
	_, err := r.Start(context.Background(), "s1", "https://example.com", Options{})
	if !errors.Is(err, ErrNavigation) {
		t.Fatalf("err = %v, want ErrNavigation", err)
	}
	if !page.wasClosed() {
		t.Fatal("page must be released after navigation failure")
	}
	if len(r.Sessions()) != 0 {
		t.Fatal("failed navigation must not leave a registered session")
	}
}

func TestCapturedActionsAppendInOrder(t *testing.T) {
	launcher := &fakeLauncher{}
	r := newTestRecorder(t, launcher)
	mustStart(t, r, "s1")

	launcher.spec.OnAction(action.Action{Type: action.Click, Selector: "#save", Description: "Click on button"})
	launcher.spec.OnAction(action.Action{Type: action.Fill, Selector: "#name", Value: "Ada", Description: `Fill text input with "Ada"`})

	view, err := r.Session("s1")
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if len(view.Actions) != 3 {
		t.Fatalf("actions = %d", len(view.Actions))
	}
	if view.Actions[1].Selector != "#save" || view.Actions[2].Value != "Ada" {
		t.Fatalf("order wrong: %+v", view.Actions)
	}
	for i, a := range view.Actions {
		if a.ID == "" || a.Timestamp == 0 {
			t.Errorf("action %d not stamped", i)
		}
	}
}

func TestPauseSuppressesCapture(t *testing.T) {
	launcher := &fakeLauncher{}
	r := newTestRecorder(t, launcher)
	mustStart(t, r, "s1")

	if err := r.Pause(context.Background(), "s1"); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	launcher.spec.OnAction(action.Action{Type: action.Click, Selector: "#x"})
	launcher.spec.OnNavigate("https://example.com/other")

	view, _ := r.Session("s1")
	if view.Status != StatusPaused {
		t.Fatalf("status = %q", view.Status)
	}
	if len(view.Actions) != 1 {
		t.Fatalf("paused session captured %d extra actions", len(view.Actions)-1)
	}

	// pause is idempotent
	if err := r.Pause(context.Background(), "s1"); err != nil {
		t.Fatalf("second Pause: %v", err)
	}

	if err := r.Resume(context.Background(), "s1"); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	launcher.spec.OnAction(action.Action{Type: action.Click, Selector: "#x"})
	view, _ = r.Session("s1")
	if view.Status != StatusRecording || len(view.Actions) != 2 {
		t.Fatalf("after resume: status=%q actions=%d", view.Status, len(view.Actions))
	}
}

func TestNavigateDeduplicates(t *testing.T) {
	launcher := &fakeLauncher{}
	r := newTestRecorder(t, launcher)
	mustStart(t, r, "s1")

	// same URL as the initial navigate: redirect echo, dropped
	launcher.spec.OnNavigate("https://example.com/app")
	// new URL: recorded
	launcher.spec.OnNavigate("https://example.com/checkout")
	// repeat of the last navigate: dropped
	launcher.spec.OnNavigate("https://example.com/checkout")
	// interleave a click, then the same URL again: recorded
	launcher.spec.OnAction(action.Action{Type: action.Click, Selector: "#back"})
	launcher.spec.OnNavigate("https://example.com/checkout")

	view, _ := r.Session("s1")
	var urls []string
	for _, a := range view.Actions {
		if a.Type == action.Navigate {
			urls = append(urls, a.URL)
		}
	}
	want := []string{"https://example.com/app", "https://example.com/checkout", "https://example.com/checkout"}
	if len(urls) != len(want) {
		t.Fatalf("navigate urls = %v, want %v", urls, want)
	}
	for i := range want {
		if urls[i] != want[i] {
			t.Fatalf("navigate urls = %v, want %v", urls, want)
		}
	}
}

func TestDroppedCaptureOfUnknownType(t *testing.T) {
	launcher := &fakeLauncher{}
	r := newTestRecorder(t, launcher)
	mustStart(t, r, "s1")
	launcher.spec.OnAction(action.Action{Type: "scroll"})
	view, _ := r.Session("s1")
	if len(view.Actions) != 1 {
		t.Fatalf("unknown action type must be dropped, got %d actions", len(view.Actions))
	}
}

func TestStopGeneratesAndEvicts(t *testing.T) {
	launcher := &fakeLauncher{}
	r := newTestRecorder(t, launcher)
	mustStart(t, r, "s1")
	launcher.spec.OnAction(action.Action{Type: action.Click, Selector: "#save"})

	res, err := r.Stop(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if len(res.Actions) != 2 {
		t.Fatalf("actions = %d", len(res.Actions))
	}
	if !strings.Contains(res.GeneratedCode, "await page.locator('#save').click();") {
		t.Errorf("generated code missing click:\n%s", res.GeneratedCode)
	}
	if !launcher.page.wasClosed() {
		t.Error("browser page must be released on stop")
	}

	if _, err := r.Stop(context.Background(), "s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Stop err = %v, want ErrNotFound", err)
	}
	if _, err := r.Session("s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Session after Stop err = %v, want ErrNotFound", err)
	}
}

func TestDeleteAction(t *testing.T) {
	launcher := &fakeLauncher{}
	r := newTestRecorder(t, launcher)
	mustStart(t, r, "s1")
	launcher.spec.OnAction(action.Action{Type: action.Click, Selector: "#a"})
	launcher.spec.OnAction(action.Action{Type: action.Click, Selector: "#b"})

	view, _ := r.Session("s1")
	victim := view.Actions[1]
	if err := r.DeleteAction(context.Background(), "s1", victim.ID); err != nil {
		t.Fatalf("DeleteAction: %v", err)
	}
	view, _ = r.Session("s1")
	if len(view.Actions) != 2 {
		t.Fatalf("actions = %d", len(view.Actions))
	}
	for _, a := range view.Actions {
		if a.ID == victim.ID {
			t.Fatal("deleted action still present")
		}
	}
	if err := r.DeleteAction(context.Background(), "s1", victim.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("delete twice err = %v, want ErrNotFound", err)
	}
}

func TestUpdateActionPatchesMutableFieldsOnly(t *testing.T) {
	launcher := &fakeLauncher{}
	r := newTestRecorder(t, launcher)
	mustStart(t, r, "s1")
	launcher.spec.OnAction(action.Action{Type: action.Fill, Selector: "#email", Value: "old"})

	view, _ := r.Session("s1")
	target := view.Actions[1]
	newVal := "new@example.com"
	updated, err := r.UpdateAction(context.Background(), "s1", target.ID, action.Patch{Value: &newVal})
	if err != nil {
		t.Fatalf("UpdateAction: %v", err)
	}
	if updated.Value != newVal {
		t.Errorf("value = %q", updated.Value)
	}
	if updated.ID != target.ID || updated.Type != target.Type || updated.Timestamp != target.Timestamp {
		t.Errorf("identity fields changed: %+v vs %+v", updated, target)
	}

	if _, err := r.UpdateAction(context.Background(), "s1", "act_missing", action.Patch{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing action err = %v, want ErrNotFound", err)
	}
}

func TestAddAssertion(t *testing.T) {
	launcher := &fakeLauncher{}
	r := newTestRecorder(t, launcher)
	mustStart(t, r, "s1")

	a, err := r.AddAssertion(context.Background(), "s1", Assertion{
		Selector: "#total", Type: "text", Expected: "42.00",
	})
	if err != nil {
		t.Fatalf("AddAssertion: %v", err)
	}
	if a.Type != action.Assert || a.Selector != "#total" || a.Value != "42.00" {
		t.Fatalf("assertion action = %+v", a)
	}
	if a.Description != `Assert text equals "42.00"` {
		t.Errorf("description = %q", a.Description)
	}

	if _, err := r.AddAssertion(context.Background(), "s1", Assertion{Selector: "#x"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing type err = %v, want ErrValidation", err)
	}

	// assertions are accepted while paused
	if err := r.Pause(context.Background(), "s1"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.AddAssertion(context.Background(), "s1", Assertion{Selector: "#x", Type: "visible"}); err != nil {
		t.Fatalf("AddAssertion while paused: %v", err)
	}
}

func TestAssertionDescriptions(t *testing.T) {
	tests := []struct {
		as   Assertion
		want string
	}{
		{Assertion{Selector: "#hero", Type: "visible"}, "Assert element is visible: #hero"},
		{Assertion{Selector: "#total", Type: "text", Expected: "42.00"}, `Assert text equals "42.00"`},
		{Assertion{Selector: "#email", Type: "value", Expected: "a@b.c"}, `Assert value equals "a@b.c"`},
		{Assertion{Selector: "#row", Type: "count"}, "Assert count"},
	}
	for _, tt := range tests {
		if got := tt.as.describe(); got != tt.want {
			t.Errorf("describe(%s) = %q, want %q", tt.as.Type, got, tt.want)
		}
	}
}

func TestTakeScreenshot(t *testing.T) {
	launcher := &fakeLauncher{}
	r := newTestRecorder(t, launcher)
	mustStart(t, r, "s1")

	path, err := r.TakeScreenshot(context.Background(), "s1")
	if err != nil {
		t.Fatalf("TakeScreenshot: %v", err)
	}
	if filepath.Ext(path) != ".png" || !strings.Contains(filepath.Base(path), "s1") {
		t.Errorf("path = %q", path)
	}
	if got := launcher.page.screenshots; len(got) != 1 || got[0] != path {
		t.Errorf("page screenshots = %v", got)
	}
	view, _ := r.Session("s1")
	last := view.Actions[len(view.Actions)-1]
	if last.Type != action.Screenshot || last.Value != path {
		t.Errorf("screenshot action = %+v", last)
	}
}

func TestGenerateWithoutStopping(t *testing.T) {
	launcher := &fakeLauncher{}
	r := newTestRecorder(t, launcher)
	mustStart(t, r, "s1")
	launcher.spec.OnAction(action.Action{Type: action.Click, Selector: "#go"})

	code1, err := r.Generate(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	code2, err := r.Generate(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if code1 != code2 {
		t.Fatal("Generate must be deterministic for an unchanged log")
	}
	view, _ := r.Session("s1")
	if view.Status != StatusRecording {
		t.Fatalf("Generate must not stop the session, status = %q", view.Status)
	}
	if view.GeneratedCode != code1 {
		t.Error("view must carry the last generated code")
	}
}

func TestPageContent(t *testing.T) {
	page := &fakePage{content: "<html><body><button id=\"go\">Go</button></body></html>"}
	launcher := &fakeLauncher{page: page}
	r := newTestRecorder(t, launcher)
	mustStart(t, r, "s1")

	html, err := r.PageContent(context.Background(), "s1")
	if err != nil {
		t.Fatalf("PageContent: %v", err)
	}
	if !strings.Contains(html, "button") {
		t.Errorf("html = %q", html)
	}
}

func TestDisconnectMarksError(t *testing.T) {
	launcher := &fakeLauncher{}
	r := newTestRecorder(t, launcher)
	mustStart(t, r, "s1")

	launcher.spec.OnDisconnect()
	view, _ := r.Session("s1")
	if view.Status != StatusError {
		t.Fatalf("status = %q, want error", view.Status)
	}
	// capture after disconnect is dropped
	launcher.spec.OnAction(action.Action{Type: action.Click, Selector: "#x"})
	view, _ = r.Session("s1")
	if len(view.Actions) != 1 {
		t.Fatal("disconnected session must not capture")
	}
}

func TestDisconnectAfterStopIsIgnored(t *testing.T) {
	launcher := &fakeLauncher{}
	r := newTestRecorder(t, launcher)
	mustStart(t, r, "s1")
	if _, err := r.Stop(context.Background(), "s1"); err != nil {
		t.Fatal(err)
	}
	// the page close fires the disconnect callback; it must not resurrect
	// or fail the completed session
	launcher.spec.OnDisconnect()
}

func TestSessionsSortedAndIsolated(t *testing.T) {
	launcher := &fakeLauncher{}
	r := newTestRecorder(t, launcher)
	mustStart(t, r, "s2")
	specB := launcher.spec
	mustStart(t, r, "s1")

	specB.OnAction(action.Action{Type: action.Click, Selector: "#only-s2"})

	views := r.Sessions()
	if len(views) != 2 || views[0].ID != "s1" || views[1].ID != "s2" {
		t.Fatalf("views = %+v", views)
	}
	if len(views[0].Actions) != 1 {
		t.Errorf("s1 leaked actions: %d", len(views[0].Actions))
	}
	if len(views[1].Actions) != 2 {
		t.Errorf("s2 actions = %d", len(views[1].Actions))
	}
}

func TestEventsPublishedOnLifecycle(t *testing.T) {
	launcher := &fakeLauncher{}
	bus := events.NewFanout(slog.New(slog.NewTextHandler(io.Discard, nil)))
	var mu sync.Mutex
	var seen []events.Name
	bus.Subscribe(func(_ context.Context, ev events.Event) error {
		mu.Lock()
		seen = append(seen, ev.Name)
		mu.Unlock()
		return nil
	})
	r := New(Config{
		RecordingsDir: t.TempDir(),
		Launcher:      launcher,
		Bus:           bus,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	mustStart(t, r, "s1")
	launcher.spec.OnAction(action.Action{Type: action.Click, Selector: "#x"})
	if err := r.Pause(context.Background(), "s1"); err != nil {
		t.Fatal(err)
	}
	if err := r.Resume(context.Background(), "s1"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Stop(context.Background(), "s1"); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []events.Name{
		events.SessionStarted, events.ActionRecorded, events.ActionRecorded,
		events.SessionPaused, events.SessionResumed, events.SessionCompleted,
	}
	if len(seen) != len(want) {
		t.Fatalf("events = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("events = %v, want %v", seen, want)
		}
	}
}

func TestShutdownReleasesAllPages(t *testing.T) {
	launcher := &fakeLauncher{}
	r := newTestRecorder(t, launcher)
	mustStart(t, r, "s1")
	page := launcher.page

	r.Shutdown(context.Background())
	if !page.wasClosed() {
		t.Fatal("shutdown must release browser pages")
	}
	if len(r.Sessions()) != 0 {
		t.Fatal("shutdown must empty the registry")
	}
}

// Recording a sequence and generating from it must reproduce the exact
// script the statement grammar defines, end to end.
func TestRecordGenerateRoundTrip(t *testing.T) {
	launcher := &fakeLauncher{}
	r := newTestRecorder(t, launcher)
	mustStart(t, r, "s1")

	launcher.spec.OnAction(action.Action{Type: action.Fill, Selector: "#email", Value: "a@b.c"})
	launcher.spec.OnAction(action.Action{Type: action.Press, Selector: "#email", Key: "Tab"})
	launcher.spec.OnAction(action.Action{Type: action.Click, Selector: `[data-testid="submit"]`})

	res, err := r.Stop(context.Background(), "s1")
	if err != nil {
		t.Fatal(err)
	}
	for _, line := range []string{
		"await page.goto('https://example.com/app');",
		"await page.locator('#email').fill('a@b.c');",
		"await page.locator('#email').press('Tab');",
		`await page.locator('[data-testid="submit"]').click();`,
	} {
		if !strings.Contains(res.GeneratedCode, line) {
			t.Errorf("generated code missing %q:\n%s", line, res.GeneratedCode)
		}
	}
}
