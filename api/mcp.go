package api

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/recwatch/idgen"
	"github.com/hazyhaar/recwatch/kit"
	"github.com/hazyhaar/recwatch/recorder"
)

var newToolRequestID = idgen.Prefixed("req_", idgen.UUIDv7())

// RegisterMCP registers the recording tools on an MCP server. The tool
// set mirrors the HTTP surface: agents drive recordings the same way the
// UI does.
func (s *Server) RegisterMCP(srv *mcp.Server) {
	s.registerStartTool(srv)
	s.registerStopTool(srv)
	s.registerPauseTool(srv)
	s.registerResumeTool(srv)
	s.registerStatusTool(srv)
	s.registerAssertionTool(srv)
	s.registerScreenshotTool(srv)
	s.registerGenerateTool(srv)
}

// tooled applies the shared middleware chain to a tool endpoint: a
// request ID for log correlation, then an invocation log line on the
// way out.
func (s *Server) tooled(name string, endpoint kit.Endpoint) kit.Endpoint {
	return kit.Chain(requestIDMiddleware, s.callLogMiddleware(name))(endpoint)
}

func requestIDMiddleware(next kit.Endpoint) kit.Endpoint {
	return func(ctx context.Context, req any) (any, error) {
		if kit.GetRequestID(ctx) == "" {
			ctx = kit.WithRequestID(ctx, newToolRequestID())
		}
		return next(ctx, req)
	}
}

func (s *Server) callLogMiddleware(name string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			resp, err := next(ctx, req)
			if err != nil {
				s.logger.Warn("tool call failed",
					"tool", name,
					"transport", kit.GetTransport(ctx),
					"request", kit.GetRequestID(ctx),
					"session", kit.GetSessionID(ctx),
					"error", err)
				return nil, err
			}
			s.logger.Debug("tool call",
				"tool", name,
				"request", kit.GetRequestID(ctx),
				"session", kit.GetSessionID(ctx))
			return resp, nil
		}
	}
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

type mcpStartRequest struct {
	URL         string `json:"url"`
	BrowserType string `json:"browser_type,omitempty"`
	Headless    bool   `json:"headless,omitempty"`
}

func (s *Server) registerStartTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "recorder_start",
		Description: "Start a browser recording session against a URL. Returns the session with its initial navigate action.",
		InputSchema: inputSchema(map[string]any{
			"url":          map[string]any{"type": "string", "description": "Absolute URL to record against"},
			"browser_type": map[string]any{"type": "string", "enum": []any{"chromium", "firefox", "webkit"}, "description": "Browser engine (default chromium)"},
			"headless":     map[string]any{"type": "boolean", "description": "Run the browser headless"},
		}, []string{"url"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*mcpStartRequest)
		return s.rec.Start(ctx, "", r.URL, recorder.Options{
			BrowserType: r.BrowserType,
			Headless:    r.Headless,
		})
	}

	kit.RegisterMCPTool(srv, tool, s.tooled(tool.Name, endpoint), decodeInto[mcpStartRequest])
}

type mcpSessionRequest struct {
	SessionID string `json:"session_id"`
}

func (r *mcpSessionRequest) sessionID() string { return r.SessionID }

func sessionSchema(desc string) map[string]any {
	return inputSchema(map[string]any{
		"session_id": map[string]any{"type": "string", "description": desc},
	}, []string{"session_id"})
}

func (s *Server) registerStopTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "recorder_stop",
		Description: "Stop a recording session. Returns the captured actions and the generated Playwright test script.",
		InputSchema: sessionSchema("Session to stop"),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		return s.rec.Stop(ctx, req.(*mcpSessionRequest).SessionID)
	}
	kit.RegisterMCPTool(srv, tool, s.tooled(tool.Name, endpoint), decodeInto[mcpSessionRequest])
}

func (s *Server) registerPauseTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "recorder_pause",
		Description: "Pause capture on a recording session. Interactions are discarded until resume.",
		InputSchema: sessionSchema("Session to pause"),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		id := req.(*mcpSessionRequest).SessionID
		if err := s.rec.Pause(ctx, id); err != nil {
			return nil, err
		}
		return map[string]any{"success": true}, nil
	}
	kit.RegisterMCPTool(srv, tool, s.tooled(tool.Name, endpoint), decodeInto[mcpSessionRequest])
}

func (s *Server) registerResumeTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "recorder_resume",
		Description: "Resume capture on a paused recording session.",
		InputSchema: sessionSchema("Session to resume"),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		id := req.(*mcpSessionRequest).SessionID
		if err := s.rec.Resume(ctx, id); err != nil {
			return nil, err
		}
		return map[string]any{"success": true}, nil
	}
	kit.RegisterMCPTool(srv, tool, s.tooled(tool.Name, endpoint), decodeInto[mcpSessionRequest])
}

func (s *Server) registerStatusTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "recorder_status",
		Description: "Get a recording session's status and captured actions. Falls back to the durable record for completed sessions.",
		InputSchema: sessionSchema("Session to inspect"),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		id := req.(*mcpSessionRequest).SessionID
		view, err := s.rec.Session(id)
		if err == nil {
			return view, nil
		}
		if s.history == nil {
			return nil, err
		}
		return s.history.ReadSessionRecord(ctx, id)
	}
	kit.RegisterMCPTool(srv, tool, s.tooled(tool.Name, endpoint), decodeInto[mcpSessionRequest])
}

type mcpAssertionRequest struct {
	SessionID     string `json:"session_id"`
	Selector      string `json:"selector"`
	AssertionType string `json:"assertion_type"`
	ExpectedValue string `json:"expected_value,omitempty"`
}

func (r *mcpAssertionRequest) sessionID() string { return r.SessionID }

func (s *Server) registerAssertionTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "recorder_add_assertion",
		Description: "Add an assertion to a recording at the current position.",
		InputSchema: inputSchema(map[string]any{
			"session_id":     map[string]any{"type": "string", "description": "Target session"},
			"selector":       map[string]any{"type": "string", "description": "CSS selector the assertion targets"},
			"assertion_type": map[string]any{"type": "string", "description": "Assertion kind, e.g. text, visible, value"},
			"expected_value": map[string]any{"type": "string", "description": "Expected value where the kind needs one"},
		}, []string{"session_id", "selector", "assertion_type"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*mcpAssertionRequest)
		return s.rec.AddAssertion(ctx, r.SessionID, recorder.Assertion{
			Selector: r.Selector,
			Type:     r.AssertionType,
			Expected: r.ExpectedValue,
		})
	}
	kit.RegisterMCPTool(srv, tool, s.tooled(tool.Name, endpoint), decodeInto[mcpAssertionRequest])
}

func (s *Server) registerScreenshotTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "recorder_screenshot",
		Description: "Capture a screenshot of the session's live page. Returns the stored file path.",
		InputSchema: sessionSchema("Session to capture"),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		path, err := s.rec.TakeScreenshot(ctx, req.(*mcpSessionRequest).SessionID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"path": path}, nil
	}
	kit.RegisterMCPTool(srv, tool, s.tooled(tool.Name, endpoint), decodeInto[mcpSessionRequest])
}

func (s *Server) registerGenerateTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "recorder_generate",
		Description: "Generate the Playwright test script from a session's current action log without stopping it.",
		InputSchema: sessionSchema("Session to generate from"),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		code, err := s.rec.Generate(ctx, req.(*mcpSessionRequest).SessionID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"generatedCode": code}, nil
	}
	kit.RegisterMCPTool(srv, tool, s.tooled(tool.Name, endpoint), decodeInto[mcpSessionRequest])
}

// sessionScoped requests carry the session they target; decoding puts it
// on the context so the middleware chain can log it.
type sessionScoped interface {
	sessionID() string
}

// decodeInto unmarshals the raw tool arguments into T.
func decodeInto[T any](req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var r T
	if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
		return nil, err
	}
	res := &kit.MCPDecodeResult{Request: &r}
	if sc, ok := any(&r).(sessionScoped); ok && sc.sessionID() != "" {
		res.EnrichCtx = func(ctx context.Context) context.Context {
			return kit.WithSessionID(ctx, sc.sessionID())
		}
	}
	return res, nil
}
