// Package server exposes the work item tools over a JSON-lines protocol on
// a pair of streams, normally stdin and stdout.
//
// Each request is one JSON object per line:
//
//	{"id": 1, "method": "invoke_tool", "params": {"name": "get_work_item", "arguments": {"id": 42}}}
//
// Each response is one JSON object per line carrying the request id and
// either "result" or "error".
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	witerrors "thoreinstein.com/wit/pkg/errors"
	"thoreinstein.com/wit/pkg/tools"
)

// Methods understood by the server.
const (
	MethodInitialize = "initialize"
	MethodListTools  = "list_tools"
	MethodInvokeTool = "invoke_tool"
)

// Invoker runs a named tool.
type Invoker interface {
	Invoke(ctx context.Context, name string, params map[string]any) map[string]any
}

// Request is one inbound line.
type Request struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is one outbound line.
type Response struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Result any             `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

type initializeParams struct {
	Organization string `json:"organization"`
	Project      string `json:"project"`
	Endpoint     string `json:"endpoint"`
}

type invokeParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Target identifies the organization and project the server reports.
type Target struct {
	Organization string `json:"organization"`
	Project      string `json:"project"`
	Endpoint     string `json:"endpoint,omitempty"`
}

// Server answers requests against an Invoker.
type Server struct {
	tools     Invoker
	logger    *slog.Logger
	startTime time.Time

	mu       sync.Mutex
	target   Target
	requests int
}

// New creates a Server. target is the organization and project reported to
// clients until an initialize request overrides it.
func New(invoker Invoker, target Target, logger *slog.Logger) *Server {
	return &Server{
		tools:     invoker,
		logger:    logger,
		startTime: time.Now(),
		target:    target,
	}
}

// Serve reads requests from r and writes responses to w until r is
// exhausted or ctx is canceled. Malformed requests are answered with an
// error line and never end the loop.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	reader := bufio.NewReader(r)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, readErr := reader.ReadString('\n')
		if strings.TrimSpace(line) != "" {
			if err := enc.Encode(s.Handle(ctx, []byte(line))); err != nil {
				return witerrors.Wrap(err, "write response")
			}
		}

		if readErr == io.EOF {
			s.logDebug("input closed", "requests", s.Requests(), "uptime", time.Since(s.startTime))
			return nil
		}
		if readErr != nil {
			return witerrors.Wrap(readErr, "read request")
		}
	}
}

// Handle answers a single request line.
func (s *Server) Handle(ctx context.Context, line []byte) Response {
	correlationID := uuid.NewString()

	s.mu.Lock()
	s.requests++
	s.mu.Unlock()

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		s.logDebug("malformed request", "correlation_id", correlationID, "error", err)
		return Response{Error: err.Error()}
	}

	s.logDebug("request", "correlation_id", correlationID, "method", req.Method)

	switch req.Method {
	case MethodInitialize:
		var p initializeParams
		if err := decodeParams(req.Params, &p); err != nil {
			return Response{ID: req.ID, Error: err.Error()}
		}
		return Response{ID: req.ID, Result: s.initialize(p)}

	case MethodListTools:
		return Response{ID: req.ID, Result: map[string]any{
			"tools":       tools.Names(),
			"definitions": tools.Definitions(),
		}}

	case MethodInvokeTool:
		var p invokeParams
		if err := decodeParams(req.Params, &p); err != nil {
			return Response{ID: req.ID, Error: err.Error()}
		}
		if p.Name == "" {
			return Response{ID: req.ID, Error: "invoke_tool requires a tool name"}
		}
		start := time.Now()
		result := s.tools.Invoke(ctx, p.Name, p.Arguments)
		s.logDebug("tool finished", "correlation_id", correlationID, "tool", p.Name,
			"duration", time.Since(start), "failed", result["error"] != nil)
		return Response{ID: req.ID, Result: result}

	default:
		return Response{ID: req.ID, Error: "unknown_method"}
	}
}

func (s *Server) initialize(p initializeParams) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.Organization != "" {
		s.target.Organization = p.Organization
	}
	if p.Project != "" {
		s.target.Project = p.Project
	}
	if p.Endpoint != "" {
		s.target.Endpoint = p.Endpoint
	}
	return map[string]any{"ready": true, "target": s.target}
}

// Target returns the organization and project currently reported.
func (s *Server) Target() Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// Requests returns how many lines have been handled.
func (s *Server) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return witerrors.Wrap(err, "invalid params")
	}
	return nil
}

func (s *Server) logDebug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
