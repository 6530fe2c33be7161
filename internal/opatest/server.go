// Package opatest runs an in-process server that speaks the OPA REST data
// API, backed by the OPA rego engine. It is meant for tests.
//
// Supported endpoints:
//
//   - GET and POST /v1/data/{path}
//   - POST /v1/batch/data/{path} (unless [WithoutBatch])
//   - POST / (the default decision)
//   - GET /health
package opatest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/open-policy-agent/opa/v1/topdown"
)

// DefaultDecision is the rule evaluated by POST / unless changed with
// [WithDefaultDecision].
const DefaultDecision = "system/main/main"

const (
	dataPrefix  = "/v1/data"
	batchPrefix = "/v1/batch/data"
)

// Error codes and messages, matching the real server.
const (
	codeInternal          = "internal_error"
	codeInvalidParameter  = "invalid_parameter"
	codeUndefinedDocument = "undefined_document"
	codeUnauthorized      = "unauthorized"
	msgEvalError          = "error(s) occurred while evaluating query"
)

// Request is a request received by the server.
type Request struct {
	Method string
	// Path is the escaped request path, as sent by the client.
	Path   string
	Query  string
	Header http.Header
	// Body is the request body, decompressed if it was gzip encoded.
	Body []byte
}

// Server is a running fake OPA server.
type Server struct {
	compiler        *ast.Compiler
	modules         map[string]string
	batch           bool
	defaultDecision string
	token           string
	logger          *slog.Logger

	httpServer *httptest.Server

	mu       sync.Mutex
	requests []Request
}

// Option configures a Server.
type Option func(*Server) error

// WithPolicy adds a rego module. The name is used as the file name in error
// locations.
func WithPolicy(name, source string) Option {
	return func(s *Server) error {
		if name == "" {
			return errors.New("opatest: policy name must not be empty")
		}
		s.modules[name] = source
		return nil
	}
}

// WithoutBatch makes the batch endpoint answer 404 with a plain-text body,
// like servers that do not implement it.
func WithoutBatch() Option {
	return func(s *Server) error {
		s.batch = false
		return nil
	}
}

// WithDefaultDecision sets the rule evaluated by POST /.
func WithDefaultDecision(path string) Option {
	return func(s *Server) error {
		s.defaultDecision = strings.Trim(path, "/")
		return nil
	}
}

// WithBearerToken rejects requests to data endpoints that do not carry
// "Authorization: Bearer <token>".
func WithBearerToken(token string) Option {
	return func(s *Server) error {
		s.token = token
		return nil
	}
}

// WithLogger sets a logger for request logging.
// If nil, a discard logger is used (default behavior).
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		s.logger = logger
		return nil
	}
}

// NewServer compiles the policies and starts a server. It is closed when the
// test ends.
func NewServer(tb testing.TB, opts ...Option) *Server {
	tb.Helper()

	s, err := newServer(opts...)
	if err != nil {
		tb.Fatalf("opatest: %v", err)
	}
	s.httpServer = httptest.NewServer(s)
	tb.Cleanup(s.httpServer.Close)
	return s
}

func newServer(opts ...Option) (*Server, error) {
	s := &Server{
		modules:         make(map[string]string),
		batch:           true,
		defaultDecision: DefaultDecision,
		logger:          slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}

	compiler, err := ast.CompileModules(s.modules)
	if err != nil {
		return nil, fmt.Errorf("compile policies: %w", err)
	}
	s.compiler = compiler
	return s, nil
}

// URL returns the base URL of the server.
func (s *Server) URL() string {
	return s.httpServer.URL
}

// Requests returns a copy of the requests received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// RequestCount returns the number of requests received that match method
// and have the given path prefix.
func (s *Server) RequestCount(method, prefix string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && strings.HasPrefix(r.Path, prefix) {
			n++
		}
	}
	return n
}

// Reset forgets recorded requests.
func (s *Server) Reset() {
	s.mu.Lock()
	s.requests = nil
	s.mu.Unlock()
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidParameter, err.Error())
		return
	}

	escaped := r.URL.EscapedPath()
	s.record(Request{
		Method: r.Method,
		Path:   escaped,
		Query:  r.URL.RawQuery,
		Header: r.Header.Clone(),
		Body:   body,
	})
	s.logger.Debug("request", slog.String("method", r.Method), slog.String("path", escaped))

	if escaped == "/health" {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	if s.token != "" && r.Header.Get("Authorization") != "Bearer "+s.token {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "request rejected by administrative policy")
		return
	}

	switch {
	case escaped == "/" && r.Method == http.MethodPost:
		s.serveDefault(r.Context(), w, body)
	case hasPathPrefix(escaped, batchPrefix) && r.Method == http.MethodPost:
		if !s.batch {
			http.NotFound(w, r)
			return
		}
		s.serveBatch(r.Context(), w, strings.TrimPrefix(escaped, batchPrefix), body)
	case hasPathPrefix(escaped, dataPrefix) && (r.Method == http.MethodGet || r.Method == http.MethodPost):
		s.serveData(w, r, strings.TrimPrefix(escaped, dataPrefix), body)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) record(req Request) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
}

func (s *Server) serveData(w http.ResponseWriter, r *http.Request, path string, body []byte) {
	var input any
	hasInput := false
	if r.Method == http.MethodPost && len(bytes.TrimSpace(body)) > 0 {
		var req struct {
			Input *json.RawMessage `json:"input"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidParameter, "body contains malformed input document: "+err.Error())
			return
		}
		if req.Input != nil {
			if err := json.Unmarshal(*req.Input, &input); err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidParameter, err.Error())
				return
			}
			hasInput = true
		}
	}

	result, defined, err := s.eval(r.Context(), path, input, hasInput)
	if err != nil {
		writeEvalError(w, err)
		return
	}
	resp := map[string]any{"decision_id": uuid.NewString()}
	if defined {
		resp["result"] = result
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) serveDefault(ctx context.Context, w http.ResponseWriter, body []byte) {
	var input any
	hasInput := false
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &input); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidParameter, err.Error())
			return
		}
		hasInput = true
	}

	result, defined, err := s.eval(ctx, s.defaultDecision, input, hasInput)
	if err != nil {
		writeEvalError(w, err)
		return
	}
	if !defined {
		writeError(w, http.StatusNotFound, codeUndefinedDocument, "document missing: data/"+s.defaultDecision)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) serveBatch(ctx context.Context, w http.ResponseWriter, path string, body []byte) {
	var req struct {
		Inputs map[string]any `json:"inputs"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidParameter, err.Error())
		return
	}

	responses := make(map[string]any, len(req.Inputs))
	status := http.StatusOK
	for key, input := range req.Inputs {
		result, defined, err := s.eval(ctx, path, input, true)
		if err != nil {
			doc := evalErrorDocument(err)
			doc.HTTPStatusCode = "500"
			responses[key] = doc
			status = http.StatusMultiStatus
			continue
		}
		item := map[string]any{"decision_id": uuid.NewString()}
		if defined {
			item["result"] = result
		}
		responses[key] = item
	}

	writeJSON(w, status, map[string]any{
		"batch_decision_id": uuid.NewString(),
		"responses":         responses,
	})
}

// eval queries the document at the escaped path. Each segment is unescaped
// on its own, so "%2f" stays inside a segment.
func (s *Server) eval(ctx context.Context, escapedPath string, input any, hasInput bool) (any, bool, error) {
	query, err := dataQuery(escapedPath)
	if err != nil {
		return nil, false, err
	}

	opts := []func(*rego.Rego){
		rego.Compiler(s.compiler),
		rego.Query(query),
	}
	if hasInput {
		opts = append(opts, rego.Input(input))
	}
	rs, err := rego.New(opts...).Eval(ctx)
	if err != nil {
		return nil, false, err
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return nil, false, nil
	}
	return rs[0].Expressions[0].Value, true, nil
}

func dataQuery(escapedPath string) (string, error) {
	var b strings.Builder
	b.WriteString("data")
	for _, seg := range strings.Split(strings.Trim(escapedPath, "/"), "/") {
		if seg == "" {
			continue
		}
		name, err := pathUnescape(seg)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "[%q]", name)
	}
	return b.String(), nil
}

type serverError struct {
	Code           string        `json:"code"`
	Message        string        `json:"message"`
	HTTPStatusCode string        `json:"http_status_code,omitempty"`
	Errors         []errorDetail `json:"errors,omitempty"`
}

type errorDetail struct {
	Code     string    `json:"code"`
	Message  string    `json:"message"`
	Location *location `json:"location,omitempty"`
}

type location struct {
	File string `json:"file"`
	Row  int    `json:"row"`
	Col  int    `json:"col"`
}

func evalErrorDocument(err error) *serverError {
	var terr *topdown.Error
	if !errors.As(err, &terr) {
		return &serverError{Code: codeInternal, Message: err.Error()}
	}
	detail := errorDetail{Code: terr.Code, Message: terr.Message}
	if terr.Location != nil {
		detail.Location = &location{
			File: terr.Location.File,
			Row:  terr.Location.Row,
			Col:  terr.Location.Col,
		}
	}
	return &serverError{
		Code:    codeInternal,
		Message: msgEvalError,
		Errors:  []errorDetail{detail},
	}
}

func writeEvalError(w http.ResponseWriter, err error) {
	var perr *pathError
	if errors.As(err, &perr) {
		writeError(w, http.StatusBadRequest, codeInvalidParameter, perr.Error())
		return
	}
	writeJSON(w, http.StatusInternalServerError, evalErrorDocument(err))
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, &serverError{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readBody(r *http.Request) ([]byte, error) {
	var reader io.Reader = r.Body
	if strings.EqualFold(r.Header.Get("Content-Encoding"), "gzip") {
		zr, err := gzip.NewReader(r.Body)
		if err != nil {
			return nil, fmt.Errorf("could not decompress the body: %w", err)
		}
		defer zr.Close()
		reader = zr
	}
	return io.ReadAll(reader)
}

func hasPathPrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
