package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestRequestIDPropagates(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if seen != "abc-123" || rr.Header().Get("X-Request-ID") != "abc-123" {
		t.Fatalf("request id = %q / header %q", seen, rr.Header().Get("X-Request-ID"))
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || seen != rr.Header().Get("X-Request-ID") {
		t.Fatalf("generated request id mismatch: %q vs %q", seen, rr.Header().Get("X-Request-ID"))
	}
}

func TestRequestIDRejectsUnsafeValues(t *testing.T) {
	tests := []struct {
		name   string
		header string
		keep   bool
	}{
		{name: "uuid", header: "0b6f7c1e-93f5-4c43-9d55-2a8f0f3f5b11", keep: true},
		{name: "token", header: "edge.42_a", keep: true},
		{name: "newline", header: "abc\nlevel=error", keep: false},
		{name: "quote", header: `abc"}`, keep: false},
		{name: "too long", header: strings.Repeat("a", maxRequestIDLen+1), keep: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var seen string
			handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = RequestIDFromContext(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(RequestIDHeader, tc.header)
			handler.ServeHTTP(httptest.NewRecorder(), req)
			if got := seen == tc.header; got != tc.keep {
				t.Fatalf("kept = %v, want %v (id %q)", got, tc.keep, seen)
			}
			if seen == "" {
				t.Fatalf("request id must never be empty")
			}
		})
	}
}

func TestRequestLoggerTagsRequestID(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)
	ctx := context.WithValue(context.Background(), requestIDKey, "rid-7")

	logger := RequestLogger(ctx, base)
	logger.Info().Msg("session created")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if entry["request_id"] != "rid-7" {
		t.Fatalf("request_id = %v, want rid-7", entry["request_id"])
	}
}

func TestLoggerRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	handler := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("hi"))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if entry["status"] != float64(http.StatusTeapot) || entry["path"] != "/v1/healthz" || entry["bytes"] != float64(2) {
		t.Fatalf("unexpected log entry %v", entry)
	}
}

func TestLoggerWriterIsHijacker(t *testing.T) {
	var rw http.ResponseWriter = &responseWriter{ResponseWriter: httptest.NewRecorder()}
	h, ok := rw.(http.Hijacker)
	if !ok {
		t.Fatalf("responseWriter must implement http.Hijacker")
	}
	if _, _, err := h.Hijack(); err == nil {
		t.Fatalf("expected error when the underlying writer cannot hijack")
	}
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		method  string
		want    string
		code    int
	}{
		{name: "allowed origin", allowed: []string{"http://localhost:3000"}, origin: "http://localhost:3000", method: http.MethodGet, want: "http://localhost:3000", code: http.StatusOK},
		{name: "unknown origin", allowed: []string{"http://localhost:3000"}, origin: "http://evil.test", method: http.MethodGet, want: "", code: http.StatusOK},
		{name: "wildcard", allowed: []string{"*"}, origin: "http://any.test", method: http.MethodGet, want: "http://any.test", code: http.StatusOK},
		{name: "preflight", allowed: []string{"http://localhost:3000"}, origin: "http://localhost:3000", method: http.MethodOptions, want: "http://localhost:3000", code: http.StatusNoContent},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler := CORS(tc.allowed)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
			req := httptest.NewRequest(tc.method, "/v1/sessions", nil)
			req.Header.Set("Origin", tc.origin)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tc.want {
				t.Fatalf("allow origin = %q, want %q", got, tc.want)
			}
			if rr.Code != tc.code {
				t.Fatalf("status = %d, want %d", rr.Code, tc.code)
			}
		})
	}
}
