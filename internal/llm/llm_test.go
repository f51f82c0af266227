package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func completionBody(content string) map[string]any {
	return map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"model":  "test-model",
		"choices": []map[string]any{
			{"index": 0, "message": map[string]any{"role": "assistant", "content": content}, "finish_reason": "stop"},
		},
		"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	}
}

func newTestServer(t *testing.T, hits *atomic.Int32, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		handler(w, r)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestGenerate(t *testing.T) {
	server := newTestServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "test-model" {
			t.Errorf("model = %q, want test-model", req.Model)
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" || req.Messages[0].Content != "Write a syllabus" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(completionBody("  Week 1: Intro  "))
	})

	c := New(server.URL, "test-key", "test-model")
	got, err := c.Generate(context.Background(), "Write a syllabus")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "Week 1: Intro" {
		t.Errorf("Generate() = %q, want trimmed content", got)
	}
}

func TestGenerateErrorKinds(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"bad key","type":"invalid_request_error","code":"invalid_api_key"}}`, ErrAuth},
		{"forbidden", http.StatusForbidden, `{"error":{"message":"no access","type":"permission_error"}}`, ErrAuth},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down","type":"rate_limit_error"}}`, ErrRateLimit},
		{"rate limited plain body", http.StatusTooManyRequests, `too many requests`, ErrRateLimit},
		{"server error", http.StatusInternalServerError, `{"error":{"message":"boom","type":"server_error"}}`, ErrNetwork},
		{"not json", http.StatusOK, `<html>oops</html>`, ErrMalformedResponse},
		{"no choices", http.StatusOK, `{"id":"x","object":"chat.completion","choices":[]}`, ErrMalformedResponse},
		{"empty content", http.StatusOK, `{"id":"x","choices":[{"index":0,"message":{"role":"assistant","content":"   "}}]}`, ErrMalformedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			server := newTestServer(t, &hits, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			c := New(server.URL, "test-key", "test-model")
			_, err := c.Generate(context.Background(), "prompt")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Generate() error = %v, want %v", err, tt.wantErr)
			}
			if KindOf(err) == "" {
				t.Error("KindOf should name the failure kind")
			}
			if n := hits.Load(); n != 1 {
				t.Errorf("backend called %d times, want exactly 1 (no retries)", n)
			}
		})
	}
}

func TestGenerateTimeout(t *testing.T) {
	server := newTestServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	c := New(server.URL, "test-key", "test-model", WithTimeout(50*time.Millisecond))
	start := time.Now()
	_, err := c.Generate(context.Background(), "prompt")
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("Generate() error = %v, want ErrNetwork", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Generate should give up once the timeout expires")
	}
}

func TestGenerateUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := New(url, "k", "m").Generate(context.Background(), "prompt")
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("Generate() error = %v, want ErrNetwork", err)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{errors.New("other"), ""},
		{ErrAuth, "auth"},
		{ErrRateLimit, "rate_limit"},
		{ErrNetwork, "network"},
		{ErrMalformedResponse, "malformed_response"},
	}
	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestPing(t *testing.T) {
	server := newTestServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"test-model","object":"model"}]}`))
	})
	if err := New(server.URL, "k", "test-model").Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
