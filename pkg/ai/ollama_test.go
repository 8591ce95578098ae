package ai

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	witerrors "thoreinstein.com/wit/pkg/errors"
)

func TestNewOllamaProvider(t *testing.T) {
	tests := []struct {
		name         string
		endpoint     string
		model        string
		wantEndpoint string
		wantModel    string
	}{
		{"defaults", "", "", ollamaDefaultEndpoint, ollamaDefaultModel},
		{"custom values preserved", "http://custom:1234", "custom-model", "http://custom:1234", "custom-model"},
		{"trailing slash trimmed", "http://custom:1234/", "", "http://custom:1234", ollamaDefaultModel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewOllamaProvider(tt.endpoint, tt.model, nil)
			if p.endpoint != tt.wantEndpoint {
				t.Errorf("endpoint = %q, want %q", p.endpoint, tt.wantEndpoint)
			}
			if p.model != tt.wantModel {
				t.Errorf("model = %q, want %q", p.model, tt.wantModel)
			}
		})
	}
}

func TestOllamaProvider_Chat_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != ollamaChatPath {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}

		var reqBody ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
			t.Errorf("Failed to decode request body: %v", err)
		}
		if reqBody.Stream {
			t.Error("Stream should be false")
		}
		if reqBody.Options == nil || reqBody.Options.NumPredict != 900 {
			t.Errorf("Options = %+v, want num_predict 900", reqBody.Options)
		}
		if len(reqBody.Messages) != 2 || reqBody.Messages[0].Role != "system" {
			t.Errorf("Messages = %+v", reqBody.Messages)
		}

		_ = json.NewEncoder(w).Encode(ollamaResponse{
			Model:           "llama3.2",
			Message:         ollamaMessage{Role: "assistant", Content: "Three active bugs."},
			Done:            true,
			DoneReason:      "stop",
			PromptEvalCount: 10,
			EvalCount:       20,
		})
	}))
	defer server.Close()

	p := NewOllamaProvider(server.URL, "llama3.2", nil)
	resp, err := p.Chat(t.Context(), ChatRequest{Messages: Conversation("summarize", "items"), MaxTokens: 900})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	if resp.Content != "Three active bugs." || resp.FinishReason != "stop" || resp.Truncated {
		t.Errorf("resp = %+v", resp)
	}
	if resp.InputTokens != 10 || resp.OutputTokens != 20 {
		t.Errorf("tokens = %d/%d", resp.InputTokens, resp.OutputTokens)
	}
}

func TestOllamaProvider_Chat_Structured(t *testing.T) {
	var got ollamaRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(ollamaResponse{Message: ollamaMessage{Content: `{}`}, Done: true})
	}))
	defer server.Close()

	p := NewOllamaProvider(server.URL, "llama3.2", nil)
	_, err := p.Chat(t.Context(), ChatRequest{
		Messages:    Conversation("sys", "user"),
		Temperature: Float(0),
		Schema:      &Schema{Name: "query_spec", Schema: map[string]any{"type": "object"}},
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	if got.Options == nil || got.Options.Temperature == nil || *got.Options.Temperature != 0 {
		t.Errorf("Options = %+v, want temperature 0", got.Options)
	}
	if got.Options != nil && got.Options.NumPredict != 0 {
		t.Errorf("NumPredict = %d, want unset", got.Options.NumPredict)
	}
	if got.Format["type"] != "object" {
		t.Errorf("Format = %v", got.Format)
	}
}

func TestOllamaProvider_Chat_FinishReasons(t *testing.T) {
	tests := []struct {
		name          string
		resp          ollamaResponse
		wantFinish    string
		wantTruncated bool
	}{
		{"length", ollamaResponse{Done: true, DoneReason: "length"}, "length", true},
		{"done without reason", ollamaResponse{Done: true}, "stop", false},
		{"incomplete", ollamaResponse{Done: false}, "incomplete", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(tt.resp)
			}))
			defer server.Close()

			resp, err := NewOllamaProvider(server.URL, "", nil).Chat(t.Context(), ChatRequest{Messages: Conversation("s", "u")})
			if err != nil {
				t.Fatal(err)
			}
			if resp.FinishReason != tt.wantFinish || resp.Truncated != tt.wantTruncated {
				t.Errorf("FinishReason = %q, Truncated = %v", resp.FinishReason, resp.Truncated)
			}
		})
	}
}

func TestOllamaProvider_Chat_HTTPErrors(t *testing.T) {
	tests := []struct {
		name           string
		statusCode     int
		responseBody   string
		wantErrContain string
		wantRetryable  bool
	}{
		{"bad request with message", http.StatusBadRequest, `{"error": "model not found"}`, "model not found", false},
		{"server error", http.StatusInternalServerError, `{"error": "internal error"}`, "internal error", true},
		{"unavailable without message", http.StatusServiceUnavailable, `{}`, "HTTP 503", true},
		{"non json body", http.StatusBadGateway, `not json`, "HTTP 502", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.responseBody))
			}))
			defer server.Close()

			_, err := NewOllamaProvider(server.URL, "", nil).Chat(t.Context(), ChatRequest{Messages: Conversation("s", "u")})
			if err == nil {
				t.Fatal("Chat() should return error")
			}
			if !strings.Contains(err.Error(), tt.wantErrContain) {
				t.Errorf("error = %q, should contain %q", err.Error(), tt.wantErrContain)
			}
			if !witerrors.IsAIError(err) {
				t.Errorf("error should be an AIError, got %T", err)
			}
			if witerrors.IsRetryable(err) != tt.wantRetryable {
				t.Errorf("IsRetryable = %v, want %v", witerrors.IsRetryable(err), tt.wantRetryable)
			}
		})
	}
}

func TestOllamaProvider_Chat_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{invalid json`))
	}))
	defer server.Close()

	_, err := NewOllamaProvider(server.URL, "", nil).Chat(t.Context(), ChatRequest{Messages: Conversation("s", "u")})
	if err == nil || !strings.Contains(err.Error(), "parse") {
		t.Errorf("error = %v, want parse failure", err)
	}
}

func TestOllamaProvider_Chat_NotConfigured(t *testing.T) {
	p := &OllamaProvider{endpoint: "", model: "test", client: &http.Client{}}

	_, err := p.Chat(t.Context(), ChatRequest{Messages: Conversation("s", "u")})
	if err == nil || !strings.Contains(err.Error(), "not configured") {
		t.Errorf("error = %v, want not configured", err)
	}
}
