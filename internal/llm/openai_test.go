package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestOpenAI(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewOpenAIClient(OpenAIOptions{
		BaseURL: server.URL + "/v1/",
		APIKey:  "test-key",
		Model:   "test-model",
		Timeout: 5 * time.Second,
	}, nil)
}

func TestOpenAICompleteSendsChatPayload(t *testing.T) {
	var got map[string]any
	client := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected authorization header %q", auth)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","choices":[{"index":0,"message":{"role":"assistant","content":"  hello there  "}}],"usage":{"prompt_tokens":3,"completion_tokens":2}}`)
	})

	reply, err := client.Complete(context.Background(), CompletionRequest{
		Messages:    []Message{{Role: RoleSystem, Content: "be kind"}, {Role: RoleUser, Content: "hi"}},
		Temperature: Float(0.7),
		MaxTokens:   10,
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if reply != "hello there" {
		t.Fatalf("expected trimmed reply, got %q", reply)
	}

	if got["model"] != "test-model" {
		t.Fatalf("expected model test-model, got %v", got["model"])
	}
	if got["max_tokens"] != float64(10) {
		t.Fatalf("expected max_tokens 10, got %v", got["max_tokens"])
	}
	if got["temperature"] != 0.7 {
		t.Fatalf("expected temperature 0.7, got %v", got["temperature"])
	}
	if _, ok := got["response_format"]; ok {
		t.Fatalf("response_format must be omitted outside JSON mode")
	}
	messages, ok := got["messages"].([]any)
	if !ok || len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %v", got["messages"])
	}
}

func TestOpenAICompleteTemperature(t *testing.T) {
	var got map[string]any
	client := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		got = nil
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`)
	})

	if _, err := client.Complete(context.Background(), CompletionRequest{
		Messages:    []Message{{Role: RoleUser, Content: "hi"}},
		Temperature: Float(0),
	}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if temp, ok := got["temperature"]; !ok || temp != float64(0) {
		t.Fatalf("expected explicit temperature 0 to be sent, got %v", got["temperature"])
	}

	if _, err := client.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, ok := got["temperature"]; ok {
		t.Fatalf("expected temperature omitted when unset, got %v", got["temperature"])
	}
}

func TestOpenAICompleteJSONMode(t *testing.T) {
	var format map[string]any
	client := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ResponseFormat map[string]any `json:"response_format"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		format = body.ResponseFormat
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"{\"a\":1}"}}]}`)
	})

	reply, err := client.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "json please"}},
		JSON:     true,
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if reply != `{"a":1}` {
		t.Fatalf("unexpected reply %q", reply)
	}
	if format["type"] != "json_object" {
		t.Fatalf("expected json_object response format, got %v", format)
	}
}

func TestOpenAICompleteAPIError(t *testing.T) {
	client := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"slow down","type":"rate_limit_error","code":429}}`)
	})

	_, err := client.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", apiErr.StatusCode)
	}
	if apiErr.Code != "429" || apiErr.Message != "slow down" {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
}

func TestOpenAICompletePlainTextError(t *testing.T) {
	client := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Message != http.StatusText(http.StatusBadGateway) {
		t.Fatalf("expected status text fallback, got %q", apiErr.Message)
	}
}

func TestOpenAICompleteEmptyReply(t *testing.T) {
	client := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"   "}}]}`)
	})

	_, err := client.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("expected ErrEmptyCompletion, got %v", err)
	}
}

func TestOpenAICompleteNoChoices(t *testing.T) {
	client := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"choices":[]}`)
	})

	if _, err := client.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	}); err == nil {
		t.Fatalf("expected error for empty choices")
	}
}

func TestOpenAICompleteRejectsEmptyPrompt(t *testing.T) {
	client := NewOpenAIClient(OpenAIOptions{APIKey: "k"}, nil)
	if _, err := client.Complete(context.Background(), CompletionRequest{}); err == nil {
		t.Fatalf("expected error for empty prompt")
	}
}

func TestAPIErrorCodeFallsBackToType(t *testing.T) {
	err := buildAPIError(http.StatusBadRequest, []byte(`{"error":{"type":"invalid_request_error","message":"bad"}}`))

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != "invalid_request_error" {
		t.Fatalf("expected type as code, got %q", apiErr.Code)
	}
}
