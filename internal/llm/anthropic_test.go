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

	"github.com/wuwenbin0122/lovelens/internal/utils"
)

const anthropicReply = `{"id":"msg_1","type":"message","role":"assistant","model":"test-model",` +
	`"content":[{"type":"text","text":"hello "},{"type":"text","text":"friend"}],` +
	`"stop_reason":"end_turn","usage":{"input_tokens":4,"output_tokens":2}}`

func newTestAnthropic(t *testing.T, handler http.HandlerFunc) *AnthropicClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewAnthropicClient(AnthropicOptions{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "test-model",
		Timeout: 5 * time.Second,
	}, nil)
}

func TestAnthropicCompleteLiftsSystemPrompt(t *testing.T) {
	var got struct {
		Model     string `json:"model"`
		MaxTokens int    `json:"max_tokens"`
		System    []struct {
			Text string `json:"text"`
		} `json:"system"`
		Messages []struct {
			Role string `json:"role"`
		} `json:"messages"`
	}

	client := newTestAnthropic(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if key := r.Header.Get("X-Api-Key"); key != "test-key" {
			t.Errorf("unexpected api key header %q", key)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, anthropicReply)
	})

	reply, err := client.Complete(context.Background(), CompletionRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "be kind"},
			{Role: RoleUser, Content: "hi"},
			{Role: RoleAssistant, Content: "hello"},
			{Role: RoleUser, Content: "how are you"},
		},
		Temperature: Float(0.7),
		MaxTokens:   50,
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if reply != "hello friend" {
		t.Fatalf("expected joined text blocks, got %q", reply)
	}

	if got.Model != "test-model" || got.MaxTokens != 50 {
		t.Fatalf("unexpected model/max_tokens: %s %d", got.Model, got.MaxTokens)
	}
	if len(got.System) != 1 || got.System[0].Text != "be kind" {
		t.Fatalf("expected system prompt lifted out of messages, got %+v", got.System)
	}
	if len(got.Messages) != 3 || got.Messages[1].Role != "assistant" {
		t.Fatalf("unexpected turn list %+v", got.Messages)
	}
}

func TestAnthropicCompleteJSONModeAddsInstruction(t *testing.T) {
	var system []map[string]any
	client := newTestAnthropic(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			System []map[string]any `json:"system"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		system = body.System
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, anthropicReply)
	})

	if _, err := client.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "json please"}},
		JSON:     true,
	}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if len(system) != 1 || system[0]["text"] != jsonModeInstruction {
		t.Fatalf("expected JSON instruction in system prompt, got %v", system)
	}
}

func TestAnthropicCompleteAPIError(t *testing.T) {
	client := newTestAnthropic(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`)
	})

	_, err := client.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", apiErr.StatusCode)
	}
}

func TestAnthropicCompleteEmptyReply(t *testing.T) {
	client := newTestAnthropic(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"msg_2","type":"message","role":"assistant","model":"test-model","content":[],"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":0}}`)
	})

	_, err := client.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("expected ErrEmptyCompletion, got %v", err)
	}
}

func TestAnthropicCompleteRequiresUserTurn(t *testing.T) {
	client := NewAnthropicClient(AnthropicOptions{APIKey: "k"}, nil)
	_, err := client.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleSystem, Content: "only system"}},
	})
	if err == nil {
		t.Fatalf("expected error for prompt without user turns")
	}
}

func TestNewSelectsProvider(t *testing.T) {
	cfg := utils.LLMConfig{
		Provider:  utils.ProviderAnthropic,
		Anthropic: utils.ProviderConfig{APIKey: "a"},
		OpenAI:    utils.ProviderConfig{APIKey: "o"},
	}

	completer, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, ok := completer.(*AnthropicClient); !ok {
		t.Fatalf("expected AnthropicClient, got %T", completer)
	}

	cfg.Provider = utils.ProviderOpenAI
	completer, err = New(cfg, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, ok := completer.(*OpenAIClient); !ok {
		t.Fatalf("expected OpenAIClient, got %T", completer)
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(utils.LLMConfig{Provider: utils.ProviderOpenAI}, nil); err == nil {
		t.Fatalf("expected error without api key")
	}
}
