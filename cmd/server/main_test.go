package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wuwenbin0122/lovelens/internal/chat"
	"github.com/wuwenbin0122/lovelens/internal/llm"
	"github.com/wuwenbin0122/lovelens/internal/models"
	"github.com/wuwenbin0122/lovelens/internal/store"
	"github.com/wuwenbin0122/lovelens/internal/utils"
)

func TestSetupRouterHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	completer := llm.CompleterFunc(func(context.Context, llm.CompletionRequest) (string, error) {
		return "ok", nil
	})
	router := setupRouter(zap.NewNop(), store.NewMemoryStore(), chat.NewService(completer, chat.Options{}, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["timestamp"] == "" {
		t.Fatalf("unexpected health body %v", body)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/conversations", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected api routes to be mounted, got %d", rec.Code)
	}
}

func TestChatOptionsFromConfig(t *testing.T) {
	opts := chatOptions(utils.LLMConfig{Temperature: 0, MaxTokens: 256})
	if opts.Temperature == nil || *opts.Temperature != 0 {
		t.Fatalf("expected temperature 0 to be kept, got %v", opts.Temperature)
	}
	if opts.MaxTokens != 256 {
		t.Fatalf("expected max tokens 256, got %d", opts.MaxTokens)
	}

	var seen llm.CompletionRequest
	completer := llm.CompleterFunc(func(_ context.Context, req llm.CompletionRequest) (string, error) {
		seen = req
		return "ok", nil
	})
	svc := chat.NewService(completer, opts, nil)
	if _, err := svc.GenerateResponse(context.Background(), models.Conversation{
		Messages: []models.Message{{Content: "hi", Sender: models.SenderUser}},
	}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if seen.MaxTokens != 256 || seen.Temperature == nil || *seen.Temperature != 0 {
		t.Fatalf("config not applied to primary completion: %+v", seen)
	}
}
