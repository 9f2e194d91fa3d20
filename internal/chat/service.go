// Package chat turns a conversation into an assistant reply plus optional
// title, summary and insights.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/wuwenbin0122/lovelens/internal/llm"
	"github.com/wuwenbin0122/lovelens/internal/models"
)

// FallbackReply is shown to the user when the primary completion fails.
const FallbackReply = "I'm sorry, I'm having trouble processing your message right now. Please try again later."

const (
	defaultTemperature = 0.7

	titleMinMessages    = 2
	summaryMinMessages  = 2
	insightsMinMessages = 4

	titleMaxTokens   = 10
	summaryMaxTokens = 50
	summaryMaxRunes  = 100
	titleMaxWords    = 5
)

var ErrCompletionFailed = errors.New("chat: completion failed")

// Response is the outcome of one turn. Nil fields were not generated.
type Response struct {
	Reply    string
	Title    *string
	Summary  *string
	Insights json.RawMessage
}

type Options struct {
	// Temperature defaults to 0.7 when nil. Zero is a valid setting.
	Temperature *float64
	// MaxTokens caps the primary reply. Zero leaves it to the provider.
	MaxTokens int
}

type Service struct {
	completer   llm.Completer
	logger      *zap.SugaredLogger
	temperature float64
	maxTokens   int
}

func NewService(completer llm.Completer, opts Options, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	temperature := defaultTemperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	return &Service{
		completer:   completer,
		logger:      logger,
		temperature: temperature,
		maxTokens:   opts.MaxTokens,
	}
}

// GenerateResponse asks for the assistant reply to conv, whose last message is
// normally the user turn just stored. Only the reply can fail the call.
func (s *Service) GenerateResponse(ctx context.Context, conv models.Conversation) (*Response, error) {
	history := buildHistory(conv.Messages)

	reply, err := s.completer.Complete(ctx, llm.CompletionRequest{
		Messages:    withSystem(therapistPrompt, history),
		Temperature: llm.Float(s.temperature),
		MaxTokens:   s.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompletionFailed, err)
	}

	resp := &Response{Reply: reply}
	count := len(conv.Messages)

	if count >= titleMinMessages && !conv.HasMeaningfulTitle() {
		if title, ok := s.generateTitle(ctx, history); ok {
			resp.Title = &title
		}
	}

	if count >= summaryMinMessages && conv.Summary == "" {
		if summary, ok := s.generateSummary(ctx, history); ok {
			resp.Summary = &summary
		}
	}

	if count >= insightsMinMessages {
		if insights, ok := s.generateInsights(ctx, history); ok {
			resp.Insights = insights
		}
	}

	return resp, nil
}

func (s *Service) generateTitle(ctx context.Context, history []llm.Message) (string, bool) {
	raw, err := s.completer.Complete(ctx, llm.CompletionRequest{
		Messages:    withInstruction(withSystem(therapistPrompt, history), titleInstruction),
		Temperature: llm.Float(s.temperature),
		MaxTokens:   titleMaxTokens,
	})
	if err != nil {
		s.logger.Warnf("generate title failed: %v", err)
		return "", false
	}

	title := cleanTitle(raw, titleMaxWords)
	if title == "" {
		return "", false
	}
	return title, true
}

func (s *Service) generateSummary(ctx context.Context, history []llm.Message) (string, bool) {
	raw, err := s.completer.Complete(ctx, llm.CompletionRequest{
		Messages:    withInstruction(withSystem(therapistPrompt, history), summaryInstruction),
		Temperature: llm.Float(s.temperature),
		MaxTokens:   summaryMaxTokens,
	})
	if err != nil {
		s.logger.Warnf("generate summary failed: %v", err)
		return "", false
	}

	summary := cleanSummary(raw, summaryMaxRunes)
	if summary == "" {
		return "", false
	}
	return summary, true
}

func (s *Service) generateInsights(ctx context.Context, history []llm.Message) (json.RawMessage, bool) {
	raw, err := s.completer.Complete(ctx, llm.CompletionRequest{
		Messages:    withInstruction(withSystem(insightsPrompt, history), insightsInstruction),
		Temperature: llm.Float(s.temperature),
		JSON:        true,
	})
	if err != nil {
		s.logger.Warnf("generate insights failed: %v", err)
		return nil, false
	}

	insights, ok := extractJSONObject(raw)
	if !ok {
		s.logger.Warnf("generate insights: completion was not a JSON object (%d bytes)", len(raw))
		return nil, false
	}
	return insights, true
}

func buildHistory(messages []models.Message) []llm.Message {
	history := make([]llm.Message, 0, len(messages))
	for _, msg := range messages {
		role := llm.RoleUser
		if msg.Sender == models.SenderAI {
			role = llm.RoleAssistant
		}
		history = append(history, llm.Message{Role: role, Content: msg.Content})
	}
	return history
}

func withSystem(prompt string, history []llm.Message) []llm.Message {
	out := make([]llm.Message, 0, len(history)+2)
	out = append(out, llm.Message{Role: llm.RoleSystem, Content: prompt})
	return append(out, history...)
}

func withInstruction(messages []llm.Message, instruction string) []llm.Message {
	return append(messages, llm.Message{Role: llm.RoleUser, Content: instruction})
}
