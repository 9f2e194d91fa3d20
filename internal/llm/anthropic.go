package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

const (
	defaultAnthropicModel     = "claude-3-7-sonnet-latest"
	defaultAnthropicMaxTokens = 1024
	jsonModeInstruction       = "Respond with a single JSON object and nothing else."
)

// AnthropicClient adapts the Messages API to Completer.
type AnthropicClient struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	logger    *zap.SugaredLogger
}

type AnthropicOptions struct {
	APIKey  string
	BaseURL string
	Model   string
	// MaxTokens is used when a request does not set its own limit.
	MaxTokens  int
	Timeout    time.Duration
	MaxRetries int
	HTTPClient *http.Client
}

func NewAnthropicClient(opts AnthropicOptions, logger *zap.SugaredLogger) *AnthropicClient {
	clientOpts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(opts.APIKey)),
		option.WithMaxRetries(opts.MaxRetries),
	}
	if base := strings.TrimSpace(opts.BaseURL); base != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(base))
	}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(opts.HTTPClient))
	}
	if opts.Timeout > 0 {
		clientOpts = append(clientOpts, option.WithRequestTimeout(opts.Timeout))
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultAnthropicModel
	}

	maxTokens := int64(opts.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &AnthropicClient{
		client:    anthropic.NewClient(clientOpts...),
		model:     model,
		maxTokens: maxTokens,
		logger:    logger,
	}
}

func (c *AnthropicClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if len(req.Messages) == 0 {
		return "", fmt.Errorf("llm: prompt has no messages")
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = int64(req.MaxTokens)
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	// The Messages API takes system text separately from the turn list.
	var system []anthropic.TextBlockParam
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: msg.Content})
		case RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	if req.JSON {
		system = append(system, anthropic.TextBlockParam{Text: jsonModeInstruction})
	}
	if len(system) > 0 {
		params.System = system
	}
	if len(params.Messages) == 0 {
		return "", fmt.Errorf("llm: prompt has no user turns")
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", &APIError{StatusCode: apiErr.StatusCode, Message: strings.TrimSpace(apiErr.Error())}
		}
		return "", fmt.Errorf("call messages api: %w", err)
	}

	c.logger.Debugf("anthropic completion model=%s input_tokens=%d output_tokens=%d stop=%s",
		c.model, resp.Usage.InputTokens, resp.Usage.OutputTokens, resp.StopReason)

	var text strings.Builder
	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(b.Text)
		}
	}

	content := strings.TrimSpace(text.String())
	if content == "" {
		return "", ErrEmptyCompletion
	}
	return content, nil
}
