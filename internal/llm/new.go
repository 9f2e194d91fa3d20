package llm

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/wuwenbin0122/lovelens/internal/utils"
)

// New builds the Completer selected by cfg.Provider.
func New(cfg utils.LLMConfig, logger *zap.SugaredLogger) (Completer, error) {
	active := cfg.Active()
	if strings.TrimSpace(active.APIKey) == "" {
		return nil, fmt.Errorf("llm: %s api key is not configured", cfg.Provider)
	}

	switch cfg.Provider {
	case "", utils.ProviderOpenAI:
		return NewOpenAIClient(OpenAIOptions{
			BaseURL: active.BaseURL,
			APIKey:  active.APIKey,
			Model:   active.Model,
			Timeout: cfg.Timeout,
		}, logger), nil

	case utils.ProviderAnthropic:
		return NewAnthropicClient(AnthropicOptions{
			APIKey:     active.APIKey,
			BaseURL:    active.BaseURL,
			Model:      active.Model,
			MaxTokens:  cfg.MaxTokens,
			Timeout:    cfg.Timeout,
			MaxRetries: 2,
		}, logger), nil

	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}
