package services

import (
	"context"

	"github.com/sashabaranov/go-openai"

	"github.com/novylist/backend/internal/config"
)

// CompletionClient is the upstream chat-completion surface. *openai.Client
// satisfies it; tests substitute a stub so no network is touched.
type CompletionClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// NewCompletionClient builds the production client for OpenAI and
// OpenAI-compatible endpoints.
func NewCompletionClient(cfg *config.OpenAIConfig) CompletionClient {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientConfig)
}
