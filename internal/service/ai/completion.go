package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/calegria/mindpanel/backend/internal/config"
)

// Service drives the configured chat model through a compiled eino chain.
type Service struct {
	chatModel model.ChatModel
	chain     compose.Runnable[map[string]any, *schema.Message]
	logger    *zap.Logger
}

// NewService compiles the prompt->model chain once at startup.
func NewService(ctx context.Context, cfg config.AIConfig, logger *zap.Logger) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile completion chain: %w", err)
	}

	return &Service{chatModel: chatModel, chain: runnable, logger: logger}, nil
}

// Complete runs one prompt through the chain and returns the raw model text.
func (s *Service) Complete(ctx context.Context, system, query string) (string, error) {
	response, err := s.chain.Invoke(ctx, map[string]any{
		"system": system,
		"query":  query,
	})
	if err != nil {
		return "", fmt.Errorf("run completion chain: %w", err)
	}

	s.logger.Debug("completion generated",
		zap.Int("prompt_chars", len(system)+len(query)),
		zap.Int("response_chars", len(response.Content)))
	return response.Content, nil
}

// ErrUnavailable is returned by Unavailable for every call.
var ErrUnavailable = errors.New("completion model not configured")

// Unavailable satisfies the completion contract when no model credentials are
// configured. Every call fails, which the panel engine absorbs into
// per-persona fallback responses, so the API surface stays usable.
type Unavailable struct{}

// Complete always reports the model as unavailable.
func (Unavailable) Complete(context.Context, string, string) (string, error) {
	return "", ErrUnavailable
}
