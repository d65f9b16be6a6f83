package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	"github.com/aisouls/backend/internal/config"
)

// Service sends assembled prompts to the chat model. It makes exactly one
// request per call and never retries.
type Service struct {
	chain compose.Runnable[[]*schema.Message, *schema.Message]
}

// NewService creates the Ark-backed completion service.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewServiceWithModel(ctx, chatModel)
}

// NewServiceWithModel wires an arbitrary eino chat model.
func NewServiceWithModel(ctx context.Context, chatModel model.BaseChatModel) (*Service, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}

	chain := compose.NewChain[[]*schema.Message, *schema.Message]()
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{chain: runnable}, nil
}

// Complete runs one completion with the persona's sampling parameters.
func (s *Service) Complete(ctx context.Context, messages []*schema.Message, temperature float64, maxTokens int) (string, error) {
	opts := []model.Option{model.WithTemperature(float32(temperature))}
	if maxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(maxTokens))
	}

	response, err := s.chain.Invoke(ctx, messages, compose.WithChatModelOption(opts...))
	if err != nil {
		classified := classifyError(err)
		log.Ctx(ctx).Warn().Err(classified).Int("messages", len(messages)).Msg("completion failed")
		return "", classified
	}
	if response == nil {
		return "", nil
	}

	log.Ctx(ctx).Debug().
		Int("messages", len(messages)).
		Int("length", len(response.Content)).
		Msg("completion generated")
	return response.Content, nil
}

// Completer is satisfied by Service and Unconfigured.
type Completer interface {
	Complete(ctx context.Context, messages []*schema.Message, temperature float64, maxTokens int) (string, error)
}

// NewCompleter returns the Ark-backed service when credentials are present
// and an Unconfigured stand-in otherwise.
func NewCompleter(ctx context.Context, cfg config.AIConfig) (Completer, error) {
	if !cfg.Enabled() {
		log.Ctx(ctx).Warn().Msg("Ark credentials not configured, completions will fail until ARK_API_KEY and Model are set")
		return Unconfigured{}, nil
	}
	svc, err := NewService(ctx, cfg)
	if err != nil {
		return nil, err
	}
	log.Ctx(ctx).Info().Str("model", cfg.Model).Msg("completion service ready")
	return svc, nil
}

// Unconfigured stands in for the model when no credentials are present.
// Every call fails with an auth ProviderError.
type Unconfigured struct {
	Reason string
}

// Complete always fails.
func (u Unconfigured) Complete(context.Context, []*schema.Message, float64, int) (string, error) {
	reason := u.Reason
	if reason == "" {
		reason = "completion credentials are not configured"
	}
	return "", &ProviderError{Kind: KindAuth, Err: errors.New(reason)}
}
