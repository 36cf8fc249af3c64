package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"antispambot/internal/core"
)

const defaultAnthropicModel = "claude-3-5-haiku-latest"

type AnthropicClient struct {
	config *core.SpamConfig
	logger *zap.Logger
	client *anthropic.Client
}

func NewAnthropicClient(config *core.SpamConfig, logger *zap.Logger) (*AnthropicClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}

	var opts []option.RequestOption
	opts = append(opts, option.WithAPIKey(config.APIKey))

	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	client := anthropic.NewClient(opts...)

	return &AnthropicClient{
		config: config,
		logger: logger,
		client: &client,
	}, nil
}

func (a *AnthropicClient) Score(ctx context.Context, name string) (float64, error) {
	model := a.config.Model
	if model == "" {
		model = defaultAnthropicModel
	}

	message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokensScore,
		System: []anthropic.TextBlockParam{{
			Text: systemPrompt,
		}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt(name))),
		},
		Temperature: anthropic.Float(defaultTemperature),
	})
	if err != nil {
		return 0, fmt.Errorf("Anthropic API call failed: %w", err)
	}

	if len(message.Content) == 0 {
		return 0, fmt.Errorf("no response from Anthropic")
	}

	content := message.Content[0].Text
	response, err := parseScoreResponse(content)
	if err != nil {
		a.logger.Error("Failed to parse Anthropic response", zap.Error(err), zap.String("content", content))
		return 0, err
	}

	a.logger.Debug("Anthropic score received",
		zap.String("name", name),
		zap.Float64("score", response.Score),
		zap.String("reason", response.Reason))
	return response.Score, nil
}
