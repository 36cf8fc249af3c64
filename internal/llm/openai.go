package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"go.uber.org/zap"

	"antispambot/internal/core"
)

type OpenAIClient struct {
	config *core.SpamConfig
	logger *zap.Logger
	client *openai.Client
}

const (
	defaultTemperature = 0.0
	maxTokensScore     = 100
	defaultModel       = "gpt-4o-mini"
)

func NewOpenAIClient(config *core.SpamConfig, logger *zap.Logger) (*OpenAIClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	var opts []option.RequestOption
	opts = append(opts, option.WithAPIKey(config.APIKey))

	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	client := openai.NewClient(opts...)

	return &OpenAIClient{
		config: config,
		logger: logger,
		client: &client,
	}, nil
}

func (o *OpenAIClient) Score(ctx context.Context, name string) (float64, error) {
	o.logger.Debug("Calling OpenAI for display name scoring",
		zap.String("name", name),
		zap.String("model", o.getModel()))

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt(name)),
		},
		Model:       o.getModel(),
		Temperature: openai.Float(defaultTemperature),
		MaxTokens:   openai.Int(maxTokensScore),
	})
	if err != nil {
		return 0, fmt.Errorf("OpenAI API call failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return 0, fmt.Errorf("no response from OpenAI")
	}

	content := resp.Choices[0].Message.Content
	response, err := parseScoreResponse(content)
	if err != nil {
		o.logger.Error("Failed to parse OpenAI response",
			zap.Error(err),
			zap.String("content", content))
		return 0, err
	}

	o.logger.Debug("OpenAI score received",
		zap.Float64("score", response.Score),
		zap.String("reason", response.Reason))
	return response.Score, nil
}

func (o *OpenAIClient) getModel() shared.ChatModel {
	if o.config.Model != "" {
		return o.config.Model
	}
	return defaultModel
}
