// Package llm scores participant display names with a language model.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"antispambot/internal/core"
	"antispambot/internal/spam"
)

const (
	ScorerHeuristic = "heuristic"
	ScorerOpenAI    = "openai"
	ScorerAnthropic = "anthropic"
	ScorerOllama    = "ollama"
)

const systemPrompt = `You are a moderator of a Telegram group. Rate how likely a new member's display name
belongs to a spam or advertising account.

Respond with a JSON object in this exact format:
{"score": 42, "reason": "Brief explanation"}

Rules:
1. score is a number between 0 and 100 (0 = ordinary name, 100 = certainly spam)
2. Names advertising jobs, earnings, crypto, casinos, channels or links are spam
3. Ordinary names in any language or script are not spam
4. Respond with valid JSON only`

// LLMClient is implemented by every backend.
type LLMClient interface {
	Score(ctx context.Context, name string) (float64, error)
}

// ObserveFunc receives the outcome of every scorer call.
type ObserveFunc func(scorer string, err error, duration time.Duration)

// Provider bounds every call of its client by the configured timeout and
// reports it to an optional observer.
type Provider struct {
	name    string
	config  *core.SpamConfig
	logger  *zap.Logger
	client  LLMClient
	observe ObserveFunc
}

var _ spam.Scorer = (*Provider)(nil)

func NewProvider(config *core.SpamConfig, logger *zap.Logger, observe ObserveFunc) (*Provider, error) {
	var client LLMClient
	var err error

	switch config.Scorer {
	case ScorerOpenAI:
		client, err = NewOpenAIClient(config, logger)
	case ScorerAnthropic:
		client, err = NewAnthropicClient(config, logger)
	case ScorerOllama:
		client, err = NewOllamaClient(config, logger)
	case ScorerHeuristic, "":
		client = spam.NewHeuristicScorer()
	default:
		return nil, fmt.Errorf("unsupported spam scorer: %s", config.Scorer)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", config.Scorer, err)
	}

	name := config.Scorer
	if name == "" {
		name = ScorerHeuristic
	}

	return &Provider{
		name:    name,
		config:  config,
		logger:  logger,
		client:  client,
		observe: observe,
	}, nil
}

// Score implements spam.Scorer.
func (p *Provider) Score(ctx context.Context, name string) (float64, error) {
	if p.config.TimeoutSecs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(p.config.TimeoutSecs)*time.Second)
		defer cancel()
	}

	start := time.Now()
	score, err := p.client.Score(ctx, name)
	if p.observe != nil {
		p.observe(p.name, err, time.Since(start))
	}
	if err != nil {
		return 0, err
	}

	p.logger.Debug("Display name scored",
		zap.String("scorer", p.name),
		zap.String("name", name),
		zap.Float64("score", score))
	return score, nil
}

// ScoreResponse is the JSON object every backend is asked to produce.
type ScoreResponse struct {
	Score  float64 `json:"score"`
	Reason string  `json:"reason,omitempty"`
}

// parseScoreResponse decodes a model reply, tolerating markdown code fences,
// and rejects scores outside [0, spam.MaxScore].
func parseScoreResponse(content string) (*ScoreResponse, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var response ScoreResponse
	if err := json.Unmarshal([]byte(content), &response); err != nil {
		return nil, fmt.Errorf("failed to parse score response: %w", err)
	}
	if response.Score < 0 || response.Score > spam.MaxScore {
		return nil, fmt.Errorf("score %v out of range", response.Score)
	}
	return &response, nil
}

func userPrompt(name string) string {
	return fmt.Sprintf(`Display name: %q`, name)
}
