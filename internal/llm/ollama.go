package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"antispambot/internal/core"
)

type OllamaClient struct {
	config     *core.SpamConfig
	logger     *zap.Logger
	httpClient *http.Client
	baseURL    string
}

type OllamaRequest struct {
	Model   string                 `json:"model"`
	System  string                 `json:"system,omitempty"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Format  string                 `json:"format,omitempty"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type OllamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func NewOllamaClient(config *core.SpamConfig, logger *zap.Logger) (*OllamaClient, error) {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	httpClient := &http.Client{
		Timeout: 60 * time.Second,
	}

	return &OllamaClient{
		config:     config,
		logger:     logger,
		httpClient: httpClient,
		baseURL:    baseURL,
	}, nil
}

func (o *OllamaClient) Score(ctx context.Context, name string) (float64, error) {
	model := o.config.Model
	if model == "" {
		model = "llama3.2"
	}

	reqBody := OllamaRequest{
		Model:  model,
		System: systemPrompt,
		Prompt: userPrompt(name),
		Stream: false,
		Format: "json",
		Options: map[string]interface{}{
			"temperature": defaultTemperature,
			"num_predict": maxTokensScore,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/api/generate", bytes.NewBuffer(jsonData))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("Ollama API call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("Ollama API returned status %d", resp.StatusCode)
	}

	var ollamaResp OllamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return 0, fmt.Errorf("failed to decode Ollama response: %w", err)
	}

	response, err := parseScoreResponse(ollamaResp.Response)
	if err != nil {
		o.logger.Error("Failed to parse Ollama response", zap.Error(err), zap.String("content", ollamaResp.Response))
		return 0, err
	}

	o.logger.Debug("Ollama score received",
		zap.String("name", name),
		zap.Float64("score", response.Score))
	return response.Score, nil
}
