package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	defaultOpenAIURL = "https://api.openai.com/v1"
	defaultOllamaURL = "http://localhost:11434/v1"

	maxErrorBody = 4 << 10
)

// ErrEmptyCompletion is returned when the model answered with no text.
var ErrEmptyCompletion = errors.New("empty completion")

// OpenAIProvider talks to any OpenAI-compatible chat completions endpoint.
type OpenAIProvider struct {
	name   string
	client *http.Client
	apiURL string
	apiKey string
}

// NewOpenAIProvider builds a provider for the OpenAI API or a compatible server.
func NewOpenAIProvider(apiURL, apiKey string, client *http.Client) *OpenAIProvider {
	apiURL = strings.TrimRight(apiURL, "/")
	if apiURL == "" {
		apiURL = defaultOpenAIURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &OpenAIProvider{name: ProviderOpenAI, client: client, apiURL: apiURL, apiKey: apiKey}
}

// NewOllamaProvider builds a provider for a local Ollama server through its
// OpenAI-compatible endpoint.
func NewOllamaProvider(apiURL string, client *http.Client) *OpenAIProvider {
	if strings.TrimSpace(apiURL) == "" {
		apiURL = defaultOllamaURL
	}
	p := NewOpenAIProvider(apiURL, "", client)
	p.name = ProviderOllama
	return p
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return p.name }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete implements Provider.
func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if req.Model == "" {
		return "", fmt.Errorf("%s: model is required", p.name)
	}

	messages := make([]chatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	payload, err := json.Marshal(chatRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%s: marshal request: %w", p.name, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%s: create request: %w", p.name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%s: request failed: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", fmt.Errorf("%s: unexpected status %s: %s", p.name, resp.Status, strings.TrimSpace(string(body)))
	}

	var decoded chatResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&decoded); decodeErr != nil {
		return "", fmt.Errorf("%s: decode response: %w", p.name, decodeErr)
	}
	if len(decoded.Choices) == 0 || strings.TrimSpace(decoded.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("%s: %w", p.name, ErrEmptyCompletion)
	}
	return decoded.Choices[0].Message.Content, nil
}
