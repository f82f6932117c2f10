// Package quizgen generates quiz items from transcripts with an OpenAI-compatible chat completion API
package quizgen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/japanesestudent/listening-service/internal/apperrors"
	"github.com/japanesestudent/listening-service/internal/config"
	"github.com/japanesestudent/listening-service/internal/models"
	"go.uber.org/zap"
)

const serviceName = "quiz generation"

const maxErrorBody = 64 * 1024

// Client produces one quiz item per call
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
	logger      *zap.Logger
}

// NewClient creates a client from the LLM configuration
func NewClient(cfg config.LLMConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		logger:      logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate asks the model for one quiz item of the given kind.
// Only mcq and fill can be generated, anything else fails without a network call.
func (c *Client) Generate(ctx context.Context, transcript string, kind models.QuizType) (models.QuizPayload, error) {
	prompt, err := buildPrompt(transcript, kind)
	if err != nil {
		return nil, apperrors.Validation("%s", err.Error())
	}

	content, err := c.complete(ctx, chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature:    c.temperature,
		MaxTokens:      c.maxTokens,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, err
	}

	payload, err := models.DecodePayload(kind, []byte(content))
	if err != nil {
		c.logger.Warn("model returned an unusable quiz",
			zap.String("kind", string(kind)),
			zap.String("content", content),
			zap.Error(err),
		)
		return nil, &apperrors.UpstreamError{Service: serviceName, Parse: true, Err: err}
	}
	return payload, nil
}

// CheckHealth sends a tiny completion to verify the API key and model
func (c *Client) CheckHealth(ctx context.Context) bool {
	_, err := c.complete(ctx, chatRequest{
		Model:     c.model,
		Messages:  []chatMessage{{Role: "user", Content: "ping"}},
		MaxTokens: 5,
	})
	return err == nil
}

// complete performs one chat completion and returns the first choice's content
func (c *Client) complete(ctx context.Context, chatReq chatRequest) (string, error) {
	body, err := json.Marshal(chatReq)
	if err != nil {
		return "", fmt.Errorf("failed to encode completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &apperrors.UpstreamError{Service: serviceName, Timeout: isTimeout(err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		message := strings.TrimSpace(string(raw))
		var apiErr apiError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
			message = apiErr.Error.Message
		}
		return "", &apperrors.UpstreamError{Service: serviceName, StatusCode: resp.StatusCode, Message: message}
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", &apperrors.UpstreamError{Service: serviceName, Parse: true, Err: err}
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return "", &apperrors.UpstreamError{Service: serviceName, Parse: true, Message: "empty completion"}
	}

	c.logger.Debug("completion finished", zap.String("model", chatReq.Model), zap.Duration("duration", time.Since(start)))
	return parsed.Choices[0].Message.Content, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
