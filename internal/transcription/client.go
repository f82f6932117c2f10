// Package transcription talks to the speech-to-text service
package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/japanesestudent/listening-service/internal/apperrors"
	"go.uber.org/zap"
)

const serviceName = "transcription"

// maxErrorBody caps how much of a failed response is read
const maxErrorBody = 64 * 1024

// Result is a finished transcription
type Result struct {
	Transcript string          `json:"transcript"`
	Segments   json.RawMessage `json:"segments"`
	Language   string          `json:"language"`
}

// Client calls the transcription service over HTTP
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a client whose calls are abandoned after timeout
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type transcribeRequest struct {
	FilePath string `json:"file_path"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Transcribe sends the media locator to the service and waits for the transcript.
// The call is made once, failures are returned as *apperrors.UpstreamError.
func (c *Client) Transcribe(ctx context.Context, locator string) (*Result, error) {
	body, err := json.Marshal(transcribeRequest{FilePath: locator})
	if err != nil {
		return nil, fmt.Errorf("failed to encode transcription request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcribe", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create transcription request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &apperrors.UpstreamError{
			Service: serviceName,
			Timeout: isTimeout(err),
			Err:     err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		message := "transcription failed"
		var errResp errorResponse
		if json.Unmarshal(raw, &errResp) == nil && errResp.Error != "" {
			message = errResp.Error
		}
		return nil, &apperrors.UpstreamError{
			Service:    serviceName,
			StatusCode: resp.StatusCode,
			Message:    message,
		}
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &apperrors.UpstreamError{
			Service: serviceName,
			Parse:   true,
			Timeout: isTimeout(err),
			Err:     err,
		}
	}

	c.logger.Info("transcription finished",
		zap.String("locator", locator),
		zap.String("language", result.Language),
		zap.Int("transcript_length", len(result.Transcript)),
		zap.Duration("duration", time.Since(start)),
	)
	return &result, nil
}

// CheckHealth reports whether the service answers its health endpoint
func (c *Client) CheckHealth(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("transcription health check failed", zap.Error(err))
		return false
	}
	defer resp.Body.Close()

	var health struct {
		Status string `json:"status"`
	}
	if resp.StatusCode != http.StatusOK || json.NewDecoder(resp.Body).Decode(&health) != nil {
		return false
	}
	return health.Status == "healthy"
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
