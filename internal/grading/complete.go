package grading

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// ErrEmptyCompletion is returned when the backend answers without text
var ErrEmptyCompletion = errors.New("empty response from model")

// Completion is a free-form prompt for the completion backend. Zero Model
// and MaxTokens use the grader's configuration.
type Completion struct {
	Prompt      string
	Model       string
	MaxTokens   int
	Temperature *float64
}

// BackendError is a 4xx answer from the completion backend
type BackendError struct {
	Status int
	Body   string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("completion backend returned HTTP %d", e.Status)
}

// Complete sends a prompt and returns the model's text. Transport and 5xx
// errors are retried with the same backoff as Grade; 4xx answers are not.
func (c *Client) Complete(ctx context.Context, req Completion) (string, error) {
	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.cfg.MaxTokens
	}
	payload, err := json.Marshal(completionRequest{
		Model:       model,
		Prompt:      req.Prompt,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode completion request: %w", err)
	}

	maxAttempts := max(c.cfg.MaxAttempts, 1)
	state := backoff{delay: c.cfg.BaseDelay}
	var lastErr error

	for state.attempt < maxAttempts {
		state.attempt++

		res := c.do(ctx, payload)
		switch {
		case res.err != nil:
			lastErr = res.err
		case res.status >= 500:
			lastErr = fmt.Errorf("server error %d", res.status)
		case res.status >= 400:
			return "", &BackendError{Status: res.status, Body: string(res.body)}
		default:
			text := strings.TrimSpace(decodeEnvelope(res.body).text)
			if text == "" {
				return "", ErrEmptyCompletion
			}
			return text, nil
		}

		c.logger.Warn("completion attempt failed",
			zap.Int("attempt", state.attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.Error(lastErr),
		)
		if state.attempt >= maxAttempts {
			break
		}
		if err := c.sleep(ctx, state.delay); err != nil {
			return "", err
		}
		state.next(c.cfg.MaxDelay)
	}
	return "", fmt.Errorf("completion failed after %d attempts: %w", maxAttempts, lastErr)
}
