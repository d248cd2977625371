// Package grading talks to the completion backend that scores free-text
// answers. Grade never fails: backend trouble resolves to a provisional
// score with an explanatory feedback.
package grading

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"astapp/internal/config"
	"astapp/internal/metrics"
	"astapp/internal/model"
)

// Request is one short answer to grade
type Request struct {
	QuestionText string
	AnswerText   string
	Criteria     string
	MaxScore     float64
}

// Client grades short answers against an OpenAI-style completion endpoint
type Client struct {
	cfg        config.GraderConfig
	endpoint   string
	httpClient *http.Client
	audit      ResponseLog
	logger     *zap.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewClient creates a grading client. A nil audit log discards responses.
func NewClient(cfg config.GraderConfig, audit ResponseLog, logger *zap.Logger) *Client {
	if audit == nil {
		audit = NopResponseLog()
	}
	if !cfg.IsEnabled() {
		logger.Warn("grader API key not set; requests are sent without authorization")
	}
	return &Client{
		cfg:      cfg,
		endpoint: cfg.Endpoint(),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		audit:  audit,
		logger: logger.Named("grader"),
		sleep:  sleepContext,
	}
}

type completionRequest struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	MaxTokens   int      `json:"max_tokens"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// backoff is the retry loop state
type backoff struct {
	attempt int
	delay   time.Duration
}

func (b *backoff) next(maxDelay time.Duration) {
	b.delay *= 2
	if maxDelay > 0 && b.delay > maxDelay {
		b.delay = maxDelay
	}
}

type attemptResult struct {
	status int
	body   []byte
	err    error
}

// Grade scores one answer out of req.MaxScore
func (c *Client) Grade(ctx context.Context, req Request) model.GradingResult {
	start := time.Now()
	defer func() { metrics.GradingDuration.Observe(time.Since(start).Seconds()) }()

	payload, err := json.Marshal(completionRequest{
		Model:     c.cfg.Model,
		Prompt:    buildPrompt(req),
		MaxTokens: c.cfg.MaxTokens,
	})
	if err != nil {
		return c.provisional(req, fmt.Sprintf("Grading service error: %v; provisional score assigned.", err), nil)
	}

	maxAttempts := c.cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	state := backoff{delay: c.cfg.BaseDelay}
	var lastBody *string
	var lastErr error

	for state.attempt < maxAttempts {
		state.attempt++

		res := c.do(ctx, payload)
		if res.err == nil || res.body != nil {
			body := string(res.body)
			lastBody = &body
			c.audit.Record(req.QuestionText, req.AnswerText, body)
		}

		switch {
		case res.err != nil:
			lastErr = res.err
			metrics.GradingAttempts.WithLabelValues("error").Inc()
		case res.status >= 500:
			lastErr = fmt.Errorf("server error %d", res.status)
			metrics.GradingAttempts.WithLabelValues("5xx").Inc()
		case res.status >= 400:
			metrics.GradingAttempts.WithLabelValues("4xx").Inc()
			c.logger.Warn("grading backend rejected request", zap.Int("status", res.status))
			reason := fmt.Sprintf("Grading service returned HTTP %d; provisional score assigned.", res.status)
			if res.status == http.StatusUnauthorized {
				reason = "Grading service unauthorized (401); provisional score assigned."
			}
			return c.provisional(req, reason, lastBody)
		default:
			metrics.GradingAttempts.WithLabelValues(metrics.StatusClass(res.status)).Inc()
			return c.interpret(req, res.body, lastBody)
		}

		c.logger.Warn("grading attempt failed",
			zap.Int("attempt", state.attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.Error(lastErr),
		)
		if state.attempt >= maxAttempts {
			break
		}
		if err := c.sleep(ctx, state.delay); err != nil {
			lastErr = err
			break
		}
		state.next(c.cfg.MaxDelay)
	}

	feedback := "Grading service unavailable; provisional score assigned."
	if lastErr != nil && (lastBody == nil || *lastBody == "") {
		feedback = fmt.Sprintf("Grading service error: %v; provisional score assigned.", lastErr)
	}
	return c.provisional(req, feedback, lastBody)
}

// do performs a single POST. A non-nil err means no usable status.
func (c *Client) do(ctx context.Context, payload []byte) attemptResult {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return attemptResult{err: fmt.Errorf("failed to create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return attemptResult{err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return attemptResult{status: resp.StatusCode, body: body, err: fmt.Errorf("failed to read response body: %w", err)}
	}
	return attemptResult{status: resp.StatusCode, body: body}
}

// interpret turns a successful response into a result
func (c *Client) interpret(req Request, body []byte, raw *string) model.GradingResult {
	env := decodeEnvelope(body)
	rec := recoverScore(env.text, req.MaxScore)

	switch rec.how {
	case recoveredNone:
		c.logger.Warn("grading response not parseable", zap.Stringer("envelope", env.kind))
		return c.provisional(req, "Model response returned (not parseable); inspect model_response.", raw)
	case recoveredJSON:
		metrics.GradingRequests.WithLabelValues("parsed").Inc()
	default:
		metrics.GradingRequests.WithLabelValues("recovered").Inc()
	}

	return model.GradingResult{
		Type:          model.QuestionTypeShortAnswer,
		Score:         rec.score,
		MaxScore:      req.MaxScore,
		Feedback:      rec.feedback,
		ModelResponse: raw,
	}
}

func (c *Client) provisional(req Request, feedback string, raw *string) model.GradingResult {
	metrics.GradingRequests.WithLabelValues("provisional").Inc()
	return model.GradingResult{
		Type:          model.QuestionTypeShortAnswer,
		Score:         provisional(req.MaxScore),
		MaxScore:      req.MaxScore,
		Feedback:      feedback,
		ModelResponse: raw,
	}
}

func buildPrompt(req Request) string {
	return fmt.Sprintf(`You are an unbiased grader for Roblox group applications. Grade according to criteria.

Question:
%s

Applicant answer:
%s

Grading criteria:
%s

Return ONLY a JSON object: {"score": <number>, "max_score": %s, "feedback": "Short feedback"}.`,
		req.QuestionText, req.AnswerText, req.Criteria, strconv.FormatFloat(req.MaxScore, 'f', -1, 64))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
