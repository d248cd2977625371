package config

import (
	"strings"
	"time"
)

// GraderConfig configures the short-answer grading backend
type GraderConfig struct {
	APIKey          string        `yaml:"-"` // env only
	BaseURL         string        `yaml:"base_url"`
	Model           string        `yaml:"model"`
	MaxTokens       int           `yaml:"max_tokens"`
	MaxAttempts     int           `yaml:"max_attempts"`
	BaseDelay       time.Duration `yaml:"base_delay"`
	MaxDelay        time.Duration `yaml:"max_delay"` // 0 means uncapped
	Timeout         time.Duration `yaml:"timeout"`
	ResponseLogPath string        `yaml:"response_log_path"` // empty disables the audit log
	DefaultCriteria string        `yaml:"default_criteria"`
}

// DefaultGraderConfig returns the default grading backend configuration
func DefaultGraderConfig() GraderConfig {
	return GraderConfig{
		BaseURL:         "https://api.featherless.ai/v1",
		Model:           "google/gemma-3-27b-it",
		MaxTokens:       300,
		MaxAttempts:     3,
		BaseDelay:       500 * time.Millisecond,
		Timeout:         30 * time.Second,
		ResponseLogPath: "grader_responses.log",
		DefaultCriteria: "Grade based on relevance and quality",
	}
}

// IsEnabled returns true if an API key is configured
func (c *GraderConfig) IsEnabled() bool {
	return c.APIKey != ""
}

// Endpoint returns the completion URL. A base that already names a
// completions or chat route is used as is.
func (c *GraderConfig) Endpoint() string {
	base := strings.TrimRight(c.BaseURL, "/")
	lower := strings.ToLower(base)
	if strings.Contains(lower, "completions") || strings.Contains(lower, "chat") {
		return base
	}
	return base + "/completions"
}

func (c *GraderConfig) applyEnvOverrides() {
	c.APIKey = getEnvOrDefault("GRADER_API_KEY", getEnvOrDefault("API_KEY", c.APIKey))
	c.BaseURL = getEnvOrDefault("GRADER_BASE_URL", getEnvOrDefault("BASE_URL", c.BaseURL))
	c.Model = getEnvOrDefault("GRADER_MODEL", getEnvOrDefault("MODEL_NAME", c.Model))
	c.MaxTokens = getEnvInt("GRADER_MAX_TOKENS", c.MaxTokens)
	c.MaxAttempts = getEnvInt("GRADER_MAX_RETRIES", c.MaxAttempts)
	c.BaseDelay = getEnvDuration("GRADER_BACKOFF", c.BaseDelay)
	c.Timeout = getEnvDuration("GRADER_TIMEOUT", c.Timeout)
	c.ResponseLogPath = getEnvOrDefault("GRADER_RESPONSE_LOG", c.ResponseLogPath)
}

// GeneratorConfig configures AI form generation. Requests go to the
// grader's endpoint with the grader's key.
type GeneratorConfig struct {
	Model        string  `yaml:"model"` // empty uses grader.model
	MaxTokens    int     `yaml:"max_tokens"`
	Temperature  float64 `yaml:"temperature"`
	MaxQuestions int     `yaml:"max_questions"`
}

// DefaultGeneratorConfig returns the default form generation settings
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Model:        "mistralai/Mistral-7B-Instruct-v0.2",
		MaxTokens:    1800,
		Temperature:  0.05,
		MaxQuestions: 20,
	}
}

func (c *GeneratorConfig) applyEnvOverrides() {
	c.Model = getEnvOrDefault("GENERATOR_MODEL", c.Model)
	c.MaxTokens = getEnvInt("GENERATOR_MAX_TOKENS", c.MaxTokens)
	c.MaxQuestions = getEnvInt("GENERATOR_MAX_QUESTIONS", c.MaxQuestions)
}
