package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"astapp/internal/cache"
	"astapp/internal/config"
	"astapp/internal/formdsl"
	"astapp/internal/formgen"
	"astapp/internal/metrics"
	"astapp/internal/model"
	"astapp/internal/repository"
)

var (
	ErrFormNotFound = errors.New("application not found")
	ErrNotFormOwner = errors.New("application belongs to another creator")
	ErrInvalidAppID = errors.New("invalid application id")
	ErrInvalidForm  = errors.New("invalid application config")

	ErrGenerationDisabled = errors.New("form generation is not configured")
)

// FormValidationError lists every problem found in a config
type FormValidationError struct {
	Problems []string
}

func (e *FormValidationError) Error() string {
	return ErrInvalidForm.Error() + ": " + strings.Join(e.Problems, "; ")
}

func (e *FormValidationError) Unwrap() error { return ErrInvalidForm }

var appIDPattern = regexp.MustCompile(`^[A-Za-z0-9_\-]{1,128}$`)

// ValidAppID reports whether id can name an application
func ValidAppID(id string) bool {
	return appIDPattern.MatchString(id)
}

// ValidateForm checks the constraints a form must meet before it is stored
func ValidateForm(cfg *model.FormConfig, limits config.ScoringConfig) error {
	var problems []string
	if len(cfg.Questions) == 0 {
		problems = append(problems, "at least one question is required")
	}

	seen := make(map[string]bool, len(cfg.Questions))
	shortAnswers := 0
	for i, q := range cfg.Questions {
		if q.ID == "" {
			problems = append(problems, fmt.Sprintf("question %d has no id", i+1))
		} else if seen[q.ID] {
			problems = append(problems, fmt.Sprintf("duplicate question id %q", q.ID))
		}
		seen[q.ID] = true

		if q.Points != nil && *q.Points < 0 {
			problems = append(problems, fmt.Sprintf("question %q has negative points", q.ID))
		}
		if q.MaxScore != nil && *q.MaxScore < 0 {
			problems = append(problems, fmt.Sprintf("question %q has negative max_score", q.ID))
		}

		if q.Type != model.QuestionTypeShortAnswer {
			continue
		}
		shortAnswers++
		if q.MaxLength == nil || *q.MaxLength > limits.MaxAnswerLength {
			problems = append(problems, fmt.Sprintf("short answer %q must set max_length <= %d", q.ID, limits.MaxAnswerLength))
		}
	}
	if shortAnswers > limits.MaxShortAnswers {
		problems = append(problems, fmt.Sprintf("maximum of %d short answer questions allowed", limits.MaxShortAnswers))
	}

	if len(problems) > 0 {
		return &FormValidationError{Problems: problems}
	}
	return nil
}

// FormGenerator drafts a form from creator parameters
type FormGenerator interface {
	Generate(ctx context.Context, p formgen.Params) (*formgen.Result, error)
}

// GeneratedForm is an unsaved draft. Problems lists what ValidateForm
// would reject when the draft is saved as is.
type GeneratedForm struct {
	Config   *model.FormConfig `json:"config"`
	ASTText  string            `json:"ast_text"`
	Raw      string            `json:"raw"`
	Problems []string          `json:"problems,omitempty"`
}

// FormService stores forms as DSL text and serves parsed configs
type FormService struct {
	repo      repository.FormRepo
	cache     cache.FormCache
	limits    config.ScoringConfig
	generator FormGenerator
	logger    *zap.Logger
}

func NewFormService(repo repository.FormRepo, formCache cache.FormCache, limits config.ScoringConfig, logger *zap.Logger) *FormService {
	return &FormService{
		repo:   repo,
		cache:  formCache,
		limits: limits,
		logger: logger.Named("forms"),
	}
}

// SetGenerator enables Generate
func (s *FormService) SetGenerator(g FormGenerator) {
	s.generator = g
}

// Generate drafts a form for the creator. Nothing is stored.
func (s *FormService) Generate(ctx context.Context, creatorID string, p formgen.Params) (*GeneratedForm, error) {
	if s.generator == nil {
		return nil, ErrGenerationDisabled
	}
	res, err := s.generator.Generate(ctx, p)
	if err != nil {
		return nil, err
	}

	draft := &GeneratedForm{
		Config:  res.Config,
		ASTText: formdsl.Serialize(res.Config),
		Raw:     res.Raw,
	}
	var verr *FormValidationError
	if errors.As(ValidateForm(res.Config, s.limits), &verr) {
		draft.Problems = verr.Problems
	}

	s.logger.Info("form drafted",
		zap.String("creator_id", creatorID),
		zap.Int("questions", len(res.Config.Questions)),
		zap.Int("problems", len(draft.Problems)),
	)
	return draft, nil
}

// GetDocument returns the stored form or ErrFormNotFound
func (s *FormService) GetDocument(ctx context.Context, appID string) (*model.FormDocument, error) {
	if !ValidAppID(appID) {
		return nil, ErrFormNotFound
	}
	doc, err := s.repo.GetByID(ctx, appID)
	if err != nil {
		return nil, fmt.Errorf("load form %s: %w", appID, err)
	}
	if doc == nil {
		return nil, ErrFormNotFound
	}
	return doc, nil
}

// GetConfig returns the parsed form, from cache when possible
func (s *FormService) GetConfig(ctx context.Context, appID string) (*model.FormConfig, error) {
	if !ValidAppID(appID) {
		return nil, ErrFormNotFound
	}

	cached, err := s.cache.GetForm(ctx, appID)
	switch {
	case err != nil:
		metrics.FormCacheLookups.WithLabelValues("error").Inc()
		s.logger.Warn("form cache read failed", zap.String("app_id", appID), zap.Error(err))
	case cached != nil:
		metrics.FormCacheLookups.WithLabelValues("hit").Inc()
		formdsl.Normalize(cached)
		return cached, nil
	default:
		metrics.FormCacheLookups.WithLabelValues("miss").Inc()
	}

	doc, err := s.GetDocument(ctx, appID)
	if err != nil {
		return nil, err
	}
	cfg := formdsl.Parse(doc.ASTText)
	if err := s.cache.SetForm(ctx, appID, cfg); err != nil {
		s.logger.Warn("form cache write failed", zap.String("app_id", appID), zap.Error(err))
	}
	return cfg, nil
}

// SaveRequest carries either DSL text or a config to serialize
type SaveRequest struct {
	AppID     string
	CreatorID string
	ASTText   string
	Config    *model.FormConfig
}

// Save validates and stores a form. Only the creator who first saved an
// app id may overwrite it.
func (s *FormService) Save(ctx context.Context, req SaveRequest) (*model.FormDocument, *model.FormConfig, error) {
	if !ValidAppID(req.AppID) {
		return nil, nil, ErrInvalidAppID
	}

	text := req.ASTText
	var cfg *model.FormConfig
	if req.Config != nil {
		cfg = req.Config
		formdsl.Normalize(cfg)
		text = formdsl.Serialize(cfg)
	} else {
		cfg = formdsl.Parse(text)
	}
	if err := ValidateForm(cfg, s.limits); err != nil {
		return nil, nil, err
	}

	existing, err := s.repo.GetByID(ctx, req.AppID)
	if err != nil {
		return nil, nil, fmt.Errorf("load form %s: %w", req.AppID, err)
	}
	doc := &model.FormDocument{AppID: req.AppID, CreatorID: req.CreatorID, ASTText: text}
	if existing != nil {
		if existing.CreatorID != req.CreatorID {
			return nil, nil, ErrNotFormOwner
		}
		doc.CreatedAt = existing.CreatedAt
	}

	if err := s.repo.Save(ctx, doc); err != nil {
		return nil, nil, fmt.Errorf("save form %s: %w", req.AppID, err)
	}
	if err := s.cache.SetForm(ctx, req.AppID, cfg); err != nil {
		s.logger.Warn("form cache write failed, dropping entry", zap.String("app_id", req.AppID), zap.Error(err))
		_ = s.cache.DeleteForm(ctx, req.AppID)
	}

	s.logger.Info("form saved",
		zap.String("app_id", req.AppID),
		zap.String("creator_id", req.CreatorID),
		zap.Int("questions", len(cfg.Questions)),
	)
	return doc, cfg, nil
}

// Delete removes a form owned by creatorID
func (s *FormService) Delete(ctx context.Context, appID, creatorID string) error {
	doc, err := s.GetDocument(ctx, appID)
	if err != nil {
		return err
	}
	if doc.CreatorID != creatorID {
		return ErrNotFormOwner
	}
	if err := s.repo.Delete(ctx, appID); err != nil {
		return fmt.Errorf("delete form %s: %w", appID, err)
	}
	if err := s.cache.DeleteForm(ctx, appID); err != nil {
		s.logger.Warn("form cache delete failed", zap.String("app_id", appID), zap.Error(err))
	}
	s.logger.Info("form deleted", zap.String("app_id", appID), zap.String("creator_id", creatorID))
	return nil
}

// ListByCreator returns the creator's forms, most recently updated first
func (s *FormService) ListByCreator(ctx context.Context, creatorID string) ([]*model.FormDocument, error) {
	return s.repo.GetByCreatorID(ctx, creatorID)
}

// Owns reports whether creatorID owns appID
func (s *FormService) Owns(ctx context.Context, appID, creatorID string) (bool, error) {
	doc, err := s.GetDocument(ctx, appID)
	if err != nil {
		return false, err
	}
	return doc.CreatorID == creatorID, nil
}
