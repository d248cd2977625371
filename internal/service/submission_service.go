package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"astapp/internal/cache"
	"astapp/internal/config"
	"astapp/internal/events"
	"astapp/internal/metrics"
	"astapp/internal/model"
	"astapp/internal/promotion"
	"astapp/internal/repository"
	"astapp/internal/scoring"
)

var (
	ErrMissingAnswers     = errors.New("missing answers")
	ErrInvalidApplicant   = errors.New("invalid applicant_id")
	ErrRankingDisabled    = errors.New("applicant ranking is not enabled")
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrNotRanked          = errors.New("applicant is not ranked")
)

// MissingAnswerError names a required question left unanswered
type MissingAnswerError struct {
	QuestionID string
}

func (e *MissingAnswerError) Error() string {
	return fmt.Sprintf("missing answer for required question %q", e.QuestionID)
}

const (
	MessagePassed = "You passed!"
	MessageFailed = "You did not pass this application."

	promotionSkipped = "Promotion skipped: missing group/membership/role info"
	alreadyInRole    = "Cannot change the role"
)

// Promotion statuses reported in PromotionOutcome.Status
const (
	PromotionPromoted      = "promoted"
	PromotionAlreadyInRole = "already_in_role"
)

// FeedMessageSubmission is the live feed message type for graded submissions
const FeedMessageSubmission = "submission_graded"

// FeedEntry is what creators see on the live feed
type FeedEntry struct {
	SubmissionID    string    `json:"submission_id"`
	ApplicantID     int64     `json:"applicant_id"`
	Passed          bool      `json:"passed"`
	TotalScore      float64   `json:"total_score"`
	MaxScore        float64   `json:"max_score"`
	Percent         float64   `json:"percent"`
	PromotionStatus string    `json:"promotion_status,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// QuestionScorer grades one answer. *scoring.Scorer implements it.
type QuestionScorer interface {
	Score(ctx context.Context, q *model.Question, answer model.Answer) model.GradingResult
}

// SubmissionService grades submissions, stores them and promotes applicants
// who pass
type SubmissionService struct {
	scorer      QuestionScorer
	submissions repository.SubmissionRepository
	promoter    promotion.Promoter
	publisher   events.Publisher
	broadcaster Broadcaster
	ranking     cache.RankingCache
	scoringCfg  config.ScoringConfig
	promoCfg    config.PromotionConfig
	logger      *zap.Logger

	newID func() string
	now   func() time.Time
}

// NewSubmissionService creates a submission service. A nil broadcaster
// disables the live feed.
func NewSubmissionService(
	scorer QuestionScorer,
	submissions repository.SubmissionRepository,
	promoter promotion.Promoter,
	publisher events.Publisher,
	broadcaster Broadcaster,
	scoringCfg config.ScoringConfig,
	promoCfg config.PromotionConfig,
	logger *zap.Logger,
) *SubmissionService {
	if broadcaster == nil {
		broadcaster = nopBroadcaster{}
	}
	if scoringCfg.GradingConcurrency < 1 {
		scoringCfg.GradingConcurrency = 1
	}
	return &SubmissionService{
		scorer:      scorer,
		submissions: submissions,
		promoter:    promoter,
		publisher:   publisher,
		broadcaster: broadcaster,
		scoringCfg:  scoringCfg,
		promoCfg:    promoCfg,
		logger:      logger.Named("submissions"),
		newID:       uuid.NewString,
		now:         time.Now,
	}
}

// SetRanking enables the per-application applicant ranking
func (s *SubmissionService) SetRanking(r cache.RankingCache) {
	s.ranking = r
}

// validateSubmission rejects input before any scoring happens
func validateSubmission(cfg *model.FormConfig, sub *model.Submission) error {
	if sub.Answers == nil {
		return ErrMissingAnswers
	}
	if sub.ApplicantID < 0 {
		return ErrInvalidApplicant
	}
	for i := range cfg.Questions {
		q := &cfg.Questions[i]
		if !q.Required() || q.ID == "" {
			continue
		}
		if ans, ok := sub.Answers[q.ID]; !ok || ans.IsEmpty() {
			return &MissingAnswerError{QuestionID: q.ID}
		}
	}
	return nil
}

// indexQuestions maps ids to questions. Later duplicates replace earlier
// ones but keep the position of the first occurrence; empty ids are skipped.
func indexQuestions(questions []model.Question) ([]string, map[string]*model.Question) {
	order := make([]string, 0, len(questions))
	byID := make(map[string]*model.Question, len(questions))
	for i := range questions {
		q := &questions[i]
		if q.ID == "" {
			continue
		}
		if _, ok := byID[q.ID]; !ok {
			order = append(order, q.ID)
		}
		byID[q.ID] = q
	}
	return order, byID
}

// HandleSubmission grades sub against cfg. Errors are returned only for
// invalid input; grading, storage, promotion and notification problems are
// logged or reported inside the result.
func (s *SubmissionService) HandleSubmission(ctx context.Context, cfg *model.FormConfig, sub *model.Submission) (*model.SubmissionResult, error) {
	start := s.now()
	defer func() { metrics.SubmissionDuration.Observe(time.Since(start).Seconds()) }()

	sub.Normalize()
	if err := validateSubmission(cfg, sub); err != nil {
		return nil, err
	}

	appID := sub.AppID
	if appID == "" {
		appID = cfg.AppID()
	}
	if appID == "" {
		appID = "unknown"
	}

	order, byID := indexQuestions(cfg.Questions)
	results := s.scoreAll(ctx, order, byID, sub.Answers)

	breakdown := make(map[string]model.GradingResult, len(order))
	var total, maxTotal float64
	for i, id := range order {
		breakdown[id] = results[i]
		total += results[i].Score
		maxTotal += results[i].MaxScore
	}

	percent := 0.0
	if maxTotal > 0 {
		percent = total / maxTotal * 100
	}
	passed := percent >= cfg.PassScore()

	result := &model.SubmissionResult{
		SubmissionID: s.newID(),
		AppID:        appID,
		Passed:       passed,
		TotalScore:   total,
		MaxScore:     maxTotal,
		Percent:      math.Round(percent*100) / 100,
		Breakdown:    breakdown,
		Message:      MessageFailed,
	}
	if passed {
		result.Message = MessagePassed
	}

	createdAt := s.now()
	rec := &model.SubmissionRecord{
		ID:          result.SubmissionID,
		AppID:       appID,
		ApplicantID: int64(sub.ApplicantID),
		TotalScore:  total,
		MaxScore:    maxTotal,
		Passed:      passed,
		Breakdown:   breakdown,
		CreatedAt:   createdAt,
	}
	if err := s.submissions.Create(ctx, rec); err != nil {
		s.logger.Error("failed to store submission",
			zap.String("submission_id", rec.ID),
			zap.String("app_id", appID),
			zap.Error(err),
		)
	}

	if s.ranking != nil && rec.ApplicantID > 0 {
		if err := s.ranking.RecordScore(ctx, appID, rec.ApplicantID, result.Percent); err != nil {
			s.logger.Warn("failed to update ranking", zap.String("app_id", appID), zap.Error(err))
		}
	}

	if passed {
		result.Promotion = s.promote(ctx, cfg, sub)
		metrics.Submissions.WithLabelValues("passed").Inc()
	} else {
		metrics.Submissions.WithLabelValues("failed").Inc()
	}

	s.logger.Info("submission graded",
		zap.String("submission_id", result.SubmissionID),
		zap.String("app_id", appID),
		zap.Int64("applicant_id", rec.ApplicantID),
		zap.Float64("total_score", total),
		zap.Float64("max_score", maxTotal),
		zap.Bool("passed", passed),
	)

	s.notify(ctx, result, rec.ApplicantID, createdAt)
	return result, nil
}

// scoreAll grades every question in order. Short answers run concurrently,
// bounded by GradingConcurrency; at most MaxShortAnswers reach the grader.
func (s *SubmissionService) scoreAll(ctx context.Context, order []string, byID map[string]*model.Question, answers map[string]model.Answer) []model.GradingResult {
	results := make([]model.GradingResult, len(order))

	var g errgroup.Group
	g.SetLimit(s.scoringCfg.GradingConcurrency)

	shortAnswers := 0
	for i, id := range order {
		i := i // per-iteration copy; go directive is pinned below 1.22
		q := byID[id]
		answer := answers[id]

		if q.Type != model.QuestionTypeShortAnswer {
			results[i] = s.scorer.Score(ctx, q, answer)
			continue
		}

		shortAnswers++
		if shortAnswers > s.scoringCfg.MaxShortAnswers {
			results[i] = model.GradingResult{
				Type:     q.Type,
				MaxScore: scoring.MaxScore(q),
				Feedback: fmt.Sprintf("Too many short answer questions (max %d)", s.scoringCfg.MaxShortAnswers),
			}
			continue
		}
		g.Go(func() error {
			results[i] = s.scorer.Score(ctx, q, answer)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// promote resolves group, membership and role, falling back to the
// configured defaults, and asks the promoter to apply the role
func (s *SubmissionService) promote(ctx context.Context, cfg *model.FormConfig, sub *model.Submission) *model.PromotionOutcome {
	membershipID := s.promoCfg.DefaultMembershipID
	if sub.MembershipID != nil && *sub.MembershipID != 0 {
		membershipID = int64(*sub.MembershipID)
	}
	groupID, ok := cfg.GroupID()
	if !ok {
		groupID = s.promoCfg.DefaultGroupID
	}
	role := strings.TrimSpace(cfg.TargetRole())
	if role == "" && s.promoCfg.DefaultRoleID != 0 && groupID != 0 {
		role = fmt.Sprintf("groups/%d/roles/%d", groupID, s.promoCfg.DefaultRoleID)
	}

	if groupID == 0 || membershipID == 0 || role == "" {
		metrics.Promotions.WithLabelValues("skipped").Inc()
		return &model.PromotionOutcome{Warning: promotionSkipped}
	}

	creatorID := cfg.CreatorID()
	if creatorID == "" {
		creatorID = sub.CreatorID
	}
	if creatorID == "" {
		creatorID = "creator_unknown"
	}

	resp, err := s.promoter.Promote(ctx, promotion.Request{
		CreatorID:    creatorID,
		GroupID:      groupID,
		MembershipID: membershipID,
		Role:         role,
	})
	if err != nil {
		if strings.Contains(err.Error(), alreadyInRole) {
			metrics.Promotions.WithLabelValues(PromotionAlreadyInRole).Inc()
			return &model.PromotionOutcome{Status: PromotionAlreadyInRole}
		}
		metrics.Promotions.WithLabelValues("error").Inc()
		s.logger.Warn("promotion failed",
			zap.Int64("group_id", groupID),
			zap.Int64("membership_id", membershipID),
			zap.Error(err),
		)
		return &model.PromotionOutcome{Error: err.Error()}
	}

	metrics.Promotions.WithLabelValues(PromotionPromoted).Inc()
	return &model.PromotionOutcome{Status: PromotionPromoted, Response: resp}
}

// notify publishes events and updates the live feed; failures are logged
func (s *SubmissionService) notify(ctx context.Context, result *model.SubmissionResult, applicantID int64, at time.Time) {
	promotionStatus := ""
	if result.Promotion != nil {
		promotionStatus = result.Promotion.Status
	}

	event := &events.SubmissionEvent{
		EventType:       events.SubmissionGraded,
		SubmissionID:    result.SubmissionID,
		AppID:           result.AppID,
		ApplicantID:     applicantID,
		Passed:          result.Passed,
		TotalScore:      result.TotalScore,
		MaxScore:        result.MaxScore,
		Percent:         result.Percent,
		PromotionStatus: promotionStatus,
		OccurredAt:      at,
	}
	types := []events.EventType{events.SubmissionGraded}
	if result.Passed {
		types = append(types, events.SubmissionPassed)
	}
	for _, t := range types {
		event.EventType = t
		if err := s.publisher.PublishSubmissionEvent(ctx, event); err != nil {
			s.logger.Warn("failed to publish submission event", zap.String("event_type", string(t)), zap.Error(err))
		}
	}

	s.broadcaster.BroadcastToApp(result.AppID, FeedMessageSubmission, FeedEntry{
		SubmissionID:    result.SubmissionID,
		ApplicantID:     applicantID,
		Passed:          result.Passed,
		TotalScore:      result.TotalScore,
		MaxScore:        result.MaxScore,
		Percent:         result.Percent,
		PromotionStatus: promotionStatus,
		CreatedAt:       at,
	})
}

// TopApplicants returns the best-scoring applicants of an app
func (s *SubmissionService) TopApplicants(ctx context.Context, appID string, limit int) ([]cache.RankingEntry, error) {
	if s.ranking == nil {
		return nil, ErrRankingDisabled
	}
	return s.ranking.GetTop(ctx, appID, limit)
}

// ApplicantRank returns an applicant's 1-based position in the app ranking
func (s *SubmissionService) ApplicantRank(ctx context.Context, appID string, applicantID int64) (int64, error) {
	if s.ranking == nil {
		return 0, ErrRankingDisabled
	}
	rank, err := s.ranking.GetRank(ctx, appID, applicantID)
	if err != nil {
		return 0, err
	}
	if rank < 1 {
		return 0, ErrNotRanked
	}
	return rank, nil
}

// ForgetApp drops ranking data kept for a deleted app. Stored submissions
// are kept.
func (s *SubmissionService) ForgetApp(ctx context.Context, appID string) {
	if s.ranking == nil {
		return
	}
	if err := s.ranking.DeleteApp(ctx, appID); err != nil {
		s.logger.Warn("failed to delete ranking", zap.String("app_id", appID), zap.Error(err))
	}
}

// GetSubmission returns a stored record of appID
func (s *SubmissionService) GetSubmission(ctx context.Context, appID, id string) (*model.SubmissionRecord, error) {
	rec, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load submission %s: %w", id, err)
	}
	if rec == nil || rec.AppID != appID {
		return nil, ErrSubmissionNotFound
	}
	return rec, nil
}

// ListSubmissions returns stored records for an app, newest first
func (s *SubmissionService) ListSubmissions(ctx context.Context, appID string, limit int) ([]*model.SubmissionRecord, error) {
	return s.submissions.ListByApp(ctx, appID, limit)
}
