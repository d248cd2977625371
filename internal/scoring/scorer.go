// Package scoring turns one question and one answer into a GradingResult.
package scoring

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"astapp/internal/config"
	"astapp/internal/grading"
	"astapp/internal/model"
)

// Default question weights when points / max_score are not set
const (
	DefaultMultipleChoicePoints = 10
	DefaultCheckboxesPoints     = 20
	DefaultShortAnswerPoints    = 20
)

// Grader scores free-text answers. *grading.Client implements it.
type Grader interface {
	Grade(ctx context.Context, req grading.Request) model.GradingResult
}

// Scorer applies the per-type scoring rules
type Scorer struct {
	cfg             config.ScoringConfig
	defaultCriteria string
	grader          Grader
}

// NewScorer creates a scorer. defaultCriteria is sent to the grader for
// short answers without grading_criteria.
func NewScorer(cfg config.ScoringConfig, defaultCriteria string, grader Grader) *Scorer {
	return &Scorer{cfg: cfg, defaultCriteria: defaultCriteria, grader: grader}
}

// MaxScore returns the weight a question contributes to the total. Negative
// weights count as 0.
func MaxScore(q *model.Question) float64 {
	return max(0, weight(q))
}

func weight(q *model.Question) float64 {
	switch q.Type {
	case model.QuestionTypeMultipleChoice:
		return q.PointsOr(DefaultMultipleChoicePoints)
	case model.QuestionTypeCheckboxes:
		if q.MaxScore != nil {
			return *q.MaxScore
		}
		return q.PointsOr(DefaultCheckboxesPoints)
	case model.QuestionTypeShortAnswer:
		return q.PointsOr(DefaultShortAnswerPoints)
	}
	return q.PointsOr(0)
}

// Score grades a single answer. Only short answers block, on the grader.
func (s *Scorer) Score(ctx context.Context, q *model.Question, answer model.Answer) model.GradingResult {
	switch q.Type {
	case model.QuestionTypeMultipleChoice:
		return scoreMultipleChoice(q, answer)
	case model.QuestionTypeCheckboxes:
		return s.scoreCheckboxes(q, answer)
	case model.QuestionTypeShortAnswer:
		return s.scoreShortAnswer(ctx, q, answer)
	}
	return model.GradingResult{
		Type:     q.Type,
		MaxScore: MaxScore(q),
		Feedback: "Unsupported question type",
	}
}

func scoreMultipleChoice(q *model.Question, answer model.Answer) model.GradingResult {
	res := model.GradingResult{Type: q.Type, MaxScore: MaxScore(q)}

	selected := strings.TrimSpace(answer.Single())
	if selected == "" {
		res.Feedback = "No answer provided"
		return res
	}

	correct, ok := q.CorrectOption()
	switch {
	case !ok:
		res.Feedback = "No correct option configured"
	case selected == correct.ID:
		res.Score = res.MaxScore
		res.Feedback = "Correct!"
	default:
		res.Feedback = "Incorrect answer"
	}
	return res
}

// scoreCheckboxes adds points_per_correct for each selected correct option
// and subtracts penalty_per_incorrect for each selected incorrect one.
// Selections that are not option ids are ignored; repeats count once.
func (s *Scorer) scoreCheckboxes(q *model.Question, answer model.Answer) model.GradingResult {
	maxScore := MaxScore(q)

	perCorrect, penalty := s.cfg.PointsPerCorrect, s.cfg.PenaltyPerIncorrect
	if q.Scoring != nil {
		if q.Scoring.PointsPerCorrect != nil {
			perCorrect = *q.Scoring.PointsPerCorrect
		}
		if q.Scoring.PenaltyPerIncorrect != nil {
			penalty = *q.Scoring.PenaltyPerIncorrect
		}
	}

	selected := make(map[string]bool)
	for _, id := range answer.Selections() {
		selected[strings.TrimSpace(id)] = true
	}

	var earned float64
	picked, right := 0, 0
	seen := make(map[string]bool, len(q.Options))
	for _, opt := range q.Options {
		if seen[opt.ID] || !selected[opt.ID] {
			continue
		}
		seen[opt.ID] = true
		picked++
		if opt.Correct {
			right++
			earned += perCorrect
		} else {
			earned -= penalty
		}
	}

	if earned < 0 {
		earned = 0
	}
	if earned > maxScore {
		earned = maxScore
	}
	return model.GradingResult{
		Type:     q.Type,
		Score:    earned,
		MaxScore: maxScore,
		Feedback: fmt.Sprintf("Selected %d options, %d correct", picked, right),
	}
}

func (s *Scorer) scoreShortAnswer(ctx context.Context, q *model.Question, answer model.Answer) model.GradingResult {
	maxScore := MaxScore(q)
	res := model.GradingResult{Type: q.Type, MaxScore: maxScore}

	text := answer.Value
	if answer.IsList {
		text = strings.Join(answer.Values, ", ")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		res.Feedback = "No answer provided"
		return res
	}

	maxLength := s.cfg.MaxAnswerLength
	if q.MaxLength != nil {
		maxLength = *q.MaxLength
	}
	if utf8.RuneCountInString(text) > maxLength {
		res.Feedback = fmt.Sprintf("Answer exceeds maximum length of %d characters", maxLength)
		return res
	}

	criteria := q.GradingCriteria
	if criteria == "" {
		criteria = s.defaultCriteria
	}
	graded := s.grader.Grade(ctx, grading.Request{
		QuestionText: q.Text,
		AnswerText:   text,
		Criteria:     criteria,
		MaxScore:     maxScore,
	})
	graded.Type = q.Type
	graded.MaxScore = maxScore
	graded.Score = min(max(0, graded.Score), maxScore)
	return graded
}
