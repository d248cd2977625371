package model

// QuestionType defines the type of question
type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "multiple_choice" // One correct option
	QuestionTypeCheckboxes     QuestionType = "checkboxes"      // Any number of selections, per-option scoring
	QuestionTypeShortAnswer    QuestionType = "short_answer"    // Free text, AI-graded
)

// Question is one question block of a form
type Question struct {
	ID              string       `json:"id"`
	Type            QuestionType `json:"type"`
	Text            string       `json:"text,omitempty"`
	Points          *float64     `json:"points,omitempty"`
	MaxScore        *float64     `json:"max_score,omitempty"`  // checkboxes weight override
	MaxLength       *int         `json:"max_length,omitempty"` // short_answer only
	Options         []Option     `json:"options,omitempty"`    // multiple_choice / checkboxes
	Scoring         *Scoring     `json:"scoring,omitempty"`    // checkboxes only
	GradingCriteria string       `json:"grading_criteria,omitempty"`
	Extra           Fields       `json:"extra,omitempty"` // any other key: value; line
}

// Option is a selectable answer
type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Scoring configures per-option checkbox scoring
type Scoring struct {
	PointsPerCorrect    *float64 `json:"points_per_correct,omitempty"`
	PenaltyPerIncorrect *float64 `json:"penalty_per_incorrect,omitempty"`
}

// PointsOr returns points, or def when unset
func (q *Question) PointsOr(def float64) float64 {
	if q.Points != nil {
		return *q.Points
	}
	return def
}

// Required reports whether the question declares required: true
func (q *Question) Required() bool {
	return q.Extra.Bool("required")
}

// CorrectOption returns the first option flagged correct
func (q *Question) CorrectOption() (Option, bool) {
	for _, opt := range q.Options {
		if opt.Correct {
			return opt, true
		}
	}
	return Option{}, false
}

// Float returns a pointer to v, for optional numeric fields
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v, for optional integer fields
func Int(v int) *int { return &v }
