package model

import "time"

// GradingResult is the outcome of scoring one question
type GradingResult struct {
	Type          QuestionType `json:"type" bson:"type"`
	Score         float64      `json:"score" bson:"score"`
	MaxScore      float64      `json:"max_score" bson:"maxScore"`
	Feedback      string       `json:"feedback" bson:"feedback"`
	ModelResponse *string      `json:"model_response" bson:"modelResponse,omitempty"`
}

// PromotionOutcome annotates a result with what happened to the promotion step
type PromotionOutcome struct {
	Status   string         `json:"status,omitempty"`
	Response map[string]any `json:"response,omitempty"`
	Warning  string         `json:"warning,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// SubmissionResult is returned to the submitter
type SubmissionResult struct {
	SubmissionID string                   `json:"submission_id"`
	AppID        string                   `json:"app_id"`
	Passed       bool                     `json:"passed"`
	TotalScore   float64                  `json:"total_score"`
	MaxScore     float64                  `json:"max_score"`
	Percent      float64                  `json:"percent"`
	Breakdown    map[string]GradingResult `json:"breakdown"`
	Message      string                   `json:"message"`
	Promotion    *PromotionOutcome        `json:"promotion"`
}

// SubmissionRecord is the persisted row for one graded submission
type SubmissionRecord struct {
	ID          string                   `json:"id" bson:"_id"`
	AppID       string                   `json:"app_id" bson:"appId"`
	ApplicantID int64                    `json:"applicant_id" bson:"applicantId"`
	TotalScore  float64                  `json:"total_score" bson:"totalScore"`
	MaxScore    float64                  `json:"max_score" bson:"maxScore"`
	Passed      bool                     `json:"passed" bson:"passed"`
	Breakdown   map[string]GradingResult `json:"breakdown" bson:"breakdown"`
	CreatedAt   time.Time                `json:"created_at" bson:"createdAt"`
}
