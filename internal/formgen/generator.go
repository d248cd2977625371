// Package formgen drafts application forms with the completion backend.
// A draft is a FormConfig the creator reviews and saves like any other
// form; nothing is stored here.
package formgen

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"astapp/internal/config"
	"astapp/internal/formdsl"
	"astapp/internal/grading"
	"astapp/internal/metrics"
	"astapp/internal/model"
)

const (
	defaultName           = "Generated Application"
	defaultVibe           = "professional and friendly"
	defaultPrimaryColor   = "#ff4b6e"
	defaultSecondaryColor = "#1f2933"
	defaultQuestions      = 6
	defaultPoints         = 5
	defaultPassScore      = 70
	rankPlaceholder       = "{RANK}"
)

// ErrUnusableOutput is returned when the model answered but no form could
// be built from its text
var ErrUnusableOutput = errors.New("model output is not a usable form")

// OutputError explains why a model answer was rejected. Raw is the model
// text, kept for the creator to inspect.
type OutputError struct {
	Reason string
	Raw    string
}

func (e *OutputError) Error() string {
	return ErrUnusableOutput.Error() + ": " + e.Reason
}

func (e *OutputError) Unwrap() error { return ErrUnusableOutput }

// Completer sends a prompt to the completion backend. *grading.Client
// implements it.
type Completer interface {
	Complete(ctx context.Context, req grading.Completion) (string, error)
}

// Params describe the form to draft
type Params struct {
	Name           string       `json:"name"`
	Description    string       `json:"description"`
	GroupID        model.FlexID `json:"group_id"`
	Rank           model.FlexID `json:"rank"`
	Questions      int          `json:"questions"`
	Vibe           string       `json:"vibe"`
	PrimaryColor   string       `json:"primary_color"`
	SecondaryColor string       `json:"secondary_color"`
	Instructions   string       `json:"instructions"`
}

// withDefaults trims every field and fills the blanks
func (p Params) withDefaults(maxQuestions int) Params {
	p.Name = orDefault(p.Name, defaultName)
	p.Description = strings.TrimSpace(p.Description)
	p.Vibe = orDefault(p.Vibe, defaultVibe)
	p.PrimaryColor = orDefault(p.PrimaryColor, defaultPrimaryColor)
	p.SecondaryColor = orDefault(p.SecondaryColor, defaultSecondaryColor)
	p.Instructions = strings.TrimSpace(p.Instructions)
	if p.Questions < 1 {
		p.Questions = defaultQuestions
	}
	if maxQuestions > 0 && p.Questions > maxQuestions {
		p.Questions = maxQuestions
	}
	return p
}

// Result is a generated draft
type Result struct {
	Config *model.FormConfig
	Raw    string
}

// Generator turns creator parameters into a draft form
type Generator struct {
	completer       Completer
	cfg             config.GeneratorConfig
	maxAnswerLength int
	logger          *zap.Logger
}

// NewGenerator creates a form generator. Short answers in drafts get the
// configured maximum answer length.
func NewGenerator(completer Completer, cfg config.GeneratorConfig, limits config.ScoringConfig, logger *zap.Logger) *Generator {
	return &Generator{
		completer:       completer,
		cfg:             cfg,
		maxAnswerLength: limits.MaxAnswerLength,
		logger:          logger.Named("formgen"),
	}
}

// Generate asks the model for a form and normalizes its answer
func (g *Generator) Generate(ctx context.Context, p Params) (*Result, error) {
	p = p.withDefaults(g.cfg.MaxQuestions)

	req := grading.Completion{
		Prompt:    buildPrompt(p),
		Model:     g.cfg.Model,
		MaxTokens: g.cfg.MaxTokens,
	}
	if g.cfg.Temperature > 0 {
		temperature := g.cfg.Temperature
		req.Temperature = &temperature
	}

	raw, err := g.completer.Complete(ctx, req)
	if err != nil {
		metrics.FormGenerations.WithLabelValues("backend_error").Inc()
		g.logger.Warn("form generation request failed", zap.Error(err))
		return nil, fmt.Errorf("generate form: %w", err)
	}

	cfg, err := g.buildConfig(raw, p)
	if err != nil {
		metrics.FormGenerations.WithLabelValues("unusable").Inc()
		g.logger.Warn("model output rejected", zap.Error(err), zap.Int("raw_bytes", len(raw)))
		return nil, err
	}

	metrics.FormGenerations.WithLabelValues("generated").Inc()
	g.logger.Info("form generated",
		zap.String("name", p.Name),
		zap.Int("questions", len(cfg.Questions)),
	)
	return &Result{Config: cfg, Raw: raw}, nil
}

func (g *Generator) buildConfig(raw string, p Params) (*model.FormConfig, error) {
	reject := func(reason string) (*model.FormConfig, error) {
		return nil, &OutputError{Reason: reason, Raw: raw}
	}

	obj, ok := grading.ExtractObject(raw)
	if !ok {
		return reject("no JSON object found")
	}
	app, ok := obj["app"].(map[string]any)
	if !ok {
		return reject(`missing "app" object`)
	}
	questions, ok := obj["questions"].([]any)
	if !ok {
		return reject(`missing "questions" array`)
	}

	cfg := model.NewFormConfig()
	cfg.App = appFields(app, p)
	style, _ := obj["style"].(map[string]any)
	cfg.Style = scalarFields(style)
	if cfg.Style.String("primary_color") == "" {
		cfg.Style["primary_color"] = p.PrimaryColor
	}
	if cfg.Style.String("secondary_color") == "" {
		cfg.Style["secondary_color"] = p.SecondaryColor
	}

	used := make(map[string]bool, len(questions))
	for i, item := range questions {
		qm, ok := item.(map[string]any)
		if !ok {
			continue
		}
		q := g.question(qm, i)
		q.ID = uniqueID(q.ID, i, used)
		cfg.Questions = append(cfg.Questions, q)
		if g.cfg.MaxQuestions > 0 && len(cfg.Questions) == g.cfg.MaxQuestions {
			break
		}
	}
	if len(cfg.Questions) == 0 {
		return reject("no valid questions")
	}

	formdsl.Normalize(cfg)
	return cfg, nil
}

// appFields keeps the scalar app values and resolves group and role from
// the request when the model left them out
func appFields(app map[string]any, p Params) model.Fields {
	f := scalarFields(app)
	if f.String("name") == "" {
		f["name"] = p.Name
	}
	if _, ok := f["description"]; !ok && p.Description != "" {
		f["description"] = p.Description
	}

	if _, ok := f.Float("pass_score"); !ok {
		f["pass_score"] = float64(defaultPassScore)
	}

	groupID, _ := f.Int("group_id")
	if groupID == 0 {
		groupID = int64(p.GroupID)
	}
	if groupID > 0 {
		f["group_id"] = groupID
	} else {
		delete(f, "group_id")
	}

	role := strings.TrimSpace(f.String("target_role"))
	switch {
	case (role == "" || strings.Contains(role, rankPlaceholder)) && groupID > 0 && p.Rank > 0:
		role = fmt.Sprintf("groups/%d/roles/%d", groupID, p.Rank)
	case isDigits(role) && groupID > 0:
		role = fmt.Sprintf("groups/%d/roles/%s", groupID, role)
	case strings.Contains(role, rankPlaceholder):
		role = ""
	}
	if role != "" {
		f["target_role"] = role
	} else {
		delete(f, "target_role")
	}
	return f
}

func (g *Generator) question(qm map[string]any, i int) model.Question {
	q := model.Question{
		ID:              stringValue(qm["id"]),
		Type:            questionType(stringValue(qm["type"])),
		Text:            stringValue(qm["text"]),
		GradingCriteria: stringValue(qm["grading_criteria"]),
	}
	if q.Text == "" {
		q.Text = fmt.Sprintf("Question %d", i+1)
	}

	points := float64(defaultPoints)
	if v, ok := numberValue(qm["points"]); ok {
		points = math.Max(0, math.Round(v))
	}
	q.Points = model.Float(points)

	if q.Type == model.QuestionTypeShortAnswer {
		q.MaxLength = model.Int(g.maxAnswerLength)
		return q
	}

	opts, _ := qm["options"].([]any)
	for oi, item := range opts {
		om, ok := item.(map[string]any)
		if !ok {
			continue
		}
		opt := model.Option{
			ID:      stringValue(om["id"]),
			Text:    stringValue(om["text"]),
			Correct: truthy(om["correct"]),
		}
		if opt.ID == "" {
			opt.ID = "opt" + strconv.Itoa(oi)
		}
		if opt.Text == "" {
			opt.Text = fmt.Sprintf("Option %d", oi+1)
		}
		q.Options = append(q.Options, opt)
	}
	return q
}

// uniqueID gives questions without an id, or with a repeated one, a
// position-based id
func uniqueID(id string, i int, used map[string]bool) string {
	if id == "" {
		id = "q" + strconv.Itoa(i+1)
	}
	candidate := id
	for n := i + 1; used[candidate]; n++ {
		candidate = id + "_" + strconv.Itoa(n)
	}
	used[candidate] = true
	return candidate
}

func questionType(s string) model.QuestionType {
	switch t := model.QuestionType(strings.ToLower(s)); t {
	case model.QuestionTypeMultipleChoice, model.QuestionTypeCheckboxes, model.QuestionTypeShortAnswer:
		return t
	}
	return model.QuestionTypeShortAnswer
}

// scalarFields copies string, number and bool values; nested values are
// dropped
func scalarFields(m map[string]any) model.Fields {
	f := model.Fields{}
	for k, v := range m {
		switch t := v.(type) {
		case string:
			f[k] = strings.TrimSpace(t)
		case bool, float64:
			f[k] = t
		}
	}
	return f
}

func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

func numberValue(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	}
	return 0, false
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(strings.TrimSpace(t), "true")
	case float64:
		return t != 0
	}
	return false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return def
}
