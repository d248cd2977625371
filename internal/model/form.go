package model

import (
	"strconv"
	"time"
)

// Fields is a key/value block from the form DSL.
// Values are string, bool, int64 or float64.
type Fields map[string]any

// String returns the value under key rendered as a string
func (f Fields) String(key string) string {
	switch v := f[key].(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

// Int returns the value under key as an integer
func (f Fields) Int(key string) (int64, bool) {
	switch v := f[key].(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// Float returns the value under key as a float
func (f Fields) Float(key string) (float64, bool) {
	switch v := f[key].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case string:
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// Bool reports whether the value under key is boolean true
func (f Fields) Bool(key string) bool {
	b, _ := f[key].(bool)
	return b
}

// FormConfig is the parsed form of an .astappcnt document
type FormConfig struct {
	App       Fields     `json:"app"`
	Style     Fields     `json:"style"`
	Questions []Question `json:"questions"`
}

// NewFormConfig returns an empty config with initialized blocks
func NewFormConfig() *FormConfig {
	return &FormConfig{
		App:       Fields{},
		Style:     Fields{},
		Questions: []Question{},
	}
}

// AppID returns app.id
func (c *FormConfig) AppID() string { return c.App.String("id") }

// CreatorID returns app.creator_id
func (c *FormConfig) CreatorID() string { return c.App.String("creator_id") }

// GroupID returns app.group_id when set to a non-zero value
func (c *FormConfig) GroupID() (int64, bool) {
	id, ok := c.App.Int("group_id")
	return id, ok && id != 0
}

// PassScore returns the pass threshold percentage (0 when unset)
func (c *FormConfig) PassScore() float64 {
	v, _ := c.App.Float("pass_score")
	return v
}

// TargetRole returns app.target_role
func (c *FormConfig) TargetRole() string { return c.App.String("target_role") }

// FormDocument is a stored form: the raw DSL text authored by a creator
type FormDocument struct {
	AppID     string    `json:"appId" bson:"_id"`
	CreatorID string    `json:"creatorId" bson:"creatorId"`
	ASTText   string    `json:"astText" bson:"astText"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}
