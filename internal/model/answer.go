package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Answer is a submitted answer: a single value (short answer text, multiple choice
// option id) or a list of selections (checkboxes)
type Answer struct {
	Value  string
	Values []string
	IsList bool
}

// TextAnswer builds a single-value answer
func TextAnswer(v string) Answer { return Answer{Value: v} }

// ListAnswer builds a selection-list answer
func ListAnswer(v ...string) Answer { return Answer{Values: v, IsList: true} }

// UnmarshalJSON accepts a string, number, bool, array of scalars or null
func (a *Answer) UnmarshalJSON(data []byte) error {
	*a = Answer{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		a.IsList = true
		a.Values = make([]string, 0, len(raw))
		for _, item := range raw {
			s, err := scalarString(item)
			if err != nil {
				return err
			}
			a.Values = append(a.Values, s)
		}
		return nil
	}
	s, err := scalarString(data)
	if err != nil {
		return err
	}
	a.Value = s
	return nil
}

// MarshalJSON renders lists as arrays and everything else as a string
func (a Answer) MarshalJSON() ([]byte, error) {
	if a.IsList {
		if a.Values == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(a.Values)
	}
	return json.Marshal(a.Value)
}

// IsEmpty reports whether nothing was answered
func (a Answer) IsEmpty() bool {
	if a.IsList {
		return len(a.Values) == 0
	}
	return strings.TrimSpace(a.Value) == ""
}

// Selections returns the selected ids; a single value counts as one selection
func (a Answer) Selections() []string {
	if a.IsList {
		return a.Values
	}
	if a.Value == "" {
		return nil
	}
	return []string{a.Value}
}

// Single returns the single selected value. A one-element list is accepted.
func (a Answer) Single() string {
	if a.IsList {
		if len(a.Values) == 1 {
			return a.Values[0]
		}
		return ""
	}
	return a.Value
}

func scalarString(data []byte) (string, error) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return "", err
	}
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case bool:
		return strconv.FormatBool(t), nil
	}
	return "", fmt.Errorf("unsupported answer value %s", string(data))
}

// FlexID is an integer id that game clients send either as a number or a string
type FlexID int64

// UnmarshalJSON accepts 123, "123" and null
func (id *FlexID) UnmarshalJSON(data []byte) error {
	s, err := scalarString(data)
	if err != nil {
		return err
	}
	if s == "" {
		*id = 0
		return nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %q", s)
	}
	*id = FlexID(n)
	return nil
}

// ResponsePayload is one entry of the game client's "responses" map:
// {"answer": ...}, {"selected": [...]} or a bare answer
type ResponsePayload struct {
	Answer Answer
}

// UnmarshalJSON decodes the payload variants
func (p *ResponsePayload) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var obj struct {
			Answer   *Answer  `json:"answer"`
			Selected []string `json:"selected"`
		}
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return err
		}
		switch {
		case obj.Answer != nil:
			p.Answer = *obj.Answer
		case obj.Selected != nil:
			p.Answer = ListAnswer(obj.Selected...)
		}
		return nil
	}
	return json.Unmarshal(trimmed, &p.Answer)
}

// Submission is one applicant's set of answers to a form
type Submission struct {
	AppID        string                     `json:"app_id"`
	ApplicantID  FlexID                     `json:"applicant_id"`
	UserID       FlexID                     `json:"user_id,omitempty"`
	MembershipID *FlexID                    `json:"membership_id,omitempty"`
	CreatorID    string                     `json:"creator_id,omitempty"`
	Answers      map[string]Answer          `json:"answers"`
	Responses    map[string]ResponsePayload `json:"responses,omitempty"`
}

// Normalize folds the game client's field variants into Answers and ApplicantID
func (s *Submission) Normalize() {
	if s.Answers == nil && s.Responses != nil {
		s.Answers = make(map[string]Answer, len(s.Responses))
		for qid, payload := range s.Responses {
			s.Answers[qid] = payload.Answer
		}
	}
	if s.ApplicantID == 0 && s.UserID != 0 {
		s.ApplicantID = s.UserID
	}
}
