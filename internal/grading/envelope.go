package grading

import (
	"bytes"
	"encoding/json"
)

// envelopeKind names the provider response shape the completion text was
// taken from
type envelopeKind int

const (
	envelopeRaw        envelopeKind = iota // body used as is
	envelopeCompletion                     // choices[0].text
	envelopeChat                           // choices[0].message.content
	envelopeOutput                         // output
	envelopeResult                         // result
	envelopeData                           // data
)

func (k envelopeKind) String() string {
	switch k {
	case envelopeCompletion:
		return "completion"
	case envelopeChat:
		return "chat"
	case envelopeOutput:
		return "output"
	case envelopeResult:
		return "result"
	case envelopeData:
		return "data"
	}
	return "raw"
}

type envelope struct {
	kind envelopeKind
	text string
}

type providerBody struct {
	Choices []struct {
		Text    *string `json:"text"`
		Message *struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Output json.RawMessage `json:"output"`
	Result json.RawMessage `json:"result"`
	Data   json.RawMessage `json:"data"`
}

// decodeEnvelope pulls the model's text out of a provider response. Shapes
// are checked in a fixed order; anything unrecognized falls back to the raw
// body.
func decodeEnvelope(body []byte) envelope {
	raw := envelope{kind: envelopeRaw, text: string(body)}

	var pb providerBody
	if err := json.Unmarshal(body, &pb); err != nil {
		return raw
	}

	if len(pb.Choices) > 0 {
		c := pb.Choices[0]
		if c.Text != nil {
			return envelope{kind: envelopeCompletion, text: *c.Text}
		}
		if c.Message != nil && c.Message.Content != nil {
			return envelope{kind: envelopeChat, text: *c.Message.Content}
		}
	}

	for _, f := range []struct {
		kind envelopeKind
		raw  json.RawMessage
	}{
		{envelopeOutput, pb.Output},
		{envelopeResult, pb.Result},
		{envelopeData, pb.Data},
	} {
		if text, ok := fieldText(f.raw); ok {
			return envelope{kind: f.kind, text: text}
		}
	}
	return raw
}

// fieldText renders a top-level field: strings are unquoted, other values
// are kept as JSON text
func fieldText(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, true
	}
	return string(raw), true
}
