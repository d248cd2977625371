package grading

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"astapp/internal/config"
)

type recordingLog struct {
	mu        sync.Mutex
	responses []string
}

func (r *recordingLog) Record(_, _, response string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses = append(r.responses, response)
}

// newTestClient points a client at srv and replaces the backoff sleep with
// one that records the requested delays
func newTestClient(t *testing.T, baseURL string, audit ResponseLog) (*Client, *[]time.Duration) {
	t.Helper()
	cfg := config.DefaultGraderConfig()
	cfg.BaseURL = baseURL
	cfg.APIKey = "test-key"
	cfg.Timeout = 5 * time.Second

	c := NewClient(cfg, audit, zap.NewNop())
	var delays []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return ctx.Err()
	}
	return c, &delays
}

func request() Request {
	return Request{
		QuestionText: "Why do you want to join?",
		AnswerText:   "I like the group",
		Criteria:     "Motivation",
		MaxScore:     20,
	}
}

func TestGrade_ChatEnvelope(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody completionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"Sure! {\"score\": 15, \"max_score\": 20, \"feedback\": \"fine\"}"}}]}`))
	}))
	defer srv.Close()

	audit := &recordingLog{}
	c, delays := newTestClient(t, srv.URL, audit)
	res := c.Grade(context.Background(), request())

	assert.Equal(t, 15.0, res.Score)
	assert.Equal(t, 20.0, res.MaxScore)
	assert.Equal(t, "fine", res.Feedback)
	require.NotNil(t, res.ModelResponse)
	assert.Contains(t, *res.ModelResponse, "choices")

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "/completions", gotPath)
	assert.Equal(t, "google/gemma-3-27b-it", gotBody.Model)
	assert.Equal(t, 300, gotBody.MaxTokens)
	assert.Contains(t, gotBody.Prompt, "I like the group")
	assert.Contains(t, gotBody.Prompt, `"max_score": 20`)

	assert.Empty(t, *delays)
	assert.Len(t, audit.responses, 1)
}

func TestGrade_ClampsScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"score": 45, "feedback": "excellent"}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, nil)
	res := c.Grade(context.Background(), request())
	assert.Equal(t, 20.0, res.Score)
	assert.Equal(t, "excellent", res.Feedback)
}

func TestGrade_UnauthorizedNoRetry(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"bad key"}`))
	}))
	defer srv.Close()

	c, delays := newTestClient(t, srv.URL, nil)
	req := request()
	req.MaxScore = 15
	res := c.Grade(context.Background(), req)

	assert.Equal(t, 1, calls)
	assert.Empty(t, *delays)
	assert.Equal(t, 7.5, res.Score)
	assert.Equal(t, "Grading service unauthorized (401); provisional score assigned.", res.Feedback)
	require.NotNil(t, res.ModelResponse)
	assert.Equal(t, `{"error":"bad key"}`, *res.ModelResponse)
}

func TestGrade_OtherClientErrorNoRetry(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, nil)
	res := c.Grade(context.Background(), request())

	assert.Equal(t, 1, calls)
	assert.Equal(t, 10.0, res.Score)
	assert.Contains(t, res.Feedback, "429")
}

func TestGrade_RetriesServerErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"text":"{\"score\": 12, \"feedback\": \"ok\"}"}]}`))
	}))
	defer srv.Close()

	c, delays := newTestClient(t, srv.URL, nil)
	res := c.Grade(context.Background(), request())

	assert.Equal(t, 2, calls)
	assert.Equal(t, []time.Duration{500 * time.Millisecond}, *delays)
	assert.Equal(t, 12.0, res.Score)
	assert.Equal(t, "ok", res.Feedback)
}

func TestGrade_ServerErrorsExhausted(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("overloaded"))
	}))
	defer srv.Close()

	c, delays := newTestClient(t, srv.URL, nil)
	res := c.Grade(context.Background(), request())

	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, *delays)
	assert.Equal(t, 10.0, res.Score)
	assert.Equal(t, "Grading service unavailable; provisional score assigned.", res.Feedback)
	require.NotNil(t, res.ModelResponse)
	assert.Equal(t, "overloaded", *res.ModelResponse)
}

func TestGrade_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, delays := newTestClient(t, url, nil)
	res := c.Grade(context.Background(), request())

	assert.Len(t, *delays, 2)
	assert.Equal(t, 10.0, res.Score)
	assert.True(t, strings.HasPrefix(res.Feedback, "Grading service error: "), res.Feedback)
	assert.Nil(t, res.ModelResponse)
}

func TestGrade_CancelledContext(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, nil)
	c.sleep = sleepContext

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := c.Grade(ctx, request())

	assert.Equal(t, 0, calls)
	assert.Equal(t, 10.0, res.Score)
	assert.Contains(t, res.Feedback, "context canceled")
}

func TestGrade_NotParseable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"text":"I cannot grade this."}]}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, nil)
	res := c.Grade(context.Background(), request())

	assert.Equal(t, 10.0, res.Score)
	assert.Equal(t, "Model response returned (not parseable); inspect model_response.", res.Feedback)
	require.NotNil(t, res.ModelResponse)
	assert.Contains(t, *res.ModelResponse, "I cannot grade this.")
}

func TestGrade_NoAuthorizationWithoutKey(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"output":"Score: 8/10"}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL+"/v1/chat/completions", nil)
	c.cfg.APIKey = ""
	res := c.Grade(context.Background(), request())

	assert.Empty(t, gotAuth)
	assert.Equal(t, 16.0, res.Score)
	assert.Equal(t, "Score: 8/10", res.Feedback)
}

func TestDecodeEnvelope(t *testing.T) {
	tests := []struct {
		name string
		body string
		kind envelopeKind
		text string
	}{
		{"completion", `{"choices":[{"text":"a"}]}`, envelopeCompletion, "a"},
		{"chat", `{"choices":[{"message":{"role":"assistant","content":"b"}}]}`, envelopeChat, "b"},
		{"output string", `{"output":"c"}`, envelopeOutput, "c"},
		{"result object", `{"result":{"score":3}}`, envelopeResult, `{"score":3}`},
		{"data", `{"data":"d"}`, envelopeData, "d"},
		{"empty choices", `{"choices":[],"output":"e"}`, envelopeOutput, "e"},
		{"bare object", `{"score":4}`, envelopeRaw, `{"score":4}`},
		{"not json", `score 5/10`, envelopeRaw, `score 5/10`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := decodeEnvelope([]byte(tt.body))
			assert.Equal(t, tt.kind, env.kind)
			assert.Equal(t, tt.text, env.text)
		})
	}
}

func TestRecoverScore(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		max      float64
		how      recovery
		score    float64
		feedback string
	}{
		{"json object", `Result: {"score": 7.5, "feedback": "good"} end`, 10, recoveredJSON, 7.5, "good"},
		{"json numeric string", `{"score": "6", "feedback": 3}`, 10, recoveredJSON, 6, ""},
		{"skips object without score", `{"note": "x"} then {"score": 2}`, 10, recoveredJSON, 2, ""},
		{"braces in strings", `{"feedback": "use {braces}", "score": 4}`, 10, recoveredJSON, 4, "use {braces}"},
		{"negative clamps to zero", `{"score": -3}`, 10, recoveredJSON, 0, ""},
		{"field fragment", `  "score": 30, "feedback": broken`, 20, recoveredField, 20, `"score": 30, "feedback": broken`},
		{"ratio", "I'd give it 7/10", 20, recoveredRatio, 14, "I'd give it 7/10"},
		{"out of", "3 out of 4", 10, recoveredRatio, 7.5, "3 out of 4"},
		{"zero denominator", "5/0", 20, recoveredRatio, 5, "5/0"},
		{"rounded", "1/3", 10, recoveredRatio, 3.33, "1/3"},
		{"nothing", "no numbers here", 10, recoveredNone, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := recoverScore(tt.text, tt.max)
			assert.Equal(t, tt.how, rec.how)
			assert.InDelta(t, tt.score, rec.score, 1e-9)
			assert.Equal(t, tt.feedback, rec.feedback)
		})
	}
}

func TestProvisional(t *testing.T) {
	assert.Equal(t, 10.0, provisional(20))
	assert.Equal(t, 0.0, provisional(0))
	assert.Equal(t, 3.33, provisional(6.66))
}

func TestFileResponseLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "responses.log")

	l, err := NewFileResponseLog(path)
	require.NoError(t, err)
	l.Record("q one", "a one", `{"score":1}`)
	l.Record("q two", "a two", "raw")
	require.NoError(t, l.Close())

	// reopening appends
	l, err = NewFileResponseLog(path)
	require.NoError(t, err)
	l.Record("q three", "a three", "more")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "q one", entry["question"])
	assert.Equal(t, "a one", entry["answer"])
	assert.Equal(t, `{"score":1}`, entry["response"])
	assert.NotEmpty(t, entry["timestamp"])
}
