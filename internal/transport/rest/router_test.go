package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"astapp/internal/config"
	"astapp/internal/events"
	"astapp/internal/formgen"
	"astapp/internal/grading"
	"astapp/internal/model"
	"astapp/internal/promotion"
	"astapp/internal/service"
	"astapp/internal/transport/ws"
)

type memForms struct {
	mu   sync.Mutex
	docs map[string]*model.FormDocument
}

func (m *memForms) Save(_ context.Context, doc *model.FormDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *doc
	m.docs[doc.AppID] = &cp
	return nil
}

func (m *memForms) GetByID(_ context.Context, appID string) (*model.FormDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc, ok := m.docs[appID]; ok {
		cp := *doc
		return &cp, nil
	}
	return nil, nil
}

func (m *memForms) GetByCreatorID(_ context.Context, creatorID string) ([]*model.FormDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.FormDocument
	for _, doc := range m.docs {
		if doc.CreatorID == creatorID {
			cp := *doc
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memForms) Delete(_ context.Context, appID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, appID)
	return nil
}

// noCache never hits
type noCache struct{}

func (noCache) SetForm(context.Context, string, *model.FormConfig) error    { return nil }
func (noCache) GetForm(context.Context, string) (*model.FormConfig, error) { return nil, nil }
func (noCache) DeleteForm(context.Context, string) error                   { return nil }

type memSubmissions struct {
	mu      sync.Mutex
	records []*model.SubmissionRecord
}

func (m *memSubmissions) Create(_ context.Context, rec *model.SubmissionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *memSubmissions) GetByID(_ context.Context, id string) (*model.SubmissionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return nil, nil
}

func (m *memSubmissions) ListByApp(_ context.Context, appID string, limit int) ([]*model.SubmissionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.SubmissionRecord
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		if m.records[i].AppID == appID {
			out = append(out, m.records[i])
		}
	}
	return out, nil
}

type fixedScorer struct{}

func (fixedScorer) Score(_ context.Context, q *model.Question, a model.Answer) model.GradingResult {
	if a.Single() == "a" {
		return model.GradingResult{Type: q.Type, Score: 10, MaxScore: 10, Feedback: "Correct!"}
	}
	return model.GradingResult{Type: q.Type, MaxScore: 10, Feedback: "Incorrect answer"}
}

type noPromoter struct{}

func (noPromoter) Promote(context.Context, promotion.Request) (map[string]any, error) {
	return nil, errors.New("not configured")
}

type memKeys struct {
	keys map[string]string
}

func (m *memKeys) SaveAPIKey(_ context.Context, creatorID, apiKey string) error {
	m.keys[creatorID] = apiKey
	return nil
}

type testServer struct {
	*httptest.Server
	auth  *service.AuthService
	forms *service.FormService
	keys  *memKeys
	subs *memSubmissions
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()
	cfg := config.Default()

	auth := service.NewAuthService(config.AuthConfig{
		CreatorUsername: "creator",
		CreatorPassword: "secret",
		JWTSecret:       "test-secret",
		TokenTTL:        time.Hour,
	})
	forms := service.NewFormService(&memForms{docs: map[string]*model.FormDocument{}}, noCache{}, cfg.Scoring, logger)
	subs := &memSubmissions{}
	hub := ws.NewHub(logger)
	t.Cleanup(hub.Close)
	submissions := service.NewSubmissionService(fixedScorer{}, subs, noPromoter{}, events.NewMockPublisher(), hub,
		cfg.Scoring, cfg.Promotion, logger)
	keys := &memKeys{keys: map[string]string{}}

	srv := httptest.NewServer(NewRouter(&Container{
		AuthService:       auth,
		FormService:       forms,
		SubmissionService: submissions,
		KeyStore:          keys,
		WSHub:             hub,
		Logger:            logger,
	}))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, auth: auth, forms: forms, keys: keys, subs: subs}
}

func (s *testServer) token(t *testing.T, creatorID string) string {
	t.Helper()
	resp, err := s.auth.IssueToken(creatorID)
	require.NoError(t, err)
	return resp.Token
}

func (s *testServer) do(t *testing.T, method, path, token, body string, header ...string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	buf := new(bytes.Buffer)
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.String()
}

const formText = `APP { id: "recruits"; pass_score: 50; }
QUESTION "q1" TYPE "multiple_choice" {
  text: "Pick";
  options: [{id: "a", text: "A", correct: true}, {id: "b", text: "B"}];
}
`

func putForm(t *testing.T, s *testServer, token string) {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"ast_text": formText})
	resp, out := s.do(t, http.MethodPut, "/v1/applications/recruits", token, string(body))
	require.Equal(t, http.StatusOK, resp.StatusCode, out)
}

func TestHealthAndCORS(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, body)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	resp, _ = s.do(t, http.MethodOptions, "/v1/applications/recruits", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLogin(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, http.MethodPost, "/v1/auth/login", "", `{"username":"creator","password":"secret"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var login model.LoginResponse
	require.NoError(t, json.Unmarshal([]byte(body), &login))
	assert.Equal(t, "creator", login.CreatorID)
	assert.NotEmpty(t, login.Token)
	assert.NotNil(t, login.ExpiresAt)

	resp, body = s.do(t, http.MethodPost, "/v1/auth/login", "", `{"username":"creator","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.JSONEq(t, `{"error":"invalid username or password"}`, body)

	resp, body = s.do(t, http.MethodPost, "/v1/auth/login", "", `{"username":"creator"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `{"error":"creator username and password are required"}`, body)

	resp, _ = s.do(t, http.MethodPost, "/v1/auth/login", "", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPutApplication(t *testing.T) {
	s := newTestServer(t)

	resp, _ := s.do(t, http.MethodPut, "/v1/applications/recruits", "", `{"ast_text":""}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token := s.token(t, "42")
	resp, body := s.do(t, http.MethodPut, "/v1/applications/recruits", token,
		`{"ast_text":"QUESTION \"q\" TYPE \"short_answer\" { text: \"t\"; }"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "must set max_length")

	putForm(t, s, token)

	resp, _ = s.do(t, http.MethodPut, "/v1/applications/recruits", s.token(t, "99"), `{"ast_text":"x"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "validation runs before the ownership check")

	body2, _ := json.Marshal(map[string]string{"ast_text": formText})
	resp, _ = s.do(t, http.MethodPut, "/v1/applications/recruits", s.token(t, "99"), string(body2))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPut, "/v1/applications/recruits", token, `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetApplication(t *testing.T) {
	s := newTestServer(t)
	putForm(t, s, s.token(t, "42"))

	resp, body := s.do(t, http.MethodGet, "/v1/applications/recruits", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, formText, body)

	resp, body = s.do(t, http.MethodGet, "/v1/applications/recruits?format=json", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cfg model.FormConfig
	require.NoError(t, json.Unmarshal([]byte(body), &cfg))
	assert.Equal(t, "recruits", cfg.AppID())
	require.Len(t, cfg.Questions, 1)

	resp, _ = s.do(t, http.MethodGet, "/v1/applications/recruits", "", "", "Accept", "application/json")
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	resp, _ = s.do(t, http.MethodGet, "/v1/applications/unknown", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSubmitApplication(t *testing.T) {
	s := newTestServer(t)
	token := s.token(t, "42")
	putForm(t, s, token)

	resp, body := s.do(t, http.MethodPost, "/v1/applications/recruits/submissions", "",
		`{"applicant_id": "77", "answers": {"q1": "a"}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)

	var result model.SubmissionResult
	require.NoError(t, json.Unmarshal([]byte(body), &result))
	assert.True(t, result.Passed)
	assert.Equal(t, 100.0, result.Percent)
	assert.Equal(t, "recruits", result.AppID)
	require.NotNil(t, result.Promotion)
	assert.NotEmpty(t, result.Promotion.Warning)

	resp, _ = s.do(t, http.MethodPost, "/v1/applications/recruits/submissions", "", `{"applicant_id": 1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPost, "/v1/applications/recruits/submissions", "", `{"applicant_id": "abc", "answers": {}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPost, "/v1/applications/nope/submissions", "", `{"answers": {}}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = s.do(t, http.MethodGet, "/v1/applications/recruits/submissions?limit=5", token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Submissions []model.SubmissionRecord `json:"submissions"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &list))
	require.Len(t, list.Submissions, 1)
	assert.Equal(t, int64(77), list.Submissions[0].ApplicantID)

	resp, _ = s.do(t, http.MethodGet, "/v1/applications/recruits/submissions", s.token(t, "99"), "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = s.do(t, http.MethodGet, "/v1/applications/recruits/submissions?limit=0", token, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = s.do(t, http.MethodGet, "/v1/applications/recruits/submissions/"+result.SubmissionID, token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rec model.SubmissionRecord
	require.NoError(t, json.Unmarshal([]byte(body), &rec))
	assert.Equal(t, result.SubmissionID, rec.ID)
	assert.Equal(t, 10.0, rec.TotalScore)

	resp, _ = s.do(t, http.MethodGet, "/v1/applications/recruits/submissions/missing", token, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListAndDeleteApplications(t *testing.T) {
	s := newTestServer(t)
	token := s.token(t, "42")
	putForm(t, s, token)

	resp, body := s.do(t, http.MethodGet, "/v1/applications", token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"appId":"recruits"`)

	resp, _ = s.do(t, http.MethodGet, "/v1/applications/recruits/ranking", token, "")
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)

	resp, _ = s.do(t, http.MethodGet, "/v1/applications/recruits/ranking/abc", token, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = s.do(t, http.MethodGet, "/v1/applications/recruits/ranking/7", token, "")
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)

	resp, _ = s.do(t, http.MethodDelete, "/v1/applications/recruits", s.token(t, "99"), "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = s.do(t, http.MethodDelete, "/v1/applications/recruits", token, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = s.do(t, http.MethodGet, "/v1/applications/recruits", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

type cannedCompleter struct {
	text string
	err  error
}

func (c *cannedCompleter) Complete(context.Context, grading.Completion) (string, error) {
	return c.text, c.err
}

func TestGenerateApplication(t *testing.T) {
	s := newTestServer(t)
	params := `{"name":"Guards","group_id":"123","rank":5,"questions":2}`

	resp, _ := s.do(t, http.MethodPost, "/v1/applications/generate", "", params)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token := s.token(t, "42")
	resp, body := s.do(t, http.MethodPost, "/v1/applications/generate", token, params)
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
	assert.JSONEq(t, `{"error":"form generation is not configured"}`, body)

	completer := &cannedCompleter{text: `{"app": {"name": "Guards"}, "questions": [
		{"id": "q1", "type": "multiple_choice", "text": "Pick", "points": 5,
		 "options": [{"id": "a", "text": "A", "correct": true}, {"id": "b", "text": "B"}]}]}`}
	cfg := config.Default()
	s.forms.SetGenerator(formgen.NewGenerator(completer, cfg.Generator, cfg.Scoring, zap.NewNop()))

	resp, body = s.do(t, http.MethodPost, "/v1/applications/generate", token, params)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	var draft service.GeneratedForm
	require.NoError(t, json.Unmarshal([]byte(body), &draft))
	assert.Equal(t, "Guards", draft.Config.App.String("name"))
	assert.Equal(t, "groups/123/roles/5", draft.Config.TargetRole())
	assert.Contains(t, draft.ASTText, `QUESTION "q1" TYPE "multiple_choice" {`)
	assert.Empty(t, draft.Problems)

	resp, _ = s.do(t, http.MethodGet, "/v1/applications/generate", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "drafts are never stored")

	resp, _ = s.do(t, http.MethodPost, "/v1/applications/generate", token, `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	completer.text = "Sorry, I can't do that."
	resp, body = s.do(t, http.MethodPost, "/v1/applications/generate", token, params)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.JSONEq(t, `{"error":"model output is not a usable form: no JSON object found","raw":"Sorry, I can't do that."}`, body)

	completer.err = &grading.BackendError{Status: http.StatusUnauthorized}
	resp, body = s.do(t, http.MethodPost, "/v1/applications/generate", token, params)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.JSONEq(t, `{"error":"form generation failed"}`, body)
}

func TestSaveVaultKey(t *testing.T) {
	s := newTestServer(t)
	token := s.token(t, "42")

	resp, _ := s.do(t, http.MethodPost, "/v1/vault/keys", "", `{"api_key":"k"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPost, "/v1/vault/keys", token, `{"creator_id":"7","api_key":"k"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPost, "/v1/vault/keys", token, `{"api_key":"  "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPost, "/v1/vault/keys", token, `{"creator_id":"42","api_key":"rbx-key"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "rbx-key", s.keys.keys["42"])
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "astapp_feed_connections_current")
}
