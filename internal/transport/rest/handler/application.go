package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"astapp/internal/formgen"
	"astapp/internal/model"
	"astapp/internal/service"
	"astapp/internal/transport/rest/middleware"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	maxBodyBytes     = 1 << 20
)

// ApplicationHandler serves forms and accepts submissions
type ApplicationHandler struct {
	forms       *service.FormService
	submissions *service.SubmissionService
	feeds       service.Broadcaster
	logger      *zap.Logger
}

// NewApplicationHandler creates a new application handler
func NewApplicationHandler(forms *service.FormService, submissions *service.SubmissionService, feeds service.Broadcaster, logger *zap.Logger) *ApplicationHandler {
	return &ApplicationHandler{
		forms:       forms,
		submissions: submissions,
		feeds:       feeds,
		logger:      logger.Named("http"),
	}
}

// SaveApplicationRequest is the body of PUT /v1/applications/{appId}
type SaveApplicationRequest struct {
	ASTText *string           `json:"ast_text"`
	Config  *model.FormConfig `json:"config"`
}

// Get handles GET /v1/applications/{appId}. The raw document is returned
// unless JSON is asked for.
func (h *ApplicationHandler) Get(w http.ResponseWriter, r *http.Request) {
	appID := mux.Vars(r)["appId"]

	if wantsJSON(r) {
		cfg, err := h.forms.GetConfig(r.Context(), appID)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cfg)
		return
	}

	doc, err := h.forms.GetDocument(r.Context(), appID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc.ASTText))
}

// Put handles PUT /v1/applications/{appId}
func (h *ApplicationHandler) Put(w http.ResponseWriter, r *http.Request) {
	appID := mux.Vars(r)["appId"]
	creatorID := middleware.GetCreatorID(r.Context())
	if creatorID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req SaveApplicationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ASTText == nil && req.Config == nil {
		writeError(w, http.StatusBadRequest, "ast_text or config is required")
		return
	}

	save := service.SaveRequest{AppID: appID, CreatorID: creatorID, Config: req.Config}
	if req.ASTText != nil {
		save.ASTText = *req.ASTText
	}

	doc, cfg, err := h.forms.Save(r.Context(), save)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"app_id":    doc.AppID,
		"questions": len(cfg.Questions),
		"ast_text":  doc.ASTText,
	})
}

// Delete handles DELETE /v1/applications/{appId} and closes its live feeds
func (h *ApplicationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	appID := mux.Vars(r)["appId"]
	creatorID := middleware.GetCreatorID(r.Context())
	if creatorID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.forms.Delete(r.Context(), appID, creatorID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.submissions.ForgetApp(r.Context(), appID)
	if h.feeds != nil {
		h.feeds.DisconnectApp(appID)
	}
	w.WriteHeader(http.StatusNoContent)
}

// Generate handles POST /v1/applications/generate. The draft is returned
// for review and is not saved.
func (h *ApplicationHandler) Generate(w http.ResponseWriter, r *http.Request) {
	creatorID := middleware.GetCreatorID(r.Context())
	if creatorID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var params formgen.Params
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	draft, err := h.forms.Generate(r.Context(), creatorID, params)
	var unusable *formgen.OutputError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, draft)
	case errors.Is(err, service.ErrGenerationDisabled):
		h.writeServiceError(w, err)
	case errors.As(err, &unusable):
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"error": unusable.Error(),
			"raw":   unusable.Raw,
		})
	default:
		h.logger.Warn("form generation failed", zap.String("creator_id", creatorID), zap.Error(err))
		writeError(w, http.StatusBadGateway, "form generation failed")
	}
}

// Submit handles POST /v1/applications/{appId}/submissions
func (h *ApplicationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	appID := mux.Vars(r)["appId"]

	var sub model.Submission
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&sub); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sub.AppID = appID

	cfg, err := h.forms.GetConfig(r.Context(), appID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	result, err := h.submissions.HandleSubmission(r.Context(), cfg, &sub)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ListSubmissions handles GET /v1/applications/{appId}/submissions
func (h *ApplicationHandler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	appID, ok := h.requireOwner(w, r)
	if !ok {
		return
	}

	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	records, err := h.submissions.ListSubmissions(r.Context(), appID, limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if records == nil {
		records = []*model.SubmissionRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"submissions": records})
}

// Ranking handles GET /v1/applications/{appId}/ranking
func (h *ApplicationHandler) Ranking(w http.ResponseWriter, r *http.Request) {
	appID, ok := h.requireOwner(w, r)
	if !ok {
		return
	}

	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	entries, err := h.submissions.TopApplicants(r.Context(), appID, limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ranking": entries})
}

// GetSubmission handles GET /v1/applications/{appId}/submissions/{submissionId}
func (h *ApplicationHandler) GetSubmission(w http.ResponseWriter, r *http.Request) {
	appID, ok := h.requireOwner(w, r)
	if !ok {
		return
	}

	rec, err := h.submissions.GetSubmission(r.Context(), appID, mux.Vars(r)["submissionId"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ApplicantRank handles GET /v1/applications/{appId}/ranking/{applicantId}
func (h *ApplicationHandler) ApplicantRank(w http.ResponseWriter, r *http.Request) {
	appID, ok := h.requireOwner(w, r)
	if !ok {
		return
	}

	applicantID, err := strconv.ParseInt(mux.Vars(r)["applicantId"], 10, 64)
	if err != nil || applicantID < 1 {
		writeError(w, http.StatusBadRequest, service.ErrInvalidApplicant.Error())
		return
	}

	rank, err := h.submissions.ApplicantRank(r.Context(), appID, applicantID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"applicant_id": applicantID,
		"rank":         rank,
	})
}

// ListMine handles GET /v1/applications
func (h *ApplicationHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	creatorID := middleware.GetCreatorID(r.Context())
	if creatorID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	docs, err := h.forms.ListByCreator(r.Context(), creatorID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if docs == nil {
		docs = []*model.FormDocument{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"applications": docs})
}

// requireOwner reads {appId} and writes 401/403/404 unless the caller owns it
func (h *ApplicationHandler) requireOwner(w http.ResponseWriter, r *http.Request) (string, bool) {
	appID := mux.Vars(r)["appId"]
	creatorID := middleware.GetCreatorID(r.Context())
	if creatorID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return "", false
	}

	owns, err := h.forms.Owns(r.Context(), appID, creatorID)
	if err != nil {
		h.writeServiceError(w, err)
		return "", false
	}
	if !owns {
		writeError(w, http.StatusForbidden, service.ErrNotFormOwner.Error())
		return "", false
	}
	return appID, true
}

// parseLimit reads ?limit=, writing a 400 when it is not a positive integer
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultListLimit, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return 0, false
	}
	return min(n, maxListLimit), true
}

func wantsJSON(r *http.Request) bool {
	if r.URL.Query().Get("format") == "json" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// writeServiceError maps service errors to HTTP statuses
func (h *ApplicationHandler) writeServiceError(w http.ResponseWriter, err error) {
	var validation *service.FormValidationError
	var missing *service.MissingAnswerError

	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":    service.ErrInvalidForm.Error(),
			"problems": validation.Problems,
		})
	case errors.As(err, &missing):
		writeError(w, http.StatusBadRequest, missing.Error())
	case errors.Is(err, service.ErrMissingAnswers),
		errors.Is(err, service.ErrInvalidApplicant),
		errors.Is(err, service.ErrInvalidAppID):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrFormNotFound),
		errors.Is(err, service.ErrSubmissionNotFound),
		errors.Is(err, service.ErrNotRanked):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrNotFormOwner):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrRankingDisabled),
		errors.Is(err, service.ErrGenerationDisabled):
		writeError(w, http.StatusNotImplemented, err.Error())
	default:
		h.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
