// Package handler exposes the service over HTTP JSON. The authentication and
// tenancy layers sit in front of this service; the actor and organization
// identities arrive on trusted headers and are passed through as given.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/Bouchary/saas-tracker-app-sub001/internal/errors"
	"github.com/Bouchary/saas-tracker-app-sub001/internal/logger"
	"github.com/Bouchary/saas-tracker-app-sub001/internal/service"
)

// HTTPHandler handles HTTP requests.
type HTTPHandler struct {
	requests *service.RequestService
	rules    *service.RuleService
	log      *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(requests *service.RequestService, rules *service.RuleService, log *logger.Logger) *HTTPHandler {
	return &HTTPHandler{
		requests: requests,
		rules:    rules,
		log:      log,
	}
}

// identity reads the actor and tenant from the trusted auth headers.
func identity(r *http.Request) (organizationID, actorID string, ok bool) {
	organizationID = r.Header.Get("X-Org-ID")
	actorID = r.Header.Get("X-User-ID")
	return organizationID, actorID, organizationID != "" && actorID != ""
}

// ── Purchase requests ────────────────────────────────────────────────────────

// CreateRequest handles POST /api/v1/requests.
func (h *HTTPHandler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	orgID, actorID, ok := identity(r)
	if !ok {
		writeError(w, errors.New(errors.ErrCodeUnauthorized, "missing identity headers"))
		return
	}

	var in service.RequestInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}

	req, err := h.requests.CreateDraft(r.Context(), orgID, actorID, &in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// GetRequest handles GET /api/v1/requests/get?id=.
func (h *HTTPHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	orgID, _, ok := identity(r)
	if !ok {
		writeError(w, errors.New(errors.ErrCodeUnauthorized, "missing identity headers"))
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, errors.InvalidInput("id", "request id is required"))
		return
	}

	detail, err := h.requests.GetDetail(r.Context(), id, orgID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// ListRequests handles GET /api/v1/requests — the actor's own requests.
func (h *HTTPHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	orgID, actorID, ok := identity(r)
	if !ok {
		writeError(w, errors.New(errors.ErrCodeUnauthorized, "missing identity headers"))
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 50
	}

	requests, err := h.requests.ListMine(r.Context(), orgID, actorID, page, pageSize)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"requests": requests,
		"page":     page,
		"pageSize": pageSize,
	})
}

// ListPendingApprovals handles GET /api/v1/requests/pending.
func (h *HTTPHandler) ListPendingApprovals(w http.ResponseWriter, r *http.Request) {
	orgID, actorID, ok := identity(r)
	if !ok {
		writeError(w, errors.New(errors.ErrCodeUnauthorized, "missing identity headers"))
		return
	}

	pending, err := h.requests.ListToApprove(r.Context(), orgID, actorID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"pending": pending})
}

// UpdateRequest handles POST /api/v1/requests/update.
func (h *HTTPHandler) UpdateRequest(w http.ResponseWriter, r *http.Request) {
	orgID, actorID, ok := identity(r)
	if !ok {
		writeError(w, errors.New(errors.ErrCodeUnauthorized, "missing identity headers"))
		return
	}

	var body struct {
		ID string `json:"id"`
		service.RequestInput
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}

	req, err := h.requests.UpdateDraft(r.Context(), body.ID, orgID, actorID, &body.RequestInput)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// DeleteRequest handles DELETE /api/v1/requests/delete?id=.
func (h *HTTPHandler) DeleteRequest(w http.ResponseWriter, r *http.Request) {
	orgID, actorID, ok := identity(r)
	if !ok {
		writeError(w, errors.New(errors.ErrCodeUnauthorized, "missing identity headers"))
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, errors.InvalidInput("id", "request id is required"))
		return
	}

	if err := h.requests.DeleteDraft(r.Context(), id, orgID, actorID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SubmitRequest handles POST /api/v1/requests/submit.
func (h *HTTPHandler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	orgID, actorID, ok := identity(r)
	if !ok {
		writeError(w, errors.New(errors.ErrCodeUnauthorized, "missing identity headers"))
		return
	}

	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}

	req, err := h.requests.Submit(r.Context(), body.ID, orgID, actorID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// ApproveRequest handles POST /api/v1/requests/approve.
func (h *HTTPHandler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	orgID, actorID, ok := identity(r)
	if !ok {
		writeError(w, errors.New(errors.ErrCodeUnauthorized, "missing identity headers"))
		return
	}

	var body struct {
		ID       string  `json:"id"`
		Comments *string `json:"comments"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}

	req, err := h.requests.Approve(r.Context(), body.ID, orgID, actorID, body.Comments)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// RejectRequest handles POST /api/v1/requests/reject.
func (h *HTTPHandler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	orgID, actorID, ok := identity(r)
	if !ok {
		writeError(w, errors.New(errors.ErrCodeUnauthorized, "missing identity headers"))
		return
	}

	var body struct {
		ID     string `json:"id"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}

	req, err := h.requests.Reject(r.Context(), body.ID, orgID, actorID, body.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// ConvertRequest handles POST /api/v1/requests/convert.
func (h *HTTPHandler) ConvertRequest(w http.ResponseWriter, r *http.Request) {
	orgID, actorID, ok := identity(r)
	if !ok {
		writeError(w, errors.New(errors.ErrCodeUnauthorized, "missing identity headers"))
		return
	}

	var body struct {
		ID        string                       `json:"id"`
		Overrides *service.ConversionOverrides `json:"overrides"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}

	req, err := h.requests.Convert(r.Context(), body.ID, orgID, actorID, body.Overrides)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// GetHistory handles GET /api/v1/requests/history?id=.
func (h *HTTPHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	orgID, _, ok := identity(r)
	if !ok {
		writeError(w, errors.New(errors.ErrCodeUnauthorized, "missing identity headers"))
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, errors.InvalidInput("id", "request id is required"))
		return
	}

	events, err := h.requests.GetHistory(r.Context(), id, orgID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"history": events})
}

// ── Attachments ──────────────────────────────────────────────────────────────

// AttachFile handles POST /api/v1/requests/attachments.
func (h *HTTPHandler) AttachFile(w http.ResponseWriter, r *http.Request) {
	orgID, actorID, ok := identity(r)
	if !ok {
		writeError(w, errors.New(errors.ErrCodeUnauthorized, "missing identity headers"))
		return
	}

	var body struct {
		RequestID string `json:"request_id"`
		service.AttachmentInput
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}

	att, err := h.requests.AttachFile(r.Context(), body.RequestID, orgID, actorID, &body.AttachmentInput)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, att)
}

// ListFiles handles GET /api/v1/requests/attachments?request_id=.
func (h *HTTPHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	orgID, _, ok := identity(r)
	if !ok {
		writeError(w, errors.New(errors.ErrCodeUnauthorized, "missing identity headers"))
		return
	}
	requestID := r.URL.Query().Get("request_id")
	if requestID == "" {
		writeError(w, errors.InvalidInput("request_id", "request id is required"))
		return
	}

	files, err := h.requests.ListFiles(r.Context(), requestID, orgID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"attachments": files})
}

// DeleteFile handles DELETE /api/v1/requests/attachments/delete?id=.
func (h *HTTPHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	orgID, actorID, ok := identity(r)
	if !ok {
		writeError(w, errors.New(errors.ErrCodeUnauthorized, "missing identity headers"))
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, errors.InvalidInput("id", "attachment id is required"))
		return
	}

	if err := h.requests.SoftDeleteFile(r.Context(), id, orgID, actorID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Approval rules ───────────────────────────────────────────────────────────

// CreateRule handles POST /api/v1/approval-rules.
func (h *HTTPHandler) CreateRule(w http.ResponseWriter, r *http.Request) {
	orgID, _, ok := identity(r)
	if !ok {
		writeError(w, errors.New(errors.ErrCodeUnauthorized, "missing identity headers"))
		return
	}

	var in service.RuleInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}

	rule, err := h.rules.CreateRule(r.Context(), orgID, &in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

// ListRules handles GET /api/v1/approval-rules.
func (h *HTTPHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	orgID, _, ok := identity(r)
	if !ok {
		writeError(w, errors.New(errors.ErrCodeUnauthorized, "missing identity headers"))
		return
	}
	activeOnly := r.URL.Query().Get("active") == "true"

	rules, err := h.rules.ListRules(r.Context(), orgID, activeOnly)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rules": rules})
}

// GetRule handles GET /api/v1/approval-rules/get?id=.
func (h *HTTPHandler) GetRule(w http.ResponseWriter, r *http.Request) {
	orgID, _, ok := identity(r)
	if !ok {
		writeError(w, errors.New(errors.ErrCodeUnauthorized, "missing identity headers"))
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, errors.InvalidInput("id", "rule id is required"))
		return
	}

	rule, err := h.rules.GetRule(r.Context(), id, orgID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// UpdateRule handles POST /api/v1/approval-rules/update.
func (h *HTTPHandler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	orgID, _, ok := identity(r)
	if !ok {
		writeError(w, errors.New(errors.ErrCodeUnauthorized, "missing identity headers"))
		return
	}

	var body struct {
		ID string `json:"id"`
		service.RuleInput
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}

	rule, err := h.rules.UpdateRule(r.Context(), body.ID, orgID, &body.RuleInput)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// ToggleRule handles POST /api/v1/approval-rules/toggle.
func (h *HTTPHandler) ToggleRule(w http.ResponseWriter, r *http.Request) {
	orgID, _, ok := identity(r)
	if !ok {
		writeError(w, errors.New(errors.ErrCodeUnauthorized, "missing identity headers"))
		return
	}

	var body struct {
		ID     string `json:"id"`
		Active bool   `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}

	if err := h.rules.SetRuleActive(r.Context(), body.ID, orgID, body.Active); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": body.ID, "active": body.Active})
}

// DeleteRule handles DELETE /api/v1/approval-rules/delete?id=.
func (h *HTTPHandler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	orgID, _, ok := identity(r)
	if !ok {
		writeError(w, errors.New(errors.ErrCodeUnauthorized, "missing identity headers"))
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, errors.InvalidInput("id", "rule id is required"))
		return
	}

	if err := h.rules.DeleteRule(r.Context(), id, orgID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TestRule handles POST /api/v1/approval-rules/test — dry-run rule matching.
func (h *HTTPHandler) TestRule(w http.ResponseWriter, r *http.Request) {
	orgID, _, ok := identity(r)
	if !ok {
		writeError(w, errors.New(errors.ErrCodeUnauthorized, "missing identity headers"))
		return
	}

	var body struct {
		AmountCents int64  `json:"amount_cents"`
		Category    string `json:"category"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}

	rule, err := h.rules.TestMatch(r.Context(), orgID, body.AmountCents, body.Category)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"matched": rule != nil,
		"rule":    rule,
	})
}

// ── Response helpers ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps typed error codes to HTTP statuses. The body always carries
// the code and a human-readable reason so clients can explain refusals.
// CONFLICT (409) is reserved for lost races a client may retry after a
// re-read; INVALID_TRANSITION gets 422 so the two stay distinguishable on
// both code and status.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errors.CodeOf(err) {
	case errors.ErrCodeNotFound:
		status = http.StatusNotFound
	case errors.ErrCodeConflict:
		status = http.StatusConflict
	case errors.ErrCodeInvalidTransition:
		status = http.StatusUnprocessableEntity
	case errors.ErrCodeInvalidInput:
		status = http.StatusBadRequest
	case errors.ErrCodeUnauthorized:
		status = http.StatusForbidden
	case errors.ErrCodeUnprocessable:
		status = http.StatusUnprocessableEntity
	}

	body := map[string]interface{}{
		"code":    errors.CodeOf(err),
		"message": err.Error(),
	}
	if field := errors.FieldOf(err); field != "" {
		body["field"] = field
	}
	writeJSON(w, status, body)
}
