package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/pesio-ai/be-ops-indicators/internal/errors"
	"github.com/pesio-ai/be-ops-indicators/internal/logger"
	"github.com/pesio-ai/be-ops-indicators/internal/middleware"
	"github.com/pesio-ai/be-ops-indicators/internal/repository"
	"github.com/pesio-ai/be-ops-indicators/internal/service"
)

// Pinger reports datastore reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	store     Pinger
	auth      *service.AuthService
	workflow  *service.WorkflowService
	directory *service.DirectoryService
	identity  *service.IdentityService
	log       *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(
	store Pinger,
	auth *service.AuthService,
	workflow *service.WorkflowService,
	directory *service.DirectoryService,
	identity *service.IdentityService,
	log *logger.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		store:     store,
		auth:      auth,
		workflow:  workflow,
		directory: directory,
		identity:  identity,
		log:       log,
	}
}

// Routes registers every endpoint on a new mux.
func (h *HTTPHandler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("POST /api/auth/login", h.Login)
	mux.HandleFunc("GET /api/me", h.authed(h.Me))

	mux.HandleFunc("GET /api/setores", h.optional(h.ListSectors))
	mux.HandleFunc("POST /api/setores", h.authed(h.CreateSector))
	mux.HandleFunc("PUT /api/setores/{id}", h.authed(h.UpdateSector))

	mux.HandleFunc("GET /api/indicadores", h.optional(h.ListIndicators))
	mux.HandleFunc("POST /api/indicadores", h.authed(h.CreateIndicator))
	mux.HandleFunc("PUT /api/indicadores/{id}", h.authed(h.UpdateIndicator))

	mux.HandleFunc("GET /api/gestor/funcionarios", h.authed(h.ListSectorEmployees))

	mux.HandleFunc("GET /api/valores", h.authed(h.ListValues))
	mux.HandleFunc("POST /api/valores", h.authed(h.CommitValues))

	mux.HandleFunc("POST /api/drafts", h.authed(h.SaveDraft))
	mux.HandleFunc("GET /api/drafts", h.authed(h.ListDrafts))
	mux.HandleFunc("GET /api/drafts/rejected", h.authed(h.ListRejected))
	mux.HandleFunc("GET /api/drafts/pending", h.authed(h.ListPending))
	mux.HandleFunc("POST /api/drafts/submit", h.authed(h.SubmitDrafts))
	mux.HandleFunc("POST /api/drafts/approve", h.authed(h.ApproveDrafts))
	mux.HandleFunc("POST /api/drafts/{id}/approve", h.authed(h.ApproveDraft))
	mux.HandleFunc("POST /api/drafts/{id}/reject", h.authed(h.RejectDraft))

	mux.HandleFunc("GET /api/users", h.authed(h.ListUsers))
	mux.HandleFunc("POST /api/users", h.authed(h.CreateUser))
	mux.HandleFunc("PUT /api/users/{id}", h.authed(h.UpdateUser))
	mux.HandleFunc("POST /api/users/{id}/reset-password", h.authed(h.ResetPassword))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		h.writeError(w, r, errors.New(errors.ErrCodeNotFound, "route not found"))
	})
	return mux
}

type actorHandler func(w http.ResponseWriter, r *http.Request, actor service.Actor)

type optionalActorHandler func(w http.ResponseWriter, r *http.Request, actor *service.Actor)

// bearerToken extracts the credential of an "Authorization: Bearer" value.
func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func (h *HTTPHandler) authed(next actorHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			h.writeError(w, r, errors.Unauthenticated(nil))
			return
		}
		actor, err := h.auth.Validate(token)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		next(w, r, actor)
	}
}

// optional serves anonymous callers too. An unusable token is treated as no
// token.
func (h *HTTPHandler) optional(next optionalActorHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var actor *service.Actor
		if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
			if a, err := h.auth.Validate(token); err == nil {
				actor = &a
			}
		}
		next(w, r, actor)
	}
}

func writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	if body == nil {
		body = map[string]any{}
	}
	body["ok"] = true
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

type errorBody struct {
	Code    errors.Code `json:"code"`
	Message string      `json:"message"`
	Field   string      `json:"field,omitempty"`
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	body := errorBody{Code: errors.ErrCodeInternal, Message: "internal error"}
	var e *errors.Error
	if errors.As(err, &e) {
		body = errorBody{Code: e.Code, Message: e.Message, Field: e.Field}
	}

	switch body.Code {
	case errors.ErrCodeInternal, errors.ErrCodeStorageUnavailable:
		h.log.Error().Err(err).
			Str("request_id", middleware.RequestIDFrom(r.Context())).
			Str("path", r.URL.Path).
			Msg("Request failed")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(body.Code.HTTPStatus())
	json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": body})
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.InvalidInput("id", "id must be a positive integer")
	}
	return id, nil
}

func requiredSector(p payload) (int64, error) {
	id, err := p.id("setorId", aliasSectorID)
	if err != nil {
		return 0, err
	}
	if id == nil {
		return 0, errors.InvalidInput("setorId", "sector id is required")
	}
	return *id, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Health handles datastore health checks
func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		if errors.CodeOf(err) != errors.ErrCodeStorageUnavailable {
			err = errors.Wrap(err, errors.ErrCodeStorageUnavailable, "storage unavailable")
		}
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "healthy"})
}

// Login handles login HTTP requests
func (h *HTTPHandler) Login(w http.ResponseWriter, r *http.Request) {
	p, err := decodeBody(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.auth.Login(r.Context(), p.str(aliasLoginEmail), deref(p.optStr(aliasSecret)))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":     res.Token,
		"expiresAt": res.ExpiresAt,
		"user":      newEmployeeView(res.Employee),
	})
}

// Me returns the caller's identity
func (h *HTTPHandler) Me(w http.ResponseWriter, r *http.Request, actor service.Actor) {
	emp, err := h.auth.Me(r.Context(), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": newEmployeeView(emp)})
}

// ListSectors handles list sectors HTTP requests
func (h *HTTPHandler) ListSectors(w http.ResponseWriter, r *http.Request, actor *service.Actor) {
	sectors, err := h.directory.ListSectors(r.Context(), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sectors": sectorViews(sectors)})
}

// CreateSector handles create sector HTTP requests
func (h *HTTPHandler) CreateSector(w http.ResponseWriter, r *http.Request, actor service.Actor) {
	p, err := decodeBody(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	sector, err := h.directory.CreateSector(r.Context(), actor, p.str(aliasName))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"sector": newSectorView(sector)})
}

// UpdateSector handles update sector HTTP requests
func (h *HTTPHandler) UpdateSector(w http.ResponseWriter, r *http.Request, actor service.Actor) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := decodeBody(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	active, err := p.boolean("ativo", aliasActive)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	sector, err := h.directory.UpdateSector(r.Context(), actor, id, repository.SectorPatch{
		Name:   p.optStr(aliasName),
		Active: active,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sector": newSectorView(sector)})
}

// ListIndicators handles list indicators HTTP requests
func (h *HTTPHandler) ListIndicators(w http.ResponseWriter, r *http.Request, actor *service.Actor) {
	sectorID, err := queryPayload(r.URL.Query()).id("setorId", aliasSectorID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	list, err := h.directory.ListIndicators(r.Context(), actor, sectorID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"indicators": indicatorViews(list)})
}

// CreateIndicator handles create indicator HTTP requests
func (h *HTTPHandler) CreateIndicator(w http.ResponseWriter, r *http.Request, actor service.Actor) {
	p, err := decodeBody(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	sectorID, err := requiredSector(p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	responsibleID, err := p.id("responsavelId", aliasResponsible)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	ind, err := h.directory.CreateIndicator(r.Context(), actor, &service.CreateIndicatorRequest{
		SectorID:      sectorID,
		Code:          p.str(aliasItemCode),
		Name:          p.str(aliasItemName),
		Type:          p.optStr(aliasItemType),
		Unit:          p.optStr(aliasItemUnit),
		Target:        p.optStr(aliasItemTarget),
		ResponsibleID: responsibleID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"indicator": newIndicatorView(ind, false)})
}

// UpdateIndicator handles update indicator HTTP requests. A null responsible
// id clears the owner.
func (h *HTTPHandler) UpdateIndicator(w http.ResponseWriter, r *http.Request, actor service.Actor) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := decodeBody(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	active, err := p.boolean("ativo", aliasActive)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	responsibleID, err := p.id("responsavelId", aliasResponsible)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	ind, err := h.directory.UpdateIndicator(r.Context(), actor, id, repository.IndicatorPatch{
		Name:           p.optStr(aliasItemName),
		Type:           p.optStr(aliasItemType),
		Unit:           p.optStr(aliasItemUnit),
		Target:         p.optStr(aliasItemTarget),
		Active:         active,
		ResponsibleSet: p.present(aliasResponsible),
		ResponsibleID:  responsibleID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"indicator": newIndicatorView(ind, false)})
}

// ListSectorEmployees lists the employees of the caller's sector
func (h *HTTPHandler) ListSectorEmployees(w http.ResponseWriter, r *http.Request, actor service.Actor) {
	list, err := h.directory.ListSectorEmployees(r.Context(), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"employees": employeeViews(list)})
}

// ListValues handles list values HTTP requests
func (h *HTTPHandler) ListValues(w http.ResponseWriter, r *http.Request, actor service.Actor) {
	q := queryPayload(r.URL.Query())
	sectorID, err := requiredSector(q)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	values, err := h.workflow.ListValues(r.Context(), actor, sectorID, q.str(aliasPeriod))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"values": valueViews(values)})
}

// CommitValues writes values of record directly
func (h *HTTPHandler) CommitValues(w http.ResponseWriter, r *http.Request, actor service.Actor) {
	p, err := decodeBody(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	req, err := valuesRequest(p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	values, err := h.workflow.CommitValues(r.Context(), actor, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(values), "values": valueViews(values)})
}

// SaveDraft stores draft entries
func (h *HTTPHandler) SaveDraft(w http.ResponseWriter, r *http.Request, actor service.Actor) {
	p, err := decodeBody(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	req, err := valuesRequest(p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	drafts, err := h.workflow.SaveDraft(r.Context(), actor, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(drafts), "drafts": draftViews(drafts)})
}

// ListDrafts handles list drafts HTTP requests
func (h *HTTPHandler) ListDrafts(w http.ResponseWriter, r *http.Request, actor service.Actor) {
	q := queryPayload(r.URL.Query())
	sectorID, err := q.id("setorId", aliasSectorID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	drafts, err := h.workflow.ListDrafts(r.Context(), actor, service.DraftQuery{
		SectorID: sectorID,
		Period:   q.str(aliasPeriod),
		Status:   q.str(aliasStatus),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"drafts": draftViews(drafts)})
}

// ListRejected lists the caller's rejected drafts
func (h *HTTPHandler) ListRejected(w http.ResponseWriter, r *http.Request, actor service.Actor) {
	sectorID, err := queryPayload(r.URL.Query()).id("setorId", aliasSectorID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	drafts, err := h.workflow.ListRejected(r.Context(), actor, sectorID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"drafts": draftViews(drafts)})
}

// ListPending lists drafts awaiting approval
func (h *HTTPHandler) ListPending(w http.ResponseWriter, r *http.Request, actor service.Actor) {
	sectorID, err := queryPayload(r.URL.Query()).id("setorId", aliasSectorID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	drafts, err := h.workflow.ListPending(r.Context(), actor, sectorID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"drafts": draftViews(drafts)})
}

// SubmitDrafts moves drafts of a sector and period to PENDING
func (h *HTTPHandler) SubmitDrafts(w http.ResponseWriter, r *http.Request, actor service.Actor) {
	p, err := decodeBody(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	sectorID, err := requiredSector(p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	n, err := h.workflow.SubmitDrafts(r.Context(), actor, sectorID, p.str(aliasPeriod))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"submittedCount": n})
}

// ApproveDrafts approves every pending draft of a sector and period
func (h *HTTPHandler) ApproveDrafts(w http.ResponseWriter, r *http.Request, actor service.Actor) {
	p, err := decodeBody(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	sectorID, err := requiredSector(p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	n, err := h.workflow.ApproveDrafts(r.Context(), actor, sectorID, p.str(aliasPeriod))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"approvedCount": n})
}

// ApproveDraft approves a single pending draft
func (h *HTTPHandler) ApproveDraft(w http.ResponseWriter, r *http.Request, actor service.Actor) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	d, err := h.workflow.ApproveOne(r.Context(), actor, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"draft": newDraftView(d)})
}

// RejectDraft rejects a single pending draft with a reason
func (h *HTTPHandler) RejectDraft(w http.ResponseWriter, r *http.Request, actor service.Actor) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := decodeBody(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	d, err := h.workflow.RejectOne(r.Context(), actor, id, p.str(aliasReason))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"draft": newDraftView(d)})
}

// ListUsers handles list identities HTTP requests
func (h *HTTPHandler) ListUsers(w http.ResponseWriter, r *http.Request, actor service.Actor) {
	list, err := h.identity.ListIdentities(r.Context(), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": employeeViews(list)})
}

// CreateUser handles create identity HTTP requests
func (h *HTTPHandler) CreateUser(w http.ResponseWriter, r *http.Request, actor service.Actor) {
	p, err := decodeBody(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	sectorID, err := p.id("setorId", aliasSectorID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	level, err := p.integer("nivel", aliasLevel)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if level == nil {
		h.writeError(w, r, errors.InvalidInput("nivel", "level is required"))
		return
	}

	emp, err := h.identity.CreateIdentity(r.Context(), actor, &service.CreateIdentityRequest{
		Name:     p.str(aliasName),
		Email:    p.str(aliasEmployeeEmail),
		Secret:   deref(p.optStr(aliasSecret)),
		SectorID: sectorID,
		Level:    *level,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": newEmployeeView(emp)})
}

// UpdateUser handles update identity HTTP requests. A null sector id clears
// the sector.
func (h *HTTPHandler) UpdateUser(w http.ResponseWriter, r *http.Request, actor service.Actor) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := decodeBody(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	sectorID, err := p.id("setorId", aliasSectorID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	level, err := p.integer("nivel", aliasLevel)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	active, err := p.boolean("ativo", aliasActive)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	emp, err := h.identity.UpdateIdentity(r.Context(), actor, id, &service.UpdateIdentityRequest{
		Name:      p.optStr(aliasName),
		Email:     p.optStr(aliasEmployeeEmail),
		SectorSet: p.present(aliasSectorID),
		SectorID:  sectorID,
		Level:     level,
		Active:    active,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": newEmployeeView(emp)})
}

// ResetPassword resets an identity's secret, defaulting to the placeholder
func (h *HTTPHandler) ResetPassword(w http.ResponseWriter, r *http.Request, actor service.Actor) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := decodeBody(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.identity.ResetSecret(r.Context(), actor, id, deref(p.optStr(aliasSecret))); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}
