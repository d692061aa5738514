package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"telegram-ai-stars/internal/domain"
	"telegram-ai-stars/internal/domain/model"
	"telegram-ai-stars/internal/infra/logging"
	"telegram-ai-stars/internal/infra/metrics"
)

const maxBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// statusFor maps domain errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrPromoNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrFieldNotEditable):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	metrics.IncAdminCommand("http_"+op, "error")
	if status == http.StatusInternalServerError {
		logging.With(r.Context(), s.log).Error().Err(err).Str("op", op).Msg("admin request failed")
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "bot": "active"})
}

type loginRequest struct {
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}
	if !s.deps.Admin.CheckPassword(req.Password) {
		metrics.IncAdminCommand("http_login", "denied")
		logging.With(r.Context(), s.log).Warn().Str("remote", r.RemoteAddr).Msg("admin login rejected")
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	tok, exp, err := s.auth.Mint(adminRole)
	if err != nil {
		s.fail(w, r, "login", err)
		return
	}
	metrics.IncAdminCommand("http_login", "ok")
	writeJSON(w, http.StatusOK, loginResponse{Token: tok, ExpiresAt: exp})
}

type overviewResponse struct {
	Users        int              `json:"users"`
	Premium      int              `json:"premium"`
	ActiveDay    int              `json:"active_day"`
	TotalStars   int64            `json:"total_stars"`
	DirtyRecords int              `json:"dirty_records"`
	Counters     map[string]int64 `json:"counters"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	o, err := s.deps.Stats.Overview(r.Context())
	if err != nil {
		s.fail(w, r, "stats", err)
		return
	}
	metrics.IncAdminCommand("http_stats", "ok")
	writeJSON(w, http.StatusOK, overviewResponse{
		Users:        o.Users,
		Premium:      o.Premium,
		ActiveDay:    o.ActiveDay,
		TotalStars:   o.TotalStars,
		DirtyRecords: o.DirtyRecords,
		Counters:     o.Counters,
	})
}

func userID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ErrInvalidArgument
	}
	return id, nil
}

func (s *Server) handleInspectUser(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		s.fail(w, r, "inspect", err)
		return
	}
	u, err := s.deps.Admin.InspectUser(r.Context(), id)
	if err != nil {
		s.fail(w, r, "inspect", err)
		return
	}
	metrics.IncAdminCommand("http_inspect", "ok")
	writeJSON(w, http.StatusOK, u)
}

type editUserRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func (s *Server) handleEditUser(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		s.fail(w, r, "edit", err)
		return
	}
	var req editUserRequest
	if !decode(w, r, &req) {
		return
	}
	u, err := s.deps.Admin.EditUser(r.Context(), id, strings.TrimSpace(req.Field), req.Value)
	if err != nil {
		s.fail(w, r, "edit", err)
		return
	}
	metrics.IncAdminCommand("http_edit", "ok")
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleListPromos(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Promos.List(r.Context())
	if err != nil {
		s.fail(w, r, "promos", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type promoCreateRequest struct {
	Code       string          `json:"code"`
	Kind       model.PromoKind `json:"kind"`
	Value      int64           `json:"value"`
	UsageLimit int             `json:"usage_limit"`
}

func (s *Server) handleCreatePromo(w http.ResponseWriter, r *http.Request) {
	var req promoCreateRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Kind == "" {
		req.Kind = model.PromoStars
	}
	p, err := s.deps.Promos.Create(r.Context(), strings.TrimSpace(req.Code), req.Kind, req.Value, req.UsageLimit)
	if err != nil {
		s.fail(w, r, "promo_create", err)
		return
	}
	metrics.IncAdminCommand("http_promo_create", "ok")
	writeJSON(w, http.StatusCreated, p)
}

type promoActiveRequest struct {
	Active bool `json:"active"`
}

func (s *Server) handleSetPromoActive(w http.ResponseWriter, r *http.Request) {
	var req promoActiveRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.deps.Promos.SetActive(r.Context(), chi.URLParam(r, "code"), req.Active); err != nil {
		s.fail(w, r, "promo_toggle", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeletePromo(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Promos.Delete(r.Context(), chi.URLParam(r, "code")); err != nil {
		s.fail(w, r, "promo_delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Templates.List(r.Context())
	if err != nil {
		s.fail(w, r, "templates", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type templateSaveRequest struct {
	Title    string                 `json:"title"`
	Pattern  string                 `json:"pattern"`
	Category model.TemplateCategory `json:"category"`
}

func (s *Server) handleSaveTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateSaveRequest
	if !decode(w, r, &req) {
		return
	}
	t, err := s.deps.Templates.Save(r.Context(), chi.URLParam(r, "id"), req.Title, req.Pattern, req.Category)
	if err != nil {
		s.fail(w, r, "template_save", err)
		return
	}
	metrics.IncAdminCommand("http_template_save", "ok")
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Templates.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, "template_delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type broadcastRequest struct {
	Message string `json:"message"`
}

type broadcastResponse struct {
	ID         string `json:"id"`
	Recipients int    `json:"recipients"`
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is empty")
		return
	}
	b, err := s.deps.Broadcast.BroadcastMessage(r.Context(), req.Message)
	if err != nil {
		s.fail(w, r, "broadcast", err)
		return
	}
	metrics.IncAdminCommand("http_broadcast", "ok")
	writeJSON(w, http.StatusAccepted, broadcastResponse{ID: b.ID, Recipients: b.Recipients})
}
