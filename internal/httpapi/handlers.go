package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/discipline/internal/domain"
	"github.com/eliteGoblin/focusd/discipline/internal/infra"
	"github.com/eliteGoblin/focusd/discipline/internal/usecase"
)

const maxBody = 16 << 10

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toHealth(h.deps.Ledger.Health()))
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	now := h.deps.Clock.Now()
	st := toStatus(h.deps.Enforcer.Status(), h.deps.Ledger.Today(now), h.deps.Ledger.Health(), now)
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) handleForeground(w http.ResponseWriter, r *http.Request) {
	if h.deps.Pusher == nil {
		writeError(w, http.StatusNotFound, "foreground push is disabled")
		return
	}
	var req foregroundRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, foregroundResponse{App: h.deps.Pusher.Push(strings.TrimSpace(req.App))})
}

func (h *Handler) handleActive(w http.ResponseWriter, r *http.Request) {
	st := h.deps.Enforcer.Status()
	if st.Active == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, toPunishment(*st.Active))
}

func (h *Handler) handleInteract(w http.ResponseWriter, r *http.Request) {
	var req interactRequest
	if !decode(w, r, &req) {
		return
	}
	kind, ok := interactionKinds[req.Kind]
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown interaction kind "+req.Kind)
		return
	}

	accepted, err := h.deps.Enforcer.Interact(r.Context(), domain.Interaction{
		Kind:       kind,
		Transcript: req.Transcript,
		Confidence: req.Confidence,
	})
	if errors.Is(err, usecase.ErrNoActivePunishment) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, interactResponse{Accepted: accepted})
}

func (h *Handler) handleLockdown(w http.ResponseWriter, r *http.Request) {
	until := h.deps.Enforcer.Lockdown()
	h.logger.Info("emergency lockdown requested", zap.Time("until", until))
	writeJSON(w, http.StatusOK, lockdownResponse{Until: until})
}

// handleSummary serves a day summary. "today" is accepted for the current local day.
func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	if date == "today" {
		writeJSON(w, http.StatusOK, ToSummary(h.deps.Ledger.Today(h.deps.Clock.Now())))
		return
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	if sum, ok := h.deps.Ledger.Summary(date); ok {
		writeJSON(w, http.StatusOK, ToSummary(sum))
		return
	}
	if h.deps.Store == nil {
		writeError(w, http.StatusNotFound, "no summary for "+date)
		return
	}

	sum, err := h.deps.Store.GetSummary(r.Context(), date)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "no summary for "+date)
	case errors.Is(err, domain.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, ToSummary(*sum))
	}
}

func (h *Handler) handleBrotherhood(w http.ResponseWriter, r *http.Request) {
	if h.deps.Brotherhood == nil {
		writeError(w, http.StatusNotFound, "brotherhood is disabled")
		return
	}
	writeJSON(w, http.StatusOK, toBrotherhood(h.deps.Brotherhood.State()))
}

// handleSync is the partner side of HTTPTransport.Exchange: verify theirs, reply with ours.
func (h *Handler) handleSync(w http.ResponseWriter, r *http.Request) {
	if h.deps.Brotherhood == nil || h.deps.Signer == nil {
		writeError(w, http.StatusServiceUnavailable, "brotherhood is not paired")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	theirs, err := h.deps.Signer.Verify(strings.TrimSpace(string(body)))
	if err != nil {
		h.logger.Warn("rejected sync payload", zap.Error(err))
		writeError(w, http.StatusUnauthorized, "invalid sync payload")
		return
	}
	if theirs.DeviceID != h.deps.PartnerID {
		h.logger.Warn("sync from unexpected device", zap.String("device", theirs.DeviceID))
		writeError(w, http.StatusForbidden, "unexpected device")
		return
	}

	token, err := h.deps.Signer.Sign(h.deps.Brotherhood.LocalPayload())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", infra.ContentTypeJWT)
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, token)
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
