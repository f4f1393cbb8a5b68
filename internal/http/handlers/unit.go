package handlers

import (
	"net/http"
	"strings"

	"offer-dispatch/internal/apperr"
	"offer-dispatch/internal/logx"
)

// UnitHandler serves the operator and booking-system endpoints on units.
type UnitHandler struct {
	intake    unitCreator
	units     unitReader
	reconfirm reconfirmer
	cancel    canceller
	logger    logx.Logger
}

// NewUnitHandler creates a UnitHandler.
func NewUnitHandler(logger logx.Logger, in unitCreator, units unitReader, rc reconfirmer, c canceller) *UnitHandler {
	return &UnitHandler{intake: in, units: units, reconfirm: rc, cancel: c, logger: logger}
}

// Create handles POST /units. It answers 201 for a new unit and 200 when
// the reference was already known.
func (h *UnitHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUnitRequest
	if ok := decodeJSON(h.logger, w, r, &req); !ok {
		return
	}
	u, created, err := h.intake.Create(r.Context(), req.toEvent())
	if err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(h.logger, w, r, status, unitToResponse(u))
}

// Get handles GET /units/{id}.
func (h *UnitHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r, "id")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid id")
		return
	}
	u, err := h.units.Get(r.Context(), id)
	switch {
	case err != nil:
		writeServiceError(h.logger, w, r, err)
	case u == nil:
		writeServiceError(h.logger, w, r, apperr.ErrNotFound)
	default:
		writeJSON(h.logger, w, r, http.StatusOK, unitToResponse(u))
	}
}

// ScheduleChange handles POST /units/{id}/schedule-change.
func (h *UnitHandler) ScheduleChange(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r, "id")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid id")
		return
	}
	var req scheduleChangeRequest
	if ok := decodeJSON(h.logger, w, r, &req); !ok {
		return
	}
	u, err := h.reconfirm.Reconfirm(r.Context(), id, req.toModel())
	if err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, unitToResponse(u))
}

// Cancel handles POST /units/{id}/cancel. The body is optional.
func (h *UnitHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r, "id")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid id")
		return
	}
	var req cancelRequest
	if r.ContentLength != 0 {
		if ok := decodeJSON(h.logger, w, r, &req); !ok {
			return
		}
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "cancelled by operator"
	}
	if err := h.cancel.Cancel(r.Context(), id, reason); err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, messageResponse{Message: "cancelled"})
}
