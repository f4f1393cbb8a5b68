package handlers

import (
	"net/http"

	"offer-dispatch/internal/logx"
)

// SweepHandler triggers an expiry sweep on demand.
type SweepHandler struct {
	sweeper sweepRunner
	logger  logx.Logger
}

// NewSweepHandler creates a SweepHandler.
func NewSweepHandler(logger logx.Logger, s sweepRunner) *SweepHandler {
	return &SweepHandler{sweeper: s, logger: logger}
}

// Run handles POST /sweep and returns the run report.
func (h *SweepHandler) Run(w http.ResponseWriter, r *http.Request) {
	rep, err := h.sweeper.Run(r.Context())
	if err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, rep)
}
