package handlers

import (
	"errors"
	"net/http"
	"strings"

	"offer-dispatch/internal/apperr"
	"offer-dispatch/internal/domain"
	"offer-dispatch/internal/logx"
)

// OfferHandler serves candidate responses to offers.
type OfferHandler struct {
	offers responder
	logger logx.Logger
}

// NewOfferHandler creates an OfferHandler.
func NewOfferHandler(logger logx.Logger, offers responder) *OfferHandler {
	return &OfferHandler{offers: offers, logger: logger}
}

// Respond handles GET|POST /offers/respond?token=. Both methods act on the
// token; the link in the message is followed directly.
func (h *OfferHandler) Respond(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, bodyLimit)
	token := strings.TrimSpace(r.FormValue("token"))
	if token == "" {
		writeError(h.logger, w, r, http.StatusBadRequest, "token is required")
		return
	}
	res, err := h.offers.RespondToken(r.Context(), token)
	h.writeResolution(w, r, res, err)
}

// Reply handles POST /offers/replies with an inbound text message.
func (h *OfferHandler) Reply(w http.ResponseWriter, r *http.Request) {
	var req replyRequest
	if ok := decodeJSON(h.logger, w, r, &req); !ok {
		return
	}
	if strings.TrimSpace(req.From) == "" {
		writeError(h.logger, w, r, http.StatusBadRequest, "from is required")
		return
	}
	res, err := h.offers.RespondReply(r.Context(), req.From, req.Body)
	h.writeResolution(w, r, res, err)
}

func (h *OfferHandler) writeResolution(w http.ResponseWriter, r *http.Request, res domain.Resolution, err error) {
	switch {
	case err == nil:
	case errors.Is(err, apperr.ErrAlreadyResolved):
		res.Outcome = domain.OutcomeAlreadyHandled
	default:
		writeServiceError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, resolutionToResponse(res))
}
