package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"offer-dispatch/internal/apperr"
	"offer-dispatch/internal/logx"
)

const bodyLimit = 1 << 20

type errResponse struct {
	Error string `json:"error"`
}

func reqLogger(logger logx.Logger, r *http.Request) logx.Logger {
	if logger == nil {
		logger = logx.Nop()
	}
	if id := middleware.GetReqID(r.Context()); id != "" {
		return logger.With(logx.String("request_id", id))
	}
	return logger
}

func writeJSON(logger logx.Logger, w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		reqLogger(logger, r).Warn("json encode failed", logx.Err(err))
	}
}

func writeError(logger logx.Logger, w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(logger, w, r, status, errResponse{Error: msg})
}

// writeServiceError maps a service error onto a status code.
func writeServiceError(logger logx.Logger, w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	l := reqLogger(logger, r)
	switch {
	case status >= http.StatusInternalServerError:
		l.Error("request failed", logx.Int("status", status), logx.Err(err))
	case status != http.StatusOK:
		l.Info("request rejected", logx.Int("status", status), logx.Err(err))
	}
	if status == http.StatusOK {
		writeJSON(logger, w, r, status, messageResponse{Message: msg})
		return
	}
	writeError(logger, w, r, status, msg)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, apperr.ErrAlreadyResolved):
		return http.StatusOK, "already handled"
	case errors.Is(err, apperr.ErrInvalidToken), errors.Is(err, apperr.ErrExpired):
		return http.StatusGone, "this link is no longer valid"
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest, validationMessage(err)
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, apperr.ErrExternalSync):
		return http.StatusBadGateway, "dispatch provider unavailable, operators notified"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// validationMessage exposes the validation detail; it never carries
// internal state.
func validationMessage(err error) string {
	if err == nil {
		return "invalid input"
	}
	return err.Error()
}

func decodeJSON[T any](logger logx.Logger, w http.ResponseWriter, r *http.Request, dst *T) bool {
	r.Body = http.MaxBytesReader(w, r.Body, bodyLimit)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		writeError(logger, w, r, http.StatusBadRequest, "invalid json")
		return false
	}
	if err := dec.Decode(new(struct{})); err != io.EOF {
		writeError(logger, w, r, http.StatusBadRequest, "invalid json: trailing data")
		return false
	}
	return true
}

func idFromURL(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}
