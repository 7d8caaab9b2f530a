package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/starford/lectorlips/internal/apperr"
	"github.com/starford/lectorlips/internal/keyframe"
	"github.com/starford/lectorlips/internal/viseme"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// writeError maps domain errors onto status codes. Unknown errors are
// logged and reported as 500 without detail.
func writeError(w http.ResponseWriter, op string, err error) {
	var numErr *strconv.NumError
	switch {
	case errors.Is(err, keyframe.ErrMissingFrameRate),
		errors.Is(err, keyframe.ErrInvalidFrameRate),
		errors.Is(err, keyframe.ErrMissingKeyframes),
		errors.Is(err, keyframe.ErrMalformedKeyframe),
		errors.Is(err, apperr.ErrInvalidInput),
		errors.Is(err, apperr.ErrInvalidArguments),
		errors.As(err, &numErr):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	case errors.Is(err, viseme.ErrMissingMapping), errors.Is(err, viseme.ErrEmptyMapping):
		writeJSON(w, http.StatusPreconditionFailed, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
