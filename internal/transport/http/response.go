package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/cwrk-planet/pointing-poker/internal/domain"
	"github.com/cwrk-planet/pointing-poker/internal/store"
	"github.com/cwrk-planet/pointing-poker/pkg/logger"
)

type envelope map[string]any

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write json response failed", slog.Any("err", err))
	}
}

// writeError: унифицированная ошибка (message + code).
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status, code := toHTTP(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		logger.FromContext(ctx).ErrorContext(ctx, "request failed", slog.Any("err", err))
		msg = http.StatusText(status)
	}
	writeJSON(w, status, envelope{
		"error": envelope{
			"message": msg,
			"code":    code,
		},
	})
}

func toHTTP(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		return http.StatusNotFound, "ROOM_NOT_FOUND"
	case errors.Is(err, domain.ErrInvalidRoomID):
		return http.StatusBadRequest, "INVALID_ROOM_ID"
	case errors.Is(err, store.ErrInvalidCursor):
		return http.StatusBadRequest, "INVALID_CURSOR"
	case errors.Is(err, domain.ErrIndexOutOfRange):
		return http.StatusBadRequest, "INDEX_OUT_OF_RANGE"
	case errors.Is(err, domain.ErrVotingClosed), errors.Is(err, domain.ErrNotAParticipant):
		return http.StatusConflict, "CONFLICT"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}
