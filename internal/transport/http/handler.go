package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cwrk-planet/pointing-poker/internal/domain"
	"github.com/cwrk-planet/pointing-poker/internal/service"
)

type RoomSvc interface {
	GetRoomState(ctx context.Context, roomID string) (domain.RoomState, error)
	ExportHistory(ctx context.Context, roomID string) (service.HistoryExport, error)
}

type Handler struct {
	rooms RoomSvc
	now   func() time.Time
}

func NewHandler(rooms RoomSvc) *Handler {
	return &Handler{rooms: rooms, now: time.Now}
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type RoomInfoResponse struct {
	RoomID       string `json:"roomId"`
	Exists       bool   `json:"exists"`
	Participants int    `json:"participants"`
}

// GET /health
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Timestamp: h.now().UTC()})
}

// GET /rooms/{id}: проверка ссылки на комнату до подключения по WS
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	id, err := domain.NormalizeRoomID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	resp := RoomInfoResponse{RoomID: id}
	st, err := h.rooms.GetRoomState(r.Context(), id)
	switch {
	case err == nil:
		resp.Exists = true
		resp.Participants = len(st.Participants)
	case !errors.Is(err, domain.ErrRoomNotFound):
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /rooms/{id}/history/export
func (h *Handler) ExportHistory(w http.ResponseWriter, r *http.Request) {
	exp, err := h.rooms.ExportHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	body, err := json.MarshalIndent(exp, "", "  ")
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+exp.FileName()+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
