package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"codesync/internal/exec"
	"codesync/internal/metrics"
	"codesync/internal/models"
	"codesync/internal/persist"
	"codesync/internal/session"
	"codesync/internal/utils"
)

// CodeRunner is the execution collaborator boundary.
type CodeRunner interface {
	LangSpec(lang models.Language) (models.LanguageSpec, error)
	RunOnce(ctx context.Context, req models.RunRequest) (models.RunResult, error)
}

type Handlers struct {
	log      *zap.Logger
	hub      *session.Hub
	runner   CodeRunner
	store    persist.Store
	upgrader websocket.Upgrader
}

func NewHandlers(log *zap.Logger, hub *session.Hub, runner CodeRunner, store persist.Store) *Handlers {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handlers{
		log:      log,
		hub:      hub,
		runner:   runner,
		store:    store,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
}

func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

func (h *Handlers) ListLanguages(w http.ResponseWriter, _ *http.Request) {
	resp := make([]models.LanguageSpec, 0, len(models.SupportedLanguages()))
	for _, lang := range models.SupportedLanguages() {
		spec, err := h.runner.LangSpec(lang)
		if err != nil {
			continue
		}
		resp = append(resp, spec)
	}
	writeJSON(w, resp)
}

func (h *Handlers) RunOnce(w http.ResponseWriter, r *http.Request) {
	var req models.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 20*time.Second)
	defer cancel()

	out, err := h.runner.RunOnce(ctx, req)
	if err != nil {
		if errors.Is(err, exec.ErrUnsupportedLanguage) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, out)
}

// GetSession serves the language a browser reads before joining a room.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	meta, err := h.store.GetSessionMetadata(ctx, sessionID)
	if err != nil {
		if errors.Is(err, persist.ErrNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, meta)
}

/*** Collaboration WebSocket gateway ***/

// CollabWS owns one connection for its whole life: upgrade, route events to
// the joined room, and synthesize the leave on transport close. A connection
// belongs to at most one room at a time; events sent before a join, or naming
// a room other than the joined one, are ignored without a response.
func (h *Handlers) CollabWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	connID := uuid.New().String()
	client := session.NewClient(connID, conn)
	metrics.ConnectedClients.Inc()

	// A valid room token pins the display identity; everyone else is a guest.
	authName := ""
	if tok := r.URL.Query().Get("token"); tok != "" {
		if claims, err := utils.ValidateRoomToken(tok); err == nil {
			authName = claims.UserName
		} else {
			h.log.Info("ignoring invalid room token", zap.String("conn", connID))
		}
	}

	var room *session.Room
	defer func() {
		// Transport close without an explicit leaveRoom must have the same
		// presence effect; Leave is idempotent if both arrive.
		if room != nil {
			room.Leave(connID)
		}
		client.Close()
		metrics.ConnectedClients.Dec()
	}()

	for {
		var frame models.WSFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		metrics.EventsTotal.WithLabelValues(eventLabel(frame.Type)).Inc()

		switch frame.Type {
		case models.EvtJoin:
			var req models.JoinRequest
			unmarshalData(frame.Data, &req)
			if req.RoomID == "" {
				continue
			}
			name := req.UserName
			if authName != "" {
				name = authName
			}
			if name == "" {
				name = "Guest"
			}
			if room != nil && room.ID != req.RoomID {
				room.Leave(connID)
				room = nil
			}
			// Join can race room eviction; a closed handle refuses the event
			// and a fresh fetch gets (or creates) the live room.
			for attempt := 0; attempt < 3; attempt++ {
				candidate := h.hub.GetOrCreate(req.RoomID)
				if candidate.Join(client, name) {
					room = candidate
					break
				}
			}

		case models.EvtLeaveRoom:
			var req models.LeaveRequest
			unmarshalData(frame.Data, &req)
			if room == nil || req.RoomID != room.ID {
				continue
			}
			room.Leave(connID)
			room = nil

		case models.EvtCodeChange:
			var req models.CodeChange
			unmarshalData(frame.Data, &req)
			if room == nil || req.RoomID != room.ID {
				continue
			}
			if !room.ChangeCode(connID, req.Code) {
				room = nil
			}

		case models.EvtTyping:
			var req models.TypingNotice
			unmarshalData(frame.Data, &req)
			if room == nil || req.RoomID != room.ID {
				continue
			}
			if !room.Typing(connID) {
				room = nil
			}

		case models.EvtLanguageChange:
			var req models.LanguageChange
			unmarshalData(frame.Data, &req)
			if room == nil || req.RoomID != room.ID {
				continue
			}
			if !room.ChangeLanguage(connID, req.Language) {
				room = nil
			}

		case models.EvtSendMessage:
			var req models.SendMessageRequest
			unmarshalData(frame.Data, &req)
			if room == nil || req.RoomID != room.ID {
				continue
			}
			if !room.SendChat(connID, req.Message) {
				room = nil
			}

		default:
			// Unknown frames are protocol noise, not faults.
		}
	}
}

// eventLabel keeps the metric label set bounded against arbitrary frame types.
func eventLabel(typ string) string {
	switch typ {
	case models.EvtJoin, models.EvtLeaveRoom, models.EvtCodeChange,
		models.EvtTyping, models.EvtLanguageChange, models.EvtSendMessage:
		return typ
	}
	return "unknown"
}

func unmarshalData(in any, out any) {
	b, _ := json.Marshal(in)
	_ = json.Unmarshal(b, out)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
