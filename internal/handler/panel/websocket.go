package panel

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	panelmodel "github.com/calegria/mindpanel/backend/internal/model/panel"
	panelservice "github.com/calegria/mindpanel/backend/internal/service/panel"
)

// WebSocketHandler drives a panel discussion over a single socket.
type WebSocketHandler struct {
	orchestrator *panelservice.Orchestrator
	logger       *zap.Logger
	upgrader     websocket.Upgrader
}

// NewWebSocketHandler creates the panel websocket handler.
func NewWebSocketHandler(orchestrator *panelservice.Orchestrator, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		orchestrator: orchestrator,
		logger:       logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterWebSocketRoutes mounts the socket endpoint.
func (h *WebSocketHandler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/panel/ws", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type startMessage struct {
	Message          string   `json:"message"`
	PersonaIDs       []string `json:"persona_ids"`
	PanelConfig      string   `json:"panel_config"`
	IncludeModerator *bool    `json:"include_moderator"`
	SkipPersonas     []string `json:"skip_personas"`
}

type continueMessage struct {
	Message      string   `json:"message"`
	SkipPersonas []string `json:"skip_personas"`
}

type endMessage struct {
	ReturnToPersonaID string `json:"return_to_persona_id"`
}

func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	go h.pingLoop(ctx, conn)

	h.send(conn, "", "connected", map[string]any{"protocol": "panel/1"})

	// The socket binds to the first session it starts or addresses.
	sessionID := ""

	for {
		select {
		case <-ctx.Done():
			return
		default:
			var msg inboundMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					h.logger.Warn("websocket read error", zap.Error(err))
				}
				return
			}

			conn.SetReadDeadline(time.Now().Add(60 * time.Second))

			if msg.SessionID != "" {
				if sessionID != "" && msg.SessionID != sessionID {
					h.sendError(conn, sessionID, "session mismatch")
					continue
				}
				sessionID = msg.SessionID
			}

			sessionID = h.handleMessage(ctx, conn, sessionID, &msg)
		}
	}
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, conn *websocket.Conn, sessionID string, msg *inboundMessage) string {
	h.orchestrator.SweepExpired()

	switch msg.Type {
	case "start":
		return h.handleStartMessage(ctx, conn, msg.Data)
	case "continue":
		h.handleContinueMessage(ctx, conn, sessionID, msg.Data)
	case "summarize":
		h.handleSummarizeMessage(ctx, conn, sessionID)
	case "end":
		h.handleEndMessage(conn, sessionID, msg.Data)
	case "ping":
		h.send(conn, sessionID, "pong", nil)
	default:
		h.sendError(conn, sessionID, "unsupported message type: "+msg.Type)
	}
	return sessionID
}

func (h *WebSocketHandler) handleStartMessage(ctx context.Context, conn *websocket.Conn, raw json.RawMessage) string {
	var payload startMessage
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.sendError(conn, "", "invalid start payload")
		return ""
	}

	includeModerator := true
	if payload.IncludeModerator != nil {
		includeModerator = *payload.IncludeModerator
	}

	sessionID := ""
	req := panelservice.StartRequest{
		PersonaIDs:       payload.PersonaIDs,
		PanelConfigID:    payload.PanelConfig,
		IncludeModerator: includeModerator,
		Message:          payload.Message,
		SkipPersonaIDs:   payload.SkipPersonas,
		OnSession: func(session panelmodel.Session) {
			sessionID = session.ID
			h.send(conn, session.ID, "session", map[string]any{
				"session_id": session.ID,
				"panel_state": panelState{
					Active:        true,
					ExchangeCount: session.ExchangeCount,
					TotalPersonas: len(session.PersonaIDs),
					HasModerator:  session.IncludeModerator,
				},
			})
		},
		OnModeratorIntro: func(intro panelmodel.Response) {
			h.send(conn, sessionID, "moderator_intro", serializeModerator(intro))
		},
		OnResponse: func(result panelservice.TurnResult) {
			h.send(conn, sessionID, "panel_response", serializeResult(result))
		},
	}

	result, err := h.orchestrator.Start(ctx, req)
	if err != nil {
		h.sendError(conn, sessionID, err.Error())
		return sessionID
	}

	h.send(conn, result.SessionID, "panel_state", panelState{
		Active:        true,
		ExchangeCount: result.ExchangeCount,
		TotalPersonas: result.ActivePersonaCount,
		HasModerator:  includeModerator,
	})
	h.send(conn, result.SessionID, "done", nil)
	return result.SessionID
}

func (h *WebSocketHandler) handleContinueMessage(ctx context.Context, conn *websocket.Conn, sessionID string, raw json.RawMessage) {
	if sessionID == "" {
		h.sendError(conn, "", "sessionId is required")
		return
	}

	var payload continueMessage
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.sendError(conn, sessionID, "invalid continue payload")
		return
	}

	emit := func(result panelservice.TurnResult) {
		h.send(conn, sessionID, "panel_response", serializeResult(result))
	}

	result, err := h.orchestrator.Continue(ctx, sessionID, payload.Message, payload.SkipPersonas, emit)
	if err != nil {
		h.sendError(conn, sessionID, err.Error())
		return
	}

	h.send(conn, sessionID, "panel_state", continueState(h.orchestrator, sessionID, result))
	h.send(conn, sessionID, "done", nil)
}

func (h *WebSocketHandler) handleSummarizeMessage(ctx context.Context, conn *websocket.Conn, sessionID string) {
	if sessionID == "" {
		h.sendError(conn, "", "sessionId is required")
		return
	}

	result, err := h.orchestrator.Summarize(ctx, sessionID)
	if err != nil {
		h.sendError(conn, sessionID, err.Error())
		return
	}

	keyInsights := result.KeyInsights
	if keyInsights == nil {
		keyInsights = []string{}
	}
	h.send(conn, sessionID, "moderator_summary", map[string]any{
		"persona":           result.Summary.PersonaID,
		"response":          result.Summary.Text,
		"mood":              string(result.Summary.Mood),
		"key_insights":      keyInsights,
		"credited_personas": result.Summary.References,
	})
	h.send(conn, sessionID, "done", nil)
}

func (h *WebSocketHandler) handleEndMessage(conn *websocket.Conn, sessionID string, raw json.RawMessage) {
	if sessionID == "" {
		h.sendError(conn, "", "sessionId is required")
		return
	}

	var payload endMessage
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			h.sendError(conn, sessionID, "invalid end payload")
			return
		}
	}

	result, err := h.orchestrator.End(sessionID, payload.ReturnToPersonaID)
	if err != nil {
		h.sendError(conn, sessionID, err.Error())
		return
	}

	h.send(conn, sessionID, "session_ended", map[string]any{
		"final_summary": map[string]any{
			"total_exchanges":  result.TotalExchanges,
			"insights_count":   result.ResponseCount,
			"farewell_message": result.FarewellMessage,
		},
		"active_persona": result.ActivePersona,
	})
}

func (h *WebSocketHandler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}

func (h *WebSocketHandler) send(conn *websocket.Conn, sessionID, msgType string, data any) {
	msg := outgoingMessage{
		Type:      msgType,
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := conn.WriteJSON(msg); err != nil {
		h.logger.Warn("websocket write failed", zap.Error(err))
	}
}

func (h *WebSocketHandler) sendError(conn *websocket.Conn, sessionID, message string) {
	h.send(conn, sessionID, "error", map[string]string{"error": message})
}
