package panel

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	panelmodel "github.com/calegria/mindpanel/backend/internal/model/panel"
	panelservice "github.com/calegria/mindpanel/backend/internal/service/panel"
	"github.com/calegria/mindpanel/backend/pkg/utils"
)

// Handler exposes the panel discussion engine over HTTP.
type Handler struct {
	orchestrator *panelservice.Orchestrator
	logger       *zap.Logger
}

// New creates the panel handler.
func New(orchestrator *panelservice.Orchestrator, logger *zap.Logger) *Handler {
	return &Handler{orchestrator: orchestrator, logger: logger}
}

// RegisterRoutes mounts the panel routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/panel/configs", h.handleListConfigs)
	r.Post("/panel/start", h.handleStart)
	r.Post("/panel/continue", h.handleContinue)
	r.Post("/panel/summarize", h.handleSummarize)
	r.Post("/panel/end", h.handleEnd)
}

// responsePayload is the wire shape of one panel response.
type responsePayload struct {
	Persona    string   `json:"persona"`
	Name       string   `json:"name"`
	Response   string   `json:"response"`
	Mood       string   `json:"mood"`
	References []string `json:"references"`
	AsciiArt   string   `json:"ascii_art,omitempty"`
	Sequence   int      `json:"sequence"`
	Outcome    string   `json:"outcome"`
	Timestamp  string   `json:"timestamp"`
}

func serializeResult(result panelservice.TurnResult) responsePayload {
	return responsePayload{
		Persona:    result.Response.PersonaID,
		Name:       result.Response.PersonaName,
		Response:   result.Response.Text,
		Mood:       string(result.Response.Mood),
		References: result.Response.References,
		AsciiArt:   result.Response.AsciiArt,
		Sequence:   result.Response.Sequence,
		Outcome:    string(result.Outcome),
		Timestamp:  result.Response.CreatedAt.Format(time.RFC3339),
	}
}

type moderatorPayload struct {
	Persona  string `json:"persona"`
	Response string `json:"response"`
	Mood     string `json:"mood"`
}

func serializeModerator(resp panelmodel.Response) moderatorPayload {
	return moderatorPayload{
		Persona:  resp.PersonaID,
		Response: resp.Text,
		Mood:     string(resp.Mood),
	}
}

type panelState struct {
	Active          bool  `json:"active"`
	ExchangeCount   int   `json:"exchange_count"`
	TotalPersonas   int   `json:"total_personas"`
	HasModerator    bool  `json:"has_moderator"`
	ShouldSummarize *bool `json:"should_summarize,omitempty"`
}

func (h *Handler) handleListConfigs(w http.ResponseWriter, r *http.Request) {
	h.orchestrator.SweepExpired()
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"configs": h.orchestrator.ListConfigs(),
	})
}

type startPayload struct {
	Message          string   `json:"message"`
	PersonaIDs       []string `json:"persona_ids"`
	PanelConfig      string   `json:"panel_config"`
	IncludeModerator *bool    `json:"include_moderator"`
	SkipPersonas     []string `json:"skip_personas"`
	Stream           bool     `json:"stream"`
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	h.orchestrator.SweepExpired()

	var payload startPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	includeModerator := true
	if payload.IncludeModerator != nil {
		includeModerator = *payload.IncludeModerator
	}

	req := panelservice.StartRequest{
		PersonaIDs:       payload.PersonaIDs,
		PanelConfigID:    payload.PanelConfig,
		IncludeModerator: includeModerator,
		Message:          payload.Message,
		SkipPersonaIDs:   payload.SkipPersonas,
	}

	if payload.Stream {
		h.streamStart(w, r, req)
		return
	}

	result, err := h.orchestrator.Start(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	body := map[string]any{
		"session_id":      result.SessionID,
		"panel_responses": serializeResults(result.Responses),
		"panel_state": panelState{
			Active:        true,
			ExchangeCount: result.ExchangeCount,
			TotalPersonas: result.ActivePersonaCount,
			HasModerator:  includeModerator,
		},
	}
	if result.ModeratorIntro != nil {
		body["moderator_intro"] = serializeModerator(*result.ModeratorIntro)
	}
	utils.RespondJSON(w, http.StatusOK, body)
}

func (h *Handler) streamStart(w http.ResponseWriter, r *http.Request, req panelservice.StartRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	utils.SetupSSEHeaders(w)

	req.OnSession = func(session panelmodel.Session) {
		utils.SendSSEEvent(w, flusher, "session", map[string]any{
			"session_id": session.ID,
			"panel_state": panelState{
				Active:        true,
				ExchangeCount: session.ExchangeCount,
				TotalPersonas: len(session.PersonaIDs),
				HasModerator:  session.IncludeModerator,
			},
		})
	}
	req.OnModeratorIntro = func(intro panelmodel.Response) {
		utils.SendSSEEvent(w, flusher, "moderator_intro", serializeModerator(intro))
	}
	req.OnResponse = func(result panelservice.TurnResult) {
		utils.SendSSEEvent(w, flusher, "panel_response", serializeResult(result))
	}

	result, err := h.orchestrator.Start(r.Context(), req)
	if err != nil {
		utils.SendSSEEvent(w, flusher, "error", map[string]string{"error": err.Error()})
		return
	}

	utils.SendSSEEvent(w, flusher, "panel_state", panelState{
		Active:        true,
		ExchangeCount: result.ExchangeCount,
		TotalPersonas: result.ActivePersonaCount,
		HasModerator:  req.IncludeModerator,
	})
	utils.SendSSEEvent(w, flusher, "done", map[string]any{})
}

type continuePayload struct {
	SessionID    string   `json:"session_id"`
	Message      string   `json:"message"`
	SkipPersonas []string `json:"skip_personas"`
	Stream       bool     `json:"stream"`
}

func (h *Handler) handleContinue(w http.ResponseWriter, r *http.Request) {
	h.orchestrator.SweepExpired()

	var payload continuePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.SessionID == "" {
		utils.RespondError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	if payload.Stream {
		h.streamContinue(w, r, payload)
		return
	}

	result, err := h.orchestrator.Continue(r.Context(), payload.SessionID, payload.Message, payload.SkipPersonas, nil)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"session_id":      payload.SessionID,
		"panel_responses": serializeResults(result.Responses),
		"panel_state":     continueState(h.orchestrator, payload.SessionID, result),
	})
}

// continueState rebuilds the wire panel state from the stored session, so the
// reported composition stays correct even on turns with skipped personas.
func continueState(orchestrator *panelservice.Orchestrator, sessionID string, result panelservice.ContinueResult) panelState {
	shouldSummarize := result.ShouldSummarize
	state := panelState{
		Active:          true,
		ExchangeCount:   result.ExchangeCount,
		TotalPersonas:   len(result.Responses),
		ShouldSummarize: &shouldSummarize,
	}
	if session, err := orchestrator.Session(sessionID); err == nil {
		state.Active = session.Status == panelmodel.StatusActive
		state.TotalPersonas = len(session.PersonaIDs)
		state.HasModerator = session.IncludeModerator
	}
	return state
}

func (h *Handler) streamContinue(w http.ResponseWriter, r *http.Request, payload continuePayload) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	utils.SetupSSEHeaders(w)

	emit := func(result panelservice.TurnResult) {
		utils.SendSSEEvent(w, flusher, "panel_response", serializeResult(result))
	}

	result, err := h.orchestrator.Continue(r.Context(), payload.SessionID, payload.Message, payload.SkipPersonas, emit)
	if err != nil {
		utils.SendSSEEvent(w, flusher, "error", map[string]string{"error": err.Error()})
		return
	}

	utils.SendSSEEvent(w, flusher, "panel_state", continueState(h.orchestrator, payload.SessionID, result))
	utils.SendSSEEvent(w, flusher, "done", map[string]any{})
}

type summarizePayload struct {
	SessionID string `json:"session_id"`
}

func (h *Handler) handleSummarize(w http.ResponseWriter, r *http.Request) {
	h.orchestrator.SweepExpired()

	var payload summarizePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.SessionID == "" {
		utils.RespondError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	result, err := h.orchestrator.Summarize(r.Context(), payload.SessionID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	keyInsights := result.KeyInsights
	if keyInsights == nil {
		keyInsights = []string{}
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"moderator_summary": map[string]any{
			"persona":           result.Summary.PersonaID,
			"response":          result.Summary.Text,
			"mood":              string(result.Summary.Mood),
			"key_insights":      keyInsights,
			"credited_personas": result.Summary.References,
		},
	})
}

type endPayload struct {
	SessionID         string `json:"session_id"`
	ReturnToPersonaID string `json:"return_to_persona_id"`
}

func (h *Handler) handleEnd(w http.ResponseWriter, r *http.Request) {
	h.orchestrator.SweepExpired()

	var payload endPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.SessionID == "" {
		utils.RespondError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	result, err := h.orchestrator.End(payload.SessionID, payload.ReturnToPersonaID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"final_summary": map[string]any{
			"total_exchanges":  result.TotalExchanges,
			"insights_count":   result.ResponseCount,
			"farewell_message": result.FarewellMessage,
		},
		"active_persona": result.ActivePersona,
	})
}

func serializeResults(results []panelservice.TurnResult) []responsePayload {
	out := make([]responsePayload, 0, len(results))
	for _, result := range results {
		out = append(out, serializeResult(result))
	}
	return out
}

// respondServiceError maps engine sentinels onto HTTP status codes.
func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, panelservice.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, panelservice.ErrSessionBusy):
		utils.RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, panelservice.ErrInvalidComposition),
		errors.Is(err, panelservice.ErrEmptyUserMessage),
		errors.Is(err, panelservice.ErrInsufficientHistory),
		errors.Is(err, panelservice.ErrSessionNotActive),
		errors.Is(err, panelmodel.ErrConfigNotFound):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("panel operation failed", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
	}
}
