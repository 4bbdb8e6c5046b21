package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hongminglow/barrio-seguro-be/internal/assistant"
	"github.com/hongminglow/barrio-seguro-be/internal/auth"
	"github.com/hongminglow/barrio-seguro-be/internal/board"
	"github.com/hongminglow/barrio-seguro-be/internal/http/respond"
	"github.com/hongminglow/barrio-seguro-be/internal/middleware"
	"github.com/hongminglow/barrio-seguro-be/internal/models/dto"
)

// AssistantHandler relays chat, security plan and info agent requests to a
// Generator.
type AssistantHandler struct {
	generator assistant.Generator
	board     *board.Service
	logger    *slog.Logger
}

// NewAssistantHandler constructs the handler. svc supplies chat history.
func NewAssistantHandler(generator assistant.Generator, svc *board.Service, logger *slog.Logger) *AssistantHandler {
	return &AssistantHandler{generator: generator, board: svc, logger: logger}
}

// Register attaches the assistant routes. They must sit behind RequireAuth.
func (h *AssistantHandler) Register(r chi.Router) {
	r.Post("/chat", h.handleChat)
	r.Post("/security-plan", h.handleSecurityPlan)
	r.Post("/info-agent", h.handleInfoAgent)
}

func (h *AssistantHandler) handleChat(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFrom(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, respond.MsgInvalidToken)
		return
	}
	var req dto.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.MsgInvalidJSON)
		return
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		respond.Error(w, http.StatusBadRequest, "query is required")
		return
	}

	// Chat still answers without board context.
	var history []assistant.Turn
	recent, err := h.board.Recent(r.Context(), claims.District)
	if err != nil {
		h.logger.WarnContext(r.Context(), "chat history unavailable", "district", claims.District, "error", err)
	}
	for _, m := range recent {
		history = append(history, assistant.Turn{Author: m.FullName, Content: m.MessageContent})
	}

	h.generate(w, r, assistant.Request{
		Task: assistant.TaskChat,
		Inputs: map[string]string{
			"query":    query,
			"district": claims.District,
		},
		History: history,
	})
}

func (h *AssistantHandler) handleSecurityPlan(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFrom(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, respond.MsgInvalidToken)
		return
	}
	var req dto.SecurityPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.MsgInvalidJSON)
		return
	}
	topic := strings.TrimSpace(req.MainTopic)
	if topic == "" {
		respond.Error(w, http.StatusBadRequest, "mainTopic is required")
		return
	}

	inputs := locationInputs(claims, req.Department, req.Province, req.District)
	inputs["mainTopic"] = topic
	inputs["additionalDescription"] = strings.TrimSpace(req.AdditionalDescription)
	h.generate(w, r, assistant.Request{Task: assistant.TaskSecurityPlan, Inputs: inputs})
}

func (h *AssistantHandler) handleInfoAgent(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFrom(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, respond.MsgInvalidToken)
		return
	}
	var req dto.InfoAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.MsgInvalidJSON)
		return
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		respond.Error(w, http.StatusBadRequest, "description is required")
		return
	}

	inputs := locationInputs(claims, "", "", "")
	inputs["description"] = description
	h.generate(w, r, assistant.Request{Task: assistant.TaskInfoAgent, Inputs: inputs})
}

func (h *AssistantHandler) generate(w http.ResponseWriter, r *http.Request, req assistant.Request) {
	out, err := h.generator.Generate(r.Context(), req)
	if err != nil {
		if errors.Is(err, assistant.ErrUnavailable) {
			respond.Error(w, http.StatusServiceUnavailable, respond.MsgGeneratorDown)
			return
		}
		h.logger.ErrorContext(r.Context(), "generation failed", "task", req.Task, "error", err)
		respond.Error(w, http.StatusBadGateway, respond.MsgGeneratorFailed)
		return
	}
	respond.JSON(w, http.StatusOK, "ok", dto.AssistantResponse{Text: out.Text, Data: out.Data})
}

// locationInputs prefers explicit values and falls back to the caller's claims.
func locationInputs(claims auth.Claims, department, province, district string) map[string]string {
	pick := func(v, fallback string) string {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
		return fallback
	}
	return map[string]string{
		"department": pick(department, claims.Department),
		"province":   pick(province, claims.Province),
		"district":   pick(district, claims.District),
	}
}
