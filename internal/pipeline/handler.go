package pipeline

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"tailor-backend/internal/llm"
	"tailor-backend/internal/shared/server/middleware"
	"tailor-backend/internal/shared/server/respond"
)

// Handler exposes the tailoring pipeline over HTTP.
type Handler struct {
	Service *Service
}

// NewHandler constructs a pipeline handler.
func NewHandler(service *Service) *Handler {
	return &Handler{Service: service}
}

// RegisterRoutes mounts the session routes on the given router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/sessions", h.Tailor)
	rg.POST("/sessions/:id/optimize", h.Optimize)
	rg.POST("/sessions/:id/evaluate", h.Evaluate)
	rg.GET("/sessions/:id/rounds", h.Rounds)
	rg.GET("/sessions/:id/rounds/:number", h.Round)
	rg.POST("/sessions/:id/rounds/:number/restore", h.Restore)
	rg.DELETE("/sessions/:id", h.Abandon)
}

// Tailor opens a session: generates and evaluates round 1 from the
// caller's base resume and the posted job description.
func (h *Handler) Tailor(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	role := middleware.UserRoleFromContext(c)

	var req tailorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "invalid_request", "Invalid JSON body", nil)
		return
	}

	result, err := h.Service.Tailor(c.Request.Context(), userID, role, req.JobDescription, req.DocumentID)
	if err != nil {
		h.renderError(c, err)
		return
	}

	resp := TailorResponse{
		SessionID: result.SessionID,
		Round:     toRoundPayload(result.Round),
		Billed:    result.Billed,
	}
	if result.Billed {
		balance := result.Balance
		resp.Balance = &balance
	}
	respond.JSON(c, http.StatusCreated, resp)
}

// Optimize appends the next round, revised from the current one.
func (h *Handler) Optimize(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	result, err := h.Service.Optimize(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}

	respond.OK(c, OptimizeResponse{
		SessionID: result.SessionID,
		Round:     toRoundPayload(result.Round),
	})
}

// Evaluate re-scores a document without appending a round. An empty
// body scores the session's current round.
func (h *Handler) Evaluate(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	var req evaluateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.Error(c, http.StatusBadRequest, "invalid_request", "Invalid JSON body", nil)
			return
		}
	}

	eval, err := h.Service.Evaluate(c.Request.Context(), userID, c.Param("id"), req.Document)
	if err != nil {
		h.renderError(c, err)
		return
	}
	respond.OK(c, toEvaluationPayload(eval))
}

// Rounds lists the session's ledger.
func (h *Handler) Rounds(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	rounds, current, err := h.Service.Rounds(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}

	respond.OK(c, RoundsResponse{
		SessionID:    c.Param("id"),
		CurrentRound: current,
		Rounds:       toRoundPayloads(rounds),
	})
}

// Round returns one round by number.
func (h *Handler) Round(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	number, err := strconv.Atoi(c.Param("number"))
	if err != nil || number < 1 {
		respond.Error(c, http.StatusBadRequest, "invalid_request", "Round number must be a positive integer", nil)
		return
	}

	round, err := h.Service.Round(c.Request.Context(), userID, c.Param("id"), number)
	if err != nil {
		h.renderError(c, err)
		return
	}
	respond.OK(c, toRoundPayload(round))
}

// Restore moves the session's current pointer to an earlier round.
func (h *Handler) Restore(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	number, err := strconv.Atoi(c.Param("number"))
	if err != nil || number < 1 {
		respond.Error(c, http.StatusBadRequest, "invalid_request", "Round number must be a positive integer", nil)
		return
	}

	round, err := h.Service.Restore(c.Request.Context(), userID, c.Param("id"), number)
	if err != nil {
		h.renderError(c, err)
		return
	}

	respond.OK(c, RestoreResponse{
		SessionID:    c.Param("id"),
		CurrentRound: round.Number,
		Round:        toRoundPayload(round),
	})
}

// Abandon drops the session.
func (h *Handler) Abandon(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	if err := h.Service.Abandon(c.Request.Context(), userID, c.Param("id")); err != nil {
		h.renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) renderError(c *gin.Context, err error) {
	var denied *AdmissionDeniedError
	if errors.As(err, &denied) {
		respond.Error(c, http.StatusPaymentRequired, "payment_required", "No credits remaining", gin.H{
			"balance": denied.Balance,
			"plans":   denied.Plans,
		})
		return
	}

	var malformed *MalformedEvaluationError
	if errors.As(err, &malformed) {
		respond.Error(c, http.StatusBadGateway, "malformed_evaluation", "Evaluator returned an unreadable response", nil)
		return
	}

	var provider *llm.ProviderError
	if errors.As(err, &provider) {
		respond.Error(c, http.StatusBadGateway, "provider_error", "Generation provider is unavailable", gin.H{
			"kind": string(provider.Kind),
		})
		return
	}

	switch {
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "invalid_request", err.Error(), nil)
	case errors.Is(err, ErrSessionNotFound):
		respond.Error(c, http.StatusNotFound, "session_not_found", "Session not found", nil)
	case errors.Is(err, ErrRoundNotFound):
		respond.Error(c, http.StatusNotFound, "round_not_found", "Round not found", nil)
	case errors.Is(err, ErrMissingBaseDocument):
		respond.Error(c, http.StatusConflict, "missing_base_document", "Upload a base resume before tailoring", nil)
	case errors.Is(err, ErrIterationCap):
		respond.Error(c, http.StatusConflict, "iteration_cap", "Session reached its round limit", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "Something went wrong", nil)
	}
}
