package http

import (
	"net/http"
	"strings"

	"spacegate/internal/core/domain"
	"spacegate/internal/core/ports"
	"spacegate/internal/core/services"
	"spacegate/internal/infrastructure/middleware"
	"spacegate/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type SpaceHandler struct {
	spaces     services.SpaceService
	ledger     ports.ParticipationLedger
	summarizer services.GatekeeperSummarizer
	logger     *zap.SugaredLogger
}

func NewSpaceHandler(
	spaces services.SpaceService,
	ledger ports.ParticipationLedger,
	summarizer services.GatekeeperSummarizer,
	logger *zap.SugaredLogger,
) *SpaceHandler {
	return &SpaceHandler{
		spaces:     spaces,
		ledger:     ledger,
		summarizer: summarizer,
		logger:     logger,
	}
}

func (h *SpaceHandler) SetupRoutes(router gin.IRouter, authService services.AuthService) {
	public := router.Group("/api/v1/spaces")
	public.Use(middleware.OptionalAuthMiddleware(authService))
	{
		public.GET("/:id", h.GetSpace)
		public.GET("/:id/gatekeeper", h.GetGatekeeper)
	}

	api := router.Group("/api/v1/spaces")
	api.Use(middleware.AuthMiddleware(authService))
	{
		api.POST("", h.CreateSpace)
		api.POST("/:id/join", h.Join)
		api.DELETE("/:id/participants/me", h.Leave)
		api.POST("/:id/admission", h.CheckAdmission)

		owner := api.Group("")
		owner.Use(middleware.SpaceOwnerMiddleware(authService))
		owner.PATCH("/:id/status", h.UpdateStatus)
		owner.PUT("/:id/gatekeeper", h.UpdateGatekeeper)
	}
}

type CreateSpaceRequest struct {
	Name            string                    `json:"name" binding:"required,max=100"`
	MaxParticipants int                       `json:"max_participants"`
	Gatekeeper      *domain.GatekeeperRuleSet `json:"gatekeeper"`
}

type UpdateStatusRequest struct {
	Status domain.SpaceStatus `json:"status" binding:"required"`
}

func (h *SpaceHandler) CreateSpace(c *gin.Context) {
	caller, ok := applicant(c)
	if !ok {
		return
	}

	var req CreateSpaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	ctx := c.Request.Context()
	space, err := h.spaces.CreateSpace(ctx, caller.UserID, strings.TrimSpace(req.Name), req.MaxParticipants)
	if err != nil {
		c.Error(toAppError(err, "failed to create space"))
		return
	}

	if req.Gatekeeper != nil {
		space, err = h.spaces.UpdateGatekeeper(ctx, space.ID, req.Gatekeeper)
		if err != nil {
			c.Error(toAppError(err, "failed to set gatekeeper"))
			return
		}
	}

	c.JSON(http.StatusCreated, gin.H{"space": space})
}

// GetSpace omits the raw rule set; the landing page reads the summary.
func (h *SpaceHandler) GetSpace(c *gin.Context) {
	space, err := h.spaces.GetSpace(c.Request.Context(), domain.SpaceID(c.Param("id")))
	if err != nil {
		c.Error(toAppError(err, "failed to load space"))
		return
	}

	view := *space
	view.Gatekeeper = nil
	c.JSON(http.StatusOK, gin.H{"space": view})
}

func (h *SpaceHandler) UpdateStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	space, err := h.spaces.UpdateStatus(c.Request.Context(), domain.SpaceID(c.Param("id")), req.Status)
	if err != nil {
		c.Error(toAppError(err, "failed to update status"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"space": space})
}

func (h *SpaceHandler) UpdateGatekeeper(c *gin.Context) {
	var rules domain.GatekeeperRuleSet
	if err := c.ShouldBindJSON(&rules); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	space, err := h.spaces.UpdateGatekeeper(c.Request.Context(), domain.SpaceID(c.Param("id")), &rules)
	if err != nil {
		c.Error(toAppError(err, "failed to update gatekeeper"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"gatekeeper": space.Gatekeeper})
}

func (h *SpaceHandler) GetGatekeeper(c *gin.Context) {
	space, err := h.spaces.GetSpace(c.Request.Context(), domain.SpaceID(c.Param("id")))
	if err != nil {
		c.Error(toAppError(err, "failed to load space"))
		return
	}
	c.JSON(http.StatusOK, h.summarizer.Summarize(c.Request.Context(), space))
}

func (h *SpaceHandler) Join(c *gin.Context) {
	caller, ok := applicant(c)
	if !ok {
		return
	}
	spaceID := domain.SpaceID(c.Param("id"))

	decision, err := h.ledger.Join(c.Request.Context(), spaceID, caller)
	if err != nil {
		c.Error(toAppError(err, "failed to join space"))
		return
	}
	if !decision.Allowed {
		h.logger.Debugw("join denied",
			"space_id", spaceID,
			"user_id", caller.UserID,
			"reason", decision.Reason,
			"detail", decision.Detail,
		)
		c.Error(decisionError(decision))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "joined",
		"space_id": spaceID,
	})
}

func (h *SpaceHandler) Leave(c *gin.Context) {
	caller, ok := applicant(c)
	if !ok {
		return
	}

	if err := h.ledger.Leave(c.Request.Context(), domain.SpaceID(c.Param("id")), caller.UserID); err != nil {
		c.Error(toAppError(err, "failed to leave space"))
		return
	}
	c.Status(http.StatusNoContent)
}

// CheckAdmission is the dry-run: the decision is the response body, allowed
// or not.
func (h *SpaceHandler) CheckAdmission(c *gin.Context) {
	caller, ok := applicant(c)
	if !ok {
		return
	}

	decision, err := h.ledger.Check(c.Request.Context(), domain.SpaceID(c.Param("id")), caller)
	if err != nil {
		c.Error(toAppError(err, "failed to evaluate admission"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"allowed":   decision.Allowed,
		"reason":    decision.Reason,
		"provider":  decision.Provider,
		"retryable": decision.Reason.Retryable(),
	})
}
