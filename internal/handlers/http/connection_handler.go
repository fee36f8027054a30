package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"spacegate/internal/core/domain"
	"spacegate/internal/core/ports"
	"spacegate/internal/core/services"
	"spacegate/internal/infrastructure/middleware"
	apperrors "spacegate/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var connectableProviders = []domain.Provider{domain.ProviderYouTube, domain.ProviderTwitch}

// ConnectionHandler manages the caller's linked provider accounts. Responses
// carry status only, never tokens.
type ConnectionHandler struct {
	vault  ports.TokenVault
	logger *zap.SugaredLogger
}

func NewConnectionHandler(vault ports.TokenVault, logger *zap.SugaredLogger) *ConnectionHandler {
	return &ConnectionHandler{
		vault:  vault,
		logger: logger,
	}
}

func (h *ConnectionHandler) SetupRoutes(router gin.IRouter, authService services.AuthService) {
	api := router.Group("/api/v1/connections")
	api.Use(middleware.AuthMiddleware(authService))
	{
		api.GET("", h.ListConnections)
		api.GET("/:provider", h.GetConnection)
		api.PUT("/:provider", h.Connect)
		api.DELETE("/:provider", h.Disconnect)
	}
}

// ConnectRequest is what the sign-in callback hands over after a successful
// third-party authorization.
type ConnectRequest struct {
	AccessToken string     `json:"access_token" binding:"required,max=4096"`
	Scopes      []string   `json:"scopes"`
	ExpiresAt   *time.Time `json:"expires_at"`
	ExpiresIn   int64      `json:"expires_in"`
}

type ConnectionView struct {
	Provider  domain.Provider         `json:"provider"`
	Status    domain.CredentialStatus `json:"status"`
	ExpiresAt *time.Time              `json:"expires_at,omitempty"`
	Scopes    []string                `json:"scopes,omitempty"`
}

func (h *ConnectionHandler) ListConnections(c *gin.Context) {
	caller, ok := applicant(c)
	if !ok {
		return
	}

	views := make([]ConnectionView, 0, len(connectableProviders))
	for _, provider := range connectableProviders {
		view, err := h.view(c, caller.UserID, provider)
		if err != nil {
			c.Error(toAppError(err, "failed to load connections"))
			return
		}
		views = append(views, view)
	}
	c.JSON(http.StatusOK, gin.H{"connections": views})
}

func (h *ConnectionHandler) GetConnection(c *gin.Context) {
	caller, ok := applicant(c)
	if !ok {
		return
	}

	view, err := h.view(c, caller.UserID, providerParam(c))
	if err != nil {
		c.Error(toAppError(err, "failed to load connection"))
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *ConnectionHandler) Connect(c *gin.Context) {
	caller, ok := applicant(c)
	if !ok {
		return
	}

	var req ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError("invalid request format"))
		return
	}

	expiresAt := req.ExpiresAt
	if expiresAt == nil && req.ExpiresIn > 0 {
		at := time.Now().Add(time.Duration(req.ExpiresIn) * time.Second)
		expiresAt = &at
	}

	provider := providerParam(c)
	err := h.vault.Store(c.Request.Context(), &domain.Credential{
		UserID:      caller.UserID,
		Provider:    provider,
		AccessToken: req.AccessToken,
		Scopes:      req.Scopes,
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		c.Error(toAppError(err, "failed to store connection"))
		return
	}

	view, err := h.view(c, caller.UserID, provider)
	if err != nil {
		c.Error(toAppError(err, "failed to load connection"))
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *ConnectionHandler) Disconnect(c *gin.Context) {
	caller, ok := applicant(c)
	if !ok {
		return
	}

	provider := providerParam(c)
	if err := h.vault.Delete(c.Request.Context(), caller.UserID, provider); err != nil {
		c.Error(toAppError(err, "failed to remove connection"))
		return
	}

	h.logger.Infow("provider disconnected", "user_id", caller.UserID, "provider", provider)
	c.Status(http.StatusNoContent)
}

func (h *ConnectionHandler) view(c *gin.Context, userID domain.UserID, provider domain.Provider) (ConnectionView, error) {
	view := ConnectionView{Provider: provider, Status: domain.CredentialMissing}

	cred, err := h.vault.Get(c.Request.Context(), userID, provider)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrCredentialNotFound):
		return view, nil
	default:
		return view, err
	}

	view.ExpiresAt = cred.ExpiresAt
	view.Scopes = cred.Scopes
	view.Status = domain.CredentialConnected
	if h.vault.IsExpired(cred) {
		view.Status = domain.CredentialExpired
	}
	return view, nil
}

func providerParam(c *gin.Context) domain.Provider {
	return domain.Provider(strings.ToLower(c.Param("provider")))
}
