package middleware

import (
	"errors"
	"net/http"
	"strings"

	"spacegate/internal/core/domain"
	"spacegate/internal/core/services"
	apperrors "spacegate/pkg/errors"
	"spacegate/pkg/logger"

	"github.com/gin-gonic/gin"
)

const (
	ContextUserID   = "user_id"
	ContextUsername = "username"
)

// AuthMiddleware requires a valid bearer token and puts the applicant on
// both the gin context and the request context.
func AuthMiddleware(authService services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			abortWithAppError(c, apperrors.NewUnauthorizedError("authorization header required"))
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			abortWithAppError(c, apperrors.NewUnauthorizedError(err.Error()))
			return
		}

		setApplicant(c, claims)
		c.Next()
	}
}

// OptionalAuthMiddleware sets the applicant when a valid token is present
// and lets anonymous requests through.
func OptionalAuthMiddleware(authService services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearerToken(c); ok {
			if claims, err := authService.ValidateToken(token); err == nil {
				setApplicant(c, claims)
			}
		}
		c.Next()
	}
}

// SpaceOwnerMiddleware allows only the owner of the :id space. It must run
// after AuthMiddleware.
func SpaceOwnerMiddleware(authService services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		applicant, ok := services.ApplicantFromContext(c.Request.Context())
		if !ok {
			abortWithAppError(c, apperrors.NewUnauthorizedError("authentication required"))
			return
		}

		spaceID := domain.SpaceID(c.Param("id"))
		err := authService.CheckSpaceOwner(c.Request.Context(), applicant.UserID, spaceID)
		switch {
		case err == nil:
			c.Next()
		case errors.Is(err, domain.ErrSpaceNotFound):
			abortWithAppError(c, apperrors.NewNotFoundError("space"))
		case errors.Is(err, services.ErrUnauthorized):
			abortWithAppError(c, apperrors.NewForbiddenError("only the space owner may do this"))
		default:
			abortWithAppError(c, apperrors.WrapError(err, apperrors.ErrCodeInternal, "failed to check space owner", http.StatusInternalServerError))
		}
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func setApplicant(c *gin.Context, claims *services.Claims) {
	c.Set(ContextUserID, claims.UserID)
	c.Set(ContextUsername, claims.Username)
	ctx := services.WithApplicant(c.Request.Context(), claims.Applicant())
	c.Request = c.Request.WithContext(logger.WithValue(ctx, logger.UserIDKey, string(claims.UserID)))
}

func abortWithAppError(c *gin.Context, err *apperrors.AppError) {
	c.Error(err)
	c.Abort()
}
