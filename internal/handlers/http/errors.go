package http

import (
	"errors"
	"net/http"

	"spacegate/internal/core/domain"
	"spacegate/internal/core/services"
	apperrors "spacegate/pkg/errors"

	"github.com/gin-gonic/gin"
)

// toAppError maps domain errors to their HTTP rendering. Unknown errors are
// internal and their text is not exposed.
func toAppError(err error, message string) *apperrors.AppError {
	if appErr := apperrors.GetAppError(err); appErr != nil {
		return appErr
	}
	switch {
	case errors.Is(err, domain.ErrSpaceNotFound):
		return apperrors.NewNotFoundError("space")
	case errors.Is(err, domain.ErrCredentialNotFound):
		return apperrors.NewNotFoundError("connection")
	case errors.Is(err, domain.ErrNotAuthenticated), errors.Is(err, services.ErrUnauthorized):
		return apperrors.NewUnauthorizedError("authentication required")
	case errors.Is(err, domain.ErrInvalidRule),
		errors.Is(err, domain.ErrInvalidSpace),
		errors.Is(err, domain.ErrCredentialMalformed),
		errors.Is(err, domain.ErrUnsupportedProvider):
		return apperrors.NewInvalidInputError(err.Error())
	}
	return apperrors.WrapError(err, apperrors.ErrCodeInternal, message, http.StatusInternalServerError)
}

// decisionError renders a denied admission with its reason code and, for
// provider denials, which account the UI should ask the user to connect.
func decisionError(d domain.Decision) *apperrors.AppError {
	appErr := apperrors.NewAdmissionDeniedError(string(d.Reason), d.Reason.Retryable())
	if d.Provider != "" {
		appErr.WithContext("provider", string(d.Provider))
	}
	return appErr
}

func applicant(c *gin.Context) (domain.Applicant, bool) {
	a, ok := services.ApplicantFromContext(c.Request.Context())
	if !ok {
		c.Error(apperrors.NewUnauthorizedError("authentication required"))
	}
	return a, ok
}
