package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"spacegate/internal/core/domain"
	"spacegate/internal/core/services"
	"spacegate/internal/infrastructure/repositories/memory"
	apperrors "spacegate/pkg/errors"
	"spacegate/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newAuthRouter(t *testing.T) (*gin.Engine, services.AuthService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	spaces := memory.NewMemorySpaceRepository()
	require.NoError(t, spaces.Create(context.Background(), &domain.Space{ID: "s1", OwnerID: "owner", Status: domain.SpaceStatusDraft}))
	auth := services.NewAuthService("mw-secret", time.Hour, spaces)

	router := gin.New()
	router.Use(ErrorHandlerMiddleware(zap.NewNop().Sugar()))

	router.GET("/me", AuthMiddleware(auth), func(c *gin.Context) {
		applicant, ok := services.ApplicantFromContext(c.Request.Context())
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"user_id": applicant.UserID, "email": applicant.Email})
	})
	router.GET("/maybe", OptionalAuthMiddleware(auth), func(c *gin.Context) {
		_, ok := services.ApplicantFromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"authenticated": ok})
	})
	router.PUT("/spaces/:id", AuthMiddleware(auth), SpaceOwnerMiddleware(auth), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return router, auth
}

func doRequest(router *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	router.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	router, auth := newAuthRouter(t)

	w := doRequest(router, http.MethodGet, "/me", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), string(apperrors.ErrCodeUnauthorized))

	w = doRequest(router, http.MethodGet, "/me", "garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := auth.GenerateToken(domain.Applicant{UserID: "alice", Email: "alice@example.com", EmailVerified: true}, "alice")
	require.NoError(t, err)
	w = doRequest(router, http.MethodGet, "/me", token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user_id":"alice"`)
}

func TestOptionalAuthMiddleware(t *testing.T) {
	router, auth := newAuthRouter(t)

	w := doRequest(router, http.MethodGet, "/maybe", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"authenticated":false`)

	token, err := auth.GenerateToken(domain.Applicant{UserID: "alice"}, "alice")
	require.NoError(t, err)
	w = doRequest(router, http.MethodGet, "/maybe", token)
	assert.Contains(t, w.Body.String(), `"authenticated":true`)
}

func TestSpaceOwnerMiddleware(t *testing.T) {
	router, auth := newAuthRouter(t)

	owner, err := auth.GenerateToken(domain.Applicant{UserID: "owner"}, "owner")
	require.NoError(t, err)
	other, err := auth.GenerateToken(domain.Applicant{UserID: "alice"}, "alice")
	require.NoError(t, err)

	assert.Equal(t, http.StatusNoContent, doRequest(router, http.MethodPut, "/spaces/s1", owner).Code)
	assert.Equal(t, http.StatusForbidden, doRequest(router, http.MethodPut, "/spaces/s1", other).Code)
	assert.Equal(t, http.StatusNotFound, doRequest(router, http.MethodPut, "/spaces/missing", owner).Code)
}

func TestErrorHandlerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RecoveryMiddleware(zap.NewNop().Sugar()), ErrorHandlerMiddleware(zap.NewNop().Sugar()))
	router.GET("/denied", func(c *gin.Context) {
		c.Error(apperrors.NewAdmissionDeniedError("not_subscribed", false))
	})
	router.GET("/plain", func(c *gin.Context) {
		c.Error(assert.AnError)
	})
	router.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})

	w := doRequest(router, http.MethodGet, "/denied", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), `"reason":"not_subscribed"`)

	w = doRequest(router, http.MethodGet, "/plain", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), assert.AnError.Error())

	w = doRequest(router, http.MethodGet, "/panic", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestIDMiddleware())
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextRequestID))
	})

	w := doRequest(router, http.MethodGet, "/", "")
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
	assert.Equal(t, w.Header().Get(HeaderRequestID), w.Body.String())

	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Body.String())
}

func TestRequestLoggerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.InfoLevel)

	auth := services.NewAuthService("mw-secret", time.Hour, nil)
	router := gin.New()
	router.Use(RequestIDMiddleware(), RequestLoggerMiddleware(logger.NewContextLogger(zap.New(core))))
	router.GET("/me", AuthMiddleware(auth), func(c *gin.Context) { c.Status(http.StatusOK) })

	token, err := auth.GenerateToken(domain.Applicant{UserID: "alice"}, "alice")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, doRequest(router, http.MethodGet, "/me", token).Code)

	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "GET", fields["method"])
	assert.Equal(t, "/me", fields["path"])
	assert.Equal(t, "alice", fields["user_id"])
	assert.NotEmpty(t, fields["request_id"])
}
