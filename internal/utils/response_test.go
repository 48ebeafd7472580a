// internal/utils/response_test.go
package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/escrowflow-backend/internal/apperrors"
)

func recordResponse(t *testing.T, fn func(c *gin.Context)) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	fn(c)

	var body APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestDomainErrorResponseMapsKinds(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{apperrors.Validation("bad input"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{apperrors.Authorization("not yours"), http.StatusForbidden, "FORBIDDEN"},
		{apperrors.StateConflict("wrong state"), http.StatusConflict, "CONFLICT"},
		{apperrors.NotFound("project"), http.StatusNotFound, "NOT_FOUND"},
		{apperrors.External("mirror node down", errors.New("timeout")), http.StatusBadGateway, "EXTERNAL_DEPENDENCY"},
		{errors.New("plain failure"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		w, body := recordResponse(t, func(c *gin.Context) {
			DomainErrorResponse(c, tt.err)
		})
		assert.Equal(t, tt.wantStatus, w.Code, tt.wantCode)
		require.NotNil(t, body.Error)
		assert.Equal(t, tt.wantCode, body.Error.Code)
		assert.False(t, body.Success)
	}
}

func TestDomainErrorResponseUnwrapsNestedKind(t *testing.T) {
	wrapped := apperrors.Wrap(apperrors.KindNotFound, "milestone lookup", errors.New("gone"))

	w, body := recordResponse(t, func(c *gin.Context) {
		DomainErrorResponse(c, wrapped)
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", body.Error.Code)
}

func TestSuccessResponseEnvelope(t *testing.T) {
	w, body := recordResponse(t, func(c *gin.Context) {
		SuccessResponse(c, gin.H{"id": "x"})
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, body.Success)
	assert.Nil(t, body.Error)
}

func TestPaginatedResponseHeaders(t *testing.T) {
	result := CreatePaginationResult([]string{"a", "b"}, 12, PaginationParams{Page: 1, Limit: 5})

	w, body := recordResponse(t, func(c *gin.Context) {
		PaginatedResponse(c, result)
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, body.Success)
	assert.Equal(t, "12", w.Header().Get("X-Total-Count"))
	assert.Equal(t, "3", w.Header().Get("X-Total-Pages"))
}
