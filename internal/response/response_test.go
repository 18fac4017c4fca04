package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/videotube/api/internal/apperr"
)

func serve(t *testing.T, h gin.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Any("/", h)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestJSONWritesSuccessEnvelope(t *testing.T) {
	rr := serve(t, func(c *gin.Context) {
		JSON(c, http.StatusCreated, gin.H{"id": "1"}, "created")
	}, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusCreated, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(http.StatusCreated), body["statusCode"])
	assert.Equal(t, "created", body["message"])
	assert.Equal(t, map[string]any{"id": "1"}, body["data"])
}

func TestFailUsesKindStatusAndMessage(t *testing.T) {
	rr := serve(t, func(c *gin.Context) {
		Fail(c, apperr.Conflict("user with username or email already exists"))
	}, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusConflict, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "user with username or email already exists", body["message"])
	assert.Equal(t, float64(http.StatusConflict), body["statusCode"])
	assert.NotContains(t, body, "data")
}

func TestFailHidesInternalDetails(t *testing.T) {
	rr := serve(t, func(c *gin.Context) {
		Fail(c, errors.New("mongo: connection refused at 10.0.0.3"))
	}, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "10.0.0.3")
	assert.Contains(t, rr.Body.String(), internalMessage)
}

func TestBindErrorMessages(t *testing.T) {
	type payload struct {
		FullName string `json:"fullName" binding:"required"`
		Email    string `json:"email" binding:"required,email"`
	}

	gin.SetMode(gin.TestMode)
	rr := serve(t, func(c *gin.Context) {
		var p payload
		if err := c.ShouldBindJSON(&p); err != nil {
			Fail(c, BindError(err))
			return
		}
		c.Status(http.StatusOK)
	}, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"nope"}`)))

	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "fullName is required")
	assert.Contains(t, rr.Body.String(), "email must be a valid email address")
}

