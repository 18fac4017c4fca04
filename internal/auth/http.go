package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/videotube/api/internal/apperr"
	"github.com/videotube/api/internal/media"
	"github.com/videotube/api/internal/response"
	"github.com/videotube/api/internal/users"
)

// RegisterRoutes mounts the session endpoints under /users.
func RegisterRoutes(router *gin.RouterGroup, service *Service, stager *media.Stager) {
	handler := &httpHandler{service: service, stager: stager}

	group := router.Group("/users")
	{
		group.POST("/register", handler.register)
		group.POST("/login", handler.login)
		group.POST("/refresh-token", handler.refresh)
	}

	secured := group.Group("", Authenticate(service))
	{
		secured.POST("/logout", handler.logout)
		secured.POST("/change-password", handler.changePassword)
	}
}

type httpHandler struct {
	service *Service
	stager  *media.Stager
}

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required"`
}

type loginResponse struct {
	User         users.Profile `json:"user"`
	AccessToken  string        `json:"accessToken"`
	RefreshToken string        `json:"refreshToken"`
}

type tokensResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func (h *httpHandler) register(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		response.Fail(c, apperr.Validation("multipart form data is required"))
		return
	}

	uploads, err := h.stager.ParseUploads(form)
	if err != nil {
		response.Fail(c, uploadError(err))
		return
	}

	profile, err := h.service.Register(c.Request.Context(), RegisterInput{
		Username: formValue(form.Value, "username"),
		Email:    formValue(form.Value, "email"),
		Password: formValue(form.Value, "password"),
		FullName: formValue(form.Value, "fullName"),
		Uploads:  uploads,
	})
	if err != nil {
		response.Fail(c, err)
		return
	}

	response.JSON(c, http.StatusCreated, profile, "user registered successfully")
}

func (h *httpHandler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, response.BindError(err))
		return
	}

	result, err := h.service.Login(c.Request.Context(), LoginInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		response.Fail(c, err)
		return
	}

	h.setSessionCookies(c, result.Tokens)
	response.JSON(c, http.StatusOK, loginResponse{
		User:         result.User,
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
	}, "user logged in successfully")
}

func (h *httpHandler) logout(c *gin.Context) {
	user, err := RequireUser(c)
	if err != nil {
		response.Fail(c, err)
		return
	}

	if err := h.service.Logout(c.Request.Context(), user.ID); err != nil {
		response.Fail(c, err)
		return
	}

	clearSessionCookies(c)
	response.JSON(c, http.StatusOK, nil, "user logged out")
}

func (h *httpHandler) refresh(c *gin.Context) {
	presented, err := c.Cookie(RefreshTokenCookie)
	if err != nil || strings.TrimSpace(presented) == "" {
		var req refreshRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				response.Fail(c, response.BindError(err))
				return
			}
		}
		presented = req.RefreshToken
	}

	pair, err := h.service.RefreshSession(c.Request.Context(), presented)
	if err != nil {
		response.Fail(c, err)
		return
	}

	h.setSessionCookies(c, pair)
	response.JSON(c, http.StatusOK, tokensResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, "access token refreshed")
}

func (h *httpHandler) changePassword(c *gin.Context) {
	user, err := RequireUser(c)
	if err != nil {
		response.Fail(c, err)
		return
	}

	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, response.BindError(err))
		return
	}

	if err := h.service.ChangePassword(c.Request.Context(), user.ID, req.OldPassword, req.NewPassword); err != nil {
		response.Fail(c, err)
		return
	}

	response.JSON(c, http.StatusOK, nil, "password changed successfully")
}

func (h *httpHandler) setSessionCookies(c *gin.Context, pair TokenPair) {
	accessTTL, refreshTTL := h.service.TokenLifetimes()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(AccessTokenCookie, pair.AccessToken, seconds(accessTTL), "/", "", true, true)
	c.SetCookie(RefreshTokenCookie, pair.RefreshToken, seconds(refreshTTL), "/", "", true, true)
}

func clearSessionCookies(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(AccessTokenCookie, "", -1, "/", "", true, true)
	c.SetCookie(RefreshTokenCookie, "", -1, "/", "", true, true)
}

// uploadError classifies a staging failure from a multipart form.
func uploadError(err error) error {
	switch {
	case errors.Is(err, media.ErrFileTooLarge):
		return apperr.Validation("file too large")
	case errors.Is(err, media.ErrNoFile):
		return apperr.Validation("uploaded file is empty")
	}
	return apperr.Upload("failed to read uploaded file", err)
}

func formValue(values map[string][]string, key string) string {
	if v := values[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

func seconds(d time.Duration) int {
	return int(d / time.Second)
}
