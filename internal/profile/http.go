package profile

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/videotube/api/internal/apperr"
	"github.com/videotube/api/internal/auth"
	"github.com/videotube/api/internal/media"
	"github.com/videotube/api/internal/response"
	"github.com/videotube/api/internal/users"
)

// RegisterRoutes mounts the profile endpoints under /users.
func RegisterRoutes(router *gin.RouterGroup, service *Service, authService *auth.Service, stager *media.Stager) {
	handler := &httpHandler{service: service, stager: stager}

	group := router.Group("/users")
	group.GET("/channel/:username", auth.OptionalAuthenticate(authService), handler.channel)

	secured := group.Group("", auth.Authenticate(authService))
	{
		secured.GET("/me", handler.currentUser)
		secured.PATCH("/me", handler.updateAccount)
		secured.PATCH("/me/avatar", handler.updateAvatar)
		secured.PATCH("/me/cover-image", handler.updateCoverImage)
		secured.GET("/watch-history", handler.watchHistory)
	}
}

type httpHandler struct {
	service *Service
	stager  *media.Stager
}

type updateAccountRequest struct {
	FullName string `json:"fullName" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
}

func (h *httpHandler) currentUser(c *gin.Context) {
	user, err := auth.RequireUser(c)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, "current user fetched successfully")
}

func (h *httpHandler) updateAccount(c *gin.Context) {
	user, err := auth.RequireUser(c)
	if err != nil {
		response.Fail(c, err)
		return
	}

	var req updateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, response.BindError(err))
		return
	}

	updated, err := h.service.UpdateAccount(c.Request.Context(), user.ID, req.FullName, req.Email)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.JSON(c, http.StatusOK, updated, "account details updated successfully")
}

func (h *httpHandler) updateAvatar(c *gin.Context) {
	h.updateImage(c, media.FieldAvatar, "avatar", h.service.UpdateAvatar, "avatar image updated successfully")
}

func (h *httpHandler) updateCoverImage(c *gin.Context) {
	h.updateImage(c, media.FieldCoverImage, "cover image", h.service.UpdateCoverImage, "cover image updated successfully")
}

type imageUpdate func(ctx context.Context, userID string, file media.LocalFile) (users.Profile, error)

func (h *httpHandler) updateImage(c *gin.Context, field, label string, update imageUpdate, message string) {
	user, err := auth.RequireUser(c)
	if err != nil {
		response.Fail(c, err)
		return
	}

	header, err := c.FormFile(field)
	if err != nil {
		response.Fail(c, apperr.Validation(label+" file is missing"))
		return
	}

	file, err := h.stager.Save(header)
	if err != nil {
		response.Fail(c, stagingError(err, label))
		return
	}
	defer file.Remove()

	updated, err := update(c.Request.Context(), user.ID, file)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.JSON(c, http.StatusOK, updated, message)
}

func (h *httpHandler) channel(c *gin.Context) {
	var viewerID string
	if viewer, ok := auth.CurrentUser(c); ok {
		viewerID = viewer.ID
	}

	channel, err := h.service.Channel(c.Request.Context(), c.Param("username"), viewerID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.JSON(c, http.StatusOK, channel, "user channel fetched successfully")
}

func (h *httpHandler) watchHistory(c *gin.Context) {
	user, err := auth.RequireUser(c)
	if err != nil {
		response.Fail(c, err)
		return
	}

	history, err := h.service.WatchHistory(c.Request.Context(), user.ID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.JSON(c, http.StatusOK, history, "watch history fetched successfully")
}

func stagingError(err error, label string) error {
	switch {
	case errors.Is(err, media.ErrFileTooLarge):
		return apperr.Validation(label + " file is too large")
	case errors.Is(err, media.ErrNoFile):
		return apperr.Validation(label + " file is missing")
	}
	return apperr.Upload("failed to read "+label+" file", err)
}
