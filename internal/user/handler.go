package user

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mehmetcc/calibration-auth-service/internal/apierror"
)

// UpdateRoleRequest represents the payload to change a user's role.
// @Description payload to change a role
type UpdateRoleRequest struct {
	Role string `json:"role" binding:"required,oneof=ADMIN MANAGER TECHNICIAN USER"`
}

// UpdateActiveRequest represents the payload to (de)activate an account.
// @Description payload to toggle the active flag
type UpdateActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// UpdatePasswordRequest represents the payload to reset a user's password.
// @Description payload to change password
type UpdatePasswordRequest struct {
	Password string `json:"password" binding:"required,min=8,max=72"`
}

// IDRequest represents a URI ID parameter.
type IDRequest struct {
	ID uint `uri:"id" binding:"required,min=1"`
}

// UserHandler serves the administrative user endpoints.
type UserHandler struct {
	router  *gin.RouterGroup
	service Service
	logger  *zap.Logger
}

// NewUserHandler registers user administration endpoints on the given router
// group. Callers are expected to gate the group behind an ADMIN check.
func NewUserHandler(router *gin.RouterGroup, service Service, logger *zap.Logger) *UserHandler {
	h := &UserHandler{router: router, service: service, logger: logger}
	h.router.GET("/users/:id", h.ReadUserByID)
	h.router.PUT("/users/:id/role", h.UpdateRole)
	h.router.PUT("/users/:id/active", h.UpdateActive)
	h.router.PUT("/users/:id/password", h.UpdatePassword)
	h.router.DELETE("/users/:id", h.DeleteUser)
	return h
}

func (h *UserHandler) bindID(c *gin.Context) (uint, bool) {
	var uri IDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		apierror.Abort(c, http.StatusBadRequest, "invalid or missing id", apierror.FromBinding(err)...)
		return 0, false
	}
	return uri.ID, true
}

// ReadUserByID godoc
// @Summary      Get user by ID
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "User ID"
// @Success      200  {object}  Profile
// @Failure      400  {object}  apierror.Body
// @Failure      404  {object}  apierror.Body
// @Router       /users/{id} [get]
func (h *UserHandler) ReadUserByID(c *gin.Context) {
	id, ok := h.bindID(c)
	if !ok {
		return
	}
	u, err := h.service.ReadUserByID(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "service.ReadUserByID failed", err)
		return
	}
	c.JSON(http.StatusOK, u.Profile())
}

// UpdateRole godoc
// @Summary      Change a user's role
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      int                true  "User ID"
// @Param        payload  body      UpdateRoleRequest  true  "New role"
// @Success      200      {object}  Profile
// @Failure      400      {object}  apierror.Body
// @Failure      404      {object}  apierror.Body
// @Router       /users/{id}/role [put]
func (h *UserHandler) UpdateRole(c *gin.Context) {
	id, ok := h.bindID(c)
	if !ok {
		return
	}
	var req UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid update role payload", zap.Error(err))
		apierror.Abort(c, http.StatusBadRequest, "validation failed", apierror.FromBinding(err)...)
		return
	}
	u, err := h.service.UpdateRole(c.Request.Context(), id, Role(req.Role))
	if err != nil {
		h.fail(c, "service.UpdateRole failed", err)
		return
	}
	c.JSON(http.StatusOK, u.Profile())
}

// UpdateActive godoc
// @Summary      Activate or deactivate a user
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      int                  true  "User ID"
// @Param        payload  body      UpdateActiveRequest  true  "Active flag"
// @Success      200      {object}  Profile
// @Failure      400      {object}  apierror.Body
// @Failure      404      {object}  apierror.Body
// @Router       /users/{id}/active [put]
func (h *UserHandler) UpdateActive(c *gin.Context) {
	id, ok := h.bindID(c)
	if !ok {
		return
	}
	var req UpdateActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid update active payload", zap.Error(err))
		apierror.Abort(c, http.StatusBadRequest, "validation failed", apierror.FromBinding(err)...)
		return
	}
	u, err := h.service.SetActive(c.Request.Context(), id, *req.Active)
	if err != nil {
		h.fail(c, "service.SetActive failed", err)
		return
	}
	c.JSON(http.StatusOK, u.Profile())
}

// UpdatePassword godoc
// @Summary      Reset a user's password
// @Description  Replaces the password and revokes every refresh session of the user
// @Tags         users
// @Accept       json
// @Security     BearerAuth
// @Param        id       path      int                    true  "User ID"
// @Param        payload  body      UpdatePasswordRequest  true  "New password"
// @Success      204
// @Failure      400      {object}  apierror.Body
// @Failure      404      {object}  apierror.Body
// @Router       /users/{id}/password [put]
func (h *UserHandler) UpdatePassword(c *gin.Context) {
	id, ok := h.bindID(c)
	if !ok {
		return
	}
	var req UpdatePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid update password payload", zap.Error(err))
		apierror.Abort(c, http.StatusBadRequest, "validation failed", apierror.FromBinding(err)...)
		return
	}
	if err := h.service.ChangePassword(c.Request.Context(), id, req.Password); err != nil {
		h.fail(c, "service.ChangePassword failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteUser godoc
// @Summary      Delete user
// @Tags         users
// @Security     BearerAuth
// @Param        id   path  int  true  "User ID"
// @Success      204
// @Failure      400  {object}  apierror.Body
// @Failure      404  {object}  apierror.Body
// @Router       /users/{id} [delete]
func (h *UserHandler) DeleteUser(c *gin.Context) {
	id, ok := h.bindID(c)
	if !ok {
		return
	}
	if err := h.service.DeleteUser(c.Request.Context(), id); err != nil {
		h.fail(c, "service.DeleteUser failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *UserHandler) fail(c *gin.Context, msg string, err error) {
	switch {
	case errors.Is(err, ErrUserNotFound):
		apierror.Abort(c, http.StatusNotFound, "user not found")
	case errors.Is(err, ErrInvalidRole):
		apierror.Abort(c, http.StatusBadRequest, "validation failed",
			apierror.FieldError{Field: "role", Message: "must be one of: ADMIN, MANAGER, TECHNICIAN, USER"})
	case errors.Is(err, ErrPasswordShouldBeNCharacters),
		errors.Is(err, ErrPasswordTooLong),
		errors.Is(err, ErrPasswordNotAlphanumeric),
		errors.Is(err, ErrPasswordDoesNotHaveSpecialCharacter):
		apierror.Abort(c, http.StatusBadRequest, "validation failed",
			apierror.FieldError{Field: "password", Message: err.Error()})
	default:
		h.logger.Error(msg, zap.Error(err))
		apierror.Abort(c, http.StatusInternalServerError, "internal server error")
	}
}
