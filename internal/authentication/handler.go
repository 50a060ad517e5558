package authentication

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mehmetcc/calibration-auth-service/internal/apierror"
	"github.com/mehmetcc/calibration-auth-service/internal/user"
)

// RegisterRequest is the payload for creating an account.
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=72"`
	Name     string `json:"name" binding:"required,max=100"`
}

// RegisterResponse is the public view of a freshly created account.
type RegisterResponse struct {
	ID        uint      `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      user.Role `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// LoginRequest is the payload for logging in.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse carries the access token; the refresh token travels in the
// httpOnly cookie only.
type LoginResponse struct {
	AccessToken string       `json:"accessToken"`
	User        user.Profile `json:"user"`
}

// RefreshRequest is the optional body of refresh and logout; the cookie takes
// precedence.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// AccessTokenResponse contains a newly minted access token.
type AccessTokenResponse struct {
	AccessToken string `json:"accessToken"`
}

// SuccessResponse acknowledges an idempotent operation.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// AuthHandler handles authentication-related HTTP endpoints.
type AuthHandler struct {
	router  *gin.RouterGroup
	service SessionService
	cookie  *refreshCookie
	logger  *zap.Logger
}

// NewAuthHandler registers the public auth endpoints on router and the
// bearer-protected ones on protected.
func NewAuthHandler(router, protected *gin.RouterGroup, service SessionService, cookie CookieConfig, logger *zap.Logger) *AuthHandler {
	h := &AuthHandler{router: router, service: service, cookie: newRefreshCookie(cookie), logger: logger}
	h.router.POST("/auth/register", h.Register)
	h.router.POST("/auth/login", h.Login)
	h.router.POST("/auth/refresh", h.Refresh)
	h.router.POST("/auth/logout", h.Logout)
	protected.GET("/auth/me", h.Me)
	protected.POST("/auth/logout-all", h.LogoutAll)
	return h
}

// Register godoc
// @Summary      Register
// @Description  Create an account with the USER role
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      RegisterRequest  true  "Account details"
// @Success      201      {object}  RegisterResponse
// @Failure      400      {object}  apierror.Body
// @Failure      500      {object}  apierror.Body
// @Router       /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid register payload", zap.Error(err))
		apierror.Abort(c, http.StatusBadRequest, ErrValidation.Error(), apierror.FromBinding(err)...)
		return
	}
	profile, err := h.service.Register(c.Request.Context(), RegisterInput(req))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, RegisterResponse{
		ID:        profile.ID,
		Email:     profile.Email,
		Name:      profile.Name,
		Role:      profile.Role,
		CreatedAt: profile.CreatedAt,
	})
}

// Login godoc
// @Summary      Login
// @Description  Authenticate and issue an access token; the refresh token is set as an httpOnly cookie
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      LoginRequest  true  "Login credentials"
// @Success      200      {object}  LoginResponse
// @Failure      400      {object}  apierror.Body
// @Failure      401      {object}  apierror.Body
// @Failure      500      {object}  apierror.Body
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid login payload", zap.Error(err))
		apierror.Abort(c, http.StatusBadRequest, ErrValidation.Error(), apierror.FromBinding(err)...)
		return
	}
	res, err := h.service.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.cookie.set(c, res.RefreshToken)
	c.JSON(http.StatusOK, LoginResponse{AccessToken: res.AccessToken, User: res.User})
}

// Refresh godoc
// @Summary      Refresh
// @Description  Exchange the refresh token (cookie, or body as fallback) for a new access token and rotate it
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      RefreshRequest  false  "Refresh token when no cookie is sent"
// @Success      200      {object}  AccessTokenResponse
// @Failure      401      {object}  apierror.Body
// @Failure      500      {object}  apierror.Body
// @Router       /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	token, ok := h.presentedToken(c)
	if !ok {
		apierror.Abort(c, http.StatusUnauthorized, "refresh token required")
		return
	}
	pair, err := h.service.Refresh(c.Request.Context(), token)
	if err != nil {
		if !errors.Is(err, ErrInternal) {
			h.cookie.clear(c)
		}
		h.fail(c, err)
		return
	}
	h.cookie.set(c, pair.RefreshToken)
	c.JSON(http.StatusOK, AccessTokenResponse{AccessToken: pair.AccessToken})
}

// Logout godoc
// @Summary      Logout
// @Description  Revoke the refresh token and clear the cookie; always succeeds
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      RefreshRequest  false  "Refresh token when no cookie is sent"
// @Success      200      {object}  SuccessResponse
// @Router       /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	if token, ok := h.presentedToken(c); ok {
		if err := h.service.Logout(c.Request.Context(), token); err != nil {
			h.logger.Error("Logout service failed", zap.Error(err))
		}
	}
	h.cookie.clear(c)
	c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

// LogoutAll godoc
// @Summary      Logout everywhere
// @Description  Revoke every refresh session of the authenticated user
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  SuccessResponse
// @Failure      401  {object}  apierror.Body
// @Failure      500  {object}  apierror.Body
// @Router       /auth/logout-all [post]
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	claims, ok := ClaimsFromContext(c)
	if !ok {
		apierror.Abort(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.service.LogoutAll(c.Request.Context(), claims.UserID); err != nil {
		h.fail(c, err)
		return
	}
	h.cookie.clear(c)
	c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

// Me godoc
// @Summary      Current user
// @Description  Profile of the user identified by the bearer access token
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  user.Profile
// @Failure      401  {object}  apierror.Body
// @Failure      404  {object}  apierror.Body
// @Router       /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	claims, ok := ClaimsFromContext(c)
	if !ok {
		apierror.Abort(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	profile, err := h.service.Profile(c.Request.Context(), claims.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// presentedToken reads the refresh cookie, falling back to the JSON body.
func (h *AuthHandler) presentedToken(c *gin.Context) (string, bool) {
	if token, ok := h.cookie.read(c); ok {
		return token, true
	}
	var req RefreshRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.logger.Debug("ignoring unreadable refresh body", zap.Error(err))
		}
	}
	return req.RefreshToken, req.RefreshToken != ""
}

func (h *AuthHandler) fail(c *gin.Context, err error) {
	status, msg := StatusFor(err)
	var verr *ValidationError
	if errors.As(err, &verr) {
		apierror.Abort(c, status, msg, verr.Fields...)
		return
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("auth request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	apierror.Abort(c, status, msg)
}
