package authentication

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const DefaultRefreshCookieName = "refreshToken"

// CookieConfig describes the httpOnly cookie that carries the refresh token.
type CookieConfig struct {
	Name   string
	Path   string
	Domain string
	// Secure is set in production so the cookie never travels over plain HTTP.
	Secure bool
	MaxAge time.Duration
}

type refreshCookie struct {
	cfg CookieConfig
}

func newRefreshCookie(cfg CookieConfig) *refreshCookie {
	if cfg.Name == "" {
		cfg.Name = DefaultRefreshCookieName
	}
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultRefreshTokenTTL
	}
	return &refreshCookie{cfg: cfg}
}

func (rc *refreshCookie) set(c *gin.Context, value string) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(rc.cfg.Name, value, int(rc.cfg.MaxAge.Seconds()), rc.cfg.Path, rc.cfg.Domain, rc.cfg.Secure, true)
}

func (rc *refreshCookie) read(c *gin.Context) (string, bool) {
	v, err := c.Cookie(rc.cfg.Name)
	if err != nil {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (rc *refreshCookie) clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(rc.cfg.Name, "", -1, rc.cfg.Path, rc.cfg.Domain, rc.cfg.Secure, true)
}
