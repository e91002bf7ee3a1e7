package gateway

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"gcli2api-go/internal/gwerrors"
)

// resolveAPIKey extracts the caller's API key from either dialect's
// preferred header.
func resolveAPIKey(c *gin.Context) string {
	auth := strings.TrimSpace(c.GetHeader("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		if key := strings.TrimSpace(auth[7:]); key != "" {
			return key
		}
	}
	if key := strings.TrimSpace(c.GetHeader("x-api-key")); key != "" {
		return key
	}
	return ""
}

// authorize resolves and validates the caller's API key. A configured
// admin-wide key bypasses the keystore and per-key limiter entirely;
// otherwise the key must validate against the keystore and pass its
// sliding-window rate limit, checked and consumed as one atomic step so two
// concurrent requests can't both pass a cap=1 limit before either is
// recorded. On success it returns the key so the caller can scope identity
// synthesis to it, and sets X-RateLimit-Limit/X-RateLimit-Remaining on the
// gin context so every authorized response carries them.
func (h *Handler) authorize(c *gin.Context) (apiKey string, gerr *gwerrors.Error) {
	key := resolveAPIKey(c)
	if key == "" {
		return "", gwerrors.Unauthorized("missing API key")
	}
	if h.adminKey != "" && key == h.adminKey {
		c.Header("X-RateLimit-Limit", "0")
		c.Header("X-RateLimit-Remaining", "0")
		return key, nil
	}
	if !h.keys.Validate(key) {
		return "", gwerrors.Unauthorized("invalid API key")
	}
	allowed, limit, remaining, resetInSec, err := h.keys.CheckAndConsume(c.Request.Context(), key)
	if err != nil {
		return "", gwerrors.Wrap(gwerrors.KindUnauthorized, "rate limit check failed", err)
	}
	if !allowed {
		return "", gwerrors.RateLimited(resetInSec)
	}
	c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
	return key, nil
}

// writeError renders a gwerrors-classified failure as this dialect's JSON
// error body and, for rate limiting, the X-RateLimit-Reset header.
func writeError(c *gin.Context, err error) {
	status := gwerrors.HTTPStatus(err)
	body := gwerrors.Body(err)
	if ge, ok := err.(*gwerrors.Error); ok && ge.Kind == gwerrors.KindRateLimited {
		c.Header("X-RateLimit-Reset", strconv.Itoa(ge.ResetInSec))
	}
	c.JSON(status, gin.H{"error": body})
	c.Abort()
}
