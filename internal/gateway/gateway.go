// Package gateway implements the two HTTP-facing handlers, OpenAI Chat
// Completions and Anthropic Messages, translating each dialect's request
// into the Upstream wire format, driving internal/upstreamclient, and
// re-framing the normalized event stream back into the caller's dialect.
package gateway

import (
	"github.com/gin-gonic/gin"

	"gcli2api-go/internal/config"
	"gcli2api-go/internal/identity"
	"gcli2api-go/internal/keystore"
	"gcli2api-go/internal/pool"
	"gcli2api-go/internal/upstreamclient"
)

// Handler holds every dependency the OpenAI and Anthropic routes share:
// credential rotation, API key validation, identity synthesis, and the
// upstream transport.
type Handler struct {
	cfg      *config.Config
	pool     *pool.Pool
	keys     *keystore.Keystore
	identity *identity.Cache
	upstream *upstreamclient.Client
	adminKey string
}

// New builds a Handler. adminKey, when non-empty, bypasses per-key rate
// limiting and keystore validation entirely (the configured admin-wide key).
func New(cfg *config.Config, p *pool.Pool, keys *keystore.Keystore, ids *identity.Cache, upstream *upstreamclient.Client, adminKey string) *Handler {
	return &Handler{cfg: cfg, pool: p, keys: keys, identity: ids, upstream: upstream, adminKey: adminKey}
}

// RegisterRoutes wires the gateway's core HTTP surface onto r.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/v1/chat/completions", h.ChatCompletions)
	r.GET("/v1/models", h.ListModels)
	r.POST("/v1/chat/completions/count_tokens", h.OpenAICountTokens)

	r.POST("/anthropic/v1/messages", h.Messages)
	r.POST("/anthropic/v1/messages/count_tokens", h.ClaudeCountTokens)
}
