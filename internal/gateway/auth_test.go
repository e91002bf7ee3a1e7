package gateway

import (
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gcli2api-go/internal/keystore"
)

func newGinContext(t *testing.T) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	return c, rec
}

func TestResolveAPIKeyPrefersBearerHeader(t *testing.T) {
	c, _ := newGinContext(t)
	c.Request = httptest.NewRequest("POST", "/", nil)
	c.Request.Header.Set("Authorization", "Bearer sk-123")
	assert.Equal(t, "sk-123", resolveAPIKey(c))
}

func TestResolveAPIKeyFallsBackToXAPIKey(t *testing.T) {
	c, _ := newGinContext(t)
	c.Request = httptest.NewRequest("POST", "/", nil)
	c.Request.Header.Set("x-api-key", "sk-456")
	assert.Equal(t, "sk-456", resolveAPIKey(c))
}

func TestResolveAPIKeyEmptyWhenNeitherHeaderSet(t *testing.T) {
	c, _ := newGinContext(t)
	c.Request = httptest.NewRequest("POST", "/", nil)
	assert.Equal(t, "", resolveAPIKey(c))
}

func authorizeRequest(t *testing.T, h *Handler, key string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	c, rec := newGinContext(t)
	c.Request = httptest.NewRequest("POST", "/", nil)
	c.Request.Header.Set("Authorization", "Bearer "+key)
	return c, rec
}

func TestAuthorizeSetsRateLimitHeaders(t *testing.T) {
	keys, err := keystore.Open(t.TempDir() + "/api_keys.json")
	require.NoError(t, err)
	key, err := keys.Create("dev", 5)
	require.NoError(t, err)

	h := &Handler{keys: keys}
	c, rec := authorizeRequest(t, h, key.Key)

	_, gerr := h.authorize(c)
	require.Nil(t, gerr)
	assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "4", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestAuthorizeAdminKeyBypassSetsHeaders(t *testing.T) {
	keys, err := keystore.Open(t.TempDir() + "/api_keys.json")
	require.NoError(t, err)

	h := &Handler{keys: keys, adminKey: "sk-admin"}
	c, rec := authorizeRequest(t, h, "sk-admin")

	_, gerr := h.authorize(c)
	require.Nil(t, gerr)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
}

// TestAuthorizeAtomicallyConsumesUnderConcurrency guards against the
// check-then-update race: with a cap of 1, only one of many concurrent
// callers sharing the same key may be authorized.
func TestAuthorizeAtomicallyConsumesUnderConcurrency(t *testing.T) {
	keys, err := keystore.Open(t.TempDir() + "/api_keys.json")
	require.NoError(t, err)
	key, err := keys.Create("dev", 1)
	require.NoError(t, err)

	h := &Handler{keys: keys}
	var allowed int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, _ := authorizeRequest(t, h, key.Key)
			if _, gerr := h.authorize(c); gerr == nil {
				atomic.AddInt32(&allowed, 1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, allowed)
}
