package middleware

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"gcli2api-go/internal/keystore"
)

func newTestKeystoreMW(t *testing.T) *keystore.Keystore {
	t.Helper()
	k, err := keystore.Open(filepath.Join(t.TempDir(), "api_keys.json"))
	require.NoError(t, err)
	return k
}

func TestRateLimiter(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("Allow requests within limit", func(t *testing.T) {
		router := gin.New()
		router.Use(RateLimiter(10, 10))
		router.GET("/test", func(c *gin.Context) {
			c.String(200, "OK")
		})

		req := httptest.NewRequest("GET", "/test", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != 200 {
			t.Errorf("Expected status 200, got %d", w.Code)
		}
	})

	t.Run("Block requests exceeding limit", func(t *testing.T) {
		router := gin.New()
		router.Use(RateLimiter(1, 1)) // Very low limit
		router.GET("/test", func(c *gin.Context) {
			c.String(200, "OK")
		})

		req1 := httptest.NewRequest("GET", "/test", nil)
		w1 := httptest.NewRecorder()
		router.ServeHTTP(w1, req1)

		if w1.Code != 200 {
			t.Errorf("First request: expected status 200, got %d", w1.Code)
		}

		req2 := httptest.NewRequest("GET", "/test", nil)
		w2 := httptest.NewRecorder()
		router.ServeHTTP(w2, req2)

		if w2.Code != http.StatusTooManyRequests {
			t.Errorf("Second request: expected status 429, got %d", w2.Code)
		}
	})
}

func TestKeyedRateLimiter(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("Allows unregistered keys through with no quota", func(t *testing.T) {
		store := newTestKeystoreMW(t)
		router := gin.New()
		router.Use(KeyedRateLimiter(store, 50, 100))
		router.GET("/test", func(c *gin.Context) { c.String(200, "OK") })

		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("Authorization", "Bearer unknown-key")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != 200 {
			t.Errorf("Expected status 200, got %d", w.Code)
		}
	})

	t.Run("Enforces per-key quota and reports Retry-After", func(t *testing.T) {
		store := newTestKeystoreMW(t)
		key, err := store.Create("test", 1)
		require.NoError(t, err)

		router := gin.New()
		router.Use(KeyedRateLimiter(store, 50, 100))
		router.GET("/test", func(c *gin.Context) { c.String(200, "OK") })

		req1 := httptest.NewRequest("GET", "/test", nil)
		req1.Header.Set("Authorization", "Bearer "+key.Key)
		w1 := httptest.NewRecorder()
		router.ServeHTTP(w1, req1)
		if w1.Code != 200 {
			t.Errorf("First request: expected status 200, got %d", w1.Code)
		}

		req2 := httptest.NewRequest("GET", "/test", nil)
		req2.Header.Set("Authorization", "Bearer "+key.Key)
		w2 := httptest.NewRecorder()
		router.ServeHTTP(w2, req2)
		if w2.Code != http.StatusTooManyRequests {
			t.Errorf("Second request: expected status 429, got %d", w2.Code)
		}
		if w2.Header().Get("Retry-After") == "" {
			t.Error("Expected Retry-After header on 429")
		}
	})

	t.Run("Global guard trips before per-key check", func(t *testing.T) {
		store := newTestKeystoreMW(t)
		router := gin.New()
		router.Use(KeyedRateLimiter(store, 1, 1))
		router.GET("/test", func(c *gin.Context) { c.String(200, "OK") })

		successCount := 0
		for i := 0; i < 10; i++ {
			req := httptest.NewRequest("GET", "/test", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code == 200 {
				successCount++
			}
		}

		if successCount >= 10 {
			t.Error("Expected some requests to be rate limited by the global guard")
		}
	})
}

func TestExtractAPIKey(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name     string
		setup    func(*gin.Context)
		expected string
	}{
		{
			name: "From context",
			setup: func(c *gin.Context) {
				c.Set("api_key", "context-key")
			},
			expected: "context-key",
		},
		{
			name: "From Authorization header",
			setup: func(c *gin.Context) {
				c.Request.Header.Set("Authorization", "Bearer header-key")
			},
			expected: "header-key",
		},
		{
			name: "From x-api-key header",
			setup: func(c *gin.Context) {
				c.Request.Header.Set("x-api-key", "x-api-key-value")
			},
			expected: "x-api-key-value",
		},
		{
			name: "From x-goog-api-key header",
			setup: func(c *gin.Context) {
				c.Request.Header.Set("x-goog-api-key", "goog-key")
			},
			expected: "goog-key",
		},
		{
			name:     "No API key",
			setup:    func(c *gin.Context) {},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest("GET", "/test", nil)

			tt.setup(c)

			result := extractAPIKey(c)
			if result != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, result)
			}
		})
	}
}
