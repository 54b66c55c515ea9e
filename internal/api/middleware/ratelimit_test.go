package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/qs3c/careerlane_server/internal/pkg/response"
)

func TestRateLimiter_PerUser(t *testing.T) {
	limiter := NewRateLimiter(60, 2)
	router := gin.New()
	router.Use(Auth(testJWTSecret), limiter.Middleware())
	router.POST("/match", func(c *gin.Context) {
		response.Success(c, nil)
	})

	call := func(userID string) int {
		req := httptest.NewRequest("POST", "/match", nil)
		req.Header.Set("Authorization", bearer(t, userID, "seeker"))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return parseResponse(t, w).Code
	}

	assert.Equal(t, response.CodeSuccess, call("alice"))
	assert.Equal(t, response.CodeSuccess, call("alice"))
	assert.Equal(t, response.CodeQuotaExceeded, call("alice"))
	// 其他用户不受影响
	assert.Equal(t, response.CodeSuccess, call("bob"))
}

func TestRateLimiter_EvictsIdle(t *testing.T) {
	limiter := NewRateLimiter(1, 1)
	now := time.Now()
	limiter.now = func() time.Time { return now }

	assert.True(t, limiter.allow("a"))
	assert.False(t, limiter.allow("a"))

	now = now.Add(limiterIdle + time.Second)
	assert.True(t, limiter.allow("b"))
	limiter.mu.Lock()
	_, kept := limiter.visitors["a"]
	limiter.mu.Unlock()
	assert.False(t, kept)
}
