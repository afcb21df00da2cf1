package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"woof-guard/internal/logger"
)

func TestRequestContext(t *testing.T) {
	tests := []struct {
		name       string
		incoming   string
		expectKeep bool
	}{
		{name: "Generates when absent"},
		{name: "Keeps a well formed id", incoming: "req-abc_123.x", expectKeep: true},
		{name: "Replaces an invalid id", incoming: "bad id with spaces"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var fromGin, fromCtx string
			router := gin.New()
			router.Use(RequestContext())
			router.GET("/", func(c *gin.Context) {
				fromGin = GetRequestID(c)
				fromCtx = logger.GetRequestID(c.Request.Context())
				c.Status(http.StatusNoContent)
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			require.NotEmpty(t, fromGin)
			assert.Equal(t, fromGin, fromCtx)
			assert.Equal(t, fromGin, rec.Header().Get(RequestIDHeader))
			if tt.expectKeep {
				assert.Equal(t, tt.incoming, fromGin)
			} else {
				assert.NotEqual(t, tt.incoming, fromGin)
				assert.Len(t, fromGin, 36)
			}
		})
	}
}

func TestClientIP_RemoteAddrWithoutPort(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = "unix-socket"

	assert.Equal(t, "unix-socket", ClientIP(c))
}

func TestEndpointName(t *testing.T) {
	var endpoints []string
	record := func(c *gin.Context) {
		endpoints = append(endpoints, endpointName(c))
		c.Status(http.StatusNoContent)
	}

	router := gin.New()
	router.GET("/api/messages/conversation/:matchId", record)
	router.NoRoute(record)

	for _, path := range []string{"/api/messages/conversation/42", "/random/1", "/random/2"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, []string{"/api/messages/conversation/:matchId", UnmatchedEndpoint, UnmatchedEndpoint}, endpoints)
}
