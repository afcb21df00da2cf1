package handler

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/gin-gonic/gin"

	"woof-guard/internal/domain"
	"woof-guard/internal/middleware"
)

// NewUpstream devolve o proxy reverso para o backend ou, sem URL, o handler stub
func NewUpstream(rawURL string, logger domain.Logger) (gin.HandlerFunc, error) {
	if rawURL == "" {
		return StubUpstream, nil
	}

	target, err := url.Parse(rawURL)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid upstream URL %q", rawURL)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.WithContext(r.Context()).Error("Upstream request failed", err, map[string]interface{}{
			"upstream": target.Host,
			"path":     r.URL.Path,
		})
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"success":false,"message":"Upstream unavailable","code":"UPSTREAM_UNAVAILABLE"}`))
	}

	return func(c *gin.Context) {
		c.Request.Header.Set(middleware.RequestIDHeader, middleware.GetRequestID(c))
		proxy.ServeHTTP(c.Writer, c.Request)
	}, nil
}

// StubUpstream responde 200 para que o gate rode sem backend
func StubUpstream(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Request accepted by security gate",
		"path":    c.Request.URL.Path,
		"method":  c.Request.Method,
	})
}
