package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"woof-guard/internal/domain"
	"woof-guard/internal/logger"
)

func setupInspectorRouter(monitor domain.SecurityMonitor, maxBody int64) (*gin.Engine, *string) {
	var received string
	router := gin.New()
	router.Use(RequestContext(), NewPayloadInspector(monitor, logger.Nop(), maxBody))
	handler := func(c *gin.Context) {
		data, _ := io.ReadAll(c.Request.Body)
		received = string(data)
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
	router.POST("/api/messages/send/:matchId", handler)
	router.GET("/api/messages/conversation/:matchId", handler)
	router.GET("/files/*path", handler)
	return router, &received
}

func TestPayloadInspector(t *testing.T) {
	tests := []struct {
		name            string
		method          string
		target          string
		contentType     string
		body            string
		expectedStatus  int
		expectedPattern string
	}{
		{
			name:           "Clean JSON body passes",
			method:         http.MethodPost,
			target:         "/api/messages/send/abc",
			contentType:    "application/json",
			body:           `{"content":"see you at the dog park at 5?"}`,
			expectedStatus: http.StatusOK,
		},
		{
			name:            "Script tag in JSON body",
			method:          http.MethodPost,
			target:          "/api/messages/send/abc",
			contentType:     "application/json",
			body:            `{"content":"<script>alert(1)</script>"}`,
			expectedStatus:  http.StatusBadRequest,
			expectedPattern: "script_injection",
		},
		{
			name:            "Event handler attribute nested in array",
			method:          http.MethodPost,
			target:          "/api/messages/send/abc",
			contentType:     "application/json; charset=utf-8",
			body:            `{"attachments":[{"caption":"<img src=x onerror=alert(1)>"}]}`,
			expectedStatus:  http.StatusBadRequest,
			expectedPattern: "script_injection",
		},
		{
			name:            "NoSQL operator key in JSON body",
			method:          http.MethodPost,
			target:          "/api/messages/send/abc",
			contentType:     "application/json",
			body:            `{"email":{"$ne":null},"password":{"$gt":""}}`,
			expectedStatus:  http.StatusBadRequest,
			expectedPattern: "nosql_operator",
		},
		{
			name:            "NoSQL operator in query key",
			method:          http.MethodGet,
			target:          "/api/messages/conversation/abc?user[$where]=1",
			expectedStatus:  http.StatusBadRequest,
			expectedPattern: "nosql_operator",
		},
		{
			name:            "Script in query value",
			method:          http.MethodGet,
			target:          "/api/messages/conversation/abc?q=javascript:alert(1)",
			expectedStatus:  http.StatusBadRequest,
			expectedPattern: "script_injection",
		},
		{
			name:            "Encoded traversal in path",
			method:          http.MethodGet,
			target:          "/files/%2e%2e%2fetc%2fpasswd",
			expectedStatus:  http.StatusBadRequest,
			expectedPattern: "path_traversal",
		},
		{
			name:            "Traversal in form body",
			method:          http.MethodPost,
			target:          "/api/messages/send/abc",
			contentType:     "application/x-www-form-urlencoded",
			body:            "file=../../etc/passwd",
			expectedStatus:  http.StatusBadRequest,
			expectedPattern: "path_traversal",
		},
		{
			name:           "Plain text body is not inspected",
			method:         http.MethodPost,
			target:         "/api/messages/send/abc",
			contentType:    "text/plain",
			body:           "<script>",
			expectedStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			monitor := &recordingMonitor{}
			router, _ := setupInspectorRouter(monitor, 0)

			req := httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			if tt.expectedStatus != http.StatusBadRequest {
				assert.Empty(t, monitor.Events())
				return
			}

			assert.JSONEq(t, `{"success":false,"message":"Invalid input detected","code":"MALICIOUS_PAYLOAD_DETECTED"}`, rec.Body.String())
			events := monitor.Events()
			require.Len(t, events, 1)
			assert.Equal(t, domain.EventMaliciousPayload, events[0].Type)
			assert.Equal(t, tt.expectedPattern, events[0].Details["pattern"])
			assert.NotEmpty(t, events[0].RequestID)
		})
	}
}

func TestPayloadInspector_BodyIsRestored(t *testing.T) {
	router, received := setupInspectorRouter(&recordingMonitor{}, 16)

	body := `{"content":"a message longer than the inspection limit"}`
	req := httptest.NewRequest(http.MethodPost, "/api/messages/send/abc", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, body, *received)
}
