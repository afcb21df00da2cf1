package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	"woof-guard/internal/domain"
	"woof-guard/internal/security"
)

// DefaultMaxInspectedBody limita quanto do corpo é inspecionado
const DefaultMaxInspectedBody int64 = 64 << 10

var (
	scriptPattern    = regexp.MustCompile(`(?i)<\s*script\b|javascript\s*:|\bon(?:error|load|click|mouseover|focus)\s*=|<\s*iframe\b`)
	traversalPattern = regexp.MustCompile(`(?i)(?:\.\.[/\\])|(?:%2e%2e(?:%2f|%5c|/|\\))|(?:\.\.%2f)|(?:\.\.%5c)`)
)

// operadores de consulta NoSQL que nunca são aceitos como chave de entrada
var nosqlOperators = map[string]struct{}{
	"$where": {}, "$ne": {}, "$gt": {}, "$gte": {}, "$lt": {}, "$lte": {},
	"$regex": {}, "$in": {}, "$nin": {}, "$or": {}, "$and": {}, "$expr": {},
	"$exists": {}, "$function": {},
}

// finding descreve o primeiro padrão malicioso encontrado
type finding struct {
	location string
	pattern  string
}

// PayloadInspector rejeita requisições com padrões de injeção conhecidos
type PayloadInspector struct {
	monitor domain.SecurityMonitor
	logger  domain.Logger
	maxBody int64
}

// NewPayloadInspector cria o middleware de inspeção
func NewPayloadInspector(monitor domain.SecurityMonitor, logger domain.Logger, maxBody int64) gin.HandlerFunc {
	if maxBody <= 0 {
		maxBody = DefaultMaxInspectedBody
	}
	inspector := &PayloadInspector{
		monitor: monitor,
		logger:  logger,
		maxBody: maxBody,
	}
	return inspector.Handle
}

// Handle inspeciona caminho, query e corpo; o corpo é restaurado para os próximos handlers
func (p *PayloadInspector) Handle(c *gin.Context) {
	found := p.inspectPath(c.Request.URL)
	if found == nil {
		found = p.inspectQuery(c.Request.URL.Query())
	}
	if found == nil {
		found = p.inspectBody(c)
	}

	if found == nil {
		c.Next()
		return
	}

	endpoint := endpointName(c)
	clientIP := ClientIP(c)

	p.logger.WithContext(c.Request.Context()).Warn("Malicious payload rejected", map[string]interface{}{
		"endpoint": endpoint,
		"location": found.location,
		"pattern":  found.pattern,
	})

	if p.monitor != nil {
		event := security.MaliciousPayload(endpoint, clientIP, found.location, found.pattern)
		event.RequestID = GetRequestID(c)
		p.monitor.RecordEvent(event)
	}

	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"success": false,
		"message": "Invalid input detected",
		"code":    string(domain.EventMaliciousPayload),
	})
}

func (p *PayloadInspector) inspectPath(u *url.URL) *finding {
	for _, candidate := range []string{u.Path, u.RawPath} {
		if traversalPattern.MatchString(candidate) {
			return &finding{location: "path", pattern: "path_traversal"}
		}
	}
	return nil
}

func (p *PayloadInspector) inspectQuery(values url.Values) *finding {
	for key, items := range values {
		if f := inspectKey(key, "query"); f != nil {
			return f
		}
		for _, item := range items {
			if f := inspectString(item, "query"); f != nil {
				return f
			}
		}
	}
	return nil
}

// inspectBody lê até maxBody bytes de corpos JSON ou de formulário
func (p *PayloadInspector) inspectBody(c *gin.Context) *finding {
	if c.Request.Body == nil || c.Request.Body == http.NoBody {
		return nil
	}

	contentType := strings.ToLower(c.ContentType())
	isJSON := strings.Contains(contentType, "json")
	isForm := contentType == gin.MIMEPOSTForm
	if !isJSON && !isForm {
		return nil
	}

	data, err := io.ReadAll(io.LimitReader(c.Request.Body, p.maxBody))
	// o restante do corpo segue intacto para o upstream
	c.Request.Body = readCloser{Reader: io.MultiReader(bytes.NewReader(data), c.Request.Body), Closer: c.Request.Body}
	if err != nil || len(data) == 0 {
		return nil
	}

	if isForm {
		values, err := url.ParseQuery(string(data))
		if err != nil {
			return inspectString(string(data), "body")
		}
		return p.inspectQuery(values)
	}

	var payload interface{}
	if err := json.Unmarshal(data, &payload); err != nil {
		return inspectString(string(data), "body")
	}

	if body, ok := payload.(map[string]interface{}); ok {
		if email, ok := body["email"].(string); ok {
			c.Set(PayloadEmailKey, email)
		}
	}
	return inspectJSON(payload, "body")
}

func inspectJSON(value interface{}, location string) *finding {
	switch v := value.(type) {
	case map[string]interface{}:
		for key, item := range v {
			if f := inspectKey(key, location); f != nil {
				return f
			}
			if f := inspectJSON(item, location); f != nil {
				return f
			}
		}
	case []interface{}:
		for _, item := range v {
			if f := inspectJSON(item, location); f != nil {
				return f
			}
		}
	case string:
		return inspectString(v, location)
	}
	return nil
}

// inspectKey detecta operadores NoSQL tanto em chaves JSON quanto em chaves
// de query no estilo filter[$ne]
func inspectKey(key, location string) *finding {
	lower := strings.ToLower(key)
	if _, ok := nosqlOperators[lower]; ok {
		return &finding{location: location, pattern: "nosql_operator"}
	}
	if i := strings.Index(lower, "[$"); i >= 0 {
		operator := strings.TrimSuffix(lower[i+1:], "]")
		if _, ok := nosqlOperators[operator]; ok {
			return &finding{location: location, pattern: "nosql_operator"}
		}
	}
	return inspectString(key, location)
}

func inspectString(value, location string) *finding {
	switch {
	case scriptPattern.MatchString(value):
		return &finding{location: location, pattern: "script_injection"}
	case traversalPattern.MatchString(value):
		return &finding{location: location, pattern: "path_traversal"}
	}
	return nil
}

type readCloser struct {
	io.Reader
	io.Closer
}
