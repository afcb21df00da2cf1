package handler

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"woof-guard/internal/config"
	"woof-guard/internal/domain"
	"woof-guard/internal/metrics"
	"woof-guard/internal/middleware"
	"woof-guard/internal/security"
	"woof-guard/internal/service"
)

// Dependencies reúne tudo o que as rotas precisam
type Dependencies struct {
	Factory        *service.LimiterFactory
	Admin          *service.AdminService
	Monitor        domain.SecurityMonitor
	MonitorConfig  security.MonitorConfig
	Metrics        *metrics.Metrics
	Upstream       gin.HandlerFunc
	Logger         domain.Logger
	AdminToken     string
	// TrustedProxies lista os proxies cujos cabeçalhos de encaminhamento são aceitos; vazio confia apenas no RemoteAddr
	TrustedProxies []string
}

// Handlers contém os handlers da API
type Handlers struct {
	deps      Dependencies
	limiters  map[string]*service.Limiter
	startTime time.Time
}

// NewHandlers cria uma nova instância dos handlers
func NewHandlers(deps Dependencies) *Handlers {
	if deps.Upstream == nil {
		deps.Upstream = StubUpstream
	}
	return &Handlers{
		deps:      deps,
		limiters:  make(map[string]*service.Limiter),
		startTime: time.Now(),
	}
}

// SetupRoutes registra a tabela de rotas protegidas, o catch-all e as rotas operacionais.
// Políticas inválidas ou desconhecidas interrompem a inicialização.
func (h *Handlers) SetupRoutes(router *gin.Engine, routes config.RouteTable) error {
	if err := router.SetTrustedProxies(h.deps.TrustedProxies); err != nil {
		return fmt.Errorf("invalid trusted proxies: %w", err)
	}
	router.Use(middleware.RequestContext())

	// Rotas operacionais (sem rate limiting)
	router.GET("/health", h.HealthHandler)
	router.GET("/metrics", gin.WrapH(h.deps.Metrics.Handler()))

	admin := router.Group("/admin")
	admin.Use(h.adminAuth)
	{
		admin.GET("/status", h.AdminStatusHandler)
		admin.POST("/reset", h.AdminResetHandler)
		admin.GET("/policies", h.AdminPoliciesHandler)
		admin.GET("/alerts", h.AdminAlertsHandler)
	}

	global, err := h.globalChain(routes)
	if err != nil {
		return err
	}

	for _, route := range routes.Routes {
		gate, err := h.gateFor(route.Policy)
		if err != nil {
			return err
		}

		handlers := append(append([]gin.HandlerFunc{}, global...), gate, h.deps.Upstream)
		router.Handle(route.Method, route.Path, handlers...)
	}

	// Demais rotas da API passam apenas pela política global
	router.NoRoute(append(append([]gin.HandlerFunc{}, global...), h.deps.Upstream)...)

	h.deps.Logger.Info("Routes configured", map[string]interface{}{
		"routes":        len(routes.Routes),
		"global_policy": routes.Global,
		"bypass":        h.deps.Factory.Bypassed(),
	})
	return nil
}

// globalChain monta a política global, a inspeção de payload e o relato de resultados
func (h *Handlers) globalChain(routes config.RouteTable) ([]gin.HandlerFunc, error) {
	var chain []gin.HandlerFunc

	if routes.Global != "" {
		gate, err := h.gateFor(routes.Global)
		if err != nil {
			return nil, err
		}
		chain = append(chain, gate)
	}

	routePolicies := make(map[string]string, len(routes.Routes))
	for _, route := range routes.Routes {
		routePolicies[middleware.RouteKey(route.Method, route.Path)] = route.Policy
	}

	chain = append(chain,
		middleware.NewPayloadInspector(h.deps.Monitor, h.deps.Logger, middleware.DefaultMaxInspectedBody),
		middleware.NewOutcomeReporter(h.deps.Monitor, routePolicies),
	)
	return chain, nil
}

// gateFor cria (uma vez por política) o middleware de rate limiting
func (h *Handlers) gateFor(policyName string) (gin.HandlerFunc, error) {
	limiter, ok := h.limiters[policyName]
	if !ok {
		policy, err := h.deps.Admin.Policy(policyName)
		if err != nil {
			return nil, err
		}
		limiter, err = h.deps.Factory.CreateLimiter(policy)
		if err != nil {
			return nil, err
		}
		h.limiters[policyName] = limiter
	}

	return middleware.NewRateLimiterMiddleware(limiter, h.deps.Logger), nil
}

// HealthHandler verifica o storage dos contadores
func (h *Handlers) HealthHandler(c *gin.Context) {
	response := gin.H{
		"status":    "healthy",
		"service":   "woof-guard",
		"storage":   "ok",
		"bypass":    h.deps.Factory.Bypassed(),
		"uptime":    time.Since(h.startTime).Round(time.Second).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := h.deps.Admin.Health(c.Request.Context()); err != nil {
		h.deps.Logger.WithContext(c.Request.Context()).Error("Health check failed", err, nil)
		response["status"] = "unhealthy"
		response["storage"] = "unavailable"
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}

	c.JSON(http.StatusOK, response)
}

// AdminStatusHandler retorna o contador de um par (política, cliente)
func (h *Handlers) AdminStatusHandler(c *gin.Context) {
	policy := strings.TrimSpace(c.Query("policy"))
	key := strings.TrimSpace(c.Query("key"))

	if policy == "" || key == "" {
		validationError(c, "policy and key parameters are required")
		return
	}

	status, err := h.deps.Admin.GetStatus(c.Request.Context(), policy, key)
	if err != nil {
		h.adminError(c, "Failed to get rate limiter status", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "status": status})
}

// AdminResetRequest representa o corpo da requisição para reset
type AdminResetRequest struct {
	Policy string `json:"policy" binding:"required"`
	Key    string `json:"key" binding:"required"`
}

// AdminResetHandler limpa o contador de um par (política, cliente)
func (h *Handlers) AdminResetHandler(c *gin.Context) {
	var req AdminResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, "Invalid request body: "+err.Error())
		return
	}

	if err := h.deps.Admin.Reset(c.Request.Context(), strings.TrimSpace(req.Policy), strings.TrimSpace(req.Key)); err != nil {
		h.adminError(c, "Failed to reset rate limiter", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Rate limiter reset successfully",
		"policy":  strings.ToUpper(strings.TrimSpace(req.Policy)),
	})
}

// AdminPoliciesHandler lista o catálogo efetivo
func (h *Handlers) AdminPoliciesHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"bypass":   h.deps.Factory.Bypassed(),
		"policies": h.deps.Admin.Policies(),
	})
}

// AdminAlertsHandler expõe o estado das janelas de alerta
func (h *Handlers) AdminAlertsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"windowMs":  h.deps.MonitorConfig.Window.Milliseconds(),
		"threshold": h.deps.MonitorConfig.Threshold,
		"endpoints": h.deps.Monitor.Snapshot(),
	})
}

// adminAuth exige o bearer ADMIN_TOKEN quando configurado
func (h *Handlers) adminAuth(c *gin.Context) {
	if h.deps.AdminToken == "" {
		c.Next()
		return
	}

	token := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
	if subtle.ConstantTimeCompare([]byte(token), []byte(h.deps.AdminToken)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"message": "Invalid or missing admin token",
			"code":    "UNAUTHORIZED",
		})
		return
	}
	c.Next()
}

func (h *Handlers) adminError(c *gin.Context, message string, err error) {
	if errors.Is(err, domain.ErrUnknownPolicy) {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"message": err.Error(),
			"code":    "UNKNOWN_POLICY",
		})
		return
	}

	h.deps.Logger.WithContext(c.Request.Context()).Error(message, err, nil)
	c.JSON(http.StatusInternalServerError, gin.H{
		"success": false,
		"message": message,
		"code":    "INTERNAL_ERROR",
	})
}

func validationError(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"message": message,
		"code":    "VALIDATION_ERROR",
	})
}
