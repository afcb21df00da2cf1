package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config representa todas as configurações da aplicação
type Config struct {
	// Application
	AppEnv      string
	BypassLimit bool
	AdminToken  string
	UpstreamURL string

	// Proxy reverso à frente do gate
	TrustProxy     bool
	TrustedProxies []string

	// Server Configuration
	ServerPort string
	GinMode    string

	// Logging Configuration
	LogLevel  string
	LogFormat string

	// Storage Configuration
	StorageType   string
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Security Monitor Configuration
	MonitorWindow    time.Duration
	MonitorThreshold int

	// Alerting Configuration
	AlertBufferSize     int
	AlertCaptureTimeout time.Duration
	SentryDSN           string
	AlertRedisChannel   string

	// Policy/route files
	PolicyFile string
	RoutesFile string
}

// IsDevelopment indica ambiente de desenvolvimento (nenhuma política é aplicada)
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.AppEnv, "development")
}

// RateLimitBypassed indica se o modo bypass está ativo
func (c *Config) RateLimitBypassed() bool {
	return c.BypassLimit || c.IsDevelopment()
}

// TrustedProxyList retorna os proxies cujos cabeçalhos de encaminhamento são aceitos
// Vazio (nil) quando TRUST_PROXY_HEADERS está desligado
func (c *Config) TrustedProxyList() []string {
	if !c.TrustProxy {
		return nil
	}
	return c.TrustedProxies
}

// ConfigLoader carrega configurações, políticas e rotas
type ConfigLoader struct {
	policies *PolicyCatalog
	routes   RouteTable
}

// NewConfigLoader cria uma nova instância do ConfigLoader
func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{}
}

// LoadConfig carrega as configurações do .env e do ambiente
func (c *ConfigLoader) LoadConfig() (*Config, error) {
	// Carrega o arquivo .env se existir
	if err := godotenv.Load(); err != nil {
		// Se não encontrar .env, continua com variáveis do sistema
		fmt.Fprintln(os.Stderr, "Warning: .env file not found, using system environment variables")
	}

	config, err := c.loadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load environment config: %w", err)
	}

	policies, err := LoadPolicies(config.PolicyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load policies: %w", err)
	}

	routes, err := LoadRoutes(config.RoutesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load routes: %w", err)
	}
	if err := routes.Validate(policies); err != nil {
		return nil, fmt.Errorf("route table validation failed: %w", err)
	}

	c.policies = policies
	c.routes = routes

	return config, nil
}

// Policies retorna o catálogo de políticas carregado
func (c *ConfigLoader) Policies() *PolicyCatalog {
	return c.policies
}

// Routes retorna a tabela de rotas carregada
func (c *ConfigLoader) Routes() RouteTable {
	return c.routes
}

// loadFromEnv carrega configurações das variáveis de ambiente
func (c *ConfigLoader) loadFromEnv() (*Config, error) {
	config := &Config{
		AppEnv:      getEnvWithDefault("APP_ENV", "production"),
		AdminToken:  getEnvWithDefault("ADMIN_TOKEN", ""),
		UpstreamURL: getEnvWithDefault("UPSTREAM_URL", ""),

		// Server defaults
		ServerPort: getEnvWithDefault("SERVER_PORT", "8080"),
		GinMode:    getEnvWithDefault("GIN_MODE", "release"),

		// Logging defaults
		LogLevel:  getEnvWithDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvWithDefault("LOG_FORMAT", "json"),

		// Storage defaults
		StorageType:   strings.ToLower(getEnvWithDefault("STORAGE_TYPE", "memory")),
		RedisHost:     getEnvWithDefault("REDIS_HOST", "localhost"),
		RedisPort:     getEnvWithDefault("REDIS_PORT", "6379"),
		RedisPassword: getEnvWithDefault("REDIS_PASSWORD", ""),

		// Alerting defaults
		SentryDSN:         getEnvWithDefault("SENTRY_DSN", ""),
		AlertRedisChannel: getEnvWithDefault("ALERT_REDIS_CHANNEL", ""),

		PolicyFile: getEnvWithDefault("POLICY_FILE", ""),
		RoutesFile: getEnvWithDefault("ROUTES_FILE", ""),
	}

	var err error

	if config.BypassLimit, err = strconv.ParseBool(getEnvWithDefault("RATE_LIMIT_BYPASS", "false")); err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_BYPASS value: %w", err)
	}

	if config.TrustProxy, err = strconv.ParseBool(getEnvWithDefault("TRUST_PROXY_HEADERS", "false")); err != nil {
		return nil, fmt.Errorf("invalid TRUST_PROXY_HEADERS value: %w", err)
	}

	config.TrustedProxies = splitList(getEnvWithDefault("TRUSTED_PROXIES", ""))

	if config.RedisDB, err = strconv.Atoi(getEnvWithDefault("REDIS_DB", "0")); err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB value: %w", err)
	}

	if config.MonitorWindow, err = time.ParseDuration(getEnvWithDefault("MONITOR_WINDOW", "5m")); err != nil {
		return nil, fmt.Errorf("invalid MONITOR_WINDOW value: %w", err)
	}

	if config.MonitorThreshold, err = strconv.Atoi(getEnvWithDefault("MONITOR_THRESHOLD", "10")); err != nil {
		return nil, fmt.Errorf("invalid MONITOR_THRESHOLD value: %w", err)
	}

	if config.AlertBufferSize, err = strconv.Atoi(getEnvWithDefault("ALERT_BUFFER_SIZE", "256")); err != nil {
		return nil, fmt.Errorf("invalid ALERT_BUFFER_SIZE value: %w", err)
	}

	if config.AlertCaptureTimeout, err = time.ParseDuration(getEnvWithDefault("ALERT_CAPTURE_TIMEOUT", "5s")); err != nil {
		return nil, fmt.Errorf("invalid ALERT_CAPTURE_TIMEOUT value: %w", err)
	}

	// Valida configurações obrigatórias
	if err := c.validateConfig(config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// validateConfig valida se as configurações são válidas
func (c *ConfigLoader) validateConfig(config *Config) error {
	if config.StorageType != "memory" && config.StorageType != "redis" {
		return fmt.Errorf("STORAGE_TYPE must be 'memory' or 'redis'")
	}

	if config.RedisDB < 0 || config.RedisDB > 15 {
		return fmt.Errorf("REDIS_DB must be between 0 and 15")
	}

	if config.TrustProxy && len(config.TrustedProxies) == 0 {
		return fmt.Errorf("TRUSTED_PROXIES must list the proxy addresses when TRUST_PROXY_HEADERS is enabled")
	}

	if config.MonitorWindow <= 0 {
		return fmt.Errorf("MONITOR_WINDOW must be greater than 0")
	}

	if config.MonitorThreshold <= 0 {
		return fmt.Errorf("MONITOR_THRESHOLD must be greater than 0")
	}

	if config.AlertBufferSize <= 0 {
		return fmt.Errorf("ALERT_BUFFER_SIZE must be greater than 0")
	}

	if config.AlertCaptureTimeout <= 0 {
		return fmt.Errorf("ALERT_CAPTURE_TIMEOUT must be greater than 0")
	}

	return nil
}

// getEnvWithDefault retorna o valor da variável de ambiente ou um valor padrão
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// splitList separa uma lista por vírgulas, ignorando itens vazios
func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
