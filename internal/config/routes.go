package config

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"woof-guard/internal/domain"

	"gopkg.in/yaml.v3"
)

// RouteTable descreve quais rotas são protegidas por quais políticas
type RouteTable struct {
	// Global é aplicada a todas as rotas da API antes da política específica
	Global string             `json:"global" yaml:"global"`
	Routes []domain.RouteRule `json:"routes" yaml:"routes"`
}

// DefaultRoutes retorna a tabela de rotas da API Woof Meetup
func DefaultRoutes() RouteTable {
	return RouteTable{
		Global: PolicyGeneral,
		Routes: []domain.RouteRule{
			{Method: http.MethodPost, Path: "/api/auth/login", Policy: PolicyLogin},
			{Method: http.MethodPost, Path: "/api/auth/signup", Policy: PolicySignup},
			{Method: http.MethodPost, Path: "/api/auth/reset-password/:token", Policy: PolicyPasswordReset},
			{Method: http.MethodPost, Path: "/api/auth/forgot-password", Policy: PolicyForgotPassword},
			{Method: http.MethodPost, Path: "/api/auth/verify-email", Policy: PolicyVerifyEmail},
			{Method: http.MethodPost, Path: "/api/auth/verify-turnstile", Policy: PolicyTurnstile},
			{Method: http.MethodDelete, Path: "/api/auth/delete-account", Policy: PolicyDeletionEndpoint},
			{Method: http.MethodGet, Path: "/api/csrf-token", Policy: PolicyCSRFToken},
			{Method: http.MethodPost, Path: "/api/messages/send/:matchId", Policy: PolicyMessageSending},
			{Method: http.MethodGet, Path: "/api/messages/conversation/:matchId", Policy: PolicyMessageRetrieval},
			{Method: http.MethodDelete, Path: "/api/messages/:messageId", Policy: PolicyMessageDeletion},
		},
	}
}

// ParseRoutes lê a tabela de rotas em YAML
func ParseRoutes(data []byte) (RouteTable, error) {
	var table RouteTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return RouteTable{}, fmt.Errorf("failed to parse routes file: %w", err)
	}
	for i := range table.Routes {
		table.Routes[i].Method = strings.ToUpper(strings.TrimSpace(table.Routes[i].Method))
		table.Routes[i].Policy = strings.ToUpper(strings.TrimSpace(table.Routes[i].Policy))
	}
	table.Global = strings.ToUpper(strings.TrimSpace(table.Global))
	return table, nil
}

// Validate garante que toda rota referencia uma política existente
func (t RouteTable) Validate(catalog *PolicyCatalog) error {
	if t.Global != "" {
		if _, err := catalog.Get(t.Global); err != nil {
			return fmt.Errorf("global route policy: %w", err)
		}
	}

	seen := make(map[string]struct{}, len(t.Routes))
	for _, route := range t.Routes {
		if route.Method == "" || !strings.HasPrefix(route.Path, "/") {
			return fmt.Errorf("invalid route %q %q", route.Method, route.Path)
		}
		if _, err := catalog.Get(route.Policy); err != nil {
			return fmt.Errorf("route %s %s: %w", route.Method, route.Path, err)
		}
		id := route.Method + " " + route.Path
		if _, dup := seen[id]; dup {
			return fmt.Errorf("duplicate route %s", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// LoadRoutes retorna a tabela padrão ou a do arquivo informado
func LoadRoutes(routesFile string) (RouteTable, error) {
	if routesFile == "" {
		return DefaultRoutes(), nil
	}
	data, err := os.ReadFile(routesFile)
	if err != nil {
		return RouteTable{}, fmt.Errorf("failed to read routes file: %w", err)
	}
	return ParseRoutes(data)
}
