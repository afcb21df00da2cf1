package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"woof-guard/internal/domain"

	"gopkg.in/yaml.v3"
)

// Nomes das políticas conhecidas pelos clientes da API
const (
	PolicyLogin            = "LOGIN"
	PolicySignup           = "SIGNUP"
	PolicyPasswordReset    = "PASSWORD_RESET"
	PolicyForgotPassword   = "FORGOT_PASSWORD"
	PolicyVerifyEmail      = "VERIFY_EMAIL"
	PolicyMessageSending   = "MESSAGE_SENDING"
	PolicyMessageRetrieval = "MESSAGE_RETRIEVAL"
	PolicyMessageDeletion  = "MESSAGE_DELETION"
	PolicyGeneral          = "GENERAL"
	PolicyCSRFToken        = "CSRF_TOKEN"
	PolicyTurnstile        = "TURNSTILE"
	PolicyDeletionEndpoint = "DELETION_ENDPOINT"
)

// ErrorCodeFor deriva o código de erro padrão de uma política
func ErrorCodeFor(policyName string) string {
	return policyName + "_RATE_LIMIT_EXCEEDED"
}

func policy(name string, maxRequests int, window time.Duration, message string, skipSuccessful bool) domain.RateLimitPolicy {
	return domain.RateLimitPolicy{
		Name:                   name,
		MaxRequests:            maxRequests,
		Window:                 window,
		UserMessage:            message,
		ErrorCode:              ErrorCodeFor(name),
		SkipSuccessfulRequests: skipSuccessful,
	}
}

// DefaultPolicies retorna o catálogo de políticas de produção
func DefaultPolicies() []domain.RateLimitPolicy {
	return []domain.RateLimitPolicy{
		policy(PolicyLogin, 5, 15*time.Minute, "Too many login attempts, please try again after 15 minutes", true),
		policy(PolicySignup, 3, time.Hour, "Too many accounts created from this IP, please try again after an hour", false),
		policy(PolicyPasswordReset, 3, time.Hour, "Too many password reset attempts, please try again after an hour", true),
		policy(PolicyForgotPassword, 3, time.Hour, "Too many password reset requests, please try again after an hour", false),
		policy(PolicyVerifyEmail, 5, 15*time.Minute, "Too many verification attempts, please try again after 15 minutes", true),
		policy(PolicyMessageSending, 30, time.Minute, "You are sending messages too quickly, please slow down", false),
		policy(PolicyMessageRetrieval, 100, 15*time.Minute, "Too many message requests, please try again later", false),
		policy(PolicyMessageDeletion, 20, time.Minute, "Too many message deletions, please slow down", false),
		policy(PolicyGeneral, 1000, 15*time.Minute, "Too many requests from this IP, please try again later", false),
		policy(PolicyCSRFToken, 100, 15*time.Minute, "Too many CSRF token requests, please try again later", false),
		policy(PolicyTurnstile, 10, time.Hour, "Too many verification attempts, please try again later", false),
		policy(PolicyDeletionEndpoint, 1, 24*time.Hour, "Account deletion already initiated, please wait 24 hours", false),
	}
}

// PolicyCatalog indexa as políticas efetivas por nome
type PolicyCatalog struct {
	policies map[string]domain.RateLimitPolicy
}

// NewPolicyCatalog valida e indexa as políticas; nomes duplicados são rejeitados
func NewPolicyCatalog(policies []domain.RateLimitPolicy) (*PolicyCatalog, error) {
	catalog := &PolicyCatalog{policies: make(map[string]domain.RateLimitPolicy, len(policies))}
	for _, p := range policies {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, exists := catalog.policies[p.Name]; exists {
			return nil, domain.NewPolicyError(p.Name, "duplicate policy name")
		}
		catalog.policies[p.Name] = p
	}
	return catalog, nil
}

// Get retorna a política pelo nome (sem distinção de caixa)
func (c *PolicyCatalog) Get(name string) (domain.RateLimitPolicy, error) {
	p, ok := c.policies[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return domain.RateLimitPolicy{}, fmt.Errorf("%w: %s", domain.ErrUnknownPolicy, name)
	}
	return p, nil
}

// All retorna as políticas ordenadas por nome
func (c *PolicyCatalog) All() []domain.RateLimitPolicy {
	all := make([]domain.RateLimitPolicy, 0, len(c.policies))
	for _, p := range c.policies {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all
}

// Len retorna a quantidade de políticas
func (c *PolicyCatalog) Len() int {
	return len(c.policies)
}

// PolicyOverride representa uma entrada do arquivo POLICY_FILE
// Campos ausentes mantêm o valor do catálogo padrão
type PolicyOverride struct {
	MaxRequests            *int    `yaml:"maxRequests"`
	Window                 *string `yaml:"window"`
	UserMessage            *string `yaml:"userMessage"`
	ErrorCode              *string `yaml:"errorCode"`
	SkipSuccessfulRequests *bool   `yaml:"skipSuccessfulRequests"`
}

// PoliciesFile representa a estrutura do arquivo de políticas
type PoliciesFile struct {
	Policies map[string]PolicyOverride `yaml:"policies"`
}

// ParsePolicyOverrides aplica o YAML sobre o catálogo base
func ParsePolicyOverrides(data []byte, base []domain.RateLimitPolicy) ([]domain.RateLimitPolicy, error) {
	var file PoliciesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}

	merged := make(map[string]domain.RateLimitPolicy, len(base)+len(file.Policies))
	order := make([]string, 0, len(base)+len(file.Policies))
	for _, p := range base {
		merged[p.Name] = p
		order = append(order, p.Name)
	}

	names := make([]string, 0, len(file.Policies))
	for name := range file.Policies {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, rawName := range names {
		override := file.Policies[rawName]
		name := strings.ToUpper(strings.TrimSpace(rawName))

		p, exists := merged[name]
		if !exists {
			p = domain.RateLimitPolicy{Name: name, ErrorCode: ErrorCodeFor(name)}
			order = append(order, name)
		}

		if override.MaxRequests != nil {
			p.MaxRequests = *override.MaxRequests
		}
		if override.Window != nil {
			window, err := time.ParseDuration(*override.Window)
			if err != nil {
				return nil, fmt.Errorf("invalid window for policy %s: %w", name, err)
			}
			p.Window = window
		}
		if override.UserMessage != nil {
			p.UserMessage = *override.UserMessage
		}
		if override.ErrorCode != nil {
			p.ErrorCode = *override.ErrorCode
		}
		if override.SkipSuccessfulRequests != nil {
			p.SkipSuccessfulRequests = *override.SkipSuccessfulRequests
		}

		merged[name] = p
	}

	result := make([]domain.RateLimitPolicy, 0, len(order))
	for _, name := range order {
		result = append(result, merged[name])
	}
	return result, nil
}

// LoadPolicies monta o catálogo efetivo: padrão + arquivo opcional
func LoadPolicies(policyFile string) (*PolicyCatalog, error) {
	policies := DefaultPolicies()

	if policyFile != "" {
		data, err := os.ReadFile(policyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read policy file: %w", err)
		}
		policies, err = ParsePolicyOverrides(data, policies)
		if err != nil {
			return nil, err
		}
	}

	return NewPolicyCatalog(policies)
}
