package security

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"

	"woof-guard/internal/domain"
)

// SentrySink captura alertas como mensagens no Sentry
type SentrySink struct {
	hub *sentry.Hub
}

// NewSentrySink cria um client Sentry dedicado ao gate
func NewSentrySink(dsn, environment string) (*SentrySink, error) {
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
		ServerName:  "woof-guard",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Sentry client: %w", err)
	}
	return NewSentrySinkWithHub(sentry.NewHub(client, sentry.NewScope())), nil
}

// NewSentrySinkWithHub usa um hub já configurado
func NewSentrySinkWithHub(hub *sentry.Hub) *SentrySink {
	return &SentrySink{hub: hub}
}

// Capture envia o texto com nível e contexto em um escopo isolado
func (s *SentrySink) Capture(ctx context.Context, text string, level domain.AlertLevel, alertContext map[string]interface{}) error {
	var eventID *sentry.EventID

	s.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentryLevel(level))
		scope.SetTag("component", "security_gate")
		if eventType, ok := alertContext["eventType"].(string); ok {
			scope.SetTag("event_type", eventType)
		}
		scope.SetContext("security", sentry.Context(alertContext))
		eventID = s.hub.CaptureMessage(text)
	})

	if eventID == nil {
		return errors.New("sentry dropped the alert")
	}
	return nil
}

// Flush aguarda o envio dos eventos pendentes
func (s *SentrySink) Flush(timeout time.Duration) bool {
	return s.hub.Flush(timeout)
}

func (s *SentrySink) Name() string {
	return "sentry"
}

func sentryLevel(level domain.AlertLevel) sentry.Level {
	switch level {
	case domain.AlertLevelError:
		return sentry.LevelError
	case domain.AlertLevelInfo:
		return sentry.LevelInfo
	default:
		return sentry.LevelWarning
	}
}

// RedisSink publica alertas em um canal Redis (PUBLISH)
type RedisSink struct {
	client  redis.Cmdable
	channel string
	clock   domain.Clock
}

// redisAlertMessage é o payload publicado no canal
type redisAlertMessage struct {
	Text      string                 `json:"text"`
	Level     domain.AlertLevel      `json:"level"`
	Context   map[string]interface{} `json:"context"`
	Timestamp time.Time              `json:"timestamp"`
}

// NewRedisSink cria o sink sobre um cliente existente
func NewRedisSink(client redis.Cmdable, channel string) *RedisSink {
	return &RedisSink{client: client, channel: channel, clock: time.Now}
}

func (s *RedisSink) Capture(ctx context.Context, text string, level domain.AlertLevel, alertContext map[string]interface{}) error {
	payload, err := json.Marshal(redisAlertMessage{
		Text:      text,
		Level:     level,
		Context:   alertContext,
		Timestamp: s.clock().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}

	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish alert to %s: %w", s.channel, err)
	}
	return nil
}

func (s *RedisSink) Name() string {
	return "redis"
}

// LogSink registra o alerta no próprio log; usado quando nenhum canal externo está configurado
type LogSink struct {
	logger domain.Logger
}

// NewLogSink cria o sink de fallback
func NewLogSink(logger domain.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Capture(_ context.Context, text string, level domain.AlertLevel, alertContext map[string]interface{}) error {
	fields := map[string]interface{}{
		"alert_text":  text,
		"alert_level": string(level),
		"context":     alertContext,
	}

	switch level {
	case domain.AlertLevelError:
		s.logger.Error("Security alert captured", nil, fields)
	case domain.AlertLevelInfo:
		s.logger.Info("Security alert captured", fields)
	default:
		s.logger.Warn("Security alert captured", fields)
	}
	return nil
}

func (s *LogSink) Name() string {
	return "log"
}

// FanoutSink entrega a todos os sinks e agrega os erros
type FanoutSink struct {
	sinks []domain.AlertSink
}

// NewFanoutSink combina vários sinks
func NewFanoutSink(sinks ...domain.AlertSink) *FanoutSink {
	return &FanoutSink{sinks: sinks}
}

func (s *FanoutSink) Capture(ctx context.Context, text string, level domain.AlertLevel, alertContext map[string]interface{}) error {
	var errs []error
	for _, sink := range s.sinks {
		if err := sink.Capture(ctx, text, level, alertContext); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (s *FanoutSink) Name() string {
	names := ""
	for i, sink := range s.sinks {
		if i > 0 {
			names += "+"
		}
		names += sink.Name()
	}
	return names
}
