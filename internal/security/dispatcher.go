package security

import (
	"context"
	"fmt"
	"sync"
	"time"

	"woof-guard/internal/domain"
	"woof-guard/internal/metrics"
	"woof-guard/internal/redact"
)

// DefaultAlertBufferSize é a capacidade padrão da fila de alertas
const DefaultAlertBufferSize = 256

// defaultCaptureTimeout limita cada entrega ao canal externo
const defaultCaptureTimeout = 5 * time.Second

// Dispatcher entrega alertas ao sink em uma goroutine própria.
// Enqueue nunca bloqueia: com a fila cheia o alerta é descartado.
type Dispatcher struct {
	sink           domain.AlertSink
	queue          chan domain.Alert
	logger         domain.Logger
	metrics        *metrics.Metrics
	captureTimeout time.Duration

	mutex  sync.RWMutex
	closed bool
	done   chan struct{}
}

// DispatcherOption configura o Dispatcher
type DispatcherOption func(*Dispatcher)

// WithDispatcherMetrics liga os contadores de entrega e descarte
func WithDispatcherMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithCaptureTimeout altera o tempo máximo de cada entrega
func WithCaptureTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.captureTimeout = timeout
		}
	}
}

// NewDispatcher cria o despachante e inicia o worker
func NewDispatcher(sink domain.AlertSink, bufferSize int, logger domain.Logger, opts ...DispatcherOption) *Dispatcher {
	if bufferSize < 1 {
		bufferSize = DefaultAlertBufferSize
	}

	d := &Dispatcher{
		sink:           sink,
		queue:          make(chan domain.Alert, bufferSize),
		logger:         logger,
		captureTimeout: defaultCaptureTimeout,
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}

	go d.run()

	return d
}

// Enqueue agenda o alerta; retorna false se foi descartado
func (d *Dispatcher) Enqueue(alert domain.Alert) bool {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	if d.closed {
		d.logger.Warn("Alert dropped, dispatcher closed", map[string]interface{}{
			"endpoint":   alert.Endpoint,
			"event_type": alert.EventType,
		})
		return false
	}

	select {
	case d.queue <- alert:
		return true
	default:
		d.metrics.ObserveAlertDropped()
		d.logger.Warn("Alert dropped, dispatch queue full", map[string]interface{}{
			"endpoint":   alert.Endpoint,
			"event_type": alert.EventType,
			"capacity":   cap(d.queue),
		})
		return false
	}
}

// Close para de aceitar alertas e aguarda a fila esvaziar
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mutex.Lock()
	if d.closed {
		d.mutex.Unlock()
		return domain.ErrDispatcherClosed
	}
	d.closed = true
	close(d.queue)
	d.mutex.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("alert dispatcher drain interrupted: %w", ctx.Err())
	}
}

// Pending retorna quantos alertas aguardam entrega
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for alert := range d.queue {
		d.deliver(alert)
	}
}

// deliver repassa um alerta ao sink contendo erros e panics
func (d *Dispatcher) deliver(alert domain.Alert) {
	fields := map[string]interface{}{
		"sink":       d.sink.Name(),
		"endpoint":   alert.Endpoint,
		"event_type": alert.EventType,
	}

	defer func() {
		if r := recover(); r != nil {
			d.metrics.ObserveAlert(metrics.AlertFailed)
			fields["panic"] = fmt.Sprint(r)
			d.logger.Warn("Alert sink panicked", fields)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.captureTimeout)
	defer cancel()

	if err := d.sink.Capture(ctx, alert.Text, alert.Level, redact.Map(alert.Context)); err != nil {
		d.metrics.ObserveAlert(metrics.AlertFailed)
		fields["error"] = err.Error()
		d.logger.Warn("Failed to deliver alert", fields)
		return
	}

	d.metrics.ObserveAlert(metrics.AlertDelivered)
	d.logger.Debug("Alert delivered", fields)
}
