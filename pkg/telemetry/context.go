package telemetry

import (
	"context"
	"path/filepath"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/externalcpi/pkg/cpi"
)

// Telemetry bundles logging, tracing, metrics and call events.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *EventPublisher
	Config  *Config
}

type telemetryContextKey struct{}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	events, err := NewEventPublisher(cfg.Events)
	if err != nil {
		return nil, err
	}
	events.Subscribe(LogSubscriber(logger.NewComponentLogger("events")), nil)

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Events:  events,
		Config:  cfg,
	}, nil
}

// Observer returns the call observer feeding metrics and events.
func (t *Telemetry) Observer() cpi.CallObserver {
	return cpi.Observers{t.Metrics, t.Events}
}

// Instrument fills the telemetry collaborators of an ExternalCpi config
// that the caller left unset.
func (t *Telemetry) Instrument(cfg cpi.Config) cpi.Config {
	if cfg.Name == "" {
		cfg.Name = filepath.Base(cfg.ExecPath)
	}
	name := cfg.Name
	if cfg.Logger == nil {
		cfg.Logger = t.Logger.NewComponentLogger("external_cpi").WithCPI(name, cfg.ExecPath)
	}
	if cfg.Tracer == nil {
		cfg.Tracer = t.Tracer.Tracer()
	}
	if cfg.Observer == nil {
		cfg.Observer = t.Observer()
	} else {
		cfg.Observer = cpi.Observers{cfg.Observer, t.Observer()}
	}
	cfg.Runner = t.Metrics.WrapRunner(name, cfg.Runner)
	return cfg
}

// WithContext adds the telemetry instance and its logger to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	return t.Logger.WithContext(ctx)
}

// FromTelemetryContext retrieves the telemetry instance from the context.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// Shutdown stops the event publisher and flushes the tracer.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if err := t.Events.Shutdown(ctx); err != nil {
		return err
	}
	return t.Tracer.Shutdown(ctx)
}

// InstrumentedContext carries the span, logger and timer of one operation.
type InstrumentedContext struct {
	Ctx       context.Context
	Span      trace.Span
	Logger    *Logger
	Timer     *Timer
	RequestID string
}

// StartOperation begins an operation with a fresh request id. CPI calls made
// with the returned context carry that id in their context block.
func StartOperation(ctx context.Context, operation string) *InstrumentedContext {
	requestID := cpi.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.New().String()
		ctx = cpi.WithRequestID(ctx, requestID)
	}

	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return &InstrumentedContext{
			Ctx:       ctx,
			Logger:    FromContext(ctx).WithRequestID(requestID),
			Timer:     NewTimer(),
			RequestID: requestID,
		}
	}

	spanCtx, span := tel.Tracer.StartCommandSpan(ctx, operation, requestID)

	logger := tel.Logger.WithField("operation", operation).WithRequestID(requestID)
	if span.SpanContext().IsValid() {
		logger = logger.WithField("trace_id", span.SpanContext().TraceID().String())
	}

	return &InstrumentedContext{
		Ctx:       logger.WithContext(spanCtx),
		Span:      span,
		Logger:    logger,
		Timer:     NewTimer(),
		RequestID: requestID,
	}
}

// End finishes the operation, recording success or failure.
func (ic *InstrumentedContext) End(err error) {
	if ic.Span == nil {
		return
	}
	if err != nil {
		RecordError(ic.Span, err)
	} else {
		RecordSuccess(ic.Span)
	}
	ic.Span.End()
}
