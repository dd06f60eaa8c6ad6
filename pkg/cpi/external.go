package cpi

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/externalcpi/pkg/cpi/protocol"
)

const tracerName = "github.com/openfroyo/externalcpi/pkg/cpi"

// Logger receives diagnostic text: requests, captured stderr and the CPI's
// own log output. It never influences the outcome of a call.
type Logger interface {
	Debugf(format string, args ...interface{})
}

// Identity supplies the director UUID sent in every context block.
type Identity interface {
	DirectorUUID() string
}

// StaticIdentity is an Identity fixed for the life of the process.
type StaticIdentity string

// DirectorUUID implements Identity.
func (s StaticIdentity) DirectorUUID() string {
	return string(s)
}

// Config contains the collaborators of an ExternalCpi.
type Config struct {
	// Name labels the CPI in logs, metrics and the call journal.
	// Defaults to the executable's base name.
	Name string

	// ExecPath is the CPI executable.
	ExecPath string

	// Identity is required.
	Identity Identity

	Logger   Logger
	Runner   CommandRunner
	Registry *ErrorRegistry
	Observer CallObserver
	Tracer   trace.Tracer

	// LookupEnv reads the director's environment when building the
	// subprocess environment. Defaults to os.LookupEnv.
	LookupEnv LookupEnvFunc
}

// ExternalCpi invokes a CPI executable over the JSON stdio protocol.
// It is safe for concurrent use; every call runs its own process.
type ExternalCpi struct {
	name      string
	path      string
	identity  Identity
	logger    Logger
	runner    CommandRunner
	registry  *ErrorRegistry
	observer  CallObserver
	tracer    trace.Tracer
	lookupEnv LookupEnvFunc
}

// New creates an ExternalCpi.
func New(cfg Config) (*ExternalCpi, error) {
	if cfg.ExecPath == "" {
		return nil, fmt.Errorf("cpi executable path is required")
	}
	if cfg.Identity == nil {
		return nil, fmt.Errorf("director identity is required")
	}

	c := &ExternalCpi{
		name:      cfg.Name,
		path:      cfg.ExecPath,
		identity:  cfg.Identity,
		logger:    cfg.Logger,
		runner:    cfg.Runner,
		registry:  cfg.Registry,
		observer:  cfg.Observer,
		tracer:    cfg.Tracer,
		lookupEnv: cfg.LookupEnv,
	}

	if c.name == "" {
		c.name = filepath.Base(c.path)
	}
	if c.logger == nil {
		c.logger = nopLogger{}
	}
	if c.runner == nil {
		c.runner = ExecRunner{}
	}
	if c.registry == nil {
		c.registry = DefaultErrorRegistry()
	}
	if c.observer == nil {
		c.observer = nopObserver{}
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}
	if c.lookupEnv == nil {
		c.lookupEnv = os.LookupEnv
	}

	return c, nil
}

// Name returns the label of this CPI.
func (c *ExternalCpi) Name() string {
	return c.name
}

// Path returns the executable path.
func (c *ExternalCpi) Path() string {
	return c.path
}

// Call invokes method with positional args and returns the CPI's result
// untouched. Failures are always *Error, *ArgumentError or a wrapped process
// start error.
func (c *ExternalCpi) Call(ctx context.Context, method string, args ...interface{}) (json.RawMessage, error) {
	ctx, span := c.tracer.Start(ctx, "cpi."+method, trace.WithAttributes(
		attribute.String("cpi.name", c.name),
		attribute.String("cpi.method", method),
	))
	defer span.End()

	rec := &CallRecord{
		CPI:        c.name,
		Method:     method,
		RequestID:  RequestIDFromContext(ctx),
		Arguments:  args,
		StartedAt:  time.Now(),
		ExitStatus: -1,
	}

	result, err := c.call(ctx, rec, method, args)

	rec.Duration = time.Since(rec.StartedAt)
	rec.Err = err
	c.observer.ObserveCall(ctx, rec)

	span.SetAttributes(attribute.Int("cpi.exit_status", rec.ExitStatus))
	if err != nil {
		span.RecordError(err)
		if kind := KindOf(err); kind != "" {
			span.SetAttributes(attribute.String("cpi.error.kind", string(kind)))
		}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return result, nil
}

func (c *ExternalCpi) call(ctx context.Context, rec *CallRecord, method string, args []interface{}) (json.RawMessage, error) {
	if err := CheckExecutable(c.path); err != nil {
		return nil, NewNonExecutableError(c.path, err)
	}

	spec, ok := LookupMethod(method)
	if !ok {
		return nil, &ArgumentError{Method: method, Reason: "not part of the cpi surface", Err: ErrUnknownMethod}
	}
	if err := spec.ValidateArguments(args); err != nil {
		return nil, err
	}

	req := protocol.NewRequest(method, args, protocol.RequestContext{
		DirectorUUID: c.identity.DirectorUUID(),
		RequestID:    rec.RequestID,
	})
	payload, err := protocol.EncodeRequest(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	c.logger.Debugf("External CPI sending request: %s with command: %s", payload, c.path)

	out, err := c.runner.Run(ctx, Command{
		Path:  c.path,
		Env:   Environment(c.lookupEnv),
		Stdin: payload,
	})
	if err != nil {
		return nil, err
	}

	rec.ExitStatus = out.ExitStatus
	rec.StderrBytes = len(out.Stderr)

	c.logger.Debugf("External CPI got response: %s, err: %s, exit_status: %d", out.Stdout, out.Stderr, out.ExitStatus)

	resp, err := protocol.DecodeResponse(out.Stdout)
	if err != nil {
		return nil, NewInvalidResponseError(err)
	}

	if resp.Log != "" {
		c.logger.Debugf("External CPI log: %s", resp.Log)
	}

	if resp.Error != nil {
		return nil, c.registry.Translate(resp.Error)
	}

	return resp.Result, nil
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}
