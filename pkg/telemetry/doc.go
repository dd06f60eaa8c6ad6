// Package telemetry provides observability for CPI calls.
//
// It combines structured logging (zerolog), tracing (OpenTelemetry), metrics
// (Prometheus) and call events behind a single Telemetry value:
//
//	tel, err := telemetry.NewTelemetry(telemetry.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	c, err := cpi.New(tel.Instrument(cpi.Config{
//	    Name:     "aws",
//	    ExecPath: "/var/vcap/jobs/aws_cpi/bin/cpi",
//	    Identity: cpi.StaticIdentity(directorUUID),
//	}))
//
// Instrument wires the component logger as the CPI's debug sink, the tracer
// for per-call spans, and Metrics plus EventPublisher as call observers.
//
// # Metrics
//
//   - cpi_calls_total{cpi,method,outcome}
//   - cpi_call_duration_seconds{cpi,method}
//   - cpi_errors_total{cpi,method,kind}
//   - cpi_retryable_errors_total{cpi,method}
//   - cpi_nonzero_exit_total{cpi,method}
//   - cpi_calls_in_flight{cpi}
//
// A non-zero exit status never fails a call; it is only counted.
package telemetry
