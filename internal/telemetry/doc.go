// Package telemetry sets up OpenTelemetry tracing and metrics for quorum.
//
// Gate evaluations, consensus rounds and sandboxed checks open spans on the
// global tracer; when telemetry is disabled those calls hit the no-op
// provider. Exporter failures degrade the instance instead of failing the
// pipeline run.
package telemetry
