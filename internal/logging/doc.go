// Package logging provides the structured logger used across quorum.
//
// It wraps zap with context-aware methods that append pipeline correlation
// fields (run id, phase, project) and OpenTelemetry trace ids to every
// entry. Sensitive keys and provider key patterns are redacted at the
// encoder, so callers can log reviewer configs without scrubbing them first.
//
// Output goes to stderr (the CLI owns stdout) and optionally to an OTEL
// LoggerProvider through the otelzap bridge. Library packages accept a
// plain *zap.Logger via Underlying() and fall back to zap.NewNop().
package logging
