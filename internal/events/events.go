// Package events publishes pipeline events to NATS.
//
// Subjects follow {prefix}.{project}.{type}, for example
//
//	quorum.pipeline.orders-api.transition
//
// Publishing is fire-and-forget: a broker outage is logged and never
// fails a pipeline step.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/quorum/internal/config"
)

// Type names an event.
type Type string

const (
	TypeTransition Type = "transition"
	TypeGate       Type = "gate"
	TypeConsensus  Type = "consensus"
	TypeDrift      Type = "drift"
	TypeStuck      Type = "stuck"
	TypeIntegrity  Type = "integrity"
	TypeDone       Type = "done"
)

// Event is one pipeline occurrence.
type Event struct {
	Type      Type      `json:"type"`
	RunID     string    `json:"run_id"`
	Project   string    `json:"project"`
	Phase     string    `json:"phase"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	Message   string    `json:"message,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) error { return nil }

// Close implements Publisher.
func (Nop) Close() error { return nil }

// NATSPublisher publishes JSON events over a NATS connection.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
	owned  bool
	logger *zap.Logger
}

// Connect dials cfg.URL with bounded reconnects.
func Connect(cfg config.EventsConfig, logger *zap.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("quorum"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}
	p := NewNATSPublisher(nc, cfg.SubjectPrefix, logger)
	p.owned = true
	return p, nil
}

// NewNATSPublisher wraps an existing connection. The caller keeps
// ownership of nc.
func NewNATSPublisher(nc *nats.Conn, prefix string, logger *zap.Logger) *NATSPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = "quorum.pipeline"
	}
	return &NATSPublisher{nc: nc, prefix: prefix, logger: logger}
}

// Subject returns the subject ev is published on.
func (p *NATSPublisher) Subject(ev Event) string {
	return Subject(p.prefix, ev.Project, ev.Type)
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Type, err)
	}
	subject := p.Subject(ev)
	if err := p.nc.Publish(subject, data); err != nil {
		PublishErrors.WithLabelValues(string(ev.Type)).Inc()
		p.logger.Warn("event publish failed", zap.String("subject", subject), zap.Error(err))
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	Published.WithLabelValues(string(ev.Type)).Inc()
	return nil
}

// Close flushes pending events and closes the connection when Connect
// opened it.
func (p *NATSPublisher) Close() error {
	if !p.owned {
		return nil
	}
	if err := p.nc.FlushTimeout(2 * time.Second); err != nil {
		p.logger.Debug("event flush failed", zap.Error(err))
	}
	p.nc.Close()
	return nil
}

// Subject builds {prefix}.{project}.{type}. The project is reduced to a
// single subject token.
func Subject(prefix, project string, t Type) string {
	return fmt.Sprintf("%s.%s.%s", prefix, Token(project), t)
}

// Token turns a project path into a NATS subject token.
func Token(project string) string {
	base := filepath.Base(filepath.Clean(project))
	if base == "." || base == string(filepath.Separator) || base == "" {
		return "default"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n':
			return '_'
		}
		return r
	}, base)
}
