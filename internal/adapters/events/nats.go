// Package events publishes job lifecycle notifications over NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/jobrunner/sceneport/internal/ports/output"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "sceneport"

// conn is the part of *nats.Conn the publisher needs.
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// Publisher implements the EventPublisher port with plain NATS subjects:
//
//	<prefix>.job.submitted
//	<prefix>.job.finished
//	<prefix>.location.finished
type Publisher struct {
	conn   conn
	prefix string
	logger *slog.Logger
}

// Connect dials the NATS server at url.
func Connect(url, prefix string, logger *slog.Logger) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("sceneport"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return newPublisher(nc, prefix, logger), nil
}

func newPublisher(c conn, prefix string, logger *slog.Logger) *Publisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Publisher{conn: c, prefix: prefix, logger: logger}
}

// JobSubmitted implements EventPublisher.
func (p *Publisher) JobSubmitted(ctx context.Context, ev output.JobEvent) error {
	return p.publish(ctx, "job.submitted", ev)
}

// JobFinished implements EventPublisher.
func (p *Publisher) JobFinished(ctx context.Context, ev output.JobEvent) error {
	return p.publish(ctx, "job.finished", ev)
}

// LocationFinished implements EventPublisher.
func (p *Publisher) LocationFinished(ctx context.Context, ev output.LocationEvent) error {
	return p.publish(ctx, "location.finished", ev)
}

func (p *Publisher) publish(ctx context.Context, suffix string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", suffix, err)
	}
	subject := p.prefix + "." + suffix
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	p.logger.Debug("event published", "subject", subject)
	return nil
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.logger.Warn("nats drain failed", "error", err)
	}
}
