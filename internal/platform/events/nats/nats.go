// Package nats publishes domain events to a NATS server.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/events"
	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/logutil"
)

func init() {
	events.RegisterDriver("nats", func(cfg events.Config, log *slog.Logger) (events.Publisher, error) {
		return New(cfg, log)
	})
}

// Publisher sends envelopes as core NATS messages.
type Publisher struct {
	nc  *nats.Conn
	cfg events.Config
	log *slog.Logger
}

// New connects to cfg.URL. The connection reconnects forever in the background.
func New(cfg events.Config, log *slog.Logger) (*Publisher, error) {
	log = logutil.NoopIfNil(log)
	if cfg.URL == "" {
		return nil, fmt.Errorf("nats events driver requires a url")
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name("tanzanite"),
		nats.Timeout(5*time.Second),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Warn("nats error", "error", err)
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", cfg.URL, err)
	}

	return &Publisher{nc: nc, cfg: cfg, log: log}, nil
}

// Publish sends one event on <prefix>.<name>.
func (p *Publisher) Publish(ctx context.Context, name string, data any) error {
	body, err := events.NewEnvelope(name, data)
	if err != nil {
		return err
	}
	if err := p.nc.Publish(p.cfg.Subject(name), body); err != nil {
		return fmt.Errorf("publish %s: %w", name, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() error {
	if err := p.nc.FlushTimeout(2 * time.Second); err != nil {
		p.log.Warn("nats flush on close failed", "error", err)
	}
	p.nc.Close()
	return nil
}

var _ events.Publisher = (*Publisher)(nil)
