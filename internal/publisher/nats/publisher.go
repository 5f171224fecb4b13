// Package nats publishes enrichment events to a NATS JetStream stream.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// EventLinkEnriched is the event_type header on every message.
const EventLinkEnriched = "link.enriched"

// Config describes the connection and the stream that captures events.
type Config struct {
	URL    string `mapstructure:"url"`
	Stream string `mapstructure:"stream"`
	// Subjects bound to Stream when it has to be created.
	Subjects []string `mapstructure:"subjects"`
}

// jetStream is the subset of nats.JetStreamContext the publisher uses.
type jetStream interface {
	PublishMsg(m *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// drainTimeout bounds how long Close waits for buffered publishes to flush.
const drainTimeout = 10 * time.Second

// drainer is the part of *nats.Conn that Close needs.
type drainer interface {
	Drain() error
}

// Publisher publishes JSON payloads and waits for the stream ack.
type Publisher struct {
	js     jetStream
	conn   drainer
	closed chan struct{}
}

// New wraps an existing JetStream context.
func New(js jetStream) *Publisher {
	return &Publisher{js: js}
}

// Open connects to cfg.URL and makes sure cfg.Stream exists.
func Open(cfg Config, logger *zap.Logger) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("nats url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	closed := make(chan struct{})
	nc, err := nats.Connect(cfg.URL,
		nats.Name("notes-enrichment"),
		nats.DrainTimeout(drainTimeout),
		nats.ClosedHandler(func(*nats.Conn) { close(closed) }),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("reconnected to nats", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats connection lost", zap.Error(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}
	if cfg.Stream != "" {
		if err := ensureStream(js, cfg); err != nil {
			nc.Close()
			return nil, err
		}
	}
	return &Publisher{js: js, conn: nc, closed: closed}, nil
}

func ensureStream(js nats.JetStreamContext, cfg Config) error {
	_, err := js.StreamInfo(cfg.Stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("lookup stream %s: %w", cfg.Stream, err)
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:      cfg.Stream,
		Subjects:  cfg.Subjects,
		Retention: nats.LimitsPolicy,
		Storage:   nats.FileStorage,
		MaxAge:    7 * 24 * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", cfg.Stream, err)
	}
	return nil
}

// Publish marshals payload to JSON, sends it on subject and returns
// "<stream>:<sequence>" from the ack.
func (p *Publisher) Publish(ctx context.Context, subject string, payload any) (string, error) {
	if subject == "" {
		return "", errors.New("subject is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set("event_type", EventLinkEnriched)
	msg.Header.Set("content_type", "application/json")

	ack, err := p.js.PublishMsg(msg, nats.Context(ctx))
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", subject, err)
	}
	return ack.Stream + ":" + strconv.FormatUint(ack.Sequence, 10), nil
}

// Close drains the connection opened by Open and returns once it is closed,
// so buffered publishes are flushed before the process exits.
func (p *Publisher) Close() error {
	if p.conn == nil {
		return nil
	}
	if err := p.conn.Drain(); err != nil {
		return fmt.Errorf("drain nats connection: %w", err)
	}
	select {
	case <-p.closed:
		return nil
	case <-time.After(drainTimeout + time.Second):
		return errors.New("drain nats connection: timed out waiting for close")
	}
}
