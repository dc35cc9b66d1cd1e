// Package messaging forwards engine events to NATS.
package messaging

import (
	"context"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/rawblock/wallet-anomaly-engine/internal/config"
	"github.com/rawblock/wallet-anomaly-engine/internal/logger"
)

// ErrNotConnected is returned by Publish on an enabled publisher before
// Connect has succeeded.
var ErrNotConnected = errors.New("NATS publisher is not connected")

// NATSPublisher publishes events on core NATS subjects under a prefix.
// When disabled every call is a no-op.
type NATSPublisher struct {
	mu     sync.RWMutex
	conn   *nats.Conn
	config config.NATSConfig
	logger *logger.Logger
}

// NewNATSPublisher creates a publisher; Connect must be called before events flow.
func NewNATSPublisher(cfg config.NATSConfig, log *logger.Logger) *NATSPublisher {
	return &NATSPublisher{
		config: cfg,
		logger: log.WithComponent("nats-publisher"),
	}
}

// Enabled reports whether the publisher is configured to send.
func (p *NATSPublisher) Enabled() bool {
	return p.config.Enabled
}

// Connect dials the NATS server.
func (p *NATSPublisher) Connect(ctx context.Context) error {
	if !p.config.Enabled {
		p.logger.Info("NATS is disabled, skipping connection")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p.logger.Info("Connecting to NATS server", zap.String("url", p.config.URL))

	opts := []nats.Option{
		nats.Name("wallet-anomaly-engine"),
		nats.Timeout(p.config.ConnectTimeout),
		nats.ReconnectWait(p.config.ReconnectDelay),
		nats.MaxReconnects(p.config.ReconnectAttempts),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			p.logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			p.logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			p.logger.Info("NATS connection closed")
		}),
	}

	conn, err := nats.Connect(p.config.URL, opts...)
	if err != nil {
		return errors.Wrap(err, "failed to connect to NATS")
	}

	p.mu.Lock()
	p.conn = conn
	p.mu.Unlock()
	return nil
}

// Subject returns the fully qualified subject for name.
func (p *NATSPublisher) Subject(name string) string {
	if p.config.SubjectPrefix == "" {
		return name
	}
	return p.config.SubjectPrefix + "." + name
}

// Publish sends data on the prefixed subject.
func (p *NATSPublisher) Publish(subject string, data []byte) error {
	if !p.config.Enabled {
		return nil
	}
	p.mu.RLock()
	conn := p.conn
	p.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}
	if err := conn.Publish(p.Subject(subject), data); err != nil {
		return errors.Wrapf(err, "failed to publish to %s", p.Subject(subject))
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	p.mu.Lock()
	conn := p.conn
	p.conn = nil
	p.mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := conn.Drain(); err != nil {
		conn.Close()
		return errors.Wrap(err, "failed to drain NATS connection")
	}
	return nil
}
