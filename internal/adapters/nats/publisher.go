package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/manifestmap/internal/core/domain"
	"github.com/samirrijal/manifestmap/internal/core/ports"
)

const (
	// PositionStream persists live device positions for the API replicas.
	PositionStream  = "POSITIONS"
	positionSubject = "traccar.position."
	sessionSubject  = "manifestmap.session."
)

// PositionSubject is the JetStream subject of a device's positions.
func PositionSubject(deviceID int64) string {
	return positionSubject + strconv.FormatInt(deviceID, 10)
}

// SessionSubject is the subject prefix carrying a session's source updates.
// Subscribers append ".>" to follow every source.
func SessionSubject(sessionID string) string {
	return sessionSubject + sessionID
}

// SourceSubject is the subject of one source of one session.
func SourceSubject(sessionID, sourceID string) string {
	return SessionSubject(sessionID) + ".source." + sourceID
}

// Publisher implements ports.EventPublisher. Positions go through
// JetStream; source updates are fire-and-forget core NATS messages.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	cfg := &nats.StreamConfig{
		Name:      PositionStream,
		Subjects:  []string{positionSubject + ">"},
		Retention: nats.LimitsPolicy,
		MaxAge:    1 * time.Hour,
		Storage:   nats.FileStorage,
	}
	if _, err := js.AddStream(cfg); err != nil {
		// Stream may already exist, try update
		if _, err := js.UpdateStream(cfg); err != nil {
			return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

var _ ports.EventPublisher = (*Publisher)(nil)

func (p *Publisher) PublishPosition(ctx context.Context, pos *domain.Position) error {
	data, err := json.Marshal(pos)
	if err != nil {
		return err
	}
	// Position ids are unique, so redelivered polls are deduplicated.
	_, err = p.js.Publish(PositionSubject(pos.DeviceID), data,
		nats.Context(ctx), nats.MsgId(strconv.FormatInt(pos.ID, 10)))
	return err
}

func (p *Publisher) PublishSourceUpdate(ctx context.Context, update *ports.SourceUpdate) error {
	data, err := json.Marshal(update)
	if err != nil {
		return err
	}
	return p.conn.Publish(SourceSubject(update.SessionID, update.SourceID), data)
}

// Connected reports whether the connection is up.
func (p *Publisher) Connected() bool {
	return p.conn.IsConnected()
}

// Conn exposes the underlying connection for plain subscribers.
func (p *Publisher) Conn() *nats.Conn {
	return p.conn
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection for subscribing (e.g. WebSocket relay).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("manifestmap"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
