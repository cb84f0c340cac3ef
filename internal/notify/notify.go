// Package notify publishes rank changes to NATS so other views of a context
// can reload.
package notify

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/vaulted/rankkey/ordering"
)

const maxSubjectLen = 1024

// emptyToken stands for the empty context ID. Encoded IDs are never a single
// character long, so it cannot collide with one.
const emptyToken = "_"

// Event is the JSON payload of one rank change.
type Event struct {
	ContextID string    `json:"context_id"`
	UserID    string    `json:"user_id"`
	ItemID    string    `json:"item_id"`
	Rank      string    `json:"rank,omitempty"`
	Deleted   bool      `json:"deleted,omitempty"`
	At        time.Time `json:"at"`
}

// natsConn is the part of *nats.Conn the publisher uses.
type natsConn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Close()
}

// natsConnectFunc allows test injection
var natsConnectFunc = func(url string, opts ...nats.Option) (natsConn, error) {
	return nats.Connect(url, opts...)
}

// Publisher implements ordering.Notifier over a NATS connection.
type Publisher struct {
	conn   natsConn
	prefix string
	log    *zap.Logger
	now    func() time.Time
}

var _ ordering.Notifier = (*Publisher)(nil)

// Connect dials url and returns a Publisher sending to subjects under prefix.
func Connect(url, prefix string, log *zap.Logger) (*Publisher, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	conn, err := natsConnectFunc(url, nats.Name("rankkey"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return newPublisher(conn, prefix, log), nil
}

func newPublisher(conn natsConn, prefix string, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	if prefix == "" {
		prefix = "rankkey.changes"
	}
	return &Publisher{conn: conn, prefix: prefix, log: log, now: time.Now}
}

// Subject returns the subject for a context: <prefix>.<context>, where the
// context ID is base64url encoded so any ID is a single subject token. Very
// long subjects are replaced by a hash.
func (p *Publisher) Subject(contextID string) string {
	if contextID == "" {
		return p.prefix + "." + emptyToken
	}
	subject := p.prefix + "." + base64.RawURLEncoding.EncodeToString([]byte(contextID))
	if len(subject) > maxSubjectLen {
		hash := sha256.Sum256([]byte(contextID))
		subject = p.prefix + ".hashed." + hex.EncodeToString(hash[:16])
	}
	return subject
}

func (p *Publisher) RankChanged(ctx context.Context, e ordering.Entry, deleted bool) error {
	ev := Event{ContextID: e.ContextID, UserID: e.UserID, ItemID: e.ItemID, Deleted: deleted, At: p.now().UTC()}
	if !deleted {
		ev.Rank = e.Rank
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	subject := p.Subject(e.ContextID)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	p.log.Debug("Published rank change", zap.String("subject", subject), zap.String("item_id", e.ItemID))
	return nil
}

// Close flushes buffered events and closes the connection.
func (p *Publisher) Close(ctx context.Context) error {
	err := p.conn.FlushWithContext(ctx)
	p.conn.Close()
	return err
}
