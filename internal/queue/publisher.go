package queue

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/imagelock/internal/logging"
)

// Publisher sends audit events somewhere durable. Failures are reported to
// the caller, which logs them and carries on.
type Publisher interface {
	Publish(ctx context.Context, ev AuditEvent) error
	Close()
}

// AMQPPublisher publishes persistent JSON messages to AuditQueue on the
// default exchange, reopening its channel once when a publish fails.
type AMQPPublisher struct {
	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPPublisher dials the broker and declares the audit queue.
func NewAMQPPublisher(rawURL string) (*AMQPPublisher, error) {
	clean, err := sanitizeAMQPURL(rawURL)
	if err != nil {
		return nil, err
	}
	conn, err := amqp.DialConfig(clean, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}
	p := &AMQPPublisher{conn: conn}
	if err := p.reopen(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return p, nil
}

func (p *AMQPPublisher) reopen() error {
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	// durable, not auto-deleted, not exclusive
	if _, err := ch.QueueDeclare(AuditQueue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return err
	}
	p.ch = ch
	return nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, ev AuditEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	msg := amqp.Publishing{
		MessageId:    ev.ID,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         ev.Type,
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err = p.ch.PublishWithContext(ctx, "", AuditQueue, false, false, msg); err == nil {
		return nil
	}
	if rerr := p.reopen(); rerr != nil {
		return errors.Join(err, rerr)
	}
	return p.ch.PublishWithContext(ctx, "", AuditQueue, false, false, msg)
}

func (p *AMQPPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// LogPublisher is used when no broker is reachable: events are written to
// the application log instead.
type LogPublisher struct {
	Log logging.Logger
}

func (p LogPublisher) Publish(ctx context.Context, ev AuditEvent) error {
	p.Log.Info(ctx, "audit event", "type", ev.Type, "app_id", ev.AppID, "user_id", ev.UserID, "mode", "fallback")
	return nil
}

func (LogPublisher) Close() {}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}
