package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/imagelock/internal/logging"
)

// AuditLogFile is the file name consumed events are appended to.
const AuditLogFile = "lock-audit.log"

// StartAuditConsumer consumes AuditQueue and appends every event to
// dir/lock-audit.log. It reconnects with exponential backoff (capped at 30s)
// until ctx is cancelled, then returns ctx.Err().
func StartAuditConsumer(ctx context.Context, rawURL, dir string, log logging.Logger) error {
	clean, err := sanitizeAMQPURL(rawURL)
	if err != nil {
		return err
	}

	backoff := time.Second
	for {
		conn, err := amqp.Dial(clean)
		if err != nil {
			log.Warn(ctx, "audit consumer: dial failed", "err", err, "retry_in", backoff)
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, conn, dir, log)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn(ctx, "audit consumer: loop ended, reconnecting", "err", err)
		if !sleepCtx(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, dir string, log logging.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Warn(ctx, "audit consumer: set QoS failed", "err", err)
	}
	if _, err := ch.QueueDeclare(AuditQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(AuditQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := HandleMessage(dir, d.Body); err != nil {
				log.Error(ctx, "audit consumer: handle message failed", "err", err)
				_ = d.Nack(false, false) // no requeue
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// HandleMessage decodes one delivery and appends its line to the audit log.
func HandleMessage(dir string, body []byte) error {
	var ev AuditEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Type == "" {
		return errors.New("event without type")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	f, err := os.OpenFile(filepath.Join(dir, AuditLogFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(FormatLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// FormatLine renders ev as a single newline-terminated log line.
func FormatLine(ev AuditEvent) string {
	line := fmt.Sprintf("[%s] %s | app_id=%d | user_id=%d", ev.OccurredAt, ev.Type, ev.AppID, ev.UserID)
	if ev.SessionID != "" {
		line += " | session=" + ev.SessionID
	}
	if ev.RetryAfter > 0 {
		line += fmt.Sprintf(" | retry_after=%ds", ev.RetryAfter)
	}
	return line + "\n"
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
