package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/reservation-engine/internal/logging"
	"github.com/iliyamo/reservation-engine/internal/realtime"
)

const auditQueueName = "reservation.audit"

// AuditConsumer appends every broadcast reservation event to
// <dir>/reservation.log, one line per event.
type AuditConsumer struct {
	url    string
	dir    string
	logger logging.Logger
}

func NewAuditConsumer(url, dir string, logger logging.Logger) *AuditConsumer {
	if dir == "" {
		dir = "logs"
	}
	return &AuditConsumer{url: url, dir: dir, logger: logger}
}

// Run binds the audit queue to all broadcast events and consumes it until
// ctx is cancelled, reconnecting as needed.
func (a *AuditConsumer) Run(ctx context.Context) error {
	return runWithReconnect(ctx, "audit-consumer", a.url, a.logger, func(ctx context.Context, conn *amqp.Connection) error {
		ch, err := conn.Channel()
		if err != nil {
			return fmt.Errorf("channel open: %w", err)
		}
		defer func() { _ = ch.Close() }()
		if err := ch.Qos(50, 0, false); err != nil {
			a.logger.Warnf("audit-consumer: set QoS failed: %v", err)
		}
		if err := ch.ExchangeDeclare(realtime.Exchange, "topic", true, false, false, false, nil); err != nil {
			return fmt.Errorf("exchange declare: %w", err)
		}
		if _, err := ch.QueueDeclare(auditQueueName, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue declare: %w", err)
		}
		if err := ch.QueueBind(auditQueueName, "broadcast.#", realtime.Exchange, false, nil); err != nil {
			return fmt.Errorf("queue bind: %w", err)
		}
		msgs, err := ch.Consume(auditQueueName, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("queue consume: %w", err)
		}
		return deliveries(ctx, msgs, a.logger, "audit-consumer", a.Handle)
	})
}

// Handle appends one event to the audit log.
func (a *AuditConsumer) Handle(_ context.Context, body []byte) error {
	line, err := formatAuditLine(body)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(a.dir, "reservation.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// auditFields covers both reservation payloads and capacity updates.
type auditFields struct {
	ID         uint64 `json:"id"`
	Reference  string `json:"reference"`
	Status     string `json:"status"`
	PropertyID uint64 `json:"property_id"`
	Price      int64  `json:"price"`
	Delta      int    `json:"delta"`
}

func formatAuditLine(body []byte) (string, error) {
	var ev realtime.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return "", fmt.Errorf("unmarshal: %w", err)
	}
	var f auditFields
	if len(ev.Payload) > 0 {
		if err := json.Unmarshal(ev.Payload, &f); err != nil {
			return "", fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	parts := []string{"event=" + ev.Name}
	if f.ID != 0 {
		parts = append(parts, fmt.Sprintf("reservation_id=%d", f.ID))
	}
	if f.Reference != "" {
		parts = append(parts, "reference="+f.Reference)
	}
	if f.Status != "" {
		parts = append(parts, "status="+f.Status)
	}
	if f.PropertyID != 0 {
		parts = append(parts, fmt.Sprintf("property_id=%d", f.PropertyID))
	}
	if f.Price != 0 {
		parts = append(parts, fmt.Sprintf("price=%d", f.Price))
	}
	if f.Delta != 0 {
		parts = append(parts, fmt.Sprintf("delta=%+d", f.Delta))
	}
	at := ev.EmittedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return fmt.Sprintf("[%s] %s\n", at.Format(time.RFC3339), strings.Join(parts, " | ")), nil
}
