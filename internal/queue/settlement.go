package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/reservation-engine/internal/logging"
	"github.com/iliyamo/reservation-engine/internal/payment"
)

// SettlementQueueName is the durable queue holding settlement retries.
const SettlementQueueName = "settlement.retry"

// SettlementPublisher enqueues settlement tasks.  It dials per publish;
// settlement failures are rare enough that a pooled connection is not worth
// keeping open in the API process.
type SettlementPublisher struct {
	url    string
	logger logging.Logger
}

func NewSettlementPublisher(url string, logger logging.Logger) *SettlementPublisher {
	return &SettlementPublisher{url: url, logger: logger}
}

// Enqueue publishes task as a persistent message.
func (p *SettlementPublisher) Enqueue(ctx context.Context, task SettlementTask) error {
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal settlement task: %w", err)
	}
	conn, err := amqp.Dial(p.url)
	if err != nil {
		p.logger.Errorf("settlement: dial failed: %v", err)
		return err
	}
	defer func() { _ = conn.Close() }()
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()
	if _, err := ch.QueueDeclare(SettlementQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	return ch.PublishWithContext(ctx, "", SettlementQueueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
}

// Settler performs the gateway calls a task repeats.
type Settler interface {
	Refund(ctx context.Context, reference string, amount int64) error
	PayRecipient(ctx context.Context, p payment.Payout) (*payment.Transfer, error)
}

// Enqueuer puts a task back on the queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, task SettlementTask) error
}

// SettlementWorker retries failed refunds and payouts.
type SettlementWorker struct {
	url         string
	settler     Settler
	requeue     Enqueuer
	maxAttempts int
	delay       func(attempt int) time.Duration
	logger      logging.Logger
}

// NewSettlementWorker builds a worker that gives up after maxAttempts.
func NewSettlementWorker(url string, settler Settler, requeue Enqueuer, maxAttempts int, logger logging.Logger) *SettlementWorker {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &SettlementWorker{
		url:         url,
		settler:     settler,
		requeue:     requeue,
		maxAttempts: maxAttempts,
		delay: func(attempt int) time.Duration {
			d := time.Duration(1<<min(attempt, 5)) * time.Second
			return min(d, 30*time.Second)
		},
		logger: logger,
	}
}

// Run consumes the settlement queue until ctx is cancelled.
func (w *SettlementWorker) Run(ctx context.Context) error {
	return runWithReconnect(ctx, "settlement-worker", w.url, w.logger, func(ctx context.Context, conn *amqp.Connection) error {
		ch, err := conn.Channel()
		if err != nil {
			return fmt.Errorf("channel open: %w", err)
		}
		defer func() { _ = ch.Close() }()
		if err := ch.Qos(1, 0, false); err != nil {
			w.logger.Warnf("settlement-worker: set QoS failed: %v", err)
		}
		if _, err := ch.QueueDeclare(SettlementQueueName, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue declare: %w", err)
		}
		msgs, err := ch.Consume(SettlementQueueName, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("queue consume: %w", err)
		}
		return deliveries(ctx, msgs, w.logger, "settlement-worker", w.Handle)
	})
}

// Handle processes one task.  A failed attempt is re-enqueued after a
// delay; once maxAttempts is reached the task is logged as a dead letter
// and dropped.  Only undecodable bodies and failed re-enqueues are errors.
func (w *SettlementWorker) Handle(ctx context.Context, body []byte) error {
	var task SettlementTask
	if err := json.Unmarshal(body, &task); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	err := w.settle(ctx, task)
	if err == nil {
		w.logger.Infof("settlement %s for reservation %d settled (%d) after %d attempt(s)",
			task.Kind, task.ReservationID, task.Amount, task.Attempt+1)
		return nil
	}
	task.Attempt++
	task.LastError = err.Error()
	if task.Attempt >= w.maxAttempts {
		w.logger.Errorf("settlement dead-letter: kind=%s reservation=%d amount=%d reference=%s recipient=%s attempts=%d last_error=%q",
			task.Kind, task.ReservationID, task.Amount, task.Reference, task.Recipient, task.Attempt, task.LastError)
		return nil
	}
	w.logger.Warnf("settlement %s for reservation %d failed (attempt %d): %v", task.Kind, task.ReservationID, task.Attempt, err)
	if !sleep(ctx, w.delay(task.Attempt)) {
		return ctx.Err()
	}
	return w.requeue.Enqueue(ctx, task)
}

func (w *SettlementWorker) settle(ctx context.Context, task SettlementTask) error {
	switch task.Kind {
	case SettlementRefund:
		return w.settler.Refund(ctx, task.Reference, task.Amount)
	case SettlementPayout:
		_, err := w.settler.PayRecipient(ctx, payment.Payout{
			Recipient: task.Recipient,
			Amount:    task.Amount,
			Reason:    task.Reason,
			Reference: task.IdempotencyKey,
		})
		return err
	}
	return fmt.Errorf("unknown settlement kind %q", task.Kind)
}
