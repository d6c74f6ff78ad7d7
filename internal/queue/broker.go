package queue

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/reservation-engine/internal/logging"
)

// errDeliveriesClosed ends a consume loop when the broker closes the channel.
var errDeliveriesClosed = errors.New("deliveries channel closed")

// runWithReconnect dials url and runs consume until ctx is done.  Dial
// failures back off exponentially up to 30s; a consume loop that ends is
// restarted after a short pause.
func runWithReconnect(ctx context.Context, name, url string, logger logging.Logger, consume func(ctx context.Context, conn *amqp.Connection) error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = time.Second
	eb.MaxInterval = 30 * time.Second
	eb.MaxElapsedTime = 0
	eb.Reset()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(url)
		if err != nil {
			wait := eb.NextBackOff()
			logger.Warnf("%s: failed to dial broker: %v; retrying in %s", name, err, wait)
			if !sleep(ctx, wait) {
				return ctx.Err()
			}
			continue
		}
		eb.Reset()

		err = consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warnf("%s: consume loop ended: %v; reconnecting", name, err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// deliveries drains msgs through handle until ctx ends or the channel
// closes.  Handled messages are acked; failures are rejected without
// requeue to avoid tight loops.
func deliveries(ctx context.Context, msgs <-chan amqp.Delivery, logger logging.Logger, name string, handle func(ctx context.Context, body []byte) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errDeliveriesClosed
			}
			if err := handle(ctx, d.Body); err != nil {
				logger.Errorf("%s: handle message failed: %v", name, err)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}
