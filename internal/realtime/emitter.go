package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/reservation-engine/internal/logging"
)

// Events emitted by the reservation core.
const (
	EventNewReservation    = "new_reservation"
	EventNewNotification   = "new_notification"
	EventUpdateReservation = "update_reservation"
	EventStayCapacity      = "stay_acc"
)

// Exchange is the topic exchange real-time events are published to.
const Exchange = "realtime.events"

// Emitter publishes events to everyone (Emit) or to one channel (EmitTo).
type Emitter interface {
	Emit(ctx context.Context, event string, payload any) error
	EmitTo(ctx context.Context, channel, event string, payload any) error
}

// Event is the message body on the wire.
type Event struct {
	Name      string          `json:"event"`
	Channel   string          `json:"channel,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	EmittedAt time.Time       `json:"emitted_at"`
}

// BroadcastKey is the routing key of an event for all observers.
func BroadcastKey(event string) string { return "broadcast." + event }

// ChannelKey is the routing key of an event for one channel.  Dots in the
// channel id would split the topic, so they are replaced.
func ChannelKey(channel, event string) string {
	return "channel." + strings.ReplaceAll(channel, ".", "_") + "." + event
}

func encodeEvent(channel, event string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return json.Marshal(Event{Name: event, Channel: channel, Payload: raw, EmittedAt: time.Now().UTC()})
}

// AMQPEmitter publishes events to RabbitMQ.  The connection is opened on
// first use and re-opened after a failed publish.
type AMQPEmitter struct {
	url    string
	logger logging.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewAMQPEmitter(url string, logger logging.Logger) *AMQPEmitter {
	return &AMQPEmitter{url: url, logger: logger}
}

func (e *AMQPEmitter) Emit(ctx context.Context, event string, payload any) error {
	body, err := encodeEvent("", event, payload)
	if err != nil {
		return err
	}
	return e.publish(ctx, BroadcastKey(event), body)
}

func (e *AMQPEmitter) EmitTo(ctx context.Context, channel, event string, payload any) error {
	body, err := encodeEvent(channel, event, payload)
	if err != nil {
		return err
	}
	return e.publish(ctx, ChannelKey(channel, event), body)
}

func (e *AMQPEmitter) publish(ctx context.Context, key string, body []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch, err := e.channelLocked()
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx, Exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		e.logger.Warnf("publish %s failed, dropping connection: %v", key, err)
		e.closeLocked()
		return err
	}
	return nil
}

func (e *AMQPEmitter) channelLocked() (*amqp.Channel, error) {
	if e.ch != nil && e.conn != nil && !e.conn.IsClosed() {
		return e.ch, nil
	}
	e.closeLocked()
	conn, err := amqp.Dial(e.url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	if err := ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("exchange declare: %w", err)
	}
	e.conn, e.ch = conn, ch
	return ch, nil
}

func (e *AMQPEmitter) closeLocked() {
	if e.ch != nil {
		_ = e.ch.Close()
	}
	if e.conn != nil {
		_ = e.conn.Close()
	}
	e.conn, e.ch = nil, nil
}

// Close releases the broker connection.
func (e *AMQPEmitter) Close() error {
	e.mu.Lock()
	e.closeLocked()
	e.mu.Unlock()
	return nil
}

// Discard is the Emitter used when no broker is configured.
type Discard struct{}

func (Discard) Emit(context.Context, string, any) error           { return nil }
func (Discard) EmitTo(context.Context, string, string, any) error { return nil }
