package events

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// JSONPublisher is satisfied by helpers.RabbitPublisher.
type JSONPublisher interface {
	PublishJSON(ctx context.Context, body any) error
}

// AMQPPublisher sends mutation events as persistent JSON messages.
type AMQPPublisher struct {
	out JSONPublisher
}

func NewAMQPPublisher(out JSONPublisher) *AMQPPublisher {
	return &AMQPPublisher{out: out}
}

func (p *AMQPPublisher) Publish(ctx context.Context, ev MutationEvent) error {
	return p.out.PublishJSON(ctx, ev)
}

// Handler processes one decoded event. Returning an error requeues it.
type Handler func(ctx context.Context, ev MutationEvent) error

// Delivery is the part of amqp.Delivery a consumer acknowledges through.
type Delivery interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// Consume handles deliveries until the channel closes or ctx is done.
// Malformed messages are dropped; handler failures are requeued once and
// dropped when redelivered again.
func Consume(ctx context.Context, msgs <-chan amqp.Delivery, h Handler, logger *logrus.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			handle(ctx, msg, msg.Body, msg.Redelivered, h, logger)
		}
	}
}

func handle(ctx context.Context, d Delivery, body []byte, redelivered bool, h Handler, logger *logrus.Logger) {
	var ev MutationEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		logger.WithError(err).Warn("bad mutation event")
		_ = d.Nack(false, false)
		return
	}
	if err := h(ctx, ev); err != nil {
		logger.WithError(err).WithFields(logrus.Fields{
			"model":  ev.Model,
			"action": ev.Action,
		}).Warn("mutation event handler failed")
		_ = d.Nack(false, !redelivered)
		return
	}
	_ = d.Ack(false)
}
