package queue

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/blogger-platform/internal/logger"
)

// dialTimeout keeps a broker outage from stalling the request that publishes.
const dialTimeout = 2 * time.Second

// Publisher sends JSON messages to durable queues on the default exchange.
// Each publish dials its own connection; the call volume here (logins,
// refreshes, recovery mails) does not justify a pooled channel.
type Publisher struct {
	URL string
}

func NewPublisher(url string) *Publisher { return &Publisher{URL: url} }

// PublishAuthEvent publishes ev to auth.events.
func (p *Publisher) PublishAuthEvent(ctx context.Context, ev AuthEvent) error {
	return p.publish(ctx, AuthEventsQueue, ev)
}

// PublishMail publishes job to mail.outbox.
func (p *Publisher) PublishMail(ctx context.Context, job MailJob) error {
	return p.publish(ctx, MailOutboxQueue, job)
}

func (p *Publisher) publish(ctx context.Context, queue string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		logger.Error().Err(err).Str("queue", queue).Msg("rabbitmq: marshal failed")
		return err
	}

	conn, err := amqp.DialConfig(p.URL, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(dialTimeout),
	})
	if err != nil {
		logger.Warn().Err(err).Str("queue", queue).Msg("rabbitmq: dial failed")
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		logger.Warn().Err(err).Msg("rabbitmq: channel open failed")
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	); err != nil {
		logger.Warn().Err(err).Str("queue", queue).Msg("rabbitmq: queue declare failed")
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx,
		"",    // default exchange
		queue, // routing key = queue name
		false, // mandatory
		false, // immediate
		pub,
	); err != nil {
		logger.Warn().Err(err).Str("queue", queue).Msg("rabbitmq: publish failed")
		return err
	}
	return nil
}
