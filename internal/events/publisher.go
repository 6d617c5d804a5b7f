// Package events publishes notifications about stored expenses to AMQP.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"spendbook/internal/models"

	"github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 5 * time.Second

// Publisher announces newly created expenses.
type Publisher interface {
	PublishExpenseCreated(ctx context.Context, e models.Expense) error
	Close() error
}

// channel is the subset of *amqp091.Channel the publisher uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// AMQPPublisher publishes ExpenseCreatedMessage values to a durable direct
// exchange, routed to a queue of the same name as the routing key.
type AMQPPublisher struct {
	conn         *amqp091.Connection
	channel      channel
	exchangeName string
	queueName    string
	logger       *slog.Logger
}

// NewAMQPPublisher dials url and declares the exchange, queue and binding.
func NewAMQPPublisher(url, exchangeName, queueName string, logger *slog.Logger) (*AMQPPublisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	p := &AMQPPublisher{
		conn:         conn,
		channel:      ch,
		exchangeName: exchangeName,
		queueName:    queueName,
		logger:       logger,
	}

	if err := p.setup(); err != nil {
		p.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}

	return p, nil
}

func (p *AMQPPublisher) setup() error {
	if err := p.channel.ExchangeDeclare(p.exchangeName, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	if _, err := p.channel.QueueDeclare(p.queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	if err := p.channel.QueueBind(p.queueName, p.queueName, p.exchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	return nil
}

// PublishExpenseCreated publishes a persistent JSON message for e.
func (p *AMQPPublisher) PublishExpenseCreated(ctx context.Context, e models.Expense) error {
	body, err := NewExpenseCreatedMessage(e).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = p.channel.PublishWithContext(ctx, p.exchangeName, p.queueName, false, false,
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    e.ID,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	p.logger.DebugContext(ctx, "Published expense created message",
		"id", e.ID,
		"exchange", p.exchangeName,
		"queue", p.queueName)

	return nil
}

// Close closes the channel and the connection.
func (p *AMQPPublisher) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
