package rabbitmq

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/suPer8Hu/gopherchat/internal/common"
	"github.com/suPer8Hu/gopherchat/internal/stream"
)

type publishFunc func(ctx context.Context, msg amqp.Publishing) error

// Publisher forwards generation lifecycle events to a durable queue. It is a
// stream.Observer; events are queued in memory and published by a background
// goroutine so a slow broker never stalls a generation.
type Publisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
	log   *slog.Logger

	publish publishFunc

	mu     sync.Mutex
	closed bool
	events chan stream.Event
	done   chan struct{}
}

// DeclareTopology declares queue with a retry queue that dead-letters back
// to it and a DLQ that receives rejected deliveries.
func DeclareTopology(ch *amqp.Channel, queue string) error {
	mainQ := queue
	retryQ := queue + ".retry"
	dlqQ := queue + ".dlq"

	// DLQ
	if _, err := ch.QueueDeclare(
		dlqQ,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false,
		nil,
	); err != nil {
		return err
	}

	// Retry queue: message TTL -> dead-letter back to main queue
	if _, err := ch.QueueDeclare(
		retryQ,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": mainQ,
		},
	); err != nil {
		return err
	}

	// Main queue: dead-letter to DLQ on reject/nack(requeue=false)
	_, err := ch.QueueDeclare(
		mainQ,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": dlqQ,
		},
	)
	return err
}

func NewPublisher(url, queue string, log *slog.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := DeclareTopology(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	p := newPublisher(func(ctx context.Context, msg amqp.Publishing) error {
		return ch.PublishWithContext(ctx,
			"",    // default exchange
			queue, // routing key = queue
			false,
			false,
			msg,
		)
	}, queue, log)
	p.conn, p.ch = conn, ch
	return p, nil
}

func newPublisher(fn publishFunc, queue string, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	p := &Publisher{
		queue:   queue,
		log:     log,
		publish: fn,
		events:  make(chan stream.Event, 256),
		done:    make(chan struct{}),
	}
	go p.loop()
	return p
}

// OnGeneration queues lifecycle events. Per-snapshot events are not
// published.
func (p *Publisher) OnGeneration(e stream.Event) {
	if e.Kind == stream.EventSnapshot {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.events <- e:
	default:
		p.log.Warn("event queue full, dropping event", "kind", e.Kind, "generation", e.GenerationID)
	}
}

func (p *Publisher) loop() {
	defer close(p.done)
	for e := range p.events {
		if err := p.Publish(context.Background(), e); err != nil {
			p.log.Warn("publish generation event failed", "queue", p.queue, "kind", e.Kind, "generation", e.GenerationID, "err", err)
		}
	}
}

func (p *Publisher) Publish(ctx context.Context, e stream.Event) error {
	msg, err := encodeEvent(e)
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return p.publish(cctx, msg)
}

func encodeEvent(e stream.Event) (amqp.Publishing, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return amqp.Publishing{}, err
	}
	id, err := common.NewULID()
	if err != nil {
		return amqp.Publishing{}, err
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    id,
		Type:         string(e.Kind),
		Body:         body,
		Timestamp:    time.Now(),
	}, nil
}

// Close drains queued events and closes the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.events)
	}
	p.mu.Unlock()
	<-p.done

	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
