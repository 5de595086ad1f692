package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/suPer8Hu/gopherchat/internal/stream"
)

// Handler processes one generation event. A returned error rejects the
// delivery, which dead-letters it to the DLQ.
type Handler func(ctx context.Context, e stream.Event) error

// Consume reads generation events from queue with a pool of concurrency
// workers until ctx is done.
func Consume(ctx context.Context, url, queue string, concurrency int, h Handler, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	concurrency = clampConcurrency(concurrency)

	conn, err := amqp.Dial(url)
	if err != nil {
		return err
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := DeclareTopology(ch, queue); err != nil {
		return err
	}

	//  strict concurrency control
	if err := ch.Qos(concurrency, 0, false); err != nil {
		return err
	}

	msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	log.Info("event consumer started", "queue", queue, "concurrency", concurrency)
	dispatch(ctx, msgs, concurrency, h, log)
	return nil
}

func clampConcurrency(n int) int {
	if n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

// dispatch feeds deliveries to the worker pool until ctx is done or msgs is
// closed, then waits for in-flight work.
func dispatch(ctx context.Context, msgs <-chan amqp.Delivery, concurrency int, h Handler, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				handleDelivery(ctx, workerID, d, h, log)
			}
		}(i)
	}

	defer func() {
		close(jobs)
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info("event consumer shutting down")
			return
		case d, ok := <-msgs:
			if !ok {
				log.Warn("delivery channel closed")
				return
			}
			jobs <- d
		}
	}
}

func handleDelivery(ctx context.Context, workerID int, d amqp.Delivery, h Handler, log *slog.Logger) {
	var e stream.Event
	if err := json.Unmarshal(d.Body, &e); err != nil || e.GenerationID == "" {
		if err == nil {
			err = errors.New("missing generation_id")
		}
		log.Warn("bad event message", "worker", workerID, "message_id", d.MessageId, "err", err)
		_ = d.Nack(false, false)
		return
	}

	start := time.Now()
	if err := h(ctx, e); err != nil {
		log.Warn("event handler failed", "worker", workerID, "generation", e.GenerationID, "kind", e.Kind, "cost", time.Since(start), "err", err)
		_ = d.Nack(false, false)
		return
	}
	if err := d.Ack(false); err != nil {
		log.Warn("ack failed", "worker", workerID, "generation", e.GenerationID, "err", err)
	}
}
