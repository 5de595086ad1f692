package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suPer8Hu/gopherchat/internal/stream"
)

type recordingAck struct {
	mu     sync.Mutex
	acked  []uint64
	nacked []uint64
}

func (a *recordingAck) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *recordingAck) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacked = append(a.nacked, tag)
	return nil
}

func (a *recordingAck) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func TestPublisher_SkipsSnapshotsAndEncodes(t *testing.T) {
	var mu sync.Mutex
	var got []amqp.Publishing
	p := newPublisher(func(ctx context.Context, msg amqp.Publishing) error {
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		mu.Lock()
		got = append(got, msg)
		mu.Unlock()
		return nil
	}, "events", nil)

	p.OnGeneration(stream.Event{Kind: stream.EventStarted, GenerationID: "g1"})
	p.OnGeneration(stream.Event{Kind: stream.EventSnapshot, GenerationID: "g1", Content: "x"})
	p.OnGeneration(stream.Event{Kind: stream.EventCompleted, GenerationID: "g1", Content: "done", Snapshots: 1})
	require.NoError(t, p.Close())

	// Events after Close are ignored.
	p.OnGeneration(stream.Event{Kind: stream.EventStarted, GenerationID: "g2"})

	require.Len(t, got, 2)
	assert.Equal(t, "started", got[0].Type)
	assert.Equal(t, "application/json", got[1].ContentType)
	assert.Equal(t, amqp.Persistent, got[1].DeliveryMode)
	assert.Len(t, got[1].MessageId, 26)

	var e stream.Event
	require.NoError(t, json.Unmarshal(got[1].Body, &e))
	assert.Equal(t, stream.EventCompleted, e.Kind)
	assert.Equal(t, "done", e.Content)
}

func TestPublisher_ErrorsAreLoggedNotFatal(t *testing.T) {
	calls := 0
	p := newPublisher(func(context.Context, amqp.Publishing) error {
		calls++
		return errors.New("broker down")
	}, "events", nil)
	p.OnGeneration(stream.Event{Kind: stream.EventErrored, GenerationID: "g"})
	require.NoError(t, p.Close())
	assert.Equal(t, 1, calls)
}

func delivery(ack amqp.Acknowledger, tag uint64, body []byte) amqp.Delivery {
	return amqp.Delivery{Acknowledger: ack, DeliveryTag: tag, Body: body}
}

func TestDispatch_AcksAndRejects(t *testing.T) {
	ack := &recordingAck{}
	msgs := make(chan amqp.Delivery, 4)

	good, _ := json.Marshal(stream.Event{Kind: stream.EventCompleted, GenerationID: "g1"})
	failing, _ := json.Marshal(stream.Event{Kind: stream.EventErrored, GenerationID: "boom"})
	msgs <- delivery(ack, 1, good)
	msgs <- delivery(ack, 2, []byte("not json"))
	msgs <- delivery(ack, 3, failing)
	msgs <- delivery(ack, 4, []byte(`{"kind":"started"}`))
	close(msgs)

	var mu sync.Mutex
	var handled []string
	h := func(ctx context.Context, e stream.Event) error {
		mu.Lock()
		handled = append(handled, e.GenerationID)
		mu.Unlock()
		if e.GenerationID == "boom" {
			return errors.New("handler failed")
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	dispatch(ctx, msgs, 2, h, nil)

	assert.ElementsMatch(t, []string{"g1", "boom"}, handled)
	assert.Equal(t, []uint64{1}, ack.acked)
	assert.ElementsMatch(t, []uint64{2, 3, 4}, ack.nacked)
}

func TestDispatch_StopsOnCancel(t *testing.T) {
	msgs := make(chan amqp.Delivery)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dispatch(ctx, msgs, 1, func(context.Context, stream.Event) error { return nil }, nil)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch did not return after cancel")
	}
}

func TestClampConcurrency(t *testing.T) {
	assert.Equal(t, 2, clampConcurrency(0))
	assert.Equal(t, 7, clampConcurrency(7))
	assert.Equal(t, 50, clampConcurrency(500))
}
