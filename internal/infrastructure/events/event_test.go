package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentJSON struct {
	bodies []any
	err    error
}

func (s *sentJSON) PublishJSON(_ context.Context, body any) error {
	s.bodies = append(s.bodies, body)
	return s.err
}

func TestAMQPPublisher(t *testing.T) {
	out := &sentJSON{}
	ev := MutationEvent{Model: "Link", Action: ActionCreate, IDs: []string{"l1"}, UserIDs: []string{"u1"}}
	require.NoError(t, NewAMQPPublisher(out).Publish(context.Background(), ev))
	assert.Equal(t, []any{ev}, out.bodies)

	out.err = errors.New("channel closed")
	assert.EqualError(t, NewAMQPPublisher(out).Publish(context.Background(), ev), "channel closed")
}

func TestRecorder(t *testing.T) {
	var r Recorder
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.Publish(context.Background(), MutationEvent{Model: "User"})
		}()
	}
	wg.Wait()
	evs := r.Events()
	assert.Len(t, evs, 10)

	evs[0].Model = "changed"
	assert.Equal(t, "User", r.Events()[0].Model)
}

// acks records how a delivery was settled.
type acks struct {
	mu      sync.Mutex
	acked   int
	nacked  int
	requeue []bool
}

func (a *acks) Ack(uint64, bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked++
	return nil
}

func (a *acks) Nack(_ uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacked++
	a.requeue = append(a.requeue, requeue)
	return nil
}

func (a *acks) Reject(tag uint64, requeue bool) error { return a.Nack(tag, false, requeue) }

func delivery(t *testing.T, a *acks, body any, redelivered bool) amqp.Delivery {
	t.Helper()
	raw, ok := body.([]byte)
	if !ok {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(t, err)
	}
	return amqp.Delivery{Acknowledger: a, Body: raw, Redelivered: redelivered}
}

func TestConsume(t *testing.T) {
	logger, hook := test.NewNullLogger()
	failing := errors.New("index down")
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name        string
		body        any
		redelivered bool
		handlerErr  error
		acked       int
		requeue     []bool
	}{
		{name: "handled", body: MutationEvent{Model: "User", Action: ActionUpdate, IDs: []string{"u1"}, At: at}, acked: 1},
		{name: "malformed", body: []byte("{not json"), requeue: []bool{false}},
		{name: "failure requeues", body: MutationEvent{Model: "User"}, handlerErr: failing, requeue: []bool{true}},
		{name: "second failure drops", body: MutationEvent{Model: "User"}, redelivered: true, handlerErr: failing, requeue: []bool{false}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hook.Reset()
			a := &acks{}
			var got []MutationEvent
			h := func(_ context.Context, ev MutationEvent) error {
				got = append(got, ev)
				return tt.handlerErr
			}

			msgs := make(chan amqp.Delivery, 1)
			msgs <- delivery(t, a, tt.body, tt.redelivered)
			close(msgs)
			Consume(context.Background(), msgs, h, logger)

			assert.Equal(t, tt.acked, a.acked)
			assert.Equal(t, tt.requeue, a.requeue)
			if ev, ok := tt.body.(MutationEvent); ok {
				require.Len(t, got, 1)
				assert.Equal(t, ev.Model, got[0].Model)
				assert.True(t, ev.At.Equal(got[0].At))
			}
			if tt.acked == 0 {
				assert.NotEmpty(t, hook.AllEntries())
			}
		})
	}
}

func TestConsumeStopsOnCancel(t *testing.T) {
	logger, _ := test.NewNullLogger()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Consume(ctx, make(chan amqp.Delivery), func(context.Context, MutationEvent) error { return nil }, logger)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}
