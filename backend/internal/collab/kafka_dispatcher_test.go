package collab

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestDispatcherDrainsWithoutProducer(t *testing.T) {
	d := NewKafkaDispatcher(nil, "", nil, zap.NewNop(), KafkaDispatcherOptions{
		QueueSize:   8,
		Workers:     2,
		MaxRetry:    0,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  time.Millisecond,
	})
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		evt := NewTopicEvent(Event{Type: EventCellLocked, EntityID: uint64(i + 1)})
		if err := d.Enqueue(ctx, evt); err != nil {
			t.Fatalf("Enqueue error: %v", err)
		}
	}
	// Workers must drain the queue even with no producer configured.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(d.queue) == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("queue not drained, %d events left", len(d.queue))
}

func TestEnqueueTimesOutWhenFull(t *testing.T) {
	// No workers: the queue can only fill up.
	d := &KafkaDispatcher{queue: make(chan TopicEvent, 1), logger: zap.NewNop()}
	ctx := context.Background()
	if err := d.Enqueue(ctx, NewTopicEvent(Event{Type: EventUserJoined})); err != nil {
		t.Fatalf("first Enqueue error: %v", err)
	}

	full, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := d.Enqueue(full, NewTopicEvent(Event{Type: EventUserLeft}))
	if err == nil {
		t.Fatal("expected timeout on full queue")
	}
}
