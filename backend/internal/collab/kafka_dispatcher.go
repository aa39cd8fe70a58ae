package collab

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// KafkaDispatcher mirrors broadcast events onto the shared topic through a
// bounded local queue with worker retry. Enqueue never blocks the session
// beyond its context; a full queue under a slow broker degrades to drops
// rather than unbounded memory.
type KafkaDispatcher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger

	queue chan TopicEvent

	// sendSem caps concurrent SendMessage calls.
	sendSem *SemaphoreControl

	workers     int
	maxRetry    int
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

type KafkaDispatcherOptions struct {
	QueueSize   int
	Workers     int
	MaxRetry    int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func NewKafkaDispatcher(producer sarama.SyncProducer, topic string, sendSem *SemaphoreControl, logger *zap.Logger, opt KafkaDispatcherOptions) *KafkaDispatcher {
	d := &KafkaDispatcher{
		producer:    producer,
		topic:       topic,
		logger:      logger,
		queue:       make(chan TopicEvent, opt.QueueSize),
		sendSem:     sendSem,
		workers:     opt.Workers,
		maxRetry:    opt.MaxRetry,
		baseBackoff: opt.BaseBackoff,
		maxBackoff:  opt.MaxBackoff,
	}
	d.start()
	return d
}

// Enqueue queues the event for async delivery, waiting at most until ctx
// expires when the queue is full. The topic is best-effort; not every
// event must survive a broker outage.
func (d *KafkaDispatcher) Enqueue(ctx context.Context, evt TopicEvent) error {
	select {
	case d.queue <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *KafkaDispatcher) start() {
	for i := 0; i < d.workers; i++ {
		go d.workerLoop(i)
	}
}

func (d *KafkaDispatcher) workerLoop(workerID int) {
	for evt := range d.queue {
		d.sendWithRetry(workerID, evt)
	}
}

func (d *KafkaDispatcher) sendWithRetry(workerID int, evt TopicEvent) {
	for attempt := 0; attempt <= d.maxRetry; attempt++ {
		if d.sendSem != nil {
			// Workers may wait indefinitely; they are off the hot path.
			_ = d.sendSem.Acquire(context.Background())
		}
		err := d.sendOnce(evt)
		if d.sendSem != nil {
			_ = d.sendSem.Release()
		}
		if err == nil {
			return
		}
		if attempt == d.maxRetry {
			d.logger.Warn("kafka send failed, dropping event",
				zap.String("eventId", evt.EventID),
				zap.String("type", evt.Type),
				zap.Int("worker", workerID),
				zap.Error(err))
			return
		}
		backoff := d.baseBackoff * time.Duration(1<<attempt)
		if backoff > d.maxBackoff {
			backoff = d.maxBackoff
		}
		time.Sleep(backoff)
	}
}

func (d *KafkaDispatcher) sendOnce(evt TopicEvent) error {
	if d.producer == nil || d.topic == "" {
		return nil
	}
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	// Keyed by entity so per-cell event order survives partitioning; pure
	// presence events hash by user instead.
	key := strconv.FormatUint(evt.EntityID, 10)
	if evt.EntityID == 0 {
		key = strconv.FormatUint(evt.User.ID, 10)
	}
	msg := &sarama.ProducerMessage{
		Topic: d.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(b),
	}
	_, _, err = d.producer.SendMessage(msg)
	return err
}
