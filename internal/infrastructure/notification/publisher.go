package notification

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/procuredesk/tender-evaluation-backend/internal/domain/event"
)

// Publisher fans domain events out to a Redis stream so downstream
// consumers (notifications, audit feed) can react. Publication is
// fire-and-forget: a failed delivery is logged, never surfaced to the
// operation that emitted the event.
type Publisher struct {
	client *redis.Client
	stream string
	logger *zap.Logger

	queue chan event.Event
	stop  chan struct{}
	wg    sync.WaitGroup
}

// NewPublisher starts the delivery worker.
func NewPublisher(client *redis.Client, stream string, logger *zap.Logger) *Publisher {
	p := &Publisher{
		client: client,
		stream: stream,
		logger: logger,
		queue:  make(chan event.Event, 256),
		stop:   make(chan struct{}),
	}
	p.wg.Add(1)
	go p.deliverLoop()
	return p
}

// Publish enqueues an event for delivery. Drops the event with a warning
// when the queue is full rather than blocking the emitting operation.
func (p *Publisher) Publish(evt event.Event) {
	select {
	case p.queue <- evt:
	default:
		p.logger.Warn("event queue full, dropping event",
			zap.String("type", string(evt.Type)),
			zap.String("tender_id", evt.TenderID.String()))
	}
}

func (p *Publisher) deliverLoop() {
	defer p.wg.Done()
	for {
		select {
		case evt := <-p.queue:
			p.deliver(evt)
		case <-p.stop:
			// Drain what is already queued before exiting.
			for {
				select {
				case evt := <-p.queue:
					p.deliver(evt)
				default:
					return
				}
			}
		}
	}
}

func (p *Publisher) deliver(evt event.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	payload, err := json.Marshal(evt)
	if err != nil {
		p.logger.Error("failed to marshal event", zap.Error(err))
		return
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"type":    string(evt.Type),
			"payload": payload,
		},
	}).Err()
	if err != nil {
		p.logger.Error("failed to deliver event",
			zap.String("type", string(evt.Type)),
			zap.Error(err))
	}
}

// Close stops the worker after draining the queue.
func (p *Publisher) Close() {
	close(p.stop)
	p.wg.Wait()
}
