package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"shop-service/models"
	aws_pkg "shop-service/pkg/aws"

	"go.uber.org/zap"
)

const (
	defaultBuffer  = 256
	publishTimeout = 5 * time.Second
)

// Dispatcher publishes order events to SNS or SQS from a single background
// worker. Dispatch never blocks the caller: when the queue is full the event
// is dropped and logged.
type Dispatcher struct {
	publisher aws_pkg.MessagePublisher
	target    string
	logger    *zap.Logger

	queue  chan models.OrderEvent
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(publisher aws_pkg.MessagePublisher, target string, buffer int, logger *zap.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		publisher: publisher,
		target:    target,
		logger:    logger,
		queue:     make(chan models.OrderEvent, buffer),
	}
}

// Enabled reports whether events have anywhere to go.
func (d *Dispatcher) Enabled() bool {
	return d.publisher != nil && d.target != ""
}

func (d *Dispatcher) Dispatch(event models.OrderEvent) {
	if !d.Enabled() {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.queue <- event:
	default:
		d.logger.Warn("notification queue full, dropping event",
			zap.String("type", event.Type),
			zap.String("order_id", event.OrderID),
		)
	}
}

// Start runs the worker until ctx is canceled or Stop is called. Events still
// queued at shutdown are flushed.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case ev, ok := <-d.queue:
				if !ok {
					return
				}
				d.publish(ev)
			case <-ctx.Done():
				d.drain()
				return
			}
		}
	}()
}

// Stop closes the queue and waits for the worker to flush it.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) drain() {
	for {
		select {
		case ev, ok := <-d.queue:
			if !ok {
				return
			}
			d.publish(ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) publish(ev models.OrderEvent) {
	body, err := json.Marshal(struct {
		EventType string `json:"event_type"`
		models.OrderEvent
		OccurredAt time.Time `json:"occurred_at"`
	}{ev.Type, ev, time.Now().UTC()})
	if err != nil {
		d.logger.Error("failed to marshal order event", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := d.publisher.Publish(ctx, d.target, body); err != nil {
		d.logger.Warn("failed to publish order event",
			zap.String("type", ev.Type),
			zap.String("order_id", ev.OrderID),
			zap.Error(err),
		)
		return
	}
	d.logger.Debug("order event published",
		zap.String("type", ev.Type),
		zap.String("order_id", ev.OrderID),
	)
}
