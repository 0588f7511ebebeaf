// Package notify delivers sale lifecycle events to outside systems. Delivery
// is fire-and-forget: failures are logged and never reach the caller.
package notify

import (
	"context"
	"log"
	"time"
)

type EventType string

const (
	EventSaleShipped EventType = "sale.shipped"
	EventNewOrder    EventType = "order.created"
	EventBatchOrder  EventType = "order.batch"
)

type Event struct {
	Type      EventType `json:"event_type"`
	SaleIDs   []string  `json:"sale_ids"`
	Timestamp time.Time `json:"timestamp"`
}

type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// LogNotifier writes events to the process log. It is used when no broker
// is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, event Event) error {
	log.Printf("[notify] %s sales=%v", event.Type, event.SaleIDs)
	return nil
}

// Dispatcher queues events and delivers them from a background worker so
// lifecycle operations never wait on the notifier.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	queue    chan Event
}

func NewDispatcher(notifier Notifier, timeout time.Duration, buffer int) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if buffer < 1 {
		buffer = 256
	}
	return &Dispatcher{
		notifier: notifier,
		timeout:  timeout,
		queue:    make(chan Event, buffer),
	}
}

func (d *Dispatcher) SaleShipped(saleID string) {
	d.enqueue(Event{Type: EventSaleShipped, SaleIDs: []string{saleID}})
}

func (d *Dispatcher) NewOrder(saleID string) {
	d.enqueue(Event{Type: EventNewOrder, SaleIDs: []string{saleID}})
}

func (d *Dispatcher) BatchOrder(saleIDs []string) {
	ids := make([]string, len(saleIDs))
	copy(ids, saleIDs)
	d.enqueue(Event{Type: EventBatchOrder, SaleIDs: ids})
}

func (d *Dispatcher) enqueue(event Event) {
	event.Timestamp = time.Now().UTC()
	select {
	case d.queue <- event:
	default:
		log.Printf("[notify] WARN: queue full, dropping %s for %v", event.Type, event.SaleIDs)
	}
}

// Run delivers queued events until ctx is cancelled, then flushes whatever
// is still buffered before returning.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		case <-ctx.Done():
			for {
				select {
				case event := <-d.queue:
					d.deliver(event)
				default:
					return nil
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.notifier.Notify(ctx, event); err != nil {
		log.Printf("[notify] WARN: deliver %s for %v failed: %v", event.Type, event.SaleIDs, err)
	}
}
