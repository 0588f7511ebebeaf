package notify

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recordingNotifier) Notify(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

func (r *recordingNotifier) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func TestDispatcherFlushesOnShutdown(t *testing.T) {
	rec := &recordingNotifier{}
	d := NewDispatcher(rec, time.Second, 8)

	d.SaleShipped("sale-1")
	d.NewOrder("sale-2")
	d.BatchOrder([]string{"sale-3", "sale-4"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Run(ctx); err != nil {
		t.Fatalf("run returned error: %v", err)
	}

	events := rec.snapshot()
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Type != EventSaleShipped || events[2].Type != EventBatchOrder {
		t.Fatalf("unexpected event order %+v", events)
	}
	if len(events[2].SaleIDs) != 2 {
		t.Fatalf("expected batch event with 2 ids, got %v", events[2].SaleIDs)
	}
}

func TestDispatcherSwallowsNotifierErrors(t *testing.T) {
	rec := &recordingNotifier{err: errors.New("smtp down")}
	d := NewDispatcher(rec, time.Second, 2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	d.SaleShipped("sale-1")
	deadline := time.Now().Add(2 * time.Second)
	for len(rec.snapshot()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("expected nil from run, got %v", err)
	}
	if len(rec.snapshot()) != 1 {
		t.Fatalf("expected the failed event to have been attempted once")
	}
}

func TestDispatcherDropsWhenQueueFull(t *testing.T) {
	rec := &recordingNotifier{}
	d := NewDispatcher(rec, time.Second, 1)

	d.NewOrder("sale-1")
	d.NewOrder("sale-2")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = d.Run(ctx)
	if got := len(rec.snapshot()); got != 1 {
		t.Fatalf("expected overflow event to be dropped, got %d events", got)
	}
}

func TestRedisPublisher(t *testing.T) {
	addr := os.Getenv("SALESTRACK_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set SALESTRACK_TEST_REDIS_ADDR to run redis publisher test")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	sub := client.Subscribe(ctx, channelPrefix+string(EventSaleShipped))
	t.Cleanup(func() { _ = sub.Close() })
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	pub := NewRedisPublisher(client)
	if err := pub.Notify(ctx, Event{Type: EventSaleShipped, SaleIDs: []string{"sale-9"}}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	msg, err := sub.ReceiveMessage(ctx)
	if err != nil {
		t.Fatalf("receive failed: %v", err)
	}
	var event Event
	if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(event.SaleIDs) != 1 || event.SaleIDs[0] != "sale-9" {
		t.Fatalf("unexpected payload %+v", event)
	}
}
