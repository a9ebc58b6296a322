package eventbus

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ait42/orchestrator/internal/common/logger"
	"github.com/ait42/orchestrator/internal/model"
)

func newTestBus() *Bus {
	return New(logger.Default())
}

func TestSubscribePublishDelivers(t *testing.T) {
	b := newTestBus()
	sub := b.Subscribe("run-1")
	defer sub.Unsubscribe()

	evt := model.NewAgentStatusEvent("run-1", 0, model.LifecycleRunning)
	if err := b.Publish(context.Background(), evt); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-sub.Events():
		if got.RunID != "run-1" {
			t.Errorf("got run id %q, want run-1", got.RunID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSubscribeReplaysTail(t *testing.T) {
	b := newTestBus()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_ = b.Publish(ctx, model.NewOutputChunkEvent("run-2", 0, "chunk", false, ""))
	}

	sub := b.Subscribe("run-2")
	defer sub.Unsubscribe()

	count := 0
	for {
		select {
		case <-sub.Events():
			count++
		case <-time.After(100 * time.Millisecond):
			if count != 5 {
				t.Errorf("replayed %d events, want 5", count)
			}
			return
		}
	}
}

func TestTailBounded(t *testing.T) {
	b := newTestBus()
	ctx := context.Background()
	for i := 0; i < TailSize+10; i++ {
		_ = b.Publish(ctx, model.NewOutputChunkEvent("run-3", 0, "chunk", false, ""))
	}
	topic := b.topicFor("run-3")
	topic.mu.Lock()
	n := len(topic.tail)
	topic.mu.Unlock()
	if n != TailSize {
		t.Errorf("tail length = %d, want %d", n, TailSize)
	}
}

func TestDeliverDropsOldestOnFullBuffer(t *testing.T) {
	b := newTestBus()
	ctx := context.Background()
	sub := b.Subscribe("run-4")
	defer sub.Unsubscribe()

	for i := 0; i < DefaultSubscriberBuffer+5; i++ {
		_ = b.Publish(ctx, model.NewOutputChunkEvent("run-4", 0, "chunk", false, ""))
	}

	found := false
	for i := 0; i < DefaultSubscriberBuffer; i++ {
		select {
		case e := <-sub.Events():
			if e.Output != nil && strings.Contains(e.Output.Text, "dropped") {
				found = true
			}
		default:
		}
	}
	if !found {
		t.Error("expected a synthetic lag marker after overflowing the subscriber buffer")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := newTestBus()
	sub := b.Subscribe("run-5")
	sub.Unsubscribe()

	_, ok := <-sub.Events()
	if ok {
		t.Error("expected channel to be closed after Unsubscribe")
	}
}

func TestPublishAfterCloseFails(t *testing.T) {
	b := newTestBus()
	b.Close()
	err := b.Publish(context.Background(), model.NewRunStatusEvent("run-6", model.RunStatusRunning))
	if err == nil {
		t.Error("expected publish to a closed bus to fail")
	}
}

func TestTopicsIndependentByRun(t *testing.T) {
	b := newTestBus()
	subA := b.Subscribe("run-a")
	subB := b.Subscribe("run-b")
	defer subA.Unsubscribe()
	defer subB.Unsubscribe()

	_ = b.Publish(context.Background(), model.NewRunStatusEvent("run-a", model.RunStatusRunning))

	select {
	case <-subA.Events():
	case <-time.After(time.Second):
		t.Fatal("run-a subscriber did not receive its event")
	}

	select {
	case e := <-subB.Events():
		t.Fatalf("run-b subscriber unexpectedly received event for run-a: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}
