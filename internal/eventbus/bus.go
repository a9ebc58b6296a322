// Package eventbus implements the Event Bus (C3): ordered, typed event
// delivery from session supervisors to the UI, with bounded backpressure
// and late-subscriber replay.
package eventbus

import (
	"context"
	"fmt"
	"sync"

	"github.com/ait42/orchestrator/internal/common/logger"
	"github.com/ait42/orchestrator/internal/model"
	"go.uber.org/zap"
)

// DefaultSubscriberBuffer is the per-subscriber bounded buffer size.
const DefaultSubscriberBuffer = 1024

// TailSize is the number of recent events replayed to late subscribers.
const TailSize = 256

// Subscription is a live handle to a run's event stream.
type Subscription struct {
	bus   *Bus
	runID string
	ch    chan *model.Event
	once  sync.Once
}

// Events returns the channel to range over. The channel is closed when the
// subscription is cancelled or the bus is closed.
func (s *Subscription) Events() <-chan *model.Event { return s.ch }

// Unsubscribe removes the subscription. Publishers never block on dead
// subscribers, so this is safe to call at any time, including concurrently
// with an in-flight Publish.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.removeSubscriber(s.runID, s)
	})
}

type runTopic struct {
	mu          sync.Mutex
	tail        []*model.Event
	subscribers map[*Subscription]struct{}
}

// Bus is the process-wide in-memory Event Bus. It satisfies the Event Bus
// semantics of §4.3: per-(run,agent) FIFO, bounded per-subscriber buffers
// with oldest-dropped backpressure, and tail replay for late joiners.
type Bus struct {
	logger *logger.Logger

	mu     sync.RWMutex
	topics map[string]*runTopic
	closed bool
}

// New creates an in-memory Event Bus.
func New(log *logger.Logger) *Bus {
	return &Bus{
		logger: log.WithFields(zap.String("component", "event-bus")),
		topics: make(map[string]*runTopic),
	}
}

func (b *Bus) topicFor(runID string) *runTopic {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[runID]
	if !ok {
		t = &runTopic{subscribers: make(map[*Subscription]struct{})}
		b.topics[runID] = t
	}
	return t
}

// Publish delivers event to every live subscriber of its RunID, appending it
// to the run's replay tail first. Publish never blocks: a full subscriber
// buffer drops its oldest entry and records a synthetic lag marker instead.
func (b *Bus) Publish(ctx context.Context, event *model.Event) error {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return fmt.Errorf("event bus is closed")
	}

	topic := b.topicFor(event.RunID)
	topic.mu.Lock()
	topic.tail = append(topic.tail, event)
	if len(topic.tail) > TailSize {
		topic.tail = topic.tail[len(topic.tail)-TailSize:]
	}
	// Delivery stays under topic.mu: removeSubscriber deletes a subscriber
	// under the same lock before closing its channel, so a send never races
	// that close. deliver never blocks, so the lock is held only briefly.
	for s := range topic.subscribers {
		b.deliver(s, event)
	}
	topic.mu.Unlock()
	return nil
}

func (b *Bus) deliver(s *Subscription, event *model.Event) {
	select {
	case s.ch <- event:
		return
	default:
	}

	// Buffer full: drop the two oldest queued events to make room for a
	// synthetic lag marker plus event, so the subscriber knows it missed
	// something. The authoritative state is always reconstructible from
	// disk logs and the Run's status, so this lossiness is safe for a UI
	// stream.
	dropped := 0
	for dropped < 2 {
		select {
		case <-s.ch:
			dropped++
			continue
		default:
		}
		break
	}
	marker := model.NewOutputChunkEvent(event.RunID, -1, fmt.Sprintf("[events dropped: %d]", dropped), false, "")
	select {
	case s.ch <- marker:
	default:
	}
	select {
	case s.ch <- event:
	default:
		b.logger.Warn("subscriber buffer still full after drop, discarding event",
			zap.String("run_id", event.RunID))
	}
}

// Subscribe joins a run's event stream. The tail (bounded recent history)
// is replayed before any live event, so a late subscriber sees a coherent
// prefix instead of starting mid-stream.
func (b *Bus) Subscribe(runID string) *Subscription {
	topic := b.topicFor(runID)

	sub := &Subscription{
		bus:   b,
		runID: runID,
		ch:    make(chan *model.Event, DefaultSubscriberBuffer),
	}

	topic.mu.Lock()
	tailCopy := make([]*model.Event, len(topic.tail))
	copy(tailCopy, topic.tail)
	topic.subscribers[sub] = struct{}{}
	topic.mu.Unlock()

	for _, e := range tailCopy {
		select {
		case sub.ch <- e:
		default:
		}
	}

	return sub
}

func (b *Bus) removeSubscriber(runID string, sub *Subscription) {
	b.mu.RLock()
	topic, ok := b.topics[runID]
	b.mu.RUnlock()
	if !ok {
		return
	}
	topic.mu.Lock()
	delete(topic.subscribers, sub)
	topic.mu.Unlock()
	close(sub.ch)
}

// Close shuts the bus down; all subscriber channels are closed.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	topics := b.topics
	b.topics = make(map[string]*runTopic)
	b.mu.Unlock()

	for _, t := range topics {
		t.mu.Lock()
		for s := range t.subscribers {
			close(s.ch)
		}
		t.mu.Unlock()
	}
	b.logger.Info("event bus closed")
}
