package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/ait42/orchestrator/internal/common/config"
	"github.com/ait42/orchestrator/internal/common/logger"
	"github.com/ait42/orchestrator/internal/model"
)

// runSubject returns the dot-separated NATS subject for a run, optionally
// scoped to one agent. A bare run subject uses the `>` wildcard so a single
// subscription observes every agent in the run.
func runSubject(runID string, agentIndex int) string {
	if agentIndex < 0 {
		return fmt.Sprintf("run.%s.agent.>", runID)
	}
	return fmt.Sprintf("run.%s.agent.%d", runID, agentIndex)
}

// NATSBus is the broker-backed counterpart to Bus, selected when
// EventsConfig/NATSConfig.URL is non-empty. It provides the same publish
// contract but delegates fan-out and durability to the NATS server,
// trading the in-process bounded-buffer/tail semantics for whatever the
// broker's own delivery guarantees are.
type NATSBus struct {
	conn   *nats.Conn
	logger *logger.Logger
}

// NewNATSBus dials the configured NATS server.
func NewNATSBus(cfg config.NATSConfig, log *logger.Logger) (*NATSBus, error) {
	opts := []nats.Option{
		nats.Name(cfg.ClientID),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(2 * time.Second),
		nats.ReconnectBufSize(5 * 1024 * 1024),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &NATSBus{conn: conn, logger: log.WithFields(zap.String("component", "nats-event-bus"))}, nil
}

// Publish publishes event under its run subject.
func (b *NATSBus) Publish(ctx context.Context, event *model.Event) error {
	agentIndex := -1
	if event.Output != nil {
		agentIndex = event.Output.AgentIndex
	} else if event.AgentStatus != nil {
		agentIndex = event.AgentStatus.AgentIndex
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	subject := runSubject(event.RunID, agentIndex)
	if err := b.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}

// SubscribeRun subscribes to every event for a run via the `>` wildcard,
// delivering decoded events to handler.
func (b *NATSBus) SubscribeRun(runID string, handler func(*model.Event)) (*nats.Subscription, error) {
	return b.conn.Subscribe(runSubject(runID, -1), func(msg *nats.Msg) {
		var event model.Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			b.logger.Error("failed to unmarshal event", zap.Error(err))
			return
		}
		handler(&event)
	})
}

// Close drains and closes the NATS connection.
func (b *NATSBus) Close() {
	if b.conn == nil {
		return
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
	}
}

// IsConnected reports connection health.
func (b *NATSBus) IsConnected() bool {
	return b.conn != nil && b.conn.IsConnected()
}
