package eventbus

import (
	"context"

	"github.com/ait42/orchestrator/internal/common/config"
	"github.com/ait42/orchestrator/internal/common/logger"
	"github.com/ait42/orchestrator/internal/model"
)

// Publisher is the narrow interface session supervisors and engines depend
// on to emit events; satisfied by both *Bus alone and the NATS-bridged
// variant below.
type Publisher interface {
	Publish(ctx context.Context, event *model.Event) error
}

// Provided bundles the selected Event Bus implementation along with a
// concrete handle to it, so callers that need NATS-specific operations
// (connection health, direct subject access) can still reach it while
// everyone else only depends on the Publisher/Subscribe surface.
type Provided struct {
	// Publisher is what the rest of the process publishes events
	// through. It always fans out locally; when NATS is configured it
	// also mirrors every event onto the broker.
	Publisher Publisher

	// Local is the in-process Bus backing every Subscribe call. The API
	// layer and anything else that needs live run streams subscribes
	// here regardless of whether NATS is configured.
	Local *Bus

	// NATS is non-nil only when a broker URL was configured. Its
	// presence lets the caller register it in health checks and close
	// it on shutdown independently of Local.
	NATS *NATSBus
}

// Close releases whichever backing resources were opened.
func (p *Provided) Close() {
	if p.NATS != nil {
		p.NATS.Close()
	}
	p.Local.Close()
}

// bridgingPublisher publishes to the in-process bus first (so local
// subscribers observe the event immediately, regardless of broker
// latency) and then mirrors it onto NATS for any other process sharing
// the same subject namespace. A mirror failure is logged, not returned:
// local delivery is the authoritative path and must not be held hostage
// to broker connectivity.
type bridgingPublisher struct {
	local  *Bus
	remote *NATSBus
	logger *logger.Logger
}

func (b *bridgingPublisher) Publish(ctx context.Context, event *model.Event) error {
	if err := b.local.Publish(ctx, event); err != nil {
		return err
	}
	if err := b.remote.Publish(ctx, event); err != nil {
		b.logger.Warn("failed to mirror event to nats, continuing with local delivery only")
	}
	return nil
}

// Provide selects the Event Bus backing store from configuration. An empty
// NATSConfig.URL keeps everything in-process; a non-empty URL additionally
// dials NATS and mirrors published events onto it so other processes
// sharing the broker observe the same stream. Subscribers always attach to
// the local Bus: bridging to NATS is a side channel for cross-process
// observers, not a replacement for the local fan-out/backpressure
// semantics the rest of the system relies on.
func Provide(cfg *config.Config, log *logger.Logger) (*Provided, error) {
	local := New(log)

	if cfg.NATS.URL == "" {
		return &Provided{Publisher: local, Local: local}, nil
	}

	remote, err := NewNATSBus(cfg.NATS, log)
	if err != nil {
		return nil, err
	}

	return &Provided{
		Publisher: &bridgingPublisher{local: local, remote: remote, logger: log},
		Local:     local,
		NATS:      remote,
	}, nil
}
