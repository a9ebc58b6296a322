// Package session implements the Session Supervisor (C2): one multiplexer
// session per agent, running the LLM CLI, tailing its log, detecting
// completion, and tearing the session down on cancel or timeout.
package session

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ait42/orchestrator/internal/common/logger"
	"github.com/ait42/orchestrator/internal/eventbus"
	"github.com/ait42/orchestrator/internal/model"
	"go.uber.org/zap"
)

// Config tunes the supervisor's polling behavior and session naming.
type Config struct {
	// PollInterval bounds how often the multiplexer's session list is
	// polled for disappearance. Must stay at or below 1Hz per the
	// completion-detection policy.
	PollInterval time.Duration
	// ProductPrefix and RuntimeTag are the first two components of the
	// session name contract; RuntimeTag distinguishes which LLM CLI
	// protocol is in use (e.g. "acp", "claudecode") so two different
	// runtimes never collide on a session name.
	ProductPrefix string
	RuntimeTag    string
}

// DefaultConfig returns sane defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:  time.Second,
		ProductPrefix: "orc",
		RuntimeTag:    "cli",
	}
}

// shortRunID returns the first 8 hex characters of runID, per §6.3.
func shortRunID(runID string) string {
	clean := strings.ReplaceAll(runID, "-", "")
	if len(clean) > 8 {
		return clean[:8]
	}
	return clean
}

// SessionName computes the globally-unique session name for one agent.
// Any client wishing to attach to the live session must derive this
// identically.
func SessionName(cfg Config, mode model.Mode, runID string, agentIndex int) string {
	return fmt.Sprintf("%s-%s-%s-%s-%d", cfg.ProductPrefix, cfg.RuntimeTag, mode, shortRunID(runID), agentIndex)
}

// Supervisor is a live handle to one agent's multiplexer session.
type Supervisor struct {
	cfg        Config
	logger     *logger.Logger
	bus        eventbus.Publisher
	runID      string
	agentIndex int
	mode       model.Mode

	sessionName string
	logPath     string
	startedAt   time.Time

	mu      sync.Mutex
	outcome *model.AgentOutcome

	done       chan struct{}
	triggerCh  chan model.ExitCause
	cancelOnce sync.Once
}

// Launch names and creates a detached multiplexer session for one agent,
// invokes the supplied command line inside it with env, and starts log
// tailing and completion detection in the background. The returned
// Supervisor is live immediately; callers observe progress via the event
// bus and block on completion with AwaitCompletion.
func Launch(
	ctx context.Context,
	cfg Config,
	bus eventbus.Publisher,
	log *logger.Logger,
	runID string,
	mode model.Mode,
	agentIndex int,
	wc *model.WorkingCopy,
	runDir string,
	cmdLine []string,
	env []string,
) (*Supervisor, error) {
	name := SessionName(cfg, mode, runID, agentIndex)
	logPath := filepath.Join(runDir, "logs", name+".log")

	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrLogOpenFailed, err)
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrLogOpenFailed, err)
	}
	f.Close()

	script := buildRunScript(cmdLine, logPath)
	if err := newSession(name, wc.Path, script, env); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMuxSpawnFailed, err)
	}

	s := &Supervisor{
		cfg:         cfg,
		logger:      log.WithFields(zap.String("component", "session-supervisor"), zap.String("session", name)),
		bus:         bus,
		runID:       runID,
		agentIndex:  agentIndex,
		mode:        mode,
		sessionName: name,
		logPath:     logPath,
		startedAt:   time.Now(),
		done:        make(chan struct{}),
		triggerCh:   make(chan model.ExitCause, 1),
	}

	_ = bus.Publish(ctx, model.NewAgentStatusEvent(runID, agentIndex, model.LifecycleRunning))
	s.logger.Info("session launched", zap.Strings("cmd", cmdLine))

	// Supervision outlives the caller's request context: only Cancel or
	// AwaitCompletion's own timeout may tear this session down.
	go s.supervise(context.Background())

	return s, nil
}

func (s *Supervisor) requestStop(cause model.ExitCause) {
	s.cancelOnce.Do(func() {
		s.triggerCh <- cause
	})
}

// Cancel tears the session down. Idempotent: a Cancel against an already
// terminal Supervisor is a no-op.
func (s *Supervisor) Cancel(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	default:
	}
	s.requestStop(model.ExitCauseCancelled)
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AwaitCompletion blocks until the session reaches a terminal outcome, the
// supplied timeout elapses (timeout<=0 disables it), or ctx is cancelled.
// A second call returns the cached outcome immediately.
func (s *Supervisor) AwaitCompletion(ctx context.Context, timeout time.Duration) (*model.AgentOutcome, error) {
	s.mu.Lock()
	if s.outcome != nil {
		o := s.outcome
		s.mu.Unlock()
		return o, nil
	}
	s.mu.Unlock()

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case <-s.done:
	case <-timeoutCh:
		s.requestStop(model.ExitCauseTimeout)
		<-s.done
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.mu.Lock()
	o := s.outcome
	s.mu.Unlock()
	return o, nil
}

func (s *Supervisor) supervise(bgCtx context.Context) {
	stop := make(chan struct{})
	tailResult := make(chan string, 1)
	go func() { tailResult <- s.tailLog(bgCtx, stop) }()

	poll := time.NewTicker(s.cfg.PollInterval)
	defer poll.Stop()

	var cause model.ExitCause
	var reason string

waitLoop:
	for {
		select {
		case c := <-s.triggerCh:
			_ = killSession(context.Background(), s.sessionName)
			cause = c
			if c == model.ExitCauseTimeout {
				reason = "agent exceeded its configured timeout"
			} else {
				reason = "externally cancelled"
			}
			break waitLoop
		case <-poll.C:
			if !hasSession(bgCtx, s.sessionName) {
				cause = model.ExitCauseSuccess
				break waitLoop
			}
		}
	}

	close(stop)
	rendered := <-tailResult

	if cause == model.ExitCauseSuccess {
		if found, sentinel := scanFailureSentinels(rendered); found {
			cause, reason = model.ExitCauseFailure, fmt.Sprintf("output matched failure marker %q", sentinel)
		}
	}

	outcome := &model.AgentOutcome{
		AgentIndex:    s.agentIndex,
		Cause:         cause,
		FailureReason: reason,
		StartedAt:     s.startedAt,
		CompletedAt:   time.Now(),
		LogPath:       s.logPath,
	}
	s.mu.Lock()
	s.outcome = outcome
	s.mu.Unlock()

	s.logger.Info("session terminal", zap.String("cause", string(cause)), zap.String("reason", reason))

	_ = s.bus.Publish(context.Background(), model.NewOutputChunkEvent(s.runID, s.agentIndex, "", true, reason))
	_ = s.bus.Publish(context.Background(), model.NewAgentStatusEvent(s.runID, s.agentIndex, lifecycleFor(cause)))

	close(s.done)
}

// tailLog streams newly appended log bytes as non-terminal OutputChunk
// events until stop is closed, then performs one final drain-to-EOF pass
// before returning the accumulated (bounded) tail for sentinel scanning.
// Chunk boundaries are whatever a fixed-size read happens to return;
// callers must not assume line alignment.
func (s *Supervisor) tailLog(ctx context.Context, stop <-chan struct{}) string {
	f, err := os.Open(s.logPath)
	if err != nil {
		s.logger.Warn("failed to open log for tailing", zap.Error(err))
		return ""
	}
	defer f.Close()

	reader := bufio.NewReaderSize(f, 4096)
	buf := make([]byte, 4096)
	renderer := newTerminalRenderer()

	readOnce := func() bool {
		n, rerr := reader.Read(buf)
		if n > 0 {
			text := string(buf[:n])
			renderer.Write(buf[:n])
			_ = s.bus.Publish(ctx, model.NewOutputChunkEvent(s.runID, s.agentIndex, text, false, ""))
		}
		return rerr == nil
	}

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			for readOnce() {
			}
			return clampTail(renderer.Render())
		case <-ticker.C:
			readOnce()
		}
	}
}

func lifecycleFor(cause model.ExitCause) model.Lifecycle {
	switch cause {
	case model.ExitCauseSuccess:
		return model.LifecycleCompleted
	case model.ExitCauseCancelled:
		return model.LifecycleCancelled
	default:
		return model.LifecycleFailed
	}
}
