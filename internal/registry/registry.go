// Package registry implements the Orchestrator Registry (C6): the
// process-wide map from run_id to its live RunHandle, the single point
// where the External Command Surface looks up, starts, and cancels runs.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ait42/orchestrator/internal/common/logger"
	"github.com/ait42/orchestrator/internal/dbindex"
	"github.com/ait42/orchestrator/internal/engine"
	"github.com/ait42/orchestrator/internal/eventbus"
	"github.com/ait42/orchestrator/internal/model"
	"go.uber.org/zap"
)

// RunHandle is the live, in-memory record of one Run. The same "protected
// map + side index" shape as the teacher's task queue (heap + taskMap by
// ID) — here there is no priority ordering to maintain, so the heap drops
// out and only the ID-indexed map remains.
type RunHandle struct {
	mu sync.RWMutex

	run        *model.Run
	cancel     context.CancelFunc
	startedAt  time.Time
	agentTails []*model.AgentOutcome // Competition/Ensemble terminal outcomes, filled in as they land
	roundLog   []model.RoundOutput   // Debate round history, filled in as rounds land
	err        error
}

func (h *RunHandle) status() model.RunStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.run.Status
}

func (h *RunHandle) setStatus(s model.RunStatus) {
	h.mu.Lock()
	h.run.Status = s
	h.mu.Unlock()
}

func (h *RunHandle) snapshot() model.Run {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return *h.run
}

// dispatchResult is what one Mode Engine invocation produced, collapsed
// into the shape the Registry stores regardless of which mode ran.
type dispatchResult struct {
	agentResults []*model.AgentOutcome
	rounds       []model.RoundOutput
}

// dispatchFunc runs one Run to completion against a Mode Engine. Extracted
// as a field (rather than called directly from drive) so tests can swap in
// a stub that never touches real git/tmux subprocesses.
type dispatchFunc func(ctx context.Context, deps engine.Deps, run *model.Run, report engine.StatusReporter) (dispatchResult, error)

func defaultDispatch(ctx context.Context, deps engine.Deps, run *model.Run, report engine.StatusReporter) (dispatchResult, error) {
	switch run.Mode {
	case model.ModeCompetition:
		outcomes, err := engine.RunCompetition(ctx, deps, run, report)
		return dispatchResult{agentResults: outcomes}, err
	case model.ModeEnsemble:
		result, err := engine.RunEnsemble(ctx, deps, run, report)
		if result == nil {
			return dispatchResult{}, err
		}
		return dispatchResult{agentResults: result.Outcomes}, err
	case model.ModeDebate:
		rounds, err := engine.RunDebate(ctx, deps, run, report)
		return dispatchResult{rounds: rounds}, err
	default:
		return dispatchResult{}, fmt.Errorf("%w: unknown mode %q", model.ErrInvalidRequest, run.Mode)
	}
}

// Registry is the process-wide run_id -> RunHandle map. The mutex is held
// only across map insert/remove/lookup, never across I/O or a run's own
// execution — long-running work happens on the run's own goroutine.
type Registry struct {
	mu       sync.RWMutex
	runs     map[string]*RunHandle
	deps     engine.Deps
	localBus *eventbus.Bus
	logger   *logger.Logger
	idGen    func() string
	dispatch dispatchFunc
	index    dbindex.Index
}

// NewOpts configures the Registry's collaborators; the same Deps bundle
// the Mode Engines consume, plus an ID generator so tests can supply
// deterministic IDs without the Registry depending on a specific UUID lib.
// LocalBus is the in-process Bus subscriptions attach to directly — even
// when Deps.Bus mirrors events to NATS, subscriptions are served from the
// local bus so a broker outage never blocks a same-process UI client.
// Index is nil-safe to omit: a zero-value NewOpts.Index falls back to
// dbindex.NewNoop(), so the Registry never special-cases "no durable
// index configured" beyond that one substitution.
type NewOpts struct {
	Deps     engine.Deps
	LocalBus *eventbus.Bus
	Logger   *logger.Logger
	IDGen    func() string
	Index    dbindex.Index
}

// New creates an empty Registry.
func New(opts NewOpts) *Registry {
	index := opts.Index
	if index == nil {
		index = dbindex.NewNoop()
	}
	return &Registry{
		runs:     make(map[string]*RunHandle),
		deps:     opts.Deps,
		localBus: opts.LocalBus,
		logger:   opts.Logger.WithFields(zap.String("component", "orchestrator-registry")),
		idGen:    opts.IDGen,
		dispatch: defaultDispatch,
		index:    index,
	}
}

// StartRequest is the input to Start, already validated by the caller
// (typically the External Command Surface) into a concrete Mode plan.
type StartRequest struct {
	Mode                 model.Mode
	Task                 string
	ModelTag             model.ModelTag
	AgentPlan            []model.AgentSpec
	BaseWorkingDirectory string
	PreserveArtifacts    bool
	TimeoutPerUnit       time.Duration
	RoundsTotal          int
	StrictContextReload  bool
}

// Start registers a new run and launches it on its own goroutine,
// returning immediately — it MUST NOT block on run completion.
func (r *Registry) Start(ctx context.Context, req StartRequest) (string, error) {
	runID := r.idGen()

	run := &model.Run{
		RunID:                runID,
		Mode:                 req.Mode,
		Task:                 req.Task,
		ModelTag:             req.ModelTag,
		CreatedAt:            time.Now().UTC(),
		BaseWorkingDirectory: req.BaseWorkingDirectory,
		PreserveArtifacts:    req.PreserveArtifacts,
		TimeoutPerUnit:       req.TimeoutPerUnit,
		AgentPlan:            req.AgentPlan,
		Status:               model.RunStatusIdle,
		RoundsTotal:          req.RoundsTotal,
		StrictContextReload:  req.StrictContextReload,
	}

	runCtx, cancel := context.WithCancel(context.Background())
	handle := &RunHandle{run: run, cancel: cancel, startedAt: time.Now()}

	r.mu.Lock()
	r.runs[runID] = handle
	r.mu.Unlock()

	if err := r.index.Started(ctx, dbindex.Record{
		RunID:                run.RunID,
		Mode:                 run.Mode,
		Task:                 run.Task,
		ModelTag:             run.ModelTag,
		Status:               run.Status,
		AgentPlan:            run.AgentPlan,
		BaseWorkingDirectory: run.BaseWorkingDirectory,
		CreatedAt:            run.CreatedAt,
	}); err != nil {
		r.logger.Warn("failed to record run start in durable index", zap.String("run_id", runID), zap.Error(err))
	}

	go r.drive(runCtx, handle)

	return runID, nil
}

func (r *Registry) drive(ctx context.Context, h *RunHandle) {
	run := h.snapshot()
	report := func(s model.RunStatus) { h.setStatus(s) }

	result, err := r.dispatch(ctx, r.deps, &run, report)

	h.mu.Lock()
	h.agentTails = result.agentResults
	h.roundLog = result.rounds
	h.err = err
	if err != nil && h.run.Status != model.RunStatusCancelled {
		h.run.Status = model.RunStatusFailed
	} else if err == nil {
		h.run.Status = model.RunStatusCompleted
	}
	finalStatus := h.run.Status
	h.mu.Unlock()

	if err != nil {
		r.logger.Warn("run terminated with error", zap.String("run_id", run.RunID), zap.Error(err))
	}

	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	if idxErr := r.index.Finished(context.Background(), run.RunID, finalStatus, time.Now().UTC(), errMsg); idxErr != nil {
		r.logger.Warn("failed to record run completion in durable index", zap.String("run_id", run.RunID), zap.Error(idxErr))
	}
}

// Status returns the current aggregate RunStatus.
func (r *Registry) Status(runID string) (model.RunStatus, error) {
	h, err := r.lookup(runID)
	if err != nil {
		return "", err
	}
	return h.status(), nil
}

// Progress is the full snapshot for a run: its current Run record plus
// whatever per-agent outcomes or Debate round outputs have landed so far.
type Progress struct {
	Run          model.Run
	AgentResults []*model.AgentOutcome
	Rounds       []model.RoundOutput
	Err          error
}

// Progress returns a full snapshot including per-agent/per-round results
// accumulated so far.
func (r *Registry) Progress(runID string) (*Progress, error) {
	h, err := r.lookup(runID)
	if err != nil {
		return nil, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return &Progress{
		Run:          *h.run,
		AgentResults: append([]*model.AgentOutcome{}, h.agentTails...),
		Rounds:       append([]model.RoundOutput{}, h.roundLog...),
		Err:          h.err,
	}, nil
}

// Cancel requests termination of a run. An unknown or already-terminal run
// returns a typed error rather than crashing.
func (r *Registry) Cancel(runID string) error {
	h, err := r.lookup(runID)
	if err != nil {
		return err
	}
	if h.status().IsTerminal() {
		return fmt.Errorf("%w: run %s", model.ErrAlreadyTerminal, runID)
	}
	h.setStatus(model.RunStatusCancelled)
	h.cancel()
	return nil
}

// Subscribe attaches to a run's event stream via the shared Event Bus.
// Unknown run IDs still succeed (events simply never arrive) since the bus
// is keyed by run_id independent of Registry state; callers that need a
// strict existence check should call Status first.
func (r *Registry) Subscribe(runID string) (*eventbus.Subscription, error) {
	if r.localBus == nil {
		return nil, fmt.Errorf("registry: no event bus configured")
	}
	return r.localBus.Subscribe(runID), nil
}

func (r *Registry) lookup(runID string) (*RunHandle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrUnknownRun, runID)
	}
	return h, nil
}

// Remove drops a terminal run's handle from the registry. Callers
// typically invoke this after a retention window has passed; the
// Registry itself never evicts runs on its own.
func (r *Registry) Remove(runID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.runs[runID]
	if !ok {
		return fmt.Errorf("%w: %s", model.ErrUnknownRun, runID)
	}
	if !h.status().IsTerminal() {
		return fmt.Errorf("%w: run %s is not terminal", model.ErrAlreadyTerminal, runID)
	}
	delete(r.runs, runID)
	return nil
}
