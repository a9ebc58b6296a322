// Package workspace implements the Workspace Provisioner (C1): allocating
// and tearing down an isolated git working copy per agent.
package workspace

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ait42/orchestrator/internal/common/logger"
	"github.com/ait42/orchestrator/internal/model"
	"github.com/ait42/orchestrator/internal/scriptengine"
	"go.uber.org/zap"
)

// Config configures the Provisioner.
type Config struct {
	// FetchTimeout bounds `git fetch` calls against the base repo.
	FetchTimeout time.Duration
	// SetupScript and CleanupScript run (via scriptengine placeholder
	// resolution) inside a freshly created / about-to-be-removed working
	// copy, mirroring the teacher's worktree lifecycle hooks.
	SetupScript   string
	CleanupScript string
}

// DefaultConfig returns sane defaults.
func DefaultConfig() Config {
	return Config{FetchTimeout: 30 * time.Second}
}

type repoLockEntry struct {
	mu       sync.Mutex
	refcount int
}

// Provisioner implements C1. One Provisioner serves every run in the
// process; mutations against the same base repository are serialized via a
// per-repo refcounted lock so distinct repos never block each other.
type Provisioner struct {
	cfg    Config
	logger *logger.Logger
	rootMu sync.Mutex
	repoLocks map[string]*repoLockEntry
}

// New creates a Provisioner.
func New(cfg Config, log *logger.Logger) *Provisioner {
	return &Provisioner{
		cfg:       cfg,
		logger:    log.WithFields(zap.String("component", "workspace-provisioner")),
		repoLocks: make(map[string]*repoLockEntry),
	}
}

func (p *Provisioner) lockRepo(baseDir string) func() {
	p.rootMu.Lock()
	entry, ok := p.repoLocks[baseDir]
	if !ok {
		entry = &repoLockEntry{}
		p.repoLocks[baseDir] = entry
	}
	entry.refcount++
	p.rootMu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		p.rootMu.Lock()
		entry.refcount--
		if entry.refcount == 0 {
			delete(p.repoLocks, baseDir)
		}
		p.rootMu.Unlock()
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

// branchLabel builds the `{mode_tag}-{short_run_id}-{agent_index}` label.
func branchLabel(mode model.Mode, runID string, agentIndex int) string {
	return fmt.Sprintf("%s-%s-%d", mode, shortRunID(runID), agentIndex)
}

// Provision creates an isolated working copy for one agent. baseDir must be
// an initialized git repository.
func (p *Provisioner) Provision(ctx context.Context, runID string, mode model.Mode, agentIndex int, baseDir string) (*model.WorkingCopy, error) {
	log := p.logger.WithFields(zap.String("run_id", runID), zap.Int("agent_index", agentIndex))

	if !isGitRepo(baseDir) {
		return nil, model.ErrNotARepo
	}

	label := branchLabel(mode, runID, agentIndex)
	wcPath := filepath.Join(baseDir, "worktrees", fmt.Sprintf("%s-%d", mode, agentIndex))

	if _, err := os.Stat(wcPath); err == nil {
		return nil, model.ErrPathCollision
	}

	unlock := p.lockRepo(baseDir)
	defer unlock()

	if err := os.MkdirAll(filepath.Dir(wcPath), 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrIO, err)
	}

	baseBranch, err := currentBranch(ctx, baseDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrVcsCommandFailed, err)
	}

	if err := gitAddWorktree(ctx, baseDir, wcPath, label, baseBranch); err != nil {
		log.Error("worktree add failed, cleaning up partial state", zap.Error(err))
		_ = forceRemoveDir(wcPath)
		return nil, fmt.Errorf("%w: %v", model.ErrVcsCommandFailed, err)
	}

	if p.cfg.SetupScript != "" {
		if err := p.runScript(ctx, wcPath, p.cfg.SetupScript, runID, label); err != nil {
			log.Warn("setup script failed, tearing down worktree", zap.Error(err))
			_ = p.teardown(ctx, wcPath, label, baseDir, true)
			return nil, fmt.Errorf("%w: setup script: %v", model.ErrProvisionFailed, err)
		}
	}

	log.Info("provisioned working copy", zap.String("path", wcPath), zap.String("branch", label))
	return &model.WorkingCopy{
		Path:             wcPath,
		BranchLabel:      label,
		ParentRunID:      runID,
		OwningAgentIndex: agentIndex,
	}, nil
}

// Release tears down a working copy. With preserve=true the on-disk state
// is left intact and the function only detaches bookkeeping.
func (p *Provisioner) Release(ctx context.Context, wc *model.WorkingCopy, baseDir string, preserve bool) error {
	if preserve {
		p.logger.Info("preserving working copy on release", zap.String("path", wc.Path))
		return nil
	}

	unlock := p.lockRepo(baseDir)
	defer unlock()

	return p.teardown(ctx, wc.Path, wc.BranchLabel, baseDir, true)
}

func (p *Provisioner) teardown(ctx context.Context, wcPath, branch, baseDir string, deleteBranch bool) error {
	if p.cfg.CleanupScript != "" {
		if err := p.runScript(ctx, wcPath, p.cfg.CleanupScript, "", branch); err != nil {
			p.logger.Warn("cleanup script failed, continuing teardown", zap.Error(err))
		}
	}

	cmd := newNonInteractiveGitCmd(ctx, baseDir, "worktree", "remove", "--force", wcPath)
	if err := cmd.Run(); err != nil {
		p.logger.Warn("git worktree remove failed, forcing directory removal", zap.Error(err))
		if err := forceRemoveDir(wcPath); err != nil {
			return fmt.Errorf("%w: %v", model.ErrIO, err)
		}
	}

	if deleteBranch && branch != "" {
		cmd := newNonInteractiveGitCmd(ctx, baseDir, "branch", "-D", branch)
		if err := cmd.Run(); err != nil {
			p.logger.Debug("branch delete failed (may already be gone)", zap.Error(err))
		}
	}

	return nil
}

func (p *Provisioner) runScript(ctx context.Context, wcPath, script, runID, branch string) error {
	resolver := scriptengine.NewResolver().WithStatic(map[string]string{
		"workspace.path":   wcPath,
		"workspace.branch": branch,
		"run.id":           runID,
	})
	resolved := resolver.Resolve(script)

	cmd := exec.CommandContext(ctx, "sh", "-c", resolved)
	cmd.Dir = wcPath
	cmd.Env = os.Environ()
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w", strings.TrimSpace(string(out)), err)
	}
	return nil
}

// Reconcile scans baseDir/worktrees for working copies whose parent run is
// no longer in liveRunIDs and removes them. This implements invariant I2
// surviving process restarts.
func (p *Provisioner) Reconcile(ctx context.Context, baseDir string, liveRunIDs map[string]bool) error {
	root := filepath.Join(baseDir, "worktrees")
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: %v", model.ErrIO, err)
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(root, e.Name())
		if !isWorktreeDir(path) {
			continue
		}
		// Orphan detection: a worktree dir whose owning run is not live.
		// The caller is expected to have derived liveRunIDs from the
		// Registry; any worktree not traceable to a live run is orphaned.
		if !belongsToLiveRun(e.Name(), liveRunIDs) {
			p.logger.Info("reconcile: removing orphaned worktree", zap.String("path", path))
			if err := forceRemoveDir(path); err != nil {
				p.logger.Warn("reconcile: failed to remove orphan", zap.Error(err))
			}
		}
	}
	return nil
}

func belongsToLiveRun(dirName string, liveRunIDs map[string]bool) bool {
	for runID := range liveRunIDs {
		if strings.Contains(dirName, shortRunID(runID)) {
			return true
		}
	}
	return len(liveRunIDs) == 0 // nothing live yet: don't guess, don't sweep
}

func isWorktreeDir(path string) bool {
	gitFile := filepath.Join(path, ".git")
	data, err := os.ReadFile(gitFile)
	if err != nil {
		return false
	}
	return strings.HasPrefix(string(data), "gitdir:")
}
