// Package analyzer implements the Task Analyzer (C4): mapping a task
// description to a complexity class and recommended instance count, with
// process-wide caching of LLM-backed estimates and a pure closed-form
// divisor table for instance counts.
package analyzer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/ait42/orchestrator/internal/common/logger"
	"github.com/ait42/orchestrator/internal/model"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// LLMClient issues a single structured-completion request. Analyzer is
// tolerant of its failure: a network or parse error degrades to
// ErrInvalidEstimate/ErrLLMRequestFailed rather than crashing a run.
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Config tunes the Analyzer.
type Config struct {
	RequestTimeout time.Duration
}

// DefaultConfig returns sane defaults.
func DefaultConfig() Config {
	return Config{RequestTimeout: 20 * time.Second}
}

// OptimizeResult is the outward-facing result of OptimizeTask.
type OptimizeResult struct {
	ComplexityClass     model.ComplexityClass
	RecommendedSubtasks int
	Confidence          float64
	Reasoning           string
}

// InstanceRecommendation is the outward-facing result of CalculateInstances.
type InstanceRecommendation struct {
	RecommendedInstances int
	SubtasksPerInstance  float64
	ResourceConstrained  bool
}

// ComplexityInfo is a pure, static description of one complexity class.
type ComplexityInfo struct {
	Notation     string
	SubtaskRange string
	Examples     []string
}

// Analyzer implements C4. One Analyzer serves every run in the process; its
// cache and in-flight request group are both process-wide and safe for
// concurrent use.
type Analyzer struct {
	cfg    Config
	llm    LLMClient
	logger *logger.Logger

	cacheMu sync.RWMutex
	cache   map[string]*model.TaskEstimate

	group singleflight.Group
}

// New creates an Analyzer backed by llm.
func New(cfg Config, llm LLMClient, log *logger.Logger) *Analyzer {
	return &Analyzer{
		cfg:    cfg,
		llm:    llm,
		logger: log.WithFields(zap.String("component", "task-analyzer")),
		cache:  make(map[string]*model.TaskEstimate),
	}
}

// fingerprint computes a stable cache key for a task description.
func fingerprint(taskDescription string) string {
	trimmed := strings.TrimSpace(taskDescription)
	sum := sha256.Sum256([]byte(trimmed))
	return hex.EncodeToString(sum[:])
}

// OptimizeTask maps a task description to a complexity classification,
// consulting the process-wide cache first. Concurrent callers racing on the
// same fingerprint collapse onto a single in-flight LLM request via
// singleflight; only the winning caller's goroutine actually issues it.
func (a *Analyzer) OptimizeTask(ctx context.Context, taskDescription, contextHint string) (*OptimizeResult, error) {
	trimmed := strings.TrimSpace(taskDescription)
	if trimmed == "" {
		return nil, model.ErrEmptyInput
	}

	fp := fingerprint(trimmed)

	if cached := a.lookupCache(fp); cached != nil {
		return toResult(cached), nil
	}

	v, err, _ := a.group.Do(fp, func() (interface{}, error) {
		if cached := a.lookupCache(fp); cached != nil {
			return cached, nil
		}
		estimate, err := a.requestEstimate(ctx, fp, trimmed, contextHint)
		if err != nil {
			return nil, err
		}
		a.storeCache(fp, estimate)
		return estimate, nil
	})
	if err != nil {
		return nil, err
	}

	return toResult(v.(*model.TaskEstimate)), nil
}

func (a *Analyzer) lookupCache(fp string) *model.TaskEstimate {
	a.cacheMu.RLock()
	defer a.cacheMu.RUnlock()
	return a.cache[fp]
}

func (a *Analyzer) storeCache(fp string, e *model.TaskEstimate) {
	a.cacheMu.Lock()
	defer a.cacheMu.Unlock()
	a.cache[fp] = e
}

func toResult(e *model.TaskEstimate) *OptimizeResult {
	return &OptimizeResult{
		ComplexityClass:     e.ComplexityClass,
		RecommendedSubtasks: e.RecommendedSubtasks,
		Confidence:          e.Confidence,
		Reasoning:           e.ReasoningText,
	}
}

type llmEstimateReply struct {
	ComplexityClass     string  `json:"complexity_class"`
	RecommendedSubtasks int     `json:"recommended_subtasks"`
	Confidence          float64 `json:"confidence"`
	Reasoning           string  `json:"reasoning"`
}

func (a *Analyzer) requestEstimate(ctx context.Context, fp, taskDescription, contextHint string) (*model.TaskEstimate, error) {
	reqCtx, cancel := context.WithTimeout(ctx, a.cfg.RequestTimeout)
	defer cancel()

	prompt := buildPrompt(taskDescription, contextHint)
	raw, err := a.llm.Complete(reqCtx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrLLMRequestFailed, err)
	}

	var reply llmEstimateReply
	if err := json.Unmarshal([]byte(extractJSON(raw)), &reply); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidEstimate, err)
	}

	class, ok := model.ValidComplexityClass(reply.ComplexityClass)
	if !ok {
		return nil, fmt.Errorf("%w: unrecognized complexity class %q", model.ErrInvalidEstimate, reply.ComplexityClass)
	}
	if reply.RecommendedSubtasks <= 0 {
		return nil, fmt.Errorf("%w: recommended_subtasks must be positive, got %d", model.ErrInvalidEstimate, reply.RecommendedSubtasks)
	}

	estimate := &model.TaskEstimate{
		TaskFingerprint:     fp,
		ComplexityClass:     class,
		RecommendedSubtasks: reply.RecommendedSubtasks,
		Confidence:          reply.Confidence,
		ReasoningText:       reply.Reasoning,
		CreatedAt:           time.Now(),
	}
	a.logger.Debug("optimized task",
		zap.String("complexity_class", string(class)),
		zap.Int("recommended_subtasks", estimate.RecommendedSubtasks))
	return estimate, nil
}

func buildPrompt(taskDescription, contextHint string) string {
	var b strings.Builder
	b.WriteString("Classify the computational/organizational complexity of the following task ")
	b.WriteString("and recommend how many parallel subtasks it should be split into. ")
	b.WriteString("Respond with ONLY a JSON object of the form ")
	b.WriteString(`{"complexity_class": "Constant|Logarithmic|Linear|Linearithmic|Quadratic|Exponential", "recommended_subtasks": <int>, "confidence": <float 0..1>, "reasoning": "<string>"}.`)
	b.WriteString("\n\nTask:\n")
	b.WriteString(taskDescription)
	if contextHint != "" {
		b.WriteString("\n\nContext:\n")
		b.WriteString(contextHint)
	}
	return b.String()
}

// extractJSON keeps the span from the first '{' to the last '}', dropping
// anything outside it, in case the CLI wraps its reply in prose or a
// markdown fence.
func extractJSON(raw string) string {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start == -1 || end == -1 || end < start {
		return raw
	}
	return raw[start : end+1]
}

// divisors maps each complexity class to its recommended subtasks-per-
// instance divisor, per §4.4.
var divisors = map[model.ComplexityClass]int{
	model.ComplexityConstant:     10,
	model.ComplexityLogarithmic:  8,
	model.ComplexityLinear:       5,
	model.ComplexityLinearithmic: 4,
	model.ComplexityQuadratic:    2,
	model.ComplexityExponential:  1,
}

// CalculateInstances is pure and closed-form: it never consults the cache
// or the LLM.
func CalculateInstances(class model.ComplexityClass, subtaskCount int) (*InstanceRecommendation, error) {
	d, ok := divisors[class]
	if !ok {
		return nil, fmt.Errorf("%w: unrecognized complexity class %q", model.ErrInvalidEstimate, class)
	}
	if subtaskCount <= 0 {
		return nil, fmt.Errorf("%w: subtask_count must be positive", model.ErrInvalidRequest)
	}

	raw := int(math.Ceil(float64(subtaskCount) / float64(d)))
	recommended := raw
	if recommended > model.HardCap {
		recommended = model.HardCap
	}

	return &InstanceRecommendation{
		RecommendedInstances: recommended,
		SubtasksPerInstance:  float64(subtaskCount) / float64(recommended),
		ResourceConstrained:  raw > model.HardCap,
	}, nil
}

// complexityInfoTable is the static, pure description backing
// GetComplexityInfo.
var complexityInfoTable = map[model.ComplexityClass]ComplexityInfo{
	model.ComplexityConstant: {
		Notation: "O(1)", SubtaskRange: "1-10",
		Examples: []string{"fixing a typo", "renaming a variable", "bumping a version string"},
	},
	model.ComplexityLogarithmic: {
		Notation: "O(log n)", SubtaskRange: "10-80",
		Examples: []string{"bisecting a regression", "narrowing down a config across environments"},
	},
	model.ComplexityLinear: {
		Notation: "O(n)", SubtaskRange: "50-500",
		Examples: []string{"applying the same refactor across many files", "migrating a dependency"},
	},
	model.ComplexityLinearithmic: {
		Notation: "O(n log n)", SubtaskRange: "100-2000",
		Examples: []string{"reorganizing a module graph", "sorting out cross-cutting lint rules"},
	},
	model.ComplexityQuadratic: {
		Notation: "O(n^2)", SubtaskRange: "200-10000",
		Examples: []string{"resolving pairwise merge conflicts", "full API compatibility matrix audits"},
	},
	model.ComplexityExponential: {
		Notation: "O(2^n)", SubtaskRange: "unbounded",
		Examples: []string{"exhaustive search over a combinatorial design space"},
	},
}

// GetComplexityInfo is a pure lookup.
func GetComplexityInfo(class model.ComplexityClass) (*ComplexityInfo, error) {
	info, ok := complexityInfoTable[class]
	if !ok {
		return nil, fmt.Errorf("%w: unrecognized complexity class %q", model.ErrInvalidEstimate, class)
	}
	return &info, nil
}
