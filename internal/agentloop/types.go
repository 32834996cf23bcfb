package agentloop

import (
	"context"

	"go.uber.org/zap"

	"github.com/aprbench/aprloop/internal/adapter"
	"github.com/aprbench/aprloop/internal/model"
	"github.com/aprbench/aprloop/internal/toolruntime"
)

// Prompts holds the three static prompt texts a variant provides (spec
// §6): system, localize, patch.
type Prompts struct {
	System   string
	Localize string
	Patch    string
}

// RunConfig names one bug instance and the variant settings governing it.
type RunConfig struct {
	Ablation model.AblationConfig
	PID      string
	BID      int
	Workdir  string
	MetaDir  string
	FullLog  string
	TrigLog  string
	IndexDir string
	MaxIters int
	Model    string

	// StateListener, if set, is attached to the run's StateMachine before
	// the harness step so an external telemetry sink (internal/telemetry)
	// can observe every state transition while the run is in flight.
	StateListener func(from, to RunState, snap Snapshot)
}

// ApplyResult is the outcome of applying a unified diff or a structured
// edit candidate to the workdir.
type ApplyResult struct {
	Ok            bool
	Stderr        string
	AppliedFiles  []string
}

// PatchApplier is the local, workdir-mutating half of patch application
// — distinct from BenchmarkAdapter, which owns compile/test/validate but
// never touches the working tree directly (spec §4.6 vs §4.1 steps 7-8).
type PatchApplier interface {
	ApplyPatch(ctx context.Context, workdir, patchText string) (ApplyResult, error)
	ApplyEdits(ctx context.Context, workdir string, edits []model.FileEdit) (ApplyResult, error)
	GetGitDiff(ctx context.Context, workdir string) (string, error)
	ResetHard(ctx context.Context, workdir string) error
	CheckoutExists(ctx context.Context, workdir string) bool
}

// Result is the terminal JSON result described in spec §6.
type Result struct {
	Ok                   bool
	Iterations           int
	Patch                string
	Error                string
	Metrics              *model.Metrics
	HarnessOk            bool
	HarnessError         string
	CompileResult        *adapter.CompileResult
	Validation           *adapter.ValidationResult
	TestSuiteVerification *adapter.TestResult
}

// Orchestrator is the Agent Loop Orchestrator (spec §4.1): the top-level
// state machine driving one bug instance from initial harness to
// terminal verdict.
type Orchestrator struct {
	client   Client
	adapter  adapter.BenchmarkAdapter
	applier  PatchApplier

	localizeTools *toolruntime.Registry
	patchTools    *toolruntime.Registry
	verifyTools   *toolruntime.Registry

	logger *zap.Logger
}

// NewOrchestrator wires the loop's external collaborators: the model
// client, the benchmark adapter, the local patch applier, and the three
// phase-scoped tool registries.
func NewOrchestrator(client Client, bench adapter.BenchmarkAdapter, applier PatchApplier, localizeTools, patchTools, verifyTools *toolruntime.Registry, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		client:        client,
		adapter:       bench,
		applier:       applier,
		localizeTools: localizeTools,
		patchTools:    patchTools,
		verifyTools:   verifyTools,
		logger:        logger,
	}
}
