package agentloop

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aprbench/aprloop/internal/budget"
	"github.com/aprbench/aprloop/internal/convo"
	"github.com/aprbench/aprloop/internal/model"
	"github.com/aprbench/aprloop/internal/retry"
	"github.com/aprbench/aprloop/internal/toolruntime"
)

// runState carries everything one Run() call accumulates — it exists so
// the many per-iteration helper methods don't need a dozen positional
// parameters, while keeping all of it owned by this one call (spec §9:
// the loop instance owns all mutable state, never a module singleton).
type runState struct {
	cfg     RunConfig
	prompts Prompts
	tracker *budget.Tracker

	conv *model.Conversation

	localizeRuntime *toolruntime.Runtime
	patchRuntime    *toolruntime.Runtime
	verifyRuntime   *toolruntime.Runtime

	sm *StateMachine

	predictedFiles []string
	lastPatchText  string
}

// Run drives one bug instance from initial harness to terminal verdict,
// per spec §4.1. It never panics out of an adapter or client error — all
// failures are converted into a Result with ok=false.
func (o *Orchestrator) Run(ctx context.Context, cfg RunConfig, prompts Prompts) *Result {
	rs := &runState{
		cfg:     cfg,
		prompts: prompts,
		tracker: budget.New(),
		conv:    model.NewConversation(),
		sm:      NewStateMachine(o.logger),
	}
	if cfg.StateListener != nil {
		rs.sm.OnTransition(cfg.StateListener)
	}

	rs.localizeRuntime = toolruntime.New(o.localizeTools, convo.TruncateToolResult, o.logger)
	rs.patchRuntime = toolruntime.New(o.patchTools, convo.TruncateToolResult, o.logger)
	rs.verifyRuntime = toolruntime.New(o.verifyTools, convo.TruncateToolResult, o.logger)
	rs.localizeRuntime.ClearCache()
	rs.patchRuntime.ClearCache()
	rs.verifyRuntime.ClearCache()

	rs.conv.Append(model.NewSystemMessage(prompts.System))

	_ = rs.sm.Transition(StateHarness)
	harness, err := o.runHarness(ctx, rs)
	if err != nil || !harness.Ok {
		rs.tracker.FinalizeRuntime()
		msg := harness.Error
		if err != nil {
			msg = err.Error()
		}
		_ = rs.sm.Transition(StateTerminal)
		return &Result{Ok: false, Error: msg, HarnessOk: false, HarnessError: msg, Metrics: rs.tracker.Metrics}
	}

	restoreJavaEnvIfNeeded()

	if cfg.Ablation.UseCompileGate {
		o.rebindCheckCompile(rs, harness.Workdir)
	}

	if cfg.Ablation.VerifyRed {
		_ = rs.sm.Transition(StateRedGate)
		if res := o.runRedGate(ctx, rs, harness); res != nil {
			rs.tracker.FinalizeRuntime()
			_ = rs.sm.Transition(StateTerminal)
			return res
		}
	}

	o.injectHarness(rs, harness)

	for iter := 1; iter <= cfg.MaxIters; iter++ {
		rs.sm.SetIteration(iter)
		if rs.tracker.TimedOut() {
			return o.timeoutResult(rs, iter-1)
		}

		_ = rs.sm.Transition(StateLocalize)
		localizeResult, err := o.runLocalizePhase(ctx, rs)
		if err != nil {
			if errors.Is(err, ErrTimeout) {
				return o.timeoutResult(rs, iter-1)
			}
			return o.fatalResult(rs, err)
		}
		rs.predictedFiles = mergePredicted(rs.predictedFiles, localizeResult.PredictedFiles)
		if rs.tracker.TimedOut() {
			return o.timeoutResult(rs, iter-1)
		}

		_ = rs.sm.Transition(StatePatch)
		result, done := o.runPatchPhase(ctx, rs, iter, localizeResult)
		if done {
			return result
		}
		if rs.tracker.TimedOut() {
			return o.timeoutResult(rs, iter)
		}
	}

	return o.exhaustedResult(rs)
}

func (o *Orchestrator) timeoutResult(rs *runState, iterations int) *Result {
	rs.tracker.FinalizeRuntime()
	_ = rs.sm.Transition(StateTerminal)
	return &Result{
		Ok:         false,
		Iterations: iterations,
		Error:      fmt.Sprintf("Timeout: exceeded %ds", int(budget.GlobalTimeout.Seconds())),
		Metrics:    rs.tracker.Metrics,
		HarnessOk:  true,
	}
}

func (o *Orchestrator) fatalResult(rs *runState, err error) *Result {
	rs.tracker.FinalizeRuntime()
	_ = rs.sm.Transition(StateTerminal)
	msg := err.Error()
	if retry.Classify(err) == retry.ClassFatalQuota {
		msg = "credits/quota exhausted: " + msg
	}
	return &Result{Ok: false, Error: msg, Metrics: rs.tracker.Metrics, HarnessOk: true}
}

func (o *Orchestrator) exhaustedResult(rs *runState) *Result {
	rs.tracker.FinalizeRuntime()
	o.bestEffortHitAtK(rs)
	_ = rs.sm.Transition(StateTerminal)
	return &Result{
		Ok:         false,
		Iterations: rs.cfg.MaxIters,
		Error:      "Reached max iterations without successful patch",
		Metrics:    rs.tracker.Metrics,
		HarnessOk:  true,
		Patch:      rs.lastPatchText,
	}
}

// restoreJavaEnvIfNeeded implements the Java environment discipline (spec
// §4.1 step 5, Defects4J only): if the ambient JAVA_HOME points at Java
// 17+, restore the pre-harness JAVA_HOME/PATH; otherwise leave it alone.
// The pre-harness values are read from APR_PRE_HARNESS_JAVA_HOME and
// APR_PRE_HARNESS_PATH when those are set; this package takes no snapshot
// of its own, so with neither variable set nothing is restored.
// Idempotent, and a no-op outside a Java toolchain context.
func restoreJavaEnvIfNeeded() {
	javaHome := os.Getenv("JAVA_HOME")
	if javaHome == "" {
		return
	}
	if !looksLikeJava17Plus(javaHome) {
		return
	}
	if prevHome, ok := os.LookupEnv("APR_PRE_HARNESS_JAVA_HOME"); ok {
		os.Setenv("JAVA_HOME", prevHome)
	}
	if prevPath, ok := os.LookupEnv("APR_PRE_HARNESS_PATH"); ok {
		os.Setenv("PATH", prevPath)
	}
}

func looksLikeJava17Plus(javaHome string) bool {
	for _, marker := range []string{"-17", "-18", "-19", "-20", "-21", "-22", "jdk17", "jdk-17", "jdk21", "jdk-21"} {
		if strings.Contains(javaHome, marker) {
			return true
		}
	}
	return false
}

func mergePredicted(existing, more []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, e := range existing {
		seen[e] = true
	}
	out := existing
	for _, m := range more {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

