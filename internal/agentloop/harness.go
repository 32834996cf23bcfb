package agentloop

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aprbench/aprloop/internal/model"
	"github.com/aprbench/aprloop/internal/toolruntime"
)

const (
	harnessTruncHead = 4000
	harnessTruncTail = 2000
	harnessTruncCap  = 8000
)

// runHarness invokes adapter.Harness once. A failure here is the only
// unrecoverable external failure the loop accepts immediately (spec
// §4.1 step 4).
func (o *Orchestrator) runHarness(ctx context.Context, rs *runState) (model.HarnessInfo, error) {
	return o.adapter.Harness(ctx, rs.cfg.PID, rs.cfg.BID, rs.cfg.Workdir, rs.cfg.MetaDir, rs.cfg.FullLog, rs.cfg.TrigLog, rs.cfg.IndexDir)
}

// rebindCheckCompile re-registers check_compile in the patch registry
// bound to the harness-reported workdir, so the tool resolves the
// correct path even if it differs from the configured one (spec §4.1
// step 6).
func (o *Orchestrator) rebindCheckCompile(rs *runState, workdir string) {
	o.patchTools.Register(toolruntime.ToolDef{
		Name:        "check_compile",
		Description: "Run a fast compile check against the current workdir.",
		Func: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			res, err := o.adapter.CheckCompile(ctx, workdir)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"ok": res.Ok, "rc": res.RC, "stdout": res.Stdout, "stderr": res.Stderr,
				"error_summary": res.ErrorSummary, "skipped": res.Skipped, "reason": res.Reason,
			}, nil
		},
	})
}

// runRedGate implements the optional TDD gate (spec §4.1): compile must
// succeed, verify_red must actually run, rc==0 or rc in {2,4} are both
// fatal, and only a genuine non-zero/non-{2,4} rc marks the gate
// verified.
func (o *Orchestrator) runRedGate(ctx context.Context, rs *runState, harness model.HarnessInfo) *Result {
	compile, err := o.adapter.CheckCompile(ctx, harness.Workdir)
	if err != nil || !compile.Ok {
		msg := "RED gate: compile failed"
		if err != nil {
			msg = "RED gate: compile failed: " + err.Error()
		}
		return &Result{Ok: false, Error: msg, HarnessOk: true, CompileResult: &compile}
	}

	red, err := o.adapter.RunOneTest(ctx, harness.Workdir, redTestName(rs), redLogPath(rs))
	if err != nil {
		return &Result{Ok: false, Error: "RED test execution failed: " + err.Error(), HarnessOk: true}
	}
	if red.InfrastructureFailed() {
		return &Result{Ok: false, Error: fmt.Sprintf("RED test execution failed: ran=%v rc=%d error=%s", red.Ran, red.RC, red.Error), HarnessOk: true, TestSuiteVerification: &red}
	}
	if red.RC == 0 {
		return &Result{Ok: false, Error: "RED test already passes before patching — cannot reproduce the bug", HarnessOk: true, TestSuiteVerification: &red}
	}
	if red.RC == 2 || red.RC == 4 {
		return &Result{Ok: false, Error: "RED test collection empty or configuration error", HarnessOk: true, TestSuiteVerification: &red}
	}

	rs.tracker.Metrics.TDDGateRedVerified = true
	return nil
}

func redTestName(rs *runState) string {
	return fmt.Sprintf("%s-%db-trigger", rs.cfg.PID, rs.cfg.BID)
}

func redLogPath(rs *runState) string {
	return filepath.Join(rs.cfg.MetaDir, "red.log")
}

// injectHarness appends the harness-context user message: the harness
// JSON (truncated when oversized), a hint to read the focused red.log
// rather than the large test.full.log, and the retrieval-index notice.
func (o *Orchestrator) injectHarness(rs *runState, harness model.HarnessInfo) {
	body := harnessSummaryJSON(harness)
	if len(body) > harnessTruncCap {
		body = body[:harnessTruncHead] + "\n\n[... truncated ...]\n\n" + body[len(body)-harnessTruncTail:]
	}

	notice := "RETRIEVAL_INDEX_UNAVAILABLE"
	if rs.cfg.Ablation.IndexRetrieval && harness.IndexPath != "" {
		if _, err := os.Stat(harness.IndexPath); err == nil {
			notice = "RETRIEVAL_INDEX: " + harness.IndexPath
		}
	}

	content := fmt.Sprintf(
		"Harness context:\n%s\n\nRead the focused red.log for the failure trace; do not read the large test.full.log unless red.log is insufficient.\n%s",
		body, notice,
	)
	rs.conv.Append(model.NewUserMessage(content))
}

func harnessSummaryJSON(h model.HarnessInfo) string {
	return fmt.Sprintf(`{"workdir":%q,"ok":%v,"index_path":%q}`, h.Workdir, h.Ok, h.IndexPath)
}
