package agentloop

import (
	"context"
	"fmt"
	"strings"

	"github.com/aprbench/aprloop/internal/convo"
	"github.com/aprbench/aprloop/internal/feedback"
	"github.com/aprbench/aprloop/internal/model"
	"github.com/aprbench/aprloop/internal/patch"
)

const (
	compileSummaryMaxCandidates = 2
	compileSummaryCharsEach     = 500
	compileSummaryPrefixChars   = 800
)

// runPatchPhase implements spec §4.1's patch loop for one iteration: it
// clones the conversation, injects PATCH_CONTEXT and the patch prompt,
// then repeats LLM-call -> {tool dispatch | format detection -> apply ->
// [compile?] -> [green?] -> validate} until either a terminal Result is
// produced or this iteration's budget is exhausted (in which case it
// returns (nil, false) so Run moves on to the next iteration).
func (o *Orchestrator) runPatchPhase(ctx context.Context, rs *runState, iteration int, loc LocalizeResult) (*Result, bool) {
	patchConv := rs.conv.Clone()
	if snippet := o.derivePatchContext(ctx, rs, loc); snippet != "" {
		patchConv.Append(model.NewUserMessage("PATCH_CONTEXT:\n" + snippet))
	}
	patchConv.Append(model.NewUserMessage(rs.prompts.Patch))

	fc := feedback.New()
	patchPhaseAPICalls := 0
	toolCallsUsed := 0

	// toolBudgetExhausted reports whether the patch phase has spent its
	// soft cap on tool calls — once it has, a failure that would
	// otherwise ask the model to regenerate instead ends the phase, just
	// as running out of any other retry budget does (spec §3's
	// maxToolCallsPerPatch).
	toolBudgetExhausted := func() bool {
		return toolCallsUsed >= rs.cfg.Ablation.MaxToolCallsPerPatch
	}

	for {
		if rs.tracker.TimedOut() {
			res := o.timeoutResult(rs, iteration-1)
			return res, true
		}
		if patchPhaseAPICalls >= rs.cfg.Ablation.MaxPatchPhaseAPICalls {
			return nil, false
		}
		if fc.ConsecutiveDirectPatches() >= rs.cfg.Ablation.MaxConsecutiveDirectPatches {
			return nil, false
		}

		resp, err := o.callLLM(ctx, rs, patchConv, model.PhasePatch, ToolChoiceAuto)
		if err != nil {
			if isTimeout(err) {
				return o.timeoutResult(rs, iteration-1), true
			}
			return o.fatalResult(rs, err), true
		}
		patchPhaseAPICalls++

		if len(resp.ToolCalls) > 0 {
			fc.ResetDirectPatches()
			toolCallsUsed += len(resp.ToolCalls)
			for _, tc := range resp.ToolCalls {
				rs.tracker.Metrics.RecordToolCall(model.PhasePatch, tc.Name)
			}
			replies := rs.patchRuntime.HandleToolCalls(ctx, resp.ToolCalls)
			assistant := model.NewAssistantToolCallMessage(resp.Content, resp.ToolCalls)
			if err := patchConv.AppendAssistantWithTools(assistant, replies); err != nil {
				return o.fatalResult(rs, err), true
			}
			patchConv.Replace(convo.Prune(patchConv.Messages()))
			continue
		}

		rs.tracker.Metrics.PatchAttempts++
		fc.IncrementDirectPatch()

		cleaned := patch.CleanDiffText(resp.Content)
		candidate, isStructured := patch.DetectFormat(cleaned)

		if fc.ForceStructuredEdits() && !isStructured {
			msgs, stop := fc.SetSummary(patchConv.Messages(), feedback.FormatErrorSummary("expected_structured_edits_json", true), model.FailureFormatError, model.FailureSignature{Type: model.FailureFormatError, Signature: "expected_structured_edits_json"})
			patchConv.Replace(msgs)
			if stop || toolBudgetExhausted() {
				return nil, false
			}
			continue
		}

		if isStructured {
			res, applied, patchText, stopLoop := o.tryStructuredCandidates(ctx, rs, patchConv, fc, candidate.Candidates)
			if res != nil {
				return res, true
			}
			if !applied {
				if stopLoop || toolBudgetExhausted() {
					return nil, false
				}
				continue
			}
			rs.lastPatchText = patchText
			result, done := o.afterApply(ctx, rs, fc, patchConv, patchText, iteration)
			if done {
				return result, true
			}
			continue
		}

		// Unified diff path.
		if verr := patch.ValidateUnifiedDiff(cleaned); verr != nil {
			msgs, stop := fc.SetSummary(patchConv.Messages(), feedback.FormatErrorSummary(verr.Error(), false), model.FailureFormatError, model.FailureSignature{Type: model.FailureFormatError, Signature: verr.Error()})
			patchConv.Replace(msgs)
			if stop || toolBudgetExhausted() {
				return nil, false
			}
			continue
		}

		diffText := patch.EnsureTrailingNewline(cleaned)
		if !o.applier.CheckoutExists(ctx, rs.cfg.Workdir) {
			if _, err := o.adapter.Checkout(ctx, rs.cfg.PID, rs.cfg.BID, rs.cfg.Workdir); err != nil {
				return &Result{Ok: false, Error: "workdir permanently lost after re-checkout attempt: " + err.Error(), HarnessOk: true, Metrics: rs.tracker.Metrics}, true
			}
		}

		rs.tracker.Metrics.ApplyAttemptCount++
		applyRes, applyErr := o.applier.ApplyPatch(ctx, rs.cfg.Workdir, diffText)
		if applyErr != nil || !applyRes.Ok {
			rs.tracker.Metrics.GitApplyFailures++
			failType := model.FailureApplyError
			if isParseErrorStderr(applyRes.Stderr) {
				failType = model.FailureFormatError
			}
			summary := feedback.ApplyErrorSummary(applyRes.Stderr)
			msgs, stop := fc.SetSummary(patchConv.Messages(), summary, failType, model.FailureSignature{Type: failType, Signature: applyRes.Stderr})
			patchConv.Replace(msgs)
			if stop || rs.tracker.Metrics.GitApplyFailures >= rs.cfg.Ablation.MaxGitApplyFailures {
				return nil, false
			}
			continue
		}
		rs.tracker.Metrics.ApplySuccessCount++
		rs.tracker.Metrics.GitApplyFailures = 0

		if rs.cfg.Ablation.UseCompileGate {
			compileRes, cerr := o.adapter.CheckCompile(ctx, rs.cfg.Workdir)
			rs.tracker.Metrics.CompileAttemptCount++
			if cerr != nil || !compileRes.Ok {
				_ = o.applier.ResetHard(ctx, rs.cfg.Workdir)
				rs.tracker.Metrics.CompileFailures++
				summaryText := compileRes.ErrorSummary
				if cerr != nil {
					summaryText = cerr.Error()
				}
				msgs, stop := fc.SetSummary(patchConv.Messages(), feedback.CompileErrorSummary(summaryText), model.FailureCompileError, model.FailureSignature{Type: model.FailureCompileError, Signature: summaryText})
				patchConv.Replace(msgs)
				if stop || rs.tracker.Metrics.CompileFailures >= rs.cfg.Ablation.MaxCompileFailures {
					return nil, false
				}
				continue
			}
			rs.tracker.Metrics.CompileSuccessCount++
		}

		rs.lastPatchText = diffText
		result, done := o.afterApply(ctx, rs, fc, patchConv, diffText, iteration)
		if done {
			return result, true
		}
	}
}

// tryStructuredCandidates implements spec §4.1 step 7: try each candidate
// in order, applying edits then (if the compile gate is active)
// compiling; the first candidate that applies and (when required)
// compiles wins. If all fail and any compile errors were collected,
// inject one combined summary (not one per candidate).
func (o *Orchestrator) tryStructuredCandidates(ctx context.Context, rs *runState, patchConv *model.Conversation, fc *feedback.Controller, candidates []model.EditCandidate) (result *Result, applied bool, patchText string, stopLoop bool) {
	var compileErrors []string

	for _, cand := range candidates {
		applyRes, err := o.applier.ApplyEdits(ctx, rs.cfg.Workdir, cand.Edits)
		rs.tracker.Metrics.ApplyAttemptCount++
		if err != nil || !applyRes.Ok || len(applyRes.AppliedFiles) == 0 {
			continue
		}
		rs.tracker.Metrics.ApplySuccessCount++

		diff, err := o.applier.GetGitDiff(ctx, rs.cfg.Workdir)
		if err != nil || diff == "" {
			continue
		}

		if rs.cfg.Ablation.UseCompileGate {
			compileRes, cerr := o.adapter.CheckCompile(ctx, rs.cfg.Workdir)
			rs.tracker.Metrics.CompileAttemptCount++
			if cerr != nil || !compileRes.Ok {
				_ = o.applier.ResetHard(ctx, rs.cfg.Workdir)
				summaryText := compileRes.ErrorSummary
				if cerr != nil {
					summaryText = cerr.Error()
				}
				if len(compileErrors) < compileSummaryMaxCandidates {
					compileErrors = append(compileErrors, summaryText)
				}
				rs.tracker.Metrics.CompileFailures++
				continue
			}
			rs.tracker.Metrics.CompileSuccessCount++
		}

		return nil, true, diff, false
	}

	if len(compileErrors) > 0 {
		combined := ""
		for i, e := range compileErrors {
			if len(e) > compileSummaryCharsEach {
				e = e[:compileSummaryCharsEach]
			}
			combined += fmt.Sprintf("candidate %d: %s\n", i+1, e)
		}
		if len(combined) > compileSummaryPrefixChars {
			combined = combined[:compileSummaryPrefixChars]
		}
		msgs, stop := fc.SetSummary(patchConv.Messages(), feedback.CompileErrorSummary(combined), model.FailureCompileError, model.FailureSignature{Type: model.FailureCompileError, Signature: combined})
		patchConv.Replace(msgs)
		if stop || rs.tracker.Metrics.CompileFailures >= rs.cfg.Ablation.MaxCompileFailures {
			return nil, false, "", true
		}
		return nil, false, "", false
	}

	msgs, stop := fc.SetSummary(patchConv.Messages(), "all candidates failed to apply", model.FailureCandidateError, model.FailureSignature{Type: model.FailureCandidateError, Signature: "apply_failed"})
	patchConv.Replace(msgs)
	return nil, false, "", stop
}

// afterApply implements spec §4.1 steps 10-13, shared by both the
// structured-edits and unified-diff application paths: canonical diff
// normalization, optional GREEN verification, and full validation.
// Returns (result, true) when the run should terminate (success or a
// fatal condition), or (nil, false) to continue the patch loop.
func (o *Orchestrator) afterApply(ctx context.Context, rs *runState, fc *feedback.Controller, patchConv *model.Conversation, patchText string, iteration int) (*Result, bool) {
	if rs.cfg.Ablation.UseCanonicalDiff {
		if diff, err := o.applier.GetGitDiff(ctx, rs.cfg.Workdir); err == nil && diff != "" {
			patchText = diff
			rs.lastPatchText = patchText
		}
	}

	if rs.cfg.Ablation.VerifyGreen {
		green, err := o.adapter.RunOneTest(ctx, rs.cfg.Workdir, redTestName(rs), greenLogPath(rs))
		if rs.tracker.TimedOut() {
			return o.timeoutResult(rs, iteration-1), true
		}
		if err != nil || green.RC != 0 {
			_ = o.applier.ResetHard(ctx, rs.cfg.Workdir)
			detail := "unknown failure"
			if err != nil {
				detail = err.Error()
			} else {
				detail = green.Stderr
			}
			msgs, stop := fc.SetSummary(patchConv.Messages(), feedback.GreenTestFailedSummary(detail), model.FailureGreenFailed, model.FailureSignature{Type: model.FailureGreenFailed, Signature: detail})
			patchConv.Replace(msgs)
			if stop {
				return nil, false
			}
			return nil, false
		}
		rs.tracker.Metrics.TDDGateGreenVerified = true
	}

	validation, err := o.adapter.Validate(ctx, rs.cfg.PID, rs.cfg.BID, rs.cfg.Workdir, rs.cfg.MetaDir, rs.cfg.FullLog, rs.cfg.TrigLog)
	if rs.tracker.TimedOut() {
		return o.timeoutResult(rs, iteration-1), true
	}
	if err != nil {
		rs.tracker.Metrics.ValidationFailures++
		rs.tracker.FinalizeRuntime()
		return &Result{Ok: false, Error: "validation execution failed: " + err.Error(), Metrics: rs.tracker.Metrics, HarnessOk: true}, true
	}

	if validation.Passed {
		computeHitAtK(rs, modifiedFilesFromDiff(patchText))
		rs.tracker.FinalizeRuntime()
		return &Result{
			Ok: true, Iterations: iteration, Patch: patchText,
			Metrics: rs.tracker.Metrics, HarnessOk: true, Validation: &validation,
		}, true
	}

	rs.tracker.Metrics.ValidationFailures++
	_ = o.applier.ResetHard(ctx, rs.cfg.Workdir)
	summary := feedback.ValidationErrorSummary(validation.RC, validation.Stdout, validation.Stderr, validation.TestFull, validation.TestTrigger)
	msgs, stop := fc.SetSummary(patchConv.Messages(), summary, model.FailureValidationFailed, model.FailureSignature{Type: model.FailureValidationFailed, Signature: summary})
	patchConv.Replace(msgs)
	if stop {
		return nil, false
	}
	return nil, false
}

func greenLogPath(rs *runState) string {
	return rs.cfg.MetaDir + "/green.log"
}

func isParseErrorStderr(stderr string) bool {
	for _, marker := range []string{"corrupt patch", "invalid patch", "patch fragment without header", "unrecognized input", "malformed patch"} {
		if containsFold(stderr, marker) {
			return true
		}
	}
	return false
}

func isTimeout(err error) bool {
	return err != nil && containsFold(err.Error(), "timeout: exceeded")
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
