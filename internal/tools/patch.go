package tools

import (
	"context"
	"encoding/json"

	"github.com/aprbench/aprloop/internal/adapter"
	"github.com/aprbench/aprloop/internal/agentloop"
	"github.com/aprbench/aprloop/internal/model"
	"github.com/aprbench/aprloop/internal/patch"
	"github.com/aprbench/aprloop/internal/toolruntime"
)

// PatchApplier is the subset of agentloop.PatchApplier these tool
// bindings need.
type PatchApplier interface {
	ApplyPatch(ctx context.Context, workdir, patchText string) (agentloop.ApplyResult, error)
	ApplyEdits(ctx context.Context, workdir string, edits []model.FileEdit) (agentloop.ApplyResult, error)
	GetGitDiff(ctx context.Context, workdir string) (string, error)
}

// NewPatchRegistry builds the Patch phase's tool registry: apply_patch,
// apply_edits, get_git_diff, and (when gate is non-nil) check_compile —
// used when the model chooses to invoke these as explicit tool calls
// rather than emitting diff/edits text directly (spec §4.1 step 2 vs 3).
func NewPatchRegistry(workdir string, applier PatchApplier, gate adapter.BenchmarkAdapter) *toolruntime.Registry {
	reg := toolruntime.NewRegistry(toolruntime.PhasePatch)

	reg.Register(toolruntime.ToolDef{
		Name:        "apply_patch",
		Description: "Apply a unified diff to the working directory.",
		Func: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			diffText, _ := args["diff"].(string)
			res, err := applier.ApplyPatch(ctx, workdir, diffText)
			if err != nil {
				return nil, err
			}
			return map[string]any{"ok": res.Ok, "stderr": res.Stderr, "applied_files": res.AppliedFiles}, nil
		},
	})

	reg.Register(toolruntime.ToolDef{
		Name:        "apply_edits",
		Description: "Apply a structured-edits candidate (path + line-range ops) to the working directory.",
		Func: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			raw, err := json.Marshal(args["edits"])
			if err != nil {
				return map[string]any{"ok": false, "error": "invalid edits payload"}, nil
			}
			cand, ok := patch.DetectFormat(string(raw))
			if !ok || len(cand.Candidates) != 1 {
				return map[string]any{"ok": false, "error": "invalid edits payload: expected a list of {path, ops}"}, nil
			}
			res, err := applier.ApplyEdits(ctx, workdir, cand.Candidates[0].Edits)
			if err != nil {
				return nil, err
			}
			return map[string]any{"ok": res.Ok, "stderr": res.Stderr, "applied_files": res.AppliedFiles}, nil
		},
	})

	reg.Register(toolruntime.ToolDef{
		Name:        "get_git_diff",
		Description: "Return the canonical git diff of the current working tree against HEAD.",
		Func: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			diff, err := applier.GetGitDiff(ctx, workdir)
			if err != nil {
				return nil, err
			}
			return map[string]any{"ok": true, "diff": diff}, nil
		},
	})

	if gate != nil {
		reg.Register(toolruntime.ToolDef{
			Name:        "check_compile",
			Description: "Run a fast compile check against the current workdir.",
			Func: func(ctx context.Context, args map[string]any) (map[string]any, error) {
				res, err := gate.CheckCompile(ctx, workdir)
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

	return reg
}
