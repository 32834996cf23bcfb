// Package localpatch implements agentloop.PatchApplier: the local,
// workdir-mutating half of patch application (applying a unified diff or
// structured edits, taking a canonical git diff, and resetting back to
// HEAD), grounded on the teacher's git tool shape but scoped to what the
// patch loop needs rather than a general-purpose git command surface.
package localpatch

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/aprbench/aprloop/internal/agentloop"
	"github.com/aprbench/aprloop/internal/model"
	"github.com/aprbench/aprloop/internal/patch"
	"github.com/aprbench/aprloop/internal/sandbox"
)

// Applier shells out to git within the sandbox for every operation the
// patch loop needs against a benchmark instance's working tree.
type Applier struct {
	sandbox *sandbox.ProcessSandbox
	logger  *zap.Logger
}

func New(sb *sandbox.ProcessSandbox, logger *zap.Logger) *Applier {
	return &Applier{sandbox: sb, logger: logger}
}

// ApplyPatch writes patchText to a temp file and runs `git apply` against
// it; a nonzero exit is reported as a non-ok result carrying stderr
// rather than a Go error, so the caller can feed it back to the model.
func (a *Applier) ApplyPatch(ctx context.Context, workdir, patchText string) (agentloop.ApplyResult, error) {
	tmp, err := os.CreateTemp("", "aprloop-patch-*.diff")
	if err != nil {
		return agentloop.ApplyResult{}, fmt.Errorf("create temp patch file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(patchText); err != nil {
		tmp.Close()
		return agentloop.ApplyResult{}, fmt.Errorf("write temp patch file: %w", err)
	}
	tmp.Close()

	res, err := a.sandbox.ExecuteShell(ctx, workdir, fmt.Sprintf("git apply --whitespace=nowarn %q", tmp.Name()))
	if err != nil && res == nil {
		return agentloop.ApplyResult{}, err
	}
	if res.ExitCode != 0 {
		return agentloop.ApplyResult{Ok: false, Stderr: res.Stderr}, nil
	}

	files, _ := a.sandbox.ExecuteShell(ctx, workdir, "git diff --name-only HEAD")
	return agentloop.ApplyResult{Ok: true, AppliedFiles: splitLines(files.Stdout)}, nil
}

// ApplyEdits applies a structured-edits candidate file by file: read the
// current content, apply the ops via patch.ApplyFileEdits, write back.
// The first failing file aborts the whole candidate so the caller can
// try the next one.
func (a *Applier) ApplyEdits(ctx context.Context, workdir string, edits []model.FileEdit) (agentloop.ApplyResult, error) {
	var applied []string
	for _, fe := range edits {
		full := fe.Path
		if !strings.HasPrefix(full, "/") {
			full = workdir + "/" + full
		}
		data, err := os.ReadFile(full)
		if err != nil {
			return agentloop.ApplyResult{Ok: false, Stderr: err.Error()}, nil
		}
		updated, err := patch.ApplyFileEdits(string(data), fe.Ops)
		if err != nil {
			return agentloop.ApplyResult{Ok: false, Stderr: fmt.Sprintf("%s: %v", fe.Path, err)}, nil
		}
		if err := os.WriteFile(full, []byte(updated), 0644); err != nil {
			return agentloop.ApplyResult{Ok: false, Stderr: err.Error()}, nil
		}
		applied = append(applied, fe.Path)
	}
	return agentloop.ApplyResult{Ok: true, AppliedFiles: applied}, nil
}

// GetGitDiff returns the canonical `git diff HEAD` for the workdir.
func (a *Applier) GetGitDiff(ctx context.Context, workdir string) (string, error) {
	res, err := a.sandbox.ExecuteShell(ctx, workdir, "git diff HEAD")
	if err != nil && res == nil {
		return "", err
	}
	return res.Stdout, nil
}

// ResetHard discards all working-tree changes.
func (a *Applier) ResetHard(ctx context.Context, workdir string) error {
	res, err := a.sandbox.ExecuteShell(ctx, workdir, "git reset --hard HEAD && git clean -fd")
	if err != nil && res == nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("git reset --hard failed: %s", res.Stderr)
	}
	return nil
}

// CheckoutExists reports whether workdir is still a usable git working
// tree — used to detect a checkout that vanished mid-run (e.g. a
// container restart) before deciding to re-checkout.
func (a *Applier) CheckoutExists(ctx context.Context, workdir string) bool {
	info, err := os.Stat(workdir + "/.git")
	return err == nil && info != nil
}

func splitLines(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
