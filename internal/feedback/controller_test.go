package feedback

import (
	"strings"
	"testing"

	"github.com/aprbench/aprloop/internal/model"
)

func TestSetSummary_InstallsSingleSummaryMessage(t *testing.T) {
	c := New()
	msgs := []model.ConversationMessage{model.NewUserMessage("task description")}

	msgs, _ = c.SetSummary(msgs, "apply failed", model.FailureApplyError, model.FailureSignature{Type: model.FailureApplyError, Signature: "sig1"})

	count := 0
	for _, m := range msgs {
		if m.Role == model.RoleUser && strings.HasPrefix(m.Content, summaryPrefix) {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one summary message, got %d", count)
	}
}

func TestSetSummary_ReplacesPriorSummaryRatherThanAppending(t *testing.T) {
	c := New()
	msgs := []model.ConversationMessage{model.NewUserMessage("task")}

	msgs, _ = c.SetSummary(msgs, "first failure", model.FailureApplyError, model.FailureSignature{Type: model.FailureApplyError, Signature: "sig1"})
	msgs, _ = c.SetSummary(msgs, "second failure", model.FailureCompileError, model.FailureSignature{Type: model.FailureCompileError, Signature: "sig2"})

	count := 0
	for _, m := range msgs {
		if m.Role == model.RoleUser && strings.HasPrefix(m.Content, summaryPrefix) {
			count++
			if !strings.Contains(m.Content, "second failure") {
				t.Errorf("expected the surviving summary to be the latest one, got %q", m.Content)
			}
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one summary message after a second SetSummary, got %d", count)
	}
}

func TestSetSummary_ResetsDirectPatchStreak(t *testing.T) {
	c := New()
	c.IncrementDirectPatch()
	c.IncrementDirectPatch()
	if c.ConsecutiveDirectPatches() != 2 {
		t.Fatalf("expected streak of 2 before SetSummary, got %d", c.ConsecutiveDirectPatches())
	}

	c.SetSummary(nil, "failed", model.FailureApplyError, model.FailureSignature{Type: model.FailureApplyError, Signature: "sig"})

	if c.ConsecutiveDirectPatches() != 0 {
		t.Fatalf("expected SetSummary to reset the direct-patch streak, got %d", c.ConsecutiveDirectPatches())
	}
}

func TestSetSummary_RepeatedFormatErrorForcesStructuredEdits(t *testing.T) {
	c := New()
	sig := model.FailureSignature{Type: model.FailureFormatError, Signature: "same signature text"}

	c.SetSummary(nil, "bad format", model.FailureFormatError, sig)
	if c.ForceStructuredEdits() {
		t.Fatal("should not force structured edits after only one format error")
	}

	c.SetSummary(nil, "bad format again", model.FailureFormatError, sig)
	if !c.ForceStructuredEdits() {
		t.Fatal("expected structured edits to be forced after two repeated format errors (invariant 5)")
	}
}

func TestSetSummary_ForceStructuredEditsNeverFlipsBack(t *testing.T) {
	c := New()
	sig := model.FailureSignature{Type: model.FailureFormatError, Signature: "same signature text"}
	c.SetSummary(nil, "bad format", model.FailureFormatError, sig)
	c.SetSummary(nil, "bad format again", model.FailureFormatError, sig)
	if !c.ForceStructuredEdits() {
		t.Fatal("expected forced structured edits to be set")
	}

	// A subsequent, unrelated failure must not unset it.
	c.SetSummary(nil, "a different failure", model.FailureApplyError, model.FailureSignature{Type: model.FailureApplyError, Signature: "other"})
	if !c.ForceStructuredEdits() {
		t.Fatal("ForceStructuredEdits must never flip back to false once set (invariant 5)")
	}
}

func TestSetSummary_StopsAfterRepeatThreshold(t *testing.T) {
	c := New()
	sig := model.FailureSignature{Type: model.FailureApplyError, Signature: "identical"}

	_, stop := c.SetSummary(nil, "first", model.FailureApplyError, sig)
	if stop {
		t.Fatal("should not signal stop after only one occurrence")
	}
	_, stop = c.SetSummary(nil, "second", model.FailureApplyError, sig)
	if !stop {
		t.Fatal("expected the non-format-error repeat threshold of 2 to trigger stop")
	}
}

func TestSetSummary_FormatErrorHasHigherRepeatThreshold(t *testing.T) {
	c := New()
	sig := model.FailureSignature{Type: model.FailureFormatError, Signature: "identical"}

	var stop bool
	for i := 0; i < 3; i++ {
		_, stop = c.SetSummary(nil, "format problem", model.FailureFormatError, sig)
		if stop {
			t.Fatalf("format_error should tolerate more repeats before stopping (iteration %d)", i+1)
		}
	}
	_, stop = c.SetSummary(nil, "format problem", model.FailureFormatError, sig)
	if !stop {
		t.Fatal("expected the format_error repeat threshold of 4 to trigger stop on the 4th repeat")
	}
}

func TestSetSummary_DifferentFailureResetsRepeatCount(t *testing.T) {
	c := New()
	sigA := model.FailureSignature{Type: model.FailureApplyError, Signature: "a"}
	sigB := model.FailureSignature{Type: model.FailureCompileError, Signature: "b"}

	_, stop := c.SetSummary(nil, "apply failed", model.FailureApplyError, sigA)
	if stop {
		t.Fatal("unexpected stop on first occurrence")
	}
	// A different failure type must not accumulate onto the prior streak.
	_, stop = c.SetSummary(nil, "compile failed", model.FailureCompileError, sigB)
	if stop {
		t.Fatal("a distinct failure type/signature must restart the repeat count, not trigger stop immediately")
	}
}
