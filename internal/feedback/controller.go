// Package feedback implements the Patch Feedback Controller (spec §4.4):
// a stateful policy that mutates the patch-phase prompt list with at most
// one PATCH_FAIL_SUMMARY message, classifies failure signatures, and
// decides when to stop retrying.
package feedback

import (
	"fmt"
	"strings"

	"github.com/aprbench/aprloop/internal/model"
)

const summaryPrefix = "PATCH_FAIL_SUMMARY:"

// Controller tracks the repeat-detection state across one patch phase.
type Controller struct {
	lastFailType             model.FailureType
	lastFailSig              string
	hasLast                  bool
	repeatedFailCount        int
	forceStructuredEdits     bool
	consecutiveDirectPatches int
}

// New returns a fresh controller for the start of a patch phase.
func New() *Controller { return &Controller{} }

// ForceStructuredEdits reports whether unified-diff output is currently
// rejected outright — once true, spec invariant 5 guarantees it never
// flips back within the run.
func (c *Controller) ForceStructuredEdits() bool { return c.forceStructuredEdits }

// ConsecutiveDirectPatches returns the current streak of plain-content
// (non-tool-call) patch attempts.
func (c *Controller) ConsecutiveDirectPatches() int { return c.consecutiveDirectPatches }

// IncrementDirectPatch records one more plain-content attempt.
func (c *Controller) IncrementDirectPatch() { c.consecutiveDirectPatches++ }

// ResetDirectPatches zeroes the streak — called whenever a tool call is
// issued or a PATCH_FAIL_SUMMARY is installed (spec invariant 6).
func (c *Controller) ResetDirectPatches() { c.consecutiveDirectPatches = 0 }

// SetSummary installs a new PATCH_FAIL_SUMMARY into messages, removing
// any prior one first, and updates repeat-detection state. It returns the
// mutated message slice and whether the repeat threshold for this failure
// type has now been reached.
func (c *Controller) SetSummary(messages []model.ConversationMessage, summary string, failType model.FailureType, sig model.FailureSignature) ([]model.ConversationMessage, bool) {
	if c.hasLast && c.lastFailType == failType && samePrefix(c.lastFailSig, sig.Signature) {
		c.repeatedFailCount++
	} else {
		c.repeatedFailCount = 1
		c.lastFailType = failType
		c.lastFailSig = sig.Signature
		c.hasLast = true
	}

	if failType == model.FailureFormatError && c.repeatedFailCount >= 2 {
		c.forceStructuredEdits = true
	}

	out := removeExistingSummary(messages)
	text := fmt.Sprintf("%s %s (repeat=%d)", summaryPrefix, summary, c.repeatedFailCount)
	out = append(out, model.NewUserMessage(text))

	c.ResetDirectPatches()

	return out, c.shouldStopDueToRepeat(failType)
}

// shouldStopDueToRepeat reports whether the repeat threshold has been
// reached for the given failure type: 4 for format_error, 2 otherwise.
func (c *Controller) shouldStopDueToRepeat(failType model.FailureType) bool {
	threshold := 2
	if failType == model.FailureFormatError {
		threshold = 4
	}
	return c.repeatedFailCount >= threshold
}

func samePrefix(a, b string) bool {
	const n = 200
	ca, cb := a, b
	if len(ca) > n {
		ca = ca[:n]
	}
	if len(cb) > n {
		cb = cb[:n]
	}
	return ca == cb
}

func removeExistingSummary(messages []model.ConversationMessage) []model.ConversationMessage {
	out := make([]model.ConversationMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role == model.RoleUser && strings.HasPrefix(m.Content, summaryPrefix) {
			continue
		}
		out = append(out, m)
	}
	return out
}
