package agentloop

import (
	"context"

	"github.com/aprbench/aprloop/internal/model"
	"github.com/aprbench/aprloop/internal/toolruntime"
)

// ToolChoice mirrors the two modes the orchestrator needs from an LLM
// client: "auto" lets the model decide whether to call a tool, "none"
// forces a final content-only reply (spec §4.1, localize budget
// exhaustion).
type ToolChoice string

const (
	ToolChoiceAuto ToolChoice = "auto"
	ToolChoiceNone ToolChoice = "none"
)

// LLMRequest is what the orchestrator hands to the model client for one
// turn: the full message history, the phase's tool definitions, and the
// tool-choice mode.
type LLMRequest struct {
	Messages   []model.ConversationMessage
	Tools      []toolruntime.ToolDef
	ToolChoice ToolChoice
	Model      string
}

// LLMResponse is one model turn: either plain content, or content plus
// tool calls (never both meaningfully populated at once in practice, but
// the spec allows an assistant message to carry both).
type LLMResponse struct {
	Content     string
	ToolCalls   []model.ToolCall
	TotalTokens int
}

// Client is the minimal model-client contract the orchestrator needs.
// The model-client factory itself is out of scope (spec §1) — this is
// only the seam the loop calls through, with a 180s client-side timeout
// enforced by the concrete implementation (spec §5).
type Client interface {
	Generate(ctx context.Context, req LLMRequest) (LLMResponse, error)
}
