// Package convo implements the Conversation Manager described in spec
// §4.3: a per-tool-result size cap and a per-phase conversation cap, both
// designed to never leave a dangling assistant message whose tool calls
// lack matching tool responses.
package convo

import "github.com/aprbench/aprloop/internal/model"

const (
	toolResultCap    = 10000
	toolResultHead   = 5000
	toolResultTail   = 500
	conversationCap  = 30
	keepHeadMessages = 3
	keepTailMessages = 15
)

// TruncateToolResult rewrites an oversized tool response content string
// to head+marker+tail, per spec §4.3. Content at or under the cap is
// returned unchanged.
func TruncateToolResult(content string) string {
	if len(content) <= toolResultCap {
		return content
	}
	head := content[:toolResultHead]
	tail := content[len(content)-toolResultTail:]
	return head + "\n\n[... truncated ...]\n\n" + tail
}

// Prune enforces the per-phase conversation cap: when the list exceeds
// 30 messages, retain all system messages plus the first 3 non-system
// messages and the last 15 non-system messages, moving the cut point left
// whenever it would split an assistant/tool-call pair, then runs a final
// safety pass that removes any assistant-with-tool-calls not followed by
// its exact number of tool replies.
func Prune(messages []model.ConversationMessage) []model.ConversationMessage {
	if len(messages) <= conversationCap {
		return FinalSafetyPass(messages)
	}

	var systemMsgs []model.ConversationMessage
	var rest []model.ConversationMessage
	for _, m := range messages {
		if m.Role == model.RoleSystem {
			systemMsgs = append(systemMsgs, m)
		} else {
			rest = append(rest, m)
		}
	}

	if len(rest) <= keepHeadMessages+keepTailMessages {
		return FinalSafetyPass(append(append([]model.ConversationMessage{}, systemMsgs...), rest...))
	}

	head := rest[:keepHeadMessages]
	tailStart := len(rest) - keepTailMessages
	tailStart = adjustCutPoint(rest, tailStart)
	tail := rest[tailStart:]

	out := make([]model.ConversationMessage, 0, len(systemMsgs)+len(head)+len(tail))
	out = append(out, systemMsgs...)
	out = append(out, head...)
	out = append(out, tail...)
	return FinalSafetyPass(out)
}

// adjustCutPoint scans backward from the proposed tail boundary: if an
// assistant message with N tool calls would fall inside the retained
// range but is followed by fewer than N tool messages inside that range,
// the cut point moves left to before that assistant so the pair is
// dropped atomically rather than split.
func adjustCutPoint(rest []model.ConversationMessage, cut int) int {
	for cut > 0 && cut < len(rest) {
		// Walk backward from cut looking for an assistant message whose
		// tool-call replies straddle the boundary.
		moved := false
		for i := cut - 1; i >= 0 && i < len(rest); i-- {
			m := rest[i]
			if m.Role != model.RoleAssistant || len(m.ToolCalls) == 0 {
				// Once we hit a non-assistant-with-tools message above the
				// cut that isn't itself a stray tool reply, stop scanning
				// further back — only the boundary-adjacent pair matters.
				if m.Role != model.RoleTool {
					break
				}
				continue
			}
			repliesInRange := countToolReplies(rest, i+1, cut)
			if repliesInRange < len(m.ToolCalls) {
				cut = i
				moved = true
			}
			break
		}
		if !moved {
			break
		}
	}
	if cut < 0 {
		cut = 0
	}
	return cut
}

func countToolReplies(messages []model.ConversationMessage, from, to int) int {
	n := 0
	for i := from; i < to && i < len(messages); i++ {
		if messages[i].Role == model.RoleTool {
			n++
		}
	}
	return n
}

// FinalSafetyPass re-scans the retained list and removes, in reverse
// order to keep indices stable, any assistant{toolCalls} not followed by
// the exact number of tool responses, together with whatever tool
// responses it does have.
func FinalSafetyPass(messages []model.ConversationMessage) []model.ConversationMessage {
	toDrop := make(map[int]bool)
	for i, m := range messages {
		if m.Role != model.RoleAssistant || len(m.ToolCalls) == 0 {
			continue
		}
		j := i + 1
		matched := 0
		for ; j < len(messages) && messages[j].Role == model.RoleTool; j++ {
			matched++
		}
		if matched != len(m.ToolCalls) {
			toDrop[i] = true
			for k := i + 1; k < j; k++ {
				toDrop[k] = true
			}
		}
	}
	if len(toDrop) == 0 {
		return messages
	}
	out := make([]model.ConversationMessage, 0, len(messages)-len(toDrop))
	for i, m := range messages {
		if !toDrop[i] {
			out = append(out, m)
		}
	}
	return out
}
