package model

// Role is the tagged-variant discriminant for ConversationMessage.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is an LLM-emitted request to invoke a named tool. ArgumentsJSON
// is the raw, unparsed JSON object text the model produced — ToolRuntime
// is responsible for parsing (and repairing) it.
type ToolCall struct {
	ID            string
	Name          string
	ArgumentsJSON string
}

// ConversationMessage is a tagged variant with four shapes, mirroring the
// spec's ConversationMessage exactly:
//
//	system{content}
//	user{content}
//	assistant{content, toolCalls?}
//	tool{callId, name, content}
//
// Only the fields relevant to Role are meaningful; constructors below are
// the only supported way to build one so an assistant-with-tool-calls
// message is never created without being paired, at the call site, with
// its replies (see AppendAssistantWithTools).
type ConversationMessage struct {
	Role      Role
	Content   string
	ToolCalls []ToolCall // only set when Role == RoleAssistant
	ToolCallID string    // only set when Role == RoleTool
	ToolName   string    // only set when Role == RoleTool
}

func NewSystemMessage(content string) ConversationMessage {
	return ConversationMessage{Role: RoleSystem, Content: content}
}

func NewUserMessage(content string) ConversationMessage {
	return ConversationMessage{Role: RoleUser, Content: content}
}

func NewAssistantMessage(content string) ConversationMessage {
	return ConversationMessage{Role: RoleAssistant, Content: content}
}

func NewAssistantToolCallMessage(content string, calls []ToolCall) ConversationMessage {
	return ConversationMessage{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

func NewToolMessage(callID, name, content string) ConversationMessage {
	return ConversationMessage{Role: RoleTool, ToolCallID: callID, ToolName: name, Content: content}
}

// Conversation is an owned, append-only log of messages. Cloning is a
// slice copy, which is cheap and avoids the aliasing hazard the original
// Python implementation has when it passes `messages` by reference and
// expects callers to `.copy()` it before mutating — here Clone always
// returns an independent backing array.
type Conversation struct {
	messages []ConversationMessage
}

func NewConversation() *Conversation {
	return &Conversation{messages: make([]ConversationMessage, 0, 16)}
}

// Append adds a single message that must not be an assistant message
// carrying unresolved tool calls — use AppendAssistantWithTools for that
// case so the pairing is atomic.
func (c *Conversation) Append(m ConversationMessage) {
	c.messages = append(c.messages, m)
}

// AppendAssistantWithTools appends an assistant message together with its
// tool-call replies as a single atomic operation, enforcing the
// tool-sequence-completeness invariant at construction time: the number
// of replies must equal the number of tool calls, one per call, in call
// order.
func (c *Conversation) AppendAssistantWithTools(assistant ConversationMessage, replies []ConversationMessage) error {
	if len(assistant.ToolCalls) != len(replies) {
		return errToolSequenceMismatch(len(assistant.ToolCalls), len(replies))
	}
	for i, call := range assistant.ToolCalls {
		if replies[i].Role != RoleTool || replies[i].ToolCallID != call.ID {
			return errToolSequenceOrder(call.ID, replies[i].ToolCallID)
		}
	}
	c.messages = append(c.messages, assistant)
	c.messages = append(c.messages, replies...)
	return nil
}

// Messages returns the current ordered slice. Callers must not mutate it;
// use Clone to obtain an independent copy for further mutation.
func (c *Conversation) Messages() []ConversationMessage {
	return c.messages
}

// Len returns the number of messages currently retained.
func (c *Conversation) Len() int {
	return len(c.messages)
}

// Clone returns a conversation with an independent backing array, cheap
// to further mutate without affecting the original — used by the patch
// phase, which clones the localization transcript before diverging.
func (c *Conversation) Clone() *Conversation {
	cp := make([]ConversationMessage, len(c.messages))
	copy(cp, c.messages)
	return &Conversation{messages: cp}
}

// Replace swaps the retained message list wholesale — used by the
// truncation pass (internal/convo), which computes a new, shorter list
// from scratch.
func (c *Conversation) Replace(messages []ConversationMessage) {
	c.messages = messages
}
