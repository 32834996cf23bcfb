package model

import "testing"

func TestAppendAssistantWithTools_HappyPath(t *testing.T) {
	c := NewConversation()
	assistant := NewAssistantToolCallMessage("", []ToolCall{{ID: "call-1", Name: "read_span"}})
	replies := []ConversationMessage{NewToolMessage("call-1", "read_span", "file contents")}

	if err := c.AppendAssistantWithTools(assistant, replies); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 messages appended, got %d", c.Len())
	}
}

func TestAppendAssistantWithTools_RejectsCountMismatch(t *testing.T) {
	c := NewConversation()
	assistant := NewAssistantToolCallMessage("", []ToolCall{{ID: "call-1"}, {ID: "call-2"}})
	replies := []ConversationMessage{NewToolMessage("call-1", "t", "x")}

	if err := c.AppendAssistantWithTools(assistant, replies); err == nil {
		t.Fatal("expected an error when reply count does not match tool-call count")
	}
	if c.Len() != 0 {
		t.Fatal("a rejected append must not mutate the conversation")
	}
}

func TestAppendAssistantWithTools_RejectsOutOfOrderReplies(t *testing.T) {
	c := NewConversation()
	assistant := NewAssistantToolCallMessage("", []ToolCall{{ID: "call-1"}, {ID: "call-2"}})
	replies := []ConversationMessage{
		NewToolMessage("call-2", "t", "x"),
		NewToolMessage("call-1", "t", "y"),
	}

	if err := c.AppendAssistantWithTools(assistant, replies); err == nil {
		t.Fatal("expected an error when reply call IDs are out of order relative to tool calls")
	}
	if c.Len() != 0 {
		t.Fatal("a rejected append must not mutate the conversation")
	}
}

func TestConversation_CloneIsIndependent(t *testing.T) {
	c := NewConversation()
	c.Append(NewUserMessage("one"))

	clone := c.Clone()
	clone.Append(NewUserMessage("two"))

	if c.Len() != 1 {
		t.Fatalf("mutating a clone must not affect the original; original has %d messages", c.Len())
	}
	if clone.Len() != 2 {
		t.Fatalf("expected the clone to have 2 messages after its own append, got %d", clone.Len())
	}
}

func TestConversation_Replace(t *testing.T) {
	c := NewConversation()
	c.Append(NewUserMessage("one"))
	c.Append(NewUserMessage("two"))
	c.Append(NewUserMessage("three"))

	c.Replace([]ConversationMessage{NewUserMessage("only")})

	if c.Len() != 1 || c.Messages()[0].Content != "only" {
		t.Fatalf("expected Replace to wholesale swap the message list, got %+v", c.Messages())
	}
}
