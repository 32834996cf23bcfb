package model

import "fmt"

func errToolSequenceMismatch(wantCalls, gotReplies int) error {
	return fmt.Errorf("tool-sequence completeness violated: assistant carries %d tool calls but %d replies were supplied", wantCalls, gotReplies)
}

func errToolSequenceOrder(wantCallID, gotCallID string) error {
	return fmt.Errorf("tool-sequence completeness violated: expected reply for call %q, got reply for %q", wantCallID, gotCallID)
}
