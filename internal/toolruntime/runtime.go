// Package toolruntime implements the reflective dispatcher described in
// spec §4.2: it turns a batch of LLM tool calls into a batch of `tool`
// messages, memoizing read-only calls and hiding tools that belong to
// other phases.
package toolruntime

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/aprbench/aprloop/internal/model"
)

// TruncateFunc applies the Conversation Manager's per-tool-result size
// cap (spec §4.3) to a tool's serialized JSON content before it is handed
// back as a message. Injected so toolruntime doesn't import convo
// directly and the two packages stay decoupled.
type TruncateFunc func(content string) string

// Runtime is the per-instance ToolRuntime. It is created on loop entry
// and its cache cleared on entry — never a module-level singleton — so
// multiple loop instances can run concurrently in-process (spec §9,
// "Global mutable state").
type Runtime struct {
	registry  *Registry
	cache     *resultCache
	truncate  TruncateFunc
	logger    *zap.Logger
}

// New builds a ToolRuntime bound to one phase's registry.
func New(registry *Registry, truncate TruncateFunc, logger *zap.Logger) *Runtime {
	return &Runtime{
		registry: registry,
		cache:    newResultCache(),
		truncate: truncate,
		logger:   logger,
	}
}

// ClearCache empties the memoization cache — called on every loop entry
// per spec §4.1 step 1.
func (r *Runtime) ClearCache() { r.cache.clear() }

// HandleToolCalls dispatches a batch of tool calls and returns the
// corresponding tool messages, one per call, in call order.
func (r *Runtime) HandleToolCalls(ctx context.Context, calls []model.ToolCall) []model.ConversationMessage {
	out := make([]model.ConversationMessage, 0, len(calls))
	for _, call := range calls {
		out = append(out, r.handleOne(ctx, call))
	}
	return out
}

func (r *Runtime) handleOne(ctx context.Context, call model.ToolCall) model.ConversationMessage {
	args, parseErr := parseArguments(call.ArgumentsJSON)
	if parseErr != nil {
		r.logger.Warn("tool call arguments could not be parsed, using empty object",
			zap.String("tool", call.Name), zap.Error(parseErr))
	}

	def, ok := r.registry.lookup(call.Name)
	if !ok {
		result := map[string]any{
			"ok":    false,
			"error": "Tool '" + call.Name + "' is not available in the current phase.",
		}
		return r.toMessage(call, result)
	}

	cacheable := IsCacheable(call.Name)
	if cacheable {
		if cached, hit := r.cache.get(call.Name, args); hit {
			return model.NewToolMessage(call.ID, call.Name, withCachedMarker(cached, r.truncate))
		}
	}

	result, err := def.Func(ctx, args)
	if err != nil {
		result = map[string]any{"ok": false, "error": err.Error()}
	}

	resultJSON, _ := json.Marshal(result)
	raw := string(resultJSON)
	if cacheable {
		r.cache.put(call.Name, args, raw)
	}

	content := raw
	if r.truncate != nil {
		content = r.truncate(content)
	}
	return model.NewToolMessage(call.ID, call.Name, content)
}

func (r *Runtime) toMessage(call model.ToolCall, result map[string]any) model.ConversationMessage {
	b, _ := json.Marshal(result)
	content := string(b)
	if r.truncate != nil {
		content = r.truncate(content)
	}
	return model.NewToolMessage(call.ID, call.Name, content)
}

// withCachedMarker injects `_cached:true` into a previously-cached raw
// JSON result without re-executing the tool, matching the round-trip law
// in spec §8 ("equal modulo a _cached:true marker").
func withCachedMarker(raw string, truncate TruncateFunc) string {
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		// Not a JSON object (shouldn't happen since we only cache our own
		// marshaled results) — fall back to returning it verbatim.
		if truncate != nil {
			return truncate(raw)
		}
		return raw
	}
	m["_cached"] = true
	b, _ := json.Marshal(m)
	content := string(b)
	if truncate != nil {
		content = truncate(content)
	}
	return content
}

// parseArguments parses a tool call's raw JSON arguments, attempting one
// repair pass on failure: trim, cut to the last complete "}", retry; on
// second failure substitute an empty object (spec §4.2).
func parseArguments(raw string) (map[string]any, error) {
	var args map[string]any
	if raw == "" {
		return map[string]any{}, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err == nil {
		return args, nil
	}

	trimmed := strings.TrimSpace(raw)
	if last := strings.LastIndex(trimmed, "}"); last > 0 {
		repaired := trimmed[:last+1]
		if err := json.Unmarshal([]byte(repaired), &args); err == nil {
			return args, nil
		}
	}
	return map[string]any{}, errArgParseFailed(raw)
}
