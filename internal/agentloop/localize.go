package agentloop

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/aprbench/aprloop/internal/budget"
	"github.com/aprbench/aprloop/internal/convo"
	"github.com/aprbench/aprloop/internal/model"
	"github.com/aprbench/aprloop/internal/retry"
)

// LocalizeResult is the localization phase's output: the assistant's
// final content (used to derive PATCH_CONTEXT) and the deduplicated,
// order-preserving list of files the model touched while localizing.
type LocalizeResult struct {
	Content        string
	PredictedFiles []string
}

var localizeReadToolNames = map[string]bool{
	"read_file": true, "read_span": true, "grep": true, "search_in_files": true,
}

// runLocalizePhase implements spec §4.1's localize loop: append the
// localize prompt, then repeatedly call the LLM, dispatch any tool calls,
// and continue until either the model returns plain content or a budget
// is exhausted (in which case one final forced call is made).
func (o *Orchestrator) runLocalizePhase(ctx context.Context, rs *runState) (LocalizeResult, error) {
	rs.conv.Append(model.NewUserMessage(rs.prompts.Localize))

	toolCallCount := 0
	symbolBlocksRead := 0
	localizationAPICalls := 0
	var predicted []string
	var finalContent string

	for {
		if rs.tracker.TimedOut() {
			return LocalizeResult{}, errTimeout()
		}

		forced := budget.LocalizeBudgetExhausted(toolCallCount, symbolBlocksRead, localizationAPICalls, rs.cfg.Ablation.IndexRetrieval, rs.cfg.Ablation.MaxLocalizationAPICalls)
		choice := ToolChoiceAuto
		if forced {
			rs.conv.Append(model.NewUserMessage("Return your localization result now."))
			choice = ToolChoiceNone
		}

		resp, err := o.callLLM(ctx, rs, rs.conv, model.PhaseLocalize, choice)
		if err != nil {
			return LocalizeResult{}, err
		}
		localizationAPICalls++

		if forced || len(resp.ToolCalls) == 0 {
			finalContent = resp.Content
			rs.conv.Append(model.NewAssistantMessage(resp.Content))
			break
		}

		toolCallCount += len(resp.ToolCalls)
		for _, tc := range resp.ToolCalls {
			if localizeReadToolNames[tc.Name] {
				if p, ok := extractPath(tc.ArgumentsJSON, rs.cfg.Workdir); ok {
					predicted = appendDedup(predicted, p)
				}
			}
			if tc.Name == "symbol_lookup" || tc.Name == "find_references" {
				symbolBlocksRead++
			}
			rs.tracker.Metrics.RecordToolCall(model.PhaseLocalize, tc.Name)
		}

		replies := rs.localizeRuntime.HandleToolCalls(ctx, resp.ToolCalls)
		assistant := model.NewAssistantToolCallMessage(resp.Content, resp.ToolCalls)
		if err := rs.conv.AppendAssistantWithTools(assistant, replies); err != nil {
			return LocalizeResult{}, err
		}
		rs.conv.Replace(convo.Prune(rs.conv.Messages()))
	}

	predicted = appendDedup(predicted, extractPredictedFromJSON(finalContent)...)

	return LocalizeResult{Content: finalContent, PredictedFiles: predicted}, nil
}

// callLLM issues one retried LLM call and records its token usage on
// success (spec §4.5: API call counters increment only on success;
// retries do not double-count).
func (o *Orchestrator) callLLM(ctx context.Context, rs *runState, conv *model.Conversation, phase model.Phase, choice ToolChoice) (LLMResponse, error) {
	registry := o.localizeTools
	if phase == model.PhasePatch {
		registry = o.patchTools
	}

	req := LLMRequest{
		Messages:   conv.Messages(),
		Tools:      registry.Defs(),
		ToolChoice: choice,
		Model:      rs.cfg.Model,
	}

	var resp LLMResponse
	err := retry.Do(ctx, func(ctx context.Context, attempt int) error {
		r, err := o.client.Generate(ctx, req)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return LLMResponse{}, err
	}
	rs.tracker.Metrics.RecordAPICall(phase, resp.TotalTokens)
	return resp, nil
}

// extractPath pulls a file path argument out of a tool call's raw JSON
// arguments, normalizing off the workdir prefix, for any of the
// read_file/read_span/grep/search_in_files calls (spec §4.1).
func extractPath(argsJSON, workdir string) (string, bool) {
	var args map[string]any
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return "", false
	}
	for _, key := range []string{"path", "file", "file_path"} {
		if v, ok := args[key].(string); ok && v != "" {
			return normalizePath(v, workdir), true
		}
	}
	return "", false
}

func normalizePath(p, workdir string) string {
	if workdir != "" && strings.HasPrefix(p, workdir) {
		p = strings.TrimPrefix(p, workdir)
		p = strings.TrimPrefix(p, "/")
	}
	return p
}

// extractPredictedFromJSON best-effort parses the assistant's final
// content as JSON to pull `file`/`files[]` fields into predictedFiles
// (spec §4.1).
func extractPredictedFromJSON(content string) []string {
	var doc map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &doc); err != nil {
		return nil
	}
	var out []string
	if f, ok := doc["file"].(string); ok && f != "" {
		out = append(out, f)
	}
	if arr, ok := doc["files"].([]any); ok {
		for _, v := range arr {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

func appendDedup(existing []string, more ...string) []string {
	seen := make(map[string]bool, len(existing))
	for _, e := range existing {
		seen[e] = true
	}
	out := existing
	for _, m := range more {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}
