package patch

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/aprbench/aprloop/internal/model"
)

// wireOp mirrors the JSON shape of one op: {"type","start_line","end_line","text"}.
type wireOp struct {
	Type      string `json:"type"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Text      string `json:"text"`
}

type wireFileEdit struct {
	Path string   `json:"path"`
	Ops  []wireOp `json:"ops"`
}

type wireCandidate struct {
	ID        int            `json:"id"`
	Strategy  string         `json:"strategy"`
	Reasoning string         `json:"reasoning"`
	Edits     []wireFileEdit `json:"edits"`
}

type wirePatchesEnvelope struct {
	Patches []wireCandidate `json:"patches"`
}

// DetectFormat attempts to JSON-parse the cleaned assistant content as a
// structured-edits document. It accepts the three shapes named in the
// spec: {"patches":[...]}, a bare [...] of {id,strategy,edits}, or a bare
// [{path,ops}] (treated as a single, unnamed candidate). Anything that
// doesn't parse as one of these is left to unified-diff handling.
func DetectFormat(content string) (*model.PatchCandidate, bool) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, false
	}
	if trimmed[0] != '{' && trimmed[0] != '[' {
		return nil, false
	}

	if trimmed[0] == '{' {
		var env wirePatchesEnvelope
		if err := json.Unmarshal([]byte(trimmed), &env); err == nil && len(env.Patches) > 0 {
			return &model.PatchCandidate{
				Format:     model.PatchFormatStructuredEdits,
				Candidates: toCandidates(env.Patches),
			}, true
		}
		return nil, false
	}

	// Bare list: could be []wireCandidate or []wireFileEdit.
	var candidates []wireCandidate
	if err := json.Unmarshal([]byte(trimmed), &candidates); err == nil && len(candidates) > 0 && candidates[0].Edits != nil {
		return &model.PatchCandidate{
			Format:     model.PatchFormatStructuredEdits,
			Candidates: toCandidates(candidates),
		}, true
	}

	var singleEdits []wireFileEdit
	if err := json.Unmarshal([]byte(trimmed), &singleEdits); err == nil && len(singleEdits) > 0 && singleEdits[0].Path != "" {
		return &model.PatchCandidate{
			Format: model.PatchFormatStructuredEdits,
			Candidates: []model.EditCandidate{{
				ID:    0,
				Edits: toFileEdits(singleEdits),
			}},
		}, true
	}

	return nil, false
}

func toCandidates(in []wireCandidate) []model.EditCandidate {
	out := make([]model.EditCandidate, 0, len(in))
	for _, c := range in {
		out = append(out, model.EditCandidate{
			ID:        c.ID,
			Strategy:  c.Strategy,
			Reasoning: c.Reasoning,
			Edits:     toFileEdits(c.Edits),
		})
	}
	return out
}

func toFileEdits(in []wireFileEdit) []model.FileEdit {
	out := make([]model.FileEdit, 0, len(in))
	for _, fe := range in {
		ops := make([]model.EditOp, 0, len(fe.Ops))
		for _, op := range fe.Ops {
			text := op.Text
			if text != "" && !strings.HasSuffix(text, "\n") {
				text += "\n"
			}
			ops = append(ops, model.EditOp{
				Type:      model.EditOpType(op.Type),
				StartLine: op.StartLine,
				EndLine:   op.EndLine,
				Text:      text,
			})
		}
		out = append(out, model.FileEdit{Path: fe.Path, Ops: ops})
	}
	return out
}

// ApplyFileEdits applies one file's ops to its current line-split
// content, processing ops in reverse order of StartLine so earlier
// indices remain valid as later (higher-numbered) edits are applied
// first — the design notes' explicit ordering requirement.
func ApplyFileEdits(original string, ops []model.EditOp) (string, error) {
	lines := splitKeepingNewlines(original)

	ordered := make([]model.EditOp, len(ops))
	copy(ordered, ops)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].StartLine > ordered[j].StartLine
	})

	for _, op := range ordered {
		var err error
		lines, err = applyOne(lines, op)
		if err != nil {
			return "", err
		}
	}
	return strings.Join(lines, ""), nil
}

func applyOne(lines []string, op model.EditOp) ([]string, error) {
	n := len(lines)
	switch op.Type {
	case model.EditReplace:
		if op.StartLine < 1 || op.EndLine < op.StartLine || op.EndLine > n {
			return nil, fmt.Errorf("replace op out of range: [%d,%d] against %d lines", op.StartLine, op.EndLine, n)
		}
		replacement := splitKeepingNewlines(op.Text)
		out := make([]string, 0, n-(op.EndLine-op.StartLine+1)+len(replacement))
		out = append(out, lines[:op.StartLine-1]...)
		out = append(out, replacement...)
		out = append(out, lines[op.EndLine:]...)
		return out, nil
	case model.EditInsert:
		if op.StartLine < 1 || op.StartLine > n+1 {
			return nil, fmt.Errorf("insert op out of range: start=%d against %d lines", op.StartLine, n)
		}
		insertion := splitKeepingNewlines(op.Text)
		out := make([]string, 0, n+len(insertion))
		out = append(out, lines[:op.StartLine-1]...)
		out = append(out, insertion...)
		out = append(out, lines[op.StartLine-1:]...)
		return out, nil
	case model.EditDelete:
		if op.StartLine < 1 || op.EndLine < op.StartLine || op.EndLine > n {
			return nil, fmt.Errorf("delete op out of range: [%d,%d] against %d lines", op.StartLine, op.EndLine, n)
		}
		out := make([]string, 0, n-(op.EndLine-op.StartLine+1))
		out = append(out, lines[:op.StartLine-1]...)
		out = append(out, lines[op.EndLine:]...)
		return out, nil
	default:
		return nil, fmt.Errorf("unknown edit op type: %s", op.Type)
	}
}

// splitKeepingNewlines splits text into lines, each retaining its
// trailing "\n" (except possibly the last), so re-joining with "" is a
// lossless inverse.
func splitKeepingNewlines(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i+1])
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
