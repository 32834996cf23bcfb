package toolruntime

import (
	"context"
	"sort"
)

// ToolFunc is the callable bound to one tool name for one phase. args is
// the parsed (and possibly repaired) JSON argument object; the return
// value is marshaled to JSON as the tool message content.
type ToolFunc func(ctx context.Context, args map[string]any) (map[string]any, error)

// ToolDef pairs a tool's name and JSON schema with its bound callable.
// Schemas are opaque here — they are handed to the LLM client verbatim —
// ToolRuntime only cares about Name and Func.
type ToolDef struct {
	Name        string
	Description string
	Schema      map[string]any
	Func        ToolFunc
}

// Phase names the three fixed registries the spec names in §2.3. There is
// no plug-in system for adding a fourth (explicit non-goal, §1).
type Phase string

const (
	PhaseLocalize Phase = "localize"
	PhasePatch    Phase = "patch"
	PhaseVerify   Phase = "verify"
)

// Registry holds the bound tools available for exactly one phase.
type Registry struct {
	phase Phase
	tools map[string]ToolDef
}

// NewRegistry builds an empty registry for the given phase.
func NewRegistry(phase Phase) *Registry {
	return &Registry{phase: phase, tools: make(map[string]ToolDef)}
}

// Register adds a tool definition, overwriting any prior definition with
// the same name — used when re-binding check_compile to the
// harness-reported workdir after HARNESS (spec §4.1 step 6).
func (r *Registry) Register(def ToolDef) {
	r.tools[def.Name] = def
}

func (r *Registry) lookup(name string) (ToolDef, bool) {
	d, ok := r.tools[name]
	return d, ok
}

// Defs returns the registered tool definitions in a stable order suitable
// for handing to the LLM client as the available tool list.
func (r *Registry) Defs() []ToolDef {
	out := make([]ToolDef, 0, len(r.tools))
	for _, d := range r.tools {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the registered tool names, used only for internal
// bookkeeping (e.g. tests) — never surfaced in an "unknown tool" error
// message, which must not leak the full registry (spec §4.2).
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.tools))
	for n := range r.tools {
		out = append(out, n)
	}
	return out
}
