package model

// AblationConfig is a flat record of feature flags and budgets controlling
// one loop run. The same variant name must always produce identical
// settings — callers should treat values returned by LoadVariant as
// immutable for the lifetime of a run.
type AblationConfig struct {
	// Feature gates
	TDDGate          bool
	IndexRetrieval    bool
	PatchCompileGate bool

	// Sub-flags implied by the gates above
	VerifyRed          bool
	VerifyGreen        bool
	UseSymbolLookup    bool
	UseFindReferences  bool
	UseReadSpan        bool
	UseGitApplyCheck   bool
	UseCanonicalDiff   bool
	UseCompileGate     bool

	// Budgets (all positive integers)
	MaxLocalizationAPICalls     int
	MaxPatchPhaseAPICalls       int
	MaxToolCallsPerPatch        int
	MaxConsecutiveDirectPatches int
	MaxGitApplyFailures         int
	MaxCompileFailures          int
	MaxSymbolBlocksPerRound     int

	// TraceEvents is the flag that distinguishes the TRACE preset from G5.
	// No component reads it: telemetry events are emitted the same way for
	// every variant.
	TraceEvents bool

	// Variant is the name this config was composed from, e.g. "G0".
	Variant string
}

// DefaultBudgets returns the budget portion of the spec's canonical numbers.
// Every named variant starts from this and only toggles the gates.
func DefaultBudgets() AblationConfig {
	return AblationConfig{
		MaxLocalizationAPICalls:     36,
		MaxPatchPhaseAPICalls:       50,
		MaxToolCallsPerPatch:        4,
		MaxConsecutiveDirectPatches: 5,
		MaxGitApplyFailures:         5,
		MaxCompileFailures:          5,
		MaxSymbolBlocksPerRound:     10,
	}
}

// Variants holds the canonical named presets. The map is built once at
// package init and never mutated afterward, so repeated lookups by name
// are guaranteed to produce identical settings (the spec's invariant).
var Variants = buildVariants()

func buildVariants() map[string]AblationConfig {
	base := func(name string) AblationConfig {
		c := DefaultBudgets()
		c.Variant = name
		return c
	}

	g0 := base("G0")

	g1 := base("G1")
	g1.TDDGate = true
	g1.VerifyRed = true
	g1.VerifyGreen = true

	g2 := base("G2")
	g2.TDDGate = true
	g2.VerifyRed = true
	g2.VerifyGreen = true
	g2.IndexRetrieval = true
	g2.UseSymbolLookup = true
	g2.UseFindReferences = true
	g2.UseReadSpan = true

	g3 := base("G3")
	g3.TDDGate = true
	g3.VerifyRed = true
	g3.VerifyGreen = true
	g3.IndexRetrieval = true
	g3.UseSymbolLookup = true
	g3.UseFindReferences = true
	g3.UseReadSpan = true
	g3.PatchCompileGate = true
	g3.UseGitApplyCheck = true
	g3.UseCanonicalDiff = true
	g3.UseCompileGate = true

	g5 := base("G5")
	g5.TDDGate = true
	g5.VerifyRed = true
	g5.VerifyGreen = true
	g5.IndexRetrieval = true
	g5.UseSymbolLookup = true
	g5.UseFindReferences = true
	g5.UseReadSpan = true
	g5.PatchCompileGate = true
	g5.UseGitApplyCheck = true
	g5.UseCanonicalDiff = true
	g5.UseCompileGate = true

	trace := g5
	trace.Variant = "TRACE"
	trace.TraceEvents = true

	return map[string]AblationConfig{
		"G0":    g0,
		"G1":    g1,
		"G2":    g2,
		"G3":    g3,
		"G5":    g5,
		"TRACE": trace,
	}
}

// DeriveSubFlags recomputes the sub-flags implied by the three top-level
// gates (TDDGate, IndexRetrieval, PatchCompileGate), for callers that
// override a gate on a named preset and need the implied flags to follow
// (e.g. a variant's config.json overriding patch_compile_gate).
func DeriveSubFlags(c AblationConfig) AblationConfig {
	c.VerifyRed = c.TDDGate
	c.VerifyGreen = c.TDDGate
	c.UseSymbolLookup = c.IndexRetrieval
	c.UseFindReferences = c.IndexRetrieval
	c.UseReadSpan = c.IndexRetrieval
	c.UseGitApplyCheck = c.PatchCompileGate
	c.UseCanonicalDiff = c.PatchCompileGate
	c.UseCompileGate = c.PatchCompileGate
	return c
}
