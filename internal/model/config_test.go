package model

import "testing"

func TestVariants_SixNamedPresetsExist(t *testing.T) {
	for _, name := range []string{"G0", "G1", "G2", "G3", "G5", "TRACE"} {
		if _, ok := Variants[name]; !ok {
			t.Errorf("expected a named preset %q", name)
		}
	}
}

func TestVariants_SameNameAlwaysProducesIdenticalSettings(t *testing.T) {
	a := Variants["G2"]
	b := Variants["G2"]
	if a != b {
		t.Fatalf("expected repeated lookups of the same variant to be identical: %+v vs %+v", a, b)
	}
}

func TestVariants_G0HasAllGatesOff(t *testing.T) {
	g0 := Variants["G0"]
	if g0.TDDGate || g0.IndexRetrieval || g0.PatchCompileGate {
		t.Fatalf("expected G0 baseline to have every gate off, got %+v", g0)
	}
}

func TestVariants_G5AndTraceDifferOnlyByTraceEventsAndName(t *testing.T) {
	g5 := Variants["G5"]
	trace := Variants["TRACE"]

	if !trace.TraceEvents {
		t.Fatal("expected TRACE to enable verbose event emission")
	}
	if g5.TraceEvents {
		t.Fatal("expected G5 itself to not enable trace events")
	}

	g5.Variant, trace.Variant = "", ""
	g5.TraceEvents, trace.TraceEvents = false, false
	if g5 != trace {
		t.Fatalf("expected G5 and TRACE to share every gate/budget besides trace events and name: %+v vs %+v", g5, trace)
	}
}

func TestDeriveSubFlags_FollowsTopLevelGates(t *testing.T) {
	c := AblationConfig{TDDGate: true, IndexRetrieval: false, PatchCompileGate: true}
	c = DeriveSubFlags(c)

	if !c.VerifyRed || !c.VerifyGreen {
		t.Error("expected VerifyRed/VerifyGreen to follow TDDGate=true")
	}
	if c.UseSymbolLookup || c.UseFindReferences || c.UseReadSpan {
		t.Error("expected retrieval sub-flags to follow IndexRetrieval=false")
	}
	if !c.UseGitApplyCheck || !c.UseCanonicalDiff || !c.UseCompileGate {
		t.Error("expected compile-gate sub-flags to follow PatchCompileGate=true")
	}
}

func TestDeriveSubFlags_OverridingAGatePropagatesToItsSubFlags(t *testing.T) {
	// Simulate a variant's config.json overriding patch_compile_gate on G1.
	c := Variants["G1"]
	c.PatchCompileGate = true
	c = DeriveSubFlags(c)

	if !c.UseGitApplyCheck || !c.UseCanonicalDiff || !c.UseCompileGate {
		t.Fatalf("expected overriding PatchCompileGate to flip the implied sub-flags, got %+v", c)
	}
	// TDDGate was untouched, so its sub-flags must remain as G1 had them.
	if !c.VerifyRed || !c.VerifyGreen {
		t.Fatalf("expected untouched TDDGate sub-flags to be preserved, got %+v", c)
	}
}
