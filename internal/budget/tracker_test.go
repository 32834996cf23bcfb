package budget

import "testing"

func TestNew_StartsWithZeroedMetrics(t *testing.T) {
	tr := New()
	if tr.Metrics == nil {
		t.Fatal("expected a non-nil Metrics on a fresh tracker")
	}
	if tr.Metrics.TotalAPICalls != 0 {
		t.Fatal("expected zeroed metrics on a fresh tracker")
	}
}

func TestTimedOut_FalseImmediatelyAfterStart(t *testing.T) {
	tr := New()
	if tr.TimedOut() {
		t.Fatal("a fresh tracker must not report timed out")
	}
}

func TestFinalizeRuntime_StampsRuntimeSeconds(t *testing.T) {
	tr := New()
	tr.FinalizeRuntime()
	if tr.Metrics.RuntimeSeconds <= 0 {
		t.Fatalf("expected a positive RuntimeSeconds after FinalizeRuntime, got %f", tr.Metrics.RuntimeSeconds)
	}
}

func TestLocalizeBudgetExhausted_ToolCallCeiling(t *testing.T) {
	if !LocalizeBudgetExhausted(15, 0, 0, false, 100) {
		t.Fatal("expected exhaustion at toolCallCount == 15 regardless of other inputs")
	}
	if LocalizeBudgetExhausted(14, 0, 0, false, 100) {
		t.Fatal("did not expect exhaustion at toolCallCount == 14")
	}
}

func TestLocalizeBudgetExhausted_SymbolBlocksOnlyAppliesInIndexMode(t *testing.T) {
	if LocalizeBudgetExhausted(0, 10, 0, false, 100) {
		t.Fatal("symbol-block ceiling must not apply when index mode is off")
	}
	if !LocalizeBudgetExhausted(0, 10, 0, true, 100) {
		t.Fatal("expected exhaustion at symbolBlocksRead == 10 in index mode")
	}
}

func TestLocalizeBudgetExhausted_APICallCeiling(t *testing.T) {
	if !LocalizeBudgetExhausted(0, 0, 5, false, 5) {
		t.Fatal("expected exhaustion once localizationAPICount reaches the configured max")
	}
	if LocalizeBudgetExhausted(0, 0, 4, false, 5) {
		t.Fatal("did not expect exhaustion below the configured max")
	}
}
