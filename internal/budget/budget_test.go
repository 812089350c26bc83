package budget

import "testing"

func TestEstimateTokens_DefaultDivisor(t *testing.T) {
	if got := EstimateTokens("12345678", 0); got != 2 {
		t.Fatalf("expected 2 tokens for 8 chars at default 4.0 chars/token, got %d", got)
	}
}

func TestEstimateTokens_RoundsUp(t *testing.T) {
	if got := EstimateTokens("123456789", 4.0); got != 3 {
		t.Fatalf("expected ceil(9/4)=3, got %d", got)
	}
}

func TestEstimateTokens_EmptyIsZero(t *testing.T) {
	if got := EstimateTokens("", 4.0); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestCompute_AllocatesInputAfterOutputReservation(t *testing.T) {
	alloc := Compute(1000, 200, 50, 30, 20, 0)
	if alloc.Input != 800 {
		t.Fatalf("expected input=800, got %d", alloc.Input)
	}
	if alloc.SafetyReserved != 40 { // ceil(800*0.05)
		t.Fatalf("expected safety reserved=40, got %d", alloc.SafetyReserved)
	}
	wantConversation := 800 - (50 + 30 + 20 + 40)
	if alloc.Conversation != wantConversation {
		t.Fatalf("expected conversation=%d, got %d", wantConversation, alloc.Conversation)
	}
}

func TestCompute_NegativeInputClampsToZero(t *testing.T) {
	alloc := Compute(100, 500, 0, 0, 0, 0)
	if alloc.Input != 0 || alloc.Conversation != 0 {
		t.Fatalf("expected zero-clamped allocation, got %+v", alloc)
	}
}

func TestCompute_UtilizationIncludesAlreadyUsedHistory(t *testing.T) {
	alloc := Compute(1000, 0, 0, 0, 0, 900)
	if alloc.Utilization < 0.89 || alloc.Utilization > 0.91 {
		t.Fatalf("expected utilization ~0.9, got %v", alloc.Utilization)
	}
}

func TestShouldCompact_TriggersAtThreshold(t *testing.T) {
	alloc := Allocation{Utilization: 0.85}
	if !ShouldCompact(alloc, 0.8, false) {
		t.Fatal("expected compaction to trigger above threshold")
	}
}

func TestShouldCompact_BelowThresholdNoOverflowDoesNotTrigger(t *testing.T) {
	alloc := Allocation{Utilization: 0.5}
	if ShouldCompact(alloc, 0.8, false) {
		t.Fatal("did not expect compaction below threshold")
	}
}

func TestShouldCompact_PreviousOverflowAlwaysTriggers(t *testing.T) {
	alloc := Allocation{Utilization: 0.1}
	if !ShouldCompact(alloc, 0.8, true) {
		t.Fatal("expected a previous context-window overflow to force compaction regardless of utilization")
	}
}

func TestShouldCompact_DefaultsThresholdWhenNonPositive(t *testing.T) {
	alloc := Allocation{Utilization: 0.81}
	if !ShouldCompact(alloc, 0, false) {
		t.Fatal("expected the default 0.8 threshold to apply when threshold<=0")
	}
}
