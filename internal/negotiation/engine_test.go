package negotiation

import "testing"

func TestEvaluateAcceptAtListedRate(t *testing.T) {
	for _, listed := range []float64{1, 100, 2500, 99999.99} {
		d := Evaluate(listed, listed, 1)
		if d.Action != ActionAccept || !d.Accepted {
			t.Fatalf("listed=%v: expected accept, got %+v", listed, d)
		}
		if d.FinalRate != listed {
			t.Fatalf("listed=%v: expected final rate %v, got %v", listed, listed, d.FinalRate)
		}
	}
}

func TestEvaluateAcceptWithinFivePercent(t *testing.T) {
	d := Evaluate(100, 96, 1)
	if d.Action != ActionAccept {
		t.Fatalf("expected accept, got %+v", d)
	}
	if d.FinalRate != 96 {
		t.Fatalf("expected final rate 96, got %v", d.FinalRate)
	}

	// Exactly on the 95% boundary accepts.
	d = Evaluate(100, 95, 1)
	if d.Action != ActionAccept {
		t.Fatalf("expected accept at boundary, got %+v", d)
	}
}

func TestEvaluateCounterOffer(t *testing.T) {
	d := Evaluate(100, 90, 1)
	if d.Action != ActionCounterOffer || d.Accepted {
		t.Fatalf("expected counter, got %+v", d)
	}
	if d.CounterRate != 93.0 {
		t.Fatalf("expected counter 93.0, got %v", d.CounterRate)
	}

	// Exactly on the 85% floor counters rather than declines.
	d = Evaluate(100, 85, 1)
	if d.Action != ActionCounterOffer {
		t.Fatalf("expected counter at floor, got %+v", d)
	}
	if d.CounterRate != 89.5 {
		t.Fatalf("expected counter 89.5, got %v", d.CounterRate)
	}
}

func TestEvaluateCounterRounding(t *testing.T) {
	// 899 + (1000-899)*0.3 = 929.3
	d := Evaluate(1000, 899, 1)
	if d.Action != ActionCounterOffer {
		t.Fatalf("expected counter, got %+v", d)
	}
	if d.CounterRate != 929.3 {
		t.Fatalf("expected counter 929.3, got %v", d.CounterRate)
	}
}

func TestEvaluateDeclineContinueFirstRound(t *testing.T) {
	d := Evaluate(100, 80, 1)
	if d.Action != ActionDeclineContinue {
		t.Fatalf("expected decline_continue, got %+v", d)
	}
	if d.MinRate != 85.0 {
		t.Fatalf("expected min rate 85.0, got %v", d.MinRate)
	}
}

func TestEvaluateLowballTransfersAfterFirstRound(t *testing.T) {
	for _, round := range []int{2, 3} {
		d := Evaluate(100, 80, round)
		if d.Action != ActionTransferToRep {
			t.Fatalf("round %d: expected transfer, got %+v", round, d)
		}
		if d.Reason != "rate too low after repeated attempts" {
			t.Fatalf("round %d: unexpected reason %q", round, d.Reason)
		}
	}
}

func TestEvaluateRoundCapBeatsRateBands(t *testing.T) {
	// Even a full-price offer is handed off once the cap is exceeded.
	for _, offered := range []float64{100, 96, 90, 80} {
		d := Evaluate(100, offered, 4)
		if d.Action != ActionTransferToRep {
			t.Fatalf("offer %v: expected transfer past round cap, got %+v", offered, d)
		}
		if d.Reason != "max rounds exceeded" {
			t.Fatalf("offer %v: unexpected reason %q", offered, d.Reason)
		}
	}
	d := Evaluate(2500, 2500, 10)
	if d.Action != ActionTransferToRep {
		t.Fatalf("expected transfer on round 10, got %+v", d)
	}
}

func TestEvaluateRoundThreeStillNegotiates(t *testing.T) {
	d := Evaluate(100, 90, 3)
	if d.Action != ActionCounterOffer {
		t.Fatalf("expected counter on round 3, got %+v", d)
	}
}

func TestMinAcceptable(t *testing.T) {
	if got := MinAcceptable(100); got != 85.0 {
		t.Fatalf("expected 85.0, got %v", got)
	}
	if got := MinAcceptable(1999.99); got != 1699.99 {
		t.Fatalf("expected 1699.99, got %v", got)
	}
}
