package health

import "testing"

func TestErrorRateBelowMinSamplesIsZero(t *testing.T) {
	tr := NewTracker(20, 5)
	tr.Record("primary", false)
	tr.Record("primary", false)
	if got := tr.ErrorRate("primary"); got != 0 {
		t.Fatalf("ErrorRate() = %v before min samples, want 0", got)
	}
}

func TestErrorRateMatchesFailuresOverObservations(t *testing.T) {
	tr := NewTracker(20, 1)
	for i := 0; i < 3; i++ {
		tr.Record("primary", false)
	}
	tr.Record("primary", true)
	if got, want := tr.ErrorRate("primary"), 0.75; got != want {
		t.Fatalf("ErrorRate() = %v, want %v", got, want)
	}
}

func TestWindowEvictsOldest(t *testing.T) {
	tr := NewTracker(2, 1)
	tr.Record("primary", false)
	tr.Record("primary", true)
	tr.Record("primary", true) // evicts the false
	if got := tr.ErrorRate("primary"); got != 0 {
		t.Fatalf("ErrorRate() = %v, want 0 after eviction", got)
	}
}

func TestResetClearsWindows(t *testing.T) {
	tr := NewTracker(20, 1)
	tr.Record("primary", false)
	tr.Reset()
	if got := tr.ErrorRate("primary"); got != 0 {
		t.Fatalf("ErrorRate() after Reset = %v, want 0", got)
	}
}
