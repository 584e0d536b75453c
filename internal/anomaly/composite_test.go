package anomaly

import (
	"math"
	"testing"
)

func TestNewCompositeScorer_RejectsOutOfRangeWeight(t *testing.T) {
	if _, err := NewCompositeScorer(-0.1); err == nil {
		t.Error("expected error for negative entropy weight")
	}
	if _, err := NewCompositeScorer(1.1); err == nil {
		t.Error("expected error for entropy weight above 1")
	}
}

func TestInvertCovariance_IdentityRoundTrips(t *testing.T) {
	identity := [][]float64{{1, 0}, {0, 1}}
	inv, err := InvertCovariance(identity)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range inv {
		for j := range inv[i] {
			want := 0.0
			if i == j {
				want = 1.0
			}
			if math.Abs(inv[i][j]-want) > 1e-9 {
				t.Errorf("inv[%d][%d] = %v, want %v", i, j, inv[i][j], want)
			}
		}
	}
}

func TestInvertCovariance_RejectsNonPositiveDefinite(t *testing.T) {
	degenerate := [][]float64{{1, 2}, {2, 4}} // rank-1, not PD
	if _, err := InvertCovariance(degenerate); err == nil {
		t.Error("expected error for a non-positive-definite matrix")
	}
}

func TestCompositeScorer_ZeroAtBaselineMean(t *testing.T) {
	scorer, err := NewCompositeScorer(0.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	baseline := CompositeBaseline{
		MeanVector:    []float64{10, 20},
		InvCovariance: [][]float64{{1, 0}, {0, 1}},
	}
	score, err := scorer.Score([]float64{10, 20}, baseline, EventCounts{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score != 0 {
		t.Errorf("expected zero score at the baseline mean, got %v", score)
	}
}

func TestCompositeScorer_RejectsLengthMismatch(t *testing.T) {
	scorer, _ := NewCompositeScorer(0.0)
	baseline := CompositeBaseline{MeanVector: []float64{10, 20}, InvCovariance: [][]float64{{1, 0}, {0, 1}}}
	if _, err := scorer.Score([]float64{10}, baseline, EventCounts{}); err == nil {
		t.Error("expected error for mismatched vector length")
	}
}

func TestCompositeScorer_EntropyTermTracksEventMixCollapse(t *testing.T) {
	scorer, err := NewCompositeScorer(1.0) // pure entropy, Mahalanobis term zeroed out
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	baseline := CompositeBaseline{
		MeanVector:      []float64{10, 20},
		InvCovariance:   [][]float64{{1, 0}, {0, 1}},
		BaselineEntropy: ShannonEntropy(EventCounts{25, 25, 25, 25}), // maximum entropy, even mix
	}

	collapsed := EventCounts{100, 0, 0, 0} // degenerate, single event type
	score, err := scorer.Score([]float64{10, 20}, baseline, collapsed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score <= 0 {
		t.Errorf("expected a positive entropy-delta score for a collapsed event mix, got %v", score)
	}

	unchanged, err := scorer.Score([]float64{10, 20}, baseline, EventCounts{25, 25, 25, 25})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if unchanged != 0 {
		t.Errorf("expected zero score when the event mix matches the baseline, got %v", unchanged)
	}
}
