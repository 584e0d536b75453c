package anomaly

import "testing"

func TestCompositeTracker_WarmupNeverFires(t *testing.T) {
	tr, err := newCompositeTracker(0.5, 0.01, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, fired := tr.observe([]float64{100, 0}, 0); fired {
			t.Fatalf("expected no firing during warm-up, fired at sample %d", i)
		}
	}
	if tr.baseline == nil {
		t.Fatal("expected a baseline to be built after Window warm-up samples")
	}
}

func TestCompositeTracker_FiresOnMeanShiftAfterWarmup(t *testing.T) {
	tr, err := newCompositeTracker(0.0, 1.0, 5) // pure Mahalanobis
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 5; i++ {
		tr.observe([]float64{100, 0}, 0)
	}

	if _, fired := tr.observe([]float64{100, 0}, 0); fired {
		t.Error("expected no firing for a sample matching the baseline mean")
	}
	if _, fired := tr.observe([]float64{10000, 500}, 0); !fired {
		t.Error("expected firing for a sample far from the baseline mean")
	}
}

func TestBuildCompositeBaseline_ZeroVarianceDimensionFloored(t *testing.T) {
	samples := [][]float64{{5, 1}, {5, 2}, {5, 3}}
	baseline := buildCompositeBaseline(samples, EventCounts{3, 0, 0, 0})
	if baseline.InvCovariance == nil {
		t.Fatal("expected an invertible covariance even with a constant dimension")
	}
	if baseline.MeanVector[0] != 5 {
		t.Errorf("expected mean[0] = 5, got %v", baseline.MeanVector[0])
	}
}
