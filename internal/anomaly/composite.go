package anomaly

import (
	"errors"
	"math"
)

// CompositeBaseline is the multivariate counterpart to the per-metric
// ring: a mean vector and covariance matrix over a fixed set of correlated
// metrics (e.g. cpu/memory/latency sampled together), plus the Shannon
// entropy of an accompanying event-type distribution. It exists for
// callers that want one anomaly score spanning several metrics at once
// rather than independent per-metric thresholds.
type CompositeBaseline struct {
	MeanVector      []float64
	InvCovariance   [][]float64
	BaselineEntropy float64
	SampleCount     int
}

// CompositeScorer computes an anomaly score combining Mahalanobis distance
// over a metric vector with a Shannon-entropy delta over an event-type
// distribution. The two signals are orthogonal: Mahalanobis catches a
// correlated-metric vector drifting from its usual region, entropy catches
// a distribution collapsing onto one event type even when no single
// metric crosses its own threshold.
type CompositeScorer struct {
	// EntropyWeight blends the normalized entropy delta into the score;
	// 0 disables the entropy term entirely (pure Mahalanobis).
	EntropyWeight float64
}

// NewCompositeScorer returns a scorer with the given entropy weight, which
// must be in [0, 1].
func NewCompositeScorer(entropyWeight float64) (*CompositeScorer, error) {
	if entropyWeight < 0 || entropyWeight > 1 {
		return nil, errors.New("anomaly: entropy weight must be in [0, 1]")
	}
	return &CompositeScorer{EntropyWeight: entropyWeight}, nil
}

// Score returns the Mahalanobis distance between x and the baseline's
// mean, blended with the normalized entropy delta between counts' Shannon
// entropy and the baseline's entropy. Score computes currentEntropy
// itself via ShannonEntropy rather than taking it precomputed, so every
// caller's event-type counts are interpreted the same way.
func (s *CompositeScorer) Score(x []float64, baseline CompositeBaseline, counts EventCounts) (float64, error) {
	if len(x) != len(baseline.MeanVector) {
		return 0, errors.New("anomaly: vector length mismatch against baseline")
	}
	diff := make([]float64, len(x))
	for i := range x {
		diff[i] = x[i] - baseline.MeanVector[i]
	}
	mahalanobis := math.Sqrt(mahalanobisSquared(diff, baseline.InvCovariance))

	currentEntropy := ShannonEntropy(counts)
	entropyDelta := math.Abs(currentEntropy - baseline.BaselineEntropy)
	return (1-s.EntropyWeight)*mahalanobis + s.EntropyWeight*entropyDelta, nil
}

// mahalanobisSquared computes diff^T * M * diff for a precomputed diff
// vector and inverse-covariance matrix M.
func mahalanobisSquared(diff []float64, invCov [][]float64) float64 {
	n := len(diff)
	if n == 0 || len(invCov) != n {
		return 0
	}
	var total float64
	for i := 0; i < n; i++ {
		var rowSum float64
		for j := 0; j < n; j++ {
			rowSum += invCov[i][j] * diff[j]
		}
		total += diff[i] * rowSum
	}
	return total
}

// InvertCovariance inverts a symmetric positive-definite covariance matrix
// via Cholesky decomposition (cov = L * L^T), which is both faster and
// more numerically stable than general-purpose Gaussian elimination for
// the covariance matrices this package deals in.
func InvertCovariance(cov [][]float64) ([][]float64, error) {
	n := len(cov)
	if n == 0 {
		return nil, errors.New("anomaly: empty covariance matrix")
	}
	L, err := choleskyDecompose(cov)
	if err != nil {
		return nil, err
	}
	invL, err := invertLowerTriangular(L)
	if err != nil {
		return nil, err
	}

	// cov^-1 = (L^-1)^T * L^-1
	inv := make([][]float64, n)
	for i := range inv {
		inv[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			var sum float64
			for k := 0; k < n; k++ {
				sum += invL[k][i] * invL[k][j]
			}
			inv[i][j] = sum
		}
	}
	return inv, nil
}

// choleskyDecompose finds lower-triangular L such that cov = L * L^T.
// Returns an error if cov is not positive-definite (a diagonal pivot would
// require taking the square root of a non-positive number).
func choleskyDecompose(cov [][]float64) ([][]float64, error) {
	n := len(cov)
	L := make([][]float64, n)
	for i := range L {
		L[i] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			var sum float64
			for k := 0; k < j; k++ {
				sum += L[i][k] * L[j][k]
			}
			if i == j {
				diag := cov[i][i] - sum
				if diag <= 0 {
					return nil, errors.New("anomaly: covariance matrix is not positive-definite")
				}
				L[i][j] = math.Sqrt(diag)
			} else {
				L[i][j] = (cov[i][j] - sum) / L[j][j]
			}
		}
	}
	return L, nil
}

// invertLowerTriangular inverts lower-triangular L via forward
// substitution, one column of the identity matrix at a time.
func invertLowerTriangular(L [][]float64) ([][]float64, error) {
	n := len(L)
	inv := make([][]float64, n)
	for i := range inv {
		inv[i] = make([]float64, n)
	}

	for col := 0; col < n; col++ {
		for i := 0; i < n; i++ {
			if L[i][i] == 0 {
				return nil, errors.New("anomaly: singular lower-triangular matrix")
			}
			var sum float64
			for k := 0; k < i; k++ {
				sum += L[i][k] * inv[k][col]
			}
			rhs := 0.0
			if i == col {
				rhs = 1.0
			}
			inv[i][col] = (rhs - sum) / L[i][i]
		}
	}
	return inv, nil
}
