package linalg

import (
	"math"
	"math/rand"

	"github.com/quantrisk/risk-engine/pkg/utils/errors"
)

const (
	eigenTolerance     = 1e-6
	eigenMaxIterations = 100
)

// EigenPair is one extracted eigenvalue/eigenvector. Converged is false
// when power iteration hit the iteration cap; the last iterate is still
// returned because an approximate component remains useful.
type EigenPair struct {
	Eigenvalue  float64
	Eigenvector []float64
	Converged   bool
}

// SymmetricEigen extracts the top-k eigenpairs of a symmetric matrix by
// power iteration with deflation. Eigenvectors are mutually orthogonal to
// numerical tolerance. Near-degenerate top eigenvalues may not converge
// within the iteration cap; that is reported, not treated as an error.
func SymmetricEigen(m [][]float64, k int, rng *rand.Rand) ([]EigenPair, error) {
	n := len(m)
	if n == 0 {
		return nil, errors.Validation("matrix", "cannot decompose an empty matrix")
	}
	for i := range m {
		if len(m[i]) != n {
			return nil, errors.Validationf("matrix", "row %d has %d columns, expected %d", i, len(m[i]), n)
		}
	}
	if k <= 0 || k > n {
		k = n
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	pairs := make([]EigenPair, 0, k)
	for c := 0; c < k; c++ {
		pair := powerIterate(m, pairs, rng)
		pairs = append(pairs, pair)
	}
	return pairs, nil
}

// powerIterate finds the dominant eigenpair of m orthogonal to all
// previously found eigenvectors
func powerIterate(m [][]float64, found []EigenPair, rng *rand.Rand) EigenPair {
	n := len(m)

	// Random unit start vector, deflated against prior components
	v := make([]float64, n)
	for i := range v {
		v[i] = rng.Float64() - 0.5
	}
	deflate(v, found)
	normalize(v)

	converged := false
	for iter := 0; iter < eigenMaxIterations; iter++ {
		next := MultiplyVector(m, v)
		deflate(next, found)
		if norm(next) == 0 {
			// The residual space is annihilated by m; the eigenvalue is 0
			// and the current iterate is as good a basis vector as any
			break
		}
		normalize(next)

		delta := 0.0
		for i := range next {
			// Sign-insensitive change measure: v and -v are the same axis
			d := math.Abs(next[i]) - math.Abs(v[i])
			delta += d * d
		}
		v = next
		if math.Sqrt(delta) < eigenTolerance {
			converged = true
			break
		}
	}

	return EigenPair{
		Eigenvalue:  rayleighQuotient(m, v),
		Eigenvector: v,
		Converged:   converged,
	}
}

// deflate removes the components of v along already-found eigenvectors
func deflate(v []float64, found []EigenPair) {
	for _, p := range found {
		proj := dot(v, p.Eigenvector)
		for i := range v {
			v[i] -= proj * p.Eigenvector[i]
		}
	}
}

// rayleighQuotient computes v^T*m*v / v^T*v
func rayleighQuotient(m [][]float64, v []float64) float64 {
	mv := MultiplyVector(m, v)
	denom := dot(v, v)
	if denom == 0 {
		return 0
	}
	return dot(v, mv) / denom
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func norm(v []float64) float64 {
	return math.Sqrt(dot(v, v))
}

func normalize(v []float64) {
	n := norm(v)
	if n == 0 {
		return
	}
	for i := range v {
		v[i] /= n
	}
}
