// Package estimator provides the slippage and maker/taker predictors used by
// the cost simulation pipeline. Each predictor is a tagged variant: either a
// fitted statistical model over standardized features or a deterministic
// heuristic fallback that needs no training data.
package estimator

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// minFitSamples is the smallest training set a Fit call accepts; fewer
// samples leaves the estimator on its heuristic (a logged no-op, not an
// error).
const minFitSamples = 10

// RegressionType selects the slippage regressor.
type RegressionType string

const (
	RegressionLinear   RegressionType = "linear"
	RegressionQuantile RegressionType = "quantile"
)

// scaler standardizes feature columns to zero mean and unit variance.
type scaler struct {
	mean []float64
	std  []float64
}

func fitScaler(X [][]float64) *scaler {
	n := len(X)
	p := len(X[0])
	s := &scaler{mean: make([]float64, p), std: make([]float64, p)}

	for j := 0; j < p; j++ {
		var sum float64
		for i := 0; i < n; i++ {
			sum += X[i][j]
		}
		s.mean[j] = sum / float64(n)

		var ss float64
		for i := 0; i < n; i++ {
			d := X[i][j] - s.mean[j]
			ss += d * d
		}
		s.std[j] = math.Sqrt(ss / float64(n))
		if s.std[j] == 0 {
			s.std[j] = 1
		}
	}
	return s
}

func (s *scaler) transform(x []float64) []float64 {
	out := make([]float64, len(x))
	for j, v := range x {
		out[j] = (v - s.mean[j]) / s.std[j]
	}
	return out
}

func (s *scaler) transformAll(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		out[i] = s.transform(row)
	}
	return out
}

// designMatrix prepends an intercept column.
func designMatrix(X [][]float64) *mat.Dense {
	n := len(X)
	p := len(X[0])
	A := mat.NewDense(n, p+1, nil)
	for i, row := range X {
		A.Set(i, 0, 1)
		for j, v := range row {
			A.Set(i, j+1, v)
		}
	}
	return A
}

// predict evaluates intercept + weights on a standardized feature vector.
func predict(weights, x []float64) float64 {
	out := weights[0]
	for j, v := range x {
		out += weights[j+1] * v
	}
	return out
}

// solveOLS fits ordinary least squares via QR decomposition and returns the
// weight vector [intercept, coef...].
func solveOLS(X [][]float64, y []float64) ([]float64, error) {
	A := designMatrix(X)
	b := mat.NewVecDense(len(y), y)

	var qr mat.QR
	qr.Factorize(A)

	_, cols := A.Dims()
	w := mat.NewVecDense(cols, nil)
	if err := qr.SolveVecTo(w, false, b); err != nil {
		return nil, fmt.Errorf("least squares solve: %w", err)
	}
	return append([]float64(nil), w.RawVector().Data...), nil
}

// solveQuantile fits a quantile regressor by iteratively reweighted least
// squares on the pinball loss.
func solveQuantile(X [][]float64, y []float64, quantile float64) ([]float64, error) {
	const (
		maxIter = 200
		tol     = 1e-8
		eps     = 1e-6
	)

	weights, err := solveOLS(X, y)
	if err != nil {
		return nil, err
	}

	n := len(X)
	for iter := 0; iter < maxIter; iter++ {
		w := make([]float64, n)
		for i, row := range X {
			r := y[i] - predict(weights, row)
			q := quantile
			if r < 0 {
				q = 1 - quantile
			}
			w[i] = q / math.Max(math.Abs(r), eps)
		}

		next, err := solveWeightedOLS(X, y, w)
		if err != nil {
			return nil, err
		}

		var delta float64
		for j := range next {
			delta += math.Abs(next[j] - weights[j])
		}
		weights = next
		if delta < tol {
			break
		}
	}
	return weights, nil
}

// solveLogistic fits a logistic classifier by iteratively reweighted least
// squares (Newton's method). Labels must be 0 or 1.
func solveLogistic(X [][]float64, y []float64) ([]float64, error) {
	const (
		maxIter = 100
		tol     = 1e-8
		eps     = 1e-9
	)

	n := len(X)
	p := len(X[0]) + 1
	weights := make([]float64, p)

	for iter := 0; iter < maxIter; iter++ {
		w := make([]float64, n)
		z := make([]float64, n)
		for i, row := range X {
			eta := predict(weights, row)
			mu := sigmoid(eta)
			v := mu * (1 - mu)
			if v < eps {
				v = eps
			}
			w[i] = v
			z[i] = eta + (y[i]-mu)/v
		}

		next, err := solveWeightedOLS(X, z, w)
		if err != nil {
			return nil, err
		}

		var delta float64
		for j := range next {
			delta += math.Abs(next[j] - weights[j])
		}
		weights = next
		if delta < tol {
			break
		}
	}
	return weights, nil
}

// solveWeightedOLS solves (A'WA) beta = A'Wy for diagonal weights.
func solveWeightedOLS(X [][]float64, y, w []float64) ([]float64, error) {
	A := designMatrix(X)
	rows, cols := A.Dims()

	// Scale rows by sqrt(w) and solve the plain least squares problem.
	scaled := mat.NewDense(rows, cols, nil)
	b := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		s := math.Sqrt(w[i])
		for j := 0; j < cols; j++ {
			scaled.Set(i, j, A.At(i, j)*s)
		}
		b.SetVec(i, y[i]*s)
	}

	var qr mat.QR
	qr.Factorize(scaled)
	out := mat.NewVecDense(cols, nil)
	if err := qr.SolveVecTo(out, false, b); err != nil {
		return nil, fmt.Errorf("weighted least squares solve: %w", err)
	}
	return append([]float64(nil), out.RawVector().Data...), nil
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
