// Package regress fits the panel models: a linear model with unit and year
// fixed effects and a Poisson GLM on log covariates with year dummies.
package regress

import (
	"encoding/json"
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrSingular is returned when the normal equations cannot be solved
var ErrSingular = errors.New("singular design matrix")

// maxCond is the largest condition number of X'X still considered solvable
const maxCond = 1e12

// Coefficient is one estimated parameter. Stat is t for the linear model and
// z for the Poisson model.
type Coefficient struct {
	Name     string  `json:"name"`
	Estimate float64 `json:"estimate"`
	StdErr   float64 `json:"std_error"`
	Stat     float64 `json:"statistic"`
	P        float64 `json:"p_value"`
}

// MarshalJSON writes non-finite values as null
func (c Coefficient) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name     string   `json:"name"`
		Estimate *float64 `json:"estimate"`
		StdErr   *float64 `json:"std_error"`
		Stat     *float64 `json:"statistic"`
		P        *float64 `json:"p_value"`
	}{c.Name, finite(c.Estimate), finite(c.StdErr), finite(c.Stat), finite(c.P)})
}

// Observation is one panel row. X lines up with the covariate names handed
// to the fitter.
type Observation struct {
	Unit string
	Year int
	Y    float64
	X    []float64
}

func (o Observation) complete() bool {
	if math.IsNaN(o.Y) || math.IsInf(o.Y, 0) {
		return false
	}
	for _, v := range o.X {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// normal solves the weighted normal equations (X'WX) b = X'Wz. A nil w
// means unit weights. It also returns the inverse of X'WX.
func normal(x *mat.Dense, z, w []float64) (*mat.VecDense, *mat.SymDense, error) {
	n, k := x.Dims()
	if n <= k {
		return nil, nil, ErrSingular
	}

	xw := mat.DenseCopyOf(x)
	zw := make([]float64, n)
	for i := 0; i < n; i++ {
		s := 1.0
		if w != nil {
			s = math.Sqrt(w[i])
		}
		zw[i] = z[i] * s
		if s != 1 {
			row := xw.RawRowView(i)
			for j := range row {
				row[j] *= s
			}
		}
	}

	var xtx mat.SymDense
	xtx.SymOuterK(1, xw.T())

	var chol mat.Cholesky
	if ok := chol.Factorize(&xtx); !ok || chol.Cond() > maxCond {
		return nil, nil, ErrSingular
	}

	var xtz mat.VecDense
	xtz.MulVec(xw.T(), mat.NewVecDense(n, zw))

	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, &xtz); err != nil {
		return nil, nil, ErrSingular
	}
	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return nil, nil, ErrSingular
	}
	return &beta, &inv, nil
}

// finite maps NaN and ±Inf to nil so results stay encodable as JSON
func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
