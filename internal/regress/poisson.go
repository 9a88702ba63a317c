package regress

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	poissonTol     = 1e-8
	poissonMaxIter = 100
)

// Intercept names the constant column of the Poisson design
const Intercept = "Intercept"

// PoissonResult is a fitted Poisson GLM with log link
type PoissonResult struct {
	Formula      string        `json:"formula"`
	Coefficients []Coefficient `json:"coefficients"`
	N            int           `json:"n"`
	Deviance     float64       `json:"deviance"`
	NullDeviance float64       `json:"null_deviance"`
	LogLik       float64       `json:"log_likelihood"`
	Iterations   int           `json:"iterations"`
	Converged    bool          `json:"converged"`
}

// Log is the covariate transform of the Poisson model; x <= 0 has no
// logarithm and becomes NaN.
func Log(x float64) float64 {
	if x <= 0 {
		return math.NaN()
	}
	return math.Log(x)
}

// PoissonDesign builds y ~ 1 + ln(x...) + C(year). Rows with a missing or
// non-positive covariate are dropped; the first remaining year is the
// reference level of the year dummies.
func PoissonDesign(obs []Observation, names []string) ([]float64, *mat.Dense, []string, error) {
	var rows []Observation
	for _, o := range obs {
		if len(o.X) != len(names) {
			return nil, nil, nil, fmt.Errorf("observation %s/%d has %d covariates, expected %d", o.Unit, o.Year, len(o.X), len(names))
		}
		lx := make([]float64, len(o.X))
		for j, v := range o.X {
			lx[j] = Log(v)
		}
		r := Observation{Unit: o.Unit, Year: o.Year, Y: o.Y, X: lx}
		if r.complete() {
			rows = append(rows, r)
		}
	}
	if len(rows) == 0 {
		return nil, nil, nil, ErrSingular
	}

	var years []int
	seen := map[int]bool{}
	for _, r := range rows {
		if !seen[r.Year] {
			seen[r.Year] = true
			years = append(years, r.Year)
		}
	}
	sort.Ints(years)
	dummy := make(map[int]int, len(years))
	for i, y := range years[1:] {
		dummy[y] = i
	}

	cols := []string{Intercept}
	for _, n := range names {
		cols = append(cols, fmt.Sprintf("ln(%s)", n))
	}
	for _, y := range years[1:] {
		cols = append(cols, fmt.Sprintf("C(year)[%d]", y))
	}

	k := len(cols)
	x := mat.NewDense(len(rows), k, nil)
	y := make([]float64, len(rows))
	for i, r := range rows {
		y[i] = r.Y
		x.Set(i, 0, 1)
		for j, v := range r.X {
			x.Set(i, 1+j, v)
		}
		if d, ok := dummy[r.Year]; ok {
			x.Set(i, 1+len(names)+d, 1)
		}
	}
	return y, x, cols, nil
}

// Poisson fits y on the design x by iteratively reweighted least squares
func Poisson(y []float64, x *mat.Dense, names []string) (*PoissonResult, error) {
	n, k := x.Dims()
	if len(y) != n || len(names) != k {
		return nil, fmt.Errorf("%d outcomes and %d names for a %dx%d design", len(y), len(names), n, k)
	}

	var mean float64
	for _, v := range y {
		if v < 0 || math.IsNaN(v) {
			return nil, fmt.Errorf("poisson outcome must be non-negative, got %v", v)
		}
		mean += v
	}
	mean /= float64(n)
	if mean == 0 {
		return nil, fmt.Errorf("poisson outcome is zero everywhere")
	}

	mu := make([]float64, n)
	eta := make([]float64, n)
	for i, v := range y {
		mu[i] = (v + mean) / 2
		eta[i] = math.Log(mu[i])
	}

	res := &PoissonResult{N: n}
	dev := deviance(y, mu)
	z := make([]float64, n)
	var beta *mat.VecDense
	for res.Iterations < poissonMaxIter {
		res.Iterations++
		for i := range z {
			z[i] = eta[i] + (y[i]-mu[i])/mu[i]
		}
		b, _, err := normal(x, z, mu)
		if err != nil {
			return nil, err
		}
		beta = b

		var fit mat.VecDense
		fit.MulVec(x, beta)
		for i := range eta {
			eta[i] = fit.AtVec(i)
			mu[i] = math.Exp(eta[i])
		}

		old := dev
		dev = deviance(y, mu)
		if math.Abs(dev-old) <= poissonTol+poissonTol*math.Abs(old) {
			res.Converged = true
			break
		}
	}

	// covariance at the final fit
	_, inv, err := normal(x, eta, mu)
	if err != nil {
		return nil, err
	}

	res.Deviance = dev
	null := make([]float64, n)
	for i := range null {
		null[i] = mean
	}
	res.NullDeviance = deviance(y, null)
	for i, v := range y {
		lg, _ := math.Lgamma(v + 1)
		res.LogLik += v*math.Log(mu[i]) - mu[i] - lg
	}

	for j, name := range names {
		c := Coefficient{Name: name, Estimate: beta.AtVec(j), StdErr: math.Sqrt(inv.At(j, j))}
		c.Stat = c.Estimate / c.StdErr
		c.P = 2 * distuv.UnitNormal.Survival(math.Abs(c.Stat))
		res.Coefficients = append(res.Coefficients, c)
	}
	return res, nil
}

func deviance(y, mu []float64) float64 {
	var d float64
	for i, v := range y {
		if v > 0 {
			d += v * math.Log(v/mu[i])
		}
		d -= v - mu[i]
	}
	return 2 * d
}
