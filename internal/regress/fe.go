package regress

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Variance estimators of the fixed effects model
const (
	IID  = "iid"
	CRV1 = "CRV1"
)

const (
	demeanTol     = 1e-10
	demeanMaxIter = 10000
)

// FEResult is a fitted fixed effects model
type FEResult struct {
	Formula      string        `json:"formula"`
	VCov         string        `json:"vcov"`
	Coefficients []Coefficient `json:"coefficients"`
	N            int           `json:"n"`
	Units        int           `json:"units"`
	Years        int           `json:"years"`
	DF           int           `json:"df"`
	R2Within     float64       `json:"r2_within"`
}

// FixedEffects regresses Y on X absorbing unit and year effects. Rows with a
// missing value are dropped. vcov is CRV1 (clustered by unit) or iid; the
// empty string means CRV1.
func FixedEffects(obs []Observation, names []string, vcov string) (*FEResult, error) {
	switch {
	case vcov == "", strings.EqualFold(vcov, CRV1):
		vcov = CRV1
	case strings.EqualFold(vcov, IID):
		vcov = IID
	default:
		return nil, fmt.Errorf("unknown vcov %s", vcov)
	}

	rows := make([]Observation, 0, len(obs))
	for _, o := range obs {
		if len(o.X) != len(names) {
			return nil, fmt.Errorf("observation %s/%d has %d covariates, expected %d", o.Unit, o.Year, len(o.X), len(names))
		}
		if o.complete() {
			rows = append(rows, o)
		}
	}

	n, k := len(rows), len(names)
	units, unitIdx := groups(rows, func(o Observation) string { return o.Unit })
	years, yearIdx := groups(rows, func(o Observation) string { return fmt.Sprint(o.Year) })

	// column 0 holds y, columns 1..k the covariates
	cols := make([][]float64, k+1)
	for j := range cols {
		cols[j] = make([]float64, n)
	}
	for i, o := range rows {
		cols[0][i] = o.Y
		for j, v := range o.X {
			cols[j+1][i] = v
		}
	}
	for _, c := range cols {
		demean(c, [][]int{unitIdx, yearIdx}, []int{units, years})
	}

	if n <= k || k == 0 {
		return nil, ErrSingular
	}
	x := mat.NewDense(n, k, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < k; j++ {
			x.Set(i, j, cols[j+1][i])
		}
	}
	y := cols[0]

	beta, inv, err := normal(x, y, nil)
	if err != nil {
		return nil, err
	}

	resid := make([]float64, n)
	var rss, tss float64
	for i := 0; i < n; i++ {
		fit := 0.0
		for j := 0; j < k; j++ {
			fit += x.At(i, j) * beta.AtVec(j)
		}
		resid[i] = y[i] - fit
		rss += resid[i] * resid[i]
		tss += y[i] * y[i]
	}

	res := &FEResult{
		VCov:  vcov,
		N:     n,
		Units: units,
		Years: years,
	}
	if tss > 0 {
		res.R2Within = 1 - rss/tss
	}

	var cov *mat.Dense
	switch vcov {
	case IID:
		res.DF = n - k - (units + years - 1)
		if res.DF <= 0 {
			return nil, ErrSingular
		}
		cov = mat.DenseCopyOf(inv)
		cov.Scale(rss/float64(res.DF), cov)
	case CRV1:
		if units < 2 {
			return nil, fmt.Errorf("clustered variance needs at least two units, got %d", units)
		}
		res.DF = units - 1
		cov = clustered(x, resid, unitIdx, units, inv)
		// unit effects are nested in the clusters and not counted
		kAdj := k + years - 1
		if n-kAdj <= 0 {
			return nil, ErrSingular
		}
		g := float64(units)
		cov.Scale(g/(g-1)*float64(n-1)/float64(n-kAdj), cov)
	}

	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(res.DF)}
	for j, name := range names {
		c := Coefficient{Name: name, Estimate: beta.AtVec(j), StdErr: math.Sqrt(cov.At(j, j))}
		c.Stat = c.Estimate / c.StdErr
		c.P = 2 * dist.Survival(math.Abs(c.Stat))
		res.Coefficients = append(res.Coefficients, c)
	}
	return res, nil
}

// clustered computes the sandwich B (Σ_g X_g'e_g e_g'X_g) B without small
// sample correction
func clustered(x *mat.Dense, resid []float64, cluster []int, clusters int, bread *mat.SymDense) *mat.Dense {
	n, k := x.Dims()
	scores := mat.NewDense(clusters, k, nil)
	for i := 0; i < n; i++ {
		row := scores.RawRowView(cluster[i])
		for j := 0; j < k; j++ {
			row[j] += x.At(i, j) * resid[i]
		}
	}

	var meat mat.SymDense
	meat.SymOuterK(1, scores.T())

	var tmp, cov mat.Dense
	tmp.Mul(bread, &meat)
	cov.Mul(&tmp, bread)
	return &cov
}

// groups assigns every row the index of its group, in order of the sorted
// group keys
func groups(rows []Observation, key func(Observation) string) (int, []int) {
	var keys []string
	seen := map[string]bool{}
	for _, o := range rows {
		k := key(o)
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	pos := make(map[string]int, len(keys))
	for i, k := range keys {
		pos[k] = i
	}

	idx := make([]int, len(rows))
	for i, o := range rows {
		idx[i] = pos[key(o)]
	}
	return len(keys), idx
}

// demean removes the group means of every factor from v by alternating
// projections until no value moves more than demeanTol
func demean(v []float64, factors [][]int, levels []int) {
	sums := make([][]float64, len(factors))
	counts := make([][]float64, len(factors))
	for f, idx := range factors {
		sums[f] = make([]float64, levels[f])
		counts[f] = make([]float64, levels[f])
		for _, g := range idx {
			counts[f][g]++
		}
	}

	for iter := 0; iter < demeanMaxIter; iter++ {
		delta := 0.0
		for f, idx := range factors {
			s, c := sums[f], counts[f]
			for g := range s {
				s[g] = 0
			}
			for i, g := range idx {
				s[g] += v[i]
			}
			for i, g := range idx {
				m := s[g] / c[g]
				v[i] -= m
				delta = math.Max(delta, math.Abs(m))
			}
		}
		if delta <= demeanTol {
			return
		}
	}
}
