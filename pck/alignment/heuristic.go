package alignment

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/jtomasevic/treemine/pck/observability"
	"github.com/jtomasevic/treemine/pck/petri_net"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

var (
	errSolverPanic = errors.New("lp solver panicked")
	errLPBudget    = errors.New("lp solver ran out of budget")
)

const (
	lpTolerance   = 1e-9
	intTolerance  = 1e-6
	rankTolerance = 1e-9
	// lpColumnReadsPerVar bounds the column reads of one solve per variable.
	lpColumnReadsPerVar = 24
)

// lpHeuristic estimates the remaining cost with the marking equation:
// minimize c·x subject to m + C·x = final on the trace rows and, for full
// alignments, on the model rows too. Prefix alignments only ask the model
// rows to stay non-negative.
type lpHeuristic struct {
	pr     *product
	prefix bool
	final  petri_net.Marking
	costs  []float64
	// bigM prices a unit of unmet marking equation.
	bigM float64
	// inc[p][t] is the product incidence matrix
	inc [][]float64
}

type estimate struct {
	h int
	// x is the firing vector when the solution is integral, nil otherwise.
	x []float64
}

func newLPHeuristic(pr *product, final petri_net.Marking, prefix bool) *lpHeuristic {
	lh := &lpHeuristic{pr: pr, prefix: prefix, final: final}
	nT := len(pr.transitions)
	lh.costs = make([]float64, nT)
	lh.inc = make([][]float64, pr.numPlaces())
	for p := range lh.inc {
		lh.inc[p] = make([]float64, nT)
	}
	lh.bigM = 1
	for _, t := range pr.transitions {
		lh.costs[t.id] = float64(t.cost)
		lh.bigM += float64(t.cost)
		for p, v := range pr.column(t) {
			lh.inc[p][t.id] = float64(v)
		}
	}
	return lh
}

func (lh *lpHeuristic) solve(ctx context.Context, deadline time.Time, m petri_net.Marking) estimate {
	if expired(ctx, deadline) {
		observability.LPSolvesTotal.WithLabelValues("interrupted").Inc()
		return estimate{}
	}
	nT := len(lh.pr.transitions)
	nVars := nT
	if lh.prefix {
		nVars += lh.pr.offset
	}

	rows := make([][]float64, 0, len(lh.inc))
	rhs := make([]float64, 0, len(lh.inc))
	for p, inc := range lh.inc {
		row := make([]float64, nVars)
		var b float64
		if lh.prefix && p < lh.pr.offset {
			for t, v := range inc {
				row[t] = -v
			}
			row[nT+p] = 1
			b = float64(m[p])
		} else {
			copy(row, inc)
			b = float64(lh.final[p] - m[p])
		}
		if b < 0 {
			for i := range row {
				row[i] = -row[i]
			}
			b = -b
		}
		rows = append(rows, row)
		rhs = append(rhs, b)
	}

	rows, rhs = independentRows(rows, rhs)
	if len(rows) == 0 {
		observability.LPSolvesTotal.WithLabelValues("trivial").Inc()
		return estimate{h: 0, x: make([]float64, nT)}
	}

	var cols []int
	for j := 0; j < nVars; j++ {
		for _, r := range rows {
			if r[j] != 0 {
				cols = append(cols, j)
				break
			}
		}
	}

	// Every row gets an artificial column priced at bigM, so the identity is
	// a feasible starting basis. The penalized program relaxes the original
	// one and its optimum stays a lower bound.
	nRows, nCols := len(rows), len(cols)+len(rows)
	data := make([]float64, 0, nRows*nCols)
	for i, r := range rows {
		for _, j := range cols {
			data = append(data, r[j])
		}
		for k := range rows {
			if k == i {
				data = append(data, 1)
			} else {
				data = append(data, 0)
			}
		}
	}
	c := make([]float64, nCols)
	basis := make([]int, nRows)
	for i, j := range cols {
		if j < nT {
			c[i] = lh.costs[j]
		}
	}
	for k := range rows {
		c[len(cols)+k] = lh.bigM
		basis[k] = len(cols) + k
	}

	a := &boundedMatrix{
		m:        mat.NewDense(nRows, nCols, data),
		ctx:      ctx,
		deadline: deadline,
		limit:    lpColumnReadsPerVar * nCols,
	}
	opt, sol, err := simplex(c, a, rhs, basis)
	switch {
	case errors.Is(err, errLPBudget):
		observability.LPSolvesTotal.WithLabelValues("interrupted").Inc()
		return estimate{}
	case err != nil:
		observability.LPSolvesTotal.WithLabelValues("failed").Inc()
		return estimate{}
	}
	observability.LPSolvesTotal.WithLabelValues("solved").Inc()

	h := int(math.Ceil(opt - intTolerance))
	if h < 0 {
		h = 0
	}
	for k := range rows {
		if sol[len(cols)+k] > intTolerance {
			return estimate{h: h}
		}
	}
	x := make([]float64, nT)
	for i, j := range cols {
		if j >= nT {
			continue
		}
		v := sol[i]
		if v < -intTolerance || math.Abs(v-math.Round(v)) > intTolerance {
			return estimate{h: h}
		}
		x[j] = math.Round(v)
	}
	return estimate{h: h, x: x}
}

// simplex guards the solver: any failure leaves the caller with h = 0.
func simplex(c []float64, a mat.Matrix, b []float64, basis []int) (opt float64, x []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok && errors.Is(e, errLPBudget) {
				err = errLPBudget
				return
			}
			err = errSolverPanic
		}
	}()
	return lp.Simplex(c, a, b, lpTolerance, basis)
}

// boundedMatrix hands the constraint matrix to the solver column by column
// and stops it once the read budget or the deadline is spent. Each pivot
// reads at least one column.
type boundedMatrix struct {
	m        *mat.Dense
	ctx      context.Context
	deadline time.Time
	reads    int
	limit    int
}

func (b *boundedMatrix) Dims() (int, int) { return b.m.Dims() }

func (b *boundedMatrix) T() mat.Matrix { return mat.Transpose{Matrix: b} }

func (b *boundedMatrix) At(i, j int) float64 {
	if i == 0 {
		b.reads++
		if b.reads > b.limit || expired(b.ctx, b.deadline) {
			panic(errLPBudget)
		}
	}
	return b.m.At(i, j)
}

func expired(ctx context.Context, deadline time.Time) bool {
	return ctx.Err() != nil || (!deadline.IsZero() && time.Now().After(deadline))
}

// independentRows drops rows that are linear combinations of earlier ones.
// Dropping a row only relaxes the program, so the bound stays admissible.
func independentRows(rows [][]float64, rhs []float64) ([][]float64, []float64) {
	var basis [][]float64
	var outRows [][]float64
	var outRHS []float64
	for i, r := range rows {
		norm := dot(r, r)
		if norm == 0 {
			continue
		}
		v := append([]float64(nil), r...)
		for _, q := range basis {
			d := dot(v, q)
			for k := range v {
				v[k] -= d * q[k]
			}
		}
		n := math.Sqrt(dot(v, v))
		if n <= rankTolerance*math.Sqrt(norm) {
			continue
		}
		for k := range v {
			v[k] /= n
		}
		basis = append(basis, v)
		outRows = append(outRows, r)
		outRHS = append(outRHS, rhs[i])
	}
	return outRows, outRHS
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
