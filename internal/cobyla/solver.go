package cobyla

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Step-control constants from Powell's paper.
const (
	alphaSig = 0.25
	betaEta  = 2.1
	gammaDx  = 0.5
	deltaEdg = 1.1
)

// solver holds the state of one Minimize call. All geometry lives in the
// scaled variables u = x / rhobeg.
type solver struct {
	fn     Func
	n, m   int
	scale  []float64
	opts   Options
	logger *slog.Logger
	start  time.Time

	nfvals   int
	rho      float64
	havePole bool

	// sim is n x (n+1) row-major: columns 0..n-1 are displacements from the
	// pole, column n is the pole itself.
	sim []float64
	// simi is the n x n inverse of the leading block of sim.
	simi []float64
	// datmat is (m+2) x (n+1): rows 0..m-1 constraints, row m objective,
	// row m+1 max violation, one column per vertex.
	datmat []float64
	// a is (m+1) x n: row k is the gradient of constraint k, row m minus the
	// objective gradient.
	a []float64

	simM, simiM, prod *mat.Dense
	lead              mat.Matrix

	x, con, dx, w      []float64
	vsig, veta, sigbar []float64
	xbuf               []float64
	tr                 trWork
	stopX, stopCost    []float64
}

func newSolver(fn Func, x0 []float64, m int, opts Options) *solver {
	n := len(x0)
	np := n + 1
	s := &solver{
		fn:     fn,
		n:      n,
		m:      m,
		scale:  append([]float64(nil), opts.RhoBeg...),
		opts:   opts,
		logger: opts.Logger,
		start:  time.Now(),
		sim:    make([]float64, n*np),
		simi:   make([]float64, n*n),
		datmat: make([]float64, (m+2)*np),
		a:      make([]float64, (m+1)*n),
		x:      make([]float64, n),
		con:    make([]float64, m+2),
		dx:     make([]float64, n),
		w:      make([]float64, n),
		vsig:   make([]float64, n),
		veta:   make([]float64, n),
		sigbar: make([]float64, n),
		xbuf:   make([]float64, n),
		tr:     newTrWork(n, m),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	floats.DivTo(s.x, x0, s.scale)

	s.simM = mat.NewDense(n, np, s.sim)
	s.simiM = mat.NewDense(n, n, s.simi)
	s.lead = s.simM.Slice(0, n, 0, n)
	s.prod = mat.NewDense(n, n, nil)
	return s
}

// evaluate calls the user function at the scaled point u, filling con[0:m]
// with the constraint values. A non-running code means the run must stop
// before (or instead of) using the values.
func (s *solver) evaluate(u []float64) (float64, Code, error) {
	if s.opts.MaxEval > 0 && s.nfvals >= s.opts.MaxEval && s.nfvals > 0 {
		return 0, MaxEvalReached, nil
	}
	if s.opts.MaxTime > 0 && s.nfvals > 0 && time.Since(s.start) >= s.opts.MaxTime {
		return 0, MaxTimeReached, nil
	}
	s.nfvals++

	floats.MulTo(s.xbuf, u, s.scale)
	x := append([]float64(nil), s.xbuf...)
	cost, err := s.fn(x)
	if err != nil {
		if errors.Is(err, ErrForcedStop) {
			return 0, ForcedStop, nil
		}
		return 0, Failure, err
	}
	if len(cost) != s.m+1 {
		return 0, Failure, fmt.Errorf("cobyla: cost vector has %d entries, want %d", len(cost), s.m+1)
	}
	for _, v := range cost {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, Failure, nil
		}
	}
	copy(s.con[:s.m], cost[1:])
	return cost[0], running, nil
}

// simplexError returns max |SIMI*SIM - I| over the leading block.
func (s *solver) simplexError() float64 {
	s.prod.Mul(s.simiM, s.lead)
	var worst float64
	for i := 0; i < s.n; i++ {
		for j := 0; j < s.n; j++ {
			v := s.prod.At(i, j)
			if i == j {
				v--
			}
			worst = math.Max(worst, math.Abs(v))
		}
	}
	return worst
}

// poleMoved applies the ftol/xtol tests to a pole change from (xOld, fOld)
// to (xNew, fNew), both in scaled variables.
func (s *solver) poleMoved(xOld, xNew []float64, fOld, fNew float64) Code {
	if relStop(fOld, fNew, s.opts.FtolRel, s.opts.FtolAbs) {
		return FtolReached
	}
	if s.opts.XtolRel <= 0 && len(s.opts.XtolAbs) == 0 {
		return running
	}
	for i := range xOld {
		var abs float64
		if len(s.opts.XtolAbs) > 0 {
			abs = s.opts.XtolAbs[i]
		}
		if !relStop(xOld[i]*s.scale[i], xNew[i]*s.scale[i], s.opts.XtolRel, abs) {
			return running
		}
	}
	return XtolReached
}

func (s *solver) result(code Code) Result {
	n, m, np := s.n, s.m, s.n+1
	res := Result{Code: code, Evals: s.nfvals, Rho: s.rho}
	switch {
	case s.stopX != nil:
		res.X = s.stopX
		res.Cost = s.stopCost
	case s.havePole:
		res.X = make([]float64, n)
		for i := 0; i < n; i++ {
			res.X[i] = s.sim[i*np+n] * s.scale[i]
		}
		res.Cost = make([]float64, m+1)
		res.Cost[0] = s.datmat[m*np+n]
		for k := 0; k < m; k++ {
			res.Cost[k+1] = s.datmat[k*np+n]
		}
	default:
		res.X = make([]float64, n)
		floats.MulTo(res.X, s.x, s.scale)
	}
	return res
}

// cobylb is the main iteration. Labels follow the structure of Powell's
// routine; every variable is declared up front so the jumps stay legal.
func (s *solver) cobylb() (Code, error) {
	var (
		n, m   = s.n, s.m
		np     = n + 1
		obj    = m     // datmat row of the objective
		viol   = m + 1 // datmat row of the max violation
		nrow   = m + 2
		sim    = s.sim
		simi   = s.simi
		datmat = s.datmat
		a      = s.a
		x      = s.x
		con    = s.con
		dx     = s.dx
		w      = s.w
		vsig   = s.vsig
		veta   = s.veta
		sigbar = s.sigbar
		rhoend = s.opts.RhoEnd

		rho, parmu, f, resmax, temp, sum                    float64
		phimin, phi, parsig, pareta, cvmaxp, cvmaxm, dxsign float64
		resnew, barmu, prerec, prerem, vmold, vmnew, trured float64
		ratio, edgmax, errMax                               float64
		jdrop, nbest, l, ibrnch, iflag, ifull               int
		code                                                Code
		err                                                 error
		poleOld                                             = make([]float64, n)
	)

	rho = 1
	s.rho = rho
	for i := 0; i < n; i++ {
		sim[i*np+n] = x[i]
		sim[i*np+i] = rho
		simi[i*n+i] = 1 / rho
	}
	jdrop = n
	ibrnch = 0

L40:
	f, code, err = s.evaluate(x)
	if code != running {
		goto L600
	}
	resmax = 0
	for k := 0; k < m; k++ {
		resmax = math.Max(resmax, -con[k])
	}
	if s.opts.IPrint >= 3 {
		s.logger.Debug("cobyla evaluation",
			"nfvals", s.nfvals,
			"f", f,
			"resmax", resmax,
			"x", s.xbuf,
		)
	}
	con[obj] = f
	con[viol] = resmax
	if s.opts.UseStopVal && f <= s.opts.StopVal && resmax <= 0 {
		s.stopX = append([]float64(nil), s.xbuf...)
		s.stopCost = make([]float64, m+1)
		s.stopCost[0] = f
		copy(s.stopCost[1:], con[:m])
		code = StopValReached
		goto L600
	}
	if ibrnch == 1 {
		goto L440
	}

	for k := 0; k < nrow; k++ {
		datmat[k*np+jdrop] = con[k]
	}
	s.havePole = true
	if s.nfvals > np {
		goto L130
	}

	// Building the initial simplex: keep the better of the new vertex and
	// the pole in pole position.
	if jdrop < n {
		if datmat[obj*np+n] <= f {
			x[jdrop] = sim[jdrop*np+n]
		} else {
			sim[jdrop*np+n] = x[jdrop]
			for k := 0; k < nrow; k++ {
				datmat[k*np+jdrop] = datmat[k*np+n]
				datmat[k*np+n] = con[k]
			}
			for k := 0; k <= jdrop; k++ {
				sim[jdrop*np+k] = -rho
				t := 0.0
				for i := k; i <= jdrop; i++ {
					t -= simi[i*n+k]
				}
				simi[jdrop*n+k] = t
			}
		}
	}
	if s.nfvals <= n {
		jdrop = s.nfvals - 1
		x[jdrop] += rho
		goto L40
	}

L130:
	ibrnch = 1

L140:
	// Identify the optimal vertex under the merit function.
	phimin = datmat[obj*np+n] + parmu*datmat[viol*np+n]
	nbest = n
	for j := 0; j < n; j++ {
		t := datmat[obj*np+j] + parmu*datmat[viol*np+j]
		if t < phimin {
			nbest = j
			phimin = t
		} else if t == phimin && parmu == 0 && datmat[viol*np+j] < datmat[viol*np+nbest] {
			nbest = j
		}
	}

	if nbest < n {
		fOld := datmat[obj*np+n]
		for i := 0; i < n; i++ {
			poleOld[i] = sim[i*np+n]
		}
		for i := 0; i < nrow; i++ {
			datmat[i*np+n], datmat[i*np+nbest] = datmat[i*np+nbest], datmat[i*np+n]
		}
		for i := 0; i < n; i++ {
			t := sim[i*np+nbest]
			sim[i*np+nbest] = 0
			sim[i*np+n] += t
			ta := 0.0
			for k := 0; k < n; k++ {
				sim[i*np+k] -= t
				ta -= simi[k*n+i]
			}
			simi[nbest*n+i] = ta
		}
		for i := 0; i < n; i++ {
			w[i] = sim[i*np+n]
		}
		if code = s.poleMoved(poleOld, w, fOld, datmat[obj*np+n]); code != running {
			goto L600
		}
	}

	errMax = s.simplexError()
	if errMax > 0.1 {
		if s.opts.IPrint >= 1 {
			s.logger.Warn("cobyla simplex inverse lost accuracy", "error", errMax, "nfvals", s.nfvals)
		}
		code = RoundoffLimited
		goto L600
	}

	// Linear approximations: constraint gradients in a[0:m], minus the
	// objective gradient in a[m].
	for k := 0; k <= m; k++ {
		con[k] = -datmat[k*np+n]
		for j := 0; j < n; j++ {
			w[j] = datmat[k*np+j] + con[k]
		}
		for i := 0; i < n; i++ {
			t := 0.0
			for j := 0; j < n; j++ {
				t += w[j] * simi[j*n+i]
			}
			if k == m {
				t = -t
			}
			a[k*n+i] = t
		}
	}

	// Simplex acceptability.
	iflag = 1
	parsig = alphaSig * rho
	pareta = betaEta * rho
	for j := 0; j < n; j++ {
		row := simi[j*n : (j+1)*n]
		wsig := floats.Dot(row, row)
		weta := 0.0
		for i := 0; i < n; i++ {
			weta += sim[i*np+j] * sim[i*np+j]
		}
		vsig[j] = 1 / math.Sqrt(wsig)
		veta[j] = math.Sqrt(weta)
		if vsig[j] < parsig || veta[j] > pareta {
			iflag = 0
		}
	}

	if ibrnch == 1 || iflag == 1 {
		goto L370
	}

	// Pick the vertex to drop to restore acceptability.
	jdrop = -1
	temp = pareta
	for j := 0; j < n; j++ {
		if veta[j] > temp {
			jdrop = j
			temp = veta[j]
		}
	}
	if jdrop < 0 {
		for j := 0; j < n; j++ {
			if vsig[j] < temp {
				jdrop = j
				temp = vsig[j]
			}
		}
	}
	if jdrop < 0 {
		code = RoundoffLimited
		goto L600
	}

	temp = gammaDx * rho * vsig[jdrop]
	for i := 0; i < n; i++ {
		dx[i] = temp * simi[jdrop*n+i]
	}
	cvmaxp = 0
	cvmaxm = 0
	for k := 0; k <= m; k++ {
		sum = floats.Dot(a[k*n:(k+1)*n], dx)
		if k < m {
			temp = datmat[k*np+n]
			cvmaxp = math.Max(cvmaxp, -sum-temp)
			cvmaxm = math.Max(cvmaxm, sum-temp)
		}
	}
	dxsign = 1
	if parmu*(cvmaxp-cvmaxm) > sum+sum {
		dxsign = -1
	}

	temp = 0
	for i := 0; i < n; i++ {
		dx[i] *= dxsign
		sim[i*np+jdrop] = dx[i]
		temp += simi[jdrop*n+i] * dx[i]
	}
	s.replaceInverseRow(jdrop, temp)
	for j := 0; j < n; j++ {
		x[j] = sim[j*np+n] + dx[j]
	}
	goto L40

L370:
	ifull = trstlp(n, m, a, con, rho, dx, &s.tr)
	if ifull == 0 && floats.Dot(dx, dx) < 0.25*rho*rho {
		ibrnch = 1
		goto L550
	}

	// Predicted change of f and the new maximum violation at pole+dx.
	resnew = 0
	con[obj] = 0
	for k := 0; k <= m; k++ {
		sum = con[k] - floats.Dot(a[k*n:(k+1)*n], dx)
		if k < m {
			resnew = math.Max(resnew, sum)
		}
	}

	barmu = 0
	prerec = datmat[viol*np+n] - resnew
	if prerec > 0 {
		barmu = sum / prerec
	}
	if parmu < 1.5*barmu {
		parmu = 2 * barmu
		if s.opts.IPrint >= 2 {
			s.logger.Debug("cobyla increased penalty", "parmu", parmu)
		}
		phi = datmat[obj*np+n] + parmu*datmat[viol*np+n]
		for j := 0; j < n; j++ {
			t := datmat[obj*np+j] + parmu*datmat[viol*np+j]
			if t < phi {
				goto L140
			}
			if t == phi && parmu == 0 && datmat[viol*np+j] < datmat[viol*np+n] {
				goto L140
			}
		}
	}
	prerem = parmu*prerec - sum

	for i := 0; i < n; i++ {
		x[i] = sim[i*np+n] + dx[i]
	}
	ibrnch = 1
	goto L40

L440:
	vmold = datmat[obj*np+n] + parmu*datmat[viol*np+n]
	vmnew = f + parmu*resmax
	trured = vmold - vmnew
	if parmu == 0 && f == datmat[obj*np+n] {
		prerem = prerec
		trured = datmat[viol*np+n] - resmax
	}

	// Decide which vertex the trial point replaces; mandatory when trured > 0.
	ratio = 0
	if trured <= 0 {
		ratio = 1
	}
	jdrop = -1
	for j := 0; j < n; j++ {
		t := math.Abs(floats.Dot(simi[j*n:(j+1)*n], dx))
		if t > ratio {
			jdrop = j
			ratio = t
		}
		sigbar[j] = t * vsig[j]
	}

	edgmax = deltaEdg * rho
	l = -1
	for j := 0; j < n; j++ {
		if sigbar[j] >= parsig || sigbar[j] >= vsig[j] {
			t := veta[j]
			if trured > 0 {
				t = 0
				for i := 0; i < n; i++ {
					d := dx[i] - sim[i*np+j]
					t += d * d
				}
				t = math.Sqrt(t)
			}
			if t > edgmax {
				l = j
				edgmax = t
			}
		}
	}
	if l >= 0 {
		jdrop = l
	}
	if jdrop < 0 {
		goto L550
	}

	temp = 0
	for i := 0; i < n; i++ {
		sim[i*np+jdrop] = dx[i]
		temp += simi[jdrop*n+i] * dx[i]
	}
	s.replaceInverseRow(jdrop, temp)
	for k := 0; k < nrow; k++ {
		datmat[k*np+jdrop] = con[k]
	}

	if trured > 0 && trured >= 0.1*prerem {
		// Grow the radius again when the model predicted the reduction well.
		if trured >= 0.9*prerem && trured <= 1.1*prerem && iflag == 1 {
			rho *= 2
			s.rho = rho
		}
		goto L140
	}

L550:
	if iflag == 0 {
		ibrnch = 0
		goto L140
	}

	if rho > rhoend {
		rho *= 0.5
		if rho <= 1.5*rhoend {
			rho = rhoend
		}
		s.rho = rho
		if rho == 0 {
			code = RoundoffLimited
			goto L600
		}
		if parmu > 0 {
			parmu = s.reducePenalty(parmu)
		}
		if s.opts.IPrint >= 2 {
			s.logger.Debug("cobyla reduced rho",
				"rho", rho,
				"parmu", parmu,
				"nfvals", s.nfvals,
				"f", datmat[obj*np+n],
				"resmax", datmat[viol*np+n],
			)
		}
		goto L140
	}
	code = Success

L600:
	s.rho = rho
	return code, err
}

// replaceInverseRow updates simi after column jdrop of sim was replaced by
// dx; pivot is simi[jdrop,:]·dx.
func (s *solver) replaceInverseRow(jdrop int, pivot float64) {
	n := s.n
	simi, dx := s.simi, s.dx
	row := simi[jdrop*n : (jdrop+1)*n]
	floats.Scale(1/pivot, row)
	for j := 0; j < n; j++ {
		if j == jdrop {
			continue
		}
		other := simi[j*n : (j+1)*n]
		floats.AddScaled(other, -floats.Dot(other, dx), row)
	}
}

// reducePenalty shrinks parmu after a radius reduction, following the
// spread of constraint and objective values over the simplex.
func (s *solver) reducePenalty(parmu float64) float64 {
	n, m, np := s.n, s.m, s.n+1
	datmat := s.datmat
	var denom, cmin, cmax float64
	for k := 0; k <= m; k++ {
		cmin = datmat[k*np+n]
		cmax = cmin
		for i := 0; i < n; i++ {
			cmin = math.Min(cmin, datmat[k*np+i])
			cmax = math.Max(cmax, datmat[k*np+i])
		}
		if k < m && cmin < 0.5*cmax {
			t := math.Max(cmax, 0) - cmin
			if denom <= 0 {
				denom = t
			} else {
				denom = math.Min(denom, t)
			}
		}
	}
	switch {
	case denom == 0:
		return 0
	case cmax-cmin < parmu*denom:
		return (cmax - cmin) / denom
	}
	return parmu
}
