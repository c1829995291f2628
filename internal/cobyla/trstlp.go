package cobyla

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// trWork is the scratch space of trstlp, allocated once per Minimize call.
type trWork struct {
	// z holds the columns of the orthogonal matrix Z as rows.
	z      []float64
	zdota  []float64
	vmultc []float64
	vmultd []float64
	sdirn  []float64
	dxnew  []float64
	iact   []int
}

func newTrWork(n, m int) trWork {
	return trWork{
		z:      make([]float64, n*n),
		zdota:  make([]float64, n),
		vmultc: make([]float64, m+1),
		vmultd: make([]float64, m+1),
		sdirn:  make([]float64, n),
		dxnew:  make([]float64, n),
		iact:   make([]int, m+1),
	}
}

// roundoff reports whether a sum with absolute mass abs and value v is
// indistinguishable from zero in floating point.
func roundoff(abs, v float64) bool {
	acca := abs + 0.1*math.Abs(v)
	accb := abs + 0.2*math.Abs(v)
	return abs >= acca || acca >= accb
}

// rotate applies a Givens rotation to rows p and q of z, leaving the new
// direction of row q's constraint in row p.
func rotate(z []float64, n, p, q int, alpha, beta float64) {
	zp := z[p*n : (p+1)*n]
	zq := z[q*n : (q+1)*n]
	for i := 0; i < n; i++ {
		t := alpha*zq[i] + beta*zp[i]
		zq[i] = alpha*zp[i] - beta*zq[i]
		zp[i] = t
	}
}

// trstlp computes the trust-region step dx of length at most rho.
//
// Stage one minimizes the greatest violation of the linearized constraints
// a[k]·dx >= b[k], k < m. If the step is still shorter than rho, stage two
// treats row m of a (minus the objective gradient) as an extra constraint and
// reduces the linear objective without increasing any violation. It returns 1
// when dx reaches the trust-region boundary and 0 when a degeneracy stopped it
// short.
func trstlp(n, m int, a, b []float64, rho float64, dx []float64, w *trWork) int {
	var (
		z, zdota       = w.z, w.zdota
		vmultc, vmultd = w.vmultc, w.vmultd
		sdirn, dxnew   = w.sdirn, w.dxnew
		iact           = w.iact

		ifull                                   = 1
		mcon                                    = m
		nact, nactx, icon, icount, kk, k, kw    int
		iout, isave                             int
		resmax, resold, optold, optnew, tot, sp float64
		spabs, temp, alpha, beta, ratio, zdotv  float64
		zdvabs, vsave, dd, sd, ss, stpful, step float64
		zdotw, zdwabs, sum, sumabs              float64
	)

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			z[i*n+j] = 0
		}
		z[i*n+i] = 1
		dx[i] = 0
	}
	icon = -1
	if m >= 1 {
		for k = 0; k < m; k++ {
			if b[k] > resmax {
				resmax = b[k]
				icon = k
			}
		}
		for k = 0; k < m; k++ {
			iact[k] = k
			vmultc[k] = resmax - b[k]
		}
	}
	if resmax == 0 {
		goto L480
	}
	for i := 0; i < n; i++ {
		sdirn[i] = 0
	}

	// End a stage after three iterations that neither reduce the best
	// value nor grow the active set.
L60:
	optold = 0
	icount = 0

L70:
	if mcon == m {
		optnew = resmax
	} else {
		optnew = -floats.Dot(dx, a[(mcon-1)*n:mcon*n])
	}
	switch {
	case icount == 0 || optnew < optold:
		optold = optnew
		nactx = nact
		icount = 3
	case nact > nactx:
		nactx = nact
		icount = 3
	default:
		icount--
		if icount == 0 {
			goto L490
		}
	}

	if icon < nact {
		goto L260
	}

	// Add constraint iact[icon] to the active set: rotate the trailing
	// columns of Z so they are orthogonal to its gradient.
	kk = iact[icon]
	copy(dxnew, a[kk*n:(kk+1)*n])
	tot = 0
	for k = n - 1; k >= nact; k-- {
		sp = 0
		spabs = 0
		for i := 0; i < n; i++ {
			t := z[k*n+i] * dxnew[i]
			sp += t
			spabs += math.Abs(t)
		}
		if roundoff(spabs, sp) {
			sp = 0
		}
		if tot == 0 {
			tot = sp
		} else {
			temp = math.Sqrt(sp*sp + tot*tot)
			alpha = sp / temp
			beta = tot / temp
			tot = temp
			zk := z[k*n : (k+1)*n]
			zp := z[(k+1)*n : (k+2)*n]
			for i := 0; i < n; i++ {
				t := alpha*zk[i] + beta*zp[i]
				zp[i] = alpha*zp[i] - beta*zk[i]
				zk[i] = t
			}
		}
	}

	if tot != 0 {
		nact++
		zdota[nact-1] = tot
		vmultc[icon] = vmultc[nact-1]
		vmultc[nact-1] = 0
		goto L210
	}

	// The new gradient is a combination of the active ones: find the
	// multipliers and the constraint to drop.
	ratio = -1
	for k = nact - 1; k >= 0; k-- {
		zdotv = 0
		zdvabs = 0
		for i := 0; i < n; i++ {
			t := z[k*n+i] * dxnew[i]
			zdotv += t
			zdvabs += math.Abs(t)
		}
		if !roundoff(zdvabs, zdotv) {
			temp = zdotv / zdota[k]
			if temp > 0 && iact[k] < m {
				if t := vmultc[k] / temp; ratio < 0 || t < ratio {
					ratio = t
					iout = k
				}
			}
			if k >= 1 {
				kw = iact[k]
				floats.AddScaled(dxnew, -temp, a[kw*n:(kw+1)*n])
			}
			vmultd[k] = temp
		} else {
			vmultd[k] = 0
		}
	}
	if ratio < 0 {
		goto L490
	}

	for k = 0; k < nact; k++ {
		vmultc[k] = math.Max(0, vmultc[k]-ratio*vmultd[k])
	}
	if iout < nact-1 {
		isave = iact[iout]
		vsave = vmultc[iout]
		for k = iout; k < nact-1; k++ {
			kw = iact[k+1]
			sp = floats.Dot(z[k*n:(k+1)*n], a[kw*n:(kw+1)*n])
			temp = math.Sqrt(sp*sp + zdota[k+1]*zdota[k+1])
			alpha = zdota[k+1] / temp
			beta = sp / temp
			zdota[k+1] = alpha * zdota[k]
			zdota[k] = temp
			rotate(z, n, k, k+1, alpha, beta)
			iact[k] = kw
			vmultc[k] = vmultc[k+1]
		}
		iact[nact-1] = isave
		vmultc[nact-1] = vsave
	}
	temp = floats.Dot(z[(nact-1)*n:nact*n], a[kk*n:(kk+1)*n])
	if temp == 0 {
		goto L490
	}
	zdota[nact-1] = temp
	vmultc[icon] = 0
	vmultc[nact-1] = ratio

L210:
	// Keep the objective as the last active constraint in stage two.
	iact[icon] = iact[nact-1]
	iact[nact-1] = kk
	if mcon > m && kk != mcon-1 {
		k = nact - 2
		sp = floats.Dot(z[k*n:(k+1)*n], a[kk*n:(kk+1)*n])
		temp = math.Sqrt(sp*sp + zdota[nact-1]*zdota[nact-1])
		alpha = zdota[nact-1] / temp
		beta = sp / temp
		zdota[nact-1] = alpha * zdota[k]
		zdota[k] = temp
		rotate(z, n, k, nact-1, alpha, beta)
		iact[nact-1] = iact[k]
		iact[k] = kk
		vmultc[k], vmultc[nact-1] = vmultc[nact-1], vmultc[k]
	}
	if mcon > m {
		goto L320
	}
	kk = iact[nact-1]
	temp = (floats.Dot(sdirn, a[kk*n:(kk+1)*n]) - 1) / zdota[nact-1]
	floats.AddScaled(sdirn, -temp, z[(nact-1)*n:nact*n])
	goto L340

L260:
	// Drop constraint iact[icon] from the active set.
	if icon < nact-1 {
		isave = iact[icon]
		vsave = vmultc[icon]
		for k = icon; k < nact-1; k++ {
			kk = iact[k+1]
			sp = floats.Dot(z[k*n:(k+1)*n], a[kk*n:(kk+1)*n])
			temp = math.Sqrt(sp*sp + zdota[k+1]*zdota[k+1])
			alpha = zdota[k+1] / temp
			beta = sp / temp
			zdota[k+1] = alpha * zdota[k]
			zdota[k] = temp
			rotate(z, n, k, k+1, alpha, beta)
			iact[k] = kk
			vmultc[k] = vmultc[k+1]
		}
		iact[nact-1] = isave
		vmultc[nact-1] = vsave
	}
	nact--
	if mcon > m {
		goto L320
	}
	temp = floats.Dot(sdirn, z[nact*n:(nact+1)*n])
	floats.AddScaled(sdirn, -temp, z[nact*n:(nact+1)*n])
	goto L340

L320:
	floats.ScaleTo(sdirn, 1/zdota[nact-1], z[(nact-1)*n:nact*n])

L340:
	// Step to the trust-region boundary, or the step that removes the
	// remaining violation in stage one.
	dd = rho * rho
	sd = 0
	ss = 0
	for i := 0; i < n; i++ {
		if math.Abs(dx[i]) >= 1e-6*rho {
			dd -= dx[i] * dx[i]
		}
		sd += dx[i] * sdirn[i]
		ss += sdirn[i] * sdirn[i]
	}
	if dd <= 0 {
		goto L490
	}
	temp = math.Sqrt(ss * dd)
	if math.Abs(sd) >= 1e-6*temp {
		temp = math.Sqrt(ss*dd + sd*sd)
	}
	stpful = dd / (temp + sd)
	step = stpful
	if mcon == m {
		if roundoff(step, resmax) {
			goto L480
		}
		step = math.Min(step, resmax)
	}

	for i := 0; i < n; i++ {
		dxnew[i] = dx[i] + step*sdirn[i]
	}
	if mcon == m {
		resold = resmax
		resmax = 0
		for k = 0; k < nact; k++ {
			kk = iact[k]
			resmax = math.Max(resmax, b[kk]-floats.Dot(a[kk*n:(kk+1)*n], dxnew))
		}
	}

	// Multipliers the active set would have at dxnew, with rounding noise
	// forced to zero.
	for k = nact - 1; k >= 0; k-- {
		zdotw = 0
		zdwabs = 0
		for i := 0; i < n; i++ {
			t := z[k*n+i] * dxnew[i]
			zdotw += t
			zdwabs += math.Abs(t)
		}
		if roundoff(zdwabs, zdotw) {
			zdotw = 0
		}
		vmultd[k] = zdotw / zdota[k]
		if k >= 1 {
			kk = iact[k]
			floats.AddScaled(dxnew, -vmultd[k], a[kk*n:(kk+1)*n])
		}
	}
	if mcon > m {
		vmultd[nact-1] = math.Max(0, vmultd[nact-1])
	}

	// Residuals of the inactive constraints.
	for i := 0; i < n; i++ {
		dxnew[i] = dx[i] + step*sdirn[i]
	}
	for k = nact; k < mcon; k++ {
		kk = iact[k]
		sum = resmax - b[kk]
		sumabs = resmax + math.Abs(b[kk])
		for i := 0; i < n; i++ {
			t := a[kk*n+i] * dxnew[i]
			sum += t
			sumabs += math.Abs(t)
		}
		if roundoff(sumabs, sum) {
			sum = 0
		}
		vmultd[k] = sum
	}

	// Fraction of the step that keeps every multiplier and residual >= 0.
	ratio = 1
	icon = -1
	for k = 0; k < mcon; k++ {
		if vmultd[k] < 0 {
			if t := vmultc[k] / (vmultc[k] - vmultd[k]); t < ratio {
				ratio = t
				icon = k
			}
		}
	}

	temp = 1 - ratio
	for i := 0; i < n; i++ {
		dx[i] = temp*dx[i] + ratio*dxnew[i]
	}
	for k = 0; k < mcon; k++ {
		vmultc[k] = math.Max(0, temp*vmultc[k]+ratio*vmultd[k])
	}
	if mcon == m {
		resmax = resold + ratio*(resmax-resold)
	}

	if icon >= 0 {
		goto L70
	}
	if step == stpful {
		return ifull
	}

L480:
	// Switch to stage two: the objective joins as constraint m.
	mcon = m + 1
	icon = m
	iact[m] = m
	vmultc[m] = 0
	goto L60

L490:
	if mcon == m {
		goto L480
	}
	ifull = 0
	return ifull
}
