package forecast

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

var (
	errTooFewResiduals = errors.New("too few residuals for the number of parameters")
	errNonFinite       = errors.New("non-finite likelihood")
)

// order is a SARIMA(p,d,q)(P,D,Q)m specification.
type order struct {
	P, D, Q    int // non-seasonal
	SP, SD, SQ int // seasonal
	M          int
	Constant   bool
}

func (o order) String() string {
	c := ""
	if o.Constant {
		c = " +c"
	}
	if o.SP+o.SD+o.SQ == 0 {
		return fmt.Sprintf("ARIMA(%d,%d,%d)%s", o.P, o.D, o.Q, c)
	}
	return fmt.Sprintf("ARIMA(%d,%d,%d)(%d,%d,%d)[%d]%s", o.P, o.D, o.Q, o.SP, o.SD, o.SQ, o.M, c)
}

// numParams counts estimated coefficients, excluding the innovation variance.
func (o order) numParams() int {
	n := o.P + o.Q + o.SP + o.SQ
	if o.Constant {
		n++
	}
	return n
}

// arimaFit is a fitted candidate.
type arimaFit struct {
	order  order
	ar     []float64 // expanded AR polynomial: z_t = sum ar[i] z_{t-1-i} + ...
	ma     []float64 // expanded MA polynomial: ... + sum ma[j] e_{t-1-j}
	mean   float64   // mean of the differenced series (original units)
	sigma2 float64
	loglik float64
	nobs   int
	ic     float64
}

// differencingPolynomial expands (1-B)^d (1-B^m)^D. Coefficient i multiplies y_{t-i}.
func differencingPolynomial(d, sd, m int) []float64 {
	poly := []float64{1}
	for i := 0; i < d; i++ {
		poly = polyMul(poly, []float64{1, -1})
	}
	for i := 0; i < sd; i++ {
		s := make([]float64, m+1)
		s[0], s[m] = 1, -1
		poly = polyMul(poly, s)
	}
	return poly
}

func polyMul(a, b []float64) []float64 {
	out := make([]float64, len(a)+len(b)-1)
	for i, x := range a {
		for j, y := range b {
			out[i+j] += x * y
		}
	}
	return out
}

// difference applies (1-B^lag) once.
func difference(x []float64, lag int) []float64 {
	if len(x) <= lag {
		return nil
	}
	out := make([]float64, len(x)-lag)
	for i := lag; i < len(x); i++ {
		out[i-lag] = x[i] - x[i-lag]
	}
	return out
}

func differenceAll(y []float64, d, sd, m int) []float64 {
	w := y
	for i := 0; i < sd; i++ {
		w = difference(w, m)
	}
	for i := 0; i < d; i++ {
		w = difference(w, 1)
	}
	return w
}

// pacfToCoeffs maps unconstrained values to the coefficients of a stationary
// polynomial 1 - sum c_j B^j, via tanh partial autocorrelations and the
// Durbin-Levinson recursion.
func pacfToCoeffs(x []float64) []float64 {
	k := len(x)
	if k == 0 {
		return nil
	}
	phi := make([]float64, k)
	prev := make([]float64, k)
	for i := 0; i < k; i++ {
		r := math.Tanh(x[i])
		copy(prev, phi)
		phi[i] = r
		for j := 0; j < i; j++ {
			phi[j] = prev[j] - r*prev[i-1-j]
		}
	}
	return phi
}

// expandSeasonal combines a non-seasonal lag polynomial with a seasonal one
// (on lags m, 2m, ...) into a single coefficient vector with the sign
// convention y_t = sum c_i y_{t-1-i}.
func expandSeasonal(nonSeasonal, seasonal []float64, m int) []float64 {
	a := make([]float64, len(nonSeasonal)+1)
	a[0] = 1
	for i, c := range nonSeasonal {
		a[i+1] = -c
	}
	s := make([]float64, len(seasonal)*m+1)
	s[0] = 1
	for i, c := range seasonal {
		s[(i+1)*m] = -c
	}
	full := polyMul(a, s)
	out := make([]float64, len(full)-1)
	for i := 1; i < len(full); i++ {
		out[i-1] = -full[i]
	}
	return out
}

func negate(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = -v
	}
	return out
}

// unpack splits an unconstrained parameter vector into expanded AR and MA
// polynomials plus the (standardised) mean.
func (o order) unpack(x []float64) (ar, ma []float64, mu float64) {
	i := 0
	take := func(n int) []float64 {
		v := x[i : i+n]
		i += n
		return v
	}
	arNS := pacfToCoeffs(take(o.P))
	maNS := negate(pacfToCoeffs(take(o.Q)))
	arS := pacfToCoeffs(take(o.SP))
	maS := negate(pacfToCoeffs(take(o.SQ)))
	if o.Constant {
		mu = x[i]
	}

	ar = expandSeasonal(arNS, arS, o.M)
	// MA polynomials use 1 + sum theta_j B^j, so flip signs around the expansion.
	ma = negate(expandSeasonal(negate(maNS), negate(maS), o.M))
	return ar, ma, mu
}

// cssResiduals runs the conditional-sum-of-squares recursion and returns the
// residuals from the first conditioned index onward.
func cssResiduals(z []float64, ar, ma []float64) []float64 {
	n := len(z)
	start := len(ar)
	if start >= n {
		return nil
	}
	e := make([]float64, n)
	for t := start; t < n; t++ {
		pred := 0.0
		for i, c := range ar {
			pred += c * z[t-1-i]
		}
		for j, c := range ma {
			if t-1-j >= 0 {
				pred += c * e[t-1-j]
			}
		}
		e[t] = z[t] - pred
	}
	return e[start:]
}

// fitARIMA estimates one candidate on y by conditional sum of squares.
func fitARIMA(y []float64, o order, maxIter int, criterion string) (*arimaFit, error) {
	w := differenceAll(y, o.D, o.SD, o.M)
	if len(w) < 2 {
		return nil, errTooFewResiduals
	}

	center, scale := stat.MeanStdDev(w, nil)
	if !(scale > 1e-12) || !finite(scale) {
		scale = 1
	}
	if !o.Constant {
		center = 0
	}
	z := make([]float64, len(w))
	for i, v := range w {
		z[i] = (v - center) / scale
	}

	k := o.numParams()
	nUsed := len(w) - (o.P + o.SP*o.M)
	if nUsed <= k+1 {
		return nil, errTooFewResiduals
	}

	objective := func(x []float64) float64 {
		ar, ma, mu := o.unpack(x)
		zz := z
		if mu != 0 {
			zz = make([]float64, len(z))
			for i, v := range z {
				zz[i] = v - mu
			}
		}
		res := cssResiduals(zz, ar, ma)
		ss := 0.0
		for _, r := range res {
			ss += r * r
		}
		if !finite(ss) {
			return math.Inf(1)
		}
		return ss / float64(len(res))
	}

	x := make([]float64, k)
	if k > 0 {
		result, err := optimize.Minimize(
			optimize.Problem{Func: objective},
			x,
			&optimize.Settings{
				MajorIterations: maxIter,
				Converger:       &optimize.FunctionConverge{Absolute: 1e-10, Relative: 1e-8, Iterations: 100},
			},
			&optimize.NelderMead{SimplexSize: 0.3},
		)
		if result == nil || !finite(result.F) {
			if err == nil {
				err = errNonFinite
			}
			return nil, fmt.Errorf("optimize %s: %w", o, err)
		}
		x = result.X
	}

	ar, ma, mu := o.unpack(x)
	zz := make([]float64, len(z))
	for i, v := range z {
		zz[i] = v - mu
	}
	res := cssResiduals(zz, ar, ma)
	ss := 0.0
	for _, r := range res {
		ss += r * r
	}
	sigma2 := ss / float64(len(res)) * scale * scale
	if sigma2 < 1e-300 {
		sigma2 = 1e-300
	}
	n := float64(len(res))
	loglik := -0.5 * n * (math.Log(2*math.Pi*sigma2) + 1)
	if !finite(loglik) {
		return nil, fmt.Errorf("%s: %w", o, errNonFinite)
	}

	fit := &arimaFit{
		order:  o,
		ar:     ar,
		ma:     ma,
		mean:   center + mu*scale,
		sigma2: sigma2,
		loglik: loglik,
		nobs:   len(res),
	}
	fit.ic = informationCriterion(criterion, loglik, k+1, len(res))
	if !finite(fit.ic) {
		return nil, fmt.Errorf("%s: %w", o, errNonFinite)
	}
	return fit, nil
}

func informationCriterion(name string, loglik float64, k, n int) float64 {
	aic := -2*loglik + 2*float64(k)
	switch name {
	case "bic":
		return -2*loglik + float64(k)*math.Log(float64(n))
	case "aicc":
		if n-k-1 <= 0 {
			return math.Inf(1)
		}
		return aic + 2*float64(k*(k+1))/float64(n-k-1)
	default:
		return aic
	}
}

// forecastNext returns the one-step-ahead forecast on the original scale.
func (f *arimaFit) forecastNext(y []float64) float64 {
	o := f.order
	w := differenceAll(y, o.D, o.SD, o.M)
	z := make([]float64, len(w))
	for i, v := range w {
		z[i] = v - f.mean
	}

	// residuals over the full differenced history, zero before conditioning
	e := make([]float64, len(z))
	copy(e[len(f.ar):], cssResiduals(z, f.ar, f.ma))

	n := len(z)
	next := 0.0
	for i, c := range f.ar {
		if n-1-i >= 0 {
			next += c * z[n-1-i]
		}
	}
	for j, c := range f.ma {
		if n-1-j >= 0 {
			next += c * e[n-1-j]
		}
	}
	wNext := next + f.mean

	// integrate back: w_{n+1} = sum_i c_i y_{n+1-i}
	poly := differencingPolynomial(o.D, o.SD, o.M)
	yNext := wNext
	for i := 1; i < len(poly); i++ {
		yNext -= poly[i] * y[len(y)-i]
	}
	return yNext
}
