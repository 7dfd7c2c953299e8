package forecast

import (
	"fmt"
	"math"
)

// sarimaModel is one SARIMA(p,d,q)(P,D,Q)m candidate. Estimation is
// conditional sum of squares with momentum gradient descent; information
// criteria come from the Gaussian log-likelihood.
type sarimaModel struct {
	p, d, q    int
	sp, sd, sq int
	period     int

	arCoeffs  []float64
	maCoeffs  []float64
	sarCoeffs []float64
	smaCoeffs []float64
	intercept float64
	variance  float64

	aic    float64
	bic    float64
	logLik float64

	original   []float64
	diffValues []float64
	residuals  []float64
}

// newSARIMA creates an unfitted candidate.
func newSARIMA(p, d, q, sp, sd, sq, period int) *sarimaModel {
	return &sarimaModel{
		p: p, d: d, q: q,
		sp: sp, sd: sd, sq: sq,
		period:    period,
		arCoeffs:  make([]float64, p),
		maCoeffs:  make([]float64, q),
		sarCoeffs: make([]float64, sp),
		smaCoeffs: make([]float64, sq),
	}
}

// fit estimates the candidate on values. Candidates that leave too few
// points after differencing, or whose estimation degenerates, return an
// error so the order search can skip them.
func (m *sarimaModel) fit(values []float64) error {
	m.original = values

	diffed := values
	for i := 0; i < m.d; i++ {
		diffed = diff(diffed)
	}
	for i := 0; i < m.sd; i++ {
		diffed = seasonalDiff(diffed, m.period)
	}

	minLen := maxInt(maxInt(m.p, m.q), maxInt(m.sp*m.period, m.sq*m.period)) + 8
	if len(diffed) < minLen {
		return fmt.Errorf("series too short after differencing: %d points, order needs %d", len(diffed), minLen)
	}
	m.diffValues = diffed

	m.initCoeffs()
	m.optimizeCSS()

	if m.variance < 0 || math.IsNaN(m.variance) || math.IsInf(m.variance, 0) {
		return fmt.Errorf("estimation did not converge for order (%d,%d,%d)(%d,%d,%d)%d",
			m.p, m.d, m.q, m.sp, m.sd, m.sq, m.period)
	}

	m.calculateIC()
	if math.IsNaN(m.aic) {
		return fmt.Errorf("degenerate likelihood for order (%d,%d,%d)(%d,%d,%d)%d",
			m.p, m.d, m.q, m.sp, m.sd, m.sq, m.period)
	}
	return nil
}

// initCoeffs seeds AR terms from the autocorrelation function
// (Yule-Walker for the non-seasonal part) and MA terms with small
// constants.
func (m *sarimaModel) initCoeffs() {
	y := m.diffValues
	m.intercept = mean(y)

	if m.p > 0 {
		if rho := acf(y, m.p); rho != nil {
			if phi := yuleWalker(rho, m.p); phi != nil {
				copy(m.arCoeffs, phi)
			}
		}
	}
	if m.sp > 0 {
		if rho := acf(y, m.sp*m.period); rho != nil {
			for i := 0; i < m.sp; i++ {
				idx := (i + 1) * m.period
				if idx < len(rho) {
					m.sarCoeffs[i] = rho[idx] * 0.5
				}
			}
		}
	}
	for i := range m.maCoeffs {
		m.maCoeffs[i] = 0.1
	}
	for i := range m.smaCoeffs {
		m.smaCoeffs[i] = 0.1
	}
}

// predictAt evaluates the one-step prediction at index t of the
// differenced series, drawing residuals from resid.
func (m *sarimaModel) predictAt(y, resid []float64, t int) float64 {
	pred := m.intercept
	for i := 0; i < m.p && t-i-1 >= 0; i++ {
		pred += m.arCoeffs[i] * (y[t-i-1] - m.intercept)
	}
	for i := 0; i < m.sp; i++ {
		lag := (i + 1) * m.period
		if t-lag >= 0 {
			pred += m.sarCoeffs[i] * (y[t-lag] - m.intercept)
		}
	}
	for i := 0; i < m.q && t-i-1 >= 0; i++ {
		pred += m.maCoeffs[i] * resid[t-i-1]
	}
	for i := 0; i < m.sq; i++ {
		lag := (i + 1) * m.period
		if t-lag >= 0 {
			pred += m.smaCoeffs[i] * resid[t-lag]
		}
	}
	return pred
}

// optimizeCSS minimizes the conditional sum of squares with momentum
// gradient descent, decaying the learning rate each iteration and
// restoring the best parameter set found.
func (m *sarimaModel) optimizeCSS() {
	y := m.diffValues
	n := len(y)

	const (
		maxIter   = 200
		tolerance = 1e-8
		momentum  = 0.9
		decay     = 0.99
	)
	learningRate := 0.005

	arMom := make([]float64, m.p)
	maMom := make([]float64, m.q)
	sarMom := make([]float64, m.sp)
	smaMom := make([]float64, m.sq)

	startIdx := maxInt(maxInt(m.p, m.q), maxInt(m.sp*m.period, m.sq*m.period))
	if startIdx >= n-8 {
		startIdx = 0
	}

	bestSSE := math.Inf(1)
	bestAR := make([]float64, m.p)
	bestMA := make([]float64, m.q)
	bestSAR := make([]float64, m.sp)
	bestSMA := make([]float64, m.sq)
	noImprove := 0

	for iter := 0; iter < maxIter; iter++ {
		resid := make([]float64, n)
		sse := 0.0
		for t := startIdx; t < n; t++ {
			resid[t] = y[t] - m.predictAt(y, resid, t)
			sse += resid[t] * resid[t]
		}

		if sse < bestSSE {
			bestSSE = sse
			copy(bestAR, m.arCoeffs)
			copy(bestMA, m.maCoeffs)
			copy(bestSAR, m.sarCoeffs)
			copy(bestSMA, m.smaCoeffs)
			noImprove = 0
		} else {
			noImprove++
		}
		if noImprove > 20 {
			break
		}

		arGrad := make([]float64, m.p)
		maGrad := make([]float64, m.q)
		sarGrad := make([]float64, m.sp)
		smaGrad := make([]float64, m.sq)

		for t := startIdx; t < n; t++ {
			for i := 0; i < m.p && t-i-1 >= 0; i++ {
				arGrad[i] -= 2 * resid[t] * (y[t-i-1] - m.intercept)
			}
			for i := 0; i < m.sp; i++ {
				lag := (i + 1) * m.period
				if t-lag >= 0 {
					sarGrad[i] -= 2 * resid[t] * (y[t-lag] - m.intercept)
				}
			}
			for i := 0; i < m.q && t-i-1 >= 0; i++ {
				maGrad[i] -= 2 * resid[t] * resid[t-i-1]
			}
			for i := 0; i < m.sq; i++ {
				lag := (i + 1) * m.period
				if t-lag >= 0 {
					smaGrad[i] -= 2 * resid[t] * resid[t-lag]
				}
			}
		}

		for i := 0; i < m.p; i++ {
			arMom[i] = momentum*arMom[i] + learningRate*arGrad[i]/float64(n)
			m.arCoeffs[i] = clamp(m.arCoeffs[i]-arMom[i], -0.99, 0.99)
		}
		for i := 0; i < m.sp; i++ {
			sarMom[i] = momentum*sarMom[i] + learningRate*sarGrad[i]/float64(n)
			m.sarCoeffs[i] = clamp(m.sarCoeffs[i]-sarMom[i], -0.99, 0.99)
		}
		for i := 0; i < m.q; i++ {
			maMom[i] = momentum*maMom[i] + learningRate*maGrad[i]/float64(n)
			m.maCoeffs[i] = clamp(m.maCoeffs[i]-maMom[i], -0.99, 0.99)
		}
		for i := 0; i < m.sq; i++ {
			smaMom[i] = momentum*smaMom[i] + learningRate*smaGrad[i]/float64(n)
			m.smaCoeffs[i] = clamp(m.smaCoeffs[i]-smaMom[i], -0.99, 0.99)
		}

		learningRate *= decay

		if iter > 0 && math.Abs(sse-bestSSE) < tolerance {
			break
		}
	}

	copy(m.arCoeffs, bestAR)
	copy(m.maCoeffs, bestMA)
	copy(m.sarCoeffs, bestSAR)
	copy(m.smaCoeffs, bestSMA)

	m.residuals = make([]float64, n)
	for t := 0; t < n; t++ {
		m.residuals[t] = y[t] - m.predictAt(y, m.residuals, t)
	}

	sse := 0.0
	count := 0
	for t := startIdx; t < n; t++ {
		sse += m.residuals[t] * m.residuals[t]
		count++
	}
	numParams := m.p + m.q + m.sp + m.sq + 1
	if count > numParams {
		m.variance = sse / float64(count-numParams)
	} else if count > 0 {
		m.variance = sse / float64(count)
	} else {
		m.variance = math.NaN()
	}
}

func (m *sarimaModel) calculateIC() {
	n := len(m.residuals)
	k := m.p + m.q + m.sp + m.sq + 1

	sse := 0.0
	for _, r := range m.residuals {
		sse += r * r
	}

	if m.variance > 0 {
		m.logLik = -float64(n)/2*math.Log(2*math.Pi) - float64(n)/2*math.Log(m.variance) - sse/(2*m.variance)
	} else {
		// A perfect fit still needs a finite criterion so the search can
		// prefer it.
		m.logLik = math.Inf(1)
	}

	m.aic = -2*m.logLik + 2*float64(k)
	m.bic = -2*m.logLik + float64(k)*math.Log(float64(n))
}

// forecastWithInterval produces steps point forecasts on the original
// scale with symmetric Gaussian bounds at the given confidence. Interval
// width grows with horizon when the model differences.
func (m *sarimaModel) forecastWithInterval(steps int, confidence float64) (mean, lower, upper []float64) {
	y := m.diffValues
	n := len(y)

	extY := make([]float64, n+steps)
	copy(extY, y)
	extResid := make([]float64, n+steps)
	copy(extResid, m.residuals)

	for h := 0; h < steps; h++ {
		t := n + h
		pred := m.intercept
		for i := 0; i < m.p && t-i-1 >= 0; i++ {
			pred += m.arCoeffs[i] * (extY[t-i-1] - m.intercept)
		}
		for i := 0; i < m.sp; i++ {
			lag := (i + 1) * m.period
			if t-lag >= 0 {
				pred += m.sarCoeffs[i] * (extY[t-lag] - m.intercept)
			}
		}
		// Future residuals have expectation zero, so MA terms only reach
		// observed residuals.
		for i := 0; i < m.q && t-i-1 >= 0 && t-i-1 < n; i++ {
			pred += m.maCoeffs[i] * extResid[t-i-1]
		}
		for i := 0; i < m.sq; i++ {
			lag := (i + 1) * m.period
			if t-lag >= 0 && t-lag < n {
				pred += m.smaCoeffs[i] * extResid[t-lag]
			}
		}
		extY[t] = pred
		extResid[t] = 0
	}

	mean = make([]float64, steps)
	copy(mean, extY[n:])
	mean = m.integrate(mean)

	z := normalQuantile((1 + confidence) / 2)
	lower = make([]float64, steps)
	upper = make([]float64, steps)
	for h := 0; h < steps; h++ {
		se := math.Sqrt(math.Max(m.variance, 0))
		growth := 1.0
		if m.d > 0 {
			growth *= math.Sqrt(float64(h + 1))
		}
		if m.sd > 0 && m.period > 0 {
			growth *= math.Sqrt(float64(h/m.period + 1))
		}
		se *= growth
		lower[h] = mean[h] - z*se
		upper[h] = mean[h] + z*se
	}
	return mean, lower, upper
}

// integrate undoes the differencing applied during fit: seasonal first,
// then non-seasonal, mirroring the reverse of the fit order.
func (m *sarimaModel) integrate(forecasts []float64) []float64 {
	result := make([]float64, len(forecasts))
	copy(result, forecasts)

	// Seasonal integration needs the tail of the non-seasonally
	// differenced history.
	nonSeasonal := m.original
	for i := 0; i < m.d; i++ {
		nonSeasonal = diff(nonSeasonal)
	}

	if m.sd > 0 && m.period > 0 {
		nDiff := len(nonSeasonal)
		for i := 0; i < m.sd; i++ {
			for j := 0; j < len(result); j++ {
				if j < m.period {
					idx := nDiff - m.period + j
					if idx >= 0 && idx < nDiff {
						result[j] += nonSeasonal[idx]
					}
				} else {
					result[j] += result[j-m.period]
				}
			}
		}
	}

	for i := 0; i < m.d; i++ {
		lastVal := m.original[len(m.original)-1]
		for j := 0; j < len(result); j++ {
			if j == 0 {
				result[j] += lastVal
			} else {
				result[j] += result[j-1]
			}
		}
	}
	return result
}

// yuleWalker solves the Yule-Walker equations for AR coefficients with
// the Levinson-Durbin recursion.
func yuleWalker(rho []float64, order int) []float64 {
	if order <= 0 || len(rho) <= order {
		return nil
	}

	phi := make([]float64, order)
	if order == 1 {
		phi[0] = rho[1]
		return phi
	}

	phi[0] = rho[1]
	v := 1 - phi[0]*phi[0]

	for i := 1; i < order; i++ {
		lambda := rho[i+1]
		for j := 0; j < i; j++ {
			lambda -= phi[j] * rho[i-j]
		}
		if v == 0 {
			break
		}
		lambda /= v

		newPhi := make([]float64, i+1)
		for j := 0; j < i; j++ {
			newPhi[j] = phi[j] - lambda*phi[i-1-j]
		}
		newPhi[i] = lambda
		copy(phi, newPhi)

		v *= 1 - lambda*lambda
		if v <= 0 {
			break
		}
	}
	return phi
}

func clamp(v, lower, upper float64) float64 {
	if v < lower {
		return lower
	}
	if v > upper {
		return upper
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
