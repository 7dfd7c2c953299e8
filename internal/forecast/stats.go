package forecast

import "math"

// acf returns autocorrelations of values for lags 0..maxLag.
func acf(values []float64, maxLag int) []float64 {
	n := len(values)
	if maxLag >= n {
		maxLag = n - 1
	}
	if maxLag < 0 {
		return nil
	}

	m := mean(values)
	variance := 0.0
	for _, v := range values {
		d := v - m
		variance += d * d
	}
	if variance == 0 {
		return nil
	}

	out := make([]float64, maxLag+1)
	for k := 0; k <= maxLag; k++ {
		sum := 0.0
		for i := k; i < n; i++ {
			sum += (values[i] - m) * (values[i-k] - m)
		}
		out[k] = sum / variance
	}
	return out
}

// ljungBoxResult holds the Ljung-Box test outcome for residual
// autocorrelation. The null hypothesis is no autocorrelation up to the
// tested lag; a high p-value means the residuals look like white noise.
type ljungBoxResult struct {
	Statistic float64
	PValue    float64
	Lags      int
}

// ljungBox runs the Ljung-Box test on residuals at the given lag count.
// Returns a degenerate p-value of 1 when the series is constant, since a
// zero-variance residual series carries no autocorrelation structure.
func ljungBox(residuals []float64, lags int) ljungBoxResult {
	n := len(residuals)
	if lags >= n {
		lags = n - 1
	}
	if lags < 1 {
		return ljungBoxResult{PValue: 1, Lags: lags}
	}

	rho := acf(residuals, lags)
	if rho == nil {
		return ljungBoxResult{PValue: 1, Lags: lags}
	}

	q := 0.0
	for k := 1; k <= lags; k++ {
		q += (rho[k] * rho[k]) / float64(n-k)
	}
	q *= float64(n * (n + 2))

	p := 1 - chiSquaredCDF(q, lags)
	// Numerical noise in the incomplete gamma evaluation can push the
	// value a hair outside [0,1].
	p = math.Max(0, math.Min(1, p))

	return ljungBoxResult{Statistic: q, PValue: p, Lags: lags}
}

// chiSquaredCDF evaluates the chi-squared CDF with k degrees of freedom
// via the regularized lower incomplete gamma function.
func chiSquaredCDF(x float64, k int) float64 {
	if x < 0 {
		return 0
	}
	return lowerIncompleteGamma(float64(k)/2, x/2) / gammaFn(float64(k)/2)
}

// gammaFn is the Lanczos approximation of the gamma function.
func gammaFn(z float64) float64 {
	if z < 0.5 {
		return math.Pi / (math.Sin(math.Pi*z) * gammaFn(1-z))
	}

	z--
	g := 7
	c := []float64{
		0.99999999999980993,
		676.5203681218851,
		-1259.1392167224028,
		771.32342877765313,
		-176.61502916214059,
		12.507343278686905,
		-0.13857109526572012,
		9.9843695780195716e-6,
		1.5056327351493116e-7,
	}

	x := c[0]
	for i := 1; i < g+2; i++ {
		x += c[i] / (z + float64(i))
	}

	t := z + float64(g) + 0.5
	return math.Sqrt(2*math.Pi) * math.Pow(t, z+0.5) * math.Exp(-t) * x
}

func lowerIncompleteGamma(a, x float64) float64 {
	if x < 0 || a <= 0 {
		return 0
	}
	if x < a+1 {
		return gammaIncSeries(a, x)
	}
	return gammaFn(a) - gammaIncCF(a, x)
}

func gammaIncSeries(a, x float64) float64 {
	if x == 0 {
		return 0
	}

	const maxIter = 200
	const eps = 1e-10

	ap := a
	sum := 1.0 / a
	del := sum

	for n := 1; n < maxIter; n++ {
		ap++
		del *= x / ap
		sum += del
		if math.Abs(del) < math.Abs(sum)*eps {
			break
		}
	}

	return sum * math.Exp(-x+a*math.Log(x)-math.Log(gammaFn(a)))
}

func gammaIncCF(a, x float64) float64 {
	const maxIter = 200
	const eps = 1e-10
	const fpmin = 1e-30

	b := x + 1 - a
	c := 1.0 / fpmin
	d := 1.0 / b
	h := d

	for i := 1; i < maxIter; i++ {
		an := -float64(i) * (float64(i) - a)
		b += 2
		d = an*d + b
		if math.Abs(d) < fpmin {
			d = fpmin
		}
		c = b + an/c
		if math.Abs(c) < fpmin {
			c = fpmin
		}
		d = 1.0 / d
		del := d * c
		h *= del
		if math.Abs(del-1) < eps {
			break
		}
	}

	return math.Exp(-x+a*math.Log(x)-math.Log(gammaFn(a))) * h
}

// adfStationary runs an Augmented Dickey-Fuller test (constant, no
// trend). The null hypothesis is a unit root; p < 0.05 rejects it and
// declares the series stationary. Returns false when the series is too
// short to test.
func adfStationary(values []float64) bool {
	n := len(values)
	if n < 10 {
		return false
	}

	maxLag := int(math.Floor(math.Pow(float64(n-1), 1.0/3.0)))
	if maxLag >= n-1 {
		maxLag = n - 2
	}

	d := diff(values)
	nObs := n - maxLag - 1
	if nObs < 10 {
		return false
	}

	// delta_y_t = alpha + beta*y_{t-1} + sum(gamma_i * delta_y_{t-i})
	y := make([]float64, nObs)
	x := make([][]float64, nObs)
	for i := 0; i < nObs; i++ {
		t := i + maxLag
		y[i] = d[t]
		row := make([]float64, 2+maxLag)
		row[0] = 1
		row[1] = values[t]
		for j := 1; j <= maxLag; j++ {
			row[1+j] = d[t-j]
		}
		x[i] = row
	}

	coeffs, se := olsRegression(x, y)
	if coeffs == nil || se == nil || len(se) < 2 || se[1] == 0 {
		return false
	}

	tStat := coeffs[1] / se[1]
	return adfPValue(tStat) < 0.05
}

// adfPValue approximates the MacKinnon p-value for the constant-only
// ADF regression.
func adfPValue(stat float64) float64 {
	switch {
	case stat < -3.96:
		return 0.001
	case stat < -3.43:
		return 0.01
	case stat < -2.86:
		return 0.05
	case stat < -2.57:
		return 0.10
	case stat < -1.94:
		return 0.25
	case stat < -1.62:
		return 0.50
	default:
		return math.Min(0.5+(stat+1.62)*0.25, 0.99)
	}
}

// kpssStationary runs the KPSS level-stationarity test. The null
// hypothesis is stationarity; the series counts as stationary unless the
// test rejects at 5%. The second return value is the approximate p-value
// so the caller can recognize a strong non-rejection.
func kpssStationary(values []float64) (bool, float64) {
	n := len(values)
	if n < 10 {
		return false, 0
	}

	nlags := int(math.Ceil(12 * math.Pow(float64(n)/100, 0.25)))

	m := mean(values)
	residuals := make([]float64, n)
	for i, v := range values {
		residuals[i] = v - m
	}

	cumSum := make([]float64, n)
	cumSum[0] = residuals[0]
	for i := 1; i < n; i++ {
		cumSum[i] = cumSum[i-1] + residuals[i]
	}

	// Newey-West long-run variance with Bartlett weights.
	s2 := 0.0
	for _, r := range residuals {
		s2 += r * r
	}
	s2 /= float64(n)
	for l := 1; l <= nlags && l < n; l++ {
		cov := 0.0
		for i := l; i < n; i++ {
			cov += residuals[i] * residuals[i-l]
		}
		cov /= float64(n)
		weight := 1.0 - float64(l)/float64(nlags+1)
		s2 += 2 * weight * cov
	}
	if s2 <= 0 {
		s2 = 1e-10
	}

	etaSq := 0.0
	for _, cs := range cumSum {
		etaSq += cs * cs
	}
	stat := etaSq / (float64(n) * float64(n) * s2)

	p := kpssPValue(stat)
	return p >= 0.05, p
}

func kpssPValue(stat float64) float64 {
	switch {
	case stat > 0.739:
		return 0.01
	case stat > 0.463:
		return 0.05
	case stat > 0.347:
		return 0.10
	default:
		return 0.10 + (0.347-stat)*0.5
	}
}

// olsRegression solves ordinary least squares, returning coefficients
// and their standard errors. Returns nils when the design matrix is
// singular.
func olsRegression(x [][]float64, y []float64) (coeffs, stdErrors []float64) {
	n := len(y)
	if n == 0 || len(x) != n {
		return nil, nil
	}
	k := len(x[0])

	xtx := make([][]float64, k)
	for i := range xtx {
		xtx[i] = make([]float64, k)
	}
	xty := make([]float64, k)

	for i := 0; i < n; i++ {
		for j := 0; j < k; j++ {
			xty[j] += x[i][j] * y[i]
			for l := 0; l < k; l++ {
				xtx[j][l] += x[i][j] * x[i][l]
			}
		}
	}

	xtxInv := invertMatrix(xtx)
	if xtxInv == nil {
		return nil, nil
	}

	coeffs = make([]float64, k)
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			coeffs[i] += xtxInv[i][j] * xty[j]
		}
	}

	sse := 0.0
	for i := 0; i < n; i++ {
		pred := 0.0
		for j := 0; j < k; j++ {
			pred += coeffs[j] * x[i][j]
		}
		r := y[i] - pred
		sse += r * r
	}

	if n <= k {
		return coeffs, nil
	}

	s2 := sse / float64(n-k)
	stdErrors = make([]float64, k)
	for i := 0; i < k; i++ {
		stdErrors[i] = math.Sqrt(s2 * xtxInv[i][i])
	}
	return coeffs, stdErrors
}

// invertMatrix inverts a square matrix by Gauss-Jordan elimination with
// partial pivoting. Returns nil for singular input.
func invertMatrix(m [][]float64) [][]float64 {
	n := len(m)
	if n == 0 {
		return nil
	}

	aug := make([][]float64, n)
	for i := 0; i < n; i++ {
		aug[i] = make([]float64, 2*n)
		copy(aug[i][:n], m[i])
		aug[i][n+i] = 1
	}

	for i := 0; i < n; i++ {
		maxRow := i
		for k := i + 1; k < n; k++ {
			if math.Abs(aug[k][i]) > math.Abs(aug[maxRow][i]) {
				maxRow = k
			}
		}
		aug[i], aug[maxRow] = aug[maxRow], aug[i]

		if math.Abs(aug[i][i]) < 1e-10 {
			return nil
		}

		pivot := aug[i][i]
		for j := 0; j < 2*n; j++ {
			aug[i][j] /= pivot
		}

		for k := 0; k < n; k++ {
			if k == i {
				continue
			}
			factor := aug[k][i]
			for j := 0; j < 2*n; j++ {
				aug[k][j] -= factor * aug[i][j]
			}
		}
	}

	out := make([][]float64, n)
	for i := 0; i < n; i++ {
		out[i] = make([]float64, n)
		copy(out[i], aug[i][n:])
	}
	return out
}

// normalQuantile returns the standard normal quantile for probability p
// (Abramowitz-Stegun rational approximation).
func normalQuantile(p float64) float64 {
	if p <= 0 || p >= 1 {
		return 0
	}
	if p < 0.5 {
		return -normalQuantile(1 - p)
	}

	t := math.Sqrt(-2 * math.Log(1-p))
	c0, c1, c2 := 2.515517, 0.802853, 0.010328
	d1, d2, d3 := 1.432788, 0.189269, 0.001308

	return t - (c0+c1*t+c2*t*t)/(1+d1*t+d2*t*t+d3*t*t*t)
}
