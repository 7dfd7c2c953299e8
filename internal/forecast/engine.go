package forecast

import (
	"log/slog"
	"math"
	"time"

	apperrors "macrolink/internal/errors"
)

// Search bounds for the stepwise order search. Non-seasonal AR/MA orders
// range over [0,2], seasonal over [0,1]; the seasonal differencing order
// is fixed at 1 and the non-seasonal one is chosen by stationarity
// testing. These ranges are part of the engine's contract.
const (
	maxP  = 2
	maxQ  = 2
	maxSP = 1
	maxSQ = 1
	maxD  = 2
)

// confidenceLevel for forecast intervals.
const confidenceLevel = 0.95

// Order is the non-seasonal (p,d,q) specification.
type Order struct {
	P int `json:"p"`
	D int `json:"d"`
	Q int `json:"q"`
}

// SeasonalOrder is the seasonal (P,D,Q,m) specification.
type SeasonalOrder struct {
	P      int `json:"P"`
	D      int `json:"D"`
	Q      int `json:"Q"`
	Period int `json:"m"`
}

// ModelFit describes the model chosen by the order search.
type ModelFit struct {
	Order           Order         `json:"order"`
	SeasonalOrder   SeasonalOrder `json:"seasonal_order"`
	AIC             float64       `json:"aic"`
	BIC             float64       `json:"bic"`
	ModelsEvaluated int           `json:"models_evaluated"`
}

// Diagnostics reports the residual autocorrelation test.
type Diagnostics struct {
	LjungBoxPValue float64 `json:"lb_pvalue"`
	IsWhiteNoise   bool    `json:"is_white_noise"`
	ResidualMean   float64 `json:"residuals_mean"`
	ResidualStd    float64 `json:"residuals_std"`
}

// ForecastPoint is one forecast step with its 95% bounds.
type ForecastPoint struct {
	Date  time.Time
	Mean  float64
	Lower float64
	Upper float64
}

// Forecast is the ordered horizon continuing immediately after the last
// history date.
type Forecast struct {
	Points []ForecastPoint
}

// ExogenousSeries is one optional regressor aligned with the target.
type ExogenousSeries struct {
	Name   string
	Points []DataPoint
}

// Engine owns exactly one normalized monthly series and serves fit,
// diagnose and predict for it. It is bound to a single request and must
// not be shared across concurrent calls; state is private to the
// instance and accessed sequentially.
type Engine struct {
	series *monthlySeries
	logger *slog.Logger

	// Exogenous regressors resampled to the target's index, one column
	// per series, plus the linear projection removed before the SARIMA
	// fit and added back at prediction.
	exogNames  []string
	exogValues [][]float64
	exogCoeffs []float64

	fitted bool
	model  *sarimaModel
}

// New constructs an engine bound to the given series. The input is
// sorted ascending, resampled to month-start frequency by in-month mean
// and linearly interpolated, so downstream model search always sees a
// gap-free temporal ordering.
func New(points []DataPoint, logger *slog.Logger) (*Engine, error) {
	return NewWithExogenous(points, nil, logger)
}

// NewWithExogenous constructs an engine with optional exogenous
// regressors. Each regressor is normalized the same way as the target
// and must cover the target's full monthly range.
func NewWithExogenous(points []DataPoint, exog []ExogenousSeries, logger *slog.Logger) (*Engine, error) {
	if len(points) == 0 {
		return nil, apperrors.NewEmptyDatasetError("target")
	}

	e := &Engine{
		series: resampleMonthly(points),
		logger: logger.With(slog.String("component", "forecast_engine")),
	}

	for _, x := range exog {
		if len(x.Points) == 0 {
			return nil, apperrors.NewEmptyDatasetError(x.Name)
		}
		resampled := resampleMonthly(x.Points)
		aligned, err := alignToIndex(resampled, e.series.Dates, x.Name)
		if err != nil {
			return nil, err
		}
		e.exogNames = append(e.exogNames, x.Name)
		e.exogValues = append(e.exogValues, aligned)
	}

	return e, nil
}

// Len returns the number of normalized monthly observations.
func (e *Engine) Len() int {
	return e.series.Len()
}

// History returns the normalized monthly series the engine was fit on.
func (e *Engine) History() ([]time.Time, []float64) {
	return e.series.Dates, e.series.Values
}

// alignToIndex reads the regressor at every target month. The regressor
// is dense over its own range after resampling, so only coverage can
// fail.
func alignToIndex(s *monthlySeries, index []time.Time, name string) ([]float64, error) {
	byDate := make(map[time.Time]float64, s.Len())
	for i, d := range s.Dates {
		byDate[d] = s.Values[i]
	}

	out := make([]float64, len(index))
	for i, d := range index {
		v, ok := byDate[d]
		if !ok {
			return nil, apperrors.NewValidationError("exogenous",
				"series "+name+" does not cover the target month "+d.Format("2006-01"))
		}
		out[i] = v
	}
	return out, nil
}

// Fit runs the stepwise SARIMA order search and transitions the engine
// to the fitted state. The non-seasonal differencing order is chosen by
// KPSS and ADF stationarity tests; when seasonal is true the seasonal
// differencing order is fixed at 1 at the given period. Candidates are
// ranked by AIC and non-converging ones are skipped rather than failing
// the search.
func (e *Engine) Fit(seasonal bool, period int) (*ModelFit, error) {
	target := e.series.Values
	if len(e.exogValues) > 0 {
		var err error
		target, err = e.removeExogenousProjection()
		if err != nil {
			return nil, err
		}
	}

	d := chooseDifferencing(target)
	sd := 0
	m := 1
	if seasonal && period > 1 {
		sd = 1
		m = period
	}

	best, evaluated := stepwiseSearch(target, d, sd, m, seasonal)
	if best == nil {
		return nil, apperrors.NewInternalError(
			"model search exhausted all candidates without convergence", nil).
			WithContext("candidates_evaluated", evaluated)
	}

	e.model = best
	e.fitted = true

	fit := &ModelFit{
		Order:           Order{P: best.p, D: best.d, Q: best.q},
		SeasonalOrder:   SeasonalOrder{P: best.sp, D: best.sd, Q: best.sq, Period: best.period},
		AIC:             best.aic,
		BIC:             best.bic,
		ModelsEvaluated: evaluated,
	}

	e.logger.Info("model search complete",
		slog.Int("p", fit.Order.P),
		slog.Int("d", fit.Order.D),
		slog.Int("q", fit.Order.Q),
		slog.Int("P", fit.SeasonalOrder.P),
		slog.Int("D", fit.SeasonalOrder.D),
		slog.Int("Q", fit.SeasonalOrder.Q),
		slog.Int("m", fit.SeasonalOrder.Period),
		slog.Float64("aic", fit.AIC),
		slog.Int("evaluated", evaluated),
	)

	return fit, nil
}

// removeExogenousProjection regresses the target on the exogenous
// columns and returns the residual series for the SARIMA fit. The
// projection coefficients are kept so Predict can add the exogenous
// contribution back.
func (e *Engine) removeExogenousProjection() ([]float64, error) {
	n := e.series.Len()
	k := len(e.exogValues)

	x := make([][]float64, n)
	for i := 0; i < n; i++ {
		row := make([]float64, k+1)
		row[0] = 1
		for j := 0; j < k; j++ {
			row[j+1] = e.exogValues[j][i]
		}
		x[i] = row
	}

	coeffs, _ := olsRegression(x, e.series.Values)
	if coeffs == nil {
		return nil, apperrors.NewInternalError(
			"exogenous projection is singular; regressors may be collinear", nil)
	}
	e.exogCoeffs = coeffs

	resid := make([]float64, n)
	for i := 0; i < n; i++ {
		pred := coeffs[0]
		for j := 0; j < k; j++ {
			pred += coeffs[j+1] * e.exogValues[j][i]
		}
		resid[i] = e.series.Values[i] - pred
	}
	return resid, nil
}

// Diagnose runs the Ljung-Box residual autocorrelation test on the
// fitted model, at lag 12 when at least 13 residuals exist and lag 1
// otherwise.
func (e *Engine) Diagnose() (*Diagnostics, error) {
	if !e.fitted {
		return nil, apperrors.NewNotFittedError()
	}

	// Residuals live on the differenced scale, so their count is the
	// history length minus d and sd*period. A minimum-length seasonal
	// history therefore lands on the lag-1 path even though the full
	// sample would support lag 12.
	resid := e.model.residuals
	lags := 12
	if len(resid) < 13 {
		lags = 1
	}

	lb := ljungBox(resid, lags)

	return &Diagnostics{
		LjungBoxPValue: lb.PValue,
		IsWhiteNoise:   lb.PValue > 0.05,
		ResidualMean:   mean(resid),
		ResidualStd:    std(resid),
	}, nil
}

// Predict produces n point forecasts with 95% bounds at month-start
// frequency, starting exactly one month after the last history date.
// When the engine carries exogenous regressors, futureExog must provide
// one slice per regressor, each of length n, in construction order.
func (e *Engine) Predict(n int, futureExog [][]float64) (*Forecast, error) {
	if !e.fitted {
		return nil, apperrors.NewNotFittedError()
	}
	if n < 1 {
		return nil, apperrors.NewValidationError("n_periods", "must be at least 1")
	}

	if len(e.exogValues) > 0 {
		if len(futureExog) != len(e.exogValues) {
			return nil, apperrors.NewValidationError("future_exog",
				"must provide one series per exogenous regressor")
		}
		for j, col := range futureExog {
			if len(col) != n {
				return nil, apperrors.NewValidationError("future_exog",
					"series "+e.exogNames[j]+" must cover the full horizon")
			}
		}
	}

	meanVals, lower, upper := e.model.forecastWithInterval(n, confidenceLevel)

	if len(e.exogCoeffs) > 0 {
		for h := 0; h < n; h++ {
			contrib := e.exogCoeffs[0]
			for j := range e.exogValues {
				contrib += e.exogCoeffs[j+1] * futureExog[j][h]
			}
			meanVals[h] += contrib
			lower[h] += contrib
			upper[h] += contrib
		}
	}

	dates := futureMonths(e.series.Last(), n)
	points := make([]ForecastPoint, n)
	for h := 0; h < n; h++ {
		points[h] = ForecastPoint{
			Date:  dates[h],
			Mean:  meanVals[h],
			Lower: lower[h],
			Upper: upper[h],
		}
	}

	return &Forecast{Points: points}, nil
}

// chooseDifferencing picks the smallest non-seasonal differencing order
// (capped at 2) that makes the series stationary. KPSS and ADF are
// combined: the series counts as stationary when both tests agree, or
// when KPSS fails to reject with room to spare.
func chooseDifferencing(values []float64) int {
	current := values
	for d := 0; d < maxD; d++ {
		kpssOK, kpssP := kpssStationary(current)
		adfOK := adfStationary(current)

		if (kpssOK && adfOK) || (kpssOK && kpssP > 0.1) {
			return d
		}

		current = diff(current)
		if len(current) < 10 {
			return d
		}
	}
	return maxD
}

// stepwiseSearch explores (p,q,P,Q) candidates from a handful of
// starting points, then walks to better neighbors until no single-step
// move lowers the AIC. A heuristic, not a global optimum; the trade-off
// buys bounded search time. Returns nil when nothing converged.
func stepwiseSearch(values []float64, d, sd, period int, seasonal bool) (*sarimaModel, int) {
	type spec struct {
		p, q, sp, sq int
	}

	limSP, limSQ := 0, 0
	if seasonal {
		limSP, limSQ = maxSP, maxSQ
	}

	inBounds := func(s spec) bool {
		return s.p >= 0 && s.p <= maxP &&
			s.q >= 0 && s.q <= maxQ &&
			s.sp >= 0 && s.sp <= limSP &&
			s.sq >= 0 && s.sq <= limSQ
	}

	evaluated := 0
	tried := make(map[spec]bool)
	var best *sarimaModel
	bestAIC := math.Inf(1)
	var bestSpec spec

	try := func(s spec) bool {
		if !inBounds(s) || tried[s] {
			return false
		}
		tried[s] = true

		cand := newSARIMA(s.p, d, s.q, s.sp, sd, s.sq, period)
		if err := cand.fit(values); err != nil {
			// Non-convergent candidates are excluded, not fatal.
			return false
		}
		evaluated++
		if cand.aic < bestAIC {
			bestAIC = cand.aic
			best = cand
			bestSpec = s
			return true
		}
		return false
	}

	for _, s := range []spec{
		{0, 0, 0, 0},
		{1, 0, 1, 0},
		{0, 1, 0, 1},
		{1, 1, 1, 1},
		{2, 2, 1, 1},
	} {
		try(s)
	}
	if best == nil {
		return nil, evaluated
	}

	for improved := true; improved; {
		improved = false
		s := bestSpec
		neighbors := []spec{
			{s.p + 1, s.q, s.sp, s.sq},
			{s.p - 1, s.q, s.sp, s.sq},
			{s.p, s.q + 1, s.sp, s.sq},
			{s.p, s.q - 1, s.sp, s.sq},
			{s.p, s.q, s.sp + 1, s.sq},
			{s.p, s.q, s.sp - 1, s.sq},
			{s.p, s.q, s.sp, s.sq + 1},
			{s.p, s.q, s.sp, s.sq - 1},
		}
		for _, nb := range neighbors {
			if try(nb) {
				improved = true
			}
		}
	}

	return best, evaluated
}
