package dataprocessing

import (
	"log/slog"
	"math"
	"sort"
	"time"
)

// WideTable is a date-indexed table with one column per category label.
// After projection the index is strictly increasing, spaced at exactly
// one-month intervals, and no cell is null.
type WideTable struct {
	Dates   []time.Time
	Columns []string
	// Values is row-major: Values[i][j] is the cell for Dates[i] and
	// Columns[j].
	Values [][]float64
}

// Empty reports whether the table has no rows.
func (w *WideTable) Empty() bool {
	return w == nil || len(w.Dates) == 0
}

// Column returns the values of the named column.
func (w *WideTable) Column(name string) ([]float64, bool) {
	if w == nil {
		return nil, false
	}
	for j, col := range w.Columns {
		if col == name {
			out := make([]float64, len(w.Dates))
			for i := range w.Dates {
				out[i] = w.Values[i][j]
			}
			return out, true
		}
	}
	return nil, false
}

// FirstColumn returns the dates and values of the left-most column, the
// default forecast target.
func (w *WideTable) FirstColumn() ([]time.Time, []float64, bool) {
	if w.Empty() || len(w.Columns) == 0 {
		return nil, nil, false
	}
	values := make([]float64, len(w.Dates))
	for i := range w.Dates {
		values[i] = w.Values[i][0]
	}
	return w.Dates, values, true
}

// Projector pivots a tidy table into a dense wide table.
type Projector struct {
	logger *slog.Logger
}

// NewProjector creates a wide projector.
func NewProjector(logger *slog.Logger) *Projector {
	return &Projector{
		logger: logger.With(slog.String("component", "wide_projector")),
	}
}

// Pivot converts a tidy table into a wide table. Dates are anchored to
// their month start; values sharing a (month, category) cell collapse by
// mean. The index is reindexed to the contiguous month range, interior
// gaps are linearly interpolated per column, and remaining leading and
// trailing gaps are filled backward then forward, so the result is fully
// dense.
//
// With no category column (or an unknown one) the projection yields a
// single "value" column. A nil or empty tidy input yields an empty table
// rather than an error; surfacing "no data" is the caller's decision.
func (p *Projector) Pivot(t *TidyTable, categoryCol string) *WideTable {
	if t.Len() == 0 {
		return &WideTable{}
	}

	hasCategory := false
	if categoryCol != "" {
		for _, col := range t.LabelColumns {
			if col == categoryCol {
				hasCategory = true
				break
			}
		}
	}

	// Accumulate cell sums keyed by (month, category).
	type cell struct {
		sum   float64
		count int
	}
	cells := make(map[time.Time]map[string]*cell)
	columnSet := make(map[string]struct{})

	for _, row := range t.Rows {
		month := MonthStart(row.Date)
		column := "value"
		if hasCategory {
			column = row.Labels[categoryCol]
			if column == "" {
				// Unclassified category code; the row belongs to no column.
				continue
			}
		}

		byColumn, ok := cells[month]
		if !ok {
			byColumn = make(map[string]*cell)
			cells[month] = byColumn
		}
		c, ok := byColumn[column]
		if !ok {
			c = &cell{}
			byColumn[column] = c
		}
		c.sum += row.Value
		c.count++
		columnSet[column] = struct{}{}
	}

	if len(cells) == 0 {
		return &WideTable{}
	}

	columns := make([]string, 0, len(columnSet))
	for col := range columnSet {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	// Contiguous month-start index over the observed range.
	var first, last time.Time
	for month := range cells {
		if first.IsZero() || month.Before(first) {
			first = month
		}
		if last.IsZero() || month.After(last) {
			last = month
		}
	}
	n := MonthsBetween(first, last) + 1

	wide := &WideTable{
		Dates:   make([]time.Time, n),
		Columns: columns,
		Values:  make([][]float64, n),
	}
	for i := 0; i < n; i++ {
		month := AddMonths(first, i)
		wide.Dates[i] = month
		row := make([]float64, len(columns))
		for j, col := range columns {
			row[j] = math.NaN()
			if byColumn, ok := cells[month]; ok {
				if c, ok := byColumn[col]; ok {
					row[j] = c.sum / float64(c.count)
				}
			}
		}
		wide.Values[i] = row
	}

	for j := range columns {
		fillColumn(wide, j)
	}

	p.logger.Debug("pivoted tidy table",
		slog.Int("months", n),
		slog.Int("columns", len(columns)),
	)

	return wide
}

// fillColumn makes column j dense: linear interpolation for interior
// gaps, then nearest-known fill for leading and trailing gaps.
func fillColumn(w *WideTable, j int) {
	n := len(w.Dates)

	prev := -1
	for i := 0; i < n; i++ {
		if math.IsNaN(w.Values[i][j]) {
			continue
		}
		if prev >= 0 && i-prev > 1 {
			lo := w.Values[prev][j]
			hi := w.Values[i][j]
			span := float64(i - prev)
			for k := prev + 1; k < i; k++ {
				w.Values[k][j] = lo + (hi-lo)*float64(k-prev)/span
			}
		}
		prev = i
	}

	// Backward fill the leading gap, forward fill the trailing gap.
	firstKnown, lastKnown := -1, -1
	for i := 0; i < n; i++ {
		if !math.IsNaN(w.Values[i][j]) {
			if firstKnown < 0 {
				firstKnown = i
			}
			lastKnown = i
		}
	}
	if firstKnown < 0 {
		return
	}
	for i := 0; i < firstKnown; i++ {
		w.Values[i][j] = w.Values[firstKnown][j]
	}
	for i := lastKnown + 1; i < n; i++ {
		w.Values[i][j] = w.Values[lastKnown][j]
	}
}
