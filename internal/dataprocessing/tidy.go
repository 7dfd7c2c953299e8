package dataprocessing

import (
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	apperrors "macrolink/internal/errors"
	"macrolink/internal/estat"
)

// timeAxisMarker identifies the time axis among classified axes. The
// upstream names it "時間軸（月次）", "時間軸（年度次）" and similar.
const timeAxisMarker = "時間軸"

// TidyRow is one cleaned observation: a calendar date, the human labels
// of every classified axis except the time axis, and a numeric value.
type TidyRow struct {
	Date   time.Time
	Labels map[string]string
	Value  float64
}

// TidyTable is a long-format table of cleaned observations, sorted
// ascending by date. Rows whose date failed to parse or whose value was
// non-numeric have already been removed.
type TidyTable struct {
	// LabelColumns lists the label column names in payload axis order.
	LabelColumns []string
	Rows         []TidyRow
}

// Len returns the number of rows.
func (t *TidyTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// CategoryColumn returns the first label column whose name contains the
// given pattern, e.g. "品目" for item classifications.
func (t *TidyTable) CategoryColumn(pattern string) (string, bool) {
	if t == nil {
		return "", false
	}
	for _, col := range t.LabelColumns {
		if strings.Contains(col, pattern) {
			return col, true
		}
	}
	return "", false
}

// Transformer converts coded raw records into a tidy table using the
// payload's classification metadata.
type Transformer struct {
	logger *slog.Logger
}

// NewTransformer creates a tidy transformer.
func NewTransformer(logger *slog.Logger) *Transformer {
	return &Transformer{
		logger: logger.With(slog.String("component", "tidy_transformer")),
	}
}

// Transform replaces coded axis columns with their human label columns,
// coerces the measurement field to a float, parses the time axis through
// the date normalizer, drops unparseable rows and sorts by date.
//
// Per-row failures (bad date label, non-numeric value) are local: the row
// is dropped and processing continues. An empty result after cleaning, or
// a payload without a time axis, is fatal for the request.
func (tr *Transformer) Transform(payload *estat.StatsPayload) (*TidyTable, error) {
	if payload == nil || len(payload.Observations) == 0 {
		return nil, apperrors.NewEmptyResultError("no observations to transform")
	}

	timeAxis, labelAxes := splitAxes(payload.Classifications)
	if timeAxis == nil {
		return nil, apperrors.NewEmptyResultError("required date column not found in payload")
	}

	table := &TidyTable{
		LabelColumns: make([]string, 0, len(labelAxes)),
		Rows:         make([]TidyRow, 0, len(payload.Observations)),
	}
	for _, axis := range labelAxes {
		table.LabelColumns = append(table.LabelColumns, axis.Name)
	}

	timeField := "@" + timeAxis.ID
	droppedDates := 0
	droppedValues := 0

	for _, obs := range payload.Observations {
		value, ok := parseValue(obs["$"])
		if !ok {
			droppedValues++
			continue
		}

		// Time axis codes map to labels like "2023年1月" before parsing;
		// unclassified codes are parsed as-is.
		dateLabel := obs[timeField]
		if mapped, ok := payload.Classifications.Label(timeAxis.ID, dateLabel); ok {
			dateLabel = mapped
		}
		date, err := ParseStatDate(dateLabel)
		if err != nil {
			droppedDates++
			continue
		}

		labels := make(map[string]string, len(labelAxes))
		for _, axis := range labelAxes {
			code := obs["@"+axis.ID]
			label, _ := payload.Classifications.Label(axis.ID, code)
			labels[axis.Name] = label
		}

		table.Rows = append(table.Rows, TidyRow{
			Date:   date,
			Labels: labels,
			Value:  value,
		})
	}

	if droppedDates > 0 || droppedValues > 0 {
		tr.logger.Warn("dropped rows during tidy transform",
			slog.Int("unparseable_dates", droppedDates),
			slog.Int("non_numeric_values", droppedValues),
			slog.Int("kept", len(table.Rows)),
		)
	}

	if len(table.Rows) == 0 {
		return nil, apperrors.NewEmptyResultError("no rows remain after cleaning")
	}

	sort.SliceStable(table.Rows, func(i, j int) bool {
		return table.Rows[i].Date.Before(table.Rows[j].Date)
	})

	return table, nil
}

// splitAxes separates the time axis from the label axes.
func splitAxes(set estat.ClassificationSet) (timeAxis *estat.Classification, labelAxes []estat.Classification) {
	for _, axis := range set.Axes() {
		axis := axis
		if timeAxis == nil && strings.Contains(axis.Name, timeAxisMarker) {
			timeAxis = &axis
			continue
		}
		labelAxes = append(labelAxes, axis)
	}
	return timeAxis, labelAxes
}

// parseValue coerces the measurement field to a float. Non-numeric
// entries (the upstream uses "-" and "…" for suppressed cells) become
// null, which drops the row.
func parseValue(raw string) (float64, bool) {
	s := strings.TrimSpace(strings.ReplaceAll(raw, ",", ""))
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
