package exporter

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"macrolink/internal/dataprocessing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleTable() *dataprocessing.WideTable {
	return &dataprocessing.WideTable{
		Dates: []time.Time{
			time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2023, time.February, 1, 0, 0, 0, 0, time.UTC),
		},
		Columns: []string{"穀類", "野菜"},
		Values: [][]float64{
			{100.5, 200},
			{101.25, 210},
		},
	}
}

func TestWorkbookWrite(t *testing.T) {
	buf, err := NewWorkbookWriter(testLogger()).Write(sampleTable())
	require.NoError(t, err)
	require.NotZero(t, buf.Len())

	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("data")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, []string{"date", "穀類", "野菜"}, rows[0])
	assert.Equal(t, "2023-01-01", rows[1][0])
	assert.Equal(t, "100.5", rows[1][1])
	assert.Equal(t, "2023-02-01", rows[2][0])
}

func TestWorkbookWriteEmpty(t *testing.T) {
	w := NewWorkbookWriter(testLogger())

	_, err := w.Write(nil)
	assert.Error(t, err)

	_, err = w.Write(&dataprocessing.WideTable{})
	assert.Error(t, err)
}
