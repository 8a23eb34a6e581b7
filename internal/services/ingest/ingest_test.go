package ingest

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"FinCast/internal/domain/models"
)

const longCSV = `date,category,amount
2023-01-31,rent,1000
2023-01-31,food,300.5
2023-02-28,rent,1010
2023-02-28,food,
2023-03-31,food,n/a
2023-03-31,travel,120
`

func TestParseLongCSV(t *testing.T) {
	ds, err := Parse(strings.NewReader(longCSV), FormatCSV, models.StrategyRegression)
	require.NoError(t, err)

	assert.Equal(t, []string{"rent", "food", "travel"}, ds.Categories)
	require.Len(t, ds.Observations, 6)
	assert.Equal(t, time.Date(2023, 1, 31, 0, 0, 0, 0, time.UTC), ds.Observations[0].Date)
	assert.Equal(t, 300.5, *ds.Observations[1].Amount)
	assert.Nil(t, ds.Observations[3].Amount)
	assert.Nil(t, ds.Observations[4].Amount)
}

func TestParseHeaderIsCaseInsensitive(t *testing.T) {
	in := "\ufeffDate , Category,AMOUNT,note\n2023-01-31,rent,5,x\n"
	ds, err := Parse(strings.NewReader(in), FormatCSV, models.StrategyDecomposition)
	require.NoError(t, err)
	assert.Equal(t, []string{"rent"}, ds.Categories)
}

func TestParseEpochDates(t *testing.T) {
	// 2023-01-31 and 2023-02-28 as unix seconds and milliseconds
	in := "date,category,amount\n1675123200,rent,1000\n1677542400000,rent,1010\n"
	ds, err := Parse(strings.NewReader(in), FormatCSV, models.StrategyRegression)
	require.NoError(t, err)
	require.Len(t, ds.Observations, 2)
	assert.Equal(t, time.Date(2023, 1, 31, 0, 0, 0, 0, time.UTC), ds.Observations[0].Date)
	assert.Equal(t, time.Date(2023, 2, 28, 0, 0, 0, 0, time.UTC), ds.Observations[1].Date)
}

func TestParseWideForSeasonal(t *testing.T) {
	in := "date,rent,food\n2023-01-31,1000,300\n2023-02-28,1010,\n"

	ds, err := Parse(strings.NewReader(in), FormatCSV, models.StrategySeasonal)
	require.NoError(t, err)
	assert.Equal(t, []string{"rent", "food"}, ds.Categories)
	require.Len(t, ds.Observations, 4)
	assert.Nil(t, ds.Observations[3].Amount)

	_, err = Parse(strings.NewReader(in), FormatCSV, models.StrategyRegression)
	assert.True(t, errors.Is(err, models.ErrDataFormat))
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"header only", "date,category,amount\n"},
		{"missing column", "date,amount\n2023-01-31,5\n"},
		{"bad date", "date,category,amount\nyesterday,rent,5\n"},
		{"empty category", "date,category,amount\n2023-01-31, ,5\n"},
		{"unbalanced quote", "date,category,amount\n2023-01-31,\"rent,5\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.in), FormatCSV, models.StrategySeasonal)
			require.Error(t, err)
			assert.True(t, errors.Is(err, models.ErrDataFormat), err.Error())
		})
	}
}

func TestParseSkipsBlankLines(t *testing.T) {
	in := "date,category,amount\n\n2023-01-31,rent,5\n,,\n"
	ds, err := Parse(strings.NewReader(in), FormatCSV, models.StrategySeasonal)
	require.NoError(t, err)
	assert.Len(t, ds.Observations, 1)
}

func TestDetectFormat(t *testing.T) {
	f, err := DetectFormat("data.XLSX", "")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)

	f, err = DetectFormat("data.csv", "")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = DetectFormat("blob", "xlsx")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)

	_, err = DetectFormat("x.csv", "parquet")
	assert.True(t, errors.Is(err, models.ErrDataFormat))
}

func TestParseXLSX(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{"date", "category", "amount"}))
	for i := 0; i < 3; i++ {
		d := time.Date(2023, time.Month(2+i), 0, 0, 0, 0, 0, time.UTC)
		row := []interface{}{d, "rent", 100 + i}
		require.NoError(t, f.SetSheetRow(sheet, fmt.Sprintf("A%d", i+2), &row))
	}
	require.NoError(t, f.SetSheetRow(sheet, "A5", &[]interface{}{"2023-04-30", "food", "7.5"}))

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	ds, err := Parse(buf, FormatXLSX, models.StrategyDecomposition)
	require.NoError(t, err)
	assert.Equal(t, []string{"rent", "food"}, ds.Categories)
	require.Len(t, ds.Observations, 4)
	assert.Equal(t, time.Date(2023, 1, 31, 0, 0, 0, 0, time.UTC), ds.Observations[0].Date)
	assert.Equal(t, 102.0, *ds.Observations[2].Amount)
	assert.Equal(t, 7.5, *ds.Observations[3].Amount)
}

func TestParseXLSXGarbage(t *testing.T) {
	_, err := Parse(strings.NewReader("not a zip"), FormatXLSX, models.StrategySeasonal)
	assert.True(t, errors.Is(err, models.ErrDataFormat))
}
