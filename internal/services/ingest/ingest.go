package ingest

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"FinCast/internal/domain/models"
	"FinCast/internal/services/features"
	"FinCast/pkg/util"
)

// Format is the encoding of an uploaded table.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

const (
	colDate     = "date"
	colCategory = "category"
	colAmount   = "amount"
)

// DetectFormat picks the format from an explicit override, else from the file
// extension, defaulting to CSV.
func DetectFormat(filename, override string) (Format, error) {
	if override != "" {
		switch f := Format(strings.ToLower(override)); f {
		case FormatCSV, FormatXLSX:
			return f, nil
		default:
			return "", fmt.Errorf("%w: unsupported format %q", models.ErrDataFormat, override)
		}
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	default:
		return FormatCSV, nil
	}
}

// Parse reads a table and returns it in long form. Wide tables (a date column
// followed by one column per category) are only accepted for strategies that
// take them.
func Parse(r io.Reader, format Format, strategy models.Strategy) (models.Dataset, error) {
	var (
		records [][]string
		err     error
	)
	switch format {
	case FormatXLSX:
		records, err = readXLSX(r)
	case FormatCSV, "":
		records, err = readCSV(r)
	default:
		err = fmt.Errorf("%w: unsupported format %q", models.ErrDataFormat, format)
	}
	if err != nil {
		return models.Dataset{}, err
	}
	return FromRecords(records, strategy)
}

// FromRecords interprets raw rows, the first being the header.
func FromRecords(records [][]string, strategy models.Strategy) (models.Dataset, error) {
	records = dropBlankRows(records)
	if len(records) == 0 {
		return models.Dataset{}, fmt.Errorf("%w: empty table", models.ErrDataFormat)
	}
	if len(records) == 1 {
		return models.Dataset{}, fmt.Errorf("%w: table has a header but no rows", models.ErrDataFormat)
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = util.NormalizeHeader(h)
	}

	di, ci, ai := indexOf(header, colDate), indexOf(header, colCategory), indexOf(header, colAmount)
	switch {
	case di >= 0 && ci >= 0 && ai >= 0:
		return parseLong(records[1:], di, ci, ai)
	case strategy.AcceptsWide() && di == 0 && len(header) > 1:
		wide, err := parseWide(records[0], records[1:])
		if err != nil {
			return models.Dataset{}, err
		}
		return features.MeltWide(wide)
	default:
		return models.Dataset{}, fmt.Errorf("%w: expected columns date, category, amount; got %v",
			models.ErrDataFormat, header)
	}
}

func parseLong(rows [][]string, di, ci, ai int) (models.Dataset, error) {
	obs := make([]models.Observation, 0, len(rows))
	for i, row := range rows {
		line := i + 2
		date, err := parseDateCell(cell(row, di))
		if err != nil {
			return models.Dataset{}, fmt.Errorf("%w: row %d: %v", models.ErrDataFormat, line, err)
		}
		category := strings.TrimSpace(cell(row, ci))
		if category == "" {
			return models.Dataset{}, fmt.Errorf("%w: row %d: empty category", models.ErrDataFormat, line)
		}
		obs = append(obs, models.Observation{
			Date:     date,
			Category: category,
			Amount:   amountCell(cell(row, ai)),
		})
	}
	return models.NewDataset(obs), nil
}

func parseWide(header []string, rows [][]string) (models.WideTable, error) {
	t := models.WideTable{
		Dates: make([]time.Time, 0, len(rows)),
		Cells: make([][]*float64, 0, len(rows)),
	}
	for _, h := range header[1:] {
		name := strings.TrimSpace(h)
		if name == "" {
			return t, fmt.Errorf("%w: unnamed category column", models.ErrDataFormat)
		}
		t.Columns = append(t.Columns, name)
	}

	for i, row := range rows {
		date, err := parseDateCell(cell(row, 0))
		if err != nil {
			return t, fmt.Errorf("%w: row %d: %v", models.ErrDataFormat, i+2, err)
		}
		values := make([]*float64, len(t.Columns))
		for j := range t.Columns {
			values[j] = amountCell(cell(row, j+1))
		}
		t.Dates = append(t.Dates, date)
		t.Cells = append(t.Cells, values)
	}
	return t, nil
}

func parseDateCell(s string) (time.Time, error) {
	if d, ok := util.ParseDate(s); ok {
		return d, nil
	}
	if d, ok := util.ParseExcelSerial(s); ok {
		return d, nil
	}
	if d, ok := util.ParseTime(s); ok {
		return d, nil
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

func amountCell(s string) *float64 {
	v, ok := util.ParseAmount(s)
	if !ok {
		return nil
	}
	return &v
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func indexOf(header []string, name string) int {
	for i, h := range header {
		if h == name {
			return i
		}
	}
	return -1
}

func dropBlankRows(records [][]string) [][]string {
	out := records[:0:0]
	for _, r := range records {
		blank := true
		for _, c := range r {
			if strings.TrimSpace(c) != "" {
				blank = false
				break
			}
		}
		if !blank {
			out = append(out, r)
		}
	}
	return out
}
