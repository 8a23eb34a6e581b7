package ingest

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"FinCast/internal/domain/models"
)

// readXLSX returns the raw cell values of the first sheet. Dates stored as
// numbers come back as serial day numbers.
func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: xlsx: %v", models.ErrDataFormat, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: xlsx: workbook has no sheets", models.ErrDataFormat)
	}

	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: xlsx: read sheet %q: %v", models.ErrDataFormat, sheets[0], err)
	}
	return rows, nil
}
