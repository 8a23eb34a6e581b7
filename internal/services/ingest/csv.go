package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"FinCast/internal/domain/models"
)

func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = false

	var records [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: csv: %v", models.ErrDataFormat, err)
		}
		records = append(records, rec)
	}
	return records, nil
}
