package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
)

// BOM makes spreadsheet programs open the CSV as UTF-8.
const BOM = "\ufeff"

// Missing is written for a student without a row for a module.
const Missing = "-"

// CSV header columns preceding the module labels.
const (
	HeaderID   = "ID IEST"
	HeaderName = "Nombre"
)

// WriteCSV writes the matrix as CSV: BOM, header "ID IEST,Nombre,<labels>",
// then one record per student in matrix order.
func WriteCSV(w io.Writer, m *Matrix) error {
	if _, err := io.WriteString(w, BOM); err != nil {
		return fmt.Errorf("write bom: %w", err)
	}

	cw := csv.NewWriter(w)

	header := make([]string, 0, len(m.Modules)+2)
	header = append(header, HeaderID, HeaderName)
	for _, col := range m.Modules {
		header = append(header, col.Label)
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	record := make([]string, len(header))
	for _, s := range m.Students {
		record[0] = s.DisplayID()
		record[1] = s.Name
		for i, col := range m.Modules {
			if cell, ok := m.Cell(s.ID, col.ID); ok {
				record[i+2] = cell.String()
			} else {
				record[i+2] = Missing
			}
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write student %d: %w", s.ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// RenderCSV returns the CSV text of a matrix.
func RenderCSV(m *Matrix) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
