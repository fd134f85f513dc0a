package report

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderCSV_Layout(t *testing.T) {
	rows := []SummaryRow{
		summaryRow(1, "IEST-10", 10, 100),
		summaryRow(1, "IEST-10", 20, 50),
		summaryRow(2, "IEST-9", 10, 0),
	}
	rows[0].StudentName, rows[1].StudentName, rows[2].StudentName = "Ana", "Ana", "Beto"

	data, err := RenderCSV(Project(rows, OrderAsc))
	require.NoError(t, err)

	require.True(t, bytes.HasPrefix(data, []byte(BOM)))
	want := "ID IEST,Nombre,Módulo 0,Módulo 1\n" +
		"IEST-9,Beto,0%,-\n" +
		"IEST-10,Ana,100%,50%\n"
	assert.Equal(t, want, string(data[len(BOM):]))
}

func TestRenderCSV_EmptyMatrix(t *testing.T) {
	data, err := RenderCSV(Project(nil, OrderAsc))
	require.NoError(t, err)
	assert.Equal(t, BOM+"ID IEST,Nombre\n", string(data))
}

func TestRenderCSV_RoundTripsQuotedNames(t *testing.T) {
	names := []string{
		`Pérez, Juan "JJ"`,
		"Line\nBreak",
		`""`,
	}

	var rows []SummaryRow
	for i, name := range names {
		r := summaryRow(int64(i+1), "", 10, 75)
		r.StudentName = name
		rows = append(rows, r)
	}

	data, err := RenderCSV(Project(rows, OrderAsc))
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(strings.TrimPrefix(string(data), BOM))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, len(names)+1)

	for i, name := range names {
		assert.Equal(t, name, records[i+1][1])
		assert.Equal(t, "75%", records[i+1][2])
	}
}
