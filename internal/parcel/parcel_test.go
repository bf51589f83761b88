package parcel

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestParseJurisdiction(t *testing.T) {
	j, err := ParseJurisdiction(" Charleston ")
	require.NoError(t, err)
	assert.Equal(t, Charleston, j)

	j, err = ParseJurisdiction("BERKELEY")
	require.NoError(t, err)
	assert.Equal(t, Berkeley, j)

	j, err = ParseJurisdiction("dorchester")
	assert.True(t, errors.Is(err, ErrUnknownJurisdiction))
	assert.Equal(t, Unknown, j)
}

func TestSearchID(t *testing.T) {
	assert.Equal(t, "123456789", Request{ID: "123-45-6789"}.SearchID())
	assert.Equal(t, "1230001001", Request{ID: "123.00-01 001"}.SearchID())
}

func TestReadCSVWithHeader(t *testing.T) {
	in := "County,Owner,TMS\nCharleston,Smith,123-45-6789\n berkeley ,Jones, 234-00-00-001 \nDorchester,Doe,999\n,,\n"

	reqs, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []Request{
		{ID: "123-45-6789", Jurisdiction: Charleston, Tag: "Charleston"},
		{ID: "234-00-00-001", Jurisdiction: Berkeley, Tag: "berkeley"},
		{ID: "999", Jurisdiction: Unknown, Tag: "Dorchester"},
	}, reqs)
}

func TestReadCSVWithoutHeader(t *testing.T) {
	reqs, err := ReadCSV(strings.NewReader("123-45-6789,charleston\n"))
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, Charleston, reqs[0].Jurisdiction)
}

func TestReadCSVShortRow(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("TMS,County\n123\n"))
	assert.Error(t, err)
}

func workbook(t *testing.T, rows ...[]interface{}) *bytes.Buffer {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestReadXLSX(t *testing.T) {
	buf := workbook(t,
		[]interface{}{"TMS", "County"},
		[]interface{}{"123-45-6789", "Charleston"},
		[]interface{}{},
		[]interface{}{"234-00-00-001", "Berkeley"},
		[]interface{}{"999", "Dorchester"},
	)

	reqs, err := Read("parcels.xlsx", buf)
	require.NoError(t, err)
	assert.Equal(t, []Request{
		{ID: "123-45-6789", Jurisdiction: Charleston, Tag: "Charleston"},
		{ID: "234-00-00-001", Jurisdiction: Berkeley, Tag: "Berkeley"},
		{ID: "999", Jurisdiction: Unknown, Tag: "Dorchester"},
	}, reqs)
}

func TestReadPicksFormatByExtension(t *testing.T) {
	reqs, err := Read("parcels.csv", strings.NewReader("TMS,County\n123,berkeley\n"))
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, Berkeley, reqs[0].Jurisdiction)

	_, err = Read("parcels.XLSX", strings.NewReader("TMS,County\n123,berkeley\n"))
	assert.Error(t, err, "a CSV body is not a workbook")
}
