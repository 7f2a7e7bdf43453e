package export

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

const xlsxSheet = "Roster"

// XLSXExporter renders datasets into a single-sheet workbook.
type XLSXExporter struct{}

// NewXLSXExporter constructs an XLSX exporter.
func NewXLSXExporter() *XLSXExporter {
	return &XLSXExporter{}
}

// ContentType implements Renderer.
func (e *XLSXExporter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Extension implements Renderer.
func (e *XLSXExporter) Extension() string { return FormatXLSX }

// Render writes an optional merged title row followed by the header and data rows.
func (e *XLSXExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("xlsx requires at least one header")
	}
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck

	idx, err := f.NewSheet(xlsxSheet)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("drop default sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}

	row := 1
	if data.Title != "" {
		last, _ := excelize.CoordinatesToCellName(len(data.Headers), 1)
		_ = f.SetCellValue(xlsxSheet, "A1", data.Title)
		_ = f.MergeCell(xlsxSheet, "A1", last)
		_ = f.SetCellStyle(xlsxSheet, "A1", last, headerStyle)
		row++
	}

	for col, header := range data.Headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, row)
		_ = f.SetCellValue(xlsxSheet, cell, header)
		_ = f.SetCellStyle(xlsxSheet, cell, cell, headerStyle)
	}

	widths := make([]int, len(data.Headers))
	for i, header := range data.Headers {
		widths[i] = utf8.RuneCountInString(header)
	}
	for _, values := range data.Rows {
		row++
		for col, value := range data.record(values) {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(xlsxSheet, cell, value)
			if n := utf8.RuneCountInString(value); n > widths[col] {
				widths[col] = n
			}
		}
	}
	for col, w := range widths {
		name, _ := excelize.ColumnNumberToName(col + 1)
		_ = f.SetColWidth(xlsxSheet, name, name, float64(w+2))
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}
