package pipeline

import (
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"replenish/internal"
)

func ExportTableToXLSX(table internal.Table, outputPath string) error {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	for i, column := range table.Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, column)
	}

	for i, row := range table.Rows {
		r := i + 2
		for j, value := range row {
			cell, _ := excelize.CoordinatesToCellName(j+1, r)
			_ = f.SetCellValue(sheet, cell, value)
		}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}
