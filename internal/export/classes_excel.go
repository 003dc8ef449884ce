package export

import (
	"fmt"
	"strconv"
	"time"

	"festival-mileage/internal/domain"
	"github.com/xuri/excelize/v2"
)

const classSheet = "Classes"

var classHeader = []string{"Rank", "Grade", "Class", "Members", "Total base mileage", "Average base mileage"}

// ClassRankingWorkbook renders the class ranking on a single sheet. The caller
// closes the returned file.
func ClassRankingWorkbook(rows []domain.ClassStat, generated time.Time) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", classSheet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	for col, h := range classHeader {
		cell := fmt.Sprintf("%s1", colName(col+1))
		if err := f.SetCellStr(classSheet, cell, h); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("set cell %s: %w", cell, err)
		}
	}
	for i, r := range rows {
		line := i + 2
		values := []any{i + 1, r.Grade, r.Class, r.Members, r.Total, r.Average}
		for c, v := range values {
			cell := fmt.Sprintf("%s%d", colName(c+1), line)
			if err := f.SetCellValue(classSheet, cell, v); err != nil {
				_ = f.Close()
				return nil, fmt.Errorf("set cell %s: %w", cell, err)
			}
		}
	}
	if len(rows) > 0 {
		if style, err := f.NewStyle(&excelize.Style{NumFmt: 2}); err == nil {
			last := strconv.Itoa(len(rows) + 1)
			_ = f.SetCellStyle(classSheet, "F2", "F"+last, style)
		}
	}
	_ = f.SetDocProps(&excelize.DocProperties{
		Title:   "Class ranking",
		Created: generated.UTC().Format(time.RFC3339),
	})

	if err := ApplyDefaultExcelFormatting(f, classSheet); err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}

// ClassRankingFilename names the export after the day it was generated.
func ClassRankingFilename(generated time.Time) string {
	return sanitizeFileName(fmt.Sprintf("class ranking %s.xlsx", generated.Format("2006-01-02 1504")))
}
