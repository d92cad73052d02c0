package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// 导出表头
var (
	timelineHeader = []string{
		"Time Span", "State", "Stable Angle (°)", "Risk", "Duration (min)",
	}
	summaryHeader = []string{
		"Metric", "Value",
	}
	distributionHeader = []string{
		"State", "Hours", "Percent (%)",
	}
)

// ExportExcel 把报告导出为 Excel 文件字节
//
// 固定两个工作表：Summary（指标汇总 + 姿态分布）和 Records
// （day 粒度的逐条记录，其他粒度为空表头）。
func ExportExcel(r *Report) ([]byte, error) {
	f := excelize.NewFile()
	// 这里不 defer Close()，WriteToBuffer 需要文件保持打开

	summarySheet := "Summary"
	index, err := f.NewSheet(summarySheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create summary sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	if err := writeSummarySheet(f, summarySheet, headerStyle, r); err != nil {
		f.Close()
		return nil, err
	}

	recordsSheet := "Records"
	if _, err := f.NewSheet(recordsSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create records sheet: %w", err)
	}
	if err := writeRecordsSheet(f, recordsSheet, headerStyle, r); err != nil {
		f.Close()
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to serialize excel file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close excel file: %w", err)
	}
	return buf.Bytes(), nil
}

func writeHeaderRow(f *excelize.File, sheet string, row int, style int, headers []string) error {
	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
			return fmt.Errorf("failed to set header style: %w", err)
		}
	}
	return nil
}

func writeSummarySheet(f *excelize.File, sheet string, headerStyle int, r *Report) error {
	if err := writeHeaderRow(f, sheet, 1, headerStyle, summaryHeader); err != nil {
		return err
	}

	summaryRows := [][2]interface{}{
		{"Period", string(r.Period)},
		{"Window Start", r.WindowStart.Format("2006-01-02 15:04")},
		{"Window End", r.WindowEnd.Format("2006-01-02 15:04")},
		{"Steps", r.Metrics.Steps},
		{"Calories", r.Metrics.Calories},
		{"Distance (km)", r.Metrics.DistanceKm},
		{"Active Minutes", r.Metrics.ActiveMinutes},
	}
	for i, row := range summaryRows {
		rowN := i + 2
		if err := f.SetCellValue(sheet, fmt.Sprintf("A%d", rowN), row[0]); err != nil {
			return fmt.Errorf("failed to write summary row: %w", err)
		}
		if err := f.SetCellValue(sheet, fmt.Sprintf("B%d", rowN), row[1]); err != nil {
			return fmt.Errorf("failed to write summary row: %w", err)
		}
	}

	// 姿态分布紧跟在指标下方
	distStart := len(summaryRows) + 3
	if err := writeHeaderRow(f, sheet, distStart, headerStyle, distributionHeader); err != nil {
		return err
	}
	for i, entry := range r.Distribution {
		rowN := distStart + 1 + i
		if err := f.SetCellValue(sheet, fmt.Sprintf("A%d", rowN), entry.State); err != nil {
			return fmt.Errorf("failed to write distribution row: %w", err)
		}
		if err := f.SetCellValue(sheet, fmt.Sprintf("B%d", rowN), entry.Hours); err != nil {
			return fmt.Errorf("failed to write distribution row: %w", err)
		}
		if err := f.SetCellValue(sheet, fmt.Sprintf("C%d", rowN), entry.Percent); err != nil {
			return fmt.Errorf("failed to write distribution row: %w", err)
		}
	}

	if err := f.SetColWidth(sheet, "A", "A", 20); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}
	if err := f.SetColWidth(sheet, "B", "C", 18); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}
	return nil
}

func writeRecordsSheet(f *excelize.File, sheet string, headerStyle int, r *Report) error {
	if err := writeHeaderRow(f, sheet, 1, headerStyle, timelineHeader); err != nil {
		return err
	}

	for i, entry := range r.Timeline {
		rowN := i + 2
		values := []interface{}{
			entry.Span,
			entry.State,
			entry.Angle,
			entry.Risk,
			entry.DurationMinutes,
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, rowN)
			if err != nil {
				return fmt.Errorf("failed to convert coordinates: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("failed to write record cell %s: %w", cell, err)
			}
		}
	}

	if err := f.SetColWidth(sheet, "A", "E", 16); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}
	return nil
}
