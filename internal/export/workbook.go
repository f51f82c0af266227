package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/pavelanni/teachmate/internal/model"
)

// FeedbackSheet is the sheet name of the feedback workbook.
const FeedbackSheet = "Feedback"

var feedbackHeader = []string{"Timestamp", "Course", "What worked", "What did not", "Rating", "Suggestion"}

// WriteFeedbackWorkbook writes entries as a single-sheet XLSX workbook, one
// row per entry in the given order. Unrated entries leave the rating cell empty.
func WriteFeedbackWorkbook(w io.Writer, entries []model.FeedbackEntry) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", FeedbackSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	for i, h := range feedbackHeader {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(FeedbackSheet, cell, h); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	if err := f.SetCellStyle(FeedbackSheet, "A1", "F1", bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, e := range entries {
		row := i + 2
		values := []any{
			e.Timestamp.UTC().Format(time.DateTime),
			e.Course,
			e.WhatWorked,
			e.WhatDidNot,
			nil,
			e.Suggestion,
		}
		if e.Rated() {
			values[4] = *e.Rating
		}
		for col, v := range values {
			if v == nil {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(FeedbackSheet, cell, v); err != nil {
				return fmt.Errorf("write row %d: %w", row, err)
			}
		}
	}

	_ = f.SetColWidth(FeedbackSheet, "A", "A", 20)
	_ = f.SetColWidth(FeedbackSheet, "B", "B", 24)
	_ = f.SetColWidth(FeedbackSheet, "C", "D", 40)
	_ = f.SetColWidth(FeedbackSheet, "F", "F", 80)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
