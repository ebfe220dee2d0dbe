package infra

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/eliteGoblin/focusd/discipline/internal/domain"
)

const (
	summarySheet    = "Summaries"
	punishmentSheet = "Punishments"
)

var (
	summaryHeaders = []string{
		"date", "violations", "escapes", "fails", "score", "streak", "longest_streak",
		"worst_app", "peak_hour", "total_duration_s", "avg_escape_s",
	}
	punishmentHeaders = []string{
		"id", "app", "violation", "violated_at", "elapsed_s", "punishment", "intensity", "channels",
		"presented_at", "resolved_at", "outcome", "escape_method", "escape_s", "attempts", "denied_escapes",
	}
)

// ExportWorkbook writes summaries and punishment records to an xlsx file, one sheet each.
func ExportWorkbook(path string, summaries []domain.DaySummary, records []domain.PunishmentRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(punishmentSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	rows := make([][]interface{}, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, summaryRow(s))
	}
	if err := writeSheet(f, summarySheet, summaryHeaders, rows); err != nil {
		return err
	}

	rows = rows[:0]
	for _, r := range records {
		rows = append(rows, punishmentRow(r))
	}
	if err := writeSheet(f, punishmentSheet, punishmentHeaders, rows); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook %q: %w", path, err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, headers []string, rows [][]interface{}) error {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	for r, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, r+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

func summaryRow(s domain.DaySummary) []interface{} {
	worst := ""
	if app, ok := s.WorstApp.Get(); ok {
		worst = app
	}
	var peak interface{} = ""
	if h, ok := s.PeakWeaknessHour.Get(); ok {
		peak = h
	}
	return []interface{}{
		s.Date, s.TotalViolations, s.TotalEscapes, s.TotalFails, s.DisciplineScore,
		s.CurrentStreak, s.LongestStreak, worst, peak,
		s.TotalDuration.Seconds(), s.AverageEscapeTime.Seconds(),
	}
}

func punishmentRow(r domain.PunishmentRecord) []interface{} {
	channels := make([]string, 0, len(r.Spec.Channels))
	for _, ch := range r.Spec.Channels {
		channels = append(channels, string(ch))
	}
	method := ""
	if m, ok := r.EscapeMethod.Get(); ok {
		method = string(m)
	}
	var escape interface{} = ""
	if d, ok := r.EscapeTime.Get(); ok {
		escape = d.Seconds()
	}
	return []interface{}{
		r.ID, r.Violation.AppID, string(r.Violation.Type), r.Violation.Timestamp, r.Violation.Elapsed.Seconds(),
		string(r.Spec.Type), r.Spec.Intensity, strings.Join(channels, ","),
		r.PresentedAt, r.ResolvedAt, string(r.Outcome), method, escape, len(r.Attempts), r.DeniedEscapes,
	}
}
