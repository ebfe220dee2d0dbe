package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/discipline/internal/config"
	"github.com/eliteGoblin/focusd/discipline/internal/domain"
	"github.com/eliteGoblin/focusd/discipline/internal/httpapi"
	"github.com/eliteGoblin/focusd/discipline/internal/infra"
	"github.com/eliteGoblin/focusd/discipline/internal/usecase"
)

const dateLayout = "2006-01-02"

var summaryCmd = &cobra.Command{
	Use:   "summary [YYYY-MM-DD]",
	Short: "Show the persisted summary for a day (default today)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSummary,
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Aggregate the last N days: mean score, median escape time, worst apps",
	RunE:  runReport,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export summaries and punishment records to an xlsx workbook",
	RunE:  runExport,
}

var (
	reportDays int
	exportDays int
	exportOut  string
)

func init() {
	reportCmd.Flags().IntVar(&reportDays, "days", 7, "Number of days to aggregate, ending today")
	exportCmd.Flags().IntVar(&exportDays, "days", 30, "Number of days to export, ending today")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "discipline.xlsx", "Output file")
}

// withStore opens the configured store read-side and closes it after fn.
func withStore(ctx context.Context, fn func(s config.Settings, loc *time.Location, store domain.Store) error) error {
	paths := resolvePaths()
	s, err := loadSettings(paths)
	if err != nil {
		return err
	}
	loc, err := s.Location()
	if err != nil {
		return err
	}
	store, err := openStore(ctx, s, paths)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(s, loc, store)
}

// dayRange returns the first and last local dates of the n days ending today.
func dayRange(loc *time.Location, n int) (from, to string) {
	if n < 1 {
		n = 1
	}
	today := time.Now().In(loc)
	return today.AddDate(0, 0, -(n - 1)).Format(dateLayout), today.Format(dateLayout)
}

func runSummary(cmd *cobra.Command, args []string) error {
	return withStore(cmd.Context(), func(s config.Settings, loc *time.Location, store domain.Store) error {
		date := time.Now().In(loc).Format(dateLayout)
		if len(args) == 1 {
			date = args[0]
		}
		sum, err := store.GetSummary(cmd.Context(), date)
		if errors.Is(err, domain.ErrNotFound) {
			fmt.Printf("No summary recorded for %s.\n", date)
			return nil
		}
		if err != nil {
			return err
		}
		printSummary(httpapi.ToSummary(*sum))
		return nil
	})
}

func runReport(cmd *cobra.Command, args []string) error {
	return withStore(cmd.Context(), func(s config.Settings, loc *time.Location, store domain.Store) error {
		from, to := dayRange(loc, reportDays)
		days, err := store.ListSummaries(cmd.Context(), from, to)
		if err != nil {
			return err
		}
		r := usecase.BuildReport(days)
		if r.Days == 0 {
			fmt.Printf("No summaries between %s and %s.\n", from, to)
			return nil
		}

		fmt.Printf("\n=== Report %s .. %s (%d days) ===\n", r.From, r.To, r.Days)
		fmt.Printf("Score:      mean %s, median %.1f, std dev %.1f\n",
			scoreColor(r.MeanScore).Sprintf("%.1f", r.MeanScore), r.MedianScore, r.ScoreStdDev)
		fmt.Printf("Violations: %d  escapes: %d  fails: %d\n", r.TotalViolations, r.TotalEscapes, r.TotalFails)
		if r.MedianEscapeTime > 0 {
			fmt.Printf("Median escape time: %s\n", r.MedianEscapeTime.Round(time.Second))
		}
		fmt.Printf("Longest streak: %d\n", r.LongestStreak)
		fmt.Printf("Best day: %s  worst day: %s\n",
			color.New(color.FgGreen).Sprint(r.BestDay), color.New(color.FgRed).Sprint(r.WorstDay))
		if len(r.WorstApps) > 0 {
			fmt.Println("Worst apps:")
			for i, app := range r.WorstApps {
				fmt.Printf("  %d. %s\n", i+1, app)
			}
		}
		return nil
	})
}

func runExport(cmd *cobra.Command, args []string) error {
	return withStore(cmd.Context(), func(s config.Settings, loc *time.Location, store domain.Store) error {
		from, to := dayRange(loc, exportDays)
		days, err := store.ListSummaries(cmd.Context(), from, to)
		if err != nil {
			return err
		}

		start, _ := time.ParseInLocation(dateLayout, from, loc)
		end, _ := time.ParseInLocation(dateLayout, to, loc)
		records, err := store.ListRecords(cmd.Context(), start, end.AddDate(0, 0, 1))
		if err != nil {
			return err
		}

		if err := infra.ExportWorkbook(exportOut, days, records); err != nil {
			return err
		}
		fmt.Printf("Exported %d days and %d punishments to %s\n", len(days), len(records), exportOut)
		return nil
	})
}
