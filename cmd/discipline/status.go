package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/discipline/internal/config"
	"github.com/eliteGoblin/focusd/discipline/internal/httpapi"
	"github.com/eliteGoblin/focusd/discipline/internal/infra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status, today's score and partner link",
	Long: `Queries the running daemon's control API. When the daemon is not reachable,
today's persisted summary and streak are read from the local store instead.`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	paths := resolvePaths()
	s, err := loadSettings(paths)
	if err != nil {
		return err
	}

	fmt.Println("\n=== discipline Status ===")

	ctx, cancel := context.WithTimeout(cmd.Context(), 3*time.Second)
	defer cancel()

	client := httpapi.NewClient(s.HTTP.Listen)
	st, err := client.Status(ctx)
	if err != nil {
		fmt.Printf("Daemon: %s\n", color.New(color.FgRed).Sprint("NOT REACHABLE"))
		if !s.HTTP.Enabled {
			fmt.Println("        (control API disabled in settings)")
		}
		return printStoredStatus(cmd.Context(), s, paths)
	}

	fmt.Printf("Daemon: %s\n", color.New(color.FgGreen).Sprint("RUNNING"))
	if st.Health.Degraded {
		fmt.Printf("Ledger: %s (%d pending, %s)\n",
			color.New(color.FgYellow).Sprint("DEGRADED"), st.Health.PendingWrite, st.Health.LastError)
	} else {
		fmt.Printf("Ledger: %s\n", color.New(color.FgGreen).Sprint("OK"))
	}
	fmt.Printf("Detector: %s\n", st.Detector)

	if st.Active != nil {
		fmt.Printf("\nPunishment: %s %s (intensity %d) for %s, %s\n",
			color.New(color.FgRed, color.Bold).Sprint("ACTIVE"),
			st.Active.Type, st.Active.Intensity, st.Active.App, st.Active.State)
	}
	if st.Pending {
		fmt.Println("Pending: one violation queued")
	}
	if st.LockdownUntil != nil {
		fmt.Printf("Lockdown: %s until %s\n",
			color.New(color.FgRed).Sprint("ON"), st.LockdownUntil.Local().Format("15:04"))
	}

	printSummary(st.Today)

	if s.BrotherhoodEnabled {
		if b, err := client.Brotherhood(ctx); err == nil {
			printBrotherhood(b)
		}
	}
	fmt.Println("=========================")
	return nil
}

// printStoredStatus falls back to the store when the daemon is down.
func printStoredStatus(ctx context.Context, s config.Settings, paths infra.DataPaths) error {
	loc, err := s.Location()
	if err != nil {
		return err
	}
	store, err := openStore(ctx, s, paths)
	if err != nil {
		fmt.Printf("Ledger: %s (%v)\n", color.New(color.FgYellow).Sprint("UNAVAILABLE"), err)
		fmt.Println("\nRun 'discipline start' to enable enforcement.")
		return nil
	}
	defer store.Close()

	streak, err := store.LoadStreak(ctx)
	if err != nil {
		return err
	}
	today := time.Now().In(loc).Format(dateLayout)
	if sum, err := store.GetSummary(ctx, today); err == nil {
		printSummary(httpapi.ToSummary(*sum))
	} else {
		fmt.Printf("\nNo activity recorded today (%s)\n", today)
	}
	fmt.Printf("\nStreak: %d (longest %d, %d fails all-time)\n", streak.Current, streak.Longest, streak.TotalFails)
	fmt.Println("\nRun 'discipline start' to enable enforcement.")
	return nil
}

func printSummary(sum httpapi.SummaryResponse) {
	fmt.Printf("\nToday (%s)\n", sum.Date)
	fmt.Printf("  Score:      %s\n", scoreColor(sum.DisciplineScore).Sprintf("%.1f", sum.DisciplineScore))
	fmt.Printf("  Streak:     %d (longest %d)\n", sum.CurrentStreak, sum.LongestStreak)
	fmt.Printf("  Violations: %d  escapes: %d  fails: %d\n", sum.TotalViolations, sum.TotalEscapes, sum.TotalFails)
	if sum.WorstApp != nil {
		fmt.Printf("  Worst app:  %s\n", *sum.WorstApp)
	}
	if sum.PeakWeaknessHour != nil {
		fmt.Printf("  Weak hour:  %02d:00\n", *sum.PeakWeaknessHour)
	}
}

func printBrotherhood(b httpapi.BrotherhoodResponse) {
	fmt.Printf("\nBrotherhood with %s: %s\n", b.PartnerID, syncColor(b.Status).Sprint(b.Status))
	fmt.Printf("  My score %.1f, partner %.1f, combined streak %d\n", b.MyScore, b.PartnerScore, b.CombinedStreak)
	if b.MutualFailures > 0 {
		fmt.Printf("  Mutual punishments: %d\n", b.MutualFailures)
	}
	if b.LastSync != nil {
		fmt.Printf("  Last sync: %s ago\n", time.Since(*b.LastSync).Round(time.Second))
	}
}

func scoreColor(score float64) *color.Color {
	switch {
	case score >= 80:
		return color.New(color.FgGreen)
	case score >= 50:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed)
	}
}

func syncColor(status string) *color.Color {
	switch status {
	case "connected":
		return color.New(color.FgGreen)
	case "error", "disconnected":
		return color.New(color.FgRed)
	default:
		return color.New(color.FgYellow)
	}
}
