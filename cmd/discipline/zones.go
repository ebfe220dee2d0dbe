package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/discipline/internal/policy"
)

var zonesCmd = &cobra.Command{
	Use:   "zones",
	Short: "List blackout zones and whether each is in effect now",
	RunE:  runZones,
}

func runZones(cmd *cobra.Command, args []string) error {
	s, err := loadSettings(resolvePaths())
	if err != nil {
		return err
	}
	loc, err := s.Location()
	if err != nil {
		return err
	}
	zones, err := s.Zones()
	if err != nil {
		return err
	}
	if len(zones) == 0 {
		fmt.Println("No blackout zones configured.")
		return nil
	}

	now := time.Now().In(loc)
	fmt.Printf("\nBlackout zones (%s, now %s):\n", loc, now.Format("Mon 15:04"))
	for _, z := range zones {
		state := color.New(color.FgHiBlack).Sprint("idle  ")
		switch {
		case !z.Active:
			state = color.New(color.FgHiBlack).Sprint("off   ")
		case policy.Covers(z, now):
			state = color.New(color.FgRed).Sprint("ACTIVE")
		}

		mode := "allow " + strings.Join(z.AllowedApps, ",")
		if z.StrictMode {
			mode = "strict"
		} else if len(z.AllowedApps) == 0 {
			mode = "allow none"
		}

		days := make([]string, 0, len(z.Days))
		for _, d := range z.Days {
			days = append(days, d.String()[:3])
		}
		fmt.Printf("  %s %-12s %02d:%02d-%02d:%02d  %-27s %s\n",
			state, z.Name, z.StartHour, z.StartMinute, z.EndHour, z.EndMinute, strings.Join(days, ","), mode)
	}

	fmt.Println("\nMonitored apps:")
	catalog := policy.NewCatalog()
	set := catalog.MonitoredSet(s)
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if app, ok := catalog.Get(id); ok {
			fmt.Printf("  - %s (%s)\n", app.Name, app.Category)
		} else {
			fmt.Printf("  - %s\n", id)
		}
	}
	return nil
}
