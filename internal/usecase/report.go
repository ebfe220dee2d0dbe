package usecase

import (
	"sort"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/eliteGoblin/focusd/discipline/internal/domain"
)

// Report aggregates several day summaries.
type Report struct {
	From             string
	To               string
	Days             int
	TotalViolations  int
	TotalEscapes     int
	TotalFails       int
	MeanScore        float64
	MedianScore      float64
	ScoreStdDev      float64
	MedianEscapeTime time.Duration
	LongestStreak    int
	BestDay          string
	WorstDay         string
	WorstApps        []string // most frequent worst app first
}

// BuildReport summarizes days. Summaries may arrive in any order.
func BuildReport(days []domain.DaySummary) Report {
	if len(days) == 0 {
		return Report{}
	}

	sorted := append([]domain.DaySummary(nil), days...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date < sorted[j].Date })

	r := Report{
		From: sorted[0].Date,
		To:   sorted[len(sorted)-1].Date,
		Days: len(sorted),
	}

	scores := make(stats.Float64Data, 0, len(sorted))
	var escapeTimes stats.Float64Data
	worstCount := make(map[string]int)
	best, worst := sorted[0], sorted[0]

	for _, d := range sorted {
		r.TotalViolations += d.TotalViolations
		r.TotalEscapes += d.TotalEscapes
		r.TotalFails += d.TotalFails
		if d.LongestStreak > r.LongestStreak {
			r.LongestStreak = d.LongestStreak
		}
		scores = append(scores, d.DisciplineScore)
		if d.TotalEscapes > 0 {
			escapeTimes = append(escapeTimes, float64(d.AverageEscapeTime))
		}
		if app, ok := d.WorstApp.Get(); ok {
			worstCount[app]++
		}
		if d.DisciplineScore > best.DisciplineScore {
			best = d
		}
		if d.DisciplineScore < worst.DisciplineScore {
			worst = d
		}
	}

	r.BestDay = best.Date
	r.WorstDay = worst.Date
	r.MeanScore, _ = stats.Mean(scores)
	r.MedianScore, _ = stats.Median(scores)
	r.ScoreStdDev, _ = stats.StandardDeviation(scores)
	if len(escapeTimes) > 0 {
		median, _ := stats.Median(escapeTimes)
		r.MedianEscapeTime = time.Duration(median)
	}

	for app := range worstCount {
		r.WorstApps = append(r.WorstApps, app)
	}
	sort.Slice(r.WorstApps, func(i, j int) bool {
		a, b := r.WorstApps[i], r.WorstApps[j]
		if worstCount[a] != worstCount[b] {
			return worstCount[a] > worstCount[b]
		}
		return a < b
	})
	return r
}
