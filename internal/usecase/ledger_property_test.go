package usecase

import (
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"go.uber.org/zap"
)

// Property: score stays in [0,100] for any counts and streak.
func TestScoreBounds_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("score is clamped", prop.ForAll(
		func(escapes, fails, streak int) bool {
			violations := escapes + fails
			s := Score(violations, escapes, fails, streak)
			return s >= 0 && s <= 100
		},
		gen.IntRange(0, 200),
		gen.IntRange(0, 200),
		gen.IntRange(0, 10000),
	))

	properties.TestingRun(t)
}

// Property: any sequence of escapes, fails and day boundaries keeps longest monotonic,
// resets current on every fail and never lets current exceed longest after a rollover.
func TestStreakInvariants_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	const (
		opEscape = iota
		opFail
		opNextDay
	)

	properties.Property("streak invariants hold", prop.ForAll(
		func(ops []int) bool {
			l := NewLedger(time.UTC, nil, zap.NewNop())
			now := t0
			l.Rollover(now)
			longest := 0

			for i, op := range ops {
				now = now.Add(time.Minute)
				id := fmt.Sprintf("r%d", i)

				switch op {
				case opEscape:
					before := l.Streak().Current
					l.Record(escapedRecord(id, "tiktok", now, 11*time.Second))
					if l.Streak().Current != before {
						return false
					}
				case opFail:
					s := l.Record(failedRecord(id, "tiktok", now))
					if l.Streak().Current != 0 || s.CurrentStreak != 0 {
						return false
					}
				case opNextDay:
					now = now.Add(24 * time.Hour)
					l.Rollover(now)
					if l.Streak().Current > l.Streak().Longest {
						return false
					}
				}

				if l.Streak().Longest < longest {
					return false
				}
				longest = l.Streak().Longest
			}
			return true
		},
		gen.SliceOf(gen.IntRange(opEscape, opNextDay)),
	))

	properties.TestingRun(t)
}
