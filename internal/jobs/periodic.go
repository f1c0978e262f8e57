package jobs

import (
	"time"

	"github.com/riverqueue/river"
)

// PeriodicJobs returns the scheduled jobs: a full resolve every
// resolveInterval and, when retention is positive, a daily history cleanup.
// A non-positive resolveInterval disables the scheduled resolve.
func PeriodicJobs(resolveInterval, retention time.Duration) []*river.PeriodicJob {
	var out []*river.PeriodicJob
	if resolveInterval > 0 {
		out = append(out, river.NewPeriodicJob(
			river.PeriodicInterval(resolveInterval),
			func() (river.JobArgs, *river.InsertOpts) {
				return ResolveAllArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		))
	}
	if retention > 0 {
		out = append(out, river.NewPeriodicJob(
			river.PeriodicInterval(24*time.Hour),
			func() (river.JobArgs, *river.InsertOpts) {
				return FactHistoryCleanupArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		))
	}
	return out
}
