// Package reports aggregates closed cash register shifts over calendar periods.
package reports

import (
	"sort"

	"tpvcore/internal/domain/register"
)

// Report is the aggregated snapshot of every closed shift in a period.
type Report struct {
	TenantID string `json:"tenantId"`
	Range    Range  `json:"range"`

	ClosureCount int `json:"closureCount"`
	register.Snapshot

	// Shifts is the per-shift detail, most recent first. Daily reports only.
	Shifts []*register.Closure `json:"shifts,omitempty"`
}

// Aggregate sums finalized closure snapshots. Closures are immutable once
// closed, so raw invoices are never reread.
func Aggregate(tenantID string, rng Range, closures []*register.Closure) *Report {
	r := &Report{
		TenantID: tenantID,
		Range:    rng,
		Snapshot: register.EmptySnapshot(),
	}

	for _, c := range closures {
		if c.Status != register.StatusClosed || !rng.Contains(c.PeriodStart) {
			continue
		}
		r.Snapshot = r.Snapshot.Merge(c.Snapshot)
		r.ClosureCount++
		if rng.Type == PeriodDaily {
			r.Shifts = append(r.Shifts, c)
		}
	}

	sort.SliceStable(r.Shifts, func(i, j int) bool {
		return r.Shifts[i].PeriodStart.After(r.Shifts[j].PeriodStart)
	})
	return r
}

// CacheKey is the redis key of a period report.
func CacheKey(tenantID string, rng Range) string {
	return "report:" + tenantID + ":" + string(rng.Type) + ":" + rng.Label
}
