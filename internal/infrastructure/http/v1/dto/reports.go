package dto

import (
	"tpvcore/internal/domain/reports"
)

// ReportQuery carries the period parameters of GET /reports/:period.
type ReportQuery struct {
	Date    string `form:"date"`
	Year    int    `form:"year"`
	Month   int    `form:"month"`
	Quarter int    `form:"quarter"`
}

// ToParams converts the query.
func (q *ReportQuery) ToParams() reports.Params {
	return reports.Params{Date: q.Date, Year: q.Year, Month: q.Month, Quarter: q.Quarter}
}

// ReportResponse is an aggregated period report.
type ReportResponse struct {
	Range        reports.Range `json:"range"`
	ClosureCount int           `json:"closureCount"`
	SnapshotResponse
	Shifts []ClosureResponse `json:"shifts,omitempty"`
}

// FromReport converts a report.
func FromReport(r *reports.Report) ReportResponse {
	resp := ReportResponse{
		Range:            r.Range,
		ClosureCount:     r.ClosureCount,
		SnapshotResponse: FromSnapshot(r.Snapshot),
	}
	for _, c := range r.Shifts {
		resp.Shifts = append(resp.Shifts, FromClosure(c))
	}
	return resp
}
