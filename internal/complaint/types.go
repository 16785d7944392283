// Package complaint provides the complaint data model and the paginated
// collection of complaints from the admin API.
package complaint

// Record is a single complaint as returned by the collection endpoint.
//
// Records are immutable once decoded. CreatedAt keeps the raw server string;
// the analytics package parses it and drops values it cannot read.
//
// Fields map to API response JSON (aliases in parentheses):
//   - id (_id): Complaint identifier
//   - title: Short summary
//   - category: Category name, or an object with a name
//   - status: e.g. "open", "in_progress", "resolved"
//   - priority: e.g. "low", "high", "urgent"
//   - createdAt (created_at): Creation timestamp
//   - resolutionTimeHours (resolution_time_hours): Optional, hours to resolve
//   - reporter: Name, or an object with name/email
type Record struct {
	ID                  string   `json:"id"`
	Title               string   `json:"title"`
	Category            string   `json:"category"`
	Status              string   `json:"status"`
	Priority            string   `json:"priority"`
	CreatedAt           string   `json:"createdAt"`
	ResolutionTimeHours *float64 `json:"resolutionTimeHours,omitempty"`
	Reporter            string   `json:"reporter"`
}

// PageMeta carries the pagination metadata a server may attach to a page.
//
// A nil field means the server did not declare it. Zero is a real value
// ("the server says there are no records"), never a stand-in for unknown.
type PageMeta struct {
	Total     *int `json:"total"`
	PageCount *int `json:"pageCount"`
}

// Page is one normalized response of the collection endpoint.
type Page struct {
	Records []Record
	Meta    PageMeta
	Shape   string // Which response shape matched, empty when none did
}

// Dataset is the fully drained collection.
//
// ReportedTotal is the server-declared total when the first page carried one,
// otherwise len(Records). Truncated is set when collection stopped at the page
// ceiling while the server still had more to give; len(Records) is then
// smaller than ReportedTotal and nothing else signals it.
type Dataset struct {
	Records       []Record `json:"records"`
	ReportedTotal int      `json:"reportedTotal"`
	Truncated     bool     `json:"truncated"`
}
