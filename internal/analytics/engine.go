// Package analytics derives the reporting view from the raw complaint
// dataset.
//
// Everything here is a pure function of its inputs: the record slice is never
// modified and no state is kept between calls, so a view can be recomputed
// for any window at any time.
package analytics

import (
	"math"
	"sort"
	"strings"
	"time"

	"cmonreports/internal/complaint"
)

// MaxTrendPoints caps the trend series.
const MaxTrendPoints = 14

// DefaultCategory names records whose category is blank.
const DefaultCategory = "Uncategorized"

// trendLabelLayout renders day labels such as "Jan 5".
const trendLabelLayout = "Jan 2"

// timestampLayouts are tried in order when parsing CreatedAt.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// TrendPoint is one day of the trend series.
type TrendPoint struct {
	DateLabel string `json:"date"`
	Total     int    `json:"total"`
	Resolved  int    `json:"resolved"`
	Urgent    int    `json:"urgent"`
}

// Bucket is a named count.
type Bucket struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// View is the derived analytics of one window.
//
// AvgResolutionHours is 0 both when nothing was resolved and when everything
// resolved instantly; ResolvedCount tells the two apart.
type View struct {
	WindowDays            int          `json:"windowDays"`
	TotalInRange          int          `json:"totalInRange"`
	ResolvedCount         int          `json:"resolvedCount"`
	UrgentCount           int          `json:"urgentCount"`
	CompletionRatePercent float64      `json:"completionRate"`
	AvgResolutionHours    float64      `json:"avgResolutionHours"`
	Trend                 []TrendPoint `json:"trend"`
	Categories            []Bucket     `json:"categories"`
	Statuses              []Bucket     `json:"statuses"`
	Insights              []string     `json:"insights"`
}

// Compute derives the analytics view of the records created within the last
// windowDays calendar days before now.
//
// Flow:
//  1. Cutoff is now minus windowDays calendar days
//  2. Keep records whose CreatedAt parses and is not before the cutoff
//  3. Count resolved and urgent records, sum resolution hours
//  4. Group into day, category and status buckets, in first-seen order
//  5. Keep the last MaxTrendPoints day buckets by position
//  6. Generate insights
//
// Day labels are rendered in now's location.
func Compute(records []complaint.Record, windowDays int, now time.Time) View {
	cutoff := now.AddDate(0, 0, -windowDays)
	loc := now.Location()

	view := View{WindowDays: windowDays}
	var resolutionSum float64

	trend := newCounter[TrendPoint]()
	categories := newCounter[Bucket]()
	statuses := newCounter[Bucket]()

	for _, r := range records {
		created, ok := ParseTimestamp(r.CreatedAt)
		if !ok || created.Before(cutoff) {
			continue
		}
		view.TotalInRange++

		status := NormalizeStatus(r.Status)
		resolved := status == "resolved"
		urgent := NormalizePriority(r.Priority) == "urgent"

		if resolved {
			view.ResolvedCount++
			if r.ResolutionTimeHours != nil {
				resolutionSum += *r.ResolutionTimeHours
			}
		}
		if urgent {
			view.UrgentCount++
		}

		label := created.In(loc).Format(trendLabelLayout)
		point := trend.get(label, func() TrendPoint { return TrendPoint{DateLabel: label} })
		point.Total++
		if resolved {
			point.Resolved++
		}
		if urgent {
			point.Urgent++
		}

		category := strings.TrimSpace(r.Category)
		if category == "" {
			category = DefaultCategory
		}
		categories.get(category, func() Bucket { return Bucket{Name: category} }).Value++

		statusLabel := StatusLabel(status)
		statuses.get(statusLabel, func() Bucket { return Bucket{Name: statusLabel} }).Value++
	}

	if view.TotalInRange > 0 {
		view.CompletionRatePercent = float64(view.ResolvedCount) / float64(view.TotalInRange) * 100
	}
	view.AvgResolutionHours = resolutionSum / float64(max(1, view.ResolvedCount))

	view.Trend = trend.values()
	if len(view.Trend) > MaxTrendPoints {
		view.Trend = view.Trend[len(view.Trend)-MaxTrendPoints:]
	}
	view.Categories = categories.values()
	view.Statuses = statuses.values()
	view.Insights = Generate(view)

	return view
}

// ParseTimestamp parses a CreatedAt value. Values without a zone are read as
// UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// NormalizeStatus lowercases a status and turns underscores into hyphens, so
// "IN_PROGRESS" and "in-progress" compare equal.
func NormalizeStatus(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
}

// NormalizePriority lowercases a priority.
func NormalizePriority(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// StatusLabel renders a normalized status for display: uppercased, with
// underscores as spaces. "in-progress" becomes "IN-PROGRESS".
func StatusLabel(normalized string) string {
	return strings.ToUpper(strings.ReplaceAll(normalized, "_", " "))
}

// TopCategories returns the n largest category buckets, largest first. Ties
// keep their first-seen order. The view is not modified.
func TopCategories(view View, n int) []Bucket {
	sorted := make([]Bucket, len(view.Categories))
	copy(sorted, view.Categories)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Value > sorted[j].Value
	})
	if n >= 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// RoundedRate returns the completion rate rounded to the nearest integer.
func (v View) RoundedRate() int {
	return int(math.Round(v.CompletionRatePercent))
}

// counter accumulates values by key, remembering first-seen order.
type counter[T any] struct {
	index map[string]int
	items []T
}

func newCounter[T any]() *counter[T] {
	return &counter[T]{index: make(map[string]int)}
}

// get returns the accumulator for key, creating it with init on first use.
// The pointer is valid until the next get.
func (c *counter[T]) get(key string, init func() T) *T {
	i, ok := c.index[key]
	if !ok {
		i = len(c.items)
		c.index[key] = i
		c.items = append(c.items, init())
	}
	return &c.items[i]
}

func (c *counter[T]) values() []T {
	if c.items == nil {
		return []T{}
	}
	return c.items
}
