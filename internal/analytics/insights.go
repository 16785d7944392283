package analytics

import (
	"fmt"
	"math"
	"strconv"
)

// Generate turns a view into its ordered list of observations.
//
// Order is fixed:
//  1. Completion rate (always)
//  2. Urgent count (always)
//  3. Average resolution time, when anything was resolved
//  4. Empty range notice, when nothing is in range
//  5. Day-over-day change between the last two trend points, when there are
//     at least two
//
// The last two trend points are compared by position in the series, which
// follows first-seen order of the input rather than the calendar.
func Generate(view View) []string {
	insights := []string{
		fmt.Sprintf("Completion rate is %d%% in the last %d days.", view.RoundedRate(), view.WindowDays),
		fmt.Sprintf("Urgent complaints: %d in the selected range.", view.UrgentCount),
	}

	if view.ResolvedCount > 0 {
		insights = append(insights, fmt.Sprintf("Average resolution time: %sh (resolved only).",
			FormatHours(view.AvgResolutionHours)))
	}

	if view.TotalInRange == 0 {
		insights = append(insights, "No complaints found in the selected range.")
	}

	if n := len(view.Trend); n >= 2 {
		delta := view.Trend[n-1].Total - view.Trend[n-2].Total
		if delta >= 0 {
			insights = append(insights, fmt.Sprintf("Daily volume increased by %d.", delta))
		} else {
			insights = append(insights, fmt.Sprintf("Daily volume decreased by %d.", -delta))
		}
	}

	return insights
}

// FormatHours renders hours with one decimal, rounding halves away from
// zero: 2.25 becomes "2.3".
func FormatHours(h float64) string {
	return strconv.FormatFloat(math.Round(h*10)/10, 'f', 1, 64)
}
