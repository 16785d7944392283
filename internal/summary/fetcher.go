// Package summary fetches the aggregate user statistics and renders the
// PNG report of a refresh cycle.
package summary

import (
	"bytes"
	"context"

	"cmonreports/internal/api"
	"cmonreports/internal/errors"
	"cmonreports/internal/logging"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// Stats holds the aggregate user counts.
//
// Every field defaults to 0 when the server omits it.
type Stats struct {
	TotalUsers   int `json:"totalUsers"`
	ActiveUsers  int `json:"activeUsers"`
	Admins       int `json:"admins"`
	Staff        int `json:"staff"`
	RegularUsers int `json:"regularUsers"`
}

// wireStats lists every alias a stats payload may use, in priority order per
// field.
type wireStats struct {
	Total        *api.FlexInt `json:"total"`
	TotalUsers   *api.FlexInt `json:"totalUsers"`
	Active       *api.FlexInt `json:"active"`
	ActiveUsers  *api.FlexInt `json:"activeUsers"`
	Admins       *api.FlexInt `json:"admins"`
	AdminCount   *api.FlexInt `json:"adminCount"`
	Staff        *api.FlexInt `json:"staff"`
	StaffCount   *api.FlexInt `json:"staffCount"`
	RegularUsers *api.FlexInt `json:"regularUsers"`
	Users        *api.FlexInt `json:"users"`
	Regular      *api.FlexInt `json:"regular"`

	// Nested payload locations
	Stats json.RawMessage `json:"stats"`
	Data  json.RawMessage `json:"data"`
}

func (w *wireStats) declared() bool {
	for _, f := range []*api.FlexInt{
		w.Total, w.TotalUsers, w.Active, w.ActiveUsers, w.Admins, w.AdminCount,
		w.Staff, w.StaffCount, w.RegularUsers, w.Users, w.Regular,
	} {
		if f != nil && f.Valid {
			return true
		}
	}
	return false
}

func (w *wireStats) stats() Stats {
	return Stats{
		TotalUsers:   first(w.Total, w.TotalUsers),
		ActiveUsers:  first(w.Active, w.ActiveUsers),
		Admins:       first(w.Admins, w.AdminCount),
		Staff:        first(w.Staff, w.StaffCount),
		RegularUsers: first(w.RegularUsers, w.Users, w.Regular),
	}
}

// first returns the first valid value, or 0.
func first(candidates ...*api.FlexInt) int {
	for _, c := range candidates {
		if c != nil && c.Valid {
			return c.Int()
		}
	}
	return 0
}

// DecodeStats extracts Stats from a stats response.
//
// The counts may sit on the root object, under "stats", under "data", or
// under "data.stats". The first location declaring any known count wins.
//
// Returns:
//   - Stats: Extracted counts (zero when nothing matched)
//   - error: *errors.MalformedResponseError when the body is not a JSON
//     object or no location carries any count
func DecodeStats(body []byte) (Stats, error) {
	root := bytes.TrimSpace(body)
	if len(root) == 0 || root[0] != '{' {
		return Stats{}, errors.NewMalformedResponseError("stats", "body is not a JSON object")
	}

	var top wireStats
	if err := json.Unmarshal(root, &top); err != nil {
		return Stats{}, errors.NewMalformedResponseError("stats", err.Error())
	}

	candidates := []*wireStats{&top}
	if nested := decodeNested(top.Stats); nested != nil {
		candidates = append(candidates, nested)
	}
	if data := decodeNested(top.Data); data != nil {
		candidates = append(candidates, data)
		if dataStats := decodeNested(data.Stats); dataStats != nil {
			candidates = append(candidates, dataStats)
		}
	}

	for _, c := range candidates {
		if c.declared() {
			return c.stats(), nil
		}
	}
	return Stats{}, errors.NewMalformedResponseError("stats", "no user counts in response")
}

func decodeNested(raw json.RawMessage) *wireStats {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil
	}
	var w wireStats
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil
	}
	return &w
}

// Fetcher retrieves the aggregate user statistics.
type Fetcher struct {
	transport api.Getter
	path      string
	log       zerolog.Logger
}

// NewFetcher creates a stats fetcher for the endpoint at path.
func NewFetcher(transport api.Getter, path string) *Fetcher {
	return &Fetcher{
		transport: transport,
		path:      path,
		log:       logging.Component("summary"),
	}
}

// FetchSummary issues one GET for the user statistics.
//
// An unrecognized body is not an error: it is logged and yields zeroed
// Stats.
//
// Returns:
//   - Stats: Aggregate user counts
//   - error: *errors.TransportError when the request failed
func (f *Fetcher) FetchSummary(ctx context.Context) (Stats, error) {
	body, err := f.transport.Get(ctx, f.path, nil)
	if err != nil {
		if errors.IsTransport(err) {
			return Stats{}, err
		}
		return Stats{}, errors.NewTransportError("fetch user stats", f.path, 0, err)
	}

	stats, err := DecodeStats(body)
	if err != nil {
		f.log.Warn().Err(err).Msg("⚠️  Unrecognized user stats shape, using zeroes")
		return Stats{}, nil
	}

	f.log.Debug().Int("total_users", stats.TotalUsers).Msg("    → User stats fetched")
	return stats, nil
}
