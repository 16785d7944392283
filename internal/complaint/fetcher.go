package complaint

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"cmonreports/internal/errors"
	"cmonreports/internal/logging"
	"cmonreports/internal/metrics"

	"github.com/rs/zerolog"
)

// Transport performs one GET against the admin API and returns the raw body.
//
// Implementations return *errors.TransportError for any failure: network
// errors, timeouts, non-2xx statuses, rejected circuit breaker calls.
type Transport interface {
	Get(ctx context.Context, path string, query url.Values) ([]byte, error)
}

// PageSource is anything that can fetch one page of the collection.
// *PageFetcher is the production implementation; tests supply fakes.
type PageSource interface {
	FetchPage(ctx context.Context, page, pageSize int, sort string) (Page, error)
}

// PageFetcher issues single page requests against the collection endpoint.
type PageFetcher struct {
	transport Transport
	path      string
	log       zerolog.Logger
}

// NewPageFetcher creates a page fetcher for the collection at path.
func NewPageFetcher(transport Transport, path string) *PageFetcher {
	return &PageFetcher{
		transport: transport,
		path:      path,
		log:       logging.Component("page-fetcher"),
	}
}

// FetchPage requests one page and normalizes the response.
//
// Unrecognized response shapes are not errors: they degrade to an empty page
// (metadata kept when readable) and are logged. There is no retry here.
//
// Parameters:
//   - page: 1-based page number
//   - pageSize: Records per page (sent as "limit")
//   - sort: Sort key passed through as "sort", omitted when empty
//
// Returns:
//   - Page: Normalized records and metadata
//   - error: *errors.TransportError when the request failed
func (f *PageFetcher) FetchPage(ctx context.Context, page, pageSize int, sort string) (Page, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("limit", strconv.Itoa(pageSize))
	if sort != "" {
		query.Set("sort", sort)
	}

	body, err := f.transport.Get(ctx, f.path, query)
	if err != nil {
		if errors.IsTransport(err) {
			return Page{}, err
		}
		return Page{}, errors.NewTransportError(fmt.Sprintf("fetch page %d", page), f.path, 0, err)
	}

	p, err := DecodePage(body)
	if err != nil {
		f.log.Warn().Err(err).Int("page", page).Msg("⚠️  Unrecognized page shape, treating as empty")
		return Page{Records: []Record{}, Meta: p.Meta}, nil
	}

	f.log.Debug().Int("page", page).Int("records", len(p.Records)).Str("shape", p.Shape).Msg("    → Page fetched")
	return p, nil
}

// Collector drains the whole collection into one ordered Dataset.
//
// Flow:
//  1. Fetch pages starting at 1
//  2. Capture total and page count from the first response only
//  3. Stop on an empty page, when the declared page count is reached, or
//     once maxPages pages have been fetched
//  4. Any transport error aborts the whole collection; pages already
//     accumulated are dropped
type Collector struct {
	source PageSource
	sort   string
	log    zerolog.Logger
}

// NewCollector creates a collector over the given page source.
func NewCollector(source PageSource, sort string) *Collector {
	return &Collector{
		source: source,
		sort:   sort,
		log:    logging.Component("collector"),
	}
}

// CollectAll drains the collection.
//
// Parameters:
//   - ctx: Cancelling ctx aborts between pages
//   - pageSize: Records requested per page
//   - maxPages: Hard ceiling on pages fetched
//
// Returns:
//   - Dataset: Every record fetched, in server order, plus the reported
//     total and the truncation flag
//   - error: The first transport error (or ctx error); Dataset is then empty
func (c *Collector) CollectAll(ctx context.Context, pageSize, maxPages int) (Dataset, error) {
	if pageSize < 1 || maxPages < 1 {
		return Dataset{}, fmt.Errorf("collect: pageSize and maxPages must be positive (got %d, %d)", pageSize, maxPages)
	}

	records := make([]Record, 0, pageSize)
	var reportedTotal, reportedPageCount *int
	hitCeiling := false
	lastPageLen := 0

	page := 1
	for {
		if page > maxPages {
			hitCeiling = true
			break
		}
		if err := ctx.Err(); err != nil {
			return Dataset{}, err
		}

		p, err := c.source.FetchPage(ctx, page, pageSize, c.sort)
		if err != nil {
			c.log.Warn().Err(err).Int("page", page).Int("discarded", len(records)).Msg("✗ Collection aborted")
			return Dataset{}, err
		}
		metrics.PagesFetched.Inc()

		if page == 1 {
			reportedTotal = p.Meta.Total
			reportedPageCount = p.Meta.PageCount
		}

		if len(p.Records) == 0 {
			break
		}
		records = append(records, p.Records...)
		lastPageLen = len(p.Records)

		if reportedPageCount != nil && page >= *reportedPageCount {
			break
		}
		page++
	}

	ds := Dataset{
		Records:       records,
		ReportedTotal: len(records),
	}
	if reportedTotal != nil {
		ds.ReportedTotal = *reportedTotal
	}
	if hitCeiling {
		ds.Truncated = moreAvailable(reportedTotal, reportedPageCount, len(records), lastPageLen, pageSize, maxPages)
	}

	metrics.CollectedRecords.Set(float64(len(records)))
	metrics.CollectionTruncated.Set(metrics.BoolGauge(ds.Truncated))

	if ds.Truncated {
		c.log.Warn().
			Int("collected", len(records)).
			Int("reported_total", ds.ReportedTotal).
			Int("max_pages", maxPages).
			Msg("🛑 Reached maximum page limit before the declared total")
	} else {
		c.log.Info().Int("records", len(records)).Int("pages", min(page, maxPages)).Msg("🎉 Collection drained")
	}

	return ds, nil
}

// moreAvailable decides whether stopping at the ceiling left records behind.
// The declared page count is the strongest signal, then the declared total;
// without metadata a full last page means there may be more.
func moreAvailable(total, pageCount *int, collected, lastPageLen, pageSize, maxPages int) bool {
	switch {
	case pageCount != nil:
		return *pageCount > maxPages
	case total != nil:
		return *total > collected
	default:
		return lastPageLen >= pageSize
	}
}
