package complaint

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"testing"

	"cmonreports/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport answers every Get with body/err and records the queries.
type fakeTransport struct {
	body    []byte
	err     error
	queries []url.Values
	paths   []string
}

func (f *fakeTransport) Get(_ context.Context, path string, query url.Values) ([]byte, error) {
	f.paths = append(f.paths, path)
	f.queries = append(f.queries, query)
	return f.body, f.err
}

func TestPageFetcher_Query(t *testing.T) {
	tr := &fakeTransport{body: []byte(`{"complaints":[{"id":"a"}],"pagination":{"total":1,"pageCount":1}}`)}
	f := NewPageFetcher(tr, "/complaints")

	page, err := f.FetchPage(context.Background(), 3, 25, "-createdAt")
	require.NoError(t, err)
	require.Len(t, page.Records, 1)

	require.Len(t, tr.queries, 1)
	assert.Equal(t, "/complaints", tr.paths[0])
	assert.Equal(t, "3", tr.queries[0].Get("page"))
	assert.Equal(t, "25", tr.queries[0].Get("limit"))
	assert.Equal(t, "-createdAt", tr.queries[0].Get("sort"))
}

func TestPageFetcher_OmitsEmptySort(t *testing.T) {
	tr := &fakeTransport{body: []byte(`[]`)}
	f := NewPageFetcher(tr, "/complaints")

	_, err := f.FetchPage(context.Background(), 1, 10, "")
	require.NoError(t, err)
	_, hasSort := tr.queries[0]["sort"]
	assert.False(t, hasSort)
}

func TestPageFetcher_MalformedDegradesToEmptyPage(t *testing.T) {
	tr := &fakeTransport{body: []byte(`{"error":"nope","meta":{"total":12}}`)}
	f := NewPageFetcher(tr, "/complaints")

	page, err := f.FetchPage(context.Background(), 1, 10, "")
	require.NoError(t, err)
	assert.NotNil(t, page.Records)
	assert.Empty(t, page.Records)
	require.NotNil(t, page.Meta.Total)
	assert.Equal(t, 12, *page.Meta.Total)
}

func TestPageFetcher_TransportErrors(t *testing.T) {
	t.Run("passes transport errors through", func(t *testing.T) {
		orig := errors.NewTransportError("get", "/complaints", 503, nil)
		f := NewPageFetcher(&fakeTransport{err: orig}, "/complaints")

		_, err := f.FetchPage(context.Background(), 1, 10, "")
		require.Error(t, err)
		assert.Same(t, orig, err)
	})

	t.Run("wraps foreign errors", func(t *testing.T) {
		cause := stderrors.New("connection reset")
		f := NewPageFetcher(&fakeTransport{err: cause}, "/complaints")

		_, err := f.FetchPage(context.Background(), 2, 10, "")
		require.Error(t, err)
		assert.True(t, errors.IsTransport(err))
		assert.ErrorIs(t, err, cause)
	})
}

// pagedSource serves a fixed number of records in pages of pageSize and
// reports total/pageCount on every page unless hideMeta is set.
type pagedSource struct {
	total    int
	hideMeta bool
	failAt   int // page number that fails, 0 for never
	calls    []int
}

func (s *pagedSource) FetchPage(_ context.Context, page, pageSize int, _ string) (Page, error) {
	s.calls = append(s.calls, page)
	if s.failAt == page {
		return Page{}, errors.NewTransportError(fmt.Sprintf("fetch page %d", page), "/complaints", 500, nil)
	}

	start := (page - 1) * pageSize
	records := []Record{}
	for i := start; i < start+pageSize && i < s.total; i++ {
		records = append(records, Record{ID: fmt.Sprintf("r%d", i)})
	}

	p := Page{Records: records}
	if !s.hideMeta {
		total := s.total
		pageCount := (s.total + pageSize - 1) / pageSize
		p.Meta = PageMeta{Total: &total, PageCount: &pageCount}
	}
	return p, nil
}

func TestCollectAll_StopsAtDeclaredPageCount(t *testing.T) {
	src := &pagedSource{total: 120}
	c := NewCollector(src, "-createdAt")

	ds, err := c.CollectAll(context.Background(), 50, 10)
	require.NoError(t, err)

	assert.Len(t, ds.Records, 120)
	assert.Equal(t, 120, ds.ReportedTotal)
	assert.False(t, ds.Truncated)
	assert.Equal(t, []int{1, 2, 3}, src.calls)
	assert.Equal(t, "r0", ds.Records[0].ID)
	assert.Equal(t, "r119", ds.Records[119].ID)
}

func TestCollectAll_TruncatedAtCeiling(t *testing.T) {
	src := &pagedSource{total: 500}
	c := NewCollector(src, "")

	ds, err := c.CollectAll(context.Background(), 50, 2)
	require.NoError(t, err)

	assert.Len(t, ds.Records, 100)
	assert.Equal(t, 500, ds.ReportedTotal)
	assert.True(t, ds.Truncated)
	assert.Equal(t, []int{1, 2}, src.calls)
}

func TestCollectAll_WithoutMetaStopsOnEmptyPage(t *testing.T) {
	// 3 full pages then an empty one: k+1 requests.
	src := &pagedSource{total: 30, hideMeta: true}
	c := NewCollector(src, "")

	ds, err := c.CollectAll(context.Background(), 10, 50)
	require.NoError(t, err)

	assert.Len(t, ds.Records, 30)
	assert.Equal(t, 30, ds.ReportedTotal)
	assert.False(t, ds.Truncated)
	assert.Equal(t, []int{1, 2, 3, 4}, src.calls)
}

func TestCollectAll_WithoutMetaCeilingOnFullPage(t *testing.T) {
	src := &pagedSource{total: 1000, hideMeta: true}
	c := NewCollector(src, "")

	ds, err := c.CollectAll(context.Background(), 10, 3)
	require.NoError(t, err)

	assert.Len(t, ds.Records, 30)
	assert.Equal(t, 30, ds.ReportedTotal)
	assert.True(t, ds.Truncated)
}

func TestCollectAll_ExactCeilingIsNotTruncated(t *testing.T) {
	src := &pagedSource{total: 100}
	c := NewCollector(src, "")

	ds, err := c.CollectAll(context.Background(), 50, 2)
	require.NoError(t, err)

	assert.Len(t, ds.Records, 100)
	assert.False(t, ds.Truncated)
}

func TestCollectAll_EmptyCollection(t *testing.T) {
	src := &pagedSource{total: 0}
	c := NewCollector(src, "")

	ds, err := c.CollectAll(context.Background(), 50, 5)
	require.NoError(t, err)

	assert.NotNil(t, ds.Records)
	assert.Empty(t, ds.Records)
	assert.Equal(t, 0, ds.ReportedTotal)
	assert.Equal(t, []int{1}, src.calls)
}

func TestCollectAll_TransportErrorDiscardsPartialData(t *testing.T) {
	src := &pagedSource{total: 200, failAt: 3}
	c := NewCollector(src, "")

	ds, err := c.CollectAll(context.Background(), 50, 10)
	require.Error(t, err)
	assert.True(t, errors.IsTransport(err))
	assert.Empty(t, ds.Records)
	assert.Zero(t, ds.ReportedTotal)
	assert.Equal(t, []int{1, 2, 3}, src.calls)
}

func TestCollectAll_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &pagedSource{total: 10}
	ds, err := NewCollector(src, "").CollectAll(ctx, 5, 10)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, ds.Records)
	assert.Empty(t, src.calls)
}

func TestCollectAll_InvalidArguments(t *testing.T) {
	c := NewCollector(&pagedSource{}, "")

	_, err := c.CollectAll(context.Background(), 0, 1)
	assert.Error(t, err)
	_, err = c.CollectAll(context.Background(), 10, 0)
	assert.Error(t, err)
}

func TestCollectAll_ThroughPageFetcher(t *testing.T) {
	tr := &fakeTransport{body: []byte(`{"data":{"complaints":[{"id":"only"}],"meta":{"total":1,"pageCount":1}}}`)}
	c := NewCollector(NewPageFetcher(tr, "/complaints"), "-createdAt")

	ds, err := c.CollectAll(context.Background(), 100, 50)
	require.NoError(t, err)
	require.Len(t, ds.Records, 1)
	assert.Equal(t, "only", ds.Records[0].ID)
	assert.Len(t, tr.queries, 1)
}
