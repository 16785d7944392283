package complaint

import (
	"testing"

	"cmonreports/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePage_Shapes(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantIDs   []string
		wantShape string
	}{
		{
			name:      "bare array",
			body:      `[{"id":"a"},{"id":"b"}]`,
			wantIDs:   []string{"a", "b"},
			wantShape: "array",
		},
		{
			name:      "complaints field",
			body:      `{"complaints":[{"id":"c1"}],"pagination":{"total":1}}`,
			wantIDs:   []string{"c1"},
			wantShape: "complaints",
		},
		{
			name:      "data.complaints",
			body:      `{"data":{"complaints":[{"_id":"m1"},{"_id":"m2"}]}}`,
			wantIDs:   []string{"m1", "m2"},
			wantShape: "data.complaints",
		},
		{
			name:      "data array",
			body:      `{"data":[{"id":7}],"meta":{"total":1}}`,
			wantIDs:   []string{"7"},
			wantShape: "data",
		},
		{
			name:      "empty complaints falls through to data",
			body:      `{"complaints":[],"data":[{"id":"d1"}]}`,
			wantIDs:   []string{"d1"},
			wantShape: "data",
		},
		{
			name:      "complaints wins over data",
			body:      `{"complaints":[{"id":"first"}],"data":[{"id":"second"}]}`,
			wantIDs:   []string{"first"},
			wantShape: "complaints",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := DecodePage([]byte(tt.body))
			require.NoError(t, err)

			ids := make([]string, 0, len(page.Records))
			for _, r := range page.Records {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
			assert.Equal(t, tt.wantShape, page.Shape)
		})
	}
}

func TestDecodePage_EmptyArrays(t *testing.T) {
	page, err := DecodePage([]byte(`{"complaints":[],"pagination":{"total":0,"pageCount":0}}`))
	require.NoError(t, err)

	assert.NotNil(t, page.Records)
	assert.Empty(t, page.Records)
	require.NotNil(t, page.Meta.Total)
	assert.Equal(t, 0, *page.Meta.Total)
	require.NotNil(t, page.Meta.PageCount)
	assert.Equal(t, 0, *page.Meta.PageCount)
}

func TestDecodePage_Meta(t *testing.T) {
	tests := []struct {
		name          string
		body          string
		wantTotal     *int
		wantPageCount *int
	}{
		{
			name:          "pagination",
			body:          `{"complaints":[{"id":"a"}],"pagination":{"total":120,"pageCount":3}}`,
			wantTotal:     intPtr(120),
			wantPageCount: intPtr(3),
		},
		{
			name:          "meta with totalPages",
			body:          `{"data":[{"id":"a"}],"meta":{"total":"42","totalPages":5}}`,
			wantTotal:     intPtr(42),
			wantPageCount: intPtr(5),
		},
		{
			name:          "data.meta",
			body:          `{"data":{"complaints":[{"id":"a"}],"meta":{"total":9,"pages":1}}}`,
			wantTotal:     intPtr(9),
			wantPageCount: intPtr(1),
		},
		{
			name:          "pagination wins per field",
			body:          `{"complaints":[{"id":"a"}],"pagination":{"total":10},"meta":{"total":99,"pageCount":4}}`,
			wantTotal:     intPtr(10),
			wantPageCount: intPtr(4),
		},
		{
			name: "no meta is unknown",
			body: `[{"id":"a"}]`,
		},
		{
			name: "null fields are unknown",
			body: `{"complaints":[{"id":"a"}],"pagination":{"total":null,"pageCount":null}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := DecodePage([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.wantTotal, page.Meta.Total)
			assert.Equal(t, tt.wantPageCount, page.Meta.PageCount)
		})
	}
}

func TestDecodePage_RecordFields(t *testing.T) {
	body := `[{
		"_id": 101,
		"title": "Water leak",
		"category": {"name": "Plumbing"},
		"status": "in_progress",
		"priority": "URGENT",
		"created_at": "2024-01-05T10:00:00Z",
		"resolution_time_hours": "3.5",
		"reporter": {"email": "jane@example.com"}
	}, "not an object", null]`

	page, err := DecodePage([]byte(body))
	require.NoError(t, err)
	require.Len(t, page.Records, 1)

	r := page.Records[0]
	assert.Equal(t, "101", r.ID)
	assert.Equal(t, "Water leak", r.Title)
	assert.Equal(t, "Plumbing", r.Category)
	assert.Equal(t, "in_progress", r.Status)
	assert.Equal(t, "URGENT", r.Priority)
	assert.Equal(t, "2024-01-05T10:00:00Z", r.CreatedAt)
	require.NotNil(t, r.ResolutionTimeHours)
	assert.InDelta(t, 3.5, *r.ResolutionTimeHours, 1e-9)
	assert.Equal(t, "jane@example.com", r.Reporter)
}

func TestDecodePage_MissingResolutionIsNil(t *testing.T) {
	page, err := DecodePage([]byte(`[{"id":"a","resolutionTimeHours":null},{"id":"b","resolutionTimeHours":0}]`))
	require.NoError(t, err)
	require.Len(t, page.Records, 2)

	assert.Nil(t, page.Records[0].ResolutionTimeHours)
	require.NotNil(t, page.Records[1].ResolutionTimeHours)
	assert.Zero(t, *page.Records[1].ResolutionTimeHours)
}

func TestDecodePage_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"not json", "<html>gateway timeout</html>"},
		{"scalar", `"ok"`},
		{"object without array", `{"message":"ok","meta":{"total":3}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePage([]byte(tt.body))
			require.Error(t, err)
			assert.True(t, errors.IsMalformed(err))
		})
	}
}

func TestDecodePage_MalformedKeepsMeta(t *testing.T) {
	page, err := DecodePage([]byte(`{"message":"ok","meta":{"total":3}}`))
	require.Error(t, err)
	require.NotNil(t, page.Meta.Total)
	assert.Equal(t, 3, *page.Meta.Total)
	assert.Empty(t, page.Records)
}

func intPtr(v int) *int { return &v }
