package telegram

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"cmonreports/internal/analytics"
	"cmonreports/internal/complaint"
	"cmonreports/internal/refresh"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	method      string
	contentType string
	body        string
}

// fakeBotAPI records every Bot API call and answers with ok.
type fakeBotAPI struct {
	mu       sync.Mutex
	requests []capturedRequest
	fail     bool
}

func (f *fakeBotAPI) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		parts := strings.Split(r.URL.Path, "/")
		f.mu.Lock()
		f.requests = append(f.requests, capturedRequest{
			method:      parts[len(parts)-1],
			contentType: r.Header.Get("Content-Type"),
			body:        string(body),
		})
		fail := f.fail
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if fail {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
			return
		}
		w.Write([]byte(`{"ok":true,"result":{"message_id":42}}`))
	})
}

func (f *fakeBotAPI) calls() []capturedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]capturedRequest(nil), f.requests...)
}

func newTestClient(t *testing.T) (*Client, *fakeBotAPI) {
	t.Helper()
	api := &fakeBotAPI{}
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)

	c := NewClient("TOKEN", "-100123", false)
	require.NotNil(t, c)
	c.BaseURL = srv.URL
	return c, api
}

func testSnapshot(insights ...string) refresh.Snapshot {
	return refresh.Snapshot{
		Complaints: []complaint.Record{{ID: "1"}, {ID: "2"}},
		Totals:     refresh.Totals{TotalComplaints: 2},
		Analytics:  analytics.View{WindowDays: 30, Insights: insights},
	}
}

func TestNewClient_Unconfigured(t *testing.T) {
	assert.Nil(t, NewClient("", "chat", false))
	assert.Nil(t, NewClient("token", "", false))
}

func TestNilClient(t *testing.T) {
	var c *Client
	sent, err := c.SendDigest(context.Background(), testSnapshot("a"), nil)
	assert.NoError(t, err)
	assert.False(t, sent)
	assert.NoError(t, c.SendCriticalAlert(context.Background(), "Refresh Failure", "boom", 3))
}

func TestSendDigest_TextOnly(t *testing.T) {
	c, api := newTestClient(t)

	sent, err := c.SendDigest(context.Background(), testSnapshot("Urgent complaints: 2 in the selected range."), nil)
	require.NoError(t, err)
	assert.True(t, sent)

	calls := api.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "sendMessage", calls[0].method)
	assert.Equal(t, "application/json", calls[0].contentType)

	var msg Message
	require.NoError(t, json.Unmarshal([]byte(calls[0].body), &msg))
	assert.Equal(t, "-100123", msg.ChatID)
	assert.Equal(t, "HTML", msg.ParseMode)
	assert.Contains(t, msg.Text, "• Urgent complaints: 2 in the selected range.")
}

func TestSendDigest_WithPhoto(t *testing.T) {
	c, api := newTestClient(t)

	png := []byte("\x89PNG fake")
	sent, err := c.SendDigest(context.Background(), testSnapshot("Completion rate is 40% in the last 30 days."), png)
	require.NoError(t, err)
	assert.True(t, sent)

	calls := api.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "sendPhoto", calls[0].method)
	assert.True(t, strings.HasPrefix(calls[0].contentType, "multipart/form-data"))
	assert.Contains(t, calls[0].body, `name="photo"; filename="summary.png"`)
	assert.Contains(t, calls[0].body, "Completion rate is 40% in the last 30 days.")
	assert.Contains(t, calls[0].body, "\x89PNG fake")
}

func TestSendDigest_LongTextSplitsPhotoAndMessage(t *testing.T) {
	c, api := newTestClient(t)

	long := strings.Repeat("x", maxCaptionLen+1)
	sent, err := c.SendDigest(context.Background(), testSnapshot(long), []byte("png"))
	require.NoError(t, err)
	assert.True(t, sent)

	calls := api.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "sendPhoto", calls[0].method)
	assert.Equal(t, "sendMessage", calls[1].method)
}

func TestSendDigest_Dedupe(t *testing.T) {
	c, api := newTestClient(t)
	ctx := context.Background()

	sent, err := c.SendDigest(ctx, testSnapshot("same"), nil)
	require.NoError(t, err)
	assert.True(t, sent)

	sent, err = c.SendDigest(ctx, testSnapshot("same"), nil)
	require.NoError(t, err)
	assert.False(t, sent, "identical digest is skipped")

	sent, err = c.SendDigest(ctx, testSnapshot("changed"), nil)
	require.NoError(t, err)
	assert.True(t, sent)

	assert.Len(t, api.calls(), 2)
}

func TestSendDigest_APIErrorAllowsRetry(t *testing.T) {
	c, api := newTestClient(t)
	ctx := context.Background()

	api.mu.Lock()
	api.fail = true
	api.mu.Unlock()
	sent, err := c.SendDigest(ctx, testSnapshot("a"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
	assert.False(t, sent)

	api.mu.Lock()
	api.fail = false
	api.mu.Unlock()
	sent, err = c.SendDigest(ctx, testSnapshot("a"), nil)
	require.NoError(t, err)
	assert.True(t, sent, "a failed digest is not remembered")
}

func TestSendDigest_DebugMode(t *testing.T) {
	c, api := newTestClient(t)
	c.DebugMode = true

	sent, err := c.SendDigest(context.Background(), testSnapshot("a"), []byte("png"))
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Empty(t, api.calls())
}

func TestFormatDigest(t *testing.T) {
	snap := testSnapshot("Top category: Water <Supply>.")
	text := FormatDigest(snap)
	assert.True(t, strings.HasPrefix(text, "📊 <b>Complaint report</b> (last 30 days)"))
	assert.Contains(t, text, "Water &lt;Supply&gt;")
	assert.NotContains(t, text, "page limit")

	snap.Truncated = true
	snap.Totals.TotalComplaints = 500
	assert.Contains(t, FormatDigest(snap), "Collected 2 of 500 complaints (page limit reached)")
}

func TestSendCriticalAlert(t *testing.T) {
	c, api := newTestClient(t)

	err := c.SendCriticalAlert(context.Background(), "Refresh Failure", "HTTP 502 <bad gateway>", 3)
	require.NoError(t, err)

	calls := api.calls()
	require.Len(t, calls, 1)
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(calls[0].body), &msg))
	assert.Contains(t, msg.Text, "CRITICAL ALERT - CMON REPORTS")
	assert.Contains(t, msg.Text, "<b>Failed Cycles:</b> 3")
	assert.Contains(t, msg.Text, "HTTP 502 &lt;bad gateway&gt;")
}

func TestSendCriticalAlert_DebugMode(t *testing.T) {
	c, api := newTestClient(t)
	c.DebugMode = true

	require.NoError(t, c.SendCriticalAlert(context.Background(), "Refresh Failure", "boom", 3))
	assert.Empty(t, api.calls())
}
