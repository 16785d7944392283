package browser

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTransport(t *testing.T) {
	tr, err := NewTransport(nil, "https://admin.example.com/api/")
	require.NoError(t, err)
	assert.Equal(t, "https://admin.example.com", tr.origin)
	assert.Equal(t, "https://admin.example.com/api/complaints?page=1", tr.URL("complaints", url.Values{"page": {"1"}}))

	_, err = NewTransport(nil, "admin.example.com/api")
	assert.Error(t, err)
}

func TestFetchScript(t *testing.T) {
	script := fetchScript(`https://admin.example.com/api/complaints?q=it's "quoted"`)

	assert.Contains(t, script, `fetch("https://admin.example.com/api/complaints?q=it's \"quoted\""`)
	assert.Contains(t, script, "credentials: 'include'")
	assert.Contains(t, script, "status: response.status")
	assert.True(t, strings.HasPrefix(strings.TrimSpace(script), "(async function()"))
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "empty response", snippet("  "))
	assert.Equal(t, "Forbidden", snippet("Forbidden\n"))
	assert.Len(t, snippet(strings.Repeat("a", 500)), 203)
}
