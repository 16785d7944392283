package browser

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"cmonreports/internal/errors"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/goccy/go-json"
)

// fetchResult is what the in-page fetch script resolves to.
type fetchResult struct {
	Status int    `json:"status"`
	Body   string `json:"body"`
	Error  string `json:"error"`
}

// Transport performs admin API GETs as fetch() calls inside the browser
// session, so the profile's cookies authenticate them.
type Transport struct {
	holder  *ContextHolder
	baseURL string
	origin  string

	mu            sync.Mutex
	navigatedTo   uint64 // Browser generation the origin page was loaded in
	navigatedOnce bool
}

// NewTransport creates a browser transport for the API at baseURL.
func NewTransport(holder *ContextHolder, baseURL string) (*Transport, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("browser transport: invalid base URL %q", baseURL)
	}
	return &Transport{
		holder:  holder,
		baseURL: strings.TrimRight(baseURL, "/"),
		origin:  u.Scheme + "://" + u.Host,
	}, nil
}

// Get requests path with query from inside the page.
//
// Flow:
//  1. Make sure the current browser has the API origin loaded
//  2. Evaluate fetchScript and await the promise
//  3. Map network errors and non-2xx statuses to TransportError
//
// A chromedp failure (crashed or hung browser) triggers a restart so the
// next cycle starts from a fresh browser.
func (t *Transport) Get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	target := t.URL(path, query)
	op := "GET " + path

	bctx, gen := t.holder.Get()
	runCtx, cancel := context.WithCancel(bctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := t.ensureOrigin(bctx, runCtx, gen); err != nil {
		return nil, t.browserFailure(ctx, op, target, err)
	}

	var res fetchResult
	err := chromedp.Run(runCtx,
		chromedp.Evaluate(fetchScript(target), &res, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}),
	)
	if err != nil {
		return nil, t.browserFailure(ctx, op, target, err)
	}

	if res.Error != "" {
		return nil, errors.NewTransportError(op, target, 0, fmt.Errorf("fetch: %s", res.Error))
	}
	if res.Status < 200 || res.Status > 299 {
		return nil, errors.NewTransportError(op, target, res.Status, fmt.Errorf("%s", snippet(res.Body)))
	}
	return []byte(res.Body), nil
}

// URL builds the absolute request URL for path and query.
func (t *Transport) URL(path string, query url.Values) string {
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := t.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// ensureOrigin loads the API origin once per browser generation. The
// browser is launched on bctx itself: chromedp ties Chrome's lifetime to the
// context of the first Run, and runCtx is cancelled after every request.
func (t *Transport) ensureOrigin(bctx, runCtx context.Context, gen uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.navigatedOnce && t.navigatedTo == gen {
		return nil
	}
	if err := chromedp.Run(bctx); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	if err := chromedp.Run(runCtx, chromedp.Navigate(t.origin)); err != nil {
		return fmt.Errorf("navigate to %s: %w", t.origin, err)
	}
	t.navigatedOnce = true
	t.navigatedTo = gen
	return nil
}

func (t *Transport) browserFailure(ctx context.Context, op, target string, err error) error {
	if ctx.Err() != nil {
		return errors.NewTransportError(op, target, 0, ctx.Err())
	}
	t.holder.Restart()
	return errors.NewTransportError(op, target, 0, err)
}

// fetchScript returns the JavaScript that fetches target with the page's
// credentials and resolves to a fetchResult. The URL is embedded as a JSON
// string literal.
func fetchScript(target string) string {
	quoted, _ := json.Marshal(target)
	return fmt.Sprintf(`
		(async function() {
			try {
				const response = await fetch(%s, {
					credentials: 'include',
					headers: {
						'Accept': 'application/json',
						'X-Requested-With': 'XMLHttpRequest'
					}
				});
				return { status: response.status, body: await response.text(), error: '' };
			} catch (error) {
				return { status: 0, body: '', error: String(error && error.message || error) };
			}
		})()
	`, quoted)
}

func snippet(body string) string {
	s := strings.TrimSpace(body)
	if s == "" {
		return "empty response"
	}
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
