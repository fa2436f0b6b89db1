// Package linkcheck verifies the official-source links cited by the
// informational pages (DIAN, UPME, the law text) and keeps the last result
// for the admin endpoint.
package linkcheck

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"ahorrove/internal/config"
	"ahorrove/internal/content"
	"ahorrove/internal/logger"
	sentryutil "ahorrove/internal/sentry"
)

const maxConcurrent = 5

// Link is one outbound URL and the page that cites it.
type Link struct {
	Page string `json:"page"`
	URL  string `json:"url"`
}

// Result is the outcome of checking one link.
type Result struct {
	Link
	OK         bool   `json:"ok"`
	StatusCode int    `json:"status_code"`
	Error      string `json:"error,omitempty"`
	WaybackURL string `json:"wayback_url,omitempty"`
}

// Summary is one full pass over every link.
type Summary struct {
	CheckedAt time.Time `json:"checked_at"`
	Total     int       `json:"total"`
	Verified  int       `json:"verified"`
	Broken    int       `json:"broken"`
	Results   []Result  `json:"results"`
}

var (
	lastMu sync.RWMutex
	last   Summary
)

// Last returns the most recent summary. CheckedAt is zero before the first run.
func Last() Summary {
	lastMu.RLock()
	defer lastMu.RUnlock()
	return last
}

var client = &http.Client{
	Timeout: 10 * time.Second,
	CheckRedirect: func(req *http.Request, via []*http.Request) error {
		if len(via) >= 3 {
			return http.ErrUseLastResponse
		}
		return nil
	},
}

// CheckLink reports whether url answers with a 2xx/3xx status. Servers that
// refuse HEAD are retried with GET.
func CheckLink(ctx context.Context, url string) (bool, int, error) {
	status, err := probe(ctx, http.MethodHead, url)
	if err == nil && (status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented) {
		status, err = probe(ctx, http.MethodGet, url)
	}
	if err != nil {
		return false, 0, err
	}
	return status >= 200 && status < 400, status, nil
}

func probe(ctx context.Context, method, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", config.Cfg.UserAgent)
	req.Header.Set("Accept-Language", "es-CO,es;q=0.9")

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

// PageLinks collects the absolute links of every loaded content page.
func PageLinks() []Link {
	var links []Link
	for _, p := range content.All() {
		for _, u := range p.Links {
			links = append(links, Link{Page: p.Slug, URL: u})
		}
	}
	return links
}

// CheckAll checks links concurrently, stores the summary and returns it.
// Broken links are looked up in the Wayback Machine so an editor has a
// replacement at hand.
func CheckAll(ctx context.Context, links []Link) Summary {
	results := make([]Result, len(links))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)
	for i, l := range links {
		g.Go(func() error {
			res := Result{Link: l}
			ok, status, err := CheckLink(gctx, l.URL)
			res.OK, res.StatusCode = ok, status
			if err != nil {
				res.Error = err.Error()
			}
			if !ok {
				if archived, found := TryWaybackRecovery(gctx, l.URL); found {
					res.WaybackURL = archived
				}
			}
			results[i] = res
			return nil
		})
	}
	g.Wait()

	sum := Summary{CheckedAt: time.Now().UTC(), Total: len(results), Results: results}
	for _, r := range results {
		if r.OK {
			sum.Verified++
			continue
		}
		sum.Broken++
		logger.Warn("linkcheck: broken", map[string]interface{}{
			"page": r.Page, "url": r.URL, "status": r.StatusCode, "wayback": r.WaybackURL,
		})
		sentryutil.CaptureMessage("Broken official link: "+r.URL, sentryutil.LevelWarning(), map[string]string{
			"component": "linkcheck",
			"page":      r.Page,
			"status":    fmt.Sprintf("%d", r.StatusCode),
		})
	}

	lastMu.Lock()
	last = sum
	lastMu.Unlock()

	logger.Info("linkcheck: completed", map[string]interface{}{"total": sum.Total, "broken": sum.Broken})
	return sum
}

// Run checks the page links right away and then every interval until ctx is
// done. A non-positive interval disables the checker.
func Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}
	CheckAll(ctx, PageLinks())

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			CheckAll(ctx, PageLinks())
		}
	}
}
