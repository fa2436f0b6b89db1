package linkcheck

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"ahorrove/internal/config"
	"ahorrove/internal/logger"
)

type waybackResponse struct {
	ArchivedSnapshots struct {
		Closest struct {
			Available bool   `json:"available"`
			URL       string `json:"url"`
			Timestamp string `json:"timestamp"`
		} `json:"closest"`
	} `json:"archived_snapshots"`
}

var waybackAPI = "https://archive.org/wayback/available"

var waybackClient = &http.Client{Timeout: 10 * time.Second}

// TryWaybackRecovery returns the closest archived snapshot of rawURL.
func TryWaybackRecovery(ctx context.Context, rawURL string) (string, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, waybackAPI+"?url="+url.QueryEscape(rawURL), nil)
	if err != nil {
		return "", false
	}
	req.Header.Set("User-Agent", config.Cfg.UserAgent)

	resp, err := waybackClient.Do(req)
	if err != nil {
		logger.Warn("wayback: request failed", map[string]interface{}{"url": rawURL, "error": err.Error()})
		return "", false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return "", false
	}
	var wb waybackResponse
	if err := json.Unmarshal(body, &wb); err != nil {
		return "", false
	}
	snap := wb.ArchivedSnapshots.Closest
	if !snap.Available || snap.URL == "" {
		return "", false
	}
	return snap.URL, true
}
