package audit

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"

	"ahorrove/internal/config"
	"ahorrove/internal/logger"
)

// AdminHandler serves GET /api/admin/audit: dispatcher counters, recent
// failures and, when the SQLite sink is enabled, the latest stored records.
// Protected by ADMIN_API_KEY (query param "key" or header "X-Admin-Key").
func AdminHandler(d *Dispatcher, store *SQLiteSink) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !checkAdminKey(r) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		resp := struct {
			Stats    Stats     `json:"stats"`
			Failures []Failure `json:"failures"`
			Recent   []Record  `json:"recent,omitempty"`
			Total    int       `json:"total,omitempty"`
		}{
			Stats:    d.Stats(),
			Failures: d.Failures(),
		}

		if store != nil {
			limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
			if limit <= 0 || limit > 200 {
				limit = 20
			}
			recent, err := store.Recent(r.Context(), limit)
			if err != nil {
				logger.Error("admin audit: recent failed", map[string]interface{}{"error": err.Error()})
			}
			resp.Recent = recent
			if n, err := store.Count(r.Context()); err == nil {
				resp.Total = n
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		json.NewEncoder(w).Encode(resp)
	}
}

func checkAdminKey(r *http.Request) bool {
	key := config.Cfg.AdminAPIKey
	if key == "" {
		return true // no key configured = open access (dev mode)
	}
	if k := r.URL.Query().Get("key"); k != "" && subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(r.Header.Get("X-Admin-Key")), []byte(key)) == 1
}
