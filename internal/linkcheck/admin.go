package linkcheck

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"ahorrove/internal/config"
)

// AdminLinksHandler serves GET /api/admin/links with the last check summary.
// ?refresh=1 runs a new pass before answering.
// Protected by ADMIN_API_KEY (query param "key" or header "X-Admin-Key").
func AdminLinksHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !checkAdminKey(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	sum := Last()
	if r.URL.Query().Get("refresh") == "1" {
		sum = CheckAll(r.Context(), PageLinks())
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	json.NewEncoder(w).Encode(sum)
}

func checkAdminKey(r *http.Request) bool {
	key := config.Cfg.AdminAPIKey
	if key == "" {
		return true
	}
	if k := r.URL.Query().Get("key"); k != "" && subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(r.Header.Get("X-Admin-Key")), []byte(key)) == 1
}
