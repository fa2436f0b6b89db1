package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
)

// NotFoundHandler serves a styled 404 page or JSON error for API routes.
func NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"success": false, "error": "endpoint no encontrado"})
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte(errorPageHTML("404", "Página no encontrada", "La página que buscas no existe o fue movida.")))
}

// InternalErrorHandler serves a styled 500 page or JSON error for API routes.
func InternalErrorHandler(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"success": false, "error": "Error interno del servidor"})
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusInternalServerError)
	w.Write([]byte(errorPageHTML("500", "Error del servidor", "Ocurrió un error. Intenta de nuevo en unos instantes.")))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func errorPageHTML(code, title, message string) string {
	return `<!DOCTYPE html>
<html lang="es">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>` + title + ` | AhorroVE</title>
<meta name="robots" content="noindex">
<style>` + SharedCSS() + `
.error-wrap{min-height:60vh;display:flex;align-items:center;justify-content:center;text-align:center;padding:40px 24px}
.error-code{font-size:clamp(5rem,15vw,8rem);font-weight:800;color:var(--green-mid);line-height:1;margin-bottom:8px;opacity:.85}
.error-wrap h1{font-size:clamp(1.3rem,3vw,1.8rem);margin-bottom:12px}
.error-wrap p{color:var(--ink-75);max-width:480px;margin:0 auto 24px}
.btn-home{display:inline-block;padding:12px 28px;background:var(--green);color:#fff;border-radius:var(--radius);font-weight:600}
.btn-home:hover{background:var(--green-mid);text-decoration:none}
</style>
</head>
<body>
` + SharedHeader("") + `
<main class="error-wrap">
<div>
<div class="error-code">` + code + `</div>
<h1>` + title + `</h1>
<p>` + message + `</p>
<a href="/" class="btn-home">Volver a la calculadora</a>
</div>
</main>
` + SharedFooter() + `
</body>
</html>`
}
