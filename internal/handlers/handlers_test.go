package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/net/html"

	"ahorrove/internal/audit"
	"ahorrove/internal/config"
	"ahorrove/internal/content"
	"ahorrove/internal/logger"
	"ahorrove/internal/models"
	"ahorrove/internal/resultcache"
	"ahorrove/internal/taxtable"
)

type captureSink struct {
	mu      sync.Mutex
	records []audit.Record
}

func (s *captureSink) Name() string { return "capture" }

func (s *captureSink) Write(_ context.Context, r audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	return nil
}

func (s *captureSink) all() []audit.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audit.Record(nil), s.records...)
}

// setup wires the handlers to fresh services and returns the audit sink.
func setup(t *testing.T) *captureSink {
	t.Helper()
	tables, err := taxtable.Load("", 0)
	require.NoError(t, err)

	sink := &captureSink{}
	d := audit.NewDispatcher(audit.Options{QueueSize: 16, Workers: 1, Timeout: time.Second}, sink)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		d.Close(ctx)
	})

	InitCounter(filepath.Join(t.TempDir(), "counter.json"))
	t.Cleanup(StopCounter)

	Init(Deps{Tables: tables, Audit: d, Results: resultcache.New(time.Minute)})
	return sink
}

func validRequest() models.CalculateRequest {
	return models.CalculateRequest{
		Nombre:                  "Ana María Restrepo",
		Email:                   "ana@example.co",
		CedulaNIT:               "1020304050",
		Celular:                 "3001234567",
		Ciudad:                  "Medellín",
		TipoCliente:             models.ClienteNatural,
		IngresosMensuales:       10_000_000,
		ValorVehiculo:           150_000_000,
		CalcularDeduccionOptima: true,
		IncluirRentaExenta:      boolPtr(false),
	}
}

func boolPtr(b bool) *bool { return &b }

func postCalculate(t *testing.T, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/calculate", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	CalculateHandler(w, req)
	return w
}

func decodeCalculate(t *testing.T, w *httptest.ResponseRecorder) models.CalculateResponse {
	t.Helper()
	var resp models.CalculateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func TestCalculateHandler_Valid(t *testing.T) {
	sink := setup(t)

	w := postCalculate(t, validRequest())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "no-store, no-cache, must-revalidate", w.Header().Get("Cache-Control"))

	resp := decodeCalculate(t, w)
	require.True(t, resp.Success)
	require.NotEmpty(t, resp.ID)
	require.NotNil(t, resp.Result)
	require.NotNil(t, resp.Result.Optimal)
	assert.Equal(t, 2025, resp.Result.Year)
	assert.Equal(t, 35_341_700.0, resp.Result.Optimal.RecommendedDeduction)
	assert.Equal(t, "19%", resp.Result.WithVehicle.Bracket.Name)
	assert.Equal(t, int64(1), GetCounter())

	_, cached := deps.Results.Get(resp.ID)
	assert.True(t, cached)

	require.Eventually(t, func() bool { return len(sink.all()) == 1 }, 2*time.Second, 10*time.Millisecond)
	rec := sink.all()[0]
	assert.Equal(t, resp.ID, rec.ID)
	assert.Equal(t, "ana@example.co", rec.Email)
	assert.Equal(t, "28%", rec.TramoSinVehiculo)
	assert.Equal(t, "19%", rec.TramoConVehiculo)
	assert.Equal(t, resp.Result.AnnualSavings, rec.AhorroAnual)
}

func TestCalculateHandler_SanitizesLeadFields(t *testing.T) {
	sink := setup(t)

	req := validRequest()
	req.Nombre = "  <b>Ana</b>\tMaría  "
	req.Email = "ANA@Example.CO"
	req.Ciudad = "<script>alert(1)</script>Cali"
	w := postCalculate(t, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.Eventually(t, func() bool { return len(sink.all()) == 1 }, 2*time.Second, 10*time.Millisecond)
	rec := sink.all()[0]
	assert.Equal(t, "Ana María", rec.Nombre)
	assert.Equal(t, "ana@example.co", rec.Email)
	assert.Equal(t, "Cali", rec.Ciudad)
}

func TestCalculateHandler_Rejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*models.CalculateRequest)
		want   string
	}{
		{"short name", func(r *models.CalculateRequest) { r.Nombre = "A" }, "nombre"},
		{"bad email", func(r *models.CalculateRequest) { r.Email = "ana-at-example" }, "correo"},
		{"short id", func(r *models.CalculateRequest) { r.CedulaNIT = "123" }, "cédula"},
		{"short phone", func(r *models.CalculateRequest) { r.Celular = "300" }, "celular"},
		{"missing city", func(r *models.CalculateRequest) { r.Ciudad = "" }, "ciudad"},
		{"client type", func(r *models.CalculateRequest) { r.TipoCliente = "gobierno" }, "tipo de cliente"},
		{"negative income", func(r *models.CalculateRequest) { r.IngresosMensuales = -1 }, "ingresos"},
		{"negative deductions", func(r *models.CalculateRequest) { r.OtrasDeducciones = -5 }, "deducciones"},
		{"vehicle too cheap", func(r *models.CalculateRequest) { r.ValorVehiculo = 999_999 }, "vehículo"},
		{"vehicle too expensive", func(r *models.CalculateRequest) { r.ValorVehiculo = 1_000_000_001 }, "vehículo"},
		{"negative applied", func(r *models.CalculateRequest) { v := -1.0; r.DeduccionVehiculoAplicada = &v }, "deducción aplicada"},
		{"unknown year", func(r *models.CalculateRequest) { r.Year = 1999 }, "año"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			sink := setup(t)
			req := validRequest()
			c.mutate(&req)

			w := postCalculate(t, req)
			require.Equal(t, http.StatusBadRequest, w.Code)
			resp := decodeCalculate(t, w)
			assert.False(t, resp.Success)
			assert.Nil(t, resp.Result)
			assert.Contains(t, strings.ToLower(resp.Error), c.want)
			assert.Zero(t, GetCounter())
			assert.Empty(t, sink.all())
		})
	}
}

func TestCalculateHandler_BadBody(t *testing.T) {
	setup(t)
	core, logs := observer.New(zapcore.DebugLevel)
	prev := logger.L()
	logger.Set(zap.New(core))
	t.Cleanup(func() { logger.Set(prev) })

	req := httptest.NewRequest(http.MethodPost, "/api/calculate", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	CalculateHandler(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// A malformed body is the client's fault: a warning, not an error report.
	entries := logs.FilterMessage("calculate: invalid request body").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Zero(t, logs.FilterLevelExact(zapcore.ErrorLevel).Len())

	req = httptest.NewRequest(http.MethodGet, "/api/calculate", nil)
	w = httptest.NewRecorder()
	CalculateHandler(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestCalculateHandler_Turnstile(t *testing.T) {
	setup(t)
	var gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotToken = r.FormValue("response")
		json.NewEncoder(w).Encode(map[string]bool{"success": r.FormValue("response") == "good"})
	}))
	defer srv.Close()

	prevURL, prevSecret := turnstileVerifyURL, config.Cfg.TurnstileSecretKey
	turnstileVerifyURL, config.Cfg.TurnstileSecretKey = srv.URL, "secret"
	defer func() { turnstileVerifyURL, config.Cfg.TurnstileSecretKey = prevURL, prevSecret }()

	data, _ := json.Marshal(validRequest())
	cases := []struct {
		token string
		want  int
	}{
		{"", http.StatusForbidden},
		{"bad", http.StatusForbidden},
		{"good", http.StatusOK},
	}
	for _, c := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/calculate", bytes.NewReader(data))
		req.Header.Set("X-Turnstile-Token", c.token)
		w := httptest.NewRecorder()
		CalculateHandler(w, req)
		assert.Equal(t, c.want, w.Code, "token %q", c.token)
	}
	assert.Equal(t, "good", gotToken)
}

func TestReportHandler(t *testing.T) {
	setup(t)
	resp := decodeCalculate(t, postCalculate(t, validRequest()))
	require.True(t, resp.Success)

	req := httptest.NewRequest(http.MethodGet, "/api/report?id="+resp.ID, nil)
	w := httptest.NewRecorder()
	ReportHandler(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")))

	req = httptest.NewRequest(http.MethodGet, "/api/report?id="+resp.ID+"&mode=inline", nil)
	w = httptest.NewRecorder()
	ReportHandler(w, req)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "inline")

	for path, want := range map[string]int{
		"/api/report?id=does-not-exist": http.StatusNotFound,
		"/api/report":                   http.StatusBadRequest,
	} {
		w := httptest.NewRecorder()
		ReportHandler(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, want, w.Code, path)
	}
}

func TestRenderReportWithAlerts(t *testing.T) {
	tables, err := taxtable.Load("", 0)
	require.NoError(t, err)
	calc, err := tables.Calculator(0)
	require.NoError(t, err)

	req := validRequest()
	req.OtrasDeducciones = 200_000_000
	res := calc.Compute(req.Input())
	require.NotEmpty(t, res.Alerts)

	var buf bytes.Buffer
	require.NoError(t, RenderReport(&buf, resultcache.Entry{
		ID:            "x",
		CreatedAt:     time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		Nombre:        strings.Repeat("Nombre muy largo ", 6),
		TipoCliente:   models.ClienteEmpresa,
		Ciudad:        "Bogotá",
		ValorVehiculo: req.ValorVehiculo,
		Result:        res,
	}))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF")))
}

func TestParametrosHandler(t *testing.T) {
	setup(t)

	w := httptest.NewRecorder()
	ParametrosHandler(w, httptest.NewRequest(http.MethodGet, "/api/parametros", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var p parametrosResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.Equal(t, 2025, p.Year)
	assert.Equal(t, 49799.0, p.UVTValue)
	assert.Equal(t, []int{2024, 2025}, p.AvailableYears)
	require.Len(t, p.Brackets, 4)
	assert.Nil(t, p.Brackets[3].UpperUVT)
	require.NotNil(t, p.Brackets[1].UpperUVT)
	assert.Equal(t, 1700.0, *p.Brackets[1].UpperUVT)
	assert.Equal(t, 1090.0, p.Brackets[1].LowerUVT)
	assert.Equal(t, "1090 - 1700 UVT", p.Brackets[1].UVTRange)

	w = httptest.NewRecorder()
	ParametrosHandler(w, httptest.NewRequest(http.MethodGet, "/api/parametros?year=2024", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.Equal(t, 47065.0, p.UVTValue)

	for path, want := range map[string]int{
		"/api/parametros?year=1999": http.StatusNotFound,
		"/api/parametros?year=abc":  http.StatusBadRequest,
	} {
		w := httptest.NewRecorder()
		ParametrosHandler(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, want, w.Code, path)
	}
}

func TestHealthAndStatsHandlers(t *testing.T) {
	setup(t)
	postCalculate(t, validRequest())

	w := httptest.NewRecorder()
	HealthHandler(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, 2025.0, health["tax_year"])
	assert.Contains(t, health, "audit_queue")

	w = httptest.NewRecorder()
	StatsHandler(w, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	var stats map[string]float64
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 1.0, stats["calculos"])
}

func uploadRequest(t *testing.T, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "certificado.pdf")
	require.NoError(t, err)
	fw.Write(data)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/parse-certificado", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestParseCertificadoHandler(t *testing.T) {
	doc := gofpdf.New("P", "mm", "A4", "")
	doc.SetCompression(false)
	doc.AddPage()
	doc.SetFont("Helvetica", "", 11)
	doc.Cell(0, 8, "Total de ingresos brutos 72.000.000")
	var pdfBuf bytes.Buffer
	require.NoError(t, doc.Output(&pdfBuf))

	w := httptest.NewRecorder()
	ParseCertificadoHandler(w, uploadRequest(t, pdfBuf.Bytes()))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, true, got["found"])
	assert.Equal(t, 72_000_000.0, got["ingresos_anuales"])
	assert.Equal(t, 6_000_000.0, got["ingreso_mensual"])

	w = httptest.NewRecorder()
	ParseCertificadoHandler(w, uploadRequest(t, []byte("plain text, not a pdf")))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	ParseCertificadoHandler(w, httptest.NewRequest(http.MethodGet, "/api/parse-certificado", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

// findAll walks the parsed page and collects nodes matching keep.
func findAll(n *html.Node, keep func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	if keep(n) {
		out = append(out, n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, findAll(c, keep)...)
	}
	return out
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func TestIndexHandler(t *testing.T) {
	setup(t)
	w := httptest.NewRecorder()
	IndexHandler(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	doc, err := html.Parse(strings.NewReader(body))
	require.NoError(t, err)
	ids := map[string]bool{}
	for _, n := range findAll(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && (n.Data == "input" || n.Data == "select")
	}) {
		ids[attr(n, "id")] = true
	}
	for _, id := range []string{"nombre", "email", "cedula_nit", "celular", "ciudad", "tipo_cliente",
		"ingresos_mensuales", "otras_deducciones", "valor_vehiculo", "deduccion_vehiculo_aplicada",
		"calcular_deduccion_optima", "incluir_renta_exenta", "certificado"} {
		assert.True(t, ids[id], "missing field %s", id)
	}
	assert.Contains(t, body, "año gravable 2025")
}

func TestBeneficiosHandler(t *testing.T) {
	require.NoError(t, content.LoadEmbedded())

	w := httptest.NewRecorder()
	BeneficiosHandler(w, httptest.NewRequest(http.MethodGet, "/beneficios-tributarios", nil))
	require.Equal(t, http.StatusOK, w.Code)

	doc, err := html.Parse(w.Body)
	require.NoError(t, err)
	h1 := findAll(doc, func(n *html.Node) bool { return n.Type == html.ElementNode && n.Data == "h1" })
	require.Len(t, h1, 1)
	require.NotNil(t, h1[0].FirstChild)
	assert.Contains(t, h1[0].FirstChild.Data, "Ley 1715")

	canon := findAll(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "link" && attr(n, "rel") == "canonical"
	})
	require.Len(t, canon, 1)
	assert.True(t, strings.HasSuffix(attr(canon[0], "href"), "/beneficios-tributarios"))
}

func TestSitemapAndRobots(t *testing.T) {
	require.NoError(t, content.LoadEmbedded())

	w := httptest.NewRecorder()
	SitemapHandler(w, httptest.NewRequest(http.MethodGet, "/sitemap.xml", nil))
	assert.Contains(t, w.Body.String(), "/beneficios-tributarios</loc>")
	assert.Contains(t, w.Body.String(), "<lastmod>2025-01-15</lastmod>")

	w = httptest.NewRecorder()
	RobotsTxtHandler(w, httptest.NewRequest(http.MethodGet, "/robots.txt", nil))
	assert.Contains(t, w.Body.String(), "Disallow: /api/")
	assert.Contains(t, w.Body.String(), "/sitemap.xml")
}

func TestNotFoundHandler(t *testing.T) {
	w := httptest.NewRecorder()
	NotFoundHandler(w, httptest.NewRequest(http.MethodGet, "/api/nada", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	w = httptest.NewRecorder()
	NotFoundHandler(w, httptest.NewRequest(http.MethodGet, "/nada", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Página no encontrada")
}

func TestRateLimiter(t *testing.T) {
	prev := config.Cfg.TrustedProxyHops
	config.Cfg.TrustedProxyHops = 1
	t.Cleanup(func() { config.Cfg.TrustedProxyHops = prev })

	rl := NewRateLimiter(1, 2)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/calculate", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		codes = append(codes, w.Code)
		if w.Code == http.StatusTooManyRequests {
			assert.Equal(t, "1", w.Header().Get("Retry-After"))
		}
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)

	// Another client has its own bucket.
	req := httptest.NewRequest(http.MethodPost, "/api/calculate", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	// Rotating a spoofed left-most entry does not mint new buckets.
	spoofed := make([]int, 0, 3)
	for _, fake := range []string{"1.1.1.1", "2.2.2.2", "3.3.3.3"} {
		req := httptest.NewRequest(http.MethodPost, "/api/calculate", nil)
		req.Header.Set("X-Forwarded-For", fake+", 198.51.100.20")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		spoofed = append(spoofed, w.Code)
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, spoofed)

	now = now.Add(time.Hour)
	assert.Equal(t, 0, rl.Cleanup(2*time.Hour))
	assert.Equal(t, 3, rl.Cleanup(30*time.Minute))
}

func TestClientIP(t *testing.T) {
	prev := config.Cfg.TrustedProxyHops
	t.Cleanup(func() { config.Cfg.TrustedProxyHops = prev })

	tests := []struct {
		name string
		hops int
		xff  string
		want string
	}{
		{"no header", 1, "", "192.0.2.1"},
		{"single proxy", 1, "203.0.113.9", "203.0.113.9"},
		{"spoofed prefix ignored", 1, "6.6.6.6, 203.0.113.9", "203.0.113.9"},
		{"two proxies", 2, "6.6.6.6, 203.0.113.9, 10.0.0.2", "203.0.113.9"},
		{"too few entries", 2, "203.0.113.9", "192.0.2.1"},
		{"header not trusted", 0, "203.0.113.9", "192.0.2.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config.Cfg.TrustedProxyHops = tt.hops
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "192.0.2.1:4444"
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			assert.Equal(t, tt.want, clientIP(req))
		})
	}
}
