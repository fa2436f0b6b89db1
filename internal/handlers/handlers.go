package handlers

import (
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"ahorrove/internal/audit"
	"ahorrove/internal/certificado"
	"ahorrove/internal/resultcache"
	sentryutil "ahorrove/internal/sentry"
	"ahorrove/internal/taxtable"
)

// Deps are the long-lived services the handlers read from.
type Deps struct {
	Tables  *taxtable.Registry
	Audit   *audit.Dispatcher
	Results *resultcache.Store
}

var (
	deps      Deps
	startedAt = time.Now()
)

// Init wires the handlers to their services. It must run before the mux serves.
func Init(d Deps) {
	deps = d
	startedAt = time.Now()
}

func HealthHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(startedAt).Seconds()),
	}
	if deps.Tables != nil {
		resp["tax_year"] = deps.Tables.DefaultYear()
		resp["tax_years"] = deps.Tables.Years()
	}
	if deps.Audit != nil {
		resp["audit_queue"] = deps.Audit.Stats().Queued
	}
	writeJSON(w, http.StatusOK, resp)
}

func StatsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"calculos": GetCounter(),
	})
}

type parametrosBracket struct {
	Name      string   `json:"name"`
	LowerUVT  float64  `json:"lower_uvt"`
	UpperUVT  *float64 `json:"upper_uvt"`
	Rate      float64  `json:"rate"`
	OffsetUVT float64  `json:"offset_uvt"`
	UVTRange  string   `json:"uvt_range"`
}

type parametrosResponse struct {
	Year              int                 `json:"year"`
	UVTValue          float64             `json:"uvt_value"`
	MaxDeductionsUVT  float64             `json:"max_deductions_uvt"`
	MaxDeductionsRate float64             `json:"max_deductions_rate"`
	MaxExemptionUVT   float64             `json:"max_exemption_uvt"`
	ExemptionRate     float64             `json:"exemption_rate"`
	OptimalTargetUVT  float64             `json:"optimal_target_uvt"`
	Brackets          []parametrosBracket `json:"brackets"`
	AvailableYears    []int               `json:"available_years"`
}

// ParametrosHandler exposes the tax table of ?year= (default year when absent).
// The unbounded top tier is reported with a null upper bound.
func ParametrosHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	year := 0
	if y := r.URL.Query().Get("year"); y != "" {
		v, err := strconv.Atoi(y)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "error": "Año inválido"})
			return
		}
		year = v
	}
	calc, err := deps.Tables.Calculator(year)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"success": false, "error": "No hay tabla para el año solicitado"})
		return
	}

	p := calc.Params()
	resp := parametrosResponse{
		Year:              p.Year,
		UVTValue:          p.UVTValue,
		MaxDeductionsUVT:  p.MaxDeductionsUVT,
		MaxDeductionsRate: p.MaxDeductionsRate,
		MaxExemptionUVT:   p.MaxExemptionUVT,
		ExemptionRate:     p.ExemptionRate,
		OptimalTargetUVT:  p.OptimalTargetUVT,
		AvailableYears:    deps.Tables.Years(),
	}
	lower := 0.0
	for i, b := range p.Brackets {
		pb := parametrosBracket{
			Name:      b.Name,
			LowerUVT:  lower,
			Rate:      b.Rate,
			OffsetUVT: b.OffsetUVT,
			UVTRange:  p.TierRange(i),
		}
		if !math.IsInf(b.UpperUVT, 1) {
			upper := b.UpperUVT
			pb.UpperUVT = &upper
		}
		resp.Brackets = append(resp.Brackets, pb)
		lower = b.UpperUVT
	}
	writeJSON(w, http.StatusOK, resp)
}

const maxUploadBytes = 5 << 20

// ParseCertificadoHandler reads the gross income from an uploaded
// Formulario 220 so the calculator form can be prefilled.
func ParseCertificadoHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "error": "Archivo demasiado grande (máx. 5MB)"})
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "error": "Archivo no encontrado"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		sentryutil.CaptureError(err, map[string]string{"handler": "parse-certificado", "phase": "read"})
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"success": false, "error": "Error leyendo el archivo"})
		return
	}

	if http.DetectContentType(data) != "application/pdf" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "error": "Formato no válido: solo se aceptan PDF"})
		return
	}

	ingresos, err := certificado.Parse(data)
	if err != nil && !errors.Is(err, certificado.ErrNotPDF) {
		// Unreadable PDFs are answered as "not found" so the user can type the amount.
		sentryutil.CaptureError(err, map[string]string{"handler": "parse-certificado", "phase": "pdf-parse"})
	}
	writeJSON(w, http.StatusOK, ingresos)
}
