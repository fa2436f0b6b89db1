package handlers

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"ahorrove/internal/config"
	"ahorrove/internal/models"
	"ahorrove/internal/resultcache"
	sentryutil "ahorrove/internal/sentry"
	"ahorrove/internal/taxcalc"
)

// PDF palette
var (
	cGreen   = [3]int{20, 83, 45}
	cGreenLt = [3]int{31, 122, 69}
	cGreenBg = [3]int{227, 241, 231}
	cAmber   = [3]int{180, 83, 9}
	cAmberBg = [3]int{254, 243, 199}
	cCream   = [3]int{238, 243, 236}
	cInk90   = [3]int{28, 28, 31}
	cInk75   = [3]int{64, 64, 69}
	cInk50   = [3]int{107, 107, 114}
	cInk30   = [3]int{160, 160, 160}
	cInk15   = [3]int{212, 212, 215}
	cWhite   = [3]int{255, 255, 255}
)

const (
	pageW    = 210.0
	pageH    = 297.0
	marginL  = 20.0
	marginR  = 20.0
	marginT  = 20.0
	contentW = pageW - marginL - marginR
)

func setFill(pdf *gofpdf.Fpdf, c [3]int) { pdf.SetFillColor(c[0], c[1], c[2]) }
func setText(pdf *gofpdf.Fpdf, c [3]int) { pdf.SetTextColor(c[0], c[1], c[2]) }
func setDraw(pdf *gofpdf.Fpdf, c [3]int) { pdf.SetDrawColor(c[0], c[1], c[2]) }

// ensureSpace adds a page when fewer than needed mm remain above the footer.
func ensureSpace(pdf *gofpdf.Fpdf, needed float64) float64 {
	y := pdf.GetY()
	if y+needed > pageH-25 {
		pdf.AddPage()
		return marginT + 10
	}
	return y
}

func drawAccentBar(pdf *gofpdf.Fpdf, x, startY, endY float64, c [3]int) {
	setFill(pdf, c)
	pdf.Rect(x, startY, 2.5, endY-startY, "F")
}

// drawPill draws a rounded label and returns its width.
func drawPill(pdf *gofpdf.Fpdf, tr func(string) string, x, y float64, text string, bg, fg [3]int) float64 {
	pdf.SetFont("Helvetica", "B", 7.5)
	w := pdf.GetStringWidth(tr(text)) + 8
	setFill(pdf, bg)
	pdf.RoundedRect(x, y, w, 5.5, 2.5, "1234", "F")
	setText(pdf, fg)
	pdf.SetXY(x, y+0.5)
	pdf.CellFormat(w, 5, tr(text), "", 0, "C", false, 0, "")
	return w
}

func profileCell(pdf *gofpdf.Fpdf, tr func(string) string, x, y, w float64, label, value string) {
	pdf.SetXY(x, y)
	pdf.SetFont("Helvetica", "", 7)
	setText(pdf, cInk50)
	pdf.CellFormat(w-6, 3.5, tr(label), "", 1, "L", false, 0, "")
	pdf.SetXY(x, y+4.5)
	pdf.SetFont("Helvetica", "B", 9.5)
	setText(pdf, cInk90)
	pdf.CellFormat(w-6, 5, tr(value), "", 0, "L", false, 0, "")
}

func sectionLabel(pdf *gofpdf.Fpdf, tr func(string) string, text string) {
	pdf.SetX(marginL)
	pdf.SetFont("Helvetica", "B", 7)
	setText(pdf, cInk30)
	pdf.CellFormat(contentW, 4, tr(text), "", 1, "L", false, 0, "")
	pdf.Ln(3)
}

var rationaleLabels = map[taxcalc.Rationale]string{
	taxcalc.RationaleAlreadyExempt:   "Ya exento",
	taxcalc.RationaleAlreadyInTarget: "Tramo óptimo",
	taxcalc.RationaleTargetReached:   "Objetivo alcanzado",
	taxcalc.RationaleVehicleCeiling:  "Tope del vehículo",
	taxcalc.RationaleDeductionCap:    "Límite de deducciones",
}

func tipoClienteLabel(tipo string) string {
	if tipo == models.ClienteEmpresa {
		return "Empresa"
	}
	return "Persona natural"
}

// RenderReport writes the PDF of one cached calculation to out.
func RenderReport(out io.Writer, e resultcache.Entry) error {
	res := e.Result
	dateDisplay := e.CreatedAt.Format("02/01/2006")

	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetMargins(marginL, 15, marginR)
	pdf.SetAutoPageBreak(false, 20)
	pdf.SetTitle(tr("Informe de ahorro tributario"), false)
	pdf.SetAuthor("AhorroVE", false)

	pdf.SetFooterFunc(func() {
		pdf.SetY(-14)
		setDraw(pdf, cInk15)
		pdf.SetLineWidth(0.3)
		pdf.Line(marginL, pdf.GetY(), pageW-marginR, pdf.GetY())
		pdf.SetY(-11)
		pdf.SetFont("Helvetica", "", 6.5)
		setText(pdf, cInk30)
		pdf.SetX(marginL)
		pdf.CellFormat(contentW/2, 8, siteHost(), "", 0, "L", false, 0, "")
		pdf.CellFormat(contentW/2, 8, fmt.Sprintf("%d", pdf.PageNo()), "", 0, "R", false, 0, "")
	})

	pdf.AddPage()

	headerH := 58.0
	setFill(pdf, cGreen)
	pdf.Rect(0, 0, pageW, headerH, "F")
	setFill(pdf, cGreenLt)
	pdf.Rect(0, headerH-3, pageW, 3, "F")

	pdf.SetXY(marginL, 16)
	pdf.SetFont("Helvetica", "B", 26)
	setText(pdf, cWhite)
	pdf.CellFormat(contentW, 10, "AhorroVE", "", 1, "L", false, 0, "")

	pdf.SetXY(marginL, 30)
	pdf.SetFont("Helvetica", "", 12)
	pdf.SetTextColor(214, 232, 219)
	pdf.CellFormat(contentW, 6, tr("Informe de ahorro tributario por vehículo eléctrico"), "", 1, "L", false, 0, "")

	pdf.SetXY(marginL, 38)
	pdf.SetFont("Helvetica", "", 8.5)
	pdf.SetTextColor(180, 206, 188)
	pdf.CellFormat(contentW, 5, tr(fmt.Sprintf("Generado el %s · Año gravable %d", dateDisplay, res.Year)), "", 1, "L", false, 0, "")

	// Summary card overlapping the header band.
	cardW := 150.0
	cardX := (pageW - cardW) / 2
	cardY := headerH - 12
	cardH := 30.0
	setFill(pdf, [3]int{210, 210, 210})
	pdf.RoundedRect(cardX+1.5, cardY+1.5, cardW, cardH, 4, "1234", "F")
	setFill(pdf, cWhite)
	pdf.RoundedRect(cardX, cardY, cardW, cardH, 4, "1234", "F")

	savings := taxcalc.FormatCOP(res.AnnualSavings)
	pdf.SetXY(cardX+10, cardY+5)
	pdf.SetFont("Courier", "B", 22)
	if len(savings) > 12 {
		pdf.SetFont("Courier", "B", 18)
	}
	setText(pdf, cGreen)
	pdf.CellFormat(cardW/2-10, 10, savings, "", 0, "L", false, 0, "")
	pdf.SetXY(cardX+10, cardY+19)
	pdf.SetFont("Helvetica", "", 8.5)
	setText(pdf, cInk50)
	pdf.CellFormat(cardW/2-10, 4, "ahorro anual estimado", "", 0, "L", false, 0, "")

	setDraw(pdf, cInk15)
	pdf.SetLineWidth(0.3)
	pdf.Line(cardX+cardW/2, cardY+6, cardX+cardW/2, cardY+cardH-6)

	pdf.SetXY(cardX+cardW/2+8, cardY+5)
	pdf.SetFont("Courier", "B", 18)
	setText(pdf, cInk90)
	pdf.CellFormat(cardW/2-18, 10, taxcalc.FormatCOP(res.SavingsPerMillionExact), "", 0, "R", false, 0, "")
	pdf.SetXY(cardX+cardW/2+8, cardY+19)
	pdf.SetFont("Helvetica", "", 8.5)
	setText(pdf, cInk50)
	pdf.CellFormat(cardW/2-18, 4, tr("por cada $1.000.000 deducido"), "", 0, "R", false, 0, "")

	// Client data
	pdf.SetY(cardY + cardH + 12)
	sectionLabel(pdf, tr, "DATOS")
	boxY := pdf.GetY()
	boxH := 28.0
	setFill(pdf, cCream)
	pdf.RoundedRect(marginL, boxY, contentW, boxH, 3, "1234", "F")
	colW := contentW / 2
	nombre := e.Nombre
	if len([]rune(nombre)) > 40 {
		nombre = string([]rune(nombre)[:37]) + "..."
	}
	profileCell(pdf, tr, marginL+6, boxY+5, colW, "Nombre", nombre)
	profileCell(pdf, tr, marginL+6+colW, boxY+5, colW, "Tipo de cliente", tipoClienteLabel(e.TipoCliente))
	profileCell(pdf, tr, marginL+6, boxY+16, colW, "Ciudad", e.Ciudad)
	profileCell(pdf, tr, marginL+6+colW, boxY+16, colW, "Valor deducible del vehículo", taxcalc.FormatCOP(e.ValorVehiculo))

	// Scenario comparison
	pdf.SetY(boxY + boxH + 10)
	sectionLabel(pdf, tr, "COMPARACIÓN DE ESCENARIOS")
	drawScenarioTable(pdf, tr, res)

	if res.Optimal != nil {
		drawRecommendation(pdf, tr, *res.Optimal)
	}
	if len(res.Alerts) > 0 {
		drawAlerts(pdf, tr, res.Alerts)
	}

	y := ensureSpace(pdf, 24)
	pdf.SetY(y + 4)
	pdf.SetX(marginL)
	pdf.SetFont("Helvetica", "I", 7)
	setText(pdf, cAmber)
	pdf.MultiCell(contentW, 3.5, tr("Cálculo orientativo basado en la tabla del artículo 241 del Estatuto Tributario y los límites de deducciones vigentes. "+
		"No reemplaza la asesoría de un contador público. La deducción por vehículo eléctrico está sujeta a la certificación de la UPME (Ley 1715 de 2014)."), "", "C", false)

	if err := pdf.Error(); err != nil {
		return err
	}
	return pdf.Output(out)
}

func drawScenarioTable(pdf *gofpdf.Fpdf, tr func(string) string, res taxcalc.Result) {
	rows := []struct {
		label         string
		without, with string
		strong        bool
	}{
		{"Ingresos netos anuales", taxcalc.FormatCOP(res.AnnualNetIncome), taxcalc.FormatCOP(res.AnnualNetIncome), false},
		{"Otras deducciones", taxcalc.FormatCOP(res.WithoutVehicle.Deductions), taxcalc.FormatCOP(res.WithoutVehicle.Deductions - res.VehicleDeductionApplied), false},
		{"Deducción por vehículo", "-", taxcalc.FormatCOP(res.VehicleDeductionApplied), false},
		{"Renta exenta (25%)", taxcalc.FormatCOP(res.WithoutVehicle.LaborExemption), taxcalc.FormatCOP(res.WithVehicle.LaborExemption), false},
		{"Renta líquida gravable", taxcalc.FormatCOP(res.WithoutVehicle.TaxableIncomeCOP), taxcalc.FormatCOP(res.WithVehicle.TaxableIncomeCOP), false},
		{"Renta gravable en UVT", taxcalc.FormatUVT(res.WithoutVehicle.TaxableIncomeUVT), taxcalc.FormatUVT(res.WithVehicle.TaxableIncomeUVT), false},
		{"Tramo marginal", res.WithoutVehicle.Bracket.Name, res.WithVehicle.Bracket.Name, false},
		{"Impuesto estimado", taxcalc.FormatCOP(res.WithoutVehicle.TaxCOP), taxcalc.FormatCOP(res.WithVehicle.TaxCOP), true},
	}

	colLabel := contentW - 96
	y := pdf.GetY()
	setDraw(pdf, cGreen)
	pdf.SetLineWidth(0.5)
	pdf.Line(marginL, y, pageW-marginR, y)
	pdf.SetXY(marginL+4, y+1.5)
	pdf.SetFont("Helvetica", "B", 7.5)
	setText(pdf, cInk50)
	pdf.CellFormat(colLabel-4, 5, "Concepto", "", 0, "L", false, 0, "")
	pdf.CellFormat(48, 5, tr("Sin vehículo"), "", 0, "R", false, 0, "")
	pdf.CellFormat(48, 5, tr("Con vehículo"), "", 1, "R", false, 0, "")
	pdf.SetY(y + 8)

	for i, row := range rows {
		y := pdf.GetY()
		if i%2 == 0 {
			setFill(pdf, cCream)
			pdf.Rect(marginL, y-0.5, contentW, 6.5, "F")
		}
		style := ""
		if row.strong {
			style = "B"
		}
		pdf.SetXY(marginL+4, y)
		pdf.SetFont("Helvetica", style, 8.5)
		setText(pdf, cInk75)
		pdf.CellFormat(colLabel-4, 5.5, tr(row.label), "", 0, "L", false, 0, "")
		pdf.SetFont("Courier", style, 8.5)
		setText(pdf, cInk90)
		pdf.CellFormat(48, 5.5, tr(row.without), "", 0, "R", false, 0, "")
		setText(pdf, cGreen)
		pdf.CellFormat(48, 5.5, tr(row.with), "", 1, "R", false, 0, "")
		pdf.SetY(y + 6.5)
	}

	endY := pdf.GetY()
	setDraw(pdf, cInk15)
	pdf.SetLineWidth(0.3)
	pdf.Line(marginL, endY, pageW-marginR, endY)

	pdf.SetXY(marginL, endY+2)
	pdf.SetFont("Helvetica", "", 6.5)
	setText(pdf, cInk30)
	reason := "1340 UVT"
	if res.DeductionCapReason == taxcalc.LimitByRate {
		reason = "40% del ingreso"
	}
	pdf.CellFormat(contentW, 3.5, tr(fmt.Sprintf("Límite de deducciones y rentas exentas: %s (%s)", taxcalc.FormatCOP(res.DeductionCapCOP), reason)), "", 1, "L", false, 0, "")
	pdf.Ln(6)
}

func drawRecommendation(pdf *gofpdf.Fpdf, tr func(string) string, o taxcalc.OptimalDeduction) {
	y := ensureSpace(pdf, 44)
	pdf.SetY(y)
	sectionLabel(pdf, tr, "RECOMENDACIÓN")

	startY := pdf.GetY()
	label := rationaleLabels[o.Code]
	if label == "" {
		label = string(o.Code)
	}
	drawPill(pdf, tr, marginL+6, startY, label, cGreenBg, cGreen)
	drawPill(pdf, tr, marginL+6+pdf.GetStringWidth(tr(label))+11, startY, "Tramo "+o.NewBracket.Name, cAmberBg, cAmber)

	pdf.SetXY(marginL+6, startY+8)
	pdf.SetFont("Helvetica", "", 8.5)
	setText(pdf, cInk75)
	pdf.MultiCell(contentW-8, 4.2, tr(o.Reason), "", "L", false)

	pdf.Ln(1)
	cellY := pdf.GetY()
	third := (contentW - 6) / 3
	profileCell(pdf, tr, marginL+6, cellY, third, "Deducción recomendada", taxcalc.FormatCOP(o.RecommendedDeduction))
	profileCell(pdf, tr, marginL+6+third, cellY, third, "Ahorro estimado", taxcalc.FormatCOP(o.EstimatedSavings))
	profileCell(pdf, tr, marginL+6+2*third, cellY, third, "Saldo deducible", taxcalc.FormatCOP(o.RemainingVehicleDeduction))
	endY := cellY + 11
	drawAccentBar(pdf, marginL, startY, endY, cGreen)
	pdf.SetY(endY + 6)
}

func drawAlerts(pdf *gofpdf.Fpdf, tr func(string) string, alerts []string) {
	y := ensureSpace(pdf, 12+float64(len(alerts))*9)
	pdf.SetY(y)
	sectionLabel(pdf, tr, "AVISOS")
	startY := pdf.GetY()
	setFill(pdf, cAmberBg)
	for _, a := range alerts {
		pdf.SetX(marginL + 6)
		pdf.SetFont("Helvetica", "", 8)
		setText(pdf, cInk75)
		pdf.MultiCell(contentW-8, 4, tr("• "+a), "", "L", false)
		pdf.Ln(1.5)
	}
	drawAccentBar(pdf, marginL, startY, pdf.GetY(), cAmber)
	pdf.Ln(4)
}

func siteHost() string {
	h := strings.TrimPrefix(strings.TrimPrefix(config.Cfg.BaseURL, "https://"), "http://")
	if h = strings.TrimRight(h, "/"); h == "" {
		return "ahorrove.co"
	}
	return h
}

// ReportHandler serves the PDF of a calculation served in the last RESULT_TTL.
func ReportHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "error": "Falta el identificador del cálculo"})
		return
	}
	if deps.Results == nil {
		NotFoundHandler(w, r)
		return
	}
	entry, ok := deps.Results.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"success": false, "error": "Cálculo no encontrado o expirado"})
		return
	}

	disposition := "attachment"
	if r.URL.Query().Get("mode") == "inline" {
		disposition = "inline"
	}

	var buf bytes.Buffer
	if err := RenderReport(&buf, entry); err != nil {
		sentryutil.CaptureError(err, map[string]string{"handler": "report", "phase": "pdf-output"})
		http.Error(w, "Error generando el PDF", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`%s; filename="ahorrove-informe-%s.pdf"`, disposition, entry.CreatedAt.Format("2006-01-02")))
	w.Header().Set("Cache-Control", "private, no-store")
	w.Write(buf.Bytes())
}
