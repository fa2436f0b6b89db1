// Package certificado reads the gross income out of a Formulario 220
// (certificado de ingresos y retenciones) so the calculator can be prefilled.
package certificado

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
)

var ErrNotPDF = errors.New("certificado: not a PDF document")

// Ingresos is what was found in a certificate.
type Ingresos struct {
	Found           bool    `json:"found"`
	IngresosAnuales float64 `json:"ingresos_anuales"`
	IngresoMensual  float64 `json:"ingreso_mensual"`
}

// Labels in order of preference. The first one that yields an amount wins.
var labelPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)total\s+de\s+ingresos\s+brutos[^0-9$]*\$?\s*([0-9][0-9.,]*)`),
	regexp.MustCompile(`(?i)total\s+ingresos\s+brutos[^0-9$]*\$?\s*([0-9][0-9.,]*)`),
	regexp.MustCompile(`(?i)pagos\s+por\s+salarios[^0-9$]*\$?\s*([0-9][0-9.,]*)`),
}

// ExtractText returns the plain text of every page of a PDF.
func ExtractText(data []byte) (string, error) {
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		return "", ErrNotPDF
	}
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("certificado: %w", err)
	}
	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(text)
		b.WriteString(" ")
	}
	return b.String(), nil
}

// ParseIngresos finds the annual gross income in certificate text.
func ParseIngresos(text string) Ingresos {
	for _, re := range labelPatterns {
		m := re.FindStringSubmatch(text)
		if len(m) < 2 {
			continue
		}
		v, ok := ParseAmount(m[1])
		if !ok || v <= 0 {
			continue
		}
		return Ingresos{
			Found:           true,
			IngresosAnuales: v,
			IngresoMensual:  math.Round(v / 12),
		}
	}
	return Ingresos{}
}

// Parse is ExtractText followed by ParseIngresos.
func Parse(data []byte) (Ingresos, error) {
	text, err := ExtractText(data)
	if err != nil {
		return Ingresos{}, err
	}
	return ParseIngresos(text), nil
}

// ParseAmount reads a peso amount written either way: "84.658.300",
// "84,658,300", "84.658.300,50" or "84658300".
func ParseAmount(s string) (float64, bool) {
	s = strings.TrimRight(strings.TrimSpace(s), ".,")
	if s == "" {
		return 0, false
	}
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		// The later separator is the decimal one.
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		s = normalizeSingle(s, ",")
	case lastDot >= 0:
		s = normalizeSingle(s, ".")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// normalizeSingle handles a number with only one kind of separator: groups of
// three digits mean thousands, anything else is a decimal mark.
func normalizeSingle(s, sep string) string {
	parts := strings.Split(s, sep)
	thousands := len(parts) > 2
	if !thousands {
		thousands = len(parts[1]) == 3
	}
	if thousands {
		return strings.Join(parts, "")
	}
	return parts[0] + "." + parts[1]
}
