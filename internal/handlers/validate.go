package handlers

import (
	"html"
	"math"
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"ahorrove/internal/models"
)

const (
	minValorVehiculo = 1_000_000
	maxValorVehiculo = 1_000_000_000
)

var strictHTMLPolicy = bluemonday.StrictPolicy()

// sanitizeText strips markup and control characters from a lead field.
func sanitizeText(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) {
			return r
		}
		if r == '\t' || r == '\n' || r == '\r' {
			return ' '
		}
		return -1
	}, s)
	// StrictPolicy escapes entities; the value is stored as plain text.
	s = html.UnescapeString(strictHTMLPolicy.Sanitize(s))
	return strings.Join(strings.Fields(s), " ")
}

func sanitizeRequest(req *models.CalculateRequest) {
	req.Nombre = sanitizeText(req.Nombre)
	req.Email = strings.ToLower(sanitizeText(req.Email))
	req.CedulaNIT = sanitizeText(req.CedulaNIT)
	req.Celular = sanitizeText(req.Celular)
	req.Ciudad = sanitizeText(req.Ciudad)
	req.TipoCliente = strings.ToLower(strings.TrimSpace(req.TipoCliente))
}

func lengthBetween(s string, min, max int) bool {
	n := utf8.RuneCountInString(s)
	return n >= min && (max <= 0 || n <= max)
}

func validAmount(v float64) bool {
	return v >= 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

func validEmail(s string) bool {
	if len(s) > 255 {
		return false
	}
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s && strings.Contains(s[strings.LastIndex(s, "@"):], ".")
}

// validateRequest checks a sanitized request. The message names the first
// offending field.
func validateRequest(req models.CalculateRequest) (string, bool) {
	switch {
	case !lengthBetween(req.Nombre, 2, 100):
		return "El nombre debe tener entre 2 y 100 caracteres", false
	case !validEmail(req.Email):
		return "El correo electrónico no es válido", false
	case !lengthBetween(req.CedulaNIT, 5, 20):
		return "La cédula o NIT debe tener entre 5 y 20 caracteres", false
	case !lengthBetween(req.Celular, 10, 15):
		return "El celular debe tener entre 10 y 15 caracteres", false
	case !lengthBetween(req.Ciudad, 2, 0):
		return "La ciudad es obligatoria", false
	case req.TipoCliente != models.ClienteNatural && req.TipoCliente != models.ClienteEmpresa:
		return "El tipo de cliente debe ser natural o empresa", false
	case !validAmount(req.IngresosMensuales):
		return "Los ingresos mensuales no pueden ser negativos", false
	case !validAmount(req.OtrasDeducciones):
		return "Las otras deducciones no pueden ser negativas", false
	case !validAmount(req.ValorVehiculo) || req.ValorVehiculo < minValorVehiculo || req.ValorVehiculo > maxValorVehiculo:
		return "El valor del vehículo debe estar entre $1.000.000 y $1.000.000.000", false
	case req.DeduccionVehiculoAplicada != nil && !validAmount(*req.DeduccionVehiculoAplicada):
		return "La deducción aplicada no puede ser negativa", false
	}
	return "", true
}
