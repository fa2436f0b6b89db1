package taxcalc

import (
	"math"
	"strconv"
	"strings"
)

// FormatCOP formats pesos the es-CO way without decimals: "$1.234.567".
func FormatCOP(v float64) string {
	n := int64(math.Round(v))
	if n < 0 {
		return "-" + FormatCOP(-v)
	}
	return "$" + groupThousands(strconv.FormatInt(n, 10))
}

// FormatUVT formats a UVT amount with two decimals: "1.234,56 UVT".
func FormatUVT(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	cents := int64(math.Round(v * 100))
	s := groupThousands(strconv.FormatInt(cents/100, 10)) + "," + leftPad2(cents%100)
	if neg {
		s = "-" + s
	}
	return s + " UVT"
}

// FormatPercent renders a rate such as 0.19 as "19%".
func FormatPercent(rate float64) string {
	return strconv.FormatFloat(rate*100, 'f', 0, 64) + "%"
}

func groupThousands(s string) string {
	if len(s) <= 3 {
		return s
	}
	rem := len(s) % 3
	if rem == 0 {
		rem = 3
	}
	var b strings.Builder
	b.WriteString(s[:rem])
	for i := rem; i < len(s); i += 3 {
		b.WriteByte('.')
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

func leftPad2(n int64) string {
	if n < 10 {
		return "0" + strconv.FormatInt(n, 10)
	}
	return strconv.FormatInt(n, 10)
}
