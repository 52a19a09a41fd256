// Package format renders values for pt-BR display: dates, BRL currency,
// percentages, file sizes, phone numbers and tax ids.
package format

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"
	"github.com/ttacon/libphonenumber"
)

const (
	DateLayout     = "02/01/2006"
	DateTimeLayout = "02/01/2006 15:04"
	DefaultRegion  = "BR"
)

// ErrInvalidPhone is returned when a number cannot be normalized.
var ErrInvalidPhone = errors.New("invalid phone number")

// Location is the display timezone. Falls back to UTC if the zone cannot be loaded.
var Location = loadLocation("America/Sao_Paulo")

func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// FormatDate returns dd/MM/yyyy, or "" for the zero time.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(Location).Format(DateLayout)
}

// FormatDateTime returns dd/MM/yyyy HH:mm, or "" for the zero time.
func FormatDateTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(Location).Format(DateTimeLayout)
}

// FormatCurrency formats an amount as BRL: R$ 1.234,56.
func FormatCurrency(amount decimal.Decimal) string {
	sign := ""
	if amount.IsNegative() {
		sign = "-"
		amount = amount.Neg()
	}
	fixed := amount.StringFixed(2)
	intPart, frac, _ := strings.Cut(fixed, ".")
	return sign + "R$ " + groupThousands(intPart) + "," + frac
}

// FormatPercentage formats a percentage with up to two decimals: 12,5%.
func FormatPercentage(p decimal.Decimal) string {
	s := trimZeros(p.StringFixed(2))
	return strings.Replace(s, ".", ",", 1) + "%"
}

var sizeUnits = []string{"B", "KB", "MB", "GB", "TB"}

// FormatFileSize scales bytes by 1024 and rounds to two decimals: 1536 -> "1.5 KB".
func FormatFileSize(bytes int64) string {
	if bytes <= 0 {
		return "0 B"
	}
	v := float64(bytes)
	i := 0
	for v >= 1024 && i < len(sizeUnits)-1 {
		v /= 1024
		i++
	}
	v = math.Round(v*100) / 100
	if v >= 1024 && i < len(sizeUnits)-1 {
		// 1048575 B arredonda para 1024 KB
		v = math.Round(v/1024*100) / 100
		i++
	}
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + sizeUnits[i]
}

// FormatPhoneNumber applies the Brazilian mask by digit count:
// 11 -> (XX) XXXXX-XXXX, 10 -> (XX) XXXX-XXXX. Anything else is returned as is.
func FormatPhoneNumber(s string) string {
	d := Digits(s)
	switch len(d) {
	case 11:
		return fmt.Sprintf("(%s) %s-%s", d[:2], d[2:7], d[7:])
	case 10:
		return fmt.Sprintf("(%s) %s-%s", d[:2], d[2:6], d[6:])
	}
	return s
}

// NormalizePhoneE164 parses s (national numbers resolved against region) and
// returns it in E.164 form.
func NormalizePhoneE164(s, region string) (string, error) {
	if region == "" {
		region = DefaultRegion
	}
	num, err := libphonenumber.Parse(s, region)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPhone, err)
	}
	if !libphonenumber.IsValidNumber(num) {
		return "", ErrInvalidPhone
	}
	return libphonenumber.Format(num, libphonenumber.E164), nil
}

// FormatCPF masks an 11-digit CPF as XXX.XXX.XXX-XX; other inputs are returned as is.
func FormatCPF(s string) string {
	d := Digits(s)
	if len(d) != 11 {
		return s
	}
	return fmt.Sprintf("%s.%s.%s-%s", d[:3], d[3:6], d[6:9], d[9:])
}

// FormatCNPJ masks a 14-digit CNPJ as XX.XXX.XXX/XXXX-XX; other inputs are returned as is.
func FormatCNPJ(s string) string {
	d := Digits(s)
	if len(d) != 14 {
		return s
	}
	return fmt.Sprintf("%s.%s.%s/%s-%s", d[:2], d[2:5], d[5:8], d[8:12], d[12:])
}

// Digits strips every non-digit rune.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func groupThousands(s string) string {
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	head := len(s) % 3
	if head > 0 {
		b.WriteString(s[:head])
	}
	for i := head; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

func trimZeros(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
