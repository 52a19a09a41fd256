package format

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"crm-api/internal/domain"

	"github.com/shopspring/decimal"
)

type fieldKind int

const (
	kindNone fieldKind = iota
	kindDate
	kindDateTime
	kindCurrency
	kindPercentage
	kindFileSize
	kindPhone
	kindCPF
	kindCNPJ
)

var exactKinds = map[string]fieldKind{
	"value":           kindCurrency,
	"amount":          kindCurrency,
	"price":           kindCurrency,
	"total":           kindCurrency,
	"revenue":         kindCurrency,
	"percentage":      kindPercentage,
	"probability":     kindPercentage,
	"commission_rate": kindPercentage,
	"discount":        kindPercentage,
	"phone":           kindPhone,
	"mobile":          kindPhone,
	"whatsapp":        kindPhone,
	"cpf":             kindCPF,
	"cnpj":            kindCNPJ,
	"date":            kindDate,
}

func kindOf(entityType domain.EntityType, field string) fieldKind {
	if entityType == domain.EntityDriveFile && (field == "size" || field == "file_size") {
		return kindFileSize
	}
	if k, ok := exactKinds[field]; ok {
		return k
	}
	switch {
	case strings.HasSuffix(field, "_at"):
		return kindDateTime
	case strings.HasSuffix(field, "_date"):
		return kindDate
	case strings.HasSuffix(field, "_value"), strings.HasSuffix(field, "_amount"), strings.HasSuffix(field, "_price"):
		return kindCurrency
	case strings.HasSuffix(field, "_percentage"), strings.HasSuffix(field, "_rate"):
		return kindPercentage
	case strings.HasSuffix(field, "_phone"):
		return kindPhone
	}
	return kindNone
}

// Display returns formatted labels for the fields of data it recognizes
// (dates, money, percentages, file sizes, phones, tax ids). Values that do not
// parse are skipped.
func Display(entityType domain.EntityType, data map[string]any) map[string]string {
	out := map[string]string{}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, field := range keys {
		if label, ok := displayValue(kindOf(entityType, field), data[field]); ok {
			out[field] = label
		}
	}
	return out
}

func displayValue(kind fieldKind, v any) (string, bool) {
	switch kind {
	case kindDate, kindDateTime:
		t, ok := toTime(v)
		if !ok {
			return "", false
		}
		if kind == kindDate {
			return FormatDate(t), true
		}
		return FormatDateTime(t), true
	case kindCurrency:
		d, ok := toDecimal(v)
		if !ok {
			return "", false
		}
		return FormatCurrency(d), true
	case kindPercentage:
		d, ok := toDecimal(v)
		if !ok {
			return "", false
		}
		return FormatPercentage(d), true
	case kindFileSize:
		d, ok := toDecimal(v)
		if !ok {
			return "", false
		}
		return FormatFileSize(d.IntPart()), true
	case kindPhone:
		s, ok := v.(string)
		if !ok || s == "" {
			return "", false
		}
		return FormatPhoneNumber(s), true
	case kindCPF:
		s, ok := v.(string)
		if !ok || s == "" {
			return "", false
		}
		return FormatCPF(s), true
	case kindCNPJ:
		s, ok := v.(string)
		if !ok || s == "" {
			return "", false
		}
		return FormatCNPJ(s), true
	}
	return "", false
}

var timeLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case string:
		for _, layout := range timeLayouts {
			if parsed, err := time.ParseInLocation(layout, t, Location); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case float64:
		return decimal.NewFromFloat(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		return d, err == nil
	case decimal.Decimal:
		return n, true
	}
	return decimal.Decimal{}, false
}
