package service

import (
	"fmt"
	"strings"
	"time"

	"crm-api/internal/domain"
)

const customFieldPrefix = domain.FieldCustomFields + "."

// validateCustomFields checks values against the definitions that apply to
// the entity type. A nil values map with required definitions fails.
func validateCustomFields(defs []domain.CustomField, raw any, present bool) map[string]string {
	errs := map[string]string{}

	var values map[string]any
	if present && raw != nil {
		m, ok := raw.(map[string]any)
		if !ok {
			errs[domain.FieldCustomFields] = "must be an object"
			return errs
		}
		values = m
	}

	byName := make(map[string]domain.CustomField, len(defs))
	for _, d := range defs {
		byName[d.Name] = d
	}

	for key := range values {
		if _, ok := byName[key]; !ok {
			errs[customFieldPrefix+key] = "unknown field"
		}
	}

	for _, def := range defs {
		v, ok := values[def.Name]
		if !ok || isEmpty(v) {
			if def.Required {
				errs[customFieldPrefix+def.Name] = "is required"
			}
			continue
		}
		if msg := checkFieldType(def, v); msg != "" {
			errs[customFieldPrefix+def.Name] = msg
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	}
	return false
}

func checkFieldType(def domain.CustomField, v any) string {
	switch def.Type {
	case domain.FieldTypeText, domain.FieldTypeTextarea:
		if _, ok := v.(string); !ok {
			return "must be text"
		}
	case domain.FieldTypeNumber:
		switch v.(type) {
		case float64, int, int64:
		default:
			return "must be a number"
		}
	case domain.FieldTypeDate:
		s, ok := v.(string)
		if !ok {
			return "must be a date (YYYY-MM-DD)"
		}
		if _, err := time.Parse("2006-01-02", s); err != nil {
			return "must be a date (YYYY-MM-DD)"
		}
	case domain.FieldTypeSelect:
		s, ok := v.(string)
		if !ok || !contains(def.Options, s) {
			return fmt.Sprintf("must be one of: %s", strings.Join(def.Options, ", "))
		}
	case domain.FieldTypeCheckbox:
		if _, ok := v.(bool); !ok {
			return "must be true or false"
		}
	default:
		return "has an unsupported definition type"
	}
	return ""
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
