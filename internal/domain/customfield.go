package domain

// FieldType tipo de um campo personalizado.
type FieldType string

const (
	FieldTypeText     FieldType = "text"
	FieldTypeTextarea FieldType = "textarea"
	FieldTypeNumber   FieldType = "number"
	FieldTypeDate     FieldType = "date"
	FieldTypeSelect   FieldType = "select"
	FieldTypeCheckbox FieldType = "checkbox"
)

func (t FieldType) IsValid() bool {
	switch t {
	case FieldTypeText, FieldTypeTextarea, FieldTypeNumber, FieldTypeDate, FieldTypeSelect, FieldTypeCheckbox:
		return true
	}
	return false
}

// FieldCustomFields is the payload key holding custom field values.
const FieldCustomFields = "custom_fields"

// CustomField definição de campo personalizado (entidade CustomField).
type CustomField struct {
	ID          string       `json:"id"`
	Name        string       `json:"name" validate:"required,min=1,max=100"`
	Label       string       `json:"label" validate:"required,min=1,max=255"`
	Type        FieldType    `json:"type" validate:"required,oneof=text textarea number date select checkbox"`
	Placeholder string       `json:"placeholder,omitempty"`
	Options     []string     `json:"options,omitempty" validate:"required_if=Type select"`
	Required    bool         `json:"required,omitempty"`
	Description string       `json:"description,omitempty"`
	AppliesTo   []EntityType `json:"applies_to" validate:"required,min=1"`
}

// CustomFieldFromRecord builds a definition from a CustomField record.
func CustomFieldFromRecord(r *Record) CustomField {
	cf := CustomField{
		ID:          r.ID,
		Name:        r.String("name"),
		Label:       r.String("label"),
		Type:        FieldType(r.String("type")),
		Placeholder: r.String("placeholder"),
		Options:     r.Strings("options"),
		Description: r.String("description"),
	}
	if req, ok := r.Data["required"].(bool); ok {
		cf.Required = req
	}
	for _, t := range r.Strings("applies_to") {
		cf.AppliesTo = append(cf.AppliesTo, EntityType(t))
	}
	return cf
}

// AppliesToType reports whether the definition applies to the entity type.
func (c CustomField) AppliesToType(t EntityType) bool {
	for _, at := range c.AppliesTo {
		if at == t {
			return true
		}
	}
	return false
}
