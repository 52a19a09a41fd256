package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// EntityType é o nome de uma entidade do CRM (coleção genérica).
type EntityType string

const (
	EntityCompany          EntityType = "Company"
	EntityLead             EntityType = "Lead"
	EntityDeal             EntityType = "Deal"
	EntitySale             EntityType = "Sale"
	EntityProduct          EntityType = "Product"
	EntityActivity         EntityType = "Activity"
	EntityLeadSource       EntityType = "LeadSource"
	EntityLossReason       EntityType = "LossReason"
	EntityWorkflow         EntityType = "Workflow"
	EntityForm             EntityType = "Form"
	EntityFormResponse     EntityType = "FormResponse"
	EntityCommissionRule   EntityType = "CommissionRule"
	EntityCommission       EntityType = "Commission"
	EntityCustomField      EntityType = "CustomField"
	EntityDriveFile        EntityType = "DriveFile"
	EntityPlaybook         EntityType = "Playbook"
	EntityActivityTemplate EntityType = "ActivityTemplate"
	EntityPermission       EntityType = "Permission"
	EntityRecordList       EntityType = "RecordList"
	EntityTeam             EntityType = "Team"
	EntityPagePermission   EntityType = "PagePermission"
)

// entityResources maps every entity type to the resource that gates it.
var entityResources = map[EntityType]Resource{
	EntityDriveFile:        ResourceDrive,
	EntityActivity:         ResourceActivities,
	EntityActivityTemplate: ResourceActivities,
	EntityPlaybook:         ResourcePlaybooks,
	EntityForm:             ResourceForms,
	EntityFormResponse:     ResourceForms,
	EntityRecordList:       ResourceRecords,
	EntityCustomField:      ResourceRecords,
	EntityCompany:          ResourceCRM,
	EntityLead:             ResourceCRM,
	EntityDeal:             ResourceCRM,
	EntitySale:             ResourceCRM,
	EntityProduct:          ResourceCRM,
	EntityLeadSource:       ResourceCRM,
	EntityLossReason:       ResourceCRM,
	EntityWorkflow:         ResourceCRM,
	EntityTeam:             ResourceManagement,
	EntityPermission:       ResourceManagement,
	EntityPagePermission:   ResourceManagement,
	EntityCommissionRule:   ResourceCommissions,
	EntityCommission:       ResourceCommissions,
}

// IsValid reports whether the entity type is known.
func (t EntityType) IsValid() bool {
	_, ok := entityResources[t]
	return ok
}

// Resource returns the permission resource that gates the entity type.
func (t EntityType) Resource() (Resource, bool) {
	r, ok := entityResources[t]
	return r, ok
}

// Record é um registro genérico de entidade. Os campos específicos ficam em Data.
// Schema: public.entity_records
type Record struct {
	ID          string         `json:"id" db:"id"`
	EntityType  EntityType     `json:"entity_type" db:"entity_type"`
	Data        map[string]any `json:"data" db:"data"`
	CreatedBy   *string        `json:"created_by,omitempty" db:"created_by"`
	CreatedDate time.Time      `json:"created_date" db:"created_at"`
	UpdatedDate time.Time      `json:"updated_date" db:"updated_at"`

	// Display contém rótulos formatados (apenas com ?display=true).
	Display map[string]string `json:"display,omitempty" db:"-"`
}

// String returns the string value of a data field, or "" when absent or not a string.
func (r *Record) String(field string) string {
	if r == nil || r.Data == nil {
		return ""
	}
	s, _ := r.Data[field].(string)
	return s
}

// Strings returns a []string data field, tolerating []any from JSON decoding.
func (r *Record) Strings(field string) []string {
	if r == nil || r.Data == nil {
		return nil
	}
	switch v := r.Data[field].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// MarshalData serializes Data as a JSON object ("{}" when nil).
func (r *Record) MarshalData() ([]byte, error) {
	if r.Data == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(r.Data)
}

// ListOptions parâmetros de listagem de entidades.
type ListOptions struct {
	// Sort no formato "campo" (asc) ou "-campo" (desc).
	Sort   string
	Limit  int
	Offset int
	// CreatedBy restringe a registros criados pelo usuário (escopo personal).
	CreatedBy *string
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
	DefaultSort      = "-created_date"
)

// Campos de telefone: phone é exibido mascarado, phone_e164 guarda a forma canônica.
const (
	FieldPhone     = "phone"
	FieldPhoneE164 = "phone_e164"
)

// Normalize applies defaults and bounds.
func (o *ListOptions) Normalize() {
	if o.Limit <= 0 {
		o.Limit = DefaultListLimit
	}
	if o.Limit > MaxListLimit {
		o.Limit = MaxListLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	o.Sort = strings.TrimSpace(o.Sort)
	if o.Sort == "" {
		o.Sort = DefaultSort
	}
}

// SortField splits the sort expression into field and direction.
func (o ListOptions) SortField() (field string, desc bool) {
	s := o.Sort
	if s == "" {
		s = DefaultSort
	}
	if strings.HasPrefix(s, "-") {
		return s[1:], true
	}
	return strings.TrimPrefix(s, "+"), false
}

// RecordListResponse resposta de listagem.
type RecordListResponse struct {
	Data  []Record `json:"data"`
	Count int      `json:"count"`
}
