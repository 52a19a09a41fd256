package domain

import (
	"fmt"
	"time"
)

// =====================================================
// Role
// =====================================================

// Role representa a função do usuário no CRM. Define as permissões padrão.
type Role string

const (
	RoleOwner         Role = "owner"
	RoleAdministrator Role = "administrator"
	RoleLeader        Role = "leader"
	RoleSales         Role = "sales"
	RoleCollaborator  Role = "collaborator"
	RolePartner       Role = "partner"
	RoleClient        Role = "client"
)

// AllRoles lists roles in descending order of privilege.
var AllRoles = []Role{RoleOwner, RoleAdministrator, RoleLeader, RoleSales, RoleCollaborator, RolePartner, RoleClient}

// String returns the string representation of the Role
func (r Role) String() string {
	return string(r)
}

// IsValid checks if the role is one of the defined constants
func (r Role) IsValid() bool {
	switch r {
	case RoleOwner, RoleAdministrator, RoleLeader, RoleSales, RoleCollaborator, RolePartner, RoleClient:
		return true
	default:
		return false
	}
}

// =====================================================
// Resource
// =====================================================

// Resource é uma área funcional sujeita a controle de acesso.
type Resource string

const (
	ResourceDrive       Resource = "drive"
	ResourceActivities  Resource = "activities"
	ResourcePlaybooks   Resource = "playbooks"
	ResourceForms       Resource = "forms"
	ResourceRecords     Resource = "records"
	ResourceCRM         Resource = "crm"
	ResourceManagement  Resource = "management"
	ResourceCommissions Resource = "commissions"
)

var AllResources = []Resource{
	ResourceDrive, ResourceActivities, ResourcePlaybooks, ResourceForms,
	ResourceRecords, ResourceCRM, ResourceManagement, ResourceCommissions,
}

func (r Resource) IsValid() bool {
	for _, known := range AllResources {
		if r == known {
			return true
		}
	}
	return false
}

// =====================================================
// Scope
// =====================================================

// Scope descreve a amplitude de visibilidade dos dados de um recurso.
type Scope string

const (
	ScopeNone       Scope = "none"
	ScopePersonal   Scope = "personal"
	ScopeDepartment Scope = "department"
	ScopeTotal      Scope = "total"
)

func (s Scope) IsValid() bool {
	switch s {
	case ScopeNone, ScopePersonal, ScopeDepartment, ScopeTotal:
		return true
	}
	return false
}

// =====================================================
// Permission tiers
// =====================================================

// Action is a single operation checked against a permission tier.
type Action string

const (
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

func (a Action) IsValid() bool {
	switch a {
	case ActionView, ActionCreate, ActionEdit, ActionDelete:
		return true
	}
	return false
}

// PermissionType é o nível de capacidade, ordenado:
// none ⊂ view ⊂ create_view ⊂ edit_create_view ⊂ full
type PermissionType string

const (
	PermissionNone           PermissionType = "none"
	PermissionView           PermissionType = "view"
	PermissionCreateView     PermissionType = "create_view"
	PermissionEditCreateView PermissionType = "edit_create_view"
	PermissionFull           PermissionType = "full"
)

// AllPermissionTypes in ascending order.
var AllPermissionTypes = []PermissionType{
	PermissionNone, PermissionView, PermissionCreateView, PermissionEditCreateView, PermissionFull,
}

var tierActions = map[PermissionType][]Action{
	PermissionNone:           {},
	PermissionView:           {ActionView},
	PermissionCreateView:     {ActionView, ActionCreate},
	PermissionEditCreateView: {ActionView, ActionCreate, ActionEdit},
	PermissionFull:           {ActionView, ActionCreate, ActionEdit, ActionDelete},
}

func (p PermissionType) IsValid() bool {
	_, ok := tierActions[p]
	return ok
}

// Actions returns the action set implied by the tier. Unknown tiers grant nothing.
func (p PermissionType) Actions() []Action {
	actions := tierActions[p]
	out := make([]Action, len(actions))
	copy(out, actions)
	return out
}

// Allows reports whether action belongs to the tier's action set.
func (p PermissionType) Allows(action Action) bool {
	for _, a := range tierActions[p] {
		if a == action {
			return true
		}
	}
	return false
}

// =====================================================
// Grants and overrides
// =====================================================

// Grant é o par (scope, permissionType) de um recurso.
type Grant struct {
	Scope          Scope          `json:"level"`
	PermissionType PermissionType `json:"permission_type"`
}

// NoGrant is what an absent resource resolves to.
var NoGrant = Grant{Scope: ScopeNone, PermissionType: PermissionNone}

// PermissionOverride substitui o padrão do papel para um recurso de um usuário.
// Schema: public.permission_overrides
type PermissionOverride struct {
	ID             string         `json:"id" db:"id"`
	UserID         string         `json:"user_id" db:"user_id"`
	Resource       Resource       `json:"resource" db:"resource"`
	Level          Scope          `json:"level" db:"level"`
	PermissionType PermissionType `json:"permission_type" db:"permission_type"`
	CreatedAt      time.Time      `json:"created_date" db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_date" db:"updated_at"`
}

// Grant returns the override as a Grant.
func (o PermissionOverride) Grant() Grant {
	return Grant{Scope: o.Level, PermissionType: o.PermissionType}
}

// SetOverrideRequest DTO para PUT /v1/users/{userId}/permissions/{resource}.
type SetOverrideRequest struct {
	Level          Scope          `json:"level" validate:"required,oneof=none personal department total"`
	PermissionType PermissionType `json:"permission_type" validate:"required,oneof=none view create_view edit_create_view full"`
}

// ParseAction converts a query/path value to an Action, defaulting to view.
func ParseAction(s string) (Action, error) {
	if s == "" {
		return ActionView, nil
	}
	a := Action(s)
	if !a.IsValid() {
		return "", fmt.Errorf("invalid action: %s", s)
	}
	return a, nil
}

// UserPermissions é a resposta de GET /v1/users/{userId}/permissions.
type UserPermissions struct {
	UserID    string               `json:"user_id"`
	Role      Role                 `json:"role"`
	Superuser bool                 `json:"superuser"`
	Overrides []PermissionOverride `json:"overrides"`
	Effective map[Resource]Grant   `json:"effective"`
}
