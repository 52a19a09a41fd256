package permission

import "crm-api/internal/domain"

// RoleTable maps each role to its default grant per resource. Tables are
// passed to NewResolver; nothing in this package mutates a shared copy.
type RoleTable map[domain.Role]map[domain.Resource]domain.Grant

// Clone returns a deep copy of the table.
func (t RoleTable) Clone() RoleTable {
	out := make(RoleTable, len(t))
	for role, grants := range t {
		out[role] = cloneGrants(grants)
	}
	return out
}

// Grants returns a copy of the role's defaults. Unknown roles get an empty map.
func (t RoleTable) Grants(role domain.Role) map[domain.Resource]domain.Grant {
	return cloneGrants(t[role])
}

func cloneGrants(in map[domain.Resource]domain.Grant) map[domain.Resource]domain.Grant {
	out := make(map[domain.Resource]domain.Grant, len(in))
	for res, g := range in {
		out[res] = g
	}
	return out
}

func g(scope domain.Scope, pt domain.PermissionType) domain.Grant {
	return domain.Grant{Scope: scope, PermissionType: pt}
}

// DefaultRoleTable returns a fresh copy of the built-in role defaults.
//
// | resource    | owner | administrator | leader       | sales        | collaborator | partner     | client      |
// |-------------|-------|---------------|--------------|--------------|--------------|-------------|-------------|
// | drive       | T/F   | T/F           | D/ECV        | P/CV         | P/CV         | P/V         | P/V         |
// | activities  | T/F   | T/F           | D/F          | P/F          | P/ECV        | P/CV        | -           |
// | playbooks   | T/F   | T/F           | D/ECV        | P/V          | P/V          | -           | -           |
// | forms       | T/F   | T/F           | D/ECV        | P/CV         | P/V          | P/V         | P/CV        |
// | records     | T/F   | T/F           | D/F          | P/ECV        | P/V          | -           | -           |
// | crm         | T/F   | T/F           | D/F          | P/ECV        | P/V          | P/CV        | -           |
// | management  | T/F   | T/F           | D/V          | -            | -            | -           | -           |
// | commissions | T/F   | T/ECV         | D/V          | P/V          | -            | P/V         | -           |
//
// T=total D=department P=personal; F=full ECV=edit_create_view CV=create_view V=view; "-" = none/none.
func DefaultRoleTable() RoleTable {
	const (
		T = domain.ScopeTotal
		D = domain.ScopeDepartment
		P = domain.ScopePersonal
		N = domain.ScopeNone
	)
	const (
		full = domain.PermissionFull
		ecv  = domain.PermissionEditCreateView
		cv   = domain.PermissionCreateView
		view = domain.PermissionView
		none = domain.PermissionNone
	)

	allFull := func() map[domain.Resource]domain.Grant {
		m := make(map[domain.Resource]domain.Grant, len(domain.AllResources))
		for _, r := range domain.AllResources {
			m[r] = g(T, full)
		}
		return m
	}

	admin := allFull()
	admin[domain.ResourceCommissions] = g(T, ecv)

	return RoleTable{
		domain.RoleOwner:         allFull(),
		domain.RoleAdministrator: admin,
		domain.RoleLeader: {
			domain.ResourceDrive:       g(D, ecv),
			domain.ResourceActivities:  g(D, full),
			domain.ResourcePlaybooks:   g(D, ecv),
			domain.ResourceForms:       g(D, ecv),
			domain.ResourceRecords:     g(D, full),
			domain.ResourceCRM:         g(D, full),
			domain.ResourceManagement:  g(D, view),
			domain.ResourceCommissions: g(D, view),
		},
		domain.RoleSales: {
			domain.ResourceDrive:       g(P, cv),
			domain.ResourceActivities:  g(P, full),
			domain.ResourcePlaybooks:   g(P, view),
			domain.ResourceForms:       g(P, cv),
			domain.ResourceRecords:     g(P, ecv),
			domain.ResourceCRM:         g(P, ecv),
			domain.ResourceManagement:  g(N, none),
			domain.ResourceCommissions: g(P, view),
		},
		domain.RoleCollaborator: {
			domain.ResourceDrive:       g(P, cv),
			domain.ResourceActivities:  g(P, ecv),
			domain.ResourcePlaybooks:   g(P, view),
			domain.ResourceForms:       g(P, view),
			domain.ResourceRecords:     g(P, view),
			domain.ResourceCRM:         g(P, view),
			domain.ResourceManagement:  g(N, none),
			domain.ResourceCommissions: g(N, none),
		},
		domain.RolePartner: {
			domain.ResourceDrive:       g(P, view),
			domain.ResourceActivities:  g(P, cv),
			domain.ResourcePlaybooks:   g(N, none),
			domain.ResourceForms:       g(P, view),
			domain.ResourceRecords:     g(N, none),
			domain.ResourceCRM:         g(P, cv),
			domain.ResourceManagement:  g(N, none),
			domain.ResourceCommissions: g(P, view),
		},
		domain.RoleClient: {
			domain.ResourceDrive:       g(P, view),
			domain.ResourceActivities:  g(N, none),
			domain.ResourcePlaybooks:   g(N, none),
			domain.ResourceForms:       g(P, cv),
			domain.ResourceRecords:     g(N, none),
			domain.ResourceCRM:         g(N, none),
			domain.ResourceManagement:  g(N, none),
			domain.ResourceCommissions: g(N, none),
		},
	}
}
