// Package role centralizes staff authorization decisions. Handlers ask
// Can(role, action) and scope checks instead of re-deriving role logic
// per endpoint.
package role

type Role string
type Action string

const (
	// RoleEdustaja is a customer representative: manages their own customers.
	RoleEdustaja Role = "edustaja"
	// RoleSuunnittelija is a designer: read access across all customers.
	RoleSuunnittelija Role = "suunnittelija"
	RoleAdmin         Role = "admin"
)

const (
	ActionViewSubmissions Action = "view_submissions"
	ActionCreateCustomer  Action = "create_customer"
	ActionDeleteCustomer  Action = "delete_customer"
	ActionManageUsers     Action = "manage_users"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleEdustaja:
		return action == ActionViewSubmissions || action == ActionCreateCustomer
	case RoleSuunnittelija:
		return action == ActionViewSubmissions
	default:
		return false
	}
}

// SeesAllCustomers reports whether the role may read customers it does
// not own. Edustaja is restricted to its own customer list.
func SeesAllCustomers(role Role) bool {
	return role == RoleAdmin || role == RoleSuunnittelija
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleEdustaja, RoleSuunnittelija, RoleAdmin:
		return Role(role)
	default:
		return RoleEdustaja
	}
}
