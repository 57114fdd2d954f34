package permissions

import (
	"fmt"
	"strings"
)

// Role is the coarse profile role managed by the identity subsystem.
type Role uint8

const (
	RoleAdmin Role = iota + 1
	RoleTechnician
	RoleAttendant
)

// Roles lists every known role.
func Roles() []Role {
	return []Role{RoleAdmin, RoleTechnician, RoleAttendant}
}

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleTechnician:
		return "technician"
	case RoleAttendant:
		return "attendant"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// ParseRole maps a stored role name to its Role.
func ParseRole(name string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "admin":
		return RoleAdmin, nil
	case "technician":
		return RoleTechnician, nil
	case "attendant":
		return RoleAttendant, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownRole, name)
}

// MarshalText encodes the role name. Roles outside the known set encode as
// an empty string.
func (r Role) MarshalText() ([]byte, error) {
	if _, err := ParseRole(r.String()); err != nil {
		return []byte{}, nil
	}
	return []byte(r.String()), nil
}

// UnmarshalText decodes a role name.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// TemplateFor returns the capabilities granted by the role template. Templates
// are only an input to ApplyTemplate; resolution never reads them.
func TemplateFor(role Role) []Type {
	var granted []Type
	for _, t := range All() {
		if templateGrants(role, t) {
			granted = append(granted, t)
		}
	}
	return granted
}

// TemplateSet returns the full replacement set for a role: template types true,
// everything else false. Unknown roles yield an all-false set.
func TemplateSet(role Role) Set {
	var set Set
	for _, t := range TemplateFor(role) {
		set[t] = true
	}
	return set
}

func templateGrants(role Role, t Type) bool {
	switch role {
	case RoleAdmin:
		return t.Valid()
	case RoleTechnician:
		switch t {
		case Dashboard, Orders, Clients, TechnicianOrders:
			return true
		case Technicians, Services, Financial, Reports, Settings:
			return false
		}
	case RoleAttendant:
		switch t {
		case Dashboard, Orders, Clients, Technicians, Services, Financial, Reports:
			return true
		case Settings, TechnicianOrders:
			return false
		}
	}
	return false
}
