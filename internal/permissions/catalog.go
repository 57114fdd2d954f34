package permissions

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Type identifies one capability of the dashboard. The catalog is closed: adding
// a value here must be followed by the matching cases in String, ParseType and
// TemplateFor.
type Type uint8

const (
	Dashboard Type = iota
	Orders
	Clients
	Technicians
	Services
	Financial
	Reports
	Settings
	TechnicianOrders

	numTypes
)

// All returns every catalog type in display order.
func All() []Type {
	types := make([]Type, 0, numTypes)
	for t := Type(0); t < numTypes; t++ {
		types = append(types, t)
	}
	return types
}

// Valid reports whether t belongs to the catalog.
func (t Type) Valid() bool {
	return t < numTypes
}

func (t Type) String() string {
	switch t {
	case Dashboard:
		return "dashboard"
	case Orders:
		return "orders"
	case Clients:
		return "clients"
	case Technicians:
		return "technicians"
	case Services:
		return "services"
	case Financial:
		return "financial"
	case Reports:
		return "reports"
	case Settings:
		return "settings"
	case TechnicianOrders:
		return "technician_orders"
	default:
		return fmt.Sprintf("permission(%d)", uint8(t))
	}
}

// Label returns a human readable title, e.g. "Technician Orders".
func (t Type) Label() string {
	if !t.Valid() {
		return t.String()
	}
	return cases.Title(language.English).String(strings.ReplaceAll(t.String(), "_", " "))
}

// ParseType maps a stored or user supplied name to its Type.
func ParseType(name string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "dashboard":
		return Dashboard, nil
	case "orders":
		return Orders, nil
	case "clients":
		return Clients, nil
	case "technicians":
		return Technicians, nil
	case "services":
		return Services, nil
	case "financial":
		return Financial, nil
	case "reports":
		return Reports, nil
	case "settings":
		return Settings, nil
	case "technician_orders":
		return TechnicianOrders, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPermission, name)
}

// MarshalText encodes the type using its catalog name.
func (t Type) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPermission, uint8(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText decodes a catalog name.
func (t *Type) UnmarshalText(text []byte) error {
	parsed, err := ParseType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
