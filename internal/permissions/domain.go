package permissions

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Profile is the identity record of a dashboard user. Its lifecycle belongs to
// the identity subsystem; this package only reads it.
type Profile struct {
	ID       uuid.UUID `json:"id"`
	FullName string    `json:"full_name"`
	Email    string    `json:"email"`
	Role     Role      `json:"role"`
}

// Grant is one persisted decision for a (user, permission) pair.
type Grant struct {
	UserID     uuid.UUID `json:"user_id"`
	Permission Type      `json:"permission"`
	Granted    bool      `json:"granted"`
	GrantedBy  uuid.UUID `json:"granted_by"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Change is a single element of a bulk grant write.
type Change struct {
	Permission Type
	Granted    bool
}

// Set is the effective permission set of one user. It holds exactly one entry
// per catalog type; the zero value denies everything.
type Set [numTypes]bool

// Get reports the entry for t. Types outside the catalog are never granted.
func (s Set) Get(t Type) bool {
	if !t.Valid() {
		return false
	}
	return s[t]
}

// With returns a copy of s with t set to granted.
func (s Set) With(t Type, granted bool) Set {
	if t.Valid() {
		s[t] = granted
	}
	return s
}

// Granted lists the types set to true, in catalog order.
func (s Set) Granted() []Type {
	var out []Type
	for _, t := range All() {
		if s[t] {
			out = append(out, t)
		}
	}
	return out
}

// Changes expands the set into one explicit change per catalog type.
func (s Set) Changes() []Change {
	changes := make([]Change, 0, numTypes)
	for _, t := range All() {
		changes = append(changes, Change{Permission: t, Granted: s[t]})
	}
	return changes
}

// Map returns the set keyed by catalog name.
func (s Set) Map() map[string]bool {
	out := make(map[string]bool, numTypes)
	for _, t := range All() {
		out[t.String()] = s[t]
	}
	return out
}

// MarshalJSON encodes the set as an object keyed by permission name.
func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Map())
}

// UnmarshalJSON decodes an object keyed by permission name. Missing names are
// false, unknown names are rejected.
func (s *Set) UnmarshalJSON(data []byte) error {
	var raw map[string]bool
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var out Set
	for name, granted := range raw {
		t, err := ParseType(name)
		if err != nil {
			return err
		}
		out[t] = granted
	}
	*s = out
	return nil
}

// UserPermissions pairs a profile with its resolved set.
type UserPermissions struct {
	Profile     Profile `json:"profile"`
	Permissions Set     `json:"permissions"`
}

// String renders the profile for operator output.
func (p Profile) String() string {
	if p.FullName == "" {
		return p.ID.String()
	}
	return fmt.Sprintf("%s <%s>", p.FullName, p.Email)
}
