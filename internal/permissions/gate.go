package permissions

// HasPermission reports whether the resolved set grants t. It never performs
// I/O; callers keep the set current.
func HasPermission(set Set, t Type) bool {
	return set.Get(t)
}

// Gate answers capability questions for one already-resolved user.
type Gate struct {
	set Set
}

// NewGate binds a resolved set.
func NewGate(set Set) Gate {
	return Gate{set: set}
}

// HasPermission reports whether the bound user may use t.
func (g Gate) HasPermission(t Type) bool {
	return HasPermission(g.set, t)
}

// Set returns the bound set.
func (g Gate) Set() Set {
	return g.set
}
