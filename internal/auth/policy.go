package auth

// ReadOnly is implemented by targets that can be locked against edits
type ReadOnly interface {
	ReadOnly() bool
}

// Policy grants edits of a target
type Policy func(target interface{}) bool

// IsEditable calls p
func (p Policy) IsEditable(target interface{}) bool {
	return p(target)
}

// AllowAll grants every edit
var AllowAll = Policy(func(interface{}) bool { return true })

// DenyAll refuses every edit
var DenyAll = Policy(func(interface{}) bool { return false })

// ReadOnlyPolicy refuses edits of targets that report themselves read-only
var ReadOnlyPolicy = Policy(func(target interface{}) bool {
	if ro, ok := target.(ReadOnly); ok {
		return !ro.ReadOnly()
	}
	return true
})

// ForClaims grants edits to holders of the editor role, subject to the
// read-only check
func ForClaims(claims *Claims) Policy {
	if !claims.HasRole(RoleEditor) {
		return DenyAll
	}
	return ReadOnlyPolicy
}
