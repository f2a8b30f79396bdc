package contextkeys

import "context"

// contextKey is an unexported type for context keys to prevent collisions.
type contextKey string

const (
	// Subject is the context key for the authenticated caller's subject claim.
	Subject contextKey = "subject"
	// Email is the context key for the authenticated caller's email.
	Email contextKey = "email"
	// Role is the context key for the authenticated caller's role.
	Role contextKey = "role"
)

// SubjectFrom returns the authenticated subject, or "anonymous".
func SubjectFrom(ctx context.Context) string {
	if sub, ok := ctx.Value(Subject).(string); ok && sub != "" {
		return sub
	}
	return "anonymous"
}

// RoleFrom returns the authenticated role, or "".
func RoleFrom(ctx context.Context) string {
	role, _ := ctx.Value(Role).(string)
	return role
}
