package domain

// RoleAdmin is the role required for administrative routes.
const RoleAdmin = "admin"

// JWTClaims represents the JWT payload.
type JWTClaims struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	Role  string `json:"role"`
}
