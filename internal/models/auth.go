package models

import "github.com/golang-jwt/jwt/v5"

// UserRole is the federation function a token was issued for.
type UserRole string

const (
	// RoleBKO manages the national championships and the competition lifecycle.
	RoleBKO UserRole = "BKO"
	// RoleRKO manages one rayon championship.
	RoleRKO UserRole = "RKO"
	// RoleRCL manages one regio competition.
	RoleRCL     UserRole = "RCL"
	RoleHWL     UserRole = "HWL"
	RoleSporter UserRole = "SPORTER"
)

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	AccountID int64    `json:"account_id"`
	Role      UserRole `json:"role"`
	FullName  string   `json:"full_name"`
	// RayonNr is set for RKO tokens, ClubID for HWL tokens.
	RayonNr int   `json:"rayon_nr,omitempty"`
	ClubID  int64 `json:"club_id,omitempty"`
	jwt.RegisteredClaims
}

// Actor renders the claims as the actor string stored on mutations.
func (c *JWTClaims) Actor() string {
	if c == nil {
		return "systeem"
	}
	name := c.FullName
	if name == "" {
		name = c.Subject
	}
	return TruncateActor(string(c.Role) + " " + name)
}

// Valid reports whether r is one of the federation roles.
func (r UserRole) Valid() bool {
	switch r {
	case RoleBKO, RoleRKO, RoleRCL, RoleHWL, RoleSporter:
		return true
	}
	return false
}
