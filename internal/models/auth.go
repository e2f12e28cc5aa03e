package models

import "github.com/golang-jwt/jwt/v5"

// ActorClaims is the bearer token payload identifying the current actor.
type ActorClaims struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email,omitempty"`
	FullName string `json:"full_name,omitempty"`
	jwt.RegisteredClaims
}

// Actor returns the id recorded as created_by.
func (c *ActorClaims) Actor() string {
	if c == nil {
		return ""
	}
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}
