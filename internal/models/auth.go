package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleStudent UserRole = "STUDENT"
)

// StudentLoginRequest authenticates a student by roll number.
type StudentLoginRequest struct {
	RollNumber string `json:"roll_number" validate:"required"`
	Password   string `json:"password" validate:"required"`
	IP         string `json:"-"`
}

// AdminLoginRequest authenticates an administrator.
type AdminLoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
	IP       string `json:"-"`
}

// LoginResponse returns the issued token and identity.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	IssuedAt    time.Time `json:"issued_at"`
	User        UserInfo  `json:"user"`
}

// UserInfo describes the authenticated principal.
type UserInfo struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Role       UserRole `json:"role"`
	RollNumber string   `json:"roll_number,omitempty"`
	Semester   int      `json:"semester,omitempty"`
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID string   `json:"user_id"`
	Role   UserRole `json:"role"`
	Name   string   `json:"name"`
	jwt.RegisteredClaims
}
