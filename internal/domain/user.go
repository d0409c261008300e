// Package domain contains core domain types for the ARISE CTF server.
package domain

import (
	"time"
)

// User represents a registered hunter with their cumulative score.
// Score is the only authoritative scoring state; rank is always derived
// from it and never stored.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Contact      string    `json:"contact,omitempty"`
	Guild        string    `json:"guild,omitempty"`
	PasswordHash string    `json:"-"`
	Score        int       `json:"score"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
