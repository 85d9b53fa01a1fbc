package models

import (
	"time"
)

// Persona represents an AI-driven account identity. Personas are created by
// the AI subsystem and are immutable once created; the feed engine only reads
// them for contextual score weighting.
type Persona struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Username    string    `json:"username"`
	Avatar      string    `json:"avatar"`
	Bio         string    `json:"bio"`
	Personality string    `json:"personality"`
	Interests   []string  `json:"interests"`
	Background  string    `json:"background"`
	CreatedAt   time.Time `json:"created_at"`
}
