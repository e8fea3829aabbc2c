package domain

import "time"

// GenerationType enumerates supported generation recipes.
type GenerationType string

const (
	GenerationTypeDerivation GenerationType = "derivation"
	GenerationTypeAvatar     GenerationType = "avatar"
	GenerationTypeTryOn      GenerationType = "try_on"
	GenerationTypeSwap       GenerationType = "swap"
)

// GenerationStatus enumerates generation lifecycle states.
type GenerationStatus string

const (
	GenerationStatusPending    GenerationStatus = "pending"
	GenerationStatusProcessing GenerationStatus = "processing"
	GenerationStatusCompleted  GenerationStatus = "completed"
	GenerationStatusFailed     GenerationStatus = "failed"
)

// GenerationRecord is the durable representation of one generation. Entries in
// InputFiles and OutputFiles are artifact references: either inline data URLs
// or storage keys, never both shapes for the same entry.
type GenerationRecord struct {
	ID           string
	UserID       string
	Type         GenerationType
	Status       GenerationStatus
	InputFiles   []string
	OutputFiles  []string
	Parameters   map[string]any
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ValidGenerationType reports whether t names a known generation recipe.
func ValidGenerationType(t GenerationType) bool {
	switch t {
	case GenerationTypeDerivation, GenerationTypeAvatar, GenerationTypeTryOn, GenerationTypeSwap:
		return true
	}
	return false
}

// ValidGenerationStatus reports whether s names a known lifecycle state.
func ValidGenerationStatus(s GenerationStatus) bool {
	switch s {
	case GenerationStatusPending, GenerationStatusProcessing, GenerationStatusCompleted, GenerationStatusFailed:
		return true
	}
	return false
}
