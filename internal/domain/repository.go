package domain

import "context"

// GenerationRepository defines persistence for generation records.
type GenerationRepository interface {
	Create(ctx context.Context, record *GenerationRecord) error
	ListByUser(ctx context.Context, userID string) ([]GenerationRecord, error)
	GetByID(ctx context.Context, userID, id string) (*GenerationRecord, error)
	Delete(ctx context.Context, userID, id string) error
}
