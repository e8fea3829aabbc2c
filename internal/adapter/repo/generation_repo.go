package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"viba/internal/domain"
)

// GenerationRepositoryPG implements domain.GenerationRepository.
type GenerationRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewGenerationRepository creates a generation repository backed by PostgreSQL.
func NewGenerationRepository(pool *pgxpool.Pool) *GenerationRepositoryPG {
	return &GenerationRepositoryPG{pool: pool}
}

// Create inserts a new generation record. File lists and parameters are
// stored as jsonb so artifact references of either shape round-trip intact.
func (r *GenerationRepositoryPG) Create(ctx context.Context, record *domain.GenerationRecord) error {
	inputFiles, err := json.Marshal(orEmpty(record.InputFiles))
	if err != nil {
		return fmt.Errorf("marshal input files: %w", err)
	}
	outputFiles, err := json.Marshal(orEmpty(record.OutputFiles))
	if err != nil {
		return fmt.Errorf("marshal output files: %w", err)
	}
	parameters, err := json.Marshal(orEmptyMap(record.Parameters))
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}

	query := `
INSERT INTO generations (id, user_id, type, status, input_files, output_files, parameters, error_message, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
`
	_, err = r.pool.Exec(ctx, query,
		record.ID,
		record.UserID,
		record.Type,
		record.Status,
		inputFiles,
		outputFiles,
		parameters,
		record.ErrorMessage,
		record.CreatedAt,
		record.UpdatedAt,
	)
	return err
}

// ListByUser returns the user's records, newest first.
func (r *GenerationRepositoryPG) ListByUser(ctx context.Context, userID string) ([]domain.GenerationRecord, error) {
	query := `
SELECT id, user_id, type, status, input_files, output_files, parameters, error_message, created_at, updated_at
FROM generations
WHERE user_id = $1
ORDER BY created_at DESC;
`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.GenerationRecord
	for rows.Next() {
		record, err := scanGeneration(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

// GetByID fetches one record scoped to its owner.
func (r *GenerationRepositoryPG) GetByID(ctx context.Context, userID, id string) (*domain.GenerationRecord, error) {
	query := `
SELECT id, user_id, type, status, input_files, output_files, parameters, error_message, created_at, updated_at
FROM generations
WHERE id = $1 AND user_id = $2;
`
	record, err := scanGeneration(r.pool.QueryRow(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("generation %s: %w", id, domain.ErrNotFound)
		}
		return nil, err
	}
	return record, nil
}

// Delete removes one record scoped to its owner.
func (r *GenerationRepositoryPG) Delete(ctx context.Context, userID, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM generations WHERE id = $1 AND user_id = $2;`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("generation %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func scanGeneration(row pgx.Row) (*domain.GenerationRecord, error) {
	var record domain.GenerationRecord
	var inputFiles, outputFiles, parameters []byte
	if err := row.Scan(
		&record.ID,
		&record.UserID,
		&record.Type,
		&record.Status,
		&inputFiles,
		&outputFiles,
		&parameters,
		&record.ErrorMessage,
		&record.CreatedAt,
		&record.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(inputFiles, &record.InputFiles); err != nil {
		return nil, fmt.Errorf("unmarshal input files: %w", err)
	}
	if err := json.Unmarshal(outputFiles, &record.OutputFiles); err != nil {
		return nil, fmt.Errorf("unmarshal output files: %w", err)
	}
	if err := json.Unmarshal(parameters, &record.Parameters); err != nil {
		return nil, fmt.Errorf("unmarshal parameters: %w", err)
	}
	return &record, nil
}

func orEmpty(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func orEmptyMap(values map[string]any) map[string]any {
	if values == nil {
		return map[string]any{}
	}
	return values
}
