package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"viba/internal/artifact"
	"viba/internal/domain"
	"viba/internal/infra"
)

// Recorder persists generations and resolves their artifacts back to URLs on
// read. Uploads are best effort: when object storage rejects a payload the
// inline data URL is recorded instead, so a storage outage never loses a
// finished generation.
type Recorder struct {
	repo   domain.GenerationRepository
	store  *artifact.Store
	logger infra.Logger
}

// NewRecorder builds a recorder over the repository and artifact store.
func NewRecorder(repo domain.GenerationRepository, store *artifact.Store, logger infra.Logger) *Recorder {
	return &Recorder{repo: repo, store: store, logger: logger}
}

// CreateRequest describes one generation to persist. Inputs and Outputs are
// inline data URLs straight from the pipeline; Status defaults to completed,
// so failed or still-pending generations can be recorded by naming it.
type CreateRequest struct {
	Owner      string
	Type       domain.GenerationType
	Status     domain.GenerationStatus
	Inputs     []string
	Outputs    []string
	Parameters map[string]any
}

// Create uploads the request's payloads and writes the record. The returned
// record carries artifact references: storage keys where upload succeeded,
// inline payloads where it did not.
func (r *Recorder) Create(ctx context.Context, req CreateRequest) (*domain.GenerationRecord, error) {
	if req.Owner == "" {
		return nil, fmt.Errorf("owner is required: %w", domain.ErrValidation)
	}
	if !domain.ValidGenerationType(req.Type) {
		return nil, fmt.Errorf("unknown generation type %q: %w", req.Type, domain.ErrValidation)
	}
	status := req.Status
	if status == "" {
		status = domain.GenerationStatusCompleted
	}
	if !domain.ValidGenerationStatus(status) {
		return nil, fmt.Errorf("unknown generation status %q: %w", req.Status, domain.ErrValidation)
	}

	id := uuid.NewString()
	now := time.Now()
	record := &domain.GenerationRecord{
		ID:          id,
		UserID:      req.Owner,
		Type:        req.Type,
		Status:      status,
		InputFiles:  r.uploadAll(ctx, req.Owner, id, req.Inputs, artifact.RoleInput),
		OutputFiles: r.uploadAll(ctx, req.Owner, id, req.Outputs, artifact.RoleOutput),
		Parameters:  req.Parameters,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := r.repo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("create generation record: %w", err)
	}
	return record, nil
}

// uploadAll pushes each inline payload to storage, keeping the payload inline
// when the store is unconfigured or an individual upload fails.
func (r *Recorder) uploadAll(ctx context.Context, owner, generationID string, payloads []string, role artifact.Role) []string {
	out := make([]string, 0, len(payloads))
	for i, payload := range payloads {
		if !r.store.IsConfigured() {
			out = append(out, payload)
			continue
		}
		key, err := r.store.Upload(ctx, owner, generationID, payload, role, i)
		if err != nil {
			r.logger.Warn().Err(err).Str("generation_id", generationID).Str("role", string(role)).Int("index", i).
				Msg("history: upload failed, keeping inline payload")
			out = append(out, payload)
			continue
		}
		out = append(out, key)
	}
	return out
}

// List returns the owner's records newest first, with storage keys resolved
// to retrievable URLs. A key that fails to resolve is passed through as-is
// rather than dropping the record.
func (r *Recorder) List(ctx context.Context, owner string) ([]domain.GenerationRecord, error) {
	records, err := r.repo.ListByUser(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	for i := range records {
		records[i].InputFiles = r.resolveAll(ctx, records[i].InputFiles)
		records[i].OutputFiles = r.resolveAll(ctx, records[i].OutputFiles)
	}
	return records, nil
}

// Get returns one record with its references resolved, scoped to the owner.
func (r *Recorder) Get(ctx context.Context, owner, id string) (*domain.GenerationRecord, error) {
	record, err := r.repo.GetByID(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	record.InputFiles = r.resolveAll(ctx, record.InputFiles)
	record.OutputFiles = r.resolveAll(ctx, record.OutputFiles)
	return record, nil
}

// Fetch returns the raw bytes of one artifact belonging to the record. Inline
// references are decoded locally; storage keys are read from the backend.
func (r *Recorder) Fetch(ctx context.Context, owner, id, ref string) ([]byte, string, error) {
	record, err := r.repo.GetByID(ctx, owner, id)
	if err != nil {
		return nil, "", err
	}
	if !containsRef(record, ref) {
		return nil, "", fmt.Errorf("artifact %q not part of generation %s: %w", ref, id, domain.ErrNotFound)
	}
	if artifact.IsStorageKey(ref) {
		return r.store.Fetch(ctx, ref)
	}
	return artifact.DecodeDataURL(ref)
}

// ArtifactPayload is one exported artifact with its raw bytes.
type ArtifactPayload struct {
	Name      string
	MediaType string
	Data      []byte
}

// ExportOutputs returns the raw bytes of every output artifact of a record,
// for bundling into a download. Artifacts that cannot be read are skipped
// with a warning rather than failing the export.
func (r *Recorder) ExportOutputs(ctx context.Context, owner, id string) ([]ArtifactPayload, error) {
	record, err := r.repo.GetByID(ctx, owner, id)
	if err != nil {
		return nil, err
	}

	var payloads []ArtifactPayload
	for i, ref := range record.OutputFiles {
		var data []byte
		var mediaType string
		if artifact.IsStorageKey(ref) {
			data, mediaType, err = r.store.Fetch(ctx, ref)
		} else {
			data, mediaType, err = artifact.DecodeDataURL(ref)
		}
		if err != nil {
			r.logger.Warn().Err(err).Str("generation_id", id).Int("index", i).Msg("history: export read failed")
			continue
		}
		payloads = append(payloads, ArtifactPayload{
			Name:      fmt.Sprintf("%s-output-%d", id, i),
			MediaType: mediaType,
			Data:      data,
		})
	}
	return payloads, nil
}

// Delete removes the record and then its stored artifacts in one batched
// call. Artifact deletion is best effort; the record is gone either way.
func (r *Recorder) Delete(ctx context.Context, owner, id string) error {
	record, err := r.repo.GetByID(ctx, owner, id)
	if err != nil {
		return err
	}

	var keys []string
	for _, ref := range append(append([]string{}, record.InputFiles...), record.OutputFiles...) {
		if artifact.IsStorageKey(ref) {
			keys = append(keys, ref)
		}
	}

	if err := r.repo.Delete(ctx, owner, id); err != nil {
		return err
	}
	r.store.Delete(ctx, keys)
	return nil
}

// Resolve maps artifact references to retrievable URLs, passing inline
// payloads and unresolvable keys through unchanged.
func (r *Recorder) Resolve(ctx context.Context, refs []string) []string {
	return r.resolveAll(ctx, refs)
}

func (r *Recorder) resolveAll(ctx context.Context, refs []string) []string {
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		if !artifact.IsStorageKey(ref) {
			out = append(out, ref)
			continue
		}
		url, err := r.store.ResolveURL(ctx, ref)
		if err != nil {
			r.logger.Warn().Err(err).Str("key", ref).Msg("history: url resolution failed")
			out = append(out, ref)
			continue
		}
		out = append(out, url)
	}
	return out
}

func containsRef(record *domain.GenerationRecord, ref string) bool {
	for _, candidate := range record.InputFiles {
		if candidate == ref {
			return true
		}
	}
	for _, candidate := range record.OutputFiles {
		if candidate == ref {
			return true
		}
	}
	return false
}
