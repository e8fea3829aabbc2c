package artifact

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"viba/internal/domain"
	"viba/internal/infra"
)

// Role distinguishes what side of a generation an artifact belongs to.
type Role string

const (
	RoleInput  Role = "input"
	RoleOutput Role = "output"
)

const keyPrefix = "owners/"

// ObjectBackend is the minimal surface the store needs from object storage.
type ObjectBackend interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, keys []string) error
	PresignGet(ctx context.Context, key string, lifetime time.Duration) (string, error)
}

// Store uploads image payloads to an object storage backend under a
// deterministic key scheme and resolves keys back to retrievable URLs. A nil
// backend means storage is not configured; callers detect that through
// IsConfigured and keep passing inline payloads around instead.
type Store struct {
	backend           ObjectBackend
	publicBaseURL     string
	signedURLLifetime time.Duration
	logger            infra.Logger
}

// NewStore builds a store over the given backend. publicBaseURL may be empty,
// in which case every resolution produces a time-limited signed URL.
func NewStore(backend ObjectBackend, publicBaseURL string, signedURLLifetime time.Duration, logger infra.Logger) *Store {
	if signedURLLifetime <= 0 {
		signedURLLifetime = time.Hour
	}
	return &Store{
		backend:           backend,
		publicBaseURL:     strings.TrimRight(publicBaseURL, "/"),
		signedURLLifetime: signedURLLifetime,
		logger:            logger,
	}
}

// IsConfigured reports whether uploads will actually persist anything.
func (s *Store) IsConfigured() bool {
	return s != nil && s.backend != nil
}

// Upload decodes an inline payload and writes it under the key scheme
// owners/{owner}/{generation}/{role}_{timestamp}_{index}.{ext}. The timestamp
// only reduces collision probability; it carries no ordering semantics.
func (s *Store) Upload(ctx context.Context, owner, generationID, payload string, role Role, index int) (string, error) {
	if !s.IsConfigured() {
		return "", fmt.Errorf("object storage not configured: %w", domain.ErrStorage)
	}

	data, mediaType, err := DecodeDataURL(payload)
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("%s%s/%s/%s_%d_%d.%s",
		keyPrefix, owner, generationID, role, time.Now().UnixMilli(), index, extensionForMediaType(mediaType))

	if err := s.backend.Put(ctx, key, mediaType, data); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, domain.ErrStorage)
	}
	return key, nil
}

// ResolveURL turns a storage key into a retrievable URL, preferring the public
// base URL and falling back to a signed URL. URLs are recomputed on every read
// so records stay independent of backend location and signature lifetime.
func (s *Store) ResolveURL(ctx context.Context, key string) (string, error) {
	if !s.IsConfigured() {
		return "", fmt.Errorf("object storage not configured: %w", domain.ErrStorage)
	}
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + key, nil
	}
	url, err := s.backend.PresignGet(ctx, key, s.signedURLLifetime)
	if err != nil {
		return "", fmt.Errorf("sign url for %s: %w", key, domain.ErrStorage)
	}
	return url, nil
}

// Fetch retrieves the stored bytes for a key along with a best-effort content
// type derived from the key's extension.
func (s *Store) Fetch(ctx context.Context, key string) ([]byte, string, error) {
	if !s.IsConfigured() {
		return nil, "", fmt.Errorf("object storage not configured: %w", domain.ErrStorage)
	}
	data, err := s.backend.Get(ctx, key)
	if err != nil {
		return nil, "", fmt.Errorf("fetch %s: %w", key, domain.ErrStorage)
	}
	return data, mediaTypeForKey(key), nil
}

// Delete removes the given keys in one batched backend call. Failures are
// logged and swallowed: artifact cleanup must never block record deletion.
func (s *Store) Delete(ctx context.Context, keys []string) {
	if !s.IsConfigured() || len(keys) == 0 {
		return
	}
	if err := s.backend.Delete(ctx, keys); err != nil {
		s.logger.Warn().Err(err).Int("keys", len(keys)).Msg("artifact: batched delete failed")
	}
}

// IsStorageKey distinguishes a backend key from an inline payload by
// structural prefix alone; it never touches the network.
func IsStorageKey(value string) bool {
	return strings.HasPrefix(value, keyPrefix) && !strings.HasPrefix(value, "data:")
}

var mediaTypeExtensions = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/jpg":  "jpg",
	"image/gif":  "gif",
	"image/webp": "webp",
}

func extensionForMediaType(mediaType string) string {
	if ext, ok := mediaTypeExtensions[strings.ToLower(strings.TrimSpace(mediaType))]; ok {
		return ext
	}
	return "png"
}

func mediaTypeForKey(key string) string {
	ext := strings.TrimPrefix(path.Ext(key), ".")
	for mediaType, candidate := range mediaTypeExtensions {
		if candidate == ext && mediaType != "image/jpg" {
			return mediaType
		}
	}
	return defaultMediaType
}
