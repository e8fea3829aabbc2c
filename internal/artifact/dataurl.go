package artifact

import (
	"encoding/base64"
	"fmt"
	"strings"

	"viba/internal/domain"
)

const defaultMediaType = "image/png"

// EncodeDataURL wraps raw bytes into a self-describing inline payload.
func EncodeDataURL(mediaType string, data []byte) string {
	if mediaType == "" {
		mediaType = defaultMediaType
	}
	return fmt.Sprintf("data:%s;base64,%s", mediaType, base64.StdEncoding.EncodeToString(data))
}

// DecodeDataURL extracts raw bytes and a media type from an inline payload.
// Both the full data-URL form and bare base64 are accepted; bare payloads
// default to image/png, matching what the generation service produces.
func DecodeDataURL(value string) ([]byte, string, error) {
	mediaType := defaultMediaType
	encoded := value

	if strings.HasPrefix(value, "data:") {
		rest := strings.TrimPrefix(value, "data:")
		sep := strings.Index(rest, ";base64,")
		if sep < 0 {
			return nil, "", fmt.Errorf("inline payload missing base64 marker: %w", domain.ErrValidation)
		}
		if mt := rest[:sep]; mt != "" {
			mediaType = mt
		}
		encoded = rest[sep+len(";base64,"):]
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, "", fmt.Errorf("decode inline payload: %w", err)
	}
	return data, mediaType, nil
}
