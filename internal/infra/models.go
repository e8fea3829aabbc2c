package infra

import "strings"

// Default model identifiers per pipeline step. The text model serves the
// derivation describe stage; the image model serves every image-producing call.
const (
	DefaultTextModel  = "gemini-3-pro-preview"
	DefaultImageModel = "gemini-3-pro-image-preview"
)

// ModelConfig selects the upstream model per generation step. It is loaded
// once at startup and passed by reference to the orchestrator; there is no
// process-global model state.
type ModelConfig struct {
	DerivationText  string
	DerivationImage string
	Avatar          string
	TryOn           string
	Swap            string
}

// legacyModels maps identifiers persisted by earlier releases onto their
// current equivalents. Applied on load and on every update so stale
// configuration can never reach the wire.
var legacyModels = map[string]string{
	"gemini-2.0-flash-exp": DefaultImageModel,
	"gemini-2.5-flash":     DefaultTextModel,
	"gemini-2.5-pro":       DefaultTextModel,
}

// CanonicalModel maps a possibly-legacy model identifier to its current form.
// Unknown identifiers pass through unchanged.
func CanonicalModel(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	if current, ok := legacyModels[id]; ok {
		return current
	}
	return id
}

// Normalize returns a copy with every identifier mapped through CanonicalModel
// and empty slots filled with the step default.
func (m ModelConfig) Normalize() ModelConfig {
	normalize := func(id, fallback string) string {
		if id = CanonicalModel(id); id != "" {
			return id
		}
		return fallback
	}
	return ModelConfig{
		DerivationText:  normalize(m.DerivationText, DefaultTextModel),
		DerivationImage: normalize(m.DerivationImage, DefaultImageModel),
		Avatar:          normalize(m.Avatar, DefaultImageModel),
		TryOn:           normalize(m.TryOn, DefaultImageModel),
		Swap:            normalize(m.Swap, DefaultImageModel),
	}
}
