package generate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"viba/internal/domain"
	"viba/internal/genai"
	"viba/internal/infra"
)

// variantFanOut is how many parallel variant calls a derivation issues.
const variantFanOut = 4

// minDescriptionLength guards the describe stage: an answer shorter than this
// cannot seed a useful variant prompt and is retried as a transient failure.
const minDescriptionLength = 20

// Per-recipe invocation bounds. Composite recipes get the longest budget since
// they carry multiple reference images per call.
var (
	describePolicy  = genai.RetryPolicy{Timeout: 60 * time.Second, MaxRetries: 2}
	derivePolicy    = genai.RetryPolicy{Timeout: 90 * time.Second, MaxRetries: 2}
	compositePolicy = genai.RetryPolicy{Timeout: 120 * time.Second, MaxRetries: 2}
)

// ImageService is the upstream surface the orchestrator drives. Satisfied by
// the Gemini client; tests substitute their own.
type ImageService interface {
	Describe(ctx context.Context, model string, img genai.ImagePart, instruction string) (string, error)
	GenerateImage(ctx context.Context, model string, images []genai.ImagePart, instruction string, cfg genai.ImageConfig) (genai.ImagePart, error)
}

// Orchestrator implements the four generation recipes over an ImageService.
type Orchestrator struct {
	service ImageService
	models  infra.ModelConfig
	logger  infra.Logger
}

// NewOrchestrator builds an orchestrator using the given model selection.
func NewOrchestrator(service ImageService, models infra.ModelConfig, logger infra.Logger) *Orchestrator {
	return &Orchestrator{service: service, models: models.Normalize(), logger: logger}
}

// DeriveRequest parameterizes the two-stage variant recipe. TextModel and
// ImageModel override the configured defaults when set; legacy identifiers
// are mapped to their current forms.
type DeriveRequest struct {
	Image      genai.ImagePart
	Intensity  int
	SkinTone   string
	TextModel  string
	ImageModel string
}

// DeriveResult carries the surviving variants in call order plus the
// stage-one description they were built from.
type DeriveResult struct {
	Images      []genai.ImagePart
	Description string
}

// Progress receives coarse stage updates while a recipe runs. A nil func is
// allowed.
type Progress func(stage string)

// DeriveVariants runs describe then generate: stage one turns the input image
// into a structured description, stage two issues variantFanOut parallel
// generate calls seeded with the original image plus an instruction embedding
// that description. Partial failure is absorbed: the operation succeeds with
// 1 to variantFanOut images, and only if every call fails does it surface the
// first error encountered in call order.
func (o *Orchestrator) DeriveVariants(ctx context.Context, req DeriveRequest, progress Progress) (DeriveResult, error) {
	if len(req.Image.Data) == 0 {
		return DeriveResult{}, fmt.Errorf("input image is required: %w", domain.ErrValidation)
	}
	if req.Intensity < 1 || req.Intensity > 10 {
		return DeriveResult{}, fmt.Errorf("intensity %d out of range 1-10: %w", req.Intensity, domain.ErrValidation)
	}
	skinTone, err := NormalizeSkinTone(req.SkinTone)
	if err != nil {
		return DeriveResult{}, err
	}

	textModel := o.pick(req.TextModel, o.models.DerivationText)
	imageModel := o.pick(req.ImageModel, o.models.DerivationImage)

	report(progress, "analyzing")
	description, err := genai.Invoke(ctx, o.logger, describePolicy, func(ctx context.Context) (string, error) {
		desc, err := o.service.Describe(ctx, textModel, req.Image, describePrompt)
		if err != nil {
			return "", err
		}
		if len(strings.TrimSpace(desc)) < minDescriptionLength {
			return "", fmt.Errorf("description too short (%d chars)", len(strings.TrimSpace(desc)))
		}
		return desc, nil
	})
	if err != nil {
		return DeriveResult{}, fmt.Errorf("describe stage: %w", err)
	}

	report(progress, "generating")
	instruction := derivationPrompt(description, req.Intensity, skinTone)

	images := make([]genai.ImagePart, variantFanOut)
	errs := make([]error, variantFanOut)
	var wg sync.WaitGroup
	for i := 0; i < variantFanOut; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			images[i], errs[i] = genai.Invoke(ctx, o.logger, derivePolicy, func(ctx context.Context) (genai.ImagePart, error) {
				return o.service.GenerateImage(ctx, imageModel, []genai.ImagePart{req.Image}, instruction,
					genai.ImageConfig{ImageSize: "1K", AspectRatio: "3:4"})
			})
		}(i)
	}
	wg.Wait()

	var out []genai.ImagePart
	var firstErr error
	failed := 0
	for i := 0; i < variantFanOut; i++ {
		if errs[i] != nil {
			failed++
			if firstErr == nil {
				firstErr = errs[i]
			}
			o.logger.Warn().Err(errs[i]).Int("variant", i).Msg("generate: variant failed")
			continue
		}
		out = append(out, images[i])
	}
	if len(out) == 0 {
		return DeriveResult{}, fmt.Errorf("all %d variants failed: %w", variantFanOut, firstErr)
	}
	if failed > 0 {
		o.logger.Warn().Int("failed", failed).Int("succeeded", len(out)).Msg("generate: partial variant success")
	}
	return DeriveResult{Images: out, Description: description}, nil
}

// Avatar synthesizes a studio portrait from 1 to 3 reference images.
func (o *Orchestrator) Avatar(ctx context.Context, refs []genai.ImagePart, model string) (genai.ImagePart, error) {
	if len(refs) < 1 || len(refs) > 3 {
		return genai.ImagePart{}, fmt.Errorf("avatar needs 1-3 reference images, got %d: %w", len(refs), domain.ErrValidation)
	}
	for i, ref := range refs {
		if len(ref.Data) == 0 {
			return genai.ImagePart{}, fmt.Errorf("reference image %d is empty: %w", i, domain.ErrValidation)
		}
	}
	return o.composite(ctx, refs, avatarPrompt, o.pick(model, o.models.Avatar), "4K")
}

// TryOn composes the person from the first image wearing the garment from the
// second.
func (o *Orchestrator) TryOn(ctx context.Context, person, garment genai.ImagePart, model string) (genai.ImagePart, error) {
	if len(person.Data) == 0 || len(garment.Data) == 0 {
		return genai.ImagePart{}, fmt.Errorf("person and garment images are required: %w", domain.ErrValidation)
	}
	return o.composite(ctx, []genai.ImagePart{person, garment}, tryOnPrompt, o.pick(model, o.models.TryOn), "2K")
}

// Swap composes the subject from the first image into the scene from the
// second.
func (o *Orchestrator) Swap(ctx context.Context, subject, scene genai.ImagePart, model string) (genai.ImagePart, error) {
	if len(subject.Data) == 0 || len(scene.Data) == 0 {
		return genai.ImagePart{}, fmt.Errorf("subject and scene images are required: %w", domain.ErrValidation)
	}
	return o.composite(ctx, []genai.ImagePart{subject, scene}, swapPrompt, o.pick(model, o.models.Swap), "2K")
}

func (o *Orchestrator) composite(ctx context.Context, images []genai.ImagePart, instruction, model, size string) (genai.ImagePart, error) {
	return genai.Invoke(ctx, o.logger, compositePolicy, func(ctx context.Context) (genai.ImagePart, error) {
		return o.service.GenerateImage(ctx, model, images, instruction,
			genai.ImageConfig{ImageSize: size, AspectRatio: "3:4"})
	})
}

func (o *Orchestrator) pick(override, configured string) string {
	if id := infra.CanonicalModel(override); id != "" {
		return id
	}
	return configured
}

func report(progress Progress, stage string) {
	if progress != nil {
		progress(stage)
	}
}
