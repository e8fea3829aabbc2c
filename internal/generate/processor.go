package generate

import (
	"context"
	"fmt"

	"viba/internal/artifact"
	"viba/internal/domain"
	"viba/internal/genai"
	"viba/internal/infra"
	"viba/internal/queue"
)

// Processor executes queued jobs against the orchestrator. Job inputs and
// results travel as inline data URLs; persistence happens outside the queue.
type Processor struct {
	orchestrator *Orchestrator
	logger       infra.Logger
}

// NewProcessor builds the queue handler for generation jobs.
func NewProcessor(orchestrator *Orchestrator, logger infra.Logger) *Processor {
	return &Processor{orchestrator: orchestrator, logger: logger}
}

// Process dispatches one job by type. It returns the generated payloads as
// data URLs in the orchestrator's output order.
func (p *Processor) Process(ctx context.Context, job queue.Job, setStatus func(string)) (queue.Outcome, error) {
	switch job.Type {
	case domain.GenerationTypeDerivation:
		return p.derive(ctx, job, setStatus)
	case domain.GenerationTypeAvatar:
		return p.avatar(ctx, job)
	case domain.GenerationTypeTryOn:
		return p.tryOn(ctx, job)
	case domain.GenerationTypeSwap:
		return p.swap(ctx, job)
	}
	return queue.Outcome{}, fmt.Errorf("unknown job type %q: %w", job.Type, domain.ErrValidation)
}

func (p *Processor) derive(ctx context.Context, job queue.Job, setStatus func(string)) (queue.Outcome, error) {
	if len(job.Inputs) != 1 {
		return queue.Outcome{}, fmt.Errorf("derivation needs exactly one input, got %d: %w", len(job.Inputs), domain.ErrValidation)
	}
	image, err := decodeInput(job.Inputs[0])
	if err != nil {
		return queue.Outcome{}, err
	}

	result, err := p.orchestrator.DeriveVariants(ctx, DeriveRequest{
		Image:      image,
		Intensity:  paramInt(job.Params, "intensity", 5),
		SkinTone:   paramString(job.Params, "skinTone"),
		TextModel:  paramString(job.Params, "textModel"),
		ImageModel: paramString(job.Params, "imageModel"),
	}, Progress(setStatus))
	if err != nil {
		return queue.Outcome{}, err
	}

	return queue.Outcome{
		Results:     encodeResults(result.Images),
		Description: result.Description,
	}, nil
}

func (p *Processor) avatar(ctx context.Context, job queue.Job) (queue.Outcome, error) {
	refs := make([]genai.ImagePart, 0, len(job.Inputs))
	for _, input := range job.Inputs {
		image, err := decodeInput(input)
		if err != nil {
			return queue.Outcome{}, err
		}
		refs = append(refs, image)
	}

	image, err := p.orchestrator.Avatar(ctx, refs, paramString(job.Params, "model"))
	if err != nil {
		return queue.Outcome{}, err
	}
	return queue.Outcome{Results: encodeResults([]genai.ImagePart{image})}, nil
}

func (p *Processor) tryOn(ctx context.Context, job queue.Job) (queue.Outcome, error) {
	first, second, err := decodePair(job.Inputs)
	if err != nil {
		return queue.Outcome{}, err
	}
	image, err := p.orchestrator.TryOn(ctx, first, second, paramString(job.Params, "model"))
	if err != nil {
		return queue.Outcome{}, err
	}
	return queue.Outcome{Results: encodeResults([]genai.ImagePart{image})}, nil
}

func (p *Processor) swap(ctx context.Context, job queue.Job) (queue.Outcome, error) {
	first, second, err := decodePair(job.Inputs)
	if err != nil {
		return queue.Outcome{}, err
	}
	image, err := p.orchestrator.Swap(ctx, first, second, paramString(job.Params, "model"))
	if err != nil {
		return queue.Outcome{}, err
	}
	return queue.Outcome{Results: encodeResults([]genai.ImagePart{image})}, nil
}

func decodeInput(payload string) (genai.ImagePart, error) {
	data, mediaType, err := artifact.DecodeDataURL(payload)
	if err != nil {
		return genai.ImagePart{}, err
	}
	return genai.ImagePart{MIMEType: mediaType, Data: data}, nil
}

func decodePair(inputs []string) (genai.ImagePart, genai.ImagePart, error) {
	if len(inputs) != 2 {
		return genai.ImagePart{}, genai.ImagePart{}, fmt.Errorf("recipe needs exactly two inputs, got %d: %w", len(inputs), domain.ErrValidation)
	}
	first, err := decodeInput(inputs[0])
	if err != nil {
		return genai.ImagePart{}, genai.ImagePart{}, err
	}
	second, err := decodeInput(inputs[1])
	if err != nil {
		return genai.ImagePart{}, genai.ImagePart{}, err
	}
	return first, second, nil
}

func encodeResults(images []genai.ImagePart) []string {
	out := make([]string, 0, len(images))
	for _, img := range images {
		out = append(out, artifact.EncodeDataURL(img.MIMEType, img.Data))
	}
	return out
}

func paramString(params map[string]any, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

// paramInt tolerates the float64 shape JSON decoding produces.
func paramInt(params map[string]any, key string, fallback int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return fallback
}
