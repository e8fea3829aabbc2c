package generate

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"viba/internal/artifact"
	"viba/internal/domain"
	"viba/internal/infra"
	"viba/internal/queue"
)

func testProcessor(service ImageService) *Processor {
	logger := zerolog.New(io.Discard)
	return NewProcessor(NewOrchestrator(service, infra.ModelConfig{}, logger), logger)
}

func inlineInput() string {
	return artifact.EncodeDataURL("image/png", []byte{1, 2, 3})
}

func TestProcessDerivationJob(t *testing.T) {
	service := &fakeService{describeText: longDescription}
	p := testProcessor(service)

	var stages []string
	outcome, err := p.Process(context.Background(), queue.Job{
		Type:   domain.GenerationTypeDerivation,
		Inputs: []string{inlineInput()},
		Params: map[string]any{"intensity": float64(8), "skinTone": "dark"},
	}, func(stage string) { stages = append(stages, stage) })
	if err != nil {
		t.Fatalf("Process error: %v", err)
	}
	if len(outcome.Results) != 4 {
		t.Fatalf("results = %d, want 4", len(outcome.Results))
	}
	for _, result := range outcome.Results {
		if !strings.HasPrefix(result, "data:image/png;base64,") {
			t.Fatalf("result not a data url: %q", result)
		}
	}
	if outcome.Description != longDescription {
		t.Fatalf("description not propagated: %q", outcome.Description)
	}
	if len(stages) == 0 {
		t.Fatalf("no progress reported")
	}
	for _, prompt := range service.prompts {
		if !strings.Contains(prompt, "Dark skin tone") || !strings.Contains(prompt, "8/10") {
			t.Fatalf("job params not threaded into prompt: %q", prompt)
		}
	}
}

func TestProcessCompositeJobs(t *testing.T) {
	for _, jobType := range []domain.GenerationType{domain.GenerationTypeTryOn, domain.GenerationTypeSwap} {
		p := testProcessor(&fakeService{})
		outcome, err := p.Process(context.Background(), queue.Job{
			Type:   jobType,
			Inputs: []string{inlineInput(), inlineInput()},
		}, func(string) {})
		if err != nil {
			t.Fatalf("%s: Process error: %v", jobType, err)
		}
		if len(outcome.Results) != 1 {
			t.Fatalf("%s: results = %d, want 1", jobType, len(outcome.Results))
		}
	}
}

func TestProcessAvatarJob(t *testing.T) {
	p := testProcessor(&fakeService{})
	outcome, err := p.Process(context.Background(), queue.Job{
		Type:   domain.GenerationTypeAvatar,
		Inputs: []string{inlineInput(), inlineInput()},
	}, func(string) {})
	if err != nil {
		t.Fatalf("Process error: %v", err)
	}
	if len(outcome.Results) != 1 {
		t.Fatalf("results = %d, want 1", len(outcome.Results))
	}
}

func TestProcessRejectsBadShapes(t *testing.T) {
	p := testProcessor(&fakeService{describeText: longDescription})

	cases := []queue.Job{
		{Type: "mystery", Inputs: []string{inlineInput()}},
		{Type: domain.GenerationTypeDerivation, Inputs: nil},
		{Type: domain.GenerationTypeTryOn, Inputs: []string{inlineInput()}},
		{Type: domain.GenerationTypeSwap, Inputs: []string{inlineInput(), inlineInput(), inlineInput()}},
	}
	for i, job := range cases {
		if _, err := p.Process(context.Background(), job, func(string) {}); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
}
