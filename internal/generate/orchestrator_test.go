package generate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"viba/internal/domain"
	"viba/internal/genai"
	"viba/internal/infra"
)

const longDescription = "A portrait of a person standing in soft window light, shot on film with muted tones."

type fakeService struct {
	mu sync.Mutex

	describeText  string
	describeErrs  []error
	describeCalls int

	generateCalls  int32
	generateModels []string
	generateSizes  []string
	prompts        []string
	generate       func(call int) (genai.ImagePart, error)
}

func (f *fakeService) Describe(ctx context.Context, model string, img genai.ImagePart, instruction string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.describeCalls++
	if len(f.describeErrs) > 0 {
		err := f.describeErrs[0]
		f.describeErrs = f.describeErrs[1:]
		return "", err
	}
	return f.describeText, nil
}

func (f *fakeService) GenerateImage(ctx context.Context, model string, images []genai.ImagePart, instruction string, cfg genai.ImageConfig) (genai.ImagePart, error) {
	call := int(atomic.AddInt32(&f.generateCalls, 1)) - 1
	f.mu.Lock()
	f.generateModels = append(f.generateModels, model)
	f.generateSizes = append(f.generateSizes, cfg.ImageSize)
	f.prompts = append(f.prompts, instruction)
	f.mu.Unlock()
	if f.generate != nil {
		return f.generate(call)
	}
	return genai.ImagePart{MIMEType: "image/png", Data: []byte{byte(call)}}, nil
}

func testOrchestrator(service ImageService) *Orchestrator {
	return NewOrchestrator(service, infra.ModelConfig{}, zerolog.New(io.Discard))
}

// TestMain shrinks retry backoff so failure-path tests finish quickly.
func TestMain(m *testing.M) {
	for _, p := range []*genai.RetryPolicy{&describePolicy, &derivePolicy, &compositePolicy} {
		p.BackoffBase = time.Millisecond
		p.BackoffCap = 4 * time.Millisecond
	}
	os.Exit(m.Run())
}

func deriveReq() DeriveRequest {
	return DeriveRequest{
		Image:     genai.ImagePart{MIMEType: "image/png", Data: []byte{1}},
		Intensity: 7,
	}
}

func TestDeriveVariantsHappyPath(t *testing.T) {
	service := &fakeService{describeText: longDescription}
	o := testOrchestrator(service)

	var stages []string
	result, err := o.DeriveVariants(context.Background(), deriveReq(), func(stage string) {
		stages = append(stages, stage)
	})
	if err != nil {
		t.Fatalf("DeriveVariants error: %v", err)
	}
	if len(result.Images) != 4 {
		t.Fatalf("images = %d, want 4", len(result.Images))
	}
	if result.Description != longDescription {
		t.Fatalf("description not propagated: %q", result.Description)
	}
	if len(stages) != 2 || stages[0] != "analyzing" || stages[1] != "generating" {
		t.Fatalf("unexpected stages: %v", stages)
	}
	if service.describeCalls != 1 {
		t.Fatalf("describe calls = %d, want 1", service.describeCalls)
	}
	for _, size := range service.generateSizes {
		if size != "1K" {
			t.Fatalf("variant image size = %q, want 1K", size)
		}
	}
	for _, prompt := range service.prompts {
		if !strings.Contains(prompt, longDescription) || !strings.Contains(prompt, "7/10") {
			t.Fatalf("instruction missing description or intensity: %q", prompt)
		}
	}
}

func TestDeriveVariantsPartialSuccess(t *testing.T) {
	service := &fakeService{
		describeText: longDescription,
		generate: func(call int) (genai.ImagePart, error) {
			if call%2 == 0 {
				return genai.ImagePart{}, domain.ErrContentPolicy
			}
			return genai.ImagePart{MIMEType: "image/png", Data: []byte{byte(call)}}, nil
		},
	}
	o := testOrchestrator(service)

	result, err := o.DeriveVariants(context.Background(), deriveReq(), nil)
	if err != nil {
		t.Fatalf("expected partial success, got %v", err)
	}
	if len(result.Images) < 1 || len(result.Images) > 3 {
		t.Fatalf("surviving images = %d, want between 1 and 3", len(result.Images))
	}
}

func TestDeriveVariantsAllFailSurfacesError(t *testing.T) {
	service := &fakeService{
		describeText: longDescription,
		generate: func(call int) (genai.ImagePart, error) {
			return genai.ImagePart{}, fmt.Errorf("variant exploded: %w", domain.ErrContentPolicy)
		},
	}
	o := testOrchestrator(service)

	_, err := o.DeriveVariants(context.Background(), deriveReq(), nil)
	if !errors.Is(err, domain.ErrContentPolicy) {
		t.Fatalf("expected surfaced variant error, got %v", err)
	}
}

func TestDeriveVariantsRetriesShortDescription(t *testing.T) {
	service := &fakeService{describeText: "meh"}
	o := testOrchestrator(service)

	_, err := o.DeriveVariants(context.Background(), deriveReq(), nil)
	if err == nil || !strings.Contains(err.Error(), "description too short") {
		t.Fatalf("expected short description failure, got %v", err)
	}
	if service.describeCalls != 3 {
		t.Fatalf("describe calls = %d, want retries+1 = 3", service.describeCalls)
	}
}

func TestDeriveVariantsValidation(t *testing.T) {
	o := testOrchestrator(&fakeService{describeText: longDescription})

	cases := []DeriveRequest{
		{Intensity: 5},
		{Image: genai.ImagePart{Data: []byte{1}}, Intensity: 0},
		{Image: genai.ImagePart{Data: []byte{1}}, Intensity: 11},
		{Image: genai.ImagePart{Data: []byte{1}}, Intensity: 5, SkinTone: "green"},
	}
	for i, req := range cases {
		if _, err := o.DeriveVariants(context.Background(), req, nil); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestDeriveVariantsQuotaAbortsFanOut(t *testing.T) {
	service := &fakeService{
		describeText: longDescription,
		generate: func(call int) (genai.ImagePart, error) {
			return genai.ImagePart{}, domain.ErrQuotaExceeded
		},
	}
	o := testOrchestrator(service)

	_, err := o.DeriveVariants(context.Background(), deriveReq(), nil)
	if !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("expected quota error, got %v", err)
	}
	if calls := atomic.LoadInt32(&service.generateCalls); calls != 4 {
		t.Fatalf("generate calls = %d, want one per variant with no retries", calls)
	}
}

func TestAvatarValidatesReferenceCount(t *testing.T) {
	o := testOrchestrator(&fakeService{})

	if _, err := o.Avatar(context.Background(), nil, ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for zero refs, got %v", err)
	}
	refs := make([]genai.ImagePart, 4)
	for i := range refs {
		refs[i] = genai.ImagePart{Data: []byte{1}}
	}
	if _, err := o.Avatar(context.Background(), refs, ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for four refs, got %v", err)
	}
}

func TestAvatarUsesConfiguredSizeAndModel(t *testing.T) {
	service := &fakeService{}
	o := testOrchestrator(service)

	img, err := o.Avatar(context.Background(), []genai.ImagePart{{Data: []byte{1}}}, "")
	if err != nil {
		t.Fatalf("Avatar error: %v", err)
	}
	if len(img.Data) == 0 && img.MIMEType == "" {
		t.Fatalf("empty avatar result")
	}
	if service.generateSizes[0] != "4K" {
		t.Fatalf("avatar size = %q, want 4K", service.generateSizes[0])
	}
	if service.generateModels[0] != infra.DefaultImageModel {
		t.Fatalf("avatar model = %q, want default image model", service.generateModels[0])
	}
}

func TestCompositeRecipesUse2K(t *testing.T) {
	service := &fakeService{}
	o := testOrchestrator(service)
	img := genai.ImagePart{Data: []byte{1}}

	if _, err := o.TryOn(context.Background(), img, img, ""); err != nil {
		t.Fatalf("TryOn error: %v", err)
	}
	if _, err := o.Swap(context.Background(), img, img, ""); err != nil {
		t.Fatalf("Swap error: %v", err)
	}
	for i, size := range service.generateSizes {
		if size != "2K" {
			t.Fatalf("composite call %d size = %q, want 2K", i, size)
		}
	}
}

func TestModelOverrideMapsLegacyIdentifier(t *testing.T) {
	service := &fakeService{}
	o := testOrchestrator(service)
	img := genai.ImagePart{Data: []byte{1}}

	if _, err := o.Swap(context.Background(), img, img, "gemini-2.0-flash-exp"); err != nil {
		t.Fatalf("Swap error: %v", err)
	}
	if service.generateModels[0] != infra.DefaultImageModel {
		t.Fatalf("legacy model not canonicalized: %q", service.generateModels[0])
	}
}
