package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"viba/internal/domain"
	"viba/internal/infra"
)

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client is a thin facade over the Gemini generateContent endpoint. It knows
// two call shapes: Describe, which sends an image and expects text back, and
// GenerateImage, which sends one or more images plus an instruction and
// expects an inline image part back. Retry, timeout, and quota handling live
// in Invoke, not here; each method is a single attempt.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

// ImagePart is a raw image payload exchanged with the generation service.
type ImagePart struct {
	MIMEType string
	Data     []byte
}

// ImageConfig carries the per-call image generation settings.
type ImageConfig struct {
	ImageSize   string
	AspectRatio string
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts,omitempty"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type geminiImageConfig struct {
	ImageSize   string `json:"imageSize,omitempty"`
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type geminiGenerationConfig struct {
	ImageConfig *geminiImageConfig `json:"imageConfig,omitempty"`
}

type geminiGenerateContentRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiGenerateContentResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
		Status  string `json:"status,omitempty"`
	} `json:"error"`
}

// NewClient constructs a Gemini client with sane defaults. Callers may provide
// a nil HTTP client; a reusable one without its own timeout is created so that
// per-attempt deadlines stay under Invoke's control.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("genai: api key is required")
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 0}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}

	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		httpClient: client,
		logger:     logger,
	}, nil
}

// Describe sends the image plus an analysis instruction and returns the
// concatenated text of the first candidate.
func (c *Client) Describe(ctx context.Context, model string, img ImagePart, instruction string) (string, error) {
	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{
			Role: "user",
			Parts: []geminiPart{
				inlinePart(img),
				{Text: instruction},
			},
		}},
	}

	var response geminiGenerateContentResponse
	if err := c.generateContent(ctx, model, payload, &response); err != nil {
		return "", err
	}

	var b strings.Builder
	for _, candidate := range response.Candidates {
		for _, part := range candidate.Content.Parts {
			b.WriteString(part.Text)
		}
		break
	}
	return b.String(), nil
}

// GenerateImage sends the reference images plus an instruction and returns the
// first inline image part of the response. A response carrying only text or a
// non-terminal finish reason is a content failure, not a transport failure.
func (c *Client) GenerateImage(ctx context.Context, model string, images []ImagePart, instruction string, cfg ImageConfig) (ImagePart, error) {
	parts := make([]geminiPart, 0, len(images)+1)
	for _, img := range images {
		parts = append(parts, inlinePart(img))
	}
	parts = append(parts, geminiPart{Text: instruction})

	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{Role: "user", Parts: parts}},
		SystemInstruction: &geminiContent{
			Parts: []geminiPart{{Text: "Image aspect ratio " + cfg.AspectRatio}},
		},
		GenerationConfig: &geminiGenerationConfig{
			ImageConfig: &geminiImageConfig{
				ImageSize:   cfg.ImageSize,
				AspectRatio: cfg.AspectRatio,
			},
		},
	}

	var response geminiGenerateContentResponse
	if err := c.generateContent(ctx, model, payload, &response); err != nil {
		return ImagePart{}, err
	}

	finishReason := ""
	for _, candidate := range response.Candidates {
		if candidate.FinishReason != "" {
			finishReason = candidate.FinishReason
		}
		for _, part := range candidate.Content.Parts {
			if part.InlineData == nil || part.InlineData.Data == "" {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return ImagePart{}, fmt.Errorf("decode inline data: %w", err)
			}
			mime := part.InlineData.MimeType
			if mime == "" {
				mime = "image/png"
			}
			return ImagePart{MIMEType: mime, Data: data}, nil
		}
	}

	if finishReason != "" && finishReason != "STOP" {
		return ImagePart{}, fmt.Errorf("finish reason %s: %w", finishReason, domain.ErrContentPolicy)
	}
	return ImagePart{}, domain.ErrContentPolicy
}

func (c *Client) generateContent(ctx context.Context, model string, payload geminiGenerateContentRequest, out *geminiGenerateContentResponse) error {
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(model))
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	q := req.URL.Query()
	q.Set("key", c.apiKey)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("invoke gemini: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("model", model).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("genai: generateContent")

	if resp.StatusCode >= http.StatusBadRequest {
		return c.statusError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gemini response: %w", err)
	}
	return nil
}

func (c *Client) statusError(resp *http.Response) error {
	var apiErr geminiErrorResponse
	data, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error.Message != "" {
		base := fmt.Errorf("gemini status %d: %s", resp.StatusCode, apiErr.Error.Message)
		if resp.StatusCode == http.StatusTooManyRequests || apiErr.Error.Status == "RESOURCE_EXHAUSTED" {
			return fmt.Errorf("%s: %w", base, domain.ErrQuotaExceeded)
		}
		return base
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("gemini status %d: %w", resp.StatusCode, domain.ErrQuotaExceeded)
	}
	if len(data) > 0 {
		return fmt.Errorf("gemini status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return fmt.Errorf("gemini status %d", resp.StatusCode)
}

func inlinePart(img ImagePart) geminiPart {
	return geminiPart{InlineData: &geminiInlineData{
		MimeType: img.MIMEType,
		Data:     base64.StdEncoding.EncodeToString(img.Data),
	}}
}
