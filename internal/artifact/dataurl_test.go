package artifact

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"viba/internal/domain"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payload := EncodeDataURL("image/jpeg", []byte{0xff, 0xd8, 0xff})
	if !strings.HasPrefix(payload, "data:image/jpeg;base64,") {
		t.Fatalf("unexpected prefix: %q", payload)
	}

	data, mediaType, err := DecodeDataURL(payload)
	if err != nil {
		t.Fatalf("DecodeDataURL error: %v", err)
	}
	if mediaType != "image/jpeg" {
		t.Fatalf("mediaType = %q, want image/jpeg", mediaType)
	}
	if string(data) != string([]byte{0xff, 0xd8, 0xff}) {
		t.Fatalf("payload bytes mangled: %v", data)
	}
}

func TestDecodeBareBase64DefaultsToPNG(t *testing.T) {
	raw := []byte("hello")
	data, mediaType, err := DecodeDataURL(base64.StdEncoding.EncodeToString(raw))
	if err != nil {
		t.Fatalf("DecodeDataURL error: %v", err)
	}
	if mediaType != "image/png" {
		t.Fatalf("mediaType = %q, want image/png", mediaType)
	}
	if string(data) != "hello" {
		t.Fatalf("unexpected bytes: %q", data)
	}
}

func TestDecodeRejectsMalformedDataURL(t *testing.T) {
	_, _, err := DecodeDataURL("data:image/png,not-base64-marked")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDecodeRejectsInvalidBase64(t *testing.T) {
	if _, _, err := DecodeDataURL("data:image/png;base64,!!!"); err == nil {
		t.Fatalf("expected error for invalid base64")
	}
}

func TestEncodeEmptyMediaTypeDefaults(t *testing.T) {
	payload := EncodeDataURL("", []byte{1})
	if !strings.HasPrefix(payload, "data:image/png;base64,") {
		t.Fatalf("unexpected prefix: %q", payload)
	}
}
