package zip

import (
	"archive/zip"
	"bytes"
	"testing"
)

func TestArchiveDeduplicatesNames(t *testing.T) {
	data := Archive([]Asset{
		{Filename: "out.png", MIME: "image/png", Data: []byte{1}},
		{Filename: "out.png", MIME: "image/png", Data: []byte{2}},
		{Filename: "other.jpg", MIME: "image/jpeg", Data: []byte{3}},
	})

	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("invalid archive: %v", err)
	}
	if len(reader.File) != 3 {
		t.Fatalf("entries = %d, want 3", len(reader.File))
	}
	names := map[string]bool{}
	for _, f := range reader.File {
		names[f.Name] = true
	}
	for _, want := range []string{"out.png", "out-1.png", "other.jpg"} {
		if !names[want] {
			t.Fatalf("missing entry %q, have %v", want, names)
		}
	}
}
