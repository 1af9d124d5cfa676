package document

import (
	"errors"
	"strings"
	"testing"
)

func TestExtractText(t *testing.T) {
	got, err := Extract("notes/Lecture.TXT", []byte("Photosynthesis converts light."))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.Kind != KindText || got.Name != "Lecture.TXT" {
		t.Fatalf("unexpected metadata %+v", got)
	}
	if got.Text != "Photosynthesis converts light." {
		t.Fatalf("unexpected text %q", got.Text)
	}
}

func TestExtractRejectsUnsupported(t *testing.T) {
	if _, err := Extract("slides.pptx", []byte("x")); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
	if _, err := Extract("noext", []byte("x")); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType for missing extension, got %v", err)
	}
}

func TestExtractEmpty(t *testing.T) {
	if _, err := Extract("a.txt", nil); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestExtractInvalidPDF(t *testing.T) {
	if _, err := Extract("broken.pdf", []byte("definitely not a pdf")); err == nil {
		t.Fatalf("expected error for invalid pdf")
	}
}

func TestExtractInvalidUTF8(t *testing.T) {
	got, err := Extract("a.txt", []byte{'o', 'k', 0xff})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.Text != "ok�" {
		t.Fatalf("unexpected text %q", got.Text)
	}
}

func TestPreview(t *testing.T) {
	if got := Preview("  one\ttwo\n\nthree ", 5); got != "one two three" {
		t.Fatalf("unexpected short preview %q", got)
	}
	if got := Preview("a b c", 3); got != "a b c..." {
		t.Fatalf("expected ellipsis when exactly n words, got %q", got)
	}
	long := strings.Repeat("word ", 150)
	got := Preview(long, 0)
	if n := len(strings.Fields(strings.TrimSuffix(got, "..."))); n != DefaultPreviewWords {
		t.Fatalf("expected %d words, got %d", DefaultPreviewWords, n)
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("expected ellipsis, got %q", got[len(got)-10:])
	}
}
