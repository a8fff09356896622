// Package fingerprint includes tests for the SHA-256 fingerprinting helpers.
package fingerprint

import (
	"image"
	"image/color"
	"testing"
)

// TestHasherHashDeterministic ensures repeated hashing yields the same digest.
func TestHasherHashDeterministic(t *testing.T) {
	t.Parallel()

	h := New()
	got, err := h.Hash([]byte("hello world"))
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
	again, _ := h.Hash([]byte("hello world"))
	if again != got {
		t.Fatalf("expected deterministic hash, got %s vs %s", got, again)
	}
}

func TestRegionIgnoresLayout(t *testing.T) {
	t.Parallel()

	h := New()
	plain := image.NewRGBA(image.Rect(0, 0, 4, 3))
	plain.Set(1, 1, color.RGBA{R: 200, A: 255})

	// Same pixels, but as a sub-image with a non-zero origin.
	parent := image.NewRGBA(image.Rect(0, 0, 10, 10))
	parent.Set(3, 3, color.RGBA{R: 200, A: 255})
	sub := parent.SubImage(image.Rect(2, 2, 6, 5))

	a, err := h.Region(plain)
	if err != nil {
		t.Fatalf("Region(plain) error = %v", err)
	}
	b, err := h.Region(sub)
	if err != nil {
		t.Fatalf("Region(sub) error = %v", err)
	}
	if a != b {
		t.Fatalf("expected equal fingerprints, got %s vs %s", a, b)
	}
}

func TestRegionSensitiveToSinglePixel(t *testing.T) {
	t.Parallel()

	h := New()
	first := image.NewRGBA(image.Rect(0, 0, 8, 8))
	second := image.NewRGBA(image.Rect(0, 0, 8, 8))
	second.Set(7, 7, color.RGBA{B: 1, A: 255})

	a, _ := h.Region(first)
	b, _ := h.Region(second)
	if a == b {
		t.Fatal("expected single pixel difference to change the fingerprint")
	}
}

func TestRegionRejectsEmpty(t *testing.T) {
	t.Parallel()

	h := New()
	if _, err := h.Region(nil); err == nil {
		t.Fatal("expected error for nil image")
	}
	if _, err := h.Region(image.NewRGBA(image.Rect(0, 0, 0, 0))); err == nil {
		t.Fatal("expected error for empty image")
	}
}

func TestText(t *testing.T) {
	t.Parallel()

	h := New()
	if got := h.Text(""); got != "" {
		t.Fatalf("expected empty digest for empty text, got %q", got)
	}
	if got := h.Text("hello world"); got != "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9" {
		t.Fatalf("unexpected text digest %q", got)
	}
}
