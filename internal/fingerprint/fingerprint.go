// Package fingerprint derives the SHA-256 digests used as change-detection keys.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/draw"
)

// Hasher computes hex SHA-256 digests of raw bytes, region pixels and text.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Region hashes the raw RGBA pixel bytes of img, row by row from the top-left
// corner. Two images with identical pixels hash identically regardless of
// their in-memory layout or bounds offset.
func (h *Hasher) Region(img image.Image) (string, error) {
	if img == nil {
		return "", fmt.Errorf("region image is nil")
	}
	rgba := toRGBA(img)
	if rgba.Rect.Empty() {
		return "", fmt.Errorf("region image is empty")
	}
	return h.Hash(rgba.Pix)
}

// Text hashes the UTF-8 bytes of s. Empty input yields an empty digest.
func (h *Hasher) Text(s string) string {
	if s == "" {
		return ""
	}
	digest, _ := h.Hash([]byte(s))
	return digest
}

func toRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	if rgba, ok := img.(*image.RGBA); ok && b.Min == (image.Point{}) && rgba.Stride == 4*b.Dx() {
		return rgba
	}
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Rect, img, b.Min, draw.Src)
	return out
}
