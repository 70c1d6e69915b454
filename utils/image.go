package utils

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	// Register decoders for the formats embedded in office documents.
	_ "image/gif"
	_ "image/jpeg"
)

// NormalizeToPNG decodes arbitrary image bytes, flattens any alpha or palette
// mode onto an opaque RGB surface, and writes the result as PNG to destPath.
// Extracted pictures always land on disk in one predictable encoding.
func NormalizeToPNG(data []byte, destPath string) error {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := src.Bounds()
	rgb := image.NewRGBA(bounds)
	// White backdrop so transparent regions don't turn black
	draw.Draw(rgb, bounds, image.White, image.Point{}, draw.Src)
	draw.Draw(rgb, bounds, src, bounds.Min, draw.Over)

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, rgb); err != nil {
		return fmt.Errorf("failed to encode png: %w", err)
	}

	return os.WriteFile(destPath, buf.Bytes(), 0644)
}

// IsValidImageType checks if the content type is an accepted upload type
func IsValidImageType(contentType string) bool {
	validTypes := []string{
		"image/jpeg",
		"image/jpg",
		"image/png",
		"image/gif",
		"image/bmp",
	}

	for _, validType := range validTypes {
		if strings.EqualFold(contentType, validType) {
			return true
		}
	}

	return false
}
