// Package pipeline runs the per-page translate-and-redraw work across a
// document and collects the finished pages in order.
package pipeline

import (
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"

	"pdf-translator/internal/logger"
)

// Scratch is a per-run directory for intermediate page rasters.
type Scratch struct {
	dir string
}

// NewScratch creates <workDir>/pdft-<runID>. An empty workDir uses the system temp dir.
func NewScratch(workDir, runID string) (*Scratch, error) {
	if workDir == "" {
		workDir = os.TempDir()
	}
	dir := filepath.Join(workDir, "pdft-"+runID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	return &Scratch{dir: dir}, nil
}

// Dir returns the scratch directory.
func (s *Scratch) Dir() string {
	return s.dir
}

// TempPagePath is where a page raster is parked before processing.
func (s *Scratch) TempPagePath(index int) string {
	return filepath.Join(s.dir, fmt.Sprintf("temp_page_%d.png", index))
}

// ProcessedPagePath is where a finished page raster is written.
func (s *Scratch) ProcessedPagePath(index int) string {
	return filepath.Join(s.dir, fmt.Sprintf("processed_page_%d.png", index))
}

// Remove deletes a scratch file, logging failures.
func (s *Scratch) Remove(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to remove scratch file", logger.String("path", path), logger.Err(err))
	}
}

// Cleanup removes the scratch directory and everything in it.
func (s *Scratch) Cleanup() error {
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("failed to remove scratch directory: %w", err)
	}
	return nil
}

// SavePNG writes img to path.
func SavePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

// LoadPNG reads path into a new RGBA canvas.
func LoadPNG(path string) (*image.RGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return ToRGBA(img), nil
}

// ToRGBA returns img as *image.RGBA with its origin at (0,0), copying when needed.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}
