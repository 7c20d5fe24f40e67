// Package ocr detects lines of text on a rasterized page and reports them as
// pixel-space regions.
package ocr

import (
	"context"
	"fmt"
	"image"
	"strings"

	"pdf-translator/internal/logger"
)

// TextRegion is one detected line of text in pixel coordinates of the page image.
type TextRegion struct {
	Text string `json:"text"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
	W    int    `json:"w"`
	H    int    `json:"h"`
}

// Geometry is a bounding box in relative page coordinates, each value in [0,1].
type Geometry struct {
	XMin float64 `json:"x_min"`
	YMin float64 `json:"y_min"`
	XMax float64 `json:"x_max"`
	YMax float64 `json:"y_max"`
}

// Word is a single recognized token.
type Word struct {
	Value      string   `json:"value"`
	Confidence float64  `json:"confidence"`
	Geometry   Geometry `json:"geometry"`
}

// Line groups the words of one text line.
type Line struct {
	Words    []Word   `json:"words"`
	Geometry Geometry `json:"geometry"`
}

// Block groups lines that the recognizer considers one layout block.
type Block struct {
	Lines []Line `json:"lines"`
}

// Page is the recognizer output for one image.
type Page struct {
	Blocks []Block `json:"blocks"`
}

// Recognizer runs an OCR model over an image.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image) (*Page, error)
}

// Detector turns recognizer output into TextRegions.
type Detector struct {
	recognizer Recognizer
}

// NewDetector creates a detector backed by recognizer.
func NewDetector(recognizer Recognizer) *Detector {
	return &Detector{recognizer: recognizer}
}

// Detect returns one region per recognized line, in the recognizer's block/line order.
// A line with no words yields a region with empty text.
func (d *Detector) Detect(ctx context.Context, img image.Image) ([]TextRegion, error) {
	if d.recognizer == nil {
		return nil, fmt.Errorf("no recognizer configured")
	}

	page, err := d.recognizer.Recognize(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("text recognition failed: %w", err)
	}
	if page == nil {
		return nil, nil
	}

	b := img.Bounds()
	width, height := float64(b.Dx()), float64(b.Dy())

	var regions []TextRegion
	for _, block := range page.Blocks {
		for _, line := range block.Lines {
			values := make([]string, len(line.Words))
			for i, w := range line.Words {
				values[i] = w.Value
			}
			g := line.Geometry
			regions = append(regions, TextRegion{
				Text: strings.Join(values, " "),
				X:    b.Min.X + int(g.XMin*width),
				Y:    b.Min.Y + int(g.YMin*height),
				W:    nonNegative(int((g.XMax - g.XMin) * width)),
				H:    nonNegative(int((g.YMax - g.YMin) * height)),
			})
		}
	}

	logger.Debug("text regions detected",
		logger.Int("regions", len(regions)),
		logger.Int("width", b.Dx()),
		logger.Int("height", b.Dy()))
	return regions, nil
}

func nonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
