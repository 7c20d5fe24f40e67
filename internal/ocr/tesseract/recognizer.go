// Package tesseract recognizes page text with the Tesseract engine through cgo.
// It is kept apart from package ocr so code that only needs text regions
// builds without the tesseract and leptonica headers.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"pdf-translator/internal/ocr"
)

// client is the part of *gosseract.Client the recognizer uses.
type client interface {
	SetImageFromBytes(data []byte) error
	SetLanguage(langs ...string) error
	SetVariable(key gosseract.SettableVariable, value string) error
	GetBoundingBoxesVerbose() ([]gosseract.BoundingBox, error)
	Close() error
}

// Recognizer implements ocr.Recognizer with the gosseract client.
// A fresh client is created per call so the recognizer is safe for concurrent pages.
type Recognizer struct {
	newClient func() client
	languages []string
	dpi       int
}

// NewRecognizer constructs a Tesseract-backed recognizer.
func NewRecognizer(languages []string, dpi int) *Recognizer {
	return &Recognizer{
		newClient: func() client { return gosseract.NewClient() },
		languages: languages,
		dpi:       dpi,
	}
}

// Recognize performs word-level OCR and groups the words into lines.
func (r *Recognizer) Recognize(ctx context.Context, img image.Image) (*ocr.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}

	c := r.newClient()
	defer c.Close()

	if err := c.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}
	if len(r.languages) > 0 {
		if err := c.SetLanguage(r.languages...); err != nil {
			return nil, fmt.Errorf("set languages: %w", err)
		}
	}
	if r.dpi > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), fmt.Sprint(r.dpi)); err != nil {
			return nil, fmt.Errorf("set dpi: %w", err)
		}
	}

	// GetBoundingBoxes 不填 BlockNum/ParNum/LineNum，分行必须用 Verbose 版本
	boxes, err := c.GetBoundingBoxesVerbose()
	if err != nil {
		return nil, fmt.Errorf("recognize words: %w", err)
	}

	b := img.Bounds()
	return groupWords(boxes, b.Dx(), b.Dy()), nil
}

type lineKey struct{ block, par, line int }

// groupWords builds blocks and lines from word boxes, keeping first-seen order.
// Box coordinates are made relative to the image size.
func groupWords(boxes []gosseract.BoundingBox, width, height int) *ocr.Page {
	page := &ocr.Page{}
	if width <= 0 || height <= 0 {
		return page
	}

	blockIdx := make(map[int]int)
	lineIdx := make(map[lineKey]int)
	w, h := float64(width), float64(height)

	for _, box := range boxes {
		value := strings.TrimSpace(box.Word)
		if value == "" {
			continue
		}
		word := ocr.Word{
			Value:      value,
			Confidence: box.Confidence / 100.0,
			Geometry: ocr.Geometry{
				XMin: float64(box.Box.Min.X) / w,
				YMin: float64(box.Box.Min.Y) / h,
				XMax: float64(box.Box.Max.X) / w,
				YMax: float64(box.Box.Max.Y) / h,
			},
		}

		bi, ok := blockIdx[box.BlockNum]
		if !ok {
			bi = len(page.Blocks)
			blockIdx[box.BlockNum] = bi
			page.Blocks = append(page.Blocks, ocr.Block{})
		}
		block := &page.Blocks[bi]

		key := lineKey{box.BlockNum, box.ParNum, box.LineNum}
		li, ok := lineIdx[key]
		if !ok {
			li = len(block.Lines)
			lineIdx[key] = li
			block.Lines = append(block.Lines, ocr.Line{Geometry: word.Geometry})
		}
		line := &block.Lines[li]
		line.Words = append(line.Words, word)
		line.Geometry = union(line.Geometry, word.Geometry)
	}
	return page
}

func union(a, b ocr.Geometry) ocr.Geometry {
	return ocr.Geometry{
		XMin: min(a.XMin, b.XMin),
		YMin: min(a.YMin, b.YMin),
		XMax: max(a.XMax, b.XMax),
		YMax: max(a.YMax, b.YMax),
	}
}
