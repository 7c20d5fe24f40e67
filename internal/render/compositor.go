package render

import (
	"image"
	"image/color"
	"math"

	"github.com/fogleman/gg"
	"golang.org/x/image/font"

	"pdf-translator/internal/logger"
	"pdf-translator/internal/ocr"
)

const (
	// fontHeightRatio estimates the font size from the region height
	fontHeightRatio = 0.8
	// shrinkMargin leaves a little room after the proportional shrink
	shrinkMargin = 0.95
	// contrastThreshold is the R+G+B midpoint above which text is drawn black
	contrastThreshold = 382
)

var (
	white = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	black = color.RGBA{A: 255}
)

// SampleBackground returns the most frequent color on a 3x3 grid spanning the
// region. Grid points outside the image are skipped; ties go to the first color
// seen; with no valid samples the result is white.
func SampleBackground(img image.Image, r ocr.TextRegion) color.RGBA {
	bounds := img.Bounds()
	counts := make(map[color.RGBA]int, 9)
	var order []color.RGBA

	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			p := image.Pt(r.X+r.W*i/2, r.Y+r.H*j/2)
			if !p.In(bounds) {
				continue
			}
			c := color.RGBAModel.Convert(img.At(p.X, p.Y)).(color.RGBA)
			if counts[c] == 0 {
				order = append(order, c)
			}
			counts[c]++
		}
	}

	if len(order) == 0 {
		return white
	}
	best := order[0]
	for _, c := range order[1:] {
		if counts[c] > counts[best] {
			best = c
		}
	}
	return best
}

// TextColor picks black on light backgrounds and white on dark ones.
func TextColor(bg color.RGBA) color.RGBA {
	if int(bg.R)+int(bg.G)+int(bg.B) > contrastThreshold {
		return black
	}
	return white
}

// InitialFontSize estimates the font size from the region height.
func InitialFontSize(h int) int {
	return int(math.Floor(float64(h) * fontHeightRatio))
}

// MeasureFunc measures text rendered at size, returning its width and height in pixels.
type MeasureFunc func(size int) (w, h float64)

// FitFontSize shrinks size once when the measured width exceeds regionWidth:
// newSize = floor(size * regionWidth/measured * 0.95), then measures again.
// It does not iterate further. The returned width and height belong to the final size.
func FitFontSize(size, regionWidth int, measure MeasureFunc) (int, float64, float64) {
	w, h := measure(size)
	if w > float64(regionWidth) {
		size = int(math.Floor(float64(size) * (float64(regionWidth) / w) * shrinkMargin))
		w, h = measure(size)
	}
	return size, w, h
}

// inkBounds returns the ink box of text drawn with its origin at (0,0).
func inkBounds(face font.Face, text string) (minX, minY, w, h float64) {
	b, _ := font.BoundString(face, text)
	minX = float64(b.Min.X) / 64
	minY = float64(b.Min.Y) / 64
	w = float64(b.Max.X-b.Min.X) / 64
	h = float64(b.Max.Y-b.Min.Y) / 64
	return
}

// Compositor erases regions and draws translated text in their place.
type Compositor struct {
	fonts    *FontLoader
	language string
}

// NewCompositor creates a compositor that renders text for the target language.
func NewCompositor(fonts *FontLoader, targetLanguage string) *Compositor {
	if fonts == nil {
		fonts = NewFontLoader("", nil)
	}
	return &Compositor{fonts: fonts, language: targetLanguage}
}

// Composite replaces region in img with text and returns img.
// The region rectangle is filled inclusively, [x, x+w] by [y, y+h], clipped to img.
// The text is centered by its ink box and drawn in the contrast color.
func (c *Compositor) Composite(img *image.RGBA, region ocr.TextRegion, text string) *image.RGBA {
	bg := SampleBackground(img, region)

	size := InitialFontSize(region.H)
	size, textW, textH := FitFontSize(size, region.W, func(s int) (float64, float64) {
		_, _, w, h := inkBounds(c.fonts.Face(c.language, s), text)
		return w, h
	})

	dc := gg.NewContextForRGBA(img)
	dc.SetColor(bg)
	dc.DrawRectangle(float64(region.X), float64(region.Y), float64(region.W+1), float64(region.H+1))
	dc.Fill()

	if size < 1 || text == "" {
		return img
	}

	face := c.fonts.Face(c.language, size)
	minX, minY, _, _ := inkBounds(face, text)
	left := float64(region.X) + (float64(region.W)-textW)/2
	top := float64(region.Y) + (float64(region.H)-textH)/2

	dc.SetFontFace(face)
	dc.SetColor(TextColor(bg))
	dc.DrawString(text, left-minX, top-minY)

	logger.Debug("region composited",
		logger.Int("x", region.X),
		logger.Int("y", region.Y),
		logger.Int("fontSize", size),
		logger.Any("background", bg))
	return img
}
