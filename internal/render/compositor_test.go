package render

import (
	"image"
	"image/color"
	"image/draw"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/gobold"

	"pdf-translator/internal/ocr"
)

func filled(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}

func TestSampleBackground(t *testing.T) {
	region := ocr.TextRegion{X: 10, Y: 10, W: 80, H: 20}

	t.Run("majority wins", func(t *testing.T) {
		// grid points: x in {10,50,90}, y in {10,20,30}; make four of them black
		img := filled(100, 40, white)
		for _, p := range []image.Point{{10, 10}, {10, 20}, {50, 30}, {90, 20}} {
			img.SetRGBA(p.X, p.Y, black)
		}
		assert.Equal(t, white, SampleBackground(img, region))
	})

	t.Run("black majority", func(t *testing.T) {
		img := filled(100, 40, black)
		for _, p := range []image.Point{{10, 10}, {10, 20}, {50, 30}, {90, 20}} {
			img.SetRGBA(p.X, p.Y, white)
		}
		assert.Equal(t, black, SampleBackground(img, region))
	})

	t.Run("tie goes to first sampled", func(t *testing.T) {
		red := color.RGBA{R: 255, A: 255}
		blue := color.RGBA{B: 255, A: 255}
		img := filled(100, 40, blue)
		// scan order is column-major: (10,10) is sampled first
		img.SetRGBA(10, 10, red)
		img.SetRGBA(10, 20, red)
		img.SetRGBA(10, 30, red)
		img.SetRGBA(50, 10, red)
		img.SetRGBA(50, 20, color.RGBA{G: 255, A: 255})
		// red 4, blue 4, green 1
		assert.Equal(t, red, SampleBackground(img, region))
	})

	t.Run("out of bounds samples are discarded", func(t *testing.T) {
		gray := color.RGBA{R: 128, G: 128, B: 128, A: 255}
		img := filled(20, 20, gray)
		// only (15,15) is inside the 20x20 image
		assert.Equal(t, gray, SampleBackground(img, ocr.TextRegion{X: 15, Y: 15, W: 40, H: 40}))
	})

	t.Run("no valid samples defaults to white", func(t *testing.T) {
		img := filled(20, 20, black)
		assert.Equal(t, white, SampleBackground(img, ocr.TextRegion{X: 50, Y: 50, W: 10, H: 10}))
	})
}

func TestTextColor(t *testing.T) {
	tests := []struct {
		bg   color.RGBA
		want color.RGBA
	}{
		{white, black},
		{black, white},
		{color.RGBA{R: 128, G: 128, B: 127, A: 255}, black}, // 383 > 382
		{color.RGBA{R: 128, G: 127, B: 127, A: 255}, white}, // 382 is not above the threshold
		{color.RGBA{R: 10, G: 200, B: 10, A: 255}, white},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TextColor(tt.bg), "bg %v", tt.bg)
	}
}

func TestInitialFontSize(t *testing.T) {
	assert.Equal(t, 16, InitialFontSize(20))
	assert.Equal(t, 40, InitialFontSize(50))
	assert.Equal(t, 0, InitialFontSize(1))
	assert.Equal(t, 0, InitialFontSize(0))
}

func TestFitFontSize(t *testing.T) {
	t.Run("single correction pass", func(t *testing.T) {
		var sizes []int
		measure := func(size int) (float64, float64) {
			sizes = append(sizes, size)
			if size == 40 {
				return 150, 30
			}
			// still oversized after the shrink; no further iteration
			return 120, 20
		}

		size, w, h := FitFontSize(40, 100, measure)
		assert.Equal(t, 25, size) // floor(40 * 100/150 * 0.95)
		assert.Equal(t, []int{40, 25}, sizes)
		assert.Equal(t, 120.0, w)
		assert.Equal(t, 20.0, h)
	})

	t.Run("fitting text is measured once", func(t *testing.T) {
		calls := 0
		size, w, _ := FitFontSize(16, 80, func(int) (float64, float64) {
			calls++
			return 80, 12
		})
		assert.Equal(t, 16, size)
		assert.Equal(t, 80.0, w)
		assert.Equal(t, 1, calls)
	})
}

func TestFontTable(t *testing.T) {
	tests := []struct {
		lang string
		want string
	}{
		{"fr", "DejaVuSans.ttf"},
		{"hi", "NotoSansDevanagari-Regular.ttf"},
		{"zh", "NotoSansSC-Regular.ttf"},
		{"zh-Hans", "NotoSansSC-Regular.ttf"},
		{"en", "arial.ttf"},
		{"de", DefaultFontFile},
		{"", DefaultFontFile},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DefaultFontTable.FileFor(tt.lang), tt.lang)
	}
}

func TestFontLoader(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bold.ttf"), gobold.TTF, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.ttf"), []byte("not a font"), 0644))

	loader := NewFontLoader(dir, FontTable{"fr": "bold.ttf", "hi": "broken.ttf", "zh": "missing.ttf"})

	fr := loader.Font("fr")
	require.NotNil(t, fr)
	assert.NotSame(t, FallbackFont(), fr)
	assert.Same(t, fr, loader.Font("fr"), "fonts are cached")

	assert.Same(t, FallbackFont(), loader.Font("hi"), "unparsable file falls back")
	assert.Same(t, FallbackFont(), loader.Font("zh"), "missing file falls back")
	assert.Same(t, FallbackFont(), loader.Font("de"), "unmapped default file is absent too")

	face := loader.Face("fr", 0)
	require.NotNil(t, face)
	assert.Greater(t, face.Metrics().Height.Ceil(), 0)
}

func TestCompositeEndToEnd(t *testing.T) {
	// 100x40 white page with old black "text" away from the sample grid
	// and red markers just outside the region.
	img := filled(100, 40, white)
	red := color.RGBA{R: 255, A: 255}
	for x := 20; x < 45; x++ {
		img.SetRGBA(x, 15, black)
		img.SetRGBA(x, 25, black)
	}
	img.SetRGBA(9, 9, red)
	img.SetRGBA(91, 31, red)
	img.SetRGBA(91, 20, red)

	region := ocr.TextRegion{Text: "Hello", X: 10, Y: 10, W: 80, H: 20}
	c := NewCompositor(NewFontLoader(t.TempDir(), nil), "fr")
	out := c.Composite(img, region, "Bonjour")
	require.Same(t, img, out, "composite mutates in place")

	// inclusive rectangle corners are background
	for _, p := range []image.Point{{10, 10}, {90, 10}, {10, 30}, {90, 30}} {
		assert.Equal(t, white, img.RGBAAt(p.X, p.Y), "corner %v", p)
	}
	// outside the rectangle is untouched
	assert.Equal(t, red, img.RGBAAt(9, 9))
	assert.Equal(t, red, img.RGBAAt(91, 31))
	assert.Equal(t, red, img.RGBAAt(91, 20))

	// ink is dark, inside the region, and centered
	minX, minY, maxX, maxY := 1000, 1000, -1, -1
	for y := 0; y < 40; y++ {
		for x := 0; x < 100; x++ {
			p := img.RGBAAt(x, y)
			if p.R < 128 && p.G < 128 && p.B < 128 {
				minX, minY = min(minX, x), min(minY, y)
				maxX, maxY = max(maxX, x), max(maxY, y)
			}
		}
	}
	require.GreaterOrEqual(t, maxX, 0, "no text drawn")
	assert.GreaterOrEqual(t, minX, 10)
	assert.LessOrEqual(t, maxX, 90)
	assert.GreaterOrEqual(t, minY, 10)
	assert.LessOrEqual(t, maxY, 30)
	assert.InDelta(t, 50, float64(minX+maxX)/2, 2.5)
	assert.InDelta(t, 20, float64(minY+maxY)/2, 2.5)
}

func TestCompositeShrinksLongText(t *testing.T) {
	img := filled(200, 60, white)
	region := ocr.TextRegion{X: 10, Y: 10, W: 100, H: 40}
	NewCompositor(nil, "en").Composite(img, region, "Internationalization")

	minX, maxX := 1000, -1
	for y := 0; y < 60; y++ {
		for x := 0; x < 200; x++ {
			if img.RGBAAt(x, y).R < 200 {
				minX, maxX = min(minX, x), max(maxX, x)
			}
		}
	}
	require.Greater(t, maxX, 0, "no text drawn")
	assert.GreaterOrEqual(t, minX, 9)
	assert.LessOrEqual(t, maxX, 111, "shrunk text stays inside the region")
}

func TestCompositeDarkBackground(t *testing.T) {
	img := filled(60, 30, black)
	region := ocr.TextRegion{X: 5, Y: 5, W: 50, H: 20}
	NewCompositor(nil, "en").Composite(img, region, "Hi")

	light := 0
	for y := 5; y <= 25; y++ {
		for x := 5; x <= 55; x++ {
			if img.RGBAAt(x, y).R > 200 {
				light++
			}
		}
	}
	assert.Greater(t, light, 0, "text on a dark background is drawn white")
}

func TestCompositeEmptyTextOnlyErases(t *testing.T) {
	img := filled(40, 40, white)
	gray := color.RGBA{R: 90, G: 90, B: 90, A: 255}
	img.SetRGBA(12, 12, gray)

	NewCompositor(nil, "en").Composite(img, ocr.TextRegion{X: 10, Y: 10, W: 10, H: 10}, "")
	assert.Equal(t, white, img.RGBAAt(12, 12))
}
