package pdf

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"pdf-translator/internal/ocr"
	"pdf-translator/internal/pipeline"
)

// solidPage returns a w x h page filled with c.
func solidPage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}

// writeTestPDF builds an n-page PDF from solid PNG pages with pdfcpu.
func writeTestPDF(t *testing.T, dir string, n int) string {
	t.Helper()

	paths := make([]string, n)
	for i := 0; i < n; i++ {
		paths[i] = filepath.Join(dir, fmt.Sprintf("src_%d.png", i))
		require.NoError(t, pipeline.SavePNG(paths[i], solidPage(60+i, 80, color.White)))
	}
	out := filepath.Join(dir, "input.pdf")
	require.NoError(t, NewPDFCPUAssembler().Assemble(context.Background(), paths, out))
	return out
}

// memRasterizer serves in-memory pages whose width encodes the page index.
type memRasterizer struct {
	failOpen error
	failPage map[int]error
	opened   *memDocument
}

func (r *memRasterizer) Open(path string) (Document, error) {
	if r.failOpen != nil {
		return nil, r.failOpen
	}
	info, err := GetPDFInfo(path)
	if err != nil {
		return nil, err
	}
	r.opened = &memDocument{pages: info.PageCount, failPage: r.failPage}
	return r.opened, nil
}

type memDocument struct {
	pages    int
	failPage map[int]error

	mu     sync.Mutex
	closed bool
}

func (d *memDocument) PageCount() int { return d.pages }

func (d *memDocument) Page(ctx context.Context, index int) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := d.failPage[index]; err != nil {
		return nil, err
	}
	return memPage(index), nil
}

func (d *memDocument) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func memPage(index int) *image.RGBA {
	return solidPage(100+index, 40, color.RGBA{R: 230, G: 230, B: 230, A: 255})
}

// fixedDetector reports one region per page and fails pages by width.
type fixedDetector struct {
	failWidth map[int]error
	block     chan struct{}
}

func (d *fixedDetector) Detect(ctx context.Context, img image.Image) ([]ocr.TextRegion, error) {
	if d.block != nil {
		select {
		case <-d.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := d.failWidth[img.Bounds().Dx()]; err != nil {
		return nil, err
	}
	return []ocr.TextRegion{{Text: "hello", X: 10, Y: 10, W: 60, H: 20}}, nil
}

// recordingAssembler keeps decoded copies of the pages it was given.
type recordingAssembler struct {
	err    error
	pages  []*image.RGBA
	output string
}

func (a *recordingAssembler) Assemble(ctx context.Context, pagePaths []string, outputPath string) error {
	if a.err != nil {
		return a.err
	}
	for _, path := range pagePaths {
		img, err := pipeline.LoadPNG(path)
		if err != nil {
			return err
		}
		a.pages = append(a.pages, img)
	}
	a.output = outputPath
	return os.WriteFile(outputPath, []byte("%PDF-1.7 test"), 0644)
}
