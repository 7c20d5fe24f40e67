package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "pdf-translator/internal/errors"
	"pdf-translator/internal/ocr"
	"pdf-translator/internal/render"
	"pdf-translator/internal/translate"
)

// memSource serves solid pages whose width encodes the page index.
type memSource struct {
	n       int
	failOn  map[int]error
	calls   atomic.Int32
	bgColor color.Color
}

func (s *memSource) PageCount() int { return s.n }

func (s *memSource) Page(ctx context.Context, index int) (*image.RGBA, error) {
	s.calls.Add(1)
	if err := s.failOn[index]; err != nil {
		return nil, err
	}
	bg := s.bgColor
	if bg == nil {
		bg = color.White
	}
	img := image.NewRGBA(image.Rect(0, 0, 20+index, 30))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: bg}, image.Point{}, draw.Src)
	return img, nil
}

// slowDetector sleeps a random time, tracks concurrency and fails on chosen widths.
type slowDetector struct {
	inFlight  atomic.Int32
	maxFlight atomic.Int32
	failWidth map[int]bool
	panicW    int
	regions   []ocr.TextRegion
}

func (d *slowDetector) Detect(ctx context.Context, img image.Image) ([]ocr.TextRegion, error) {
	n := d.inFlight.Add(1)
	defer d.inFlight.Add(-1)
	for {
		m := d.maxFlight.Load()
		if n <= m || d.maxFlight.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(time.Duration(rand.Intn(15)) * time.Millisecond)

	w := img.Bounds().Dx()
	if d.panicW != 0 && w == d.panicW {
		panic("detector bug")
	}
	if d.failWidth[w] {
		return nil, errors.New("model failure")
	}
	return d.regions, nil
}

type echoTranslator struct {
	mu    sync.Mutex
	texts []string
}

func (t *echoTranslator) Translate(ctx context.Context, text string) translate.Outcome {
	t.mu.Lock()
	t.texts = append(t.texts, text)
	t.mu.Unlock()
	if text == "fail" {
		return translate.Outcome{Text: text, Status: translate.StatusExhausted, Attempts: 3}
	}
	return translate.Outcome{Text: "<" + text + ">", Status: translate.StatusTranslated, Attempts: 1}
}

type recordingCompositor struct {
	mu    sync.Mutex
	calls []string
}

func (c *recordingCompositor) Composite(img *image.RGBA, region ocr.TextRegion, text string) *image.RGBA {
	c.mu.Lock()
	c.calls = append(c.calls, text)
	c.mu.Unlock()
	return img
}

func newTestPipeline(t *testing.T, det Detector, concurrency int) (*DocumentPipeline, *Scratch) {
	t.Helper()
	scratch, err := NewScratch(t.TempDir(), uuid.NewString())
	require.NoError(t, err)
	proc := NewPageProcessor(det, &echoTranslator{}, &recordingCompositor{}, scratch)
	return NewDocumentPipeline(proc, concurrency), scratch
}

func TestDocumentPipeline_OrderAndCount(t *testing.T) {
	for _, n := range []int{0, 1, 7, 23} {
		t.Run(fmt.Sprintf("%d pages", n), func(t *testing.T) {
			det := &slowDetector{}
			p, scratch := newTestPipeline(t, det, 4)

			pages, err := p.Run(context.Background(), &memSource{n: n})
			require.NoError(t, err)
			require.Len(t, pages, n)
			for i, page := range pages {
				assert.Equal(t, i, page.Index)
				assert.Equal(t, 20+i, page.Bounds.Dx(), "page %d carries its own raster", i)
				assert.Equal(t, scratch.ProcessedPagePath(i), page.Path)
				assert.FileExists(t, page.Path)
				assert.NoFileExists(t, scratch.TempPagePath(i))
			}
			assert.LessOrEqual(t, det.maxFlight.Load(), int32(4))
		})
	}
}

func TestDocumentPipeline_DefaultConcurrency(t *testing.T) {
	det := &slowDetector{}
	p, _ := newTestPipeline(t, det, 0)
	_, err := p.Run(context.Background(), &memSource{n: 20})
	require.NoError(t, err)
	assert.LessOrEqual(t, det.maxFlight.Load(), int32(DefaultConcurrency))
}

func TestDocumentPipeline_FailureIsolation(t *testing.T) {
	det := &slowDetector{failWidth: map[int]bool{22: true}, panicW: 25}
	p, _ := newTestPipeline(t, det, 3)

	var doneMu sync.Mutex
	var done []int
	p.OnPageDone(func(completed, total, index int, err error) {
		doneMu.Lock()
		defer doneMu.Unlock()
		assert.Equal(t, 8, total)
		done = append(done, index)
	})

	src := &memSource{n: 8, failOn: map[int]error{6: errors.New("corrupt page")}}
	pages, err := p.Run(context.Background(), src)
	assert.Nil(t, pages)

	var perr *PipelineError
	require.ErrorAs(t, err, &perr)
	require.Len(t, perr.Failures, 3)
	assert.Equal(t, 2, perr.Failures[0].Index)
	assert.Equal(t, apperrors.StageDetect, perr.Failures[0].Stage)
	assert.Equal(t, 5, perr.Failures[1].Index)
	assert.Equal(t, apperrors.StageInternal, perr.Failures[1].Stage)
	assert.Equal(t, 6, perr.Failures[2].Index)
	assert.Equal(t, apperrors.StageRasterize, perr.Failures[2].Stage)

	require.Len(t, perr.Completed, 5)
	for i, want := range []int{0, 1, 3, 4, 7} {
		assert.Equal(t, want, perr.Completed[i].Index)
	}
	assert.Len(t, done, 8, "every page reports completion")
	assert.EqualValues(t, 8, src.calls.Load())

	var pf *PageFailure
	assert.ErrorAs(t, err, &pf)
	assert.Contains(t, err.Error(), "3 of 8 pages failed")
}

func TestPageProcessor_SequentialRegions(t *testing.T) {
	scratch, err := NewScratch(t.TempDir(), "run")
	require.NoError(t, err)

	det := &slowDetector{regions: []ocr.TextRegion{
		{Text: "one", X: 1, Y: 1, W: 5, H: 5},
		{Text: "fail", X: 2, Y: 2, W: 5, H: 5},
		{Text: "  ", X: 3, Y: 3, W: 5, H: 5},
		{Text: "three", X: 4, Y: 4, W: 5, H: 5},
	}}
	tr := &echoTranslator{}
	comp := &recordingCompositor{}
	proc := NewPageProcessor(det, tr, comp, scratch)

	img, _ := (&memSource{n: 1}).Page(context.Background(), 0)
	page, err := proc.Process(context.Background(), img, 0)
	require.NoError(t, err)

	assert.Equal(t, []string{"one", "fail", "  ", "three"}, tr.texts)
	assert.Equal(t, []string{"<one>", "fail", "<  >", "<three>"}, comp.calls)
	assert.Equal(t, 4, page.Regions)
	assert.Equal(t, 1, page.Untranslated)
	assert.Equal(t, image.Rect(0, 0, 20, 30), page.Bounds)
}

func TestPageProcessor_CancelledContext(t *testing.T) {
	scratch, err := NewScratch(t.TempDir(), "run")
	require.NoError(t, err)
	det := &slowDetector{regions: []ocr.TextRegion{{Text: "x"}}}
	proc := NewPageProcessor(det, &echoTranslator{}, &recordingCompositor{}, scratch)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	img, _ := (&memSource{n: 1}).Page(ctx, 0)
	_, err = proc.Process(ctx, img, 0)

	var pf *PageFailure
	require.ErrorAs(t, err, &pf)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, scratch.TempPagePath(0))
}

// One page, one "Hello" region, translated to "Bonjour" and redrawn on white.
func TestPipeline_SinglePageScenario(t *testing.T) {
	scratch, err := NewScratch(t.TempDir(), "scenario")
	require.NoError(t, err)

	det := &slowDetector{regions: []ocr.TextRegion{{Text: "Hello", X: 10, Y: 10, W: 80, H: 20}}}
	svc := translate.ServiceFunc(func(ctx context.Context, text, source, target string) (string, error) {
		if text == "Hello" && source == "en" && target == "fr" {
			return "Bonjour", nil
		}
		return "", errors.New("unexpected input")
	})
	tr := translate.NewTranslator(svc, "en", "fr", translate.RetryPolicy{MaxAttempts: 3})
	comp := render.NewCompositor(render.NewFontLoader(t.TempDir(), nil), "fr")

	p := NewDocumentPipeline(NewPageProcessor(det, tr, comp, scratch), 5)
	pages, err := p.Run(context.Background(), sceneSource{})
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, 1, pages[0].Regions)
	assert.Equal(t, 0, pages[0].Untranslated)

	out, err := LoadPNG(pages[0].Path)
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 100, 40), out.Bounds(), "page keeps its pixel size")

	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	for _, pt := range []image.Point{{10, 10}, {90, 10}, {10, 30}, {90, 30}} {
		assert.Equal(t, white, out.RGBAAt(pt.X, pt.Y))
	}
	dark := 0
	for y := 10; y <= 30; y++ {
		for x := 10; x <= 90; x++ {
			if out.RGBAAt(x, y).R < 128 {
				dark++
			}
		}
	}
	assert.Greater(t, dark, 0, "translated text is drawn in black")
}

// sceneSource is a single 100x40 white page with a black line standing in for "Hello".
type sceneSource struct{}

func (sceneSource) PageCount() int { return 1 }

func (sceneSource) Page(ctx context.Context, index int) (*image.RGBA, error) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 40))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	for x := 20; x < 45; x++ {
		img.SetRGBA(x, 15, color.RGBA{A: 255})
	}
	return img, nil
}

func TestScratch(t *testing.T) {
	work := t.TempDir()
	s, err := NewScratch(work, "abc")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(work, "pdft-abc"), s.Dir())
	assert.Equal(t, filepath.Join(work, "pdft-abc", "temp_page_3.png"), s.TempPagePath(3))
	assert.Equal(t, filepath.Join(work, "pdft-abc", "processed_page_3.png"), s.ProcessedPagePath(3))

	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.SetRGBA(1, 2, color.RGBA{R: 9, G: 8, B: 7, A: 255})
	require.NoError(t, SavePNG(s.TempPagePath(0), img))

	back, err := LoadPNG(s.TempPagePath(0))
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), back.Bounds())
	assert.Equal(t, img.RGBAAt(1, 2), back.RGBAAt(1, 2))

	s.Remove(s.TempPagePath(0))
	s.Remove(s.TempPagePath(0)) // already gone, no panic
	assert.NoFileExists(t, s.TempPagePath(0))

	require.NoError(t, s.Cleanup())
	_, err = os.Stat(s.Dir())
	assert.True(t, os.IsNotExist(err))
}

func TestToRGBA(t *testing.T) {
	gray := image.NewGray(image.Rect(5, 5, 9, 8))
	gray.SetGray(5, 5, color.Gray{Y: 200})
	rgba := ToRGBA(gray)
	assert.Equal(t, image.Rect(0, 0, 4, 3), rgba.Bounds())
	assert.Equal(t, color.RGBA{R: 200, G: 200, B: 200, A: 255}, rgba.RGBAAt(0, 0))

	same := image.NewRGBA(image.Rect(0, 0, 2, 2))
	assert.Same(t, same, ToRGBA(same))
}
