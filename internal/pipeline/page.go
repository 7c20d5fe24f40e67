package pipeline

import (
	"context"
	"fmt"
	"image"

	apperrors "pdf-translator/internal/errors"
	"pdf-translator/internal/logger"
	"pdf-translator/internal/ocr"
	"pdf-translator/internal/translate"
)

// Detector finds text regions on a page.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]ocr.TextRegion, error)
}

// TextTranslator translates one region's text. Failures surface in the Outcome.
type TextTranslator interface {
	Translate(ctx context.Context, text string) translate.Outcome
}

// Compositor redraws one region on a page canvas in place.
type Compositor interface {
	Composite(img *image.RGBA, region ocr.TextRegion, text string) *image.RGBA
}

// RenderedPage is a finished page raster on disk.
type RenderedPage struct {
	Index        int
	Path         string
	Bounds       image.Rectangle
	Regions      int
	Untranslated int // regions whose translation was exhausted
}

// PageFailure describes why a page could not be rendered.
type PageFailure struct {
	Index int
	Stage apperrors.ErrorStage
	Err   error
}

func (f *PageFailure) Error() string {
	return fmt.Sprintf("page %d: %s: %v", f.Index, f.Stage, f.Err)
}

func (f *PageFailure) Unwrap() error {
	return f.Err
}

func failure(index int, stage apperrors.ErrorStage, err error) *PageFailure {
	return &PageFailure{Index: index, Stage: stage, Err: err}
}

// PageProcessor runs detect, translate and composite for a single page.
// It holds no per-page state and may be shared by workers.
type PageProcessor struct {
	detector   Detector
	translator TextTranslator
	compositor Compositor
	scratch    *Scratch
}

// NewPageProcessor wires the page stages together.
func NewPageProcessor(detector Detector, translator TextTranslator, compositor Compositor, scratch *Scratch) *PageProcessor {
	return &PageProcessor{
		detector:   detector,
		translator: translator,
		compositor: compositor,
		scratch:    scratch,
	}
}

// Process renders page index. The caller hands img over; it must not be used afterwards.
// Regions are handled sequentially in detector order on one canvas.
func (p *PageProcessor) Process(ctx context.Context, img *image.RGBA, index int) (RenderedPage, error) {
	log := logger.With(logger.Int("page", index))

	tempPath := p.scratch.TempPagePath(index)
	if err := SavePNG(tempPath, img); err != nil {
		return RenderedPage{}, failure(index, apperrors.StagePersist, err)
	}
	defer p.scratch.Remove(tempPath)

	canvas, err := LoadPNG(tempPath)
	if err != nil {
		return RenderedPage{}, failure(index, apperrors.StagePersist, err)
	}

	regions, err := p.detector.Detect(ctx, canvas)
	if err != nil {
		return RenderedPage{}, failure(index, apperrors.StageDetect, err)
	}
	log.Info("text regions detected", logger.Int("regions", len(regions)))

	untranslated := 0
	for _, region := range regions {
		if err := ctx.Err(); err != nil {
			return RenderedPage{}, failure(index, apperrors.StageTranslate, err)
		}
		out := p.translator.Translate(ctx, region.Text)
		if out.Status == translate.StatusExhausted {
			untranslated++
		}
		canvas = p.compositor.Composite(canvas, region, out.Text)
	}

	processedPath := p.scratch.ProcessedPagePath(index)
	if err := SavePNG(processedPath, canvas); err != nil {
		return RenderedPage{}, failure(index, apperrors.StagePersist, err)
	}

	log.Info("page processed",
		logger.Int("regions", len(regions)),
		logger.Int("untranslated", untranslated))
	return RenderedPage{
		Index:        index,
		Path:         processedPath,
		Bounds:       canvas.Bounds(),
		Regions:      len(regions),
		Untranslated: untranslated,
	}, nil
}
