package pipeline

import (
	"context"
	"fmt"
	"image"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	apperrors "pdf-translator/internal/errors"
	"pdf-translator/internal/logger"
)

// DefaultConcurrency is the default number of pages processed at once.
const DefaultConcurrency = 5

// PageSource yields page rasters by index. Page may be called from several goroutines.
type PageSource interface {
	PageCount() int
	Page(ctx context.Context, index int) (*image.RGBA, error)
}

// PageDoneFunc is called after each page finishes, successfully or not.
type PageDoneFunc func(completed, total, index int, err error)

// PipelineError reports the pages that failed. Completed pages are kept so a
// caller can still use or report them; their Path is only valid while the
// scratch directory that produced it exists.
type PipelineError struct {
	Failures  []*PageFailure
	Completed []RenderedPage
}

func (e *PipelineError) Error() string {
	pages := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		pages[i] = fmt.Sprint(f.Index)
	}
	msg := fmt.Sprintf("%d of %d pages failed (pages %s)",
		len(e.Failures), len(e.Failures)+len(e.Completed), strings.Join(pages, ", "))
	if len(e.Failures) > 0 {
		msg += ": " + e.Failures[0].Error()
	}
	return msg
}

// Unwrap exposes every page failure to errors.Is / errors.As.
func (e *PipelineError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// collector gathers page results keyed by index from concurrent workers.
type collector struct {
	mu       sync.Mutex
	pages    map[int]RenderedPage
	failures map[int]*PageFailure
}

func newCollector(n int) *collector {
	return &collector{
		pages:    make(map[int]RenderedPage, n),
		failures: make(map[int]*PageFailure),
	}
}

// add stores one result and returns how many pages have reported so far.
func (c *collector) add(index int, page RenderedPage, f *PageFailure) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f != nil {
		c.failures[index] = f
	} else {
		c.pages[index] = page
	}
	return len(c.pages) + len(c.failures)
}

// ordered returns the results sorted by page index. It must be called after all workers finish.
func (c *collector) ordered() ([]RenderedPage, []*PageFailure) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pages := make([]RenderedPage, 0, len(c.pages))
	for _, p := range c.pages {
		pages = append(pages, p)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Index < pages[j].Index })

	failures := make([]*PageFailure, 0, len(c.failures))
	for _, f := range c.failures {
		failures = append(failures, f)
	}
	sort.Slice(failures, func(i, j int) bool { return failures[i].Index < failures[j].Index })
	return pages, failures
}

// DocumentPipeline fans pages out to a bounded pool of PageProcessor workers.
type DocumentPipeline struct {
	processor   *PageProcessor
	concurrency int
	onPageDone  PageDoneFunc
}

// NewDocumentPipeline creates a pipeline running at most concurrency pages at once.
func NewDocumentPipeline(processor *PageProcessor, concurrency int) *DocumentPipeline {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	return &DocumentPipeline{processor: processor, concurrency: concurrency}
}

// OnPageDone registers a progress callback.
func (d *DocumentPipeline) OnPageDone(fn PageDoneFunc) {
	d.onPageDone = fn
}

// Run processes every page of src and returns the rendered pages in index order.
// A page failure does not stop other pages. If any page failed the returned
// error is a *PipelineError holding both the failures and the completed pages.
func (d *DocumentPipeline) Run(ctx context.Context, src PageSource) ([]RenderedPage, error) {
	total := src.PageCount()
	results := newCollector(total)

	logger.Info("document pipeline started",
		logger.Int("pages", total),
		logger.Int("concurrency", d.concurrency))

	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i := 0; i < total; i++ {
		index := i
		g.Go(func() error {
			page, f := d.runPage(ctx, src, index)
			done := results.add(index, page, f)
			if f != nil {
				logger.Error("page failed", f.Err,
					logger.Int("page", index),
					logger.String("stage", string(f.Stage)))
			}
			if d.onPageDone != nil {
				var err error
				if f != nil {
					err = f
				}
				d.onPageDone(done, total, index, err)
			}
			return nil
		})
	}
	// Barrier: no result is reordered until every page has reported.
	_ = g.Wait()

	pages, failures := results.ordered()
	if len(pages)+len(failures) != total {
		return nil, fmt.Errorf("pipeline collected %d results for %d pages", len(pages)+len(failures), total)
	}
	if len(failures) > 0 {
		return nil, &PipelineError{Failures: failures, Completed: pages}
	}

	logger.Info("document pipeline finished", logger.Int("pages", len(pages)))
	return pages, nil
}

func (d *DocumentPipeline) runPage(ctx context.Context, src PageSource, index int) (page RenderedPage, f *PageFailure) {
	defer func() {
		if r := recover(); r != nil {
			f = failure(index, apperrors.StageInternal, fmt.Errorf("panic: %v", r))
		}
	}()

	img, err := src.Page(ctx, index)
	if err != nil {
		return RenderedPage{}, failure(index, apperrors.StageRasterize, err)
	}

	page, err = d.processor.Process(ctx, img, index)
	if err != nil {
		pf, ok := err.(*PageFailure)
		if !ok {
			pf = failure(index, apperrors.StageInternal, err)
		}
		return RenderedPage{}, pf
	}
	return page, nil
}
