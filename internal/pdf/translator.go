package pdf

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sort"
	"sync"
	"time"

	apperrors "pdf-translator/internal/errors"
	"pdf-translator/internal/logger"
	"pdf-translator/internal/ocr"
	"pdf-translator/internal/ocr/tesseract"
	"pdf-translator/internal/pipeline"
	"pdf-translator/internal/render"
	"pdf-translator/internal/translate"
	"pdf-translator/internal/types"
)

// DefaultServiceTimeout bounds a single request to the translation service.
const DefaultServiceTimeout = 60 * time.Second

// PDFTranslatorConfig holds configuration options for creating a PDFTranslator.
// Nil collaborators are built from Config.
type PDFTranslatorConfig struct {
	Config     *types.Config
	Rasterizer Rasterizer
	Assembler  Assembler
	Detector   pipeline.Detector
	Compositor pipeline.Compositor
	Service    translate.Service
}

// PDFTranslator 负责一次完整的文档翻译：校验、光栅化、逐页翻译重绘、合成输出
type PDFTranslator struct {
	config     *types.Config
	rasterizer Rasterizer
	assembler  Assembler
	detector   pipeline.Detector
	compositor pipeline.Compositor
	translator *translate.Translator
	fileStore  *translate.FileStore
	redisStore *translate.RedisStore

	mu      sync.RWMutex
	status  *PDFStatus
	cancel  context.CancelFunc
	running bool

	// Callback for page completion events
	pageCompleteCallback func(completed, total, index int)
}

// NewPDFTranslator creates a new PDFTranslator with the given configuration
func NewPDFTranslator(ctx context.Context, cfg PDFTranslatorConfig) (*PDFTranslator, error) {
	config := cfg.Config
	if config == nil {
		config = types.DefaultConfig()
	}

	p := &PDFTranslator{
		config:     config,
		rasterizer: cfg.Rasterizer,
		assembler:  cfg.Assembler,
		detector:   cfg.Detector,
		compositor: cfg.Compositor,
		status:     newIdleStatus(),
	}

	if p.rasterizer == nil {
		p.rasterizer = NewDefaultRasterizer(config.DPI)
	}
	if p.assembler == nil {
		p.assembler = NewPDFCPUAssembler()
	}
	if p.detector == nil {
		p.detector = ocr.NewDetector(tesseract.NewRecognizer(config.OCRLanguages, config.DPI))
	}
	if p.compositor == nil {
		fonts := render.NewFontLoader(config.FontDir, render.DefaultFontTable)
		p.compositor = render.NewCompositor(fonts, config.TargetLanguage)
	}

	service := cfg.Service
	if service == nil {
		chat, err := translate.NewChatService(ctx, translate.ChatServiceConfig{
			APIKey:  config.OpenAIAPIKey,
			BaseURL: config.OpenAIBaseURL,
			Model:   config.OpenAIModel,
			Timeout: DefaultServiceTimeout,
		})
		if err != nil {
			return nil, NewPDFError(ErrServiceUnavailable, "无法创建翻译服务", err)
		}
		service = chat
	}
	if store := p.openCache(ctx); store != nil {
		service = translate.NewCachedService(service, store)
	}

	policy := translate.DefaultRetryPolicy()
	policy.MaxAttempts = config.MaxRetries
	policy.BaseDelay = time.Duration(config.RetryBaseDelayMS) * time.Millisecond
	p.translator = translate.NewTranslator(service, config.SourceLanguage, config.TargetLanguage, policy)

	return p, nil
}

// openCache picks Redis when configured and reachable, otherwise the JSON file cache.
func (p *PDFTranslator) openCache(ctx context.Context) translate.Store {
	if p.config.RedisURL != "" {
		store, err := translate.NewRedisStore(p.config.RedisURL, translate.DefaultRedisTTL)
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = store.Ping(pingCtx)
			cancel()
			if err == nil {
				p.redisStore = store
				logger.Info("using redis translation cache")
				return store
			}
			store.Close()
		}
		logger.Warn("redis cache unavailable, falling back", logger.Err(err))
	}

	if p.config.CachePath != "" {
		store := translate.NewFileStore(p.config.CachePath)
		if err := store.Load(); err != nil {
			logger.Warn("failed to load translation cache", logger.Err(err))
		}
		p.fileStore = store
		logger.Info("using file translation cache",
			logger.String("path", p.config.CachePath),
			logger.Int("entries", store.Size()))
		return store
	}
	return nil
}

// newIdleStatus creates a new idle status
func newIdleStatus() *PDFStatus {
	return &PDFStatus{Phase: PDFPhaseIdle}
}

// TranslatePDF translates inputPath into outputPath.
//
// In the default mode any page failure aborts the run before assembly and the
// returned error is a *pipeline.PipelineError. With PartialOutput enabled a
// failed page is replaced by its untouched raster and the run succeeds. In
// both modes failures are written to <outputPath>.failures.json.
func (p *PDFTranslator) TranslatePDF(ctx context.Context, inputPath, outputPath string) (*TranslationResult, error) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil, types.NewAppError(types.ErrInvalidInput, "a translation is already running", nil)
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.running = true
	p.cancel = cancel
	p.status = newIdleStatus()
	p.updateStatusLocked(PDFPhaseLoading, 0, "正在加载 PDF...")
	p.mu.Unlock()

	defer func() {
		cancel()
		p.saveCache()
		p.mu.Lock()
		p.running = false
		p.cancel = nil
		p.mu.Unlock()
	}()

	logger.Info("starting PDF translation",
		logger.String("input", inputPath),
		logger.String("output", outputPath))

	info, err := GetPDFInfo(inputPath)
	if err != nil {
		return nil, p.fail(err)
	}

	p.setStatus(PDFPhaseRasterizing, 5, "正在打开文档...")
	doc, err := p.rasterizer.Open(inputPath)
	if err != nil {
		return nil, p.fail(err)
	}
	defer doc.Close()

	total := doc.PageCount()
	if total != info.PageCount {
		logger.Warn("page count differs between readers",
			logger.Int("info", info.PageCount),
			logger.Int("rasterizer", total))
	}

	failures := apperrors.NewFailureLog(inputPath, outputPath)
	failures.SetTotalPages(total)
	result := &TranslationResult{
		RunID:           failures.RunID(),
		OriginalPDFPath: inputPath,
		TotalPages:      total,
	}

	scratch, err := pipeline.NewScratch(p.config.WorkDirectory, failures.RunID())
	if err != nil {
		return nil, p.fail(types.NewAppError(types.ErrIO, "failed to prepare work directory", err))
	}
	defer func() {
		if err := scratch.Cleanup(); err != nil {
			logger.Warn("failed to clean up scratch files", logger.Err(err))
		}
	}()

	p.mu.Lock()
	p.status.TotalPages = total
	p.updateStatusLocked(PDFPhaseTranslating, 10, fmt.Sprintf("正在翻译... (0/%d)", total))
	p.mu.Unlock()

	processor := pipeline.NewPageProcessor(p.detector, p.translator, p.compositor, scratch)
	docPipeline := pipeline.NewDocumentPipeline(processor, p.config.Concurrency)
	docPipeline.OnPageDone(p.onPageDone)

	pages, runErr := docPipeline.Run(runCtx, doc)
	if runErr != nil {
		if ctxErr := runCtx.Err(); ctxErr != nil {
			return nil, p.fail(NewPDFError(ErrCancelled, "翻译已取消", ctxErr))
		}
		var pipeErr *pipeline.PipelineError
		if !errors.As(runErr, &pipeErr) {
			return nil, p.fail(runErr)
		}

		for _, f := range pipeErr.Failures {
			failures.Record(f.Index, f.Stage, f.Err)
			result.FailedPages = append(result.FailedPages, f.Index)
		}
		reportPath, err := failures.Save("")
		if err != nil {
			logger.Warn("failed to write failure report", logger.Err(err))
		} else {
			result.FailureReportPath = reportPath
		}

		if !p.config.PartialOutput {
			p.fillCounts(result, pipeErr.Completed)
			// 返回前临时目录会被清理，不暴露已删除的页面路径
			for i := range pipeErr.Completed {
				pipeErr.Completed[i].Path = ""
			}
			return result, p.fail(pipeErr)
		}

		pages, err = p.substituteOriginals(runCtx, doc, scratch, pipeErr)
		if err != nil {
			return result, p.fail(err)
		}
	}
	p.fillCounts(result, pages)

	p.setStatus(PDFPhaseAssembling, 90, "正在生成 PDF...")
	paths := make([]string, len(pages))
	for i, page := range pages {
		paths[i] = page.Path
	}
	if err := p.assembler.Assemble(runCtx, paths, outputPath); err != nil {
		return result, p.fail(err)
	}
	result.TranslatedPDFPath = outputPath

	p.setStatus(PDFPhaseComplete, 100, "翻译完成")
	logger.Info("PDF translation completed",
		logger.String("output", outputPath),
		logger.Int("pages", total),
		logger.Int("failed", len(result.FailedPages)),
		logger.Int("untranslated", result.Untranslated))
	return result, nil
}

// substituteOriginals re-renders every failed page untouched so the output
// keeps the input's page count and order.
func (p *PDFTranslator) substituteOriginals(ctx context.Context, doc Document, scratch *pipeline.Scratch, pipeErr *pipeline.PipelineError) ([]pipeline.RenderedPage, error) {
	pages := append([]pipeline.RenderedPage(nil), pipeErr.Completed...)

	for _, f := range pipeErr.Failures {
		img, err := doc.Page(ctx, f.Index)
		if err != nil {
			// 原页也无法光栅化时用空白页占位
			logger.Warn("failed page cannot be rasterized, inserting blank page",
				logger.Int("page", f.Index),
				logger.Err(err))
			img = blankPage(pages)
		}

		path := scratch.ProcessedPagePath(f.Index)
		if err := pipeline.SavePNG(path, img); err != nil {
			return nil, NewPDFErrorWithPage(ErrAssembleFailed, "无法保存原始页面", f.Index+1, err)
		}
		pages = append(pages, pipeline.RenderedPage{Index: f.Index, Path: path, Bounds: img.Bounds()})
		logger.Info("failed page kept untranslated", logger.Int("page", f.Index))
	}

	sort.Slice(pages, func(i, j int) bool { return pages[i].Index < pages[j].Index })
	return pages, nil
}

// blankPage returns a white page sized like the first rendered page, or A4 at 300 DPI.
func blankPage(rendered []pipeline.RenderedPage) *image.RGBA {
	bounds := image.Rect(0, 0, 2480, 3508)
	for _, page := range rendered {
		if !page.Bounds.Empty() {
			bounds = page.Bounds
			break
		}
	}
	img := image.NewRGBA(bounds)
	draw.Draw(img, bounds, &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	return img
}

func (p *PDFTranslator) fillCounts(result *TranslationResult, pages []pipeline.RenderedPage) {
	failed := make(map[int]bool, len(result.FailedPages))
	for _, index := range result.FailedPages {
		failed[index] = true
	}
	result.TranslatedPages = 0
	for _, page := range pages {
		if failed[page.Index] {
			continue
		}
		result.TranslatedPages++
		result.TotalRegions += page.Regions
		result.Untranslated += page.Untranslated
	}
}

func (p *PDFTranslator) onPageDone(completed, total, index int, err error) {
	p.mu.Lock()
	p.status.CompletedPages = completed
	if err != nil {
		p.status.FailedPages++
	}
	p.updateProgressLocked(completed, total)
	callback := p.pageCompleteCallback
	p.mu.Unlock()

	if callback != nil {
		callback(completed, total, index)
	}
}

func (p *PDFTranslator) setStatus(phase PDFPhase, progress int, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updateStatusLocked(phase, progress, message)
}

// fail moves the status to error (or idle when cancelled) and returns err.
func (p *PDFTranslator) fail(err error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var pdfErr *PDFError
	if errors.As(err, &pdfErr) && pdfErr.Code == ErrCancelled {
		p.updateStatusLocked(PDFPhaseIdle, 0, "翻译已取消")
		logger.Info("translation cancelled")
		return err
	}

	p.updateStatusLocked(PDFPhaseError, p.status.Progress, "翻译失败")
	p.status.Error = err.Error()
	logger.Error("PDF translation failed", err)
	return err
}

// updateProgressLocked updates the progress percentage (must be called with lock held)
func (p *PDFTranslator) updateProgressLocked(completed, total int) {
	if total <= 0 {
		p.status.Progress = 0
		return
	}

	// 10-90% 分配给逐页翻译，两端留给加载与合成
	progress := 10 + (completed * 80 / total)
	if progress > 90 {
		progress = 90
	}
	if progress < 0 {
		progress = 0
	}

	p.status.Progress = progress
	p.status.Message = fmt.Sprintf("正在翻译... (%d/%d)", completed, total)
}

// updateStatusLocked updates the status (must be called with lock held)
func (p *PDFTranslator) updateStatusLocked(phase PDFPhase, progress int, message string) {
	if !IsValidPhase(phase) {
		logger.Warn("invalid phase, defaulting to error", logger.String("phase", string(phase)))
		phase = PDFPhaseError
	}

	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}

	p.status.Phase = phase
	p.status.Progress = progress
	p.status.Message = message

	if phase != PDFPhaseError {
		p.status.Error = ""
	}
}

// GetStatus 获取当前处理状态（副本）
func (p *PDFTranslator) GetStatus() *PDFStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	status := *p.status
	return &status
}

// CancelTranslation 取消正在进行的翻译；已完成的翻译仍会写入缓存
func (p *PDFTranslator) CancelTranslation() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running || p.cancel == nil {
		return types.NewAppError(types.ErrInvalidInput, "no translation is running", nil)
	}
	logger.Info("cancelling translation")
	p.cancel()
	return nil
}

// SetPageCompleteCallback registers a callback fired after each page, from worker goroutines.
func (p *PDFTranslator) SetPageCompleteCallback(callback func(completed, total, index int)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pageCompleteCallback = callback
}

// saveCache persists the file cache, if one is in use.
func (p *PDFTranslator) saveCache() {
	if p.fileStore == nil {
		return
	}
	if err := p.fileStore.Save(); err != nil {
		logger.Warn("failed to save translation cache", logger.Err(err))
	}
}

// Close releases the cache connections.
func (p *PDFTranslator) Close() error {
	p.saveCache()
	if p.redisStore != nil {
		return p.redisStore.Close()
	}
	return nil
}
