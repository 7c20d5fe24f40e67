package pdf

import (
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/gen2brain/go-fitz"

	"pdf-translator/internal/logger"
	"pdf-translator/internal/pipeline"
)

// Document is an opened PDF whose pages can be rasterized on demand.
type Document interface {
	pipeline.PageSource
	Close() error
}

// Rasterizer opens documents for page rendering at a fixed resolution.
type Rasterizer interface {
	Open(path string) (Document, error)
}

// FitzRasterizer renders pages with MuPDF through go-fitz.
type FitzRasterizer struct {
	dpi float64
}

// NewFitzRasterizer creates a MuPDF rasterizer.
func NewFitzRasterizer(dpi int) *FitzRasterizer {
	return &FitzRasterizer{dpi: float64(dpi)}
}

// Open implements Rasterizer.
func (r *FitzRasterizer) Open(path string) (Document, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, NewPDFError(ErrPDFInvalid, "MuPDF 无法打开文件", err)
	}
	return &fitzDocument{doc: doc, dpi: r.dpi, pages: doc.NumPage()}, nil
}

// fitzDocument serialises access to the MuPDF context, which is not
// safe for concurrent use.
type fitzDocument struct {
	mu    sync.Mutex
	doc   *fitz.Document
	dpi   float64
	pages int
}

func (d *fitzDocument) PageCount() int {
	return d.pages
}

func (d *fitzDocument) Page(ctx context.Context, index int) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if index < 0 || index >= d.pages {
		return nil, fmt.Errorf("page index %d out of range [0,%d)", index, d.pages)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.doc == nil {
		return nil, fmt.Errorf("document is closed")
	}

	img, err := d.doc.ImageDPI(index, d.dpi)
	if err != nil {
		return nil, NewPDFErrorWithPage(ErrRasterizeFailed, "页面光栅化失败", index+1, err)
	}
	return pipeline.ToRGBA(img), nil
}

func (d *fitzDocument) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.doc == nil {
		return nil
	}
	err := d.doc.Close()
	d.doc = nil
	return err
}

// PopplerRasterizer shells out to pdftoppm. Each page call runs its own
// process, so pages render in parallel.
type PopplerRasterizer struct {
	dpi int
}

// NewPopplerRasterizer creates a pdftoppm-based rasterizer.
func NewPopplerRasterizer(dpi int) *PopplerRasterizer {
	return &PopplerRasterizer{dpi: dpi}
}

// PopplerAvailable checks if pdftoppm is on PATH
func PopplerAvailable() bool {
	cmd := exec.Command("pdftoppm", "-v")
	hideWindowOnWindows(cmd)
	return cmd.Run() == nil
}

// Open implements Rasterizer.
func (r *PopplerRasterizer) Open(path string) (Document, error) {
	pages, err := countPages(path)
	if err != nil {
		return nil, NewPDFError(ErrPDFInvalid, "无法打开 PDF 文件", err)
	}
	tempDir, err := os.MkdirTemp("", "pdft-poppler-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	return &popplerDocument{path: path, pages: pages, dpi: r.dpi, tempDir: tempDir}, nil
}

type popplerDocument struct {
	path    string
	pages   int
	dpi     int
	tempDir string
}

func (d *popplerDocument) PageCount() int {
	return d.pages
}

func (d *popplerDocument) Page(ctx context.Context, index int) (*image.RGBA, error) {
	if index < 0 || index >= d.pages {
		return nil, fmt.Errorf("page index %d out of range [0,%d)", index, d.pages)
	}

	pageNum := strconv.Itoa(index + 1)
	outputPrefix := filepath.Join(d.tempDir, "page_"+pageNum)
	args := []string{
		"-f", pageNum,
		"-l", pageNum,
		"-png",
		"-r", strconv.Itoa(d.dpi),
		"-singlefile",
		d.path,
		outputPrefix,
	}

	cmd := exec.CommandContext(ctx, "pdftoppm", args...)
	hideWindowOnWindows(cmd)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, NewPDFErrorWithDetails(ErrRasterizeFailed, "pdftoppm failed", string(output), err)
	}

	imgPath := outputPrefix + ".png"
	defer os.Remove(imgPath)
	img, err := pipeline.LoadPNG(imgPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load rendered page: %w", err)
	}

	logger.Debug("page rasterized with pdftoppm",
		logger.Int("page", index),
		logger.Int("width", img.Bounds().Dx()),
		logger.Int("height", img.Bounds().Dy()))
	return img, nil
}

func (d *popplerDocument) Close() error {
	return os.RemoveAll(d.tempDir)
}

// FallbackRasterizer tries primary first and switches to fallback when
// primary cannot open the document.
type FallbackRasterizer struct {
	primary  Rasterizer
	fallback Rasterizer
}

// NewFallbackRasterizer chains two rasterizers. A nil fallback disables the chain.
func NewFallbackRasterizer(primary, fallback Rasterizer) *FallbackRasterizer {
	return &FallbackRasterizer{primary: primary, fallback: fallback}
}

// NewDefaultRasterizer renders with MuPDF and falls back to pdftoppm when installed.
func NewDefaultRasterizer(dpi int) Rasterizer {
	var fallback Rasterizer
	if PopplerAvailable() {
		fallback = NewPopplerRasterizer(dpi)
	}
	return NewFallbackRasterizer(NewFitzRasterizer(dpi), fallback)
}

// Open implements Rasterizer.
func (r *FallbackRasterizer) Open(path string) (Document, error) {
	doc, err := r.primary.Open(path)
	if err == nil || r.fallback == nil {
		return doc, err
	}
	logger.Warn("primary rasterizer failed, trying fallback",
		logger.String("path", path),
		logger.Err(err))
	return r.fallback.Open(path)
}
