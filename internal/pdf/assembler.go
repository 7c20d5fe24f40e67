package pdf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"pdf-translator/internal/logger"
)

// Assembler combines ordered page images into one PDF, one page per image.
type Assembler interface {
	Assemble(ctx context.Context, pagePaths []string, outputPath string) error
}

// PDFCPUAssembler builds the output document with pdfcpu (pure Go).
type PDFCPUAssembler struct {
	conf *model.Configuration
}

// NewPDFCPUAssembler creates an assembler with pdfcpu's default configuration.
func NewPDFCPUAssembler() *PDFCPUAssembler {
	return &PDFCPUAssembler{conf: model.NewDefaultConfiguration()}
}

// Assemble writes pagePaths, in order, to outputPath. Each image fills its
// own page. The document is built next to outputPath and renamed into place,
// so a failed run leaves no output behind.
func (a *PDFCPUAssembler) Assemble(ctx context.Context, pagePaths []string, outputPath string) error {
	if len(pagePaths) == 0 {
		return NewPDFError(ErrAssembleFailed, "没有可合成的页面", nil)
	}
	if err := ctx.Err(); err != nil {
		return NewPDFError(ErrCancelled, "合成已取消", err)
	}

	logger.Info("assembling output PDF",
		logger.Int("pages", len(pagePaths)),
		logger.String("output", filepath.Base(outputPath)))

	if dir := filepath.Dir(outputPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return NewPDFError(ErrAssembleFailed, "无法创建输出目录", err)
		}
	}

	// ImportImagesFile appends when the target exists.
	tmpPath := strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + ".assembling.pdf"
	_ = os.Remove(tmpPath)
	defer os.Remove(tmpPath)

	imp, err := pdfcpu.ParseImportDetails("pos:full", types.POINTS)
	if err != nil {
		return NewPDFError(ErrAssembleFailed, "invalid import settings", err)
	}
	if err := api.ImportImagesFile(pagePaths, tmpPath, imp, a.conf); err != nil {
		return NewPDFError(ErrAssembleFailed, "failed to import page images", err)
	}

	pages, err := PageCountPDFCPU(tmpPath)
	if err != nil {
		return NewPDFError(ErrAssembleFailed, "assembled PDF is unreadable", err)
	}
	if pages != len(pagePaths) {
		return NewPDFErrorWithDetails(ErrAssembleFailed, "page count mismatch",
			fmt.Sprintf("want %d, got %d", len(pagePaths), pages), nil)
	}

	if err := os.Rename(tmpPath, outputPath); err != nil {
		return NewPDFError(ErrAssembleFailed, "无法写入输出文件", err)
	}

	logger.Info("output PDF assembled",
		logger.Int("pages", pages),
		logger.String("output", outputPath))
	return nil
}

// PageCountPDFCPU reads the page count of a PDF using pdfcpu
func PageCountPDFCPU(pdfPath string) (int, error) {
	ctx, err := api.ReadContextFile(pdfPath)
	if err != nil {
		return 0, fmt.Errorf("failed to read PDF: %w", err)
	}
	return ctx.PageCount, nil
}
