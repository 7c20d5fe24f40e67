// Package pdf loads, rasterizes and reassembles PDF documents and drives a
// whole-document translation run on top of the page pipeline.
package pdf

import "fmt"

// PDFInfo PDF 文件信息
type PDFInfo struct {
	FilePath  string `json:"file_path"`
	FileName  string `json:"file_name"`
	PageCount int    `json:"page_count"`
	FileSize  int64  `json:"file_size"`
}

// PDFPhase PDF 处理阶段
type PDFPhase string

const (
	PDFPhaseIdle        PDFPhase = "idle"
	PDFPhaseLoading     PDFPhase = "loading"
	PDFPhaseRasterizing PDFPhase = "rasterizing"
	PDFPhaseTranslating PDFPhase = "translating"
	PDFPhaseAssembling  PDFPhase = "assembling"
	PDFPhaseComplete    PDFPhase = "complete"
	PDFPhaseError       PDFPhase = "error"
)

// PDFStatus PDF 处理状态
type PDFStatus struct {
	Phase          PDFPhase `json:"phase"`
	Progress       int      `json:"progress"`
	Message        string   `json:"message"`
	TotalPages     int      `json:"total_pages"`
	CompletedPages int      `json:"completed_pages"` // 已结束的页（含失败页）
	FailedPages    int      `json:"failed_pages"`
	Error          string   `json:"error,omitempty"`
}

// TranslationResult 翻译结果
type TranslationResult struct {
	RunID             string `json:"run_id"`
	OriginalPDFPath   string `json:"original_pdf_path"`
	TranslatedPDFPath string `json:"translated_pdf_path"`
	TotalPages        int    `json:"total_pages"`
	TranslatedPages   int    `json:"translated_pages"`
	FailedPages       []int  `json:"failed_pages,omitempty"`   // 失败页索引（从 0 开始）
	TotalRegions      int    `json:"total_regions"`
	Untranslated      int    `json:"untranslated_regions"`     // 重试耗尽、保留原文的区域数
	FailureReportPath string `json:"failure_report,omitempty"` // 仅在有失败页时写出
}

// PDFErrorCode 错误代码枚举
type PDFErrorCode string

const (
	ErrPDFNotFound        PDFErrorCode = "PDF_NOT_FOUND"
	ErrPDFInvalid         PDFErrorCode = "PDF_INVALID"
	ErrPDFEmpty           PDFErrorCode = "PDF_EMPTY"
	ErrRasterizeFailed    PDFErrorCode = "RASTERIZE_FAILED"
	ErrTranslateFailed    PDFErrorCode = "TRANSLATE_FAILED"
	ErrAssembleFailed     PDFErrorCode = "ASSEMBLE_FAILED"
	ErrServiceUnavailable PDFErrorCode = "SERVICE_UNAVAILABLE"
	ErrCancelled          PDFErrorCode = "CANCELLED"
)

// PDFError PDF 处理错误
type PDFError struct {
	Code    PDFErrorCode `json:"code"`
	Message string       `json:"message"`
	Details string       `json:"details,omitempty"`
	Page    int          `json:"page,omitempty"` // 从 1 开始；0 表示与具体页无关
	Cause   error        `json:"-"`
}

// Error implements the error interface for PDFError
func (e *PDFError) Error() string {
	msg := e.Message
	if e.Page > 0 {
		msg = fmt.Sprintf("page %d: %s", e.Page, msg)
	}
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause of the error
func (e *PDFError) Unwrap() error {
	return e.Cause
}

// NewPDFError creates a new PDFError with the given code, message, and optional cause
func NewPDFError(code PDFErrorCode, message string, cause error) *PDFError {
	return &PDFError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewPDFErrorWithDetails creates a new PDFError with details
func NewPDFErrorWithDetails(code PDFErrorCode, message, details string, cause error) *PDFError {
	return &PDFError{
		Code:    code,
		Message: message,
		Details: details,
		Cause:   cause,
	}
}

// NewPDFErrorWithPage creates a new PDFError bound to a 1-based page number
func NewPDFErrorWithPage(code PDFErrorCode, message string, page int, cause error) *PDFError {
	return &PDFError{
		Code:    code,
		Message: message,
		Page:    page,
		Cause:   cause,
	}
}

// IsValidPhase checks if the given phase is a valid PDFPhase
func IsValidPhase(phase PDFPhase) bool {
	switch phase {
	case PDFPhaseIdle, PDFPhaseLoading, PDFPhaseRasterizing,
		PDFPhaseTranslating, PDFPhaseAssembling, PDFPhaseComplete, PDFPhaseError:
		return true
	default:
		return false
	}
}

// IsValidStatus checks if the PDFStatus has valid values
func (s *PDFStatus) IsValidStatus() bool {
	return IsValidPhase(s.Phase) &&
		s.Progress >= 0 && s.Progress <= 100 &&
		s.FailedPages <= s.CompletedPages &&
		s.CompletedPages <= s.TotalPages
}
