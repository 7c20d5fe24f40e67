// Package types defines core data types and error codes shared by the PDF translator packages.
package types

// Config 应用配置
type Config struct {
	SourceLanguage   string   `json:"source_language"` // 源语言代码，默认 "en"
	TargetLanguage   string   `json:"target_language"` // 目标语言代码，默认 "fr"
	Concurrency      int      `json:"concurrency"`     // 页面并发数，默认 5
	MaxRetries       int      `json:"max_retries"`     // 单次翻译最大尝试次数，默认 3
	RetryBaseDelayMS int      `json:"retry_base_delay_ms"`
	DPI              int      `json:"dpi"` // 光栅化分辨率，默认 300
	OpenAIAPIKey     string   `json:"openai_api_key"`
	OpenAIBaseURL    string   `json:"openai_base_url"` // OpenAI 兼容 API 的 Base URL
	OpenAIModel      string   `json:"openai_model"`
	OCRLanguages     []string `json:"ocr_languages"` // tesseract 语言包，例如 ["eng"]
	FontDir          string   `json:"font_dir"`
	WorkDirectory    string   `json:"work_directory"`
	CachePath        string   `json:"cache_path"` // 翻译缓存文件，为空时不启用
	RedisURL         string   `json:"redis_url"`  // 共享翻译缓存，优先于 CachePath
	PartialOutput    bool     `json:"partial_output"`
	LogFile          string   `json:"log_file"`
	LogLevel         string   `json:"log_level"`
}

// Default values applied by the config manager when a field is unset.
const (
	DefaultSourceLanguage   = "en"
	DefaultTargetLanguage   = "fr"
	DefaultConcurrency      = 5
	DefaultMaxRetries       = 3
	DefaultRetryBaseDelayMS = 500
	DefaultDPI              = 300
	DefaultOpenAIModel      = "gpt-4o-mini"
	DefaultLogLevel         = "info"
)

// DefaultConfig returns a Config populated with default values.
func DefaultConfig() *Config {
	return &Config{
		SourceLanguage:   DefaultSourceLanguage,
		TargetLanguage:   DefaultTargetLanguage,
		Concurrency:      DefaultConcurrency,
		MaxRetries:       DefaultMaxRetries,
		RetryBaseDelayMS: DefaultRetryBaseDelayMS,
		DPI:              DefaultDPI,
		OpenAIModel:      DefaultOpenAIModel,
		OCRLanguages:     []string{"eng"},
		LogLevel:         DefaultLogLevel,
	}
}

// ErrorCode 错误代码枚举
type ErrorCode string

const (
	ErrConfig       ErrorCode = "CONFIG_ERROR"
	ErrInvalidInput ErrorCode = "INVALID_INPUT"
	ErrFileNotFound ErrorCode = "FILE_NOT_FOUND"
	ErrRasterize    ErrorCode = "RASTERIZE_ERROR"
	ErrDetect       ErrorCode = "DETECT_ERROR"
	ErrTranslation  ErrorCode = "TRANSLATION_ERROR"
	ErrComposite    ErrorCode = "COMPOSITE_ERROR"
	ErrAssemble     ErrorCode = "ASSEMBLE_ERROR"
	ErrIO           ErrorCode = "IO_ERROR"
	ErrInternal     ErrorCode = "INTERNAL_ERROR"
)

// AppError 应用错误
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface for AppError
func (e *AppError) Error() string {
	msg := e.Message
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause of the error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new AppError with the given code, message, and optional cause
func NewAppError(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewAppErrorWithDetails creates a new AppError with details
func NewAppErrorWithDetails(code ErrorCode, message, details string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Details: details,
		Cause:   cause,
	}
}

// CodeOf returns the code of the first AppError in err's chain, or "" if there is none.
func CodeOf(err error) ErrorCode {
	for err != nil {
		if ae, ok := err.(*AppError); ok {
			return ae.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}
