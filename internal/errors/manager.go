// Package errors records page-level failures of a translation run and
// persists them as a JSON report next to the output document.
package errors

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrorStage 错误阶段枚举
type ErrorStage string

const (
	StageLoad      ErrorStage = "load"      // 读取/校验输入文档
	StageRasterize ErrorStage = "rasterize" // 页面光栅化
	StageDetect    ErrorStage = "detect"    // 文字区域检测
	StageTranslate ErrorStage = "translate" // 翻译（正常情况下不会出现，翻译失败会回退原文）
	StageComposite ErrorStage = "composite" // 区域重绘
	StagePersist   ErrorStage = "persist"   // 中间文件读写
	StageAssemble  ErrorStage = "assemble"  // 合成输出 PDF
	StageInternal  ErrorStage = "internal"  // 未预期的 panic
)

// ReportSuffix is appended to the output document path to name the failure report.
const ReportSuffix = ".failures.json"

// FailureRecord 单页失败记录
type FailureRecord struct {
	Page      int        `json:"page"`      // 页码（从 0 开始）
	Stage     ErrorStage `json:"stage"`     // 出错阶段
	ErrorMsg  string     `json:"error_msg"` // 错误信息
	Timestamp time.Time  `json:"timestamp"` // 发生时间
}

// FailureReport 一次运行的失败报告
type FailureReport struct {
	RunID      string          `json:"run_id"`
	Input      string          `json:"input"`
	Output     string          `json:"output"`
	TotalPages int             `json:"total_pages"`
	CreatedAt  time.Time       `json:"created_at"`
	Failures   []FailureRecord `json:"failures"`
}

// FailureLog 失败记录器，可被多个页面 worker 并发写入
type FailureLog struct {
	mu         sync.RWMutex
	runID      string
	input      string
	output     string
	totalPages int
	records    map[int]*FailureRecord // key: page index
}

// NewFailureLog 创建新的失败记录器
func NewFailureLog(input, output string) *FailureLog {
	return &FailureLog{
		runID:   uuid.NewString(),
		input:   input,
		output:  output,
		records: make(map[int]*FailureRecord),
	}
}

// RunID returns the identifier shared by this run's scratch directory and report.
func (fl *FailureLog) RunID() string {
	return fl.runID
}

// SetTotalPages records the document page count for the report.
func (fl *FailureLog) SetTotalPages(n int) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	fl.totalPages = n
}

// Record 记录某一页的失败；同一页重复记录时以最后一次为准
func (fl *FailureLog) Record(page int, stage ErrorStage, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}

	fl.mu.Lock()
	defer fl.mu.Unlock()
	fl.records[page] = &FailureRecord{
		Page:      page,
		Stage:     stage,
		ErrorMsg:  msg,
		Timestamp: time.Now(),
	}
}

// Get 获取特定页的失败记录
func (fl *FailureLog) Get(page int) (*FailureRecord, bool) {
	fl.mu.RLock()
	defer fl.mu.RUnlock()

	record, ok := fl.records[page]
	if !ok {
		return nil, false
	}
	recordCopy := *record
	return &recordCopy, true
}

// Len returns the number of failed pages.
func (fl *FailureLog) Len() int {
	fl.mu.RLock()
	defer fl.mu.RUnlock()
	return len(fl.records)
}

// Records 按页码顺序返回所有失败记录的副本
func (fl *FailureLog) Records() []FailureRecord {
	fl.mu.RLock()
	defer fl.mu.RUnlock()

	records := make([]FailureRecord, 0, len(fl.records))
	for _, record := range fl.records {
		records = append(records, *record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Page < records[j].Page })
	return records
}

// Report builds the serialisable report.
func (fl *FailureLog) Report() *FailureReport {
	records := fl.Records()

	fl.mu.RLock()
	defer fl.mu.RUnlock()
	return &FailureReport{
		RunID:      fl.runID,
		Input:      fl.input,
		Output:     fl.output,
		TotalPages: fl.totalPages,
		CreatedAt:  time.Now(),
		Failures:   records,
	}
}

// ReportPath returns the report location for an output document.
func ReportPath(output string) string {
	return output + ReportSuffix
}

// Save 将失败报告写入 path；path 为空时写到输出文档旁边
func (fl *FailureLog) Save(path string) (string, error) {
	if path == "" {
		path = ReportPath(fl.output)
	}

	data, err := json.MarshalIndent(fl.Report(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal failure report: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write failure report: %w", err)
	}
	return path, nil
}

// LoadReport 从文件读取失败报告
func LoadReport(path string) (*FailureReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read failure report: %w", err)
	}

	var report FailureReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal failure report: %w", err)
	}
	return &report, nil
}

// GetStageDisplayName 获取阶段的显示名称
func GetStageDisplayName(stage ErrorStage) string {
	switch stage {
	case StageLoad:
		return "load document"
	case StageRasterize:
		return "rasterize page"
	case StageDetect:
		return "detect text regions"
	case StageTranslate:
		return "translate"
	case StageComposite:
		return "redraw regions"
	case StagePersist:
		return "scratch file I/O"
	case StageAssemble:
		return "assemble output"
	case StageInternal:
		return "internal error"
	default:
		return string(stage)
	}
}
