package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"pdf-translator/internal/config"
	apperrors "pdf-translator/internal/errors"
	"pdf-translator/internal/pdf"
	"pdf-translator/internal/pipeline"
	"pdf-translator/internal/types"
)

var (
	sourceLang  string
	targetLang  string
	concurrency int
	partial     bool
	workDir     string
)

var translateCmd = &cobra.Command{
	Use:   "translate <input.pdf> <output.pdf>",
	Short: "Translate a PDF into a new PDF",
	Args:  cobra.ExactArgs(2),
	RunE:  runTranslate,
}

var infoCmd = &cobra.Command{
	Use:   "info <input.pdf>",
	Short: "Show page count and size of a PDF",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func init() {
	translateCmd.Flags().StringVarP(&sourceLang, "source", "s", "", "source language code (default from config, \"en\")")
	translateCmd.Flags().StringVarP(&targetLang, "target", "t", "", "target language code (default from config, \"fr\")")
	translateCmd.Flags().IntVarP(&concurrency, "concurrency", "j", 0, "pages processed at once (default from config, 5)")
	translateCmd.Flags().BoolVar(&partial, "partial", false, "keep failed pages untranslated instead of aborting")
	translateCmd.Flags().StringVar(&workDir, "work-dir", "", "directory for intermediate page images")
}

// applyFlags overrides cfg with the flags given on the command line.
func applyFlags(cmd *cobra.Command, cfg *types.Config) error {
	flags := cmd.Flags()
	if flags.Changed("source") {
		cfg.SourceLanguage = sourceLang
	}
	if flags.Changed("target") {
		cfg.TargetLanguage = targetLang
	}
	if flags.Changed("concurrency") {
		if concurrency < 1 {
			return types.NewAppErrorWithDetails(types.ErrInvalidInput, "concurrency must be at least 1", fmt.Sprint(concurrency), nil)
		}
		cfg.Concurrency = concurrency
	}
	if flags.Changed("partial") {
		cfg.PartialOutput = partial
	}
	if flags.Changed("work-dir") {
		cfg.WorkDirectory = workDir
	}
	return config.Normalize(cfg)
}

func runTranslate(cmd *cobra.Command, args []string) error {
	inputPath, outputPath := args[0], args[1]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyFlags(cmd, cfg); err != nil {
		return err
	}
	if err := initLogger(cfg); err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}

	ctx := cmd.Context()
	translator, err := pdf.NewPDFTranslator(ctx, pdf.PDFTranslatorConfig{Config: cfg})
	if err != nil {
		return err
	}
	defer translator.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "=== PDF 翻译 (%s -> %s) ===\n", cfg.SourceLanguage, cfg.TargetLanguage)
	fmt.Fprintf(out, "输入: %s\n", inputPath)

	translator.SetPageCompleteCallback(func(completed, total, index int) {
		status := translator.GetStatus()
		fmt.Fprintf(out, "  [%d%%] 第 %d 页完成 (%d/%d)\n", status.Progress, index+1, completed, total)
	})

	result, err := translator.TranslatePDF(ctx, inputPath, outputPath)
	if err != nil {
		printFailures(cmd, result, err)
		return err
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "=== 翻译完成 ===")
	fmt.Fprintf(out, "翻译 PDF: %s\n", result.TranslatedPDFPath)
	fmt.Fprintf(out, "页数: %d (翻译 %d)\n", result.TotalPages, result.TranslatedPages)
	fmt.Fprintf(out, "文本区域: %d (未翻译 %d)\n", result.TotalRegions, result.Untranslated)
	if len(result.FailedPages) > 0 {
		fmt.Fprintf(out, "保留原文的页: %v\n", oneBased(result.FailedPages))
		fmt.Fprintf(out, "失败报告: %s\n", result.FailureReportPath)
	}
	return nil
}

func printFailures(cmd *cobra.Command, result *pdf.TranslationResult, err error) {
	w := cmd.ErrOrStderr()

	var pipeErr *pipeline.PipelineError
	if !errors.As(err, &pipeErr) {
		return
	}
	fmt.Fprintln(w, "以下页面处理失败，未生成输出文件:")
	for _, f := range pipeErr.Failures {
		fmt.Fprintf(w, "  第 %d 页 [%s]: %v\n", f.Index+1, apperrors.GetStageDisplayName(f.Stage), f.Err)
	}
	if result != nil && result.FailureReportPath != "" {
		fmt.Fprintf(w, "失败报告: %s\n", result.FailureReportPath)
	}
	fmt.Fprintln(w, "使用 --partial 可保留失败页的原文并继续生成。")
}

func runInfo(cmd *cobra.Command, args []string) error {
	info, err := pdf.GetPDFInfo(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "文件: %s\n", info.FileName)
	fmt.Fprintf(out, "路径: %s\n", info.FilePath)
	fmt.Fprintf(out, "页数: %d\n", info.PageCount)
	fmt.Fprintf(out, "大小: %d bytes\n", info.FileSize)
	return nil
}

func oneBased(indexes []int) []int {
	pages := make([]int, len(indexes))
	for i, index := range indexes {
		pages[i] = index + 1
	}
	return pages
}
