package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pdf-translator/internal/config"
	"pdf-translator/internal/logger"
	"pdf-translator/internal/types"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "pdf-translator",
	Short: "Translate PDF documents while keeping their page layout",
	Long: `pdf-translator renders every page of a PDF, finds the text lines with OCR,
translates each line and paints the translation back over the original,
then reassembles the pages into a new PDF.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default ~/.config/pdf-translator/pdf-translator-config.json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
	rootCmd.AddCommand(translateCmd)
	rootCmd.AddCommand(infoCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	logger.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// loadConfig reads the config file, .env and environment.
func loadConfig() (*types.Config, error) {
	configMgr, err := config.NewConfigManager(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := configMgr.Load(); err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	return configMgr.GetConfig(), nil
}

// initLogger logs to the console, plus a file when log_file is set.
func initLogger(cfg *types.Config) error {
	level, _ := logger.ParseLevel(cfg.LogLevel)
	if verbose {
		level = logger.LevelDebug
	}
	return logger.Init(&logger.Config{
		LogFilePath:   cfg.LogFile,
		MaxFileSize:   10 * 1024 * 1024,
		MaxBackups:    5,
		Level:         level,
		EnableConsole: true,
	})
}

func exitCode(err error) int {
	if errors.Is(err, context.Canceled) {
		return 130
	}
	return 1
}
