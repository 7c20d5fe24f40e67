// Package config provides configuration management for the PDF translator.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"golang.org/x/text/language"

	"pdf-translator/internal/logger"
	"pdf-translator/internal/types"
)

const (
	// DefaultConfigFileName is the default configuration file name
	DefaultConfigFileName = "pdf-translator-config.json"
	// DefaultEnvFileName is the dotenv file consulted after the JSON file
	DefaultEnvFileName = ".env"

	EnvOpenAIAPIKey   = "OPENAI_API_KEY"
	EnvOpenAIBaseURL  = "OPENAI_BASE_URL"
	EnvOpenAIModel    = "OPENAI_MODEL"
	EnvSourceLanguage = "PDFT_SOURCE_LANG"
	EnvTargetLanguage = "PDFT_TARGET_LANG"
	EnvConcurrency    = "PDFT_CONCURRENCY"
	EnvRedisURL       = "PDFT_REDIS_URL"
	EnvFontDir        = "PDFT_FONT_DIR"
	EnvWorkDir        = "PDFT_WORK_DIR"

	// DefaultBaseURL is the default OpenAI API base URL
	DefaultBaseURL = "https://api.openai.com/v1"
)

// ConfigManager manages application configuration
type ConfigManager struct {
	configPath string
	envPath    string
	config     *types.Config
	lookupEnv  func(string) (string, bool)
}

// NewConfigManager creates a new ConfigManager with the specified config path.
// If configPath is empty, it uses the default path in user's home directory.
func NewConfigManager(configPath string) (*ConfigManager, error) {
	if configPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			logger.Error("failed to get user home directory", err)
			return nil, types.NewAppError(types.ErrConfig, "failed to get user home directory", err)
		}
		configPath = filepath.Join(homeDir, ".config", "pdf-translator", DefaultConfigFileName)
	}

	logger.Debug("ConfigManager initialized", logger.String("configPath", configPath))
	return &ConfigManager{
		configPath: configPath,
		envPath:    DefaultEnvFileName,
		config:     types.DefaultConfig(),
		lookupEnv:  os.LookupEnv,
	}, nil
}

// SetEnvFile changes the dotenv file read by Load. An empty path disables it.
func (m *ConfigManager) SetEnvFile(path string) {
	m.envPath = path
}

// Load builds the configuration from defaults, the JSON file, the dotenv file
// and the process environment, in that order of increasing precedence.
func (m *ConfigManager) Load() error {
	logger.Debug("loading configuration", logger.String("path", m.configPath))

	cfg := types.DefaultConfig()
	data, err := os.ReadFile(m.configPath)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			// Invalid JSON, use defaults
			logger.Warn("invalid config file format, using defaults", logger.String("path", m.configPath), logger.Err(err))
			cfg = types.DefaultConfig()
		} else {
			logger.Info("configuration loaded",
				logger.String("path", m.configPath),
				logger.Int("apiKeyLength", len(cfg.OpenAIAPIKey)),
				logger.String("model", cfg.OpenAIModel))
		}
	case os.IsNotExist(err):
		logger.Debug("config file not found, using defaults", logger.String("path", m.configPath))
	default:
		logger.Error("failed to read config file", err, logger.String("path", m.configPath))
		return types.NewAppError(types.ErrConfig, "failed to read config file", err)
	}

	dotenv := m.readEnvFile()
	lookup := func(key string) (string, bool) {
		if v, ok := m.lookupEnv(key); ok && v != "" {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok && v != ""
	}
	if err := applyEnv(cfg, lookup); err != nil {
		return err
	}

	if err := Normalize(cfg); err != nil {
		return err
	}
	m.config = cfg
	return nil
}

// readEnvFile returns the dotenv entries; a missing file yields an empty map.
func (m *ConfigManager) readEnvFile() map[string]string {
	if m.envPath == "" {
		return nil
	}
	values, err := godotenv.Read(m.envPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("failed to read env file", logger.String("path", m.envPath), logger.Err(err))
		}
		return nil
	}
	logger.Debug("env file loaded", logger.String("path", m.envPath), logger.Int("keys", len(values)))
	return values
}

func applyEnv(cfg *types.Config, lookup func(string) (string, bool)) error {
	strFields := []struct {
		key string
		dst *string
	}{
		{EnvOpenAIAPIKey, &cfg.OpenAIAPIKey},
		{EnvOpenAIBaseURL, &cfg.OpenAIBaseURL},
		{EnvOpenAIModel, &cfg.OpenAIModel},
		{EnvSourceLanguage, &cfg.SourceLanguage},
		{EnvTargetLanguage, &cfg.TargetLanguage},
		{EnvRedisURL, &cfg.RedisURL},
		{EnvFontDir, &cfg.FontDir},
		{EnvWorkDir, &cfg.WorkDirectory},
	}
	for _, f := range strFields {
		if v, ok := lookup(f.key); ok {
			*f.dst = v
		}
	}

	if v, ok := lookup(EnvConcurrency); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < 1 {
			return types.NewAppErrorWithDetails(types.ErrConfig, "invalid concurrency", fmt.Sprintf("%s=%q", EnvConcurrency, v), err)
		}
		cfg.Concurrency = n
	}
	return nil
}

// Normalize fills zero fields with defaults and canonicalises language codes.
// It is applied after every override layer, including CLI flags.
func Normalize(cfg *types.Config) error {
	if cfg.OpenAIBaseURL == "" {
		cfg.OpenAIBaseURL = DefaultBaseURL
	}
	if cfg.OpenAIModel == "" {
		cfg.OpenAIModel = types.DefaultOpenAIModel
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = types.DefaultConcurrency
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = types.DefaultMaxRetries
	}
	if cfg.RetryBaseDelayMS < 0 {
		cfg.RetryBaseDelayMS = 0
	}
	if cfg.DPI <= 0 {
		cfg.DPI = types.DefaultDPI
	}
	if len(cfg.OCRLanguages) == 0 {
		cfg.OCRLanguages = []string{"eng"}
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = types.DefaultLogLevel
	}
	if _, ok := logger.ParseLevel(cfg.LogLevel); !ok {
		return types.NewAppErrorWithDetails(types.ErrConfig, "invalid log level", cfg.LogLevel, nil)
	}

	src, err := CanonicalLanguage(orDefault(cfg.SourceLanguage, types.DefaultSourceLanguage))
	if err != nil {
		return types.NewAppErrorWithDetails(types.ErrConfig, "invalid source language", cfg.SourceLanguage, err)
	}
	dst, err := CanonicalLanguage(orDefault(cfg.TargetLanguage, types.DefaultTargetLanguage))
	if err != nil {
		return types.NewAppErrorWithDetails(types.ErrConfig, "invalid target language", cfg.TargetLanguage, err)
	}
	cfg.SourceLanguage, cfg.TargetLanguage = src, dst
	return nil
}

// CanonicalLanguage parses a BCP 47 code and returns its canonical form ("EN" -> "en").
func CanonicalLanguage(code string) (string, error) {
	tag, err := language.Parse(strings.TrimSpace(code))
	if err != nil {
		return "", err
	}
	return tag.String(), nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// Save saves the current configuration to the config file.
func (m *ConfigManager) Save() error {
	logger.Debug("saving configuration", logger.String("path", m.configPath))

	dir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logger.Error("failed to create config directory", err, logger.String("dir", dir))
		return types.NewAppError(types.ErrConfig, "failed to create config directory", err)
	}

	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		logger.Error("failed to marshal config", err)
		return types.NewAppError(types.ErrConfig, "failed to marshal config", err)
	}

	if err := os.WriteFile(m.configPath, data, 0600); err != nil {
		logger.Error("failed to write config file", err, logger.String("path", m.configPath))
		return types.NewAppError(types.ErrConfig, "failed to write config file", err)
	}

	logger.Info("configuration saved", logger.String("path", m.configPath))
	return nil
}

// GetConfig returns the current configuration.
func (m *ConfigManager) GetConfig() *types.Config {
	if m.config == nil {
		return types.DefaultConfig()
	}
	return m.config
}

// SetConfig sets the entire configuration.
func (m *ConfigManager) SetConfig(config *types.Config) {
	m.config = config
}

// GetConfigPath returns the path to the config file.
func (m *ConfigManager) GetConfigPath() string {
	return m.configPath
}

// GetAPIKey returns the OpenAI API key.
func (m *ConfigManager) GetAPIKey() string {
	if m.config != nil {
		return m.config.OpenAIAPIKey
	}
	return ""
}
