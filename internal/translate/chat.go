package translate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"pdf-translator/internal/logger"
)

// generator is the part of an eino chat model used here.
type generator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// ChatServiceConfig configures an OpenAI-compatible chat completion backend.
type ChatServiceConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// ChatService translates through an OpenAI-compatible chat model.
type ChatService struct {
	model     generator
	modelName string
}

// NewChatService creates the eino OpenAI chat model.
func NewChatService(ctx context.Context, cfg ChatServiceConfig) (*ChatService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	chatModelConfig := &openai.ChatModelConfig{
		Model:   cfg.Model,
		APIKey:  cfg.APIKey,
		Timeout: cfg.Timeout,
	}
	if cfg.BaseURL != "" {
		chatModelConfig.BaseURL = cfg.BaseURL
	}

	chatModel, err := openai.NewChatModel(ctx, chatModelConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	logger.Debug("chat translation service created",
		logger.String("model", cfg.Model),
		logger.String("baseURL", cfg.BaseURL))
	return &ChatService{model: chatModel, modelName: cfg.Model}, nil
}

// Translate sends one line of text to the model and returns its reply.
func (s *ChatService) Translate(ctx context.Context, text, source, target string) (string, error) {
	resp, err := s.model.Generate(ctx, []*schema.Message{
		schema.SystemMessage(buildSystemPrompt(source, target)),
		schema.UserMessage(text),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("chat completion returned no message")
	}

	out := strings.TrimSpace(resp.Content)
	if out == "" {
		return "", fmt.Errorf("chat completion returned empty content")
	}
	return out, nil
}

func buildSystemPrompt(source, target string) string {
	return fmt.Sprintf(`You are a professional translator.
Translate the user's text from %s to %s.

RULES:
1. The text is a single line extracted from a scanned document page.
2. Output only the translation, on one line, with no quotes, notes or explanations.
3. Keep numbers, symbols, URLs and proper nouns unchanged.
4. If the text is already in %s or cannot be translated, output it unchanged.`,
		languageName(source), languageName(target), languageName(target))
}

// languageName renders a language code as an English name, e.g. "fr" -> "French".
func languageName(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return code
}
