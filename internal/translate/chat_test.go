package translate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	reply *schema.Message
	err   error
	input []*schema.Message
}

func (g *fakeGenerator) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	g.input = input
	return g.reply, g.err
}

func TestChatService_Translate(t *testing.T) {
	t.Run("returns trimmed content", func(t *testing.T) {
		gen := &fakeGenerator{reply: schema.AssistantMessage("  Bonjour\n", nil)}
		svc := &ChatService{model: gen}

		out, err := svc.Translate(context.Background(), "Hello", "en", "fr")
		require.NoError(t, err)
		assert.Equal(t, "Bonjour", out)

		require.Len(t, gen.input, 2)
		assert.Equal(t, schema.System, gen.input[0].Role)
		assert.Contains(t, gen.input[0].Content, "from English to French")
		assert.Equal(t, schema.User, gen.input[1].Role)
		assert.Equal(t, "Hello", gen.input[1].Content)
	})

	t.Run("empty reply is an error", func(t *testing.T) {
		svc := &ChatService{model: &fakeGenerator{reply: schema.AssistantMessage("   ", nil)}}
		_, err := svc.Translate(context.Background(), "Hello", "en", "fr")
		assert.Error(t, err)
	})

	t.Run("model error is wrapped", func(t *testing.T) {
		cause := errors.New("rate limited")
		svc := &ChatService{model: &fakeGenerator{err: cause}}
		_, err := svc.Translate(context.Background(), "Hello", "en", "fr")
		assert.ErrorIs(t, err, cause)
	})
}

func TestNewChatService_Validation(t *testing.T) {
	_, err := NewChatService(context.Background(), ChatServiceConfig{Model: "m"})
	assert.Error(t, err)

	_, err = NewChatService(context.Background(), ChatServiceConfig{APIKey: "k"})
	assert.Error(t, err)
}

func TestChatService_OpenAICompatibleServer(t *testing.T) {
	var gotModel, gotUser string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotModel = req.Model
		if n := len(req.Messages); n > 0 {
			gotUser = req.Messages[n-1].Content
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "test-model",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Bonjour"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 2, "total_tokens": 12}
		}`))
	}))
	defer srv.Close()

	svc, err := NewChatService(context.Background(), ChatServiceConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "test-model",
	})
	require.NoError(t, err)

	out, err := svc.Translate(context.Background(), "Hello", "en", "fr")
	require.NoError(t, err)
	assert.Equal(t, "Bonjour", out)
	assert.Equal(t, "test-model", gotModel)
	assert.Equal(t, "Hello", gotUser)
}

func TestLanguageName(t *testing.T) {
	assert.Equal(t, "French", languageName("fr"))
	assert.Equal(t, "Hindi", languageName("hi"))
	assert.Equal(t, "???", languageName("???"))
}
