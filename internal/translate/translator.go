// Package translate wraps an external translation service with a bounded
// retry policy and an optional cache.
package translate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"pdf-translator/internal/logger"
)

// Service is an external translation backend.
type Service interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// ServiceFunc adapts a function to Service.
type ServiceFunc func(ctx context.Context, text, source, target string) (string, error)

// Translate calls f.
func (f ServiceFunc) Translate(ctx context.Context, text, source, target string) (string, error) {
	return f(ctx, text, source, target)
}

const (
	// DefaultMaxAttempts is the default number of service calls per text
	DefaultMaxAttempts = 3
	// DefaultBaseDelay is the first backoff interval
	DefaultBaseDelay = 500 * time.Millisecond
	// MaxRetryDelay caps the exponential backoff interval
	MaxRetryDelay = 30 * time.Second
)

// RetryPolicy bounds the number of service calls and the wait between them.
// A zero BaseDelay retries immediately.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns 3 attempts with exponential backoff from 500ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: DefaultMaxAttempts, BaseDelay: DefaultBaseDelay, MaxDelay: MaxRetryDelay}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff = &backoff.ZeroBackOff{}
	if p.BaseDelay > 0 {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = p.BaseDelay
		eb.MaxInterval = p.MaxDelay
		if eb.MaxInterval <= 0 {
			eb.MaxInterval = MaxRetryDelay
		}
		eb.MaxElapsedTime = 0
		eb.Reset()
		b = eb
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.attempts()-1)), ctx)
}

// Status tags how an Outcome was produced.
type Status int

const (
	// StatusSkipped means the text was blank and the service was not called.
	StatusSkipped Status = iota
	// StatusTranslated means a service call succeeded.
	StatusTranslated
	// StatusExhausted means every attempt failed; Text is the original input.
	StatusExhausted
)

func (s Status) String() string {
	switch s {
	case StatusSkipped:
		return "skipped"
	case StatusTranslated:
		return "translated"
	case StatusExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Outcome is the result of one Translate call. It never carries a fatal error:
// on exhaustion Text holds the untranslated input and Err the last failure.
type Outcome struct {
	Text     string
	Status   Status
	Attempts int
	Err      error
}

// Translator translates text between a fixed language pair with retries.
type Translator struct {
	service Service
	source  string
	target  string
	policy  RetryPolicy
}

// NewTranslator binds a service to a language pair and retry policy.
func NewTranslator(service Service, source, target string, policy RetryPolicy) *Translator {
	return &Translator{
		service: service,
		source:  source,
		target:  target,
		policy:  policy,
	}
}

// Languages returns the configured source and target language codes.
func (t *Translator) Languages() (source, target string) {
	return t.source, t.target
}

// Translate returns the translation of text. Blank text is returned as-is
// without calling the service. When every attempt fails the original text is
// returned with StatusExhausted.
func (t *Translator) Translate(ctx context.Context, text string) Outcome {
	if strings.TrimSpace(text) == "" {
		return Outcome{Text: text, Status: StatusSkipped}
	}

	maxAttempts := t.policy.attempts()
	attempts := 0
	var translated string

	op := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempts++
		out, err := t.service.Translate(ctx, text, t.source, t.target)
		if err != nil {
			logger.Warn("translation attempt failed",
				logger.Int("attempt", attempts),
				logger.Int("maxAttempts", maxAttempts),
				logger.Err(err))
			return err
		}
		translated = out
		return nil
	}

	err := backoff.Retry(op, t.policy.backOff(ctx))
	if err != nil {
		logger.Warn("translation failed, keeping original text",
			logger.Int("attempts", attempts),
			logger.String("text", text),
			logger.Err(err))
		return Outcome{Text: text, Status: StatusExhausted, Attempts: attempts, Err: err}
	}
	return Outcome{Text: translated, Status: StatusTranslated, Attempts: attempts}
}
