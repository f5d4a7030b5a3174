// Package summary turns a day of chat lines into a short natural-language
// recap through a completion API.
package summary

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/cexll/agentsdk-go/pkg/model"
	"github.com/stellarlinkco/digestbot/internal/config"
	"github.com/stellarlinkco/digestbot/internal/store"
)

type Options struct {
	Model        string
	MaxTokens    int
	ByteBudget   int
	SystemPrompt string
}

// OptionsFromConfig maps the summary section of the config.
func OptionsFromConfig(cfg config.SummaryConfig) Options {
	return Options{
		Model:        cfg.Model,
		MaxTokens:    cfg.MaxTokens,
		ByteBudget:   cfg.ByteBudget,
		SystemPrompt: cfg.SystemPrompt,
	}
}

// ErrNotCleared marks a summary that was produced but whose day could not be
// cleared. The accompanying Result is still deliverable.
var ErrNotCleared = errors.New("summarized day not cleared")

type Summarizer struct {
	store  store.Store
	source CompleterSource
	opts   Options
}

func New(st store.Store, source CompleterSource, opts Options) *Summarizer {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = config.DefaultMaxTokens
	}
	if strings.TrimSpace(opts.SystemPrompt) == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	return &Summarizer{store: st, source: source, opts: opts}
}

type Result struct {
	Day string
	// Empty is set when the day had nothing to summarize; the log was not touched.
	Empty bool
	// Text is the completion output, or "Errore: ..." when Failed.
	Text    string
	Failed  bool
	Kept    int
	Dropped int
}

// Message renders the result as the chat reply.
func (r Result) Message() string {
	if r.Empty {
		return NothingToSummarize
	}
	return Header + r.Text
}

// Summarize runs one summary attempt for day. Completion failures never
// produce an error: they are echoed in Result.Text and the day is still
// cleared. The returned error only reports store failures; when it wraps
// ErrNotCleared the Result is still valid and should be delivered.
func (s *Summarizer) Summarize(ctx context.Context, day string) (Result, error) {
	lines, _, err := s.store.Day(day)
	if err != nil {
		return Result{Day: day}, fmt.Errorf("load day %s: %w", day, err)
	}
	if len(lines) == 0 {
		return Result{Day: day, Empty: true}, nil
	}

	kept := Truncate(lines, s.opts.ByteBudget)
	res := Result{Day: day, Kept: len(kept), Dropped: len(lines) - len(kept)}
	if res.Dropped > 0 {
		log.Printf("[summary] %s: dropped %d oldest lines to fit %d bytes", day, res.Dropped, s.opts.ByteBudget)
	}

	text, err := s.complete(ctx, strings.Join(kept, "\n"))
	if err != nil {
		log.Printf("[summary] %s: completion failed: %v", day, err)
		res.Failed = true
		res.Text = errorPrefix + err.Error()
	} else {
		res.Text = text
	}

	if err := s.store.Clear(day); err != nil {
		return res, fmt.Errorf("%w: clear day %s: %w", ErrNotCleared, day, err)
	}
	return res, nil
}

func (s *Summarizer) complete(ctx context.Context, conversation string) (string, error) {
	if s.source == nil {
		return "", errors.New("no completion provider configured")
	}
	c, err := s.source(ctx)
	if err != nil {
		return "", err
	}

	resp, err := c.Complete(ctx, model.Request{
		Messages: []model.Message{
			{Role: "user", Content: fmt.Sprintf(userPrompt, conversation)},
		},
		System:    s.opts.SystemPrompt,
		Model:     s.opts.Model,
		MaxTokens: s.opts.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", errors.New("empty completion response")
	}
	return strings.TrimSpace(resp.Message.Content), nil
}

type Preview struct {
	Day          string
	Conversation string
	Total        int
	Kept         int
	Bytes        int
}

// Preview shows what Summarize would send for day without calling the API
// or touching the log.
func (s *Summarizer) Preview(day string) (Preview, error) {
	lines, _, err := s.store.Day(day)
	if err != nil {
		return Preview{Day: day}, fmt.Errorf("load day %s: %w", day, err)
	}
	kept := Truncate(lines, s.opts.ByteBudget)
	conv := strings.Join(kept, "\n")
	return Preview{
		Day:          day,
		Conversation: conv,
		Total:        len(lines),
		Kept:         len(kept),
		Bytes:        len(conv),
	}, nil
}
