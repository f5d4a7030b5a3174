package summary

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cexll/agentsdk-go/pkg/model"
	"github.com/stellarlinkco/digestbot/internal/config"
	"github.com/stellarlinkco/digestbot/internal/store"
)

type stubCompleter struct {
	resp  string
	err   error
	calls int
	last  model.Request
}

func (s *stubCompleter) Complete(ctx context.Context, req model.Request) (*model.Response, error) {
	s.calls++
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	return &model.Response{Message: model.Message{Role: "assistant", Content: s.resp}}, nil
}

func newTestStore(t *testing.T) *store.FileStore {
	t.Helper()
	return store.NewFileStore(filepath.Join(t.TempDir(), "messages.json"))
}

func TestSummarize_Success(t *testing.T) {
	st := newTestStore(t)
	st.Append("2024-05-01", "Alice: ciao")
	st.Append("2024-05-01", "Bob: come va")

	stub := &stubCompleter{resp: "  Alice saluta, Bob risponde.  "}
	s := New(st, Static(stub), Options{Model: "gpt-test", MaxTokens: 300, ByteBudget: 3500})

	res, err := s.Summarize(context.Background(), "2024-05-01")
	if err != nil {
		t.Fatalf("Summarize error: %v", err)
	}
	if res.Empty || res.Failed {
		t.Fatalf("result = %+v", res)
	}
	if res.Text != "Alice saluta, Bob risponde." {
		t.Errorf("text = %q", res.Text)
	}
	if res.Message() != Header+"Alice saluta, Bob risponde." {
		t.Errorf("message = %q", res.Message())
	}

	if stub.last.System != DefaultSystemPrompt {
		t.Errorf("system = %q", stub.last.System)
	}
	if stub.last.MaxTokens != 300 || stub.last.Model != "gpt-test" {
		t.Errorf("request = %+v", stub.last)
	}
	if len(stub.last.Messages) != 1 || stub.last.Messages[0].Role != "user" {
		t.Fatalf("messages = %+v", stub.last.Messages)
	}
	if !strings.HasSuffix(stub.last.Messages[0].Content, "\n\nAlice: ciao\nBob: come va") {
		t.Errorf("user prompt = %q", stub.last.Messages[0].Content)
	}

	lines, ok, _ := st.Day("2024-05-01")
	if !ok || len(lines) != 0 {
		t.Errorf("day should be present and empty after summary, got %v (ok=%v)", lines, ok)
	}
}

func TestSummarize_EmptyDayDoesNotTouchLog(t *testing.T) {
	st := newTestStore(t)
	st.Append("2024-05-02", "Carla: altro giorno")

	stub := &stubCompleter{resp: "x"}
	s := New(st, Static(stub), Options{})

	res, err := s.Summarize(context.Background(), "2024-05-01")
	if err != nil {
		t.Fatalf("Summarize error: %v", err)
	}
	if !res.Empty {
		t.Fatalf("result = %+v, want Empty", res)
	}
	if res.Message() != NothingToSummarize {
		t.Errorf("message = %q", res.Message())
	}
	if stub.calls != 0 {
		t.Error("completion should not be called for an empty day")
	}
	if _, ok, _ := st.Day("2024-05-01"); ok {
		t.Error("empty summary must not create the day")
	}
	days, _ := st.Days()
	if len(days) != 1 {
		t.Errorf("days = %+v, want untouched", days)
	}

	// A cleared day summarizes as empty too.
	st.Clear("2024-05-02")
	res, _ = s.Summarize(context.Background(), "2024-05-02")
	if !res.Empty {
		t.Error("cleared day should be empty")
	}
}

func TestSummarize_CompletionFailureIsEchoed(t *testing.T) {
	st := newTestStore(t)
	st.Append("2024-05-01", "Alice: ciao")

	s := New(st, Static(&stubCompleter{err: errors.New("rate limited")}), Options{})

	res, err := s.Summarize(context.Background(), "2024-05-01")
	if err != nil {
		t.Fatalf("Summarize error: %v", err)
	}
	if !res.Failed {
		t.Error("result should be marked failed")
	}
	if res.Text != "Errore: rate limited" {
		t.Errorf("text = %q, want %q", res.Text, "Errore: rate limited")
	}
	lines, _, _ := st.Day("2024-05-01")
	if len(lines) != 0 {
		t.Errorf("day should be cleared after failure, got %v", lines)
	}
}

func TestSummarize_ProviderFailureIsEchoed(t *testing.T) {
	st := newTestStore(t)
	st.Append("2024-05-01", "Alice: ciao")

	source := func(context.Context) (Completer, error) {
		return nil, errors.New("api key missing")
	}
	s := New(st, source, Options{})

	res, _ := s.Summarize(context.Background(), "2024-05-01")
	if res.Text != "Errore: api key missing" {
		t.Errorf("text = %q", res.Text)
	}
	if lines, _, _ := st.Day("2024-05-01"); len(lines) != 0 {
		t.Error("day should be cleared")
	}

	s = New(st, nil, Options{})
	st.Append("2024-05-01", "Bob: di nuovo")
	res, _ = s.Summarize(context.Background(), "2024-05-01")
	if !res.Failed {
		t.Error("missing source should fail the completion")
	}
}

func TestSummarize_TruncatesOldestLines(t *testing.T) {
	st := newTestStore(t)
	st.Append("2024-05-01", "old: "+strings.Repeat("x", 50))
	st.Append("2024-05-01", "mid: ciao")
	st.Append("2024-05-01", "new: ciao")

	stub := &stubCompleter{resp: "ok"}
	s := New(st, Static(stub), Options{ByteBudget: 20})

	res, err := s.Summarize(context.Background(), "2024-05-01")
	if err != nil {
		t.Fatalf("Summarize error: %v", err)
	}
	if res.Kept != 2 || res.Dropped != 1 {
		t.Errorf("kept/dropped = %d/%d, want 2/1", res.Kept, res.Dropped)
	}
	if strings.Contains(stub.last.Messages[0].Content, "old:") {
		t.Error("oldest line should have been dropped")
	}
}

func TestPreview(t *testing.T) {
	st := newTestStore(t)
	st.Append("2024-05-01", "a: 1234567890")
	st.Append("2024-05-01", "b: 12")

	s := New(st, nil, Options{ByteBudget: 8})
	p, err := s.Preview("2024-05-01")
	if err != nil {
		t.Fatalf("Preview error: %v", err)
	}
	if p.Total != 2 || p.Kept != 1 || p.Conversation != "b: 12" || p.Bytes != 5 {
		t.Errorf("preview = %+v", p)
	}
	if lines, _, _ := st.Day("2024-05-01"); len(lines) != 2 {
		t.Error("preview must not modify the log")
	}
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(config.SummaryConfig{Model: "m", MaxTokens: 100, ByteBudget: 10, SystemPrompt: "p"})
	if opts.Model != "m" || opts.MaxTokens != 100 || opts.ByteBudget != 10 || opts.SystemPrompt != "p" {
		t.Errorf("opts = %+v", opts)
	}
}

type clearFailStore struct {
	store.Store
}

func (clearFailStore) Clear(string) error { return errors.New("disk full") }

func TestSummarize_ClearFailureKeepsResult(t *testing.T) {
	st := newTestStore(t)
	st.Append("2024-05-01", "Alice: ciao")

	s := New(clearFailStore{st}, Static(&stubCompleter{resp: "ok"}), Options{})
	res, err := s.Summarize(context.Background(), "2024-05-01")
	if !errors.Is(err, ErrNotCleared) {
		t.Fatalf("err = %v, want ErrNotCleared", err)
	}
	if res.Text != "ok" || res.Message() != Header+"ok" {
		t.Errorf("result should still be deliverable, got %+v", res)
	}
}
