package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/martinemde/wand/events"
	"github.com/martinemde/wand/selector"
	"github.com/martinemde/wand/summarize"
	"github.com/martinemde/wand/unifiedllm"
	"github.com/martinemde/wand/workspace"
)

// routingCompleter answers selection requests and agent requests with
// separate scripted fragments. Agent requests start with a system message.
type routingCompleter struct {
	mu        sync.Mutex
	selection []string
	agent     []string
	requests  []unifiedllm.Request
}

func (c *routingCompleter) Complete(ctx context.Context, req unifiedllm.Request) (*unifiedllm.Response, error) {
	return nil, errors.New("not used")
}

func (c *routingCompleter) Stream(ctx context.Context, req unifiedllm.Request) (*unifiedllm.Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	fragments := c.selection
	if req.Messages[0].Role == unifiedllm.RoleSystem {
		fragments = c.agent
	}
	ch := make(chan unifiedllm.StreamEvent, len(fragments))
	for _, f := range fragments {
		ch <- unifiedllm.StreamEvent{Type: unifiedllm.TextDelta, Delta: f}
	}
	close(ch)
	return unifiedllm.NewStream(ch, nil), nil
}

// hangingCompleter never answers; calls return once ctx ends.
type hangingCompleter struct{}

func (hangingCompleter) Complete(ctx context.Context, req unifiedllm.Request) (*unifiedllm.Response, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (hangingCompleter) Stream(ctx context.Context, req unifiedllm.Request) (*unifiedllm.Stream, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type countingSummarizer struct {
	mu    sync.Mutex
	paths []string
}

func (s *countingSummarizer) Summarize(ctx context.Context, path string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths = append(s.paths, path)
	return "about " + filepath.Base(path)
}

func (s *countingSummarizer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.paths)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newPreprocessor(c unifiedllm.Completer, sum workspace.Summarizer) *Preprocessor {
	return NewPreprocessor(
		workspace.NewScanner(),
		workspace.NewReconciler(sum, nil),
		selector.New(c, "fast", 0, nil),
		nil,
	)
}

func statusText(evs []events.Event) string {
	var sb strings.Builder
	for _, ev := range evs {
		if ev.Type == events.KindStatus {
			sb.WriteString(ev.Content)
		}
	}
	return sb.String()
}

func lastResult(t *testing.T, evs []events.Event) []string {
	t.Helper()
	if len(evs) == 0 {
		t.Fatal("no events")
	}
	last := evs[len(evs)-1]
	if last.Type != events.KindResult {
		t.Fatalf("expected result as last event, got %+v", last)
	}
	return last.Files
}

var pickFirst = []string{"a.txt explains it.", "\n```json\n[0]\n```"}

func TestWhichFilesIndexesAcrossRuns(t *testing.T) {
	root := t.TempDir()
	a := filepath.Join(root, "a.txt")
	b := filepath.Join(root, "sub", "b.bin")
	writeFile(t, a, "hello")
	writeFile(t, b, "\x00\x01")

	c := &routingCompleter{selection: pickFirst}
	sum := &countingSummarizer{}
	p := newPreprocessor(c, sum)
	req := Request{WorkspacePath: root, Query: "what does a say?"}

	first := events.Collect(p.WhichFiles(context.Background(), req))
	if got := lastResult(t, first); !reflect.DeepEqual(got, []string{a}) {
		t.Errorf("selected %v", got)
	}
	status := statusText(first)
	for _, want := range []string{
		"Preprocessing: scanning workspace",
		"📄 <span style='color:#eab308'>[N]</span> a.txt<br/>",
		"&nbsp;&nbsp;📄 <span style='color:#eab308'>[N]</span> b.bin<br/>",
		"a.txt explains it.",
		"- selected `a.txt`",
	} {
		if !strings.Contains(status, want) {
			t.Errorf("status missing %q:\n%s", want, status)
		}
	}
	if strings.Contains(status, "```") {
		t.Errorf("selection array leaked into status:\n%s", status)
	}
	if sum.count() != 2 {
		t.Errorf("expected 2 summaries, got %d", sum.count())
	}
	if _, err := os.Stat(workspace.IndexPath(root)); err != nil {
		t.Fatalf("index not saved: %v", err)
	}

	second := events.Collect(p.WhichFiles(context.Background(), req))
	status = statusText(second)
	if strings.Contains(status, "[N]") || strings.Count(status, "[✓]") != 2 {
		t.Errorf("expected both files unchanged:\n%s", status)
	}
	if sum.count() != 2 {
		t.Errorf("unchanged files were summarized again: %d", sum.count())
	}

	writeFile(t, a, "hello again")
	third := events.Collect(p.WhichFiles(context.Background(), req))
	status = statusText(third)
	if !strings.Contains(status, "[M]</span> a.txt") {
		t.Errorf("expected a.txt modified:\n%s", status)
	}
	if sum.count() != 3 {
		t.Errorf("expected one more summary, got %d", sum.count())
	}
}

func TestWhichFilesFallsBackWhenAnswerIsUnusable(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "a")
	writeFile(t, filepath.Join(root, "b.txt"), "b")

	c := &routingCompleter{selection: []string{"I cannot decide."}}
	p := newPreprocessor(c, &countingSummarizer{})

	evs := events.Collect(p.WhichFiles(context.Background(), Request{WorkspacePath: root, Query: "q"}))
	got := lastResult(t, evs)
	want := []string{filepath.Join(root, "a.txt"), filepath.Join(root, "b.txt")}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("selected %v, want %v", got, want)
	}
	if !strings.Contains(statusText(evs), "Error in selection") {
		t.Error("expected a selection error status")
	}
}

func TestWhichFilesWithNothingToDo(t *testing.T) {
	c := &routingCompleter{}
	p := newPreprocessor(c, &countingSummarizer{})

	evs := events.Collect(p.WhichFiles(context.Background(), Request{Query: "q"}))
	if len(evs) != 1 {
		t.Fatalf("expected only a result, got %+v", evs)
	}
	if got := lastResult(t, evs); len(got) != 0 {
		t.Errorf("selected %v", got)
	}
	if len(c.requests) != 0 {
		t.Errorf("expected no model calls, got %d", len(c.requests))
	}
}

func TestWhichFilesMissingWorkspace(t *testing.T) {
	p := newPreprocessor(&routingCompleter{}, &countingSummarizer{})
	root := filepath.Join(t.TempDir(), "gone")

	evs := events.Collect(p.WhichFiles(context.Background(), Request{WorkspacePath: root, Query: "q"}))
	if got := lastResult(t, evs); len(got) != 0 {
		t.Errorf("selected %v", got)
	}
	if !strings.Contains(statusText(evs), "Warning: workspace") {
		t.Errorf("expected a warning, got %q", statusText(evs))
	}
}

func TestWhichFilesExplicitFilesWithoutWorkspace(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "notes.md")
	writeFile(t, a, "# notes")

	c := &routingCompleter{selection: pickFirst}
	sum := &countingSummarizer{}
	p := newPreprocessor(c, sum)

	evs := events.Collect(p.WhichFiles(context.Background(), Request{Query: "q", Files: []string{a}}))
	if got := lastResult(t, evs); !reflect.DeepEqual(got, []string{a}) {
		t.Errorf("selected %v", got)
	}
	if _, err := os.Stat(filepath.Join(dir, workspace.MetaDir)); !os.IsNotExist(err) {
		t.Errorf("expected no index directory without a workspace, stat err = %v", err)
	}
	if sum.count() != 1 {
		t.Errorf("expected one summary, got %d", sum.count())
	}
}

func TestWhichFilesWarnsWhenIndexCannotBeSaved(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "a")
	// A plain file where the index directory belongs.
	writeFile(t, filepath.Join(root, workspace.MetaDir), "")

	p := newPreprocessor(&routingCompleter{selection: pickFirst}, &countingSummarizer{})
	evs := events.Collect(p.WhichFiles(context.Background(), Request{WorkspacePath: root, Query: "q"}))

	if !strings.Contains(statusText(evs), "Warning: Failed to save cache:") {
		t.Errorf("expected save warning, got %q", statusText(evs))
	}
	if got := lastResult(t, evs); len(got) != 1 {
		t.Errorf("selection should still complete, got %v", got)
	}
}

func TestWhichFilesStopsWhenConsumerLeaves(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "a")
	writeFile(t, filepath.Join(root, "b.txt"), "b")

	c := &routingCompleter{selection: pickFirst}
	sum := &countingSummarizer{}
	p := newPreprocessor(c, sum)

	for range p.WhichFiles(context.Background(), Request{WorkspacePath: root, Query: "q"}) {
		break
	}
	if sum.count() != 0 {
		t.Errorf("expected no summaries after the consumer left, got %d", sum.count())
	}
	if len(c.requests) != 0 {
		t.Errorf("expected no selection request, got %d", len(c.requests))
	}
}

func TestTextFormat(t *testing.T) {
	p := newPreprocessor(&routingCompleter{selection: pickFirst}, &countingSummarizer{})
	p.Format = TextFormat{}
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "docs", "a.txt"), "a")

	status := statusText(events.Collect(p.WhichFiles(context.Background(), Request{WorkspacePath: root, Query: "q"})))
	if strings.Contains(status, "<details>") {
		t.Errorf("unexpected markup in text format:\n%s", status)
	}
	if !strings.Contains(status, "  [N] a.txt\n") {
		t.Errorf("expected an indented text line:\n%s", status)
	}
}

func TestChooseModel(t *testing.T) {
	models := Models{Text: "text-m", Multimodal: "vision-m"}
	tests := []struct {
		name   string
		files  []string
		models Models
		want   string
	}{
		{"no files", nil, models, "text-m"},
		{"text only", []string{"a.go", "b.md"}, models, "text-m"},
		{"any image", []string{"a.go", "shot.PNG"}, models, "vision-m"},
		{"webp", []string{"x.webp"}, models, "vision-m"},
		{"defaults", []string{"x.jpg"}, Models{}, DefaultMultimodalModel},
		{"text default", []string{"x.txt"}, Models{}, DefaultTextModel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ChooseModel(tt.files, tt.models); got != tt.want {
				t.Errorf("ChooseModel(%v) = %q, want %q", tt.files, got, tt.want)
			}
		})
	}
}

func TestChatSelectsThenAnswers(t *testing.T) {
	root := t.TempDir()
	a := filepath.Join(root, "a.txt")
	writeFile(t, a, "the answer is 42")

	c := &routingCompleter{selection: pickFirst, agent: []string{"It is ", "42."}}
	asst := NewAssistant(newPreprocessor(c, &countingSummarizer{}), c, Models{Text: "text-m", Multimodal: "vision-m"}, nil)

	evs := events.Collect(asst.Chat(context.Background(), ChatRequest{WorkspacePath: root, Query: "what is the answer?"}))

	resultAt, firstChunk := -1, -1
	for i, ev := range evs {
		switch ev.Type {
		case events.KindResult:
			resultAt = i
		case events.KindChunk:
			if firstChunk < 0 {
				firstChunk = i
			}
		case events.KindError:
			t.Fatalf("unexpected error event: %s", ev.Content)
		}
	}
	if resultAt < 0 || firstChunk < resultAt {
		t.Fatalf("expected selection result before the answer: result=%d chunk=%d", resultAt, firstChunk)
	}
	if got := events.Text(evs); got != "It is 42." {
		t.Errorf("answer = %q", got)
	}

	if len(c.requests) != 2 {
		t.Fatalf("expected selection and one agent request, got %d", len(c.requests))
	}
	agentReq := c.requests[1]
	if agentReq.Model != "text-m" {
		t.Errorf("agent model = %q", agentReq.Model)
	}
	var sawContext bool
	for _, m := range agentReq.Messages {
		if strings.Contains(m.Content, "--- File: "+a+" ---") && strings.Contains(m.Content, "the answer is 42") {
			sawContext = true
		}
	}
	if !sawContext {
		t.Error("selected file was not passed to the agent")
	}
}

func TestChatRoutesImagesToMultimodalModel(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "shot.png"), "\x89PNG")

	c := &routingCompleter{selection: pickFirst, agent: []string{"A screenshot."}}
	asst := NewAssistant(newPreprocessor(c, &countingSummarizer{}), c, Models{Text: "text-m", Multimodal: "vision-m"}, nil)
	events.Collect(asst.Chat(context.Background(), ChatRequest{WorkspacePath: root, Query: "describe it"}))

	if len(c.requests) != 2 || c.requests[1].Model != "vision-m" {
		t.Fatalf("expected the multimodal model, requests = %d", len(c.requests))
	}
}

func TestChatModelOverride(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "a")

	c := &routingCompleter{selection: pickFirst, agent: []string{"ok"}}
	asst := NewAssistant(newPreprocessor(c, &countingSummarizer{}), c, Models{Text: "text-m"}, nil)
	events.Collect(asst.Chat(context.Background(), ChatRequest{WorkspacePath: root, Query: "q", Model: "chosen"}))

	if got := c.requests[len(c.requests)-1].Model; got != "chosen" {
		t.Errorf("agent model = %q", got)
	}
}

func TestChatStopsWhenConsumerLeaves(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "a")

	c := &routingCompleter{selection: pickFirst, agent: []string{"never"}}
	asst := NewAssistant(newPreprocessor(c, &countingSummarizer{}), c, Models{}, nil)
	for ev := range asst.Chat(context.Background(), ChatRequest{WorkspacePath: root, Query: "q"}) {
		if ev.Type == events.KindResult {
			break
		}
	}
	if len(c.requests) != 1 {
		t.Errorf("expected only the selection request, got %d", len(c.requests))
	}
}

func TestWhichFilesCancelledSummaryIsNotCached(t *testing.T) {
	root := t.TempDir()
	a := filepath.Join(root, "a.txt")
	writeFile(t, a, "hello")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := newPreprocessor(hangingCompleter{}, summarize.New(hangingCompleter{}, "fast", 0, nil))
	for ev := range p.WhichFiles(ctx, Request{WorkspacePath: root, Query: "q"}) {
		if ev.Type == events.KindStatus && strings.Contains(ev.Content, "a.txt") {
			cancel()
		}
	}

	idx, err := workspace.LoadIndex(workspace.IndexPath(root))
	if err != nil {
		t.Fatal(err)
	}
	if entry, ok := idx["a.txt"]; ok {
		t.Fatalf("cancelled summary was cached: %+v", entry)
	}

	sum := &countingSummarizer{}
	next := events.Collect(newPreprocessor(&routingCompleter{selection: pickFirst}, sum).
		WhichFiles(context.Background(), Request{WorkspacePath: root, Query: "q"}))
	if !strings.Contains(statusText(next), "[N]</span> a.txt") || sum.count() != 1 {
		t.Errorf("expected a.txt summarized again on the next run:\n%s", statusText(next))
	}
}
