package selector

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/martinemde/wand/events"
	"github.com/martinemde/wand/unifiedllm"
	"github.com/martinemde/wand/workspace"
)

// streamCompleter streams a fixed list of fragments.
type streamCompleter struct {
	fragments []string
	err       error
	calls     int
	prompt    string
}

func (c *streamCompleter) Complete(ctx context.Context, req unifiedllm.Request) (*unifiedllm.Response, error) {
	return nil, errors.New("not used")
}

func (c *streamCompleter) Stream(ctx context.Context, req unifiedllm.Request) (*unifiedllm.Stream, error) {
	c.calls++
	c.prompt = req.Messages[len(req.Messages)-1].Content
	if c.err != nil {
		return nil, c.err
	}
	ch := make(chan unifiedllm.StreamEvent, len(c.fragments)+1)
	for _, f := range c.fragments {
		ch <- unifiedllm.StreamEvent{Type: unifiedllm.TextDelta, Delta: f}
	}
	close(ch)
	return unifiedllm.NewStream(ch, nil), nil
}

func entries(names ...string) []workspace.Selectable {
	out := make([]workspace.Selectable, len(names))
	for i, n := range names {
		out[i] = workspace.Selectable{Path: "/ws/" + n, Description: "about " + n}
	}
	return out
}

func TestParseIndices(t *testing.T) {
	tests := []struct {
		name     string
		response string
		n        int
		want     []int
		wantErr  bool
	}{
		{"json fence", "Because.\n```json\n[2, 0]\n```", 3, []int{2, 0}, false},
		{"json fence wins over plain fence", "```\n[1]\n```\n```json\n[0]\n```", 3, []int{0}, false},
		{"plain fence", "```\n[1]\n```", 3, []int{1}, false},
		{"bare array", "I picked these: [0, 1] done", 3, []int{0, 1}, false},
		{"out of range dropped", "[0, 7, -1, 2]", 3, []int{0, 2}, false},
		{"non integers dropped", `[0, "1", 1.5, true, null, 2]`, 3, []int{0, 2}, false},
		{"object selects nothing", `{"files": 1}`, 3, []int{}, false},
		{"empty array", "[]", 3, []int{}, false},
		{"not json", "no files here", 3, nil, true},
		{"broken array", "[0, 1", 3, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseIndices(tt.response, tt.n)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReasoningFilter(t *testing.T) {
	var f ReasoningFilter
	var shown []string
	for _, frag := range []string{"Pick <a> ", "and b.", "\n```json\n[0]", "\n```"} {
		if text, ok := f.Push(frag); ok {
			shown = append(shown, text)
		}
	}
	want := []string{"Pick &lt;a&gt; ", "and b."}
	if !reflect.DeepEqual(shown, want) {
		t.Errorf("shown = %q, want %q", shown, want)
	}
	if f.Response() != "Pick <a> and b.\n```json\n[0]\n```" {
		t.Errorf("unexpected response %q", f.Response())
	}
}

func TestReasoningFilterSuppressesLeadingArray(t *testing.T) {
	var f ReasoningFilter
	if _, ok := f.Push("  [0, 1]"); ok {
		t.Error("expected array response to be suppressed")
	}
	if _, ok := f.Push(" trailing"); ok {
		t.Error("expected suppression to persist")
	}
}

func TestSelectStreamsReasoningAndReturnsPaths(t *testing.T) {
	c := &streamCompleter{fragments: []string{"B has the budget.", "\n```json\n[1, 0]\n```"}}
	s := New(c, "fast", 0.7, nil)

	var statuses []string
	files, err := s.Select(context.Background(), "budget?", entries("a.txt", "b.txt"), func(ev events.Event) bool {
		statuses = append(statuses, ev.Content)
		return true
	})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(files, []string{"/ws/b.txt", "/ws/a.txt"}) {
		t.Errorf("files = %v", files)
	}
	if !reflect.DeepEqual(statuses, []string{"B has the budget."}) {
		t.Errorf("statuses = %q", statuses)
	}
	if !strings.Contains(c.prompt, `User Query: "budget?"`) || !strings.Contains(c.prompt, "1. b.txt: about b.txt") {
		t.Errorf("unexpected prompt %q", c.prompt)
	}
}

func TestSelectFallsBackOnParseError(t *testing.T) {
	c := &streamCompleter{fragments: []string{"I cannot decide."}}
	s := New(c, "fast", 0.7, nil)

	var statuses []string
	names := []string{"0", "1", "2", "3", "4", "5", "6"}
	files, err := s.Select(context.Background(), "q", entries(names...), func(ev events.Event) bool {
		statuses = append(statuses, ev.Content)
		return true
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != DefaultFallbackCount || files[0] != "/ws/0" || files[4] != "/ws/4" {
		t.Errorf("expected first five entries, got %v", files)
	}
	last := statuses[len(statuses)-1]
	if !strings.Contains(last, "Error in selection: ") {
		t.Errorf("expected error status, got %q", last)
	}
}

func TestSelectFallsBackOnCompletionError(t *testing.T) {
	c := &streamCompleter{err: &unifiedllm.AuthenticationError{}}
	s := New(c, "fast", 0.7, nil)

	files, err := s.Select(context.Background(), "q", entries("a", "b"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(files, []string{"/ws/a", "/ws/b"}) {
		t.Errorf("files = %v", files)
	}
}

func TestSelectWithoutEntriesMakesNoRequest(t *testing.T) {
	c := &streamCompleter{}
	files, err := New(c, "fast", 0.7, nil).Select(context.Background(), "q", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 0 || c.calls != 0 {
		t.Errorf("files = %v, calls = %d", files, c.calls)
	}
}

func TestSelectStopsWhenConsumerLeaves(t *testing.T) {
	c := &streamCompleter{fragments: []string{"thinking", " more", "\n[0]"}}
	_, err := New(c, "fast", 0.7, nil).Select(context.Background(), "q", entries("a"), func(events.Event) bool {
		return false
	})
	if !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped, got %v", err)
	}
}
