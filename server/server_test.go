package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/martinemde/wand/agentloop"
	"github.com/martinemde/wand/events"
	"github.com/martinemde/wand/pipeline"
	"github.com/martinemde/wand/selector"
	"github.com/martinemde/wand/unifiedllm"
	"github.com/martinemde/wand/workspace"
)

// fakeCompleter answers selection requests with selection and agent requests
// (those opening with a system message) with answer. With block set, the
// selection stream produces nothing until its context is cancelled.
type fakeCompleter struct {
	mu        sync.Mutex
	selection []string
	answer    string
	block     bool
	calls     int
}

func (c *fakeCompleter) Complete(ctx context.Context, req unifiedllm.Request) (*unifiedllm.Response, error) {
	return nil, errors.New("not used")
}

func (c *fakeCompleter) Stream(ctx context.Context, req unifiedllm.Request) (*unifiedllm.Stream, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()

	if c.block {
		ch := make(chan unifiedllm.StreamEvent)
		go func() {
			<-ctx.Done()
			close(ch)
		}()
		return unifiedllm.NewStream(ch, nil), nil
	}

	fragments := c.selection
	if req.Messages[0].Role == unifiedllm.RoleSystem {
		fragments = []string{c.answer}
	}
	ch := make(chan unifiedllm.StreamEvent, len(fragments))
	for _, f := range fragments {
		ch <- unifiedllm.StreamEvent{Type: unifiedllm.TextDelta, Delta: f}
	}
	close(ch)
	return unifiedllm.NewStream(ch, nil), nil
}

type nameSummarizer struct{}

func (nameSummarizer) Summarize(ctx context.Context, path string) string {
	return "about " + filepath.Base(path)
}

func newTestServer(t *testing.T, c *fakeCompleter) (*httptest.Server, string) {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("alpha"), 0o644); err != nil {
		t.Fatal(err)
	}

	pre := pipeline.NewPreprocessor(
		workspace.NewScanner(),
		workspace.NewReconciler(nameSummarizer{}, nil),
		selector.New(c, "fast", 0, nil),
		nil,
	)
	srv := New(Deps{
		Preprocessor: pre,
		Assistant:    pipeline.NewAssistant(pre, c, pipeline.Models{Text: "text-m"}, nil),
		Models: func(ctx context.Context) unifiedllm.ModelList {
			return unifiedllm.ModelList{Models: []string{"m1", "m2"}}
		},
		Workspace: root,
	}, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, root
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

var pickFirst = []string{"a.txt fits.", "\n```json\n[0]\n```"}

func TestModels(t *testing.T) {
	ts, _ := newTestServer(t, &fakeCompleter{})
	resp, err := http.Get(ts.URL + "/models")
	if err != nil {
		t.Fatal(err)
	}
	var list unifiedllm.ModelList
	if err := json.Unmarshal([]byte(readBody(t, resp)), &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Models) != 2 || list.Error != "" {
		t.Errorf("unexpected list %+v", list)
	}
}

func TestToolRoutes(t *testing.T) {
	ts, root := newTestServer(t, &fakeCompleter{})

	resp := postJSON(t, ts.URL+"/tools", agentloop.ToolManifest{Name: "scratch", Description: "tmp", Command: "true", Temporary: true})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("save status = %d: %s", resp.StatusCode, readBody(t, resp))
	}
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/tools", agentloop.ToolManifest{Name: "Bad Name", Command: "true"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for an invalid name, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp, err := http.Get(ts.URL + "/tools?workspace=" + root)
	if err != nil {
		t.Fatal(err)
	}
	var listed struct {
		Tools []agentloop.ToolManifest `json:"tools"`
	}
	if err := json.Unmarshal([]byte(readBody(t, resp)), &listed); err != nil {
		t.Fatal(err)
	}
	if len(listed.Tools) != 1 || listed.Tools[0].Name != "scratch" {
		t.Fatalf("listed %+v", listed.Tools)
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/tools/temporary", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if body := readBody(t, resp); !strings.Contains(body, `"removed":["scratch"]`) {
		t.Errorf("unexpected clear response %s", body)
	}
}

func TestSelectStreamsEvents(t *testing.T) {
	ts, root := newTestServer(t, &fakeCompleter{selection: pickFirst})

	resp := postJSON(t, ts.URL+"/select", pipeline.Request{WorkspacePath: root, Query: "alpha?"})
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
	body := readBody(t, resp)
	for _, want := range []string{"event: status\n", "event: result\n", `"files":["` + filepath.Join(root, "a.txt") + `"]`, "event: done\n"} {
		if !strings.Contains(body, want) {
			t.Errorf("stream missing %q:\n%s", want, body)
		}
	}
}

func TestChatRequiresQuery(t *testing.T) {
	ts, _ := newTestServer(t, &fakeCompleter{})
	resp := postJSON(t, ts.URL+"/chat", pipeline.ChatRequest{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestChatStreamsAnswer(t *testing.T) {
	ts, root := newTestServer(t, &fakeCompleter{selection: pickFirst, answer: "Alpha."})
	body := readBody(t, postJSON(t, ts.URL+"/chat", pipeline.ChatRequest{WorkspacePath: root, Query: "alpha?"}))

	result := strings.Index(body, "event: result\n")
	chunk := strings.Index(body, "event: chunk\n")
	if result < 0 || chunk < result {
		t.Fatalf("expected result before chunk:\n%s", body)
	}
	if !strings.Contains(body, `"content":"Alpha."`) {
		t.Errorf("answer missing:\n%s", body)
	}
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads events until one of kind arrives and returns everything
// read.
func readUntil(t *testing.T, conn *websocket.Conn, kind events.Kind) []events.Event {
	t.Helper()
	var got []events.Event
	for {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var ev events.Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read: %v (after %+v)", err, got)
		}
		got = append(got, ev)
		if ev.Type == kind {
			return got
		}
	}
}

func TestWebsocketChat(t *testing.T) {
	ts, root := newTestServer(t, &fakeCompleter{selection: pickFirst, answer: "Alpha."})
	conn := dial(t, ts)

	if err := conn.WriteJSON(ClientMessage{Type: MessageChat, WorkspacePath: root, Query: "alpha?"}); err != nil {
		t.Fatal(err)
	}
	got := readUntil(t, conn, KindDone)
	if text := events.Text(got); text != "Alpha." {
		t.Errorf("answer = %q", text)
	}
}

func TestWebsocketStopCancelsRun(t *testing.T) {
	c := &fakeCompleter{block: true}
	ts, root := newTestServer(t, c)
	conn := dial(t, ts)

	if err := conn.WriteJSON(ClientMessage{Type: MessageSelect, WorkspacePath: root, Query: "alpha?"}); err != nil {
		t.Fatal(err)
	}
	// Wait for the selection section to open; the model call is now blocked.
	for {
		got := readUntil(t, conn, events.KindStatus)
		if strings.Contains(got[len(got)-1].Content, "file selection") {
			break
		}
	}
	if err := conn.WriteJSON(ClientMessage{Type: MessageStop}); err != nil {
		t.Fatal(err)
	}
	got := readUntil(t, conn, KindDone)
	for _, ev := range got {
		if ev.Type == events.KindResult {
			t.Errorf("stopped run should not deliver a result: %+v", got)
		}
	}
}

func TestWebsocketUnknownMessage(t *testing.T) {
	ts, _ := newTestServer(t, &fakeCompleter{})
	conn := dial(t, ts)
	if err := conn.WriteJSON(ClientMessage{Type: "dance"}); err != nil {
		t.Fatal(err)
	}
	got := readUntil(t, conn, events.KindError)
	if !strings.Contains(got[0].Content, "unknown message type") {
		t.Errorf("unexpected reply %+v", got)
	}
}
