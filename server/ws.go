package server

import (
	"context"
	"iter"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/martinemde/wand/events"
	"github.com/martinemde/wand/pipeline"
)

// KindDone is sent after the last event of a run, including stopped runs.
const KindDone events.Kind = "done"

// Message types accepted on /ws.
const (
	MessageChat   = "chat"
	MessageSelect = "select"
	MessageStop   = "stop"
)

// ClientMessage is one request from a websocket client. The request fields
// are read for chat and select.
type ClientMessage struct {
	Type          string   `json:"type"`
	WorkspacePath string   `json:"workspacePath,omitempty"`
	Query         string   `json:"query,omitempty"`
	Files         []string `json:"files,omitempty"`
	Model         string   `json:"model,omitempty"`
}

// wsConn serializes writes; gorilla connections allow one writer at a time.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) send(ev events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(ev)
}

// serveWS runs one request at a time per connection. A new chat or select
// replaces the running one; stop cancels it.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	ws := &wsConn{conn: conn}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		cancel context.CancelFunc = func() {}
	)
	stop := func() {
		mu.Lock()
		cancel()
		mu.Unlock()
	}
	defer func() {
		stop()
		wg.Wait()
	}()

	for {
		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read ended", "error", err)
			}
			return
		}

		switch msg.Type {
		case MessageStop:
			stop()
		case MessageChat, MessageSelect:
			stop()
			wg.Wait()
			ctx, c := context.WithCancel(r.Context())
			mu.Lock()
			cancel = c
			mu.Unlock()

			wg.Add(1)
			go func() {
				defer wg.Done()
				defer c()
				s.runWS(ctx, ws, s.sequence(ctx, msg))
			}()
		default:
			_ = ws.send(events.Event{Type: events.KindError, Content: "unknown message type: " + msg.Type})
		}
	}
}

func (s *Server) sequence(ctx context.Context, msg ClientMessage) iter.Seq[events.Event] {
	if msg.Type == MessageSelect {
		return s.deps.Preprocessor.WhichFiles(ctx, pipeline.Request{
			WorkspacePath: msg.WorkspacePath,
			Query:         msg.Query,
			Files:         msg.Files,
		})
	}
	return s.deps.Assistant.Chat(ctx, pipeline.ChatRequest{
		WorkspacePath: msg.WorkspacePath,
		Query:         msg.Query,
		Files:         msg.Files,
		Model:         msg.Model,
	})
}

// runWS forwards seq until it ends, the client goes away or ctx is
// cancelled. Leaving the loop abandons the sequence.
func (s *Server) runWS(ctx context.Context, ws *wsConn, seq iter.Seq[events.Event]) {
	for ev := range seq {
		if ctx.Err() != nil {
			break
		}
		if err := ws.send(ev); err != nil {
			s.logger.Debug("websocket write failed", "error", err)
			return
		}
	}
	_ = ws.send(events.Event{Type: KindDone})
}
