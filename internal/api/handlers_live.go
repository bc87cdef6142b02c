package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/dgallion1/tategaki/internal/session"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
	wsMaxMessage = 1 << 20
)

// handleLive upgrades to a WebSocket bound to the document's session.
// Clients send session.Command messages and receive session.Event
// messages: a full state first, then every change.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "docID")
	sess, release, err := s.sessions.Acquire(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer release()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "doc_id", id, "error", err)
		return
	}

	c := &liveClient{
		conn:    conn,
		sess:    sess,
		replies: make(chan session.Event, 8),
		done:    make(chan struct{}),
		log:     s.log.With("doc_id", id),
	}
	events, unsubscribe := sess.Subscribe()

	c.reply(sess.Snapshot())
	if err := sess.LoadError(); err != nil {
		c.reply(session.Event{Type: session.EventError, Error: err.Error()})
	}

	go c.writePump(events)
	c.readPump()
	unsubscribe()
	<-c.done
}

type liveClient struct {
	conn    *websocket.Conn
	sess    *session.Session
	replies chan session.Event
	done    chan struct{}
	log     *slog.Logger
}

// reply queues an event for this client only.
func (c *liveClient) reply(ev session.Event) {
	select {
	case c.replies <- ev:
	case <-c.done:
	}
}

// readPump applies incoming commands until the connection fails.
func (c *liveClient) readPump() {
	c.conn.SetReadLimit(wsMaxMessage)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("websocket closed unexpectedly", "error", err)
			}
			return
		}
		var cmd session.Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.reply(session.Event{Type: session.EventError, Error: "invalid command: " + err.Error()})
			continue
		}
		if err := c.sess.Apply(cmd); err != nil {
			c.reply(session.Event{Type: session.EventError, Error: err.Error()})
			continue
		}
		// Selection changes commit nothing, so nothing is broadcast.
		if cmd.Op == session.OpSelect {
			c.reply(c.sess.Snapshot())
		}
	}
}

// writePump owns all writes to the connection. It ends when the
// subscription closes or a write fails.
func (c *liveClient) writePump(events <-chan session.Event) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		close(c.done)
		c.conn.Close()
	}()

	for {
		var ev session.Event
		select {
		case e, ok := <-events:
			if !ok {
				c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			ev = e
		case ev = <-c.replies:
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			continue
		}
		c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := c.conn.WriteJSON(ev); err != nil {
			if !errors.Is(err, websocket.ErrCloseSent) {
				c.log.Debug("websocket write failed", "error", err)
			}
			return
		}
	}
}
