package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/shellgate/bastion/internal/middleware"
	"github.com/shellgate/bastion/internal/session"
)

// maxInputMessageSize caps a single client input frame. Oversized frames are
// dropped to bound per-message work.
const maxInputMessageSize = 64 * 1024

// controlMsg is the JSON shape of client text frames. Resize frames carry
// cols/rows; explicit command frames carry the command text. A bare
// {cols, rows} object without a type is accepted as a resize for older
// clients.
type controlMsg struct {
	Type    string `json:"type"`
	Cols    uint16 `json:"cols"`
	Rows    uint16 `json:"rows"`
	Command string `json:"command"`
}

// Terminal handles the per-session WebSocket endpoint. The target host id
// is a URL parameter; the bearer token arrives as a query parameter since
// browsers cannot set headers on WebSocket upgrades.
//
// Binary frames are raw keystrokes, forwarded to the remote PTY and mirrored
// into command extraction. Text frames are JSON control messages (resize or
// explicit command). The client receives raw remote output as binary frames
// and, before an idle-timeout close, a single {"type":"timeout"} text frame.
func (api *API) Terminal(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid host ID", http.StatusBadRequest)
		return
	}

	clientConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("Failed to accept terminal websocket: %v", err)
		return
	}
	defer clientConn.CloseNow()

	ctx := r.Context()
	wsc := &wsClient{conn: clientConn, ctx: ctx}

	sess, err := api.Supervisor.Open(ctx, uint(id), middleware.BearerToken(r), wsc)
	if err != nil {
		log.Printf("Terminal session open failed for host %d: %v", id, err)
		switch {
		case errors.Is(err, session.ErrAuthentication):
			clientConn.Close(session.CloseAuthFailure, "Authentication failed")
		case errors.Is(err, session.ErrResolution):
			clientConn.Close(session.CloseNotFound, "Host not found")
		default:
			clientConn.Close(session.CloseInternal, "Failed to reach remote host")
		}
		return
	}
	defer sess.Close()

	clientConn.SetReadLimit(1024 * 1024)

	info, _ := json.Marshal(map[string]string{
		"type":       "session_info",
		"session_id": sess.ID,
	})
	if err := clientConn.Write(ctx, websocket.MessageText, info); err != nil {
		return
	}

	limiter := newTokenBucket(terminalRateLimit, terminalRateBurst)

	for {
		msgType, data, err := clientConn.Read(ctx)
		if err != nil {
			return
		}
		if !limiter.allow() {
			continue
		}

		if msgType == websocket.MessageBinary {
			if len(data) > maxInputMessageSize {
				log.Printf("Terminal input too large: session=%s size=%d", sess.ID, len(data))
				continue
			}
			if err := sess.Send(data); err != nil {
				return
			}
			continue
		}

		var msg controlMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "resize", "":
			sess.Resize(msg.Cols, msg.Rows)
		case "command":
			sess.SubmitCommand(msg.Command)
		}
	}
}

// wsClient adapts a WebSocket connection to session.ClientConn. The write
// mutex serializes output frames from the relay goroutine with control
// frames from the idle-timeout goroutine.
type wsClient struct {
	conn *websocket.Conn
	ctx  context.Context
	mu   sync.Mutex
}

func (c *wsClient) WriteOutput(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Write(c.ctx, websocket.MessageBinary, p)
}

func (c *wsClient) WriteControl(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Write(c.ctx, websocket.MessageText, data)
}

func (c *wsClient) Close(code int, reason string) {
	c.conn.Close(websocket.StatusCode(code), reason)
}
