// Package platformtest runs an in-process platform endpoint for tests.
// Tests script the server side by handling inbound frames and pushing
// events through the same wire envelope the real platform uses.
package platformtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gorilla/websocket"

	"cardfarm/internal/platform"
)

// HandlerFunc receives every inbound frame on a connection.
type HandlerFunc func(c *Conn, t platform.MsgType, jobID uint64, body []byte)

// Server is a scripted platform endpoint.
type Server struct {
	ts     *httptest.Server
	handle HandlerFunc

	mu    sync.Mutex
	conns []*Conn
}

// New starts a stub endpoint whose connections are driven by handle.
// The server shuts down with the test.
func New(tb testing.TB, handle HandlerFunc) *Server {
	tb.Helper()

	s := &Server{handle: handle}
	upgrader := &websocket.Upgrader{}
	s.ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := &Conn{ws: ws}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()
		go s.serve(conn)
	}))
	tb.Cleanup(s.Close)
	return s
}

// URL returns the websocket endpoint to hand to the client under test.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.ts.URL, "http")
}

// Close drops every live connection and stops the listener.
func (s *Server) Close() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
	s.ts.Close()
}

func (s *Server) serve(c *Conn) {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		t, jobID, body, err := platform.DecodeFrame(data)
		if err != nil {
			continue
		}
		if s.handle != nil {
			s.handle(c, t, jobID, body)
		}
	}
}

// Conn is the server side of one client connection.
type Conn struct {
	ws     *websocket.Conn
	mu     sync.Mutex
	jobSeq atomic.Uint64
}

// Close drops the connection.
func (c *Conn) Close() {
	c.ws.Close()
}

// Send pushes a frame. A zero jobID marks a plain event; use Reply for
// request responses and NextJobID for server-initiated jobs.
func (c *Conn) Send(t platform.MsgType, jobID uint64, body any) {
	var data []byte
	if body != nil {
		data, _ = json.Marshal(body)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.WriteMessage(websocket.BinaryMessage, platform.EncodeFrame(t, jobID, data))
}

// Reply answers a client job under its own id.
func (c *Conn) Reply(jobID uint64, t platform.MsgType, body any) {
	c.Send(t, jobID, body)
}

// NextJobID allocates an even id for a server-initiated job.
func (c *Conn) NextJobID() uint64 {
	return c.jobSeq.Add(2)
}

// SendLoggedOn pushes a logon response event.
func (c *Conn) SendLoggedOn(result platform.Result, steamID uint64, cellID uint32, nonce string) {
	c.Send(platform.MsgLoggedOn, 0, map[string]any{
		"eresult":      uint32(result),
		"steam_id":     steamID,
		"cell_id":      cellID,
		"webapi_nonce": nonce,
	})
}

// SendLoggedOff pushes a session termination event.
func (c *Conn) SendLoggedOff(result platform.Result) {
	c.Send(platform.MsgLoggedOff, 0, map[string]any{"eresult": uint32(result)})
}

// SendLoginKey pushes a remembered-key event.
func (c *Conn) SendLoginKey(uniqueID uint64, key string) {
	c.Send(platform.MsgLoginKey, 0, map[string]any{
		"unique_id": uniqueID,
		"login_key": key,
	})
}

// SendMachineAuth starts a sentry-update job and returns its id.
func (c *Conn) SendMachineAuth(fileName string, offset int64, data []byte) uint64 {
	jobID := c.NextJobID()
	c.Send(platform.MsgMachineAuth, jobID, map[string]any{
		"filename": fileName,
		"offset":   offset,
		"bytes":    data,
	})
	return jobID
}

// SendPlayingSession pushes a playing-state change.
func (c *Conn) SendPlayingSession(blocked bool, appID uint32) {
	c.Send(platform.MsgPlayingSession, 0, map[string]any{
		"playing_blocked": blocked,
		"playing_app":     appID,
	})
}

// SendNotifications pushes notification counters.
func (c *Conn) SendNotifications(counts map[platform.NotificationType]uint32) {
	notifications := make([]map[string]any, 0, len(counts))
	for t, n := range counts {
		notifications = append(notifications, map[string]any{"type": uint32(t), "count": n})
	}
	c.Send(platform.MsgNotifications, 0, map[string]any{"notifications": notifications})
}

// SendFriendMessage pushes a direct message.
func (c *Conn) SendFriendMessage(steamID uint64, message string, offline bool) {
	c.Send(platform.MsgFriendMessage, 0, map[string]any{
		"steam_id": steamID,
		"message":  message,
		"offline":  offline,
	})
}

// SendChatMessage pushes a group-chat message.
func (c *Conn) SendChatMessage(chatID, steamID uint64, message string) {
	c.Send(platform.MsgChatMessage, 0, map[string]any{
		"chat_id":  chatID,
		"steam_id": steamID,
		"message":  message,
	})
}

// SendFriendRequest pushes an incoming friend or group invite.
func (c *Conn) SendFriendRequest(steamID uint64, clan bool) {
	c.Send(platform.MsgFriendRequest, 0, map[string]any{
		"steam_id": steamID,
		"clan":     clan,
	})
}

// SendGuestPasses pushes a pending-gifts list.
func (c *Conn) SendGuestPasses(giftIDs ...uint64) {
	passes := make([]map[string]any, 0, len(giftIDs))
	for _, id := range giftIDs {
		passes = append(passes, map[string]any{"gid": id})
	}
	c.Send(platform.MsgGuestPassList, 0, map[string]any{"guest_passes": passes})
}
