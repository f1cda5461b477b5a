package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ErrNotConnected is returned by operations that need a live link.
var ErrNotConnected = errors.New("platform: not connected")

const (
	dialTimeout  = 10 * time.Second
	writeTimeout = 10 * time.Second
	readTimeout  = 90 * time.Second
	pingInterval = 45 * time.Second
	eventBacklog = 64
)

// Client is one account's session link. Connect and Disconnect may be
// called repeatedly; events from every connection arrive on the same
// channel in arrival order.
type Client struct {
	log     *slog.Logger
	servers []string
	dialer  *websocket.Dialer

	events chan Event

	mu        sync.Mutex
	conn      *websocket.Conn
	userClose bool
	serverIdx int

	writeMu sync.Mutex

	jobSeq atomic.Uint64
	jobMu  sync.Mutex
	jobs   map[uint64]chan []byte
}

// NewClient builds a link that rotates through the given endpoints.
// Endpoints may be "host:port" or full ws:// / wss:// URLs.
func NewClient(servers []string, log *slog.Logger) *Client {
	return &Client{
		log:     log,
		servers: servers,
		dialer:  &websocket.Dialer{HandshakeTimeout: dialTimeout},
		events:  make(chan Event, eventBacklog),
		jobs:    make(map[uint64]chan []byte),
	}
}

// Events returns the event stream. It is never closed; consumers stop
// reading when their bot shuts down.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Connected reports whether the link is currently up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Connect dials the next endpoint in the rotation. On success a
// ConnectedEvent is emitted and the read loop starts.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return errors.New("platform: already connected")
	}
	if len(c.servers) == 0 {
		c.mu.Unlock()
		return errors.New("platform: no endpoints configured")
	}
	server := c.servers[c.serverIdx%len(c.servers)]
	c.serverIdx++
	c.mu.Unlock()

	endpoint := serverURL(server)
	conn, _, err := c.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", endpoint, err)
	}

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	c.mu.Lock()
	c.conn = conn
	c.userClose = false
	c.mu.Unlock()

	c.log.Debug("session link up", "server", server)

	go c.readLoop(conn)
	go c.pingLoop(conn)

	c.events <- ConnectedEvent{}
	return nil
}

// Disconnect tears the link down locally. The matching DisconnectedEvent
// carries UserInitiated=true.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	if conn != nil {
		c.userClose = true
	}
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			user := c.userClose
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()

			conn.Close()
			c.failPendingJobs()
			if !user {
				c.log.Debug("session link lost", "err", err)
			}
			c.events <- DisconnectedEvent{UserInitiated: user}
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		c.dispatch(data)
	}
}

func (c *Client) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		current := c.conn == conn
		c.mu.Unlock()
		if !current {
			return
		}
		if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
			return
		}
	}
}

func (c *Client) dispatch(frame []byte) {
	t, jobID, body, err := DecodeFrame(frame)
	if err != nil {
		c.log.Warn("dropping malformed frame", "err", err)
		return
	}

	// Odd job ids belong to in-flight local calls.
	if jobID%2 == 1 {
		c.jobMu.Lock()
		ch, ok := c.jobs[jobID]
		if ok {
			delete(c.jobs, jobID)
		}
		c.jobMu.Unlock()

		if !ok {
			c.log.Debug("reply for finished job", "type", t, "job", jobID)
			return
		}
		ch <- body
		return
	}

	ev, err := eventFrom(t, jobID, body)
	if err != nil {
		c.log.Warn("dropping malformed message", "type", t, "err", err)
		return
	}
	if ev != nil {
		c.events <- ev
	}
}

func eventFrom(t MsgType, jobID uint64, body []byte) (Event, error) {
	switch t {
	case MsgLoggedOn:
		var b loggedOnBody
		if err := json.Unmarshal(body, &b); err != nil {
			return nil, err
		}
		return LoggedOnEvent{Result: b.Result, SteamID: b.SteamID, CellID: b.CellID, WebAPINonce: b.WebAPINonce}, nil
	case MsgLoggedOff:
		var b loggedOffBody
		if err := json.Unmarshal(body, &b); err != nil {
			return nil, err
		}
		return LoggedOffEvent{Result: b.Result}, nil
	case MsgLoginKey:
		var b loginKeyBody
		if err := json.Unmarshal(body, &b); err != nil {
			return nil, err
		}
		return LoginKeyEvent{UniqueID: b.UniqueID, LoginKey: b.LoginKey}, nil
	case MsgMachineAuth:
		var b machineAuthBody
		if err := json.Unmarshal(body, &b); err != nil {
			return nil, err
		}
		return MachineAuthEvent{JobID: jobID, FileName: b.FileName, Offset: b.Offset, Data: b.Data}, nil
	case MsgPlayingSession:
		var b playingSessionBody
		if err := json.Unmarshal(body, &b); err != nil {
			return nil, err
		}
		return PlayingSessionStateEvent{Blocked: b.Blocked, AppID: b.AppID}, nil
	case MsgNotifications:
		var b notificationsBody
		if err := json.Unmarshal(body, &b); err != nil {
			return nil, err
		}
		counts := make(map[NotificationType]uint32, len(b.Notifications))
		for _, n := range b.Notifications {
			counts[n.Type] += n.Count
		}
		return NotificationsEvent{Counts: counts}, nil
	case MsgFriendMessage:
		var b friendMessageBody
		if err := json.Unmarshal(body, &b); err != nil {
			return nil, err
		}
		return FriendMessageEvent{SteamID: b.SteamID, Message: b.Message, Offline: b.Offline}, nil
	case MsgChatMessage:
		var b chatMessageBody
		if err := json.Unmarshal(body, &b); err != nil {
			return nil, err
		}
		return ChatMessageEvent{ChatID: b.ChatID, SteamID: b.SteamID, Message: b.Message}, nil
	case MsgFriendRequest:
		var b friendRequestBody
		if err := json.Unmarshal(body, &b); err != nil {
			return nil, err
		}
		return FriendRequestEvent{SteamID: b.SteamID, Clan: b.Clan}, nil
	case MsgGuestPassList:
		var b guestPassListBody
		if err := json.Unmarshal(body, &b); err != nil {
			return nil, err
		}
		ids := make([]uint64, 0, len(b.GuestPasses))
		for _, p := range b.GuestPasses {
			ids = append(ids, p.GiftID)
		}
		return GuestPassesEvent{GiftIDs: ids}, nil
	default:
		return nil, nil
	}
}

func (c *Client) failPendingJobs() {
	c.jobMu.Lock()
	defer c.jobMu.Unlock()
	for id, ch := range c.jobs {
		close(ch)
		delete(c.jobs, id)
	}
}

func (c *Client) send(t MsgType, jobID uint64, body any) error {
	var data []byte
	if body != nil {
		var err error
		data, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s body: %w", t, err)
		}
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.BinaryMessage, EncodeFrame(t, jobID, data)); err != nil {
		return fmt.Errorf("sending %s: %w", t, err)
	}
	return nil
}

// call sends a request under a fresh odd job id and waits for the reply.
func (c *Client) call(ctx context.Context, t MsgType, body any) ([]byte, error) {
	jobID := c.jobSeq.Add(2) - 1

	ch := make(chan []byte, 1)
	c.jobMu.Lock()
	c.jobs[jobID] = ch
	c.jobMu.Unlock()
	defer func() {
		c.jobMu.Lock()
		delete(c.jobs, jobID)
		c.jobMu.Unlock()
	}()

	if err := c.send(t, jobID, body); err != nil {
		return nil, err
	}

	select {
	case data, ok := <-ch:
		if !ok {
			return nil, ErrNotConnected
		}
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// LogOn starts the logon handshake; the outcome arrives as a
// LoggedOnEvent.
func (c *Client) LogOn(details LogOnDetails) error {
	return c.send(MsgLogOn, 0, details)
}

// LogOff announces an orderly logoff before disconnecting.
func (c *Client) LogOff() error {
	return c.send(MsgLogOff, 0, nil)
}

// AcceptLoginKey acknowledges a LoginKeyEvent after the key is persisted.
func (c *Client) AcceptLoginKey(uniqueID uint64) error {
	return c.send(MsgAcceptLoginKey, 0, acceptLoginKeyBody{UniqueID: uniqueID})
}

// SendMachineAuthResponse answers a MachineAuthEvent under its job id.
func (c *Client) SendMachineAuthResponse(resp MachineAuthResponse) error {
	return c.send(MsgMachineAuthResponse, resp.JobID, resp)
}

// PlayGames reports the given apps (or a custom name) as now playing.
// Empty arguments clear the playing state.
func (c *Client) PlayGames(appIDs []uint32, gameName string) error {
	return c.send(MsgPlayGames, 0, playGamesBody{AppIDs: appIDs, GameName: gameName})
}

// SetPersonaState publishes the account's presence.
func (c *Client) SetPersonaState(state PersonaState) error {
	return c.send(MsgPersonaState, 0, personaStateBody{State: state})
}

// JoinChat enters a group chat.
func (c *Client) JoinChat(chatID uint64) error {
	return c.send(MsgJoinChat, 0, joinChatBody{ChatID: chatID})
}

// LeaveChat leaves a group chat.
func (c *Client) LeaveChat(chatID uint64) error {
	return c.send(MsgLeaveChat, 0, joinChatBody{ChatID: chatID})
}

// SendChatMessage posts into a group chat.
func (c *Client) SendChatMessage(chatID uint64, message string) error {
	return c.send(MsgChatMessage, 0, chatMessageBody{ChatID: chatID, Message: message})
}

// SendMessage sends a direct message.
func (c *Client) SendMessage(steamID uint64, message string) error {
	return c.send(MsgFriendMessage, 0, friendMessageBody{SteamID: steamID, Message: message})
}

// AddFriend accepts a friend request or invites the given account.
func (c *Client) AddFriend(steamID uint64) error {
	return c.send(MsgAddFriend, 0, steamIDBody{SteamID: steamID})
}

// RemoveFriend declines a friend request or drops the given account.
func (c *Client) RemoveFriend(steamID uint64) error {
	return c.send(MsgRemoveFriend, 0, steamIDBody{SteamID: steamID})
}

// RespondToClanInvite accepts or declines a group invite.
func (c *Client) RespondToClanInvite(clanID uint64, accept bool) error {
	return c.send(MsgClanInviteResponse, 0, clanInviteResponseBody{ClanID: clanID, Accept: accept})
}

// RequestOfflineMessages asks for messages received while logged off;
// they replay as FriendMessageEvents with Offline set.
func (c *Client) RequestOfflineMessages() error {
	return c.send(MsgOfflineMessages, 0, nil)
}

// RedeemKey activates a product key on the logged-on account.
func (c *Client) RedeemKey(ctx context.Context, key string) (*Purchase, error) {
	body, err := c.call(ctx, MsgRedeemKey, redeemKeyBody{Key: key})
	if err != nil {
		return nil, err
	}
	var resp purchaseResponseBody
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing purchase response: %w", err)
	}
	return &Purchase{Result: resp.Result, Detail: resp.Detail, Items: resp.Items}, nil
}

// RequestFreeLicense asks the platform to grant free licenses.
func (c *Client) RequestFreeLicense(ctx context.Context, appIDs ...uint32) (*FreeLicenseResult, error) {
	body, err := c.call(ctx, MsgFreeLicense, freeLicenseBody{AppIDs: appIDs})
	if err != nil {
		return nil, err
	}
	var resp freeLicenseResponseBody
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing free license response: %w", err)
	}
	return &FreeLicenseResult{Result: resp.Result, GrantedApps: resp.GrantedApps, GrantedPackages: resp.GrantedPackages}, nil
}

// RequestWebAPIUserNonce fetches a fresh nonce for web session init.
func (c *Client) RequestWebAPIUserNonce(ctx context.Context) (string, error) {
	body, err := c.call(ctx, MsgWebAPINonce, nil)
	if err != nil {
		return "", err
	}
	var resp webAPINonceResponseBody
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("parsing nonce response: %w", err)
	}
	if resp.Result != ResultOK {
		return "", fmt.Errorf("nonce request failed: %s", resp.Result)
	}
	return resp.Nonce, nil
}

func serverURL(server string) string {
	if u, err := url.Parse(server); err == nil && (u.Scheme == "ws" || u.Scheme == "wss") {
		return server
	}
	u := url.URL{Scheme: "wss", Host: server, Path: "/cmsocket/"}
	return u.String()
}
