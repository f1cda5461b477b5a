package platform

// Event is a message pushed by the platform, consumed in FIFO order by
// one goroutine per bot.
type Event interface {
	event()
}

// ConnectedEvent fires once the session link is established.
type ConnectedEvent struct{}

// DisconnectedEvent fires when the link drops. UserInitiated is true
// when the disconnect was requested locally.
type DisconnectedEvent struct {
	UserInitiated bool
}

// LoggedOnEvent is the logon response.
type LoggedOnEvent struct {
	Result      Result
	SteamID     uint64
	CellID      uint32
	WebAPINonce string
}

// LoggedOffEvent fires when the platform terminates the logon session.
type LoggedOffEvent struct {
	Result Result
}

// LoginKeyEvent delivers a new remembered session key to persist and ack.
type LoginKeyEvent struct {
	UniqueID uint64
	LoginKey string
}

// MachineAuthEvent asks the client to write a sentry chunk and respond
// with the file hash. JobID must be echoed in the response.
type MachineAuthEvent struct {
	JobID    uint64
	FileName string
	Offset   int64
	Data     []byte
}

// PlayingSessionStateEvent reports whether another session holds the
// "now playing" slot.
type PlayingSessionStateEvent struct {
	Blocked bool
	AppID   uint32
}

// NotificationsEvent carries the current notification counters.
type NotificationsEvent struct {
	Counts map[NotificationType]uint32
}

// FriendMessageEvent is a direct message. Offline marks replayed
// messages received while the account was logged off.
type FriendMessageEvent struct {
	SteamID uint64
	Message string
	Offline bool
}

// ChatMessageEvent is a message in a group chat.
type ChatMessageEvent struct {
	ChatID  uint64
	SteamID uint64
	Message string
}

// FriendRequestEvent is an incoming friend or group invite.
type FriendRequestEvent struct {
	SteamID uint64
	Clan    bool
}

// GuestPassesEvent lists gifts waiting to be accepted.
type GuestPassesEvent struct {
	GiftIDs []uint64
}

func (ConnectedEvent) event()           {}
func (DisconnectedEvent) event()        {}
func (LoggedOnEvent) event()            {}
func (LoggedOffEvent) event()           {}
func (LoginKeyEvent) event()            {}
func (MachineAuthEvent) event()         {}
func (PlayingSessionStateEvent) event() {}
func (NotificationsEvent) event()       {}
func (FriendMessageEvent) event()       {}
func (ChatMessageEvent) event()         {}
func (FriendRequestEvent) event()       {}
func (GuestPassesEvent) event()         {}
