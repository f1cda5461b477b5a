// Package bot ties one platform account together: the protocol session,
// the web session, farming, trading, the authenticator, and the command
// surface, driven by a per-account state machine.
package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"cardfarm/internal/config"
	"cardfarm/internal/farmer"
	"cardfarm/internal/gate"
	"cardfarm/internal/guard"
	"cardfarm/internal/metrics"
	"cardfarm/internal/platform"
	"cardfarm/internal/store"
	"cardfarm/internal/trading"
	"cardfarm/internal/websession"
)

// State is the position of a bot in its lifecycle.
type State int

const (
	StateStopped State = iota
	StateConnecting
	StateLoggingIn
	StateWebBootstrapping
	StateReady
	StatePlayingBlocked
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateConnecting:
		return "Connecting"
	case StateLoggingIn:
		return "LoggingIn"
	case StateWebBootstrapping:
		return "WebBootstrapping"
	case StateReady:
		return "Ready"
	case StatePlayingBlocked:
		return "PlayingBlocked"
	case StateDisconnecting:
		return "Disconnecting"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

const (
	// invalidPasswordThrottle is how long to wait before retrying after
	// the platform rejected the password outright.
	invalidPasswordThrottle = 25 * time.Minute

	// connectRetryPause spaces dial attempts when every endpoint is down.
	connectRetryPause = 5 * time.Second

	// readyGracePeriod lets a playing-session push arrive before the
	// first farming start.
	readyGracePeriod = time.Second
)

// inputKind names the credential the bot is stalled on.
type inputKind int

const (
	inputNone inputKind = iota
	inputEmailCode
	inputTwoFactorCode
)

// Bot runs one account.
type Bot struct {
	name   string
	cfg    config.Bot
	global config.Global
	log    *slog.Logger

	client        *platform.Client
	web           *websession.Session
	db            *store.BotDatabase
	globalDB      *store.GlobalDatabase
	sentry        *store.SentryFile
	farmer        *farmer.Farmer
	trading       *trading.Trading
	sup           *Supervisor
	loginGate     *gate.Gate
	giftsGate     *gate.Gate
	maFilePath    string
	throttle      time.Duration
	elsewherePause time.Duration

	stopWake chan struct{} // single-slot, cuts reconnect sleeps short

	mu             sync.Mutex
	state          State
	keepRunning    bool
	connecting     bool
	invalidPass    bool
	usedLoginKey   bool
	planned        bool // bot-initiated disconnect that must still reconnect
	awaiting       inputKind
	authCode       string // one-time email code
	twoFactorCode  string // one-time app code
	reconnectPause time.Duration
	auth           *guard.Authenticator
	confirmations  *guard.Confirmations
	runCtx         context.Context
}

// NewBot assembles a bot from its configuration. It does not connect.
func NewBot(name string, cfg config.Bot, global config.Global, sup *Supervisor, globalDB *store.GlobalDatabase, log *slog.Logger) (*Bot, error) {
	db, err := store.LoadBotDatabase(config.BotDatabasePath(global.BotsDir, name))
	if err != nil {
		return nil, fmt.Errorf("loading database for %s: %w", name, err)
	}

	blog := log.With("bot", name)
	b := &Bot{
		name:           name,
		cfg:            cfg,
		global:         global,
		log:            blog,
		db:             db,
		globalDB:       globalDB,
		sentry:         store.NewSentryFile(config.BotSentryPath(global.BotsDir, name)),
		sup:            sup,
		loginGate:      sup.loginGate,
		giftsGate:      sup.giftsGate,
		maFilePath:     config.BotMaFilePath(global.BotsDir, name),
		throttle:       invalidPasswordThrottle,
		elsewherePause: global.LoggedInElsewhereDelayDuration(),
		stopWake:       make(chan struct{}, 1),
		state:          StateStopped,
		runCtx:         context.Background(),
	}

	b.client = platform.NewClient(global.CMServers, blog)
	browser := websession.NewBrowser(global.CommunityHost, global.HTTPTimeoutDuration(),
		global.WebRetryLimit, global.WebRequestsPerSecond, blog)
	b.web = websession.NewSession(browser, func(ctx context.Context) (string, error) {
		return b.client.RequestWebAPIUserNonce(ctx)
	}, blog)

	if rec := db.Authenticator(); rec != nil && rec.Valid() {
		auth, err := guard.NewAuthenticator(rec.SharedSecret, rec.IdentitySecret, rec.DeviceID)
		if err != nil {
			return nil, fmt.Errorf("restoring authenticator for %s: %w", name, err)
		}
		b.auth = auth
		b.confirmations = guard.NewConfirmations(auth, b.web, blog)
	}

	blacklist := append(append([]uint32(nil), cfg.Blacklist...), global.FarmBlacklist...)
	b.farmer = farmer.New(b.web, b.client, farmer.Options{
		Name:           name,
		FarmingDelay:   global.FarmingDelayDuration(),
		MaxFarmingTime: global.MaxFarmingTimeDuration(),
		Restricted:     cfg.CardDropsRestricted,
		Blacklist:      blacklist,
		OnFinished:     b.onFarmingFinished,
		Log:            blog,
	})
	b.trading = trading.New(name, b.web, b.confirmer(), cfg.MasterID, cfg.TradeToken, blog)

	return b, nil
}

// confirmer adapts the nil-ness of the confirmations handle to the
// trading interface.
func (b *Bot) confirmer() trading.Confirmer {
	if b.confirmations == nil {
		return nil
	}
	return b.confirmations
}

// Name returns the account's configured name.
func (b *Bot) Name() string { return b.name }

// KeepRunning reports whether the bot wants a live session.
func (b *Bot) KeepRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.keepRunning
}

// State returns the current lifecycle state.
func (b *Bot) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Connected reports whether the protocol link is up.
func (b *Bot) Connected() bool { return b.client.Connected() }

func (b *Bot) setState(s State) {
	b.mu.Lock()
	prev := b.state
	b.state = s
	b.mu.Unlock()
	if prev != s {
		b.log.Debug("state changed", "from", prev, "to", s)
	}
}

// Run consumes platform events until ctx is cancelled. One Run per bot;
// ordering of handlers follows the wire.
func (b *Bot) Run(ctx context.Context) error {
	b.mu.Lock()
	b.runCtx = ctx
	b.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			b.Stop()
			return ctx.Err()
		case ev := <-b.client.Events():
			b.handleEvent(ctx, ev)
		}
	}
}

func (b *Bot) runContext() context.Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.runCtx
}

// disconnectAndRetry tears the link down while keeping the reconnect
// path armed. A plain Disconnect counts as user-initiated and would end
// the session for good.
func (b *Bot) disconnectAndRetry() {
	b.mu.Lock()
	b.planned = true
	b.mu.Unlock()
	b.client.Disconnect()
}

// Start raises the session. Starting a running bot is a no-op.
func (b *Bot) Start(ctx context.Context) {
	b.mu.Lock()
	if b.keepRunning {
		b.mu.Unlock()
		return
	}
	b.keepRunning = true
	b.mu.Unlock()

	b.log.Info("starting")
	metrics.BotsRunning.Inc()
	go b.connect(ctx)
}

// Stop lowers the session and prevents reconnects until the next Start.
func (b *Bot) Stop() {
	b.mu.Lock()
	if !b.keepRunning {
		b.mu.Unlock()
		return
	}
	b.keepRunning = false
	b.mu.Unlock()

	b.log.Info("stopping")
	metrics.BotsRunning.Dec()
	select {
	case b.stopWake <- struct{}{}:
	default:
	}
	b.farmer.Stop()
	b.setState(StateDisconnecting)
	b.client.Disconnect()
	b.setState(StateStopped)
	b.sup.onBotStopped()
}

// connect dials until a link is up or the bot is stopped. Attempts are
// paced by the fleet-wide login gate, except when a fresh two-factor
// code is in hand: those expire too fast to queue behind other logins.
func (b *Bot) connect(ctx context.Context) {
	b.mu.Lock()
	if b.connecting {
		b.mu.Unlock()
		return
	}
	b.connecting = true
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.connecting = false
		b.mu.Unlock()
	}()

	for {
		if ctx.Err() != nil || !b.KeepRunning() {
			return
		}

		b.mu.Lock()
		skipGate := b.twoFactorCode != ""
		b.mu.Unlock()
		if !skipGate {
			if err := b.loginGate.Acquire(ctx); err != nil {
				return
			}
			if !b.KeepRunning() {
				return
			}
		}

		b.setState(StateConnecting)
		err := b.client.Connect(ctx)
		if err == nil {
			return
		}
		b.log.Warn("connecting to the platform failed", "error", err)
		if !b.sleep(ctx, connectRetryPause) {
			return
		}
	}
}

func (b *Bot) handleEvent(ctx context.Context, ev platform.Event) {
	switch e := ev.(type) {
	case platform.ConnectedEvent:
		b.handleConnected()
	case platform.DisconnectedEvent:
		b.handleDisconnected(ctx, e)
	case platform.LoggedOnEvent:
		b.handleLoggedOn(ctx, e)
	case platform.LoggedOffEvent:
		b.handleLoggedOff(e)
	case platform.LoginKeyEvent:
		b.handleLoginKey(e)
	case platform.MachineAuthEvent:
		b.handleMachineAuth(e)
	case platform.PlayingSessionStateEvent:
		b.handlePlayingSession(ctx, e)
	case platform.NotificationsEvent:
		b.handleNotifications(ctx, e)
	case platform.FriendMessageEvent:
		b.handleFriendMessage(ctx, e)
	case platform.ChatMessageEvent:
		b.handleChatMessage(ctx, e)
	case platform.FriendRequestEvent:
		b.handleFriendRequest(e)
	case platform.GuestPassesEvent:
		b.handleGuestPasses(ctx, e)
	}
}

// handleConnected issues the logon. A remembered session key replaces
// the password; a pre-generated authenticator code rides along.
func (b *Bot) handleConnected() {
	b.setState(StateLoggingIn)

	details := platform.LogOnDetails{
		Username:       b.cfg.Login,
		CellID:         b.globalDB.CellID(),
		ShouldRemember: true,
	}

	if key := b.db.LoginKey(); key != "" {
		details.LoginKey = key
		b.mu.Lock()
		b.usedLoginKey = true
		b.mu.Unlock()
	} else {
		details.Password = b.cfg.Password
		b.mu.Lock()
		b.usedLoginKey = false
		b.mu.Unlock()
	}

	hash, err := b.sentry.Hash()
	if err != nil {
		b.log.Warn("reading sentry file failed", "error", err)
	}
	details.SentryHash = hash

	b.mu.Lock()
	details.AuthCode = b.authCode
	if b.twoFactorCode != "" {
		details.TwoFactorCode = b.twoFactorCode
	} else if b.auth != nil {
		details.TwoFactorCode = b.auth.Code(time.Now())
	}
	b.mu.Unlock()

	b.log.Info("logging on", "login", b.cfg.Login)
	if err := b.client.LogOn(details); err != nil {
		b.log.Warn("sending logon failed", "error", err)
	}
}

func (b *Bot) handleLoggedOn(ctx context.Context, ev platform.LoggedOnEvent) {
	switch ev.Result {
	case platform.ResultOK:
		b.onLoggedOnOK(ctx, ev)

	case platform.ResultAccountLogonDenied, platform.ResultInvalidLoginAuthCode,
		platform.ResultExpiredLoginAuthCode:
		// The platform mailed a code to the account's address. Invalid
		// and expired codes land here too: all three need fresh input.
		b.log.Error("logon denied, provide the email code to continue", "result", ev.Result)
		b.mu.Lock()
		b.awaiting = inputEmailCode
		b.mu.Unlock()
		b.client.Disconnect()

	case platform.ResultNeedTwoFactorCode, platform.ResultTwoFactorCodeMismatch:
		if b.hasAuthenticator() {
			// Next connect generates a fresh code; nothing to ask for.
			b.log.Warn("two-factor code rejected, retrying with the next one", "result", ev.Result)
			b.disconnectAndRetry()
			return
		}
		b.log.Error("logon needs a two-factor code, provide one to continue")
		b.mu.Lock()
		b.awaiting = inputTwoFactorCode
		b.mu.Unlock()
		b.client.Disconnect()

	case platform.ResultInvalidPassword:
		b.log.Error("platform rejected the credentials")
		b.mu.Lock()
		b.invalidPass = true
		b.mu.Unlock()
		b.disconnectAndRetry()

	case platform.ResultFail, platform.ResultNoConnection, platform.ResultBusy,
		platform.ResultTimeout, platform.ResultServiceUnavailable,
		platform.ResultTryAnotherCM, platform.ResultRateLimitExceeded:
		b.log.Warn("logon failed, retrying", "result", ev.Result)
		b.disconnectAndRetry()

	default:
		// Anything else is not a condition we know how to recover from.
		b.log.Error("logon failed, stopping", "result", ev.Result)
		b.Stop()
	}
}

func (b *Bot) onLoggedOnOK(ctx context.Context, ev platform.LoggedOnEvent) {
	b.log.Info("logged on", "steamID", ev.SteamID, "cellID", ev.CellID)

	b.mu.Lock()
	b.authCode = ""
	b.twoFactorCode = ""
	b.invalidPass = false
	b.awaiting = inputNone
	b.mu.Unlock()

	if ev.CellID != 0 {
		if err := b.globalDB.SetCellID(ev.CellID); err != nil {
			b.log.Warn("persisting cell id failed", "error", err)
		}
	}

	b.importAuthenticator()

	b.setState(StateWebBootstrapping)
	if err := b.bootstrapWeb(ctx, ev.SteamID, ev.WebAPINonce); err != nil {
		b.log.Warn("web session bootstrap failed, reconnecting", "error", err)
		b.disconnectAndRetry()
		return
	}
	b.onReady(ctx)
}

// bootstrapWeb initializes the web session from the logon nonce. A
// stale nonce gets one refresh before the whole logon is retried.
func (b *Bot) bootstrapWeb(ctx context.Context, steamID uint64, nonce string) error {
	err := b.web.Init(ctx, steamID, nonce, b.cfg.ParentalPIN)
	if err == nil {
		return nil
	}
	b.log.Warn("web session init failed, requesting a fresh nonce", "error", err)

	fresh, err := b.client.RequestWebAPIUserNonce(ctx)
	if err != nil {
		return fmt.Errorf("requesting fresh nonce: %w", err)
	}
	if err := b.web.Init(ctx, steamID, fresh, b.cfg.ParentalPIN); err != nil {
		return fmt.Errorf("web session init with fresh nonce: %w", err)
	}
	return nil
}

// onReady runs the post-login preamble and schedules the first farming
// start after a short grace so a playing-session push can land first.
func (b *Bot) onReady(ctx context.Context) {
	b.setState(StateReady)

	state := platform.PersonaOnline
	if b.cfg.FarmOffline {
		state = platform.PersonaOffline
	}
	if err := b.client.SetPersonaState(state); err != nil {
		b.log.Warn("setting persona state failed", "error", err)
	}

	if b.cfg.HandleOfflineMessages {
		if err := b.client.RequestOfflineMessages(); err != nil {
			b.log.Warn("requesting offline messages failed", "error", err)
		}
	}

	if b.cfg.DismissInventoryNotifications {
		if err := b.web.MarkInventoryRead(ctx); err != nil {
			b.log.Warn("marking inventory read failed", "error", err)
		}
	}

	if b.cfg.MasterClanID != 0 {
		if err := b.client.JoinChat(b.cfg.MasterClanID); err != nil {
			b.log.Warn("joining master chat failed", "error", err)
		}
	}

	if b.global.Statistics && b.global.StatisticsGroupID != 0 {
		if err := b.web.JoinGroup(ctx, b.global.StatisticsGroupID); err != nil {
			b.log.Warn("joining statistics group failed", "error", err)
		}
	}

	if err := b.trading.CheckTrades(ctx); err != nil {
		b.log.Warn("checking trades failed", "error", err)
	}

	go func() {
		select {
		case <-time.After(readyGracePeriod):
		case <-ctx.Done():
			return
		}
		if b.KeepRunning() {
			b.farmer.Start(ctx)
		}
	}()
}

func (b *Bot) handleLoggedOff(ev platform.LoggedOffEvent) {
	b.log.Info("logged off", "result", ev.Result)
	if ev.Result != platform.ResultLoggedInElsewhere {
		return
	}
	if b.elsewherePause <= 0 {
		b.log.Warn("account in use elsewhere, giving up the session")
		b.Stop()
		return
	}
	b.log.Warn("account in use elsewhere, will reclaim it", "after", b.elsewherePause)
	b.mu.Lock()
	b.reconnectPause = b.elsewherePause
	b.mu.Unlock()
}

func (b *Bot) handleDisconnected(ctx context.Context, ev platform.DisconnectedEvent) {
	b.farmer.OnDisconnected()

	b.mu.Lock()
	planned := b.planned
	b.planned = false
	b.mu.Unlock()

	if (ev.UserInitiated && !planned) || !b.KeepRunning() {
		b.setState(StateStopped)
		return
	}

	metrics.Reconnects.WithLabelValues(b.name).Inc()

	// Stalled on operator input: reconnect resumes from ProvideInput.
	b.mu.Lock()
	awaiting := b.awaiting
	b.mu.Unlock()
	if awaiting != inputNone {
		b.setState(StateStopped)
		return
	}

	b.mu.Lock()
	pause := b.reconnectPause
	b.reconnectPause = 0
	invalid := b.invalidPass
	usedKey := b.usedLoginKey
	if invalid {
		if usedKey {
			b.invalidPass = false
			b.usedLoginKey = false
		} else {
			pause = b.throttle
		}
	}
	b.mu.Unlock()

	if invalid && usedKey {
		// The remembered key expired; retry with the password.
		b.log.Info("discarding expired session key")
		if err := b.db.SetLoginKey(""); err != nil {
			b.log.Warn("clearing session key failed", "error", err)
		}
	}

	if pause > 0 {
		b.log.Info("pausing before reconnect", "pause", pause)
		if !b.sleep(ctx, pause) {
			b.setState(StateStopped)
			return
		}
	}
	b.connect(ctx)
}

// sleep waits d unless the bot is stopped or ctx ends first. It
// reports whether the bot should keep going.
func (b *Bot) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-b.stopWake:
	case <-ctx.Done():
		return false
	}
	return b.KeepRunning()
}

func (b *Bot) handleLoginKey(ev platform.LoginKeyEvent) {
	if err := b.db.SetLoginKey(ev.LoginKey); err != nil {
		b.log.Warn("persisting session key failed", "error", err)
		return
	}
	if err := b.client.AcceptLoginKey(ev.UniqueID); err != nil {
		b.log.Warn("acknowledging session key failed", "error", err)
	}
}

func (b *Bot) handleMachineAuth(ev platform.MachineAuthEvent) {
	size, hash, err := b.sentry.Write(ev.Offset, ev.Data)
	if err != nil {
		b.log.Warn("writing sentry chunk failed", "error", err)
		return
	}
	resp := platform.MachineAuthResponse{
		JobID:        ev.JobID,
		Result:       platform.ResultOK,
		FileName:     ev.FileName,
		FileSize:     size,
		FileHash:     hash,
		Offset:       ev.Offset,
		BytesWritten: len(ev.Data),
	}
	if err := b.client.SendMachineAuthResponse(resp); err != nil {
		b.log.Warn("sending sentry response failed", "error", err)
	}
}

func (b *Bot) handlePlayingSession(ctx context.Context, ev platform.PlayingSessionStateEvent) {
	b.farmer.SetPlayingBlocked(ev.Blocked)
	if ev.Blocked {
		b.log.Info("another session is playing", "app", ev.AppID)
		if b.State() == StateReady {
			b.setState(StatePlayingBlocked)
		}
		return
	}
	if b.State() == StatePlayingBlocked {
		b.setState(StateReady)
	}
	b.farmer.Start(ctx)
}

func (b *Bot) handleNotifications(ctx context.Context, ev platform.NotificationsEvent) {
	if ev.Counts[platform.NotificationItems] > 0 {
		b.log.Debug("new items notification")
		b.farmer.OnNewItemsNotification()
		if b.cfg.DismissInventoryNotifications {
			if err := b.web.MarkInventoryRead(ctx); err != nil {
				b.log.Warn("marking inventory read failed", "error", err)
			}
		}
	}
	if ev.Counts[platform.NotificationTrading] > 0 {
		b.log.Debug("pending trades notification")
		if err := b.trading.CheckTrades(ctx); err != nil {
			b.log.Warn("checking trades failed", "error", err)
		}
	}
}

func (b *Bot) handleFriendMessage(ctx context.Context, ev platform.FriendMessageEvent) {
	response := b.Response(ctx, ev.SteamID, ev.Message)
	if response == "" {
		return
	}
	b.sendChunked(response, func(part string) error {
		return b.client.SendMessage(ev.SteamID, part)
	})
}

func (b *Bot) handleChatMessage(ctx context.Context, ev platform.ChatMessageEvent) {
	response := b.Response(ctx, ev.SteamID, ev.Message)
	if response == "" {
		return
	}
	b.sendChunked(response, func(part string) error {
		return b.client.SendChatMessage(ev.ChatID, part)
	})
}

func (b *Bot) handleFriendRequest(ev platform.FriendRequestEvent) {
	if ev.Clan {
		if ev.SteamID == b.cfg.MasterClanID {
			b.log.Info("accepting group invite", "clan", ev.SteamID)
			if err := b.client.RespondToClanInvite(ev.SteamID, true); err != nil {
				b.log.Warn("responding to group invite failed", "error", err)
			}
		}
		return
	}

	switch {
	case b.isMaster(ev.SteamID):
		b.log.Info("accepting friend request", "from", ev.SteamID)
		if err := b.client.AddFriend(ev.SteamID); err != nil {
			b.log.Warn("accepting friend request failed", "error", err)
		}
	case b.cfg.IsBotAccount:
		b.log.Info("declining friend request", "from", ev.SteamID)
		if err := b.client.RemoveFriend(ev.SteamID); err != nil {
			b.log.Warn("declining friend request failed", "error", err)
		}
	}
}

func (b *Bot) handleGuestPasses(ctx context.Context, ev platform.GuestPassesEvent) {
	if !b.cfg.AcceptGifts {
		return
	}
	for _, giftID := range ev.GiftIDs {
		if err := b.giftsGate.Acquire(ctx); err != nil {
			return
		}
		if err := b.web.AcceptGift(ctx, giftID); err != nil {
			b.log.Warn("accepting gift failed", "gift", giftID, "error", err)
			continue
		}
		b.log.Info("gift accepted", "gift", giftID)
	}
}

// onFarmingFinished reacts to a farming session running out of work.
func (b *Bot) onFarmingFinished(farmed bool) {
	ctx := b.runContext()
	b.log.Info("farming finished", "farmedSomething", farmed)

	if farmed && b.cfg.SendOnFarmingFinished {
		if err := b.trading.SendLoot(ctx); err != nil && !errors.Is(err, trading.ErrNoLoot) {
			b.log.Warn("sending loot failed", "error", err)
		}
	}
	if b.cfg.ShutdownOnFarmingFinished {
		b.Stop()
		return
	}
	b.idle()
}

// idle reports the configured idle games once no farming is active.
func (b *Bot) idle() {
	if len(b.cfg.IdleGames) == 0 && b.cfg.IdleGameName == "" {
		return
	}
	if !b.Connected() {
		return
	}
	if err := b.client.PlayGames(b.cfg.IdleGames, b.cfg.IdleGameName); err != nil {
		b.log.Warn("starting idle games failed", "error", err)
	}
}

// importAuthenticator moves a mobile-authenticator export lying next to
// the bot config into the database, once.
func (b *Bot) importAuthenticator() {
	if b.hasAuthenticator() {
		return
	}
	data, err := os.ReadFile(b.maFilePath)
	if err != nil {
		return
	}

	var file struct {
		SharedSecret   string `json:"shared_secret"`
		IdentitySecret string `json:"identity_secret"`
		DeviceID       string `json:"device_id"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		b.log.Warn("unreadable authenticator file", "path", b.maFilePath, "error", err)
		return
	}

	auth, err := guard.NewAuthenticator(file.SharedSecret, file.IdentitySecret, file.DeviceID)
	if err != nil {
		b.log.Warn("invalid authenticator file", "path", b.maFilePath, "error", err)
		return
	}

	rec := &store.Authenticator{
		SharedSecret:   file.SharedSecret,
		IdentitySecret: file.IdentitySecret,
		DeviceID:       auth.DeviceID(),
	}
	if err := b.db.SetAuthenticator(rec); err != nil {
		b.log.Warn("persisting authenticator failed", "error", err)
		return
	}

	b.mu.Lock()
	b.auth = auth
	b.confirmations = guard.NewConfirmations(auth, b.web, b.log)
	b.mu.Unlock()
	b.trading = trading.New(b.name, b.web, b.confirmer(), b.cfg.MasterID, b.cfg.TradeToken, b.log)

	if err := os.Remove(b.maFilePath); err != nil {
		b.log.Warn("removing imported authenticator file failed", "error", err)
	}
	b.log.Info("authenticator imported", "device", auth.DeviceID())
}

func (b *Bot) hasAuthenticator() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.auth != nil
}

func (b *Bot) authenticator() *guard.Authenticator {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.auth
}

func (b *Bot) confirmationsHandle() *guard.Confirmations {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.confirmations
}

// RequestStart raises the session using the bot's own run context, for
// callers outside the event pump.
func (b *Bot) RequestStart() {
	b.Start(b.runContext())
}

// Pause suspends automatic farming until Resume.
func (b *Bot) Pause(ctx context.Context) {
	b.farmer.SwitchToManualMode(ctx, true)
}

// Resume reenables automatic farming.
func (b *Bot) Resume(ctx context.Context) {
	b.farmer.SwitchToManualMode(ctx, false)
}

// ProvideEmailCode hands the bot the code mailed by the platform and
// resumes the stalled logon.
func (b *Bot) ProvideEmailCode(code string) {
	b.mu.Lock()
	b.authCode = code
	b.awaiting = inputNone
	b.mu.Unlock()
	b.resumeLogon()
}

// ProvideTwoFactorCode hands the bot a one-time app code and resumes
// the stalled logon.
func (b *Bot) ProvideTwoFactorCode(code string) {
	b.mu.Lock()
	b.twoFactorCode = code
	b.awaiting = inputNone
	b.mu.Unlock()
	b.resumeLogon()
}

func (b *Bot) resumeLogon() {
	if !b.KeepRunning() || b.Connected() {
		return
	}
	go b.connect(b.runContext())
}

// isOwner reports whether the sender is the fleet owner.
func (b *Bot) isOwner(steamID uint64) bool {
	return steamID != 0 && steamID == b.global.OwnerID
}

// isMaster reports whether the sender may command this bot.
func (b *Bot) isMaster(steamID uint64) bool {
	if steamID == 0 {
		return false
	}
	return steamID == b.cfg.MasterID || b.isOwner(steamID)
}

// Status is a point-in-time snapshot for the control surface.
type Status struct {
	Name             string   `json:"name"`
	State            string   `json:"state"`
	KeepRunning      bool     `json:"keep_running"`
	Connected        bool     `json:"connected"`
	NowFarming       bool     `json:"now_farming"`
	ManualMode       bool     `json:"manual_mode"`
	GamesRemaining   int      `json:"games_remaining"`
	CurrentlyFarming []uint32 `json:"currently_farming"`
	HasAuthenticator bool     `json:"has_authenticator"`
}

// Status snapshots the bot for the control surface.
func (b *Bot) Status() Status {
	return Status{
		Name:             b.name,
		State:            b.State().String(),
		KeepRunning:      b.KeepRunning(),
		Connected:        b.Connected(),
		NowFarming:       b.farmer.NowFarming(),
		ManualMode:       b.farmer.ManualMode(),
		GamesRemaining:   b.farmer.GamesRemaining(),
		CurrentlyFarming: b.farmer.CurrentlyFarming(),
		HasAuthenticator: b.hasAuthenticator(),
	}
}

// statusLine renders the one-line status used in chat replies.
func (b *Bot) statusLine() string {
	s := b.Status()
	switch {
	case !s.KeepRunning:
		return fmt.Sprintf("<%s> Status: %s", s.Name, s.State)
	case s.NowFarming:
		return fmt.Sprintf("<%s> Status: %s | Farming %d apps, %d left",
			s.Name, s.State, len(s.CurrentlyFarming), s.GamesRemaining)
	default:
		return fmt.Sprintf("<%s> Status: %s", s.Name, s.State)
	}
}
