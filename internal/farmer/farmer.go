package farmer

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"cardfarm/internal/metrics"
	"cardfarm/internal/websession"
)

const (
	// batchLimit is the most app-ids the platform accepts in one play
	// session, so also the widest hour-farming batch.
	batchLimit = 32

	// soloThreshold is the playtime at which an app starts dropping
	// cards on restricted accounts and becomes eligible for solo play.
	soloThreshold = 2.0
)

// CardSource reads card-drop state from the community site.
type CardSource interface {
	BadgePage(ctx context.Context, page int) (*websession.BadgePage, error)
	CardsRemaining(ctx context.Context, appID uint32) (int, error)
}

// Presence reports played apps to the platform. An empty id list stops
// playing.
type Presence interface {
	PlayGames(appIDs []uint32, gameName string) error
}

// Options carries the per-account farming knobs.
type Options struct {
	// Name identifies the account in logs and metrics.
	Name string

	// FarmingDelay is how long to idle an app before polling its card
	// page again.
	FarmingDelay time.Duration

	// MaxFarmingTime bounds how long a single app is farmed solo before
	// it is considered done regardless of remaining drops.
	MaxFarmingTime time.Duration

	// Restricted selects the hour-accumulating algorithm used for
	// accounts whose card drops are locked behind 2h of playtime.
	Restricted bool

	// Blacklist lists app ids that are never farmed. The caller merges
	// the per-account and fleet-wide lists.
	Blacklist []uint32

	// OnFinished is invoked when a farming session ends on its own,
	// with farmedSomething reporting whether any app was farmed. It is
	// not invoked when the session is stopped externally.
	OnFinished func(farmedSomething bool)

	Log *slog.Logger
}

// Farmer drives card farming for one account. At most one farming
// session runs at a time; Start and Stop are idempotent.
type Farmer struct {
	name      string
	log       *slog.Logger
	web       CardSource
	presence  Presence
	delay     time.Duration
	maxTime   time.Duration
	restrict  bool
	blacklist map[uint32]bool
	onDone    func(bool)

	now func() time.Time

	startMu sync.Mutex    // serializes the Start critical section
	reset   chan struct{} // single-slot wake signal for the farming sleep

	mu      sync.Mutex
	games   map[uint32]float64 // appID -> hours on record
	current []uint32           // apps reported as playing right now
	running bool
	keep    bool
	manual  bool
	blocked bool
	done    chan struct{} // closed when the active session exits
}

// New builds a Farmer. It does not start farming.
func New(web CardSource, presence Presence, opts Options) *Farmer {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	blacklist := make(map[uint32]bool, len(opts.Blacklist))
	for _, id := range opts.Blacklist {
		blacklist[id] = true
	}
	return &Farmer{
		name:      opts.Name,
		log:       log.With("bot", opts.Name),
		web:       web,
		presence:  presence,
		delay:     opts.FarmingDelay,
		maxTime:   opts.MaxFarmingTime,
		restrict:  opts.Restricted,
		blacklist: blacklist,
		onDone:    opts.OnFinished,
		now:       time.Now,
		reset:     make(chan struct{}, 1),
		games:     make(map[uint32]float64),
	}
}

// NowFarming reports whether a farming session is active.
func (f *Farmer) NowFarming() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// ManualMode reports whether automatic farming is suspended.
func (f *Farmer) ManualMode() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.manual
}

// CurrentlyFarming returns the apps being played right now, sorted.
func (f *Farmer) CurrentlyFarming() []uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]uint32, len(f.current))
	copy(out, f.current)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// GamesRemaining returns how many apps still have drops to farm.
func (f *Farmer) GamesRemaining() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.games)
}

// SetPlayingBlocked records whether another session is playing on this
// account. While blocked, Start is a no-op.
func (f *Farmer) SetPlayingBlocked(blocked bool) {
	f.mu.Lock()
	f.blocked = blocked
	f.mu.Unlock()
}

// Start begins a farming session unless one is already running, manual
// mode is on, or playing is blocked by another session.
func (f *Farmer) Start(ctx context.Context) {
	f.startMu.Lock()
	defer f.startMu.Unlock()

	f.mu.Lock()
	if f.running || f.manual || f.blocked {
		f.mu.Unlock()
		return
	}
	f.running = true
	f.keep = true
	f.done = make(chan struct{})
	f.mu.Unlock()

	// A stale wake request from a previous session must not cut the
	// first sleep short.
	select {
	case <-f.reset:
	default:
	}

	go f.farm(ctx)
}

// Stop ends the active farming session, waking any in-flight sleep, and
// returns once the session has wound down. Stopping an idle farmer is a
// no-op.
func (f *Farmer) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	f.keep = false
	done := f.done
	f.mu.Unlock()

	f.signalReset()
	<-done
}

// OnNewItemsNotification asks the active session to re-check card drops
// without waiting out the current farming delay.
func (f *Farmer) OnNewItemsNotification() {
	f.signalReset()
}

// OnNewGameAdded reacts to a new license on the account. An idle farmer
// starts; a restricted session still accumulating hours restarts so the
// new app can join the batch.
func (f *Farmer) OnNewGameAdded(ctx context.Context) {
	f.mu.Lock()
	running := f.running
	restart := false
	if running && f.restrict {
		for _, hours := range f.games {
			if hours < soloThreshold {
				restart = true
				break
			}
		}
	}
	f.mu.Unlock()

	if !running {
		f.Start(ctx)
		return
	}
	if restart {
		f.Stop()
		f.Start(ctx)
	}
}

// OnDisconnected ends the active session after the platform link drops.
func (f *Farmer) OnDisconnected() {
	f.Stop()
}

// SwitchToManualMode suspends or resumes automatic farming. Switching
// to the mode already in effect does nothing.
func (f *Farmer) SwitchToManualMode(ctx context.Context, manual bool) {
	f.mu.Lock()
	if f.manual == manual {
		f.mu.Unlock()
		return
	}
	f.manual = manual
	f.mu.Unlock()

	if manual {
		f.log.Info("farming switched to manual mode")
		f.Stop()
		return
	}
	f.log.Info("farming switched back to automatic mode")
	f.Start(ctx)
}

func (f *Farmer) signalReset() {
	select {
	case f.reset <- struct{}{}:
	default:
	}
}

// farm is one farming session: discover, farm a full round, repeat
// until nothing is left or the session is stopped.
func (f *Farmer) farm(ctx context.Context) {
	farmed := false
	stopped := false

	for {
		games, err := f.discover(ctx)
		if err != nil {
			f.log.Warn("badge discovery failed", "error", err)
			break
		}
		if len(games) == 0 {
			f.log.Info("nothing to farm")
			break
		}

		f.mu.Lock()
		f.games = games
		f.mu.Unlock()
		f.log.Info("farming round starting", "games", len(games), "restricted", f.restrict)
		metrics.FarmingRounds.WithLabelValues(f.name).Inc()

		if !f.farmRound(ctx) {
			stopped = true
			break
		}
		farmed = true
	}

	if err := f.presence.PlayGames(nil, ""); err != nil {
		f.log.Warn("stopping play session failed", "error", err)
	}

	f.mu.Lock()
	f.running = false
	f.current = nil
	done := f.done
	f.mu.Unlock()
	close(done)

	if !stopped && f.onDone != nil {
		f.onDone(farmed)
	}
}

// farmRound works through gamesToFarm once. It reports false when the
// session was stopped mid-round.
func (f *Farmer) farmRound(ctx context.Context) bool {
	if !f.restrict {
		return f.farmUnrestricted(ctx)
	}
	return f.farmRestricted(ctx)
}

// farmUnrestricted farms every app solo, lowest app id first. Drops
// fall regardless of playtime.
func (f *Farmer) farmUnrestricted(ctx context.Context) bool {
	for {
		f.mu.Lock()
		var appID uint32
		found := false
		for id := range f.games {
			if !found || id < appID {
				appID = id
				found = true
			}
		}
		f.mu.Unlock()
		if !found {
			return true
		}
		if !f.farmSolo(ctx, appID) {
			return false
		}
	}
}

// farmRestricted alternates between playing hour-qualified apps solo
// and batch-idling the rest up to the 2h threshold.
func (f *Farmer) farmRestricted(ctx context.Context) bool {
	for {
		solo, batch := f.partition()
		if len(solo) == 0 && len(batch) == 0 {
			return true
		}
		if len(solo) > 0 {
			for _, appID := range solo {
				if !f.farmSolo(ctx, appID) {
					return false
				}
			}
			continue
		}
		if !f.farmHours(ctx, batch) {
			return false
		}
	}
}

// partition splits gamesToFarm into apps past the solo threshold
// (ascending app id) and the rest (descending hours, so the batch
// members closest to the threshold graduate first).
func (f *Farmer) partition() (solo, batch []uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for id, hours := range f.games {
		if hours >= soloThreshold {
			solo = append(solo, id)
		} else {
			batch = append(batch, id)
		}
	}
	sort.Slice(solo, func(i, j int) bool { return solo[i] < solo[j] })
	sort.Slice(batch, func(i, j int) bool {
		if f.games[batch[i]] != f.games[batch[j]] {
			return f.games[batch[i]] > f.games[batch[j]]
		}
		return batch[i] < batch[j]
	})
	if len(batch) > batchLimit {
		batch = batch[:batchLimit]
	}
	return solo, batch
}

// farmSolo plays one app until its drops run out, the per-app deadline
// passes, or the session is stopped. The app is removed from
// gamesToFarm unless the session was stopped.
func (f *Farmer) farmSolo(ctx context.Context, appID uint32) bool {
	f.mu.Lock()
	f.current = []uint32{appID}
	hours := f.games[appID]
	f.mu.Unlock()

	f.log.Info("now farming", "app", appID, "hours", hours)
	if err := f.presence.PlayGames([]uint32{appID}, ""); err != nil {
		f.log.Warn("reporting played app failed", "app", appID, "error", err)
	}

	deadline := f.now().Add(f.maxTime)
	for {
		cards, err := f.web.CardsRemaining(ctx, appID)
		switch {
		case err != nil:
			// Treat an unreadable card page as "still dropping" and
			// let the deadline bound the damage.
			f.log.Warn("card status check failed", "app", appID, "error", err)
		case cards == 0:
			f.finishGame(appID)
			return true
		default:
			f.log.Debug("still farming", "app", appID, "cardsRemaining", cards)
		}

		if f.now().After(deadline) {
			f.log.Info("farming deadline reached", "app", appID)
			f.finishGame(appID)
			return true
		}

		elapsed, stop := f.sleepOrWake(ctx)
		f.creditHours(elapsed, appID)
		if stop {
			return false
		}
	}
}

// farmHours idles a batch of apps simultaneously until the highest
// playtime among them reaches the solo threshold.
func (f *Farmer) farmHours(ctx context.Context, batch []uint32) bool {
	f.mu.Lock()
	f.current = append([]uint32(nil), batch...)
	maxHours := 0.0
	for _, id := range batch {
		if f.games[id] > maxHours {
			maxHours = f.games[id]
		}
	}
	f.mu.Unlock()

	f.log.Info("now idling for hours", "apps", len(batch), "maxHours", maxHours)
	if err := f.presence.PlayGames(batch, ""); err != nil {
		f.log.Warn("reporting played apps failed", "error", err)
	}

	for maxHours < soloThreshold {
		elapsed, stop := f.sleepOrWake(ctx)
		f.creditHours(elapsed, batch...)
		maxHours += elapsed.Hours()
		if stop {
			return false
		}
	}
	return true
}

// finishGame drops a completed app from gamesToFarm.
func (f *Farmer) finishGame(appID uint32) {
	f.mu.Lock()
	delete(f.games, appID)
	f.mu.Unlock()
	f.log.Info("done farming", "app", appID)
	metrics.CardsGamesFarmed.WithLabelValues(f.name).Inc()
}

// creditHours adds elapsed play time to each given app's hour count.
func (f *Farmer) creditHours(elapsed time.Duration, appIDs ...uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range appIDs {
		if _, ok := f.games[id]; ok {
			f.games[id] += elapsed.Hours()
		}
	}
}

// sleepOrWake pauses for the farming delay, a wake signal, or
// cancellation, whichever first. It returns the elapsed wall time and
// whether the session should stop.
func (f *Farmer) sleepOrWake(ctx context.Context) (time.Duration, bool) {
	start := f.now()
	timer := time.NewTimer(f.delay)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-f.reset:
		f.log.Debug("farming sleep interrupted")
	case <-ctx.Done():
	}

	f.mu.Lock()
	keep := f.keep
	f.mu.Unlock()
	if ctx.Err() != nil {
		keep = false
	}
	return f.now().Sub(start), !keep
}

func (f *Farmer) gameHours(appID uint32) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.games[appID]
}
