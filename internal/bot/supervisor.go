package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"cardfarm/internal/config"
	"cardfarm/internal/gate"
	"cardfarm/internal/guard"
	"cardfarm/internal/metrics"
	"cardfarm/internal/store"
	"cardfarm/internal/trading"
)

// Supervisor owns the fleet: every bot, the process-wide rate gates,
// the fleet database, and the periodic confirmation/loot jobs.
type Supervisor struct {
	log       *slog.Logger
	global    config.Global
	globalDB  *store.GlobalDatabase
	loginGate *gate.Gate
	giftsGate *gate.Gate
	cron      *cron.Cron

	mu    sync.Mutex
	bots  map[string]*Bot
	order []string

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
	restart      atomic.Bool
}

// NewSupervisor builds an empty fleet around the global configuration.
func NewSupervisor(global config.Global, log *slog.Logger) (*Supervisor, error) {
	globalDB, err := store.LoadGlobalDatabase(config.GlobalDatabasePath(global.BotsDir))
	if err != nil {
		return nil, fmt.Errorf("loading fleet database: %w", err)
	}

	return &Supervisor{
		log:        log,
		global:     global,
		globalDB:   globalDB,
		loginGate:  gate.New(global.LoginLimiterDelayDuration()),
		giftsGate:  gate.New(global.GiftsLimiterDelayDuration()),
		cron:       cron.New(),
		bots:       make(map[string]*Bot),
		shutdownCh: make(chan struct{}),
	}, nil
}

// LoadBots discovers bot configs under the bots directory and builds a
// bot per enabled config. Unreadable configs are skipped with a
// warning, not fatal: one broken account must not take the fleet down.
func (s *Supervisor) LoadBots() error {
	names, err := config.DiscoverBots(s.global.BotsDir)
	if err != nil {
		return fmt.Errorf("discovering bots: %w", err)
	}

	for _, name := range names {
		cfg, err := config.LoadBot(config.BotConfigPath(s.global.BotsDir, name))
		if err != nil {
			s.log.Warn("skipping unreadable bot config", "bot", name, "error", err)
			continue
		}
		if !cfg.Enabled {
			s.log.Info("skipping disabled bot", "bot", name)
			continue
		}
		b, err := NewBot(name, cfg, s.global, s, s.globalDB, s.log)
		if err != nil {
			s.log.Warn("skipping bot", "bot", name, "error", err)
			continue
		}
		s.addBot(b)
	}

	if len(s.Bots()) == 0 {
		s.log.Warn("no usable bot configs found", "dir", s.global.BotsDir)
	}
	return nil
}

func (s *Supervisor) addBot(b *Bot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bots[b.name]; ok {
		return
	}
	s.bots[b.name] = b
	s.order = append(s.order, b.name)
	sort.Strings(s.order)
}

// Bot returns the named bot, or nil.
func (s *Supervisor) Bot(name string) *Bot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bots[name]
}

// Bots returns the fleet in name order.
func (s *Supervisor) Bots() []*Bot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Bot, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.bots[name])
	}
	return out
}

// Run drives the fleet until ctx ends or Shutdown is called: one event
// pump per bot, the periodic jobs, and the start-on-launch bots.
func (s *Supervisor) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	for _, b := range s.Bots() {
		g.Go(func() error { return b.Run(gctx) })
	}

	s.scheduleJobs(runCtx)
	s.cron.Start()
	s.StartAll(runCtx)

	select {
	case <-ctx.Done():
	case <-s.shutdownCh:
	}

	<-s.cron.Stop().Done()
	for _, b := range s.Bots() {
		b.Stop()
	}
	cancel()

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// StartAll raises every bot marked to start on launch.
func (s *Supervisor) StartAll(ctx context.Context) {
	for _, b := range s.Bots() {
		if b.cfg.StartOnLaunch {
			b.Start(ctx)
		}
	}
}

// scheduleJobs registers the per-bot periodic work: confirmation
// auto-accept and recurring loot sends.
func (s *Supervisor) scheduleJobs(ctx context.Context) {
	for _, b := range s.Bots() {
		if n := b.cfg.AcceptConfirmationsPeriod; n > 0 {
			_, err := s.cron.AddFunc(fmt.Sprintf("@every %dm", n), func() {
				s.acceptConfirmations(ctx, b)
			})
			if err != nil {
				s.log.Warn("scheduling confirmation job failed", "bot", b.name, "error", err)
			}
		}
		if n := b.cfg.SendTradePeriod; n > 0 {
			_, err := s.cron.AddFunc(fmt.Sprintf("@every %dh", n), func() {
				s.sendLoot(ctx, b)
			})
			if err != nil {
				s.log.Warn("scheduling loot job failed", "bot", b.name, "error", err)
			}
		}
	}
}

func (s *Supervisor) acceptConfirmations(ctx context.Context, b *Bot) {
	conf := b.confirmationsHandle()
	if conf == nil || !b.Connected() {
		return
	}
	handled, err := conf.HandleAll(ctx, true, guard.Filter{})
	if err != nil {
		b.log.Warn("periodic confirmation accept failed", "error", err)
		return
	}
	if handled > 0 {
		metrics.ConfirmationsAccepted.WithLabelValues(b.name).Add(float64(handled))
		b.log.Info("confirmations accepted", "count", handled)
	}
}

func (s *Supervisor) sendLoot(ctx context.Context, b *Bot) {
	if !b.Connected() {
		return
	}
	if err := b.trading.SendLoot(ctx); err != nil && !errors.Is(err, trading.ErrNoLoot) {
		b.log.Warn("periodic loot send failed", "error", err)
	}
}

// onBotStopped ends the process once the last bot gives up its session.
func (s *Supervisor) onBotStopped() {
	bots := s.Bots()
	if len(bots) == 0 {
		return
	}
	for _, b := range bots {
		if b.KeepRunning() {
			return
		}
	}
	s.log.Info("all bots stopped, shutting down")
	s.Shutdown()
}

// Shutdown asks Run to wind the fleet down. Safe to call repeatedly.
func (s *Supervisor) Shutdown() {
	s.shutdownOnce.Do(func() { close(s.shutdownCh) })
}

// Done is closed once shutdown begins.
func (s *Supervisor) Done() <-chan struct{} {
	return s.shutdownCh
}

// RequestRestart shuts down with the restart flag raised so the process
// wrapper can exec a fresh daemon.
func (s *Supervisor) RequestRestart() {
	s.restart.Store(true)
	s.Shutdown()
}

// RestartRequested reports whether the shutdown was a restart request.
func (s *Supervisor) RestartRequested() bool {
	return s.restart.Load()
}
