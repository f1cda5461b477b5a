package trading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cardfarm/internal/guard"
	"cardfarm/internal/metrics"
	"cardfarm/internal/websession"
)

// ErrNoLoot is returned by SendLoot when the inventory holds nothing
// worth sending.
var ErrNoLoot = errors.New("trading: nothing to send")

// lootSettleDelay gives the platform time to materialize the pending
// confirmation after an offer is created.
const lootSettleDelay = 3 * time.Second

// WebClient is the community-site surface trading needs.
type WebClient interface {
	ActiveTradeOffers(ctx context.Context) ([]websession.TradeOffer, error)
	AcceptTradeOffer(ctx context.Context, offerID uint64) (bool, error)
	DeclineTradeOffer(ctx context.Context, offerID uint64) error
	SendTradeOffer(ctx context.Context, partner uint64, token string, give []websession.Asset) (bool, error)
	MyInventory(ctx context.Context, tradableOnly bool) ([]websession.Asset, error)
}

// Confirmer resolves pending mobile confirmations.
type Confirmer interface {
	HandleAll(ctx context.Context, accept bool, filter guard.Filter) (int, error)
}

// Trading evaluates incoming trade offers and ships loot for one
// account.
type Trading struct {
	name      string
	log       *slog.Logger
	web       WebClient
	confirmer Confirmer // nil when the account has no authenticator
	masterID  uint64
	token     string

	settle time.Duration

	mu      sync.Mutex
	pending bool
	runMu   sync.Mutex
}

// New builds the trading handler. confirmer may be nil; offers needing
// a mobile confirmation are then left for the operator.
func New(name string, web WebClient, confirmer Confirmer, masterID uint64, tradeToken string, log *slog.Logger) *Trading {
	if log == nil {
		log = slog.Default()
	}
	return &Trading{
		name:      name,
		log:       log.With("bot", name),
		web:       web,
		confirmer: confirmer,
		masterID:  masterID,
		token:     tradeToken,
		settle:    lootSettleDelay,
	}
}

// CheckTrades fetches active incoming offers and accepts or declines
// each. Runs are serialized per account; a call arriving while another
// is queued coalesces into it.
func (t *Trading) CheckTrades(ctx context.Context) error {
	t.mu.Lock()
	if t.pending {
		t.mu.Unlock()
		return nil
	}
	t.pending = true
	t.mu.Unlock()

	t.runMu.Lock()
	defer t.runMu.Unlock()

	t.mu.Lock()
	t.pending = false
	t.mu.Unlock()

	offers, err := t.web.ActiveTradeOffers(ctx)
	if err != nil {
		return fmt.Errorf("fetching trade offers: %w", err)
	}

	for _, offer := range offers {
		if err := t.handleOffer(ctx, offer); err != nil {
			t.log.Warn("trade offer handling failed", "offer", offer.ID, "error", err)
		}
	}
	return nil
}

func (t *Trading) handleOffer(ctx context.Context, offer websession.TradeOffer) error {
	switch verdict := t.evaluate(offer); verdict {
	case verdictAccept:
		return t.accept(ctx, offer)
	case verdictDecline:
		t.log.Info("declining trade offer", "offer", offer.ID, "from", offer.OtherSteamID)
		return t.web.DeclineTradeOffer(ctx, offer.ID)
	default:
		t.log.Info("ignoring trade offer", "offer", offer.ID, "from", offer.OtherSteamID)
		return nil
	}
}

type verdict int

const (
	verdictIgnore verdict = iota
	verdictAccept
	verdictDecline
)

// evaluate decides an incoming offer. Master is always trusted. A
// donation costs nothing, so it is taken; an offer that only takes is
// declined. Anything else must be set-neutral: per card set we may not
// give away more items than we receive, and we only give away cards.
func (t *Trading) evaluate(offer websession.TradeOffer) verdict {
	if offer.OtherSteamID == t.masterID {
		return verdictAccept
	}
	if len(offer.ItemsToReceive) == 0 {
		if len(offer.ItemsToGive) == 0 {
			return verdictIgnore
		}
		return verdictDecline
	}
	if len(offer.ItemsToGive) == 0 {
		return verdictAccept
	}

	giving := countSets(offer.ItemsToGive)
	receiving := countSets(offer.ItemsToReceive)
	for set, given := range giving {
		if set.kind != websession.ItemTradingCard && set.kind != websession.ItemFoilTradingCard {
			return verdictDecline
		}
		if receiving[set] < given {
			return verdictDecline
		}
	}
	return verdictAccept
}

// cardSet keys items by the game they belong to and their kind, so a
// foil never substitutes for a regular card.
type cardSet struct {
	realAppID uint32
	kind      websession.ItemType
}

func countSets(items []websession.Asset) map[cardSet]uint32 {
	sets := make(map[cardSet]uint32, len(items))
	for _, item := range items {
		sets[cardSet{item.RealAppID, item.Type}] += item.Amount
	}
	return sets
}

func (t *Trading) accept(ctx context.Context, offer websession.TradeOffer) error {
	t.log.Info("accepting trade offer", "offer", offer.ID, "from", offer.OtherSteamID)
	needsConfirmation, err := t.web.AcceptTradeOffer(ctx, offer.ID)
	if err != nil {
		return fmt.Errorf("accepting offer %d: %w", offer.ID, err)
	}
	metrics.TradesAccepted.WithLabelValues(t.name).Inc()
	if !needsConfirmation {
		return nil
	}
	if t.confirmer == nil {
		t.log.Warn("offer awaits mobile confirmation but no authenticator is enrolled", "offer", offer.ID)
		return nil
	}
	_, err = t.confirmer.HandleAll(ctx, true, guard.Filter{
		Types:      []guard.ConfirmationType{guard.ConfirmationTrade},
		CreatorIDs: map[uint64]bool{offer.ID: true},
	})
	if err != nil {
		return fmt.Errorf("confirming offer %d: %w", offer.ID, err)
	}
	return nil
}

// SendLoot offers every lootable tradable item to master in a single
// trade, then accepts the resulting mobile confirmation.
func (t *Trading) SendLoot(ctx context.Context) error {
	if t.masterID == 0 {
		return errors.New("trading: no master configured")
	}

	inventory, err := t.web.MyInventory(ctx, true)
	if err != nil {
		return fmt.Errorf("reading inventory: %w", err)
	}
	var loot []websession.Asset
	for _, item := range inventory {
		if item.Type.Lootable() {
			loot = append(loot, item)
		}
	}
	if len(loot) == 0 {
		return ErrNoLoot
	}

	t.log.Info("sending loot", "items", len(loot), "to", t.masterID)
	needsConfirmation, err := t.web.SendTradeOffer(ctx, t.masterID, t.token, loot)
	if err != nil {
		return fmt.Errorf("sending loot offer: %w", err)
	}
	if !needsConfirmation || t.confirmer == nil {
		return nil
	}

	select {
	case <-time.After(t.settle):
	case <-ctx.Done():
		return ctx.Err()
	}

	_, err = t.confirmer.HandleAll(ctx, true, guard.Filter{
		Types:        []guard.ConfirmationType{guard.ConfirmationTrade},
		OtherSteamID: t.masterID,
	})
	if err != nil {
		return fmt.Errorf("confirming loot offer: %w", err)
	}
	return nil
}
