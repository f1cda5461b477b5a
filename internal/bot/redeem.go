package bot

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"cardfarm/internal/metrics"
	"cardfarm/internal/platform"
)

// keyRe recognizes a possibly valid product key: three to five groups
// of 4-5 characters separated by dashes.
var keyRe = regexp.MustCompile(`^[0-9A-Z]{4,5}-[0-9A-Z]{4,5}-[0-9A-Z]{4,5}(?:-[0-9A-Z]{4,5}(?:-[0-9A-Z]{4,5})?)?$`)

// redeemer is one account a key can be activated on.
type redeemer interface {
	Name() string
	Connected() bool
	Redeem(ctx context.Context, key string) (*platform.Purchase, error)
}

// Redeem activates one product key on this account.
func (b *Bot) Redeem(ctx context.Context, key string) (*platform.Purchase, error) {
	return b.client.RedeemKey(ctx, key)
}

// redeemKeys runs the redemption pipeline over every valid key in the
// input and returns the per-attempt log.
func (b *Bot) redeemKeys(ctx context.Context, input string) string {
	keys := normalizeKeys(input)
	if len(keys) == 0 {
		return ""
	}

	ring := []redeemer{b}
	if b.cfg.DistributeKeys || b.cfg.ForwardKeysToOtherBots {
		for _, other := range b.sup.Bots() {
			if other == b || !other.Connected() {
				continue
			}
			ring = append(ring, other)
		}
	}

	return runRedeem(ctx, ring, b.cfg.DistributeKeys, b.cfg.ForwardKeysToOtherBots, keys)
}

// normalizeKeys splits the input on newlines and commas and keeps the
// tokens that look like keys.
func normalizeKeys(input string) []string {
	input = strings.ReplaceAll(input, ",", "\n")
	var keys []string
	for _, line := range strings.Split(input, "\n") {
		line = strings.TrimSpace(line)
		if keyRe.MatchString(line) {
			keys = append(keys, line)
		}
	}
	return keys
}

// runRedeem walks the keys over the ring. ring[0] is the bot the
// request arrived on; the rest are its connected siblings in name
// order.
func runRedeem(ctx context.Context, ring []redeemer, distribute, forward bool, keys []string) string {
	var lines []string
	idx := 0 // rotation position, advances only when distributing

	for _, key := range keys {
		if distribute {
			lines = append(lines, redeemDistributed(ctx, ring, &idx, key)...)
			continue
		}
		lines = append(lines, redeemForwarded(ctx, ring, forward, key)...)
	}
	return joinLines(lines)
}

// redeemDistributed tries the key on the bot at the rotation position.
// Every attempt advances the rotation; a recoverable status retries the
// same key on the next bot, anything else moves to the next key. Each
// key gets at most one attempt per ring member.
func redeemDistributed(ctx context.Context, ring []redeemer, idx *int, key string) []string {
	var lines []string
	for tried := 0; tried < len(ring); tried++ {
		cur := ring[*idx%len(ring)]
		if !cur.Connected() {
			*idx++
			continue
		}

		purchase, err := cur.Redeem(ctx, key)
		*idx++
		if err != nil || purchase == nil {
			lines = append(lines, redeemLine(cur.Name(), key, "Timeout!", nil))
			metrics.KeysRedeemed.WithLabelValues(cur.Name(), "Timeout").Inc()
			return lines
		}

		status := purchase.Detail.String()
		metrics.KeysRedeemed.WithLabelValues(cur.Name(), status).Inc()
		lines = append(lines, redeemLine(cur.Name(), key, status, purchase.Items))
		if recoverableResult(purchase.Detail) {
			continue
		}
		return lines
	}
	return lines
}

// redeemForwarded tries the key on the receiving bot and, when
// forwarding is on and the status is recoverable, walks the siblings
// with the same key until one reports a terminal status.
func redeemForwarded(ctx context.Context, ring []redeemer, forward bool, key string) []string {
	self := ring[0]
	purchase, err := self.Redeem(ctx, key)
	if err != nil || purchase == nil {
		metrics.KeysRedeemed.WithLabelValues(self.Name(), "Timeout").Inc()
		return []string{redeemLine(self.Name(), key, "Timeout!", nil)}
	}

	status := purchase.Detail.String()
	metrics.KeysRedeemed.WithLabelValues(self.Name(), status).Inc()
	lines := []string{redeemLine(self.Name(), key, status, purchase.Items)}
	if !forward || !recoverableResult(purchase.Detail) {
		return lines
	}

	for _, other := range ring[1:] {
		if !other.Connected() {
			continue
		}
		purchase, err := other.Redeem(ctx, key)
		if err != nil || purchase == nil {
			metrics.KeysRedeemed.WithLabelValues(other.Name(), "Timeout").Inc()
			lines = append(lines, redeemLine(other.Name(), key, "Timeout!", nil))
			continue
		}
		status := purchase.Detail.String()
		metrics.KeysRedeemed.WithLabelValues(other.Name(), status).Inc()
		lines = append(lines, redeemLine(other.Name(), key, status, purchase.Items))
		if !recoverableResult(purchase.Detail) {
			break
		}
	}
	return lines
}

// recoverableResult reports whether another account could still accept
// the key.
func recoverableResult(r platform.PurchaseResult) bool {
	switch r {
	case platform.PurchaseAlreadyOwned, platform.PurchaseBaseGameRequired,
		platform.PurchaseOnCooldown, platform.PurchaseRegionLocked:
		return true
	default:
		return false
	}
}

func redeemLine(name, key, status string, items map[uint32]string) string {
	line := fmt.Sprintf("<%s> Key: %s | Status: %s", name, key, status)
	if len(items) == 0 {
		return line
	}

	ids := make([]uint32, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%d: %s", id, items[id]))
	}
	return line + " | Items: " + strings.Join(parts, ", ")
}
