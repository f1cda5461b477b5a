package bot

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardfarm/internal/platform"
)

// fakeRedeemer scripts one account's reply per key. A key with no entry
// times out. attempts records "<name>:<key>" in global order across the
// whole ring.
type fakeRedeemer struct {
	name     string
	offline  bool
	results  map[string]platform.PurchaseResult
	items    map[string]map[uint32]string
	attempts *[]string
}

func (f *fakeRedeemer) Name() string    { return f.name }
func (f *fakeRedeemer) Connected() bool { return !f.offline }

func (f *fakeRedeemer) Redeem(_ context.Context, key string) (*platform.Purchase, error) {
	*f.attempts = append(*f.attempts, f.name+":"+key)
	detail, ok := f.results[key]
	if !ok {
		return nil, nil
	}
	return &platform.Purchase{
		Result: platform.ResultOK,
		Detail: detail,
		Items:  f.items[key],
	}, nil
}

func newRing(attempts *[]string, names ...string) []redeemer {
	ring := make([]redeemer, 0, len(names))
	for _, name := range names {
		ring = append(ring, &fakeRedeemer{
			name:     name,
			results:  make(map[string]platform.PurchaseResult),
			attempts: attempts,
		})
	}
	return ring
}

func fake(r redeemer) *fakeRedeemer { return r.(*fakeRedeemer) }

// replyLines splits a reply that spans several lines, checking the
// fresh-line prefix such replies carry.
func replyLines(t *testing.T, out string) []string {
	t.Helper()
	require.True(t, strings.HasPrefix(out, "\n"), "multi-line replies must start on a fresh line")
	return strings.Split(out[1:], "\n")
}

const (
	key1 = "AAAA1-BBBB1-CCCC1"
	key2 = "AAAA2-BBBB2-CCCC2"
	key3 = "AAAA3-BBBB3-CCCC3"
	key4 = "AAAA4-BBBB4-CCCC4"
	key5 = "AAAA5-BBBB5-CCCC5"
)

func TestKeyValidation(t *testing.T) {
	valid := []string{
		"AAAAA-BBBBB-CCCCC",
		"AAAA-BBBB-CCCC",
		"12345-ABCDE-12345",
		"AAAAA-BBBBB-CCCCC-DDDDD",
		"AAAAA-BBBBB-CCCCC-DDDDD-EEEEE",
		"A1B2-C3D4-E5F6G",
	}
	for _, key := range valid {
		assert.True(t, keyRe.MatchString(key), "expected %q to be accepted", key)
	}

	invalid := []string{
		"",
		"AAAAA-BBBBB",
		"aaaaa-bbbbb-ccccc",
		"AAAAAA-BBBBB-CCCCC",
		"AAA-BBBBB-CCCCC",
		"AAAAA-BBBBB-CCCCC-DDDDD-EEEEE-FFFFF",
		"AAAAA BBBBB CCCCC",
		"AAAAA-BBBBB-CCCCC extra",
	}
	for _, key := range invalid {
		assert.False(t, keyRe.MatchString(key), "expected %q to be rejected", key)
	}
}

func TestNormalizeKeysSplitsAndFilters(t *testing.T) {
	input := "AAAA1-BBBB1-CCCC1, AAAA2-BBBB2-CCCC2\nnot a key\n  AAAA3-BBBB3-CCCC3  \n\n"
	assert.Equal(t, []string{key1, key2, key3}, normalizeKeys(input))

	assert.Empty(t, normalizeKeys("thanks for the bot!"))
	assert.Empty(t, normalizeKeys(""))
}

func TestRedeemForwardsRecoverableStatus(t *testing.T) {
	var attempts []string
	ring := newRing(&attempts, "A", "B")
	fake(ring[0]).results[key1] = platform.PurchaseAlreadyOwned
	fake(ring[1]).results[key1] = platform.PurchaseOK

	out := runRedeem(context.Background(), ring, false, true, []string{key1})

	assert.Equal(t, []string{"A:" + key1, "B:" + key1}, attempts)
	require.Equal(t, []string{
		"<A> Key: " + key1 + " | Status: AlreadyOwned",
		"<B> Key: " + key1 + " | Status: OK",
	}, replyLines(t, out))
}

func TestRedeemTerminalStatusStopsForwarding(t *testing.T) {
	var attempts []string
	ring := newRing(&attempts, "A", "B")
	fake(ring[0]).results[key1] = platform.PurchaseInvalidKey

	out := runRedeem(context.Background(), ring, false, true, []string{key1})

	assert.Equal(t, []string{"A:" + key1}, attempts)
	assert.Equal(t, "<A> Key: "+key1+" | Status: InvalidKey", out)
}

func TestRedeemWithoutForwardingStaysOnSelf(t *testing.T) {
	var attempts []string
	ring := newRing(&attempts, "A", "B")
	fake(ring[0]).results[key1] = platform.PurchaseAlreadyOwned

	out := runRedeem(context.Background(), ring, false, false, []string{key1})

	assert.Equal(t, []string{"A:" + key1}, attempts)
	assert.Equal(t, "<A> Key: "+key1+" | Status: AlreadyOwned", out)
}

func TestRedeemDistributesRoundRobin(t *testing.T) {
	var attempts []string
	ring := newRing(&attempts, "A", "B", "C")
	keys := []string{key1, key2, key3, key4, key5}
	for _, r := range ring {
		for _, key := range keys {
			fake(r).results[key] = platform.PurchaseOK
		}
	}

	out := runRedeem(context.Background(), ring, true, false, keys)

	assert.Equal(t, []string{
		"A:" + key1,
		"B:" + key2,
		"C:" + key3,
		"A:" + key4,
		"B:" + key5,
	}, attempts)
	assert.Len(t, replyLines(t, out), 5)
}

func TestRedeemDistributeTriesNextBotBeforeNextKey(t *testing.T) {
	var attempts []string
	ring := newRing(&attempts, "A", "B", "C")
	fake(ring[0]).results[key1] = platform.PurchaseAlreadyOwned
	fake(ring[1]).results[key1] = platform.PurchaseOK
	fake(ring[2]).results[key2] = platform.PurchaseOK

	out := runRedeem(context.Background(), ring, true, false, []string{key1, key2})

	assert.Equal(t, []string{"A:" + key1, "B:" + key1, "C:" + key2}, attempts)
	require.Equal(t, []string{
		"<A> Key: " + key1 + " | Status: AlreadyOwned",
		"<B> Key: " + key1 + " | Status: OK",
		"<C> Key: " + key2 + " | Status: OK",
	}, replyLines(t, out))
}

func TestRedeemDistributeSkipsDisconnectedBots(t *testing.T) {
	var attempts []string
	ring := newRing(&attempts, "A", "B", "C")
	fake(ring[1]).offline = true
	fake(ring[0]).results[key1] = platform.PurchaseOK
	fake(ring[2]).results[key2] = platform.PurchaseOK
	fake(ring[0]).results[key3] = platform.PurchaseOK

	runRedeem(context.Background(), ring, true, false, []string{key1, key2, key3})

	assert.Equal(t, []string{"A:" + key1, "C:" + key2, "A:" + key3}, attempts)
}

func TestRedeemTimeoutMovesOn(t *testing.T) {
	var attempts []string
	ring := newRing(&attempts, "A")
	fake(ring[0]).results[key2] = platform.PurchaseOK
	// key1 has no scripted reply, which models a platform timeout.

	out := runRedeem(context.Background(), ring, false, false, []string{key1, key2})

	require.Equal(t, []string{
		"<A> Key: " + key1 + " | Status: Timeout!",
		"<A> Key: " + key2 + " | Status: OK",
	}, replyLines(t, out))
}

func TestRedeemLineListsGrantedItems(t *testing.T) {
	var attempts []string
	ring := newRing(&attempts, "A")
	fake(ring[0]).results[key1] = platform.PurchaseOK
	fake(ring[0]).items = map[string]map[uint32]string{
		key1: {20: "Game B", 10: "Game A"},
	}

	out := runRedeem(context.Background(), ring, false, false, []string{key1})
	assert.Equal(t, "<A> Key: "+key1+" | Status: OK | Items: 10: Game A, 20: Game B", out)
}

func TestRedeemKeysOfflineBotReportsTimeout(t *testing.T) {
	b := newOfflineBot(t)

	out := b.Response(context.Background(), masterID, "AAAAA-BBBBB-CCCCC")
	assert.Equal(t, "<alpha> Key: AAAAA-BBBBB-CCCCC | Status: Timeout!", out)
}
