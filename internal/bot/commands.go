package bot

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"cardfarm/internal/guard"
	"cardfarm/internal/trading"
)

// Version is the daemon release reported by version, update and the API.
const Version = "1.3.0"

// maxMessageLength is the platform's chat message limit.
const maxMessageLength = 2048

// Response handles one incoming chat message and returns the reply, or
// "" when the sender gets none. Non-command messages from the master
// are treated as product keys.
func (b *Bot) Response(ctx context.Context, senderID uint64, message string) string {
	message = strings.TrimSpace(message)
	if message == "" || !b.isMaster(senderID) {
		return ""
	}

	if !strings.HasPrefix(message, "!") {
		return b.redeemKeys(ctx, message)
	}

	fields := strings.Fields(message)
	verb := strings.ToLower(strings.TrimPrefix(fields[0], "!"))
	args := fields[1:]

	switch verb {
	case "2fa":
		return b.cmdTwoFactor()
	case "2faok":
		return b.cmdConfirmations(ctx, true)
	case "2fano":
		return b.cmdConfirmations(ctx, false)
	case "addlicense":
		return b.cmdAddLicense(ctx, args)
	case "api":
		if !b.isOwner(senderID) {
			return ""
		}
		return b.cmdAPI()
	case "exit":
		if !b.isOwner(senderID) {
			return ""
		}
		go b.sup.Shutdown()
		return "Done!"
	case "farm":
		b.farmer.SwitchToManualMode(ctx, false)
		b.farmer.Stop()
		b.farmer.Start(ctx)
		return "Done!"
	case "help":
		return b.cmdHelp()
	case "loot":
		return b.cmdLoot(ctx)
	case "lootall":
		if !b.isOwner(senderID) {
			return ""
		}
		return b.cmdLootAll(ctx)
	case "owns":
		return b.cmdOwns(ctx, args)
	case "password":
		return b.cmdPassword()
	case "pause":
		b.Pause(ctx)
		return "Done!"
	case "play":
		return b.cmdPlay(ctx, args)
	case "redeem":
		return b.redeemKeys(ctx, strings.Join(args, "\n"))
	case "rejoinchat":
		return b.cmdRejoinChat()
	case "restart":
		if !b.isOwner(senderID) {
			return ""
		}
		b.sup.RequestRestart()
		return "Done!"
	case "resume":
		b.Resume(ctx)
		return "Done!"
	case "start":
		b.RequestStart()
		return "Done!"
	case "status":
		return b.statusLine()
	case "statusall":
		if !b.isOwner(senderID) {
			return ""
		}
		return b.cmdStatusAll()
	case "stop":
		b.Stop()
		return "Done!"
	case "update":
		if !b.isOwner(senderID) {
			return ""
		}
		return "No update available, running version " + Version
	case "version":
		return "Version " + Version
	default:
		return "ERROR: Unknown command!"
	}
}

func (b *Bot) cmdTwoFactor() string {
	auth := b.authenticator()
	if auth == nil {
		return "No authenticator enrolled!"
	}
	now := time.Now()
	return fmt.Sprintf("Token: %s (valid for %d seconds)", auth.Code(now), guard.SecondsUntilRotation(now))
}

func (b *Bot) cmdConfirmations(ctx context.Context, accept bool) string {
	conf := b.confirmationsHandle()
	if conf == nil {
		return "No authenticator enrolled!"
	}
	handled, err := conf.HandleAll(ctx, accept, guard.Filter{})
	if err != nil {
		return fmt.Sprintf("ERROR: %v", err)
	}
	return fmt.Sprintf("Handled %d confirmations!", handled)
}

// cmdAddLicense activates free licenses, falling back to the storefront
// endpoint when the session RPC is unavailable.
func (b *Bot) cmdAddLicense(ctx context.Context, args []string) string {
	appIDs, rest := parseAppIDs(args)
	if rest != "" {
		return fmt.Sprintf("ERROR: Invalid app id %q!", rest)
	}
	if len(appIDs) == 0 {
		return "ERROR: App ids are missing!"
	}

	res, err := b.client.RequestFreeLicense(ctx, appIDs...)
	if err == nil {
		return fmt.Sprintf("Status: %s | Granted apps: %v | Granted packages: %v",
			res.Result, res.GrantedApps, res.GrantedPackages)
	}
	b.log.Warn("free license request failed, trying the store endpoint", "error", err)

	lines := make([]string, 0, len(appIDs))
	for _, id := range appIDs {
		if err := b.web.AddFreeLicense(ctx, id); err != nil {
			lines = append(lines, fmt.Sprintf("License %d: %v", id, err))
			continue
		}
		lines = append(lines, fmt.Sprintf("License %d: OK", id))
	}
	return joinLines(lines)
}

func (b *Bot) cmdAPI() string {
	if b.global.IPCBindAddress == "" {
		return "IPC API is disabled!"
	}
	return fmt.Sprintf("API listening on http://%s/api", b.global.IPCBindAddress)
}

func (b *Bot) cmdHelp() string {
	return "Commands: 2fa, 2fano, 2faok, addlicense, api, exit, farm, help, loot, lootall, " +
		"owns, password, pause, play, redeem, rejoinchat, restart, resume, start, status, " +
		"statusall, stop, update, version"
}

func (b *Bot) cmdLoot(ctx context.Context) string {
	err := b.trading.SendLoot(ctx)
	switch {
	case errors.Is(err, trading.ErrNoLoot):
		return "Nothing to send!"
	case err != nil:
		return fmt.Sprintf("ERROR: %v", err)
	default:
		return "Done!"
	}
}

func (b *Bot) cmdLootAll(ctx context.Context) string {
	lines := make([]string, 0, len(b.sup.Bots()))
	for _, bot := range b.sup.Bots() {
		if !bot.Connected() {
			continue
		}
		err := bot.trading.SendLoot(ctx)
		switch {
		case errors.Is(err, trading.ErrNoLoot):
			lines = append(lines, fmt.Sprintf("<%s> Nothing to send!", bot.name))
		case err != nil:
			lines = append(lines, fmt.Sprintf("<%s> ERROR: %v", bot.name, err))
		default:
			lines = append(lines, fmt.Sprintf("<%s> Done!", bot.name))
		}
	}
	if len(lines) == 0 {
		return "No bots are connected!"
	}
	return joinLines(lines)
}

func (b *Bot) cmdOwns(ctx context.Context, args []string) string {
	if len(args) == 0 {
		return "ERROR: Query is missing!"
	}
	query := strings.Join(args, " ")

	games, err := b.web.OwnedGames(ctx)
	if err != nil {
		return fmt.Sprintf("ERROR: %v", err)
	}

	var matched []uint32
	if id, err := strconv.ParseUint(query, 10, 32); err == nil {
		if _, ok := games[uint32(id)]; ok {
			matched = append(matched, uint32(id))
		}
	} else {
		needle := strings.ToLower(query)
		for id, name := range games {
			if strings.Contains(strings.ToLower(name), needle) {
				matched = append(matched, id)
			}
		}
	}
	if len(matched) == 0 {
		return "Not owned yet!"
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i] < matched[j] })
	lines := make([]string, 0, len(matched))
	for _, id := range matched {
		lines = append(lines, fmt.Sprintf("Owned: %d | %s", id, games[id]))
	}
	return joinLines(lines)
}

// cmdPassword shows the configured password encrypted against the
// account login, so it can be pasted into another instance's config
// without going over chat in the clear.
func (b *Bot) cmdPassword() string {
	if b.cfg.Password == "" {
		return "No password configured!"
	}
	sealed, err := encryptPassword(b.cfg.Login, b.cfg.Password)
	if err != nil {
		return fmt.Sprintf("ERROR: %v", err)
	}
	return "Encrypted password: " + sealed
}

func encryptPassword(login, password string) (string, error) {
	key := sha256.Sum256([]byte(login))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return "", fmt.Errorf("building cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("building cipher: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, []byte(password), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (b *Bot) cmdPlay(ctx context.Context, args []string) string {
	appIDs, gameName := parseAppIDs(args)
	if len(appIDs) == 0 && gameName == "" {
		return "ERROR: App ids are missing!"
	}

	b.farmer.SwitchToManualMode(ctx, true)
	if err := b.client.PlayGames(appIDs, gameName); err != nil {
		return fmt.Sprintf("ERROR: %v", err)
	}
	return "Done!"
}

func (b *Bot) cmdRejoinChat() string {
	if b.cfg.MasterClanID == 0 {
		return "ERROR: No master clan configured!"
	}
	if err := b.client.JoinChat(b.cfg.MasterClanID); err != nil {
		return fmt.Sprintf("ERROR: %v", err)
	}
	return "Done!"
}

func (b *Bot) cmdStatusAll() string {
	bots := b.sup.Bots()
	lines := make([]string, 0, len(bots)+1)
	farming := 0
	for _, bot := range bots {
		if bot.farmer.NowFarming() {
			farming++
		}
		lines = append(lines, bot.statusLine())
	}
	lines = append(lines, fmt.Sprintf("Currently %d/%d bots are farming.", farming, len(bots)))
	return joinLines(lines)
}

// joinLines renders a reply from its lines. Replies spanning several
// lines start with a newline so the first one is not glued to the
// sender prefix in the chat window.
func joinLines(lines []string) string {
	if len(lines) > 1 {
		return "\n" + strings.Join(lines, "\n")
	}
	return strings.Join(lines, "\n")
}

// parseAppIDs reads numeric app ids from comma or space separated args.
// Everything from the first non-numeric word on becomes the custom game
// name.
func parseAppIDs(args []string) ([]uint32, string) {
	var appIDs []uint32
	var nameParts []string
	for _, arg := range args {
		for _, piece := range strings.Split(arg, ",") {
			piece = strings.TrimSpace(piece)
			if piece == "" {
				continue
			}
			if len(nameParts) == 0 {
				if id, err := strconv.ParseUint(piece, 10, 32); err == nil {
					appIDs = append(appIDs, uint32(id))
					continue
				}
			}
			nameParts = append(nameParts, piece)
		}
	}
	return appIDs, strings.Join(nameParts, " ")
}

// sendChunked splits a reply into platform-sized parts, marking the
// cuts with an ellipsis on both sides of the seam.
func (b *Bot) sendChunked(message string, send func(part string) error) {
	const limit = maxMessageLength - 6

	runes := []rune(message)
	var parts []string
	for len(runes) > 0 {
		n := len(runes)
		if n > limit {
			n = limit
		}
		parts = append(parts, string(runes[:n]))
		runes = runes[n:]
	}

	for i, part := range parts {
		if i > 0 {
			part = "…" + part
		}
		if i < len(parts)-1 {
			part = part + "…"
		}
		if err := send(part); err != nil {
			b.log.Warn("sending chat reply failed", "error", err)
			return
		}
	}
}
