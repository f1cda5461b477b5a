package bot

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardfarm/internal/platform/platformtest"
)

// newOfflineBot builds a bot that is never started; commands that only
// touch local state work without a session.
func newOfflineBot(t *testing.T, extra ...string) *Bot {
	t.Helper()
	srv := platformtest.New(t, nil)
	sup := newTestFleet(t, srv.URL())
	writeBotConfig(t, sup.global.BotsDir, "alpha", extra...)
	return loadTestBot(t, sup, "alpha")
}

func TestResponseIgnoresNonMasters(t *testing.T) {
	b := newOfflineBot(t)
	ctx := context.Background()

	assert.Empty(t, b.Response(ctx, strangerID, "!status"))
	assert.Empty(t, b.Response(ctx, strangerID, "!version"))
	assert.Empty(t, b.Response(ctx, strangerID, "AAAAA-BBBBB-CCCCC"))
	assert.Empty(t, b.Response(ctx, 0, "!status"))
}

func TestResponseOwnerOnlyCommands(t *testing.T) {
	b := newOfflineBot(t)
	ctx := context.Background()

	for _, cmd := range []string{"!exit", "!restart", "!statusall", "!lootall", "!api", "!update"} {
		assert.Empty(t, b.Response(ctx, masterID, cmd), "%s must be owner-only", cmd)
	}

	assert.Equal(t, "No update available, running version "+Version, b.Response(ctx, ownerID, "!update"))
	assert.Equal(t, "IPC API is disabled!", b.Response(ctx, ownerID, "!api"))

	all := b.Response(ctx, ownerID, "!statusall")
	assert.True(t, strings.HasPrefix(all, "\n"), "multi-line replies must start on a fresh line")
	assert.Contains(t, all, "Currently 0/1 bots are farming.")
}

func TestResponseParsing(t *testing.T) {
	b := newOfflineBot(t)
	ctx := context.Background()

	assert.Equal(t, "Version "+Version, b.Response(ctx, masterID, "!VERSION"))
	assert.Equal(t, "Version "+Version, b.Response(ctx, masterID, "  !version  "))
	assert.Contains(t, b.Response(ctx, masterID, "!help"), "Commands:")
	assert.Equal(t, "ERROR: Unknown command!", b.Response(ctx, masterID, "!frobnicate"))
	assert.Empty(t, b.Response(ctx, masterID, ""))
	assert.Empty(t, b.Response(ctx, masterID, "   "))

	// Chatter without keys from the master is silently dropped.
	assert.Empty(t, b.Response(ctx, masterID, "hello there"))
}

func TestStatusCommand(t *testing.T) {
	b := newOfflineBot(t)

	line := b.Response(context.Background(), masterID, "!status")
	assert.Contains(t, line, "<alpha>")
	assert.Contains(t, line, "Stopped")
}

func TestPauseAndResumeToggleManualMode(t *testing.T) {
	b := newOfflineBot(t)
	ctx := context.Background()

	assert.Equal(t, "Done!", b.Response(ctx, masterID, "!pause"))
	assert.True(t, b.farmer.ManualMode())

	assert.Equal(t, "Done!", b.Response(ctx, masterID, "!resume"))
	assert.False(t, b.farmer.ManualMode())
}

func TestTwoFactorCommandsWithoutAuthenticator(t *testing.T) {
	b := newOfflineBot(t)
	ctx := context.Background()

	assert.Equal(t, "No authenticator enrolled!", b.Response(ctx, masterID, "!2fa"))
	assert.Equal(t, "No authenticator enrolled!", b.Response(ctx, masterID, "!2faok"))
	assert.Equal(t, "No authenticator enrolled!", b.Response(ctx, masterID, "!2fano"))
}

func TestPasswordCommandEncryptsAgainstLogin(t *testing.T) {
	b := newOfflineBot(t)

	reply := b.Response(context.Background(), masterID, "!password")
	require.True(t, strings.HasPrefix(reply, "Encrypted password: "))

	sealed, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(reply, "Encrypted password: "))
	require.NoError(t, err)

	key := sha256.Sum256([]byte("alpha-login"))
	block, err := aes.NewCipher(key[:])
	require.NoError(t, err)
	gcm, err := cipher.NewGCM(block)
	require.NoError(t, err)
	require.Greater(t, len(sealed), gcm.NonceSize())

	plain, err := gcm.Open(nil, sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():], nil)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", string(plain))
}

func TestParseAppIDs(t *testing.T) {
	ids, name := parseAppIDs([]string{"440,730", "570"})
	assert.Equal(t, []uint32{440, 730, 570}, ids)
	assert.Empty(t, name)

	ids, name = parseAppIDs([]string{"440", "My", "Custom", "Game"})
	assert.Equal(t, []uint32{440}, ids)
	assert.Equal(t, "My Custom Game", name)

	ids, name = parseAppIDs([]string{"Just", "a", "name", "2"})
	assert.Empty(t, ids)
	assert.Equal(t, "Just a name 2", name)

	ids, name = parseAppIDs(nil)
	assert.Empty(t, ids)
	assert.Empty(t, name)
}

func TestPlayCommandRequiresArguments(t *testing.T) {
	b := newOfflineBot(t)
	assert.Equal(t, "ERROR: App ids are missing!", b.Response(context.Background(), masterID, "!play"))
}

func TestAddLicenseRejectsNonNumeric(t *testing.T) {
	b := newOfflineBot(t)
	ctx := context.Background()

	assert.Equal(t, "ERROR: App ids are missing!", b.Response(ctx, masterID, "!addlicense"))
	assert.Contains(t, b.Response(ctx, masterID, "!addlicense notanumber"), "Invalid app id")
}

func TestSendChunkedSplitsLongReplies(t *testing.T) {
	b := newOfflineBot(t)

	message := strings.Repeat("x", 5000)
	var parts []string
	b.sendChunked(message, func(part string) error {
		parts = append(parts, part)
		return nil
	})

	require.Len(t, parts, 3)
	assert.True(t, strings.HasSuffix(parts[0], "…"))
	assert.True(t, strings.HasPrefix(parts[1], "…"))
	assert.True(t, strings.HasSuffix(parts[1], "…"))
	assert.True(t, strings.HasPrefix(parts[2], "…"))
	assert.False(t, strings.HasSuffix(parts[2], "…"))

	for _, part := range parts {
		assert.LessOrEqual(t, len([]rune(part)), maxMessageLength-4,
			"payload plus affixes must stay under the platform limit")
	}

	joined := strings.Join(parts, "")
	assert.Equal(t, message, strings.ReplaceAll(joined, "…", ""))
}

func TestSendChunkedShortMessagePassesThrough(t *testing.T) {
	b := newOfflineBot(t)

	var parts []string
	b.sendChunked("short reply", func(part string) error {
		parts = append(parts, part)
		return nil
	})
	require.Equal(t, []string{"short reply"}, parts)
}
