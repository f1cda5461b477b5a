package guard

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func newTestAuthenticator(t *testing.T) *Authenticator {
	t.Helper()
	auth, err := NewAuthenticator(b64("shared-secret-0123"), b64("identity-secret-0123"), "android:test-device")
	require.NoError(t, err)
	return auth
}

func TestCodeShape(t *testing.T) {
	auth := newTestAuthenticator(t)

	code := auth.Code(time.Unix(1700000000, 0))
	assert.Len(t, code, 5)
	for _, r := range code {
		assert.Contains(t, string(tokenAlphabet), string(r))
	}
}

func TestCodeStableWithinBucket(t *testing.T) {
	auth := newTestAuthenticator(t)

	// 1700000010 and 1700000029 share the same 30-second bucket.
	assert.Equal(t, auth.Code(time.Unix(1700000010, 0)), auth.Code(time.Unix(1700000029, 0)))
}

func TestCodeRotatesAcrossBuckets(t *testing.T) {
	auth := newTestAuthenticator(t)

	seen := make(map[string]bool)
	for i := range 10 {
		seen[auth.Code(time.Unix(int64(1700000000+30*i), 0))] = true
	}
	assert.Greater(t, len(seen), 1, "codes must rotate across buckets")
}

func TestSecondsUntilRotation(t *testing.T) {
	assert.Equal(t, 30, SecondsUntilRotation(time.Unix(0, 0)))
	assert.Equal(t, 1, SecondsUntilRotation(time.Unix(29, 0)))
	assert.Equal(t, 30, SecondsUntilRotation(time.Unix(30, 0)))
	assert.Equal(t, 13, SecondsUntilRotation(time.Unix(47, 0)))
}

func TestNewAuthenticatorRejectsBadSecrets(t *testing.T) {
	_, err := NewAuthenticator("not base64!!!", b64("identity"), "")
	assert.Error(t, err)

	_, err = NewAuthenticator(b64("shared"), "not base64!!!", "")
	assert.Error(t, err)

	_, err = NewAuthenticator("", "", "")
	assert.Error(t, err)
}

func TestNewAuthenticatorFillsDeviceID(t *testing.T) {
	auth, err := NewAuthenticator(b64("shared"), b64("identity"), "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(auth.DeviceID(), "android:"))
	assert.Greater(t, len(auth.DeviceID()), len("android:"))
}

func TestConfirmationHashIsSHA1Sized(t *testing.T) {
	auth := newTestAuthenticator(t)

	hash := auth.confirmationHash(time.Unix(1700000000, 0), "conf")
	raw, err := base64.StdEncoding.DecodeString(hash)
	require.NoError(t, err)
	assert.Len(t, raw, 20)
}
