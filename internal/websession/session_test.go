package websession

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, mux http.Handler, nonce NonceFunc) *Session {
	t.Helper()
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := NewBrowser(ts.URL, 5*time.Second, 5, 0, log)
	if nonce == nil {
		nonce = func(context.Context) (string, error) { return "fallback-nonce", nil }
	}
	return NewSession(b, nonce, log)
}

func testToken(t *testing.T, ttl time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(ttl).Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func authInitHandler(t *testing.T, calls *atomic.Int32, token string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.NotEmpty(t, r.FormValue("steamid"))
		require.NotEmpty(t, r.FormValue("nonce"))
		http.SetCookie(w, &http.Cookie{
			Name:  cookieToken,
			Value: r.FormValue("steamid") + "||" + token,
			Path:  "/",
		})
		fmt.Fprint(w, `{"success":true}`)
	}
}

func TestInitUnlocksParentalAndStoresID(t *testing.T) {
	var initCalls atomic.Int32
	var pin atomic.Value

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/init", authInitHandler(t, &initCalls, testToken(t, time.Hour)))
	mux.HandleFunc("/parental/ajaxunlock", func(w http.ResponseWriter, r *http.Request) {
		pin.Store(r.FormValue("pin"))
		fmt.Fprint(w, `{"success":true}`)
	})

	s := newTestSession(t, mux, nil)
	require.NoError(t, s.Init(context.Background(), 76561198000000001, "nonce-1", "1234"))

	assert.Equal(t, uint64(76561198000000001), s.SteamID())
	assert.Equal(t, "1234", pin.Load())
	assert.Equal(t, int32(1), initCalls.Load())
	assert.NotEmpty(t, s.Cookie(cookieSessionID))
}

func TestInitRejectedSurfacesError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/init", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":false}`)
	})

	s := newTestSession(t, mux, nil)
	assert.Error(t, s.Init(context.Background(), 76561198000000001, "nonce-1", ""))
}

func TestEnsureValidKeepsFreshToken(t *testing.T) {
	var initCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/init", authInitHandler(t, &initCalls, testToken(t, time.Hour)))

	s := newTestSession(t, mux, nil)
	require.NoError(t, s.Init(context.Background(), 76561198000000001, "nonce-1", ""))
	require.NoError(t, s.EnsureValid(context.Background()))

	assert.Equal(t, int32(1), initCalls.Load())
}

func TestEnsureValidRefreshesExpiringToken(t *testing.T) {
	var initCalls atomic.Int32
	var nonceCalls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/init", authInitHandler(t, &initCalls, testToken(t, time.Minute)))

	nonce := func(context.Context) (string, error) {
		nonceCalls.Add(1)
		return "refreshed-nonce", nil
	}
	s := newTestSession(t, mux, nonce)
	require.NoError(t, s.Init(context.Background(), 76561198000000001, "nonce-1", ""))

	// One minute left is inside the refresh margin.
	require.NoError(t, s.EnsureValid(context.Background()))
	assert.Equal(t, int32(2), initCalls.Load())
	assert.Equal(t, int32(1), nonceCalls.Load())
}

func TestRefreshWithoutInitFails(t *testing.T) {
	s := newTestSession(t, http.NewServeMux(), nil)
	assert.Error(t, s.Refresh(context.Background()))
}

func TestUnauthorizedIsSessionExpired(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/my/badges", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	s := newTestSession(t, mux, nil)
	_, err := s.BadgePage(context.Background(), 1)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestLoginRedirectIsSessionExpired(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/my/badges", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login/home/?goto=badges", http.StatusFound)
	})
	mux.HandleFunc("/login/home/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>sign in</html>")
	})

	s := newTestSession(t, mux, nil)
	_, err := s.BadgePage(context.Background(), 1)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestServerErrorsRetryUntilSuccess(t *testing.T) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/my/gamecards/440/", func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `<html><div class="progress_info_bold">2 card drops remaining</div></html>`)
	})

	s := newTestSession(t, mux, nil)
	drops, err := s.CardsRemaining(context.Background(), 440)
	require.NoError(t, err)
	assert.Equal(t, 2, drops)
	assert.Equal(t, int32(3), hits.Load())
}

func TestServerErrorsExhaustRetries(t *testing.T) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/my/gamecards/440/", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	s := newTestSession(t, mux, nil)
	_, err := s.CardsRemaining(context.Background(), 440)
	assert.Error(t, err)
	assert.Equal(t, int32(5), hits.Load())
}
