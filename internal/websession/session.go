package websession

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Cookie names issued by the session bootstrap.
const (
	cookieSessionID = "sessionid"
	cookieToken     = "steamLoginSecure"
)

// Tokens are refreshed ahead of their actual expiry.
const tokenExpiryMargin = 5 * time.Minute

// NonceFunc obtains a fresh web-auth nonce from the logon session.
type NonceFunc func(ctx context.Context) (string, error)

// Session is an account's authenticated web session. Init establishes
// it after logon; Refresh re-establishes it with a fresh nonce when the
// access token expires or the site rejects it.
type Session struct {
	*Browser

	log   *slog.Logger
	nonce NonceFunc

	mu          sync.Mutex
	steamID     uint64
	parentalPIN string
}

// NewSession wraps a browser with session management. nonce is consulted
// on every Refresh.
func NewSession(b *Browser, nonce NonceFunc, log *slog.Logger) *Session {
	return &Session{Browser: b, log: log, nonce: nonce}
}

// SteamID returns the id the session was initialized for, 0 before Init.
func (s *Session) SteamID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.steamID
}

// Init authenticates the web session from a logon nonce and unlocks
// parental restrictions when a PIN is configured.
func (s *Session) Init(ctx context.Context, steamID uint64, nonce, parentalPIN string) error {
	sessionID := strings.ReplaceAll(uuid.NewString(), "-", "")
	s.SetCookie(cookieSessionID, sessionID)

	res, err := s.PostJSON(ctx, "/auth/init", url.Values{
		"steamid":   {strconv.FormatUint(steamID, 10)},
		"nonce":     {nonce},
		"sessionid": {sessionID},
	})
	if err != nil {
		return fmt.Errorf("initializing web session: %w", err)
	}
	if !successValue(res) {
		return fmt.Errorf("web session rejected for %d", steamID)
	}

	s.mu.Lock()
	s.steamID = steamID
	s.parentalPIN = parentalPIN
	s.mu.Unlock()

	if parentalPIN != "" && parentalPIN != "0" {
		if err := s.unlockParental(ctx, parentalPIN); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) unlockParental(ctx context.Context, pin string) error {
	res, err := s.PostJSON(ctx, "/parental/ajaxunlock", url.Values{
		"pin":       {pin},
		"sessionid": {s.Cookie(cookieSessionID)},
	})
	if err != nil {
		return fmt.Errorf("unlocking parental restrictions: %w", err)
	}
	if !successValue(res) {
		return fmt.Errorf("parental PIN rejected")
	}
	return nil
}

// Refresh re-initializes the session with a fresh nonce. Concurrent
// callers are serialized; the parental PIN from Init is reused.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	steamID := s.steamID
	pin := s.parentalPIN
	s.mu.Unlock()
	if steamID == 0 {
		return fmt.Errorf("refreshing web session: not initialized")
	}

	nonce, err := s.nonce(ctx)
	if err != nil {
		return fmt.Errorf("fetching web nonce: %w", err)
	}
	return s.Init(ctx, steamID, nonce, pin)
}

// EnsureValid refreshes the session when the access token is missing or
// close to expiry.
func (s *Session) EnsureValid(ctx context.Context) error {
	if s.tokenUsable() {
		return nil
	}
	s.log.Debug("web token expiring, refreshing session")
	return s.Refresh(ctx)
}

// The access token cookie is "<steamid>||<jwt>". Expiry is read from
// the unverified claims; verification belongs to the site, not us.
func (s *Session) tokenUsable() bool {
	raw := s.Cookie(cookieToken)
	if raw == "" {
		return false
	}
	_, token, found := strings.Cut(raw, "||")
	if !found {
		return false
	}

	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return time.Until(exp.Time) > tokenExpiryMargin
}
