// Package guard implements the account's mobile authenticator: one-time
// login tokens and the mobile confirmation flow.
package guard

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Tokens rotate on a fixed bucket.
const tokenPeriod = 30

// Token characters as issued by the platform's authenticator.
var tokenAlphabet = []byte("23456789BCDFGHJKMNPQRTVWXY")

// Authenticator derives login tokens and confirmation signatures from
// an account's enrolled secrets.
type Authenticator struct {
	sharedSecret   []byte
	identitySecret []byte
	deviceID       string
}

// NewAuthenticator decodes the base64 secrets of an enrollment.
func NewAuthenticator(sharedSecret, identitySecret, deviceID string) (*Authenticator, error) {
	shared, err := base64.StdEncoding.DecodeString(sharedSecret)
	if err != nil {
		return nil, fmt.Errorf("decoding shared secret: %w", err)
	}
	identity, err := base64.StdEncoding.DecodeString(identitySecret)
	if err != nil {
		return nil, fmt.Errorf("decoding identity secret: %w", err)
	}
	if len(shared) == 0 || len(identity) == 0 {
		return nil, fmt.Errorf("authenticator secrets are empty")
	}
	if deviceID == "" {
		deviceID = NewDeviceID()
	}
	return &Authenticator{
		sharedSecret:   shared,
		identitySecret: identity,
		deviceID:       deviceID,
	}, nil
}

// NewDeviceID generates a device identity in the format the platform's
// mobile client uses.
func NewDeviceID() string {
	return "android:" + uuid.NewString()
}

// DeviceID returns the enrollment's device identity.
func (a *Authenticator) DeviceID() string {
	return a.deviceID
}

// Code derives the 5-character login token for the bucket containing t.
func (a *Authenticator) Code(t time.Time) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(t.Unix())/tokenPeriod)

	mac := hmac.New(sha1.New, a.sharedSecret)
	mac.Write(buf[:])
	sum := mac.Sum(nil)

	start := int(sum[len(sum)-1] & 0x0F)
	code := binary.BigEndian.Uint32(sum[start:start+4]) & 0x7FFFFFFF

	out := make([]byte, 5)
	for i := range out {
		out[i] = tokenAlphabet[code%uint32(len(tokenAlphabet))]
		code /= uint32(len(tokenAlphabet))
	}
	return string(out)
}

// SecondsUntilRotation reports how long the token for t stays valid.
func SecondsUntilRotation(t time.Time) int {
	return tokenPeriod - int(t.Unix()%tokenPeriod)
}

// confirmationHash signs a confirmation request: HMAC-SHA1 of the
// big-endian timestamp followed by the operation tag.
func (a *Authenticator) confirmationHash(t time.Time, tag string) string {
	data := make([]byte, 8, 8+len(tag))
	binary.BigEndian.PutUint64(data, uint64(t.Unix()))
	data = append(data, tag...)

	mac := hmac.New(sha1.New, a.identitySecret)
	mac.Write(data)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
