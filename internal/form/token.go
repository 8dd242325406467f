// internal/form/token.go
//
// Knit – Forms subsystem: stateless instance handles.
//
// Context
//   Clients address a live controller by an opaque handle returned when the
//   instance is created.  Handles are signed so a client cannot enumerate or
//   guess other visitors' instances, and a forged handle is rejected before
//   any registry lookup:
//
//      base64url( nonce | unixMicro | HMAC_SHA256(secret, nonce+unixMicro) )
//
//   •  nonce – 16 random bytes.
//   •  unixMicro – issue time, 8 bytes, big-endian.
//   •  HMAC – keyed with the process secret from config.
//
// Workflow
//   •  Signer.Issue()     → new handle.
//   •  Signer.Verify(tok) → constant-time verify plus age window.
//
//------------------------------------------------------------------------------

package form

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"time"

	"go.uber.org/zap"
)

const (
	tokenBytes    = 16 + 8 + sha256.Size // nonce + ts + sig
	DefaultMaxAge = 24 * time.Hour
	minKeyLen     = 32
)

// Signer issues and verifies instance handles.
type Signer struct {
	key    []byte
	maxAge time.Duration
	now    func() time.Time
}

// NewSigner returns a Signer keyed with key.  A key shorter than 32 bytes is
// replaced by a random one (handles then reset on restart).
func NewSigner(key []byte, maxAge time.Duration) *Signer {
	if len(key) < minKeyLen {
		key = make([]byte, minKeyLen)
		_, _ = rand.Read(key)
		zap.S().Warnw("instance key missing or short, using random key")
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Signer{key: key, maxAge: maxAge, now: time.Now}
}

// Issue creates a new handle.
func (s *Signer) Issue() (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	ts := make([]byte, 8)
	binary.BigEndian.PutUint64(ts, uint64(s.now().UnixMicro()))

	buf := make([]byte, 0, tokenBytes)
	buf = append(buf, nonce...)
	buf = append(buf, ts...)
	buf = append(buf, s.sign(nonce, ts)...)

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Verify reports whether tok is authentic and inside the age window.
func (s *Signer) Verify(tok string) bool {
	raw, err := base64.RawURLEncoding.DecodeString(tok)
	if err != nil || len(raw) != tokenBytes {
		return false
	}

	nonce, tsBytes, sig := raw[:16], raw[16:24], raw[24:]

	issued := time.UnixMicro(int64(binary.BigEndian.Uint64(tsBytes)))
	now := s.now()
	if now.Sub(issued) > s.maxAge || issued.Sub(now) > time.Minute {
		// Too old, or from the future beyond clock skew.
		return false
	}

	return hmac.Equal(sig, s.sign(nonce, tsBytes))
}

func (s *Signer) sign(nonce, ts []byte) []byte {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(nonce)
	mac.Write(ts)
	return mac.Sum(nil)
}
