// Package qrtoken issues and verifies the signed tokens embedded in guest QR codes.
//
// A token is base64url(payload) + "." + base64url(HMAC-SHA256(secret, payload)), where payload
// is the canonical JSON encoding of a Payload. The MAC is checked before the payload is
// parsed, so a token either carries the exact bytes that were signed or is rejected.
package qrtoken

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultTTL is used when Issue is called without a positive ttl.
	DefaultTTL = 24 * time.Hour
	// MinSecretLength is the minimum key size in bytes (256 bits).
	MinSecretLength = 32
	// MaxTokenLength bounds the input Decode will look at. Issued tokens stay well below it.
	MaxTokenLength = 2048
)

var (
	ErrMissingSecret    = errors.New("qrtoken: secret key must be at least 32 bytes")
	ErrInvalidPayload   = errors.New("qrtoken: event and guest ids are required")
	ErrInvalidFormat    = errors.New("qrtoken: invalid token format")
	ErrInvalidSignature = errors.New("qrtoken: invalid token signature")
	ErrExpired          = errors.New("qrtoken: token expired")
)

var encoding = base64.RawURLEncoding.Strict()

// Payload is the data bound by a token.
type Payload struct {
	EventID   string
	GuestID   string
	Name      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// claims is the wire shape of a Payload. Field order fixes the canonical encoding.
type claims struct {
	EventID   string `json:"eventId"`
	GuestID   string `json:"guestId"`
	Name      string `json:"name"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

type Codec struct {
	secret []byte
	now    func() time.Time
}

type Option func(*Codec)

// WithClock overrides the time source used by Issue and Verify.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

func New(secret []byte, opts ...Option) (*Codec, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrMissingSecret
	}
	c := &Codec{
		secret: bytes.Clone(secret),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue signs a token for the guest that expires ttl from now. The wire format
// has millisecond precision, so the issue time is rounded down and the expiry up.
func (c *Codec) Issue(eventID, guestID, name string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := c.now().UTC()
	expires := now.Add(ttl)
	if t := expires.Truncate(time.Millisecond); !t.Equal(expires) {
		expires = t.Add(time.Millisecond)
	}
	return c.Encode(Payload{
		EventID:   eventID,
		GuestID:   guestID,
		Name:      name,
		IssuedAt:  now.Truncate(time.Millisecond),
		ExpiresAt: expires,
	})
}

// Encode signs p as is. Times are truncated to milliseconds.
func (c *Codec) Encode(p Payload) (string, error) {
	if p.EventID == "" || p.GuestID == "" {
		return "", ErrInvalidPayload
	}
	if p.ExpiresAt.UnixMilli() <= p.IssuedAt.UnixMilli() {
		return "", fmt.Errorf("%w: expiry must be after issue time", ErrInvalidPayload)
	}
	body, err := json.Marshal(claims{
		EventID:   p.EventID,
		GuestID:   p.GuestID,
		Name:      strings.ToValidUTF8(p.Name, "�"),
		IssuedAt:  p.IssuedAt.UnixMilli(),
		ExpiresAt: p.ExpiresAt.UnixMilli(),
	})
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return encoding.EncodeToString(body) + "." + encoding.EncodeToString(c.sign(body)), nil
}

// Decode checks the token's integrity and returns its payload without looking at expiry.
func (c *Codec) Decode(token string) (Payload, error) {
	token = strings.TrimSpace(token)
	if len(token) > MaxTokenLength {
		return Payload{}, ErrInvalidFormat
	}
	rawBody, rawSig, ok := strings.Cut(token, ".")
	if !ok || rawBody == "" || rawSig == "" {
		return Payload{}, ErrInvalidFormat
	}
	body, err := encoding.DecodeString(rawBody)
	if err != nil {
		return Payload{}, ErrInvalidFormat
	}
	sig, err := encoding.DecodeString(rawSig)
	if err != nil {
		return Payload{}, ErrInvalidFormat
	}
	if !hmac.Equal(sig, c.sign(body)) {
		return Payload{}, ErrInvalidSignature
	}

	var cl claims
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cl); err != nil {
		return Payload{}, ErrInvalidFormat
	}
	if cl.EventID == "" || cl.GuestID == "" || cl.ExpiresAt <= cl.IssuedAt {
		return Payload{}, ErrInvalidFormat
	}
	// Only the canonical encoding of the fields is accepted.
	if canonical, err := json.Marshal(cl); err != nil || !bytes.Equal(canonical, body) {
		return Payload{}, ErrInvalidFormat
	}

	return Payload{
		EventID:   cl.EventID,
		GuestID:   cl.GuestID,
		Name:      cl.Name,
		IssuedAt:  time.UnixMilli(cl.IssuedAt).UTC(),
		ExpiresAt: time.UnixMilli(cl.ExpiresAt).UTC(),
	}, nil
}

// Verify decodes the token and checks expiry. An expired token returns its payload
// along with ErrExpired so the attempt can be attributed to the guest.
func (c *Codec) Verify(token string) (Payload, error) {
	p, err := c.Decode(token)
	if err != nil {
		return Payload{}, err
	}
	if c.now().After(p.ExpiresAt) {
		return p, ErrExpired
	}
	return p, nil
}

func (c *Codec) sign(body []byte) []byte {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(body)
	return mac.Sum(nil)
}

// ReasonCode maps a verification error to the code recorded with an invalid attempt.
func ReasonCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidSignature):
		return "INVALID_SIGNATURE"
	case errors.Is(err, ErrExpired):
		return "EXPIRED"
	default:
		return "INVALID_FORMAT"
	}
}
