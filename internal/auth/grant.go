package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/securecookie"
)

// UnlockCookie carries the signed unlock grant of one browser.
const UnlockCookie = "workhours_unlock"

// DefaultGrantTTL is how long an unlock lasts when UNLOCK_TTL is not set.
const DefaultGrantTTL = 12 * time.Hour

var (
	ErrGrantInvalid = errors.New("unlock grant invalid")
	ErrGrantExpired = errors.New("unlock grant expired")
)

type grant struct {
	Expires int64 `json:"exp"`
}

// Grants issues and checks the signed cookies that let one client edit.
// Nothing is kept server side: a grant is valid until it expires or the
// client drops it.
type Grants struct {
	codec *securecookie.SecureCookie
	ttl   time.Duration
	now   func() time.Time
}

// NewGrants signs grants with secret. An empty secret picks a random key, so
// grants do not survive a restart.
func NewGrants(secret string, ttl time.Duration) (*Grants, error) {
	key := []byte(secret)
	if secret == "" {
		key = securecookie.GenerateRandomKey(32)
		if key == nil {
			return nil, errors.New("generate unlock signing key")
		}
	}
	if ttl <= 0 {
		ttl = DefaultGrantTTL
	}

	codec := securecookie.New(key, nil)
	codec.MaxAge(int(ttl / time.Second))
	codec.SetSerializer(securecookie.JSONEncoder{})
	return &Grants{codec: codec, ttl: ttl, now: time.Now}, nil
}

// TTL is the lifetime of a freshly issued grant.
func (g *Grants) TTL() time.Duration { return g.ttl }

// Issue returns a new cookie value and its expiry.
func (g *Grants) Issue() (string, time.Time, error) {
	expires := g.now().Add(g.ttl)
	value, err := g.codec.Encode(UnlockCookie, grant{Expires: expires.Unix()})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("encode unlock grant: %w", err)
	}
	return value, expires, nil
}

// Check verifies the signature and the expiry of a cookie value.
func (g *Grants) Check(value string) error {
	var gr grant
	if err := g.codec.Decode(UnlockCookie, value, &gr); err != nil {
		return fmt.Errorf("%w: %w", ErrGrantInvalid, err)
	}
	if !g.now().Before(time.Unix(gr.Expires, 0)) {
		return ErrGrantExpired
	}
	return nil
}

type editorKey struct{}

// WithEditor marks ctx as belonging to a client holding a valid grant.
func WithEditor(ctx context.Context) context.Context {
	return context.WithValue(ctx, editorKey{}, true)
}

// IsEditor reports whether ctx carries a verified unlock.
func IsEditor(ctx context.Context) bool {
	ok, _ := ctx.Value(editorKey{}).(bool)
	return ok
}
