package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

var ErrInvalidToken = errors.New("invalid token")

// JWTConf configures inbound bearer token verification. Tokens are signed
// either with a shared HMAC secret or with keys published at JWKSURL.
type JWTConf struct {
	Secret    string        `json:"secret"`
	JWKSURL   string        `json:"jwks_url"`
	Issuer    string        `json:"issuer"`
	Audience  string        `json:"audience"`
	Leeway    time.Duration `json:"leeway"`
	JWKSTTL   time.Duration `json:"jwks_ttl"`
	RoleClaim string        `json:"role_claim"`
}

// Enabled reports whether a key source is configured.
func (c JWTConf) Enabled() bool { return c.Secret != "" || c.JWKSURL != "" }

// Principal is the authenticated caller of an API request.
type Principal struct {
	Subject string
	Roles   []string
}

// HasRole reports whether the principal carries role.
func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// Verifier validates signed bearer tokens.
type Verifier struct {
	conf   JWTConf
	parser *jwt.Parser
	keys   *keySet
}

func NewVerifier(conf JWTConf) (*Verifier, error) {
	if !conf.Enabled() {
		return nil, fmt.Errorf("jwt secret or jwks_url is required")
	}
	if conf.RoleClaim == "" {
		conf.RoleClaim = "roles"
	}
	if conf.JWKSTTL <= 0 {
		conf.JWKSTTL = 5 * time.Minute
	}
	methods := []string{"HS256", "HS384", "HS512"}
	if conf.JWKSURL != "" {
		methods = []string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512"}
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(methods),
		jwt.WithLeeway(conf.Leeway),
		jwt.WithExpirationRequired(),
	}
	if conf.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(conf.Issuer))
	}
	if conf.Audience != "" {
		opts = append(opts, jwt.WithAudience(conf.Audience))
	}
	v := &Verifier{conf: conf, parser: jwt.NewParser(opts...)}
	if conf.JWKSURL != "" {
		v.keys = &keySet{url: conf.JWKSURL, ttl: conf.JWKSTTL}
	}
	return v, nil
}

// Verify parses raw and returns the principal named by its sub claim.
func (v *Verifier) Verify(ctx context.Context, raw string) (Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Principal{}, ErrInvalidToken
	}
	claims := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if v.keys == nil {
			return []byte(v.conf.Secret), nil
		}
		kid, _ := t.Header["kid"].(string)
		return v.keys.lookup(ctx, kid)
	})
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	sub, err := claims.GetSubject()
	if err != nil || strings.TrimSpace(sub) == "" {
		return Principal{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return Principal{Subject: sub, Roles: roles(claims[v.conf.RoleClaim])}, nil
}

func roles(v any) []string {
	switch t := v.(type) {
	case string:
		return strings.Fields(t)
	case []any:
		out := make([]string, 0, len(t))
		for _, r := range t {
			if s, ok := r.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// keySet caches a remote JWKS and refetches it when stale or when a kid
// is unknown.
type keySet struct {
	url     string
	ttl     time.Duration
	mu      sync.Mutex
	set     jwk.Set
	fetched time.Time
}

func (k *keySet) lookup(ctx context.Context, kid string) (any, error) {
	if kid == "" {
		return nil, errors.New("missing kid")
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	stale := k.set == nil || time.Since(k.fetched) > k.ttl
	if !stale {
		if key, ok := k.set.LookupKeyID(kid); ok {
			return rawKey(key)
		}
	}
	set, err := jwk.Fetch(ctx, k.url)
	if err != nil {
		return nil, fmt.Errorf("fetch jwks: %w", err)
	}
	k.set, k.fetched = set, time.Now()
	key, ok := set.LookupKeyID(kid)
	if !ok {
		return nil, fmt.Errorf("unknown kid %q", kid)
	}
	return rawKey(key)
}

func rawKey(key jwk.Key) (any, error) {
	var raw any
	if err := key.Raw(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}
