// Package token provides stateless signing, parsing and hashing of the
// access/refresh token pair. It knows nothing about sessions or storage.
package token

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"regexp"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Token type claim values.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Fallback TTLs used when a configured duration string does not parse.
const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

var (
	// ErrInvalid covers malformed tokens and bad signatures.
	ErrInvalid = errors.New("token invalid")
	// ErrExpired is returned when the signature is fine but exp has passed.
	ErrExpired = errors.New("token expired")
)

var ttlPattern = regexp.MustCompile(`^(\d+)([smhd])$`)

// ParseTTL parses a duration string of the form "15m", "7d" etc.
// Only s/m/h/d units are accepted.
func ParseTTL(s string) (time.Duration, error) {
	m := ttlPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, errors.New("ttl must match ^\\d+[smhd]$")
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, err
	}
	switch m[2] {
	case "s":
		return time.Duration(n) * time.Second, nil
	case "m":
		return time.Duration(n) * time.Minute, nil
	case "h":
		return time.Duration(n) * time.Hour, nil
	default:
		return time.Duration(n) * 24 * time.Hour, nil
	}
}

// Claims is the payload carried by both token types. Type distinguishes
// access from refresh tokens so one cannot stand in for the other.
type Claims struct {
	UserID uint64
	Email  string
	Role   string
	Type   string
}

type jwtClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	Type  string `json:"type"`
	jwt.RegisteredClaims
}

// Codec signs and verifies the token pair. Access and refresh tokens use
// independent secrets, so leaking one cannot forge the other.
type Codec struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewCodec builds a Codec from the two secrets and the configured TTL
// strings. TTL values come from trusted configuration, so a malformed
// string degrades to the hardcoded default with a warning instead of
// failing startup.
func NewCodec(accessSecret, refreshSecret, accessTTL, refreshTTL string, log zerolog.Logger) *Codec {
	c := &Codec{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
	}
	var err error
	if c.accessTTL, err = ParseTTL(accessTTL); err != nil {
		log.Warn().Str("value", accessTTL).Err(err).Msg("invalid access token ttl, using default")
		c.accessTTL = DefaultAccessTTL
	}
	if c.refreshTTL, err = ParseTTL(refreshTTL); err != nil {
		log.Warn().Str("value", refreshTTL).Err(err).Msg("invalid refresh token ttl, using default")
		c.refreshTTL = DefaultRefreshTTL
	}
	return c
}

// AccessTTL returns the effective access token lifetime.
func (c *Codec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL returns the effective refresh token lifetime.
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

// SignAccess issues a signed access token and its absolute expiry.
func (c *Codec) SignAccess(userID uint64, email, role string) (string, time.Time, error) {
	return c.sign(userID, email, role, TypeAccess, c.accessSecret, c.accessTTL)
}

// SignRefresh issues a signed refresh token and its absolute expiry.
func (c *Codec) SignRefresh(userID uint64, email, role string) (string, time.Time, error) {
	return c.sign(userID, email, role, TypeRefresh, c.refreshSecret, c.refreshTTL)
}

func (c *Codec) sign(userID uint64, email, role, typ string, secret []byte, ttl time.Duration) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := jwtClaims{
		Email: email,
		Role:  role,
		Type:  typ,
		RegisteredClaims: jwt.RegisteredClaims{
			// The jti keeps every signed token unique: iat/exp have only
			// second granularity, and without it two pairs issued for the
			// same user in the same second would be byte-identical — and so
			// would their session hashes.
			ID:        uuid.NewString(),
			Subject:   strconv.FormatUint(userID, 10),
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Decode parses a token without checking signature or expiry. It exists only
// to pull the claimed user ID out cheaply before the session lookup; callers
// must never treat the result as authenticated. Returns nil on any
// malformed input.
func (c *Codec) Decode(raw string) *Claims {
	var claims jwtClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return nil
	}
	return claimsFrom(&claims)
}

// VerifyAccess checks signature and expiry against the access secret.
func (c *Codec) VerifyAccess(raw string) (*Claims, error) {
	return c.verify(raw, c.accessSecret)
}

// VerifyRefresh checks signature and expiry against the refresh secret.
func (c *Codec) VerifyRefresh(raw string) (*Claims, error) {
	return c.verify(raw, c.refreshSecret)
}

func (c *Codec) verify(raw string, secret []byte) (*Claims, error) {
	var claims jwtClaims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalid
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalid
	}
	if !tok.Valid {
		return nil, ErrInvalid
	}
	out := claimsFrom(&claims)
	if out == nil {
		return nil, ErrInvalid
	}
	return out, nil
}

func claimsFrom(jc *jwtClaims) *Claims {
	uid, err := strconv.ParseUint(jc.Subject, 10, 64)
	if err != nil {
		return nil
	}
	return &Claims{UserID: uid, Email: jc.Email, Role: jc.Role, Type: jc.Type}
}

// Hash returns the hex SHA-256 digest of a raw token. Sessions store only
// this digest so a database read never yields a usable credential.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
