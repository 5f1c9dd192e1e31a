package utils // package utils provides helper functions for token creation and hashing

import (
	"crypto/sha256" // SHA-256 hashing for refresh tokens stored in the ledger
	"encoding/hex"  // hex encoding of digests
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
	"github.com/google/uuid"       // random token ids (jti)
)

// TokenKind names one of the three token classes. Each kind is signed
// with its own secret and carries its kind in the "typ" claim, so a token
// of one kind never verifies as another.
type TokenKind string

const (
	KindAccess   TokenKind = "access"
	KindRefresh  TokenKind = "refresh"
	KindRecovery TokenKind = "recovery"
)

// TokenKeys holds the signing secrets and lifetimes for every token kind.
type TokenKeys struct {
	AccessSecret   string
	RefreshSecret  string
	RecoverySecret string
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
	RecoveryTTL    time.Duration
}

// Token is a signed JWT together with the issued-at and expiry it asserts.
type Token struct {
	Raw      string    // the serialized JWT string
	IssuedAt time.Time // iat, truncated to seconds like the encoded claim
	Exp      time.Time // exp, truncated to seconds like the encoded claim
}

// Claims is the verified content of a token.
type Claims struct {
	UserID   uint64
	DeviceID string // only set on refresh tokens
	ID       string
	IssuedAt time.Time
	Exp      time.Time
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Type     TokenKind `json:"typ"`
	DeviceID string    `json:"deviceId,omitempty"`
}

// TokenIssuer mints and verifies access, refresh and password-recovery tokens.
type TokenIssuer struct {
	keys TokenKeys
	now  func() time.Time
}

// NewTokenIssuer returns a TokenIssuer using the given keys.
func NewTokenIssuer(keys TokenKeys) *TokenIssuer {
	return &TokenIssuer{keys: keys, now: time.Now}
}

// IssueAccessToken builds a short-lived token carrying the user id.
func (ti *TokenIssuer) IssueAccessToken(userID uint64) (Token, error) {
	return ti.issue(KindAccess, userID, "")
}

// IssueRefreshToken builds a long-lived token bound to a device.
func (ti *TokenIssuer) IssueRefreshToken(userID uint64, deviceID string) (Token, error) {
	if deviceID == "" {
		return Token{}, errors.New("refresh token requires a device id")
	}
	return ti.issue(KindRefresh, userID, deviceID)
}

// IssuePasswordRecoveryToken builds a token accepted only by the new-password flow.
func (ti *TokenIssuer) IssuePasswordRecoveryToken(userID uint64) (Token, error) {
	return ti.issue(KindRecovery, userID, "")
}

// Verify checks signature, algorithm, expiry and kind. Any failure yields
// ok == false; callers never see the underlying parse error.
func (ti *TokenIssuer) Verify(raw string, kind TokenKind) (Claims, bool) {
	secret, _, err := ti.keyFor(kind)
	if err != nil || raw == "" {
		return Claims{}, false
	}
	var tc tokenClaims
	tok, err := jwt.ParseWithClaims(raw, &tc, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(ti.now), jwt.WithExpirationRequired())
	if err != nil || !tok.Valid {
		return Claims{}, false
	}
	if tc.Type != kind || tc.IssuedAt == nil || tc.ExpiresAt == nil {
		return Claims{}, false
	}
	uid, err := strconv.ParseUint(tc.Subject, 10, 64)
	if err != nil || uid == 0 {
		return Claims{}, false
	}
	if kind == KindRefresh && tc.DeviceID == "" {
		return Claims{}, false
	}
	return Claims{
		UserID:   uid,
		DeviceID: tc.DeviceID,
		ID:       tc.ID,
		IssuedAt: tc.IssuedAt.Time.UTC(),
		Exp:      tc.ExpiresAt.Time.UTC(),
	}, true
}

func (ti *TokenIssuer) issue(kind TokenKind, userID uint64, deviceID string) (Token, error) {
	secret, ttl, err := ti.keyFor(kind)
	if err != nil {
		return Token{}, err
	}
	// NumericDate drops sub-second precision; keep the returned times equal to the encoded ones.
	iat := ti.now().UTC().Truncate(time.Second)
	exp := iat.Add(ttl)
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatUint(userID, 10),
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Type:     kind,
		DeviceID: deviceID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return Token{}, err
	}
	return Token{Raw: signed, IssuedAt: iat, Exp: exp}, nil
}

func (ti *TokenIssuer) keyFor(kind TokenKind) (string, time.Duration, error) {
	switch kind {
	case KindAccess:
		return ti.keys.AccessSecret, ti.keys.AccessTTL, nil
	case KindRefresh:
		return ti.keys.RefreshSecret, ti.keys.RefreshTTL, nil
	case KindRecovery:
		return ti.keys.RecoverySecret, ti.keys.RecoveryTTL, nil
	}
	return "", 0, errors.New("unknown token kind")
}

// HashRefreshRaw returns the SHA-256 hash of a raw refresh token as a hex
// string. The revocation ledger stores only this digest.
func HashRefreshRaw(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
