package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
)

const defaultTokenTTL = 24 * time.Hour

var (
	errMissingAuthorization = errors.New("missing authorization header")
	errBadAuthorization     = errors.New("bad auth header")
)

// Auth issues and validates HS256 bearer tokens carrying the user id in sub.
type Auth struct {
	Secret []byte
	Issuer string
	TTL    time.Duration

	now    func() time.Time
	parser *jwt.Parser
}

// NewAuth creates a new Auth instance. A zero ttl falls back to 24h.
func NewAuth(secret []byte, issuer string, ttl time.Duration) *Auth {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &Auth{
		Secret: secret,
		Issuer: issuer,
		TTL:    ttl,
		now:    time.Now,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{"HS256"})),
	}
}

// Issue signs a token for userID.
func (a *Auth) Issue(userID int64) (string, time.Time, error) {
	now := a.now()
	expires := now.Add(a.TTL)
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		Issuer:    a.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// UserIDFromAuthHeader extracts the user identifier from the Authorization header.
func (a *Auth) UserIDFromAuthHeader(h string) (int64, error) {
	if h == "" {
		return 0, errMissingAuthorization
	}
	token, err := bearerTokenFromString(h)
	if err != nil {
		return 0, err
	}
	return a.UserIDFromBearer(token)
}

// UserIDFromBearer validates a raw token and returns its subject.
func (a *Auth) UserIDFromBearer(token string) (int64, error) {
	if token == "" {
		return 0, errBadAuthorization
	}

	parsed, err := a.parser.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return a.Secret, nil
	})
	if err != nil {
		return 0, err
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return 0, errors.New("invalid claims")
	}

	// one minute of leeway for clock skew
	now := a.now().Add(time.Minute).Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return 0, errors.New("token expired")
	}
	if !claims.VerifyNotBefore(now, false) {
		return 0, errors.New("token not valid yet")
	}
	if !claims.VerifyIssuedAt(now, false) {
		return 0, errors.New("token used before issued")
	}
	if a.Issuer != "" && !claims.VerifyIssuer(a.Issuer, true) {
		return 0, errors.New("invalid issuer")
	}

	sub, _ := claims["sub"].(string)
	id, err := strconv.ParseInt(sub, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("missing sub")
	}
	return id, nil
}

func bearerTokenFromHeader(header http.Header) (string, error) {
	values := header.Values(echo.HeaderAuthorization)
	if len(values) == 0 {
		return "", errMissingAuthorization
	}
	return bearerTokenFromString(values[0])
}

func bearerTokenFromString(raw string) (string, error) {
	trimmed := strings.Trim(raw, " ")
	if trimmed == "" {
		return "", errMissingAuthorization
	}
	token, ok := strings.CutPrefix(trimmed, "Bearer ")
	if !ok || token == "" {
		return "", errBadAuthorization
	}
	if strings.Count(token, ".") != 2 {
		return "", errBadAuthorization
	}
	return token, nil
}
