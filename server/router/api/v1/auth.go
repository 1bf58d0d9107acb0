package v1

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

const (
	// Issuer is the issuer of access tokens.
	Issuer = "embedcore"
	// KeyID is the identifier of the signing key.
	KeyID = "v1"

	userIDContextKey = "user_id"
)

// GenerateAccessToken signs an HS256 token whose subject is userID.
func GenerateAccessToken(userID string, expiry time.Duration, secret []byte) (string, error) {
	if userID == "" {
		return "", errors.New("user id is required")
	}
	if len(secret) == 0 {
		return "", errors.New("secret is required")
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:   Issuer,
		Subject:  userID,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if expiry > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(expiry))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = KeyID
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token")
	}
	return signed, nil
}

// ParseAccessToken verifies token and returns its subject.
func ParseAccessToken(token string, secret []byte) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if kid, _ := t.Header["kid"].(string); kid != KeyID {
			return nil, errors.Errorf("unexpected kid: %v", t.Header["kid"])
		}
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
	)
	if err != nil {
		return "", errors.Wrap(err, "invalid access token")
	}
	if claims.Subject == "" {
		return "", errors.New("access token has no subject")
	}
	return claims.Subject, nil
}

func (s *APIV1Service) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
		}
		userID, err := ParseAccessToken(token, []byte(s.Secret))
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid access token")
		}
		c.Set(userIDContextKey, userID)
		return next(c)
	}
}

func currentUserID(c echo.Context) string {
	userID, _ := c.Get(userIDContextKey).(string)
	return userID
}
