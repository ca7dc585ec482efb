package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	clientContextKey = "ClientID"
	sessionTTL       = 365 * 24 * time.Hour
)

// ClientClaims identifies an anonymous dashboard client.
type ClientClaims struct {
	ClientID string `json:"cid"`
	jwt.RegisteredClaims
}

func generateToken(clientID, secret string, expiresAt time.Time) (string, error) {
	claims := ClientClaims{
		ClientID: clientID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   clientID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func parseToken(tokenStr, secret string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &ClientClaims{}, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if claims, ok := token.Claims.(*ClientClaims); ok && token.Valid && claims.ClientID != "" {
		return claims.ClientID, nil
	}
	return "", errors.New("invalid token claims")
}

// bearer extracts the token from an Authorization header, or from the
// token query parameter for websocket clients that cannot set headers.
func bearer(c *gin.Context) (string, bool) {
	if h := c.GetHeader("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return "", false
		}
		return parts[1], true
	}
	if t := c.Query("token"); t != "" {
		return t, true
	}
	return "", false
}

// AuthMiddleware enforces a client token on settings routes.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" && c.Query("token") == "" {
			respondError(c, http.StatusUnauthorized, "MISSING_TOKEN", "missing Authorization header")
			c.Abort()
			return
		}
		tok, ok := bearer(c)
		if !ok {
			respondError(c, http.StatusUnauthorized, "INVALID_AUTH_HEADER", "invalid Authorization header")
			c.Abort()
			return
		}
		clientID, err := parseToken(tok, secret)
		if err != nil {
			respondError(c, http.StatusUnauthorized, "INVALID_TOKEN", "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(clientContextKey, clientID)
		c.Next()
	}
}

// CurrentClientID returns the authenticated client ID from context.
func CurrentClientID(c *gin.Context) string {
	if v, ok := c.Get(clientContextKey); ok {
		if id, okCast := v.(string); okCast {
			return id
		}
	}
	return ""
}

// createSession issues a client token. A caller presenting a valid token
// keeps its client id; anyone else gets a new one.
func (s *Server) createSession(c *gin.Context) {
	clientID := ""
	if tok, ok := bearer(c); ok {
		if id, err := parseToken(tok, s.JWTSecret); err == nil {
			clientID = id
		}
	}
	if clientID == "" {
		clientID = uuid.NewString()
	}

	expiresAt := time.Now().Add(sessionTTL)
	token, err := generateToken(clientID, s.JWTSecret, expiresAt)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "TOKEN_FAILED", "failed to issue token")
		return
	}
	respondOK(c, http.StatusOK, gin.H{
		"token":      token,
		"client_id":  clientID,
		"expires_at": expiresAt.UTC(),
	}, "Session created")
}
