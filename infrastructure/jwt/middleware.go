// Package jwt authenticates moderators on the gin router, either from an
// HMAC-signed bearer token or, behind a trusted gateway, from headers.
package jwt

import (
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// PrivilegedRole marks a reviewer allowed to take privileged actions.
	PrivilegedRole = "privileged_reviewer"

	ModeratorHeader  = "X-Moderator-ID"
	PrivilegedHeader = "X-Privileged-Reviewer"

	identityKey = "moderator_identity"
)

// Claims represents JWT claims.
type Claims struct {
	Sub                string   `json:"sub"`
	PrivilegedReviewer bool     `json:"privileged_reviewer,omitempty"`
	Roles              []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the authenticated moderator behind a request.
type Identity struct {
	ModeratorID string
	Privileged  bool
}

// Identity derives the moderator identity carried by the claims.
func (c *Claims) Identity() Identity {
	return Identity{
		ModeratorID: c.Sub,
		Privileged:  c.PrivilegedReviewer || slices.Contains(c.Roles, PrivilegedRole),
	}
}

// Middleware validates an HMAC bearer token and stores the moderator identity
// on the gin context.
func Middleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if isHealthPath(c.Request.URL.Path) {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "missing authorization header")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			abortUnauthorized(c, "invalid authorization header format")
			return
		}

		claims, err := Parse(secret, parts[1])
		if err != nil || claims.Sub == "" {
			abortUnauthorized(c, "invalid token")
			return
		}

		c.Set("claims", claims)
		c.Set(identityKey, claims.Identity())
		c.Next()
	}
}

// Parse validates tokenString against secret and returns its claims.
func Parse(secret, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// Sign issues an HS256 token for claims.
func Sign(secret string, claims *Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// HeaderMiddleware trusts the X-Moderator-ID and X-Privileged-Reviewer
// headers set by an authenticating gateway. Requests without a moderator
// header pass through with no identity.
func HeaderMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := strings.TrimSpace(c.GetHeader(ModeratorHeader)); id != "" {
			privileged, _ := strconv.ParseBool(c.GetHeader(PrivilegedHeader))
			c.Set(identityKey, Identity{ModeratorID: id, Privileged: privileged})
		}
		c.Next()
	}
}

// GetClaims extracts claims from the gin context.
func GetClaims(c *gin.Context) (*Claims, bool) {
	claims, exists := c.Get("claims")
	if !exists {
		return nil, false
	}
	cl, ok := claims.(*Claims)
	return cl, ok
}

// GetIdentity returns the moderator identity set by either middleware.
func GetIdentity(c *gin.Context) (Identity, bool) {
	v, exists := c.Get(identityKey)
	if !exists {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
}

func isHealthPath(path string) bool {
	return path == "/health" || strings.HasPrefix(path, "/health/")
}
