// Package auth issues and validates the JWT session tokens that gate
// the websocket terminal and the script store endpoints.
package auth

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/clarolang/claroterm/pkg/configuration"
	"github.com/clarolang/claroterm/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// Fallback secret, only used when neither the environment variable
	// nor the configuration provide one.
	defaultJWTSecret       = "fallback_secret_change_in_production"
	defaultTokenExpiration = 24 * time.Hour

	tokenIssuer  = "claroterm"
	guestSubject = "guest"
	cookieName   = "session_token"
)

// getJWTSecret retrieves the signing secret, preferring the
// environment over the configuration file.
func getJWTSecret() string {
	if envSecret := os.Getenv("JWT_SECRET_KEY"); envSecret != "" {
		return envSecret
	}
	secret := configuration.GetString("Authentication", "jwt_secret", defaultJWTSecret)
	if secret == defaultJWTSecret {
		logger.Warn(logger.AreaAuth, "using fallback JWT secret, set JWT_SECRET_KEY for production")
	}
	return secret
}

func getTokenExpiration() time.Duration {
	hours := configuration.GetInt("Authentication", "session_token_hours", 24)
	return time.Duration(hours) * time.Hour
}

// GuestClaims are the claims carried by an anonymous session token.
type GuestClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// UserClaims are the claims carried by a logged-in user token.
type UserClaims struct {
	SessionID string `json:"sid"`
	Username  string `json:"username"`
	jwt.RegisteredClaims
}

// GenerateGuestToken signs a token for an anonymous session.
func GenerateGuestToken(sessionID string) (string, error) {
	now := time.Now()
	claims := GuestClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(getTokenExpiration())),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   guestSubject,
			ID:        sessionID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString([]byte(getJWTSecret()))
	if err != nil {
		return "", fmt.Errorf("token signing failed: %v", err)
	}
	logger.Info(logger.AreaAuth, "guest token generated for session %s", sessionID)
	return signedToken, nil
}

// GenerateUserToken signs a token for an authenticated user session.
func GenerateUserToken(sessionID, username string) (string, error) {
	now := time.Now()
	claims := UserClaims{
		SessionID: sessionID,
		Username:  username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(getTokenExpiration())),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   username,
			ID:        sessionID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString([]byte(getJWTSecret()))
	if err != nil {
		return "", fmt.Errorf("token signing failed: %v", err)
	}
	logger.Info(logger.AreaAuth, "user token generated for session %s, user %s", sessionID, username)
	return signedToken, nil
}

// ValidateGuestToken parses and verifies an anonymous session token.
func ValidateGuestToken(tokenString string) (*GuestClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&GuestClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing algorithm: %v", token.Header["alg"])
			}
			return []byte(getJWTSecret()), nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("token parsing failed: %v", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(*GuestClaims)
	if !ok {
		return nil, fmt.Errorf("could not extract token claims")
	}
	if claims.ExpiresAt.Time.Before(time.Now()) {
		return nil, fmt.Errorf("token has expired")
	}
	return claims, nil
}

// ValidateUserToken parses and verifies a user session token.
func ValidateUserToken(tokenString string) (*UserClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&UserClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing algorithm: %v", token.Header["alg"])
			}
			return []byte(getJWTSecret()), nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("token parsing failed: %v", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(*UserClaims)
	if !ok {
		return nil, fmt.Errorf("could not extract token claims")
	}
	if claims.ExpiresAt.Time.Before(time.Now()) {
		return nil, fmt.Errorf("token has expired")
	}
	return claims, nil
}

// TokenIdentity is what a validated token resolves to, independent of
// its concrete claim type. Username is empty for guest sessions.
type TokenIdentity struct {
	SessionID string
	Username  string
}

// ValidateToken verifies either token flavor, dispatching on the
// subject claim.
func ValidateToken(tokenString string) (*TokenIdentity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing algorithm: %v", token.Header["alg"])
		}
		return []byte(getJWTSecret()), nil
	})
	if err != nil {
		return nil, fmt.Errorf("token parsing failed: %v", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("could not extract claims from token")
	}
	subject, ok := claims["sub"].(string)
	if !ok {
		return nil, fmt.Errorf("no subject found in token")
	}

	if subject == guestSubject {
		guestClaims, err := ValidateGuestToken(tokenString)
		if err != nil {
			return nil, err
		}
		return &TokenIdentity{SessionID: guestClaims.SessionID}, nil
	}
	userClaims, err := ValidateUserToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &TokenIdentity{SessionID: userClaims.SessionID, Username: userClaims.Username}, nil
}

// ExtractTokenFromRequest pulls the token from the Authorization
// header, the session cookie, or a token query parameter, in that
// order.
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1], nil
		}
		return "", fmt.Errorf("invalid authorization header format")
	}

	cookie, err := r.Cookie(cookieName)
	if err == nil {
		return cookie.Value, nil
	}

	token := r.URL.Query().Get("token")
	if token != "" {
		return token, nil
	}

	return "", fmt.Errorf("no token found in request")
}

// RequireToken wraps an HTTP handler so it only runs with a valid
// session token. The resolved identity is placed on the request
// context.
func RequireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "OPTIONS" {
			next(w, r)
			return
		}
		tokenString, err := ExtractTokenFromRequest(r)
		if err != nil {
			logger.Warn(logger.AreaAuth, "no token in request: %v", err)
			http.Error(w, "Unauthorized: token missing", http.StatusUnauthorized)
			return
		}

		identity, err := ValidateToken(tokenString)
		if err != nil {
			logger.Warn(logger.AreaAuth, "invalid token: %v", err)
			http.Error(w, "Unauthorized: invalid token", http.StatusUnauthorized)
			return
		}

		r = r.WithContext(AddIdentityToContext(r.Context(), identity))
		next(w, r)
	}
}
