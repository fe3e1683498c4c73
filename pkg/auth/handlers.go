package auth

import (
	"encoding/json"
	"net/http"

	"github.com/clarolang/claroterm/pkg/configuration"
	"github.com/clarolang/claroterm/pkg/logger"

	"github.com/google/uuid"
)

// UserStore is the credential backend the login and register handlers
// talk to. The storage package provides the implementation.
type UserStore interface {
	Authenticate(username, password string) error
	CreateUser(username, password string) error
}

var userStore UserStore

// SetUserStore installs the credential backend.
func SetUserStore(store UserStore) {
	userStore = store
}

// LoginRequest is the body of a login or register call. Username and
// password may be empty for guest logins.
type LoginRequest struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// LoginResponse is the body returned by the auth endpoints.
type LoginResponse struct {
	Success   bool   `json:"success"`
	Token     string `json:"token,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Username  string `json:"username,omitempty"`
	Message   string `json:"message"`
}

// HandleLogin authenticates a user (or starts a guest session when no
// credentials are supplied) and hands out a session token.
func HandleLogin(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != "POST" {
		logger.Warn(logger.AreaAuth, "invalid method for login: %s", r.Method)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var loginReq LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&loginReq); err != nil {
		logger.Warn(logger.AreaAuth, "invalid JSON in login request: %v", err)
		respondWithError(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	sessionID := uuid.NewString()

	var token string
	var err error
	if loginReq.Username == "" {
		if !configuration.GetBool("Authentication", "enable_guest_access", true) {
			respondWithError(w, "Guest access is disabled", http.StatusForbidden)
			return
		}
		token, err = GenerateGuestToken(sessionID)
		if err != nil {
			logger.Error(logger.AreaAuth, "guest token generation failed for session %s: %v", sessionID, err)
			respondWithError(w, "Failed to generate token", http.StatusInternalServerError)
			return
		}
	} else {
		if userStore == nil {
			respondWithError(w, "Login unavailable", http.StatusServiceUnavailable)
			return
		}
		if err := userStore.Authenticate(loginReq.Username, loginReq.Password); err != nil {
			logger.Warn(logger.AreaAuth, "failed login for %q: %v", loginReq.Username, err)
			respondWithError(w, "Invalid credentials", http.StatusUnauthorized)
			return
		}
		token, err = GenerateUserToken(sessionID, loginReq.Username)
		if err != nil {
			logger.Error(logger.AreaAuth, "user token generation failed for %q: %v", loginReq.Username, err)
			respondWithError(w, "Failed to generate token", http.StatusInternalServerError)
			return
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(getTokenExpiration().Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	response := LoginResponse{
		Success:   true,
		Token:     token,
		SessionID: sessionID,
		Username:  loginReq.Username,
		Message:   "Login successful",
	}
	logger.Info(logger.AreaAuth, "session %s started for %q", sessionID, loginReq.Username)
	json.NewEncoder(w).Encode(response)
}

// HandleRegister creates a new user account.
func HandleRegister(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if userStore == nil {
		respondWithError(w, "Registration unavailable", http.StatusServiceUnavailable)
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, "Invalid request format", http.StatusBadRequest)
		return
	}
	if err := validateCredentials(req.Username, req.Password); err != nil {
		respondWithError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := userStore.CreateUser(req.Username, req.Password); err != nil {
		logger.Warn(logger.AreaAuth, "registration failed for %q: %v", req.Username, err)
		respondWithError(w, "Registration failed", http.StatusConflict)
		return
	}

	logger.Info(logger.AreaAuth, "user %q registered", req.Username)
	json.NewEncoder(w).Encode(LoginResponse{
		Success:  true,
		Username: req.Username,
		Message:  "Registration successful",
	})
}

// HandleTokenValidation verifies a presented token.
func HandleTokenValidation(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	tokenString, err := ExtractTokenFromRequest(r)
	if err != nil {
		logger.Warn(logger.AreaAuth, "no token found in validation request: %v", err)
		respondWithError(w, "Token not found", http.StatusUnauthorized)
		return
	}
	identity, err := ValidateToken(tokenString)
	if err != nil {
		logger.Warn(logger.AreaAuth, "token validation failed: %v", err)
		respondWithError(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	json.NewEncoder(w).Encode(LoginResponse{
		Success:   true,
		SessionID: identity.SessionID,
		Username:  identity.Username,
		Message:   "Token valid",
	})
}

// HandleLogout clears the session token cookie.
func HandleLogout(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	logger.Info(logger.AreaAuth, "session logged out, token cookie cleared")
	json.NewEncoder(w).Encode(LoginResponse{
		Success: true,
		Message: "Logout successful",
	})
}

// validateCredentials applies the configured username and password
// limits.
func validateCredentials(username, password string) error {
	minUser := configuration.GetInt("Authentication", "min_username_length", 3)
	maxUser := configuration.GetInt("Authentication", "max_username_length", 20)
	minPass := configuration.GetInt("Authentication", "min_password_length", 6)
	maxPass := configuration.GetInt("Authentication", "max_password_length", 100)

	if len(username) < minUser || len(username) > maxUser {
		return &credentialError{"username length out of range"}
	}
	for _, r := range username {
		isLower := r >= 'a' && r <= 'z'
		isUpper := r >= 'A' && r <= 'Z'
		isDigit := r >= '0' && r <= '9'
		if !isLower && !isUpper && !isDigit && r != '_' {
			return &credentialError{"username contains invalid characters"}
		}
	}
	if len(password) < minPass || len(password) > maxPass {
		return &credentialError{"password length out of range"}
	}
	return nil
}

type credentialError struct{ msg string }

func (e *credentialError) Error() string { return e.msg }

func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Content-Type", "application/json")
}

func respondWithError(w http.ResponseWriter, message string, statusCode int) {
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(LoginResponse{
		Success: false,
		Message: message,
	})
}
