// Package terminal serves interactive Claro sessions over websocket.
// Each connection is authenticated with a session token and gets its
// own interpreter instance.
package terminal

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/clarolang/claroterm/pkg/auth"
	"github.com/clarolang/claroterm/pkg/configuration"
	"github.com/clarolang/claroterm/pkg/logger"
	"github.com/clarolang/claroterm/pkg/shared"
	"github.com/clarolang/claroterm/pkg/storage"
)

// Handler accepts websocket connections and owns the live sessions.
type Handler struct {
	store    *storage.Store
	upgrader websocket.Upgrader

	mu          sync.Mutex
	sessions    map[string]*Session
	clients     map[*Client]bool
	perIPCounts map[string]int
}

// NewHandler creates the websocket terminal handler.
func NewHandler(store *storage.Store) *Handler {
	h := &Handler{
		store:       store,
		sessions:    make(map[string]*Session),
		clients:     make(map[*Client]bool),
		perIPCounts: make(map[string]int),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  16384,
		WriteBufferSize: 16384,
		CheckOrigin:     checkOrigin,
	}
	return h
}

// checkOrigin enforces the configured origin allowlist. An empty
// allowlist accepts same-host requests only.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}

	allowed := configuration.GetString("Server", "allow_origin_hosts", "")
	if allowed == "" {
		return strings.Contains(origin, r.Host)
	}
	for _, host := range strings.Split(allowed, ",") {
		if strings.TrimSpace(host) == origin {
			return true
		}
	}
	logger.Warn(logger.AreaWebSocket, "rejected websocket origin %q", origin)
	return false
}

// HandleWebSocket upgrades an authenticated request into a terminal
// session.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)

	tokenString, err := auth.ExtractTokenFromRequest(r)
	if err != nil {
		logger.Warn(logger.AreaWebSocket, "websocket without token from %s: %v", ip, err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	identity, err := auth.ValidateToken(tokenString)
	if err != nil {
		logger.Warn(logger.AreaWebSocket, "websocket with invalid token from %s: %v", ip, err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	maxPerIP := configuration.GetInt("Terminal", "max_sessions_per_ip", 5)
	h.mu.Lock()
	if h.perIPCounts[ip] >= maxPerIP {
		h.mu.Unlock()
		logger.Warn(logger.AreaWebSocket, "session limit reached for %s", ip)
		http.Error(w, "Too many sessions", http.StatusTooManyRequests)
		return
	}
	h.perIPCounts[ip]++
	h.mu.Unlock()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error(logger.AreaWebSocket, "upgrade failed for %s: %v", ip, err)
		h.mu.Lock()
		h.perIPCounts[ip]--
		h.mu.Unlock()
		return
	}

	sessionID := identity.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	client := &Client{
		conn:     conn,
		send:     make(chan []byte, 256),
		shutdown: make(chan struct{}),
		handler:  h,
		ip:       ip,
	}
	session := NewSession(sessionID, identity.Username, h.store, func(msg shared.Message) {
		frame, err := json.Marshal(msg)
		if err != nil {
			logger.Error(logger.AreaTerminal, "message marshal failed: %v", err)
			return
		}
		client.Send(frame)
	})
	client.session = session

	h.mu.Lock()
	h.sessions[sessionID] = session
	h.clients[client] = true
	h.mu.Unlock()

	logger.Info(logger.AreaSession, "session %s opened for %q from %s", sessionID, identity.Username, ip)

	// Hand the session id to the frontend, then show the prompt.
	session.send(shared.MessageTypeSession, sessionID)
	session.sendPrompt(promptReady)

	go client.writePump()
	go client.readPump()
}

// cleanupClient tears down everything a dead connection owned.
func (h *Handler) cleanupClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	if c.session != nil {
		delete(h.sessions, c.session.ID)
	}
	if h.perIPCounts[c.ip] > 0 {
		h.perIPCounts[c.ip]--
	}
	h.mu.Unlock()

	if c.session != nil {
		c.session.Close()
		logger.Info(logger.AreaSession, "session %s closed", c.session.ID)
	}
	c.Close()
}

// SessionCount reports the number of live sessions.
func (h *Handler) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Shutdown closes every live session.
func (h *Handler) Shutdown() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.cleanupClient(c)
	}
}

// clientIP resolves the originating address, honoring proxy headers.
func clientIP(r *http.Request) string {
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}
