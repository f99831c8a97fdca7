// Quadbox quadrant game
//
// A session is a shared screen split into quadrants, one per player. Each
// quadrant cycles background video clips while the phase engine drives timed
// challenges, overlays, and a points tally. Clients connect over a websocket
// per game ID, receive declarative render instructions, and send button
// presses back.
//
// Features:
// - WebSockets per game ID: /path/:gameid and /path/:gameid/ws
// - All connected clients see every quadrant; buttons carry a quadrant index
// - Players identified by cookie (playerID)
// - Session starts once every quadrant has pressed ready
// - Per-quadrant restart, UI reset, and manual clip shuffle
// - Games auto-reaped after configurable idle timeout
// - Random 8-char game IDs via crypto/rand, with server-side collision check
// - In-browser QR button to share the current session, backed by go-qrcode

package main

import (
	"crypto/rand"
	_ "embed"
	"encoding/hex"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const minClips = 4

// SimpleMessage is for generic notifications ("error", "stopped", etc.)
type SimpleMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// clearMessage tears down all phase UI for one quadrant.
type clearMessage struct {
	Type     string `json:"type"` // "phase_clear"
	Quadrant int    `json:"quadrant"`
}

// SessionInfoMessage is sent immediately on connect so the client can draw
// the lobby: quadrant count, ready states, and the clip library.
type SessionInfoMessage struct {
	Type      string    `json:"type"` // "session_info"
	Quadrants int       `json:"quadrants"`
	Running   bool      `json:"running"`
	Ready     []bool    `json:"ready"`
	Clips     []*clip   `json:"clips"`
	Vibes     []string  `json:"vibes"`
	CreatedAt time.Time `json:"created_at"`
}

// ReadyStateMessage broadcasts the lobby ready flags.
type ReadyStateMessage struct {
	Type    string `json:"type"` // "ready_state"
	Ready   []bool `json:"ready"`
	Running bool   `json:"running"`
}

type Client struct {
	conn     *websocket.Conn
	send     chan any
	playerID string
}

type Hub struct {
	id      string
	session *session

	clients map[*Client]bool

	register chan *Client
	unreg    chan *Client
	events   chan clientMessage

	mu sync.RWMutex

	createdAt  time.Time
	lastActive time.Time
	ready      []bool
}

func newHub(cfg *Config, gameID string, library *clipLibrary) *Hub {
	now := time.Now()
	h := &Hub{
		id:         gameID,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		events:     make(chan clientMessage, 16),
		createdAt:  now,
		lastActive: now,
	}
	h.session = newSession(gameID, cfg, h, library)
	h.ready = make([]bool, len(h.session.quads))
	return h
}

// render implements the engine's UI boundary: broadcast one declarative
// instruction for a quadrant to every connected client.
func (h *Hub) render(_ int, msg any) {
	h.broadcast(msg)
}

func (h *Hub) clearPhase(quadrant int) {
	h.broadcast(clearMessage{Type: "phase_clear", Quadrant: quadrant})
}

func (h *Hub) broadcast(msg any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			delete(h.clients, client)
			close(client.send)
		}
	}
}

func (h *Hub) run(cfg *Config) {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.lastActive = time.Now()
			h.clients[c] = true

			c.send <- SessionInfoMessage{
				Type:      "session_info",
				Quadrants: len(h.session.quads),
				Running:   h.session.isRunning(),
				Ready:     append([]bool(nil), h.ready...),
				Clips:     h.session.library.clips,
				Vibes:     vibeKeys,
				CreatedAt: h.createdAt,
			}
			h.mu.Unlock()

		case c := <-h.unreg:
			h.mu.Lock()
			h.lastActive = time.Now()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case msg := <-h.events:
			h.mu.Lock()
			h.lastActive = time.Now()
			h.mu.Unlock()

			h.handleEvent(cfg, msg)
		}
	}
}

func (h *Hub) quadrantFor(msg clientMessage) *quadrant {
	if msg.Quadrant < 0 || msg.Quadrant >= len(h.session.quads) {
		return nil
	}
	return h.session.quads[msg.Quadrant]
}

func (h *Hub) handleEvent(cfg *Config, msg clientMessage) {
	q := h.quadrantFor(msg)
	if q == nil {
		return
	}

	switch msg.Type {
	case "ready":
		if h.session.isRunning() {
			return
		}
		if h.session.library.size() < minClips {
			h.broadcast(SimpleMessage{
				Type:    "error",
				Message: "Load at least 4 video clips.",
			})
			return
		}

		h.ready[msg.Quadrant] = true
		h.broadcast(ReadyStateMessage{
			Type:  "ready_state",
			Ready: append([]bool(nil), h.ready...),
		})

		for _, r := range h.ready {
			if !r {
				return
			}
		}
		h.session.start()
		h.broadcast(ReadyStateMessage{
			Type:    "ready_state",
			Ready:   append([]bool(nil), h.ready...),
			Running: true,
		})

	case "stop":
		h.session.stop()
		for i := range h.ready {
			h.ready[i] = false
		}
		h.broadcast(ReadyStateMessage{Type: "ready_state", Ready: append([]bool(nil), h.ready...)})
		logf(cfg, "GAMES: Session %s stopped by player", h.id)

	case "restart":
		q.requestRestart()

	case "reset":
		h.clearPhase(msg.Quadrant)

	case "shuffle", "ended":
		if h.session.isRunning() {
			q.advanceClip()
		}

	case "confirm", "fail", "choice", "breaths", "answer", "clip":
		q.deliver(msg)
	}
}

// close stops the session and disconnects all clients (used by reaper).
func (h *Hub) close() {
	h.session.stop()

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		close(c.send)
		_ = c.conn.Close()
		delete(h.clients, c)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const playerCookieName = "quadbox_id"

func getOrSetPlayerID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(playerCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		log.Println("rand.Read error:", err)
		return ""
	}
	id := hex.EncodeToString(buf)

	http.SetCookie(w, &http.Cookie{
		Name:     playerCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

// GameManager holds a set of hubs keyed by game ID, so each $path/$gameid
// is its own isolated session.
type GameManager struct {
	mu          sync.Mutex
	hubs        map[string]*Hub
	library     *clipLibrary
	idleTimeout time.Duration
}

func newGameManager(idleTimeout time.Duration, library *clipLibrary) *GameManager {
	gm := &GameManager{
		hubs:        make(map[string]*Hub),
		library:     library,
		idleTimeout: idleTimeout,
	}
	if idleTimeout > 0 {
		go gm.reaperLoop()
	}
	return gm
}

func (gm *GameManager) getHub(cfg *Config, gameID string) *Hub {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	if hub, ok := gm.hubs[gameID]; ok {
		return hub
	}

	hub := newHub(cfg, gameID, gm.library)
	gm.hubs[gameID] = hub
	go hub.run(cfg)
	return hub
}

// newGameID generates a crypto-random game ID and ensures it doesn't
// collide with existing games.
func (gm *GameManager) newGameID() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	for {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, 8)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		id := string(out)

		gm.mu.Lock()
		_, exists := gm.hubs[id]
		gm.mu.Unlock()

		if !exists {
			return id
		}
	}
}

// reaperLoop periodically removes hubs that have been idle longer than idleTimeout.
func (gm *GameManager) reaperLoop() {
	ticker := time.NewTicker(gm.idleTimeout / 2)
	for range ticker.C {
		cutoff := time.Now().Add(-gm.idleTimeout)

		gm.mu.Lock()
		for id, hub := range gm.hubs {
			hub.mu.RLock()
			last := hub.lastActive
			hub.mu.RUnlock()

			if last.Before(cutoff) {
				delete(gm.hubs, id)
				go hub.close()
			}
		}
		gm.mu.Unlock()
	}
}

// WebSocket handler that picks the hub based on :gameid
func serveWSForManager(cfg *Config, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		gameID := ps.ByName("gameid")
		if gameID == "" {
			http.Error(w, "missing game id", http.StatusBadRequest)
			return
		}

		playerID := getOrSetPlayerID(w, r)
		if playerID == "" {
			http.Error(w, "unable to assign player id", http.StatusInternalServerError)
			return
		}

		hub := gm.getHub(cfg, gameID)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &Client{
			conn:     conn,
			send:     make(chan any, 8),
			playerID: playerID,
		}

		hub.register <- client

		go client.writePump()
		client.readPump(hub)
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		h.unreg <- c
		_ = c.conn.Close()
	}()

	for {
		var msg clientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "ready", "stop", "restart", "reset", "shuffle", "ended",
			"confirm", "fail", "choice", "breaths", "answer", "clip":
			h.events <- msg
		default:
			// ignore unknown types
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// QR handler: generates a PNG QR code for the current game URL using go-qrcode.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	gameID := ps.ByName("gameid")
	if gameID == "" {
		http.Error(w, "missing game id", http.StatusBadRequest)
		return
	}

	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /.../:gameid/qr; strip trailing "/qr" to get the game URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// ---- Static file paths ----

//go:embed quadrant/index.html
var indexHTML []byte

//go:embed quadrant/app.css
var quadboxCSS []byte

//go:embed quadrant/app.js
var quadboxJS []byte

func getIndexHandler(cfg *Config) func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_ = getOrSetPlayerID(w, r)

		_, _ = w.Write(indexHTML)
	}
}

func getCssHandler(cfg *Config) func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/css; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(quadboxCSS)
	}
}

func getJsHandler(cfg *Config) func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(quadboxJS)
	}
}

// serveClip streams one video file out of the configured clip directory.
func serveClip(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		name := filepath.Base(ps.ByName("clip"))
		if name == "." || name == "/" || !isLikelyVideo(name) {
			http.NotFound(w, r)
			return
		}

		http.ServeFile(w, r, filepath.Join(cfg.clips, name))
	}
}

// redirectNewGame handles GET /path by generating a new random game ID
// (with server-side collision detection) and redirecting to /path/:gameid.
func redirectNewGame(cfg *Config, path string, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		gameID := gm.newGameID()
		logf(cfg, "GAMES: Created game %s/%s", path, gameID)
		http.Redirect(w, r, path+"/"+gameID, http.StatusTemporaryRedirect)
	}
}

// registerQuadrantGame sets up routes so that:
//   - $path                  → redirects to new random game (8-char ID)
//   - $path/:gameid          → HTML client
//   - $path/:gameid/ws       → WebSocket for that game
//   - $path/:gameid/qr       → PNG QR code for that game URL
//   - /clips/:clip           → video clip files
func registerQuadrantGame(cfg *Config, path string, mux *httprouter.Router, library *clipLibrary) {
	gm := newGameManager(cfg.sessionTimeout, library)

	// Root path → redirect to new random game
	mux.GET(cfg.prefix+path, redirectNewGame(cfg, cfg.prefix+path, gm))

	// Per-game client view (HTML)
	mux.GET(cfg.prefix+path+"/:gameid", getIndexHandler(cfg))

	// Shared assets (no gameid in route)
	mux.GET(cfg.prefix+"/assets/quadrant/app.css", getCssHandler(cfg))
	mux.GET(cfg.prefix+"/assets/quadrant/app.js", getJsHandler(cfg))

	// Background clips
	mux.GET(cfg.prefix+"/clips/:clip", serveClip(cfg))

	// Per-game websocket
	mux.GET(cfg.prefix+path+"/:gameid/ws", serveWSForManager(cfg, gm))

	// Per-game QR code
	mux.GET(cfg.prefix+path+"/:gameid/qr", qrHandler)
}
