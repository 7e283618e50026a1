package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"

	"github.com/Seednode/secretsanta/storage"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

const playerCookieName = "secretsanta_id"

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

func validExchangeID(id string) bool {
	return validate.Var(id, "required,alphanum,max=32") == nil
}

// hubFor resolves the :id route parameter to a loaded hub, writing an error
// response when that is not possible.
func hubFor(cfg *Config, m *Manager, w http.ResponseWriter, ps httprouter.Params) *Hub {
	id := ps.ByName("id")
	if !validExchangeID(id) {
		http.Error(w, "invalid exchange id", http.StatusBadRequest)
		return nil
	}

	hub, err := m.getHub(cfg, id)
	if err != nil {
		logf(cfg, "ERROR: Loading exchange %s: %v", id, err)
		http.Error(w, "unable to load exchange", http.StatusInternalServerError)
		return nil
	}

	return hub
}

// WebSocket handler that picks the hub based on :id
func serveWS(cfg *Config, m *Manager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		playerID := getOrSetPlayerID(w, r)
		if playerID == "" {
			http.Error(w, "unable to assign player id", http.StatusInternalServerError)
			return
		}

		hub := hubFor(cfg, m, w, ps)
		if hub == nil {
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "ERROR: Upgrading connection from %s: %v", realIP(r), err)
			return
		}

		client := &Client{
			conn:     conn,
			send:     make(chan any, 16),
			playerID: playerID,
		}

		if !submit(hub, hub.register, client) {
			_ = conn.Close()
			return
		}

		go client.writePump()
		client.readPump(hub)
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		submit(h, h.unreg, c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(16 * 1024)

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		var ok bool
		switch msg.Type {
		case "add", "remove", "exclude":
			ok = submit(h, h.edits, clientRequest{client: c, msg: msg})
		case "reset", "calculate":
			ok = submit(h, h.mods, clientRequest{client: c, msg: msg})
		default:
			// ignore unknown types
			ok = true
		}
		if !ok {
			return
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

// QR handler: generates a PNG QR code for the current exchange URL using go-qrcode.
func qrHandler(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if !validExchangeID(ps.ByName("id")) {
			http.Error(w, "invalid exchange id", http.StatusBadRequest)
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

		// We are at /.../:id/qr; strip trailing "/qr" to get the exchange URL.
		path := strings.TrimSuffix(r.URL.Path, "/qr")

		url := scheme + "://" + r.Host + path

		const qrSize = 320 // mobile-friendly size
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		securityHeaders(cfg, w)
		_, _ = w.Write(png)
	}
}

// serveResult returns the latest draw for an exchange as JSON.
func serveResult(cfg *Config, m *Manager, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		hub := hubFor(cfg, m, w, ps)
		if hub == nil {
			return
		}

		hub.mu.RLock()
		msg := hub.resultMessageLocked()
		hub.mu.RUnlock()

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		securityHeaders(cfg, w)

		if err := json.NewEncoder(w).Encode(msg); err != nil {
			errs <- err

			return
		}
	}
}

func getIndexHandler(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if !validExchangeID(ps.ByName("id")) {
			http.NotFound(w, r)
			return
		}

		data, err := assets.ReadFile("assets/index.html")
		if err != nil {
			errs <- err

			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		securityHeaders(cfg, w)

		_ = getOrSetPlayerID(w, r)

		_, err = w.Write(data)
		if err != nil {
			errs <- err

			return
		}
	}
}

// redirectNewExchange handles GET /path by generating a new random exchange
// ID (with server-side collision detection) and redirecting to /path/:id.
func redirectNewExchange(cfg *Config, path string, m *Manager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		id := m.newExchangeID()
		logf(cfg, "EXCHANGE: Created exchange %s/%s for %s", path, id, realIP(r))
		http.Redirect(w, r, cfg.prefix+path+"/"+id, http.StatusTemporaryRedirect)
	}
}

// registerExchange sets up routes so that:
//   - $path                  → redirects to a new random exchange (8-char ID)
//   - $path/:id              → HTML client
//   - $path/:id/ws           → WebSocket for that exchange
//   - $path/:id/qr           → PNG QR code for that exchange URL
//   - $path/:id/result.json  → latest draw
func registerExchange(ctx context.Context, cfg *Config, path string, mux *httprouter.Router, store *storage.Store, errs chan<- error) *Manager {
	m := newManager(ctx, cfg, store)

	mux.GET(cfg.prefix+path, redirectNewExchange(cfg, path, m))
	mux.GET(cfg.prefix+path+"/:id", getIndexHandler(cfg, errs))
	mux.GET(cfg.prefix+path+"/:id/ws", serveWS(cfg, m))
	mux.GET(cfg.prefix+path+"/:id/qr", qrHandler(cfg))
	mux.GET(cfg.prefix+path+"/:id/result.json", serveResult(cfg, m, errs))

	return m
}
