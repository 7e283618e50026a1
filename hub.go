// Secret Santa exchange sessions
//
// Every exchange lives at $path/:id and is driven by a Hub holding its
// roster and the latest draw. Browsers connect over a websocket and send
// small JSON commands; the hub applies them one at a time, persists the
// roster and broadcasts the new state to every connected client.
//
// - The first connection to an exchange becomes its organizer
// - Anyone may add or remove participants and toggle exclusions
// - Only the organizer may reset the list or draw assignments
// - A failed draw leaves the previous result untouched
// - Any roster change discards the previous result
// - Idle hubs are unloaded after a timeout; their data stays in storage

package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"github.com/Seednode/secretsanta/exchange"
	"github.com/Seednode/secretsanta/storage"
)

const maxNameLength = 64

var validate = validator.New()

// Messages coming from clients
type ClientMessage struct {
	Type      string `json:"type"`                // "add", "remove", "exclude", "reset", "calculate"
	Name      string `json:"name,omitempty"`      // add / remove / exclude
	Excluding string `json:"excluding,omitempty"` // add: one name per line
	Target    string `json:"target,omitempty"`    // exclude
	On        *bool  `json:"on,omitempty"`        // exclude
}

// SessionInfoMessage is sent first on every connection.
type SessionInfoMessage struct {
	Type            string `json:"type"` // "session_info"
	ExchangeID      string `json:"exchange_id"`
	IsOrganizer     bool   `json:"is_organizer"`
	MinParticipants int    `json:"min_participants"`
}

type RosterEntry struct {
	Name      string   `json:"name"`
	Excluding []string `json:"excluding"`
}

// RosterMessage carries the full participant list.
type RosterMessage struct {
	Type         string        `json:"type"` // "roster"
	Participants []RosterEntry `json:"participants"`
}

type Pairing struct {
	Giver     string `json:"giver"`
	Recipient string `json:"recipient"`
}

// ResultMessage carries the latest draw. Pairs is empty when there is none.
type ResultMessage struct {
	Type  string    `json:"type"` // "result"
	Pairs []Pairing `json:"pairs"`
}

// SimpleMessage is for notifications sent to a single client ("error", "notice").
type SimpleMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type addInput struct {
	Name      string   `validate:"required,max=64"`
	Excluding []string `validate:"max=256,dive,required,max=64"`
}

type Client struct {
	conn     *websocket.Conn
	send     chan any
	playerID string
}

type clientRequest struct {
	client *Client
	msg    ClientMessage
}

type Hub struct {
	id      string
	clients map[*Client]bool
	roster  *exchange.Roster
	result  []exchange.Participant

	register chan *Client
	unreg    chan *Client
	edits    chan clientRequest
	mods     chan clientRequest
	done     chan struct{}
	stop     sync.Once

	mu sync.RWMutex

	createdAt   time.Time
	lastActive  atomic.Int64 // unix nanoseconds, read by the reaper without mu
	organizerID string // cookie/playerID of whoever opened the exchange first

	store  *storage.Store
	engine *exchange.Engine
}

func newHub(id string, store *storage.Store, engine *exchange.Engine) (*Hub, error) {
	roster, err := store.LoadRoster(id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		roster, _ = exchange.NewRoster()
	case err != nil:
		return nil, err
	}

	result, err := store.LoadResult(id)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	h := &Hub{
		id:        id,
		clients:   make(map[*Client]bool),
		roster:    roster,
		result:    result,
		register:  make(chan *Client),
		unreg:     make(chan *Client),
		edits:     make(chan clientRequest),
		mods:      make(chan clientRequest),
		done:      make(chan struct{}),
		createdAt: time.Now(),
		store:     store,
		engine:    engine,
	}
	h.touch()

	return h, nil
}

func (h *Hub) touch() {
	h.lastActive.Store(time.Now().UnixNano())
}

func (h *Hub) idleSince() time.Time {
	return time.Unix(0, h.lastActive.Load())
}

func (h *Hub) closed() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *Hub) run(cfg *Config) {
	for {
		select {
		case c := <-h.register:
			h.handleRegister(cfg, c)

		case c := <-h.unreg:
			h.handleUnregister(c)

		case req := <-h.edits:
			h.handleEdit(cfg, req)

		case req := <-h.mods:
			h.handleModCommand(cfg, req)

		case <-h.done:
			return
		}
	}
}

// submit hands a request to the hub loop unless the hub has been shut down.
func submit[T any](h *Hub, ch chan<- T, v T) bool {
	select {
	case ch <- v:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) handleRegister(cfg *Config, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.touch()

	// closeAll may already have swept the client list.
	if h.closed() {
		close(c.send)
		return
	}

	if h.organizerID == "" {
		h.organizerID = c.playerID
	}

	h.clients[c] = true

	h.sendLocked(c, SessionInfoMessage{
		Type:            "session_info",
		ExchangeID:      h.id,
		IsOrganizer:     c.playerID == h.organizerID,
		MinParticipants: cfg.minParticipants,
	})
	h.sendLocked(c, h.rosterMessageLocked())
	h.sendLocked(c, h.resultMessageLocked())
}

func (h *Hub) handleUnregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.touch()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// handleEdit processes roster changes any participant may make.
func (h *Hub) handleEdit(cfg *Config, req clientRequest) {
	c := req.client
	msg := req.msg

	h.mu.Lock()
	defer h.mu.Unlock()

	h.touch()

	var err error
	switch msg.Type {
	case "add":
		name := strings.TrimSpace(msg.Name)
		excluding := lo.Without(exchange.ParseExclusions(msg.Excluding), name)

		if verr := validate.Struct(addInput{Name: name, Excluding: excluding}); verr != nil {
			h.sendLocked(c, SimpleMessage{
				Type:    "error",
				Message: fmt.Sprintf("Names must be between 1 and %d characters long.", maxNameLength),
			})
			return
		}

		err = h.roster.Add(exchange.NewParticipant(name, excluding...))
		if err == nil {
			logf(cfg, "EXCHANGE: %q joined %s", name, h.id)
		}

	case "remove":
		err = h.roster.Remove(msg.Name)
		if err == nil {
			logf(cfg, "EXCHANGE: %q left %s", msg.Name, h.id)
		}

	case "exclude":
		on := msg.On != nil && *msg.On
		err = h.roster.SetExclusion(msg.Name, msg.Target, on)

	default:
		return
	}

	if err != nil {
		h.sendLocked(c, SimpleMessage{
			Type:    "error",
			Message: editErrorText(err),
		})
		return
	}

	h.rosterChangedLocked(cfg)
}

func editErrorText(err error) string {
	switch {
	case errors.Is(err, exchange.ErrDuplicateName):
		return "That name is already on the list. Please choose a different name."
	case errors.Is(err, exchange.ErrEmptyName):
		return "Please enter a name."
	case errors.Is(err, exchange.ErrParticipantNotFound):
		return "That participant is no longer on the list."
	case errors.Is(err, exchange.ErrSelfGift):
		return "Participants cannot exclude themselves."
	}
	return "That change could not be made."
}

// handleModCommand processes organizer commands: reset the list or draw.
func (h *Hub) handleModCommand(cfg *Config, req clientRequest) {
	c := req.client
	msg := req.msg

	h.touch()

	h.mu.Lock()
	allowed := h.organizerID != "" && c.playerID == h.organizerID
	switch {
	case !allowed:
		h.sendLocked(c, SimpleMessage{
			Type:    "error",
			Message: "Only the organizer can do that.",
		})
	case msg.Type == "reset":
		h.roster.Clear()
		logf(cfg, "EXCHANGE: Cleared %s", h.id)
		h.rosterChangedLocked(cfg)
	}
	h.mu.Unlock()

	if allowed && msg.Type == "calculate" {
		h.calculate(cfg, c)
	}
}

// calculate draws on a copy of the roster without holding mu. Only the hub
// loop edits the roster, so the copy stays current for the whole draw. The
// draw is abandoned once the hub shuts down.
func (h *Hub) calculate(cfg *Config, c *Client) {
	h.mu.Lock()
	if h.roster.Len() < cfg.minParticipants {
		h.sendLocked(c, SimpleMessage{
			Type:    "notice",
			Message: fmt.Sprintf("At least %d participants are needed to draw names.", cfg.minParticipants),
		})
		h.mu.Unlock()
		return
	}
	roster := h.roster.Clone()
	h.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-h.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	startTime := time.Now()

	result, stats, err := h.engine.AssignContext(ctx, roster)

	h.mu.Lock()
	defer h.mu.Unlock()

	h.touch()

	if h.closed() {
		logf(cfg, "EXCHANGE: Abandoned draw for unloaded exchange %s after %d attempts", h.id, stats.Attempts)
		return
	}

	if err != nil {
		logf(cfg, "EXCHANGE: Draw for %s failed after %d attempts (fallback: %t): %v",
			h.id, stats.Attempts, stats.Fallback, err)

		h.sendLocked(c, SimpleMessage{
			Type:    "notice",
			Message: "Could not compute an assignment. Try loosening some exclusions.",
		})
		return
	}

	h.result = result
	if err := h.store.SaveResult(h.id, result); err != nil {
		logf(cfg, "ERROR: Saving result for %s: %v", h.id, err)
	}

	logf(cfg, "EXCHANGE: Drew %d participants for %s in %s (attempts: %d, fallback: %t)",
		len(result), h.id, time.Since(startTime).Round(time.Microsecond), stats.Attempts, stats.Fallback)

	h.broadcastLocked(h.resultMessageLocked())
}

// rosterChangedLocked persists the roster, drops the stale result and
// brings every client up to date.
func (h *Hub) rosterChangedLocked(cfg *Config) {
	if err := h.store.SaveRoster(h.id, h.roster); err != nil {
		logf(cfg, "ERROR: Saving roster for %s: %v", h.id, err)
	}

	if h.result != nil {
		h.result = nil
		if err := h.store.DeleteResult(h.id); err != nil {
			logf(cfg, "ERROR: Clearing result for %s: %v", h.id, err)
		}
	}

	h.broadcastLocked(h.rosterMessageLocked())
	h.broadcastLocked(h.resultMessageLocked())
}

func (h *Hub) rosterMessageLocked() RosterMessage {
	return RosterMessage{
		Type: "roster",
		Participants: lo.Map(h.roster.Participants(), func(p exchange.Participant, _ int) RosterEntry {
			return RosterEntry{
				Name:      p.Name,
				Excluding: lo.Ternary(p.Excluding == nil, []string{}, p.Excluding),
			}
		}),
	}
}

func (h *Hub) resultMessageLocked() ResultMessage {
	return ResultMessage{
		Type:  "result",
		Pairs: pairings(h.result),
	}
}

func pairings(result []exchange.Participant) []Pairing {
	return lo.Map(result, func(p exchange.Participant, _ int) Pairing {
		return Pairing{
			Giver:     p.Name,
			Recipient: p.GivingTo,
		}
	})
}

// sendLocked queues msg for c, dropping the client if it cannot keep up.
// Clients that already left are skipped.
func (h *Hub) sendLocked(c *Client, msg any) {
	if _, ok := h.clients[c]; !ok {
		return
	}

	select {
	case c.send <- msg:
	default:
		if _, ok := h.clients[c]; ok {
			delete(h.clients, c)
			close(c.send)
		}
	}
}

func (h *Hub) broadcastLocked(msg any) {
	for client := range h.clients {
		h.sendLocked(client, msg)
	}
}

// closeAll stops the hub loop and disconnects all clients (used by reaper).
func (h *Hub) closeAll() {
	h.stop.Do(func() {
		close(h.done)
	})

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		close(c.send)
		if c.conn != nil {
			_ = c.conn.Close()
		}
		delete(h.clients, c)
	}
}

// Manager holds a set of hubs keyed by exchange ID, so each $path/$id is
// its own isolated session.
type Manager struct {
	mu          sync.Mutex
	hubs        map[string]*Hub
	idleTimeout time.Duration
	store       *storage.Store
	engine      *exchange.Engine
}

func newManager(ctx context.Context, cfg *Config, store *storage.Store) *Manager {
	m := &Manager{
		hubs:        make(map[string]*Hub),
		idleTimeout: cfg.sessionTimeout,
		store:       store,
		engine:      cfg.engine(),
	}
	if m.idleTimeout > 0 {
		go m.reaperLoop(ctx, cfg)
	}
	return m
}

func (m *Manager) getHub(cfg *Config, id string) (*Hub, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if hub, ok := m.hubs[id]; ok {
		return hub, nil
	}

	hub, err := newHub(id, m.store, m.engine)
	if err != nil {
		return nil, err
	}
	m.hubs[id] = hub
	go hub.run(cfg)

	return hub, nil
}

// newExchangeID generates a crypto-random exchange ID that is neither
// loaded nor stored.
func (m *Manager) newExchangeID() string {
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

		m.mu.Lock()
		_, loaded := m.hubs[id]
		m.mu.Unlock()
		if loaded {
			continue
		}

		if _, err := m.store.LoadRoster(id); errors.Is(err, storage.ErrNotFound) {
			return id
		}
	}
}

// reaperLoop periodically unloads hubs that have been idle longer than idleTimeout.
func (m *Manager) reaperLoop(ctx context.Context, cfg *Config) {
	ticker := time.NewTicker(m.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.closeAll()
			return
		case <-ticker.C:
			m.reap(cfg, time.Now().Add(-m.idleTimeout))
		}
	}
}

func (m *Manager) reap(cfg *Config, cutoff time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, hub := range m.hubs {
		if hub.idleSince().Before(cutoff) {
			delete(m.hubs, id)
			logf(cfg, "EXCHANGE: Unloaded idle exchange %s", id)
			go hub.closeAll()
		}
	}
}

func (m *Manager) closeAll() {
	m.mu.Lock()
	hubs := m.hubs
	m.hubs = make(map[string]*Hub)
	m.mu.Unlock()

	for _, hub := range hubs {
		hub.closeAll()
	}
}
