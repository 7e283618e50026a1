package main

import (
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"github.com/Seednode/secretsanta/exchange"
	"github.com/Seednode/secretsanta/storage"
)

func testConfig() *Config {
	return &Config{
		fallback:        true,
		maxAttempts:     100,
		minParticipants: 3,
		port:            8080,
	}
}

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()

	store, err := storage.Open("")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func newTestHub(t *testing.T, cfg *Config, store *storage.Store) *Hub {
	t.Helper()

	h, err := newHub("test", store, cfg.engine())
	require.NoError(t, err)
	return h
}

func newTestClient(playerID string) *Client {
	return &Client{
		send:     make(chan any, 64),
		playerID: playerID,
	}
}

func drain(c *Client) []any {
	var msgs []any
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return msgs
			}
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

func lastOf[T any](t *testing.T, msgs []any) T {
	t.Helper()

	for i := len(msgs) - 1; i >= 0; i-- {
		if msg, ok := msgs[i].(T); ok {
			return msg
		}
	}
	var zero T
	require.Failf(t, "message not found", "no %T in %d messages", zero, len(msgs))
	return zero
}

func rosterNames(msg RosterMessage) []string {
	return lo.Map(msg.Participants, func(e RosterEntry, _ int) string {
		return e.Name
	})
}

func add(h *Hub, cfg *Config, c *Client, name, excluding string) {
	h.handleEdit(cfg, clientRequest{client: c, msg: ClientMessage{Type: "add", Name: name, Excluding: excluding}})
}

func TestHub_Register(t *testing.T) {
	cfg := testConfig()
	h := newTestHub(t, cfg, newTestStore(t))

	organizer := newTestClient("organizer")
	guest := newTestClient("guest")

	h.handleRegister(cfg, organizer)
	h.handleRegister(cfg, guest)

	msgs := drain(organizer)
	require.Len(t, msgs, 3)
	info := lastOf[SessionInfoMessage](t, msgs)
	require.True(t, info.IsOrganizer)
	require.Equal(t, "test", info.ExchangeID)
	require.Equal(t, 3, info.MinParticipants)
	require.Empty(t, lastOf[RosterMessage](t, msgs).Participants)
	require.Empty(t, lastOf[ResultMessage](t, msgs).Pairs)

	require.False(t, lastOf[SessionInfoMessage](t, drain(guest)).IsOrganizer)

	h.handleUnregister(guest)
	_, open := <-guest.send
	require.False(t, open)
}

func TestHub_Edits(t *testing.T) {
	cfg := testConfig()
	store := newTestStore(t)
	h := newTestHub(t, cfg, store)

	alice := newTestClient("alice")
	bob := newTestClient("bob")
	h.handleRegister(cfg, alice)
	h.handleRegister(cfg, bob)
	drain(alice)
	drain(bob)

	t.Run("add broadcasts and persists", func(t *testing.T) {
		add(h, cfg, alice, "  Alice ", "Bob\n\n Charlie \nAlice")

		roster := lastOf[RosterMessage](t, drain(bob))
		require.Equal(t, []string{"Alice"}, rosterNames(roster))
		require.Equal(t, []string{"Bob", "Charlie"}, roster.Participants[0].Excluding)
		drain(alice)

		stored, err := store.LoadRoster("test")
		require.NoError(t, err)
		require.Equal(t, []string{"Alice"}, stored.Names())
	})

	t.Run("duplicates are reported to the sender only", func(t *testing.T) {
		add(h, cfg, bob, "Alice", "")

		msg := lastOf[SimpleMessage](t, drain(bob))
		require.Equal(t, "error", msg.Type)
		require.Contains(t, msg.Message, "already on the list")
		require.Empty(t, drain(alice))
	})

	t.Run("invalid names are rejected", func(t *testing.T) {
		add(h, cfg, bob, "   ", "")
		require.Equal(t, "error", lastOf[SimpleMessage](t, drain(bob)).Type)

		add(h, cfg, bob, string(make([]byte, maxNameLength+1)), "")
		require.Equal(t, "error", lastOf[SimpleMessage](t, drain(bob)).Type)

		require.Equal(t, 1, h.roster.Len())
	})

	t.Run("exclusions toggle", func(t *testing.T) {
		add(h, cfg, bob, "Bob", "")
		drain(alice)
		drain(bob)

		h.handleEdit(cfg, clientRequest{client: bob, msg: ClientMessage{Type: "exclude", Name: "Bob", Target: "Alice", On: lo.ToPtr(true)}})
		roster := lastOf[RosterMessage](t, drain(alice))
		require.Equal(t, []string{"Alice"}, roster.Participants[1].Excluding)
		drain(bob)

		h.handleEdit(cfg, clientRequest{client: bob, msg: ClientMessage{Type: "exclude", Name: "Bob", Target: "Alice", On: lo.ToPtr(false)}})
		roster = lastOf[RosterMessage](t, drain(alice))
		require.Empty(t, roster.Participants[1].Excluding)
		drain(bob)

		h.handleEdit(cfg, clientRequest{client: bob, msg: ClientMessage{Type: "exclude", Name: "Bob", Target: "Zed", On: lo.ToPtr(true)}})
		require.Contains(t, lastOf[SimpleMessage](t, drain(bob)).Message, "no longer on the list")
	})

	t.Run("remove", func(t *testing.T) {
		h.handleEdit(cfg, clientRequest{client: alice, msg: ClientMessage{Type: "remove", Name: "Bob"}})
		require.Equal(t, []string{"Alice"}, rosterNames(lastOf[RosterMessage](t, drain(bob))))
		drain(alice)
	})
}

func TestHub_Calculate(t *testing.T) {
	cfg := testConfig()
	store := newTestStore(t)
	h := newTestHub(t, cfg, store)

	organizer := newTestClient("organizer")
	guest := newTestClient("guest")
	h.handleRegister(cfg, organizer)
	h.handleRegister(cfg, guest)

	calculate := func(c *Client) {
		h.handleModCommand(cfg, clientRequest{client: c, msg: ClientMessage{Type: "calculate"}})
	}

	add(h, cfg, guest, "Alice", "Bob")
	add(h, cfg, guest, "Bob", "")
	drain(organizer)
	drain(guest)

	t.Run("needs enough participants", func(t *testing.T) {
		calculate(organizer)

		msg := lastOf[SimpleMessage](t, drain(organizer))
		require.Equal(t, "notice", msg.Type)
		require.Contains(t, msg.Message, "At least 3")
		require.Nil(t, h.result)
	})

	t.Run("only the organizer may draw", func(t *testing.T) {
		add(h, cfg, guest, "Charlie", "")
		drain(organizer)
		drain(guest)

		calculate(guest)
		require.Contains(t, lastOf[SimpleMessage](t, drain(guest)).Message, "Only the organizer")
		require.Empty(t, drain(organizer))
	})

	t.Run("draws and broadcasts", func(t *testing.T) {
		calculate(organizer)

		for _, c := range []*Client{organizer, guest} {
			result := lastOf[ResultMessage](t, drain(c))
			require.Equal(t, []Pairing{
				{Giver: "Alice", Recipient: "Charlie"},
				{Giver: "Bob", Recipient: "Alice"},
				{Giver: "Charlie", Recipient: "Bob"},
			}, result.Pairs)
		}

		stored, err := store.LoadResult("test")
		require.NoError(t, err)
		require.Equal(t, h.result, stored)
	})

	t.Run("a failed draw keeps the previous result", func(t *testing.T) {
		previous := h.result
		require.NoError(t, h.roster.SetExclusion("Alice", "Charlie", true))

		calculate(organizer)

		msg := lastOf[SimpleMessage](t, drain(organizer))
		require.Equal(t, "notice", msg.Type)
		require.Contains(t, msg.Message, "Could not compute an assignment")
		require.Empty(t, drain(guest))
		require.Equal(t, previous, h.result)
	})

	t.Run("roster changes discard the result", func(t *testing.T) {
		h.handleEdit(cfg, clientRequest{client: guest, msg: ClientMessage{Type: "exclude", Name: "Alice", Target: "Charlie", On: lo.ToPtr(false)}})

		require.Nil(t, h.result)
		require.Empty(t, lastOf[ResultMessage](t, drain(guest)).Pairs)
		drain(organizer)

		_, err := store.LoadResult("test")
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("reset clears everything", func(t *testing.T) {
		h.handleModCommand(cfg, clientRequest{client: guest, msg: ClientMessage{Type: "reset"}})
		require.Equal(t, 3, h.roster.Len())
		drain(guest)

		h.handleModCommand(cfg, clientRequest{client: organizer, msg: ClientMessage{Type: "reset"}})
		require.Zero(t, h.roster.Len())
		require.Empty(t, lastOf[RosterMessage](t, drain(guest)).Participants)
	})
}

func TestHub_LoadsFromStore(t *testing.T) {
	cfg := testConfig()
	store := newTestStore(t)

	roster, err := exchange.NewRoster(
		exchange.NewParticipant("Alice"),
		exchange.NewParticipant("Bob"),
		exchange.NewParticipant("Charlie"),
	)
	require.NoError(t, err)
	result, err := exchange.Assign(roster)
	require.NoError(t, err)

	require.NoError(t, store.SaveRoster("test", roster))
	require.NoError(t, store.SaveResult("test", result))

	h := newTestHub(t, cfg, store)
	require.Equal(t, roster.Names(), h.roster.Names())
	require.Equal(t, result, h.result)

	c := newTestClient("someone")
	h.handleRegister(cfg, c)
	require.Len(t, lastOf[ResultMessage](t, drain(c)).Pairs, 3)
}

func TestHub_RegisterAfterClose(t *testing.T) {
	cfg := testConfig()
	h := newTestHub(t, cfg, newTestStore(t))

	h.closeAll()

	late := newTestClient("late")
	h.handleRegister(cfg, late)

	_, open := <-late.send
	require.False(t, open)
	require.Empty(t, h.clients)
	require.Empty(t, h.organizerID)
}

func closed(ch <-chan struct{}) func() bool {
	return func() bool {
		select {
		case <-ch:
			return true
		default:
			return false
		}
	}
}

func TestManager_LongDraw(t *testing.T) {
	cfg := testConfig()
	m := newManager(t.Context(), cfg, newTestStore(t))
	m.engine = exchange.NewEngine(exchange.WithMaxAttempts(0), exchange.WithFallback(false))

	busy, err := m.getHub(cfg, "busy")
	require.NoError(t, err)

	organizer := newTestClient("organizer")
	require.True(t, submit(busy, busy.register, organizer))

	// Alice excludes everyone else, so the unbounded draw never finishes.
	for _, p := range []ClientMessage{
		{Type: "add", Name: "Alice", Excluding: "Bob\nCharlie"},
		{Type: "add", Name: "Bob"},
		{Type: "add", Name: "Charlie"},
	} {
		require.True(t, submit(busy, busy.edits, clientRequest{client: organizer, msg: p}))
	}
	require.True(t, submit(busy, busy.mods, clientRequest{client: organizer, msg: ClientMessage{Type: "calculate"}}))

	t.Run("other exchanges still load", func(t *testing.T) {
		loaded := make(chan struct{})
		go func() {
			if _, err := m.getHub(cfg, "other"); err == nil {
				close(loaded)
			}
		}()
		require.Eventually(t, closed(loaded), 2*time.Second, 10*time.Millisecond)
	})

	t.Run("the result stays readable", func(t *testing.T) {
		read := make(chan struct{})
		go func() {
			busy.mu.RLock()
			_ = busy.resultMessageLocked()
			busy.mu.RUnlock()
			close(read)
		}()
		require.Eventually(t, closed(read), 2*time.Second, 10*time.Millisecond)
	})

	t.Run("reaping stops the draw", func(t *testing.T) {
		reaped := make(chan struct{})
		go func() {
			m.reap(cfg, time.Now().Add(time.Minute))
			close(reaped)
		}()
		require.Eventually(t, closed(reaped), 2*time.Second, 10*time.Millisecond)
		require.Eventually(t, closed(busy.done), 2*time.Second, 10*time.Millisecond)

		busy.mu.RLock()
		defer busy.mu.RUnlock()
		require.Nil(t, busy.result)
	})
}

func TestManager(t *testing.T) {
	cfg := testConfig()
	m := newManager(t.Context(), cfg, newTestStore(t))

	t.Run("reuses loaded hubs", func(t *testing.T) {
		first, err := m.getHub(cfg, "abc")
		require.NoError(t, err)
		second, err := m.getHub(cfg, "abc")
		require.NoError(t, err)
		require.Same(t, first, second)
	})

	t.Run("generates fresh ids", func(t *testing.T) {
		id := m.newExchangeID()
		require.Len(t, id, 8)
		require.True(t, validExchangeID(id))
		require.NotEqual(t, id, m.newExchangeID())
	})

	t.Run("reaps idle hubs", func(t *testing.T) {
		hub, err := m.getHub(cfg, "idle")
		require.NoError(t, err)

		c := newTestClient("p")
		hub.handleRegister(cfg, c)

		m.reap(cfg, time.Now().Add(time.Minute))

		m.mu.Lock()
		require.Empty(t, m.hubs)
		m.mu.Unlock()

		require.Eventually(t, func() bool {
			select {
			case <-hub.done:
				return true
			default:
				return false
			}
		}, time.Second, 10*time.Millisecond)
	})
}
