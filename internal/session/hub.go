package session

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"codesync/internal/metrics"
	"codesync/internal/persist"
)

// Hub is the registry of active rooms. Rooms are created lazily on the first
// join for a session id and released once they have stayed empty for the
// grace window, which absorbs page reloads without losing document state.
type Hub struct {
	mu     sync.Mutex
	rooms  map[string]*Room
	timers map[string]*time.Timer

	grace   time.Duration
	chatCap int
	store   persist.Store
	log     *zap.Logger
}

func NewHub(grace time.Duration, chatCap int, store persist.Store, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		rooms:   make(map[string]*Room),
		timers:  make(map[string]*time.Timer),
		grace:   grace,
		chatCap: chatCap,
		store:   store,
		log:     log,
	}
}

// GetOrCreate returns the live room for id, starting one if needed. Idempotent:
// the same handle is returned for as long as the room is alive. A pending
// eviction timer is cancelled, since someone is about to join.
func (h *Hub) GetOrCreate(id string) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()

	if t, ok := h.timers[id]; ok {
		t.Stop()
		delete(h.timers, id)
	}
	if r, ok := h.rooms[id]; ok && !r.Closed() {
		return r
	}

	r := newRoom(id, h.chatCap, h.store, h.log, h.scheduleRelease)
	h.rooms[id] = r
	go r.run()
	metrics.ActiveRooms.Inc()
	h.log.Info("room created", zap.String("room", id))
	return r
}

// Get returns the room only if it is currently alive.
func (h *Hub) Get(id string) (*Room, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[id]
	if !ok || r.Closed() {
		return nil, false
	}
	return r, true
}

// scheduleRelease arms the grace-window timer for a room that just emptied.
// Called by the room's own goroutine when its member list reaches zero.
func (h *Hub) scheduleRelease(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[id]; !ok {
		return
	}
	if t, ok := h.timers[id]; ok {
		t.Stop()
	}
	h.timers[id] = time.AfterFunc(h.grace, func() { h.releaseIfEmpty(id) })
}

// releaseIfEmpty drops the room unless someone rejoined during the grace
// window. Emptiness is confirmed by the room's own goroutine after it drains
// every queued event; a member counter read here would miss a join that is
// admitted but not yet applied. The hub lock is held across the handshake so
// a racing GetOrCreate either finds the live room or, after removal, creates
// a fresh one.
func (h *Hub) releaseIfEmpty(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.timers, id)
	r, ok := h.rooms[id]
	if !ok {
		return
	}
	if !r.ConfirmRelease() {
		return
	}
	delete(h.rooms, id)
	metrics.ActiveRooms.Dec()
	h.log.Info("room released", zap.String("room", id))
}

// Len reports the number of live rooms.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// Shutdown closes every room. Used on process exit and in tests.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, t := range h.timers {
		t.Stop()
		delete(h.timers, id)
	}
	for id, r := range h.rooms {
		r.close()
		delete(h.rooms, id)
		metrics.ActiveRooms.Dec()
	}
}
