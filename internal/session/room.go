package session

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"codesync/internal/models"
	"codesync/internal/persist"
)

const persistTimeout = 3 * time.Second

// member is one connected participant. Keyed by connection id, not by display
// name: names are free-form and may collide within a room.
type member struct {
	client       *Client
	name         string
	joinedAt     time.Time
	lastTypingAt time.Time
}

type joinEvent struct {
	client *Client
	name   string
	ack    chan struct{}
}

type leaveEvent struct{ connID string }

type codeChangeEvent struct {
	connID string
	text   string
}

type typingEvent struct{ connID string }

type languageChangeEvent struct {
	connID   string
	language models.Language
}

type chatEvent struct {
	connID string
	text   string
}

type seedLanguageEvent struct{ language models.Language }

type snapshotReq struct{ reply chan Snapshot }

// closeProposal is the hub's release handshake. The actor accepts it only if
// the member list is still empty once every event queued ahead of it has been
// applied, so a join racing the grace timer keeps the room.
type closeProposal struct{ reply chan bool }

// Snapshot is a consistent view of a room, taken on the room's own goroutine.
type Snapshot struct {
	Doc          models.DocState
	Language     models.Language
	Members      []string
	History      []models.ChatMessage
	LastActivity time.Time
}

// Room serializes every mutation of one collaborative session. All state below
// the events channel is owned by the run goroutine; nothing else touches it.
// Rooms for different sessions run fully concurrently.
type Room struct {
	ID string

	events    chan interface{}
	done      chan struct{}
	closeOnce sync.Once
	count     atomic.Int64

	members        []*member
	byConn         map[string]*member
	doc            models.DocState
	language       models.Language
	langSet        bool
	chat           []models.ChatMessage
	lastActivityAt time.Time

	chatCap int
	store   persist.Store
	log     *zap.Logger
	onEmpty func(roomID string)
}

func newRoom(id string, chatCap int, store persist.Store, log *zap.Logger, onEmpty func(string)) *Room {
	if log == nil {
		log = zap.NewNop()
	}
	return &Room{
		ID:       id,
		events:   make(chan interface{}, 256),
		done:     make(chan struct{}),
		byConn:   make(map[string]*member),
		language: models.LangTypeScript,
		chatCap:  chatCap,
		store:    store,
		log:      log,
		onEmpty:  onEmpty,
	}
}

func (r *Room) run() {
	r.seedFromStore()
	for {
		select {
		case <-r.done:
			return
		case ev := <-r.events:
			r.apply(ev)
		}
	}
}

// seedFromStore asks the persistence collaborator for the session's recorded
// language. Best effort and off the event loop: the room serves joins with the
// default language until the answer arrives.
func (r *Room) seedFromStore() {
	if r.store == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		meta, err := r.store.GetSessionMetadata(ctx, r.ID)
		if err != nil {
			r.log.Info("no persisted session metadata", zap.String("room", r.ID), zap.Error(err))
			return
		}
		r.enqueue(seedLanguageEvent{language: meta.Language})
	}()
}

func (r *Room) apply(ev interface{}) {
	r.lastActivityAt = time.Now()

	switch e := ev.(type) {
	case joinEvent:
		r.handleJoin(e)
	case leaveEvent:
		r.handleLeave(e)
	case codeChangeEvent:
		r.handleCodeChange(e)
	case typingEvent:
		r.handleTyping(e)
	case languageChangeEvent:
		r.handleLanguageChange(e)
	case chatEvent:
		r.handleChat(e)
	case seedLanguageEvent:
		if !r.langSet && e.language.Valid() {
			r.language = e.language
			r.broadcast(models.WSFrame{Type: models.EvtLanguageUpdate, Data: r.language})
		}
	case closeProposal:
		if len(r.members) > 0 {
			e.reply <- false
			return
		}
		r.close()
		e.reply <- true
	case snapshotReq:
		e.reply <- Snapshot{
			Doc:          r.doc,
			Language:     r.language,
			Members:      r.memberNames(),
			History:      append([]models.ChatMessage(nil), r.chat...),
			LastActivity: r.lastActivityAt,
		}
	}
}

func (r *Room) handleJoin(e joinEvent) {
	if m, ok := r.byConn[e.client.ID]; ok {
		// Re-join on the same connection is idempotent: refresh the name,
		// never duplicate the membership entry.
		m.name = e.name
		m.client = e.client
	} else {
		m := &member{client: e.client, name: e.name, joinedAt: time.Now()}
		r.byConn[e.client.ID] = m
		r.members = append(r.members, m)
		r.count.Store(int64(len(r.members)))
	}

	// Full snapshot to the joiner only, then presence to everyone.
	e.client.Send(models.WSFrame{Type: models.EvtChatHistory, Data: append([]models.ChatMessage{}, r.chat...)})
	e.client.Send(models.WSFrame{Type: models.EvtCodeUpdate, Data: models.CodeUpdate{Code: r.doc.Text, Version: r.doc.Version}})
	e.client.Send(models.WSFrame{Type: models.EvtLanguageUpdate, Data: r.language})
	r.broadcast(models.WSFrame{Type: models.EvtUserJoined, Data: r.memberNames()})

	if e.ack != nil {
		close(e.ack)
	}
}

func (r *Room) handleLeave(e leaveEvent) {
	m, ok := r.byConn[e.connID]
	if !ok {
		// Disconnect races deliver leave twice; not an error.
		return
	}
	delete(r.byConn, e.connID)
	for i, cur := range r.members {
		if cur == m {
			r.members = append(r.members[:i], r.members[i+1:]...)
			break
		}
	}
	r.count.Store(int64(len(r.members)))

	r.broadcast(models.WSFrame{Type: models.EvtUserJoined, Data: r.memberNames()})
	if len(r.members) == 0 && r.onEmpty != nil {
		// Off the event loop: the hub's release handshake holds the hub lock
		// while it waits on this goroutine, so arming the timer must not
		// contend for that lock from here.
		go r.onEmpty(r.ID)
	}
}

func (r *Room) handleCodeChange(e codeChangeEvent) {
	if _, ok := r.byConn[e.connID]; !ok {
		return
	}
	// Last writer wins: the full text is replaced, no merge is attempted.
	r.doc.Text = e.text
	r.doc.Version++
	r.broadcastExcept(e.connID, models.WSFrame{
		Type: models.EvtCodeUpdate,
		Data: models.CodeUpdate{Code: r.doc.Text, Version: r.doc.Version},
	})
}

func (r *Room) handleTyping(e typingEvent) {
	m, ok := r.byConn[e.connID]
	if !ok {
		return
	}
	m.lastTypingAt = time.Now()
	// Clearing the indicator is the receiver's local timer, not ours.
	r.broadcastExcept(e.connID, models.WSFrame{Type: models.EvtUserTyping, Data: m.name})
}

func (r *Room) handleLanguageChange(e languageChangeEvent) {
	if _, ok := r.byConn[e.connID]; !ok {
		return
	}
	if !e.language.Valid() {
		return
	}
	r.language = e.language
	r.langSet = true
	// Language is metadata, not document content; the doc version is untouched.
	r.broadcast(models.WSFrame{Type: models.EvtLanguageUpdate, Data: r.language})
	r.persistLanguage(e.language)
}

// persistLanguage is fire and forget. The live room is the source of truth;
// a failed durability write never blocks or fails the broadcast.
func (r *Room) persistLanguage(lang models.Language) {
	if r.store == nil {
		return
	}
	roomID := r.ID
	store, log := r.store, r.log
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := store.SetSessionLanguage(ctx, roomID, lang); err != nil {
			log.Warn("persist language failed",
				zap.String("room", roomID), zap.String("language", string(lang)), zap.Error(err))
		}
	}()
}

func (r *Room) handleChat(e chatEvent) {
	m, ok := r.byConn[e.connID]
	if !ok {
		return
	}
	if strings.TrimSpace(e.text) == "" {
		return
	}
	msg := models.ChatMessage{Author: m.name, Text: e.text, SentAt: time.Now()}
	r.chat = append(r.chat, msg)
	if r.chatCap > 0 && len(r.chat) > r.chatCap {
		r.chat = r.chat[len(r.chat)-r.chatCap:]
	}
	// Chat, unlike code, echoes to the sender so their message lands in the
	// shared order everyone else sees.
	r.broadcast(models.WSFrame{Type: models.EvtReceiveMessage, Data: msg})
}

func (r *Room) memberNames() []string {
	names := make([]string, 0, len(r.members))
	for _, m := range r.members {
		names = append(names, m.name)
	}
	return names
}

func (r *Room) broadcast(frame models.WSFrame) {
	for _, m := range r.members {
		m.client.Send(frame)
	}
}

func (r *Room) broadcastExcept(connID string, frame models.WSFrame) {
	for _, m := range r.members {
		if m.client.ID == connID {
			continue
		}
		m.client.Send(frame)
	}
}

func (r *Room) enqueue(ev interface{}) bool {
	select {
	case <-r.done:
		return false
	case r.events <- ev:
		return true
	}
}

// Join admits the client (guests are never rejected) and returns once the
// membership has been applied. Reports false only when the room has been
// released; the caller re-fetches a handle and retries.
func (r *Room) Join(c *Client, name string) bool {
	ack := make(chan struct{})
	if !r.enqueue(joinEvent{client: c, name: name, ack: ack}) {
		return false
	}
	select {
	case <-ack:
		return true
	case <-r.done:
		// An applied join acks before the room can accept a close proposal.
		select {
		case <-ack:
			return true
		default:
			return false
		}
	}
}

func (r *Room) Leave(connID string) bool {
	return r.enqueue(leaveEvent{connID: connID})
}

func (r *Room) ChangeCode(connID, text string) bool {
	return r.enqueue(codeChangeEvent{connID: connID, text: text})
}

func (r *Room) Typing(connID string) bool {
	return r.enqueue(typingEvent{connID: connID})
}

func (r *Room) ChangeLanguage(connID string, lang models.Language) bool {
	return r.enqueue(languageChangeEvent{connID: connID, language: lang})
}

func (r *Room) SendChat(connID, text string) bool {
	return r.enqueue(chatEvent{connID: connID, text: text})
}

// Snapshot reads the room state through the event loop, so it reflects every
// event applied before it. Returns the zero snapshot for a released room.
func (r *Room) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	if !r.enqueue(snapshotReq{reply: reply}) {
		return Snapshot{}
	}
	select {
	case <-r.done:
		return Snapshot{}
	case snap := <-reply:
		return snap
	}
}

// ConfirmRelease asks the actor to shut down, which it does only if the room
// is still empty after draining every queued event. Reports whether the room
// is now closed.
func (r *Room) ConfirmRelease() bool {
	reply := make(chan bool, 1)
	if !r.enqueue(closeProposal{reply: reply}) {
		return true
	}
	select {
	case ok := <-reply:
		return ok
	case <-r.done:
		return true
	}
}

// MemberCount is safe from any goroutine.
func (r *Room) MemberCount() int {
	return int(r.count.Load())
}

func (r *Room) Closed() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

func (r *Room) close() {
	r.closeOnce.Do(func() { close(r.done) })
}
