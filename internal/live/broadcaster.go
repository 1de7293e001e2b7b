// Package live provides the websocket push channels and the in-process
// room broadcaster behind them.
package live

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ashureev/jobchat/internal/domain"
	"github.com/google/uuid"
)

// DefaultSendQueue is the outbound buffer of a client when none is configured.
const DefaultSendQueue = 64

// Client is one live connection subscribed to a room.
type Client struct {
	ID   string
	Room string
	// User is nil on anonymous channels.
	User *domain.User

	send chan []byte
}

// NewClient creates a client for room with an outbound queue of the given size.
func NewClient(room string, user *domain.User, queue int) *Client {
	if queue <= 0 {
		queue = DefaultSendQueue
	}
	return &Client{
		ID:   uuid.NewString(),
		Room: room,
		User: user,
		send: make(chan []byte, queue),
	}
}

// Outbound yields frames queued for the client. It is closed when the
// client leaves its room.
func (c *Client) Outbound() <-chan []byte {
	return c.send
}

// Broadcaster maps rooms to their connected clients. Delivery never blocks:
// a client whose queue is full misses the frame, other members are unaffected.
type Broadcaster struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]*Client
	logger *slog.Logger
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		rooms:  make(map[string]map[string]*Client),
		logger: logger,
	}
}

// Join subscribes c to its room.
func (b *Broadcaster) Join(c *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.rooms[c.Room]; !exists {
		b.rooms[c.Room] = make(map[string]*Client)
	}
	b.rooms[c.Room][c.ID] = c
	b.logger.Debug("Live client joined", "room", c.Room, "client_id", c.ID)
}

// Leave unsubscribes c and closes its outbound queue. Calling it twice is a no-op.
func (b *Broadcaster) Leave(c *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	members, ok := b.rooms[c.Room]
	if !ok {
		return
	}
	if current, exists := members[c.ID]; !exists || current != c {
		return
	}
	delete(members, c.ID)
	if len(members) == 0 {
		delete(b.rooms, c.Room)
	}
	close(c.send)
	b.logger.Debug("Live client left", "room", c.Room, "client_id", c.ID)
}

// CloseAll removes every client from every room, which ends their
// connections once the queued frames are written.
func (b *Broadcaster) CloseAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for room, members := range b.rooms {
		for _, c := range members {
			close(c.send)
		}
		b.logger.Info("Live room closed", "room", room, "clients", len(members))
	}
	b.rooms = make(map[string]map[string]*Client)
}

// Broadcast queues payload for every member of room and returns how many
// clients accepted it.
func (b *Broadcaster) Broadcast(room string, payload []byte) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for _, c := range b.rooms[room] {
		if b.offer(c, payload) {
			delivered++
		}
	}
	return delivered
}

// BroadcastJSON encodes v and broadcasts it to room.
func (b *Broadcaster) BroadcastJSON(room string, v any) (int, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("encode broadcast: %w", err)
	}
	return b.Broadcast(room, payload), nil
}

// PublishMessage broadcasts a stored chat message to room.
func (b *Broadcaster) PublishMessage(room string, sender *domain.User, msg *domain.Message) {
	if _, err := b.BroadcastJSON(room, NewChatEvent(sender, msg)); err != nil {
		b.logger.Error("Failed to broadcast chat message", "room", room, "error", err)
	}
}

// Send queues payload for c alone. It reports false if c has left or its
// queue is full.
func (b *Broadcaster) Send(c *Client, payload []byte) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if current, ok := b.rooms[c.Room][c.ID]; !ok || current != c {
		return false
	}
	return b.offer(c, payload)
}

// SendJSON encodes v and sends it to c alone.
func (b *Broadcaster) SendJSON(c *Client, v any) (bool, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return false, fmt.Errorf("encode frame: %w", err)
	}
	return b.Send(c, payload), nil
}

// Members returns the number of clients in room.
func (b *Broadcaster) Members(room string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rooms[room])
}

// Rooms returns the number of rooms with at least one member.
func (b *Broadcaster) Rooms() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rooms)
}

// offer must be called with b.mu held.
func (b *Broadcaster) offer(c *Client, payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	default:
		b.logger.Warn("Live client queue full, dropping frame", "room", c.Room, "client_id", c.ID)
		return false
	}
}
