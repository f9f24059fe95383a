package websocket

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

//Hub maintains the set of active clients and their house-room
//subscriptions, and broadcasts events to a room's members.
type Hub struct {
	clients    map[*Client]bool
	rooms      map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	logger     *logrus.Logger
	mu         sync.RWMutex
}

type envelope struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
	}
}

func houseRoom(houseId uint64) string {
	return fmt.Sprintf("house:%d", houseId)
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debugf("Websocket client registered: %s", client.conn.RemoteAddr())

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				h.removeClientLocked(client)
			}
			h.mu.Unlock()
			h.logger.Debugf("Websocket client unregistered: %s", client.conn.RemoteAddr())
		}
	}
}

func (h *Hub) RegisterClient(client *Client) {
	h.register <- client
}

func (h *Hub) removeClientLocked(client *Client) {
	delete(h.clients, client)
	for room, members := range h.rooms {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	close(client.send)
}

//Subscribe adds the client to a house room.
func (h *Hub) Subscribe(client *Client, houseId uint64) {
	room := houseRoom(houseId)

	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]bool)
		h.rooms[room] = members
	}
	members[client] = true

	h.logger.Debugf("Client %s subscribed to %s", client.conn.RemoteAddr(), room)
}

func (h *Hub) Unsubscribe(client *Client, houseId uint64) {
	room := houseRoom(houseId)

	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.rooms[room]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

//BroadcastToHouse sends an event to every subscriber of a house room.
//A client with a full send buffer is dropped rather than allowed to
//stall the broadcast.
func (h *Hub) BroadcastToHouse(houseId uint64, event string, payload interface{}) {
	message, err := json.Marshal(envelope{Event: event, Payload: payload})
	if err != nil {
		h.logger.WithField("error", err).Error("Error encoding broadcast message")
		return
	}

	room := houseRoom(houseId)

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.rooms[room] {
		select {
		case client.send <- message:
		default:
			h.logger.Warningf("Websocket client %s send buffer full, removing", client.conn.RemoteAddr())
			h.removeClientLocked(client)
		}
	}
}

//RoomSize reports the subscriber count of a house room.
func (h *Hub) RoomSize(houseId uint64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.rooms[houseRoom(houseId)])
}
