package ws

import (
	"encoding/json"
	"log/slog"

	"github.com/mhodzic/parley/internal/service"
)

// Hub tracks connected clients and hands them the services their live
// feeds run on.
type Hub struct {
	directory *service.DirectoryService
	messages  *service.MessageService
	log       *slog.Logger

	// clients maps userID → client.
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client
}

func NewHub(directory *service.DirectoryService, messages *service.MessageService, log *slog.Logger) *Hub {
	return &Hub{
		directory:  directory,
		messages:   messages,
		log:        log,
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the Hub's main event loop. Call this in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			if prev, ok := h.clients[client.userID]; ok {
				prev.shutdown()
			}
			h.clients[client.userID] = client
			h.log.Info("ws client connected", "user", client.userID, "total", len(h.clients))
			h.broadcastPresence(client.userID, "online")

		case client := <-h.unregister:
			if current, ok := h.clients[client.userID]; ok && current == client {
				delete(h.clients, client.userID)
				client.shutdown()
				h.log.Info("ws client disconnected", "user", client.userID, "total", len(h.clients))
				h.broadcastPresence(client.userID, "offline")
			}
		}
	}
}

// broadcastPresence sends online/offline to all other connected clients.
func (h *Hub) broadcastPresence(userID, status string) {
	evt, err := NewEvent(EventTypePresence, "", PresencePayload{
		UserID: userID,
		Status: status,
	})
	if err != nil {
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	for _, client := range h.clients {
		if client.userID == userID {
			continue
		}
		client.enqueue(data)
	}
}
